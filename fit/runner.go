package fit

import (
	"context"
	"sync"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// Runner 拟合调度器
// 同一 (管型, 模型族) 同时最多一个拟合在运行，不同键之间并发
type Runner struct {
	log         *zap.Logger
	concurrency int

	mu    sync.Mutex
	slots map[string]chan struct{}

	fit func(ctx context.Context, req Request) (*Result, error)
}

// NewRunner 创建调度器，concurrency 小于 1 时按 1 处理
func NewRunner(log *zap.Logger, concurrency int) *Runner {
	if log == nil {
		log = zap.NewNop()
	}
	r := &Runner{
		log:         log,
		concurrency: max(concurrency, 1),
		slots:       make(map[string]chan struct{}),
	}
	r.fit = func(ctx context.Context, req Request) (*Result, error) {
		return Fit(ctx, req, WithLogger(r.log))
	}
	return r
}

func (r *Runner) slot(key string) chan struct{} {
	r.mu.Lock()
	defer r.mu.Unlock()
	ch, ok := r.slots[key]
	if !ok {
		ch = make(chan struct{}, 1)
		r.slots[key] = ch
	}
	return ch
}

// Fit 串行化执行一次拟合，等待期间 ctx 取消则返回 ctx.Err()
func (r *Runner) Fit(ctx context.Context, req Request) (*Result, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}
	key := req.Key()
	ch := r.slot(key)
	select {
	case ch <- struct{}{}:
	case <-ctx.Done():
		return nil, ctx.Err()
	}
	defer func() { <-ch }()
	r.log.Debug("fit started", zap.String("key", key))
	return r.fit(ctx, req)
}

// FitAll 并发执行多个拟合，结果与请求一一对应
// 任一拟合失败时取消其余拟合并返回第一个错误
func (r *Runner) FitAll(ctx context.Context, reqs []Request) ([]*Result, error) {
	results := make([]*Result, len(reqs))
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(r.concurrency)
	for i := range reqs {
		g.Go(func() error {
			res, err := r.Fit(ctx, reqs[i])
			if err != nil {
				return err
			}
			results[i] = res
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return results, nil
}
