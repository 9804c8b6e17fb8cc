// Package fit 参数估计与顶层精修的编排
package fit

import (
	"context"
	"errors"
	"fmt"
	"math"

	"go.uber.org/zap"

	"tubefit/estimate"
	"tubefit/logging"
	"tubefit/objective"
	"tubefit/optimizer"
	"tubefit/types"
)

// ErrInvalidRequest 拟合请求不完整
var ErrInvalidRequest = errors.New("invalid fit request")

// Request 一次拟合请求
type Request struct {
	Tube           string                   // 管型名称，用于日志与串行化
	Files          []*types.MeasurementFile // 测量数据（不会被修改）
	Params         types.Parameters         // 初值，未设置字段由估计器填充
	MaxDissipation float64                  // 屏耗门限 (W)
	Config         types.FitConfiguration   // 顶层精修配置，零值时使用 DefaultTopLevel
	SubFit         types.FitConfiguration   // 估计器子拟合配置，零值时使用 DefaultSubFit
}

// Result 拟合结果
type Result struct {
	Tube         string
	Initial      types.Parameters // 估计器输出
	Params       types.Parameters // 精修后参数
	Optimization types.OptimizationResult
	InitialError types.ModelError
	Error        types.ModelError
}

// Key 串行化键
func (r *Request) Key() string {
	if r.Params == nil {
		return r.Tube
	}
	return r.Tube + "/" + r.Params.Family().String()
}

// Validate 检查请求
func (r *Request) Validate() error {
	switch {
	case r.Params == nil:
		return fmt.Errorf("%w: params is nil", ErrInvalidRequest)
	case len(r.Files) == 0:
		return fmt.Errorf("%w: no measurement files", ErrInvalidRequest)
	case !(r.MaxDissipation > 0):
		return fmt.Errorf("%w: max dissipation must be positive, got %g", ErrInvalidRequest, r.MaxDissipation)
	}
	for i, f := range r.Files {
		if f == nil {
			return fmt.Errorf("%w: file %d is nil", ErrInvalidRequest, i)
		}
	}
	return nil
}

type options struct {
	log *zap.Logger
}

// Option 拟合选项
type Option func(*options)

// WithLogger 设置日志器，默认取自 ctx（见 logging.IntoContext）
func WithLogger(log *zap.Logger) Option {
	return func(o *options) {
		if log != nil {
			o.log = log
		}
	}
}

// Fit 估计初值并精修
// 参数:
//
//	ctx - 取消时返回 ctx.Err()
//	req - 拟合请求，Files 与 Params 不被修改
//
// 返回:
//
//	请求非法时返回 ErrInvalidRequest，优化未收敛不视为错误（见 Optimization.Converged）
func Fit(ctx context.Context, req Request, opts ...Option) (*Result, error) {
	o := options{log: logging.FromContext(ctx)}
	for _, opt := range opts {
		opt(&o)
	}
	if err := req.Validate(); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	log := o.log.With(zap.String("tube", req.Tube), zap.Stringer("family", req.Params.Family()))

	// 估计器会原地排序序列
	files := CopyFiles(req.Files)
	p := req.Params.Clone()
	estimate.Parameters(files, p, req.MaxDissipation, estimate.WithSubFit(req.SubFit))
	initial := p.Clone()
	initialErr := objective.Error(files, initial, req.MaxDissipation)
	log.Debug("initial estimate",
		zap.Any("params", finite(types.Values(initial))),
		zap.Float64("rmse", initialErr.RMSE),
		zap.Int("points", initialErr.N))

	cfg := req.Config
	if cfg.MaxIterations <= 0 {
		cfg.MaxIterations = types.DefaultTopLevel().MaxIterations
	}
	if cfg.RelativeThreshold <= 0 {
		cfg.RelativeThreshold = types.DefaultTopLevel().RelativeThreshold
	}
	opt, err := optimizer.MinimizeContext(ctx, p.Vector(), objective.Func(files, p, req.MaxDissipation), cfg)
	if err != nil {
		log.Info("fit cancelled", zap.Int("iterations", opt.Iterations), zap.Error(err))
		return nil, err
	}
	p.SetVector(opt.X)
	final := objective.Error(files, p, req.MaxDissipation)

	fields := []zap.Field{
		zap.Bool("converged", opt.Converged),
		zap.Int("iterations", opt.Iterations),
		zap.Int("evaluations", opt.Evaluations),
		zap.Float64("rmse", final.RMSE),
	}
	if opt.Converged {
		log.Info("fit finished", fields...)
	} else {
		log.Warn("fit reached max iterations", fields...)
	}
	return &Result{
		Tube:         req.Tube,
		Initial:      initial,
		Params:       p,
		Optimization: opt,
		InitialError: initialErr,
		Error:        final,
	}, nil
}

// CopyFiles 深拷贝测量文件
func CopyFiles(files []*types.MeasurementFile) []*types.MeasurementFile {
	out := make([]*types.MeasurementFile, len(files))
	for i, f := range files {
		c := *f
		c.Series = make([]types.MeasurementSeries, len(f.Series))
		for j, s := range f.Series {
			c.Series[j] = types.MeasurementSeries{Eg: s.Eg, Points: append([]types.MeasurementPoint(nil), s.Points...)}
		}
		out[i] = &c
	}
	return out
}

// finite 日志编码器不接受 NaN
func finite(m map[string]float64) map[string]float64 {
	for k, v := range m {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			delete(m, k)
		}
	}
	return m
}
