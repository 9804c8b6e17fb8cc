// Package optimizer 无导数多元极小化（Powell 方向集法）
package optimizer

import (
	"context"
	"math"

	"gonum.org/v1/gonum/floats"

	"tubefit/types"
)

// Func 目标函数
type Func func(x []float64) float64

// state 单次极小化的求值状态
type state struct {
	f           Func
	trace       *types.Trace
	evaluations int
	tmp         []float64
}

// eval 计数并记录轨迹，非有限值按哨兵处理
func (s *state) eval(x []float64) float64 {
	v := s.f(x)
	s.evaluations++
	if math.IsNaN(v) || math.IsInf(v, 1) {
		v = types.MaxError
	}
	if s.trace != nil {
		s.trace.Add(x, v)
	}
	return v
}

// lineMin 沿方向 dir 从 p 做一维极小化，原位更新 p 与 dir
// 返回新的函数值，不劣于 fp
func (s *state) lineMin(p, dir []float64, fp float64) float64 {
	g := func(t float64) float64 {
		floats.AddScaledTo(s.tmp, p, t, dir)
		return s.eval(s.tmp)
	}
	a, b, c, fb, ok := bracket(g, 0, 1, fp)
	xmin, fmin := b, fb
	if ok {
		xmin, fmin = brent(g, a, b, c, fb, lineTol)
	}
	if !(fmin < fp) || xmin == 0 {
		return fp
	}
	// 与 g 中相同的运算路径，保证 f(p) 与 fmin 一致
	floats.AddScaledTo(p, p, xmin, dir)
	floats.Scale(xmin, dir)
	return fmin
}

// initialDirections 缩放的坐标轴方向，步长为 |x_i| 的十分之一
func initialDirections(x []float64) [][]float64 {
	dirs := make([][]float64, len(x))
	for i, v := range x {
		dirs[i] = make([]float64, len(x))
		step := 0.1 * math.Abs(v)
		if step == 0 {
			step = 0.1
		}
		dirs[i][i] = step
	}
	return dirs
}

// Minimize 从 x0 出发极小化 f
// 参数:
//
//	x0  - 初始点（不被修改）
//	f   - 目标函数
//	cfg - 最大迭代次数、相对改进阈值、是否记录轨迹
//
// 返回:
//
//	结果的目标值不高于 f(x0)；达到最大迭代次数时 Converged 为假，X 为已找到的最好点
func Minimize(x0 []float64, f Func, cfg types.FitConfiguration) types.OptimizationResult {
	res, _ := MinimizeContext(context.Background(), x0, f, cfg)
	return res
}

// MinimizeContext 同 Minimize，每次外层迭代前检查 ctx
// ctx 取消时返回当前最好点和 ctx.Err()
func MinimizeContext(ctx context.Context, x0 []float64, f Func, cfg types.FitConfiguration) (types.OptimizationResult, error) {
	maxIter := cfg.MaxIterations
	if maxIter <= 0 {
		maxIter = types.DefaultSubFit().MaxIterations
	}
	n := len(x0)
	s := &state{f: f, tmp: make([]float64, n)}
	if cfg.TraceEnabled {
		s.trace = &types.Trace{}
	}
	p := append([]float64(nil), x0...)
	fret := s.eval(p)
	res := types.OptimizationResult{Trace: s.trace}
	done := func(converged bool, iter int) types.OptimizationResult {
		res.X, res.Value = p, fret
		res.Converged = converged
		res.Iterations = iter
		res.Evaluations = s.evaluations
		return res
	}
	if n == 0 {
		return done(true, 0), nil
	}

	dirs := initialDirections(p)
	pt := append([]float64(nil), p...)
	ptt := make([]float64, n)
	xit := make([]float64, n)
	for iter := 1; ; iter++ {
		if err := ctx.Err(); err != nil {
			return done(false, iter-1), err
		}
		fp := fret
		ibig, del := 0, 0.0
		// 步骤1：沿每个方向做线搜索，记录下降最大的方向
		for i := range dirs {
			fptt := fret
			fret = s.lineMin(p, dirs[i], fret)
			if fptt-fret > del {
				del = fptt - fret
				ibig = i
			}
		}
		// 步骤2：整轮相对改进低于阈值即收敛
		if 2*(fp-fret) <= cfg.RelativeThreshold*(math.Abs(fp)+math.Abs(fret))+tiny {
			return done(true, iter), nil
		}
		if iter >= maxIter {
			return done(false, iter), nil
		}
		// 步骤3：外推点与净位移方向
		for j := range p {
			ptt[j] = 2*p[j] - pt[j]
			xit[j] = p[j] - pt[j]
			pt[j] = p[j]
		}
		fptt := s.eval(ptt)
		if fptt >= fp {
			continue
		}
		t := 2*(fp-2*fret+fptt)*sqr(fp-fret-del) - del*sqr(fp-fptt)
		if t >= 0 {
			continue
		}
		// 步骤4：沿净位移方向极小化并替换下降最大的方向
		fret = s.lineMin(p, xit, fret)
		dirs[ibig] = dirs[n-1]
		dirs[n-1] = append([]float64(nil), xit...)
	}
}

// Minimize1D 一维极小化的便捷包装
func Minimize1D(x0 float64, f func(float64) float64, cfg types.FitConfiguration) (float64, types.OptimizationResult) {
	res := Minimize([]float64{x0}, func(x []float64) float64 { return f(x[0]) }, cfg)
	return res.X[0], res
}

func sqr(v float64) float64 { return v * v }
