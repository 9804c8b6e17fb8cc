package estimate

import (
	"math"
	"sort"

	"gonum.org/v1/gonum/stat"

	"tubefit/maths"
	"tubefit/model"
	"tubefit/optimizer"
	"tubefit/types"
)

// badPointPenalty 模型预测截止但测得电流为正的点的对数残差惩罚
const badPointPenalty = 10.0

// minSamples 对数线性拟合的最少样本数
const minSamples = 3

// ampLevels 放大系数取样的电流水平（重叠区间内的比例）
var ampLevels = []float64{0.25, 0.5, 0.75}

// EstimateMu 估计放大系数
// 优先使用相邻栅压曲线等电流点的屏压差，数据不足时对 mu 做一维搜索，
// 目标为对数线性拟合 ln i = ex*ln(va/mu + eg) + c 的残差
func EstimateMu(curves []Curve, samples []KernelSample, cfg types.FitConfiguration) float64 {
	if mu, ok := amplificationFactor(curves); ok {
		return mu
	}
	if mu, ok := profileMu(samples, cfg); ok {
		return mu
	}
	return types.DefaultMu
}

// amplificationFactor mu = Δep/Δeg（等屏流条件下）
func amplificationFactor(curves []Curve) (float64, bool) {
	var swept []Curve
	for _, c := range curves {
		if c.Type.EpIsSwept() && len(c.Points) > 1 {
			swept = append(swept, c)
		}
	}
	sort.SliceStable(swept, func(i, j int) bool { return swept[i].Eg > swept[j].Eg })

	var mus []float64
	for i := 0; i+1 < len(swept); i++ {
		hiGrid, loGrid := &swept[i], &swept[i+1]
		deg := hiGrid.Eg - loGrid.Eg
		if deg <= 0 {
			continue
		}
		lo1, hi1 := hiGrid.currentRange()
		lo2, hi2 := loGrid.currentRange()
		lo, hi := max(lo1, lo2), min(hi1, hi2)
		if hi <= lo {
			continue
		}
		for _, f := range ampLevels {
			ip := lo + f*(hi-lo)
			ep1, ok1 := hiGrid.PlateAt(ip)
			ep2, ok2 := loGrid.PlateAt(ip)
			if !ok1 || !ok2 {
				continue
			}
			if mu := (ep2 - ep1) / deg; mu > 0 {
				mus = append(mus, mu)
			}
		}
	}
	if len(mus) == 0 {
		return 0, false
	}
	return stat.Mean(mus, nil), true
}

// logLinear 固定 mu 时拟合 ln i = ex*ln(va/mu + eg) + c
// 返回斜率 ex、截距 c、残差平方和（含截止点惩罚）与有效点数
func logLinear(samples []KernelSample, mu float64) (ex, c, sse float64, n int) {
	var xs, ys []float64
	bad := 0
	for _, s := range samples {
		d := s.Va/mu + s.Eg
		if d <= 0 {
			bad++
			continue
		}
		xs = append(xs, math.Log(d))
		ys = append(ys, math.Log(s.I))
	}
	if len(xs) < minSamples {
		return 0, 0, types.MaxError, len(xs)
	}
	c, ex, err := maths.LineFit(xs, ys)
	if err != nil {
		return 0, 0, types.MaxError, len(xs)
	}
	for i := range xs {
		r := ys[i] - (c + ex*xs[i])
		sse += r * r
	}
	return ex, c, sse + badPointPenalty*float64(bad), len(xs)
}

// profileMu 在对数空间对 mu 做一维搜索
func profileMu(samples []KernelSample, cfg types.FitConfiguration) (float64, bool) {
	if len(samples) < minSamples {
		return 0, false
	}
	x, res := optimizer.Minimize1D(math.Log(types.DefaultMu), func(lm float64) float64 {
		_, _, sse, _ := logLinear(samples, math.Exp(lm))
		return sse
	}, cfg)
	mu := math.Exp(x)
	if !res.Converged || res.Value >= types.MaxError || math.IsInf(mu, 0) {
		return 0, false
	}
	return mu, true
}

// EstimateEx 对数线性拟合得到指数 ex 与电流比例 kg（kg = 1000*exp(-c)）
func EstimateEx(samples []KernelSample, mu float64) (ex, kg float64, ok bool) {
	ex, c, sse, n := logLinear(samples, mu)
	if n < minSamples || sse >= types.MaxError || !(ex > 0) {
		return 0, 0, false
	}
	return ex, types.CurrentScale * math.Exp(-c), true
}

// kernelFit 核心参数的对数残差，电流比例 kg 以闭式解消去
type kernelFit struct {
	samples []KernelSample
}

// residual 返回对数残差平方和与对应的 ln kg
func (f kernelFit) residual(kern func(eg, va float64) float64) (sse, lnKg float64) {
	d := make([]float64, 0, len(f.samples))
	bad := 0
	for _, s := range f.samples {
		pk := kern(s.Eg, s.Va)
		if !(pk > 0) || math.IsInf(pk, 0) {
			bad++
			continue
		}
		d = append(d, math.Log(types.CurrentScale*pk)-math.Log(s.I))
	}
	if len(d) == 0 {
		return types.MaxError, 0
	}
	lnKg = stat.Mean(d, nil)
	for _, v := range d {
		sse += (v - lnKg) * (v - lnKg)
	}
	return sse + badPointPenalty*float64(bad), lnKg
}

// searchLog 在对数空间对单个正参数做一维搜索，失败时返回默认值
func (f kernelFit) searchLog(start float64, kern func(v, eg, va float64) float64, cfg types.FitConfiguration) float64 {
	if len(f.samples) < minSamples {
		return start
	}
	x, res := optimizer.Minimize1D(math.Log(start), func(lv float64) float64 {
		v := math.Exp(lv)
		sse, _ := f.residual(func(eg, va float64) float64 { return kern(v, eg, va) })
		return sse
	}, cfg)
	v := math.Exp(x)
	if !res.Converged || res.Value >= types.MaxError || math.IsInf(v, 0) || v == 0 {
		return start
	}
	return v
}

// EstimateKp 固定 mu ex kvb 时估计 kp
func EstimateKp(samples []KernelSample, mu, ex, kvb float64, cfg types.FitConfiguration) float64 {
	return kernelFit{samples}.searchLog(types.DefaultKp, func(kp, eg, va float64) float64 {
		return model.CathodeCurrent(eg, va, kp, mu, kvb, ex)
	}, cfg)
}

// EstimateKvb 固定 mu ex kp 时估计 kvb（仅三极管）
func EstimateKvb(samples []KernelSample, mu, ex, kp float64, cfg types.FitConfiguration) float64 {
	return kernelFit{samples}.searchLog(types.DefaultKvb, func(kvb, eg, va float64) float64 {
		return model.CathodeCurrent(eg, va, kp, mu, kvb, ex)
	}, cfg)
}

// EstimateKg 给定核心参数时的电流比例（三极管为 kg1）
func EstimateKg(samples []KernelSample, k types.Kernel, fallback float64) float64 {
	sse, lnKg := kernelFit{samples}.residual(func(eg, va float64) float64 {
		return model.CathodeCurrent(eg, va, k.Kp, k.Mu, k.Kvb, k.Ex)
	})
	if sse >= types.MaxError {
		return fallback
	}
	return math.Exp(lnKg)
}

// kernelOf 参数集的核心函数
func kernelOf(k types.Kernel) func(eg, es float64) float64 {
	return func(eg, es float64) float64 {
		return model.CathodeCurrent(eg, es, k.Kp, k.Mu, k.Kvb, k.Ex)
	}
}

// estimateKernel 依次填充未设置的 mu ex kp kvb
func estimateKernel(k *types.Kernel, curves []Curve, samples []KernelSample, cfg types.FitConfiguration) {
	fill(&k.Mu, func() float64 { return EstimateMu(curves, samples, cfg) })
	fill(&k.Ex, func() float64 {
		if ex, _, ok := EstimateEx(samples, k.Mu); ok {
			return ex
		}
		return types.DefaultEx
	})
	kvb := k.Kvb
	if !types.IsSet(kvb) {
		kvb = types.DefaultKvb
	}
	fill(&k.Kp, func() float64 { return EstimateKp(samples, k.Mu, k.Ex, kvb, cfg) })
	fill(&k.Kvb, func() float64 { return EstimateKvb(samples, k.Mu, k.Ex, k.Kp, cfg) })
}

// fill 仅在字段未设置时写入
func fill(dst *float64, fn func() float64) {
	if !types.IsSet(*dst) {
		*dst = fn()
	}
}
