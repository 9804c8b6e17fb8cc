package estimate

import (
	"math"

	"gonum.org/v1/gonum/stat"

	"tubefit/model"
	"tubefit/optimizer"
	"tubefit/types"
)

// slopeDeadband 斜率相对死区，低于它的斜率视为零
const slopeDeadband = 1e-6

// KneeFunc 模型族的拐点函数
type KneeFunc func(beta, ep float64) float64

// FindInflection 在帘栅流-屏压曲线上寻找第一个拐点
// 斜率变号或递增的正斜率开始减小处，返回变化之前的点的下标
// 曲线须已按屏压排序
func FindInflection(c *Curve) (int, bool) {
	pts := c.Points
	if len(pts) < 3 {
		return 0, false
	}
	span := pts[len(pts)-1].Ep - pts[0].Ep
	if span <= 0 {
		return 0, false
	}
	slopes := make([]float64, len(pts)-1)
	maxIs := 0.0
	for k := range pts {
		maxIs = max(maxIs, math.Abs(pts[k].Is))
		if k+1 < len(pts) {
			if dep := pts[k+1].Ep - pts[k].Ep; dep > 0 {
				slopes[k] = (pts[k+1].Is - pts[k].Is) / dep
			}
		}
	}
	tol := slopeDeadband * maxIs / span
	sign := func(s float64) int {
		switch {
		case s > tol:
			return 1
		case s < -tol:
			return -1
		}
		return 0
	}

	last := sign(slopes[0])
	for k := 1; k < len(slopes); k++ {
		cur := sign(slopes[k])
		if cur != 0 && last != 0 && cur != last {
			return k, true
		}
		// 递增的正斜率开始减小
		if k >= 2 && sign(slopes[k-1]) > 0 && slopes[k-1] > slopes[k-2]+tol && slopes[k] < slopes[k-1]-tol {
			return k, true
		}
		if cur != 0 {
			last = cur
		}
	}
	return 0, false
}

// Inflection 一个有效的二次发射拐点
type Inflection struct {
	Ep    float64 // 拐点处的屏压
	Eg    float64
	Es    float64
	EpMax float64 // 拟合得到的二次发射峰值电压
	curve *Curve
}

// emission 二次发射估计时已知的参数
type emission struct {
	kernel       types.Kernel
	kg2          float64
	alphaS, beta float64
	alphaP       float64
	knee         KneeFunc
}

// epmaxProblem 单个拐点的 epmax 一维拟合，二次发射幅度以闭式解消去
type epmaxProblem struct {
	ep     []float64
	resid  []float64 // 测量帘栅流减去无二次发射的模型值
	scale  []float64 // 1000*Pk/kg2
	alphaP float64
}

func newEpmaxProblem(c *Curve, e *emission) *epmaxProblem {
	kern := kernelOf(e.kernel)
	pr := &epmaxProblem{alphaP: e.alphaP}
	for _, p := range c.Points {
		if !p.Screen {
			continue
		}
		pk := kern(p.Eg, p.Es)
		if pk <= 0 {
			continue
		}
		scale := types.CurrentScale * pk / e.kg2
		pr.ep = append(pr.ep, p.Ep)
		pr.scale = append(pr.scale, scale)
		pr.resid = append(pr.resid, p.Is-scale*(1+e.alphaS*e.knee(e.beta, p.Ep)))
	}
	return pr
}

func (pr *epmaxProblem) shape(k int, epmax float64) float64 {
	return pr.scale[k] * model.SecondaryEmission(pr.ep[k], 0, epmax, 1, pr.alphaP, 1, 0, 0)
}

// amplitude 给定 epmax 时的最小二乘幅度（非负）
func (pr *epmaxProblem) amplitude(epmax float64) float64 {
	var num, den float64
	for k := range pr.ep {
		h := pr.shape(k, epmax)
		num += pr.resid[k] * h
		den += h * h
	}
	if den == 0 || !(num > 0) {
		return 0
	}
	return num / den
}

func (pr *epmaxProblem) sse(epmax float64) float64 {
	s := pr.amplitude(epmax)
	var sum float64
	for k := range pr.ep {
		r := pr.resid[k] - s*pr.shape(k, epmax)
		sum += r * r
	}
	return sum
}

// refitEpMax 从拐点屏压出发拟合 epmax
func refitEpMax(c *Curve, idx int, e *emission, cfg types.FitConfiguration) (float64, bool) {
	pr := newEpmaxProblem(c, e)
	if len(pr.ep) < minSamples {
		return 0, false
	}
	epmax, res := optimizer.Minimize1D(c.Points[idx].Ep, pr.sse, cfg)
	if !res.Converged || math.IsNaN(epmax) || epmax <= 0 {
		return 0, false
	}
	return epmax, true
}

// reachesEpMax 拐点处的屏压不低于拟合的 epmax 时拐点有效
func reachesEpMax(ep, epmax float64) bool {
	return ep >= epmax
}

// findInflections 检测并拟合全部合格曲线的拐点，只返回有效者
func findInflections(curves []Curve, e *emission, cfg types.FitConfiguration) []Inflection {
	var out []Inflection
	for i := range curves {
		c := &curves[i]
		if !c.Qualifies() {
			continue
		}
		idx, ok := FindInflection(c)
		if !ok {
			continue
		}
		epmax, ok := refitEpMax(c, idx, e, cfg)
		if !ok {
			continue
		}
		p := c.Points[idx]
		if !reachesEpMax(p.Ep, epmax) {
			continue
		}
		out = append(out, Inflection{Ep: p.Ep, Eg: p.Eg, Es: p.Es, EpMax: epmax, curve: c})
	}
	return out
}

// EstimateLambda lambda = es/epmax 的平均
func EstimateLambda(infl []Inflection) float64 {
	var vals []float64
	for _, in := range infl {
		if v := in.Es / in.EpMax; v > 0 && !math.IsInf(v, 0) {
			vals = append(vals, v)
		}
	}
	if len(vals) == 0 {
		return types.DefaultLambda
	}
	return stat.Mean(vals, nil)
}

// vwProblem epmax = es/lambda - v*eg - w 的最小二乘
type vwProblem struct {
	infl   []Inflection
	lambda float64
}

func (pr vwProblem) sse(x []float64) float64 {
	var sum float64
	for _, in := range pr.infl {
		r := in.Es/pr.lambda - x[0]*in.Eg - x[1] - in.EpMax
		sum += r * r
	}
	return sum
}

// EstimateVW 拟合 epmax 与栅压的线性关系，未收敛时为 (0, 0)
func EstimateVW(infl []Inflection, lambda float64, cfg types.FitConfiguration) (v, w float64) {
	if len(infl) == 0 {
		return 0, 0
	}
	res := optimizer.Minimize([]float64{0, 0}, vwProblem{infl: infl, lambda: lambda}.sse, cfg)
	if !res.Converged {
		return 0, 0
	}
	return res.X[0], res.X[1]
}

// estimateS 在每个拐点的 epmax 处反解二次发射强度 s 并平均
// 帘栅流 is = 1000*Pk/kg2*(1 + alphaS*knee + s*epmax)
func estimateS(infl []Inflection, k types.Kernel, kg2, alphaS, beta float64, knee KneeFunc) float64 {
	kern := kernelOf(k)
	var vals []float64
	for _, in := range infl {
		is, ok := in.curve.ScreenAt(in.EpMax)
		if !ok {
			continue
		}
		pk := kern(in.Eg, in.Es)
		if pk <= 0 {
			continue
		}
		sec := is*kg2/(types.CurrentScale*pk) - 1 - alphaS*knee(beta, in.EpMax)
		if s := sec / in.EpMax; s >= 0 && !math.IsInf(s, 0) {
			vals = append(vals, s)
		}
	}
	if len(vals) == 0 {
		return types.DefaultS
	}
	return stat.Mean(vals, nil)
}

// EstimateDerkS Derk 模型的二次发射强度
func EstimateDerkS(infl []Inflection, k types.Kernel, kg2, alphaS, beta float64) float64 {
	return estimateS(infl, k, kg2, alphaS, beta, model.KneeDerk)
}

// EstimateDerkES Derk-E 模型的二次发射强度
func EstimateDerkES(infl []Inflection, k types.Kernel, kg2, alphaS, beta float64) float64 {
	return estimateS(infl, k, kg2, alphaS, beta, model.KneeDerkE)
}

// estimateSecondary 填充未设置的二次发射参数
func estimateSecondary(curves []Curve, p *types.Pentode, alphaS, beta float64, sec *types.SecondaryEmission,
	knee KneeFunc, sFn func([]Inflection, types.Kernel, float64, float64, float64) float64, cfg types.FitConfiguration) {
	fill(&sec.AlphaP, func() float64 { return types.DefaultAlphaP })
	e := &emission{kernel: p.Kernel, kg2: p.Kg2, alphaS: alphaS, beta: beta, alphaP: sec.AlphaP, knee: knee}
	infl := findInflections(curves, e, cfg)
	fill(&sec.Lambda, func() float64 { return EstimateLambda(infl) })
	if !types.IsSet(sec.V) || !types.IsSet(sec.W) {
		v, w := EstimateVW(infl, sec.Lambda, cfg)
		fill(&sec.V, func() float64 { return v })
		fill(&sec.W, func() float64 { return w })
	}
	fill(&sec.S, func() float64 { return sFn(infl, p.Kernel, p.Kg2, alphaS, beta) })
}
