package estimate

import (
	"math"

	"gonum.org/v1/gonum/stat"

	"tubefit/optimizer"
	"tubefit/types"
)

// minExcess 线性化变换要求 is*kg2/(1000*Pk) - 1 超过该值
// 饱和区的超出量只剩舍入噪声，取对数或倒数后无意义
const minExcess = 1e-3

// lineProblem 一条曲线上的线性化最小二乘子问题 y = a*x + b
// 每条曲线独立构造，目标函数只引用自身的数据；x 按 scale 归一化求解
type lineProblem struct {
	x, y  []float64
	scale float64
}

func (l *lineProblem) add(x, y float64) {
	l.x = append(l.x, x)
	l.y = append(l.y, y)
	l.scale = max(l.scale, math.Abs(x))
}

// sse 归一化坐标下的残差平方和，c = [a*scale, b]
func (l *lineProblem) sse(c []float64) float64 {
	var sum float64
	for i := range l.x {
		r := l.y[i] - (c[0]*l.x[i]/l.scale + c[1])
		sum += r * r
	}
	return sum
}

// solve 从 [SubFitSeedA, SubFitSeedB] 出发求解，返回原坐标下的 (a, b)
func (l *lineProblem) solve(cfg types.FitConfiguration) (a, b float64, ok bool) {
	res := optimizer.Minimize([]float64{types.SubFitSeedA, types.SubFitSeedB}, l.sse, cfg)
	if !res.Converged {
		return 0, 0, false
	}
	return res.X[0] / l.scale, res.X[1], true
}

// transform 线性化变换
// Derk-E: -ln(r-1) = a*ep^1.5 + b  (alphaS = exp(-b), beta = a^(2/3))
// Derk:   -1/(r-1) = a*ep + b      (alphaS = -1/b, beta = a/b)
func transform(family types.Family, ep, excess float64) (x, y float64) {
	if family == types.FamilyDerkE {
		return math.Pow(ep, 1.5), -math.Log(excess)
	}
	return ep, -1 / excess
}

// linearize 构造一条曲线的子问题，stop 之后的点不参与（二次发射区域）
func linearize(c *Curve, kern func(eg, es float64) float64, kg2 float64, family types.Family, stop int) *lineProblem {
	l := &lineProblem{}
	for i, p := range c.Points {
		if i >= stop {
			break
		}
		if !p.Screen || p.Is <= 0 || p.Ep <= 0 {
			continue
		}
		pk := kern(p.Eg, p.Es)
		if pk <= 0 {
			continue
		}
		excess := p.Is*kg2/(types.CurrentScale*pk) - 1
		if !(excess > minExcess) || math.IsInf(excess, 0) {
			continue
		}
		l.add(transform(family, p.Ep, excess))
	}
	return l
}

// backSubstitute 由线性化系数 (a, b) 回代 alphaS 与 beta，见 transform
// Derk-E 的 a 非正时结果为 NaN
func backSubstitute(family types.Family, a, b float64) (alphaS, beta float64) {
	if family == types.FamilyDerkE {
		if a <= 0 {
			return math.NaN(), math.NaN()
		}
		return math.Exp(-b), math.Cbrt(a * a)
	}
	return -1 / b, a / b
}

// DefaultAlphaSBeta 各模型族的回退值
// Derk 的 beta 为拐点电压的倒数（见 types.DerkDefaultKneeVoltage）
func DefaultAlphaSBeta(family types.Family) (alphaS, beta float64) {
	if family == types.FamilyDerkE {
		return types.DerkEDefaultAlphaS, types.DerkEDefaultBeta
	}
	return types.DerkDefaultAlphaS, types.DerkDefaultBeta
}

// EstimateAlphaSBeta 估计拐点幅度 alphaS 与尺度 beta
// 参数:
//
//	curves    - 全部曲线，仅屏压扫描且帘栅压固定的曲线参与
//	k, kg2    - 当前核心参数与帘栅电流比例
//	family    - FamilyDerk 或 FamilyDerkE
//	secondary - 为真时每条曲线只使用二次发射拐点之前的点
//	cfg       - 每条曲线线性化子问题的拟合配置
//
// 返回:
//
//	alphaS, beta；没有任何曲线收敛或结果非法时返回默认值且 ok 为假
func EstimateAlphaSBeta(curves []Curve, k types.Kernel, kg2 float64, family types.Family, secondary bool,
	cfg types.FitConfiguration) (alphaS, beta float64, ok bool) {
	kern := kernelOf(k)
	var as, bs []float64
	for i := range curves {
		c := &curves[i]
		if !c.Qualifies() {
			continue
		}
		stop := len(c.Points)
		if secondary {
			if idx, found := FindInflection(c); found {
				stop = idx
			}
		}
		l := linearize(c, kern, kg2, family, stop)
		if len(l.x) < minSamples || l.scale == 0 {
			continue
		}
		a, b, converged := l.solve(cfg)
		if !converged {
			continue
		}
		as = append(as, a)
		bs = append(bs, b)
	}
	if len(as) == 0 {
		alphaS, beta = DefaultAlphaSBeta(family)
		return alphaS, beta, false
	}
	alphaS, beta = backSubstitute(family, stat.Mean(as, nil), stat.Mean(bs, nil))
	if !(alphaS > 0) || !(beta > 0) || math.IsInf(alphaS, 0) || math.IsInf(beta, 0) {
		alphaS, beta = DefaultAlphaSBeta(family)
		return alphaS, beta, false
	}
	return alphaS, beta, true
}
