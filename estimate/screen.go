package estimate

import (
	"math"

	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat"

	"tubefit/maths"
	"tubefit/types"
)

// EstimateKg2 由饱和区帘栅流估计 kg2 = 1000*Pk/is
// correction 为帘栅流的拐点修正系数 (1+alphaS*knee)，为 nil 时取 1
func EstimateKg2(curves []Curve, k types.Kernel, correction func(ep float64) float64) float64 {
	kern := kernelOf(k)
	var vals []float64
	for _, c := range curves {
		for _, p := range c.Saturated() {
			if !p.Screen || p.Is <= 0 {
				continue
			}
			pk := kern(p.Eg, p.Es)
			if pk <= 0 {
				continue
			}
			v := types.CurrentScale * pk / p.Is
			if correction != nil {
				v *= correction(p.Ep)
			}
			if !math.IsInf(v, 0) && !math.IsNaN(v) {
				vals = append(vals, v)
			}
		}
	}
	if len(vals) == 0 {
		return types.DefaultKg2
	}
	return stat.Mean(vals, nil)
}

// EstimatePentodeKg1 Koren 五极管 kg1 = 1000*Pk*atan(ep/kvb)/ip 的平均
func EstimatePentodeKg1(curves []Curve, k types.Kernel) float64 {
	kern := kernelOf(k)
	var vals []float64
	for _, c := range curves {
		for _, p := range c.Points {
			if !p.Screen || p.Ip <= 0 {
				continue
			}
			pk := kern(p.Eg, p.Es)
			if pk <= 0 {
				continue
			}
			v := types.CurrentScale * pk * math.Atan(p.Ep/k.Kvb) / p.Ip
			if !math.IsInf(v, 0) && !math.IsNaN(v) {
				vals = append(vals, v)
			}
		}
	}
	if len(vals) == 0 {
		return types.DefaultKg1
	}
	return stat.Mean(vals, nil)
}

// EstimateA Derk 族饱和区屏流的线性拟合
// 由 ip/(1000*Pk) + (1-knee)/kg2 = (1-knee)/kg1 + (a/kg1)*ep 同时得到 kg1 与 a；
// slope 为假时（Derk-E）不拟合斜率项
// 返回:
//
//	kg1, a 以及拟合是否成功
func EstimateA(curves []Curve, k types.Kernel, kg2 float64, knee func(ep float64) float64, slope bool) (kg1, a float64, ok bool) {
	kern := kernelOf(k)
	// 正规方程累加项
	var suu, suv, svv, suy, svy float64
	n := 0
	for _, c := range curves {
		for _, p := range c.Saturated() {
			if !p.Screen || p.Ip <= 0 {
				continue
			}
			pk := kern(p.Eg, p.Es)
			if pk <= 0 {
				continue
			}
			u := 1 - knee(p.Ep)
			y := p.Ip/(types.CurrentScale*pk) + u/kg2
			suu += u * u
			suv += u * p.Ep
			svv += p.Ep * p.Ep
			suy += u * y
			svy += p.Ep * y
			n++
		}
	}
	if n == 0 || suu == 0 {
		return 0, 0, false
	}

	c0, c1 := suy/suu, 0.0
	if slope && n >= 2 {
		c, err := maths.Solve(mat.NewDense(2, 2, []float64{suu, suv, suv, svv}), []float64{suy, svy})
		if err != nil {
			return 0, 0, false
		}
		c0, c1 = c[0], c[1]
	}
	if !(c0 > 0) || math.IsInf(c0, 0) {
		return 0, 0, false
	}
	return 1 / c0, c1 / c0, true
}
