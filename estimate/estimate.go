// Package estimate 各模型族的初始参数估计
//
// 估计器只填充未设置（NaN）的字段，已由调用方或前一阶段设置的字段不被覆盖。
// 子拟合不收敛或数据不足时使用默认值，从不返回错误。
package estimate

import (
	"tubefit/model"
	"tubefit/types"
)

// Triode 三极管参数估计
// 流程: mu -> ex -> kp -> kvb -> kg1
func Triode(files []*types.MeasurementFile, p *types.Triode, maxDissipation float64, opts ...Option) {
	s := newSettings(opts)
	curves := Curves(files, maxDissipation)
	samples := TriodeSamples(curves)
	estimateKernel(&p.Kernel, curves, samples, s.subFit)
	fill(&p.Kg1, func() float64 { return EstimateKg(samples, p.Kernel, types.DefaultKg1) })
}

// pentodeKernel 五极管族的核心估计，样本取自饱和区帘栅流
func pentodeKernel(p *types.Pentode, curves []Curve, cfg types.FitConfiguration) {
	// Koren 五极管约定 kvb 固定为 PentodeKvb，调用方已设置时保留
	fill(&p.Kvb, func() float64 { return types.PentodeKvb })
	estimateKernel(&p.Kernel, nil, ScreenSamples(curves), cfg)
}

// Pentode Koren 五极管参数估计
// 流程: 核心 -> kg2 -> kg1，kvb 固定为 PentodeKvb
func Pentode(files []*types.MeasurementFile, p *types.Pentode, maxDissipation float64, opts ...Option) {
	curves := Curves(files, maxDissipation)
	pentodeKernel(p, curves, newSettings(opts).subFit)
	fill(&p.Kg2, func() float64 { return EstimateKg2(curves, p.Kernel, nil) })
	fill(&p.Kg1, func() float64 { return EstimatePentodeKg1(curves, p.Kernel) })
}

// derkFamily Derk 与 Derk-E 的公共流程
// 流程: 核心 -> kg2 -> alphaS/beta -> kg1 与 a -> 二次发射
func derkFamily(curves []Curve, p *types.Pentode, family types.Family, a, alphaS, beta *float64,
	sec *types.SecondaryEmission, cfg types.FitConfiguration) {
	knee := model.KneeDerk
	sFn := EstimateDerkS
	if family == types.FamilyDerkE {
		knee, sFn = model.KneeDerkE, EstimateDerkES
	}

	pentodeKernel(p, curves, cfg)

	// alphaS beta 已知时修正饱和区残余的拐点
	var correction func(ep float64) float64
	if types.IsSet(*alphaS) && types.IsSet(*beta) {
		as, b := *alphaS, *beta
		correction = func(ep float64) float64 { return 1 + as*knee(b, ep) }
	}
	fill(&p.Kg2, func() float64 { return EstimateKg2(curves, p.Kernel, correction) })

	if !types.IsSet(*alphaS) || !types.IsSet(*beta) {
		as, b, _ := EstimateAlphaSBeta(curves, p.Kernel, p.Kg2, family, sec != nil, cfg)
		fill(alphaS, func() float64 { return as })
		fill(beta, func() float64 { return b })
	}

	if !types.IsSet(p.Kg1) || (a != nil && !types.IsSet(*a)) {
		b := *beta
		kg1, slope, ok := EstimateA(curves, p.Kernel, p.Kg2, func(ep float64) float64 { return knee(b, ep) }, a != nil)
		if !ok {
			kg1, slope = types.DefaultKg1, 0
		}
		fill(&p.Kg1, func() float64 { return kg1 })
		if a != nil {
			// a 由拟合斜率 a/kg1 乘以最终的 kg1 得到
			ratio := slope / kg1
			fill(a, func() float64 { return ratio * p.Kg1 })
		}
	}

	if sec != nil {
		estimateSecondary(curves, p, *alphaS, *beta, sec, knee, sFn, cfg)
	}
}

// Derk Derk 五极管参数估计
func Derk(files []*types.MeasurementFile, p *types.Derk, maxDissipation float64, opts ...Option) {
	derkFamily(Curves(files, maxDissipation), &p.Pentode, types.FamilyDerk, &p.A, &p.AlphaS, &p.Beta, p.Secondary,
		newSettings(opts).subFit)
}

// DerkE Derk-E 五极管参数估计
func DerkE(files []*types.MeasurementFile, p *types.DerkE, maxDissipation float64, opts ...Option) {
	derkFamily(Curves(files, maxDissipation), &p.Pentode, types.FamilyDerkE, nil, &p.AlphaS, &p.Beta, p.Secondary,
		newSettings(opts).subFit)
}

// Parameters 按模型族分派
func Parameters(files []*types.MeasurementFile, p types.Parameters, maxDissipation float64, opts ...Option) {
	switch v := p.(type) {
	case *types.Triode:
		Triode(files, v, maxDissipation, opts...)
	case *types.Pentode:
		Pentode(files, v, maxDissipation, opts...)
	case *types.Derk:
		Derk(files, v, maxDissipation, opts...)
	case *types.DerkE:
		DerkE(files, v, maxDissipation, opts...)
	}
}
