package model

import (
	"math"

	"tubefit/types"
)

// SecondaryEmission 帘栅二次发射激励项，屏压接近峰值电压时达到最大
// 峰值电压 epmax = es/lambda - v*eg - w
func SecondaryEmission(ep, eg, es, s, alphaP, lambda, v, w float64) float64 {
	return s * ep * (1 + math.Tanh(-alphaP*(ep-(es/lambda-v*eg-w))))
}

// Secondary 按参数计算二次发射项，未启用时为 0
func Secondary(p *types.SecondaryEmission, ep, eg, es float64) float64 {
	if p == nil {
		return 0
	}
	return SecondaryEmission(ep, eg, es, p.S, p.AlphaP, p.Lambda, p.V, p.W)
}

// Alpha 由 kg1 kg2 alphaS 推导的截获系数（不参与拟合）
func Alpha(kg1, kg2, alphaS float64) float64 {
	return 1 - kg1*(1+alphaS)/kg2
}

// KneeDerk Derk 模型低屏压拐点项 1/(1+beta*ep)
func KneeDerk(beta, ep float64) float64 {
	return 1 / (1 + beta*ep)
}

// KneeDerkE Derk-E 模型低屏压拐点项 exp(-(beta*ep)^1.5)
func KneeDerkE(beta, ep float64) float64 {
	be := beta * ep
	return math.Exp(-be * math.Sqrt(math.Abs(be)))
}

// derkCurrents 两种 Derk 模型的公共部分
func derkCurrents(ik, ep, kg1, kg2, a, alphaS, knee, sec float64) (ip, is float64) {
	alpha := Alpha(kg1, kg2, alphaS)
	ip = types.CurrentScale * ik * (1/kg1 - 1/kg2 + a*ep/kg1 - (alpha/kg1+alphaS/kg2)*knee - sec/kg2)
	is = types.CurrentScale * ik / kg2 * (1 + alphaS*knee + sec)
	return ip, is
}

// Derk Derk 五极管屏流与帘栅流 (mA)
// 参数:
//
//	ep, eg, es - 屏压 栅压 帘栅压
//	kp, mu, kvb, ex - Koren 核心参数
//	kg1, kg2   - 屏极与帘栅极电流比例
//	a          - 屏流线性斜率
//	alphaS, beta - 拐点幅度与尺度
//	sec        - 二次发射项（见 SecondaryEmission，未启用时为 0）
func Derk(ep, eg, es, kp, mu, kvb, ex, kg1, kg2, a, alphaS, beta, sec float64) (ip, is float64) {
	ik := CathodeCurrent(eg, es, kp, mu, kvb, ex)
	return derkCurrents(ik, ep, kg1, kg2, a, alphaS, KneeDerk(beta, ep), sec)
}

// DerkE Derk-E 五极管屏流与帘栅流 (mA)，无线性斜率项
func DerkE(ep, eg, es, kp, mu, kvb, ex, kg1, kg2, alphaS, beta, sec float64) (ip, is float64) {
	ik := CathodeCurrent(eg, es, kp, mu, kvb, ex)
	return derkCurrents(ik, ep, kg1, kg2, 0, alphaS, KneeDerkE(beta, ep), sec)
}

// EvalDerk 按参数集计算 Derk 电流
func EvalDerk(p *types.Derk, ep, eg, es float64) (ip, is float64) {
	return Derk(ep, eg, es, p.Kp, p.Mu, p.Kvb, p.Ex, p.Kg1, p.Kg2, p.A, p.AlphaS, p.Beta,
		Secondary(p.Secondary, ep, eg, es))
}

// EvalDerkE 按参数集计算 Derk-E 电流
func EvalDerkE(p *types.DerkE, ep, eg, es float64) (ip, is float64) {
	return DerkE(ep, eg, es, p.Kp, p.Mu, p.Kvb, p.Ex, p.Kg1, p.Kg2, p.AlphaS, p.Beta,
		Secondary(p.Secondary, ep, eg, es))
}
