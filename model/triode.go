package model

import (
	"tubefit/types"
)

// Triode Koren 三极管屏流 (mA)，屏压代入核心的帘栅压参数
func Triode(ep, eg, kp, mu, kvb, ex, kg1 float64) float64 {
	return types.CurrentScale * CathodeCurrent(eg, ep, kp, mu, kvb, ex) / kg1
}

// EvalTriode 按参数集计算三极管屏流
func EvalTriode(p *types.Triode, ep, eg float64) float64 {
	return Triode(ep, eg, p.Kp, p.Mu, p.Kvb, p.Ex, p.Kg1)
}
