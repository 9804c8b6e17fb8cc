package model

import (
	"math"

	"tubefit/types"
)

// Pentode Koren 五极管屏流与帘栅流 (mA)
func Pentode(ep, eg, es, kp, mu, kvb, ex, kg1, kg2 float64) (ip, is float64) {
	i := CathodeCurrent(eg, es, kp, mu, kvb, ex)
	ip = types.CurrentScale * i * math.Atan(ep/kvb) / kg1
	is = types.CurrentScale * i / kg2
	return ip, is
}

// EvalPentode 按参数集计算五极管电流
func EvalPentode(p *types.Pentode, ep, eg, es float64) (ip, is float64) {
	return Pentode(ep, eg, es, p.Kp, p.Mu, p.Kvb, p.Ex, p.Kg1, p.Kg2)
}
