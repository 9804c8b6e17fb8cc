package model

import "math"

// softplusLimit 超过该值时 exp 的贡献按渐近式计算
const softplusLimit = 35.0

// softplus ln(1+exp(x))，大正数时不溢出
func softplus(x float64) float64 {
	if x > softplusLimit {
		return x + math.Log1p(math.Exp(-x))
	}
	return math.Log1p(math.Exp(x))
}

// CathodeCurrent Koren 核心：阴极发射随有效栅极驱动的变化
// 参数:
//
//	eg  - 栅压
//	es  - 帘栅压（三极管为屏压）
//	kp, mu, kvb, ex - Koren 参数
//
// 返回:
//
//	e1 > 0 时为 e1^ex，否则精确为 0（深截止时下游取对数和倒数）
func CathodeCurrent(eg, es, kp, mu, kvb, ex float64) float64 {
	e1 := es * softplus(kp*(1/mu+eg/math.Sqrt(kvb+es*es))) / kp
	if e1 > 0 {
		return math.Pow(e1, ex)
	}
	return 0
}
