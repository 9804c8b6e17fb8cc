package model

import "tubefit/types"

// Eval 按模型族分派电流计算，三极管的帘栅流恒为 0
func Eval(p types.Parameters, ep, eg, es float64) (ip, is float64) {
	switch v := p.(type) {
	case *types.Triode:
		return EvalTriode(v, ep, eg), 0
	case *types.Pentode:
		return EvalPentode(v, ep, eg, es)
	case *types.Derk:
		return EvalDerk(v, ep, eg, es)
	case *types.DerkE:
		return EvalDerkE(v, ep, eg, es)
	}
	return 0, 0
}

// HasScreen 模型族是否计算帘栅流
func HasScreen(f types.Family) bool {
	return f != types.FamilyTriode
}
