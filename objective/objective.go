// Package objective 参数集相对测量数据的误差函数
package objective

import (
	"math"

	"tubefit/model"
	"tubefit/types"
)

// currentFunc 计算单点的模型屏流与帘栅流
type currentFunc func(ep, eg, es float64) (ip, is float64)

// accumulate 遍历全部测量点累计残差平方
// 超出耗散门限的点被跳过；screen 为真时带帘栅数据的点同时计入帘栅流残差
// N 为测量点数，每点只计一次，RMSE = sqrt(SSE/N)
func accumulate(files []*types.MeasurementFile, maxDissipation float64, screen bool, fn currentFunc) types.ModelError {
	var e types.ModelError
	for _, f := range files {
		f.Each(func(_ *types.MeasurementSeries, p types.MeasurementPoint, eg float64) bool {
			if !p.Within(maxDissipation) {
				return true
			}
			ip, is := fn(p.Ep, eg, p.Es)
			d := p.Ip - ip
			e.SSE += d * d
			e.N++
			if screen && p.Screen {
				d = p.Is - is
				e.SSE += d * d
			}
			return true
		})
	}
	if e.N == 0 {
		return types.ModelError{}
	}
	e.RMSE = math.Sqrt(e.SSE / float64(e.N))
	if math.IsNaN(e.RMSE) || math.IsInf(e.RMSE, 0) || math.IsInf(e.SSE, 0) {
		s := types.Sentinel()
		s.N = e.N
		return s
	}
	return e
}

// Triode 三极管模型误差
func Triode(files []*types.MeasurementFile, p *types.Triode, maxDissipation float64) types.ModelError {
	return accumulate(files, maxDissipation, false, func(ep, eg, _ float64) (float64, float64) {
		return model.EvalTriode(p, ep, eg), 0
	})
}

// Pentode Koren 五极管模型误差
func Pentode(files []*types.MeasurementFile, p *types.Pentode, maxDissipation float64) types.ModelError {
	return accumulate(files, maxDissipation, true, func(ep, eg, es float64) (float64, float64) {
		return model.EvalPentode(p, ep, eg, es)
	})
}

// Derk Derk 五极管模型误差
func Derk(files []*types.MeasurementFile, p *types.Derk, maxDissipation float64) types.ModelError {
	return accumulate(files, maxDissipation, true, func(ep, eg, es float64) (float64, float64) {
		return model.EvalDerk(p, ep, eg, es)
	})
}

// DerkE Derk-E 五极管模型误差
func DerkE(files []*types.MeasurementFile, p *types.DerkE, maxDissipation float64) types.ModelError {
	return accumulate(files, maxDissipation, true, func(ep, eg, es float64) (float64, float64) {
		return model.EvalDerkE(p, ep, eg, es)
	})
}

// Error 按模型族分派误差计算
func Error(files []*types.MeasurementFile, p types.Parameters, maxDissipation float64) types.ModelError {
	switch v := p.(type) {
	case *types.Triode:
		return Triode(files, v, maxDissipation)
	case *types.Pentode:
		return Pentode(files, v, maxDissipation)
	case *types.Derk:
		return Derk(files, v, maxDissipation)
	case *types.DerkE:
		return DerkE(files, v, maxDissipation)
	}
	return types.Sentinel()
}

// Func 把参数集的精修向量包装为优化器目标函数（返回 rmse）
// 每次求值在 p 的副本上写入向量，p 本身不被修改
func Func(files []*types.MeasurementFile, p types.Parameters, maxDissipation float64) func(x []float64) float64 {
	work := p.Clone()
	return func(x []float64) float64 {
		work.SetVector(x)
		return Error(files, work, maxDissipation).RMSE
	}
}
