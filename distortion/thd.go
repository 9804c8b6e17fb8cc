// Package distortion 传输函数的总谐波失真
package distortion

import (
	"math"
	"math/cmplx"

	"gonum.org/v1/gonum/dsp/fourier"

	"tubefit/model"
	"tubefit/types"
)

const noiseFloor = 1e-12

// TotalHarmonicDistortion 总谐波失真 (%)
// 在一个周期 [0, 2π) 内对 f(sin t) 等间隔采样 THDSamples 点，
// 返回 100 * rss(谐波 2..N/2) / |基波|
func TotalHarmonicDistortion(f func(float64) float64) float64 {
	n := types.THDSamples
	seq := make([]float64, n)
	for i := range seq {
		seq[i] = f(math.Sin(2 * math.Pi * float64(i) / float64(n)))
	}
	coeff := fourier.NewFFT(n).Coefficients(nil, seq)

	// 低于最大分量 noiseFloor 倍的幅度视为舍入噪声
	var peak float64
	for _, c := range coeff {
		peak = max(peak, cmplx.Abs(c))
	}
	floor := noiseFloor * peak

	fundamental := cmplx.Abs(coeff[1])
	var sum float64
	for _, c := range coeff[2 : n/2+1] {
		a := cmplx.Abs(c)
		sum += a * a
	}
	rss := math.Sqrt(sum)
	switch {
	case fundamental > floor:
		return 100 * rss / fundamental
	case rss <= floor:
		return 0
	}
	return math.Inf(1)
}

// OperatingPoint 工作点：固定屏压与帘栅压，栅压围绕偏置摆动
type OperatingPoint struct {
	Ep    float64 `yaml:"ep"`
	Es    float64 `yaml:"es"`
	Bias  float64 `yaml:"bias"`
	Swing float64 `yaml:"swing"` // 栅压峰值摆幅
}

// Transfer 拟合模型在工作点处的屏流传输函数，输入为归一化驱动 [-1, 1]
func Transfer(p types.Parameters, op OperatingPoint) func(float64) float64 {
	return func(drive float64) float64 {
		ip, _ := model.Eval(p, op.Ep, op.Bias+op.Swing*drive, op.Es)
		return ip
	}
}
