package types

import "math"

// 默认参数常量定义
const (
	PentodeKvb     = 100.0               // Koren 五极管模型约定 kvb 固定为 100，不参与拟合
	MaxError       = math.MaxFloat64 / 2 // 误差非有限时返回的哨兵值
	CurrentScale   = 1000.0              // 电流单位换算（A -> mA）
	DissipationMul = 1e-3                // ep(V)*ip(mA)*1e-3 = W
	THDSamples     = 512                 // 谐波失真采样点数
	SubFitSeedA    = 5.0                 // alphaS/beta 线性化拟合初值 a
	SubFitSeedB    = 0.05                // alphaS/beta 线性化拟合初值 b
	DefaultS       = 0.05                // 二次发射强度默认值
	DefaultAlphaP  = 0.2                 // 二次发射 tanh 陡度默认值
	DefaultLambda  = 1.0                 // 二次发射 es/lambda 默认值
)

// 各模型族的回退默认值（数据不足或子拟合未收敛时使用）
const (
	DerkEDefaultAlphaS = 5.0   // Derk-E alphaS
	DerkEDefaultBeta   = 0.001 // Derk-E beta
	DerkDefaultAlphaS  = 5.0   // Derk alphaS
	// DerkDefaultKneeVoltage Derk 拐点 1/(1+beta*ep) 降到一半时的屏压 (V)
	DerkDefaultKneeVoltage = 20.0
	// DerkDefaultBeta Derk 的 beta 取拐点电压的倒数
	DerkDefaultBeta = 1 / DerkDefaultKneeVoltage
	DefaultMu       = 10.0 // 放大系数
	DefaultEx       = 1.4  // 指数
	DefaultKg1      = 1000.0
	DefaultKg2      = 4000.0
	DefaultKp       = 300.0
	DefaultKvb      = 300.0
)

// DefaultSubFit 估计器内部局部子问题使用的拟合配置
func DefaultSubFit() FitConfiguration {
	return FitConfiguration{MaxIterations: 500, RelativeThreshold: 1e-4}
}

// DefaultTopLevel 顶层参数精修使用的拟合配置
func DefaultTopLevel() FitConfiguration {
	return FitConfiguration{MaxIterations: 100, RelativeThreshold: 1e-3}
}
