package types

// FitConfiguration 优化器配置
type FitConfiguration struct {
	MaxIterations     int     `yaml:"maxIterations" mapstructure:"max_iterations"`         // 最大外层迭代次数
	RelativeThreshold float64 `yaml:"relativeThreshold" mapstructure:"relative_threshold"` // 相对改进阈值
	TraceEnabled      bool    `yaml:"traceEnabled" mapstructure:"trace"`                   // 是否记录轨迹
}

// WithTrace 返回打开轨迹记录的副本
func (c FitConfiguration) WithTrace(enabled bool) FitConfiguration {
	c.TraceEnabled = enabled
	return c
}

// Sample 轨迹采样
type Sample struct {
	X     []float64 `json:"x"`
	Value float64   `json:"value"`
}

// Trace 目标函数求值轨迹（有序，可重置）
type Trace struct {
	Samples []Sample `json:"samples"`
}

// Add 记录一次求值
func (t *Trace) Add(x []float64, value float64) {
	t.Samples = append(t.Samples, Sample{X: append([]float64(nil), x...), Value: value})
}

// Reset 清空轨迹
func (t *Trace) Reset() { t.Samples = t.Samples[:0] }

// Len 采样数量
func (t *Trace) Len() int { return len(t.Samples) }

// Best 返回轨迹中的最小值采样
func (t *Trace) Best() (Sample, bool) {
	if len(t.Samples) == 0 {
		return Sample{}, false
	}
	best := t.Samples[0]
	for _, s := range t.Samples[1:] {
		if s.Value < best.Value {
			best = s
		}
	}
	return best, true
}

// OptimizationResult 优化结果
type OptimizationResult struct {
	X           []float64 // 最优点（未收敛时为已找到的最好点）
	Value       float64   // 最优点目标值
	Converged   bool      // 是否收敛
	Iterations  int       // 外层迭代次数
	Evaluations int       // 目标函数求值次数
	Trace       *Trace    // 仅在开启轨迹时非空
}

// ModelError 模型误差
type ModelError struct {
	SSE  float64 // 误差平方和
	RMSE float64 // 均方根误差
	N    int     // 参与计算的点数
}

// Sentinel 参数非法时的误差
func Sentinel() ModelError {
	return ModelError{SSE: MaxError, RMSE: MaxError}
}
