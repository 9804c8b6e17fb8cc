// Package debug 拟合过程的诊断输出
package debug

import (
	"encoding/json"
	"io"
	"math"

	"tubefit/types"
)

// Record 记录优化轨迹
type Record struct {
	Tube       string      `json:"tube"`
	Family     string      `json:"family"`
	Names      []string    `json:"names"`      // 参数名称，与 Params 列对应
	Evaluation []int       `json:"evaluation"` // 求值序号
	Value      []float64   `json:"value"`      // 目标函数值 (rmse)
	Params     [][]float64 `json:"params"`     // 每次求值的参数向量
}

// NewRecord 由拟合参数与轨迹创建记录，tr 可以为 nil
func NewRecord(tube string, p types.Parameters, tr *types.Trace) *Record {
	r := &Record{Tube: tube, Family: p.Family().String(), Names: p.Names()}
	if tr != nil {
		for _, s := range tr.Samples {
			r.Update(s.X, s.Value)
		}
	}
	return r
}

// Update 记录一次求值
func (r *Record) Update(x []float64, value float64) {
	r.Evaluation = append(r.Evaluation, len(r.Evaluation)+1)
	r.Value = append(r.Value, value)
	r.Params = append(r.Params, append([]float64(nil), x...))
}

// Len 记录条数
func (r *Record) Len() int { return len(r.Value) }

// Best 目标值最小的记录序号，没有记录时返回 -1
func (r *Record) Best() int {
	best := -1
	for i, v := range r.Value {
		if best < 0 || v < r.Value[best] {
			best = i
		}
	}
	return best
}

// Render 以 JSON 格式输出
// 非有限值（哨兵误差、溢出参数）不能编码为 JSON，输出前替换为 MaxError
func (r *Record) Render(w io.Writer) error {
	out := *r
	out.Value = sanitize(r.Value)
	out.Params = make([][]float64, len(r.Params))
	for i, x := range r.Params {
		out.Params[i] = sanitize(x)
	}
	return json.NewEncoder(w).Encode(&out)
}

func sanitize(values []float64) []float64 {
	out := make([]float64, len(values))
	for i, v := range values {
		switch {
		case math.IsNaN(v), math.IsInf(v, 1):
			out[i] = types.MaxError
		case math.IsInf(v, -1):
			out[i] = -types.MaxError
		default:
			out[i] = v
		}
	}
	return out
}
