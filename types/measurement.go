package types

import "sort"

// MeasurementPoint 单个测量点（读入后不可变）
type MeasurementPoint struct {
	Index  int     `yaml:"index"`
	Ep     float64 `yaml:"ep"`     // 屏压 (V)
	Eg     float64 `yaml:"eg"`     // 栅压 (V)
	Ip     float64 `yaml:"ip"`     // 屏流 (mA)
	Es     float64 `yaml:"es"`     // 帘栅压 (V)，仅 Screen 为真时有效
	Is     float64 `yaml:"is"`     // 帘栅流 (mA)，仅 Screen 为真时有效
	Eh     float64 `yaml:"eh"`     // 灯丝电压 (V)
	Screen bool    `yaml:"screen"` // 是否带帘栅极数据
}

// Dissipation 屏极耗散功率 (W)
func (p MeasurementPoint) Dissipation() float64 {
	return p.Ep * p.Ip * DissipationMul
}

// Within 是否处于耗散门限之内
func (p MeasurementPoint) Within(maxDissipation float64) bool {
	return p.Dissipation() <= maxDissipation
}

// MeasurementSeries 同一名义栅压下的一组测量点
type MeasurementSeries struct {
	Eg     float64            `yaml:"eg"`
	Points []MeasurementPoint `yaml:"points"`
}

// SortByEp 按屏压原地排序，生产方不保证顺序
func (s *MeasurementSeries) SortByEp() {
	sort.SliceStable(s.Points, func(i, j int) bool { return s.Points[i].Ep < s.Points[j].Ep })
}

// MeasurementFile 一个测量文件
type MeasurementFile struct {
	Name     string              `yaml:"name"`
	Type     MeasurementType     `yaml:"type"`
	EgOffset float64             `yaml:"egOffset"` // 栅压校准偏移，使用前加到每个点
	Series   []MeasurementSeries `yaml:"series"`
}

// Grid 校准后的栅压
func (f *MeasurementFile) Grid(p MeasurementPoint) float64 {
	return p.Eg + f.EgOffset
}

// Each 遍历所有测量点（含栅压偏移），fn 返回 false 时停止
func (f *MeasurementFile) Each(fn func(series *MeasurementSeries, p MeasurementPoint, eg float64) bool) {
	for i := range f.Series {
		s := &f.Series[i]
		for _, p := range s.Points {
			if !fn(s, p, p.Eg+f.EgOffset) {
				return
			}
		}
	}
}
