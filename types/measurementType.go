package types

import (
	"fmt"
	"strings"
)

// MeasurementType 测量类型，标记哪个物理量是扫描自变量
type MeasurementType uint8

// 测量类型常量定义
const (
	TypeUnknown        MeasurementType = iota // 未知类型
	TypeEpSweep                               // 屏压扫描，栅压分档（三极管屏极特性）
	TypeEgSweep                               // 栅压扫描，屏压固定（转移特性）
	TypeEpSweepFixedEs                        // 屏压扫描，栅压分档，帘栅压固定（五极管屏极特性）
	TypeEgSweepFixedEs                        // 栅压扫描，屏压与帘栅压固定
	TypeEsSweep                               // 帘栅压扫描，屏压与栅压固定
)

// measurementTypeString 类型映射
var measurementTypeString = map[MeasurementType]struct {
	Name   string
	Screen bool // 是否带帘栅极数据
	EpAxis bool // 屏压是否为扫描自变量
}{
	TypeUnknown:        {Name: "Unknown"},
	TypeEpSweep:        {Name: "EpSweep", EpAxis: true},
	TypeEgSweep:        {Name: "EgSweep"},
	TypeEpSweepFixedEs: {Name: "EpSweepFixedEs", Screen: true, EpAxis: true},
	TypeEgSweepFixedEs: {Name: "EgSweepFixedEs", Screen: true},
	TypeEsSweep:        {Name: "EsSweep", Screen: true},
}

// String 返回测量类型的字符串表示
func (t MeasurementType) String() string {
	if mt, ok := measurementTypeString[t]; ok {
		return mt.Name
	}
	return "Unknown"
}

// HasScreen 是否包含帘栅极电压与电流
func (t MeasurementType) HasScreen() bool { return measurementTypeString[t].Screen }

// EpIsSwept 屏压是否为扫描自变量
func (t MeasurementType) EpIsSwept() bool { return measurementTypeString[t].EpAxis }

// MarshalText 文本编码
func (t MeasurementType) MarshalText() ([]byte, error) { return []byte(t.String()), nil }

// UnmarshalText 文本解码
func (t *MeasurementType) UnmarshalText(text []byte) error {
	mt, err := ParseMeasurementType(string(text))
	if err != nil {
		return err
	}
	*t = mt
	return nil
}

// ParseMeasurementType 通过名称获取类型（忽略大小写）
func ParseMeasurementType(name string) (MeasurementType, error) {
	for t, mt := range measurementTypeString {
		if t != TypeUnknown && strings.EqualFold(mt.Name, name) {
			return t, nil
		}
	}
	return TypeUnknown, fmt.Errorf("未知测量类型: %q", name)
}
