package types

import (
	"fmt"
	"math"
	"strings"
)

// Unset 未设置的参数值
var Unset = math.NaN()

// IsSet 参数是否已设置
func IsSet(v float64) bool { return !math.IsNaN(v) }

// Family 电子管模型族
type Family uint8

// 模型族常量定义
const (
	FamilyTriode  Family = iota // Koren 三极管
	FamilyPentode               // Koren 五极管
	FamilyDerk                  // Derk 五极管
	FamilyDerkE                 // Derk-E 五极管
)

var familyName = map[Family]string{
	FamilyTriode:  "triode",
	FamilyPentode: "pentode",
	FamilyDerk:    "derk",
	FamilyDerkE:   "derk-e",
}

// String 返回模型族名称
func (f Family) String() string {
	if n, ok := familyName[f]; ok {
		return n
	}
	return "unknown"
}

// ParseFamily 通过名称获取模型族
func ParseFamily(name string) (Family, error) {
	for f, n := range familyName {
		if strings.EqualFold(n, name) {
			return f, nil
		}
	}
	return 0, fmt.Errorf("未知模型族: %q", name)
}

// Parameters 模型参数集（封闭和类型，变体为 *Triode *Pentode *Derk *DerkE）
type Parameters interface {
	Family() Family
	Valid() bool           // 所有必需字段均为有限实数
	Names() []string       // 可精修字段名
	Vector() []float64     // 打包可精修字段
	SetVector(x []float64) // 按 Names 顺序写回
	Set(name string, v float64) error
	Get(name string) (float64, bool)
	Clone() Parameters
	fields() ([]string, []*float64)
}

// Kernel Koren 核心参数
type Kernel struct {
	Mu  float64 // 放大系数
	Ex  float64 // 指数
	Kp  float64
	Kvb float64
}

// Triode Koren 三极管参数
type Triode struct {
	Kernel
	Kg1 float64
}

// Pentode Koren 五极管参数，Kvb 按约定固定为 PentodeKvb
type Pentode struct {
	Triode
	Kg2 float64
}

// SecondaryEmission 二次发射参数，仅在请求二次发射时存在
type SecondaryEmission struct {
	S      float64
	AlphaP float64
	Lambda float64
	V      float64
	W      float64
}

// Derk Derk 五极管参数（alpha 由 kg1 kg2 alphaS 推导）
type Derk struct {
	Pentode
	A         float64
	AlphaS    float64
	Beta      float64
	Secondary *SecondaryEmission
}

// DerkE Derk-E 五极管参数
type DerkE struct {
	Pentode
	AlphaS    float64
	Beta      float64
	Secondary *SecondaryEmission
}

func unsetKernel() Kernel { return Kernel{Mu: Unset, Ex: Unset, Kp: Unset, Kvb: Unset} }

func unsetSecondary(enabled bool) *SecondaryEmission {
	if !enabled {
		return nil
	}
	return &SecondaryEmission{S: Unset, AlphaP: Unset, Lambda: Unset, V: Unset, W: Unset}
}

// NewTriode 创建全部未设置的三极管参数
func NewTriode() *Triode { return &Triode{Kernel: unsetKernel(), Kg1: Unset} }

// NewPentode 创建全部未设置的五极管参数
func NewPentode() *Pentode { return &Pentode{Triode: *NewTriode(), Kg2: Unset} }

// NewDerk 创建全部未设置的 Derk 参数
func NewDerk(secondary bool) *Derk {
	return &Derk{Pentode: *NewPentode(), A: Unset, AlphaS: Unset, Beta: Unset, Secondary: unsetSecondary(secondary)}
}

// NewDerkE 创建全部未设置的 Derk-E 参数
func NewDerkE(secondary bool) *DerkE {
	return &DerkE{Pentode: *NewPentode(), AlphaS: Unset, Beta: Unset, Secondary: unsetSecondary(secondary)}
}

// NewParameters 按模型族创建参数集
func NewParameters(f Family, secondary bool) (Parameters, error) {
	switch f {
	case FamilyTriode:
		return NewTriode(), nil
	case FamilyPentode:
		return NewPentode(), nil
	case FamilyDerk:
		return NewDerk(secondary), nil
	case FamilyDerkE:
		return NewDerkE(secondary), nil
	}
	return nil, fmt.Errorf("未知模型族: %d", f)
}

func (p *Triode) Family() Family  { return FamilyTriode }
func (p *Pentode) Family() Family { return FamilyPentode }
func (p *Derk) Family() Family    { return FamilyDerk }
func (p *DerkE) Family() Family   { return FamilyDerkE }

func (p *Triode) fields() ([]string, []*float64) {
	return []string{"mu", "ex", "kg1", "kp", "kvb"},
		[]*float64{&p.Mu, &p.Ex, &p.Kg1, &p.Kp, &p.Kvb}
}

// 五极管族的 kvb 不在精修向量中
func (p *Pentode) fields() ([]string, []*float64) {
	return []string{"mu", "ex", "kg1", "kp", "kg2"},
		[]*float64{&p.Mu, &p.Ex, &p.Kg1, &p.Kp, &p.Kg2}
}

func (s *SecondaryEmission) fields() ([]string, []*float64) {
	if s == nil {
		return nil, nil
	}
	return []string{"s", "alphaP", "lambda", "v", "w"},
		[]*float64{&s.S, &s.AlphaP, &s.Lambda, &s.V, &s.W}
}

func (p *Derk) fields() ([]string, []*float64) {
	names, ptrs := p.Pentode.fields()
	names = append(names, "a", "alphaS", "beta")
	ptrs = append(ptrs, &p.A, &p.AlphaS, &p.Beta)
	sn, sp := p.Secondary.fields()
	return append(names, sn...), append(ptrs, sp...)
}

func (p *DerkE) fields() ([]string, []*float64) {
	names, ptrs := p.Pentode.fields()
	names = append(names, "alphaS", "beta")
	ptrs = append(ptrs, &p.AlphaS, &p.Beta)
	sn, sp := p.Secondary.fields()
	return append(names, sn...), append(ptrs, sp...)
}

// allFinite 检查字段和 kvb 是否均为有限实数
func allFinite(p Parameters, kvb float64) bool {
	if math.IsNaN(kvb) || math.IsInf(kvb, 0) {
		return false
	}
	_, ptrs := p.fields()
	for _, v := range ptrs {
		if math.IsNaN(*v) || math.IsInf(*v, 0) {
			return false
		}
	}
	return true
}

func (p *Triode) Valid() bool  { return allFinite(p, p.Kvb) }
func (p *Pentode) Valid() bool { return allFinite(p, p.Kvb) }
func (p *Derk) Valid() bool    { return allFinite(p, p.Kvb) }
func (p *DerkE) Valid() bool   { return allFinite(p, p.Kvb) }

func names(p Parameters) []string {
	n, _ := p.fields()
	return n
}

func vector(p Parameters) []float64 {
	_, ptrs := p.fields()
	x := make([]float64, len(ptrs))
	for i, v := range ptrs {
		x[i] = *v
	}
	return x
}

func setVector(p Parameters, x []float64) {
	_, ptrs := p.fields()
	if len(x) != len(ptrs) {
		panic(fmt.Sprintf("parameter vector length mismatch: %s wants %d, got %d", p.Family(), len(ptrs), len(x)))
	}
	for i, v := range ptrs {
		*v = x[i]
	}
}

func set(p Parameters, kvb *float64, name string, v float64) error {
	if name == "kvb" {
		*kvb = v
		return nil
	}
	n, ptrs := p.fields()
	for i := range n {
		if strings.EqualFold(n[i], name) {
			*ptrs[i] = v
			return nil
		}
	}
	return fmt.Errorf("%s: 未知参数 %q", p.Family(), name)
}

func get(p Parameters, kvb float64, name string) (float64, bool) {
	if name == "kvb" {
		return kvb, true
	}
	n, ptrs := p.fields()
	for i := range n {
		if strings.EqualFold(n[i], name) {
			return *ptrs[i], true
		}
	}
	return 0, false
}

func (p *Triode) Names() []string  { return names(p) }
func (p *Pentode) Names() []string { return names(p) }
func (p *Derk) Names() []string    { return names(p) }
func (p *DerkE) Names() []string   { return names(p) }

func (p *Triode) Vector() []float64  { return vector(p) }
func (p *Pentode) Vector() []float64 { return vector(p) }
func (p *Derk) Vector() []float64    { return vector(p) }
func (p *DerkE) Vector() []float64   { return vector(p) }

func (p *Triode) SetVector(x []float64)  { setVector(p, x) }
func (p *Pentode) SetVector(x []float64) { setVector(p, x) }
func (p *Derk) SetVector(x []float64)    { setVector(p, x) }
func (p *DerkE) SetVector(x []float64)   { setVector(p, x) }

func (p *Triode) Set(name string, v float64) error  { return set(p, &p.Kvb, name, v) }
func (p *Pentode) Set(name string, v float64) error { return set(p, &p.Kvb, name, v) }
func (p *Derk) Set(name string, v float64) error    { return set(p, &p.Kvb, name, v) }
func (p *DerkE) Set(name string, v float64) error   { return set(p, &p.Kvb, name, v) }

func (p *Triode) Get(name string) (float64, bool)  { return get(p, p.Kvb, name) }
func (p *Pentode) Get(name string) (float64, bool) { return get(p, p.Kvb, name) }
func (p *Derk) Get(name string) (float64, bool)    { return get(p, p.Kvb, name) }
func (p *DerkE) Get(name string) (float64, bool)   { return get(p, p.Kvb, name) }

func (p *Triode) Clone() Parameters {
	c := *p
	return &c
}

func (p *Pentode) Clone() Parameters {
	c := *p
	return &c
}

func (p *Derk) Clone() Parameters {
	c := *p
	if p.Secondary != nil {
		s := *p.Secondary
		c.Secondary = &s
	}
	return &c
}

func (p *DerkE) Clone() Parameters {
	c := *p
	if p.Secondary != nil {
		s := *p.Secondary
		c.Secondary = &s
	}
	return &c
}

// Values 以名称映射返回全部字段（含 kvb）
func Values(p Parameters) map[string]float64 {
	n, ptrs := p.fields()
	m := make(map[string]float64, len(n)+1)
	for i := range n {
		m[n[i]] = *ptrs[i]
	}
	m["kvb"], _ = p.Get("kvb")
	return m
}
