package estimate

import (
	"tubefit/types"
)

// Curve 一条按屏压排序的特性曲线
// 点的栅压已加上文件的栅压偏移，超出耗散门限的点已剔除
type Curve struct {
	Type   types.MeasurementType
	Eg     float64 // 校准后的名义栅压
	Points []types.MeasurementPoint
}

// Curves 收集全部曲线
// 注意: 输入序列按屏压原地排序
func Curves(files []*types.MeasurementFile, maxDissipation float64) []Curve {
	var curves []Curve
	for _, f := range files {
		for i := range f.Series {
			s := &f.Series[i]
			s.SortByEp()
			c := Curve{Type: f.Type, Eg: s.Eg + f.EgOffset}
			for _, p := range s.Points {
				if !p.Within(maxDissipation) {
					continue
				}
				p.Eg += f.EgOffset
				c.Points = append(c.Points, p)
			}
			if len(c.Points) > 0 {
				curves = append(curves, c)
			}
		}
	}
	return curves
}

// Qualifies 屏压扫描且帘栅压固定，可用于拐点与二次发射分析
func (c *Curve) Qualifies() bool {
	return c.Type.EpIsSwept() && c.Type.HasScreen()
}

// Saturated 曲线屏压范围上半段的点
func (c *Curve) Saturated() []types.MeasurementPoint {
	lo, hi := c.Points[0].Ep, c.Points[len(c.Points)-1].Ep
	if hi <= lo {
		return c.Points
	}
	mid := 0.5 * (lo + hi)
	for i, p := range c.Points {
		if p.Ep >= mid {
			return c.Points[i:]
		}
	}
	return nil
}

// PlateAt 屏流首次达到 ip 时的屏压（线性插值）
func (c *Curve) PlateAt(ip float64) (float64, bool) {
	for k := 0; k+1 < len(c.Points); k++ {
		a, b := c.Points[k], c.Points[k+1]
		if (a.Ip-ip)*(b.Ip-ip) > 0 || a.Ip == b.Ip {
			continue
		}
		return a.Ep + (ip-a.Ip)*(b.Ep-a.Ep)/(b.Ip-a.Ip), true
	}
	return 0, false
}

// ScreenAt 屏压 ep 处的帘栅流（线性插值）
func (c *Curve) ScreenAt(ep float64) (float64, bool) {
	for k := 0; k+1 < len(c.Points); k++ {
		a, b := c.Points[k], c.Points[k+1]
		if ep < a.Ep || ep > b.Ep || a.Ep == b.Ep {
			continue
		}
		return a.Is + (ep-a.Ep)*(b.Is-a.Is)/(b.Ep-a.Ep), true
	}
	return 0, false
}

// currentRange 屏流范围
func (c *Curve) currentRange() (lo, hi float64) {
	lo, hi = c.Points[0].Ip, c.Points[0].Ip
	for _, p := range c.Points[1:] {
		lo = min(lo, p.Ip)
		hi = max(hi, p.Ip)
	}
	return lo, hi
}

// KernelSample Koren 核心的一个样本
// 三极管为 (ep, eg, ip)，五极管族为 (es, eg, is)
type KernelSample struct {
	Va float64 // 核心的阳极类电压
	Eg float64
	I  float64 // 电流 (mA)
}

// TriodeSamples 三极管屏流样本
func TriodeSamples(curves []Curve) []KernelSample {
	var out []KernelSample
	for _, c := range curves {
		for _, p := range c.Points {
			if p.Ip > 0 {
				out = append(out, KernelSample{Va: p.Ep, Eg: p.Eg, I: p.Ip})
			}
		}
	}
	return out
}

// ScreenSamples 五极管族饱和区帘栅流样本
func ScreenSamples(curves []Curve) []KernelSample {
	var out []KernelSample
	for _, c := range curves {
		for _, p := range c.Saturated() {
			if p.Screen && p.Is > 0 {
				out = append(out, KernelSample{Va: p.Es, Eg: p.Eg, I: p.Is})
			}
		}
	}
	return out
}
