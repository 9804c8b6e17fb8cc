package optimizer

import "math"

// 一维搜索常量
const (
	goldRatio   = 1.618033988749895 // 括区放大比例
	goldLimit   = 100.0             // 抛物线外推的最大倍数
	cGold       = 0.3819660112501051
	zeps        = 1e-10 // 最优点在零附近时的绝对容差
	tiny        = 1e-20
	lineTol     = 2e-4 // 线搜索相对精度
	bracketIter = 50   // 括区最大迭代
	brentIter   = 100  // Brent 最大迭代
)

// bracket 从 [a, b] 出发向下坡方向扩展，寻找 fb <= fa 且 fb <= fc 的三点
// 返回 ok=false 时 (b, fb) 仍是已求值点中的最好者
func bracket(g func(float64) float64, a, b, fa float64) (ax, bx, cx, fbx float64, ok bool) {
	fb := g(b)
	if fb > fa {
		a, b = b, a
		fa, fb = fb, fa
	}
	c := b + goldRatio*(b-a)
	fc := g(c)
	for i := 0; fb > fc; i++ {
		if i >= bracketIter || math.IsNaN(c) || math.IsInf(c, 0) {
			// 未能括住，返回最好点
			return a, c, c, fc, false
		}
		r := (b - a) * (fb - fc)
		q := (b - c) * (fb - fa)
		u := b - ((b-c)*q-(b-a)*r)/(2*math.Copysign(math.Max(math.Abs(q-r), tiny), q-r))
		ulim := b + goldLimit*(c-b)
		var fu float64
		switch {
		case (b-u)*(u-c) > 0:
			// 抛物线点位于 b c 之间
			fu = g(u)
			if fu < fc {
				return b, u, c, fu, true
			} else if fu > fb {
				return a, b, u, fb, true
			}
			u = c + goldRatio*(c-b)
			fu = g(u)
		case (c-u)*(u-ulim) > 0:
			// 抛物线点位于 c 与允许极限之间
			fu = g(u)
			if fu < fc {
				b, c = c, u
				fb, fc = fc, fu
				u = c + goldRatio*(c-b)
				fu = g(u)
			}
		case (u-ulim)*(ulim-c) >= 0:
			u = ulim
			fu = g(u)
		default:
			u = c + goldRatio*(c-b)
			fu = g(u)
		}
		a, b, c = b, c, u
		fa, fb, fc = fb, fc, fu
	}
	if math.IsNaN(c) || math.IsInf(c, 0) {
		return a, b, b, fb, false
	}
	return a, b, c, fb, true
}

// brent 在括区 (a, b, c) 内做 Brent 一维极小化
// 参数:
//
//	g  - 一维目标
//	bx - 括区内部点，fbx 为其函数值
//
// 返回:
//
//	极小点与极小值，结果不劣于 (bx, fbx)
func brent(g func(float64) float64, ax, bx, cx, fbx, tol float64) (float64, float64) {
	a, b := math.Min(ax, cx), math.Max(ax, cx)
	x, w, v := bx, bx, bx
	fx, fw, fv := fbx, fbx, fbx
	var d, e float64
	for iter := 0; iter < brentIter; iter++ {
		xm := 0.5 * (a + b)
		tol1 := tol*math.Abs(x) + zeps
		tol2 := 2 * tol1
		if math.Abs(x-xm) <= tol2-0.5*(b-a) {
			break
		}
		if math.Abs(e) > tol1 {
			// 尝试抛物线插值
			r := (x - w) * (fx - fv)
			q := (x - v) * (fx - fw)
			p := (x-v)*q - (x-w)*r
			q = 2 * (q - r)
			if q > 0 {
				p = -p
			}
			q = math.Abs(q)
			etemp := e
			e = d
			if math.Abs(p) >= math.Abs(0.5*q*etemp) || p <= q*(a-x) || p >= q*(b-x) {
				e = goldenStep(x, xm, a, b)
				d = cGold * e
			} else {
				d = p / q
				if u := x + d; u-a < tol2 || b-u < tol2 {
					d = math.Copysign(tol1, xm-x)
				}
			}
		} else {
			e = goldenStep(x, xm, a, b)
			d = cGold * e
		}
		u := x + math.Copysign(math.Max(math.Abs(d), tol1), d)
		fu := g(u)
		if fu <= fx {
			if u >= x {
				a = x
			} else {
				b = x
			}
			v, w, x = w, x, u
			fv, fw, fx = fw, fx, fu
			continue
		}
		if u < x {
			a = u
		} else {
			b = u
		}
		if fu <= fw || w == x {
			v, w = w, u
			fv, fw = fw, fu
		} else if fu <= fv || v == x || v == w {
			v, fv = u, fu
		}
	}
	return x, fx
}

// goldenStep 黄金分割步向较大的半区
func goldenStep(x, xm, a, b float64) float64 {
	if x >= xm {
		return a - x
	}
	return b - x
}
