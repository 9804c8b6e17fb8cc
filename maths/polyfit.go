package maths

import (
	"fmt"

	"gonum.org/v1/gonum/mat"
)

// PolyFit 最小二乘多项式拟合（正规方程）
// 参数:
//
//	x, y   - 等长样本
//	degree - 多项式次数
//
// 返回:
//
//	系数 c，按升幂排列：y ≈ c[0] + c[1]*x + ... + c[degree]*x^degree
func PolyFit(x, y []float64, degree int) ([]float64, error) {
	if len(x) != len(y) {
		return nil, fmt.Errorf("polyfit: length mismatch %d != %d", len(x), len(y))
	}
	if degree < 0 {
		return nil, fmt.Errorf("polyfit: negative degree %d", degree)
	}
	n := degree + 1
	if len(x) < n {
		return nil, fmt.Errorf("polyfit: need at least %d samples, got %d: %w", n, len(x), ErrSingularMatrix)
	}

	// 幂和 sum(x^k), k=0..2*degree
	sums := make([]float64, 2*degree+1)
	rhs := make([]float64, n)
	for i, xi := range x {
		p := 1.0
		for k := range sums {
			sums[k] += p
			if k < n {
				rhs[k] += p * y[i]
			}
			p *= xi
		}
	}

	// 正规方程 [X^T X | X^T y]
	aug := mat.NewDense(n, n+1, nil)
	for r := 0; r < n; r++ {
		for c := 0; c < n; c++ {
			aug.Set(r, c, sums[r+c])
		}
		aug.Set(r, n, rhs[r])
	}
	if err := Eliminate(aug); err != nil {
		return nil, fmt.Errorf("polyfit: %w", err)
	}
	return BackSubstitute(aug)
}

// LineFit 直线拟合 y ≈ c0 + c1*x
func LineFit(x, y []float64) (c0, c1 float64, err error) {
	c, err := PolyFit(x, y, 1)
	if err != nil {
		return 0, 0, err
	}
	return c[0], c[1], nil
}
