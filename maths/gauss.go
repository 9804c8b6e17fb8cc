package maths

import (
	"errors"
	"fmt"
	"math"

	"gonum.org/v1/gonum/mat"
)

// ErrSingularMatrix 选出的主元恰好为零
var ErrSingularMatrix = errors.New("singular matrix")

// Eliminate 带部分主元的前向消元（原位修改，化为行阶梯形）
// 参数:
//
//	m - 至少一行一列的矩阵，调用方须接受其被修改（或传入副本）
//
// 返回:
//
//	主元为零时返回 ErrSingularMatrix
//
// 算法步骤:
//  1. 对每个主元列k，在[k, rows-1]行中选绝对值最大的行
//  2. 将该行交换到主元位置
//  3. 用行缩放相减消去主元列下方所有元素
//
// 注意:
//
//	不做回代，回代由调用方完成（见 BackSubstitute）
func Eliminate(m *mat.Dense) error {
	rows, cols := m.Dims()
	if rows < 1 || cols < 1 {
		return errors.New("eliminate: matrix must have at least one row and one column")
	}
	pivots := min(rows, cols)
	for k := 0; k < pivots; k++ {
		// 步骤1：部分主元选择
		maxRow := k
		maxAbsVal := math.Abs(m.At(k, k))
		for i := k + 1; i < rows; i++ {
			if v := math.Abs(m.At(i, k)); v > maxAbsVal {
				maxAbsVal = v
				maxRow = i
			}
		}
		if maxAbsVal == 0 {
			return fmt.Errorf("eliminate: zero pivot in column %d: %w", k, ErrSingularMatrix)
		}

		// 步骤2：行交换
		if maxRow != k {
			swapRows(m, k, maxRow)
		}

		// 步骤3：高斯消元
		pivotVal := m.At(k, k)
		for i := k + 1; i < rows; i++ {
			factor := m.At(i, k) / pivotVal
			if factor == 0 {
				continue
			}
			m.Set(i, k, 0) // 显式置零
			for j := k + 1; j < cols; j++ {
				m.Set(i, j, m.At(i, j)-factor*m.At(k, j))
			}
		}
	}
	return nil
}

// swapRows 交换两行
func swapRows(m *mat.Dense, a, b int) {
	ra, rb := m.RawRowView(a), m.RawRowView(b)
	for j := range ra {
		ra[j], rb[j] = rb[j], ra[j]
	}
}

// BackSubstitute 对已消元的增广矩阵 [A|b] 回代求解
// 参数:
//
//	m - Eliminate 之后的 n×(n+1) 增广矩阵
//
// 返回:
//
//	解向量x，对角线为零时返回 ErrSingularMatrix
func BackSubstitute(m *mat.Dense) ([]float64, error) {
	rows, cols := m.Dims()
	if cols != rows+1 {
		return nil, fmt.Errorf("back substitute: want n×(n+1) augmented matrix, got %d×%d", rows, cols)
	}
	x := make([]float64, rows)
	for i := rows - 1; i >= 0; i-- {
		sum := m.At(i, rows)
		for j := i + 1; j < rows; j++ {
			sum -= m.At(i, j) * x[j]
		}
		diag := m.At(i, i)
		if diag == 0 {
			return nil, fmt.Errorf("back substitute: zero diagonal at row %d: %w", i, ErrSingularMatrix)
		}
		x[i] = sum / diag
	}
	return x, nil
}

// Solve 求解 Ax=b，不修改输入
func Solve(a *mat.Dense, b []float64) ([]float64, error) {
	n, c := a.Dims()
	if n != c || len(b) != n {
		return nil, fmt.Errorf("solve: dimension mismatch: A %d×%d, b %d", n, c, len(b))
	}
	aug := mat.NewDense(n, n+1, nil)
	aug.Slice(0, n, 0, n).(*mat.Dense).Copy(a)
	for i, v := range b {
		aug.Set(i, n, v)
	}
	if err := Eliminate(aug); err != nil {
		return nil, err
	}
	return BackSubstitute(aug)
}
