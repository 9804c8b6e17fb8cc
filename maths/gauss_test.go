package maths

import (
	"errors"
	"math"
	"math/rand"
	"testing"

	"gonum.org/v1/gonum/mat"
)

// TestEliminateBackSubstitute 验证增广矩阵消元后回代可恢复唯一解
func TestEliminateBackSubstitute(t *testing.T) {
	// A = [[2, 3, 1],
	//      [1, 2, 3],
	//      [3, 1, 2]]
	// b = [9, 6, 8]
	// 预期解 x = [35/18, 29/18, 5/18]
	aug := mat.NewDense(3, 4, []float64{
		2, 3, 1, 9,
		1, 2, 3, 6,
		3, 1, 2, 8,
	})
	if err := Eliminate(aug); err != nil {
		t.Fatalf("Eliminate failed: %v", err)
	}
	// 消元后下三角为零
	for i := 1; i < 3; i++ {
		for j := 0; j < i; j++ {
			if aug.At(i, j) != 0 {
				t.Errorf("element (%d,%d) not eliminated: %g", i, j, aug.At(i, j))
			}
		}
	}
	// 第一主元应为最大绝对值行
	if aug.At(0, 0) != 3 {
		t.Errorf("pivot row not selected: got %g, want 3", aug.At(0, 0))
	}
	x, err := BackSubstitute(aug)
	if err != nil {
		t.Fatalf("BackSubstitute failed: %v", err)
	}
	expected := []float64{35.0 / 18.0, 29.0 / 18.0, 5.0 / 18.0}
	for i := range expected {
		if math.Abs(x[i]-expected[i]) > 1e-12 {
			t.Errorf("x[%d] = %g, want %g", i, x[i], expected[i])
		}
	}
}

// TestSolveRandom 随机对角占优矩阵的往返验证
func TestSolveRandom(t *testing.T) {
	rng := rand.New(rand.NewSource(42))
	for _, n := range []int{1, 2, 5, 10, 20} {
		a := mat.NewDense(n, n, nil)
		for i := 0; i < n; i++ {
			for j := 0; j < n; j++ {
				a.Set(i, j, rng.Float64()*2-1)
			}
			a.Set(i, i, a.At(i, i)+float64(n))
		}
		want := make([]float64, n)
		for i := range want {
			want[i] = rng.Float64()*10 - 5
		}
		b := make([]float64, n)
		bv := mat.NewVecDense(n, b)
		bv.MulVec(a, mat.NewVecDense(n, want))

		orig := mat.DenseCopyOf(a)
		x, err := Solve(a, b)
		if err != nil {
			t.Fatalf("n=%d: Solve failed: %v", n, err)
		}
		if !mat.Equal(a, orig) {
			t.Errorf("n=%d: Solve modified its input", n)
		}
		for i := range want {
			if math.Abs(x[i]-want[i]) > 1e-9 {
				t.Errorf("n=%d: x[%d] = %g, want %g", n, i, x[i], want[i])
			}
		}
	}
}

func TestEliminateSingular(t *testing.T) {
	tests := []struct {
		name string
		m    *mat.Dense
	}{
		{"零主元列", mat.NewDense(2, 3, []float64{0, 1, 1, 0, 2, 2})},
		{"全零", mat.NewDense(1, 1, []float64{0})},
		{"线性相关", mat.NewDense(2, 2, []float64{1, 2, 2, 4})},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := Eliminate(tt.m)
			if !errors.Is(err, ErrSingularMatrix) {
				t.Fatalf("want ErrSingularMatrix, got %v", err)
			}
		})
	}
}

// 非方阵只消元 min(rows, cols) 列
func TestEliminateRectangular(t *testing.T) {
	m := mat.NewDense(3, 2, []float64{
		1, 2,
		4, 1,
		2, 2,
	})
	if err := Eliminate(m); err != nil {
		t.Fatalf("Eliminate failed: %v", err)
	}
	if m.At(1, 0) != 0 || m.At(2, 0) != 0 || m.At(2, 1) != 0 {
		t.Errorf("not in row echelon form:\n%v", mat.Formatted(m))
	}
}

func TestPolyFit(t *testing.T) {
	x := []float64{-2, -1, 0, 1, 2, 3}
	y := make([]float64, len(x))
	for i, v := range x {
		y[i] = 1.5 - 0.5*v + 2*v*v
	}
	c, err := PolyFit(x, y, 2)
	if err != nil {
		t.Fatalf("PolyFit failed: %v", err)
	}
	want := []float64{1.5, -0.5, 2}
	for i := range want {
		if math.Abs(c[i]-want[i]) > 1e-9 {
			t.Errorf("c[%d] = %g, want %g", i, c[i], want[i])
		}
	}

	c0, c1, err := LineFit([]float64{1, 2, 3}, []float64{3, 5, 7})
	if err != nil {
		t.Fatalf("LineFit failed: %v", err)
	}
	if math.Abs(c0-1) > 1e-12 || math.Abs(c1-2) > 1e-12 {
		t.Errorf("LineFit = (%g, %g), want (1, 2)", c0, c1)
	}

	if _, err := PolyFit([]float64{1, 1, 1}, []float64{1, 2, 3}, 1); !errors.Is(err, ErrSingularMatrix) {
		t.Errorf("degenerate abscissae: want ErrSingularMatrix, got %v", err)
	}
}
