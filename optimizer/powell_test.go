package optimizer

import (
	"context"
	"math"
	"math/rand"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tubefit/types"
)

func rosenbrock(x []float64) float64 {
	return 100*sqr(x[1]-x[0]*x[0]) + sqr(1-x[0])
}

// quadratic (x-c)^T A (x-c)，A 正定
func quadratic(c []float64) Func {
	a := [][]float64{
		{2, 0.5, 0},
		{0.5, 1, 0.2},
		{0, 0.2, 3},
	}
	return func(x []float64) float64 {
		var sum float64
		for i := range a {
			for j := range a[i] {
				sum += (x[i] - c[i]) * a[i][j] * (x[j] - c[j])
			}
		}
		return sum
	}
}

func TestMinimizeQuadratic(t *testing.T) {
	c := []float64{1, -2, 3}
	res := Minimize([]float64{0, 0, 0}, quadratic(c), types.FitConfiguration{MaxIterations: 200, RelativeThreshold: 1e-12})
	require.True(t, res.Converged)
	for i := range c {
		assert.InDelta(t, c[i], res.X[i], 1e-3)
	}
	assert.InDelta(t, 0, res.Value, 1e-6)
	assert.Nil(t, res.Trace)
}

func TestMinimizeRosenbrock(t *testing.T) {
	res := Minimize([]float64{-1.2, 1}, rosenbrock, types.FitConfiguration{MaxIterations: 1000, RelativeThreshold: 1e-12})
	assert.True(t, res.Converged)
	assert.InDelta(t, 1, res.X[0], 1e-2)
	assert.InDelta(t, 1, res.X[1], 1e-2)
	assert.Less(t, res.Value, 1e-4)
	assert.Greater(t, res.Evaluations, res.Iterations)
}

// 任意目标、任意起点，结果不劣于起点
func TestNeverWorseThanStart(t *testing.T) {
	rastrigin := func(x []float64) float64 {
		sum := 10 * float64(len(x))
		for _, v := range x {
			sum += v*v - 10*math.Cos(2*math.Pi*v)
		}
		return sum
	}
	rng := rand.New(rand.NewSource(1))
	for i := 0; i < 50; i++ {
		x0 := make([]float64, 1+rng.Intn(4))
		for j := range x0 {
			x0[j] = rng.Float64()*10 - 5
		}
		f0 := rastrigin(x0)
		res := Minimize(x0, rastrigin, types.DefaultSubFit())
		assert.LessOrEqual(t, res.Value, f0)
		assert.Equal(t, res.Value, rastrigin(res.X))
	}
}

func TestMaxIterations(t *testing.T) {
	x0 := []float64{-1.2, 1}
	res := Minimize(x0, rosenbrock, types.FitConfiguration{MaxIterations: 1, RelativeThreshold: 1e-12})
	assert.False(t, res.Converged)
	assert.Equal(t, 1, res.Iterations)
	assert.Less(t, res.Value, rosenbrock(x0))
	// 起点不被修改
	assert.Equal(t, []float64{-1.2, 1}, x0)
}

func TestTrace(t *testing.T) {
	cfg := types.FitConfiguration{MaxIterations: 200, RelativeThreshold: 1e-8}
	plain := Minimize([]float64{0, 0, 0}, quadratic([]float64{1, 2, 3}), cfg)
	traced := Minimize([]float64{0, 0, 0}, quadratic([]float64{1, 2, 3}), cfg.WithTrace(true))

	require.NotNil(t, traced.Trace)
	assert.Equal(t, traced.Evaluations, traced.Trace.Len())
	// 轨迹不改变收敛行为
	if diff := cmp.Diff(plain.X, traced.X); diff != "" {
		t.Errorf("trace changed the result (-plain +traced):\n%s", diff)
	}
	assert.Equal(t, plain.Iterations, traced.Iterations)

	best, ok := traced.Trace.Best()
	require.True(t, ok)
	assert.Equal(t, traced.Value, best.Value)
	assert.Equal(t, []float64{0, 0, 0}, traced.Trace.Samples[0].X)

	traced.Trace.Reset()
	assert.Zero(t, traced.Trace.Len())
}

func TestNonFiniteObjective(t *testing.T) {
	f := func(x []float64) float64 {
		if x[0] < 0 {
			return math.NaN()
		}
		return sqr(x[0]-0.5) + 1
	}
	res := Minimize([]float64{2}, f, types.DefaultSubFit())
	assert.False(t, math.IsNaN(res.Value))
	assert.InDelta(t, 0.5, res.X[0], 1e-3)
}

func TestMinimizeContextCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	res, err := MinimizeContext(ctx, []float64{-1.2, 1}, rosenbrock, types.DefaultSubFit())
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, []float64{-1.2, 1}, res.X)
	assert.False(t, res.Converged)
	assert.Equal(t, 1, res.Evaluations)
}

func TestMinimize1D(t *testing.T) {
	x, res := Minimize1D(10, func(v float64) float64 { return sqr(v-3) + 2 }, types.DefaultSubFit())
	assert.True(t, res.Converged)
	assert.InDelta(t, 3, x, 1e-3)
	assert.InDelta(t, 2, res.Value, 1e-6)

	// 起点为零时使用单位步长的十分之一
	x, _ = Minimize1D(0, func(v float64) float64 { return sqr(v + 7) }, types.DefaultSubFit())
	assert.InDelta(t, -7, x, 1e-2)
}

func TestEmptyVector(t *testing.T) {
	res := Minimize(nil, func([]float64) float64 { return 4 }, types.DefaultSubFit())
	assert.True(t, res.Converged)
	assert.Equal(t, 4.0, res.Value)
}

func TestBracketAndBrent(t *testing.T) {
	g := func(v float64) float64 { return sqr(v - 5) }
	a, b, c, fb, ok := bracket(g, 0, 1, g(0))
	require.True(t, ok)
	assert.Equal(t, g(b), fb)
	assert.LessOrEqual(t, fb, g(a))
	assert.LessOrEqual(t, fb, g(c))
	x, fx := brent(g, a, b, c, fb, 1e-8)
	assert.InDelta(t, 5, x, 1e-6)
	assert.LessOrEqual(t, fx, fb)
}
