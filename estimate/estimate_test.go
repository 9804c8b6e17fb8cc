package estimate

import (
	"math"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tubefit/model"
	"tubefit/objective"
	"tubefit/types"
)

const testMaxDiss = 1000.0

var (
	trueTriode = types.Triode{Kernel: types.Kernel{Mu: 20, Ex: 1.35, Kp: 500, Kvb: 300}, Kg1: 1200}
	trueKernel = types.Kernel{Mu: 10, Ex: 1.4, Kp: 40, Kvb: types.PentodeKvb}
)

const (
	trueKg1, trueKg2     = 800.0, 4000.0
	trueAlphaS, trueBeta = 5.0, 0.05
	trueA                = 0.0005
	screenVoltage        = 250.0
)

var gridSteps = []float64{0, -2, -4, -6, -8}

func triodeFiles() []*types.MeasurementFile {
	f := &types.MeasurementFile{Name: "triode", Type: types.TypeEpSweep}
	for _, eg := range []float64{0, -1, -2, -3, -4} {
		s := types.MeasurementSeries{Eg: eg}
		for ep := 20.0; ep <= 300; ep += 10 {
			s.Points = append(s.Points, types.MeasurementPoint{Ep: ep, Eg: eg, Ip: model.EvalTriode(&trueTriode, ep, eg)})
		}
		f.Series = append(f.Series, s)
	}
	return []*types.MeasurementFile{f}
}

// screenFiles 由 fn 生成帘栅压固定的屏压扫描数据
func screenFiles(step float64, fn func(ep, eg, es float64) (float64, float64)) []*types.MeasurementFile {
	f := &types.MeasurementFile{Name: "pentode", Type: types.TypeEpSweepFixedEs}
	for _, eg := range gridSteps {
		s := types.MeasurementSeries{Eg: eg}
		for ep := step; ep <= 300; ep += step {
			ip, is := fn(ep, eg, screenVoltage)
			s.Points = append(s.Points, types.MeasurementPoint{
				Index: len(s.Points), Ep: ep, Eg: eg, Ip: ip, Es: screenVoltage, Is: is, Screen: true,
			})
		}
		f.Series = append(f.Series, s)
	}
	return []*types.MeasurementFile{f}
}

func derkEFiles(sec *types.SecondaryEmission, step float64) []*types.MeasurementFile {
	return screenFiles(step, func(ep, eg, es float64) (float64, float64) {
		k := trueKernel
		return model.DerkE(ep, eg, es, k.Kp, k.Mu, k.Kvb, k.Ex, trueKg1, trueKg2, trueAlphaS, trueBeta,
			model.Secondary(sec, ep, eg, es))
	})
}

func derkFiles() []*types.MeasurementFile {
	return screenFiles(10, func(ep, eg, es float64) (float64, float64) {
		k := trueKernel
		return model.Derk(ep, eg, es, k.Kp, k.Mu, k.Kvb, k.Ex, trueKg1, trueKg2, trueA, trueAlphaS, trueBeta, 0)
	})
}

func pentodeFiles() []*types.MeasurementFile {
	return screenFiles(10, func(ep, eg, es float64) (float64, float64) {
		k := trueKernel
		return model.Pentode(ep, eg, es, k.Kp, k.Mu, k.Kvb, k.Ex, trueKg1, trueKg2)
	})
}

func assertRel(t *testing.T, want, got, rel float64, name string) {
	t.Helper()
	assert.InDeltaf(t, want, got, rel*math.Abs(want), "%s: want %g got %g", name, want, got)
}

func TestTriodeRecovery(t *testing.T) {
	p := types.NewTriode()
	Triode(triodeFiles(), p, testMaxDiss)
	require.True(t, p.Valid(), "%+v", p)

	assertRel(t, trueTriode.Mu, p.Mu, 0.1, "mu")
	assertRel(t, trueTriode.Ex, p.Ex, 0.2, "ex")

	// 估计值优于默认值
	def := &types.Triode{Kernel: types.Kernel{Mu: types.DefaultMu, Ex: types.DefaultEx, Kp: types.DefaultKp, Kvb: types.DefaultKvb}, Kg1: types.DefaultKg1}
	files := triodeFiles()
	assert.Less(t, objective.Triode(files, p, testMaxDiss).RMSE, objective.Triode(files, def, testMaxDiss).RMSE)
}

func TestAmplificationFactor(t *testing.T) {
	curves := Curves(triodeFiles(), testMaxDiss)
	mu, ok := amplificationFactor(curves)
	require.True(t, ok)
	assertRel(t, trueTriode.Mu, mu, 0.1, "mu")

	_, ok = amplificationFactor(curves[:1])
	assert.False(t, ok)
}

func TestNoOverwrite(t *testing.T) {
	tp := types.NewTriode()
	tp.Mu, tp.Kvb = 17, 123
	Triode(triodeFiles(), tp, testMaxDiss)
	assert.Equal(t, 17.0, tp.Mu)
	assert.Equal(t, 123.0, tp.Kvb)
	assert.True(t, tp.Valid())

	pp := types.NewPentode()
	pp.Kg2, pp.Ex = 3333, 1.5
	Pentode(pentodeFiles(), pp, testMaxDiss)
	assert.Equal(t, 3333.0, pp.Kg2)
	assert.Equal(t, 1.5, pp.Ex)
	assert.True(t, pp.Valid())

	dp := types.NewDerk(true)
	dp.A, dp.AlphaS, dp.Secondary.Lambda = 0.001, 4, 1.7
	Derk(derkFiles(), dp, testMaxDiss)
	assert.Equal(t, 0.001, dp.A)
	assert.Equal(t, 4.0, dp.AlphaS)
	assert.Equal(t, 1.7, dp.Secondary.Lambda)
	assert.True(t, dp.Valid(), "%+v %+v", dp, dp.Secondary)

	ep := types.NewDerkE(false)
	ep.Kg1, ep.Beta = 777, 0.07
	DerkE(derkEFiles(nil, 10), ep, testMaxDiss)
	assert.Equal(t, 777.0, ep.Kg1)
	assert.Equal(t, 0.07, ep.Beta)
	assert.True(t, ep.Valid())
}

func TestPentodeKvbConvention(t *testing.T) {
	p := types.NewPentode()
	Pentode(pentodeFiles(), p, testMaxDiss)
	assert.Equal(t, types.PentodeKvb, p.Kvb)
	assert.True(t, p.Valid())

	// Koren 五极管：核心与 kg2 已知时 kg1 精确恢复
	q := types.NewPentode()
	q.Kernel, q.Kg2 = trueKernel, trueKg2
	Pentode(pentodeFiles(), q, testMaxDiss)
	assertRel(t, trueKg1, q.Kg1, 1e-9, "kg1")

	// 调用方设置的 kvb 保留
	r := types.NewPentode()
	r.Kvb = 250
	Pentode(pentodeFiles(), r, testMaxDiss)
	assert.Equal(t, 250.0, r.Kvb)

	for _, f := range []func() types.Parameters{
		func() types.Parameters { return types.NewDerk(false) },
		func() types.Parameters { return types.NewDerkE(true) },
	} {
		p := f()
		Parameters(derkEFiles(nil, 10), p, testMaxDiss)
		kvb, _ := p.Get("kvb")
		assert.Equal(t, types.PentodeKvb, kvb, p.Family().String())
	}
}

func TestKg2(t *testing.T) {
	curves := Curves(pentodeFiles(), testMaxDiss)
	assertRel(t, trueKg2, EstimateKg2(curves, trueKernel, nil), 1e-9, "kg2")

	// Derk-E 饱和区拐点修正
	curves = Curves(derkEFiles(nil, 10), testMaxDiss)
	corr := func(ep float64) float64 { return 1 + trueAlphaS*model.KneeDerkE(trueBeta, ep) }
	assertRel(t, trueKg2, EstimateKg2(curves, trueKernel, corr), 1e-9, "kg2")

	assert.Equal(t, types.DefaultKg2, EstimateKg2(nil, trueKernel, nil))
}

func TestAlphaSBetaRecovery(t *testing.T) {
	tests := []struct {
		name   string
		family types.Family
		files  []*types.MeasurementFile
	}{
		{"derk-e", types.FamilyDerkE, derkEFiles(nil, 10)},
		{"derk", types.FamilyDerk, derkFiles()},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			curves := Curves(tt.files, testMaxDiss)
			alphaS, beta, ok := EstimateAlphaSBeta(curves, trueKernel, trueKg2, tt.family, false, types.DefaultSubFit())
			require.True(t, ok)
			assertRel(t, trueAlphaS, alphaS, 0.01, "alphaS")
			assertRel(t, trueBeta, beta, 0.01, "beta")
		})
	}
}

func TestAlphaSBetaDefaults(t *testing.T) {
	// 没有合格曲线（三极管数据）
	curves := Curves(triodeFiles(), testMaxDiss)
	alphaS, beta, ok := EstimateAlphaSBeta(curves, trueKernel, trueKg2, types.FamilyDerkE, false, types.DefaultSubFit())
	assert.False(t, ok)
	assert.Equal(t, types.DerkEDefaultAlphaS, alphaS)
	assert.Equal(t, types.DerkEDefaultBeta, beta)

	alphaS, beta, ok = EstimateAlphaSBeta(nil, trueKernel, trueKg2, types.FamilyDerk, false, types.DefaultSubFit())
	assert.False(t, ok)
	assert.Equal(t, types.DerkDefaultAlphaS, alphaS)
	assert.Equal(t, types.DerkDefaultBeta, beta)
}

// Derk 默认值是倒数形式：beta 为拐点电压的倒数，(alphaS, beta) 可由 -1/(r-1) = a*ep + b 的系数回代
func TestDerkDefaultsReciprocal(t *testing.T) {
	alphaS, beta := DefaultAlphaSBeta(types.FamilyDerk)
	assert.InDelta(t, 0.5, model.KneeDerk(beta, types.DerkDefaultKneeVoltage), 1e-15)

	b := -1 / alphaS
	a := beta * b
	gotAlphaS, gotBeta := backSubstitute(types.FamilyDerk, a, b)
	assert.InDelta(t, alphaS, gotAlphaS, 1e-12)
	assert.InDelta(t, beta, gotBeta, 1e-12)

	// Derk-E 为指数形式，a 非正时无解
	gotAlphaS, _ = backSubstitute(types.FamilyDerkE, -1, 0)
	assert.True(t, math.IsNaN(gotAlphaS))
	gotAlphaS, gotBeta = backSubstitute(types.FamilyDerkE, math.Pow(types.DerkEDefaultBeta, 1.5), -math.Log(types.DerkEDefaultAlphaS))
	assert.InDelta(t, types.DerkEDefaultAlphaS, gotAlphaS, 1e-12)
	assert.InDelta(t, types.DerkEDefaultBeta, gotBeta, 1e-12)
}

func TestSubFitOption(t *testing.T) {
	newParams := func() *types.DerkE {
		p := types.NewDerkE(false)
		p.Kernel, p.Kg1, p.Kg2 = trueKernel, trueKg1, trueKg2
		return p
	}
	p := newParams()
	DerkE(derkEFiles(nil, 10), p, testMaxDiss)
	assertRel(t, trueAlphaS, p.AlphaS, 0.01, "alphaS")
	assertRel(t, trueBeta, p.Beta, 0.01, "beta")

	// 一次迭代内子拟合不可能收敛，回退到默认值
	p = newParams()
	DerkE(derkEFiles(nil, 10), p, testMaxDiss, WithSubFit(types.FitConfiguration{MaxIterations: 1, RelativeThreshold: 1e-300}))
	assert.Equal(t, types.DerkEDefaultAlphaS, p.AlphaS)
	assert.Equal(t, types.DerkEDefaultBeta, p.Beta)

	// 零值字段沿用默认配置
	s := newSettings([]Option{WithSubFit(types.FitConfiguration{MaxIterations: 9})})
	assert.Equal(t, 9, s.subFit.MaxIterations)
	assert.Equal(t, types.DefaultSubFit().RelativeThreshold, s.subFit.RelativeThreshold)
}

func TestEstimateA(t *testing.T) {
	curves := Curves(derkFiles(), testMaxDiss)
	knee := func(ep float64) float64 { return model.KneeDerk(trueBeta, ep) }
	kg1, a, ok := EstimateA(curves, trueKernel, trueKg2, knee, true)
	require.True(t, ok)
	assertRel(t, trueKg1, kg1, 1e-6, "kg1")
	assertRel(t, trueA, a, 1e-4, "a")

	curves = Curves(derkEFiles(nil, 10), testMaxDiss)
	kneeE := func(ep float64) float64 { return model.KneeDerkE(trueBeta, ep) }
	kg1, a, ok = EstimateA(curves, trueKernel, trueKg2, kneeE, false)
	require.True(t, ok)
	assertRel(t, trueKg1, kg1, 1e-9, "kg1")
	assert.Equal(t, 0.0, a)
}

func TestDefaultsWithoutData(t *testing.T) {
	tp := types.NewTriode()
	Triode(nil, tp, testMaxDiss)
	assert.Equal(t, types.Triode{Kernel: types.Kernel{Mu: types.DefaultMu, Ex: types.DefaultEx, Kp: types.DefaultKp, Kvb: types.DefaultKvb}, Kg1: types.DefaultKg1}, *tp)

	dp := types.NewDerk(true)
	Derk(nil, dp, testMaxDiss)
	assert.Equal(t, types.DerkDefaultAlphaS, dp.AlphaS)
	assert.Equal(t, types.DerkDefaultBeta, dp.Beta)
	assert.Equal(t, types.DefaultKg1, dp.Kg1)
	assert.Equal(t, types.DefaultKg2, dp.Kg2)
	assert.Equal(t, 0.0, dp.A)
	assert.Equal(t, types.SecondaryEmission{S: types.DefaultS, AlphaP: types.DefaultAlphaP, Lambda: types.DefaultLambda}, *dp.Secondary)

	ep := types.NewDerkE(false)
	DerkE(nil, ep, testMaxDiss)
	assert.Equal(t, types.DerkEDefaultAlphaS, ep.AlphaS)
	assert.Equal(t, types.DerkEDefaultBeta, ep.Beta)
	assert.True(t, ep.Valid())
}

// 估计前按屏压原地排序
func TestCurvesSortAndOffset(t *testing.T) {
	files := triodeFiles()
	files[0].EgOffset = -0.25
	rng := rand.New(rand.NewSource(3))
	pts := files[0].Series[0].Points
	rng.Shuffle(len(pts), func(i, j int) { pts[i], pts[j] = pts[j], pts[i] })

	curves := Curves(files, testMaxDiss)
	for k := 1; k < len(pts); k++ {
		assert.Less(t, pts[k-1].Ep, pts[k].Ep)
	}
	assert.Equal(t, -0.25, curves[0].Eg)
	assert.Equal(t, -0.25, curves[0].Points[0].Eg)
	// 输入点的栅压不变
	assert.Equal(t, 0.0, pts[0].Eg)

	// 耗散门限
	gated := Curves(files, 0.5)
	for _, c := range gated {
		for _, p := range c.Points {
			assert.LessOrEqual(t, p.Dissipation(), 0.5)
		}
	}
}

func TestFullPipelineValid(t *testing.T) {
	for _, tt := range []struct {
		files []*types.MeasurementFile
		p     types.Parameters
	}{
		{triodeFiles(), types.NewTriode()},
		{pentodeFiles(), types.NewPentode()},
		{derkFiles(), types.NewDerk(false)},
		{derkEFiles(nil, 10), types.NewDerkE(false)},
		{derkEFiles(nil, 10), types.NewDerkE(true)},
	} {
		Parameters(tt.files, tt.p, testMaxDiss)
		assert.True(t, tt.p.Valid(), "%s: %v", tt.p.Family(), types.Values(tt.p))
		e := objective.Error(tt.files, tt.p, testMaxDiss)
		assert.Less(t, e.RMSE, types.MaxError, tt.p.Family().String())
	}
}
