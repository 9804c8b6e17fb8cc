package tubefit

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"

	"tubefit/config"
	"tubefit/logging"
	"tubefit/model"
	"tubefit/types"
)

var testTriode = types.Triode{Kernel: types.Kernel{Mu: 20, Ex: 1.35, Kp: 500, Kvb: 300}, Kg1: 1200}

func writeMeasurement(t *testing.T, dir string) string {
	t.Helper()
	f := types.MeasurementFile{Name: "plate", Type: types.TypeEpSweep}
	for _, eg := range []float64{0, -1, -2, -3} {
		s := types.MeasurementSeries{Eg: eg}
		for ep := 20.0; ep <= 300; ep += 20 {
			s.Points = append(s.Points, types.MeasurementPoint{Ep: ep, Eg: eg, Ip: model.EvalTriode(&testTriode, ep, eg)})
		}
		f.Series = append(f.Series, s)
	}
	data, err := yaml.Marshal(&f)
	require.NoError(t, err)
	path := filepath.Join(dir, "plate.yaml")
	require.NoError(t, os.WriteFile(path, data, 0o644))
	return path
}

func writeJob(t *testing.T, body string) string {
	t.Helper()
	dir := t.TempDir()
	writeMeasurement(t, dir)
	path := filepath.Join(dir, "job.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

const triodeJob = `
tube: 12AX7
family: triode
params:
  kvb: 300
measurements:
  - plate.yaml
thd:
  ep: 250
  bias: -1.5
  swing: 0.5
`

func TestLoadJob(t *testing.T) {
	job, err := LoadJob(writeJob(t, triodeJob))
	require.NoError(t, err)
	assert.Equal(t, "12AX7", job.Tube)
	require.Len(t, job.Files, 1)
	assert.Equal(t, types.TypeEpSweep, job.Files[0].Type)
	assert.Len(t, job.Files[0].Series, 4)
	require.NotNil(t, job.THD)
	assert.Equal(t, -1.5, job.THD.Bias)

	p, err := job.Parameters()
	require.NoError(t, err)
	assert.Equal(t, types.FamilyTriode, p.Family())
	kvb, _ := p.Get("kvb")
	assert.Equal(t, 300.0, kvb)
}

func TestLoadJobErrors(t *testing.T) {
	_, err := LoadJob(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)

	_, err = LoadJob(writeJob(t, "tube: x\nmeasurements: [nope.yaml]\n"))
	assert.Error(t, err)

	_, err = LoadJob(writeJob(t, "tube: x\nfiles:\n  - name: a\n    type: Bogus\n"))
	assert.Error(t, err)

	_, err = LoadJob(writeJob(t, "tube: x\nfiles:\n  - name: a\n"))
	assert.ErrorContains(t, err, "缺少测量类型")
}

func TestJobParametersErrors(t *testing.T) {
	_, err := (&Job{Family: "tetrode"}).Parameters()
	assert.Error(t, err)
	_, err = (&Job{Family: "triode", Params: map[string]float64{"kg2": 1}}).Parameters()
	assert.Error(t, err)
}

func TestJobRequestCarriesConfig(t *testing.T) {
	job, err := LoadJob(writeJob(t, triodeJob))
	require.NoError(t, err)
	cfg := config.Default()
	cfg.SubFit = types.FitConfiguration{MaxIterations: 7, RelativeThreshold: 1e-2}
	cfg.MaxDissipation = 2.5

	req, err := job.Request(cfg)
	require.NoError(t, err)
	assert.Equal(t, cfg.SubFit, req.SubFit)
	assert.Equal(t, cfg.TopLevel, req.Config)
	assert.Equal(t, 2.5, req.MaxDissipation)
}

func TestInlineScreenFiles(t *testing.T) {
	job, err := LoadJob(writeJob(t, `
tube: EL84
family: derk-e
secondary: true
files:
  - name: plate
    type: EpSweepFixedEs
    series:
      - eg: -5
        points:
          - {ep: 100, ip: 20, es: 250, is: 5}
          - {ep: 200, ip: 25, es: 250, is: 3}
`))
	require.NoError(t, err)
	pts := job.Files[0].Series[0].Points
	assert.True(t, pts[0].Screen)
	assert.Equal(t, 1, pts[1].Index)

	p, err := job.Parameters()
	require.NoError(t, err)
	assert.NotNil(t, p.(*types.DerkE).Secondary)
}

func TestRun(t *testing.T) {
	job, err := LoadJob(writeJob(t, triodeJob))
	require.NoError(t, err)
	cfg := config.Default()

	results, err := Run(context.Background(), []*Job{job}, cfg, logging.NewTestLogger(t))
	require.NoError(t, err)
	require.Len(t, results, 1)
	res := results[0]
	assert.True(t, res.Params.Valid())
	assert.LessOrEqual(t, res.Error.RMSE, res.InitialError.RMSE)
	// 预设参数保留在估计结果中
	kvb, _ := res.Initial.Get("kvb")
	assert.Equal(t, 300.0, kvb)

	thd, err := job.Distortion(res)
	require.NoError(t, err)
	assert.Greater(t, thd, 0.0)
	assert.Less(t, thd, 100.0)

	job.THD = nil
	_, err = job.Distortion(res)
	assert.Error(t, err)
}
