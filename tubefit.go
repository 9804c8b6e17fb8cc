package tubefit

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	"tubefit/config"
	"tubefit/distortion"
	"tubefit/fit"
	"tubefit/types"
)

// Job 拟合任务文档
type Job struct {
	Tube           string                     `yaml:"tube"`
	Family         string                     `yaml:"family"`
	Secondary      bool                       `yaml:"secondary"`      // 仅 Derk 族有效
	MaxDissipation float64                    `yaml:"maxDissipation"` // 为零时使用配置值
	Params         map[string]float64         `yaml:"params"`         // 预设参数，不参与估计
	Files          []*types.MeasurementFile   `yaml:"files"`          // 内联测量数据
	Measurements   []string                   `yaml:"measurements"`   // 测量文件路径，相对任务文件
	THD            *distortion.OperatingPoint `yaml:"thd"`            // 谐波失真工作点

	dir string
}

// LoadJob 加载 yaml 格式任务
func LoadJob(filename string) (*Job, error) {
	data, err := os.ReadFile(filename)
	if err != nil {
		return nil, err
	}
	job := &Job{dir: filepath.Dir(filename)}
	if err := yaml.Unmarshal(data, job); err != nil {
		return nil, fmt.Errorf("解析任务 %s: %w", filename, err)
	}
	for i, f := range job.Files {
		if err := normalize(f); err != nil {
			return nil, fmt.Errorf("任务 %s 第 %d 个测量文件: %w", filename, i+1, err)
		}
	}
	for _, m := range job.Measurements {
		if !filepath.IsAbs(m) {
			m = filepath.Join(job.dir, m)
		}
		f, err := LoadMeasurement(m)
		if err != nil {
			return nil, err
		}
		job.Files = append(job.Files, f)
	}
	if job.Tube == "" {
		job.Tube = filepath.Base(filename)
	}
	return job, nil
}

// LoadMeasurement 加载 yaml 格式测量文件
func LoadMeasurement(filename string) (*types.MeasurementFile, error) {
	data, err := os.ReadFile(filename)
	if err != nil {
		return nil, err
	}
	f := &types.MeasurementFile{}
	if err := yaml.Unmarshal(data, f); err != nil {
		return nil, fmt.Errorf("解析测量文件 %s: %w", filename, err)
	}
	if f.Name == "" {
		f.Name = filepath.Base(filename)
	}
	if err := normalize(f); err != nil {
		return nil, fmt.Errorf("测量文件 %s: %w", filename, err)
	}
	return f, nil
}

// normalize 校验测量类型，标记带帘栅数据的点并编号
func normalize(f *types.MeasurementFile) error {
	if f == nil {
		return fmt.Errorf("空测量文件")
	}
	if f.Type == types.TypeUnknown {
		return fmt.Errorf("缺少测量类型")
	}
	for i := range f.Series {
		s := &f.Series[i]
		for j := range s.Points {
			s.Points[j].Screen = f.Type.HasScreen()
			if s.Points[j].Index == 0 {
				s.Points[j].Index = j
			}
		}
	}
	return nil
}

// Parameters 按任务创建参数集并写入预设值
func (j *Job) Parameters() (types.Parameters, error) {
	family, err := types.ParseFamily(j.Family)
	if err != nil {
		return nil, err
	}
	p, err := types.NewParameters(family, j.Secondary)
	if err != nil {
		return nil, err
	}
	for name, v := range j.Params {
		if err := p.Set(name, v); err != nil {
			return nil, err
		}
	}
	return p, nil
}

// Dissipation 任务的屏耗门限，未设置时使用配置值
func (j *Job) Dissipation(cfg *config.Config) float64 {
	if j.MaxDissipation == 0 {
		return cfg.MaxDissipation
	}
	return j.MaxDissipation
}

// Request 生成拟合请求
func (j *Job) Request(cfg *config.Config) (fit.Request, error) {
	p, err := j.Parameters()
	if err != nil {
		return fit.Request{}, fmt.Errorf("任务 %s: %w", j.Tube, err)
	}
	return fit.Request{
		Tube:           j.Tube,
		Files:          j.Files,
		Params:         p,
		MaxDissipation: j.Dissipation(cfg),
		Config:         cfg.TopLevel,
		SubFit:         cfg.SubFit,
	}, nil
}

// Run 并发执行多个任务，结果与任务一一对应
func Run(ctx context.Context, jobs []*Job, cfg *config.Config, log *zap.Logger) ([]*fit.Result, error) {
	reqs := make([]fit.Request, len(jobs))
	for i, j := range jobs {
		req, err := j.Request(cfg)
		if err != nil {
			return nil, err
		}
		reqs[i] = req
	}
	return fit.NewRunner(log, cfg.Concurrency).FitAll(ctx, reqs)
}

// Distortion 计算拟合结果在任务工作点的总谐波失真 (%)
func (j *Job) Distortion(res *fit.Result) (float64, error) {
	if j.THD == nil {
		return 0, fmt.Errorf("任务 %s: 未设置谐波失真工作点", j.Tube)
	}
	return distortion.TotalHarmonicDistortion(distortion.Transfer(res.Params, *j.THD)), nil
}
