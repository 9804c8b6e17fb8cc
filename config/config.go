package config

import (
	"errors"
	"fmt"
	"strings"

	flag "github.com/spf13/pflag"
	"github.com/spf13/viper"
	"go.uber.org/zap/zapcore"

	"tubefit/types"
)

// EnvPrefix 环境变量前缀，键中的 "." 替换为 "_"，如 TUBEFIT_TOP_LEVEL_MAX_ITERATIONS
const EnvPrefix = "TUBEFIT"

// Config 拟合运行配置
type Config struct {
	SubFit         types.FitConfiguration `mapstructure:"sub_fit"`   // 估计器内部子拟合
	TopLevel       types.FitConfiguration `mapstructure:"top_level"` // 顶层精修
	Trace          bool                   `mapstructure:"trace"`     // 记录顶层精修轨迹
	LogLevel       string                 `mapstructure:"log_level"`
	MaxDissipation float64                `mapstructure:"max_dissipation"` // 屏耗门限 (W)
	Concurrency    int                    `mapstructure:"concurrency"`     // FitAll 并发数
}

// Default 默认配置
func Default() *Config {
	return &Config{
		SubFit:         types.DefaultSubFit(),
		TopLevel:       types.DefaultTopLevel(),
		LogLevel:       "info",
		MaxDissipation: 1e6,
		Concurrency:    4,
	}
}

// flagBindings viper 键到 pflag 名称的映射
var flagBindings = map[string]string{
	"sub_fit.max_iterations":       "sub-max-iterations",
	"sub_fit.relative_threshold":   "sub-threshold",
	"top_level.max_iterations":     "max-iterations",
	"top_level.relative_threshold": "threshold",
	"trace":                        "trace-enabled",
	"log_level":                    "log-level",
	"max_dissipation":              "max-dissipation",
	"concurrency":                  "concurrency",
}

// Flags 在 fs 上注册配置相关的命令行参数
func Flags(fs *flag.FlagSet) {
	d := Default()
	fs.Int("sub-max-iterations", d.SubFit.MaxIterations, "max iterations of estimator sub-fits")
	fs.Float64("sub-threshold", d.SubFit.RelativeThreshold, "relative threshold of estimator sub-fits")
	fs.Int("max-iterations", d.TopLevel.MaxIterations, "max iterations of the top-level refinement")
	fs.Float64("threshold", d.TopLevel.RelativeThreshold, "relative threshold of the top-level refinement")
	fs.Bool("trace-enabled", d.Trace, "record the objective trace of the top-level refinement")
	fs.String("log-level", d.LogLevel, "log level (debug, info, warn, error)")
	fs.Float64("max-dissipation", d.MaxDissipation, "plate dissipation gate in watts")
	fs.Int("concurrency", d.Concurrency, "number of fits run concurrently")
}

// Load 加载并校验配置
// 优先级: 命令行 > 环境变量 > 配置文件 > 默认值
// path 为空时不读配置文件，fs 可以为 nil
func Load(path string, fs *flag.FlagSet) (*Config, error) {
	cfg, err := load(path, fs)
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	if err := Validate(cfg); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}
	return cfg, nil
}

func load(path string, fs *flag.FlagSet) (*Config, error) {
	v := viper.New()

	d := Default()
	v.SetDefault("sub_fit.max_iterations", d.SubFit.MaxIterations)
	v.SetDefault("sub_fit.relative_threshold", d.SubFit.RelativeThreshold)
	v.SetDefault("sub_fit.trace", false)
	v.SetDefault("top_level.max_iterations", d.TopLevel.MaxIterations)
	v.SetDefault("top_level.relative_threshold", d.TopLevel.RelativeThreshold)
	v.SetDefault("top_level.trace", false)
	v.SetDefault("trace", d.Trace)
	v.SetDefault("log_level", d.LogLevel)
	v.SetDefault("max_dissipation", d.MaxDissipation)
	v.SetDefault("concurrency", d.Concurrency)

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read %s: %w", path, err)
		}
	}

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if fs != nil {
		for key, name := range flagBindings {
			if f := fs.Lookup(name); f != nil {
				if err := v.BindPFlag(key, f); err != nil {
					return nil, err
				}
			}
		}
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, err
	}
	cfg.TopLevel.TraceEnabled = cfg.TopLevel.TraceEnabled || cfg.Trace
	return cfg, nil
}

// Validate 校验配置（遇到第一个错误即返回）
func Validate(cfg *Config) error {
	if cfg == nil {
		return errors.New("config is nil")
	}
	for name, fc := range map[string]types.FitConfiguration{"sub_fit": cfg.SubFit, "top_level": cfg.TopLevel} {
		if fc.MaxIterations <= 0 {
			return fmt.Errorf("%s.max_iterations must be positive, got %d", name, fc.MaxIterations)
		}
		if !(fc.RelativeThreshold > 0 && fc.RelativeThreshold < 1) {
			return fmt.Errorf("%s.relative_threshold must be in (0, 1), got %g", name, fc.RelativeThreshold)
		}
	}
	if !(cfg.MaxDissipation > 0) {
		return fmt.Errorf("max_dissipation must be positive, got %g", cfg.MaxDissipation)
	}
	if cfg.Concurrency < 1 {
		return fmt.Errorf("concurrency must be at least 1, got %d", cfg.Concurrency)
	}
	if _, err := zapcore.ParseLevel(cfg.LogLevel); err != nil {
		return fmt.Errorf("log_level: %w", err)
	}
	return nil
}
