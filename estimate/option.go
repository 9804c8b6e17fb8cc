package estimate

import "tubefit/types"

type settings struct {
	subFit types.FitConfiguration
}

// Option 估计选项
type Option func(*settings)

// WithSubFit 设置局部子拟合配置，零值字段沿用 DefaultSubFit
func WithSubFit(cfg types.FitConfiguration) Option {
	return func(s *settings) {
		if cfg.MaxIterations > 0 {
			s.subFit.MaxIterations = cfg.MaxIterations
		}
		if cfg.RelativeThreshold > 0 {
			s.subFit.RelativeThreshold = cfg.RelativeThreshold
		}
	}
}

func newSettings(opts []Option) settings {
	s := settings{subFit: types.DefaultSubFit()}
	for _, opt := range opts {
		opt(&s)
	}
	return s
}
