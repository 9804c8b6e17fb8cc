package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	"tubefit"
	"tubefit/config"
	"tubefit/debug"
	"tubefit/fit"
	"tubefit/logging"
	"tubefit/types"
)

var (
	configPath string
	plotPath   string
	tracePath  string
	recordPath string
)

// report 拟合结果输出格式
type report struct {
	Tube        string             `yaml:"tube"`
	Family      string             `yaml:"family"`
	Converged   bool               `yaml:"converged"`
	Iterations  int                `yaml:"iterations"`
	Evaluations int                `yaml:"evaluations"`
	Points      int                `yaml:"points"`
	InitialRMSE float64            `yaml:"initialRmse"`
	RMSE        float64            `yaml:"rmse"`
	Initial     map[string]float64 `yaml:"initial"`
	Params      map[string]float64 `yaml:"params"`
	THD         *float64           `yaml:"thd,omitempty"`
}

func newReport(res *fit.Result) *report {
	return &report{
		Tube:        res.Tube,
		Family:      res.Params.Family().String(),
		Converged:   res.Optimization.Converged,
		Iterations:  res.Optimization.Iterations,
		Evaluations: res.Optimization.Evaluations,
		Points:      res.Error.N,
		InitialRMSE: res.InitialError.RMSE,
		RMSE:        res.Error.RMSE,
		Initial:     types.Values(res.Initial),
		Params:      types.Values(res.Params),
	}
}

// setup 加载配置与日志，返回随信号取消的上下文
func setup(cmd *cobra.Command) (context.Context, context.CancelFunc, *config.Config, *zap.Logger, error) {
	cfg, err := config.Load(configPath, cmd.Flags())
	if err != nil {
		return nil, nil, nil, nil, err
	}
	log, err := logging.New(cfg.LogLevel)
	if err != nil {
		return nil, nil, nil, nil, err
	}
	ctx, cancel := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	return logging.IntoContext(ctx, log), cancel, cfg, log, nil
}

func loadJobs(paths []string) ([]*tubefit.Job, error) {
	jobs := make([]*tubefit.Job, 0, len(paths))
	for _, p := range paths {
		job, err := tubefit.LoadJob(p)
		if err != nil {
			return nil, err
		}
		jobs = append(jobs, job)
	}
	return jobs, nil
}

// outputPath 多个任务时在扩展名前加管型名称
func outputPath(path string, job *tubefit.Job, n int) string {
	if n <= 1 {
		return path
	}
	ext := filepath.Ext(path)
	return strings.TrimSuffix(path, ext) + "-" + job.Tube + ext
}

func writeFile(path string, render func(w io.Writer) error) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	if err := render(f); err != nil {
		f.Close()
		return fmt.Errorf("write %s: %w", path, err)
	}
	return f.Close()
}

// run 执行任务并输出诊断文件
func run(cmd *cobra.Command, args []string, withTHD bool) error {
	ctx, cancel, cfg, log, err := setup(cmd)
	if err != nil {
		return err
	}
	defer cancel()
	defer log.Sync()
	jobs, err := loadJobs(args)
	if err != nil {
		return err
	}
	if tracePath != "" || recordPath != "" {
		cfg.TopLevel.TraceEnabled = true
	}
	results, err := tubefit.Run(ctx, jobs, cfg, log)
	if err != nil {
		return err
	}

	reports := make([]*report, len(results))
	for i, res := range results {
		job := jobs[i]
		reports[i] = newReport(res)
		if withTHD {
			thd, err := job.Distortion(res)
			if err != nil {
				return err
			}
			reports[i].THD = &thd
		}
		if plotPath != "" {
			path := outputPath(plotPath, job, len(jobs))
			err := writeFile(path, func(w io.Writer) error {
				return debug.PlotCurves(w, job.Files, res.Params, job.Dissipation(cfg))
			})
			if err != nil {
				return err
			}
			log.Info("curves written", zap.String("path", path))
		}
		record := debug.NewRecord(res.Tube, res.Params, res.Optimization.Trace)
		if tracePath != "" {
			path := outputPath(tracePath, job, len(jobs))
			charts := &debug.Charts{Record: *record, Log: log}
			if err := writeFile(path, charts.Render); err != nil {
				return err
			}
			log.Info("trace charts written", zap.String("path", path))
		}
		if recordPath != "" {
			if err := writeFile(outputPath(recordPath, job, len(jobs)), record.Render); err != nil {
				return err
			}
		}
	}
	enc := yaml.NewEncoder(cmd.OutOrStdout())
	defer enc.Close()
	for _, r := range reports {
		if err := enc.Encode(r); err != nil {
			return err
		}
	}
	return nil
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "tubefit",
		Short:         "Electron tube model parameter estimation",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVar(&configPath, "config", "", "configuration file path")
	config.Flags(root.PersistentFlags())

	fitCmd := &cobra.Command{
		Use:   "fit JOB.yaml...",
		Short: "Estimate and refine model parameters",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(cmd, args, false)
		},
	}
	fitCmd.Flags().StringVar(&plotPath, "plot", "", "write measured vs modeled curves as PNG")
	fitCmd.Flags().StringVar(&tracePath, "trace", "", "write the refinement trace as an HTML page")
	fitCmd.Flags().StringVar(&recordPath, "record", "", "write the refinement trace as JSON")

	thdCmd := &cobra.Command{
		Use:   "thd JOB.yaml...",
		Short: "Fit and report total harmonic distortion at the job operating point",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(cmd, args, true)
		},
	}

	root.AddCommand(fitCmd, thdCmd)
	return root
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
