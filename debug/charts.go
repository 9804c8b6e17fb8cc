package debug

import (
	"fmt"
	"io"
	"math"
	"net/http"

	"github.com/go-echarts/go-echarts/v2/charts"
	"github.com/go-echarts/go-echarts/v2/components"
	"github.com/go-echarts/go-echarts/v2/opts"
	"github.com/go-echarts/go-echarts/v2/types"
	"go.uber.org/zap"

	tubetypes "tubefit/types"
)

// Charts 轨迹曲线绘制
type Charts struct {
	Record
	Log *zap.Logger
}

func newLine(title, subtitle string) *charts.Line {
	line := charts.NewLine()
	line.SetGlobalOptions(
		charts.WithInitializationOpts(opts.Initialization{
			Theme: types.ThemeWesteros,
		}),
		charts.WithTitleOpts(opts.Title{
			Title:    title,
			Subtitle: subtitle,
		}),
		charts.WithLegendOpts(opts.Legend{
			Type:   "scroll",
			Orient: "vertical",
			Right:  "10",
			Top:    "20",
			Bottom: "20",
		}),
		charts.WithTooltipOpts(opts.Tooltip{Trigger: "axis"}),
		charts.WithXAxisOpts(opts.XAxis{
			Name:        "evaluation",
			SplitNumber: 20,
		}),
		charts.WithYAxisOpts(opts.YAxis{
			Scale: opts.Bool(true),
		}),
		charts.WithDataZoomOpts(opts.DataZoom{
			Type:       "inside",
			Start:      0,
			End:        100,
			XAxisIndex: []int{0},
		}),
		charts.WithAnimation(false),
	)
	return line
}

// lineData 非有限值置空，避免页面脚本解析失败
func lineData(values []float64) []opts.LineData {
	items := make([]opts.LineData, len(values))
	for i, v := range values {
		if math.IsNaN(v) || math.IsInf(v, 0) || v >= tubetypes.MaxError {
			items[i].Value = "-"
			continue
		}
		items[i].Value = v
	}
	return items
}

// Render 输出 HTML 页面: 目标函数曲线与各参数的相对变化曲线
func (c *Charts) Render(w io.Writer) error {
	if c.Len() == 0 {
		return fmt.Errorf("render %s: empty record", c.Tube)
	}
	subtitle := fmt.Sprintf("%s (%s)", c.Tube, c.Family)

	lineE := newLine("目标函数", subtitle)
	lineE.SetXAxis(c.Evaluation)
	lineE.AddSeries("rmse", lineData(c.Value),
		charts.WithLineChartOpts(opts.LineChart{ShowSymbol: opts.Bool(false)}))

	// 参数以最好点为基准归一化，便于不同量级同图显示
	lineP := newLine("参数轨迹", subtitle+" x/x*")
	lineP.SetXAxis(c.Evaluation)
	best := c.Params[c.Best()]
	for j, name := range c.Names {
		ref := best[j]
		values := make([]float64, c.Len())
		for i, x := range c.Params {
			if ref == 0 {
				values[i] = x[j]
			} else {
				values[i] = x[j] / ref
			}
		}
		lineP.AddSeries(name, lineData(values),
			charts.WithLineChartOpts(opts.LineChart{ShowSymbol: opts.Bool(false)}))
	}

	page := components.NewPage()
	page.PageTitle = subtitle
	page.AddCharts(lineE, lineP)
	return page.Render(w)
}

// Handler 发布到网页面
func (c *Charts) Handler(w http.ResponseWriter, _ *http.Request) {
	if err := c.Render(w); err != nil {
		c.Error(err)
		http.Error(w, err.Error(), http.StatusInternalServerError)
	}
}

func (c *Charts) Error(err error) {
	log := c.Log
	if log == nil {
		log = zap.NewNop()
	}
	log.Error("render charts", zap.String("tube", c.Tube), zap.Error(err))
}
