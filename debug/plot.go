package debug

import (
	"fmt"
	"image/color"
	"io"
	"sort"

	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/vg"
	"gonum.org/v1/plot/vg/draw"
	"gonum.org/v1/plot/vg/vgimg"

	"tubefit/model"
	"tubefit/types"
)

var plotColors = []color.Color{
	color.RGBA{R: 220, G: 40, B: 40, A: 255},
	color.RGBA{R: 30, G: 120, B: 200, A: 255},
	color.RGBA{R: 40, G: 160, B: 60, A: 255},
	color.RGBA{R: 255, G: 140, B: 0, A: 255},
	color.RGBA{R: 128, G: 0, B: 128, A: 255},
	color.RGBA{G: 128, B: 128, A: 255},
}

// sweep 返回测量类型的扫描自变量
func sweep(t types.MeasurementType) (label string, x func(p types.MeasurementPoint, eg float64) float64) {
	switch {
	case t.EpIsSwept():
		return "Ep (V)", func(p types.MeasurementPoint, _ float64) float64 { return p.Ep }
	case t == types.TypeEsSweep:
		return "Es (V)", func(p types.MeasurementPoint, _ float64) float64 { return p.Es }
	default:
		return "Eg (V)", func(_ types.MeasurementPoint, eg float64) float64 { return eg }
	}
}

// PlotCurves 绘制测量值（散点）与模型值（折线）
// 参数:
//
//	w - PNG 输出
//	files - 测量文件，每个文件一幅图纵向排列
//	p - 拟合参数，模型曲线在测量点坐标处求值
//	maxDissipation - 超出门限的点不绘制
func PlotCurves(w io.Writer, files []*types.MeasurementFile, p types.Parameters, maxDissipation float64) error {
	if len(files) == 0 {
		return fmt.Errorf("plot curves: no measurement files")
	}
	plots := make([]*plot.Plot, 0, len(files))
	for _, f := range files {
		pl, err := plotFile(f, p, maxDissipation)
		if err != nil {
			return fmt.Errorf("plot %s: %w", f.Name, err)
		}
		plots = append(plots, pl)
	}

	const width, rowHeight = 8 * vg.Inch, 5 * vg.Inch
	img := vgimg.New(width, rowHeight*vg.Length(len(plots)))
	table := make([][]*plot.Plot, len(plots))
	for i, pl := range plots {
		table[i] = []*plot.Plot{pl}
	}
	tiles := draw.Tiles{Rows: len(plots), Cols: 1, PadY: vg.Points(10)}
	canvases := plot.Align(table, tiles, draw.New(img))
	for i := range table {
		table[i][0].Draw(canvases[i][0])
	}
	_, err := vgimg.PngCanvas{Canvas: img}.WriteTo(w)
	return err
}

// plotFile 单个测量文件的曲线图
func plotFile(f *types.MeasurementFile, p types.Parameters, maxDissipation float64) (*plot.Plot, error) {
	label, xOf := sweep(f.Type)
	screen := f.Type.HasScreen() && model.HasScreen(p.Family())

	pl := plot.New()
	pl.Title.Text = fmt.Sprintf("%s (%s, %s)", f.Name, f.Type, p.Family())
	pl.X.Label.Text = label
	pl.Y.Label.Text = "I (mA)"
	pl.Add(plotter.NewGrid())
	pl.Legend.Top = true
	pl.Legend.XOffs = vg.Points(-10)

	for i, s := range f.Series {
		var measured, modeled, measuredS, modeledS plotter.XYs
		for _, pt := range s.Points {
			if !pt.Within(maxDissipation) {
				continue
			}
			eg := f.Grid(pt)
			x := xOf(pt, eg)
			ip, is := model.Eval(p, pt.Ep, eg, pt.Es)
			measured = append(measured, plotter.XY{X: x, Y: pt.Ip})
			modeled = append(modeled, plotter.XY{X: x, Y: ip})
			if screen {
				measuredS = append(measuredS, plotter.XY{X: x, Y: pt.Is})
				modeledS = append(modeledS, plotter.XY{X: x, Y: is})
			}
		}
		if len(measured) == 0 {
			continue
		}
		c := plotColors[i%len(plotColors)]
		name := fmt.Sprintf("Eg=%gV", s.Eg+f.EgOffset)
		if err := addSeries(pl, name, c, measured, modeled, nil); err != nil {
			return nil, err
		}
		if screen {
			dash := []vg.Length{vg.Points(4), vg.Points(3)}
			if err := addSeries(pl, "", c, measuredS, modeledS, dash); err != nil {
				return nil, err
			}
		}
	}
	return pl, nil
}

// addSeries 添加一组测量散点与模型折线，name 为空时不加入图例
func addSeries(pl *plot.Plot, name string, c color.Color, measured, modeled plotter.XYs, dash []vg.Length) error {
	sort.Sort(byX(measured))
	sort.Sort(byX(modeled))
	sc, err := plotter.NewScatter(measured)
	if err != nil {
		return err
	}
	sc.GlyphStyle.Color = c
	sc.GlyphStyle.Radius = vg.Points(2)
	if dash != nil {
		sc.GlyphStyle.Shape = draw.TriangleGlyph{}
	} else {
		sc.GlyphStyle.Shape = draw.CircleGlyph{}
	}
	line, err := plotter.NewLine(modeled)
	if err != nil {
		return err
	}
	line.Color = c
	line.LineStyle.Width = vg.Points(1.2)
	line.LineStyle.DashArray = dash
	pl.Add(sc, line)
	if name != "" {
		pl.Legend.Add(name, sc, line)
	}
	return nil
}

type byX plotter.XYs

func (s byX) Len() int           { return len(s) }
func (s byX) Less(i, j int) bool { return s[i].X < s[j].X }
func (s byX) Swap(i, j int)      { s[i], s[j] = s[j], s[i] }
