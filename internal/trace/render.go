package trace

import (
	"errors"
	"fmt"
	"image/color"
	"io"
	"path/filepath"

	"github.com/go-echarts/go-echarts/v2/charts"
	"github.com/go-echarts/go-echarts/v2/opts"
	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/vg"

	"github.com/banshee-data/greenwave/internal/security"
)

// RenderHTML writes an interactive chart of the recording to w.
func (r *Recorder) RenderHTML(w io.Writer, subtitle string) error {
	s := r.series()

	signal := make([]opts.LineData, len(s.xs))
	threshold := make([]opts.LineData, 0, 2)
	for i := range s.xs {
		signal[i] = opts.LineData{Value: []interface{}{s.xs[i], s.ys[i]}}
	}
	if n := len(s.xs); n > 0 {
		threshold = append(threshold,
			opts.LineData{Value: []interface{}{s.xs[0], r.threshold}},
			opts.LineData{Value: []interface{}{s.xs[n-1], r.threshold}})
	}
	onsets := make([]opts.ScatterData, len(s.onsetXs))
	for i, x := range s.onsetXs {
		onsets[i] = opts.ScatterData{Value: []interface{}{x, 100}, Name: s.onsetLabel[i]}
	}

	line := charts.NewLine()
	line.SetGlobalOptions(
		charts.WithInitializationOpts(opts.Initialization{PageTitle: "Calibration trace", Theme: "dark", Width: "1200px", Height: "500px"}),
		charts.WithTitleOpts(opts.Title{Title: "Green signal", Subtitle: subtitle}),
		charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true), Trigger: "axis"}),
		charts.WithXAxisOpts(opts.XAxis{Type: "value", Name: "t (s)", NameLocation: "middle", NameGap: 25}),
		charts.WithYAxisOpts(opts.YAxis{Type: "value", Min: 0, Max: 100, Name: "green %"}),
		charts.WithDataZoomOpts(opts.DataZoom{Type: "slider"}),
		charts.WithLegendOpts(opts.Legend{Show: opts.Bool(true)}),
	)
	line.AddSeries("green %", signal, charts.WithLineChartOpts(opts.LineChart{ShowSymbol: opts.Bool(false)}))
	line.AddSeries("threshold", threshold, charts.WithLineChartOpts(opts.LineChart{ShowSymbol: opts.Bool(false)}))

	scatter := charts.NewScatter()
	scatter.AddSeries("onsets", onsets, charts.WithScatterChartOpts(opts.ScatterChart{SymbolSize: 14}))
	line.Overlap(scatter)

	if err := line.Render(w); err != nil {
		return fmt.Errorf("render trace chart: %w", err)
	}
	return nil
}

// SavePNG writes a static plot of the recording to path, which must lie
// inside safeDir.
func (r *Recorder) SavePNG(path, safeDir string) error {
	if filepath.Ext(path) != ".png" {
		return fmt.Errorf("trace plot must be a .png file, got %q", path)
	}
	if err := security.ValidatePathWithinDirectory(path, safeDir); err != nil {
		return fmt.Errorf("invalid trace path: %w", err)
	}

	s := r.series()
	if len(s.xs) == 0 {
		return errors.New("trace is empty")
	}
	p := plot.New()
	p.Title.Text = "Calibration trace from " + s.start.Format("2006-01-02 15:04:05")
	p.X.Label.Text = "Time (s)"
	p.Y.Label.Text = "Green (%)"
	p.Y.Min, p.Y.Max = 0, 100

	pts := make(plotter.XYs, len(s.xs))
	for i := range s.xs {
		pts[i] = plotter.XY{X: s.xs[i], Y: s.ys[i]}
	}
	signal, err := plotter.NewLine(pts)
	if err != nil {
		return err
	}
	signal.Color = color.RGBA{R: 46, G: 160, B: 67, A: 255}
	signal.Width = vg.Points(1)
	p.Add(signal)
	p.Legend.Add("green %", signal)

	ref, err := plotter.NewLine(plotter.XYs{{X: s.xs[0], Y: r.threshold}, {X: s.xs[len(s.xs)-1], Y: r.threshold}})
	if err != nil {
		return err
	}
	ref.Color = color.RGBA{R: 200, G: 60, B: 60, A: 255}
	ref.Dashes = []vg.Length{vg.Points(4), vg.Points(3)}
	p.Add(ref)
	p.Legend.Add("threshold", ref)

	if len(s.onsetXs) > 0 {
		pts := make(plotter.XYs, len(s.onsetXs))
		for i, x := range s.onsetXs {
			pts[i] = plotter.XY{X: x, Y: 100}
		}
		marks, err := plotter.NewScatter(pts)
		if err != nil {
			return err
		}
		marks.Color = color.Black
		marks.Radius = vg.Points(4)
		p.Add(marks)
		p.Legend.Add("onsets", marks)
	}

	if err := p.Save(12*vg.Inch, 4*vg.Inch, path); err != nil {
		return fmt.Errorf("save trace plot: %w", err)
	}
	return nil
}
