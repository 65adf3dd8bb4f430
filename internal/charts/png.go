package charts

import (
	"bytes"
	"fmt"
	"image"
	"image/png"
	"math"
	"os"
	"time"

	"github.com/wcharczuk/go-chart/v2"
	"github.com/wcharczuk/go-chart/v2/drawing"
	xdraw "golang.org/x/image/draw"

	"solarimager/internal/models"
	"solarimager/internal/solarwind"
)

const (
	panelWidth  = 900
	panelHeight = 320
)

var (
	seriesColors = []drawing.Color{
		{R: 220, G: 50, B: 47, A: 255},
		{R: 38, G: 139, B: 210, A: 255},
		{R: 181, G: 137, B: 0, A: 255},
		{R: 42, G: 161, B: 152, A: 255},
		{R: 211, G: 54, B: 130, A: 255},
	}
	stormColors = map[models.StormLevel]drawing.Color{
		models.StormNormal: {R: 0, G: 170, B: 0, A: 255},
		models.StormMinor:  {R: 230, G: 160, B: 0, A: 255},
		models.StormMajor:  {R: 200, G: 0, B: 0, A: 255},
	}
	fitColor = drawing.Color{R: 0, G: 0, B: 0, A: 220}
)

// PNGBackend draws static charts with go-chart. Each analysis is a vertical
// stack of panels, one per parameter, in a single image.
type PNGBackend struct{}

// NewPNGBackend creates the static image backend.
func NewPNGBackend() *PNGBackend { return &PNGBackend{} }

// Name implements Backend.
func (b *PNGBackend) Name() string { return BackendPNG }

// Supports implements Backend. A correlation matrix needs a heatmap, which
// go-chart does not draw.
func (b *PNGBackend) Supports(t models.AnalysisType) bool {
	switch t {
	case models.AnalysisTimeSeries, models.AnalysisDistribution, models.AnalysisStatistical, models.AnalysisRegression:
		return true
	}
	return false
}

// Render implements Backend.
func (b *PNGBackend) Render(ds *solarwind.Dataset, t models.AnalysisType, outDir string) (string, error) {
	if !b.Supports(t) {
		return "", fmt.Errorf("%w: png cannot draw %s", ErrUnsupported, t)
	}
	if err := checkDataset(ds); err != nil {
		return "", err
	}

	var panels [][]byte
	var err error
	switch t {
	case models.AnalysisTimeSeries:
		panels, err = b.timeSeries(ds)
	case models.AnalysisDistribution:
		panels, err = b.distribution(ds)
	case models.AnalysisStatistical:
		panels, err = b.statistical(ds)
	case models.AnalysisRegression:
		panels, err = b.regression(ds)
	}
	if err != nil {
		return "", err
	}

	path, err := outputPath(outDir, ds, t, "png")
	if err != nil {
		return "", err
	}
	if err := stackPanels(panels, path); err != nil {
		return "", err
	}
	return path, nil
}

func (b *PNGBackend) timeSeries(ds *solarwind.Dataset) ([][]byte, error) {
	times := make([]time.Time, len(ds.Samples))
	for i, s := range ds.Samples {
		times[i] = s.Time
	}
	format := "15:04"
	if ds.Range.Duration() > 24*time.Hour {
		format = "01-02 15:04"
	}

	var panels [][]byte
	for i, p := range solarwind.Params {
		ys := ds.Column(p)
		graph := chart.Chart{
			Title:      panelTitle(ds, models.AnalysisTimeSeries, i, fmt.Sprintf("%s (%s)", p.Label, p.Unit)),
			TitleStyle: chart.Style{FontSize: 11},
			Width:      panelWidth,
			Height:     panelHeight,
			Background: chart.Style{Padding: chart.Box{Top: 40, Left: 20, Right: 20, Bottom: 10}},
			XAxis: chart.XAxis{
				Name:           "Time (UTC)",
				ValueFormatter: chart.TimeValueFormatterWithFormat(format),
			},
			YAxis: chart.YAxis{
				Name:  p.Unit,
				Range: paddedRange(ys),
			},
			Series: []chart.Series{
				chart.TimeSeries{
					Name: p.Label,
					Style: chart.Style{
						StrokeColor: seriesColors[i%len(seriesColors)],
						StrokeWidth: 2,
					},
					XValues: times,
					YValues: ys,
				},
			},
		}
		if p.Key == "bz" {
			graph.Series = append(graph.Series, thresholdLine(times, solarwind.MinorStormBz, "Minor storm"),
				thresholdLine(times, solarwind.MajorStormBz, "Major storm"))
			graph.YAxis.Range = paddedRange(append(append([]float64(nil), ys...), solarwind.MajorStormBz, 0))
		}
		buf, err := renderChart(graph)
		if err != nil {
			return nil, fmt.Errorf("failed to render %s time series: %w", p.Key, err)
		}
		panels = append(panels, buf)
	}
	return panels, nil
}

func thresholdLine(times []time.Time, y float64, name string) chart.TimeSeries {
	first, last := times[0], times[len(times)-1]
	return chart.TimeSeries{
		Name: name,
		Style: chart.Style{
			StrokeColor:     drawing.Color{R: 255, G: 0, B: 0, A: 160},
			StrokeWidth:     1,
			StrokeDashArray: []float64{5, 5},
		},
		XValues: []time.Time{first, last},
		YValues: []float64{y, y},
	}
}

func (b *PNGBackend) distribution(ds *solarwind.Dataset) ([][]byte, error) {
	dist := ds.Distribution(solarwind.DefaultBins)
	var panels [][]byte
	for i, h := range dist.Histograms {
		p, _ := solarwind.ParamByKey(h.Param)
		bars := make([]chart.Value, len(h.Counts))
		maxCount := 0
		for j, c := range h.Counts {
			bars[j] = chart.Value{
				Value: float64(c),
				Label: fmt.Sprintf("%.3g", (h.Edges[j]+h.Edges[j+1])/2),
				Style: chart.Style{
					FillColor:   seriesColors[i%len(seriesColors)],
					StrokeColor: seriesColors[i%len(seriesColors)],
				},
			}
			if c > maxCount {
				maxCount = c
			}
		}
		graph := barChart(panelTitle(ds, models.AnalysisDistribution, i, fmt.Sprintf("%s (%s)", p.Label, p.Unit)), bars)
		graph.YAxis.Range = &chart.ContinuousRange{Min: 0, Max: float64(maxCount + 1)}
		buf, err := renderBarChart(graph)
		if err != nil {
			return nil, fmt.Errorf("failed to render %s histogram: %w", h.Param, err)
		}
		panels = append(panels, buf)
	}

	bars := make([]chart.Value, 0, len(models.StormLevels))
	maxCount := 0
	for _, l := range models.StormLevels {
		c := dist.StormCounts[l]
		bars = append(bars, chart.Value{
			Value: float64(c),
			Label: string(l),
			Style: chart.Style{FillColor: stormColors[l], StrokeColor: stormColors[l]},
		})
		if c > maxCount {
			maxCount = c
		}
	}
	graph := barChart("Storm level counts", bars)
	graph.YAxis.Range = &chart.ContinuousRange{Min: 0, Max: float64(maxCount + 1)}
	buf, err := renderBarChart(graph)
	if err != nil {
		return nil, fmt.Errorf("failed to render storm counts: %w", err)
	}
	return append(panels, buf), nil
}

// statistical draws a five-number summary per parameter with the mean.
func (b *PNGBackend) statistical(ds *solarwind.Dataset) ([][]byte, error) {
	stats := ds.Statistics()
	var panels [][]byte
	for i, p := range solarwind.Params {
		col := ds.Column(p)
		st := stats[i]
		values := []struct {
			label string
			v     float64
		}{
			{"Min", st.Min},
			{"Q1", solarwind.Percentile(col, 25)},
			{"Median", solarwind.Percentile(col, 50)},
			{"Mean", st.Mean},
			{"Q3", solarwind.Percentile(col, 75)},
			{"Max", st.Max},
		}
		bars := make([]chart.Value, len(values))
		ys := make([]float64, 0, len(values)+1)
		for j, v := range values {
			bars[j] = chart.Value{
				Value: v.v,
				Label: fmt.Sprintf("%s %.3g", v.label, v.v),
				Style: chart.Style{FillColor: seriesColors[i%len(seriesColors)], StrokeColor: seriesColors[i%len(seriesColors)]},
			}
			ys = append(ys, v.v)
		}
		ys = append(ys, 0)
		graph := barChart(panelTitle(ds, models.AnalysisStatistical, i,
			fmt.Sprintf("%s (%s), std %.3g, n=%d", p.Label, p.Unit, st.Std, st.Count)), bars)
		graph.UseBaseValue = true
		graph.BaseValue = 0
		graph.YAxis.Range = paddedRange(ys)
		buf, err := renderBarChart(graph)
		if err != nil {
			return nil, fmt.Errorf("failed to render %s summary: %w", p.Key, err)
		}
		panels = append(panels, buf)
	}
	return panels, nil
}

func (b *PNGBackend) regression(ds *solarwind.Dataset) ([][]byte, error) {
	var panels [][]byte
	for i, fit := range ds.Regression() {
		px, _ := solarwind.ParamByKey(fit.X)
		py, _ := solarwind.ParamByKey(fit.Y)
		xs, ys := ds.Column(px), ds.Column(py)
		lo, hi := minMax(xs)
		graph := chart.Chart{
			Title: panelTitle(ds, models.AnalysisRegression, i,
				fmt.Sprintf("%s vs %s: y = %.3gx + %.3g, r² = %.3f", py.Label, px.Label, fit.Slope, fit.Intercept, fit.R2)),
			TitleStyle: chart.Style{FontSize: 11},
			Width:      panelWidth,
			Height:     panelHeight,
			Background: chart.Style{Padding: chart.Box{Top: 40, Left: 20, Right: 20, Bottom: 10}},
			XAxis:      chart.XAxis{Name: fmt.Sprintf("%s (%s)", px.Label, px.Unit), Range: paddedRange(xs)},
			YAxis:      chart.YAxis{Name: py.Unit, Range: paddedRange(ys)},
			Series: []chart.Series{
				chart.ContinuousSeries{
					Name: "Observations",
					Style: chart.Style{
						StrokeWidth: chart.Disabled,
						DotWidth:    3,
						DotColor:    seriesColors[(i+1)%len(seriesColors)],
					},
					XValues: xs,
					YValues: ys,
				},
				chart.ContinuousSeries{
					Name:    "Least squares",
					Style:   chart.Style{StrokeColor: fitColor, StrokeWidth: 2},
					XValues: []float64{lo, hi},
					YValues: []float64{fit.Slope*lo + fit.Intercept, fit.Slope*hi + fit.Intercept},
				},
			},
		}
		graph.Elements = []chart.Renderable{chart.Legend(&graph)}
		buf, err := renderChart(graph)
		if err != nil {
			return nil, fmt.Errorf("failed to render %s~%s regression: %w", fit.Y, fit.X, err)
		}
		panels = append(panels, buf)
	}
	return panels, nil
}

// panelTitle carries the analysis title on the first panel only.
func panelTitle(ds *solarwind.Dataset, t models.AnalysisType, i int, panel string) string {
	if i == 0 {
		return title(ds, t) + ": " + panel
	}
	return panel
}

func barChart(title string, bars []chart.Value) chart.BarChart {
	spacing := 4
	width := (panelWidth-120)/len(bars) - spacing
	if width < 4 {
		width = 4
	}
	return chart.BarChart{
		Title:      title,
		TitleStyle: chart.Style{FontSize: 11},
		Width:      panelWidth,
		Height:     panelHeight,
		Background: chart.Style{Padding: chart.Box{Top: 40, Left: 20, Right: 20, Bottom: 10}},
		BarWidth:   width,
		BarSpacing: spacing,
		XAxis:      chart.Style{FontSize: 7},
		Bars:       bars,
	}
}

func renderChart(graph chart.Chart) ([]byte, error) {
	var buf bytes.Buffer
	if err := graph.Render(chart.PNG, &buf); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func renderBarChart(graph chart.BarChart) ([]byte, error) {
	var buf bytes.Buffer
	if err := graph.Render(chart.PNG, &buf); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// paddedRange adds 5% head room so flat series still get a non-zero axis.
func paddedRange(xs []float64) *chart.ContinuousRange {
	lo, hi := minMax(xs)
	pad := (hi - lo) * 0.05
	if pad == 0 {
		pad = math.Max(math.Abs(hi)*0.05, 1)
	}
	return &chart.ContinuousRange{Min: lo - pad, Max: hi + pad}
}

func minMax(xs []float64) (float64, float64) {
	if len(xs) == 0 {
		return 0, 0
	}
	lo, hi := xs[0], xs[0]
	for _, x := range xs {
		lo, hi = math.Min(lo, x), math.Max(hi, x)
	}
	return lo, hi
}

// stackPanels decodes rendered panels and writes them top to bottom as one PNG.
func stackPanels(panels [][]byte, path string) error {
	imgs := make([]image.Image, 0, len(panels))
	w, h := 0, 0
	for _, p := range panels {
		img, err := png.Decode(bytes.NewReader(p))
		if err != nil {
			return fmt.Errorf("failed to decode chart panel: %w", err)
		}
		imgs = append(imgs, img)
		if b := img.Bounds(); b.Dx() > w {
			w = b.Dx()
		}
		h += img.Bounds().Dy()
	}

	canvas := image.NewRGBA(image.Rect(0, 0, w, h))
	xdraw.Draw(canvas, canvas.Bounds(), image.White, image.Point{}, xdraw.Src)
	y := 0
	for _, img := range imgs {
		b := img.Bounds()
		xdraw.Draw(canvas, image.Rect(0, y, b.Dx(), y+b.Dy()), img, b.Min, xdraw.Over)
		y += b.Dy()
	}

	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create chart file: %w", err)
	}
	defer f.Close()
	if err := png.Encode(f, canvas); err != nil {
		return fmt.Errorf("failed to write chart file: %w", err)
	}
	return nil
}
