package charts

import (
	"fmt"
	"os"
	"time"

	"github.com/go-echarts/go-echarts/v2/charts"
	"github.com/go-echarts/go-echarts/v2/components"
	"github.com/go-echarts/go-echarts/v2/opts"
	"github.com/go-echarts/go-echarts/v2/types"

	"solarimager/internal/models"
	"solarimager/internal/solarwind"
)

var (
	htmlColors = []string{"#dc322f", "#268bd2", "#b58900", "#2aa198", "#d33682"}
	htmlStorm  = map[models.StormLevel]string{
		models.StormNormal: "#00aa00",
		models.StormMinor:  "#e6a000",
		models.StormMajor:  "#c80000",
	}
	// Diverging palette for correlation coefficients in [-1, 1].
	correlationPalette = []string{"#313695", "#4575b4", "#74add1", "#abd9e9", "#e0f3f8", "#ffffbf", "#fee090", "#fdae61", "#f46d43", "#d73027", "#a50026"}
)

// HTMLBackend draws interactive ECharts pages with go-echarts.
type HTMLBackend struct {
	Width  string
	Height string
}

// NewHTMLBackend creates the interactive page backend.
func NewHTMLBackend() *HTMLBackend {
	return &HTMLBackend{Width: "900px", Height: "400px"}
}

// Name implements Backend.
func (b *HTMLBackend) Name() string { return BackendHTML }

// Supports implements Backend.
func (b *HTMLBackend) Supports(t models.AnalysisType) bool {
	_, ok := models.ParseAnalysisType(string(t))
	return ok
}

// Render implements Backend.
func (b *HTMLBackend) Render(ds *solarwind.Dataset, t models.AnalysisType, outDir string) (string, error) {
	if !b.Supports(t) {
		return "", fmt.Errorf("%w: html cannot draw %s", ErrUnsupported, t)
	}
	if err := checkDataset(ds); err != nil {
		return "", err
	}

	page := components.NewPage()
	page.PageTitle = title(ds, t)
	switch t {
	case models.AnalysisTimeSeries:
		for i, p := range solarwind.Params {
			page.AddCharts(b.timeSeries(ds, p, i))
		}
	case models.AnalysisCorrelation:
		page.AddCharts(b.correlation(ds))
	case models.AnalysisDistribution:
		dist := ds.Distribution(solarwind.DefaultBins)
		for i, h := range dist.Histograms {
			page.AddCharts(b.histogram(ds, h, i))
		}
		page.AddCharts(b.stormCounts(ds, dist.StormCounts))
	case models.AnalysisStatistical:
		stats := ds.Statistics()
		for i, p := range solarwind.Params {
			page.AddCharts(b.boxPlot(ds, p, stats[i], i))
		}
	case models.AnalysisRegression:
		for i, fit := range ds.Regression() {
			page.AddCharts(b.regression(ds, fit, i))
		}
	}

	path, err := outputPath(outDir, ds, t, "html")
	if err != nil {
		return "", err
	}
	f, err := os.Create(path)
	if err != nil {
		return "", fmt.Errorf("failed to create chart file: %w", err)
	}
	defer f.Close()
	if err := page.Render(f); err != nil {
		return "", fmt.Errorf("failed to render chart page: %w", err)
	}
	return path, nil
}

func (b *HTMLBackend) initOpts() charts.GlobalOpts {
	return charts.WithInitializationOpts(opts.Initialization{
		Theme:  types.ThemeWesteros,
		Width:  b.Width,
		Height: b.Height,
	})
}

func (b *HTMLBackend) titleOpts(ds *solarwind.Dataset, t models.AnalysisType, i int, panel string) charts.GlobalOpts {
	o := opts.Title{Title: panel}
	if i == 0 {
		o = opts.Title{Title: title(ds, t) + ": " + panel, Subtitle: subtitle(ds)}
	}
	return charts.WithTitleOpts(o)
}

func (b *HTMLBackend) timeSeries(ds *solarwind.Dataset, p solarwind.Param, i int) *charts.Line {
	format := "15:04"
	if ds.Range.Duration() > 24*time.Hour {
		format = "01-02 15:04"
	}
	labels := make([]string, len(ds.Samples))
	data := make([]opts.LineData, len(ds.Samples))
	for j, s := range ds.Samples {
		labels[j] = s.Time.UTC().Format(format)
		data[j] = opts.LineData{Value: p.Value(s)}
	}

	line := charts.NewLine()
	line.SetGlobalOptions(
		b.initOpts(),
		b.titleOpts(ds, models.AnalysisTimeSeries, i, fmt.Sprintf("%s (%s)", p.Label, p.Unit)),
		charts.WithTooltipOpts(opts.Tooltip{Show: true, Trigger: "axis"}),
		charts.WithXAxisOpts(opts.XAxis{Name: "UTC"}),
		charts.WithYAxisOpts(opts.YAxis{Name: p.Unit, Scale: true}),
		charts.WithDataZoomOpts(opts.DataZoom{Type: "slider"}),
		charts.WithLegendOpts(opts.Legend{Show: true, Right: "10%"}),
	)
	line.SetXAxis(labels).AddSeries(p.Label, data,
		charts.WithItemStyleOpts(opts.ItemStyle{Color: htmlColors[i%len(htmlColors)]}))

	if p.Key == "bz" {
		minor := make([]opts.LineData, len(labels))
		major := make([]opts.LineData, len(labels))
		for j := range labels {
			minor[j] = opts.LineData{Value: solarwind.MinorStormBz}
			major[j] = opts.LineData{Value: solarwind.MajorStormBz}
		}
		line.AddSeries("Minor storm", minor, charts.WithItemStyleOpts(opts.ItemStyle{Color: htmlStorm[models.StormMinor]})).
			AddSeries("Major storm", major, charts.WithItemStyleOpts(opts.ItemStyle{Color: htmlStorm[models.StormMajor]}))
	}
	line.SetSeriesOptions(charts.WithLineChartOpts(opts.LineChart{Smooth: true}))
	return line
}

func (b *HTMLBackend) correlation(ds *solarwind.Dataset) *charts.HeatMap {
	m := ds.Correlation()
	heatmap := charts.NewHeatMap()
	heatmap.SetGlobalOptions(
		b.initOpts(),
		b.titleOpts(ds, models.AnalysisCorrelation, 0, "Pearson coefficients"),
		charts.WithTooltipOpts(opts.Tooltip{Show: true}),
		charts.WithXAxisOpts(opts.XAxis{Type: "category", Data: m.Labels}),
		charts.WithYAxisOpts(opts.YAxis{Type: "category", Data: m.Labels}),
		charts.WithVisualMapOpts(opts.VisualMap{
			Calculable: true,
			Min:        -1,
			Max:        1,
			InRange:    &opts.VisualMapInRange{Color: correlationPalette},
		}),
	)

	var data []opts.HeatMapData
	for i := range m.Labels {
		for j := range m.Labels {
			v := float64(int(m.Values[i][j]*1000)) / 1000
			data = append(data, opts.HeatMapData{Value: [3]interface{}{i, j, v}})
		}
	}
	heatmap.AddSeries("Correlation", data)
	return heatmap
}

func (b *HTMLBackend) histogram(ds *solarwind.Dataset, h solarwind.Histogram, i int) *charts.Bar {
	p, _ := solarwind.ParamByKey(h.Param)
	labels := make([]string, len(h.Counts))
	data := make([]opts.BarData, len(h.Counts))
	for j, c := range h.Counts {
		labels[j] = fmt.Sprintf("%.3g", (h.Edges[j]+h.Edges[j+1])/2)
		data[j] = opts.BarData{Value: c}
	}

	bar := charts.NewBar()
	bar.SetGlobalOptions(
		b.initOpts(),
		b.titleOpts(ds, models.AnalysisDistribution, i, fmt.Sprintf("%s (%s)", p.Label, p.Unit)),
		charts.WithTooltipOpts(opts.Tooltip{Show: true}),
		charts.WithXAxisOpts(opts.XAxis{Name: p.Unit}),
		charts.WithYAxisOpts(opts.YAxis{Name: "Samples"}),
	)
	bar.SetXAxis(labels).AddSeries(p.Label, data,
		charts.WithItemStyleOpts(opts.ItemStyle{Color: htmlColors[i%len(htmlColors)]}))
	return bar
}

func (b *HTMLBackend) stormCounts(ds *solarwind.Dataset, counts map[models.StormLevel]int) *charts.Bar {
	labels := make([]string, 0, len(models.StormLevels))
	data := make([]opts.BarData, 0, len(models.StormLevels))
	for _, l := range models.StormLevels {
		labels = append(labels, string(l))
		data = append(data, opts.BarData{
			Value:     counts[l],
			ItemStyle: &opts.ItemStyle{Color: htmlStorm[l]},
		})
	}
	bar := charts.NewBar()
	bar.SetGlobalOptions(
		b.initOpts(),
		charts.WithTitleOpts(opts.Title{Title: "Storm level counts", Subtitle: "Bz <= -5 nT Minor, Bz <= -10 nT Major"}),
		charts.WithTooltipOpts(opts.Tooltip{Show: true}),
	)
	bar.SetXAxis(labels).AddSeries("Samples", data)
	return bar
}

func (b *HTMLBackend) boxPlot(ds *solarwind.Dataset, p solarwind.Param, st solarwind.Stats, i int) *charts.BoxPlot {
	col := ds.Column(p)
	box := charts.NewBoxPlot()
	box.SetGlobalOptions(
		b.initOpts(),
		b.titleOpts(ds, models.AnalysisStatistical, i,
			fmt.Sprintf("%s (%s): mean %.3g, std %.3g, n=%d", p.Label, p.Unit, st.Mean, st.Std, st.Count)),
		charts.WithTooltipOpts(opts.Tooltip{Show: true}),
		charts.WithYAxisOpts(opts.YAxis{Name: p.Unit, Scale: true}),
	)
	box.SetXAxis([]string{p.Label}).AddSeries(p.Label, []opts.BoxPlotData{{
		Value: []float64{
			st.Min,
			solarwind.Percentile(col, 25),
			solarwind.Percentile(col, 50),
			solarwind.Percentile(col, 75),
			st.Max,
		},
	}}, charts.WithItemStyleOpts(opts.ItemStyle{Color: htmlColors[i%len(htmlColors)]}))
	return box
}

func (b *HTMLBackend) regression(ds *solarwind.Dataset, fit solarwind.Fit, i int) *charts.Scatter {
	px, _ := solarwind.ParamByKey(fit.X)
	py, _ := solarwind.ParamByKey(fit.Y)
	xs, ys := ds.Column(px), ds.Column(py)

	points := make([]opts.ScatterData, len(xs))
	for j := range xs {
		points[j] = opts.ScatterData{Value: []interface{}{xs[j], ys[j]}, SymbolSize: 6}
	}

	scatter := charts.NewScatter()
	scatter.SetGlobalOptions(
		b.initOpts(),
		b.titleOpts(ds, models.AnalysisRegression, i,
			fmt.Sprintf("%s vs %s: y = %.3gx + %.3g, r² = %.3f", py.Label, px.Label, fit.Slope, fit.Intercept, fit.R2)),
		charts.WithTooltipOpts(opts.Tooltip{Show: true}),
		charts.WithXAxisOpts(opts.XAxis{Name: fmt.Sprintf("%s (%s)", px.Label, px.Unit), Type: "value", Scale: true}),
		charts.WithYAxisOpts(opts.YAxis{Name: fmt.Sprintf("%s (%s)", py.Label, py.Unit), Scale: true}),
		charts.WithLegendOpts(opts.Legend{Show: true, Right: "10%"}),
	)
	scatter.AddSeries("Observations", points,
		charts.WithItemStyleOpts(opts.ItemStyle{Color: htmlColors[(i+1)%len(htmlColors)]}))

	lo, hi := minMax(xs)
	line := charts.NewLine()
	line.AddSeries("Least squares", []opts.LineData{
		{Value: []interface{}{lo, fit.Slope*lo + fit.Intercept}},
		{Value: []interface{}{hi, fit.Slope*hi + fit.Intercept}},
	}, charts.WithItemStyleOpts(opts.ItemStyle{Color: "#000000"}))
	scatter.Overlap(line)
	return scatter
}
