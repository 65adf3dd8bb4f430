package solarwind

import (
	"fmt"
	"math"
	"sort"

	"solarimager/internal/models"
)

// Param is one numeric column of a dataset.
type Param struct {
	Key   string
	Label string
	Unit  string
	value func(models.SolarWindSample) float64
}

// Value extracts the parameter from s.
func (p Param) Value(s models.SolarWindSample) float64 { return p.value(s) }

// Params are the analyzed columns in display order.
var Params = []Param{
	{"bz", "Bz", "nT", func(s models.SolarWindSample) float64 { return s.Bz }},
	{"bt", "Bt", "nT", func(s models.SolarWindSample) float64 { return s.Bt }},
	{"speed", "Speed", "km/s", func(s models.SolarWindSample) float64 { return s.Speed }},
	{"density", "Density", "p/cm³", func(s models.SolarWindSample) float64 { return s.Density }},
	{"temperature", "Temperature", "K", func(s models.SolarWindSample) float64 { return s.Temperature }},
}

// ParamByKey looks a parameter up by key.
func ParamByKey(key string) (Param, bool) {
	for _, p := range Params {
		if p.Key == key {
			return p, true
		}
	}
	return Param{}, false
}

// Column returns the parameter's values in sample order.
func (d *Dataset) Column(p Param) []float64 {
	out := make([]float64, len(d.Samples))
	for i, s := range d.Samples {
		out[i] = p.value(s)
	}
	return out
}

// Stats summarizes one parameter.
type Stats struct {
	Param string  `json:"param"`
	Count int     `json:"count"`
	Mean  float64 `json:"mean"`
	Std   float64 `json:"std"`
	Min   float64 `json:"min"`
	Max   float64 `json:"max"`
}

// Statistics computes Stats for every parameter. Std is the sample
// standard deviation.
func (d *Dataset) Statistics() []Stats {
	out := make([]Stats, 0, len(Params))
	for _, p := range Params {
		out = append(out, describe(p.Key, d.Column(p)))
	}
	return out
}

func describe(key string, xs []float64) Stats {
	s := Stats{Param: key, Count: len(xs)}
	if len(xs) == 0 {
		return s
	}
	s.Min, s.Max = xs[0], xs[0]
	var sum float64
	for _, x := range xs {
		sum += x
		s.Min = math.Min(s.Min, x)
		s.Max = math.Max(s.Max, x)
	}
	s.Mean = sum / float64(len(xs))
	if len(xs) > 1 {
		var ss float64
		for _, x := range xs {
			ss += (x - s.Mean) * (x - s.Mean)
		}
		s.Std = math.Sqrt(ss / float64(len(xs)-1))
	}
	return s
}

// Matrix is a labeled square correlation matrix.
type Matrix struct {
	Labels []string    `json:"labels"`
	Values [][]float64 `json:"values"`
}

// Correlation returns the Pearson matrix over all parameters. Pairs with a
// constant column correlate as 0.
func (d *Dataset) Correlation() Matrix {
	cols := make([][]float64, len(Params))
	m := Matrix{Labels: make([]string, len(Params)), Values: make([][]float64, len(Params))}
	for i, p := range Params {
		cols[i] = d.Column(p)
		m.Labels[i] = p.Label
	}
	for i := range Params {
		m.Values[i] = make([]float64, len(Params))
		for j := range Params {
			if i == j {
				m.Values[i][j] = 1
				continue
			}
			m.Values[i][j] = Pearson(cols[i], cols[j])
		}
	}
	return m
}

// Pearson is the correlation coefficient of xs and ys.
func Pearson(xs, ys []float64) float64 {
	n := len(xs)
	if n != len(ys) || n < 2 {
		return 0
	}
	var mx, my float64
	for i := range xs {
		mx += xs[i]
		my += ys[i]
	}
	mx /= float64(n)
	my /= float64(n)
	var sxy, sxx, syy float64
	for i := range xs {
		dx, dy := xs[i]-mx, ys[i]-my
		sxy += dx * dy
		sxx += dx * dx
		syy += dy * dy
	}
	if sxx == 0 || syy == 0 {
		return 0
	}
	return sxy / math.Sqrt(sxx*syy)
}

// Histogram is an equal-width binning of one parameter.
type Histogram struct {
	Param  string    `json:"param"`
	Edges  []float64 `json:"edges"` // len(Counts)+1
	Counts []int     `json:"counts"`
}

// DefaultBins is the histogram resolution used by the charts.
const DefaultBins = 20

// Distribution is the histogram set plus storm-level counts.
type Distribution struct {
	Histograms  []Histogram               `json:"histograms"`
	StormCounts map[models.StormLevel]int `json:"storm_counts"`
}

// Distribution bins every parameter into bins equal-width buckets.
func (d *Dataset) Distribution(bins int) Distribution {
	if bins <= 0 {
		bins = DefaultBins
	}
	dist := Distribution{StormCounts: StormCounts(d.Samples)}
	for _, p := range Params {
		dist.Histograms = append(dist.Histograms, histogram(p.Key, d.Column(p), bins))
	}
	return dist
}

// StormCounts tallies samples per storm level; every level is present.
func StormCounts(samples []models.SolarWindSample) map[models.StormLevel]int {
	counts := make(map[models.StormLevel]int, len(models.StormLevels))
	for _, l := range models.StormLevels {
		counts[l] = 0
	}
	for _, s := range samples {
		counts[s.StormLevel]++
	}
	return counts
}

func histogram(key string, xs []float64, bins int) Histogram {
	h := Histogram{Param: key, Counts: make([]int, bins), Edges: make([]float64, bins+1)}
	if len(xs) == 0 {
		return h
	}
	lo, hi := xs[0], xs[0]
	for _, x := range xs {
		lo, hi = math.Min(lo, x), math.Max(hi, x)
	}
	if hi == lo {
		hi = lo + 1
	}
	width := (hi - lo) / float64(bins)
	for i := range h.Edges {
		h.Edges[i] = lo + float64(i)*width
	}
	for _, x := range xs {
		i := int((x - lo) / width)
		if i >= bins {
			i = bins - 1
		}
		h.Counts[i]++
	}
	return h
}

// Fit is a least-squares line y = Slope*x + Intercept.
type Fit struct {
	X         string  `json:"x"`
	Y         string  `json:"y"`
	Slope     float64 `json:"slope"`
	Intercept float64 `json:"intercept"`
	R2        float64 `json:"r2"`
	N         int     `json:"n"`
}

// RegressionPairs are the (x, y) parameter keys fitted by Regression.
var RegressionPairs = [][2]string{
	{"bt", "speed"},
	{"speed", "density"},
	{"speed", "temperature"},
}

// Regression fits Speed~Bt, Density~Speed and Temperature~Speed.
func (d *Dataset) Regression() []Fit {
	fits := make([]Fit, 0, len(RegressionPairs))
	for _, pair := range RegressionPairs {
		px, _ := ParamByKey(pair[0])
		py, _ := ParamByKey(pair[1])
		f := LinearFit(d.Column(px), d.Column(py))
		f.X, f.Y = px.Key, py.Key
		fits = append(fits, f)
	}
	return fits
}

// LinearFit computes ordinary least squares over paired values.
func LinearFit(xs, ys []float64) Fit {
	n := len(xs)
	f := Fit{N: n}
	if n != len(ys) || n < 2 {
		return f
	}
	var mx, my float64
	for i := range xs {
		mx += xs[i]
		my += ys[i]
	}
	mx /= float64(n)
	my /= float64(n)
	var sxy, sxx, syy float64
	for i := range xs {
		dx, dy := xs[i]-mx, ys[i]-my
		sxy += dx * dy
		sxx += dx * dx
		syy += dy * dy
	}
	if sxx == 0 {
		f.Intercept = my
		return f
	}
	f.Slope = sxy / sxx
	f.Intercept = my - f.Slope*mx
	if syy > 0 {
		f.R2 = (sxy * sxy) / (sxx * syy)
	}
	return f
}

// Conditions is the latest reading with an alert line.
type Conditions struct {
	Sample    models.SolarWindSample `json:"sample"`
	Alert     string                 `json:"alert,omitempty"`
	Synthetic bool                   `json:"synthetic"`
	Summary   string                 `json:"summary"`
}

// Current reports the newest sample. Alerts follow the storm thresholds.
func (d *Dataset) Current() (Conditions, error) {
	if len(d.Samples) == 0 {
		return Conditions{}, fmt.Errorf("dataset is empty")
	}
	latest := d.Samples[len(d.Samples)-1]
	c := Conditions{Sample: latest, Synthetic: d.Synthetic}
	switch latest.StormLevel {
	case models.StormMajor:
		c.Alert = "Geomagnetic alert: strong southward Bz detected (Major storm conditions possible)"
	case models.StormMinor:
		c.Alert = "Geomagnetic watch: moderate southward Bz detected (Minor storm conditions possible)"
	}
	c.Summary = fmt.Sprintf("%s UTC: Bz %.2f nT, Bt %.2f nT, speed %.0f km/s, density %.2f p/cm³, temperature %.0f K",
		latest.Time.Format("2006-01-02 15:04"), latest.Bz, latest.Bt, latest.Speed, latest.Density, latest.Temperature)
	return c, nil
}

// Percentile returns the p-th percentile (0..100) of xs by linear
// interpolation.
func Percentile(xs []float64, p float64) float64 {
	if len(xs) == 0 {
		return 0
	}
	sorted := append([]float64(nil), xs...)
	sort.Float64s(sorted)
	if p <= 0 {
		return sorted[0]
	}
	if p >= 100 {
		return sorted[len(sorted)-1]
	}
	rank := p / 100 * float64(len(sorted)-1)
	lo := int(math.Floor(rank))
	frac := rank - float64(lo)
	if lo+1 >= len(sorted) {
		return sorted[lo]
	}
	return sorted[lo] + frac*(sorted[lo+1]-sorted[lo])
}
