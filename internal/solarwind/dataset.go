package solarwind

import (
	"context"
	"fmt"
	"sort"
	"time"

	"solarimager/internal/metrics"
	"solarimager/internal/models"
)

// MinRealSamples is the fewest joined rows accepted before falling back to
// synthetic data.
const MinRealSamples = 10

// Storm thresholds on Bz in nT, inclusive.
const (
	MinorStormBz = -5.0
	MajorStormBz = -10.0
)

// Dataset is an ordered series of samples. A dataset is either entirely
// real or entirely synthetic.
type Dataset struct {
	Range     TimeRange                `json:"range"`
	Samples   []models.SolarWindSample `json:"samples"`
	Synthetic bool                     `json:"synthetic"`
	Reason    string                   `json:"reason,omitempty"` // why synthetic data was used
	FetchedAt time.Time                `json:"fetched_at"`
}

// Classify maps Bz to a storm level.
func Classify(bz float64) models.StormLevel {
	switch {
	case bz <= MajorStormBz:
		return models.StormMajor
	case bz <= MinorStormBz:
		return models.StormMinor
	}
	return models.StormNormal
}

// DeriveTemperature estimates proton temperature in K from speed in km/s
// when the plasma feed has none.
func DeriveTemperature(speed float64) float64 {
	t := 8000 + 150*speed
	if t < 5000 {
		return 5000
	}
	if t > 300000 {
		return 300000
	}
	return t
}

// join pairs rows with identical timestamps. Rows lacking Bz, Bt or speed
// are dropped.
func join(mag map[time.Time]magRow, plasma map[time.Time]plasmaRow) []models.SolarWindSample {
	var out []models.SolarWindSample
	for ts, m := range mag {
		p, ok := plasma[ts]
		if !ok || !m.ok || !p.hasSpeed {
			continue
		}
		s := models.SolarWindSample{
			Time:    ts,
			Bx:      m.bx,
			By:      m.by,
			Bz:      m.bz,
			Bt:      m.bt,
			Speed:   p.speed,
			Density: p.density,
		}
		if p.hasTmp && p.temperature > 0 {
			s.Temperature = p.temperature
		} else {
			s.Temperature = DeriveTemperature(p.speed)
		}
		s.StormLevel = Classify(s.Bz)
		out = append(out, s)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Time.Before(out[j].Time) })
	return out
}

// window keeps samples within d of the newest one.
func window(samples []models.SolarWindSample, d time.Duration) []models.SolarWindSample {
	if len(samples) == 0 {
		return samples
	}
	cutoff := samples[len(samples)-1].Time.Add(-d)
	i := sort.Search(len(samples), func(i int) bool { return !samples[i].Time.Before(cutoff) })
	return samples[i:]
}

// Loader produces datasets, substituting synthetic data when the feeds
// cannot be used.
type Loader struct {
	fetcher *Fetcher
	now     func() time.Time
}

// NewLoader wraps a fetcher.
func NewLoader(f *Fetcher) *Loader {
	return &Loader{fetcher: f, now: time.Now}
}

// Load fetches and joins both feeds for r. It never fails: a fetch error
// or too few rows yields a flagged synthetic dataset.
func (l *Loader) Load(ctx context.Context, r TimeRange) *Dataset {
	now := l.now().UTC()
	ds, err := l.loadReal(ctx, r)
	if err != nil {
		l.fetcher.log.Warn("using synthetic solar wind data", map[string]interface{}{"range": string(r), "reason": err.Error()})
		ds = Synthetic(now, r, err.Error())
	}
	ds.FetchedAt = now
	metrics.ObserveSolarWind(ds.Synthetic)
	return ds
}

func (l *Loader) loadReal(ctx context.Context, r TimeRange) (*Dataset, error) {
	mag, err := l.fetcher.FetchMag(ctx, r)
	if err != nil {
		return nil, err
	}
	plasma, err := l.fetcher.FetchPlasma(ctx, r)
	if err != nil {
		return nil, err
	}
	samples := window(join(mag, plasma), r.Duration())
	if len(samples) < MinRealSamples {
		return nil, fmt.Errorf("only %d usable samples, need %d", len(samples), MinRealSamples)
	}
	l.fetcher.log.Info("solar wind data loaded", map[string]interface{}{"range": string(r), "samples": len(samples)})
	return &Dataset{Range: r, Samples: samples}, nil
}
