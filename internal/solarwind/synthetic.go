package solarwind

import (
	"math"
	"math/rand"
	"time"

	"solarimager/internal/models"
)

// Synthetic sample parameters.
const (
	syntheticPoints  = 100
	syntheticSeed    = 42
	syntheticSpacing = 15 * time.Minute
)

// Synthetic builds a deterministic sample dataset ending at end. Every row
// and the dataset itself are flagged synthetic.
func Synthetic(end time.Time, r TimeRange, reason string) *Dataset {
	rng := rand.New(rand.NewSource(syntheticSeed))
	end = end.UTC().Truncate(time.Minute)
	start := end.Add(-time.Duration(syntheticPoints-1) * syntheticSpacing)

	samples := make([]models.SolarWindSample, syntheticPoints)
	for i := range samples {
		phase := float64(i) / syntheticPoints * 2 * math.Pi
		bz := 3*math.Sin(phase*2) + rng.NormFloat64()*2.5
		bx := rng.NormFloat64() * 3
		by := rng.NormFloat64() * 3
		bt := math.Sqrt(bx*bx+by*by+bz*bz) + math.Abs(rng.NormFloat64())
		speed := math.Max(250, 420+60*math.Sin(phase)+rng.NormFloat64()*25+8*bt)
		density := math.Max(0.5, 6-0.008*(speed-400)+rng.NormFloat64()*1.5)

		samples[i] = models.SolarWindSample{
			Time:        start.Add(time.Duration(i) * syntheticSpacing),
			Bx:          bx,
			By:          by,
			Bz:          bz,
			Bt:          bt,
			Speed:       speed,
			Density:     density,
			Temperature: DeriveTemperature(speed),
			StormLevel:  Classify(bz),
			Synthetic:   true,
		}
	}
	return &Dataset{Range: r, Samples: samples, Synthetic: true, Reason: reason}
}
