package models

import "time"

// StormLevel is the coarse geomagnetic classification derived from Bz.
type StormLevel string

const (
	StormNormal StormLevel = "Normal"
	StormMinor  StormLevel = "Minor"
	StormMajor  StormLevel = "Major"
)

// StormLevels in increasing severity.
var StormLevels = []StormLevel{StormNormal, StormMinor, StormMajor}

// SolarWindSample is one joined magnetic-field and plasma reading.
type SolarWindSample struct {
	Time        time.Time  `json:"time" parquet:"time,timestamp"`
	Bx          float64    `json:"bx" parquet:"bx"`                   // nT, GSM
	By          float64    `json:"by" parquet:"by"`                   // nT, GSM
	Bz          float64    `json:"bz" parquet:"bz"`                   // nT, GSM
	Bt          float64    `json:"bt" parquet:"bt"`                   // nT
	Speed       float64    `json:"speed" parquet:"speed"`             // km/s
	Density     float64    `json:"density" parquet:"density"`         // p/cm³
	Temperature float64    `json:"temperature" parquet:"temperature"` // K
	StormLevel  StormLevel `json:"storm_level" parquet:"storm_level"`
	Synthetic   bool       `json:"synthetic" parquet:"synthetic"`
}

// AnalysisType selects which analysis and chart to produce.
type AnalysisType string

const (
	AnalysisTimeSeries   AnalysisType = "time_series"
	AnalysisCorrelation  AnalysisType = "correlation"
	AnalysisDistribution AnalysisType = "distribution"
	AnalysisStatistical  AnalysisType = "statistical"
	AnalysisRegression   AnalysisType = "regression"
)

// AnalysisTypes lists every supported analysis.
var AnalysisTypes = []AnalysisType{
	AnalysisTimeSeries,
	AnalysisCorrelation,
	AnalysisDistribution,
	AnalysisStatistical,
	AnalysisRegression,
}

// ParseAnalysisType validates a requested analysis name.
func ParseAnalysisType(s string) (AnalysisType, bool) {
	for _, t := range AnalysisTypes {
		if string(t) == s {
			return t, true
		}
	}
	return "", false
}
