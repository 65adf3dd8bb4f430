package charts

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"solarimager/internal/logger"
	"solarimager/internal/models"
	"solarimager/internal/solarwind"
)

// ErrUnsupported is returned when a backend cannot draw an analysis type.
var ErrUnsupported = errors.New("analysis type not supported by chart backend")

// Backend names accepted in CHART_BACKENDS.
const (
	BackendPNG  = "png"
	BackendHTML = "html"
)

// Backend renders one analysis of a dataset into a file under outDir.
type Backend interface {
	Name() string
	Supports(t models.AnalysisType) bool
	Render(ds *solarwind.Dataset, t models.AnalysisType, outDir string) (string, error)
}

// NewBackends builds the enabled backends in the given order. Unknown names
// are an error so a typo in the config does not silently disable charts.
func NewBackends(names []string) ([]Backend, error) {
	var out []Backend
	seen := make(map[string]bool)
	for _, name := range names {
		name = strings.ToLower(strings.TrimSpace(name))
		if name == "" || seen[name] {
			continue
		}
		seen[name] = true
		switch name {
		case BackendPNG:
			out = append(out, NewPNGBackend())
		case BackendHTML:
			out = append(out, NewHTMLBackend())
		default:
			return nil, fmt.Errorf("unknown chart backend %q", name)
		}
	}
	if len(out) == 0 {
		return nil, errors.New("no chart backends enabled")
	}
	return out, nil
}

// Select returns the preferred backend when it supports t, otherwise the
// first backend that does.
func Select(backends []Backend, preferred string, t models.AnalysisType) (Backend, error) {
	for _, b := range backends {
		if b.Name() == preferred && b.Supports(t) {
			return b, nil
		}
	}
	for _, b := range backends {
		if b.Supports(t) {
			if preferred != "" {
				logger.WithComponent("charts").Info("falling back to another chart backend", map[string]interface{}{
					"preferred": preferred,
					"backend":   b.Name(),
					"analysis":  string(t),
				})
			}
			return b, nil
		}
	}
	return nil, fmt.Errorf("%w: no enabled backend draws %s", ErrUnsupported, t)
}

// Render draws t with the selected backend. If that backend fails, the
// other backends that support t are tried in order.
func Render(backends []Backend, preferred string, ds *solarwind.Dataset, t models.AnalysisType, outDir string) (string, Backend, error) {
	first, err := Select(backends, preferred, t)
	if err != nil {
		return "", nil, err
	}
	candidates := []Backend{first}
	for _, b := range backends {
		if b.Name() != first.Name() && b.Supports(t) {
			candidates = append(candidates, b)
		}
	}

	var errs []error
	for _, b := range candidates {
		path, err := b.Render(ds, t, outDir)
		if err == nil {
			return path, b, nil
		}
		logger.WithComponent("charts").Warn("chart backend failed", map[string]interface{}{
			"backend":  b.Name(),
			"analysis": string(t),
			"reason":   err.Error(),
		})
		errs = append(errs, fmt.Errorf("%s backend: %w", b.Name(), err))
	}
	return "", nil, errors.Join(errs...)
}

var analysisTitles = map[models.AnalysisType]string{
	models.AnalysisTimeSeries:   "Solar Wind Time Series",
	models.AnalysisCorrelation:  "Parameter Correlation",
	models.AnalysisDistribution: "Parameter Distributions",
	models.AnalysisStatistical:  "Statistical Summary",
	models.AnalysisRegression:   "Regression Analysis",
}

// title prefixes synthetic datasets so a sample chart is never mistaken
// for live data.
func title(ds *solarwind.Dataset, t models.AnalysisType) string {
	base := analysisTitles[t]
	if base == "" {
		base = string(t)
	}
	if ds.Synthetic {
		return "SAMPLE DATA: " + base
	}
	return base
}

func subtitle(ds *solarwind.Dataset) string {
	s := fmt.Sprintf("NOAA SWPC, last %s, %d samples", ds.Range, len(ds.Samples))
	if ds.Synthetic && ds.Reason != "" {
		s += " (" + ds.Reason + ")"
	}
	return s
}

func outputPath(outDir string, ds *solarwind.Dataset, t models.AnalysisType, ext string) (string, error) {
	if err := os.MkdirAll(outDir, 0755); err != nil {
		return "", fmt.Errorf("failed to create charts directory: %w", err)
	}
	return filepath.Join(outDir, fmt.Sprintf("solarwind_%s_%s.%s", ds.Range, t, ext)), nil
}

func checkDataset(ds *solarwind.Dataset) error {
	if ds == nil || len(ds.Samples) == 0 {
		return errors.New("dataset is empty")
	}
	return nil
}
