package reports

import (
	"fmt"
	"strings"
	"time"

	"solarimager/internal/models"
	"solarimager/internal/solarwind"
)

// Report is a markdown document with the facts needed to frame it.
type Report struct {
	Title       string
	Markdown    string
	Synthetic   bool
	GeneratedAt time.Time
}

// ChartLink points at a rendered chart file.
type ChartLink struct {
	Analysis models.AnalysisType `json:"analysis"`
	Backend  string              `json:"backend"`
	URL      string              `json:"url"`
}

// SolarWindSummary writes current conditions, per-parameter statistics,
// storm counts, regression fits and the strongest correlations.
func SolarWindSummary(ds *solarwind.Dataset, links []ChartLink) *Report {
	var b strings.Builder
	r := &Report{
		Title:       fmt.Sprintf("Solar Wind Summary (%s)", ds.Range),
		Synthetic:   ds.Synthetic,
		GeneratedAt: ds.FetchedAt,
	}
	if r.GeneratedAt.IsZero() {
		r.GeneratedAt = time.Now().UTC()
	}

	if ds.Synthetic {
		fmt.Fprintf(&b, "> **SAMPLE DATA**: %s\n\n", ds.Reason)
	}

	b.WriteString("## Current conditions\n\n")
	if c, err := ds.Current(); err == nil {
		b.WriteString(c.Summary + "\n\n")
		if c.Alert != "" {
			fmt.Fprintf(&b, "**%s**\n\n", c.Alert)
		} else {
			b.WriteString("No geomagnetic alert.\n\n")
		}
	} else {
		b.WriteString("No samples available.\n\n")
	}

	b.WriteString("## Statistics\n\n")
	b.WriteString("| Parameter | Unit | Count | Mean | Std | Min | Max |\n")
	b.WriteString("|---|---|---:|---:|---:|---:|---:|\n")
	for i, st := range ds.Statistics() {
		p := solarwind.Params[i]
		fmt.Fprintf(&b, "| %s | %s | %d | %.2f | %.2f | %.2f | %.2f |\n",
			p.Label, p.Unit, st.Count, st.Mean, st.Std, st.Min, st.Max)
	}

	b.WriteString("\n## Storm levels\n\n")
	b.WriteString("| Level | Samples |\n|---|---:|\n")
	counts := solarwind.StormCounts(ds.Samples)
	for _, l := range models.StormLevels {
		fmt.Fprintf(&b, "| %s | %d |\n", l, counts[l])
	}

	b.WriteString("\n## Regression\n\n")
	b.WriteString("| Model | Slope | Intercept | r² | n |\n|---|---:|---:|---:|---:|\n")
	for _, f := range ds.Regression() {
		px, _ := solarwind.ParamByKey(f.X)
		py, _ := solarwind.ParamByKey(f.Y)
		fmt.Fprintf(&b, "| %s ~ %s | %.4g | %.4g | %.3f | %d |\n", py.Label, px.Label, f.Slope, f.Intercept, f.R2, f.N)
	}

	b.WriteString("\n## Strongest correlations\n\n")
	m := ds.Correlation()
	for _, pair := range strongest(m, 3) {
		fmt.Fprintf(&b, "- %s / %s: %.3f\n", m.Labels[pair[0]], m.Labels[pair[1]], m.Values[pair[0]][pair[1]])
	}

	if len(links) > 0 {
		b.WriteString("\n## Charts\n\n")
		for _, l := range links {
			fmt.Fprintf(&b, "- [%s (%s)](%s)\n", l.Analysis, l.Backend, l.URL)
		}
	}

	r.Markdown = b.String()
	return r
}

// strongest returns the n off-diagonal pairs with the largest |r|.
func strongest(m solarwind.Matrix, n int) [][2]int {
	var pairs [][2]int
	for i := range m.Labels {
		for j := i + 1; j < len(m.Labels); j++ {
			pairs = append(pairs, [2]int{i, j})
		}
	}
	abs := func(p [2]int) float64 {
		v := m.Values[p[0]][p[1]]
		if v < 0 {
			return -v
		}
		return v
	}
	for i := 1; i < len(pairs); i++ {
		for j := i; j > 0 && abs(pairs[j]) > abs(pairs[j-1]); j-- {
			pairs[j], pairs[j-1] = pairs[j-1], pairs[j]
		}
	}
	if len(pairs) > n {
		pairs = pairs[:n]
	}
	return pairs
}
