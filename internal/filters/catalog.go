// Package filters describes the SDO imaging bands and the three-band
// composites built from them.
package filters

import (
	"fmt"
	"strconv"
	"strings"
)

// Filter is one selectable imaging band or composite.
type Filter struct {
	Code        string   `json:"code"`
	Name        string   `json:"name"`
	Description string   `json:"description"`
	Color       string   `json:"color"`
	Composite   bool     `json:"composite"`
	Parts       []string `json:"parts,omitempty"` // constituent codes, composites only
}

// Layer locates a band in Helioviewer's data source tree.
type Layer struct {
	Observatory string
	Instrument  string
	Detector    string
	Measurement string
}

var catalog = []Filter{
	{Code: "0193", Name: "193 Å", Description: "Coronal loops", Color: "#ff6b6b"},
	{Code: "0304", Name: "304 Å", Description: "Chromosphere", Color: "#4ecdc4"},
	{Code: "0171", Name: "171 Å", Description: "Quiet corona", Color: "#45b7d1"},
	{Code: "0211", Name: "211 Å", Description: "Active regions", Color: "#f9ca24"},
	{Code: "0131", Name: "131 Å", Description: "Flaring regions", Color: "#f0932b"},
	{Code: "0335", Name: "335 Å", Description: "Active cores", Color: "#eb4d4b"},
	{Code: "0094", Name: "94 Å", Description: "Hot plasma", Color: "#6c5ce7"},
	{Code: "1600", Name: "1600 Å", Description: "Transition region", Color: "#a29bfe"},
	{Code: "1700", Name: "1700 Å", Description: "Temperature min", Color: "#fd79a8"},
	{Code: "094335193", Name: "094+335+193", Description: "Hot plasma + Active cores + Coronal loops", Color: "#8e44ad",
		Composite: true, Parts: []string{"0094", "0335", "0193"}},
	{Code: "304211171", Name: "304+211+171", Description: "Chromosphere + Active regions + Quiet corona", Color: "#e67e22",
		Composite: true, Parts: []string{"0304", "0211", "0171"}},
	{Code: "211193171", Name: "211+193+171", Description: "Active regions + Coronal loops + Quiet corona", Color: "#27ae60",
		Composite: true, Parts: []string{"0211", "0193", "0171"}},
	{Code: "HMIB", Name: "HMI Magnetogram", Description: "Magnetic field data", Color: "#2c3e50"},
	{Code: "HMIBC", Name: "HMI Colorized Magnetogram", Description: "Magnetic field polarity", Color: "#34495e"},
	{Code: "HMIIC", Name: "HMI Intensitygram", Description: "Surface intensity", Color: "#7f8c8d"},
	{Code: "HMIIF", Name: "HMI Flattened Intensitygram", Description: "Limb-darkening removed surface", Color: "#95a5a6"},
}

var byCode = func() map[string]Filter {
	m := make(map[string]Filter, len(catalog))
	for _, f := range catalog {
		m[f.Code] = f
	}
	return m
}()

// Resolutions are the image widths the SDO browse archive publishes.
var Resolutions = []int{1024, 2048, 4096}

// All returns the catalog in display order.
func All() []Filter {
	out := make([]Filter, len(catalog))
	copy(out, catalog)
	return out
}

// Lookup finds a filter by code.
func Lookup(code string) (Filter, bool) {
	f, ok := byCode[strings.ToUpper(strings.TrimSpace(code))]
	return f, ok
}

// IsComposite reports whether code names a three-band composite.
func IsComposite(code string) bool {
	f, ok := Lookup(code)
	return ok && f.Composite
}

// Constituents expands a composite into its bands. A single band expands to
// itself; unknown codes expand to nothing.
func Constituents(code string) []string {
	f, ok := Lookup(code)
	if !ok {
		return nil
	}
	if !f.Composite {
		return []string{f.Code}
	}
	parts := make([]string, len(f.Parts))
	copy(parts, f.Parts)
	return parts
}

// ParseResolution accepts "1024", "2048" or "4096".
func ParseResolution(s string) (int, error) {
	n, err := strconv.Atoi(strings.TrimSpace(s))
	if err != nil {
		return 0, fmt.Errorf("invalid resolution %q: %w", s, err)
	}
	if !ValidResolution(n) {
		return 0, fmt.Errorf("unsupported resolution %d", n)
	}
	return n, nil
}

// ValidResolution reports whether n is a published resolution.
func ValidResolution(n int) bool {
	for _, r := range Resolutions {
		if r == n {
			return true
		}
	}
	return false
}

// HelioviewerLayer maps a single band to its Helioviewer data source.
func HelioviewerLayer(code string) (Layer, error) {
	f, ok := Lookup(code)
	if !ok || f.Composite {
		return Layer{}, fmt.Errorf("no helioviewer layer for %q", code)
	}
	switch f.Code {
	case "HMIB", "HMIBC":
		return Layer{Observatory: "SDO", Instrument: "HMI", Detector: "HMI", Measurement: "magnetogram"}, nil
	case "HMIIC", "HMIIF":
		return Layer{Observatory: "SDO", Instrument: "HMI", Detector: "HMI", Measurement: "continuum"}, nil
	}
	// AIA codes are zero-padded wavelengths; Helioviewer uses the bare number.
	return Layer{Observatory: "SDO", Instrument: "AIA", Detector: "AIA", Measurement: strings.TrimLeft(f.Code, "0")}, nil
}
