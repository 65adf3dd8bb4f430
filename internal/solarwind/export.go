package solarwind

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/klauspost/compress/zstd"
	"github.com/klauspost/pgzip"
	"github.com/parquet-go/parquet-go"

	"solarimager/internal/models"
)

// Format is an export file format.
type Format string

const (
	FormatJSON    Format = "json"
	FormatCSV     Format = "csv"
	FormatCSVGzip Format = "csv.gz"
	FormatCSVZstd Format = "csv.zst"
	FormatParquet Format = "parquet"
)

// FormatFor picks the format from a file name's extension.
func FormatFor(path string) (Format, error) {
	name := strings.ToLower(filepath.Base(path))
	for _, f := range []Format{FormatCSVGzip, FormatCSVZstd, FormatParquet, FormatJSON, FormatCSV} {
		if strings.HasSuffix(name, "."+string(f)) {
			return f, nil
		}
	}
	return "", fmt.Errorf("unsupported export format for %s: use .json, .csv, .csv.gz, .csv.zst or .parquet", path)
}

var csvHeader = []string{"time", "bx", "by", "bz", "bt", "speed", "density", "temperature", "storm_level", "synthetic"}

// Export writes the dataset to path in the format implied by its extension.
func Export(d *Dataset, path string) error {
	format, err := FormatFor(path)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create export directory: %w", err)
	}

	if format == FormatParquet {
		if err := parquet.WriteFile(path, d.Samples); err != nil {
			return fmt.Errorf("failed to write parquet %s: %w", path, err)
		}
		return nil
	}

	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create %s: %w", path, err)
	}
	if err := encode(f, d, format); err != nil {
		f.Close()
		return fmt.Errorf("failed to export %s: %w", path, err)
	}
	return f.Close()
}

func encode(w io.Writer, d *Dataset, format Format) error {
	switch format {
	case FormatJSON:
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(d)
	case FormatCSV:
		return writeCSV(w, d.Samples)
	case FormatCSVGzip:
		gz := pgzip.NewWriter(w)
		if err := writeCSV(gz, d.Samples); err != nil {
			gz.Close()
			return err
		}
		return gz.Close()
	case FormatCSVZstd:
		zw, err := zstd.NewWriter(w)
		if err != nil {
			return err
		}
		if err := writeCSV(zw, d.Samples); err != nil {
			zw.Close()
			return err
		}
		return zw.Close()
	}
	return fmt.Errorf("unsupported format %s", format)
}

func writeCSV(w io.Writer, samples []models.SolarWindSample) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(csvHeader); err != nil {
		return err
	}
	ff := func(v float64) string { return strconv.FormatFloat(v, 'f', -1, 64) }
	for _, s := range samples {
		rec := []string{
			s.Time.UTC().Format(time.RFC3339),
			ff(s.Bx), ff(s.By), ff(s.Bz), ff(s.Bt),
			ff(s.Speed), ff(s.Density), ff(s.Temperature),
			string(s.StormLevel),
			strconv.FormatBool(s.Synthetic),
		}
		if err := cw.Write(rec); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

// Import reads a file written by Export. Range and fetch time are only
// recovered from JSON; the synthetic flag is recovered from the rows.
func Import(path string) (*Dataset, error) {
	format, err := FormatFor(path)
	if err != nil {
		return nil, err
	}

	var samples []models.SolarWindSample
	switch format {
	case FormatParquet:
		samples, err = parquet.ReadFile[models.SolarWindSample](path)
		if err != nil {
			return nil, fmt.Errorf("failed to read parquet %s: %w", path, err)
		}
	case FormatJSON:
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, err
		}
		var d Dataset
		if err := json.Unmarshal(data, &d); err != nil {
			return nil, fmt.Errorf("failed to parse %s: %w", path, err)
		}
		return &d, nil
	default:
		samples, err = readCompressedCSV(path, format)
		if err != nil {
			return nil, err
		}
	}

	d := &Dataset{Samples: samples}
	for i, s := range samples {
		if i == 0 {
			d.Synthetic = s.Synthetic
		} else if s.Synthetic != d.Synthetic {
			return nil, fmt.Errorf("%s mixes real and synthetic rows", path)
		}
	}
	return d, nil
}

func readCompressedCSV(path string, format Format) ([]models.SolarWindSample, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var r io.Reader = f
	switch format {
	case FormatCSVGzip:
		gz, err := pgzip.NewReader(f)
		if err != nil {
			return nil, fmt.Errorf("failed to open gzip %s: %w", path, err)
		}
		defer gz.Close()
		r = gz
	case FormatCSVZstd:
		zr, err := zstd.NewReader(f)
		if err != nil {
			return nil, fmt.Errorf("failed to open zstd %s: %w", path, err)
		}
		defer zr.Close()
		r = zr
	}
	return readCSV(r)
}

func readCSV(r io.Reader) ([]models.SolarWindSample, error) {
	cr := csv.NewReader(r)
	records, err := cr.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("failed to read csv: %w", err)
	}
	if len(records) == 0 {
		return nil, nil
	}

	var out []models.SolarWindSample
	for i, rec := range records[1:] {
		if len(rec) != len(csvHeader) {
			return nil, fmt.Errorf("csv row %d has %d columns, want %d", i+2, len(rec), len(csvHeader))
		}
		ts, err := time.Parse(time.RFC3339, rec[0])
		if err != nil {
			return nil, fmt.Errorf("csv row %d: %w", i+2, err)
		}
		vals := make([]float64, 7)
		for j := range vals {
			if vals[j], err = strconv.ParseFloat(rec[j+1], 64); err != nil {
				return nil, fmt.Errorf("csv row %d column %s: %w", i+2, csvHeader[j+1], err)
			}
		}
		synthetic, _ := strconv.ParseBool(rec[9])
		out = append(out, models.SolarWindSample{
			Time: ts, Bx: vals[0], By: vals[1], Bz: vals[2], Bt: vals[3],
			Speed: vals[4], Density: vals[5], Temperature: vals[6],
			StormLevel: models.StormLevel(rec[8]),
			Synthetic:  synthetic,
		})
	}
	return out, nil
}
