package dataset

import (
	"context"
	"encoding/csv"
	"fmt"
	"os"
	"path/filepath"
	"strconv"

	"gopkg.in/yaml.v3"

	"github.com/vk/mdsweep/internal/ctxlog"
)

// Manifest describes the initial dataset for a sweep run: a named collection
// of CSV series files, concatenated frame-wise in declaration order.
type Manifest struct {
	Name   string         `yaml:"name"`
	Series []SeriesSource `yaml:"series"`
}

// SeriesSource names one CSV file contributing frames to the dataset.
type SeriesSource struct {
	Path string `yaml:"path"`
}

// LoadManifest parses a YAML manifest file.
func LoadManifest(path string) (*Manifest, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading dataset manifest %s: %w", path, err)
	}
	var m Manifest
	if err := yaml.Unmarshal(raw, &m); err != nil {
		return nil, fmt.Errorf("parsing dataset manifest %s: %w", path, err)
	}
	if m.Name == "" {
		m.Name = filepath.Base(path)
	}
	if len(m.Series) == 0 {
		return nil, fmt.Errorf("dataset manifest %s declares no series", path)
	}
	return &m, nil
}

// Load reads every series file and assembles the in-memory dataset. Relative
// series paths are resolved against baseDir.
func (m *Manifest) Load(ctx context.Context, baseDir string) (*Frames, error) {
	logger := ctxlog.FromContext(ctx)
	out := &Frames{Name: m.Name}
	for _, src := range m.Series {
		path := src.Path
		if !filepath.IsAbs(path) {
			path = filepath.Join(baseDir, path)
		}
		rows, err := readSeriesCSV(path)
		if err != nil {
			return nil, err
		}
		if out.NumFrames() > 0 && len(rows) > 0 && len(rows[0]) != out.NumFeatures() {
			return nil, fmt.Errorf("series %s has %d features, expected %d", path, len(rows[0]), out.NumFeatures())
		}
		out.Data = append(out.Data, rows...)
		logger.Debug("Loaded series file.", "path", path, "frames", len(rows))
	}
	logger.Info("Dataset assembled.", "name", out.Name, "frames", out.NumFrames(), "features", out.NumFeatures())
	return out, nil
}

// readSeriesCSV parses one CSV file into rows of float64 features.
func readSeriesCSV(path string) ([][]float64, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening series file: %w", err)
	}
	defer f.Close()

	records, err := csv.NewReader(f).ReadAll()
	if err != nil {
		return nil, fmt.Errorf("parsing series file %s: %w", path, err)
	}

	rows := make([][]float64, 0, len(records))
	for i, rec := range records {
		row := make([]float64, len(rec))
		for j, cell := range rec {
			v, err := strconv.ParseFloat(cell, 64)
			if err != nil {
				return nil, fmt.Errorf("series file %s row %d col %d: %w", path, i+1, j+1, err)
			}
			row[j] = v
		}
		rows = append(rows, row)
	}
	return rows, nil
}
