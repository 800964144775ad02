// Package center provides the built-in 'center' stage: fitting computes the
// per-feature mean of the input series, transforming subtracts it.
package center

import (
	"context"

	"github.com/vk/mdsweep/internal/dataset"
	"github.com/vk/mdsweep/internal/stage"
)

// Module implements the stage.Module interface for this package.
type Module struct{}

// Register registers the stage factory with the engine.
func (m *Module) Register(r *stage.Registry) {
	r.Register("center", func() stage.Stage { return &Center{} })
}

// Center removes the per-feature mean.
type Center struct{}

// Fit computes column means over the training series.
func (c *Center) Fit(ctx context.Context, in dataset.Handle, p stage.Params) (stage.Fitted, error) {
	frames, err := dataset.AsFrames(in)
	if err != nil {
		return nil, err
	}
	means := make([]float64, frames.NumFeatures())
	for _, row := range frames.Data {
		for j, v := range row {
			means[j] += v
		}
	}
	for j := range means {
		means[j] /= float64(frames.NumFrames())
	}
	return &fitted{means: means}, nil
}

type fitted struct {
	means []float64
}

// Means exposes the fitted column means.
func (f *fitted) Means() []float64 { return f.means }

func (f *fitted) Transform(ctx context.Context, in dataset.Handle) (dataset.Handle, error) {
	frames, err := dataset.AsFrames(in)
	if err != nil {
		return nil, err
	}
	out := frames.Derive("center", frames.NumFrames(), frames.NumFeatures())
	for i, row := range frames.Data {
		for j, v := range row {
			out.Data[i][j] = v - f.means[j]
		}
	}
	return out, nil
}
