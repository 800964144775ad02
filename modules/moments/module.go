// Package moments provides the built-in 'moments' estimator stage: fitting
// computes per-feature mean and variance over a lag-strided view of the
// series. It is typically the terminal stage of a sweep, declared with the
// fit role so the dataset passes through unchanged.
package moments

import (
	"context"
	"fmt"

	"github.com/vk/mdsweep/internal/dataset"
	"github.com/vk/mdsweep/internal/stage"
)

// Module implements the stage.Module interface for this package.
type Module struct{}

// Register registers the stage factory with the engine.
func (m *Module) Register(r *stage.Registry) {
	r.Register("moments", func() stage.Stage { return &Moments{} })
}

// Moments estimates first and second moments per feature.
type Moments struct{}

// Fit computes the moments at the configured lag.
func (m *Moments) Fit(ctx context.Context, in dataset.Handle, p stage.Params) (stage.Fitted, error) {
	lag, err := p.IntDefault("lag", 1)
	if err != nil {
		return nil, err
	}
	if lag < 1 {
		return nil, fmt.Errorf("moments lag must be >= 1, got %d", lag)
	}

	frames, err := dataset.AsFrames(in)
	if err != nil {
		return nil, err
	}
	if frames.NumFrames() <= lag {
		return nil, fmt.Errorf("series %q has %d frames, need more than lag %d", frames.Name, frames.NumFrames(), lag)
	}

	nf := frames.NumFeatures()
	mean := make([]float64, nf)
	count := 0
	for i := 0; i < frames.NumFrames(); i += lag {
		for j, v := range frames.Data[i] {
			mean[j] += v
		}
		count++
	}
	for j := range mean {
		mean[j] /= float64(count)
	}

	variance := make([]float64, nf)
	for i := 0; i < frames.NumFrames(); i += lag {
		for j, v := range frames.Data[i] {
			d := v - mean[j]
			variance[j] += d * d
		}
	}
	for j := range variance {
		variance[j] /= float64(count)
	}

	return &Model{Lag: lag, Mean: mean, Variance: variance}, nil
}

// Model is the fitted moments estimator.
type Model struct {
	Lag      int
	Mean     []float64
	Variance []float64
}

// Transform emits the fitted moments as a two-frame summary series, so a
// moments stage can also sit mid-pipeline with the fit_transform role.
func (m *Model) Transform(ctx context.Context, in dataset.Handle) (dataset.Handle, error) {
	frames, err := dataset.AsFrames(in)
	if err != nil {
		return nil, err
	}
	out := frames.Derive(fmt.Sprintf("moments(lag=%d)", m.Lag), 2, len(m.Mean))
	copy(out.Data[0], m.Mean)
	copy(out.Data[1], m.Variance)
	return out, nil
}
