// Package scale provides the built-in 'scale' stage: multiplies every
// feature by a constant factor.
package scale

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
	r.Register("scale", func() stage.Stage { return &Scale{} })
}

// Scale applies a constant multiplicative factor.
type Scale struct{}

// Fit validates the factor parameter.
func (s *Scale) Fit(ctx context.Context, in dataset.Handle, p stage.Params) (stage.Fitted, error) {
	factor, err := p.FloatDefault("factor", 1)
	if err != nil {
		return nil, err
	}
	if factor == 0 {
		return nil, fmt.Errorf("scale factor must be non-zero")
	}
	return &fitted{factor: factor}, nil
}

type fitted struct {
	factor float64
}

func (f *fitted) Transform(ctx context.Context, in dataset.Handle) (dataset.Handle, error) {
	frames, err := dataset.AsFrames(in)
	if err != nil {
		return nil, err
	}
	out := frames.Derive(fmt.Sprintf("scale(factor=%g)", f.factor), frames.NumFrames(), frames.NumFeatures())
	for i, row := range frames.Data {
		for j, v := range row {
			out.Data[i][j] = v * f.factor
		}
	}
	return out, nil
}
