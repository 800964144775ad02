// Package stride provides the built-in 'stride' stage: it subsamples a frame
// series, keeping every step-th frame. Striding needs no training pass, so
// fitting only validates the parameter.
package stride

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
	r.Register("stride", func() stage.Stage { return &Stride{} })
}

// Stride subsamples frames at a fixed interval.
type Stride struct{}

// Fit validates the step parameter.
func (s *Stride) Fit(ctx context.Context, in dataset.Handle, p stage.Params) (stage.Fitted, error) {
	step, err := p.Int("step")
	if err != nil {
		return nil, err
	}
	if step < 1 {
		return nil, fmt.Errorf("stride step must be >= 1, got %d", step)
	}
	return &fitted{step: step}, nil
}

type fitted struct {
	step int
}

func (f *fitted) Transform(ctx context.Context, in dataset.Handle) (dataset.Handle, error) {
	frames, err := dataset.AsFrames(in)
	if err != nil {
		return nil, err
	}
	out := &dataset.Frames{Name: fmt.Sprintf("%s/stride(step=%d)", frames.Name, f.step)}
	for i := 0; i < frames.NumFrames(); i += f.step {
		out.Data = append(out.Data, frames.Data[i])
	}
	return out, nil
}
