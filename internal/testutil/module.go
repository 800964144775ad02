// Package testutil provides shared mock stage modules and sweep fixtures for
// engine tests.
package testutil

import (
	"context"
	"strings"
	"sync"

	"github.com/vk/mdsweep/internal/dataset"
	"github.com/vk/mdsweep/internal/stage"
)

// ParamsKey renders a parameter assignment as a stable string, for use as a
// map key in test bookkeeping.
func ParamsKey(p stage.Params) string {
	names := p.Names()
	parts := make([]string, 0, len(names))
	for _, name := range names {
		parts = append(parts, name+"="+p[name].GoString())
	}
	return strings.Join(parts, ",")
}

// CountingModule is a mock stage module that records every Fit call, keyed by
// the parameter assignment. Its fitted stages pass the input dataset through
// unchanged.
type CountingModule struct {
	Name string

	mu   sync.Mutex
	fits map[string]int
}

// NewCountingModule creates a counting module registering the given type name.
func NewCountingModule(name string) *CountingModule {
	return &CountingModule{Name: name, fits: make(map[string]int)}
}

// Register implements the stage.Module interface.
func (m *CountingModule) Register(r *stage.Registry) {
	r.Register(m.Name, func() stage.Stage {
		return &countingStage{module: m}
	})
}

// Fits returns how many times a stage with the given parameters was fitted.
func (m *CountingModule) Fits(p stage.Params) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.fits[ParamsKey(p)]
}

// TotalFits returns the total number of Fit calls across all parameters.
func (m *CountingModule) TotalFits() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	total := 0
	for _, n := range m.fits {
		total += n
	}
	return total
}

type countingStage struct {
	module *CountingModule
}

func (s *countingStage) Fit(_ context.Context, _ dataset.Handle, p stage.Params) (stage.Fitted, error) {
	s.module.mu.Lock()
	s.module.fits[ParamsKey(p)]++
	s.module.mu.Unlock()
	return passthrough{}, nil
}

type passthrough struct{}

func (passthrough) Transform(_ context.Context, in dataset.Handle) (dataset.Handle, error) {
	return in, nil
}

// FlakyModule is a mock stage module whose Fit fails for selected parameter
// assignments. A nil ShouldFail predicate fails every call.
type FlakyModule struct {
	Name       string
	Err        error
	ShouldFail func(p stage.Params) bool
}

// Register implements the stage.Module interface.
func (m *FlakyModule) Register(r *stage.Registry) {
	r.Register(m.Name, func() stage.Stage {
		return &flakyStage{module: m}
	})
}

type flakyStage struct {
	module *FlakyModule
}

func (s *flakyStage) Fit(_ context.Context, _ dataset.Handle, p stage.Params) (stage.Fitted, error) {
	if s.module.ShouldFail == nil || s.module.ShouldFail(p) {
		return nil, s.module.Err
	}
	return passthrough{}, nil
}

// BlockingModule is a mock stage module whose Fit parks until Release is
// called or the context is cancelled. Cancellation tests use it to hold
// in-flight work while the run is interrupted.
type BlockingModule struct {
	Name string
	// Started receives one ParamsKey per Fit call as it begins, if non-nil.
	Started chan string

	releaseOnce sync.Once
	release     chan struct{}
}

// NewBlockingModule creates a blocking module registering the given type name.
func NewBlockingModule(name string, started chan string) *BlockingModule {
	return &BlockingModule{Name: name, Started: started, release: make(chan struct{})}
}

// Release unparks all current and future Fit calls. Safe to call more than once.
func (m *BlockingModule) Release() {
	m.releaseOnce.Do(func() { close(m.release) })
}

// Register implements the stage.Module interface.
func (m *BlockingModule) Register(r *stage.Registry) {
	r.Register(m.Name, func() stage.Stage {
		return &blockingStage{module: m}
	})
}

type blockingStage struct {
	module *BlockingModule
}

func (s *blockingStage) Fit(ctx context.Context, _ dataset.Handle, p stage.Params) (stage.Fitted, error) {
	if s.module.Started != nil {
		s.module.Started <- ParamsKey(p)
	}
	select {
	case <-s.module.release:
		return passthrough{}, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}
