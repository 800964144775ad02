// Package workflow is the user-facing façade of the sweep engine: it takes a
// template of stages and branches, expands it into a computation tree, and
// drives the scheduler to produce the final set of fitted leaf pipelines.
package workflow

import (
	"context"
	"fmt"
	"sync"

	"github.com/google/uuid"

	"github.com/vk/mdsweep/internal/ctxlog"
	"github.com/vk/mdsweep/internal/dataset"
	"github.com/vk/mdsweep/internal/events"
	"github.com/vk/mdsweep/internal/pool"
	"github.com/vk/mdsweep/internal/scheduler"
	"github.com/vk/mdsweep/internal/stage"
	"github.com/vk/mdsweep/internal/tree"
)

// Workflow owns one sweep declaration and its evaluation lifecycle. It may be
// run repeatedly; each run expands a fresh tree, so reuse is idempotent.
type Workflow struct {
	template tree.Template
	registry *stage.Registry
	emitter  events.Emitter
	external pool.Pool
	workers  int

	mu      sync.Mutex
	running bool
	runID   string
	results []scheduler.LeafResult
	runErr  error
	done    chan struct{}
}

// Option configures a Workflow.
type Option func(*Workflow)

// WithPool supplies an external worker pool. The workflow does not close it.
func WithPool(p pool.Pool) Option {
	return func(w *Workflow) { w.external = p }
}

// WithWorkers sets the size of the per-run local pool used when no external
// pool is supplied.
func WithWorkers(n int) Option {
	return func(w *Workflow) { w.workers = n }
}

// WithEmitter routes run lifecycle events to e.
func WithEmitter(e events.Emitter) Option {
	return func(w *Workflow) { w.emitter = e }
}

// New validates the template against the registry and returns a Workflow.
// Configuration errors surface here, before any evaluation starts.
func New(template tree.Template, reg *stage.Registry, opts ...Option) (*Workflow, error) {
	w := &Workflow{
		template: template,
		registry: reg,
		emitter:  events.Null{},
		workers:  4,
	}
	for _, opt := range opts {
		opt(w)
	}
	// Expand once to fail fast on a malformed sweep; each run rebuilds.
	if _, err := tree.Build(context.Background(), template, reg); err != nil {
		return nil, err
	}
	return w, nil
}

// LeafCount returns the number of realized pipelines the sweep will produce.
func (w *Workflow) LeafCount() int {
	return w.template.LeafCount()
}

// RunID returns the identity of the most recent run.
func (w *Workflow) RunID() string {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.runID
}

// Run evaluates the sweep against the input dataset and returns a channel
// streaming each leaf's result as it completes. Completion order is
// nondeterministic; every result carries its deterministic leaf index. The
// channel is closed when the run finishes; Wait reports the run's error.
func (w *Workflow) Run(ctx context.Context, in dataset.Handle) (<-chan scheduler.LeafResult, error) {
	w.mu.Lock()
	if w.running {
		w.mu.Unlock()
		return nil, fmt.Errorf("workflow run already in progress")
	}
	runID := uuid.NewString()
	w.running = true
	w.runID = runID
	w.results = nil
	w.runErr = nil
	w.done = make(chan struct{})
	done := w.done
	w.mu.Unlock()

	t, err := tree.Build(ctx, w.template, w.registry)
	if err != nil {
		// Unreachable for a template New validated, unless the registry
		// changed underneath us.
		w.finish(nil, err)
		close(done)
		return nil, err
	}

	logger := ctxlog.FromContext(ctx).With("runID", runID)
	ctx = ctxlog.WithLogger(ctx, logger)
	logger.Info("Starting sweep run.", "nodes", t.Size(), "leaves", len(t.Leaves))

	workerPool := w.external
	ownPool := workerPool == nil
	if ownPool {
		workerPool = pool.NewLocal(w.workers)
	}

	stream := make(chan scheduler.LeafResult, len(t.Leaves))
	sched := scheduler.New(w.registry, workerPool,
		scheduler.WithEmitter(w.emitter),
		scheduler.WithNotify(stream),
		scheduler.WithRunID(runID),
	)

	go func() {
		defer close(done)
		defer close(stream)
		if ownPool {
			defer workerPool.Close()
		}
		results, err := sched.Evaluate(ctx, t, in)
		w.finish(results, err)
	}()

	return stream, nil
}

// Wait blocks until the most recent run completes and returns its error.
func (w *Workflow) Wait() error {
	w.mu.Lock()
	done := w.done
	w.mu.Unlock()
	if done == nil {
		return fmt.Errorf("workflow has not been run")
	}
	<-done
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.runErr
}

// Results returns the completed run's results in deterministic leaf
// enumeration order. It blocks until the run finishes, and the slice can be
// re-iterated freely afterwards.
func (w *Workflow) Results() []scheduler.LeafResult {
	// A fatal run has no results; per-leaf failures live in the slice.
	_ = w.Wait()
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.results
}

func (w *Workflow) finish(results []scheduler.LeafResult, err error) {
	w.mu.Lock()
	w.results = results
	w.runErr = err
	w.running = false
	w.mu.Unlock()
}
