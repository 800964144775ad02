package scheduler

import (
	"github.com/vk/mdsweep/internal/dataset"
	"github.com/vk/mdsweep/internal/pipeline"
	"github.com/vk/mdsweep/internal/stage"
)

// LeafResult pairs one fully realized pipeline with its final output, or
// carries the error that prevented it. Results complete in nondeterministic
// order, but LeafIndex is the deterministic enumeration index of the leaf,
// so callers can always recover canonical ordering.
type LeafResult struct {
	// LeafIndex is the position of the leaf in template enumeration order.
	LeafIndex int
	// NodeID identifies the leaf node for logs and the ledger.
	NodeID string
	// Path is the chain of stage configurations from root to leaf; present
	// for failed leaves too, so a bad combination is diagnosable.
	Path []stage.Spec
	// Pipeline is the fitted chain. Nil when Err is set.
	Pipeline *pipeline.Pipeline
	// Output is the leaf's final dataset. Nil when Err is set.
	Output dataset.Handle
	// Err is a *StageError for a fresh failure or a *SkipError when an
	// ancestor failed first.
	Err error
}

// Failed reports whether this leaf produced no model.
func (r LeafResult) Failed() bool { return r.Err != nil }
