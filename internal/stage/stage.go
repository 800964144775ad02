// Package stage defines the contract between the fan-out engine and the
// parameterized units of computation it schedules. A stage is fit against an
// input dataset once, and the fitted result transforms datasets thereafter.
// The engine treats both datasets and parameter values as opaque beyond
// equality comparison.
package stage

import (
	"context"

	"github.com/vk/mdsweep/internal/dataset"
)

// Stage is a single parameterized transformation or statistical model.
type Stage interface {
	// Fit trains the stage against the input dataset with the given
	// parameter assignment and returns the fitted instance.
	Fit(ctx context.Context, in dataset.Handle, p Params) (Fitted, error)
}

// Fitted is a trained stage instance. Transform must be safe for concurrent
// use: a shared prefix node's fitted stage may be applied by many subtrees.
type Fitted interface {
	Transform(ctx context.Context, in dataset.Handle) (dataset.Handle, error)
}

// Factory constructs an unfitted Stage for one realized node.
type Factory func() Stage
