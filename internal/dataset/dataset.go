// Package dataset defines the opaque dataset handle passed between stages,
// plus the in-memory time-series implementation used by the built-in stages.
package dataset

import "fmt"

// Handle is an opaque reference to a dataset. The engine only threads handles
// between stage calls; it never inspects their contents.
type Handle interface {
	// Label identifies the dataset for logging and object keys.
	Label() string
}

// Frames is an in-memory time series: one row per frame, one column per
// feature. It is the concrete handle produced and consumed by the built-in
// stage modules. A Frames value is treated as immutable once published as a
// node output; stages must return fresh copies rather than mutate in place.
type Frames struct {
	Name string      `json:"name"`
	Data [][]float64 `json:"data"`
}

// Label implements Handle.
func (f *Frames) Label() string { return f.Name }

// NumFrames returns the number of rows.
func (f *Frames) NumFrames() int { return len(f.Data) }

// NumFeatures returns the number of columns, or 0 for an empty series.
func (f *Frames) NumFeatures() int {
	if len(f.Data) == 0 {
		return 0
	}
	return len(f.Data[0])
}

// Derive allocates an empty Frames with the given shape, named as a child of f.
func (f *Frames) Derive(suffix string, frames, features int) *Frames {
	out := &Frames{Name: fmt.Sprintf("%s/%s", f.Name, suffix), Data: make([][]float64, frames)}
	for i := range out.Data {
		out.Data[i] = make([]float64, features)
	}
	return out
}

// AsFrames asserts that a handle is an in-memory Frames. Built-in stages use
// it at their boundary; stages backed by other storage provide their own.
func AsFrames(h Handle) (*Frames, error) {
	f, ok := h.(*Frames)
	if !ok {
		return nil, fmt.Errorf("dataset %q is not an in-memory frame series (got %T)", h.Label(), h)
	}
	if f.NumFrames() == 0 {
		return nil, fmt.Errorf("dataset %q is empty", h.Label())
	}
	return f, nil
}
