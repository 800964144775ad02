package testutil

import (
	"testing"

	"github.com/zclconf/go-cty/cty"

	"github.com/vk/mdsweep/internal/dataset"
	"github.com/vk/mdsweep/internal/grid"
	"github.com/vk/mdsweep/internal/stage"
	"github.com/vk/mdsweep/internal/tree"
)

// InputFrames builds a deterministic dataset with the given shape. Row i,
// column j holds the value i*features+j.
func InputFrames(name string, frames, features int) *dataset.Frames {
	data := make([][]float64, frames)
	for i := range data {
		row := make([]float64, features)
		for j := range row {
			row[j] = float64(i*features + j)
		}
		data[i] = row
	}
	return &dataset.Frames{Name: name, Data: data}
}

// IntAxis builds a grid axis of cty numbers from integer values.
func IntAxis(name string, values ...int64) grid.Axis {
	vals := make([]cty.Value, len(values))
	for i, v := range values {
		vals[i] = cty.NumberIntVal(v)
	}
	return grid.Axis{Name: name, Values: vals}
}

// MustGrid builds a grid from the given axes, failing the test on error.
func MustGrid(t *testing.T, axes ...grid.Axis) *grid.Grid {
	t.Helper()
	g, err := grid.New(axes...)
	if err != nil {
		t.Fatalf("building grid: %v", err)
	}
	return g
}

// FixedStage builds a fixed fit-transform template entry.
func FixedStage(typ string, p stage.Params) tree.Entry {
	return tree.FixedEntry(stage.NewSpec(typ, p))
}

// BranchStage builds a fit-transform branch entry over an integer axis.
func BranchStage(t *testing.T, typ, axis string, values ...int64) tree.Entry {
	t.Helper()
	return tree.BranchEntry(typ, stage.RoleFitTransform, MustGrid(t, IntAxis(axis, values...)))
}
