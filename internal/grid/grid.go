// Package grid implements the parameter grid offered at a branch point: the
// Cartesian product of per-parameter candidate values, enumerated in a
// deterministic order so downstream consumers can rely on reproducible
// indexing.
package grid

import (
	"github.com/zclconf/go-cty/cty"

	"github.com/vk/mdsweep/internal/stage"
)

// Axis is one parameter dimension of a grid: a name and its ordered
// candidate values.
type Axis struct {
	Name   string
	Values []cty.Value
}

// Grid enumerates the Cartesian product of its axes. Axis declaration order
// is preserved; the product iterates outer-to-inner over declared axes, the
// last axis varying fastest.
type Grid struct {
	axes []Axis
}

// New validates the axes and builds a Grid. A grid with no axes, a duplicate
// axis name, or an axis with no candidate values is a configuration error: a
// fan-out point with no options would silently collapse the tree.
func New(axes ...Axis) (*Grid, error) {
	if len(axes) == 0 {
		return nil, Errorf("parameter grid declares no axes")
	}
	seen := make(map[string]struct{}, len(axes))
	for _, ax := range axes {
		if ax.Name == "" {
			return nil, Errorf("parameter grid axis with empty name")
		}
		if _, dup := seen[ax.Name]; dup {
			return nil, Errorf("parameter grid declares axis %q twice", ax.Name)
		}
		seen[ax.Name] = struct{}{}
		if len(ax.Values) == 0 {
			return nil, Errorf("parameter grid axis %q has no candidate values", ax.Name)
		}
	}
	return &Grid{axes: axes}, nil
}

// Size returns the number of combinations in the product.
func (g *Grid) Size() int {
	n := 1
	for _, ax := range g.axes {
		n *= len(ax.Values)
	}
	return n
}

// Axes returns the declared axes in order.
func (g *Grid) Axes() []Axis {
	return g.axes
}

// Combinations enumerates every concrete parameter assignment in the product.
// The order is the nested iteration order over the declared axes and is
// stable across runs.
func (g *Grid) Combinations() []stage.Params {
	combos := make([]stage.Params, 0, g.Size())
	current := make(stage.Params, len(g.axes))

	var walk func(depth int)
	walk = func(depth int) {
		if depth == len(g.axes) {
			combos = append(combos, current.Clone())
			return
		}
		ax := g.axes[depth]
		for _, v := range ax.Values {
			current[ax.Name] = v
			walk(depth + 1)
		}
	}
	walk(0)
	return combos
}
