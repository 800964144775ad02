package tree

import (
	"github.com/vk/mdsweep/internal/grid"
	"github.com/vk/mdsweep/internal/stage"
)

// Branch marks a fan-out point in a template: every combination of its grid
// produces a distinct downstream configuration of the named stage type.
type Branch struct {
	Type string
	Role stage.Role
	Grid *grid.Grid
}

// Entry is one position in a template: either a fixed stage spec or a branch.
// Exactly one of the two fields is set.
type Entry struct {
	Fixed  *stage.Spec
	Branch *Branch
}

// Template is the ordered sweep declaration expanded into a Tree.
type Template []Entry

// FixedEntry wraps a concrete stage spec as a template entry.
func FixedEntry(spec stage.Spec) Entry {
	return Entry{Fixed: &spec}
}

// BranchEntry declares a fan-out over the given grid.
func BranchEntry(typ string, role stage.Role, g *grid.Grid) Entry {
	return Entry{Branch: &Branch{Type: typ, Role: role, Grid: g}}
}

// LeafCount returns the number of leaves the template will expand to, before
// any coincidental-equivalence merging.
func (t Template) LeafCount() int {
	n := 1
	for _, e := range t {
		if e.Branch != nil && e.Branch.Grid != nil {
			n *= e.Branch.Grid.Size()
		}
	}
	return n
}
