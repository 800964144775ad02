package tree

import (
	"context"

	"github.com/vk/mdsweep/internal/ctxlog"
	"github.com/vk/mdsweep/internal/grid"
	"github.com/vk/mdsweep/internal/stage"
)

// Build expands a template into a computation tree, processing entries left
// to right while maintaining a frontier of leaves. Equivalent sibling specs
// are merged into a single node as they are inserted, which is what makes a
// shared prefix evaluate exactly once no matter how many leaves descend from
// it. All validation happens here, before any evaluation starts.
//
// The registry is optional; when provided, every stage type in the template
// must be registered.
func Build(ctx context.Context, template Template, reg *stage.Registry) (*Tree, error) {
	logger := ctxlog.FromContext(ctx)

	if len(template) == 0 {
		return nil, grid.Errorf("template declares no stages")
	}

	root := &Node{
		ID:            "input",
		LeafIndex:     -1,
		childrenByKey: make(map[string]*Node),
	}
	t := &Tree{Root: root}

	frontier := []*Node{root}
	for i, entry := range template {
		specs, err := entrySpecs(i, entry, reg)
		if err != nil {
			return nil, err
		}

		next := make([]*Node, 0, len(frontier)*len(specs))
		for _, parent := range frontier {
			for _, spec := range specs {
				child, created := t.ensureChild(parent, spec)
				if created {
					next = append(next, child)
				}
			}
		}
		frontier = next
		logger.Debug("Template entry expanded.", "entry", i, "frontier", len(frontier))
	}

	for idx, leaf := range frontier {
		leaf.LeafIndex = idx
	}
	t.Leaves = frontier

	// The open-children counters drive output release during evaluation.
	for _, n := range t.Nodes {
		n.openChildren.Store(int32(len(n.Children)))
		n.childrenByKey = nil
	}
	root.openChildren.Store(int32(len(root.Children)))
	root.childrenByKey = nil

	logger.Debug("Computation tree built.", "nodes", t.Size(), "leaves", len(t.Leaves))
	return t, nil
}

// entrySpecs realizes the specs a template entry contributes under every
// frontier node: one for a fixed stage, one per grid combination for a branch.
func entrySpecs(pos int, entry Entry, reg *stage.Registry) ([]stage.Spec, error) {
	switch {
	case entry.Fixed != nil && entry.Branch != nil:
		return nil, grid.Errorf("template entry %d is both a fixed stage and a branch", pos)
	case entry.Fixed != nil:
		if err := checkType(pos, entry.Fixed.Type, reg); err != nil {
			return nil, err
		}
		spec := *entry.Fixed
		if spec.Role == "" {
			spec.Role = stage.RoleFitTransform
		}
		return []stage.Spec{spec}, nil
	case entry.Branch != nil:
		b := entry.Branch
		if err := checkType(pos, b.Type, reg); err != nil {
			return nil, err
		}
		if b.Grid == nil {
			return nil, grid.Errorf("branch %q at entry %d has no parameter grid", b.Type, pos)
		}
		role := b.Role
		if role == "" {
			role = stage.RoleFitTransform
		}
		combos := b.Grid.Combinations()
		specs := make([]stage.Spec, 0, len(combos))
		for _, p := range combos {
			specs = append(specs, stage.Spec{Type: b.Type, Role: role, Params: p})
		}
		return specs, nil
	default:
		return nil, grid.Errorf("template entry %d is empty", pos)
	}
}

func checkType(pos int, typ string, reg *stage.Registry) error {
	if typ == "" {
		return grid.Errorf("template entry %d has no stage type", pos)
	}
	if reg != nil && !reg.Has(typ) {
		return grid.Errorf("template entry %d names unregistered stage type %q", pos, typ)
	}
	return nil
}

// ensureChild returns the child of parent carrying an equivalent spec,
// creating it if none exists. The boolean reports creation; a combination
// that coincides with an existing sibling is merged and must not be added to
// the frontier twice.
func (t *Tree) ensureChild(parent *Node, spec stage.Spec) (*Node, bool) {
	key := spec.Key()
	if existing, ok := parent.childrenByKey[key]; ok {
		return existing, false
	}
	child := &Node{
		ID:            parent.ID + "/" + spec.String(),
		Spec:          spec,
		Parent:        parent,
		Depth:         parent.Depth + 1,
		LeafIndex:     -1,
		childrenByKey: make(map[string]*Node),
	}
	parent.Children = append(parent.Children, child)
	parent.childrenByKey[key] = child
	t.Nodes = append(t.Nodes, child)
	return child, true
}
