// Package config holds the format-agnostic representation of a sweep
// declaration, decoupled from the HCL front end that produces it.
package config

import (
	"github.com/zclconf/go-cty/cty"

	"github.com/vk/mdsweep/internal/grid"
	"github.com/vk/mdsweep/internal/stage"
	"github.com/vk/mdsweep/internal/tree"
)

// Model is the unified representation of one sweep: run settings plus the
// ordered template of stages and branches.
type Model struct {
	Sweep   *Sweep
	Entries []*Entry
}

// Sweep carries run-level settings from the `sweep` block.
type Sweep struct {
	Name    string
	Workers int
	Dataset string
}

// Entry is one template position; exactly one field is set.
type Entry struct {
	Stage  *Stage
	Branch *Branch
}

// Stage is the representation of a fixed `stage` block.
type Stage struct {
	Type   string
	Role   string
	Params map[string]cty.Value
}

// Branch is the representation of a `branch` block.
type Branch struct {
	Type string
	Role string
	Grid []Axis
}

// Axis is one grid dimension in declared order.
type Axis struct {
	Name   string
	Values []cty.Value
}

// Template converts the model into the engine's template form, constructing
// parameter grids as it goes. Grid validation errors surface here as
// configuration errors.
func (m *Model) Template() (tree.Template, error) {
	template := make(tree.Template, 0, len(m.Entries))
	for _, e := range m.Entries {
		switch {
		case e.Stage != nil:
			spec := stage.Spec{
				Type:   e.Stage.Type,
				Role:   stage.Role(e.Stage.Role),
				Params: stage.Params(e.Stage.Params),
			}
			if spec.Role == "" {
				spec.Role = stage.RoleFitTransform
			}
			if spec.Params == nil {
				spec.Params = stage.Params{}
			}
			template = append(template, tree.FixedEntry(spec))
		case e.Branch != nil:
			axes := make([]grid.Axis, len(e.Branch.Grid))
			for i, ax := range e.Branch.Grid {
				axes[i] = grid.Axis{Name: ax.Name, Values: ax.Values}
			}
			g, err := grid.New(axes...)
			if err != nil {
				return nil, err
			}
			role := stage.Role(e.Branch.Role)
			if role == "" {
				role = stage.RoleFitTransform
			}
			template = append(template, tree.BranchEntry(e.Branch.Type, role, g))
		}
	}
	return template, nil
}
