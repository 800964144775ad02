// Package hclcfg parses sweep declarations written in HCL into the
// format-agnostic config model. Template order is significant, so parsing
// walks the syntax tree directly instead of decoding into unordered structs.
package hclcfg

import (
	"context"
	"fmt"
	"sort"

	"github.com/hashicorp/hcl/v2/hclparse"
	"github.com/hashicorp/hcl/v2/hclsyntax"
	"github.com/zclconf/go-cty/cty"

	"github.com/vk/mdsweep/internal/config"
	"github.com/vk/mdsweep/internal/ctxlog"
	"github.com/vk/mdsweep/internal/fsutil"
	"github.com/vk/mdsweep/internal/grid"
)

// Load parses a single .hcl file or a directory of them into a Model. With a
// directory, files contribute template entries in lexicographic file order.
func Load(ctx context.Context, path string) (*config.Model, error) {
	logger := ctxlog.FromContext(ctx)

	files, err := fsutil.FindFilesByExtension(path, ".hcl")
	if err != nil {
		return nil, fmt.Errorf("finding sweep files in %s: %w", path, err)
	}
	if len(files) == 0 {
		return nil, grid.Errorf("no .hcl sweep files found at %s", path)
	}

	model := &config.Model{}
	parser := hclparse.NewParser()
	for _, file := range files {
		if err := loadFile(file, parser, model); err != nil {
			return nil, err
		}
		logger.Debug("Parsed sweep file.", "path", file)
	}
	if len(model.Entries) == 0 {
		return nil, grid.Errorf("sweep at %s declares no stages or branches", path)
	}
	return model, nil
}

func loadFile(path string, parser *hclparse.Parser, model *config.Model) error {
	hclFile, diags := parser.ParseHCLFile(path)
	if diags.HasErrors() {
		return fmt.Errorf("failed to parse %s: %w", path, diags)
	}
	body, ok := hclFile.Body.(*hclsyntax.Body)
	if !ok {
		return fmt.Errorf("unexpected body type for %s", path)
	}

	for _, block := range body.Blocks {
		switch block.Type {
		case "sweep":
			sweep, err := decodeSweep(block)
			if err != nil {
				return err
			}
			if model.Sweep != nil {
				return grid.Errorf("duplicate sweep block in %s", path)
			}
			model.Sweep = sweep
		case "stage":
			entry, err := decodeStage(block)
			if err != nil {
				return err
			}
			model.Entries = append(model.Entries, entry)
		case "branch":
			entry, err := decodeBranch(block)
			if err != nil {
				return err
			}
			model.Entries = append(model.Entries, entry)
		default:
			return grid.Errorf("unsupported block %q in %s", block.Type, path)
		}
	}
	return nil
}

func decodeSweep(block *hclsyntax.Block) (*config.Sweep, error) {
	if len(block.Labels) != 0 {
		return nil, grid.Errorf("sweep block takes no labels")
	}
	sweep := &config.Sweep{}
	for name, attr := range block.Body.Attributes {
		v, err := staticValue(attr)
		if err != nil {
			return nil, err
		}
		switch name {
		case "name":
			if v.Type() != cty.String {
				return nil, grid.Errorf("sweep name must be a string")
			}
			sweep.Name = v.AsString()
		case "workers":
			n, err := intValue(v)
			if err != nil {
				return nil, grid.Errorf("sweep workers: %v", err)
			}
			sweep.Workers = n
		case "dataset":
			if v.Type() != cty.String {
				return nil, grid.Errorf("sweep dataset must be a string")
			}
			sweep.Dataset = v.AsString()
		default:
			return nil, grid.Errorf("unsupported sweep attribute %q", name)
		}
	}
	return sweep, nil
}

func decodeStage(block *hclsyntax.Block) (*config.Entry, error) {
	if len(block.Labels) != 1 {
		return nil, grid.Errorf("stage block needs exactly one label (the stage type)")
	}
	st := &config.Stage{Type: block.Labels[0], Params: map[string]cty.Value{}}

	role, err := roleAttribute(block)
	if err != nil {
		return nil, err
	}
	st.Role = role

	for _, inner := range block.Body.Blocks {
		if inner.Type != "params" {
			return nil, grid.Errorf("unsupported block %q in stage %q", inner.Type, st.Type)
		}
		for name, attr := range inner.Body.Attributes {
			v, err := staticValue(attr)
			if err != nil {
				return nil, err
			}
			st.Params[name] = v
		}
	}
	return &config.Entry{Stage: st}, nil
}

func decodeBranch(block *hclsyntax.Block) (*config.Entry, error) {
	if len(block.Labels) != 1 {
		return nil, grid.Errorf("branch block needs exactly one label (the stage type)")
	}
	br := &config.Branch{Type: block.Labels[0]}

	role, err := roleAttribute(block)
	if err != nil {
		return nil, err
	}
	br.Role = role

	for _, inner := range block.Body.Blocks {
		if inner.Type != "grid" {
			return nil, grid.Errorf("unsupported block %q in branch %q", inner.Type, br.Type)
		}
		axes, err := decodeGrid(inner, br.Type)
		if err != nil {
			return nil, err
		}
		br.Grid = append(br.Grid, axes...)
	}
	if len(br.Grid) == 0 {
		return nil, grid.Errorf("branch %q declares no grid", br.Type)
	}
	return &config.Entry{Branch: br}, nil
}

// decodeGrid reads grid axes in source declaration order: the attribute map
// is unordered, so axes are sorted back by their source position.
func decodeGrid(block *hclsyntax.Block, branchType string) ([]config.Axis, error) {
	attrs := make([]*hclsyntax.Attribute, 0, len(block.Body.Attributes))
	for _, attr := range block.Body.Attributes {
		attrs = append(attrs, attr)
	}
	sort.Slice(attrs, func(i, j int) bool {
		return attrs[i].SrcRange.Start.Byte < attrs[j].SrcRange.Start.Byte
	})

	axes := make([]config.Axis, 0, len(attrs))
	for _, attr := range attrs {
		v, err := staticValue(attr)
		if err != nil {
			return nil, err
		}
		if !v.Type().IsTupleType() && !v.Type().IsListType() {
			return nil, grid.Errorf("branch %q grid axis %q must be a list of candidate values", branchType, attr.Name)
		}
		values := make([]cty.Value, 0, v.LengthInt())
		for it := v.ElementIterator(); it.Next(); {
			_, ev := it.Element()
			values = append(values, ev)
		}
		axes = append(axes, config.Axis{Name: attr.Name, Values: values})
	}
	return axes, nil
}

func roleAttribute(block *hclsyntax.Block) (string, error) {
	for name, attr := range block.Body.Attributes {
		if name != "role" {
			return "", grid.Errorf("unsupported attribute %q in %s %q", name, block.Type, block.Labels[0])
		}
		v, err := staticValue(attr)
		if err != nil {
			return "", err
		}
		if v.Type() != cty.String {
			return "", grid.Errorf("%s %q role must be a string", block.Type, block.Labels[0])
		}
		role := v.AsString()
		switch role {
		case "fit", "fit_transform":
			return role, nil
		default:
			return "", grid.Errorf("%s %q has unknown role %q", block.Type, block.Labels[0], role)
		}
	}
	return "", nil
}

// staticValue evaluates an attribute without an evaluation context; sweep
// files are declarative and may not reference other blocks.
func staticValue(attr *hclsyntax.Attribute) (cty.Value, error) {
	v, diags := attr.Expr.Value(nil)
	if diags.HasErrors() {
		return cty.NilVal, grid.Errorf("attribute %q is not a static value: %s", attr.Name, diags.Error())
	}
	return v, nil
}

func intValue(v cty.Value) (int, error) {
	if v.Type() != cty.Number {
		return 0, fmt.Errorf("expected a number, got %s", v.Type().FriendlyName())
	}
	i, _ := v.AsBigFloat().Int64()
	return int(i), nil
}
