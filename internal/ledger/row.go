package ledger

import (
	"encoding/json"
	"fmt"

	ctyjson "github.com/zclconf/go-cty/cty/json"

	"github.com/vk/mdsweep/internal/scheduler"
	"github.com/vk/mdsweep/internal/stage"
)

// Row is one sweep_leaves record, separated from I/O so encoding is testable
// without a database.
type Row struct {
	RunID      string
	LeafIndex  int
	NodeID     string
	Assignment []byte
	Status     string
	Error      *string
}

// assignmentStage is the JSON shape of one stage along a leaf's path.
type assignmentStage struct {
	Type   string                     `json:"type"`
	Role   string                     `json:"role"`
	Params map[string]json.RawMessage `json:"params"`
}

// LeafRow encodes one leaf result for insertion.
func LeafRow(runID string, r scheduler.LeafResult) (Row, error) {
	assignment, err := encodeAssignment(r.Path)
	if err != nil {
		return Row{}, fmt.Errorf("encoding assignment for leaf %d: %w", r.LeafIndex, err)
	}

	row := Row{
		RunID:      runID,
		LeafIndex:  r.LeafIndex,
		NodeID:     r.NodeID,
		Assignment: assignment,
		Status:     "done",
	}
	if r.Failed() {
		msg := r.Err.Error()
		row.Error = &msg
		row.Status = "failed"
		if scheduler.IsSkip(r.Err) {
			row.Status = "skipped"
		}
	}
	return row, nil
}

func encodeAssignment(path []stage.Spec) ([]byte, error) {
	stages := make([]assignmentStage, len(path))
	for i, spec := range path {
		params := make(map[string]json.RawMessage, len(spec.Params))
		for _, name := range spec.Params.Names() {
			v := spec.Params[name]
			raw, err := ctyjson.Marshal(v, v.Type())
			if err != nil {
				return nil, fmt.Errorf("parameter %s.%s: %w", spec.Type, name, err)
			}
			params[name] = raw
		}
		stages[i] = assignmentStage{Type: spec.Type, Role: string(spec.Role), Params: params}
	}
	return json.Marshal(stages)
}
