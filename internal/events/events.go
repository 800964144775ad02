// Package events publishes sweep lifecycle events to a message bus so long
// parameter sweeps can be monitored externally. Emission is best-effort:
// observability failures never abort a computation.
package events

import (
	"context"
	"time"
)

const schemaV1 = "mdsweep.run_event.v1"

// Kind labels the lifecycle transition an event records.
type Kind string

const (
	// KindNodeStarted fires when a worker picks a node up.
	KindNodeStarted Kind = "node_started"
	// KindNodeDone fires when a node's output is available.
	KindNodeDone Kind = "node_done"
	// KindNodeFailed fires on stage failure or ancestor-skip.
	KindNodeFailed Kind = "node_failed"
	// KindRunCompleted summarizes a finished run.
	KindRunCompleted Kind = "run_completed"
)

// Event is the wire record for one lifecycle transition.
type Event struct {
	Schema string    `json:"schema"`
	RunID  string    `json:"run_id"`
	Kind   Kind      `json:"kind"`
	NodeID string    `json:"node_id,omitempty"`
	Stage  string    `json:"stage,omitempty"`
	Error  string    `json:"error,omitempty"`
	Leaves int       `json:"leaves,omitempty"`
	Failed int       `json:"failed,omitempty"`
	At     time.Time `json:"at"`
}

// Emitter receives lifecycle events. Implementations must be safe for
// concurrent use and must not block the scheduler indefinitely.
type Emitter interface {
	Emit(ctx context.Context, ev Event)
}

// Null discards all events. It is the default emitter.
type Null struct{}

// Emit implements Emitter.
func (Null) Emit(context.Context, Event) {}

// New stamps an event with the schema version and current time.
func New(runID string, kind Kind) Event {
	return Event{Schema: schemaV1, RunID: runID, Kind: kind, At: time.Now().UTC()}
}
