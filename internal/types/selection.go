package types

import (
	"encoding/json"
	"time"
)

// ResolverState enumerates the description resolver's states.
type ResolverState string

const (
	StateIdle    ResolverState = "idle"
	StateLoading ResolverState = "loading"
	StateReady   ResolverState = "ready"
	StateMissing ResolverState = "missing"
	StateError   ResolverState = "error"
)

// Selection identifies one user box selection. TraceID ties the resulting
// resolver transitions back to the click that caused them.
type Selection struct {
	TraceID  string `json:"trace_id"`
	Identity string `json:"identity"`
	LabelID  int    `json:"label_id"`
	Name     string `json:"name,omitempty"`
}

// DescriptionUpdate is one resolver state transition, published to the
// rendering surface so it can show loading/ready/missing/error content.
type DescriptionUpdate struct {
	TraceID string        `json:"trace_id"`
	State   ResolverState `json:"state"`
	// Name is the resolved mapping key, set from loading onwards.
	Name string `json:"name,omitempty"`
	// HTML is the rewritten content markup; set only in the ready state.
	HTML string `json:"html,omitempty"`
	// Error is the failure detail; set only in the error state.
	Error        string `json:"error,omitempty"`
	TimestampStr string `json:"timestamp"`
	ts           time.Time
}

// NewDescriptionUpdate stamps an update with the current time.
func NewDescriptionUpdate(traceID string, state ResolverState) DescriptionUpdate {
	now := time.Now()
	return DescriptionUpdate{
		TraceID:      traceID,
		State:        state,
		TimestampStr: now.UTC().Format(time.RFC3339Nano),
		ts:           now,
	}
}

// Timestamp returns when the transition happened.
func (d DescriptionUpdate) Timestamp() time.Time {
	return d.ts
}

// ToJSON converts the update to JSON bytes for publishing.
func (d DescriptionUpdate) ToJSON() ([]byte, error) {
	return json.Marshal(d)
}

// PlayerCommand is an instruction published to the player frontend, e.g.
// the pause issued when a box is selected.
type PlayerCommand struct {
	Action string `json:"action"` // "play", "pause", "seek"
	// Position accompanies seek actions.
	Position *float64 `json:"position,omitempty"`
	TraceID  string   `json:"trace_id,omitempty"`
}
