// Package host declares the capabilities consumed from the controlled
// platform. The daemon never talks to devices directly: it reads raw entity
// state, subscribes to state-change notifications and issues writes through
// these interfaces.
package host

import "context"

// RawState is the host's view of an entity at a point in time.
type RawState struct {
	EntityID   string
	State      string
	Attributes map[string]any
}

// StateChange is one state-change notification delivered by the host.
// CorrelationID carries the token this daemon attached to the write that
// caused the change, or "" when the transport could not attribute it.
type StateChange struct {
	EntityID      string
	Old           *RawState
	New           *RawState
	CorrelationID string
}

// StateStore reads current raw entity state.
type StateStore interface {
	GetState(ctx context.Context, entityID string) (*RawState, error)
}

// Writer issues platform commands. The correlation id tags the outgoing
// write so the resulting state-change notification can be recognized as an
// echo of this daemon's own action.
type Writer interface {
	PerformWrite(ctx context.Context, entityID, domain, service string, payload map[string]any, correlationID string) error
}
