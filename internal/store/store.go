// Package store persists experiment definitions, participant
// assignments and raw events. The engine's in-memory state stays
// authoritative while running; the store provides durability and lets
// a restarted process rehydrate running experiments.
package store

import (
	"context"
	"errors"

	"github.com/crescendo-labs/crescendo/internal/experiment"
)

var ErrNotFound = errors.New("not found")

// StoredEvent pairs a raw event with the user who produced it, as
// needed for replay during rehydration.
type StoredEvent struct {
	UserID string
	Event  experiment.Event
}

// Store defines the persistence operations the engine needs.
type Store interface {
	// Experiment definitions (upserted on every state change).
	SaveExperiment(ctx context.Context, exp *experiment.Experiment) error
	GetExperiment(ctx context.Context, id string) (*experiment.Experiment, error)
	ListExperiments(ctx context.Context) ([]*experiment.Experiment, error)

	// Participant assignments, one per (experiment, user) pair.
	SaveAssignment(ctx context.Context, a *experiment.Assignment) error
	ListAssignments(ctx context.Context, experimentID string) ([]*experiment.Assignment, error)

	// Raw events, append-only, in record order.
	AppendEvent(ctx context.Context, experimentID, userID string, ev experiment.Event) error
	ListEvents(ctx context.Context, experimentID string) ([]StoredEvent, error)

	Close() error
}
