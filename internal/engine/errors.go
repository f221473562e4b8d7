package engine

import (
	"errors"
	"fmt"

	"github.com/crescendo-labs/crescendo/internal/experiment"
)

var (
	// ErrExperimentNotFound is returned for unknown experiment ids.
	ErrExperimentNotFound = errors.New("experiment not found")

	// ErrUserNotInExperiment is returned by TrackEvent when the user
	// was never assigned to the experiment.
	ErrUserNotInExperiment = errors.New("user not in experiment")

	// ErrInvalidStopReason is returned for stop reasons outside
	// {manual, early_significance}.
	ErrInvalidStopReason = errors.New("invalid stop reason")
)

// StateError reports an operation that is invalid for the experiment's
// current lifecycle state. The state is left untouched.
type StateError struct {
	Op     string
	Status experiment.Status
}

func (e *StateError) Error() string {
	return fmt.Sprintf("cannot %s experiment in state %q", e.Op, e.Status)
}
