package sync

import (
	"errors"
	"fmt"
)

// Kind identifies which entity family a sync pass covers
type Kind string

const (
	KindProfile  Kind = "profile"
	KindCycle    Kind = "cycle"
	KindSleep    Kind = "sleep"
	KindRecovery Kind = "recovery"
	KindWorkout  Kind = "workout"
)

// EntityKinds are the collection kinds in dependency order: recoveries
// reference cycles and sleeps so they sync last
var EntityKinds = []Kind{KindCycle, KindSleep, KindWorkout, KindRecovery}

// ErrSyncInProgress is returned when a sync pass is already running for the user
var ErrSyncInProgress = errors.New("sync already in progress")

// Error wraps a failure in one sync pass with its kind and user
type Error struct {
	Kind   Kind
	UserID int64
	Err    error
}

func (e *Error) Error() string {
	return fmt.Sprintf("sync %s for user %d: %v", e.Kind, e.UserID, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}
