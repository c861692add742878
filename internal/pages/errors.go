package pages

import (
	"errors"
	"fmt"
)

var (
	// ErrNotFound is returned by Get for unknown, unreadable or malformed pages.
	ErrNotFound = errors.New("page not found")
	// ErrIndexCorrupt marks an index file that exists but does not decode.
	ErrIndexCorrupt = errors.New("page index is corrupt")
	// ErrLockNotAcquired is returned when the index lock could not be taken
	// before the context ended.
	ErrLockNotAcquired = errors.New("index lock not acquired")
)

// PersistenceError reports a failed artifact write. Files written before the
// failure are left in place.
type PersistenceError struct {
	Op   string
	Path string
	Err  error
}

func (e *PersistenceError) Error() string {
	return fmt.Sprintf("persist %s %s: %v", e.Op, e.Path, e.Err)
}

func (e *PersistenceError) Unwrap() error { return e.Err }
