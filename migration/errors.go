package migration

import (
	"errors"
	"fmt"
)

var (
	// ErrNoGroups is returned by NewEngine without any group to run.
	ErrNoGroups = errors.New("migration: no groups")

	// ErrWrongBackend is returned when source or destination is not the
	// expected engine.
	ErrWrongBackend = errors.New("migration: wrong backend")
)

// Failure is a migrator error. It is always fatal: the group's relational
// transaction has been rolled back and the legacy store stays authoritative.
type Failure struct {
	Group    string
	Migrator string
	Err      error
}

func (f *Failure) Error() string {
	if f.Migrator == "" {
		return fmt.Sprintf("migration group %s failed: %v", f.Group, f.Err)
	}
	return fmt.Sprintf("migration group %s, migrator %s failed: %v", f.Group, f.Migrator, f.Err)
}

func (f *Failure) Unwrap() error {
	return f.Err
}

// IsFailure reports whether err carries a *Failure.
func IsFailure(err error) bool {
	var f *Failure
	return errors.As(err, &f)
}
