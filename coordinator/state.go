package coordinator

import (
	"fmt"

	"github.com/poiesic/sdstore/storage"
)

// State is the migration state of the store.
type State int

const (
	StateLegacyOnly State = iota + 1
	StateBeforeMigration
	StateDuringMigration
	StateRelationalOnly
	// Fixed states for tests; they never advance.
	StateLegacyTests
	StateRelationalTests
)

var stateNames = map[State]string{
	StateLegacyOnly:      "legacyOnly",
	StateBeforeMigration: "beforeMigration",
	StateDuringMigration: "duringMigration",
	StateRelationalOnly:  "relationalOnly",
	StateLegacyTests:     "legacyTests",
	StateRelationalTests: "relationalTests",
}

func (s State) String() string {
	if name, ok := stateNames[s]; ok {
		return name
	}
	return fmt.Sprintf("State(%d)", int(s))
}

// ParseState is the inverse of State.String.
func ParseState(name string) (State, error) {
	for s, n := range stateNames {
		if n == name {
			return s, nil
		}
	}
	return 0, fmt.Errorf("%w: %q", ErrInvalidState, name)
}

func (s State) valid() bool {
	_, ok := stateNames[s]
	return ok
}

// ReadBackend is the backend that serves reads in s.
func (s State) ReadBackend() storage.BackendKind {
	switch s {
	case StateRelationalOnly, StateRelationalTests:
		return storage.BackendRelational
	default:
		return storage.BackendLegacy
	}
}

// WriteBackend is the backend that takes writes in s.
func (s State) WriteBackend() storage.BackendKind {
	switch s {
	case StateDuringMigration, StateRelationalOnly, StateRelationalTests:
		return storage.BackendRelational
	default:
		return storage.BackendLegacy
	}
}

// next is the only transition out of s.
func (s State) next() (State, bool) {
	switch s {
	case StateLegacyOnly:
		return StateBeforeMigration, true
	case StateBeforeMigration:
		return StateDuringMigration, true
	case StateDuringMigration:
		return StateRelationalOnly, true
	default:
		return s, false
	}
}

// Strictness controls what a misrouted operation does.
type Strictness int

const (
	// StrictFail returns the MisrouteError.
	StrictFail Strictness = iota
	// StrictFailDebug returns the error in debug builds and logs otherwise.
	StrictFailDebug
	// StrictLog logs and lets the operation proceed.
	StrictLog
)

func (s Strictness) String() string {
	switch s {
	case StrictFail:
		return "fail"
	case StrictFailDebug:
		return "failDebug"
	case StrictLog:
		return "log"
	default:
		return "unknown"
	}
}
