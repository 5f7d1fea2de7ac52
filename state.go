package sdstore

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/poiesic/sdstore/coordinator"
)

const stateFileName = "storage-state"

// stateFile persists the coordinator state next to the stores.
type stateFile struct {
	path string
}

func newStateFile(dir string) *stateFile {
	return &stateFile{path: filepath.Join(dir, stateFileName)}
}

// load returns the saved state. Without one, a fresh install starts
// relational-only and an existing legacy store starts legacy-only.
func (f *stateFile) load(freshInstall bool) (coordinator.State, error) {
	data, err := os.ReadFile(f.path)
	if os.IsNotExist(err) {
		state := coordinator.StateLegacyOnly
		if freshInstall {
			state = coordinator.StateRelationalOnly
		}
		return state, f.save(state)
	}
	if err != nil {
		return 0, err
	}
	state, err := coordinator.ParseState(strings.TrimSpace(string(data)))
	if err != nil {
		return 0, fmt.Errorf("%s: %w", f.path, err)
	}
	return state, nil
}

// save replaces the file atomically.
func (f *stateFile) save(state coordinator.State) error {
	tmp := f.path + ".tmp"
	if err := os.WriteFile(tmp, []byte(state.String()+"\n"), 0o600); err != nil {
		return err
	}
	return os.Rename(tmp, f.path)
}
