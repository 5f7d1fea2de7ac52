package sqlite

import (
	"context"
	"path/filepath"

	"github.com/poiesic/sdstore/storage"
)

// OpenTempStore opens a store in dir with an in-memory key store, for tests.
func OpenTempStore(ctx context.Context, dir string, opts ...Option) (*Store, error) {
	cfg := NewConfig(
		WithPath(filepath.Join(dir, "signal.sqlite")),
		WithKeyStore(storage.NewMemoryKeyStore()),
	)
	return Open(ctx, cfg, opts...)
}
