package txn

import (
	"context"
	"errors"

	legacy "github.com/poiesic/sdstore/storage/badger"
	"github.com/poiesic/sdstore/storage/sqlite"
)

// OpenTestBackends opens an in-memory legacy store and a relational store in
// dir. The returned func closes both and may be called more than once.
func OpenTestBackends(ctx context.Context, dir string) (*Legacy, *Relational, func() error, error) {
	lb, err := legacy.NewMemoryBackend()
	if err != nil {
		return nil, nil, nil, err
	}
	rs, err := sqlite.OpenTempStore(ctx, dir)
	if err != nil {
		lb.Close()
		return nil, nil, nil, err
	}
	closer := func() error {
		return errors.Join(rs.Close(), lb.Close())
	}
	return &Legacy{Store: lb}, &Relational{Store: rs}, closer, nil
}
