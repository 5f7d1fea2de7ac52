package coordinator

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/poiesic/sdstore/storage"
	"github.com/poiesic/sdstore/txn"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type counting struct {
	txn.Backend
	reads, writes atomic.Int32
}

func (c *counting) Read(ctx context.Context, fn func(txn.ReadTx) error) error {
	c.reads.Add(1)
	return c.Backend.Read(ctx, fn)
}

func (c *counting) UIRead(ctx context.Context, fn func(txn.ReadTx) error) error {
	c.reads.Add(1)
	return c.Backend.UIRead(ctx, fn)
}

func (c *counting) Write(ctx context.Context, fn func(txn.WriteTx) error) error {
	c.writes.Add(1)
	return c.Backend.Write(ctx, fn)
}

func newCounting(t *testing.T) (*counting, *counting) {
	t.Helper()
	l, r, closer, err := txn.OpenTestBackends(context.Background(), t.TempDir())
	require.NoError(t, err)
	t.Cleanup(func() { assert.NoError(t, closer()) })
	return &counting{Backend: l}, &counting{Backend: r}
}

func TestStateStrings(t *testing.T) {
	for s := StateLegacyOnly; s <= StateRelationalTests; s++ {
		parsed, err := ParseState(s.String())
		require.NoError(t, err)
		assert.Equal(t, s, parsed)
	}
	_, err := ParseState("sideways")
	assert.Error(t, err)
	assert.Equal(t, "State(42)", State(42).String())
}

func TestRoutingTable(t *testing.T) {
	tests := []struct {
		state         State
		reads, writes storage.BackendKind
	}{
		{StateLegacyOnly, storage.BackendLegacy, storage.BackendLegacy},
		{StateBeforeMigration, storage.BackendLegacy, storage.BackendLegacy},
		{StateDuringMigration, storage.BackendLegacy, storage.BackendRelational},
		{StateRelationalOnly, storage.BackendRelational, storage.BackendRelational},
		{StateLegacyTests, storage.BackendLegacy, storage.BackendLegacy},
		{StateRelationalTests, storage.BackendRelational, storage.BackendRelational},
	}
	for _, tt := range tests {
		t.Run(tt.state.String(), func(t *testing.T) {
			legacy, relational := newCounting(t)
			c, err := New(legacy, relational, tt.state)
			require.NoError(t, err)
			ctx := context.Background()

			var seen []storage.BackendKind
			require.NoError(t, c.Read(ctx, func(tx txn.ReadTx) error {
				seen = append(seen, tx.Backend())
				return nil
			}))
			require.NoError(t, c.UIRead(ctx, func(tx txn.ReadTx) error {
				seen = append(seen, tx.Backend())
				return nil
			}))
			require.NoError(t, c.Write(ctx, func(tx txn.WriteTx) error {
				seen = append(seen, tx.Backend())
				return nil
			}))
			assert.Equal(t, []storage.BackendKind{tt.reads, tt.reads, tt.writes}, seen)

			byKind := map[storage.BackendKind]*counting{
				storage.BackendLegacy:     legacy,
				storage.BackendRelational: relational,
			}
			var reads, writes int32
			for kind, b := range byKind {
				reads += b.reads.Load()
				writes += b.writes.Load()
				if kind != tt.reads {
					assert.Zero(t, b.reads.Load(), "reads leaked to %s", kind)
				}
				if kind != tt.writes {
					assert.Zero(t, b.writes.Load(), "writes leaked to %s", kind)
				}
			}
			assert.EqualValues(t, 2, reads)
			assert.EqualValues(t, 1, writes)
		})
	}
}

func TestAdvanceIsForwardOnly(t *testing.T) {
	legacy, relational := newCounting(t)
	var transitions []string
	c, err := New(legacy, relational, StateLegacyOnly, WithOnAdvance(func(from, to State) error {
		transitions = append(transitions, from.String()+">"+to.String())
		return nil
	}))
	require.NoError(t, err)

	require.NoError(t, c.AdvanceTo(StateRelationalOnly))
	assert.Equal(t, StateRelationalOnly, c.State())
	assert.Equal(t, []string{
		"legacyOnly>beforeMigration",
		"beforeMigration>duringMigration",
		"duringMigration>relationalOnly",
	}, transitions)

	_, err = c.Advance()
	assert.ErrorIs(t, err, ErrTerminalState)
	assert.ErrorIs(t, c.AdvanceTo(StateLegacyOnly), ErrTerminalState)
	assert.Equal(t, StateRelationalOnly, c.State())
}

func TestAdvance_TestStatesAreFixed(t *testing.T) {
	legacy, relational := newCounting(t)
	for _, s := range []State{StateLegacyTests, StateRelationalTests} {
		c, err := New(legacy, relational, s)
		require.NoError(t, err)
		_, err = c.Advance()
		assert.ErrorIs(t, err, ErrTerminalState)
	}
}

func TestAdvance_HookErrorAborts(t *testing.T) {
	legacy, relational := newCounting(t)
	boom := errors.New("disk full")
	c, err := New(legacy, relational, StateBeforeMigration, WithOnAdvance(func(from, to State) error {
		return boom
	}))
	require.NoError(t, err)

	_, err = c.Advance()
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, StateBeforeMigration, c.State())
}

func TestNew_Validates(t *testing.T) {
	legacy, relational := newCounting(t)
	_, err := New(legacy, relational, State(0))
	assert.ErrorIs(t, err, ErrInvalidState)
	_, err = New(relational, legacy, StateLegacyOnly)
	assert.Error(t, err)
	_, err = New(legacy, nil, StateLegacyOnly)
	assert.Error(t, err)
}

func TestGuardedBackend_Strictness(t *testing.T) {
	ctx := context.Background()
	noop := func(txn.WriteTx) error { return nil }

	t.Run("fail", func(t *testing.T) {
		legacy, relational := newCounting(t)
		c, err := New(legacy, relational, StateDuringMigration, WithStrictness(StrictFail))
		require.NoError(t, err)

		err = c.Backend(storage.BackendLegacy).Write(ctx, noop)
		var misroute *storage.MisrouteError
		require.ErrorAs(t, err, &misroute)
		assert.Equal(t, "write", misroute.Op)
		assert.Equal(t, storage.BackendLegacy, misroute.Backend)
		assert.Equal(t, "duringMigration", misroute.State)
		assert.ErrorIs(t, err, storage.ErrBackendMisroute)
		assert.Zero(t, legacy.writes.Load())

		err = c.Backend(storage.BackendRelational).Read(ctx, func(txn.ReadTx) error { return nil })
		assert.ErrorIs(t, err, storage.ErrBackendMisroute)

		// The allowed pair for this state goes through.
		require.NoError(t, c.Backend(storage.BackendRelational).Write(ctx, noop))
		require.NoError(t, c.Backend(storage.BackendLegacy).Read(ctx, func(txn.ReadTx) error { return nil }))
	})

	t.Run("failDebug", func(t *testing.T) {
		legacy, relational := newCounting(t)
		release, err := New(legacy, relational, StateRelationalOnly, WithStrictness(StrictFailDebug))
		require.NoError(t, err)
		assert.NoError(t, release.Backend(storage.BackendLegacy).Write(ctx, noop))
		assert.EqualValues(t, 1, legacy.writes.Load())

		debug, err := New(legacy, relational, StateRelationalOnly, WithStrictness(StrictFailDebug), WithDebug(true))
		require.NoError(t, err)
		assert.ErrorIs(t, debug.Backend(storage.BackendLegacy).Write(ctx, noop), storage.ErrBackendMisroute)
	})

	t.Run("log", func(t *testing.T) {
		legacy, relational := newCounting(t)
		c, err := New(legacy, relational, StateLegacyOnly, WithStrictness(StrictLog), WithDebug(true))
		require.NoError(t, err)
		assert.NoError(t, c.Backend(storage.BackendRelational).Write(ctx, noop))
		assert.EqualValues(t, 1, relational.writes.Load())
	})
}

func TestCanReadCanWrite(t *testing.T) {
	legacy, relational := newCounting(t)
	c, err := New(legacy, relational, StateDuringMigration)
	require.NoError(t, err)
	assert.True(t, c.CanRead(storage.BackendLegacy))
	assert.False(t, c.CanRead(storage.BackendRelational))
	assert.True(t, c.CanWrite(storage.BackendRelational))
	assert.False(t, c.CanWrite(storage.BackendLegacy))
}

func TestAdvance_WaitsForInFlightWrite(t *testing.T) {
	legacy, relational := newCounting(t)
	c, err := New(legacy, relational, StateBeforeMigration)
	require.NoError(t, err)
	ctx := context.Background()

	entered := make(chan struct{})
	finish := make(chan struct{})
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		_ = c.Write(ctx, func(tx txn.WriteTx) error {
			close(entered)
			<-finish
			return nil
		})
	}()
	<-entered

	advanced := make(chan State, 1)
	go func() {
		s, _ := c.Advance()
		advanced <- s
	}()

	select {
	case <-advanced:
		t.Fatal("advance completed while a write was in flight")
	case <-time.After(50 * time.Millisecond):
	}
	close(finish)
	wg.Wait()
	assert.Equal(t, StateDuringMigration, <-advanced)

	require.NoError(t, c.Write(ctx, func(tx txn.WriteTx) error { return nil }))
	assert.EqualValues(t, 1, legacy.writes.Load())
	assert.EqualValues(t, 1, relational.writes.Load())
}

func TestWrite_ReadsStateWhileAdvanceQueued(t *testing.T) {
	legacy, relational := newCounting(t)
	c, err := New(legacy, relational, StateBeforeMigration)
	require.NoError(t, err)
	ctx := context.Background()

	entered := make(chan struct{})
	advanced := make(chan State, 1)
	done := make(chan error, 1)
	go func() {
		done <- c.Write(ctx, func(tx txn.WriteTx) error {
			close(entered)
			// Let Advance queue on the exclusive lock.
			time.Sleep(100 * time.Millisecond)
			if s := c.State(); s != StateBeforeMigration {
				return errors.New("state moved during write: " + s.String())
			}
			if !c.CanRead(storage.BackendLegacy) {
				return errors.New("legacy not readable")
			}
			return c.Read(ctx, func(txn.ReadTx) error { return nil })
		})
	}()
	<-entered
	go func() {
		s, _ := c.Advance()
		advanced <- s
	}()

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(3 * time.Second):
		t.Fatal("write blocked behind queued advance")
	}
	assert.Equal(t, StateDuringMigration, <-advanced)
}
