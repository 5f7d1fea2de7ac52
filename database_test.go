package sdstore

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/poiesic/sdstore/coordinator"
	"github.com/poiesic/sdstore/core"
	"github.com/poiesic/sdstore/dispatch"
	"github.com/poiesic/sdstore/storage"
	"github.com/poiesic/sdstore/txn"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openTestDatabase(t *testing.T, dir string, keys storage.KeyStore, opts ...DatabaseOption) *Database {
	t.Helper()
	opts = append([]DatabaseOption{WithKeyStore(keys)}, opts...)
	db, err := OpenDatabase(context.Background(), dir, opts...)
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return db
}

// legacyInstall leaves an empty legacy store behind, as an app from
// before the relational store would.
func legacyInstall(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(dir, legacyDirName), 0o755))
	return dir
}

func seedThread(t *testing.T, db *Database, id string, messages ...string) {
	t.Helper()
	err := db.Write(context.Background(), func(tx txn.WriteTx) error {
		if err := txn.Insert(tx, txn.Threads, &core.Thread{
			UniqueID: id, Kind: core.ThreadKindContact, ContactPhoneNumber: "+1555" + id,
		}); err != nil {
			return err
		}
		for _, m := range messages {
			if err := txn.InsertInteraction(tx, &core.Interaction{UniqueID: m, ThreadUniqueID: id, Body: m}); err != nil {
				return err
			}
		}
		return nil
	})
	require.NoError(t, err)
}

// lockedKeyStore reports the key missing for the first few fetches, as a
// keychain does until the device is unlocked.
type lockedKeyStore struct {
	*storage.MemoryKeyStore
	locked  atomic.Int32
	fetches atomic.Int32
}

func (l *lockedKeyStore) Fetch(service, key string) ([]byte, error) {
	l.fetches.Add(1)
	if l.locked.Add(-1) >= 0 {
		return nil, storage.ErrCredentialNotFound
	}
	return l.MemoryKeyStore.Fetch(service, key)
}

func TestOpenDatabase(t *testing.T) {
	t.Run("fresh install is relational only", func(t *testing.T) {
		dir := t.TempDir()
		keys := storage.NewMemoryKeyStore()
		db := openTestDatabase(t, dir, keys)
		assert.Equal(t, coordinator.StateRelationalOnly, db.State())
		assert.NotNil(t, db.Pipeline())
		assert.NotNil(t, db.Coordinator())

		data, err := os.ReadFile(filepath.Join(dir, stateFileName))
		require.NoError(t, err)
		assert.Equal(t, "relationalOnly\n", string(data))
	})

	t.Run("existing legacy store starts legacy only", func(t *testing.T) {
		db := openTestDatabase(t, legacyInstall(t), storage.NewMemoryKeyStore())
		assert.Equal(t, coordinator.StateLegacyOnly, db.State())
	})

	t.Run("explicit state wins", func(t *testing.T) {
		db := openTestDatabase(t, t.TempDir(), storage.NewMemoryKeyStore(),
			WithState(coordinator.StateLegacyTests), WithInMemoryLegacy())
		assert.Equal(t, coordinator.StateLegacyTests, db.State())
	})

	t.Run("key store is required", func(t *testing.T) {
		db, err := OpenDatabase(context.Background(), t.TempDir())
		assert.Error(t, err)
		assert.Nil(t, db)
	})

	t.Run("error with invalid path", func(t *testing.T) {
		tmpFile := filepath.Join(t.TempDir(), "not_a_dir")
		require.NoError(t, os.WriteFile(tmpFile, []byte("test"), 0644))

		db, err := OpenDatabase(context.Background(), tmpFile, WithKeyStore(storage.NewMemoryKeyStore()))
		assert.Error(t, err)
		assert.Nil(t, db)
	})

	t.Run("corrupt state file", func(t *testing.T) {
		dir := t.TempDir()
		require.NoError(t, os.WriteFile(filepath.Join(dir, stateFileName), []byte("sideways\n"), 0o600))
		_, err := OpenDatabase(context.Background(), dir, WithKeyStore(storage.NewMemoryKeyStore()))
		assert.ErrorIs(t, err, coordinator.ErrInvalidState)
	})

	t.Run("missing key of existing database is not retried forever", func(t *testing.T) {
		dir := t.TempDir()
		db, err := OpenDatabase(context.Background(), dir, WithKeyStore(storage.NewMemoryKeyStore()))
		require.NoError(t, err)
		require.NoError(t, db.Close())

		start := time.Now()
		_, err = OpenDatabase(context.Background(), dir,
			WithKeyStore(storage.NewMemoryKeyStore()),
			WithAppState(storage.StaticAppState{MainApp: true, Active: false}),
			WithKeyWait(300*time.Millisecond))
		assert.ErrorIs(t, err, storage.ErrKeyUnavailable)
		assert.Less(t, time.Since(start), 10*time.Second)
	})

	t.Run("key that shows up while waiting opens the database", func(t *testing.T) {
		dir := t.TempDir()
		memory := storage.NewMemoryKeyStore()
		db, err := OpenDatabase(context.Background(), dir, WithKeyStore(memory))
		require.NoError(t, err)
		seedThread(t, db, "t1")
		require.NoError(t, db.Close())

		keys := &lockedKeyStore{MemoryKeyStore: memory}
		keys.locked.Store(2)
		db, err = OpenDatabase(context.Background(), dir,
			WithKeyStore(keys),
			WithAppState(storage.StaticAppState{MainApp: true, Active: false}),
			WithKeyWait(10*time.Second))
		require.NoError(t, err)
		t.Cleanup(func() { db.Close() })
		assert.GreaterOrEqual(t, keys.fetches.Load(), int32(3))

		err = db.Read(context.Background(), func(tx txn.ReadTx) error {
			thread, err := txn.Fetch(tx, txn.Threads, "t1")
			require.NoError(t, err)
			assert.NotNil(t, thread)
			return nil
		})
		require.NoError(t, err)
	})
}

func TestDatabase_BackgroundCompletions(t *testing.T) {
	db, err := OpenDatabase(context.Background(), t.TempDir(),
		WithKeyStore(storage.NewMemoryKeyStore()), WithCompletionPool(2))
	require.NoError(t, err)

	ran := make(chan struct{})
	err = db.Write(context.Background(), func(tx txn.WriteTx) error {
		tx.AddCompletion(db.Background(), func() { close(ran) })
		return txn.Insert(tx, txn.Threads, &core.Thread{UniqueID: "t1", Kind: core.ThreadKindContact})
	})
	require.NoError(t, err)

	select {
	case <-ran:
	case <-time.After(3 * time.Second):
		t.Fatal("completion never ran on the background pool")
	}

	require.NoError(t, db.Close())
	assert.ErrorIs(t, db.Background().Submit(func() {}), dispatch.ErrClosed)
}

func TestDatabase_Close(t *testing.T) {
	db, err := OpenDatabase(context.Background(), t.TempDir(), WithKeyStore(storage.NewMemoryKeyStore()))
	require.NoError(t, err)
	assert.NoError(t, db.Close())
}

func TestDatabase_Migrate(t *testing.T) {
	ctx := context.Background()
	dir := legacyInstall(t)
	keys := storage.NewMemoryKeyStore()

	db, err := OpenDatabase(ctx, dir, WithKeyStore(keys))
	require.NoError(t, err)
	seedThread(t, db, "T1", "m1", "m2", "m3")
	seedThread(t, db, "T2", "m4")

	report, err := db.Migrate(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, report.Migrated["records:"+core.ThreadCollection])
	assert.Equal(t, 4, report.Migrated["interactions"])
	assert.Equal(t, coordinator.StateRelationalOnly, db.State())

	err = db.Read(ctx, func(tx txn.ReadTx) error {
		assert.Equal(t, storage.BackendRelational, tx.Backend())
		ids, err := txn.InteractionIDs(tx, "T1")
		require.NoError(t, err)
		assert.Equal(t, []string{"m3", "m2", "m1"}, ids)
		return nil
	})
	require.NoError(t, err)

	again, err := db.Migrate(ctx)
	require.NoError(t, err)
	assert.Empty(t, again.Migrated)
	require.NoError(t, db.Close())

	// The state survives a relaunch.
	db = openTestDatabase(t, dir, keys)
	assert.Equal(t, coordinator.StateRelationalOnly, db.State())
	stats, err := db.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, stats[core.ThreadCollection])
	assert.Equal(t, 4, stats[core.InteractionCollection])
}

func TestDatabase_MigrateInTestState(t *testing.T) {
	db := openTestDatabase(t, t.TempDir(), storage.NewMemoryKeyStore(),
		WithState(coordinator.StateLegacyTests), WithInMemoryLegacy())
	_, err := db.Migrate(context.Background())
	assert.ErrorIs(t, err, ErrMigrationUnsupported)
}

func TestDatabase_ContactsRoundTrip(t *testing.T) {
	ctx := context.Background()
	src := openTestDatabase(t, t.TempDir(), storage.NewMemoryKeyStore())
	seedThread(t, src, "A", "a1")
	seedThread(t, src, "B")

	var buf bytes.Buffer
	n, err := src.ExportContacts(ctx, &buf)
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	dst := openTestDatabase(t, t.TempDir(), storage.NewMemoryKeyStore())
	n, err = dst.ImportContacts(ctx, bytes.NewReader(buf.Bytes()))
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	// A second import updates instead of duplicating.
	_, err = dst.ImportContacts(ctx, bytes.NewReader(buf.Bytes()))
	require.NoError(t, err)

	err = dst.Read(ctx, func(tx txn.ReadTx) error {
		count, err := txn.Count(tx, txn.Threads)
		require.NoError(t, err)
		assert.Equal(t, 2, count)

		visible, err := txn.VisibleThreads(tx, false)
		require.NoError(t, err)
		require.Len(t, visible, 1)
		assert.Equal(t, "+1555A", visible[0].ContactPhoneNumber)
		return nil
	})
	require.NoError(t, err)
}

func TestDatabase_GroupsRoundTrip(t *testing.T) {
	ctx := context.Background()
	src := openTestDatabase(t, t.TempDir(), storage.NewMemoryKeyStore())
	err := src.Write(ctx, func(tx txn.WriteTx) error {
		return txn.Insert(tx, txn.Threads, &core.Thread{
			UniqueID: "G", Kind: core.ThreadKindGroup, GroupID: []byte{1, 2, 3},
			Name: "Book Club", IsArchived: true, ShouldBeVisible: true,
		})
	})
	require.NoError(t, err)

	var buf bytes.Buffer
	n, err := src.ExportGroups(ctx, &buf)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	dst := openTestDatabase(t, t.TempDir(), storage.NewMemoryKeyStore())
	_, err = dst.ImportGroups(ctx, bytes.NewReader(buf.Bytes()))
	require.NoError(t, err)

	err = dst.Read(ctx, func(tx txn.ReadTx) error {
		archived, err := txn.VisibleThreads(tx, true)
		require.NoError(t, err)
		require.Len(t, archived, 1)
		assert.Equal(t, "Book Club", archived[0].Name)
		assert.Equal(t, []byte{1, 2, 3}, archived[0].GroupID)
		return nil
	})
	require.NoError(t, err)
}

func TestDatabase_SyncTruncatingCheckpoint(t *testing.T) {
	db := openTestDatabase(t, t.TempDir(), storage.NewMemoryKeyStore())
	seedThread(t, db, "T1", "m1")

	result, err := db.SyncTruncatingCheckpoint(context.Background(), time.Second)
	require.NoError(t, err)
	assert.False(t, result.Skipped)
	assert.Equal(t, result.WALSizePages, result.PagesCheckpointed)
}

func TestDatabase_CrossProcessNotice(t *testing.T) {
	var posts atomic.Int32
	db := openTestDatabase(t, t.TempDir(), storage.NewMemoryKeyStore(),
		WithCrossProcessPost(func() { posts.Add(1) }))

	seedThread(t, db, "T1")
	assert.Equal(t, int32(1), posts.Load())

	db.DidResignActive()
	seedThread(t, db, "T2")
	seedThread(t, db, "T3")
	assert.Equal(t, int32(1), posts.Load())

	db.DidBecomeActive()
	assert.Equal(t, int32(2), posts.Load())
}

func TestDatabase_KeyValueStore(t *testing.T) {
	ctx := context.Background()
	db := openTestDatabase(t, t.TempDir(), storage.NewMemoryKeyStore())
	kv, err := db.KeyValueStore("prefs")
	require.NoError(t, err)

	require.NoError(t, db.Write(ctx, func(tx txn.WriteTx) error {
		return kv.SetString(tx, "theme", "dark")
	}))
	require.NoError(t, db.Read(ctx, func(tx txn.ReadTx) error {
		v, ok, err := kv.String(tx, "theme")
		require.NoError(t, err)
		assert.True(t, ok)
		assert.Equal(t, "dark", v)
		return nil
	}))
}

func TestDatabase_MigrateStrict(t *testing.T) {
	ctx := context.Background()
	db := openTestDatabase(t, legacyInstall(t), storage.NewMemoryKeyStore(),
		WithStrictness(coordinator.StrictFail, true))
	seedThread(t, db, "T1", "m1")

	_, err := db.Migrate(ctx)
	require.NoError(t, err)
	assert.Equal(t, coordinator.StateRelationalOnly, db.State())

	// Going around the router is refused once the legacy store is retired.
	err = db.Coordinator().Backend(storage.BackendLegacy).Read(ctx, func(txn.ReadTx) error { return nil })
	var misroute *storage.MisrouteError
	assert.ErrorAs(t, err, &misroute)
}
