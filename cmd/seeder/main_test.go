package main

import (
	"context"
	"os"
	"path/filepath"
	"slices"
	"testing"

	"github.com/poiesic/sdstore"
	"github.com/poiesic/sdstore/coordinator"
	"github.com/poiesic/sdstore/storage"
	"github.com/poiesic/sdstore/txn"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLinesFromFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "seed.txt")
	require.NoError(t, os.WriteFile(path, []byte("one\ntwo\nthree\n"), 0o644))

	lines, err := linesFromFile(path)
	require.NoError(t, err)
	assert.Equal(t, []string{"one", "two", "three"}, slices.Collect(lines))

	_, err = linesFromFile(filepath.Join(t.TempDir(), "missing"))
	assert.Error(t, err)
}

func TestSeedBatched(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(dir, "legacy"), 0o755))
	db, err := sdstore.OpenDatabase(ctx, dir, sdstore.WithKeyStore(storage.NewMemoryKeyStore()))
	require.NoError(t, err)
	defer db.Close()
	require.Equal(t, coordinator.StateLegacyOnly, db.State())

	threads, err := createThreads(ctx, db, 3)
	require.NoError(t, err)
	n, err := seedBatched(ctx, db, threads, linesFromSlice(sentences), 4)
	require.NoError(t, err)
	assert.Equal(t, len(sentences), n)

	err = db.Read(ctx, func(tx txn.ReadTx) error {
		total := 0
		for _, id := range threads {
			count, err := txn.InteractionCount(tx, id)
			require.NoError(t, err)
			assert.GreaterOrEqual(t, count, len(sentences)/3)
			total += count
		}
		assert.Equal(t, len(sentences), total)
		return nil
	})
	require.NoError(t, err)
}
