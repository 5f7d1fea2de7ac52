package coordinator

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"

	"github.com/poiesic/sdstore/txn"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCrossProcess_ActivePostsImmediately(t *testing.T) {
	var posts atomic.Int32
	n := NewCrossProcess(true, func() { posts.Add(1) }, nil, nil)

	n.DidCommitWrite()
	n.DidCommitWrite()
	assert.EqualValues(t, 2, posts.Load())
	assert.False(t, n.Pending())
}

func TestCrossProcess_InactiveCollapses(t *testing.T) {
	var posts atomic.Int32
	n := NewCrossProcess(false, func() { posts.Add(1) }, nil, nil)

	for range 5 {
		n.DidCommitWrite()
	}
	assert.Zero(t, posts.Load())
	assert.True(t, n.Pending())

	n.DidBecomeActive()
	assert.EqualValues(t, 1, posts.Load())
	assert.False(t, n.Pending())

	// Nothing pending: a second activation posts nothing.
	n.DidBecomeActive()
	assert.EqualValues(t, 1, posts.Load())
	assert.EqualValues(t, 1, n.Posted())

	n.DidResignActive()
	n.DidCommitWrite()
	assert.EqualValues(t, 1, posts.Load())
	n.DidBecomeActive()
	assert.EqualValues(t, 2, posts.Load())
}

func TestCrossProcess_HandleRemote(t *testing.T) {
	called := 0
	n := NewCrossProcess(true, nil, func() { called++ }, nil)
	n.HandleRemote()
	assert.Equal(t, 1, called)

	NewCrossProcess(true, nil, nil, nil).HandleRemote()
}

func TestCoordinator_PostsAfterCommitOnly(t *testing.T) {
	legacy, relational := newCounting(t)
	var posts atomic.Int32
	n := NewCrossProcess(true, func() { posts.Add(1) }, nil, nil)
	c, err := New(legacy, relational, StateRelationalOnly, WithCrossProcess(n))
	require.NoError(t, err)
	ctx := context.Background()

	require.NoError(t, c.Write(ctx, func(txn.WriteTx) error { return nil }))
	assert.EqualValues(t, 1, posts.Load())

	boom := errors.New("boom")
	assert.ErrorIs(t, c.Write(ctx, func(txn.WriteTx) error { return boom }), boom)
	assert.EqualValues(t, 1, posts.Load())

	n.DidResignActive()
	require.NoError(t, c.Write(ctx, func(txn.WriteTx) error { return nil }))
	require.NoError(t, c.Write(ctx, func(txn.WriteTx) error { return nil }))
	assert.EqualValues(t, 1, posts.Load())
	n.DidBecomeActive()
	assert.EqualValues(t, 2, posts.Load())
}
