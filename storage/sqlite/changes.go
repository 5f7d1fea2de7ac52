package sqlite

// Change describes one row written or touched by a committed transaction.
type Change struct {
	Table    string
	RowID    int64
	UniqueID string
	// ThreadUniqueID is set for rows that belong to a thread, and for
	// threads themselves.
	ThreadUniqueID string
}

// CommitObserver is told about every committed write transaction, in commit
// order. DidCommit is called with the store's snapshot lock held and must
// not block or call back into the store.
type CommitObserver interface {
	DidCommit(snapshot uint64, changes []Change)
}

// CommitObserverFunc adapts a function to CommitObserver.
type CommitObserverFunc func(snapshot uint64, changes []Change)

func (f CommitObserverFunc) DidCommit(snapshot uint64, changes []Change) {
	f(snapshot, changes)
}

// changeSet accumulates the changes of one write transaction. Repeated
// changes to the same row collapse into one entry.
type changeSet struct {
	changes []Change
	seen    map[Change]struct{}
}

func (c *changeSet) add(ch Change) {
	if c.seen == nil {
		c.seen = make(map[Change]struct{})
	}
	if _, ok := c.seen[ch]; ok {
		return
	}
	c.seen[ch] = struct{}{}
	c.changes = append(c.changes, ch)
}

func (c *changeSet) list() []Change {
	return c.changes
}
