package observation

import (
	"slices"

	"github.com/poiesic/sdstore/storage/sqlite"
)

// collect folds a commit's changes into an Update. Ids keep first-seen order.
func collect(snapshot uint64, changes []sqlite.Change) Update {
	u := Update{Snapshot: snapshot}
	for _, ch := range changes {
		if !slices.Contains(u.Tables, ch.Table) {
			u.Tables = append(u.Tables, ch.Table)
		}
		if ch.ThreadUniqueID != "" && !slices.Contains(u.ThreadIDs, ch.ThreadUniqueID) {
			u.ThreadIDs = append(u.ThreadIDs, ch.ThreadUniqueID)
		}
		if ch.Table == sqlite.TableInteractions && !slices.Contains(u.InteractionIDs, ch.UniqueID) {
			u.InteractionIDs = append(u.InteractionIDs, ch.UniqueID)
			u.InteractionRowIDs = append(u.InteractionRowIDs, ch.RowID)
			u.interactionThreads = append(u.interactionThreads, ch.ThreadUniqueID)
		}
	}
	return u
}

// forThread narrows u to one thread's interactions.
func (u Update) forThread(threadID string) Update {
	out := Update{Snapshot: u.Snapshot, Tables: u.Tables, ThreadIDs: []string{threadID}}
	for i, id := range u.InteractionIDs {
		if u.interactionThreads[i] == threadID {
			out.InteractionIDs = append(out.InteractionIDs, id)
			out.InteractionRowIDs = append(out.InteractionRowIDs, u.InteractionRowIDs[i])
			out.interactionThreads = append(out.interactionThreads, threadID)
		}
	}
	return out
}
