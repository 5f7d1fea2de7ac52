package txn

import (
	"cmp"
	"errors"
	"fmt"
	"slices"

	"github.com/poiesic/sdstore/core"
	"github.com/poiesic/sdstore/storage"
	legacy "github.com/poiesic/sdstore/storage/badger"
	"github.com/poiesic/sdstore/storage/sqlite"
)

// threadInteractionsIndex groups legacy interaction keys by thread, ordered
// by sort id.
const threadInteractionsIndex = "threadInteractions"

// InsertInteraction adds interaction to its thread. The backend assigns
// interaction.SortID, and the thread's last interaction pointer and
// visibility follow it.
func InsertInteraction(tx WriteTx, interaction *core.Interaction) error {
	if err := core.ValidateInteraction(interaction); err != nil {
		return err
	}
	thread, err := Fetch(tx, Threads, interaction.ThreadUniqueID)
	if err != nil {
		return fmt.Errorf("thread %s: %w", interaction.ThreadUniqueID, err)
	}

	w := writerOf(tx)
	switch {
	case w.legacy != nil:
		id := interaction.UniqueID
		exists, err := w.legacy.HasObject(core.InteractionCollection, id)
		if err != nil {
			return err
		}
		if exists {
			return fmt.Errorf("%s %s: %w", core.InteractionCollection, id, storage.ErrDuplicateKey)
		}
		rowID, err := legacy.SetRecord(w.legacy, core.InteractionCollection, core.InteractionMUS, id, interaction)
		if err != nil {
			return err
		}
		interaction.SortID = rowID
		if _, err := legacy.SetRecord(w.legacy, core.InteractionCollection, core.InteractionMUS, id, interaction); err != nil {
			return err
		}
		if err := w.legacy.SetIndexEntry(threadInteractionsIndex, thread.UniqueID, rowID, id); err != nil {
			return err
		}
	default:
		if _, err := sqlite.InteractionTable.Insert(w.relational, interaction); err != nil {
			return err
		}
	}

	thread.LastInteractionSortID = interaction.SortID
	thread.ShouldBeVisible = true
	return Update(tx, Threads, thread)
}

// RemoveInteraction deletes an interaction. The thread pointer is left as
// is; it only ever moves forward.
func RemoveInteraction(tx WriteTx, uniqueID string) error {
	w := writerOf(tx)
	switch {
	case w.legacy != nil:
		interaction, err := legacy.FetchObject(&w.legacy.ReadTx, core.InteractionCollection, core.InteractionMUS, uniqueID)
		if errors.Is(err, storage.ErrNotFound) {
			return nil
		}
		if err != nil {
			return err
		}
		if err := w.legacy.RemoveIndexEntry(threadInteractionsIndex, interaction.ThreadUniqueID, interaction.SortID, uniqueID); err != nil {
			return err
		}
		return w.legacy.RemoveObject(core.InteractionCollection, uniqueID)
	default:
		return sqlite.InteractionTable.Remove(w.relational, uniqueID)
	}
}

// TouchInteraction marks an interaction and its thread changed.
func TouchInteraction(tx WriteTx, interaction *core.Interaction) error {
	if err := Touch(tx, Interactions, interaction); err != nil {
		return err
	}
	thread, err := Fetch(tx, Threads, interaction.ThreadUniqueID)
	if err != nil {
		return err
	}
	return Touch(tx, Threads, thread)
}

// EnumerateInteractions walks threadID's interactions newest first.
func EnumerateInteractions(tx ReadTx, threadID string, fn func(interaction *core.Interaction, stop *bool) error) error {
	r := readerOf(tx)
	switch {
	case r.legacy != nil:
		return r.legacy.EnumerateIndex(threadInteractionsIndex, threadID, true, func(key string, _ uint64, stop *bool) error {
			interaction, err := legacy.FetchObject(r.legacy, core.InteractionCollection, core.InteractionMUS, key)
			if err != nil {
				var decodeErr *storage.DecodeError
				if errors.As(err, &decodeErr) || errors.Is(err, storage.ErrNotFound) {
					r.legacy.Logger().Warn("skipping unreadable interaction", "thread", threadID, "key", key, "err", err)
					return nil
				}
				return err
			}
			return fn(interaction, stop)
		})
	default:
		return sqlite.EnumerateInteractions(r.relational, threadID, fn)
	}
}

// InteractionIDs returns threadID's interaction ids newest first.
func InteractionIDs(tx ReadTx, threadID string) ([]string, error) {
	var ids []string
	err := EnumerateInteractions(tx, threadID, func(interaction *core.Interaction, _ *bool) error {
		ids = append(ids, interaction.UniqueID)
		return nil
	})
	return ids, err
}

// InteractionCount counts threadID's interactions.
func InteractionCount(tx ReadTx, threadID string) (int, error) {
	r := readerOf(tx)
	switch {
	case r.legacy != nil:
		count := 0
		err := r.legacy.EnumerateIndex(threadInteractionsIndex, threadID, false, func(string, uint64, *bool) error {
			count++
			return nil
		})
		return count, err
	default:
		return sqlite.InteractionCount(r.relational, threadID)
	}
}

// VisibleThreads returns the conversation list, most recently active first.
func VisibleThreads(tx ReadTx, archived bool) ([]*core.Thread, error) {
	var threads []*core.Thread
	collect := func(thread *core.Thread, _ *bool) error {
		threads = append(threads, thread)
		return nil
	}
	r := readerOf(tx)
	switch {
	case r.legacy != nil:
		err := EnumerateAll(tx, Threads, func(thread *core.Thread, stop *bool) error {
			if thread.ShouldBeVisible && thread.IsArchived == archived {
				return collect(thread, stop)
			}
			return nil
		})
		if err != nil {
			return nil, err
		}
		slices.SortStableFunc(threads, func(a, b *core.Thread) int {
			return cmp.Compare(b.LastInteractionSortID, a.LastInteractionSortID)
		})
		return threads, nil
	default:
		err := sqlite.EnumerateVisibleThreads(r.relational, archived, collect)
		return threads, err
	}
}

// AllJobRecords returns the jobs queued under label with status, oldest first.
func AllJobRecords(tx ReadTx, label string, status core.JobStatus) ([]*core.JobRecord, error) {
	r := readerOf(tx)
	switch {
	case r.legacy != nil:
		var jobs []*core.JobRecord
		err := EnumerateAll(tx, JobRecords, func(job *core.JobRecord, _ *bool) error {
			if job.Label == label && job.Status == status {
				jobs = append(jobs, job)
			}
			return nil
		})
		return jobs, err
	default:
		return sqlite.AllJobRecords(r.relational, label, status)
	}
}

// EnqueueJob adds a job record in the ready state.
func EnqueueJob(tx WriteTx, job *core.JobRecord) error {
	if job.Status == core.JobStatusUnknown {
		job.Status = core.JobStatusReady
	}
	if err := core.ValidateJobRecord(job); err != nil {
		return err
	}
	w := writerOf(tx)
	if w.legacy != nil {
		exists, err := w.legacy.HasObject(core.JobRecordCollection, job.UniqueID)
		if err != nil {
			return err
		}
		if exists {
			return fmt.Errorf("%s %s: %w", core.JobRecordCollection, job.UniqueID, storage.ErrDuplicateKey)
		}
		rowID, err := legacy.SetRecord(w.legacy, core.JobRecordCollection, core.JobRecordMUS, job.UniqueID, job)
		if err != nil {
			return err
		}
		job.SortID = rowID
		_, err = legacy.SetRecord(w.legacy, core.JobRecordCollection, core.JobRecordMUS, job.UniqueID, job)
		return err
	}
	return Insert(tx, JobRecords, job)
}
