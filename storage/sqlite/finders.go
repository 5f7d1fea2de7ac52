package sqlite

import (
	"database/sql"
	"errors"

	sq "github.com/Masterminds/squirrel"
	"github.com/poiesic/sdstore/core"
	"github.com/poiesic/sdstore/storage"
)

func visibleThreads(b sq.SelectBuilder) sq.SelectBuilder {
	return b.Where(sq.Eq{"shouldBeVisible": true})
}

// VisibleThreadCount counts threads shown in the conversation list.
func VisibleThreadCount(tx *ReadTx, archived bool) (int, error) {
	return ThreadTable.Count(tx, visibleThreads, Where("isArchived", archived))
}

// EnumerateVisibleThreads walks visible threads most recently active first.
func EnumerateVisibleThreads(tx *ReadTx, archived bool, fn func(thread *core.Thread, stop *bool) error) error {
	builder := sq.Select(ThreadTable.selectColumns()...).From(TableThreads)
	builder = visibleThreads(builder).
		Where(sq.Eq{"isArchived": archived}).
		OrderBy("lastInteractionRowId DESC", "id DESC")
	return ThreadTable.query(tx, builder, fn)
}

// ThreadSortIndex is the position of threadID in the visible thread list,
// or -1 if the thread is not listed.
func ThreadSortIndex(tx *ReadTx, threadID string) (int, error) {
	var isArchived bool
	err := tx.tx.QueryRowContext(tx.ctx,
		`SELECT isArchived FROM model_TSThread WHERE uniqueId = ? AND shouldBeVisible = 1`, threadID).Scan(&isArchived)
	if errors.Is(err, sql.ErrNoRows) {
		return -1, nil
	}
	if err != nil {
		return 0, err
	}
	var index int
	err = tx.tx.QueryRowContext(tx.ctx, `
		SELECT sortIndex FROM (
			SELECT uniqueId, ROW_NUMBER() OVER (ORDER BY lastInteractionRowId DESC, id DESC) - 1 AS sortIndex
			FROM model_TSThread
			WHERE shouldBeVisible = 1 AND isArchived = ?
		) WHERE uniqueId = ?`, isArchived, threadID).Scan(&index)
	return index, err
}

// InteractionCount counts the interactions in threadID.
func InteractionCount(tx *ReadTx, threadID string) (int, error) {
	return InteractionTable.Count(tx, Where("threadUniqueId", threadID))
}

// EnumerateInteractions walks threadID's interactions newest first.
func EnumerateInteractions(tx *ReadTx, threadID string, fn func(interaction *core.Interaction, stop *bool) error) error {
	return InteractionTable.EnumerateNewest(tx, fn, Where("threadUniqueId", threadID))
}

// MostRecentInteraction returns the newest interaction in threadID.
// Returns storage.ErrNotFound for an empty thread.
func MostRecentInteraction(tx *ReadTx, threadID string) (*core.Interaction, error) {
	var found *core.Interaction
	err := InteractionTable.EnumerateNewest(tx, func(interaction *core.Interaction, stop *bool) error {
		found = interaction
		*stop = true
		return nil
	}, Where("threadUniqueId", threadID), Limit(1))
	if err != nil {
		return nil, err
	}
	if found == nil {
		return nil, storage.ErrNotFound
	}
	return found, nil
}

// AllJobRecords returns the jobs queued under label with status, oldest first.
func AllJobRecords(tx *ReadTx, label string, status core.JobStatus) ([]*core.JobRecord, error) {
	var jobs []*core.JobRecord
	err := JobRecordTable.Enumerate(tx, func(job *core.JobRecord, _ *bool) error {
		jobs = append(jobs, job)
		return nil
	}, Where("label", label), Where("status", int(status)))
	return jobs, err
}

// NextJobRecord returns the oldest job under label with status.
// Returns storage.ErrNotFound if the queue is empty.
func NextJobRecord(tx *ReadTx, label string, status core.JobStatus) (*core.JobRecord, error) {
	var found *core.JobRecord
	err := JobRecordTable.Enumerate(tx, func(job *core.JobRecord, stop *bool) error {
		found = job
		*stop = true
		return nil
	}, Where("label", label), Where("status", int(status)), Limit(1))
	if err != nil {
		return nil, err
	}
	if found == nil {
		return nil, storage.ErrNotFound
	}
	return found, nil
}
