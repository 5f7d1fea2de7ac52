package sqlite

import (
	"database/sql"
	"errors"
	"fmt"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/poiesic/sdstore/core"
	"github.com/poiesic/sdstore/storage"
)

type scanner interface {
	Scan(dest ...any) error
}

// Table maps a record type onto one relational table. Every table has an
// autoincrement id followed by a unique uniqueId column.
type Table[T any] struct {
	Name string
	// columns excludes id; columns[0] is always uniqueId.
	columns  []string
	values   func(*T) []any
	scan     func(scanner) (*T, error)
	uniqueID func(*T) string
	setRowID func(*T, int64)
	// threadOf reports the owning thread for change tracking.
	threadOf func(*T) string
}

func (tb *Table[T]) selectColumns() []string {
	return append([]string{"id"}, tb.columns...)
}

func (tb *Table[T]) change(rowID int64, record *T) Change {
	ch := Change{Table: tb.Name, RowID: rowID, UniqueID: tb.uniqueID(record)}
	if tb.threadOf != nil {
		ch.ThreadUniqueID = tb.threadOf(record)
	}
	return ch
}

// Insert adds record and returns its new row id. A duplicate uniqueId is
// reported as storage.ErrDuplicateKey.
func (tb *Table[T]) Insert(tx *WriteTx, record *T) (int64, error) {
	query, args, err := sq.Insert(tb.Name).Columns(tb.columns...).Values(tb.values(record)...).ToSql()
	if err != nil {
		return 0, err
	}
	res, err := tx.tx.ExecContext(tx.ctx, query, args...)
	if err != nil {
		return 0, mapWriteError(tb.Name, err)
	}
	rowID, err := res.LastInsertId()
	if err != nil {
		return 0, err
	}
	if tb.setRowID != nil {
		tb.setRowID(record, rowID)
	}
	tx.changes.add(tb.change(rowID, record))
	return rowID, nil
}

// Update rewrites every column of the row with record's uniqueId.
// Returns storage.ErrNotFound if no such row exists.
func (tb *Table[T]) Update(tx *WriteTx, record *T) error {
	values := tb.values(record)
	builder := sq.Update(tb.Name)
	for i, col := range tb.columns[1:] {
		builder = builder.Set(col, values[i+1])
	}
	query, args, err := builder.Where(sq.Eq{"uniqueId": tb.uniqueID(record)}).ToSql()
	if err != nil {
		return err
	}
	res, err := tx.tx.ExecContext(tx.ctx, query, args...)
	if err != nil {
		return mapWriteError(tb.Name, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("%s %s: %w", tb.Name, tb.uniqueID(record), storage.ErrNotFound)
	}
	rowID, err := tb.RowID(tx.ReadTx, tb.uniqueID(record))
	if err != nil {
		return err
	}
	if tb.setRowID != nil {
		tb.setRowID(record, rowID)
	}
	tx.changes.add(tb.change(rowID, record))
	return nil
}

// Fetch loads the row with uniqueID.
// Returns storage.ErrNotFound if there is none.
func (tb *Table[T]) Fetch(tx *ReadTx, uniqueID string) (*T, error) {
	query, args, err := sq.Select(tb.selectColumns()...).From(tb.Name).Where(sq.Eq{"uniqueId": uniqueID}).ToSql()
	if err != nil {
		return nil, err
	}
	record, err := tb.scan(tx.tx.QueryRowContext(tx.ctx, query, args...))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, storage.ErrNotFound
	}
	if err != nil {
		return nil, &storage.DecodeError{Collection: tb.Name, Key: uniqueID, Err: err}
	}
	return record, nil
}

// RowID returns the row id of uniqueID.
func (tb *Table[T]) RowID(tx *ReadTx, uniqueID string) (int64, error) {
	query, args, err := sq.Select("id").From(tb.Name).Where(sq.Eq{"uniqueId": uniqueID}).ToSql()
	if err != nil {
		return 0, err
	}
	var rowID int64
	err = tx.tx.QueryRowContext(tx.ctx, query, args...).Scan(&rowID)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, storage.ErrNotFound
	}
	return rowID, err
}

// Remove deletes the row with uniqueID. Removing a missing row is a no-op.
func (tb *Table[T]) Remove(tx *WriteTx, uniqueID string) error {
	record, err := tb.Fetch(tx.ReadTx, uniqueID)
	if errors.Is(err, storage.ErrNotFound) {
		return nil
	}
	if err != nil {
		return err
	}
	rowID, err := tb.RowID(tx.ReadTx, uniqueID)
	if err != nil {
		return err
	}
	query, args, err := sq.Delete(tb.Name).Where(sq.Eq{"id": rowID}).ToSql()
	if err != nil {
		return err
	}
	if _, err := tx.tx.ExecContext(tx.ctx, query, args...); err != nil {
		return err
	}
	tx.changes.add(tb.change(rowID, record))
	return nil
}

// Touch marks the row with uniqueID changed without writing it.
func (tb *Table[T]) Touch(tx *WriteTx, record *T) error {
	rowID, err := tb.RowID(tx.ReadTx, tb.uniqueID(record))
	if err != nil {
		return err
	}
	tx.changes.add(tb.change(rowID, record))
	return nil
}

// Enumerate walks the table in row id order, narrowed by opts. Rows that
// fail to scan are logged and skipped.
func (tb *Table[T]) Enumerate(tx *ReadTx, fn func(record *T, stop *bool) error, opts ...QueryOption) error {
	return tb.enumerate(tx, "id", fn, opts)
}

// EnumerateNewest walks the table newest row first.
func (tb *Table[T]) EnumerateNewest(tx *ReadTx, fn func(record *T, stop *bool) error, opts ...QueryOption) error {
	return tb.enumerate(tx, "id DESC", fn, opts)
}

func (tb *Table[T]) enumerate(tx *ReadTx, order string, fn func(record *T, stop *bool) error, opts []QueryOption) error {
	builder := sq.Select(tb.selectColumns()...).From(tb.Name)
	for _, opt := range opts {
		builder = opt(builder)
	}
	return tb.query(tx, builder.OrderBy(order), fn)
}

func (tb *Table[T]) query(tx *ReadTx, builder sq.SelectBuilder, fn func(record *T, stop *bool) error) error {
	query, args, err := builder.ToSql()
	if err != nil {
		return err
	}
	rows, err := tx.tx.QueryContext(tx.ctx, query, args...)
	if err != nil {
		return err
	}
	defer rows.Close()

	stop := false
	for !stop && rows.Next() {
		record, err := tb.scan(rows)
		if err != nil {
			tx.logger.Warn("skipping unreadable row", "table", tb.Name, "err", err)
			continue
		}
		if err := fn(record, &stop); err != nil {
			return err
		}
	}
	return rows.Err()
}

// Count returns the number of rows, narrowed by opts.
func (tb *Table[T]) Count(tx *ReadTx, opts ...QueryOption) (int, error) {
	builder := sq.Select("COUNT(*)").From(tb.Name)
	for _, opt := range opts {
		builder = opt(builder)
	}
	query, args, err := builder.ToSql()
	if err != nil {
		return 0, err
	}
	var count int
	err = tx.tx.QueryRowContext(tx.ctx, query, args...).Scan(&count)
	return count, err
}

// QueryOption narrows or orders a table query.
type QueryOption func(sq.SelectBuilder) sq.SelectBuilder

// Where adds an equality filter.
func Where(column string, value any) QueryOption {
	return func(b sq.SelectBuilder) sq.SelectBuilder {
		return b.Where(sq.Eq{column: value})
	}
}

// Limit caps the number of rows.
func Limit(n uint64) QueryOption {
	return func(b sq.SelectBuilder) sq.SelectBuilder {
		return b.Limit(n)
	}
}

func unixMicro(t time.Time) int64 {
	if t.IsZero() {
		return 0
	}
	return t.UnixMicro()
}

func fromUnixMicro(micros int64) time.Time {
	if micros == 0 {
		return time.Time{}
	}
	return time.UnixMicro(micros).UTC()
}

// ThreadTable stores core.Thread rows.
var ThreadTable = &Table[core.Thread]{
	Name: TableThreads,
	columns: []string{"uniqueId", "kind", "contactPhoneNumber", "contactUUID", "groupId", "name",
		"isArchived", "shouldBeVisible", "lastInteractionRowId", "creationDate"},
	values: func(t *core.Thread) []any {
		return []any{t.UniqueID, int(t.Kind), t.ContactPhoneNumber, t.ContactUUID, t.GroupID, t.Name,
			t.IsArchived, t.ShouldBeVisible, int64(t.LastInteractionSortID), unixMicro(t.CreatedAt)}
	},
	scan: func(row scanner) (*core.Thread, error) {
		var t core.Thread
		var lastRowID, created int64
		if err := row.Scan(&t.RowID, &t.UniqueID, &t.Kind, &t.ContactPhoneNumber, &t.ContactUUID, &t.GroupID,
			&t.Name, &t.IsArchived, &t.ShouldBeVisible, &lastRowID, &created); err != nil {
			return nil, err
		}
		t.LastInteractionSortID = uint64(lastRowID)
		t.CreatedAt = fromUnixMicro(created)
		return &t, nil
	},
	uniqueID: func(t *core.Thread) string { return t.UniqueID },
	setRowID: func(t *core.Thread, id int64) { t.RowID = id },
	threadOf: func(t *core.Thread) string { return t.UniqueID },
}

// InteractionTable stores core.Interaction rows. The row id is the
// interaction's sort id.
var InteractionTable = &Table[core.Interaction]{
	Name:    TableInteractions,
	columns: []string{"uniqueId", "threadUniqueId", "kind", "timestamp", "body", "authorPhoneNumber", "read"},
	values: func(i *core.Interaction) []any {
		return []any{i.UniqueID, i.ThreadUniqueID, int(i.Kind), int64(i.Timestamp), i.Body, i.AuthorPhoneNumber, i.Read}
	},
	scan: func(row scanner) (*core.Interaction, error) {
		var i core.Interaction
		var rowID, ts int64
		if err := row.Scan(&rowID, &i.UniqueID, &i.ThreadUniqueID, &i.Kind, &ts, &i.Body, &i.AuthorPhoneNumber, &i.Read); err != nil {
			return nil, err
		}
		i.SortID = uint64(rowID)
		i.Timestamp = uint64(ts)
		return &i, nil
	},
	uniqueID: func(i *core.Interaction) string { return i.UniqueID },
	setRowID: func(i *core.Interaction, id int64) { i.SortID = uint64(id) },
	threadOf: func(i *core.Interaction) string { return i.ThreadUniqueID },
}

// AttachmentTable stores core.Attachment rows.
var AttachmentTable = &Table[core.Attachment]{
	Name:    TableAttachments,
	columns: []string{"uniqueId", "contentType", "byteCount", "sourceFilename", "albumMessageId"},
	values: func(a *core.Attachment) []any {
		return []any{a.UniqueID, a.ContentType, int64(a.ByteCount), a.SourceFilename, a.AlbumMessageID}
	},
	scan: func(row scanner) (*core.Attachment, error) {
		var a core.Attachment
		var rowID int64
		if err := row.Scan(&rowID, &a.UniqueID, &a.ContentType, &a.ByteCount, &a.SourceFilename, &a.AlbumMessageID); err != nil {
			return nil, err
		}
		return &a, nil
	},
	uniqueID: func(a *core.Attachment) string { return a.UniqueID },
}

// KnownStickerPackTable stores core.KnownStickerPack rows.
var KnownStickerPackTable = &Table[core.KnownStickerPack]{
	Name:    TableKnownStickerPack,
	columns: []string{"uniqueId", "packId", "packKey", "referenceCount"},
	values: func(p *core.KnownStickerPack) []any {
		return []any{p.UniqueID, p.PackID, p.PackKey, p.ReferenceCount}
	},
	scan: func(row scanner) (*core.KnownStickerPack, error) {
		var p core.KnownStickerPack
		var rowID int64
		if err := row.Scan(&rowID, &p.UniqueID, &p.PackID, &p.PackKey, &p.ReferenceCount); err != nil {
			return nil, err
		}
		return &p, nil
	},
	uniqueID: func(p *core.KnownStickerPack) string { return p.UniqueID },
}

// JobRecordTable stores core.JobRecord rows. The row id is the job's FIFO
// sort id.
var JobRecordTable = &Table[core.JobRecord]{
	Name: TableJobRecords,
	columns: []string{"uniqueId", "kind", "label", "status", "failureCount", "envelopeData",
		"contactThreadId", "messageId", "isMediaMessage"},
	values: func(j *core.JobRecord) []any {
		return []any{j.UniqueID, int(j.Kind), j.Label, int(j.Status), int64(j.FailureCount), j.EnvelopeData,
			j.ContactThreadID, j.MessageID, j.IsMediaMessage}
	},
	scan: func(row scanner) (*core.JobRecord, error) {
		var j core.JobRecord
		var rowID int64
		if err := row.Scan(&rowID, &j.UniqueID, &j.Kind, &j.Label, &j.Status, &j.FailureCount, &j.EnvelopeData,
			&j.ContactThreadID, &j.MessageID, &j.IsMediaMessage); err != nil {
			return nil, err
		}
		j.SortID = uint64(rowID)
		return &j, nil
	},
	uniqueID: func(j *core.JobRecord) string { return j.UniqueID },
	setRowID: func(j *core.JobRecord, id int64) { j.SortID = uint64(id) },
}
