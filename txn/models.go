package txn

import (
	"errors"
	"fmt"

	"github.com/poiesic/sdstore/core"
	"github.com/poiesic/sdstore/storage"
	legacy "github.com/poiesic/sdstore/storage/badger"
	"github.com/poiesic/sdstore/storage/sqlite"
)

// Model ties a record type to its legacy collection and relational table.
type Model[T any] struct {
	Collection string
	Codec      core.Codec[T]
	Table      *sqlite.Table[T]
	UniqueID   func(*T) string
}

var (
	Threads = Model[core.Thread]{
		Collection: core.ThreadCollection,
		Codec:      core.ThreadMUS,
		Table:      sqlite.ThreadTable,
		UniqueID:   func(t *core.Thread) string { return t.UniqueID },
	}
	Interactions = Model[core.Interaction]{
		Collection: core.InteractionCollection,
		Codec:      core.InteractionMUS,
		Table:      sqlite.InteractionTable,
		UniqueID:   func(i *core.Interaction) string { return i.UniqueID },
	}
	Attachments = Model[core.Attachment]{
		Collection: core.AttachmentCollection,
		Codec:      core.AttachmentMUS,
		Table:      sqlite.AttachmentTable,
		UniqueID:   func(a *core.Attachment) string { return a.UniqueID },
	}
	KnownStickerPacks = Model[core.KnownStickerPack]{
		Collection: core.KnownStickerPackCollection,
		Codec:      core.KnownStickerPackMUS,
		Table:      sqlite.KnownStickerPackTable,
		UniqueID:   func(p *core.KnownStickerPack) string { return p.UniqueID },
	}
	JobRecords = Model[core.JobRecord]{
		Collection: core.JobRecordCollection,
		Codec:      core.JobRecordMUS,
		Table:      sqlite.JobRecordTable,
		UniqueID:   func(j *core.JobRecord) string { return j.UniqueID },
	}
	// MessageDecryptJobs exist only in the legacy store; migration turns
	// them into JobRecords.
	MessageDecryptJobs = Model[core.MessageDecryptJob]{
		Collection: core.MessageDecryptJobCollection,
		Codec:      core.MessageDecryptJobMUS,
		UniqueID:   func(j *core.MessageDecryptJob) string { return j.UniqueID },
	}
)

func (m Model[T]) relational() (*sqlite.Table[T], error) {
	if m.Table == nil {
		return nil, fmt.Errorf("%s has no relational table: %w", m.Collection, storage.ErrBackendMisroute)
	}
	return m.Table, nil
}

// Fetch loads the record with uniqueID.
// Returns storage.ErrNotFound if there is none.
func Fetch[T any](tx ReadTx, m Model[T], uniqueID string) (*T, error) {
	r := readerOf(tx)
	switch {
	case r.legacy != nil:
		return legacy.FetchObject(r.legacy, m.Collection, m.Codec, uniqueID)
	default:
		table, err := m.relational()
		if err != nil {
			return nil, err
		}
		return table.Fetch(r.relational, uniqueID)
	}
}

// Exists reports whether a record with uniqueID is present.
func Exists[T any](tx ReadTx, m Model[T], uniqueID string) (bool, error) {
	r := readerOf(tx)
	switch {
	case r.legacy != nil:
		return r.legacy.HasObject(m.Collection, uniqueID)
	default:
		table, err := m.relational()
		if err != nil {
			return false, err
		}
		_, err = table.RowID(r.relational, uniqueID)
		if errors.Is(err, storage.ErrNotFound) {
			return false, nil
		}
		return err == nil, err
	}
}

// EnumerateAll walks every record in insertion order. Undecodable records
// are logged and skipped by both backends.
func EnumerateAll[T any](tx ReadTx, m Model[T], fn func(record *T, stop *bool) error) error {
	r := readerOf(tx)
	switch {
	case r.legacy != nil:
		return legacy.EnumerateObjects(r.legacy, m.Collection, m.Codec, func(_ string, record *T, stop *bool) error {
			return fn(record, stop)
		})
	default:
		table, err := m.relational()
		if err != nil {
			return err
		}
		return table.Enumerate(r.relational, fn)
	}
}

// Count returns the number of records.
func Count[T any](tx ReadTx, m Model[T]) (int, error) {
	r := readerOf(tx)
	switch {
	case r.legacy != nil:
		return r.legacy.NumberOfKeys(m.Collection)
	default:
		table, err := m.relational()
		if err != nil {
			return 0, err
		}
		return table.Count(r.relational)
	}
}

// Insert adds a new record. An existing uniqueID is storage.ErrDuplicateKey
// on both backends.
func Insert[T any](tx WriteTx, m Model[T], record *T) error {
	id := m.UniqueID(record)
	if id == "" {
		return core.ErrEmptyUniqueID
	}
	w := writerOf(tx)
	switch {
	case w.legacy != nil:
		exists, err := w.legacy.HasObject(m.Collection, id)
		if err != nil {
			return err
		}
		if exists {
			return fmt.Errorf("%s %s: %w", m.Collection, id, storage.ErrDuplicateKey)
		}
		_, err = legacy.SetRecord(w.legacy, m.Collection, m.Codec, id, record)
		return err
	default:
		table, err := m.relational()
		if err != nil {
			return err
		}
		_, err = table.Insert(w.relational, record)
		return err
	}
}

// Update overwrites an existing record.
// Returns storage.ErrNotFound if there is none.
func Update[T any](tx WriteTx, m Model[T], record *T) error {
	id := m.UniqueID(record)
	w := writerOf(tx)
	switch {
	case w.legacy != nil:
		exists, err := w.legacy.HasObject(m.Collection, id)
		if err != nil {
			return err
		}
		if !exists {
			return fmt.Errorf("%s %s: %w", m.Collection, id, storage.ErrNotFound)
		}
		_, err = legacy.SetRecord(w.legacy, m.Collection, m.Codec, id, record)
		return err
	default:
		table, err := m.relational()
		if err != nil {
			return err
		}
		return table.Update(w.relational, record)
	}
}

// Remove deletes the record with uniqueID. Removing a missing record is a no-op.
func Remove[T any](tx WriteTx, m Model[T], uniqueID string) error {
	w := writerOf(tx)
	switch {
	case w.legacy != nil:
		return w.legacy.RemoveObject(m.Collection, uniqueID)
	default:
		table, err := m.relational()
		if err != nil {
			return err
		}
		return table.Remove(w.relational, uniqueID)
	}
}

// Touch marks record changed without rewriting it. The legacy store bumps
// the object version; the relational store adds the row to the commit's
// change set so observers hear about it.
func Touch[T any](tx WriteTx, m Model[T], record *T) error {
	w := writerOf(tx)
	switch {
	case w.legacy != nil:
		return w.legacy.TouchObject(m.Collection, m.UniqueID(record))
	default:
		table, err := m.relational()
		if err != nil {
			return err
		}
		return table.Touch(w.relational, record)
	}
}
