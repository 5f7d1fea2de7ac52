package txn

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/poiesic/sdstore/dispatch"
	"github.com/poiesic/sdstore/storage"
	legacy "github.com/poiesic/sdstore/storage/badger"
	"github.com/poiesic/sdstore/storage/sqlite"
)

// ReadTx is a read transaction on one backend.
type ReadTx interface {
	Backend() storage.BackendKind
	sealed()
}

// WriteTx is a write transaction on one backend.
type WriteTx interface {
	ReadTx
	// AddCompletion schedules fn on ctx once the transaction commits.
	AddCompletion(ctx dispatch.Context, fn func())
	completions() []Completion
}

// Completion is a callback to run on Context after commit.
type Completion struct {
	Context dispatch.Context
	Fn      func()
}

type completionList struct {
	list []Completion
}

func (c *completionList) AddCompletion(ctx dispatch.Context, fn func()) {
	c.list = append(c.list, Completion{Context: ctx, Fn: fn})
}

func (c *completionList) completions() []Completion {
	return c.list
}

// LegacyRead wraps a legacy read transaction.
type LegacyRead struct {
	Tx *legacy.ReadTx
}

// LegacyWrite wraps a legacy write transaction.
type LegacyWrite struct {
	Tx *legacy.WriteTx
	completionList
}

// RelationalRead wraps a relational read transaction.
type RelationalRead struct {
	Tx *sqlite.ReadTx
}

// RelationalWrite wraps a relational write transaction.
type RelationalWrite struct {
	Tx *sqlite.WriteTx
	completionList
}

func (*LegacyRead) Backend() storage.BackendKind      { return storage.BackendLegacy }
func (*LegacyWrite) Backend() storage.BackendKind     { return storage.BackendLegacy }
func (*RelationalRead) Backend() storage.BackendKind  { return storage.BackendRelational }
func (*RelationalWrite) Backend() storage.BackendKind { return storage.BackendRelational }

func (*LegacyRead) sealed()      {}
func (*LegacyWrite) sealed()     {}
func (*RelationalRead) sealed()  {}
func (*RelationalWrite) sealed() {}

// reader is the read side of a transaction. Exactly one field is set.
type reader struct {
	legacy     *legacy.ReadTx
	relational *sqlite.ReadTx
}

func readerOf(tx ReadTx) reader {
	switch t := tx.(type) {
	case *LegacyRead:
		return reader{legacy: t.Tx}
	case *LegacyWrite:
		return reader{legacy: &t.Tx.ReadTx}
	case *RelationalRead:
		return reader{relational: t.Tx}
	case *RelationalWrite:
		return reader{relational: t.Tx.ReadTx}
	default:
		panic(fmt.Sprintf("txn: unknown read transaction %T", tx))
	}
}

// writer is the write side of a transaction. Exactly one field is set.
type writer struct {
	legacy     *legacy.WriteTx
	relational *sqlite.WriteTx
}

func writerOf(tx WriteTx) writer {
	switch t := tx.(type) {
	case *LegacyWrite:
		return writer{legacy: t.Tx}
	case *RelationalWrite:
		return writer{relational: t.Tx}
	default:
		panic(fmt.Sprintf("txn: unknown write transaction %T", tx))
	}
}

// Backend runs transactions against one storage engine.
type Backend interface {
	Kind() storage.BackendKind
	Read(ctx context.Context, fn func(ReadTx) error) error
	// UIRead is Read pinned to the snapshot observers last saw. Backends
	// without snapshots treat it as Read.
	UIRead(ctx context.Context, fn func(ReadTx) error) error
	Write(ctx context.Context, fn func(WriteTx) error) error
}

// Legacy adapts the legacy object store to Backend.
type Legacy struct {
	Store  *legacy.Backend
	Logger *slog.Logger
}

var _ Backend = (*Legacy)(nil)

func (l *Legacy) Kind() storage.BackendKind { return storage.BackendLegacy }

func (l *Legacy) Read(ctx context.Context, fn func(ReadTx) error) error {
	return l.Store.Read(ctx, func(tx *legacy.ReadTx) error {
		return fn(&LegacyRead{Tx: tx})
	})
}

func (l *Legacy) UIRead(ctx context.Context, fn func(ReadTx) error) error {
	return l.Read(ctx, fn)
}

func (l *Legacy) Write(ctx context.Context, fn func(WriteTx) error) error {
	var wtx *LegacyWrite
	err := l.Store.Write(ctx, func(tx *legacy.WriteTx) error {
		wtx = &LegacyWrite{Tx: tx}
		return fn(wtx)
	})
	if err != nil {
		return err
	}
	RunCompletions(wtx.completions(), l.Logger)
	return nil
}

// Relational adapts the relational store to Backend.
type Relational struct {
	Store  *sqlite.Store
	Logger *slog.Logger
}

var _ Backend = (*Relational)(nil)

func (r *Relational) Kind() storage.BackendKind { return storage.BackendRelational }

func (r *Relational) Read(ctx context.Context, fn func(ReadTx) error) error {
	return r.Store.Read(ctx, func(tx *sqlite.ReadTx) error {
		return fn(&RelationalRead{Tx: tx})
	})
}

func (r *Relational) UIRead(ctx context.Context, fn func(ReadTx) error) error {
	return r.Store.UIRead(ctx, func(tx *sqlite.ReadTx) error {
		return fn(&RelationalRead{Tx: tx})
	})
}

func (r *Relational) Write(ctx context.Context, fn func(WriteTx) error) error {
	var wtx *RelationalWrite
	err := r.Store.Write(ctx, func(tx *sqlite.WriteTx) error {
		wtx = &RelationalWrite{Tx: tx}
		return fn(wtx)
	})
	if err != nil {
		return err
	}
	RunCompletions(wtx.completions(), r.Logger)
	return nil
}

// RunCompletions submits each completion to its context in order. A
// completion without a context runs inline.
func RunCompletions(list []Completion, logger *slog.Logger) {
	if logger == nil {
		logger = slog.Default()
	}
	for _, c := range list {
		if c.Context == nil {
			c.Fn()
			continue
		}
		if err := c.Context.Submit(c.Fn); err != nil {
			logger.Error("dropping completion", "context", c.Context.Name(), "err", err)
		}
	}
}
