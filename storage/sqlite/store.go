package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	"github.com/poiesic/sdstore/storage"
	_ "modernc.org/sqlite"
)

// Store is the relational backend.
type Store struct {
	cfg    *Config
	logger *slog.Logger

	writeDB *sql.DB
	readDB  *sql.DB

	// writeSlot holds one token; owning it is owning the writer.
	writeSlot chan struct{}

	writeStmts *stmtCache
	readStmts  *stmtCache

	// snapshotMu serializes commits against snapshot pinning in UIRead.
	snapshotMu sync.RWMutex
	snapshot   uint64

	observers []CommitObserver
	closed    atomic.Bool
	keySpec   KeySpec
}

// Option configures a Store.
type Option func(*Store) error

// WithLogger sets a custom logger.
// Default is slog.Default().
func WithLogger(logger *slog.Logger) Option {
	return func(s *Store) error {
		if logger == nil {
			logger = slog.Default()
		}
		s.logger = logger
		return nil
	}
}

// WithCommitObserver registers an observer for committed write transactions.
func WithCommitObserver(observer CommitObserver) Option {
	return func(s *Store) error {
		if observer == nil {
			return errors.New("nil commit observer")
		}
		s.observers = append(s.observers, observer)
		return nil
	}
}

// Open resolves the key spec, opens the writer and reader pools and brings
// the schema up to date.
func Open(ctx context.Context, cfg *Config, opts ...Option) (*Store, error) {
	if cfg == nil {
		return nil, errors.New("sqlite: nil config")
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	s := &Store{
		cfg:       cfg,
		logger:    slog.Default(),
		writeSlot: make(chan struct{}, 1),
	}
	for _, opt := range opts {
		if err := opt(s); err != nil {
			return nil, err
		}
	}

	dbExists, err := fileExists(cfg.Path)
	if err != nil {
		return nil, err
	}
	spec, err := loadKeySpec(cfg.KeyStore, cfg.AppState, dbExists)
	if err != nil {
		return nil, err
	}
	s.keySpec = spec

	if err := os.MkdirAll(filepath.Dir(cfg.Path), 0755); err != nil {
		return nil, err
	}

	s.writeDB, err = sql.Open("sqlite", s.writerDSN())
	if err != nil {
		return nil, err
	}
	s.writeDB.SetMaxOpenConns(1)
	s.writeDB.SetMaxIdleConns(1)
	s.writeDB.SetConnMaxLifetime(0)

	if err := s.newRetrier("open", 0).run(ctx, func() error {
		return s.writeDB.PingContext(ctx)
	}); err != nil {
		s.writeDB.Close()
		return nil, fmt.Errorf("open writer: %w", err)
	}
	s.writeStmts = &stmtCache{}

	if err := s.Write(ctx, func(tx *WriteTx) error {
		if err := createSchema(ctx, tx); err != nil {
			return err
		}
		return verifyKeySpec(ctx, tx, spec)
	}); err != nil {
		s.writeDB.Close()
		return nil, err
	}
	if s.writeStmts, err = newStmtCache(ctx, s.writeDB, hotQueries); err != nil {
		s.writeDB.Close()
		return nil, err
	}

	s.readDB, err = sql.Open("sqlite", s.readerDSN())
	if err != nil {
		s.writeStmts.close()
		s.writeDB.Close()
		return nil, err
	}
	s.readDB.SetMaxOpenConns(cfg.MaxReaders)
	s.readDB.SetMaxIdleConns(cfg.MaxReaders)
	if s.readStmts, err = newStmtCache(ctx, s.readDB, hotQueries); err != nil {
		s.readDB.Close()
		s.writeStmts.close()
		s.writeDB.Close()
		return nil, err
	}

	s.logger.Debug("relational store open", "path", cfg.Path, "readers", cfg.MaxReaders)
	return s, nil
}

func fileExists(path string) (bool, error) {
	_, err := os.Stat(path)
	if err == nil {
		return true, nil
	}
	if errors.Is(err, os.ErrNotExist) {
		return false, nil
	}
	return false, err
}

// The writer starts IMMEDIATE transactions and never waits inside the
// driver; lock waits go through the busy retrier instead.
func (s *Store) writerDSN() string {
	q := url.Values{}
	q.Add("_pragma", "busy_timeout(0)")
	q.Add("_pragma", "journal_mode(WAL)")
	q.Add("_pragma", "synchronous(NORMAL)")
	q.Add("_pragma", fmt.Sprintf("foreign_keys(%d)", boolInt(s.cfg.ForeignKeys)))
	q.Set("_txlock", "immediate")
	return "file:" + s.cfg.Path + "?" + q.Encode()
}

func (s *Store) readerDSN() string {
	q := url.Values{}
	q.Add("_pragma", fmt.Sprintf("busy_timeout(%d)", s.cfg.ReaderBusyTimeout.Milliseconds()))
	q.Add("_pragma", "query_only(1)")
	q.Add("_pragma", fmt.Sprintf("foreign_keys(%d)", boolInt(s.cfg.ForeignKeys)))
	return "file:" + s.cfg.Path + "?" + q.Encode()
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

// Path returns the database file path.
func (s *Store) Path() string { return s.cfg.Path }

// KeySpec returns the key spec the store was opened with.
func (s *Store) KeySpec() KeySpec { return s.keySpec }

// Snapshot returns the number of write transactions committed through this store.
func (s *Store) Snapshot() uint64 {
	s.snapshotMu.RLock()
	defer s.snapshotMu.RUnlock()
	return s.snapshot
}

// Close waits for the current writer and closes both pools.
func (s *Store) Close() error {
	if !s.closed.CompareAndSwap(false, true) {
		return nil
	}
	s.writeSlot <- struct{}{}
	defer func() { <-s.writeSlot }()

	var errs []error
	s.readStmts.close()
	errs = append(errs, s.readDB.Close())
	s.writeStmts.close()
	errs = append(errs, s.writeDB.Close())
	return errors.Join(errs...)
}

// IsClosed returns true once Close has been called.
func (s *Store) IsClosed() bool {
	return s.closed.Load()
}

func (s *Store) acquireWriter(ctx context.Context, maxWait time.Duration) error {
	if maxWait <= 0 {
		select {
		case s.writeSlot <- struct{}{}:
			return nil
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	timer := time.NewTimer(maxWait)
	defer timer.Stop()
	select {
	case s.writeSlot <- struct{}{}:
		return nil
	case <-timer.C:
		return fmt.Errorf("writer slot: %w", storage.ErrLockTimeout)
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (s *Store) releaseWriter() {
	<-s.writeSlot
}

// Read runs fn in a transaction on a pooled reader.
func (s *Store) Read(ctx context.Context, fn func(*ReadTx) error) error {
	if s.closed.Load() || s.readDB == nil {
		return storage.ErrStorageClosed
	}
	tx, err := s.readDB.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()
	return fn(s.newReadTx(ctx, tx, s.readStmts, 0))
}

// UIRead runs fn on a reader pinned to the latest snapshot observers have
// been notified of. No commit lands between pinning and the first read.
func (s *Store) UIRead(ctx context.Context, fn func(*ReadTx) error) error {
	if s.closed.Load() || s.readDB == nil {
		return storage.ErrStorageClosed
	}
	tx, err := s.readDB.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	s.snapshotMu.RLock()
	snapshot := s.snapshot
	var n int
	err = tx.QueryRowContext(ctx, `SELECT COUNT(*) FROM table_metadata`).Scan(&n)
	s.snapshotMu.RUnlock()
	if err != nil {
		return fmt.Errorf("pin snapshot: %w", err)
	}
	return fn(s.newReadTx(ctx, tx, s.readStmts, snapshot))
}

// Write runs fn in the single writer transaction. Writers queue for the
// slot, then retry BEGIN IMMEDIATE without bound while another process
// holds the lock. fn returning an error rolls back.
func (s *Store) Write(ctx context.Context, fn func(*WriteTx) error) error {
	if s.closed.Load() {
		return storage.ErrStorageClosed
	}
	if err := s.acquireWriter(ctx, 0); err != nil {
		return err
	}
	defer s.releaseWriter()
	return s.write(ctx, 0, fn)
}

func (s *Store) write(ctx context.Context, maxWait time.Duration, fn func(*WriteTx) error) error {
	var tx *sql.Tx
	err := s.newRetrier("begin", maxWait).run(ctx, func() error {
		var err error
		tx, err = s.writeDB.BeginTx(ctx, nil)
		return err
	})
	if err != nil {
		return fmt.Errorf("begin write: %w", err)
	}

	wtx := &WriteTx{ReadTx: s.newReadTx(ctx, tx, s.writeStmts, 0)}
	if err := fn(wtx); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil && !errors.Is(rbErr, sql.ErrTxDone) {
			s.logger.Error("rollback failed", "err", rbErr)
		}
		return err
	}

	s.snapshotMu.Lock()
	defer s.snapshotMu.Unlock()
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("%w: %w", storage.ErrTransactionFailed, err)
	}
	s.snapshot++
	changes := wtx.changes.list()
	for _, o := range s.observers {
		o.DidCommit(s.snapshot, changes)
	}
	return nil
}

func (s *Store) newReadTx(ctx context.Context, tx *sql.Tx, stmts *stmtCache, snapshot uint64) *ReadTx {
	return &ReadTx{ctx: ctx, tx: tx, stmts: stmts, logger: s.logger, snapshot: snapshot}
}

// ReadTx is a relational read transaction.
type ReadTx struct {
	ctx      context.Context
	tx       *sql.Tx
	stmts    *stmtCache
	logger   *slog.Logger
	snapshot uint64
}

// Snapshot is the pinned snapshot of a UIRead transaction, zero otherwise.
func (t *ReadTx) Snapshot() uint64 { return t.snapshot }

// Context returns the context the transaction was started with.
func (t *ReadTx) Context() context.Context { return t.ctx }

// stmt returns query bound to this transaction, from the cache when the
// query is a hot path. Other queries are prepared for this transaction only.
func (t *ReadTx) stmt(query string) (*sql.Stmt, error) {
	if prepared, ok := t.stmts.get(query); ok {
		return t.tx.StmtContext(t.ctx, prepared), nil
	}
	return t.tx.PrepareContext(t.ctx, query)
}

// WriteTx is a relational write transaction. Reads through it see its own
// uncommitted writes.
type WriteTx struct {
	*ReadTx
	changes changeSet
}

// Touch records a change for rowID without writing anything.
func (t *WriteTx) Touch(change Change) {
	t.changes.add(change)
}

// Changes returns what this transaction has changed so far.
func (t *WriteTx) Changes() []Change {
	return t.changes.list()
}

// stmtCache holds statements prepared once per pool for the hot paths.
// The writer pool has one connection, so every cached statement is prepared
// before the first transaction and the cache is read-only afterwards.
type stmtCache struct {
	stmts map[string]*sql.Stmt
}

func newStmtCache(ctx context.Context, db *sql.DB, queries []string) (*stmtCache, error) {
	c := &stmtCache{stmts: make(map[string]*sql.Stmt, len(queries))}
	for _, query := range queries {
		stmt, err := db.PrepareContext(ctx, query)
		if err != nil {
			c.close()
			return nil, fmt.Errorf("prepare %q: %w", query, err)
		}
		c.stmts[query] = stmt
	}
	return c, nil
}

func (c *stmtCache) get(query string) (*sql.Stmt, bool) {
	stmt, ok := c.stmts[query]
	return stmt, ok
}

func (c *stmtCache) close() {
	for query, stmt := range c.stmts {
		stmt.Close()
		delete(c.stmts, query)
	}
}
