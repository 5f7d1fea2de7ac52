// Copyright 2025 Poiesic Systems
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.


package sdstore

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/poiesic/sdstore/coordinator"
	"github.com/poiesic/sdstore/dispatch"
	"github.com/poiesic/sdstore/keyvalue"
	"github.com/poiesic/sdstore/migration"
	"github.com/poiesic/sdstore/observation"
	"github.com/poiesic/sdstore/storage"
	"github.com/poiesic/sdstore/storage/badger"
	"github.com/poiesic/sdstore/storage/sqlite"
	"github.com/poiesic/sdstore/txn"
)

const (
	legacyDirName      = "legacy"
	relationalFileName = "signal.sqlite"
)

// ErrMigrationUnsupported is returned by Migrate in a fixed test state.
var ErrMigrationUnsupported = errors.New("migration not supported in this state")

// Database is the storage core of one app container: both backends, the
// coordinator routing between them and the change pipeline.
type Database struct {
	dir           string
	legacy        *badger.Backend
	relational    *sqlite.Store
	coordinator   *coordinator.Coordinator
	pipeline      *observation.Pipeline
	notifier      *coordinator.CrossProcess
	state         *stateFile
	ui            dispatch.Context
	ownsUI        bool
	background    *dispatch.Pool
	kvCollections []string
	logger        *slog.Logger
}

// DatabaseOption configures a Database.
type DatabaseOption func(*databaseOptions)

type databaseOptions struct {
	logger         *slog.Logger
	keyStore       storage.KeyStore
	appState       storage.AppState
	ui             dispatch.Context
	strictness     coordinator.Strictness
	debug          bool
	state          coordinator.State
	inMemoryLegacy bool
	kvCollections  []string
	post           func()
	keyWait        time.Duration
	sqliteOptions  []sqlite.ConfigOption
	poolSize       int
}

// WithLogger sets a custom logger.
// Default is slog.Default().
func WithLogger(logger *slog.Logger) DatabaseOption {
	return func(o *databaseOptions) { o.logger = logger }
}

// WithKeyStore sets where the relational key lives. Required.
func WithKeyStore(ks storage.KeyStore) DatabaseOption {
	return func(o *databaseOptions) { o.keyStore = ks }
}

// WithAppState describes the hosting process. Default is an active main app.
func WithAppState(state storage.AppState) DatabaseOption {
	return func(o *databaseOptions) { o.appState = state }
}

// WithUIContext sets where observers are called. Default is a private
// serial context closed with the Database.
func WithUIContext(ui dispatch.Context) DatabaseOption {
	return func(o *databaseOptions) { o.ui = ui }
}

// WithStrictness sets the coordinator misroute policy.
func WithStrictness(s coordinator.Strictness, debug bool) DatabaseOption {
	return func(o *databaseOptions) {
		o.strictness = s
		o.debug = debug
	}
}

// WithState forces the coordinator state instead of reading it from disk.
// Meant for the fixed test states.
func WithState(s coordinator.State) DatabaseOption {
	return func(o *databaseOptions) { o.state = s }
}

// WithInMemoryLegacy keeps the legacy store in memory.
func WithInMemoryLegacy() DatabaseOption {
	return func(o *databaseOptions) { o.inMemoryLegacy = true }
}

// WithKeyValueCollections lists the key/value collections migration copies.
func WithKeyValueCollections(collections ...string) DatabaseOption {
	return func(o *databaseOptions) { o.kvCollections = append(o.kvCollections, collections...) }
}

// WithCrossProcessPost sets how sibling processes are told about writes.
func WithCrossProcessPost(post func()) DatabaseOption {
	return func(o *databaseOptions) { o.post = post }
}

// WithKeyWait bounds how long OpenDatabase retries a key that is
// unavailable while backgrounded. Default is 30s.
func WithKeyWait(d time.Duration) DatabaseOption {
	return func(o *databaseOptions) { o.keyWait = d }
}

// WithCompletionPool sizes the background pool completions can be
// scheduled on. Default is runtime.NumCPU().
func WithCompletionPool(size int) DatabaseOption {
	return func(o *databaseOptions) { o.poolSize = size }
}

// WithRelationalOptions passes extra settings to the relational store.
func WithRelationalOptions(opts ...sqlite.ConfigOption) DatabaseOption {
	return func(o *databaseOptions) { o.sqliteOptions = append(o.sqliteOptions, opts...) }
}

// OpenDatabase opens or creates the store in dir.
func OpenDatabase(ctx context.Context, dir string, opts ...DatabaseOption) (*Database, error) {
	options := &databaseOptions{
		logger:     slog.Default(),
		appState:   storage.StaticAppState{MainApp: true, Active: true},
		strictness: coordinator.StrictFailDebug,
		keyWait:    30 * time.Second,
	}
	for _, opt := range opts {
		opt(options)
	}
	if options.logger == nil {
		options.logger = slog.Default()
	}
	if options.keyStore == nil {
		return nil, errors.New("sdstore: key store is required")
	}
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return nil, err
	}

	db := &Database{dir: dir, kvCollections: options.kvCollections, logger: options.logger}
	ok := false
	defer func() {
		if !ok {
			db.closeAll()
		}
	}()

	legacyPath := filepath.Join(dir, legacyDirName)
	freshInstall, err := isFreshInstall(legacyPath, options.inMemoryLegacy)
	if err != nil {
		return nil, err
	}

	db.state = newStateFile(dir)
	state := options.state
	if state == 0 {
		state, err = db.state.load(freshInstall)
		if err != nil {
			return nil, err
		}
	}

	db.legacy, err = badger.OpenBackend(legacyPath, options.inMemoryLegacy, badger.WithLogger(options.logger))
	if err != nil {
		return nil, fmt.Errorf("open legacy store: %w", err)
	}

	db.ui = options.ui
	if db.ui == nil {
		db.ui = dispatch.NewSerial("ui")
		db.ownsUI = true
	}
	db.background, err = dispatch.NewPool("background", options.poolSize)
	if err != nil {
		return nil, err
	}
	db.pipeline, err = observation.NewPipeline(db.ui, observation.WithLogger(options.logger))
	if err != nil {
		return nil, err
	}

	cfg := sqlite.NewConfig(append([]sqlite.ConfigOption{
		sqlite.WithPath(filepath.Join(dir, relationalFileName)),
		sqlite.WithKeyStore(options.keyStore),
		sqlite.WithAppState(options.appState),
	}, options.sqliteOptions...)...)
	db.relational, err = openRelational(ctx, cfg, options, db.pipeline)
	if err != nil {
		return nil, err
	}

	db.notifier = coordinator.NewCrossProcess(options.appState.IsActive(), options.post, db.pipeline.DidChangeExternally, options.logger)
	db.coordinator, err = coordinator.New(
		&txn.Legacy{Store: db.legacy, Logger: options.logger},
		&txn.Relational{Store: db.relational, Logger: options.logger},
		state,
		coordinator.WithLogger(options.logger),
		coordinator.WithStrictness(options.strictness),
		coordinator.WithDebug(options.debug),
		coordinator.WithCrossProcess(db.notifier),
		coordinator.WithOnAdvance(func(_, to coordinator.State) error {
			return db.state.save(to)
		}),
	)
	if err != nil {
		return nil, err
	}

	ok = true
	options.logger.Info("storage opened", "dir", dir, "state", state)
	return db, nil
}

// openRelational retries while the key is unavailable because the app is
// backgrounded; every other error is returned at once.
func openRelational(ctx context.Context, cfg *sqlite.Config, options *databaseOptions, observer sqlite.CommitObserver) (*sqlite.Store, error) {
	open := func() (*sqlite.Store, error) {
		store, err := sqlite.Open(ctx, cfg, sqlite.WithLogger(options.logger), sqlite.WithCommitObserver(observer))
		if err != nil && !storage.IsDeferrable(err) {
			return nil, backoff.Permanent(err)
		}
		return store, err
	}
	expo := backoff.NewExponentialBackOff()
	expo.InitialInterval = 100 * time.Millisecond
	expo.MaxInterval = 5 * time.Second
	store, err := backoff.Retry(ctx, open,
		backoff.WithBackOff(expo),
		backoff.WithMaxElapsedTime(options.keyWait),
		backoff.WithNotify(func(err error, next time.Duration) {
			options.logger.Warn("database key unavailable, retrying", "err", err, "next", next)
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("open relational store: %w", err)
	}
	return store, nil
}

func isFreshInstall(legacyPath string, inMemory bool) (bool, error) {
	if inMemory {
		return false, nil
	}
	_, err := os.Stat(legacyPath)
	if os.IsNotExist(err) {
		return true, nil
	}
	return false, err
}

func (db *Database) closeAll() error {
	var errs []error
	if db.relational != nil {
		if err := db.relational.Close(); err != nil {
			db.logger.Error("error closing relational store", "err", err)
			errs = append(errs, err)
		}
	}
	if db.legacy != nil {
		if err := db.legacy.Close(); err != nil {
			db.logger.Error("error closing legacy store", "err", err)
			errs = append(errs, err)
		}
	}
	if serial, ok := db.ui.(*dispatch.Serial); ok && db.ownsUI {
		serial.Close()
	}
	if db.background != nil {
		db.background.Release()
	}
	return errors.Join(errs...)
}

// Close closes both backends.
func (db *Database) Close() error {
	return db.closeAll()
}

// State returns the coordinator state.
func (db *Database) State() coordinator.State { return db.coordinator.State() }

// Background returns the worker pool for completions that need not run on
// the UI context. It is released by Close.
func (db *Database) Background() dispatch.Context { return db.background }

// Coordinator returns the transaction router.
func (db *Database) Coordinator() *coordinator.Coordinator { return db.coordinator }

// Pipeline returns the change observation pipeline.
func (db *Database) Pipeline() *observation.Pipeline { return db.pipeline }

// Read runs fn on the backend that currently serves reads.
func (db *Database) Read(ctx context.Context, fn func(txn.ReadTx) error) error {
	return db.coordinator.Read(ctx, fn)
}

// UIRead runs fn at the snapshot observers were last told about.
func (db *Database) UIRead(ctx context.Context, fn func(txn.ReadTx) error) error {
	return db.coordinator.UIRead(ctx, fn)
}

// Write runs fn on the backend that currently takes writes.
func (db *Database) Write(ctx context.Context, fn func(txn.WriteTx) error) error {
	return db.coordinator.Write(ctx, fn)
}

// KeyValueStore returns typed access to one key/value collection.
func (db *Database) KeyValueStore(collection string) (*keyvalue.Store, error) {
	return keyvalue.New(collection, keyvalue.WithLogger(db.logger))
}

// Migrate copies the legacy store into the relational one and makes the
// relational store authoritative. It is a no-op once that has happened.
// A *migration.Failure leaves the store in the during-migration state;
// the next Migrate resumes after the last committed group.
func (db *Database) Migrate(ctx context.Context, opts ...migration.Option) (*migration.Report, error) {
	switch db.coordinator.State() {
	case coordinator.StateRelationalOnly, coordinator.StateRelationalTests:
		return &migration.Report{Migrated: map[string]int{}}, nil
	case coordinator.StateLegacyTests:
		return nil, ErrMigrationUnsupported
	}
	if err := db.coordinator.AdvanceTo(coordinator.StateDuringMigration); err != nil {
		return nil, err
	}

	groups := migration.DefaultGroups(db.logger, db.kvCollections...)
	opts = append([]migration.Option{
		migration.WithLogger(db.logger),
		migration.WithLedgerSource(&txn.Relational{Store: db.relational, Logger: db.logger}),
	}, opts...)
	engine, err := migration.NewEngine(
		db.coordinator.Backend(storage.BackendLegacy),
		db.coordinator.Backend(storage.BackendRelational),
		groups, opts...)
	if err != nil {
		return nil, err
	}
	report, err := engine.Run(ctx)
	if err != nil {
		return report, err
	}
	if _, err := db.coordinator.Advance(); err != nil {
		return report, err
	}
	// Everything on screen came from the legacy store.
	db.pipeline.DidChangeExternally()
	return report, nil
}

// SyncTruncatingCheckpoint checkpoints the relational WAL, waiting at most
// maxWait for locks.
func (db *Database) SyncTruncatingCheckpoint(ctx context.Context, maxWait time.Duration) (*sqlite.CheckpointResult, error) {
	return db.relational.SyncTruncatingCheckpoint(ctx, maxWait)
}

// DidBecomeActive flushes a deferred cross-process notice.
func (db *Database) DidBecomeActive() { db.notifier.DidBecomeActive() }

// DidResignActive defers cross-process notices until the app is active.
func (db *Database) DidResignActive() { db.notifier.DidResignActive() }

// HandleCrossProcessNotification reacts to a write made by a sibling process.
func (db *Database) HandleCrossProcessNotification() { db.notifier.HandleRemote() }

// Stats counts the records of every model on the read backend.
func (db *Database) Stats(ctx context.Context) (map[string]int, error) {
	stats := make(map[string]int)
	err := db.Read(ctx, func(tx txn.ReadTx) error {
		counts := []struct {
			name  string
			count func() (int, error)
		}{
			{txn.Threads.Collection, func() (int, error) { return txn.Count(tx, txn.Threads) }},
			{txn.Interactions.Collection, func() (int, error) { return txn.Count(tx, txn.Interactions) }},
			{txn.Attachments.Collection, func() (int, error) { return txn.Count(tx, txn.Attachments) }},
			{txn.KnownStickerPacks.Collection, func() (int, error) { return txn.Count(tx, txn.KnownStickerPacks) }},
			{txn.JobRecords.Collection, func() (int, error) { return txn.Count(tx, txn.JobRecords) }},
		}
		if tx.Backend() == storage.BackendLegacy {
			counts = append(counts, struct {
				name  string
				count func() (int, error)
			}{txn.MessageDecryptJobs.Collection, func() (int, error) { return txn.Count(tx, txn.MessageDecryptJobs) }})
		}
		for _, c := range counts {
			n, err := c.count()
			if err != nil {
				return fmt.Errorf("count %s: %w", c.name, err)
			}
			stats[c.name] = n
		}
		return nil
	})
	return stats, err
}
