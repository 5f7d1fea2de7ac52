package migration

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/poiesic/sdstore/keyvalue"
	"github.com/poiesic/sdstore/storage"
	"github.com/poiesic/sdstore/txn"
)

// LedgerCollection is the key/value collection recording completed migrators.
const LedgerCollection = "MigrationLedger"

// Config holds Engine settings.
type Config struct {
	// ReportInterval is how often progress is printed, in records.
	ReportInterval int
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() *Config {
	return &Config{ReportInterval: 500}
}

// Engine runs migration groups from a legacy backend into a relational one.
type Engine struct {
	legacy     txn.Backend
	relational txn.Backend
	groups     []Group
	config     *Config
	logger     *slog.Logger
	progress   io.Writer
	ledger     *keyvalue.Store
	// ledgerSource serves ledger reads. Defaults to relational.
	ledgerSource txn.Backend
}

// Option configures an Engine.
type Option func(*Engine) error

// WithLogger sets a custom logger.
// Default is slog.Default().
func WithLogger(logger *slog.Logger) Option {
	return func(e *Engine) error {
		if logger == nil {
			logger = slog.Default()
		}
		e.logger = logger
		return nil
	}
}

// WithConfig replaces the default Config.
func WithConfig(config *Config) Option {
	return func(e *Engine) error {
		if config == nil {
			return errors.New("migration: nil config")
		}
		e.config = config
		return nil
	}
}

// WithProgress prints progress to w (typically os.Stderr).
func WithProgress(w io.Writer) Option {
	return func(e *Engine) error {
		e.progress = w
		return nil
	}
}

// WithLedgerSource reads the ledger from b instead of the relational
// backend the engine writes to. Used when that backend refuses relational
// reads while a migration is in progress.
func WithLedgerSource(b txn.Backend) Option {
	return func(e *Engine) error {
		if b == nil || b.Kind() != storage.BackendRelational {
			return ErrWrongBackend
		}
		e.ledgerSource = b
		return nil
	}
}

// NewEngine returns an Engine copying legacy into relational by groups.
func NewEngine(legacy, relational txn.Backend, groups []Group, opts ...Option) (*Engine, error) {
	if len(groups) == 0 {
		return nil, ErrNoGroups
	}
	if legacy.Kind() != storage.BackendLegacy || relational.Kind() != storage.BackendRelational {
		return nil, ErrWrongBackend
	}
	e := &Engine{
		legacy:     legacy,
		relational: relational,
		groups:     groups,
		config:     DefaultConfig(),
		logger:     slog.Default(),
	}
	for _, opt := range opts {
		if err := opt(e); err != nil {
			return nil, err
		}
	}
	ledger, err := keyvalue.New(LedgerCollection, keyvalue.WithLogger(e.logger))
	if err != nil {
		return nil, err
	}
	e.ledger = ledger
	if e.ledgerSource == nil {
		e.ledgerSource = relational
	}
	return e, nil
}

// Report summarizes a run.
type Report struct {
	// Migrated maps migrator name to records copied by this run.
	Migrated map[string]int
	// AlreadyDone lists migrators the ledger showed as complete.
	AlreadyDone []string
	Total       int
	Elapsed     time.Duration
}

// Run copies every group. It returns a *Failure if any migrator fails; the
// failing group is rolled back and earlier groups stay committed.
func (e *Engine) Run(ctx context.Context) (*Report, error) {
	report := &Report{Migrated: make(map[string]int)}
	err := e.legacy.Read(ctx, func(src txn.ReadTx) error {
		done, err := e.completed(ctx)
		if err != nil {
			return &Failure{Group: "ledger", Err: err}
		}

		progress := NewProgress(e.progress, e.config.ReportInterval)
		progress.Start(e.pending(src, done))

		for _, group := range e.groups {
			if err := e.runGroup(ctx, group, src, done, progress, report); err != nil {
				return err
			}
		}
		progress.Finish()
		report.Elapsed = progress.Elapsed()
		return nil
	})
	if err != nil {
		if !IsFailure(err) {
			err = &Failure{Group: "legacy", Err: err}
		}
		e.logger.Error("migration failed", "err", err)
		return report, err
	}
	e.logger.Info("migration complete", "records", report.Total, "elapsed", report.Elapsed.Round(time.Millisecond))
	return report, nil
}

func (e *Engine) completed(ctx context.Context) (map[string]bool, error) {
	done := make(map[string]bool)
	err := e.ledgerSource.Read(ctx, func(tx txn.ReadTx) error {
		keys, err := e.ledger.AllKeys(tx)
		for _, key := range keys {
			done[key] = true
		}
		return err
	})
	return done, err
}

// pending sizes the run for progress output. Migrators that cannot count
// contribute nothing.
func (e *Engine) pending(src txn.ReadTx, done map[string]bool) int {
	total := 0
	for _, group := range e.groups {
		for _, m := range group.Migrators {
			counter, ok := m.(Counter)
			if !ok || done[m.Name()] {
				continue
			}
			n, err := counter.Count(src)
			if err != nil {
				e.logger.Warn("cannot size migrator", "migrator", m.Name(), "err", err)
				continue
			}
			total += n
		}
	}
	return total
}

func (e *Engine) runGroup(ctx context.Context, group Group, src txn.ReadTx, done map[string]bool, progress *Progress, report *Report) error {
	migrated := make(map[string]int)
	var active string
	err := e.relational.Write(ctx, func(dst txn.WriteTx) error {
		clear(migrated)
		for _, m := range group.Migrators {
			name := m.Name()
			if done[name] {
				continue
			}
			active = name
			n, err := m.Migrate(ctx, src, dst)
			if err != nil {
				return &Failure{Group: group.Name, Migrator: name, Err: err}
			}
			if err := e.ledger.SetInt(dst, name, n); err != nil {
				return &Failure{Group: group.Name, Migrator: name, Err: err}
			}
			migrated[name] = n
		}
		active = ""
		return nil
	})
	if err != nil {
		if !IsFailure(err) {
			err = &Failure{Group: group.Name, Migrator: active, Err: err}
		}
		return err
	}

	for _, m := range group.Migrators {
		name := m.Name()
		if done[name] {
			report.AlreadyDone = append(report.AlreadyDone, name)
			continue
		}
		n := migrated[name]
		report.Migrated[name] = n
		report.Total += n
		progress.Increment(n)
		e.logger.Info("migrated", "group", group.Name, "migrator", name, "records", n)
	}
	return nil
}

// Completed reports whether the ledger holds every migrator of groups.
func Completed(ctx context.Context, relational txn.Backend, groups []Group) (bool, error) {
	ledger, err := keyvalue.New(LedgerCollection)
	if err != nil {
		return false, err
	}
	complete := true
	err = relational.Read(ctx, func(tx txn.ReadTx) error {
		for _, group := range groups {
			for _, m := range group.Migrators {
				ok, err := ledger.HasValue(tx, m.Name())
				if err != nil {
					return err
				}
				if !ok {
					complete = false
					return nil
				}
			}
		}
		return nil
	})
	if err != nil {
		return false, fmt.Errorf("read migration ledger: %w", err)
	}
	return complete, nil
}
