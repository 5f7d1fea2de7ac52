package sqlite

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/poiesic/sdstore/storage"
	sqlite3 "modernc.org/sqlite/lib"
)

// BusyState is the lock acquisition state of one retried operation.
type BusyState int

const (
	BusyIdle BusyState = iota
	BusyWaiting
	BusyAborted
)

func (s BusyState) String() string {
	switch s {
	case BusyIdle:
		return "idle"
	case BusyWaiting:
		return "busy"
	case BusyAborted:
		return "aborted"
	default:
		return "unknown"
	}
}

// busyRetrier runs an operation until it stops failing with SQLITE_BUSY.
// Each busy attempt sleeps one quantum. maxWait of zero retries forever.
type busyRetrier struct {
	op        string
	quantum   time.Duration
	warnEvery time.Duration
	maxWait   time.Duration
	logger    *slog.Logger

	state   BusyState
	retries int
	waited  time.Duration
}

func (s *Store) newRetrier(op string, maxWait time.Duration) *busyRetrier {
	return &busyRetrier{
		op:        op,
		quantum:   s.cfg.BusyQuantum,
		warnEvery: s.cfg.BusyWarnInterval,
		maxWait:   maxWait,
		logger:    s.logger,
	}
}

func (r *busyRetrier) run(ctx context.Context, fn func() error) error {
	for {
		err := fn()
		if !isBusy(err) {
			r.state = BusyIdle
			return err
		}
		r.state = BusyWaiting
		r.retries++
		if r.maxWait > 0 && r.waited >= r.maxWait {
			r.state = BusyAborted
			return fmt.Errorf("%s: %w after %d retries (%s)", r.op, storage.ErrLockTimeout, r.retries, r.waited)
		}
		if r.warnEvery > 0 && r.waited > 0 && r.waited%r.warnEvery < r.quantum {
			r.logger.Warn("database busy", "op", r.op, "retries", r.retries, "waited", r.waited)
		}

		wait := r.quantum
		if r.maxWait > 0 && r.waited+wait > r.maxWait {
			wait = r.maxWait - r.waited
		}
		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
		r.waited += wait
	}
}

type coder interface {
	Code() int
}

// busyError stands in for an SQLITE_BUSY result reported through a row
// rather than an error, such as the busy column of wal_checkpoint.
type busyError struct{}

func (busyError) Error() string { return "database is busy" }
func (busyError) Code() int     { return sqlite3.SQLITE_BUSY }

func isBusy(err error) bool {
	if err == nil {
		return false
	}
	var c coder
	if errors.As(err, &c) {
		switch c.Code() & 0xff {
		case sqlite3.SQLITE_BUSY, sqlite3.SQLITE_LOCKED:
			return true
		}
		return false
	}
	msg := err.Error()
	return strings.Contains(msg, "database is locked") || strings.Contains(msg, "SQLITE_BUSY")
}

func isUniqueViolation(err error) bool {
	if err == nil {
		return false
	}
	var c coder
	if errors.As(err, &c) {
		switch c.Code() {
		case sqlite3.SQLITE_CONSTRAINT_UNIQUE, sqlite3.SQLITE_CONSTRAINT_PRIMARYKEY:
			return true
		}
	}
	return strings.Contains(err.Error(), "UNIQUE constraint failed")
}

// mapWriteError turns constraint violations into storage sentinels.
func mapWriteError(table string, err error) error {
	if isUniqueViolation(err) {
		return fmt.Errorf("%s: %w: %w", table, storage.ErrDuplicateKey, err)
	}
	return err
}
