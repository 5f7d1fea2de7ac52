package sqlite

import (
	"context"
	"errors"
	"os"
	"time"

	"github.com/poiesic/sdstore/storage"
)

// DefaultCheckpointWait is the lock budget of a maintenance checkpoint.
const DefaultCheckpointWait = 50 * time.Millisecond

// CheckpointResult reports a truncating checkpoint.
type CheckpointResult struct {
	// WALSizePages is the WAL size in pages before truncation.
	WALSizePages int
	// PagesCheckpointed is how many of those pages reached the database file.
	PagesCheckpointed int
	// Skipped is set when the lock could not be had within the wait budget.
	Skipped bool
}

// SyncTruncatingCheckpoint copies the WAL into the database file and
// truncates it. It waits at most maxWait for the writer slot and for
// readers to drain; when that runs out the checkpoint is skipped, not
// failed, so interactive writers are never held up for long. A maxWait of
// zero uses DefaultCheckpointWait.
func (s *Store) SyncTruncatingCheckpoint(ctx context.Context, maxWait time.Duration) (*CheckpointResult, error) {
	if s.closed.Load() {
		return nil, storage.ErrStorageClosed
	}
	if maxWait <= 0 {
		maxWait = DefaultCheckpointWait
	}
	start := time.Now()
	s.logFileSizes("before checkpoint")

	if err := s.acquireWriter(ctx, maxWait); err != nil {
		return s.checkpointSkipped(err)
	}
	defer s.releaseWriter()

	result := &CheckpointResult{}
	remaining := maxWait - time.Since(start)
	if remaining <= 0 {
		remaining = s.cfg.BusyQuantum
	}
	err := s.newRetrier("checkpoint", remaining).run(ctx, func() error {
		var busy int
		if err := s.writeDB.QueryRowContext(ctx, `PRAGMA wal_checkpoint(TRUNCATE)`).
			Scan(&busy, &result.WALSizePages, &result.PagesCheckpointed); err != nil {
			return err
		}
		if busy != 0 {
			return busyError{}
		}
		return nil
	})
	if err != nil {
		return s.checkpointSkipped(err)
	}

	s.logger.Debug("checkpoint complete",
		"walPages", result.WALSizePages,
		"checkpointed", result.PagesCheckpointed,
		"elapsed", time.Since(start))
	s.logFileSizes("after checkpoint")
	return result, nil
}

func (s *Store) checkpointSkipped(err error) (*CheckpointResult, error) {
	if errors.Is(err, storage.ErrLockTimeout) {
		s.logger.Info("checkpoint skipped", "reason", err)
		return &CheckpointResult{Skipped: true}, nil
	}
	return nil, err
}

func (s *Store) logFileSizes(msg string) {
	attrs := make([]any, 0, 6)
	for _, suffix := range []string{"", "-wal", "-shm"} {
		var size int64
		if info, err := os.Stat(s.cfg.Path + suffix); err == nil {
			size = info.Size()
		}
		attrs = append(attrs, "db"+suffix, size)
	}
	s.logger.Debug(msg, attrs...)
}
