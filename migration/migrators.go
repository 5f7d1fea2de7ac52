package migration

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/poiesic/sdstore/core"
	"github.com/poiesic/sdstore/storage"
	"github.com/poiesic/sdstore/txn"
)

// Migrator copies one record type from the legacy store.
type Migrator interface {
	// Name identifies the migrator in the ledger. It must be stable across
	// releases.
	Name() string
	// Migrate copies every record from src into dst and returns the number
	// of records written.
	Migrate(ctx context.Context, src txn.ReadTx, dst txn.WriteTx) (int, error)
}

// Counter is implemented by migrators that can size their work up front.
type Counter interface {
	Count(src txn.ReadTx) (int, error)
}

// Group is a set of migrators committed together.
type Group struct {
	Name      string
	Migrators []Migrator
}

func loggerOr(logger *slog.Logger) *slog.Logger {
	if logger == nil {
		return slog.Default()
	}
	return logger
}

// UnorderedRecordMigrator copies a collection whose records carry no
// backend-assigned ordering of their own.
type UnorderedRecordMigrator[T any] struct {
	Model txn.Model[T]
	// Transform, if set, adjusts each record before insertion.
	Transform func(*T)
}

func (m *UnorderedRecordMigrator[T]) Name() string { return "records:" + m.Model.Collection }

func (m *UnorderedRecordMigrator[T]) Count(src txn.ReadTx) (int, error) {
	return txn.Count(src, m.Model)
}

func (m *UnorderedRecordMigrator[T]) Migrate(ctx context.Context, src txn.ReadTx, dst txn.WriteTx) (int, error) {
	copied := 0
	err := txn.EnumerateAll(src, m.Model, func(record *T, _ *bool) error {
		if err := ctx.Err(); err != nil {
			return err
		}
		if m.Transform != nil {
			m.Transform(record)
		}
		if err := txn.Insert(dst, m.Model, record); err != nil {
			return fmt.Errorf("%s %s: %w", m.Model.Collection, m.Model.UniqueID(record), err)
		}
		copied++
		return nil
	})
	return copied, err
}

// ThreadMigrator copies threads. Thread pointers into the interaction
// sequence are cleared; InteractionMigrator sets them again.
func ThreadMigrator() *UnorderedRecordMigrator[core.Thread] {
	return &UnorderedRecordMigrator[core.Thread]{
		Model: txn.Threads,
		Transform: func(t *core.Thread) {
			t.RowID = 0
			t.LastInteractionSortID = 0
		},
	}
}

// InteractionMigrator copies interactions in legacy insertion order, so the
// relational row ids come out in the same relative order for every thread.
// Interactions whose thread is missing are skipped.
type InteractionMigrator struct {
	Logger *slog.Logger
}

func (m *InteractionMigrator) Name() string { return "interactions" }

func (m *InteractionMigrator) Count(src txn.ReadTx) (int, error) {
	return txn.Count(src, txn.Interactions)
}

func (m *InteractionMigrator) Migrate(ctx context.Context, src txn.ReadTx, dst txn.WriteTx) (int, error) {
	logger := loggerOr(m.Logger)
	latest := make(map[string]uint64)
	var order []string
	known := make(map[string]bool)

	copied := 0
	err := txn.EnumerateAll(src, txn.Interactions, func(interaction *core.Interaction, _ *bool) error {
		if err := ctx.Err(); err != nil {
			return err
		}
		threadID := interaction.ThreadUniqueID
		exists, seen := known[threadID]
		if !seen {
			var err error
			exists, err = txn.Exists(dst, txn.Threads, threadID)
			if err != nil {
				return err
			}
			known[threadID] = exists
		}
		if !exists {
			logger.Warn("skipping interaction of missing thread", "interaction", interaction.UniqueID, "thread", threadID)
			return nil
		}

		interaction.SortID = 0
		if err := txn.Insert(dst, txn.Interactions, interaction); err != nil {
			return fmt.Errorf("interaction %s: %w", interaction.UniqueID, err)
		}
		if _, ok := latest[threadID]; !ok {
			order = append(order, threadID)
		}
		latest[threadID] = interaction.SortID
		copied++
		return nil
	})
	if err != nil {
		return copied, err
	}

	for _, threadID := range order {
		thread, err := txn.Fetch(dst, txn.Threads, threadID)
		if err != nil {
			return copied, fmt.Errorf("thread %s: %w", threadID, err)
		}
		thread.LastInteractionSortID = latest[threadID]
		if err := txn.Update(dst, txn.Threads, thread); err != nil {
			return copied, fmt.Errorf("thread %s: %w", threadID, err)
		}
	}
	return copied, nil
}

// JobRecordMigrator copies the legacy job records of one queue. Records with
// no status become ready.
type JobRecordMigrator struct {
	Label  string
	Kind   core.JobKind
	Logger *slog.Logger
}

func (m *JobRecordMigrator) Name() string { return "jobs:" + m.Label }

func (m *JobRecordMigrator) Count(src txn.ReadTx) (int, error) {
	count := 0
	err := txn.EnumerateAll(src, txn.JobRecords, func(job *core.JobRecord, _ *bool) error {
		if job.Label == m.Label {
			count++
		}
		return nil
	})
	return count, err
}

func (m *JobRecordMigrator) Migrate(ctx context.Context, src txn.ReadTx, dst txn.WriteTx) (int, error) {
	logger := loggerOr(m.Logger)
	copied := 0
	err := txn.EnumerateAll(src, txn.JobRecords, func(job *core.JobRecord, _ *bool) error {
		if job.Label != m.Label {
			return nil
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		if m.Kind != 0 && job.Kind != m.Kind {
			logger.Warn("skipping job record of unexpected kind", "label", m.Label, "job", job.UniqueID, "kind", job.Kind)
			return nil
		}
		if job.Status == core.JobStatusUnknown {
			job.Status = core.JobStatusReady
		}
		job.SortID = 0
		if err := txn.Insert(dst, txn.JobRecords, job); err != nil {
			return fmt.Errorf("job %s: %w", job.UniqueID, err)
		}
		copied++
		return nil
	})
	return copied, err
}

// DecryptJobMigrator turns legacy OWSMessageDecryptJob rows into ready
// decrypt job records with the same unique id.
type DecryptJobMigrator struct{}

func (m *DecryptJobMigrator) Name() string { return "decryptJobs" }

func (m *DecryptJobMigrator) Count(src txn.ReadTx) (int, error) {
	return txn.Count(src, txn.MessageDecryptJobs)
}

func (m *DecryptJobMigrator) Migrate(ctx context.Context, src txn.ReadTx, dst txn.WriteTx) (int, error) {
	copied := 0
	err := txn.EnumerateAll(src, txn.MessageDecryptJobs, func(legacyJob *core.MessageDecryptJob, _ *bool) error {
		if err := ctx.Err(); err != nil {
			return err
		}
		job := &core.JobRecord{
			UniqueID:     legacyJob.UniqueID,
			Kind:         core.JobKindMessageDecrypt,
			Label:        core.MessageDecryptJobLabel,
			Status:       core.JobStatusReady,
			EnvelopeData: legacyJob.EnvelopeData,
		}
		if err := txn.Insert(dst, txn.JobRecords, job); err != nil {
			return fmt.Errorf("decrypt job %s: %w", job.UniqueID, err)
		}
		copied++
		return nil
	})
	return copied, err
}

// KeyValueMigrator copies raw key/value collections byte for byte.
type KeyValueMigrator struct {
	Collections []string
}

func (m *KeyValueMigrator) Name() string { return "keyvalue" }

func (m *KeyValueMigrator) Count(src txn.ReadTx) (int, error) {
	total := 0
	for _, collection := range m.Collections {
		n, err := txn.CountValues(src, collection)
		if err != nil {
			return 0, err
		}
		total += n
	}
	return total, nil
}

func (m *KeyValueMigrator) Migrate(ctx context.Context, src txn.ReadTx, dst txn.WriteTx) (int, error) {
	copied := 0
	for _, collection := range m.Collections {
		err := txn.EnumerateValues(src, collection, false, func(key string, value []byte, _ *bool) error {
			if err := ctx.Err(); err != nil {
				return err
			}
			exists, err := txn.HasValue(dst, collection, key)
			if err != nil {
				return err
			}
			if exists {
				return fmt.Errorf("%s/%s: %w", collection, key, storage.ErrDuplicateKey)
			}
			if value == nil {
				value = []byte{}
			}
			if err := txn.SetValue(dst, collection, key, value); err != nil {
				return err
			}
			copied++
			return nil
		})
		if err != nil {
			return copied, err
		}
	}
	return copied, nil
}

// DefaultGroups is the full migration: threads and their peers first, then
// everything that refers to a thread, then the job queues.
func DefaultGroups(logger *slog.Logger, kvCollections ...string) []Group {
	groups := []Group{
		{
			Name: "threads",
			Migrators: []Migrator{
				ThreadMigrator(),
				&UnorderedRecordMigrator[core.KnownStickerPack]{Model: txn.KnownStickerPacks},
			},
		},
		{
			Name: "interactions",
			Migrators: []Migrator{
				&InteractionMigrator{Logger: logger},
				&UnorderedRecordMigrator[core.Attachment]{Model: txn.Attachments},
			},
		},
		{
			Name: "jobs",
			Migrators: []Migrator{
				&JobRecordMigrator{Label: core.MessageDecryptJobLabel, Kind: core.JobKindMessageDecrypt, Logger: logger},
				&JobRecordMigrator{Label: core.SessionResetJobLabel, Kind: core.JobKindSessionReset, Logger: logger},
				&JobRecordMigrator{Label: core.MessageSenderJobLabel, Kind: core.JobKindMessageSender, Logger: logger},
				&DecryptJobMigrator{},
			},
		},
	}
	if len(kvCollections) > 0 {
		groups = append(groups, Group{
			Name:      "keyvalue",
			Migrators: []Migrator{&KeyValueMigrator{Collections: kvCollections}},
		})
	}
	return groups
}
