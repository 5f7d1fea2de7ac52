package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/poiesic/sdstore/storage"
)

// Table names.
const (
	TableThreads          = "model_TSThread"
	TableInteractions     = "model_TSInteraction"
	TableAttachments      = "model_TSAttachment"
	TableKnownStickerPack = "model_KnownStickerPack"
	TableJobRecords       = "model_SSKJobRecord"
	TableKeyValue         = "keyvalue"

	tableMetadata = "table_metadata"
	tableVerifier = "keyspec_verifier"
)

type tableDef struct {
	name    string
	version int
	ddl     []string
}

// schema lists every table in creation order. Bump a version when its DDL
// changes.
var schema = []tableDef{
	{
		name:    tableMetadata,
		version: 1,
		ddl: []string{`CREATE TABLE IF NOT EXISTS table_metadata (
			name TEXT PRIMARY KEY,
			version INTEGER NOT NULL
		)`},
	},
	{
		name:    tableVerifier,
		version: 1,
		ddl: []string{`CREATE TABLE IF NOT EXISTS keyspec_verifier (
			id INTEGER PRIMARY KEY CHECK (id = 1),
			digest BLOB NOT NULL
		)`},
	},
	{
		name:    TableThreads,
		version: 1,
		ddl: []string{`CREATE TABLE IF NOT EXISTS model_TSThread (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			uniqueId TEXT NOT NULL UNIQUE,
			kind INTEGER NOT NULL,
			contactPhoneNumber TEXT NOT NULL DEFAULT '',
			contactUUID TEXT NOT NULL DEFAULT '',
			groupId BLOB,
			name TEXT NOT NULL DEFAULT '',
			isArchived INTEGER NOT NULL DEFAULT 0,
			shouldBeVisible INTEGER NOT NULL DEFAULT 0,
			lastInteractionRowId INTEGER NOT NULL DEFAULT 0,
			creationDate INTEGER NOT NULL DEFAULT 0
		)`,
			`CREATE INDEX IF NOT EXISTS index_thread_visible ON model_TSThread (shouldBeVisible, lastInteractionRowId)`,
		},
	},
	{
		name:    TableInteractions,
		version: 1,
		ddl: []string{`CREATE TABLE IF NOT EXISTS model_TSInteraction (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			uniqueId TEXT NOT NULL UNIQUE,
			threadUniqueId TEXT NOT NULL REFERENCES model_TSThread (uniqueId) ON DELETE CASCADE,
			kind INTEGER NOT NULL,
			timestamp INTEGER NOT NULL DEFAULT 0,
			body TEXT NOT NULL DEFAULT '',
			authorPhoneNumber TEXT NOT NULL DEFAULT '',
			read INTEGER NOT NULL DEFAULT 0
		)`,
			`CREATE INDEX IF NOT EXISTS index_interaction_thread ON model_TSInteraction (threadUniqueId, id)`,
		},
	},
	{
		name:    TableAttachments,
		version: 1,
		ddl: []string{`CREATE TABLE IF NOT EXISTS model_TSAttachment (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			uniqueId TEXT NOT NULL UNIQUE,
			contentType TEXT NOT NULL DEFAULT '',
			byteCount INTEGER NOT NULL DEFAULT 0,
			sourceFilename TEXT NOT NULL DEFAULT '',
			albumMessageId TEXT NOT NULL DEFAULT ''
		)`},
	},
	{
		name:    TableKnownStickerPack,
		version: 1,
		ddl: []string{`CREATE TABLE IF NOT EXISTS model_KnownStickerPack (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			uniqueId TEXT NOT NULL UNIQUE,
			packId BLOB,
			packKey BLOB,
			referenceCount INTEGER NOT NULL DEFAULT 0
		)`},
	},
	{
		name:    TableJobRecords,
		version: 1,
		ddl: []string{`CREATE TABLE IF NOT EXISTS model_SSKJobRecord (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			uniqueId TEXT NOT NULL UNIQUE,
			kind INTEGER NOT NULL,
			label TEXT NOT NULL,
			status INTEGER NOT NULL,
			failureCount INTEGER NOT NULL DEFAULT 0,
			envelopeData BLOB,
			contactThreadId TEXT NOT NULL DEFAULT '',
			messageId TEXT NOT NULL DEFAULT '',
			isMediaMessage INTEGER NOT NULL DEFAULT 0
		)`,
			`CREATE INDEX IF NOT EXISTS index_job_label_status ON model_SSKJobRecord (label, status, id)`,
		},
	},
	{
		name:    TableKeyValue,
		version: 1,
		ddl: []string{`CREATE TABLE IF NOT EXISTS keyvalue (
			key TEXT NOT NULL,
			collection TEXT NOT NULL,
			value BLOB NOT NULL,
			PRIMARY KEY (key, collection)
		)`},
	},
}

// createSchema creates missing tables and records their versions.
func createSchema(ctx context.Context, tx *WriteTx) error {
	for _, def := range schema {
		for _, stmt := range def.ddl {
			if _, err := tx.tx.ExecContext(ctx, stmt); err != nil {
				return fmt.Errorf("create %s: %w", def.name, err)
			}
		}
		if _, err := tx.tx.ExecContext(ctx,
			`INSERT INTO table_metadata (name, version) VALUES (?, ?)
			ON CONFLICT (name) DO UPDATE SET version = excluded.version WHERE version < excluded.version`,
			def.name, def.version); err != nil {
			return fmt.Errorf("record %s version: %w", def.name, err)
		}
	}
	return nil
}

// verifyKeySpec stores the verifier on first open and compares it afterwards.
func verifyKeySpec(ctx context.Context, tx *WriteTx, spec KeySpec) error {
	var digest []byte
	err := tx.tx.QueryRowContext(ctx, `SELECT digest FROM keyspec_verifier WHERE id = 1`).Scan(&digest)
	if errors.Is(err, sql.ErrNoRows) {
		_, err = tx.tx.ExecContext(ctx, `INSERT INTO keyspec_verifier (id, digest) VALUES (1, ?)`, spec.verifier())
		return err
	}
	if err != nil {
		return err
	}
	if !spec.matches(digest) {
		return &storage.KeyUnavailableError{Err: ErrKeyMismatch}
	}
	return nil
}

// TableVersions returns the recorded version of every table.
func (t *ReadTx) TableVersions() (map[string]int, error) {
	rows, err := t.tx.QueryContext(t.ctx, `SELECT name, version FROM table_metadata ORDER BY name`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	versions := make(map[string]int)
	for rows.Next() {
		var name string
		var version int
		if err := rows.Scan(&name, &version); err != nil {
			return nil, err
		}
		versions[name] = version
	}
	return versions, rows.Err()
}
