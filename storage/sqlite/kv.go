package sqlite

import (
	"database/sql"
	"errors"
	"fmt"

	"github.com/poiesic/sdstore/storage"
)

const (
	kvGetQuery    = `SELECT value FROM keyvalue WHERE key = ? AND collection = ?`
	kvHasQuery    = `SELECT EXISTS (SELECT 1 FROM keyvalue WHERE key = ? AND collection = ?)`
	kvSetQuery    = `INSERT OR REPLACE INTO keyvalue (key, collection, value) VALUES (?, ?, ?)`
	kvRemoveQuery = `DELETE FROM keyvalue WHERE key = ? AND collection = ?`
	kvCountQuery  = `SELECT COUNT(*) FROM keyvalue WHERE collection = ?`
)

// hotQueries are prepared once per pool.
var hotQueries = []string{kvGetQuery, kvHasQuery, kvSetQuery, kvRemoveQuery, kvCountQuery}

// KeyValue returns the value stored under (key, collection).
// Returns storage.ErrNotFound if there is none.
func (t *ReadTx) KeyValue(key, collection string) ([]byte, error) {
	stmt, err := t.stmt(kvGetQuery)
	if err != nil {
		return nil, err
	}
	var value []byte
	err = stmt.QueryRowContext(t.ctx, key, collection).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, storage.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get %s/%s: %w", collection, key, err)
	}
	return value, nil
}

// HasKeyValue reports whether (key, collection) exists.
func (t *ReadTx) HasKeyValue(key, collection string) (bool, error) {
	stmt, err := t.stmt(kvHasQuery)
	if err != nil {
		return false, err
	}
	var exists bool
	if err := stmt.QueryRowContext(t.ctx, key, collection).Scan(&exists); err != nil {
		return false, err
	}
	return exists, nil
}

// CountKeyValues counts the entries in collection.
func (t *ReadTx) CountKeyValues(collection string) (int, error) {
	stmt, err := t.stmt(kvCountQuery)
	if err != nil {
		return 0, err
	}
	var count int
	if err := stmt.QueryRowContext(t.ctx, collection).Scan(&count); err != nil {
		return 0, err
	}
	return count, nil
}

// EnumerateKeyValues walks collection in key order. Setting *stop ends the
// walk after the current entry. With keysOnly the value passed to fn is nil.
func (t *ReadTx) EnumerateKeyValues(collection string, keysOnly bool, fn func(key string, value []byte, stop *bool) error) error {
	query := `SELECT key, value FROM keyvalue WHERE collection = ? ORDER BY key`
	if keysOnly {
		query = `SELECT key, NULL FROM keyvalue WHERE collection = ? ORDER BY key`
	}
	rows, err := t.tx.QueryContext(t.ctx, query, collection)
	if err != nil {
		return err
	}
	defer rows.Close()

	stop := false
	for !stop && rows.Next() {
		var key string
		var value []byte
		if err := rows.Scan(&key, &value); err != nil {
			return err
		}
		if err := fn(key, value, &stop); err != nil {
			return err
		}
	}
	return rows.Err()
}

// SetKeyValue upserts (key, collection). A nil value removes the entry.
func (t *WriteTx) SetKeyValue(key, collection string, value []byte) error {
	if value == nil {
		return t.RemoveKeyValue(key, collection)
	}
	stmt, err := t.stmt(kvSetQuery)
	if err != nil {
		return err
	}
	if _, err := stmt.ExecContext(t.ctx, key, collection, value); err != nil {
		return fmt.Errorf("set %s/%s: %w", collection, key, err)
	}
	return nil
}

// RemoveKeyValue deletes (key, collection). Removing a missing entry is a no-op.
func (t *WriteTx) RemoveKeyValue(key, collection string) error {
	stmt, err := t.stmt(kvRemoveQuery)
	if err != nil {
		return err
	}
	if _, err := stmt.ExecContext(t.ctx, key, collection); err != nil {
		return fmt.Errorf("remove %s/%s: %w", collection, key, err)
	}
	return nil
}

// RemoveAllKeyValues deletes every entry in collection.
func (t *WriteTx) RemoveAllKeyValues(collection string) error {
	_, err := t.tx.ExecContext(t.ctx, `DELETE FROM keyvalue WHERE collection = ?`, collection)
	return err
}
