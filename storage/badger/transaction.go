package badger

import (
	"errors"
	"fmt"
	"log/slog"

	"github.com/dgraph-io/badger/v4"
	"github.com/poiesic/sdstore/storage"
)

// ReadTx is a read-only view of the legacy store.
type ReadTx struct {
	txn    *badger.Txn
	logger *slog.Logger
}

// Logger returns the backend's logger.
func (t *ReadTx) Logger() *slog.Logger { return t.logger }

func (t *ReadTx) getEnvelope(collection, key string) (envelope, bool, error) {
	item, err := t.txn.Get(makeObjectKey(collection, key))
	if errors.Is(err, badger.ErrKeyNotFound) {
		return envelope{}, false, nil
	}
	if err != nil {
		return envelope{}, false, err
	}
	var e envelope
	err = item.Value(func(val []byte) error {
		var err error
		e, err = unmarshalEnvelope(val)
		return err
	})
	if err != nil {
		return envelope{}, false, err
	}
	return e, true, nil
}

// Object returns the payload stored under key.
// Returns storage.ErrNotFound if there is none.
func (t *ReadTx) Object(collection, key string) ([]byte, error) {
	e, ok, err := t.getEnvelope(collection, key)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, storage.ErrNotFound
	}
	return e.data, nil
}

// HasObject reports whether key exists in collection.
func (t *ReadTx) HasObject(collection, key string) (bool, error) {
	_, err := t.txn.Get(makeObjectKey(collection, key))
	if errors.Is(err, badger.ErrKeyNotFound) {
		return false, nil
	}
	return err == nil, err
}

// RowID returns the insertion-order row id of key.
func (t *ReadTx) RowID(collection, key string) (uint64, error) {
	e, ok, err := t.getEnvelope(collection, key)
	if err != nil {
		return 0, err
	}
	if !ok {
		return 0, storage.ErrNotFound
	}
	return e.rowID, nil
}

// EnumerateKeys walks the keys of collection in insertion order.
// Setting *stop ends the walk after the current key.
func (t *ReadTx) EnumerateKeys(collection string, fn func(key string, stop *bool) error) error {
	opts := badger.DefaultIteratorOptions
	opts.Prefix = makeRowPrefix(collection)
	iter := t.txn.NewIterator(opts)
	defer iter.Close()

	stop := false
	for iter.Rewind(); iter.Valid() && !stop; iter.Next() {
		var key string
		if err := iter.Item().Value(func(val []byte) error {
			key = string(val)
			return nil
		}); err != nil {
			return err
		}
		if err := fn(key, &stop); err != nil {
			return err
		}
	}
	return nil
}

// EnumerateKeysAndObjects walks collection in insertion order, handing each
// payload to fn. Rows whose object cannot be read are skipped with a warning.
func (t *ReadTx) EnumerateKeysAndObjects(collection string, fn func(key string, data []byte, stop *bool) error) error {
	return t.EnumerateKeys(collection, func(key string, stop *bool) error {
		e, ok, err := t.getEnvelope(collection, key)
		if err != nil {
			t.logger.Warn("skipping unreadable legacy object", "collection", collection, "key", key, "err", err)
			return nil
		}
		if !ok {
			t.logger.Warn("skipping dangling legacy row", "collection", collection, "key", key)
			return nil
		}
		return fn(key, e.data, stop)
	})
}

// NumberOfKeys counts the objects in collection.
func (t *ReadTx) NumberOfKeys(collection string) (int, error) {
	opts := badger.DefaultIteratorOptions
	opts.PrefetchValues = false
	opts.Prefix = makeRowPrefix(collection)
	iter := t.txn.NewIterator(opts)
	defer iter.Close()

	count := 0
	for iter.Rewind(); iter.Valid(); iter.Next() {
		count++
	}
	return count, nil
}

// EnumerateIndex walks one group of a secondary index in sort id order,
// newest first when reverse is set.
func (t *ReadTx) EnumerateIndex(index, group string, reverse bool, fn func(key string, sortID uint64, stop *bool) error) error {
	prefix := makeIndexPrefix(index, group)
	opts := badger.DefaultIteratorOptions
	opts.PrefetchValues = false
	opts.Prefix = prefix
	opts.Reverse = reverse
	iter := t.txn.NewIterator(opts)
	defer iter.Close()

	startKey := prefix
	if reverse {
		startKey = prefixEnd(prefix)
	}

	stop := false
	for iter.Seek(startKey); iter.Valid() && !stop; iter.Next() {
		sortID, key, err := parseIndexKey(prefix, iter.Item().Key())
		if err != nil {
			return err
		}
		if err := fn(key, sortID, &stop); err != nil {
			return err
		}
	}
	return nil
}

// WriteTx is a read-write legacy transaction. Reads observe the
// transaction's own pending writes.
type WriteTx struct {
	ReadTx
	rowSeq *badger.Sequence
}

func (t *WriteTx) nextRowID() (uint64, error) {
	id, err := t.rowSeq.Next()
	if err != nil {
		return 0, err
	}
	// BadgerDB sequences can return 0 on first call, so we skip it
	if id == 0 {
		return t.rowSeq.Next()
	}
	return id, nil
}

// SetObject stores data under key. A new key gets a fresh row id; an
// existing key keeps its row id so insertion order is stable across updates.
// Returns the row id.
func (t *WriteTx) SetObject(collection, key string, data []byte) (uint64, error) {
	if err := validCollection(collection); err != nil {
		return 0, err
	}
	e, exists, err := t.getEnvelope(collection, key)
	if err != nil {
		return 0, err
	}
	if !exists {
		rowID, err := t.nextRowID()
		if err != nil {
			return 0, err
		}
		e = envelope{rowID: rowID}
		if err := t.txn.Set(makeRowKey(collection, rowID), []byte(key)); err != nil {
			return 0, err
		}
	}
	e.version++
	e.data = data
	if err := t.txn.Set(makeObjectKey(collection, key), marshalEnvelope(e)); err != nil {
		return 0, err
	}
	return e.rowID, nil
}

// RemoveObject deletes key. Removing a missing key is a no-op.
func (t *WriteTx) RemoveObject(collection, key string) error {
	e, exists, err := t.getEnvelope(collection, key)
	if err != nil || !exists {
		return err
	}
	if err := t.txn.Delete(makeRowKey(collection, e.rowID)); err != nil {
		return err
	}
	return t.txn.Delete(makeObjectKey(collection, key))
}

// RemoveAllObjects deletes every object in collection.
func (t *WriteTx) RemoveAllObjects(collection string) error {
	// Collect first: a read-write badger transaction allows one iterator and
	// deletes should not race it.
	var keys []string
	if err := t.EnumerateKeys(collection, func(key string, _ *bool) error {
		keys = append(keys, key)
		return nil
	}); err != nil {
		return err
	}
	for _, key := range keys {
		if err := t.RemoveObject(collection, key); err != nil {
			return err
		}
	}
	return nil
}

// TouchObject bumps the version of key without changing its payload.
func (t *WriteTx) TouchObject(collection, key string) error {
	e, exists, err := t.getEnvelope(collection, key)
	if err != nil {
		return err
	}
	if !exists {
		return fmt.Errorf("touch %s/%s: %w", collection, key, storage.ErrNotFound)
	}
	e.version++
	return t.txn.Set(makeObjectKey(collection, key), marshalEnvelope(e))
}

// Version returns the write/touch counter of key.
func (t *ReadTx) Version(collection, key string) (uint64, error) {
	e, ok, err := t.getEnvelope(collection, key)
	if err != nil {
		return 0, err
	}
	if !ok {
		return 0, storage.ErrNotFound
	}
	return e.version, nil
}

// SetIndexEntry adds key to a secondary index group under sortID.
func (t *WriteTx) SetIndexEntry(index, group string, sortID uint64, key string) error {
	return t.txn.Set(makeIndexKey(index, group, sortID, key), nil)
}

// RemoveIndexEntry removes an entry added by SetIndexEntry.
func (t *WriteTx) RemoveIndexEntry(index, group string, sortID uint64, key string) error {
	return t.txn.Delete(makeIndexKey(index, group, sortID, key))
}
