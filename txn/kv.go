package txn

// Raw key/value access. The legacy store keeps each collection as a native
// collection; the relational store keeps every collection in one table.

// GetValue returns the bytes stored under (key, collection).
// Returns storage.ErrNotFound if there are none.
func GetValue(tx ReadTx, collection, key string) ([]byte, error) {
	r := readerOf(tx)
	switch {
	case r.legacy != nil:
		return r.legacy.Object(collection, key)
	default:
		return r.relational.KeyValue(key, collection)
	}
}

// HasValue reports whether (key, collection) exists.
func HasValue(tx ReadTx, collection, key string) (bool, error) {
	r := readerOf(tx)
	switch {
	case r.legacy != nil:
		return r.legacy.HasObject(collection, key)
	default:
		return r.relational.HasKeyValue(key, collection)
	}
}

// CountValues returns the number of keys in collection.
func CountValues(tx ReadTx, collection string) (int, error) {
	r := readerOf(tx)
	switch {
	case r.legacy != nil:
		return r.legacy.NumberOfKeys(collection)
	default:
		return r.relational.CountKeyValues(collection)
	}
}

// EnumerateValues walks collection. With keysOnly, value is nil.
func EnumerateValues(tx ReadTx, collection string, keysOnly bool, fn func(key string, value []byte, stop *bool) error) error {
	r := readerOf(tx)
	switch {
	case r.legacy != nil:
		if keysOnly {
			return r.legacy.EnumerateKeys(collection, func(key string, stop *bool) error {
				return fn(key, nil, stop)
			})
		}
		return r.legacy.EnumerateKeysAndObjects(collection, fn)
	default:
		return r.relational.EnumerateKeyValues(collection, keysOnly, fn)
	}
}

// SetValue upserts (key, collection). A nil value removes the entry.
func SetValue(tx WriteTx, collection, key string, value []byte) error {
	if value == nil {
		return RemoveValue(tx, collection, key)
	}
	w := writerOf(tx)
	switch {
	case w.legacy != nil:
		_, err := w.legacy.SetObject(collection, key, value)
		return err
	default:
		return w.relational.SetKeyValue(key, collection, value)
	}
}

// RemoveValue deletes (key, collection).
func RemoveValue(tx WriteTx, collection, key string) error {
	w := writerOf(tx)
	switch {
	case w.legacy != nil:
		return w.legacy.RemoveObject(collection, key)
	default:
		return w.relational.RemoveKeyValue(key, collection)
	}
}

// RemoveAllValues deletes every entry in collection.
func RemoveAllValues(tx WriteTx, collection string) error {
	w := writerOf(tx)
	switch {
	case w.legacy != nil:
		return w.legacy.RemoveAllObjects(collection)
	default:
		return w.relational.RemoveAllKeyValues(collection)
	}
}
