package badger

import (
	"github.com/poiesic/sdstore/core"
	"github.com/poiesic/sdstore/storage"
)

// FetchObject decodes the record stored under key with codec.
// Returns storage.ErrNotFound if there is none and a *storage.DecodeError if
// the stored bytes do not decode.
func FetchObject[T any](tx *ReadTx, collection string, codec core.Codec[T], key string) (*T, error) {
	data, err := tx.Object(collection, key)
	if err != nil {
		return nil, err
	}
	record, err := storage.Unmarshal(codec, data)
	if err != nil {
		return nil, &storage.DecodeError{Collection: collection, Key: key, Err: err}
	}
	return record, nil
}

// EnumerateObjects walks collection in insertion order decoding every record.
// Records that fail to decode are logged and skipped so one corrupt row
// cannot block a full scan.
func EnumerateObjects[T any](tx *ReadTx, collection string, codec core.Codec[T], fn func(key string, record *T, stop *bool) error) error {
	return tx.EnumerateKeysAndObjects(collection, func(key string, data []byte, stop *bool) error {
		record, err := storage.Unmarshal(codec, data)
		if err != nil {
			tx.logger.Warn("skipping undecodable legacy record", "collection", collection, "key", key, "err", err)
			return nil
		}
		return fn(key, record, stop)
	})
}

// SetRecord encodes record with codec and stores it under key.
func SetRecord[T any](tx *WriteTx, collection string, codec core.Codec[T], key string, record *T) (uint64, error) {
	return tx.SetObject(collection, key, storage.Marshal(codec, record))
}
