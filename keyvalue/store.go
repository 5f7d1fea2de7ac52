package keyvalue

import (
	"errors"
	"fmt"
	"log/slog"
	"math"
	"time"

	"github.com/poiesic/sdstore/storage"
	"github.com/poiesic/sdstore/txn"
)

// Store is a key/value view of one collection.
type Store struct {
	collection string
	logger     *slog.Logger
}

// Option configures a Store.
type Option func(*Store) error

// WithLogger sets a custom logger.
// Default is slog.Default().
func WithLogger(logger *slog.Logger) Option {
	return func(s *Store) error {
		if logger == nil {
			logger = slog.Default()
		}
		s.logger = logger
		return nil
	}
}

// New returns a Store for collection.
func New(collection string, opts ...Option) (*Store, error) {
	if collection == "" {
		return nil, errors.New("keyvalue: empty collection name")
	}
	s := &Store{collection: collection, logger: slog.Default()}
	for _, opt := range opts {
		if err := opt(s); err != nil {
			return nil, err
		}
	}
	return s, nil
}

// Collection returns the collection name.
func (s *Store) Collection() string { return s.collection }

// Object returns the value under key. ok is false when the key is missing or
// its bytes do not decode.
func (s *Store) Object(tx txn.ReadTx, key string) (v storage.Value, ok bool, err error) {
	data, err := txn.GetValue(tx, s.collection, key)
	if errors.Is(err, storage.ErrNotFound) {
		return storage.Value{}, false, nil
	}
	if err != nil {
		return storage.Value{}, false, err
	}
	v, err = storage.DecodeValue(data)
	if err != nil {
		s.logDecode(key, err)
		return storage.Value{}, false, nil
	}
	return v, true, nil
}

func (s *Store) logDecode(key string, err error) {
	derr := &storage.DecodeError{Collection: s.collection, Key: key, Err: err}
	s.logger.Error("treating undecodable value as absent", "collection", s.collection, "key", key, "err", derr)
}

// kindOf fetches key and hands it to as; values of the wrong kind are a
// decode error.
func kindOf[T any](s *Store, tx txn.ReadTx, key string, want string, as func(storage.Value) (T, bool)) (T, bool, error) {
	var zero T
	v, ok, err := s.Object(tx, key)
	if err != nil || !ok {
		return zero, false, err
	}
	got, ok := as(v)
	if !ok {
		s.logDecode(key, fmt.Errorf("stored %s, want %s", v.Kind(), want))
		return zero, false, nil
	}
	return got, true, nil
}

// SetObject stores v under key. An invalid (zero) Value removes the key.
func (s *Store) SetObject(tx txn.WriteTx, key string, v storage.Value) error {
	if !v.IsValid() {
		return s.RemoveValue(tx, key)
	}
	data, err := storage.EncodeValue(v)
	if err != nil {
		return err
	}
	return txn.SetValue(tx, s.collection, key, data)
}

// String returns the string under key. ok is false when the key is absent
// or holds another kind.
func (s *Store) String(tx txn.ReadTx, key string) (string, bool, error) {
	return kindOf(s, tx, key, "string", storage.Value.AsString)
}

// SetString stores value under key.
func (s *Store) SetString(tx txn.WriteTx, key, value string) error {
	return s.SetObject(tx, key, storage.StringValue(value))
}

// Bool returns the boolean under key.
func (s *Store) Bool(tx txn.ReadTx, key string) (bool, bool, error) {
	return kindOf(s, tx, key, "bool", storage.Value.AsBool)
}

// BoolOr returns the boolean under key, or def when it is absent.
func (s *Store) BoolOr(tx txn.ReadTx, key string, def bool) (bool, error) {
	v, ok, err := s.Bool(tx, key)
	if err != nil || !ok {
		return def, err
	}
	return v, nil
}

// SetBool stores value under key.
func (s *Store) SetBool(tx txn.WriteTx, key string, value bool) error {
	return s.SetObject(tx, key, storage.BoolValue(value))
}

// Int64 accepts signed values and unsigned values that fit.
func (s *Store) Int64(tx txn.ReadTx, key string) (int64, bool, error) {
	return kindOf(s, tx, key, "int", func(v storage.Value) (int64, bool) {
		if i, ok := v.AsInt(); ok {
			return i, true
		}
		if u, ok := v.AsUint(); ok && u <= math.MaxInt64 {
			return int64(u), true
		}
		return 0, false
	})
}

// SetInt64 stores value under key as a signed integer.
func (s *Store) SetInt64(tx txn.WriteTx, key string, value int64) error {
	return s.SetObject(tx, key, storage.IntValue(value))
}

// Int is Int64 narrowed to int. Values that overflow are logged and
// reported absent.
func (s *Store) Int(tx txn.ReadTx, key string) (int, bool, error) {
	v, ok, err := s.Int64(tx, key)
	if err != nil || !ok {
		return 0, false, err
	}
	if v < math.MinInt || v > math.MaxInt {
		s.logDecode(key, fmt.Errorf("%d overflows int", v))
		return 0, false, nil
	}
	return int(v), true, nil
}

// SetInt stores value under key as a signed integer.
func (s *Store) SetInt(tx txn.WriteTx, key string, value int) error {
	return s.SetInt64(tx, key, int64(value))
}

// Uint64 accepts unsigned values and non-negative signed values.
func (s *Store) Uint64(tx txn.ReadTx, key string) (uint64, bool, error) {
	return kindOf(s, tx, key, "uint", func(v storage.Value) (uint64, bool) {
		if u, ok := v.AsUint(); ok {
			return u, true
		}
		if i, ok := v.AsInt(); ok && i >= 0 {
			return uint64(i), true
		}
		return 0, false
	})
}

// SetUint64 stores value under key as an unsigned integer.
func (s *Store) SetUint64(tx txn.WriteTx, key string, value uint64) error {
	return s.SetObject(tx, key, storage.UintValue(value))
}

// Uint32 is Uint64 narrowed to uint32. Values that overflow are logged and
// reported absent.
func (s *Store) Uint32(tx txn.ReadTx, key string) (uint32, bool, error) {
	v, ok, err := s.Uint64(tx, key)
	if err != nil || !ok {
		return 0, false, err
	}
	if v > math.MaxUint32 {
		s.logDecode(key, fmt.Errorf("%d overflows uint32", v))
		return 0, false, nil
	}
	return uint32(v), true, nil
}

// SetUint32 stores value under key as an unsigned integer.
func (s *Store) SetUint32(tx txn.WriteTx, key string, value uint32) error {
	return s.SetUint64(tx, key, uint64(value))
}

// Double returns the floating point value under key.
func (s *Store) Double(tx txn.ReadTx, key string) (float64, bool, error) {
	return kindOf(s, tx, key, "double", storage.Value.AsDouble)
}

// SetDouble stores value under key.
func (s *Store) SetDouble(tx txn.WriteTx, key string, value float64) error {
	return s.SetObject(tx, key, storage.DoubleValue(value))
}

// Date returns the time under key.
func (s *Store) Date(tx txn.ReadTx, key string) (time.Time, bool, error) {
	return kindOf(s, tx, key, "date", storage.Value.AsDate)
}

// SetDate stores value under key.
func (s *Store) SetDate(tx txn.WriteTx, key string, value time.Time) error {
	return s.SetObject(tx, key, storage.DateValue(value))
}

// Data returns the bytes under key.
func (s *Store) Data(tx txn.ReadTx, key string) ([]byte, bool, error) {
	return kindOf(s, tx, key, "data", storage.Value.AsData)
}

// SetData stores value under key. A nil slice removes the key.
func (s *Store) SetData(tx txn.WriteTx, key string, value []byte) error {
	if value == nil {
		return s.RemoveValue(tx, key)
	}
	return s.SetObject(tx, key, storage.DataValue(value))
}

// HasValue reports whether key is present, decodable or not.
func (s *Store) HasValue(tx txn.ReadTx, key string) (bool, error) {
	return txn.HasValue(tx, s.collection, key)
}

// RemoveValue deletes key.
func (s *Store) RemoveValue(tx txn.WriteTx, key string) error {
	return txn.RemoveValue(tx, s.collection, key)
}

// RemoveValues deletes each of keys.
func (s *Store) RemoveValues(tx txn.WriteTx, keys []string) error {
	for _, key := range keys {
		if err := s.RemoveValue(tx, key); err != nil {
			return err
		}
	}
	return nil
}

// RemoveAll empties the collection.
func (s *Store) RemoveAll(tx txn.WriteTx) error {
	return txn.RemoveAllValues(tx, s.collection)
}

// NumberOfKeys counts the keys in the collection.
func (s *Store) NumberOfKeys(tx txn.ReadTx) (int, error) {
	return txn.CountValues(tx, s.collection)
}

// EnumerateKeys walks the keys of the collection. Setting *stop ends the walk.
func (s *Store) EnumerateKeys(tx txn.ReadTx, fn func(key string, stop *bool) error) error {
	return txn.EnumerateValues(tx, s.collection, true, func(key string, _ []byte, stop *bool) error {
		return fn(key, stop)
	})
}

// Enumerate walks key/value pairs. Undecodable values are logged and skipped.
func (s *Store) Enumerate(tx txn.ReadTx, fn func(key string, v storage.Value, stop *bool) error) error {
	return txn.EnumerateValues(tx, s.collection, false, func(key string, data []byte, stop *bool) error {
		v, err := storage.DecodeValue(data)
		if err != nil {
			s.logDecode(key, err)
			return nil
		}
		return fn(key, v, stop)
	})
}

// AllKeys returns every key in the collection.
func (s *Store) AllKeys(tx txn.ReadTx) ([]string, error) {
	var keys []string
	err := s.EnumerateKeys(tx, func(key string, _ *bool) error {
		keys = append(keys, key)
		return nil
	})
	return keys, err
}

// AllValues returns every decodable value in the collection.
func (s *Store) AllValues(tx txn.ReadTx) ([]storage.Value, error) {
	var values []storage.Value
	err := s.Enumerate(tx, func(_ string, v storage.Value, _ *bool) error {
		values = append(values, v)
		return nil
	})
	return values, err
}
