package keyvalue

import (
	"context"
	"math"
	"testing"
	"time"

	"github.com/poiesic/sdstore/storage"
	"github.com/poiesic/sdstore/txn"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func forEachBackend(t *testing.T, fn func(t *testing.T, b txn.Backend, s *Store)) {
	t.Helper()
	l, r, closer, err := txn.OpenTestBackends(context.Background(), t.TempDir())
	require.NoError(t, err)
	t.Cleanup(func() { assert.NoError(t, closer()) })
	for _, b := range []txn.Backend{l, r} {
		s, err := New("prefs")
		require.NoError(t, err)
		t.Run(b.Kind().String(), func(t *testing.T) {
			fn(t, b, s)
		})
	}
}

func TestNew_EmptyCollection(t *testing.T) {
	_, err := New("")
	assert.Error(t, err)
}

func TestRoundTrip(t *testing.T) {
	when := time.Date(2023, 11, 5, 8, 30, 0, 123456000, time.UTC)
	forEachBackend(t, func(t *testing.T, b txn.Backend, s *Store) {
		ctx := context.Background()
		nested := storage.MapValue(map[string]storage.Value{
			"list": storage.ListValue(storage.IntValue(-1), storage.StringValue("x")),
			"flag": storage.BoolValue(true),
		})
		require.NoError(t, b.Write(ctx, func(tx txn.WriteTx) error {
			require.NoError(t, s.SetString(tx, "string", "héllo"))
			require.NoError(t, s.SetString(tx, "empty", ""))
			require.NoError(t, s.SetBool(tx, "bool", true))
			require.NoError(t, s.SetInt(tx, "int", -42))
			require.NoError(t, s.SetInt64(tx, "int64", math.MinInt64))
			require.NoError(t, s.SetUint32(tx, "uint32", math.MaxUint32))
			require.NoError(t, s.SetUint64(tx, "uint64", math.MaxUint64))
			require.NoError(t, s.SetDouble(tx, "double", math.Pi))
			require.NoError(t, s.SetDate(tx, "date", when))
			require.NoError(t, s.SetData(tx, "data", []byte{0, 1, 0xff}))
			require.NoError(t, s.SetObject(tx, "object", nested))
			return nil
		}))

		require.NoError(t, b.Read(ctx, func(tx txn.ReadTx) error {
			str, ok, err := s.String(tx, "string")
			require.NoError(t, err)
			assert.True(t, ok)
			assert.Equal(t, "héllo", str)

			str, ok, err = s.String(tx, "empty")
			require.NoError(t, err)
			assert.True(t, ok)
			assert.Empty(t, str)

			flag, ok, err := s.Bool(tx, "bool")
			require.NoError(t, err)
			assert.True(t, ok)
			assert.True(t, flag)

			i, ok, err := s.Int(tx, "int")
			require.NoError(t, err)
			assert.True(t, ok)
			assert.Equal(t, -42, i)

			i64, ok, err := s.Int64(tx, "int64")
			require.NoError(t, err)
			assert.True(t, ok)
			assert.Equal(t, int64(math.MinInt64), i64)

			u32, ok, err := s.Uint32(tx, "uint32")
			require.NoError(t, err)
			assert.True(t, ok)
			assert.Equal(t, uint32(math.MaxUint32), u32)

			u64, ok, err := s.Uint64(tx, "uint64")
			require.NoError(t, err)
			assert.True(t, ok)
			assert.Equal(t, uint64(math.MaxUint64), u64)

			d, ok, err := s.Double(tx, "double")
			require.NoError(t, err)
			assert.True(t, ok)
			assert.Equal(t, math.Pi, d)

			date, ok, err := s.Date(tx, "date")
			require.NoError(t, err)
			assert.True(t, ok)
			assert.True(t, when.Equal(date))

			data, ok, err := s.Data(tx, "data")
			require.NoError(t, err)
			assert.True(t, ok)
			assert.Equal(t, []byte{0, 1, 0xff}, data)

			obj, ok, err := s.Object(tx, "object")
			require.NoError(t, err)
			assert.True(t, ok)
			assert.True(t, nested.Equal(obj))
			return nil
		}))
	})
}

func TestUpsertIdempotence(t *testing.T) {
	forEachBackend(t, func(t *testing.T, b txn.Backend, s *Store) {
		ctx := context.Background()
		for _, value := range []string{"one", "two", "three"} {
			require.NoError(t, b.Write(ctx, func(tx txn.WriteTx) error {
				return s.SetString(tx, "k", value)
			}))
		}
		require.NoError(t, b.Read(ctx, func(tx txn.ReadTx) error {
			count, err := s.NumberOfKeys(tx)
			require.NoError(t, err)
			assert.Equal(t, 1, count)

			value, ok, err := s.String(tx, "k")
			require.NoError(t, err)
			assert.True(t, ok)
			assert.Equal(t, "three", value)
			return nil
		}))
	})
}

func TestUndecodableIsAbsent(t *testing.T) {
	forEachBackend(t, func(t *testing.T, b txn.Backend, s *Store) {
		ctx := context.Background()
		require.NoError(t, b.Write(ctx, func(tx txn.WriteTx) error {
			require.NoError(t, txn.SetValue(tx, s.Collection(), "garbage", []byte{0x7f, 0x01}))
			return s.SetInt(tx, "number", 7)
		}))
		require.NoError(t, b.Read(ctx, func(tx txn.ReadTx) error {
			_, ok, err := s.Object(tx, "garbage")
			require.NoError(t, err)
			assert.False(t, ok)

			has, err := s.HasValue(tx, "garbage")
			require.NoError(t, err)
			assert.True(t, has)

			// Wrong kind is treated the same way.
			_, ok, err = s.String(tx, "number")
			require.NoError(t, err)
			assert.False(t, ok)

			// Compatible numeric kinds convert.
			u, ok, err := s.Uint64(tx, "number")
			require.NoError(t, err)
			assert.True(t, ok)
			assert.Equal(t, uint64(7), u)

			values, err := s.AllValues(tx)
			require.NoError(t, err)
			assert.Len(t, values, 1)

			_, ok, err = s.String(tx, "missing")
			require.NoError(t, err)
			assert.False(t, ok)

			flag, err := s.BoolOr(tx, "missing", true)
			require.NoError(t, err)
			assert.True(t, flag)
			return nil
		}))
	})
}

func TestRemoveAndEnumerate(t *testing.T) {
	forEachBackend(t, func(t *testing.T, b txn.Backend, s *Store) {
		ctx := context.Background()
		require.NoError(t, b.Write(ctx, func(tx txn.WriteTx) error {
			for _, key := range []string{"a", "b", "c", "d"} {
				if err := s.SetString(tx, key, key); err != nil {
					return err
				}
			}
			return nil
		}))

		require.NoError(t, b.Read(ctx, func(tx txn.ReadTx) error {
			keys, err := s.AllKeys(tx)
			require.NoError(t, err)
			assert.ElementsMatch(t, []string{"a", "b", "c", "d"}, keys)

			visited := 0
			require.NoError(t, s.Enumerate(tx, func(key string, v storage.Value, stop *bool) error {
				visited++
				str, _ := v.AsString()
				assert.Equal(t, key, str)
				*stop = visited == 2
				return nil
			}))
			assert.Equal(t, 2, visited)
			return nil
		}))

		require.NoError(t, b.Write(ctx, func(tx txn.WriteTx) error {
			require.NoError(t, s.RemoveValues(tx, []string{"a", "b", "missing"}))
			require.NoError(t, s.SetData(tx, "c", nil))
			return nil
		}))
		require.NoError(t, b.Read(ctx, func(tx txn.ReadTx) error {
			keys, err := s.AllKeys(tx)
			require.NoError(t, err)
			assert.Equal(t, []string{"d"}, keys)
			return nil
		}))

		require.NoError(t, b.Write(ctx, func(tx txn.WriteTx) error {
			return s.RemoveAll(tx)
		}))
		require.NoError(t, b.Read(ctx, func(tx txn.ReadTx) error {
			count, err := s.NumberOfKeys(tx)
			require.NoError(t, err)
			assert.Zero(t, count)
			return nil
		}))
	})
}
