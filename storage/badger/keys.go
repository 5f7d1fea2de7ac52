package badger

import (
	"encoding/binary"
	"fmt"
	"strings"

	"github.com/mus-format/mus-go/ord"
	"github.com/mus-format/mus-go/varint"
	"github.com/poiesic/sdstore/storage"
)

// Key prefixes for the different key spaces.
const (
	objectPrefix = "obj:"
	rowPrefix    = "row:"
	indexPrefix  = "idx:"
	rowIDSeq     = "rowseq"
	separator    = 0x00
)

// makeObjectKey generates the primary key for an object.
// Format: obj:collection\x00key
func makeObjectKey(collection, key string) []byte {
	buf := make([]byte, 0, len(objectPrefix)+len(collection)+1+len(key))
	buf = append(buf, objectPrefix...)
	buf = append(buf, collection...)
	buf = append(buf, separator)
	return append(buf, key...)
}

// makeRowPrefix generates the prefix shared by all row keys of a collection.
// Format: row:collection\x00
func makeRowPrefix(collection string) []byte {
	buf := make([]byte, 0, len(rowPrefix)+len(collection)+1)
	buf = append(buf, rowPrefix...)
	buf = append(buf, collection...)
	return append(buf, separator)
}

// makeRowKey generates the insertion-order key for an object.
// Format: row:collection\x00rowID
// rowID is big-endian so lexicographic order is insertion order.
func makeRowKey(collection string, rowID uint64) []byte {
	buf := makeRowPrefix(collection)
	return binary.BigEndian.AppendUint64(buf, rowID)
}

// makeIndexPrefix generates the prefix of one group within a secondary index.
// Format: idx:index\x00group\x00
func makeIndexPrefix(index, group string) []byte {
	buf := make([]byte, 0, len(indexPrefix)+len(index)+len(group)+2)
	buf = append(buf, indexPrefix...)
	buf = append(buf, index...)
	buf = append(buf, separator)
	buf = append(buf, group...)
	return append(buf, separator)
}

// makeIndexKey generates a secondary index entry.
// Format: idx:index\x00group\x00sortID key
func makeIndexKey(index, group string, sortID uint64, key string) []byte {
	buf := makeIndexPrefix(index, group)
	buf = binary.BigEndian.AppendUint64(buf, sortID)
	return append(buf, key...)
}

// prefixEnd returns a seek key that sorts after every key with the given
// prefix. Used to start reverse iteration.
func prefixEnd(prefix []byte) []byte {
	end := make([]byte, len(prefix), len(prefix)+9)
	copy(end, prefix)
	return append(end, 0xff, 0xff, 0xff, 0xff, 0xff, 0xff, 0xff, 0xff, 0xff)
}

// parseIndexKey splits the suffix of an index key into sort id and object key.
func parseIndexKey(prefix, key []byte) (uint64, string, error) {
	rest := key[len(prefix):]
	if len(rest) < 8 {
		return 0, "", fmt.Errorf("%w: index key too short", storage.ErrTruncatedData)
	}
	return binary.BigEndian.Uint64(rest[:8]), string(rest[8:]), nil
}

func validCollection(collection string) error {
	if collection == "" || strings.IndexByte(collection, separator) >= 0 {
		return fmt.Errorf("invalid collection name %q", collection)
	}
	return nil
}

// envelope is the stored form of an object: the opaque payload plus the
// row id that fixes its insertion order and a version bumped on every write
// or touch.
type envelope struct {
	rowID   uint64
	version uint64
	data    []byte
}

func marshalEnvelope(e envelope) []byte {
	size := varint.Uint64.Size(e.rowID) + varint.Uint64.Size(e.version) + ord.String.Size(string(e.data))
	buf := make([]byte, size)
	n := varint.Uint64.Marshal(e.rowID, buf)
	n += varint.Uint64.Marshal(e.version, buf[n:])
	ord.String.Marshal(string(e.data), buf[n:])
	return buf
}

func unmarshalEnvelope(bs []byte) (envelope, error) {
	var e envelope
	rowID, n, err := varint.Uint64.Unmarshal(bs)
	if err != nil {
		return e, fmt.Errorf("%w: %w", storage.ErrSerializationFailed, err)
	}
	version, m, err := varint.Uint64.Unmarshal(bs[n:])
	if err != nil {
		return e, fmt.Errorf("%w: %w", storage.ErrSerializationFailed, err)
	}
	n += m
	data, _, err := ord.String.Unmarshal(bs[n:])
	if err != nil {
		return e, fmt.Errorf("%w: %w", storage.ErrSerializationFailed, err)
	}
	e.rowID = rowID
	e.version = version
	e.data = []byte(data)
	return e, nil
}
