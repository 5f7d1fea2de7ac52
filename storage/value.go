package storage

import (
	"fmt"
	"math"
	"slices"
	"time"

	"github.com/mus-format/mus-go/ord"
	"github.com/mus-format/mus-go/varint"
)

// valueFormatVersion prefixes every encoded Value.
const valueFormatVersion = 1

// ValueKind tags the variant held by a Value.
type ValueKind uint8

const (
	KindString ValueKind = iota + 1
	KindBool
	KindInt
	KindUint
	KindDouble
	KindDate
	KindData
	KindList
	KindMap
)

func (k ValueKind) String() string {
	switch k {
	case KindString:
		return "string"
	case KindBool:
		return "bool"
	case KindInt:
		return "int"
	case KindUint:
		return "uint"
	case KindDouble:
		return "double"
	case KindDate:
		return "date"
	case KindData:
		return "data"
	case KindList:
		return "list"
	case KindMap:
		return "map"
	default:
		return fmt.Sprintf("kind(%d)", uint8(k))
	}
}

// Value is a tagged union of everything the key/value store can persist.
// The zero Value is invalid and cannot be encoded.
type Value struct {
	kind ValueKind
	str  string // string, data
	num  uint64 // bool, int, uint, double bits, date micros
	list []Value
	dict map[string]Value
}

func StringValue(s string) Value  { return Value{kind: KindString, str: s} }
func IntValue(i int64) Value      { return Value{kind: KindInt, num: uint64(i)} }
func UintValue(u uint64) Value    { return Value{kind: KindUint, num: u} }
func DoubleValue(f float64) Value { return Value{kind: KindDouble, num: math.Float64bits(f)} }
func DataValue(b []byte) Value    { return Value{kind: KindData, str: string(b)} }

func BoolValue(b bool) Value {
	v := Value{kind: KindBool}
	if b {
		v.num = 1
	}
	return v
}

// DateValue stores t with microsecond precision.
func DateValue(t time.Time) Value {
	return Value{kind: KindDate, num: uint64(t.UnixMicro())}
}

func ListValue(items ...Value) Value {
	return Value{kind: KindList, list: slices.Clone(items)}
}

func MapValue(m map[string]Value) Value {
	dict := make(map[string]Value, len(m))
	for k, v := range m {
		dict[k] = v
	}
	return Value{kind: KindMap, dict: dict}
}

// Kind returns the variant tag.
func (v Value) Kind() ValueKind { return v.kind }

// IsValid reports whether v holds a variant.
func (v Value) IsValid() bool { return v.kind != 0 }

func (v Value) AsString() (string, bool) { return v.str, v.kind == KindString }
func (v Value) AsBool() (bool, bool)     { return v.num != 0, v.kind == KindBool }
func (v Value) AsInt() (int64, bool)     { return int64(v.num), v.kind == KindInt }
func (v Value) AsUint() (uint64, bool)   { return v.num, v.kind == KindUint }

func (v Value) AsDouble() (float64, bool) {
	return math.Float64frombits(v.num), v.kind == KindDouble
}

func (v Value) AsDate() (time.Time, bool) {
	if v.kind != KindDate {
		return time.Time{}, false
	}
	return time.UnixMicro(int64(v.num)).UTC(), true
}

func (v Value) AsData() ([]byte, bool) {
	if v.kind != KindData {
		return nil, false
	}
	return []byte(v.str), true
}

func (v Value) AsList() ([]Value, bool) {
	if v.kind != KindList {
		return nil, false
	}
	return slices.Clone(v.list), true
}

func (v Value) AsMap() (map[string]Value, bool) {
	if v.kind != KindMap {
		return nil, false
	}
	m := make(map[string]Value, len(v.dict))
	for k, item := range v.dict {
		m[k] = item
	}
	return m, true
}

// Equal compares two values structurally.
func (v Value) Equal(o Value) bool {
	if v.kind != o.kind || v.str != o.str || v.num != o.num {
		return false
	}
	if len(v.list) != len(o.list) || len(v.dict) != len(o.dict) {
		return false
	}
	for i := range v.list {
		if !v.list[i].Equal(o.list[i]) {
			return false
		}
	}
	for k, item := range v.dict {
		other, ok := o.dict[k]
		if !ok || !item.Equal(other) {
			return false
		}
	}
	return true
}

// EncodeValue serializes v into the versioned key/value format.
func EncodeValue(v Value) ([]byte, error) {
	if !v.IsValid() {
		return nil, fmt.Errorf("%w: invalid value", ErrSerializationFailed)
	}
	buf := make([]byte, 1+valueSize(v))
	buf[0] = valueFormatVersion
	marshalValue(v, buf[1:])
	return buf, nil
}

// DecodeValue parses bytes produced by EncodeValue.
func DecodeValue(data []byte) (Value, error) {
	if len(data) == 0 {
		return Value{}, fmt.Errorf("%w: %w", ErrSerializationFailed, ErrTruncatedData)
	}
	if data[0] != valueFormatVersion {
		return Value{}, fmt.Errorf("%w: unsupported version %d", ErrSerializationFailed, data[0])
	}
	v, n, err := unmarshalValue(data[1:], 0)
	if err != nil {
		return Value{}, fmt.Errorf("%w: %w", ErrSerializationFailed, err)
	}
	if 1+n != len(data) {
		return Value{}, fmt.Errorf("%w: %d trailing bytes", ErrSerializationFailed, len(data)-1-n)
	}
	return v, nil
}

// maxValueDepth bounds list/map nesting on decode.
const maxValueDepth = 32

func sortedKeys(m map[string]Value) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	return keys
}

func valueSize(v Value) int {
	size := varint.Uint64.Size(uint64(v.kind))
	switch v.kind {
	case KindString, KindData:
		size += ord.String.Size(v.str)
	case KindBool:
		size += ord.Bool.Size(v.num != 0)
	case KindInt:
		size += varint.Int64.Size(int64(v.num))
	case KindDate:
		size += varint.Int64.Size(int64(v.num))
	case KindUint, KindDouble:
		size += varint.Uint64.Size(v.num)
	case KindList:
		size += varint.Uint64.Size(uint64(len(v.list)))
		for _, item := range v.list {
			size += valueSize(item)
		}
	case KindMap:
		size += varint.Uint64.Size(uint64(len(v.dict)))
		for k, item := range v.dict {
			size += ord.String.Size(k) + valueSize(item)
		}
	}
	return size
}

func marshalValue(v Value, bs []byte) int {
	n := varint.Uint64.Marshal(uint64(v.kind), bs)
	switch v.kind {
	case KindString, KindData:
		n += ord.String.Marshal(v.str, bs[n:])
	case KindBool:
		n += ord.Bool.Marshal(v.num != 0, bs[n:])
	case KindInt, KindDate:
		n += varint.Int64.Marshal(int64(v.num), bs[n:])
	case KindUint, KindDouble:
		n += varint.Uint64.Marshal(v.num, bs[n:])
	case KindList:
		n += varint.Uint64.Marshal(uint64(len(v.list)), bs[n:])
		for _, item := range v.list {
			n += marshalValue(item, bs[n:])
		}
	case KindMap:
		n += varint.Uint64.Marshal(uint64(len(v.dict)), bs[n:])
		for _, k := range sortedKeys(v.dict) {
			n += ord.String.Marshal(k, bs[n:])
			n += marshalValue(v.dict[k], bs[n:])
		}
	}
	return n
}

func unmarshalValue(bs []byte, depth int) (Value, int, error) {
	if depth > maxValueDepth {
		return Value{}, 0, fmt.Errorf("nesting deeper than %d", maxValueDepth)
	}
	k, n, err := varint.Uint64.Unmarshal(bs)
	if err != nil {
		return Value{}, n, err
	}
	v := Value{kind: ValueKind(k)}
	var m int
	switch v.kind {
	case KindString, KindData:
		v.str, m, err = ord.String.Unmarshal(bs[n:])
	case KindBool:
		var b bool
		b, m, err = ord.Bool.Unmarshal(bs[n:])
		if b {
			v.num = 1
		}
	case KindInt, KindDate:
		var i int64
		i, m, err = varint.Int64.Unmarshal(bs[n:])
		v.num = uint64(i)
	case KindUint, KindDouble:
		v.num, m, err = varint.Uint64.Unmarshal(bs[n:])
	case KindList:
		var count uint64
		count, m, err = varint.Uint64.Unmarshal(bs[n:])
		n += m
		m = 0
		if err != nil {
			return Value{}, n, err
		}
		if count > uint64(len(bs)-n) {
			return Value{}, n, ErrTruncatedData
		}
		v.list = make([]Value, 0, count)
		for range count {
			item, used, itemErr := unmarshalValue(bs[n:], depth+1)
			n += used
			if itemErr != nil {
				return Value{}, n, itemErr
			}
			v.list = append(v.list, item)
		}
	case KindMap:
		var count uint64
		count, m, err = varint.Uint64.Unmarshal(bs[n:])
		n += m
		m = 0
		if err != nil {
			return Value{}, n, err
		}
		if count > uint64(len(bs)-n) {
			return Value{}, n, ErrTruncatedData
		}
		v.dict = make(map[string]Value, count)
		for range count {
			key, used, keyErr := ord.String.Unmarshal(bs[n:])
			n += used
			if keyErr != nil {
				return Value{}, n, keyErr
			}
			item, used, itemErr := unmarshalValue(bs[n:], depth+1)
			n += used
			if itemErr != nil {
				return Value{}, n, itemErr
			}
			v.dict[key] = item
		}
	default:
		return Value{}, n, fmt.Errorf("unknown value kind %d", k)
	}
	return v, n + m, err
}
