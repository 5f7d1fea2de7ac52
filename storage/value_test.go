package storage

import (
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValueRoundTrip(t *testing.T) {
	now := time.Now().UTC().Truncate(time.Microsecond)

	tests := []struct {
		name  string
		value Value
	}{
		{"string", StringValue("hello")},
		{"empty string", StringValue("")},
		{"bool true", BoolValue(true)},
		{"bool false", BoolValue(false)},
		{"negative int", IntValue(-42)},
		{"max int", IntValue(math.MaxInt64)},
		{"max uint", UintValue(math.MaxUint64)},
		{"double", DoubleValue(3.14159)},
		{"date", DateValue(now)},
		{"data", DataValue([]byte{0x00, 0xff, 0x10})},
		{"empty list", ListValue()},
		{"nested list", ListValue(StringValue("a"), ListValue(IntValue(1), BoolValue(true)))},
		{"map", MapValue(map[string]Value{
			"name":  StringValue("Alice"),
			"count": UintValue(3),
			"tags":  ListValue(StringValue("x")),
		})},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			data, err := EncodeValue(tt.value)
			require.NoError(t, err)

			decoded, err := DecodeValue(data)
			require.NoError(t, err)
			assert.True(t, tt.value.Equal(decoded), "decoded %+v, want %+v", decoded, tt.value)
			assert.Equal(t, tt.value.Kind(), decoded.Kind())
		})
	}
}

func TestValueAccessors(t *testing.T) {
	now := time.Now().UTC().Truncate(time.Microsecond)

	s, ok := StringValue("x").AsString()
	assert.True(t, ok)
	assert.Equal(t, "x", s)

	_, ok = StringValue("x").AsInt()
	assert.False(t, ok, "string value should not read as int")

	d, ok := DateValue(now).AsDate()
	assert.True(t, ok)
	assert.True(t, now.Equal(d))

	f, ok := DoubleValue(2.5).AsDouble()
	assert.True(t, ok)
	assert.Equal(t, 2.5, f)

	b, ok := DataValue([]byte("bytes")).AsData()
	assert.True(t, ok)
	assert.Equal(t, []byte("bytes"), b)
}

func TestEncodeValue_Deterministic(t *testing.T) {
	m := map[string]Value{"b": IntValue(2), "a": IntValue(1), "c": IntValue(3)}

	first, err := EncodeValue(MapValue(m))
	require.NoError(t, err)
	for range 10 {
		again, err := EncodeValue(MapValue(m))
		require.NoError(t, err)
		assert.Equal(t, first, again)
	}
}

func TestEncodeValue_Invalid(t *testing.T) {
	_, err := EncodeValue(Value{})
	assert.ErrorIs(t, err, ErrSerializationFailed)
}

func TestDecodeValue_Invalid(t *testing.T) {
	valid, err := EncodeValue(StringValue("hello"))
	require.NoError(t, err)

	tests := []struct {
		name string
		data []byte
	}{
		{"empty", nil},
		{"wrong version", append([]byte{9}, valid[1:]...)},
		{"truncated", valid[:len(valid)-2]},
		{"trailing bytes", append(append([]byte{}, valid...), 0x01)},
		{"unknown kind", []byte{valueFormatVersion, 0x7f}},
		{"oversized list", []byte{valueFormatVersion, byte(KindList), 0x7f}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := DecodeValue(tt.data)
			assert.ErrorIs(t, err, ErrSerializationFailed)
		})
	}
}

func TestDecodeErrorUnwrap(t *testing.T) {
	inner := ErrTruncatedData
	err := &DecodeError{Collection: "prefs", Key: "k", Err: inner}

	assert.ErrorIs(t, err, ErrSerializationFailed)
	assert.ErrorIs(t, err, ErrTruncatedData)
	assert.Contains(t, err.Error(), "prefs/k")
}

func TestKeyUnavailableError(t *testing.T) {
	err := &KeyUnavailableError{Deferrable: true, Err: ErrCredentialNotFound}
	assert.True(t, IsDeferrable(err))
	assert.ErrorIs(t, err, ErrKeyUnavailable)
	assert.ErrorIs(t, err, ErrCredentialNotFound)

	assert.False(t, IsDeferrable(&KeyUnavailableError{Err: ErrCredentialNotFound}))
}

func TestMisrouteError(t *testing.T) {
	err := &MisrouteError{Op: "write", Backend: BackendLegacy, State: "RelationalOnly"}
	assert.ErrorIs(t, err, ErrBackendMisroute)
	assert.Equal(t, "write against legacy backend not allowed in state RelationalOnly", err.Error())
}
