package storage

import (
	"testing"
	"time"

	"github.com/poiesic/sdstore/core"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMarshalUnmarshalThread(t *testing.T) {
	thread := &core.Thread{
		UniqueID:           "T1",
		Kind:               core.ThreadKindContact,
		ContactPhoneNumber: "+13231111111",
		ShouldBeVisible:    true,
		CreatedAt:          time.Now().UTC().Truncate(time.Microsecond),
	}

	data := Marshal(core.ThreadMUS, thread)
	require.NotEmpty(t, data)

	decoded, err := Unmarshal(core.ThreadMUS, data)
	require.NoError(t, err)
	assert.Equal(t, thread, decoded)
}

func TestUnmarshal_Invalid(t *testing.T) {
	tests := []struct {
		name string
		data []byte
	}{
		{"empty data", []byte{}},
		{"truncated", Marshal(core.AttachmentMUS, &core.Attachment{UniqueID: "A1", ContentType: "image/png"})[:4]},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Unmarshal(core.AttachmentMUS, tt.data)
			require.Error(t, err)
			assert.ErrorIs(t, err, ErrSerializationFailed)
		})
	}
}

func TestUnmarshal_TrailingBytes(t *testing.T) {
	data := Marshal(core.JobRecordMUS, &core.JobRecord{UniqueID: "J1", Label: core.MessageSenderJobLabel})
	data = append(data, 0x00)

	_, err := Unmarshal(core.JobRecordMUS, data)
	assert.ErrorIs(t, err, ErrSerializationFailed)
}
