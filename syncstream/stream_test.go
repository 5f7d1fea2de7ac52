package syncstream

import (
	"bytes"
	"encoding/base64"
	"io"
	"testing"

	"github.com/poiesic/sdstore/storage"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const contactSyncFixture = "IQoMKzEzMjMxMTExMTExEgdBbGljZS0xIgRibHVlQABYADkSB0FsaWNlLTIiBGJsdWVAAEokMzFDRTE0MTItOUEyOC00RTZGLUI0RUUtMjIyMjIyMjIyMjIyWABHCgwrMTMyMTMzMzMzMzMSB0FsaWNlLTMiBGJsdWVAAEokMUQ0QUIwNDUtODhGQi00QzRFLTlGNkEtMzMzMzMzMzMzMzMzWAA="

const groupSyncFixture = "pwEKEHNddRc9sZVW92G7XH8DdEgaDCsxMzIxMzIxNDMyMRoMKzEzMjEzMjE0MzIzMAA6BWJyb3duSg4SDCsxMzIxMzIxNDMyMUo0CiQxRDRBQjA0NS04OEZCLTRDNEUtOUY2QS1GOTIxMTI0QkQ1MjkSDCsxMzIxMzIxNDMyM0omCiQzMUNFMTQxMi05QTI4LTRFNkYtQjRFRS1BMjVDMzE3OUQwODVYAJABChBzbbYXPbGVVvdhu1x/A3RIEglCb29rIENsdWIaDCsxMzIxMzIxNDMyMRoMKzE1NTUzMjE0MzIzMAA6CWJsdWVfZ3JleUoOEgwrMTMyMTMyMTQzMjFKNAokNTU1NTU1NTUtODhGQi00QzRFLTlGNkEtRjkyMTEyNEJENTI5EgwrMTU1NTMyMTQzMjNQAVgBiwEKEHN99xc9sZVW92G7XH8DdEgSCUNvb2sgQmx1YhoMKzEzMjEzMjEzMzMzGgwrMTU1NTMyMTIyMjIwADoEYmx1ZUoOEgwrMTMyMTMyMTMzMzNKNAokNTU1NTU1NTUtODhGQi00QzRFLTlGNkEtMjIyMjIyMjIyMjIyEgwrMTU1NTMyMTIyMjJQAFgB"

func ptr[T any](v T) *T { return &v }

func mustDecode(t *testing.T, s string) []byte {
	t.Helper()
	data, err := base64.StdEncoding.DecodeString(s)
	require.NoError(t, err)
	return data
}

func fixtureContacts() []*Contact {
	return []*Contact{
		{PhoneNumber: "+13231111111", Name: "Alice-1", Color: "blue", Archived: ptr(false)},
		{UUID: "31ce1412-9a28-4e6f-b4ee-222222222222", Name: "Alice-2", Color: "blue", Archived: ptr(false)},
		{UUID: "1d4ab045-88fb-4c4e-9f6a-333333333333", PhoneNumber: "+13213333333", Name: "Alice-3", Color: "blue", Archived: ptr(false)},
	}
}

func fixtureGroups(t *testing.T) []*Group {
	return []*Group{
		{
			ID: mustDecode(t, "c111Fz2xlVb3YbtcfwN0SA=="),
			Members: []GroupMember{
				{PhoneNumber: "+13213214321"},
				{UUID: "1d4ab045-88fb-4c4e-9f6a-f921124bd529", PhoneNumber: "+13213214323"},
				{UUID: "31ce1412-9a28-4e6f-b4ee-a25c3179d085"},
			},
			Color:    "brown",
			Archived: ptr(false),
		},
		{
			ID:   mustDecode(t, "c222Fz2xlVb3YbtcfwN0SA=="),
			Name: "Book Club",
			Members: []GroupMember{
				{PhoneNumber: "+13213214321"},
				{UUID: "55555555-88fb-4c4e-9f6a-f921124bd529", PhoneNumber: "+15553214323"},
			},
			Color:         "blue_grey",
			InboxPosition: ptr(uint32(1)),
			Archived:      ptr(true),
		},
		{
			ID:   mustDecode(t, "c333Fz2xlVb3YbtcfwN0SA=="),
			Name: "Cook Blub",
			Members: []GroupMember{
				{PhoneNumber: "+13213213333"},
				{UUID: "55555555-88FB-4C4E-9F6A-222222222222", PhoneNumber: "+15553212222"},
			},
			Color:         "blue",
			InboxPosition: ptr(uint32(0)),
			Archived:      ptr(true),
		},
	}
}

func TestContactsWriter_MatchesFixture(t *testing.T) {
	var buf bytes.Buffer
	w := NewContactsWriter(&buf)
	for _, c := range fixtureContacts() {
		require.NoError(t, w.Write(c))
	}
	assert.Equal(t, contactSyncFixture, base64.StdEncoding.EncodeToString(buf.Bytes()))
}

func TestContactsReader_Fixture(t *testing.T) {
	contacts, err := NewContactsReader(bytes.NewReader(mustDecode(t, contactSyncFixture))).ReadAll()
	require.NoError(t, err)
	require.Len(t, contacts, 3)

	tests := []struct {
		phone, uuid, name string
	}{
		{"+13231111111", "", "Alice-1"},
		{"", "31CE1412-9A28-4E6F-B4EE-222222222222", "Alice-2"},
		{"+13213333333", "1D4AB045-88FB-4C4E-9F6A-333333333333", "Alice-3"},
	}
	for i, tt := range tests {
		c := contacts[i]
		assert.Equal(t, tt.phone, c.PhoneNumber)
		assert.Equal(t, tt.uuid, c.UUID)
		assert.Equal(t, tt.name, c.Name)
		assert.Equal(t, "blue", c.Color)
		assert.Nil(t, c.Verified)
		assert.Nil(t, c.ProfileKey)
		assert.False(t, c.Blocked)
		assert.Zero(t, c.ExpireTimer)
		assert.Nil(t, c.Avatar)
		require.NotNil(t, c.Archived)
		assert.False(t, *c.Archived)
		assert.Nil(t, c.InboxPosition)
	}
}

func TestGroupsWriter_MatchesFixture(t *testing.T) {
	var buf bytes.Buffer
	w := NewGroupsWriter(&buf)
	for _, g := range fixtureGroups(t) {
		require.NoError(t, w.Write(g))
	}
	assert.Equal(t, groupSyncFixture, base64.StdEncoding.EncodeToString(buf.Bytes()))
}

func TestGroupsReader_Fixture(t *testing.T) {
	groups, err := NewGroupsReader(bytes.NewReader(mustDecode(t, groupSyncFixture))).ReadAll()
	require.NoError(t, err)
	require.Len(t, groups, 3)

	g := groups[0]
	assert.Equal(t, mustDecode(t, "c111Fz2xlVb3YbtcfwN0SA=="), g.ID)
	assert.Empty(t, g.Name)
	assert.Equal(t, []GroupMember{
		{PhoneNumber: "+13213214321"},
		{UUID: "1D4AB045-88FB-4C4E-9F6A-F921124BD529", PhoneNumber: "+13213214323"},
		{UUID: "31CE1412-9A28-4E6F-B4EE-A25C3179D085"},
	}, g.Members)
	assert.Equal(t, "brown", g.Color)
	assert.False(t, g.Blocked)
	assert.Nil(t, g.Avatar)
	assert.Nil(t, g.InboxPosition)
	assert.False(t, *g.Archived)

	g = groups[1]
	assert.Equal(t, "Book Club", g.Name)
	assert.Equal(t, "blue_grey", g.Color)
	assert.Equal(t, uint32(1), *g.InboxPosition)
	assert.True(t, *g.Archived)

	g = groups[2]
	assert.Equal(t, "Cook Blub", g.Name)
	assert.Len(t, g.Members, 2)
	assert.Equal(t, uint32(0), *g.InboxPosition)
	assert.True(t, *g.Archived)
}

func TestContacts_RoundTripWithAvatar(t *testing.T) {
	in := &Contact{
		PhoneNumber: "+15550001111",
		Name:        "Bob",
		Avatar:      &Avatar{ContentType: "image/jpeg", Data: []byte{1, 2, 3, 4}},
		Verified: &Verified{
			Destination: "+15550001111",
			IdentityKey: []byte{9, 9},
			State:       VerifiedVerified,
		},
		ProfileKey:    []byte("profile-key"),
		Blocked:       true,
		ExpireTimer:   3600,
		InboxPosition: ptr(uint32(7)),
	}
	var buf bytes.Buffer
	w := NewContactsWriter(&buf)
	require.NoError(t, w.Write(in))
	require.NoError(t, w.Write(&Contact{PhoneNumber: "+15550002222"}))

	r := NewContactsReader(&buf)
	out, err := r.Next()
	require.NoError(t, err)
	assert.Equal(t, in, out)

	second, err := r.Next()
	require.NoError(t, err)
	assert.Equal(t, "+15550002222", second.PhoneNumber)
	assert.Nil(t, second.Avatar)

	_, err = r.Next()
	assert.ErrorIs(t, err, io.EOF)
}

func TestGroups_RoundTripWithAvatar(t *testing.T) {
	in := &Group{
		ID:          []byte{0xaa, 0xbb},
		Name:        "Climbers",
		Members:     []GroupMember{{PhoneNumber: "+15550003333"}},
		Avatar:      &Avatar{ContentType: "image/png", Data: []byte("png")},
		Active:      ptr(true),
		ExpireTimer: 60,
		Blocked:     true,
	}
	var buf bytes.Buffer
	require.NoError(t, NewGroupsWriter(&buf).Write(in))

	out, err := NewGroupsReader(&buf).Next()
	require.NoError(t, err)
	assert.Equal(t, in, out)
}

func TestWriters_RejectInvalidAddresses(t *testing.T) {
	var buf bytes.Buffer
	assert.ErrorIs(t, NewContactsWriter(&buf).Write(&Contact{Name: "nobody"}), ErrInvalidAddress)
	assert.Error(t, NewContactsWriter(&buf).Write(&Contact{UUID: "not-a-uuid"}))
	assert.ErrorIs(t, NewGroupsWriter(&buf).Write(&Group{ID: []byte{1}, Members: []GroupMember{{}}}), ErrInvalidAddress)
	assert.Zero(t, buf.Len())
}

func TestReaders_Truncated(t *testing.T) {
	data := mustDecode(t, contactSyncFixture)

	r := NewContactsReader(bytes.NewReader(data[:len(data)-5]))
	_, err := r.Next()
	require.NoError(t, err)
	_, err = r.Next()
	require.NoError(t, err)
	_, err = r.Next()
	assert.ErrorIs(t, err, storage.ErrTruncatedData)

	// An avatar declared but cut off.
	var buf bytes.Buffer
	require.NoError(t, NewContactsWriter(&buf).Write(&Contact{PhoneNumber: "+1", Avatar: &Avatar{Data: []byte("0123456789")}}))
	cut := buf.Bytes()[:buf.Len()-3]
	_, err = NewContactsReader(bytes.NewReader(cut)).Next()
	assert.ErrorIs(t, err, storage.ErrTruncatedData)
}

func TestReaders_Corrupt(t *testing.T) {
	// Length 2 followed by a tag with a truncated varint value.
	_, err := NewContactsReader(bytes.NewReader([]byte{0x02, 0x40, 0xff})).Next()
	assert.ErrorIs(t, err, storage.ErrSerializationFailed)

	_, err = NewGroupsReader(bytes.NewReader([]byte{0xff, 0xff, 0xff, 0xff, 0x0f})).Next()
	assert.ErrorIs(t, err, ErrRecordTooLarge)
}

func TestGroupsReader_PhoneOnlyMembers(t *testing.T) {
	record := appendBytes(nil, 1, []byte{1})
	record = appendString(record, 3, "+15551")
	record = appendString(record, 3, "+15552")
	var buf bytes.Buffer
	require.NoError(t, (&frameWriter{w: &buf}).writeRecord(record, nil))

	g, err := NewGroupsReader(&buf).Next()
	require.NoError(t, err)
	assert.Equal(t, []GroupMember{{PhoneNumber: "+15551"}, {PhoneNumber: "+15552"}}, g.Members)
}
