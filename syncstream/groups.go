package syncstream

import (
	"io"

	"google.golang.org/protobuf/encoding/protowire"
)

// GroupMember is one member of a group. At least one field is set.
type GroupMember struct {
	UUID        string
	PhoneNumber string
}

// Group is one record of a group sync stream.
type Group struct {
	ID            []byte
	Name          string
	Members       []GroupMember
	Avatar        *Avatar
	Active        *bool
	ExpireTimer   uint32
	Color         string
	Blocked       bool
	InboxPosition *uint32
	Archived      *bool
}

// GroupsWriter writes a group sync stream.
type GroupsWriter struct {
	frames frameWriter
}

func NewGroupsWriter(w io.Writer) *GroupsWriter {
	return &GroupsWriter{frames: frameWriter{w: w}}
}

// Write appends g to the stream. Members are written twice: their phone
// numbers in member order for older readers, then one entry per member.
func (w *GroupsWriter) Write(g *Group) error {
	record, err := marshalGroup(g)
	if err != nil {
		return err
	}
	var avatar *Avatar
	if g.Avatar != nil && len(g.Avatar.Data) > 0 {
		avatar = g.Avatar
	}
	return w.frames.writeRecord(record, avatar)
}

func marshalGroup(g *Group) ([]byte, error) {
	members := make([]GroupMember, len(g.Members))
	for i, m := range g.Members {
		id, err := normalizeUUID(m.UUID)
		if err != nil {
			return nil, err
		}
		if id == "" && m.PhoneNumber == "" {
			return nil, ErrInvalidAddress
		}
		members[i] = GroupMember{UUID: id, PhoneNumber: m.PhoneNumber}
	}

	b := appendBytes(nil, 1, g.ID)
	if g.Name != "" {
		b = appendString(b, 2, g.Name)
	}
	for _, m := range members {
		if m.PhoneNumber != "" {
			b = appendString(b, 3, m.PhoneNumber)
		}
	}
	b = appendAvatar(b, 4, g.Avatar)
	if g.Active != nil {
		b = appendBool(b, 5, *g.Active)
	}
	b = appendUint(b, 6, uint64(g.ExpireTimer))
	if g.Color != "" {
		b = appendString(b, 7, g.Color)
	}
	if g.Blocked {
		b = appendBool(b, 8, true)
	}
	for _, m := range members {
		var msg []byte
		if m.UUID != "" {
			msg = appendString(msg, 1, m.UUID)
		}
		if m.PhoneNumber != "" {
			msg = appendString(msg, 2, m.PhoneNumber)
		}
		b = appendMessage(b, 9, msg)
	}
	if g.InboxPosition != nil {
		b = appendUint(b, 10, uint64(*g.InboxPosition))
	}
	if g.Archived != nil {
		b = appendBool(b, 11, *g.Archived)
	}
	return b, nil
}

// GroupsReader reads a group sync stream.
type GroupsReader struct {
	frames frameReader
}

func NewGroupsReader(r io.Reader) *GroupsReader {
	return &GroupsReader{frames: newFrameReader(r)}
}

// Next returns the next group, or io.EOF at the end of the stream.
func (r *GroupsReader) Next() (*Group, error) {
	record, err := r.frames.next()
	if err != nil {
		return nil, err
	}
	g, ref, err := unmarshalGroup(record)
	if err != nil {
		return nil, err
	}
	if g.Avatar, err = r.frames.avatar(ref); err != nil {
		return nil, err
	}
	return g, nil
}

// ReadAll drains the stream.
func (r *GroupsReader) ReadAll() ([]*Group, error) {
	var groups []*Group
	for {
		g, err := r.Next()
		if err == io.EOF {
			return groups, nil
		}
		if err != nil {
			return groups, err
		}
		groups = append(groups, g)
	}
}

func unmarshalGroup(data []byte) (*Group, *avatarRef, error) {
	g := &Group{}
	var ref *avatarRef
	var phoneOnly []string
	err := eachField(data, func(num protowire.Number, typ protowire.Type, v field) error {
		if typ == protowire.BytesType {
			switch num {
			case 1:
				g.ID = v.bytes
			case 2:
				g.Name = string(v.bytes)
			case 3:
				phoneOnly = append(phoneOnly, string(v.bytes))
			case 4:
				var err error
				ref, err = parseAvatar(v.bytes)
				return err
			case 7:
				g.Color = string(v.bytes)
			case 9:
				m, err := unmarshalMember(v.bytes)
				if err != nil {
					return err
				}
				g.Members = append(g.Members, m)
			}
			return nil
		}
		if typ == protowire.VarintType {
			switch num {
			case 5:
				active := protowire.DecodeBool(v.varint)
				g.Active = &active
			case 6:
				g.ExpireTimer = uint32(v.varint)
			case 8:
				g.Blocked = protowire.DecodeBool(v.varint)
			case 10:
				position := uint32(v.varint)
				g.InboxPosition = &position
			case 11:
				archived := protowire.DecodeBool(v.varint)
				g.Archived = &archived
			}
		}
		return nil
	})
	// Streams from older writers only carry phone numbers.
	if err == nil && len(g.Members) == 0 {
		for _, phone := range phoneOnly {
			g.Members = append(g.Members, GroupMember{PhoneNumber: phone})
		}
	}
	return g, ref, err
}

func unmarshalMember(data []byte) (GroupMember, error) {
	var m GroupMember
	err := eachField(data, func(num protowire.Number, typ protowire.Type, v field) error {
		if typ != protowire.BytesType {
			return nil
		}
		switch num {
		case 1:
			m.UUID = string(v.bytes)
		case 2:
			m.PhoneNumber = string(v.bytes)
		}
		return nil
	})
	if err == nil && m.UUID == "" && m.PhoneNumber == "" {
		err = ErrInvalidAddress
	}
	return m, err
}
