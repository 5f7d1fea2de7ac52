package syncstream

import (
	"io"

	"google.golang.org/protobuf/encoding/protowire"
)

// VerifiedState is the identity verification state of a contact.
type VerifiedState uint32

const (
	VerifiedDefault VerifiedState = iota
	VerifiedVerified
	VerifiedUnverified
)

// Verified carries a contact's identity verification.
type Verified struct {
	Destination     string
	IdentityKey     []byte
	State           VerifiedState
	NullMessage     []byte
	DestinationUUID string
}

// Contact is one record of a contact sync stream.
type Contact struct {
	PhoneNumber   string
	UUID          string
	Name          string
	Color         string
	Verified      *Verified
	ProfileKey    []byte
	Blocked       bool
	ExpireTimer   uint32
	Avatar        *Avatar
	InboxPosition *uint32
	Archived      *bool
}

// ContactsWriter writes a contact sync stream.
type ContactsWriter struct {
	frames frameWriter
}

func NewContactsWriter(w io.Writer) *ContactsWriter {
	return &ContactsWriter{frames: frameWriter{w: w}}
}

// Write appends c to the stream. The uuid is written in canonical
// uppercase form.
func (w *ContactsWriter) Write(c *Contact) error {
	record, err := marshalContact(c)
	if err != nil {
		return err
	}
	var avatar *Avatar
	if c.Avatar != nil && len(c.Avatar.Data) > 0 {
		avatar = c.Avatar
	}
	return w.frames.writeRecord(record, avatar)
}

func marshalContact(c *Contact) ([]byte, error) {
	id, err := normalizeUUID(c.UUID)
	if err != nil {
		return nil, err
	}
	if c.PhoneNumber == "" && id == "" {
		return nil, ErrInvalidAddress
	}

	var b []byte
	if c.PhoneNumber != "" {
		b = appendString(b, 1, c.PhoneNumber)
	}
	if c.Name != "" {
		b = appendString(b, 2, c.Name)
	}
	b = appendAvatar(b, 3, c.Avatar)
	if c.Color != "" {
		b = appendString(b, 4, c.Color)
	}
	if c.Verified != nil {
		b = appendMessage(b, 5, marshalVerified(c.Verified))
	}
	if c.ProfileKey != nil {
		b = appendBytes(b, 6, c.ProfileKey)
	}
	if c.Blocked {
		b = appendBool(b, 7, true)
	}
	b = appendUint(b, 8, uint64(c.ExpireTimer))
	if id != "" {
		b = appendString(b, 9, id)
	}
	if c.InboxPosition != nil {
		b = appendUint(b, 10, uint64(*c.InboxPosition))
	}
	if c.Archived != nil {
		b = appendBool(b, 11, *c.Archived)
	}
	return b, nil
}

func marshalVerified(v *Verified) []byte {
	var b []byte
	if v.Destination != "" {
		b = appendString(b, 1, v.Destination)
	}
	if v.IdentityKey != nil {
		b = appendBytes(b, 2, v.IdentityKey)
	}
	b = appendUint(b, 3, uint64(v.State))
	if v.NullMessage != nil {
		b = appendBytes(b, 4, v.NullMessage)
	}
	if v.DestinationUUID != "" {
		b = appendString(b, 5, v.DestinationUUID)
	}
	return b
}

// ContactsReader reads a contact sync stream.
type ContactsReader struct {
	frames frameReader
}

func NewContactsReader(r io.Reader) *ContactsReader {
	return &ContactsReader{frames: newFrameReader(r)}
}

// Next returns the next contact, or io.EOF at the end of the stream.
func (r *ContactsReader) Next() (*Contact, error) {
	record, err := r.frames.next()
	if err != nil {
		return nil, err
	}
	c, ref, err := unmarshalContact(record)
	if err != nil {
		return nil, err
	}
	if c.Avatar, err = r.frames.avatar(ref); err != nil {
		return nil, err
	}
	if c.PhoneNumber == "" && c.UUID == "" {
		return nil, ErrInvalidAddress
	}
	return c, nil
}

// ReadAll drains the stream.
func (r *ContactsReader) ReadAll() ([]*Contact, error) {
	var contacts []*Contact
	for {
		c, err := r.Next()
		if err == io.EOF {
			return contacts, nil
		}
		if err != nil {
			return contacts, err
		}
		contacts = append(contacts, c)
	}
}

func unmarshalContact(data []byte) (*Contact, *avatarRef, error) {
	c := &Contact{}
	var ref *avatarRef
	err := eachField(data, func(num protowire.Number, typ protowire.Type, v field) error {
		if typ == protowire.BytesType {
			switch num {
			case 1:
				c.PhoneNumber = string(v.bytes)
			case 2:
				c.Name = string(v.bytes)
			case 3:
				var err error
				ref, err = parseAvatar(v.bytes)
				return err
			case 4:
				c.Color = string(v.bytes)
			case 5:
				var err error
				c.Verified, err = unmarshalVerified(v.bytes)
				return err
			case 6:
				c.ProfileKey = v.bytes
			case 9:
				c.UUID = string(v.bytes)
			}
			return nil
		}
		if typ == protowire.VarintType {
			switch num {
			case 7:
				c.Blocked = protowire.DecodeBool(v.varint)
			case 8:
				c.ExpireTimer = uint32(v.varint)
			case 10:
				position := uint32(v.varint)
				c.InboxPosition = &position
			case 11:
				archived := protowire.DecodeBool(v.varint)
				c.Archived = &archived
			}
		}
		return nil
	})
	return c, ref, err
}

func unmarshalVerified(data []byte) (*Verified, error) {
	v := &Verified{}
	err := eachField(data, func(num protowire.Number, typ protowire.Type, f field) error {
		switch {
		case num == 1 && typ == protowire.BytesType:
			v.Destination = string(f.bytes)
		case num == 2 && typ == protowire.BytesType:
			v.IdentityKey = f.bytes
		case num == 3 && typ == protowire.VarintType:
			v.State = VerifiedState(f.varint)
		case num == 4 && typ == protowire.BytesType:
			v.NullMessage = f.bytes
		case num == 5 && typ == protowire.BytesType:
			v.DestinationUUID = string(f.bytes)
		}
		return nil
	})
	return v, err
}
