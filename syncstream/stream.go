package syncstream

import (
	"bufio"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/google/uuid"
	"github.com/poiesic/sdstore/storage"
	"google.golang.org/protobuf/encoding/protowire"
)

const (
	// MaxRecordSize bounds a single details record.
	MaxRecordSize = 1 << 20
	// MaxAvatarSize bounds the avatar blob following a record.
	MaxAvatarSize = 64 << 20
)

var (
	// ErrRecordTooLarge is returned for a record or avatar over its bound.
	ErrRecordTooLarge = errors.New("syncstream: record too large")
	// ErrInvalidAddress is returned for a contact or member with neither a
	// phone number nor a uuid.
	ErrInvalidAddress = errors.New("syncstream: address has no phone number or uuid")
)

// Avatar is an image attached to a contact or group.
type Avatar struct {
	ContentType string
	Data        []byte
}

// frameWriter writes length-prefixed records.
type frameWriter struct {
	w   io.Writer
	buf []byte
}

func (f *frameWriter) writeRecord(record []byte, avatar *Avatar) error {
	f.buf = binary.AppendUvarint(f.buf[:0], uint64(len(record)))
	f.buf = append(f.buf, record...)
	if avatar != nil {
		f.buf = append(f.buf, avatar.Data...)
	}
	_, err := f.w.Write(f.buf)
	return err
}

// frameReader reads length-prefixed records.
type frameReader struct {
	r *bufio.Reader
}

func newFrameReader(r io.Reader) frameReader {
	if br, ok := r.(*bufio.Reader); ok {
		return frameReader{r: br}
	}
	return frameReader{r: bufio.NewReader(r)}
}

// next returns io.EOF at a clean end of stream.
func (f frameReader) next() ([]byte, error) {
	size, err := binary.ReadUvarint(f.r)
	if errors.Is(err, io.EOF) {
		return nil, io.EOF
	}
	if err != nil {
		return nil, truncated(err)
	}
	if size > MaxRecordSize {
		return nil, fmt.Errorf("%w: %d bytes", ErrRecordTooLarge, size)
	}
	return f.read(int(size))
}

func (f frameReader) read(n int) ([]byte, error) {
	data := make([]byte, n)
	if _, err := io.ReadFull(f.r, data); err != nil {
		return nil, truncated(err)
	}
	return data, nil
}

// avatar reads the blob declared by a record. An empty blob is no avatar.
func (f frameReader) avatar(declared *avatarRef) (*Avatar, error) {
	if declared == nil {
		return nil, nil
	}
	if declared.length > MaxAvatarSize {
		return nil, fmt.Errorf("%w: avatar of %d bytes", ErrRecordTooLarge, declared.length)
	}
	data, err := f.read(int(declared.length))
	if err != nil {
		return nil, err
	}
	if len(data) == 0 {
		return nil, nil
	}
	return &Avatar{ContentType: declared.contentType, Data: data}, nil
}

func truncated(err error) error {
	if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
		return fmt.Errorf("syncstream: %w", storage.ErrTruncatedData)
	}
	return err
}

// avatarRef is the avatar header inside a record.
type avatarRef struct {
	contentType string
	length      uint32
}

func appendAvatar(b []byte, num protowire.Number, a *Avatar) []byte {
	if a == nil || len(a.Data) == 0 {
		return b
	}
	var msg []byte
	if a.ContentType != "" {
		msg = appendString(msg, 1, a.ContentType)
	}
	msg = appendUint(msg, 2, uint64(len(a.Data)))
	return appendMessage(b, num, msg)
}

func parseAvatar(data []byte) (*avatarRef, error) {
	ref := &avatarRef{}
	err := eachField(data, func(num protowire.Number, typ protowire.Type, v field) error {
		switch {
		case num == 1 && typ == protowire.BytesType:
			ref.contentType = string(v.bytes)
		case num == 2 && typ == protowire.VarintType:
			ref.length = uint32(v.varint)
		}
		return nil
	})
	return ref, err
}

// normalizeUUID returns the canonical uppercase form of s.
func normalizeUUID(s string) (string, error) {
	if s == "" {
		return "", nil
	}
	id, err := uuid.Parse(s)
	if err != nil {
		return "", fmt.Errorf("syncstream: invalid uuid %q: %w", s, err)
	}
	return strings.ToUpper(id.String()), nil
}

func appendString(b []byte, num protowire.Number, s string) []byte {
	b = protowire.AppendTag(b, num, protowire.BytesType)
	return protowire.AppendString(b, s)
}

func appendBytes(b []byte, num protowire.Number, v []byte) []byte {
	b = protowire.AppendTag(b, num, protowire.BytesType)
	return protowire.AppendBytes(b, v)
}

func appendMessage(b []byte, num protowire.Number, msg []byte) []byte {
	return appendBytes(b, num, msg)
}

func appendUint(b []byte, num protowire.Number, v uint64) []byte {
	b = protowire.AppendTag(b, num, protowire.VarintType)
	return protowire.AppendVarint(b, v)
}

func appendBool(b []byte, num protowire.Number, v bool) []byte {
	return appendUint(b, num, protowire.EncodeBool(v))
}

// field holds one decoded value; which member is set depends on the wire type.
type field struct {
	varint uint64
	bytes  []byte
}

// eachField walks the top-level fields of a message. Fixed-width and group
// fields are skipped.
func eachField(data []byte, fn func(num protowire.Number, typ protowire.Type, v field) error) error {
	for len(data) > 0 {
		num, typ, n := protowire.ConsumeTag(data)
		if n < 0 {
			return wireError(protowire.ParseError(n))
		}
		data = data[n:]

		var v field
		switch typ {
		case protowire.VarintType:
			v.varint, n = protowire.ConsumeVarint(data)
		case protowire.BytesType:
			v.bytes, n = protowire.ConsumeBytes(data)
		default:
			n = protowire.ConsumeFieldValue(num, typ, data)
			if n < 0 {
				return wireError(protowire.ParseError(n))
			}
			data = data[n:]
			continue
		}
		if n < 0 {
			return wireError(protowire.ParseError(n))
		}
		data = data[n:]
		if err := fn(num, typ, v); err != nil {
			return err
		}
	}
	return nil
}

func wireError(err error) error {
	return fmt.Errorf("%w: %w", storage.ErrSerializationFailed, err)
}
