package core

import (
	"time"

	"github.com/mus-format/mus-go/ord"
	"github.com/mus-format/mus-go/varint"
)

// Codec is the MUS serializer shape shared by every persisted record type.
type Codec[T any] interface {
	Size(v T) int
	Marshal(v T, bs []byte) int
	Unmarshal(bs []byte) (T, int, error)
}

// Record serializers. Field order is part of the persisted format; append
// new fields at the end of a visit function only.
var (
	ThreadMUS            Codec[Thread]            = structMUS[Thread]{visit: visitThread}
	InteractionMUS       Codec[Interaction]       = structMUS[Interaction]{visit: visitInteraction}
	AttachmentMUS        Codec[Attachment]        = structMUS[Attachment]{visit: visitAttachment}
	KnownStickerPackMUS  Codec[KnownStickerPack]  = structMUS[KnownStickerPack]{visit: visitKnownStickerPack}
	JobRecordMUS         Codec[JobRecord]         = structMUS[JobRecord]{visit: visitJobRecord}
	MessageDecryptJobMUS Codec[MessageDecryptJob] = structMUS[MessageDecryptJob]{visit: visitMessageDecryptJob}
)

func visitThread(f *fieldMUS, t *Thread) {
	f.String(&t.UniqueID)
	f.Int64(&t.RowID)
	f.Int(&t.Kind)
	f.String(&t.ContactPhoneNumber)
	f.String(&t.ContactUUID)
	f.Bytes(&t.GroupID)
	f.String(&t.Name)
	f.Bool(&t.IsArchived)
	f.Bool(&t.ShouldBeVisible)
	f.Uint64(&t.LastInteractionSortID)
	f.Time(&t.CreatedAt)
}

func visitInteraction(f *fieldMUS, i *Interaction) {
	f.String(&i.UniqueID)
	f.String(&i.ThreadUniqueID)
	f.Uint64(&i.SortID)
	f.Int(&i.Kind)
	f.Uint64(&i.Timestamp)
	f.String(&i.Body)
	f.String(&i.AuthorPhoneNumber)
	f.Bool(&i.Read)
}

func visitAttachment(f *fieldMUS, a *Attachment) {
	f.String(&a.UniqueID)
	f.String(&a.ContentType)
	f.Uint32(&a.ByteCount)
	f.String(&a.SourceFilename)
	f.String(&a.AlbumMessageID)
}

func visitKnownStickerPack(f *fieldMUS, p *KnownStickerPack) {
	f.String(&p.UniqueID)
	f.Bytes(&p.PackID)
	f.Bytes(&p.PackKey)
	f.Int(&p.ReferenceCount)
}

func visitJobRecord(f *fieldMUS, j *JobRecord) {
	f.String(&j.UniqueID)
	f.Uint64(&j.SortID)
	f.Int(&j.Kind)
	f.String(&j.Label)
	f.Int(&j.Status)
	f.Uint32(&j.FailureCount)
	f.Bytes(&j.EnvelopeData)
	f.String(&j.ContactThreadID)
	f.String(&j.MessageID)
	f.Bool(&j.IsMediaMessage)
}

func visitMessageDecryptJob(f *fieldMUS, j *MessageDecryptJob) {
	f.String(&j.UniqueID)
	f.Bytes(&j.EnvelopeData)
	f.Time(&j.CreatedAt)
}

type musMode int

const (
	modeSize musMode = iota
	modeMarshal
	modeUnmarshal
)

// fieldMUS walks a struct's fields once per mode so that Size, Marshal and
// Unmarshal always agree on field order.
type fieldMUS struct {
	mode musMode
	bs   []byte
	n    int
	err  error
}

type intLike interface {
	~int | ~int32 | ~int64
}

func (f *fieldMUS) String(v *string) {
	switch f.mode {
	case modeSize:
		f.n += ord.String.Size(*v)
	case modeMarshal:
		f.n += ord.String.Marshal(*v, f.bs[f.n:])
	case modeUnmarshal:
		if f.err != nil {
			return
		}
		var n int
		*v, n, f.err = ord.String.Unmarshal(f.bs[f.n:])
		f.n += n
	}
}

func (f *fieldMUS) Bytes(v *[]byte) {
	s := string(*v)
	f.String(&s)
	if f.mode == modeUnmarshal && f.err == nil {
		if s == "" {
			*v = nil
		} else {
			*v = []byte(s)
		}
	}
}

func (f *fieldMUS) Bool(v *bool) {
	switch f.mode {
	case modeSize:
		f.n += ord.Bool.Size(*v)
	case modeMarshal:
		f.n += ord.Bool.Marshal(*v, f.bs[f.n:])
	case modeUnmarshal:
		if f.err != nil {
			return
		}
		var n int
		*v, n, f.err = ord.Bool.Unmarshal(f.bs[f.n:])
		f.n += n
	}
}

func (f *fieldMUS) Int64(v *int64) {
	switch f.mode {
	case modeSize:
		f.n += varint.Int64.Size(*v)
	case modeMarshal:
		f.n += varint.Int64.Marshal(*v, f.bs[f.n:])
	case modeUnmarshal:
		if f.err != nil {
			return
		}
		var n int
		*v, n, f.err = varint.Int64.Unmarshal(f.bs[f.n:])
		f.n += n
	}
}

func (f *fieldMUS) Uint64(v *uint64) {
	switch f.mode {
	case modeSize:
		f.n += varint.Uint64.Size(*v)
	case modeMarshal:
		f.n += varint.Uint64.Marshal(*v, f.bs[f.n:])
	case modeUnmarshal:
		if f.err != nil {
			return
		}
		var n int
		*v, n, f.err = varint.Uint64.Unmarshal(f.bs[f.n:])
		f.n += n
	}
}

func (f *fieldMUS) Uint32(v *uint32) {
	u := uint64(*v)
	f.Uint64(&u)
	if f.mode == modeUnmarshal && f.err == nil {
		*v = uint32(u)
	}
}

// Int handles the defined int types (kinds, statuses, counts).
func (f *fieldMUS) Int(v any) {
	switch p := v.(type) {
	case *int:
		intField(f, p)
	case *ThreadKind:
		intField(f, p)
	case *InteractionKind:
		intField(f, p)
	case *JobKind:
		intField(f, p)
	case *JobStatus:
		intField(f, p)
	default:
		panic("core: unsupported int field type")
	}
}

func intField[T intLike](f *fieldMUS, v *T) {
	i := int64(*v)
	f.Int64(&i)
	if f.mode == modeUnmarshal && f.err == nil {
		*v = T(i)
	}
}

// Time stores microseconds since the epoch; the zero time is stored as 0.
func (f *fieldMUS) Time(v *time.Time) {
	var micros int64
	if !v.IsZero() {
		micros = v.UnixMicro()
	}
	f.Int64(&micros)
	if f.mode == modeUnmarshal && f.err == nil {
		if micros == 0 {
			*v = time.Time{}
		} else {
			*v = time.UnixMicro(micros).UTC()
		}
	}
}

type structMUS[T any] struct {
	visit func(*fieldMUS, *T)
}

func (s structMUS[T]) Size(v T) int {
	f := fieldMUS{mode: modeSize}
	s.visit(&f, &v)
	return f.n
}

func (s structMUS[T]) Marshal(v T, bs []byte) int {
	f := fieldMUS{mode: modeMarshal, bs: bs}
	s.visit(&f, &v)
	return f.n
}

func (s structMUS[T]) Unmarshal(bs []byte) (T, int, error) {
	var v T
	f := fieldMUS{mode: modeUnmarshal, bs: bs}
	s.visit(&f, &v)
	return v, f.n, f.err
}
