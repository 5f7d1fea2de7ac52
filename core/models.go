package core

import (
	"encoding/binary"
	"strings"
	"time"

	"github.com/go-crypt/x/blake2b"
	"github.com/google/uuid"
)

// Legacy collection names. Each record type lives in exactly one collection
// in the legacy store and one table in the relational store.
const (
	ThreadCollection            = "TSThread"
	InteractionCollection       = "TSInteraction"
	AttachmentCollection        = "TSAttachment"
	KnownStickerPackCollection  = "KnownStickerPack"
	JobRecordCollection         = "SSKJobRecord"
	MessageDecryptJobCollection = "OWSMessageDecryptJob"
)

// NewUniqueID returns a fresh record unique id. Ids are uppercase UUIDs so
// they compare equal across both backends.
func NewUniqueID() string {
	return strings.ToUpper(uuid.NewString())
}

// ContentID derives a stable 64-bit id from arbitrary bytes using BLAKE2b.
// Used for sticker pack ids and group ids that have no unique id of their own.
func ContentID(data []byte) uint64 {
	h, _ := blake2b.New(8, nil)
	h.Write(data)
	return binary.LittleEndian.Uint64(h.Sum(nil))
}

// ThreadKind distinguishes one-on-one threads from group threads.
type ThreadKind int

const (
	// ThreadKindContact is a one-on-one conversation.
	ThreadKindContact ThreadKind = iota + 1
	// ThreadKindGroup is a group conversation.
	ThreadKindGroup
)

// Thread is a conversation.
type Thread struct {
	UniqueID           string
	RowID              int64 // Relational row id; zero in the legacy store
	Kind               ThreadKind
	ContactPhoneNumber string
	ContactUUID        string
	GroupID            []byte
	Name               string
	IsArchived         bool
	ShouldBeVisible    bool
	// LastInteractionSortID is the sort id of the newest interaction in the
	// thread, in the sort id space of whichever backend holds the thread.
	LastInteractionSortID uint64
	CreatedAt             time.Time
}

// InteractionKind identifies the flavor of an interaction.
type InteractionKind int

const (
	InteractionKindIncoming InteractionKind = iota + 1
	InteractionKindOutgoing
	InteractionKindInfo
)

// Interaction is a single message or event inside a thread.
type Interaction struct {
	UniqueID       string
	ThreadUniqueID string
	// SortID is assigned by the backend at insertion time. It is never copied
	// between backends.
	SortID            uint64
	Kind              InteractionKind
	Timestamp         uint64 // milliseconds since epoch
	Body              string
	AuthorPhoneNumber string
	Read              bool
}

// Attachment metadata. The attachment bytes themselves live outside the store.
type Attachment struct {
	UniqueID       string
	ContentType    string
	ByteCount      uint32
	SourceFilename string
	AlbumMessageID string
}

// KnownStickerPack references a sticker pack seen in a message.
type KnownStickerPack struct {
	UniqueID       string
	PackID         []byte
	PackKey        []byte
	ReferenceCount int
}

// JobStatus is the lifecycle state of a queued job.
type JobStatus int

const (
	JobStatusUnknown JobStatus = iota
	JobStatusReady
	JobStatusRunning
	JobStatusPermanentlyFailed
	JobStatusObsolete
)

func (s JobStatus) String() string {
	switch s {
	case JobStatusReady:
		return "ready"
	case JobStatusRunning:
		return "running"
	case JobStatusPermanentlyFailed:
		return "permanentlyFailed"
	case JobStatusObsolete:
		return "obsolete"
	default:
		return "unknown"
	}
}

// JobKind identifies which queue-specific fields a JobRecord carries.
type JobKind int

const (
	JobKindMessageDecrypt JobKind = iota + 1
	JobKindSessionReset
	JobKindMessageSender
)

// Queue labels for job records.
const (
	MessageDecryptJobLabel = "SSKMessageDecrypt"
	SessionResetJobLabel   = "SessionReset"
	MessageSenderJobLabel  = "MessageSender"
)

// JobRecord is a persisted unit of deferred work.
type JobRecord struct {
	UniqueID     string
	SortID       uint64 // FIFO ordering key assigned by the backend
	Kind         JobKind
	Label        string
	Status       JobStatus
	FailureCount uint32

	// Decrypt jobs.
	EnvelopeData []byte
	// Session reset jobs.
	ContactThreadID string
	// Message sender jobs.
	MessageID      string
	IsMediaMessage bool
}

// MessageDecryptJob is the legacy-only decrypt job representation that
// predates JobRecord. It has no relational table of its own.
type MessageDecryptJob struct {
	UniqueID     string
	EnvelopeData []byte
	CreatedAt    time.Time
}
