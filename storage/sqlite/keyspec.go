package sqlite

import (
	"crypto/rand"
	"crypto/subtle"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"

	"github.com/go-crypt/x/blake2b"
	"github.com/poiesic/sdstore/storage"
)

// Credential store coordinates of the database key spec.
const (
	KeyServiceName = "GRDBKeyChainService"
	KeySpecName    = "GRDBDatabaseCipherKeySpec"

	keyLength     = 32
	saltLength    = 16
	KeySpecLength = keyLength + saltLength
)

var (
	// ErrKeySpecLength indicates a stored key spec of the wrong size.
	ErrKeySpecLength = errors.New("key spec has wrong length")

	// ErrKeyMismatch indicates the key spec does not match the database.
	ErrKeyMismatch = errors.New("key spec does not match database")
)

// KeySpec is the 48-byte database key: a 32-byte key followed by a 16-byte salt.
type KeySpec struct {
	data []byte
}

// NewKeySpec wraps raw key spec bytes.
func NewKeySpec(data []byte) (KeySpec, error) {
	if len(data) != KeySpecLength {
		return KeySpec{}, fmt.Errorf("%w: got %d bytes, want %d", ErrKeySpecLength, len(data), KeySpecLength)
	}
	return KeySpec{data: append([]byte(nil), data...)}, nil
}

// GenerateKeySpec returns a fresh random key spec.
func GenerateKeySpec() (KeySpec, error) {
	data := make([]byte, KeySpecLength)
	if _, err := rand.Read(data); err != nil {
		return KeySpec{}, err
	}
	return KeySpec{data: data}, nil
}

func (k KeySpec) Bytes() []byte { return append([]byte(nil), k.data...) }
func (k KeySpec) Key() []byte   { return k.data[:keyLength] }
func (k KeySpec) Salt() []byte  { return k.data[keyLength:] }

// Passphrase renders the spec as a raw-key literal, x'HEX'.
func (k KeySpec) Passphrase() string {
	return "x'" + strings.ToUpper(hex.EncodeToString(k.data)) + "'"
}

// verifier is a keyed BLAKE2b digest of the salt. The database stores it so a
// different key spec is detected at open.
func (k KeySpec) verifier() []byte {
	h, err := blake2b.New(32, k.Key())
	if err != nil {
		panic(err)
	}
	h.Write(k.Salt())
	return h.Sum(nil)
}

func (k KeySpec) matches(digest []byte) bool {
	return subtle.ConstantTimeCompare(k.verifier(), digest) == 1
}

// loadKeySpec fetches the key spec, creating one only when it is safe to do
// so: the main app, in the foreground, with no database on disk yet.
func loadKeySpec(ks storage.KeyStore, app storage.AppState, dbExists bool) (KeySpec, error) {
	data, err := ks.Fetch(KeyServiceName, KeySpecName)
	if err == nil {
		spec, err := NewKeySpec(data)
		if err != nil {
			return KeySpec{}, &storage.KeyUnavailableError{Err: err}
		}
		return spec, nil
	}

	backgrounded := app.IsMainApp() && !app.IsActive()
	if !errors.Is(err, storage.ErrCredentialNotFound) {
		return KeySpec{}, &storage.KeyUnavailableError{Deferrable: backgrounded, Err: err}
	}
	switch {
	case backgrounded:
		return KeySpec{}, &storage.KeyUnavailableError{Deferrable: true, Err: err}
	case !app.IsMainApp():
		return KeySpec{}, &storage.KeyUnavailableError{Err: fmt.Errorf("extension cannot create key: %w", err)}
	case dbExists:
		return KeySpec{}, &storage.KeyUnavailableError{Err: fmt.Errorf("database exists without key: %w", err)}
	}

	spec, err := GenerateKeySpec()
	if err != nil {
		return KeySpec{}, &storage.KeyUnavailableError{Err: err}
	}
	if err := ks.Store(KeyServiceName, KeySpecName, spec.data); err != nil {
		return KeySpec{}, &storage.KeyUnavailableError{Err: fmt.Errorf("store new key: %w", err)}
	}
	return spec, nil
}

// ResetKeySpec removes the stored key spec. The database becomes unreadable;
// callers delete it as well.
func ResetKeySpec(ks storage.KeyStore) error {
	err := ks.Remove(KeyServiceName, KeySpecName)
	if errors.Is(err, storage.ErrCredentialNotFound) {
		return nil
	}
	return err
}
