// Copyright 2025 Poiesic Systems
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.


package storage

import (
	"errors"
	"fmt"
)

var (
	// ErrNotFound indicates that the requested record was not found.
	ErrNotFound = errors.New("record not found")

	// ErrDuplicateKey indicates a duplicate key violation.
	ErrDuplicateKey = errors.New("duplicate key")

	// ErrTransactionFailed indicates that a transaction failed.
	ErrTransactionFailed = errors.New("transaction failed")

	// ErrStorageClosed indicates that the storage backend is closed.
	ErrStorageClosed = errors.New("storage is closed")

	// ErrSerializationFailed indicates a serialization/deserialization failure.
	ErrSerializationFailed = errors.New("serialization failed")

	// ErrTruncatedData indicates that data was truncated during reading.
	ErrTruncatedData = errors.New("truncated data")

	// ErrBackendMisroute indicates an operation reached a backend that is not
	// authoritative for it in the current coordinator state.
	ErrBackendMisroute = errors.New("backend misroute")

	// ErrKeyUnavailable indicates the relational encryption key could not be obtained.
	ErrKeyUnavailable = errors.New("database key unavailable")

	// ErrLockTimeout indicates a bounded lock wait expired. Maintenance callers
	// treat it as "skipped this cycle".
	ErrLockTimeout = errors.New("lock wait timed out")
)

// DecodeError reports stored bytes that do not match the requested shape.
// Stores log it and treat the value as absent.
type DecodeError struct {
	Collection string
	Key        string
	Err        error
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("decode %s/%s: %v", e.Collection, e.Key, e.Err)
}

func (e *DecodeError) Unwrap() []error {
	return []error{ErrSerializationFailed, e.Err}
}

// MisrouteError reports a read or write issued against the wrong backend.
type MisrouteError struct {
	Op      string // "read" or "write"
	Backend BackendKind
	State   string
}

func (e *MisrouteError) Error() string {
	return fmt.Sprintf("%s against %s backend not allowed in state %s", e.Op, e.Backend, e.State)
}

func (e *MisrouteError) Unwrap() error {
	return ErrBackendMisroute
}

// KeyUnavailableError reports a missing database key at open time. Deferrable
// is set when the process is backgrounded and the caller should retry later
// instead of failing.
type KeyUnavailableError struct {
	Deferrable bool
	Err        error
}

func (e *KeyUnavailableError) Error() string {
	if e.Deferrable {
		return fmt.Sprintf("database key unavailable while backgrounded: %v", e.Err)
	}
	return fmt.Sprintf("database key unavailable: %v", e.Err)
}

func (e *KeyUnavailableError) Unwrap() []error {
	return []error{ErrKeyUnavailable, e.Err}
}

// IsDeferrable reports whether err is a KeyUnavailableError the caller may retry.
func IsDeferrable(err error) bool {
	var kerr *KeyUnavailableError
	return errors.As(err, &kerr) && kerr.Deferrable
}
