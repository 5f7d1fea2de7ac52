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

import "errors"

// BackendKind names one of the two storage engines.
type BackendKind int

const (
	// BackendLegacy is the key/collection object store.
	BackendLegacy BackendKind = iota + 1
	// BackendRelational is the SQL store.
	BackendRelational
)

func (b BackendKind) String() string {
	switch b {
	case BackendLegacy:
		return "legacy"
	case BackendRelational:
		return "relational"
	default:
		return "unknown"
	}
}

// ErrCredentialNotFound is returned by a KeyStore when no item exists for
// the service/key pair.
var ErrCredentialNotFound = errors.New("credential not found")

// KeyStore is the secure credential store the relational backend fetches its
// encryption key from.
type KeyStore interface {
	// Fetch returns the stored bytes or ErrCredentialNotFound.
	Fetch(service, key string) ([]byte, error)
	Store(service, key string, data []byte) error
	Remove(service, key string) error
}

// AppState describes the hosting process.
type AppState interface {
	// IsMainApp is false for extensions sharing the store.
	IsMainApp() bool
	// IsActive is false while the app is backgrounded.
	IsActive() bool
}
