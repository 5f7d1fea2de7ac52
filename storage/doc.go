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


// Package storage defines the backend-neutral pieces of the persistence core.
//
// Two engines sit underneath: the legacy key/collection object store
// (storage/badger) and the relational store (storage/sqlite). Application code
// never talks to either directly. It goes through the txn sum types, which a
// coordinator routes to whichever backend is authoritative for the current
// migration state.
//
// # Architecture
//
//   - BackendKind: names the two engines for routing and diagnostics
//   - Value: tagged-union payload persisted by the key/value store
//   - KeyStore: external secure credential store used for the relational key
//   - errors.go: the shared error taxonomy (DecodeError, MisrouteError,
//     KeyUnavailableError, ErrLockTimeout and the record sentinels)
//
// # Encoding
//
// Records are encoded with the MUS serializers in package core. Key/value
// entries are encoded with EncodeValue, a versioned self-describing format, and
// are opaque bytes to both engines.
//
// # Thread Safety
//
// Values are immutable once built and may be shared between goroutines.
// Transactions are not; a transaction belongs to the goroutine that opened it.
package storage
