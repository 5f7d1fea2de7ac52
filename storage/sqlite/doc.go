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


// Package sqlite implements the relational store on modernc.org/sqlite.
//
// The store keeps one dedicated write connection and a bounded pool of read
// connections over the same WAL-mode database file:
//
//   - Write serializes writers through a single slot and runs each block in a
//     BEGIN IMMEDIATE transaction on the write connection, so a writer always
//     reads its own uncommitted rows.
//   - Read runs a block on a pooled reader (default capacity 10).
//   - UIRead pins a reader to the latest committed snapshot that change
//     observers have been told about.
//
// Lock contention is handled by an explicit busy state machine that sleeps a
// fixed quantum between attempts. Ordinary writers retry without bound;
// SyncTruncatingCheckpoint takes an explicit max wait and reports itself as
// skipped when the wait expires.
//
// Before the pool is opened the store resolves its 48-byte key spec from a
// storage.KeyStore and checks it against a verifier kept in the database.
//
// # Tables
//
// Record tables are described by Table values (ThreadTable, InteractionTable,
// ...), which generate their CRUD statements with squirrel. Key/value access
// uses fixed statements cached per connection.
package sqlite
