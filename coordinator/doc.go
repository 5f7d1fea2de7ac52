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


// Package coordinator decides which backend serves reads and writes.
//
// The Coordinator holds a forward-only State. Each state fixes one backend
// for reads and one for writes:
//
//	State             Reads       Writes
//	LegacyOnly        legacy      legacy
//	BeforeMigration   legacy      legacy
//	DuringMigration   legacy      relational
//	RelationalOnly    relational  relational
//	LegacyTests       legacy      legacy
//	RelationalTests   relational  relational
//
// Read, UIRead and Write route automatically. Callers that need a specific
// backend go through Backend(kind), which checks the table and reports a
// storage.MisrouteError according to the configured Strictness.
//
// Advance waits for in-flight writes, so no write lands on a backend after
// it stops being authoritative.
package coordinator
