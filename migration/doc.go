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


// Package migration copies the legacy object store into the relational store.
//
// An Engine runs ordered Groups of Migrators. One legacy read transaction
// spans the whole run, and each group commits in its own relational write
// transaction, so a later group always sees the rows of earlier groups.
// A failing migrator rolls back its group and stops the run with a *Failure.
//
// Completed migrators are recorded in a ledger inside the relational store,
// in the same transaction as the rows they copied. A rerun after a failure
// resumes with the first group that did not commit, and no migrator ever
// copies its collection twice.
package migration
