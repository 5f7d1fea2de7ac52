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


// Package keyvalue provides collection-scoped preference storage that works
// against either backend.
//
// A Store is bound to one collection. Values are storage.Value trees encoded
// with storage.EncodeValue. Bytes that do not decode, or that decode to a
// different kind than the caller asked for, are logged and reported as
// absent. Errors from the underlying transaction are returned as is.
package keyvalue
