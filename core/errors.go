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


package core

import "errors"

// Domain validation errors
var (
	// ErrInvalidThread indicates a Thread failed validation.
	ErrInvalidThread = errors.New("invalid thread")

	// ErrInvalidInteraction indicates an Interaction failed validation.
	ErrInvalidInteraction = errors.New("invalid interaction")

	// ErrInvalidJobRecord indicates a JobRecord failed validation.
	ErrInvalidJobRecord = errors.New("invalid job record")

	// ErrEmptyUniqueID indicates the UniqueID field is empty.
	ErrEmptyUniqueID = errors.New("unique id cannot be empty")

	// ErrEmptyThreadID indicates an interaction has no owning thread.
	ErrEmptyThreadID = errors.New("thread unique id cannot be empty")

	// ErrEmptyLabel indicates a job record has no queue label.
	ErrEmptyLabel = errors.New("job label cannot be empty")

	// ErrInvalidJobKind indicates an unknown JobKind value.
	ErrInvalidJobKind = errors.New("invalid job kind")
)
