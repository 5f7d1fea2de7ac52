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

import "fmt"

// ValidateThread validates a Thread according to domain rules.
//
// Validation rules:
//   - UniqueID must not be empty
//   - Kind must be contact or group
func ValidateThread(thread *Thread) error {
	if thread == nil {
		return fmt.Errorf("%w: thread is nil", ErrInvalidThread)
	}
	if thread.UniqueID == "" {
		return fmt.Errorf("%w: %w", ErrInvalidThread, ErrEmptyUniqueID)
	}
	if thread.Kind != ThreadKindContact && thread.Kind != ThreadKindGroup {
		return fmt.Errorf("%w: unknown kind %d", ErrInvalidThread, thread.Kind)
	}
	return nil
}

// ValidateInteraction validates an Interaction according to domain rules.
//
// Validation rules:
//   - UniqueID must not be empty
//   - ThreadUniqueID must not be empty
//
// NOT validated (assigned by the backend):
//   - SortID
func ValidateInteraction(interaction *Interaction) error {
	if interaction == nil {
		return fmt.Errorf("%w: interaction is nil", ErrInvalidInteraction)
	}
	if interaction.UniqueID == "" {
		return fmt.Errorf("%w: %w", ErrInvalidInteraction, ErrEmptyUniqueID)
	}
	if interaction.ThreadUniqueID == "" {
		return fmt.Errorf("%w: %w", ErrInvalidInteraction, ErrEmptyThreadID)
	}
	return nil
}

// ValidateJobRecord validates a JobRecord according to domain rules.
func ValidateJobRecord(job *JobRecord) error {
	if job == nil {
		return fmt.Errorf("%w: job is nil", ErrInvalidJobRecord)
	}
	if job.UniqueID == "" {
		return fmt.Errorf("%w: %w", ErrInvalidJobRecord, ErrEmptyUniqueID)
	}
	if job.Label == "" {
		return fmt.Errorf("%w: %w", ErrInvalidJobRecord, ErrEmptyLabel)
	}
	switch job.Kind {
	case JobKindMessageDecrypt, JobKindSessionReset, JobKindMessageSender:
	default:
		return fmt.Errorf("%w: %w", ErrInvalidJobRecord, ErrInvalidJobKind)
	}
	return nil
}
