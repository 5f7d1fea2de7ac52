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
	"fmt"

	"github.com/poiesic/sdstore/core"
)

// Marshal serializes a record with its MUS codec.
func Marshal[T any](codec core.Codec[T], record *T) []byte {
	buf := make([]byte, codec.Size(*record))
	codec.Marshal(*record, buf)
	return buf
}

// Unmarshal deserializes a record with its MUS codec. Trailing bytes are
// rejected so that a record never silently decodes as a different shape.
func Unmarshal[T any](codec core.Codec[T], data []byte) (*T, error) {
	record, n, err := codec.Unmarshal(data)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrSerializationFailed, err)
	}
	if n != len(data) {
		return nil, fmt.Errorf("%w: %d trailing bytes", ErrSerializationFailed, len(data)-n)
	}
	return &record, nil
}
