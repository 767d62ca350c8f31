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

import (
	"fmt"
	"strings"
	"unicode"
)

// ValidateDocument validates a Document according to domain rules.
//
// Validation rules:
//   - StoragePath must not be empty
//   - Status must be a known ProcessingStatus
//
// NOT validated (populated by the pipeline):
//   - LatestVersion, ChunkCount and processing timestamps
//   - ID (0 is valid from database sequences)
func ValidateDocument(doc *Document) error {
	if doc == nil {
		return fmt.Errorf("%w: document is nil", ErrInvalidDocument)
	}
	if strings.TrimSpace(doc.StoragePath) == "" {
		return fmt.Errorf("%w: %w", ErrInvalidDocument, ErrEmptyStoragePath)
	}
	if err := ValidateProcessingStatus(doc.Status); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidDocument, err)
	}
	return nil
}

// ValidateOwnerID checks that owner can be used as one segment of a storage
// path. Empty is allowed; callers substitute a default.
func ValidateOwnerID(owner string) error {
	if owner == "." || owner == ".." || strings.ContainsAny(owner, "/\\") {
		return fmt.Errorf("%w: %q", ErrInvalidOwner, owner)
	}
	for _, r := range owner {
		if unicode.IsControl(r) {
			return fmt.Errorf("%w: %q contains control characters", ErrInvalidOwner, owner)
		}
	}
	return nil
}

// ValidateChunk validates a Chunk according to domain rules.
//
// Validation rules:
//   - Content must not be empty
//   - Index must not be negative
//   - Status must be processed or failed
//   - A processed chunk must carry a vector, a failed chunk must not
func ValidateChunk(chunk *Chunk) error {
	if chunk == nil {
		return fmt.Errorf("%w: chunk is nil", ErrInvalidChunk)
	}
	if chunk.Content == "" {
		return fmt.Errorf("%w: %w", ErrInvalidChunk, ErrEmptyContent)
	}
	if chunk.Index < 0 {
		return fmt.Errorf("%w: negative index %d", ErrInvalidChunk, chunk.Index)
	}
	switch chunk.Status {
	case ChunkProcessed:
		if len(chunk.Vector) == 0 {
			return fmt.Errorf("%w: processed chunk has no embedding", ErrInvalidChunk)
		}
	case ChunkFailed:
		if len(chunk.Vector) != 0 {
			return fmt.Errorf("%w: failed chunk carries an embedding", ErrInvalidChunk)
		}
	default:
		return fmt.Errorf("%w: %w: %q", ErrInvalidChunk, ErrInvalidStatus, chunk.Status)
	}
	return nil
}

// ValidateProcessingStatus validates that a ProcessingStatus has a known value.
func ValidateProcessingStatus(status ProcessingStatus) error {
	switch status {
	case StatusPending, StatusProcessing, StatusProcessed, StatusFailed:
		return nil
	}
	return fmt.Errorf("%w: %q", ErrInvalidStatus, status)
}

// CanTransition reports whether the document state machine allows from -> to.
//
//	pending|processed|failed -> processing
//	processing -> processed|failed
func CanTransition(from, to ProcessingStatus) bool {
	switch to {
	case StatusProcessing:
		return from == StatusPending || from == StatusProcessed || from == StatusFailed
	case StatusProcessed, StatusFailed:
		return from == StatusProcessing
	}
	return false
}

// IsIdle reports whether no run currently owns a document in this status.
func (s ProcessingStatus) IsIdle() bool {
	return s == StatusPending || s == StatusProcessed || s == StatusFailed
}
