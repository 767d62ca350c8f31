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

// Ingestion errors. Stage failures wrap one of these so callers can use errors.Is.
var (
	// ErrNotFound indicates the document or its stored file is missing.
	ErrNotFound = errors.New("not found")

	// ErrIO indicates a download or object storage failure.
	ErrIO = errors.New("storage i/o failure")

	// ErrExtraction indicates text extraction failed on every available path.
	ErrExtraction = errors.New("text extraction failed")

	// ErrNoExtractableText indicates extraction produced no usable text.
	ErrNoExtractableText = errors.New("no extractable text")

	// ErrConfiguration indicates invalid pipeline settings.
	ErrConfiguration = errors.New("invalid configuration")

	// ErrEmbedding indicates the embedding API failed after all retries.
	ErrEmbedding = errors.New("embedding failed")

	// ErrPersistence indicates a row write failed.
	ErrPersistence = errors.New("persistence failed")

	// ErrConcurrentRunRejected indicates another run already owns the document.
	ErrConcurrentRunRejected = errors.New("concurrent processing run rejected")

	// ErrUploadTooLarge indicates the file exceeds the maximum upload size.
	ErrUploadTooLarge = errors.New("file exceeds maximum upload size")
)

// Domain validation errors
var (
	// ErrInvalidDocument indicates a Document failed validation.
	ErrInvalidDocument = errors.New("invalid document")

	// ErrInvalidChunk indicates a Chunk failed validation.
	ErrInvalidChunk = errors.New("invalid chunk")

	// ErrEmptyContent indicates the Content field is empty.
	ErrEmptyContent = errors.New("content cannot be empty")

	// ErrInvalidOwner indicates an owner ID that cannot name a storage directory.
	ErrInvalidOwner = errors.New("invalid owner id")

	// ErrEmptyStoragePath indicates the document has no storage path.
	ErrEmptyStoragePath = errors.New("storage path cannot be empty")

	// ErrInvalidStatus indicates an unknown status value.
	ErrInvalidStatus = errors.New("invalid status")

	// ErrInvalidTransition indicates a status change the state machine forbids.
	ErrInvalidTransition = errors.New("invalid status transition")
)
