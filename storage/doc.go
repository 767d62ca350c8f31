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

// Package storage provides the storage abstraction layer for kbase.
//
// This package defines repository interfaces that decouple the ingestion
// pipeline from the store holding documents, versions and chunks. Two
// backends implement them:
//
//   - storage/badger: embedded BadgerDB key-value store
//   - storage/sqlite: relational SQLite store
//
// # Architecture
//
// The storage layer follows the Repository pattern:
//
//   - DocumentRepository: documents and their processing status
//   - VersionRepository: immutable extraction snapshots
//   - ChunkRepository: write-once chunk rows and similarity matching
//
// Three operations mirror server-side procedures of a hosted database:
//
//   - UpdateProcessingStatus: update_document_processing_status, with an
//     optional compare-and-swap on the current status
//   - UpdateChunkCount: update_document_chunk_count
//   - MatchChunks: match_chunks
//
// # Usage
//
//	backend, err := badger.OpenBackend("/path/to/db", false)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer backend.Close()
//	docs, err := badger.NewDocumentRepository(backend)
//
// Use in tests with in-memory storage:
//
//	docs, versions, chunks, backend, err := badger.NewMemoryRepositories()
//
// # Thread Safety
//
// All repository implementations must be thread-safe and support
// concurrent access from multiple goroutines.
//
// # Context Support
//
// All repository methods accept context.Context. Pass context.Background()
// for operations without specific timeout requirements.
package storage
