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

package reprocess

import (
	"context"
	"time"

	"github.com/poiesic/kbase/core"
	"github.com/poiesic/kbase/storage"
)

const (
	// DefaultBatchSize is the default number of documents handled per batch.
	DefaultBatchSize = 10
)

// Selection chooses the documents to reprocess.
type Selection struct {
	// Statuses selects documents in any of these states.
	Statuses []core.ProcessingStatus
	// StaleAfter additionally selects documents that have been processing for
	// longer than this. Zero disables the stale check.
	StaleAfter time.Duration
}

// DocumentIterator iterates over the selected documents in batches.
type DocumentIterator struct {
	repo      storage.DocumentRepository
	selection Selection
	batchSize int
	now       func() time.Time
}

// NewDocumentIterator creates a new document iterator.
// batchSize: number of documents per batch (must be > 0)
func NewDocumentIterator(repo storage.DocumentRepository, selection Selection, batchSize int) *DocumentIterator {
	if batchSize <= 0 {
		batchSize = DefaultBatchSize
	}
	return &DocumentIterator{
		repo:      repo,
		selection: selection,
		batchSize: batchSize,
		now:       func() time.Time { return time.Now().UTC() },
	}
}

// Select returns the selected documents ordered by ID.
func (it *DocumentIterator) Select(ctx context.Context) ([]*core.Document, error) {
	statuses := append([]core.ProcessingStatus(nil), it.selection.Statuses...)
	stale := it.selection.StaleAfter > 0
	if stale {
		statuses = append(statuses, core.StatusProcessing)
	}
	if len(statuses) == 0 {
		return nil, nil
	}

	docs, err := it.repo.ListDocuments(ctx, statuses...)
	if err != nil {
		return nil, err
	}

	explicit := make(map[core.ProcessingStatus]bool, len(it.selection.Statuses))
	for _, s := range it.selection.Statuses {
		explicit[s] = true
	}
	cutoff := it.now().Add(-it.selection.StaleAfter)

	selected := docs[:0]
	for _, doc := range docs {
		switch {
		case explicit[doc.Status]:
			selected = append(selected, doc)
		case stale && doc.Status == core.StatusProcessing && doc.ProcessingStartedAt.Before(cutoff):
			selected = append(selected, doc)
		}
	}
	return selected, nil
}

// ForEach calls fn for each batch of selected documents.
// Iteration stops on first error from fn or when all documents are handled.
// Context cancellation is checked between batches.
func (it *DocumentIterator) ForEach(ctx context.Context, docs []*core.Document, fn func([]*core.Document) error) error {
	for i := 0; i < len(docs); i += it.batchSize {
		if err := ctx.Err(); err != nil {
			return err
		}
		end := min(i+it.batchSize, len(docs))
		if err := fn(docs[i:end]); err != nil {
			return err
		}
	}
	return ctx.Err()
}
