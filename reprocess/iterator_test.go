package reprocess

import (
	"context"
	"testing"
	"time"

	"github.com/poiesic/kbase/core"
	"github.com/poiesic/kbase/storage"
	"github.com/poiesic/kbase/storage/badger"
	"github.com/poiesic/kbase/storage/storagetest"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupDocs(t *testing.T) storage.DocumentRepository {
	t.Helper()
	docs, versions, chunks, backend, err := badger.NewMemoryRepositories()
	require.NoError(t, err)
	t.Cleanup(func() {
		chunks.Close()
		versions.Close()
		docs.Close()
		backend.Close()
	})
	return docs
}

// addDocument stores a document and moves it to status, started at startedAt.
func addDocument(t *testing.T, repo storage.DocumentRepository, status core.ProcessingStatus, startedAt time.Time) *core.Document {
	t.Helper()
	ctx := context.Background()
	doc, err := repo.AddDocument(ctx, storagetest.NewDocument("file.pdf"))
	require.NoError(t, err)
	if status == core.StatusPending {
		return doc
	}
	doc, err = repo.UpdateProcessingStatus(ctx, storage.StatusUpdate{
		DocumentID: doc.Id,
		Status:     status,
		StartedAt:  &startedAt,
	})
	require.NoError(t, err)
	return doc
}

func ids(docs []*core.Document) []core.ID {
	out := make([]core.ID, len(docs))
	for i, d := range docs {
		out[i] = d.Id
	}
	return out
}

func TestDocumentIterator_Select(t *testing.T) {
	repo := setupDocs(t)
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

	pending := addDocument(t, repo, core.StatusPending, time.Time{})
	failed := addDocument(t, repo, core.StatusFailed, now.Add(-time.Minute))
	stale := addDocument(t, repo, core.StatusProcessing, now.Add(-2*time.Hour))
	fresh := addDocument(t, repo, core.StatusProcessing, now.Add(-time.Minute))
	processed := addDocument(t, repo, core.StatusProcessed, now.Add(-time.Hour))

	tests := []struct {
		name      string
		selection Selection
		want      []core.ID
	}{
		{
			name:      "failed only",
			selection: Selection{Statuses: []core.ProcessingStatus{core.StatusFailed}},
			want:      []core.ID{failed.Id},
		},
		{
			name:      "failed and stale",
			selection: Selection{Statuses: []core.ProcessingStatus{core.StatusFailed}, StaleAfter: time.Hour},
			want:      []core.ID{failed.Id, stale.Id},
		},
		{
			name:      "explicit processing includes fresh runs",
			selection: Selection{Statuses: []core.ProcessingStatus{core.StatusProcessing}, StaleAfter: time.Hour},
			want:      []core.ID{stale.Id, fresh.Id},
		},
		{
			name:      "pending and processed",
			selection: Selection{Statuses: []core.ProcessingStatus{core.StatusPending, core.StatusProcessed}},
			want:      []core.ID{pending.Id, processed.Id},
		},
		{
			name:      "empty selection",
			selection: Selection{},
			want:      []core.ID{},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			it := NewDocumentIterator(repo, tt.selection, 2)
			it.now = func() time.Time { return now }

			docs, err := it.Select(context.Background())
			require.NoError(t, err)
			assert.Equal(t, tt.want, ids(docs))
		})
	}
}

func TestDocumentIterator_ForEach(t *testing.T) {
	repo := setupDocs(t)
	var docs []*core.Document
	for range 5 {
		docs = append(docs, addDocument(t, repo, core.StatusFailed, time.Now()))
	}

	t.Run("batches", func(t *testing.T) {
		it := NewDocumentIterator(repo, Selection{}, 2)
		var sizes []int
		err := it.ForEach(context.Background(), docs, func(batch []*core.Document) error {
			sizes = append(sizes, len(batch))
			return nil
		})
		require.NoError(t, err)
		assert.Equal(t, []int{2, 2, 1}, sizes)
	})

	t.Run("default batch size", func(t *testing.T) {
		it := NewDocumentIterator(repo, Selection{}, 0)
		assert.Equal(t, DefaultBatchSize, it.batchSize)
	})

	t.Run("cancelled context", func(t *testing.T) {
		ctx, cancel := context.WithCancel(context.Background())
		it := NewDocumentIterator(repo, Selection{}, 2)
		calls := 0
		err := it.ForEach(ctx, docs, func(batch []*core.Document) error {
			calls++
			cancel()
			return nil
		})
		assert.ErrorIs(t, err, context.Canceled)
		assert.Equal(t, 1, calls)
	})
}
