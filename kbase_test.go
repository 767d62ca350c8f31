package kbase

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/google/uuid"
	"github.com/poiesic/kbase/ai"
	"github.com/poiesic/kbase/ai/mock"
	"github.com/poiesic/kbase/blob"
	"github.com/poiesic/kbase/core"
	"github.com/poiesic/kbase/ingestion"
	"github.com/poiesic/kbase/reprocess"
	"github.com/poiesic/kbase/storage"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sampleText = "Kbase stores documents. Each document is split into chunks. Chunks are embedded for search."

func openMemory(t *testing.T, backend Backend, opts ...DatabaseOption) *Database {
	t.Helper()
	opts = append([]DatabaseOption{
		WithBackend(backend),
		InMemory(),
		WithProvider(mock.NewMockProvider()),
	}, opts...)
	db, err := NewDatabase("", opts...)
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return db
}

func TestNewDatabase(t *testing.T) {
	t.Run("create badger database", func(t *testing.T) {
		dir := filepath.Join(t.TempDir(), "test_db")
		db, err := NewDatabase(dir, WithAIConfig(ai.DefaultConfig()))
		require.NoError(t, err)
		defer db.Close()

		assert.NotNil(t, db.Documents())
		assert.NotNil(t, db.Versions())
		assert.NotNil(t, db.Chunks())
		assert.NotNil(t, db.ObjectStore())
		assert.NotNil(t, db.Provider())
		assert.DirExists(t, filepath.Join(dir, BadgerDir))
	})

	t.Run("create sqlite database", func(t *testing.T) {
		dir := t.TempDir()
		db, err := NewDatabase(dir, WithBackend(BackendSQLite), WithProvider(mock.NewMockProvider()))
		require.NoError(t, err)
		defer db.Close()
		assert.FileExists(t, filepath.Join(dir, "kbase.db"))
	})

	t.Run("error with invalid path", func(t *testing.T) {
		tmpFile := filepath.Join(t.TempDir(), "not_a_dir")
		require.NoError(t, os.WriteFile(tmpFile, []byte("test"), 0644))

		db, err := NewDatabase(tmpFile, WithProvider(mock.NewMockProvider()))
		assert.Error(t, err)
		assert.Nil(t, db)
	})

	t.Run("missing data directory", func(t *testing.T) {
		_, err := NewDatabase("", WithProvider(mock.NewMockProvider()))
		assert.ErrorIs(t, err, core.ErrConfiguration)
	})

	t.Run("unknown backend", func(t *testing.T) {
		_, err := NewDatabase("", InMemory(), WithBackend("postgres"), WithProvider(mock.NewMockProvider()))
		assert.ErrorIs(t, err, core.ErrConfiguration)
	})

	t.Run("invalid ai config", func(t *testing.T) {
		_, err := NewDatabase("", InMemory(), WithAIConfig(&ai.Config{}))
		assert.ErrorIs(t, err, core.ErrConfiguration)
	})
}

func TestDatabase_EndToEnd(t *testing.T) {
	for _, backend := range []Backend{BackendBadger, BackendSQLite} {
		t.Run(string(backend), func(t *testing.T) {
			ctx := context.Background()
			db := openMemory(t, backend)

			doc, err := db.UploadDocument(ctx, UploadRequest{
				OwnerId:  "agent-7",
				Filename: "/tmp/notes.txt",
				MimeType: "text/plain",
				Data:     []byte(sampleText),
			})
			require.NoError(t, err)
			assert.Equal(t, core.StatusPending, doc.Status)
			assert.Equal(t, "notes.txt", doc.Title)
			assert.Contains(t, doc.StoragePath, "agent-7/")

			pipeline, err := db.NewIngestionPipeline()
			require.NoError(t, err)
			defer pipeline.Release()

			result := pipeline.ProcessDocument(ctx, doc.Id)
			require.True(t, result.Success, result.Error)

			stored, err := db.GetDocument(ctx, doc.Id)
			require.NoError(t, err)
			assert.Equal(t, core.StatusProcessed, stored.Status)
			assert.Equal(t, result.ChunksProcessed, stored.ChunkCount)

			searcher, err := db.NewSearcher()
			require.NoError(t, err)
			hits, err := searcher.FindSimilar(ctx, sampleText, nil, 3)
			require.NoError(t, err)
			require.NotEmpty(t, hits)
			assert.Equal(t, doc.Id, hits[0].Chunk.DocumentId)

			processed, err := db.ListDocuments(ctx, core.StatusProcessed)
			require.NoError(t, err)
			assert.Len(t, processed, 1)

			require.NoError(t, db.DeleteDocument(ctx, doc.Id))
			_, err = db.GetDocument(ctx, doc.Id)
			assert.ErrorIs(t, err, core.ErrNotFound)
			_, err = db.ObjectStore().Download(ctx, stored.StoragePath)
			assert.ErrorIs(t, err, core.ErrNotFound)
		})
	}
}

func TestDatabase_UploadTooLarge(t *testing.T) {
	db := openMemory(t, BackendBadger, WithIngestionConfig(ingestion.Config{MaxUploadBytes: 8}))

	_, err := db.UploadDocument(context.Background(), UploadRequest{Filename: "big.pdf", Data: []byte("more than eight bytes")})
	assert.ErrorIs(t, err, core.ErrUploadTooLarge)

	docs, err := db.ListDocuments(context.Background())
	require.NoError(t, err)
	assert.Empty(t, docs)
}

func TestDatabase_DeleteUnknown(t *testing.T) {
	db := openMemory(t, BackendSQLite)
	err := db.DeleteDocument(context.Background(), 42)
	assert.ErrorIs(t, err, core.ErrNotFound)
}

func TestDatabase_Reprocessor(t *testing.T) {
	ctx := context.Background()
	db := openMemory(t, BackendBadger)

	doc, err := db.UploadDocument(ctx, UploadRequest{Filename: "a.txt", Data: []byte(sampleText)})
	require.NoError(t, err)

	pipeline, err := db.NewIngestionPipeline()
	require.NoError(t, err)
	defer pipeline.Release()

	r, err := db.NewReprocessor(pipeline, &reprocess.Config{
		BatchSize: 5,
		Selection: reprocess.Selection{Statuses: []core.ProcessingStatus{core.StatusPending}},
	}, nil)
	require.NoError(t, err)

	summary, err := r.Run(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, summary.Selected)
	assert.Equal(t, 1, summary.Succeeded)

	stored, err := db.GetDocument(ctx, doc.Id)
	require.NoError(t, err)
	assert.Equal(t, core.StatusProcessed, stored.Status)
}

func TestDatabase_UploadRejectsUnsafeOwner(t *testing.T) {
	ctx := context.Background()
	root := t.TempDir()
	dataDir := filepath.Join(root, "data")
	db, err := NewDatabase(dataDir, WithProvider(mock.NewMockProvider()))
	require.NoError(t, err)
	defer db.Close()

	for _, owner := range []string{"../../x", "a/b", ".."} {
		_, err := db.UploadDocument(ctx, UploadRequest{OwnerId: owner, Filename: "a.txt", Data: []byte(sampleText)})
		assert.ErrorIs(t, err, core.ErrInvalidOwner, owner)
	}

	assert.NoDirExists(t, filepath.Join(root, "x"))
	docs, err := db.ListDocuments(ctx)
	require.NoError(t, err)
	assert.Empty(t, docs)
}

// failingDeleteDocs fails every DeleteDocument call.
type failingDeleteDocs struct {
	storage.DocumentRepository
}

func (f failingDeleteDocs) DeleteDocument(ctx context.Context, id core.ID) error {
	return errors.New("disk full")
}

// failingRemoveStore fails every Remove call.
type failingRemoveStore struct {
	blob.ObjectStore
}

func (f failingRemoveStore) Remove(ctx context.Context, path string) error {
	return core.ErrIO
}

func TestDatabase_DeleteKeepsFileWhenRowDeleteFails(t *testing.T) {
	ctx := context.Background()
	db := openMemory(t, BackendBadger)
	doc, err := db.UploadDocument(ctx, UploadRequest{Filename: "a.txt", Data: []byte(sampleText)})
	require.NoError(t, err)

	docs := db.docs
	db.docs = failingDeleteDocs{DocumentRepository: docs}
	assert.Error(t, db.DeleteDocument(ctx, doc.Id))
	db.docs = docs

	// the row still points at a readable file
	stored, err := db.GetDocument(ctx, doc.Id)
	require.NoError(t, err)
	data, err := db.ObjectStore().Download(ctx, stored.StoragePath)
	require.NoError(t, err)
	assert.Equal(t, []byte(sampleText), data)
}

func TestDatabase_DeleteSucceedsWhenFileRemovalFails(t *testing.T) {
	ctx := context.Background()
	objects, err := blob.NewAFS("mem://localhost/" + uuid.NewString())
	require.NoError(t, err)
	db := openMemory(t, BackendSQLite, WithObjectStore(failingRemoveStore{ObjectStore: objects}))

	doc, err := db.UploadDocument(ctx, UploadRequest{Filename: "a.txt", Data: []byte(sampleText)})
	require.NoError(t, err)

	require.NoError(t, db.DeleteDocument(ctx, doc.Id))
	_, err = db.GetDocument(ctx, doc.Id)
	assert.ErrorIs(t, err, core.ErrNotFound)
}
