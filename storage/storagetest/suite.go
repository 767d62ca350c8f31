// Package storagetest holds behavior tests shared by every storage backend.
package storagetest

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/poiesic/kbase/core"
	"github.com/poiesic/kbase/storage"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// Repositories is one backend's set of repositories.
type Repositories struct {
	Docs     storage.DocumentRepository
	Versions storage.VersionRepository
	Chunks   storage.ChunkRepository
}

// Factory opens a fresh, empty backend. Cleanup is registered on t.
type Factory func(t *testing.T) Repositories

// Run exercises the repository contract against the backend built by open.
func Run(t *testing.T, open Factory) {
	t.Run("AddAndGetDocument", func(t *testing.T) { testAddAndGetDocument(t, open(t)) })
	t.Run("UpdateDocument", func(t *testing.T) { testUpdateDocument(t, open(t)) })
	t.Run("ListDocumentsByStatus", func(t *testing.T) { testListDocuments(t, open(t)) })
	t.Run("StatusCompareAndSwap", func(t *testing.T) { testStatusCompareAndSwap(t, open(t)) })
	t.Run("ConcurrentClaim", func(t *testing.T) { testConcurrentClaim(t, open(t)) })
	t.Run("VersionNumbering", func(t *testing.T) { testVersionNumbering(t, open(t)) })
	t.Run("ChunksWriteOnce", func(t *testing.T) { testChunksWriteOnce(t, open(t)) })
	t.Run("ChunkCountUsesLatestVersion", func(t *testing.T) { testChunkCount(t, open(t)) })
	t.Run("MatchChunks", func(t *testing.T) { testMatchChunks(t, open(t)) })
	t.Run("DeleteCascades", func(t *testing.T) { testDeleteCascades(t, open(t)) })
}

// NewDocument returns a valid, unsaved document.
func NewDocument(path string) *core.Document {
	return &core.Document{
		OwnerId:     "owner-1",
		StoragePath: path,
		Title:       path,
		MimeType:    "application/pdf",
		SizeBytes:   1024,
	}
}

// ProcessedChunk returns a valid processed chunk for a version.
func ProcessedChunk(version *core.DocumentVersion, index int, vector []float32) *core.Chunk {
	return &core.Chunk{
		DocumentId:     version.DocumentId,
		VersionId:      version.Id,
		Index:          index,
		Content:        "chunk content.",
		Vector:         vector,
		TokenCount:     4,
		PageStart:      1,
		PageEnd:        1,
		EmbeddingModel: "test-model",
		Status:         core.ChunkProcessed,
	}
}

func addVersion(t *testing.T, repos Repositories, docID core.ID) *core.DocumentVersion {
	t.Helper()
	version, err := repos.Versions.AddVersion(context.Background(), &core.DocumentVersion{
		DocumentId:     docID,
		Checksum:       core.Checksum("text"),
		ExtractionMode: "structured",
		PageCount:      1,
		RunId:          "run",
	})
	require.NoError(t, err)
	return version
}

func testAddAndGetDocument(t *testing.T, repos Repositories) {
	ctx := context.Background()
	doc, err := repos.Docs.AddDocument(ctx, NewDocument("a.pdf"))
	require.NoError(t, err)
	assert.NotZero(t, doc.Id)
	assert.Equal(t, core.StatusPending, doc.Status)
	assert.False(t, doc.InsertedAt.IsZero())

	got, err := repos.Docs.GetDocument(ctx, doc.Id)
	require.NoError(t, err)
	assert.Equal(t, "a.pdf", got.StoragePath)
	assert.Equal(t, "owner-1", got.OwnerId)
	assert.Equal(t, core.StatusPending, got.Status)

	_, err = repos.Docs.GetDocument(ctx, doc.Id+1000)
	assert.ErrorIs(t, err, storage.ErrNotFound)

	_, err = repos.Docs.AddDocument(ctx, NewDocument(""))
	assert.ErrorIs(t, err, core.ErrInvalidDocument)
}

func testUpdateDocument(t *testing.T, repos Repositories) {
	ctx := context.Background()
	doc, err := repos.Docs.AddDocument(ctx, NewDocument("a.pdf"))
	require.NoError(t, err)

	doc.Title = "Renamed"
	doc.Status = core.StatusProcessed // ignored
	updated, err := repos.Docs.UpdateDocument(ctx, doc)
	require.NoError(t, err)
	assert.Equal(t, "Renamed", updated.Title)
	assert.Equal(t, core.StatusPending, updated.Status)

	_, err = repos.Docs.UpdateDocument(ctx, &core.Document{Id: 9999, StoragePath: "x"})
	assert.ErrorIs(t, err, storage.ErrNotFound)
}

func testListDocuments(t *testing.T, repos Repositories) {
	ctx := context.Background()
	a, err := repos.Docs.AddDocument(ctx, NewDocument("a.pdf"))
	require.NoError(t, err)
	b, err := repos.Docs.AddDocument(ctx, NewDocument("b.pdf"))
	require.NoError(t, err)
	_, err = repos.Docs.UpdateProcessingStatus(ctx, storage.StatusUpdate{DocumentID: b.Id, Status: core.StatusFailed, Error: "boom"})
	require.NoError(t, err)

	all, err := repos.Docs.ListDocuments(ctx)
	require.NoError(t, err)
	require.Len(t, all, 2)
	assert.Equal(t, a.Id, all[0].Id)
	assert.Equal(t, b.Id, all[1].Id)

	failed, err := repos.Docs.ListDocuments(ctx, core.StatusFailed)
	require.NoError(t, err)
	require.Len(t, failed, 1)
	assert.Equal(t, b.Id, failed[0].Id)
	assert.Equal(t, "boom", failed[0].ProcessingError)
}

func testStatusCompareAndSwap(t *testing.T, repos Repositories) {
	ctx := context.Background()
	doc, err := repos.Docs.AddDocument(ctx, NewDocument("a.pdf"))
	require.NoError(t, err)

	started := time.Now().UTC().Truncate(time.Millisecond)
	zero := time.Time{}
	count := 0
	got, err := repos.Docs.UpdateProcessingStatus(ctx, storage.StatusUpdate{
		DocumentID: doc.Id,
		Status:     core.StatusProcessing,
		Expected:   []core.ProcessingStatus{core.StatusPending},
		StartedAt:  &started,
		FinishedAt: &zero,
		ChunkCount: &count,
	})
	require.NoError(t, err)
	assert.Equal(t, core.StatusProcessing, got.Status)
	assert.True(t, started.Equal(got.ProcessingStartedAt))
	assert.True(t, got.ProcessingFinishedAt.IsZero())

	_, err = repos.Docs.UpdateProcessingStatus(ctx, storage.StatusUpdate{
		DocumentID: doc.Id,
		Status:     core.StatusProcessing,
		Expected:   []core.ProcessingStatus{core.StatusPending},
	})
	assert.ErrorIs(t, err, storage.ErrStatusConflict)

	_, err = repos.Docs.UpdateProcessingStatus(ctx, storage.StatusUpdate{DocumentID: 4242, Status: core.StatusFailed})
	assert.ErrorIs(t, err, storage.ErrNotFound)

	stored, err := repos.Docs.GetDocument(ctx, doc.Id)
	require.NoError(t, err)
	assert.Equal(t, core.StatusProcessing, stored.Status)
	assert.True(t, started.Equal(stored.ProcessingStartedAt))
}

func testConcurrentClaim(t *testing.T, repos Repositories) {
	ctx := context.Background()
	doc, err := repos.Docs.AddDocument(ctx, NewDocument("a.pdf"))
	require.NoError(t, err)

	const workers = 8
	var wg sync.WaitGroup
	var mu sync.Mutex
	winners := 0
	for range workers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := repos.Docs.UpdateProcessingStatus(ctx, storage.StatusUpdate{
				DocumentID: doc.Id,
				Status:     core.StatusProcessing,
				Expected:   []core.ProcessingStatus{core.StatusPending},
			})
			if err == nil {
				mu.Lock()
				winners++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()
	assert.Equal(t, 1, winners)
}

func testVersionNumbering(t *testing.T, repos Repositories) {
	ctx := context.Background()
	doc, err := repos.Docs.AddDocument(ctx, NewDocument("a.pdf"))
	require.NoError(t, err)

	_, err = repos.Versions.LatestVersion(ctx, doc.Id)
	assert.ErrorIs(t, err, storage.ErrNotFound)

	v1 := addVersion(t, repos, doc.Id)
	v2 := addVersion(t, repos, doc.Id)
	assert.Equal(t, 1, v1.VersionNo)
	assert.Equal(t, 2, v2.VersionNo)

	stored, err := repos.Docs.GetDocument(ctx, doc.Id)
	require.NoError(t, err)
	assert.Equal(t, 2, stored.LatestVersion)

	latest, err := repos.Versions.LatestVersion(ctx, doc.Id)
	require.NoError(t, err)
	assert.Equal(t, v2.Id, latest.Id)

	got, err := repos.Versions.GetVersion(ctx, v1.Id)
	require.NoError(t, err)
	assert.Equal(t, v1.Checksum, got.Checksum)
	assert.Equal(t, "run", got.RunId)

	versions, err := repos.Versions.ListVersions(ctx, doc.Id)
	require.NoError(t, err)
	require.Len(t, versions, 2)
	assert.Equal(t, 1, versions[0].VersionNo)
	assert.Equal(t, 2, versions[1].VersionNo)

	_, err = repos.Versions.AddVersion(ctx, &core.DocumentVersion{DocumentId: 9999})
	assert.ErrorIs(t, err, storage.ErrNotFound)
}

func testChunksWriteOnce(t *testing.T, repos Repositories) {
	ctx := context.Background()
	doc, err := repos.Docs.AddDocument(ctx, NewDocument("a.pdf"))
	require.NoError(t, err)
	version := addVersion(t, repos, doc.Id)

	failed := &core.Chunk{
		DocumentId: doc.Id,
		VersionId:  version.Id,
		Index:      1,
		Content:    "second.",
		Status:     core.ChunkFailed,
		Error:      "embedding failed",
	}
	_, err = repos.Chunks.AddChunks(ctx, ProcessedChunk(version, 0, []float32{1, 0}), failed)
	require.NoError(t, err)

	chunks, err := repos.Chunks.GetChunks(ctx, version.Id)
	require.NoError(t, err)
	require.Len(t, chunks, 2)
	assert.Equal(t, 0, chunks[0].Index)
	assert.Equal(t, []float32{1, 0}, chunks[0].Vector)
	assert.Equal(t, core.ChunkFailed, chunks[1].Status)
	assert.Nil(t, chunks[1].Vector)
	assert.Equal(t, "embedding failed", chunks[1].Error)

	_, err = repos.Chunks.AddChunks(ctx, ProcessedChunk(version, 0, []float32{0, 1}))
	assert.Error(t, err)

	invalid := ProcessedChunk(version, 2, nil)
	_, err = repos.Chunks.AddChunks(ctx, invalid)
	assert.ErrorIs(t, err, core.ErrInvalidChunk)
}

func testChunkCount(t *testing.T, repos Repositories) {
	ctx := context.Background()
	doc, err := repos.Docs.AddDocument(ctx, NewDocument("a.pdf"))
	require.NoError(t, err)

	count, err := repos.Docs.UpdateChunkCount(ctx, doc.Id)
	require.NoError(t, err)
	assert.Zero(t, count)

	v1 := addVersion(t, repos, doc.Id)
	_, err = repos.Chunks.AddChunks(ctx,
		ProcessedChunk(v1, 0, []float32{1}),
		ProcessedChunk(v1, 1, []float32{1}),
		ProcessedChunk(v1, 2, []float32{1}),
	)
	require.NoError(t, err)

	count, err = repos.Docs.UpdateChunkCount(ctx, doc.Id)
	require.NoError(t, err)
	assert.Equal(t, 3, count)

	v2 := addVersion(t, repos, doc.Id)
	_, err = repos.Chunks.AddChunks(ctx,
		ProcessedChunk(v2, 0, []float32{1}),
		&core.Chunk{DocumentId: doc.Id, VersionId: v2.Id, Index: 1, Content: "x.", Status: core.ChunkFailed},
	)
	require.NoError(t, err)

	count, err = repos.Docs.UpdateChunkCount(ctx, doc.Id)
	require.NoError(t, err)
	assert.Equal(t, 1, count)

	stored, err := repos.Docs.GetDocument(ctx, doc.Id)
	require.NoError(t, err)
	assert.Equal(t, 1, stored.ChunkCount)

	_, err = repos.Docs.UpdateChunkCount(ctx, 9999)
	assert.ErrorIs(t, err, storage.ErrNotFound)
}

func testMatchChunks(t *testing.T, repos Repositories) {
	ctx := context.Background()
	a, err := repos.Docs.AddDocument(ctx, NewDocument("a.pdf"))
	require.NoError(t, err)
	b, err := repos.Docs.AddDocument(ctx, NewDocument("b.pdf"))
	require.NoError(t, err)

	oldA := addVersion(t, repos, a.Id)
	_, err = repos.Chunks.AddChunks(ctx, ProcessedChunk(oldA, 0, []float32{1, 0}))
	require.NoError(t, err)
	newA := addVersion(t, repos, a.Id)
	_, err = repos.Chunks.AddChunks(ctx,
		ProcessedChunk(newA, 0, []float32{0.9, 0.1}),
		ProcessedChunk(newA, 1, []float32{0, 1}),
	)
	require.NoError(t, err)
	vb := addVersion(t, repos, b.Id)
	_, err = repos.Chunks.AddChunks(ctx, ProcessedChunk(vb, 0, []float32{0.7, 0.7}))
	require.NoError(t, err)

	query := []float32{1, 0}

	all, err := repos.Chunks.MatchChunks(ctx, query, nil, 10, 0.5)
	require.NoError(t, err)
	require.Len(t, all, 2)
	assert.Equal(t, newA.Id, all[0].Chunk.VersionId)
	assert.Equal(t, b.Id, all[1].Chunk.DocumentId)
	assert.GreaterOrEqual(t, all[0].Similarity, all[1].Similarity)

	onlyB, err := repos.Chunks.MatchChunks(ctx, query, []core.ID{b.Id}, 10, 0)
	require.NoError(t, err)
	require.Len(t, onlyB, 1)
	assert.Equal(t, b.Id, onlyB[0].Chunk.DocumentId)

	limited, err := repos.Chunks.MatchChunks(ctx, query, nil, 1, -1)
	require.NoError(t, err)
	require.Len(t, limited, 1)
	assert.Equal(t, a.Id, limited[0].Chunk.DocumentId)

	_, err = repos.Chunks.MatchChunks(ctx, nil, nil, 1, 0)
	assert.ErrorIs(t, err, storage.ErrInvalidQuery)
}

func testDeleteCascades(t *testing.T, repos Repositories) {
	ctx := context.Background()
	doc, err := repos.Docs.AddDocument(ctx, NewDocument("a.pdf"))
	require.NoError(t, err)
	version := addVersion(t, repos, doc.Id)
	_, err = repos.Chunks.AddChunks(ctx, ProcessedChunk(version, 0, []float32{1}))
	require.NoError(t, err)

	require.NoError(t, repos.Docs.DeleteDocument(ctx, doc.Id))

	_, err = repos.Docs.GetDocument(ctx, doc.Id)
	assert.ErrorIs(t, err, storage.ErrNotFound)
	_, err = repos.Versions.GetVersion(ctx, version.Id)
	assert.ErrorIs(t, err, storage.ErrNotFound)
	chunks, err := repos.Chunks.GetChunks(ctx, version.Id)
	require.NoError(t, err)
	assert.Empty(t, chunks)

	assert.ErrorIs(t, repos.Docs.DeleteDocument(ctx, doc.Id), storage.ErrNotFound)
}
