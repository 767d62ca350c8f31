package reprocess

import (
	"bytes"
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/poiesic/kbase/ai/mock"
	"github.com/poiesic/kbase/blob"
	"github.com/poiesic/kbase/core"
	"github.com/poiesic/kbase/ingestion"
	"github.com/poiesic/kbase/storage"
	"github.com/poiesic/kbase/storage/badger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeRunner fails the documents in fail and records every call.
type fakeRunner struct {
	fail  map[core.ID]bool
	calls []core.ID
}

func (f *fakeRunner) Reprocess(ctx context.Context, id core.ID) *ingestion.Result {
	f.calls = append(f.calls, id)
	if f.fail[id] {
		return &ingestion.Result{Success: false, Error: "boom"}
	}
	return &ingestion.Result{Success: true, ChunksProcessed: 1, VersionID: 1}
}

func TestNewReprocessor_Validation(t *testing.T) {
	repo := setupDocs(t)

	_, err := NewReprocessor(nil, &fakeRunner{}, nil, nil)
	assert.ErrorIs(t, err, ErrRepositoryRequired)
	_, err = NewReprocessor(repo, nil, nil, nil)
	assert.ErrorIs(t, err, ErrRunnerRequired)

	r, err := NewReprocessor(repo, &fakeRunner{}, nil, nil)
	require.NoError(t, err)
	assert.Equal(t, DefaultConfig(), r.config)
}

func TestReprocessor_ContinuesPastFailures(t *testing.T) {
	repo := setupDocs(t)
	a := addDocument(t, repo, core.StatusFailed, time.Now())
	b := addDocument(t, repo, core.StatusFailed, time.Now())
	c := addDocument(t, repo, core.StatusFailed, time.Now())
	addDocument(t, repo, core.StatusProcessed, time.Now())

	runner := &fakeRunner{fail: map[core.ID]bool{b.Id: true}}
	var out bytes.Buffer
	r, err := NewReprocessor(repo, runner, &Config{
		BatchSize:      2,
		ReportInterval: 1,
		Selection:      Selection{Statuses: []core.ProcessingStatus{core.StatusFailed}},
	}, &out)
	require.NoError(t, err)

	summary, err := r.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 3, summary.Selected)
	assert.Equal(t, 2, summary.Succeeded)
	assert.Equal(t, 1, summary.Failed)
	assert.Equal(t, map[core.ID]string{b.Id: "boom"}, summary.Failures)
	assert.Equal(t, []core.ID{a.Id, b.Id, c.Id}, runner.calls)
	assert.Contains(t, out.String(), "3/3")
	assert.Contains(t, out.String(), "2 succeeded, 1 failed")
}

func TestReprocessor_NothingSelected(t *testing.T) {
	repo := setupDocs(t)
	addDocument(t, repo, core.StatusProcessed, time.Now())

	runner := &fakeRunner{}
	var out bytes.Buffer
	r, err := NewReprocessor(repo, runner, nil, &out)
	require.NoError(t, err)

	summary, err := r.Run(context.Background())
	require.NoError(t, err)
	assert.Zero(t, summary.Selected)
	assert.Empty(t, runner.calls)
	assert.Contains(t, out.String(), "No documents")
}

func TestReprocessor_WithPipeline(t *testing.T) {
	ctx := context.Background()
	docs, versions, chunks, backend, err := badger.NewMemoryRepositories()
	require.NoError(t, err)
	t.Cleanup(func() {
		chunks.Close()
		versions.Close()
		docs.Close()
		backend.Close()
	})
	objects, err := blob.NewAFS("mem://localhost/" + uuid.NewString())
	require.NoError(t, err)

	pipeline, err := ingestion.NewPipeline(docs, versions, chunks, objects, mock.NewMockProvider())
	require.NoError(t, err)
	defer pipeline.Release()

	// a document abandoned in processing two hours ago
	require.NoError(t, objects.Upload(ctx, "stuck.pdf", []byte("Recovered text. Second sentence.")))
	stuck, err := docs.AddDocument(ctx, &core.Document{OwnerId: "o", StoragePath: "stuck.pdf", Title: "stuck"})
	require.NoError(t, err)
	started := time.Now().UTC().Add(-2 * time.Hour)
	_, err = docs.UpdateProcessingStatus(ctx, storage.StatusUpdate{
		DocumentID: stuck.Id,
		Status:     core.StatusProcessing,
		StartedAt:  &started,
	})
	require.NoError(t, err)

	// a failed document whose file is gone stays failed
	missing, err := docs.AddDocument(ctx, &core.Document{OwnerId: "o", StoragePath: "gone.pdf", Title: "gone"})
	require.NoError(t, err)
	_, err = docs.UpdateProcessingStatus(ctx, storage.StatusUpdate{DocumentID: missing.Id, Status: core.StatusFailed})
	require.NoError(t, err)

	r, err := NewReprocessor(docs, pipeline, nil, nil)
	require.NoError(t, err)
	summary, err := r.Run(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, summary.Selected)
	assert.Equal(t, 1, summary.Succeeded)
	assert.Equal(t, 1, summary.Failed)
	assert.Contains(t, summary.Failures[missing.Id], "not found")

	got, err := docs.GetDocument(ctx, stuck.Id)
	require.NoError(t, err)
	assert.Equal(t, core.StatusProcessed, got.Status)
	assert.Equal(t, 1, got.ChunkCount)
}
