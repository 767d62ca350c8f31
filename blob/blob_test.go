package blob

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/google/uuid"
	"github.com/poiesic/kbase/core"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// memStore returns a store on a fresh in-memory afs location.
func memStore(t *testing.T) *AFSStore {
	t.Helper()
	store, err := NewAFS("mem://localhost/" + uuid.NewString())
	require.NoError(t, err)
	return store
}

func TestNewAFS_EmptyBaseURL(t *testing.T) {
	_, err := NewAFS("  ")
	assert.ErrorIs(t, err, core.ErrConfiguration)
}

func TestUploadDownloadRemove(t *testing.T) {
	ctx := context.Background()
	store := memStore(t)

	require.NoError(t, store.Upload(ctx, "owner/report.pdf", []byte("%PDF-1.4")))

	data, err := store.Download(ctx, "owner/report.pdf")
	require.NoError(t, err)
	assert.Equal(t, []byte("%PDF-1.4"), data)

	require.NoError(t, store.Upload(ctx, "owner/report.pdf", []byte("replaced")))
	data, err = store.Download(ctx, "owner/report.pdf")
	require.NoError(t, err)
	assert.Equal(t, []byte("replaced"), data)

	require.NoError(t, store.Remove(ctx, "owner/report.pdf"))
	_, err = store.Download(ctx, "owner/report.pdf")
	assert.ErrorIs(t, err, core.ErrNotFound)

	// removing twice is fine
	assert.NoError(t, store.Remove(ctx, "owner/report.pdf"))
}

func TestDownload_Missing(t *testing.T) {
	store := memStore(t)
	_, err := store.Download(context.Background(), "nope.pdf")
	assert.ErrorIs(t, err, core.ErrNotFound)
}

func TestDownload_EmptyPath(t *testing.T) {
	store := memStore(t)
	_, err := store.Download(context.Background(), "")
	assert.ErrorIs(t, err, core.ErrIO)
}

func TestFileScheme(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "a.pdf"), []byte("bytes"), 0o644))

	store, err := NewAFS("file://" + dir)
	require.NoError(t, err)

	data, err := store.Download(context.Background(), "a.pdf")
	require.NoError(t, err)
	assert.Equal(t, []byte("bytes"), data)
}

func TestURL(t *testing.T) {
	store, err := NewAFS("mem://localhost/docs/")
	require.NoError(t, err)
	assert.Equal(t, "mem://localhost/docs/a/b.pdf", store.URL("/a/b.pdf"))
	assert.Equal(t, "mem://localhost/docs/x/b.pdf", store.URL("../../x/b.pdf"))
	assert.Equal(t, "mem://localhost/docs/b.pdf", store.URL("a/../../b.pdf"))
}

func TestUpload_StaysUnderBase(t *testing.T) {
	root := t.TempDir()
	base := filepath.Join(root, "objects")
	store, err := NewAFS("file://" + base)
	require.NoError(t, err)

	require.NoError(t, store.Upload(context.Background(), "../escaped.pdf", []byte("x")))
	assert.NoFileExists(t, filepath.Join(root, "escaped.pdf"))
	assert.FileExists(t, filepath.Join(base, "escaped.pdf"))
}
