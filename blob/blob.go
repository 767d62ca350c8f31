// Package blob fetches and stores the raw bytes of uploaded documents.
//
// Objects are addressed by a storage path relative to a base URL. Any scheme
// supported by github.com/viant/afs works as base URL: file://, mem://, gs://
// and s3:// among others.
package blob

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	pathpkg "path"
	"strings"

	"github.com/poiesic/kbase/core"
	"github.com/viant/afs"
	"github.com/viant/afs/file"
	"github.com/viant/afs/url"
)

// ObjectStore is the object store collaborator of the ingestion pipeline.
type ObjectStore interface {
	// Download returns the full contents of the object at path.
	// Returns core.ErrNotFound when the object does not exist and core.ErrIO
	// for any other failure.
	Download(ctx context.Context, path string) ([]byte, error)
	// Upload writes data to path, replacing any existing object.
	Upload(ctx context.Context, path string, data []byte) error
	// Remove deletes the object at path. Removing a missing object is not an error.
	Remove(ctx context.Context, path string) error
}

// AFSStore implements ObjectStore on an afs.Service.
type AFSStore struct {
	fs      afs.Service
	baseURL string
	logger  *slog.Logger
}

var _ ObjectStore = (*AFSStore)(nil)

// NewAFS creates an object store rooted at baseURL.
func NewAFS(baseURL string) (*AFSStore, error) {
	if strings.TrimSpace(baseURL) == "" {
		return nil, fmt.Errorf("%w: object store base URL is empty", core.ErrConfiguration)
	}
	return &AFSStore{
		fs:      afs.New(),
		baseURL: strings.TrimRight(baseURL, "/"),
		logger:  slog.Default().With("component", "blob"),
	}, nil
}

// URL returns the absolute URL of path. Dot segments are resolved against
// the base, so no path addresses an object outside it.
func (s *AFSStore) URL(path string) string {
	return url.Join(s.baseURL, strings.TrimLeft(pathpkg.Clean("/"+path), "/"))
}

func (s *AFSStore) Download(ctx context.Context, path string) ([]byte, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("%w: %w", core.ErrIO, core.ErrEmptyStoragePath)
	}
	location := s.URL(path)
	exists, err := s.fs.Exists(ctx, location)
	if err != nil {
		return nil, fmt.Errorf("%w: checking %s: %w", core.ErrIO, path, err)
	}
	if !exists {
		return nil, fmt.Errorf("%w: object %s", core.ErrNotFound, path)
	}
	data, err := s.fs.DownloadWithURL(ctx, location)
	if err != nil {
		return nil, fmt.Errorf("%w: downloading %s: %w", core.ErrIO, path, err)
	}
	s.logger.Debug("downloaded object", "path", path, "bytes", len(data))
	return data, nil
}

func (s *AFSStore) Upload(ctx context.Context, path string, data []byte) error {
	if strings.TrimSpace(path) == "" {
		return fmt.Errorf("%w: %w", core.ErrIO, core.ErrEmptyStoragePath)
	}
	if err := s.fs.Upload(ctx, s.URL(path), file.DefaultFileOsMode, bytes.NewReader(data)); err != nil {
		return fmt.Errorf("%w: uploading %s: %w", core.ErrIO, path, err)
	}
	s.logger.Debug("uploaded object", "path", path, "bytes", len(data))
	return nil
}

func (s *AFSStore) Remove(ctx context.Context, path string) error {
	location := s.URL(path)
	exists, err := s.fs.Exists(ctx, location)
	if err != nil {
		return fmt.Errorf("%w: checking %s: %w", core.ErrIO, path, err)
	}
	if !exists {
		return nil
	}
	if err := s.fs.Delete(ctx, location); err != nil {
		return fmt.Errorf("%w: removing %s: %w", core.ErrIO, path, err)
	}
	return nil
}
