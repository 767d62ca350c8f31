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

// Package kbase wires storage, object storage, and the embedding provider
// into a document knowledge base: upload documents, process them into
// embedded chunks, and search them.
package kbase

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"path"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
	"github.com/poiesic/kbase/ai"
	"github.com/poiesic/kbase/ai/openai"
	"github.com/poiesic/kbase/blob"
	"github.com/poiesic/kbase/core"
	"github.com/poiesic/kbase/ingestion"
	"github.com/poiesic/kbase/reprocess"
	"github.com/poiesic/kbase/search"
	"github.com/poiesic/kbase/storage"
	"github.com/poiesic/kbase/storage/badger"
	"github.com/poiesic/kbase/storage/sqlite"
)

// Backend names a storage implementation.
type Backend string

const (
	BackendBadger Backend = "badger"
	BackendSQLite Backend = "sqlite"
)

// Layout of the data directory.
const (
	ObjectsDir = "objects"
	BadgerDir  = "badger"
)

// Database is the application facade over documents, their files and the
// embedding provider.
type Database struct {
	docs     storage.DocumentRepository
	versions storage.VersionRepository
	chunks   storage.ChunkRepository
	objects  blob.ObjectStore
	provider ai.AIProvider
	config   ingestion.Config
	closers  []io.Closer
	logger   *slog.Logger
}

// DatabaseOption configures a Database.
type DatabaseOption func(*databaseOptions)

type databaseOptions struct {
	backend        Backend
	inMemory       bool
	aiConfig       *ai.Config
	provider       ai.AIProvider
	objectStoreURL string
	objects        blob.ObjectStore
	config         ingestion.Config
	logger         *slog.Logger
}

// WithBackend selects the storage backend. Default is BackendBadger.
func WithBackend(backend Backend) DatabaseOption {
	return func(o *databaseOptions) {
		o.backend = backend
	}
}

// InMemory keeps all data in memory: storage and, unless another object
// store is configured, uploaded files.
func InMemory() DatabaseOption {
	return func(o *databaseOptions) {
		o.inMemory = true
	}
}

// WithAIConfig configures the OpenAI-compatible provider.
func WithAIConfig(cfg *ai.Config) DatabaseOption {
	return func(o *databaseOptions) {
		o.aiConfig = cfg
	}
}

// WithProvider uses provider instead of building one from the AI config.
// The Database closes it.
func WithProvider(provider ai.AIProvider) DatabaseOption {
	return func(o *databaseOptions) {
		o.provider = provider
	}
}

// WithObjectStoreURL stores uploaded files under an afs URL such as
// "file:///var/lib/kbase/objects", "s3://bucket/prefix" or "gs://bucket".
func WithObjectStoreURL(url string) DatabaseOption {
	return func(o *databaseOptions) {
		o.objectStoreURL = url
	}
}

// WithObjectStore uses store for uploaded files.
func WithObjectStore(store blob.ObjectStore) DatabaseOption {
	return func(o *databaseOptions) {
		o.objects = store
	}
}

// WithIngestionConfig sets the pipeline settings used by upload limits and
// by pipelines created with NewIngestionPipeline.
func WithIngestionConfig(cfg ingestion.Config) DatabaseOption {
	return func(o *databaseOptions) {
		o.config = cfg
	}
}

// WithLogger sets a custom logger.
func WithLogger(logger *slog.Logger) DatabaseOption {
	return func(o *databaseOptions) {
		o.logger = logger
	}
}

// NewDatabase opens the knowledge base stored in dataDir.
func NewDatabase(dataDir string, opts ...DatabaseOption) (*Database, error) {
	options := &databaseOptions{
		backend:  BackendBadger,
		aiConfig: ai.DefaultConfig(),
		config:   ingestion.DefaultConfig(),
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(options)
	}

	db := &Database{
		config: options.config,
		logger: options.logger.With("component", "kbase"),
	}
	if err := db.openStorage(dataDir, options); err != nil {
		return nil, err
	}

	objects, err := openObjects(dataDir, options)
	if err != nil {
		db.closeStorage()
		return nil, err
	}
	db.objects = objects

	provider := options.provider
	if provider == nil {
		provider, err = openai.NewProvider(options.aiConfig)
		if err != nil {
			db.closeStorage()
			return nil, err
		}
	}
	db.provider = provider

	return db, nil
}

func (db *Database) openStorage(dataDir string, options *databaseOptions) error {
	if dataDir == "" && !options.inMemory {
		return fmt.Errorf("%w: data directory is required", core.ErrConfiguration)
	}
	dir := dataDir
	if options.inMemory {
		dir = ""
	}

	switch options.backend {
	case BackendBadger:
		if dir != "" {
			dir = filepath.Join(dir, BadgerDir)
		}
		backend, err := badger.OpenBackend(dir, options.inMemory)
		if err != nil {
			return err
		}
		docs, versions, chunks, backend, err := badger.NewRepositories(backend)
		if err != nil {
			return err
		}
		db.docs, db.versions, db.chunks = docs, versions, chunks
		db.closers = []io.Closer{chunks, versions, docs, backend}
	case BackendSQLite:
		store, err := sqlite.NewStore(dir)
		if err != nil {
			return err
		}
		db.docs, db.versions, db.chunks = store, store, store
		db.closers = []io.Closer{store}
	default:
		return fmt.Errorf("%w: unknown storage backend %q", core.ErrConfiguration, options.backend)
	}
	return nil
}

func openObjects(dataDir string, options *databaseOptions) (blob.ObjectStore, error) {
	if options.objects != nil {
		return options.objects, nil
	}
	url := options.objectStoreURL
	if url == "" {
		if options.inMemory {
			url = "mem://localhost/" + uuid.NewString()
		} else {
			abs, err := filepath.Abs(filepath.Join(dataDir, ObjectsDir))
			if err != nil {
				return nil, err
			}
			url = "file://" + filepath.ToSlash(abs)
		}
	}
	return blob.NewAFS(url)
}

// UploadRequest describes a new document.
type UploadRequest struct {
	OwnerId  string
	Filename string
	Title    string
	MimeType string
	// EmbeddingModel overrides the pipeline's model for this document.
	EmbeddingModel string
	Data           []byte
}

// UploadDocument stores the file and adds a pending document for it.
// Files larger than the configured maximum are rejected with
// core.ErrUploadTooLarge before anything is stored.
func (db *Database) UploadDocument(ctx context.Context, req UploadRequest) (*core.Document, error) {
	limit := db.config.MaxUploadBytes
	if limit <= 0 {
		limit = ingestion.DefaultMaxUploadBytes
	}
	if int64(len(req.Data)) > limit {
		return nil, fmt.Errorf("%w: %d bytes exceeds the %d byte limit", core.ErrUploadTooLarge, len(req.Data), limit)
	}

	if err := core.ValidateOwnerID(req.OwnerId); err != nil {
		return nil, err
	}

	name := path.Base(filepath.ToSlash(strings.TrimSpace(req.Filename)))
	if name == "." || name == "/" {
		name = "document"
	}
	owner := req.OwnerId
	if owner == "" {
		owner = "default"
	}
	storagePath := path.Join(owner, uuid.NewString()+"-"+name)

	title := req.Title
	if title == "" {
		title = name
	}
	mimeType := req.MimeType
	if mimeType == "" {
		mimeType = "application/pdf"
	}

	if err := db.objects.Upload(ctx, storagePath, req.Data); err != nil {
		return nil, err
	}
	doc, err := db.docs.AddDocument(ctx, &core.Document{
		OwnerId:        req.OwnerId,
		StoragePath:    storagePath,
		Title:          title,
		MimeType:       mimeType,
		SizeBytes:      int64(len(req.Data)),
		EmbeddingModel: req.EmbeddingModel,
		Status:         core.StatusPending,
	})
	if err != nil {
		if rmErr := db.objects.Remove(ctx, storagePath); rmErr != nil {
			db.logger.Warn("failed to remove orphaned upload", "path", storagePath, "err", rmErr)
		}
		return nil, err
	}
	db.logger.Info("document uploaded", "documentId", doc.Id, "path", storagePath, "bytes", len(req.Data))
	return doc, nil
}

// GetDocument returns a document by ID.
func (db *Database) GetDocument(ctx context.Context, id core.ID) (*core.Document, error) {
	doc, err := db.docs.GetDocument(ctx, id)
	if errors.Is(err, storage.ErrNotFound) {
		return nil, fmt.Errorf("%w: document %d", core.ErrNotFound, id)
	}
	return doc, err
}

// ListDocuments returns documents, optionally filtered by status.
func (db *Database) ListDocuments(ctx context.Context, statuses ...core.ProcessingStatus) ([]*core.Document, error) {
	return db.docs.ListDocuments(ctx, statuses...)
}

// DeleteDocument removes the document with its versions and chunks, then
// the stored file. A file that cannot be removed is logged and left behind;
// the document is already gone.
func (db *Database) DeleteDocument(ctx context.Context, id core.ID) error {
	doc, err := db.GetDocument(ctx, id)
	if err != nil {
		return err
	}
	if err := db.docs.DeleteDocument(ctx, id); err != nil {
		return err
	}
	if err := db.objects.Remove(ctx, doc.StoragePath); err != nil {
		db.logger.Warn("failed to remove stored file", "documentId", id, "path", doc.StoragePath, "err", err)
	}
	db.logger.Info("document deleted", "documentId", id)
	return nil
}

// Close releases the provider and the storage.
func (db *Database) Close() error {
	var errs []error
	if err := db.provider.Close(); err != nil {
		db.logger.Error("error closing AI provider", "err", err)
		errs = append(errs, err)
	}
	errs = append(errs, db.closeStorage())
	return errors.Join(errs...)
}

func (db *Database) closeStorage() error {
	var errs []error
	for _, c := range db.closers {
		if err := c.Close(); err != nil {
			db.logger.Error("error closing storage", "err", err)
			errs = append(errs, err)
		}
	}
	db.closers = nil
	return errors.Join(errs...)
}

func (db *Database) Documents() storage.DocumentRepository {
	return db.docs
}

func (db *Database) Versions() storage.VersionRepository {
	return db.versions
}

func (db *Database) Chunks() storage.ChunkRepository {
	return db.chunks
}

func (db *Database) ObjectStore() blob.ObjectStore {
	return db.objects
}

func (db *Database) Provider() ai.AIProvider {
	return db.provider
}

// NewIngestionPipeline creates a pipeline with the database's settings.
// Later options override them. Callers must Release the pipeline.
func (db *Database) NewIngestionPipeline(opts ...ingestion.Option) (*ingestion.Pipeline, error) {
	opts = append([]ingestion.Option{
		ingestion.WithConfig(db.config),
		ingestion.WithLogger(db.logger),
	}, opts...)
	return ingestion.NewPipeline(db.docs, db.versions, db.chunks, db.objects, db.provider, opts...)
}

func (db *Database) NewSearcher(opts ...search.Option) (*search.Searcher, error) {
	if db.config.EmbeddingModel != "" {
		opts = append([]search.Option{search.WithModel(db.config.EmbeddingModel)}, opts...)
	}
	return search.NewSearcher(db.chunks, db.provider, opts...)
}

// NewReprocessor creates a reprocessor that runs pipeline over selected documents.
func (db *Database) NewReprocessor(pipeline *ingestion.Pipeline, config *reprocess.Config, progress io.Writer) (*reprocess.Reprocessor, error) {
	return reprocess.NewReprocessor(db.docs, pipeline, config, progress)
}
