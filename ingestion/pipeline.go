package ingestion

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/panjf2000/ants/v2"
	"github.com/poiesic/kbase/ai"
	"github.com/poiesic/kbase/blob"
	"github.com/poiesic/kbase/chunking"
	"github.com/poiesic/kbase/core"
	"github.com/poiesic/kbase/extract"
	"github.com/poiesic/kbase/retry"
	"github.com/poiesic/kbase/storage"
)

// Pipeline processes uploaded documents into embedded chunks.
// It is safe for concurrent use; concurrent runs on one document are
// rejected by the status compare-and-swap.
type Pipeline struct {
	docs     storage.DocumentRepository
	versions storage.VersionRepository
	chunks   storage.ChunkRepository
	objects  blob.ObjectStore
	provider ai.AIProvider

	config    Config
	chunker   *chunking.Chunker
	extractor *extract.Extractor
	retry     *retry.Policy
	pool      *ants.Pool
	now       func() time.Time
	logger    *slog.Logger
}

// Option configures a Pipeline.
type Option func(*Pipeline) error

// WithConfig replaces the pipeline settings. Zero fields take defaults.
func WithConfig(cfg Config) Option {
	return func(p *Pipeline) error {
		p.config = cfg
		return nil
	}
}

// WithLogger sets a custom logger.
// Default is slog.Default().
func WithLogger(logger *slog.Logger) Option {
	return func(p *Pipeline) error {
		if logger == nil {
			logger = slog.Default()
		}
		p.logger = logger
		return nil
	}
}

// WithRetryPolicy replaces the per-chunk embedding retry policy.
func WithRetryPolicy(policy retry.Policy) Option {
	return func(p *Pipeline) error {
		if policy.MaxAttempts <= 0 {
			return fmt.Errorf("%w: %w", core.ErrConfiguration, retry.ErrInvalidMaxAttempts)
		}
		p.retry = &policy
		return nil
	}
}

// WithClock sets the time source for status timestamps.
func WithClock(now func() time.Time) Option {
	return func(p *Pipeline) error {
		if now != nil {
			p.now = now
		}
		return nil
	}
}

// NewPipeline creates a new ingestion pipeline.
func NewPipeline(
	docs storage.DocumentRepository,
	versions storage.VersionRepository,
	chunks storage.ChunkRepository,
	objects blob.ObjectStore,
	provider ai.AIProvider,
	opts ...Option,
) (*Pipeline, error) {
	if docs == nil {
		return nil, ErrDocumentRepositoryRequired
	}
	if versions == nil {
		return nil, ErrVersionRepositoryRequired
	}
	if chunks == nil {
		return nil, ErrChunkRepositoryRequired
	}
	if objects == nil {
		return nil, ErrObjectStoreRequired
	}
	if provider == nil {
		return nil, ErrAIProviderRequired
	}

	p := &Pipeline{
		docs:     docs,
		versions: versions,
		chunks:   chunks,
		objects:  objects,
		provider: provider,
		config:   DefaultConfig(),
		now:      func() time.Time { return time.Now().UTC() },
		logger:   slog.Default(),
	}

	for _, opt := range opts {
		if err := opt(p); err != nil {
			return nil, err
		}
	}

	p.config = p.config.withDefaults()
	if err := p.config.Validate(); err != nil {
		return nil, err
	}
	p.logger = p.logger.With("component", "ingestion")

	chunker, err := chunking.New(p.config.MaxChunkSize, p.config.ChunkOverlap)
	if err != nil {
		return nil, err
	}
	p.chunker = chunker
	p.extractor = extract.New(extract.WithLogger(p.logger))

	if p.retry == nil {
		policy := retry.Default(p.config.RetryAttempts, p.config.RetryBaseDelay)
		p.retry = &policy
	}
	if p.retry.Retryable == nil {
		p.retry.Retryable = retryable
	}
	if p.retry.Logger == nil {
		p.retry.Logger = p.logger
	}

	pool, err := ants.NewPool(p.config.MaxConcurrentEmbeddings)
	if err != nil {
		return nil, err
	}
	p.pool = pool

	return p, nil
}

// Config returns the effective settings.
func (p *Pipeline) Config() Config {
	return p.config
}

// ProcessDocument runs the pipeline for one document. It never returns a Go
// error: every failure is reported in the Result and, when the document was
// claimed, recorded on the document as status failed.
func (p *Pipeline) ProcessDocument(ctx context.Context, id core.ID) *Result {
	return p.run(ctx, id, false)
}

// Reprocess runs the pipeline like ProcessDocument but also claims a document
// left in processing by an aborted run.
func (p *Pipeline) Reprocess(ctx context.Context, id core.ID) *Result {
	return p.run(ctx, id, true)
}

// run is one processing run.
type run struct {
	id     string
	doc    *core.Document
	model  string
	logger *slog.Logger
}

func (p *Pipeline) run(ctx context.Context, id core.ID, force bool) *Result {
	r := &run{
		id:     uuid.NewString(),
		logger: p.logger.With("documentId", id),
	}
	r.logger = r.logger.With("runId", r.id)

	doc, err := p.docs.GetDocument(ctx, id)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			err = fmt.Errorf("%w: document %d", core.ErrNotFound, id)
		}
		r.logger.Error("failed to load document", "error", err)
		return failure(err)
	}
	r.doc = doc
	r.model = p.modelFor(doc)

	if _, err := p.start(ctx, r, force); err != nil {
		r.logger.Warn("processing run rejected", "error", err)
		return failure(err)
	}
	r.logger.Info("processing started", "path", doc.StoragePath, "model", r.model)

	version, processed, err := p.process(ctx, r)
	if err != nil {
		r.logger.Error("processing failed", "error", err)
		p.fail(ctx, r, err)
		return failure(err)
	}

	if _, err := p.finish(ctx, r); err != nil {
		r.logger.Error("failed to mark document processed", "error", err)
		p.fail(ctx, r, err)
		return failure(err)
	}

	r.logger.Info("processing finished", "versionId", version.Id, "chunks", processed)
	return &Result{
		Success:         true,
		ChunksProcessed: processed,
		VersionID:       version.Id,
	}
}

// process runs the stages between claiming and finishing a document.
func (p *Pipeline) process(ctx context.Context, r *run) (*core.DocumentVersion, int, error) {
	data, err := p.objects.Download(ctx, r.doc.StoragePath)
	if err != nil {
		return nil, 0, err
	}
	if int64(len(data)) > p.config.MaxUploadBytes {
		return nil, 0, fmt.Errorf("%w: %d bytes exceeds the %d byte limit", core.ErrUploadTooLarge, len(data), p.config.MaxUploadBytes)
	}

	extraction, err := p.extractor.Extract(data)
	if err != nil {
		return nil, 0, err
	}
	if extraction.Mode == extract.ModeRawFallback {
		r.logger.Warn("using raw text fallback", "parseError", extraction.ParseError)
	}

	segments := p.chunker.Split(extraction.Text, extraction.Pages)
	if len(segments) == 0 {
		return nil, 0, fmt.Errorf("%w: %w", core.ErrNoExtractableText, ErrNoChunks)
	}

	version, err := p.addVersion(ctx, r, extraction)
	if err != nil {
		return nil, 0, err
	}
	r.logger.Debug("chunked text", "chunks", len(segments), "versionNo", version.VersionNo)

	processed, err := p.embedAndPersist(ctx, r, version, segments)
	if err != nil {
		return nil, 0, err
	}
	return version, processed, nil
}

// addVersion records a new version of the extracted text.
func (p *Pipeline) addVersion(ctx context.Context, r *run, extraction *extract.Extraction) (*core.DocumentVersion, error) {
	checksum := core.Checksum(extraction.Text)

	previous, err := p.versions.LatestVersion(ctx, r.doc.Id)
	switch {
	case err == nil:
		if previous.Checksum == checksum {
			r.logger.Info("extracted text unchanged since previous version", "versionNo", previous.VersionNo)
		}
	case errors.Is(err, storage.ErrNotFound):
	default:
		return nil, fmt.Errorf("%w: reading latest version: %w", core.ErrPersistence, err)
	}

	version, err := p.versions.AddVersion(ctx, &core.DocumentVersion{
		DocumentId:     r.doc.Id,
		Checksum:       checksum,
		ExtractionMode: string(extraction.Mode),
		PageCount:      extraction.PageCount(),
		RunId:          r.id,
	})
	if err != nil {
		return nil, fmt.Errorf("%w: adding version: %w", core.ErrPersistence, err)
	}
	return version, nil
}

// modelFor returns the embedding model for doc.
func (p *Pipeline) modelFor(doc *core.Document) string {
	if doc.EmbeddingModel != "" {
		return doc.EmbeddingModel
	}
	if p.config.EmbeddingModel != "" {
		return p.config.EmbeddingModel
	}
	return p.provider.DefaultModel()
}

// Release releases resources including worker pools.
// The pipeline should not be used after calling Release.
func (p *Pipeline) Release() {
	if p.pool != nil {
		p.pool.Release()
	}
}

// retryable reports whether an embedding error may be retried.
func retryable(err error) bool {
	return !errors.Is(err, context.Canceled) && !errors.Is(err, context.DeadlineExceeded)
}
