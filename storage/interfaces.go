package storage

import (
	"context"
	"time"

	"github.com/poiesic/kbase/core"
)

// Repository provides common storage operations shared across all repositories.
// Implementations must be thread-safe and support concurrent access.
type Repository interface {
	// WithTransaction executes a function within a transaction.
	// If fn returns an error, the transaction is rolled back.
	// If fn returns nil, the transaction is committed.
	WithTransaction(ctx context.Context, fn func(ctx context.Context) error) error

	// Close releases resources held by the repository.
	Close() error
}

// StatusUpdate describes one document status change.
// It is the argument of the update_document_processing_status procedure.
type StatusUpdate struct {
	DocumentID core.ID
	Status     core.ProcessingStatus
	// Error is stored as the processing error. Empty clears it.
	Error string
	// Expected, when non-empty, makes the update conditional: it is applied only
	// if the stored status is one of these values. Otherwise ErrStatusConflict.
	Expected []core.ProcessingStatus
	// StartedAt and FinishedAt overwrite the stored timestamps when non-nil.
	// A pointer to the zero time clears the stored value.
	StartedAt  *time.Time
	FinishedAt *time.Time
	// ChunkCount overwrites the stored chunk count when non-nil.
	ChunkCount *int
}

// DocumentRepository provides operations for managing documents.
type DocumentRepository interface {
	Repository

	// AddDocument stores a new document.
	// Generates a new ID from sequence and sets InsertedAt.
	AddDocument(ctx context.Context, doc *core.Document) (*core.Document, error)

	// GetDocument retrieves a single document by ID.
	// Returns ErrNotFound if the document doesn't exist.
	GetDocument(ctx context.Context, id core.ID) (*core.Document, error)

	// UpdateDocument replaces descriptive fields of an existing document.
	// Processing status fields are only written by UpdateProcessingStatus.
	// Returns ErrNotFound if the document doesn't exist.
	UpdateDocument(ctx context.Context, doc *core.Document) (*core.Document, error)

	// DeleteDocument removes a document with its versions and chunks.
	// Returns ErrNotFound if the document doesn't exist.
	DeleteDocument(ctx context.Context, id core.ID) error

	// ListDocuments returns documents ordered by ID.
	// When statuses are given only documents in one of them are returned.
	ListDocuments(ctx context.Context, statuses ...core.ProcessingStatus) ([]*core.Document, error)

	// UpdateProcessingStatus atomically applies a status change and returns the
	// stored document. Returns ErrNotFound for unknown documents and
	// ErrStatusConflict when update.Expected does not match.
	UpdateProcessingStatus(ctx context.Context, update StatusUpdate) (*core.Document, error)

	// UpdateChunkCount recomputes the chunk count from the processed chunks of
	// the document's latest version, stores it and returns it.
	UpdateChunkCount(ctx context.Context, id core.ID) (int, error)
}

// VersionRepository provides operations for managing document versions.
type VersionRepository interface {
	Repository

	// AddVersion stores a new version. The version number is assigned as the
	// document's latest version + 1 and the document is updated in the same
	// transaction. Returns ErrNotFound if the document doesn't exist.
	AddVersion(ctx context.Context, version *core.DocumentVersion) (*core.DocumentVersion, error)

	// GetVersion retrieves a single version by ID.
	// Returns ErrNotFound if the version doesn't exist.
	GetVersion(ctx context.Context, id core.ID) (*core.DocumentVersion, error)

	// ListVersions returns all versions of a document ordered by version number.
	ListVersions(ctx context.Context, documentID core.ID) ([]*core.DocumentVersion, error)

	// LatestVersion returns the version with the highest number.
	// Returns ErrNotFound if the document has no versions.
	LatestVersion(ctx context.Context, documentID core.ID) (*core.DocumentVersion, error)
}

// ChunkRepository provides operations for managing chunks.
type ChunkRepository interface {
	Repository

	// AddChunks stores new chunk rows. Existing rows are never updated.
	// Generates IDs from sequence and sets InsertedAt.
	AddChunks(ctx context.Context, chunks ...*core.Chunk) ([]*core.Chunk, error)

	// GetChunks returns the chunks of a version ordered by index.
	GetChunks(ctx context.Context, versionID core.ID) ([]*core.Chunk, error)

	// MatchChunks finds processed chunks of the latest versions of the given
	// documents whose cosine similarity to query is >= threshold.
	// Results are ordered by similarity (highest first), up to matchCount.
	// An empty documentIDs searches every document.
	MatchChunks(ctx context.Context, query []float32, documentIDs []core.ID, matchCount int, threshold float32) ([]*core.ChunkMatch, error)
}

// Apply copies the fields carried by u onto doc and stamps UpdatedAt with now.
func (u StatusUpdate) Apply(doc *core.Document, now time.Time) {
	doc.Status = u.Status
	doc.ProcessingError = u.Error
	if u.StartedAt != nil {
		doc.ProcessingStartedAt = *u.StartedAt
	}
	if u.FinishedAt != nil {
		doc.ProcessingFinishedAt = *u.FinishedAt
	}
	if u.ChunkCount != nil {
		doc.ChunkCount = *u.ChunkCount
	}
	doc.UpdatedAt = now
}
