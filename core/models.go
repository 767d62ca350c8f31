package core

import (
	"encoding/hex"
	"time"
	"unicode/utf8"

	"github.com/go-crypt/x/blake2b"
)

// ID is a unique identifier for domain entities.
// It is generated from database sequences.
type ID uint64

// ProcessingStatus is the ingestion state of a Document.
type ProcessingStatus string

const (
	// StatusPending is assigned on upload, before any processing run.
	StatusPending ProcessingStatus = "pending"
	// StatusProcessing is the only non-terminal state.
	StatusProcessing ProcessingStatus = "processing"
	// StatusProcessed means the latest run persisted every chunk.
	StatusProcessed ProcessingStatus = "processed"
	// StatusFailed means the latest run stopped on an unrecoverable error.
	StatusFailed ProcessingStatus = "failed"
)

// ChunkStatus is the outcome recorded on a single chunk row.
type ChunkStatus string

const (
	ChunkProcessed ChunkStatus = "processed"
	ChunkFailed    ChunkStatus = "failed"
)

// Document represents one uploaded source file.
type Document struct {
	Id          ID
	OwnerId     string
	StoragePath string // Path of the raw bytes in the object store
	Title       string
	MimeType    string
	SizeBytes   int64
	// EmbeddingModel is the model configured by the owning agent.
	// Empty means the pipeline's configured fallback is used.
	EmbeddingModel string
	LatestVersion  int

	Status               ProcessingStatus
	ProcessingError      string
	ProcessingStartedAt  time.Time // zero when never started
	ProcessingFinishedAt time.Time // zero while processing or never finished
	ChunkCount           int

	InsertedAt time.Time
	UpdatedAt  time.Time
}

// DocumentVersion is an immutable snapshot of one successful extraction pass.
type DocumentVersion struct {
	Id             ID
	DocumentId     ID
	VersionNo      int
	Checksum       string // Checksum of the sanitized extracted text
	ExtractionMode string // "structured" or "raw_fallback"
	PageCount      int
	RunId          string // Processing run that produced this version
	InsertedAt     time.Time
}

// Chunk is one unit of retrievable text. Chunks are write-once.
type Chunk struct {
	Id             ID
	DocumentId     ID
	VersionId      ID
	Index          int // Ordinal within the version, contiguous from 0
	Content        string
	Vector         []float32 // nil when Status is ChunkFailed
	TokenCount     int
	PageStart      int
	PageEnd        int
	OverlapStart   int // Characters shared with the previous chunk
	OverlapEnd     int // Characters shared with the next chunk
	EmbeddingModel string
	Status         ChunkStatus
	Error          string
	InsertedAt     time.Time
}

// PageBoundary marks the character offset where a page starts in extracted text.
type PageBoundary struct {
	Page   int
	Offset int
}

// ChunkMatch is a chunk returned from vector similarity search.
type ChunkMatch struct {
	Chunk      *Chunk
	Similarity float32
}

// Checksum returns the hex BLAKE2b-256 digest of text.
// Identical text always produces the identical checksum.
func Checksum(text string) string {
	h, _ := blake2b.New(32, nil) // unkeyed, 32 bytes never fails
	h.Write([]byte(text))
	return hex.EncodeToString(h.Sum(nil))
}

// EstimateTokens returns ceil(characters / 4).
func EstimateTokens(text string) int {
	n := utf8.RuneCountInString(text)
	return (n + 3) / 4
}
