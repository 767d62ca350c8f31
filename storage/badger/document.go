package badger

import (
	"context"
	"errors"
	"slices"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/poiesic/kbase/core"
	"github.com/poiesic/kbase/storage"
)

// DocumentRepository implements storage.DocumentRepository for BadgerDB.
type DocumentRepository struct {
	backend *Backend
	idSeq   *badger.Sequence
}

var _ storage.DocumentRepository = (*DocumentRepository)(nil)

// NewDocumentRepository creates a new DocumentRepository.
func NewDocumentRepository(backend *Backend) (*DocumentRepository, error) {
	idSeq, err := backend.GetSequence(documentIDSeq)
	if err != nil {
		return nil, err
	}
	return &DocumentRepository{
		backend: backend,
		idSeq:   idSeq,
	}, nil
}

// Close releases the ID sequence.
func (r *DocumentRepository) Close() error {
	return r.idSeq.Release()
}

// WithTransaction delegates to the backend.
func (r *DocumentRepository) WithTransaction(ctx context.Context, fn func(ctx context.Context) error) error {
	return r.backend.WithTransaction(ctx, fn)
}

// AddDocument stores a new document in the pending state unless a status is set.
func (r *DocumentRepository) AddDocument(ctx context.Context, doc *core.Document) (*core.Document, error) {
	if doc.Status == "" {
		doc.Status = core.StatusPending
	}
	if err := core.ValidateDocument(doc); err != nil {
		return nil, err
	}
	err := r.backend.WithTx(func(tx *badger.Txn) error {
		id, err := nextID(r.idSeq)
		if err != nil {
			return err
		}
		doc.Id = core.ID(id)
		doc.InsertedAt = time.Now().UTC()
		doc.UpdatedAt = doc.InsertedAt
		if err := writeDocument(tx, doc); err != nil {
			return err
		}
		return commit(tx)
	}, true)
	if err != nil {
		return nil, err
	}
	return doc, nil
}

// GetDocument retrieves a single document by ID.
func (r *DocumentRepository) GetDocument(ctx context.Context, id core.ID) (*core.Document, error) {
	var result *core.Document
	err := r.backend.WithTx(func(tx *badger.Txn) error {
		var err error
		result, err = readDocument(tx, id)
		if err != nil {
			return err
		}
		if result == nil {
			return storage.ErrNotFound
		}
		return nil
	}, false)
	return result, err
}

// UpdateDocument replaces the descriptive fields of a stored document.
func (r *DocumentRepository) UpdateDocument(ctx context.Context, doc *core.Document) (*core.Document, error) {
	var result *core.Document
	err := r.backend.WithTx(func(tx *badger.Txn) error {
		stored, err := readDocument(tx, doc.Id)
		if err != nil {
			return err
		}
		if stored == nil {
			return storage.ErrNotFound
		}
		stored.OwnerId = doc.OwnerId
		stored.StoragePath = doc.StoragePath
		stored.Title = doc.Title
		stored.MimeType = doc.MimeType
		stored.SizeBytes = doc.SizeBytes
		stored.EmbeddingModel = doc.EmbeddingModel
		if err := core.ValidateDocument(stored); err != nil {
			return err
		}
		stored.UpdatedAt = time.Now().UTC()
		if err := writeDocument(tx, stored); err != nil {
			return err
		}
		result = stored
		return commit(tx)
	}, true)
	return result, err
}

// DeleteDocument removes a document together with its versions and chunks.
func (r *DocumentRepository) DeleteDocument(ctx context.Context, id core.ID) error {
	return r.backend.WithTx(func(tx *badger.Txn) error {
		doc, err := readDocument(tx, id)
		if err != nil {
			return err
		}
		if doc == nil {
			return storage.ErrNotFound
		}
		versions, err := versionsOf(tx, id)
		if err != nil {
			return err
		}
		for _, version := range versions {
			chunks, err := chunksOf(tx, version.Id)
			if err != nil {
				return err
			}
			for _, chunk := range chunks {
				if err := tx.Delete(makeChunkByVersionKey(version.Id, chunk.Index)); err != nil {
					return err
				}
				if err := tx.Delete(makeChunkKey(chunk.Id)); err != nil {
					return err
				}
			}
			if err := tx.Delete(makeVersionByDocKey(id, version.VersionNo)); err != nil {
				return err
			}
			if err := tx.Delete(makeVersionKey(version.Id)); err != nil {
				return err
			}
		}
		if err := tx.Delete(makeDocumentKey(id)); err != nil {
			return err
		}
		return commit(tx)
	}, true)
}

// ListDocuments returns documents ordered by ID, optionally filtered by status.
func (r *DocumentRepository) ListDocuments(ctx context.Context, statuses ...core.ProcessingStatus) ([]*core.Document, error) {
	var results []*core.Document
	err := r.backend.WithTx(func(tx *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = []byte(documentPrefix)
		it := tx.NewIterator(opts)
		defer it.Close()

		for it.Rewind(); it.Valid(); it.Next() {
			if err := ctx.Err(); err != nil {
				return err
			}
			data, err := it.Item().ValueCopy(nil)
			if err != nil {
				return err
			}
			doc, err := storage.UnmarshalDocument(data)
			if err != nil {
				return err
			}
			if len(statuses) > 0 && !slices.Contains(statuses, doc.Status) {
				continue
			}
			results = append(results, doc)
		}
		return nil
	}, false)
	return results, err
}

// UpdateProcessingStatus applies a status change inside one transaction.
// Concurrent writers on the same document surface as ErrStatusConflict,
// either from the Expected check or from badger's conflict detection.
func (r *DocumentRepository) UpdateProcessingStatus(ctx context.Context, update storage.StatusUpdate) (*core.Document, error) {
	if err := core.ValidateProcessingStatus(update.Status); err != nil {
		return nil, err
	}
	var result *core.Document
	err := r.backend.WithTx(func(tx *badger.Txn) error {
		doc, err := readDocument(tx, update.DocumentID)
		if err != nil {
			return err
		}
		if doc == nil {
			return storage.ErrNotFound
		}
		if len(update.Expected) > 0 && !slices.Contains(update.Expected, doc.Status) {
			return storage.ErrStatusConflict
		}
		update.Apply(doc, time.Now().UTC())
		if err := writeDocument(tx, doc); err != nil {
			return err
		}
		if err := tx.Commit(); err != nil {
			if errors.Is(err, badger.ErrConflict) {
				return storage.ErrStatusConflict
			}
			return err
		}
		result = doc
		return nil
	}, true)
	return result, err
}

// UpdateChunkCount recounts processed chunks of the latest version.
func (r *DocumentRepository) UpdateChunkCount(ctx context.Context, id core.ID) (int, error) {
	var count int
	err := r.backend.WithTx(func(tx *badger.Txn) error {
		doc, err := readDocument(tx, id)
		if err != nil {
			return err
		}
		if doc == nil {
			return storage.ErrNotFound
		}
		count = 0
		version, err := latestVersionOf(tx, doc)
		if err != nil {
			return err
		}
		if version != nil {
			chunks, err := chunksOf(tx, version.Id)
			if err != nil {
				return err
			}
			for _, chunk := range chunks {
				if chunk.Status == core.ChunkProcessed {
					count++
				}
			}
		}
		doc.ChunkCount = count
		doc.UpdatedAt = time.Now().UTC()
		if err := writeDocument(tx, doc); err != nil {
			return err
		}
		return commit(tx)
	}, true)
	return count, err
}
