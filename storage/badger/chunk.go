package badger

import (
	"context"
	"fmt"
	"slices"
	"sort"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/poiesic/kbase/core"
	"github.com/poiesic/kbase/storage"
)

// ChunkRepository implements storage.ChunkRepository for BadgerDB.
type ChunkRepository struct {
	backend *Backend
	idSeq   *badger.Sequence
}

var _ storage.ChunkRepository = (*ChunkRepository)(nil)

// NewChunkRepository creates a new ChunkRepository.
func NewChunkRepository(backend *Backend) (*ChunkRepository, error) {
	idSeq, err := backend.GetSequence(chunkIDSeq)
	if err != nil {
		return nil, err
	}
	return &ChunkRepository{
		backend: backend,
		idSeq:   idSeq,
	}, nil
}

// Close releases the ID sequence.
func (r *ChunkRepository) Close() error {
	return r.idSeq.Release()
}

// WithTransaction delegates to the backend.
func (r *ChunkRepository) WithTransaction(ctx context.Context, fn func(ctx context.Context) error) error {
	return r.backend.WithTransaction(ctx, fn)
}

// AddChunks stores chunk rows. A (version, index) pair is written at most once.
func (r *ChunkRepository) AddChunks(ctx context.Context, chunks ...*core.Chunk) ([]*core.Chunk, error) {
	for _, chunk := range chunks {
		if err := core.ValidateChunk(chunk); err != nil {
			return nil, err
		}
	}
	err := r.backend.WithTx(func(tx *badger.Txn) error {
		for _, chunk := range chunks {
			version, err := readVersion(tx, chunk.VersionId)
			if err != nil {
				return err
			}
			if version == nil || version.DocumentId != chunk.DocumentId {
				return fmt.Errorf("%w: version %d of document %d", storage.ErrNotFound, chunk.VersionId, chunk.DocumentId)
			}
			indexKey := makeChunkByVersionKey(chunk.VersionId, chunk.Index)
			existing, err := readValue(tx, indexKey)
			if err != nil {
				return err
			}
			if existing != nil {
				return fmt.Errorf("%w: chunk %d of version %d already stored", storage.ErrInvalidQuery, chunk.Index, chunk.VersionId)
			}

			id, err := nextID(r.idSeq)
			if err != nil {
				return err
			}
			chunk.Id = core.ID(id)
			chunk.InsertedAt = time.Now().UTC()

			if err := tx.Set(makeChunkKey(chunk.Id), storage.MarshalChunk(chunk)); err != nil {
				return err
			}
			if err := tx.Set(indexKey, storage.MarshalID(chunk.Id)); err != nil {
				return err
			}
		}
		return commit(tx)
	}, true)
	if err != nil {
		return nil, err
	}
	return chunks, nil
}

// GetChunks returns the chunks of a version ordered by index.
func (r *ChunkRepository) GetChunks(ctx context.Context, versionID core.ID) ([]*core.Chunk, error) {
	var results []*core.Chunk
	err := r.backend.WithTx(func(tx *badger.Txn) error {
		var err error
		results, err = chunksOf(tx, versionID)
		return err
	}, false)
	return results, err
}

// MatchChunks scans the processed chunks of each document's latest version
// and ranks them by cosine similarity to query.
func (r *ChunkRepository) MatchChunks(ctx context.Context, query []float32, documentIDs []core.ID, matchCount int, threshold float32) ([]*core.ChunkMatch, error) {
	if len(query) == 0 || matchCount <= 0 {
		return nil, storage.ErrInvalidQuery
	}
	var matches []*core.ChunkMatch
	err := r.backend.WithTx(func(tx *badger.Txn) error {
		docs, err := r.targetDocuments(tx, documentIDs)
		if err != nil {
			return err
		}
		for _, doc := range docs {
			if err := ctx.Err(); err != nil {
				return err
			}
			version, err := latestVersionOf(tx, doc)
			if err != nil {
				return err
			}
			if version == nil {
				continue
			}
			chunks, err := chunksOf(tx, version.Id)
			if err != nil {
				return err
			}
			for _, chunk := range chunks {
				if chunk.Status != core.ChunkProcessed || len(chunk.Vector) == 0 {
					continue
				}
				similarity := storage.CosineSimilarity(query, chunk.Vector)
				if similarity < threshold {
					continue
				}
				matches = append(matches, &core.ChunkMatch{Chunk: chunk, Similarity: similarity})
			}
		}
		return nil
	}, false)
	if err != nil {
		return nil, err
	}

	sort.SliceStable(matches, func(i, j int) bool {
		return matches[i].Similarity > matches[j].Similarity
	})
	if len(matches) > matchCount {
		matches = matches[:matchCount]
	}
	return matches, nil
}

// targetDocuments resolves the documents a match covers. Unknown IDs are skipped.
func (r *ChunkRepository) targetDocuments(tx *badger.Txn, documentIDs []core.ID) ([]*core.Document, error) {
	if len(documentIDs) > 0 {
		ids := slices.Clone(documentIDs)
		slices.Sort(ids)
		ids = slices.Compact(ids)
		docs := make([]*core.Document, 0, len(ids))
		for _, id := range ids {
			doc, err := readDocument(tx, id)
			if err != nil {
				return nil, err
			}
			if doc != nil {
				docs = append(docs, doc)
			}
		}
		return docs, nil
	}

	opts := badger.DefaultIteratorOptions
	opts.Prefix = []byte(documentPrefix)
	it := tx.NewIterator(opts)
	defer it.Close()

	var docs []*core.Document
	for it.Rewind(); it.Valid(); it.Next() {
		data, err := it.Item().ValueCopy(nil)
		if err != nil {
			return nil, err
		}
		doc, err := storage.UnmarshalDocument(data)
		if err != nil {
			return nil, err
		}
		docs = append(docs, doc)
	}
	return docs, nil
}
