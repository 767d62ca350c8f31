package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"sort"
	"time"

	"github.com/poiesic/kbase/core"
	"github.com/poiesic/kbase/storage"
)

const chunkColumns = `c.id, c.document_id, c.version_id, c.chunk_index, c.content, c.embedding,
	c.token_count, c.page_start, c.page_end, c.overlap_start, c.overlap_end,
	c.embedding_model, c.status, c.error, c.inserted_at`

// AddChunks inserts chunk rows. The (version, index) pair is unique.
func (s *Store) AddChunks(ctx context.Context, chunks ...*core.Chunk) ([]*core.Chunk, error) {
	for _, chunk := range chunks {
		if err := core.ValidateChunk(chunk); err != nil {
			return nil, err
		}
	}
	err := s.WithTransaction(ctx, func(ctx context.Context) error {
		for _, chunk := range chunks {
			version, err := s.GetVersion(ctx, chunk.VersionId)
			if err != nil {
				return err
			}
			if version.DocumentId != chunk.DocumentId {
				return fmt.Errorf("%w: version %d of document %d", storage.ErrNotFound, chunk.VersionId, chunk.DocumentId)
			}
			chunk.InsertedAt = time.Now().UTC()
			res, err := s.conn(ctx).ExecContext(ctx, `
				INSERT INTO document_chunks (document_id, version_id, chunk_index, content, embedding,
					token_count, page_start, page_end, overlap_start, overlap_end,
					embedding_model, status, error, inserted_at)
				VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
			`, chunk.DocumentId, chunk.VersionId, chunk.Index, chunk.Content,
				storage.MarshalVector(chunk.Vector), chunk.TokenCount, chunk.PageStart, chunk.PageEnd,
				chunk.OverlapStart, chunk.OverlapEnd, chunk.EmbeddingModel, string(chunk.Status),
				nullString(chunk.Error), formatTime(chunk.InsertedAt))
			if err != nil {
				return fmt.Errorf("inserting chunk %d: %w", chunk.Index, err)
			}
			id, err := res.LastInsertId()
			if err != nil {
				return err
			}
			chunk.Id = core.ID(id)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return chunks, nil
}

// GetChunks returns the chunks of a version ordered by index.
func (s *Store) GetChunks(ctx context.Context, versionID core.ID) ([]*core.Chunk, error) {
	return s.queryChunks(ctx,
		"SELECT "+chunkColumns+" FROM document_chunks c WHERE c.version_id = ? ORDER BY c.chunk_index", versionID)
}

// MatchChunks ranks processed chunks of the latest versions by cosine similarity.
// Similarity is computed in Go over the candidate rows.
func (s *Store) MatchChunks(ctx context.Context, query []float32, documentIDs []core.ID, matchCount int, threshold float32) ([]*core.ChunkMatch, error) {
	if len(query) == 0 || matchCount <= 0 {
		return nil, storage.ErrInvalidQuery
	}
	q := "SELECT " + chunkColumns + ` FROM document_chunks c
		JOIN document_versions v ON v.id = c.version_id
		JOIN documents d ON d.id = v.document_id AND d.latest_version = v.version_no
		WHERE c.status = ?`
	args := []any{string(core.ChunkProcessed)}
	if len(documentIDs) > 0 {
		q += " AND d.id IN (" + placeholders(len(documentIDs)) + ")"
		for _, id := range documentIDs {
			args = append(args, id)
		}
	}
	q += " ORDER BY c.id"

	chunks, err := s.queryChunks(ctx, q, args...)
	if err != nil {
		return nil, err
	}

	var matches []*core.ChunkMatch
	for _, chunk := range chunks {
		similarity := storage.CosineSimilarity(query, chunk.Vector)
		if similarity < threshold {
			continue
		}
		matches = append(matches, &core.ChunkMatch{Chunk: chunk, Similarity: similarity})
	}
	sort.SliceStable(matches, func(i, j int) bool {
		return matches[i].Similarity > matches[j].Similarity
	})
	if len(matches) > matchCount {
		matches = matches[:matchCount]
	}
	return matches, nil
}

func (s *Store) queryChunks(ctx context.Context, query string, args ...any) ([]*core.Chunk, error) {
	rows, err := s.conn(ctx).QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying chunks: %w", err)
	}
	defer rows.Close()

	var chunks []*core.Chunk
	for rows.Next() {
		var (
			chunk     core.Chunk
			embedding []byte
			status    string
			chunkErr  sql.NullString
			ins       sql.NullString
		)
		err := rows.Scan(&chunk.Id, &chunk.DocumentId, &chunk.VersionId, &chunk.Index, &chunk.Content,
			&embedding, &chunk.TokenCount, &chunk.PageStart, &chunk.PageEnd, &chunk.OverlapStart,
			&chunk.OverlapEnd, &chunk.EmbeddingModel, &status, &chunkErr, &ins)
		if err != nil {
			return nil, err
		}
		if chunk.Vector, err = storage.UnmarshalVector(embedding); err != nil {
			return nil, err
		}
		chunk.Status = core.ChunkStatus(status)
		chunk.Error = chunkErr.String
		if chunk.InsertedAt, err = parseTime(ins); err != nil {
			return nil, err
		}
		chunks = append(chunks, &chunk)
	}
	return chunks, rows.Err()
}
