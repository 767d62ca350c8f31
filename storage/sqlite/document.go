package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"slices"
	"time"

	"github.com/poiesic/kbase/core"
	"github.com/poiesic/kbase/storage"
)

const documentColumns = `id, owner_id, storage_path, title, mime_type, size_bytes, embedding_model,
	latest_version, processing_status, processing_error, processing_started_at,
	processing_finished_at, chunk_count, inserted_at, updated_at`

// AddDocument inserts a new document in the pending state unless a status is set.
func (s *Store) AddDocument(ctx context.Context, doc *core.Document) (*core.Document, error) {
	if doc.Status == "" {
		doc.Status = core.StatusPending
	}
	if err := core.ValidateDocument(doc); err != nil {
		return nil, err
	}
	doc.InsertedAt = time.Now().UTC()
	doc.UpdatedAt = doc.InsertedAt

	res, err := s.conn(ctx).ExecContext(ctx, `
		INSERT INTO documents (owner_id, storage_path, title, mime_type, size_bytes, embedding_model,
			latest_version, processing_status, processing_error, processing_started_at,
			processing_finished_at, chunk_count, inserted_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, doc.OwnerId, doc.StoragePath, doc.Title, doc.MimeType, doc.SizeBytes, doc.EmbeddingModel,
		doc.LatestVersion, string(doc.Status), nullString(doc.ProcessingError),
		formatTime(doc.ProcessingStartedAt), formatTime(doc.ProcessingFinishedAt),
		doc.ChunkCount, formatTime(doc.InsertedAt), formatTime(doc.UpdatedAt))
	if err != nil {
		return nil, fmt.Errorf("inserting document: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("reading document id: %w", err)
	}
	doc.Id = core.ID(id)
	return doc, nil
}

// GetDocument retrieves a document by ID.
func (s *Store) GetDocument(ctx context.Context, id core.ID) (*core.Document, error) {
	row := s.conn(ctx).QueryRowContext(ctx, "SELECT "+documentColumns+" FROM documents WHERE id = ?", id)
	return scanDocument(row)
}

// UpdateDocument replaces the descriptive fields of a stored document.
func (s *Store) UpdateDocument(ctx context.Context, doc *core.Document) (*core.Document, error) {
	var result *core.Document
	err := s.WithTransaction(ctx, func(ctx context.Context) error {
		stored, err := s.GetDocument(ctx, doc.Id)
		if err != nil {
			return err
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
		_, err = s.conn(ctx).ExecContext(ctx, `
			UPDATE documents SET owner_id = ?, storage_path = ?, title = ?, mime_type = ?,
				size_bytes = ?, embedding_model = ?, updated_at = ?
			WHERE id = ?
		`, stored.OwnerId, stored.StoragePath, stored.Title, stored.MimeType,
			stored.SizeBytes, stored.EmbeddingModel, formatTime(stored.UpdatedAt), stored.Id)
		if err != nil {
			return fmt.Errorf("updating document: %w", err)
		}
		result = stored
		return nil
	})
	return result, err
}

// DeleteDocument removes a document. Versions and chunks cascade.
func (s *Store) DeleteDocument(ctx context.Context, id core.ID) error {
	res, err := s.conn(ctx).ExecContext(ctx, "DELETE FROM documents WHERE id = ?", id)
	if err != nil {
		return fmt.Errorf("deleting document: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return storage.ErrNotFound
	}
	return nil
}

// ListDocuments returns documents ordered by ID, optionally filtered by status.
func (s *Store) ListDocuments(ctx context.Context, statuses ...core.ProcessingStatus) ([]*core.Document, error) {
	query := "SELECT " + documentColumns + " FROM documents"
	args := make([]any, 0, len(statuses))
	if len(statuses) > 0 {
		query += " WHERE processing_status IN (" + placeholders(len(statuses)) + ")"
		for _, status := range statuses {
			args = append(args, string(status))
		}
	}
	query += " ORDER BY id"

	rows, err := s.conn(ctx).QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("listing documents: %w", err)
	}
	defer rows.Close()

	var docs []*core.Document
	for rows.Next() {
		doc, err := scanDocument(rows)
		if err != nil {
			return nil, err
		}
		docs = append(docs, doc)
	}
	return docs, rows.Err()
}

// UpdateProcessingStatus applies a status change. The write is guarded on the
// status read in the same transaction, so a concurrent claim loses with
// ErrStatusConflict.
func (s *Store) UpdateProcessingStatus(ctx context.Context, update storage.StatusUpdate) (*core.Document, error) {
	if err := core.ValidateProcessingStatus(update.Status); err != nil {
		return nil, err
	}
	var result *core.Document
	err := s.WithTransaction(ctx, func(ctx context.Context) error {
		doc, err := s.GetDocument(ctx, update.DocumentID)
		if err != nil {
			return err
		}
		if len(update.Expected) > 0 && !slices.Contains(update.Expected, doc.Status) {
			return storage.ErrStatusConflict
		}
		previous := doc.Status
		update.Apply(doc, time.Now().UTC())

		res, err := s.conn(ctx).ExecContext(ctx, `
			UPDATE documents SET processing_status = ?, processing_error = ?,
				processing_started_at = ?, processing_finished_at = ?, chunk_count = ?, updated_at = ?
			WHERE id = ? AND processing_status = ?
		`, string(doc.Status), nullString(doc.ProcessingError),
			formatTime(doc.ProcessingStartedAt), formatTime(doc.ProcessingFinishedAt),
			doc.ChunkCount, formatTime(doc.UpdatedAt), doc.Id, string(previous))
		if err != nil {
			return fmt.Errorf("updating processing status: %w", err)
		}
		n, err := res.RowsAffected()
		if err != nil {
			return err
		}
		if n == 0 {
			return storage.ErrStatusConflict
		}
		result = doc
		return nil
	})
	return result, err
}

// UpdateChunkCount recounts processed chunks of the latest version.
func (s *Store) UpdateChunkCount(ctx context.Context, id core.ID) (int, error) {
	var count int
	err := s.WithTransaction(ctx, func(ctx context.Context) error {
		if _, err := s.GetDocument(ctx, id); err != nil {
			return err
		}
		row := s.conn(ctx).QueryRowContext(ctx, `
			SELECT COUNT(*) FROM document_chunks c
			JOIN document_versions v ON v.id = c.version_id
			JOIN documents d ON d.id = v.document_id AND d.latest_version = v.version_no
			WHERE d.id = ? AND c.status = ?
		`, id, string(core.ChunkProcessed))
		if err := row.Scan(&count); err != nil {
			return fmt.Errorf("counting chunks: %w", err)
		}
		_, err := s.conn(ctx).ExecContext(ctx,
			"UPDATE documents SET chunk_count = ?, updated_at = ? WHERE id = ?",
			count, formatTime(time.Now().UTC()), id)
		return err
	})
	return count, err
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanDocument(row rowScanner) (*core.Document, error) {
	var (
		doc                         core.Document
		status                      string
		procErr                     sql.NullString
		started, finished, ins, upd sql.NullString
	)
	err := row.Scan(&doc.Id, &doc.OwnerId, &doc.StoragePath, &doc.Title, &doc.MimeType,
		&doc.SizeBytes, &doc.EmbeddingModel, &doc.LatestVersion, &status, &procErr,
		&started, &finished, &doc.ChunkCount, &ins, &upd)
	if err != nil {
		return nil, notFound(err)
	}
	doc.Status = core.ProcessingStatus(status)
	doc.ProcessingError = procErr.String
	if doc.ProcessingStartedAt, err = parseTime(started); err != nil {
		return nil, err
	}
	if doc.ProcessingFinishedAt, err = parseTime(finished); err != nil {
		return nil, err
	}
	if doc.InsertedAt, err = parseTime(ins); err != nil {
		return nil, err
	}
	if doc.UpdatedAt, err = parseTime(upd); err != nil {
		return nil, err
	}
	return &doc, nil
}
