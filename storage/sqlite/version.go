package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/poiesic/kbase/core"
)

// AddVersion numbers the version after the document's latest one and bumps
// the document in the same transaction.
func (s *Store) AddVersion(ctx context.Context, version *core.DocumentVersion) (*core.DocumentVersion, error) {
	err := s.WithTransaction(ctx, func(ctx context.Context) error {
		doc, err := s.GetDocument(ctx, version.DocumentId)
		if err != nil {
			return err
		}
		version.VersionNo = doc.LatestVersion + 1
		version.InsertedAt = time.Now().UTC()

		res, err := s.conn(ctx).ExecContext(ctx, `
			INSERT INTO document_versions (document_id, version_no, checksum, extraction_mode, page_count, run_id, inserted_at)
			VALUES (?, ?, ?, ?, ?, ?, ?)
		`, version.DocumentId, version.VersionNo, version.Checksum, version.ExtractionMode,
			version.PageCount, version.RunId, formatTime(version.InsertedAt))
		if err != nil {
			return fmt.Errorf("inserting version: %w", err)
		}
		id, err := res.LastInsertId()
		if err != nil {
			return err
		}
		version.Id = core.ID(id)

		_, err = s.conn(ctx).ExecContext(ctx,
			"UPDATE documents SET latest_version = ?, updated_at = ? WHERE id = ?",
			version.VersionNo, formatTime(version.InsertedAt), doc.Id)
		return err
	})
	if err != nil {
		return nil, err
	}
	return version, nil
}

const versionColumns = "id, document_id, version_no, checksum, extraction_mode, page_count, run_id, inserted_at"

// GetVersion retrieves a version by ID.
func (s *Store) GetVersion(ctx context.Context, id core.ID) (*core.DocumentVersion, error) {
	row := s.conn(ctx).QueryRowContext(ctx, "SELECT "+versionColumns+" FROM document_versions WHERE id = ?", id)
	return scanVersion(row)
}

// ListVersions returns the versions of a document ordered by number.
func (s *Store) ListVersions(ctx context.Context, documentID core.ID) ([]*core.DocumentVersion, error) {
	rows, err := s.conn(ctx).QueryContext(ctx,
		"SELECT "+versionColumns+" FROM document_versions WHERE document_id = ? ORDER BY version_no", documentID)
	if err != nil {
		return nil, fmt.Errorf("listing versions: %w", err)
	}
	defer rows.Close()

	var versions []*core.DocumentVersion
	for rows.Next() {
		version, err := scanVersion(rows)
		if err != nil {
			return nil, err
		}
		versions = append(versions, version)
	}
	return versions, rows.Err()
}

// LatestVersion returns the document's highest numbered version.
func (s *Store) LatestVersion(ctx context.Context, documentID core.ID) (*core.DocumentVersion, error) {
	row := s.conn(ctx).QueryRowContext(ctx,
		"SELECT "+versionColumns+" FROM document_versions WHERE document_id = ? ORDER BY version_no DESC LIMIT 1", documentID)
	return scanVersion(row)
}

func scanVersion(row rowScanner) (*core.DocumentVersion, error) {
	var (
		version core.DocumentVersion
		ins     sql.NullString
	)
	err := row.Scan(&version.Id, &version.DocumentId, &version.VersionNo, &version.Checksum,
		&version.ExtractionMode, &version.PageCount, &version.RunId, &ins)
	if err != nil {
		return nil, notFound(err)
	}
	if version.InsertedAt, err = parseTime(ins); err != nil {
		return nil, err
	}
	return &version, nil
}
