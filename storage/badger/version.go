package badger

import (
	"context"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/poiesic/kbase/core"
	"github.com/poiesic/kbase/storage"
)

// VersionRepository implements storage.VersionRepository for BadgerDB.
type VersionRepository struct {
	backend *Backend
	idSeq   *badger.Sequence
}

var _ storage.VersionRepository = (*VersionRepository)(nil)

// NewVersionRepository creates a new VersionRepository.
func NewVersionRepository(backend *Backend) (*VersionRepository, error) {
	idSeq, err := backend.GetSequence(versionIDSeq)
	if err != nil {
		return nil, err
	}
	return &VersionRepository{
		backend: backend,
		idSeq:   idSeq,
	}, nil
}

// Close releases the ID sequence.
func (r *VersionRepository) Close() error {
	return r.idSeq.Release()
}

// WithTransaction delegates to the backend.
func (r *VersionRepository) WithTransaction(ctx context.Context, fn func(ctx context.Context) error) error {
	return r.backend.WithTransaction(ctx, fn)
}

// AddVersion numbers the version after the document's latest one and bumps
// the document's LatestVersion in the same transaction.
func (r *VersionRepository) AddVersion(ctx context.Context, version *core.DocumentVersion) (*core.DocumentVersion, error) {
	err := r.backend.WithTx(func(tx *badger.Txn) error {
		doc, err := readDocument(tx, version.DocumentId)
		if err != nil {
			return err
		}
		if doc == nil {
			return storage.ErrNotFound
		}
		id, err := nextID(r.idSeq)
		if err != nil {
			return err
		}
		version.Id = core.ID(id)
		version.VersionNo = doc.LatestVersion + 1
		version.InsertedAt = time.Now().UTC()

		if err := tx.Set(makeVersionKey(version.Id), storage.MarshalVersion(version)); err != nil {
			return err
		}
		if err := tx.Set(makeVersionByDocKey(doc.Id, version.VersionNo), storage.MarshalID(version.Id)); err != nil {
			return err
		}

		doc.LatestVersion = version.VersionNo
		doc.UpdatedAt = version.InsertedAt
		if err := writeDocument(tx, doc); err != nil {
			return err
		}
		return commit(tx)
	}, true)
	if err != nil {
		return nil, err
	}
	return version, nil
}

// GetVersion retrieves a single version by ID.
func (r *VersionRepository) GetVersion(ctx context.Context, id core.ID) (*core.DocumentVersion, error) {
	var result *core.DocumentVersion
	err := r.backend.WithTx(func(tx *badger.Txn) error {
		var err error
		result, err = readVersion(tx, id)
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

// ListVersions returns the versions of a document ordered by number.
func (r *VersionRepository) ListVersions(ctx context.Context, documentID core.ID) ([]*core.DocumentVersion, error) {
	var results []*core.DocumentVersion
	err := r.backend.WithTx(func(tx *badger.Txn) error {
		var err error
		results, err = versionsOf(tx, documentID)
		return err
	}, false)
	return results, err
}

// LatestVersion returns the document's highest numbered version.
func (r *VersionRepository) LatestVersion(ctx context.Context, documentID core.ID) (*core.DocumentVersion, error) {
	var result *core.DocumentVersion
	err := r.backend.WithTx(func(tx *badger.Txn) error {
		doc, err := readDocument(tx, documentID)
		if err != nil {
			return err
		}
		if doc == nil {
			return storage.ErrNotFound
		}
		result, err = latestVersionOf(tx, doc)
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
