package badger

import (
	"errors"

	"github.com/dgraph-io/badger/v4"
	"github.com/poiesic/kbase/core"
	"github.com/poiesic/kbase/storage"
)

// readValue returns a copy of the value at key, or nil if the key is absent.
func readValue(tx *badger.Txn, key []byte) ([]byte, error) {
	item, err := tx.Get(key)
	if err != nil {
		if errors.Is(err, badger.ErrKeyNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return item.ValueCopy(nil)
}

func readDocument(tx *badger.Txn, id core.ID) (*core.Document, error) {
	data, err := readValue(tx, makeDocumentKey(id))
	if err != nil || data == nil {
		return nil, err
	}
	return storage.UnmarshalDocument(data)
}

func writeDocument(tx *badger.Txn, doc *core.Document) error {
	return tx.Set(makeDocumentKey(doc.Id), storage.MarshalDocument(doc))
}

func readVersion(tx *badger.Txn, id core.ID) (*core.DocumentVersion, error) {
	data, err := readValue(tx, makeVersionKey(id))
	if err != nil || data == nil {
		return nil, err
	}
	return storage.UnmarshalVersion(data)
}

func readChunk(tx *badger.Txn, id core.ID) (*core.Chunk, error) {
	data, err := readValue(tx, makeChunkKey(id))
	if err != nil || data == nil {
		return nil, err
	}
	return storage.UnmarshalChunk(data)
}

// scanIDs collects the IDs stored as values under prefix, in key order.
func scanIDs(tx *badger.Txn, prefix []byte) ([]core.ID, error) {
	opts := badger.DefaultIteratorOptions
	opts.Prefix = prefix
	it := tx.NewIterator(opts)
	defer it.Close()

	var ids []core.ID
	for it.Rewind(); it.Valid(); it.Next() {
		data, err := it.Item().ValueCopy(nil)
		if err != nil {
			return nil, err
		}
		id, err := storage.UnmarshalID(data)
		if err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, nil
}

// versionsOf returns the versions of a document ordered by version number.
func versionsOf(tx *badger.Txn, documentID core.ID) ([]*core.DocumentVersion, error) {
	ids, err := scanIDs(tx, makePartialVersionByDocKey(documentID))
	if err != nil {
		return nil, err
	}
	versions := make([]*core.DocumentVersion, 0, len(ids))
	for _, id := range ids {
		version, err := readVersion(tx, id)
		if err != nil {
			return nil, err
		}
		if version != nil {
			versions = append(versions, version)
		}
	}
	return versions, nil
}

// latestVersionOf returns the version numbered doc.LatestVersion, or nil.
func latestVersionOf(tx *badger.Txn, doc *core.Document) (*core.DocumentVersion, error) {
	if doc.LatestVersion == 0 {
		return nil, nil
	}
	data, err := readValue(tx, makeVersionByDocKey(doc.Id, doc.LatestVersion))
	if err != nil || data == nil {
		return nil, err
	}
	id, err := storage.UnmarshalID(data)
	if err != nil {
		return nil, err
	}
	return readVersion(tx, id)
}

// chunksOf returns the chunks of a version ordered by index.
func chunksOf(tx *badger.Txn, versionID core.ID) ([]*core.Chunk, error) {
	ids, err := scanIDs(tx, makePartialChunkByVersionKey(versionID))
	if err != nil {
		return nil, err
	}
	chunks := make([]*core.Chunk, 0, len(ids))
	for _, id := range ids {
		chunk, err := readChunk(tx, id)
		if err != nil {
			return nil, err
		}
		if chunk != nil {
			chunks = append(chunks, chunk)
		}
	}
	return chunks, nil
}
