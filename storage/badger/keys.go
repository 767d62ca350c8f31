package badger

import (
	"encoding/binary"

	"github.com/poiesic/kbase/core"
)

// Key prefixes for different data types
const (
	documentPrefix       = "docrec:"
	versionPrefix        = "verrec:"
	versionByDocPrefix   = "verdoc:"
	chunkPrefix          = "chkrec:"
	chunkByVersionPrefix = "chkver:"

	documentIDSeq = "seq:docrec"
	versionIDSeq  = "seq:verrec"
	chunkIDSeq    = "seq:chkrec"
)

// makeKey builds prefix followed by big-endian encoded parts, so that
// lexicographic key order equals numeric order of the parts.
func makeKey(prefix string, parts ...uint64) []byte {
	buf := make([]byte, len(prefix)+8*len(parts))
	offset := copy(buf, prefix)
	for _, part := range parts {
		binary.BigEndian.PutUint64(buf[offset:], part)
		offset += 8
	}
	return buf
}

// makeDocumentKey generates a key for a document by ID.
func makeDocumentKey(id core.ID) []byte {
	return makeKey(documentPrefix, uint64(id))
}

// makeVersionKey generates a key for a version by ID.
func makeVersionKey(id core.ID) []byte {
	return makeKey(versionPrefix, uint64(id))
}

// makeVersionByDocKey generates the index key of a version under its document.
// Format: prefix:documentID:versionNo
func makeVersionByDocKey(documentID core.ID, versionNo int) []byte {
	return makeKey(versionByDocPrefix, uint64(documentID), uint64(versionNo))
}

// makePartialVersionByDocKey generates the prefix of all version index keys of a document.
func makePartialVersionByDocKey(documentID core.ID) []byte {
	return makeKey(versionByDocPrefix, uint64(documentID))
}

// makeChunkKey generates a key for a chunk by ID.
func makeChunkKey(id core.ID) []byte {
	return makeKey(chunkPrefix, uint64(id))
}

// makeChunkByVersionKey generates the index key of a chunk under its version.
// Format: prefix:versionID:index
func makeChunkByVersionKey(versionID core.ID, index int) []byte {
	return makeKey(chunkByVersionPrefix, uint64(versionID), uint64(index))
}

// makePartialChunkByVersionKey generates the prefix of all chunk index keys of a version.
func makePartialChunkByVersionKey(versionID core.ID) []byte {
	return makeKey(chunkByVersionPrefix, uint64(versionID))
}
