// Copyright 2025 Poiesic Systems
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package storage

import (
	"encoding/binary"
	"fmt"
	"math"

	"github.com/poiesic/kbase/core"
)

// MarshalID serializes an ID to 8 big-endian bytes. Keys use this form so
// that prefix iteration returns IDs in numeric order; record values use
// core.IDMUS.
func MarshalID(id core.ID) []byte {
	buf := make([]byte, 8)
	binary.BigEndian.PutUint64(buf, uint64(id))
	return buf
}

// UnmarshalID deserializes an ID from bytes.
func UnmarshalID(data []byte) (core.ID, error) {
	if len(data) != 8 {
		return 0, fmt.Errorf("%w: id needs 8 bytes, got %d", ErrSerializationFailed, len(data))
	}
	return core.ID(binary.BigEndian.Uint64(data)), nil
}

// MarshalDocument serializes a Document to bytes.
func MarshalDocument(doc *core.Document) []byte {
	buf := make([]byte, core.DocumentMUS.Size(*doc))
	core.DocumentMUS.Marshal(*doc, buf)
	return buf
}

// UnmarshalDocument deserializes a Document from bytes.
func UnmarshalDocument(data []byte) (*core.Document, error) {
	doc, n, err := core.DocumentMUS.Unmarshal(data)
	if err := checkDecoded(data, n, err); err != nil {
		return nil, err
	}
	return &doc, nil
}

// MarshalVersion serializes a DocumentVersion to bytes.
func MarshalVersion(version *core.DocumentVersion) []byte {
	buf := make([]byte, core.VersionMUS.Size(*version))
	core.VersionMUS.Marshal(*version, buf)
	return buf
}

// UnmarshalVersion deserializes a DocumentVersion from bytes.
func UnmarshalVersion(data []byte) (*core.DocumentVersion, error) {
	version, n, err := core.VersionMUS.Unmarshal(data)
	if err := checkDecoded(data, n, err); err != nil {
		return nil, err
	}
	return &version, nil
}

// MarshalChunk serializes a Chunk to bytes.
func MarshalChunk(chunk *core.Chunk) []byte {
	buf := make([]byte, core.ChunkMUS.Size(*chunk))
	core.ChunkMUS.Marshal(*chunk, buf)
	return buf
}

// UnmarshalChunk deserializes a Chunk from bytes.
func UnmarshalChunk(data []byte) (*core.Chunk, error) {
	chunk, n, err := core.ChunkMUS.Unmarshal(data)
	if err := checkDecoded(data, n, err); err != nil {
		return nil, err
	}
	return &chunk, nil
}

// checkDecoded rejects decode errors and trailing bytes.
func checkDecoded(data []byte, n int, err error) error {
	if err != nil {
		return fmt.Errorf("%w: %w", ErrSerializationFailed, err)
	}
	if n != len(data) {
		return fmt.Errorf("%w: %d trailing bytes", ErrSerializationFailed, len(data)-n)
	}
	return nil
}

// MarshalVector packs a vector as little-endian float32 values.
func MarshalVector(vector []float32) []byte {
	if len(vector) == 0 {
		return nil
	}
	buf := make([]byte, 4*len(vector))
	for i, v := range vector {
		binary.LittleEndian.PutUint32(buf[i*4:], math.Float32bits(v))
	}
	return buf
}

// UnmarshalVector unpacks a vector written by MarshalVector.
func UnmarshalVector(data []byte) ([]float32, error) {
	if len(data) == 0 {
		return nil, nil
	}
	if len(data)%4 != 0 {
		return nil, fmt.Errorf("%w: vector length %d is not a multiple of 4", ErrSerializationFailed, len(data))
	}
	vector := make([]float32, len(data)/4)
	for i := range vector {
		vector[i] = math.Float32frombits(binary.LittleEndian.Uint32(data[i*4:]))
	}
	return vector, nil
}
