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

package badger

// NewMemoryRepositories creates in-memory document, version and chunk
// repositories sharing one backend.
// Caller must close the repos and the backend when done.
func NewMemoryRepositories() (*DocumentRepository, *VersionRepository, *ChunkRepository, *Backend, error) {
	backend, err := OpenBackend("", true)
	if err != nil {
		return nil, nil, nil, nil, err
	}
	return NewRepositories(backend)
}

// NewRepositories creates the three repositories over an open backend.
// The backend is closed if any repository fails to open.
func NewRepositories(backend *Backend) (*DocumentRepository, *VersionRepository, *ChunkRepository, *Backend, error) {
	docs, err := NewDocumentRepository(backend)
	if err != nil {
		backend.Close()
		return nil, nil, nil, nil, err
	}

	versions, err := NewVersionRepository(backend)
	if err != nil {
		docs.Close()
		backend.Close()
		return nil, nil, nil, nil, err
	}

	chunks, err := NewChunkRepository(backend)
	if err != nil {
		versions.Close()
		docs.Close()
		backend.Close()
		return nil, nil, nil, nil, err
	}

	return docs, versions, chunks, backend, nil
}
