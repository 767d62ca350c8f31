package core

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDocumentMUS(t *testing.T) {
	started := time.Date(2025, 6, 2, 9, 30, 0, 987654321, time.UTC)
	tests := []struct {
		name string
		doc  Document
	}{
		{"zero value", Document{}},
		{
			"populated",
			Document{
				Id:                  ^ID(0),
				OwnerId:             "agent-7",
				StoragePath:         "agent-7/handbook.pdf",
				Title:               "Händbook",
				MimeType:            "application/pdf",
				SizeBytes:           10 << 20,
				EmbeddingModel:      "text-embedding-3-small",
				LatestVersion:       4,
				Status:              StatusProcessing,
				ProcessingError:     "",
				ProcessingStartedAt: started,
				ChunkCount:          12,
				InsertedAt:          started.Add(-time.Hour),
				UpdatedAt:           started,
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			bs := make([]byte, DocumentMUS.Size(tt.doc))
			n := DocumentMUS.Marshal(tt.doc, bs)
			require.Equal(t, len(bs), n)

			decoded, n, err := DocumentMUS.Unmarshal(bs)
			require.NoError(t, err)
			assert.Equal(t, len(bs), n)
			assert.Equal(t, tt.doc, decoded)
			assert.True(t, decoded.ProcessingFinishedAt.IsZero())
		})
	}
}

func TestChunkMUS(t *testing.T) {
	tests := []struct {
		name  string
		chunk Chunk
	}{
		{
			"processed chunk",
			Chunk{
				Id: 3, DocumentId: 1, VersionId: 2, Index: 0,
				Content:        "Alpha is the first sentence.",
				Vector:         []float32{0.5, -0.25, 1e-6},
				TokenCount:     7,
				PageStart:      1,
				PageEnd:        2,
				OverlapEnd:     5,
				EmbeddingModel: "mock-embedding",
				Status:         ChunkProcessed,
				InsertedAt:     time.Date(2025, 1, 1, 0, 0, 0, 1, time.UTC),
			},
		},
		{
			"failed chunk keeps nil vector",
			Chunk{
				Id: 4, DocumentId: 1, VersionId: 2, Index: 1,
				Content: "Bravo.",
				Status:  ChunkFailed,
				Error:   "embedding failed",
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			bs := make([]byte, ChunkMUS.Size(tt.chunk))
			ChunkMUS.Marshal(tt.chunk, bs)

			decoded, _, err := ChunkMUS.Unmarshal(bs)
			require.NoError(t, err)
			assert.Equal(t, tt.chunk, decoded)
		})
	}
}

func TestMUS_Truncated(t *testing.T) {
	chunk := Chunk{Id: 1, Content: "text", Vector: []float32{1, 2, 3}}
	bs := make([]byte, ChunkMUS.Size(chunk))
	ChunkMUS.Marshal(chunk, bs)

	for _, cut := range []int{0, 1, len(bs) / 2, len(bs) - 1} {
		_, _, err := ChunkMUS.Unmarshal(bs[:cut])
		assert.Error(t, err, "cut at %d", cut)
	}
}

func TestTimeMUS_PreservesInstant(t *testing.T) {
	now := time.Now()
	bs := make([]byte, TimeMUS.Size(now))
	TimeMUS.Marshal(now, bs)

	decoded, _, err := TimeMUS.Unmarshal(bs)
	require.NoError(t, err)
	assert.True(t, now.Equal(decoded))
	assert.Equal(t, time.UTC, decoded.Location())
}
