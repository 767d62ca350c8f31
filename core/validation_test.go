package core

import (
	"errors"
	"testing"
)

func TestValidateDocument(t *testing.T) {
	tests := []struct {
		name    string
		doc     *Document
		wantErr error
	}{
		{
			name: "valid pending document",
			doc: &Document{
				StoragePath: "owner/report.pdf",
				Status:      StatusPending,
			},
			wantErr: nil,
		},
		{
			name: "valid document with ID 0",
			doc: &Document{
				Id:          0,
				StoragePath: "owner/report.pdf",
				Status:      StatusFailed,
			},
			wantErr: nil,
		},
		{
			name:    "nil document",
			doc:     nil,
			wantErr: ErrInvalidDocument,
		},
		{
			name: "empty storage path",
			doc: &Document{
				StoragePath: "  ",
				Status:      StatusPending,
			},
			wantErr: ErrEmptyStoragePath,
		},
		{
			name: "unknown status",
			doc: &Document{
				StoragePath: "owner/report.pdf",
				Status:      ProcessingStatus("cancelled"),
			},
			wantErr: ErrInvalidStatus,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateDocument(tt.doc)
			if tt.wantErr == nil {
				if err != nil {
					t.Errorf("ValidateDocument() error = %v, want nil", err)
				}
				return
			}
			if err == nil {
				t.Errorf("ValidateDocument() error = nil, want %v", tt.wantErr)
				return
			}
			if !errors.Is(err, tt.wantErr) {
				t.Errorf("ValidateDocument() error = %v, want %v", err, tt.wantErr)
			}
		})
	}
}

func TestValidateChunk(t *testing.T) {
	tests := []struct {
		name    string
		chunk   *Chunk
		wantErr error
	}{
		{
			name: "valid processed chunk",
			chunk: &Chunk{
				Content: "Some text.",
				Vector:  []float32{0.1, 0.2},
				Status:  ChunkProcessed,
			},
			wantErr: nil,
		},
		{
			name: "valid failed chunk without vector",
			chunk: &Chunk{
				Index:   3,
				Content: "Some text.",
				Status:  ChunkFailed,
			},
			wantErr: nil,
		},
		{
			name:    "nil chunk",
			chunk:   nil,
			wantErr: ErrInvalidChunk,
		},
		{
			name: "empty content",
			chunk: &Chunk{
				Vector: []float32{0.1},
				Status: ChunkProcessed,
			},
			wantErr: ErrEmptyContent,
		},
		{
			name: "negative index",
			chunk: &Chunk{
				Index:   -1,
				Content: "x",
				Status:  ChunkFailed,
			},
			wantErr: ErrInvalidChunk,
		},
		{
			name: "processed without vector",
			chunk: &Chunk{
				Content: "x",
				Status:  ChunkProcessed,
			},
			wantErr: ErrInvalidChunk,
		},
		{
			name: "failed with vector",
			chunk: &Chunk{
				Content: "x",
				Vector:  []float32{1},
				Status:  ChunkFailed,
			},
			wantErr: ErrInvalidChunk,
		},
		{
			name: "unknown status",
			chunk: &Chunk{
				Content: "x",
				Status:  ChunkStatus("queued"),
			},
			wantErr: ErrInvalidStatus,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateChunk(tt.chunk)
			if tt.wantErr == nil {
				if err != nil {
					t.Errorf("ValidateChunk() error = %v, want nil", err)
				}
				return
			}
			if !errors.Is(err, tt.wantErr) {
				t.Errorf("ValidateChunk() error = %v, want %v", err, tt.wantErr)
			}
		})
	}
}

func TestValidateProcessingStatus(t *testing.T) {
	valid := []ProcessingStatus{StatusPending, StatusProcessing, StatusProcessed, StatusFailed}
	for _, s := range valid {
		if err := ValidateProcessingStatus(s); err != nil {
			t.Errorf("ValidateProcessingStatus(%q) error = %v, want nil", s, err)
		}
	}

	for _, s := range []ProcessingStatus{"", "cancelled", "PENDING"} {
		err := ValidateProcessingStatus(s)
		if !errors.Is(err, ErrInvalidStatus) {
			t.Errorf("ValidateProcessingStatus(%q) error = %v, want %v", s, err, ErrInvalidStatus)
		}
	}
}

func TestProcessingStatus_IsIdle(t *testing.T) {
	if StatusProcessing.IsIdle() {
		t.Error("processing must not be idle")
	}
	for _, s := range []ProcessingStatus{StatusPending, StatusProcessed, StatusFailed} {
		if !s.IsIdle() {
			t.Errorf("%s should be idle", s)
		}
	}
}

func TestValidateOwnerID(t *testing.T) {
	for _, owner := range []string{"", "agent-7", "team.alpha", "ägent"} {
		if err := ValidateOwnerID(owner); err != nil {
			t.Errorf("ValidateOwnerID(%q) error = %v, want nil", owner, err)
		}
	}

	for _, owner := range []string{".", "..", "../../x", "a/b", `a\b`, "bad\x00id"} {
		err := ValidateOwnerID(owner)
		if !errors.Is(err, ErrInvalidOwner) {
			t.Errorf("ValidateOwnerID(%q) error = %v, want %v", owner, err, ErrInvalidOwner)
		}
	}
}
