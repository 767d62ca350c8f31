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

package reprocess

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/poiesic/kbase/core"
	"github.com/poiesic/kbase/ingestion"
	"github.com/poiesic/kbase/storage"
)

// Runner runs a forced processing pass over one document.
// *ingestion.Pipeline implements it.
type Runner interface {
	Reprocess(ctx context.Context, id core.ID) *ingestion.Result
}

var _ Runner = (*ingestion.Pipeline)(nil)

// Config holds configuration for a reprocessing run.
type Config struct {
	// BatchSize is the number of documents handled between progress checks.
	BatchSize int

	// ReportInterval is how often to report progress (number of documents).
	ReportInterval int

	// Selection chooses the documents.
	Selection Selection
}

// DefaultConfig selects failed documents and documents stuck in processing
// for more than an hour.
func DefaultConfig() *Config {
	return &Config{
		BatchSize:      DefaultBatchSize,
		ReportInterval: 1,
		Selection: Selection{
			Statuses:   []core.ProcessingStatus{core.StatusFailed},
			StaleAfter: time.Hour,
		},
	}
}

// Summary counts the outcome of a run.
type Summary struct {
	Selected  int
	Succeeded int
	Failed    int
	// Failures maps each failed document to its error message.
	Failures map[core.ID]string
}

// Reprocessor re-runs the pipeline over selected documents.
type Reprocessor struct {
	runner   Runner
	iterator *DocumentIterator
	config   *Config
	progress io.Writer
	logger   *slog.Logger
}

// NewReprocessor creates a new reprocessor.
// progress: where to write progress output (typically os.Stderr); nil discards it.
func NewReprocessor(repo storage.DocumentRepository, runner Runner, config *Config, progress io.Writer) (*Reprocessor, error) {
	if repo == nil {
		return nil, ErrRepositoryRequired
	}
	if runner == nil {
		return nil, ErrRunnerRequired
	}
	if config == nil {
		config = DefaultConfig()
	}
	if progress == nil {
		progress = io.Discard
	}
	return &Reprocessor{
		runner:   runner,
		iterator: NewDocumentIterator(repo, config.Selection, config.BatchSize),
		config:   config,
		progress: progress,
		logger:   slog.Default().With("component", "reprocessor"),
	}, nil
}

// Run reprocesses every selected document. A failing document is counted and
// the run continues; only selection errors and context cancellation stop it.
func (r *Reprocessor) Run(ctx context.Context) (*Summary, error) {
	docs, err := r.iterator.Select(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to select documents: %w", err)
	}

	summary := &Summary{
		Selected: len(docs),
		Failures: make(map[core.ID]string),
	}
	if len(docs) == 0 {
		fmt.Fprintf(r.progress, "No documents to reprocess\n")
		return summary, nil
	}

	fmt.Fprintf(r.progress, "Reprocessing %d documents (batch size: %d)\n", len(docs), r.iterator.batchSize)
	tracker := NewProgressTracker(r.progress, len(docs), r.config.ReportInterval)
	tracker.Start()

	err = r.iterator.ForEach(ctx, docs, func(batch []*core.Document) error {
		for _, doc := range batch {
			result := r.runner.Reprocess(ctx, doc.Id)
			if result.Success {
				summary.Succeeded++
			} else {
				summary.Failed++
				summary.Failures[doc.Id] = result.Error
				r.logger.Warn("document reprocessing failed", "documentId", doc.Id, "error", result.Error)
			}
			tracker.Record(result.Success)
		}
		return nil
	})
	tracker.Finish()
	if err != nil {
		return summary, err
	}

	elapsed := tracker.Elapsed()
	fmt.Fprintf(r.progress, "Reprocessing complete. %d succeeded, %d failed in %v\n",
		summary.Succeeded, summary.Failed, elapsed.Round(time.Millisecond))
	return summary, nil
}
