package ingestion

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/poiesic/kbase/core"
	"github.com/poiesic/kbase/storage"
)

// transition is the only writer of document status. It moves the run's
// document to status when the stored status is one of expected.
func (p *Pipeline) transition(ctx context.Context, r *run, update storage.StatusUpdate, expected ...core.ProcessingStatus) (*core.Document, error) {
	update.DocumentID = r.doc.Id
	for _, from := range expected {
		if !core.CanTransition(from, update.Status) && !(from == core.StatusProcessing && update.Status == core.StatusProcessing) {
			return nil, fmt.Errorf("%w: %s -> %s", core.ErrInvalidTransition, from, update.Status)
		}
	}
	update.Expected = expected

	doc, err := p.docs.UpdateProcessingStatus(ctx, update)
	if err != nil {
		if errors.Is(err, storage.ErrStatusConflict) {
			return nil, fmt.Errorf("%w: document %d is no longer in %v", core.ErrConcurrentRunRejected, r.doc.Id, expected)
		}
		if errors.Is(err, storage.ErrNotFound) {
			return nil, fmt.Errorf("%w: document %d", core.ErrNotFound, r.doc.Id)
		}
		return nil, fmt.Errorf("%w: updating status: %w", core.ErrPersistence, err)
	}
	r.doc = doc
	r.logger.Debug("document status changed", "status", doc.Status)
	return doc, nil
}

// start claims the document for this run. A forced start also takes over a
// document stuck in processing.
func (p *Pipeline) start(ctx context.Context, r *run, force bool) (*core.Document, error) {
	expected := []core.ProcessingStatus{core.StatusPending, core.StatusProcessed, core.StatusFailed}
	if force {
		expected = append(expected, core.StatusProcessing)
	}
	started := p.now()
	var unfinished time.Time
	return p.transition(ctx, r, storage.StatusUpdate{
		Status:     core.StatusProcessing,
		StartedAt:  &started,
		FinishedAt: &unfinished,
	}, expected...)
}

// finish recounts the persisted chunks and marks the document processed.
func (p *Pipeline) finish(ctx context.Context, r *run) (*core.Document, error) {
	if _, err := p.docs.UpdateChunkCount(ctx, r.doc.Id); err != nil {
		return nil, fmt.Errorf("%w: updating chunk count: %w", core.ErrPersistence, err)
	}
	finished := p.now()
	return p.transition(ctx, r, storage.StatusUpdate{
		Status:     core.StatusProcessed,
		FinishedAt: &finished,
	}, core.StatusProcessing)
}

// fail records cause on the document. Failures to do so are only logged so
// the original error is what the caller sees.
func (p *Pipeline) fail(ctx context.Context, r *run, cause error) {
	finished := p.now()
	zero := 0
	_, err := p.transition(context.WithoutCancel(ctx), r, storage.StatusUpdate{
		Status:     core.StatusFailed,
		Error:      cause.Error(),
		FinishedAt: &finished,
		ChunkCount: &zero,
	}, core.StatusProcessing)
	if err != nil {
		r.logger.Error("failed to record processing failure", "error", err, "cause", cause)
	}
}
