package ingestion

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/poiesic/kbase/ai"
	"github.com/poiesic/kbase/chunking"
	"github.com/poiesic/kbase/core"
)

// embedAndPersist embeds segments in batches of MaxConcurrentEmbeddings and
// persists one chunk row per segment. A batch runs to completion before the
// next starts; the first batch with a failed chunk stops the run, so later
// batches are never persisted. It returns the number of processed chunks.
func (p *Pipeline) embedAndPersist(ctx context.Context, r *run, version *core.DocumentVersion, segments []chunking.Segment) (int, error) {
	embedder, err := p.provider.Embedder(r.model)
	if err != nil {
		return 0, fmt.Errorf("%w: %w", core.ErrEmbedding, err)
	}

	batchSize := p.config.MaxConcurrentEmbeddings
	processed := 0
	for start := 0; start < len(segments); start += batchSize {
		end := min(start+batchSize, len(segments))
		batch := segments[start:end]

		n, err := p.runBatch(ctx, r, embedder, version, batch)
		processed += n
		if err != nil {
			r.logger.Error("embedding batch failed", "firstIndex", batch[0].Index, "size", len(batch), "error", err)
			return processed, err
		}
		r.logger.Debug("embedding batch persisted", "firstIndex", batch[0].Index, "size", len(batch))
	}
	return processed, nil
}

// runBatch embeds and persists every segment of batch concurrently and
// waits for all of them.
func (p *Pipeline) runBatch(ctx context.Context, r *run, embedder ai.Embedder, version *core.DocumentVersion, batch []chunking.Segment) (int, error) {
	var (
		wg   sync.WaitGroup
		mu   sync.Mutex
		errs []error
		ok   int
	)
	for _, segment := range batch {
		wg.Add(1)
		err := p.pool.Submit(func() {
			defer wg.Done()
			err := p.embedSegment(ctx, r, embedder, version, segment)

			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				errs = append(errs, err)
				return
			}
			ok++
		})
		if err != nil {
			wg.Done()
			mu.Lock()
			errs = append(errs, fmt.Errorf("submitting chunk %d: %w", segment.Index, err))
			mu.Unlock()
		}
	}
	wg.Wait()
	return ok, errors.Join(errs...)
}

// embedSegment embeds one segment under the retry policy and persists its
// row. Exhausted retries still persist a failed row before returning the error.
func (p *Pipeline) embedSegment(ctx context.Context, r *run, embedder ai.Embedder, version *core.DocumentVersion, segment chunking.Segment) error {
	input := truncate(segment.Content, p.config.MaxEmbedInputChars)

	var vector []float32
	embedErr := p.retry.Do(ctx, func(ctx context.Context) error {
		v, err := embedder.EmbedText(ctx, input)
		if err != nil {
			return err
		}
		if len(v) == 0 {
			return ai.ErrEmptyEmbedding
		}
		vector = v
		return nil
	})

	chunk := &core.Chunk{
		DocumentId:     r.doc.Id,
		VersionId:      version.Id,
		Index:          segment.Index,
		Content:        segment.Content,
		TokenCount:     segment.TokenCount,
		PageStart:      segment.PageStart,
		PageEnd:        segment.PageEnd,
		OverlapStart:   segment.OverlapStart,
		OverlapEnd:     segment.OverlapEnd,
		EmbeddingModel: r.model,
		Status:         core.ChunkProcessed,
		Vector:         vector,
	}
	if embedErr != nil {
		embedErr = fmt.Errorf("%w: chunk %d: %w", core.ErrEmbedding, segment.Index, embedErr)
		chunk.Status = core.ChunkFailed
		chunk.Vector = nil
		chunk.Error = embedErr.Error()
	}

	// the row is written even when the run context has ended
	if _, err := p.chunks.AddChunks(context.WithoutCancel(ctx), chunk); err != nil {
		return errors.Join(embedErr, fmt.Errorf("%w: chunk %d: %w", core.ErrPersistence, segment.Index, err))
	}
	return embedErr
}

// truncate returns the first limit characters of s.
func truncate(s string, limit int) string {
	if limit <= 0 {
		return s
	}
	n := 0
	for i := range s {
		if n == limit {
			return s[:i]
		}
		n++
	}
	return s
}
