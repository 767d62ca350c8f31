package search

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strings"

	"github.com/poiesic/kbase/ai"
	"github.com/poiesic/kbase/core"
	"github.com/poiesic/kbase/storage"
)

const (
	// DefaultThreshold is the minimum cosine similarity of a match.
	DefaultThreshold float32 = 0.60

	// VerbatimBoost is added to the score of chunks containing every query word.
	VerbatimBoost float32 = 0.1
)

// Result is one ranked chunk.
type Result struct {
	Chunk      *core.Chunk
	Similarity float32
	// Score is Similarity plus VerbatimBoost for verbatim hits.
	Score    float32
	Verbatim bool
}

// Searcher finds chunks similar to a text query.
type Searcher struct {
	chunks    storage.ChunkRepository
	provider  ai.AIProvider
	model     string
	threshold float32
	logger    *slog.Logger
}

// Option configures a Searcher.
type Option func(*Searcher) error

// WithLogger sets a custom logger.
// Default is slog.Default().
func WithLogger(logger *slog.Logger) Option {
	return func(s *Searcher) error {
		if logger == nil {
			logger = slog.Default()
		}
		s.logger = logger
		return nil
	}
}

// WithThreshold sets the minimum similarity, in [-1, 1].
func WithThreshold(threshold float32) Option {
	return func(s *Searcher) error {
		if threshold < -1 || threshold > 1 {
			return fmt.Errorf("%w: similarity threshold %v outside [-1, 1]", core.ErrConfiguration, threshold)
		}
		s.threshold = threshold
		return nil
	}
}

// WithModel embeds queries with model instead of the provider default.
// It must match the model the searched chunks were embedded with.
func WithModel(model string) Option {
	return func(s *Searcher) error {
		s.model = model
		return nil
	}
}

// NewSearcher creates a new searcher.
func NewSearcher(chunks storage.ChunkRepository, provider ai.AIProvider, opts ...Option) (*Searcher, error) {
	if chunks == nil {
		return nil, ErrChunkRepositoryRequired
	}
	if provider == nil {
		return nil, ErrAIProviderRequired
	}

	s := &Searcher{
		chunks:    chunks,
		provider:  provider,
		threshold: DefaultThreshold,
		logger:    slog.Default(),
	}
	for _, opt := range opts {
		if err := opt(s); err != nil {
			return nil, err
		}
	}
	s.logger = s.logger.With("component", "searcher")
	return s, nil
}

// FindSimilar returns up to matchCount chunks similar to query, ranked by
// score. An empty documentIDs searches every document.
func (s *Searcher) FindSimilar(ctx context.Context, query string, documentIDs []core.ID, matchCount int) ([]*Result, error) {
	return s.FindSimilarWithMonitor(ctx, query, documentIDs, matchCount, nil)
}

// FindSimilarWithMonitor is FindSimilar with a monitor receiving callbacks at
// each stage of the search.
func (s *Searcher) FindSimilarWithMonitor(ctx context.Context, query string, documentIDs []core.ID, matchCount int, monitor SearchMonitor) ([]*Result, error) {
	if monitor == nil {
		monitor = &noopMonitor{}
	}
	if strings.TrimSpace(query) == "" {
		return nil, ErrEmptyQuery
	}
	monitor.Start(query)

	embedder, err := s.provider.Embedder(s.model)
	if err != nil {
		return nil, err
	}
	vector, err := embedder.EmbedText(ctx, query)
	if err != nil {
		s.logger.Error("error generating embedding for query", "query", query, "err", err)
		return nil, fmt.Errorf("%w: %w", core.ErrEmbedding, err)
	}
	monitor.AfterQueryEmbedding(vector)

	matches, err := s.chunks.MatchChunks(ctx, vector, documentIDs, matchCount, s.threshold)
	if err != nil {
		s.logger.Error("error matching chunks", "err", err)
		return nil, err
	}
	monitor.AfterMatch(matches)

	results := make([]*Result, 0, len(matches))
	for _, match := range matches {
		result := &Result{
			Chunk:      match.Chunk,
			Similarity: match.Similarity,
			Score:      match.Similarity,
		}
		if containsAllQueryWords(match.Chunk.Content, query) {
			result.Verbatim = true
			result.Score += VerbatimBoost
			monitor.VerbatimHit(match.Chunk)
		}
		results = append(results, result)
	}

	sort.SliceStable(results, func(i, j int) bool {
		return results[i].Score > results[j].Score
	})
	s.logger.Debug("search finished", "matches", len(results), "documents", len(documentIDs))
	monitor.Finish(results)
	return results, nil
}
