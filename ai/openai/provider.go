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

package openai

import (
	"log/slog"
	"sync"

	"github.com/poiesic/kbase/ai"
)

// Provider implements ai.AIProvider using OpenAI-compatible services.
// It builds and caches one embedder per model.
type Provider struct {
	config *ai.Config
	logger *slog.Logger

	mu        sync.Mutex
	embedders map[string]ai.Embedder
	closed    bool
}

var _ ai.AIProvider = (*Provider)(nil)

// NewProvider creates a new AI provider with OpenAI-compatible services.
// The config is validated and normalized before use.
//
// Returns ai.AIProvider interface (not *Provider) to enforce abstraction
// and prevent coupling to OpenAI-specific implementation details.
func NewProvider(config *ai.Config) (ai.AIProvider, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}
	return &Provider{
		config:    config,
		logger:    slog.Default().With("component", "openai-provider"),
		embedders: make(map[string]ai.Embedder),
	}, nil
}

// Embedder returns the embedder for model, creating it on first use.
func (p *Provider) Embedder(model string) (ai.Embedder, error) {
	if model == "" {
		model = p.config.EmbeddingModel
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return nil, ai.ErrProviderClosed
	}
	if e, ok := p.embedders[model]; ok {
		return e, nil
	}

	base, err := newEmbedder(p.config, model)
	if err != nil {
		return nil, err
	}
	var e ai.Embedder = base
	if p.config.CacheSize > 0 {
		e = ai.NewCachingEmbedder(e, model, p.config.CacheSize)
	}
	if p.config.RequestsPerSecond > 0 {
		e = ai.NewRateLimitedEmbedder(e, p.config.RequestsPerSecond, p.config.Burst)
	}
	p.embedders[model] = e
	p.logger.Debug("created embedder", "model", model)
	return e, nil
}

// DefaultModel returns the configured embedding model.
func (p *Provider) DefaultModel() string {
	return p.config.EmbeddingModel
}

// Close releases resources held by the provider.
// The underlying HTTP clients don't require explicit cleanup.
func (p *Provider) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.logger.Debug("closing OpenAI provider", "embedders", len(p.embedders))
	p.closed = true
	p.embedders = nil
	return nil
}
