package mock

import (
	"sync"

	"github.com/poiesic/kbase/ai"
)

// DefaultModel is the model name reported by MockProvider.
const DefaultModel = "mock-embedding"

// MockProvider is a test double for ai.AIProvider.
// Every model shares one MockEmbedder.
type MockProvider struct {
	embedder *MockEmbedder

	mu     sync.Mutex
	models []string
	closed bool
}

var _ ai.AIProvider = (*MockProvider)(nil)

// NewMockProvider creates a new mock provider with a default mock embedder.
//
// Returns the concrete type so tests can reach GetMockEmbedder.
func NewMockProvider() *MockProvider {
	return NewMockProviderWithEmbedder(NewMockEmbedder())
}

// NewMockProviderWithEmbedder creates a mock provider around embedder.
func NewMockProviderWithEmbedder(embedder *MockEmbedder) *MockProvider {
	return &MockProvider{embedder: embedder}
}

// Embedder returns the mock embedder and records the requested model.
func (p *MockProvider) Embedder(model string) (ai.Embedder, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return nil, ai.ErrProviderClosed
	}
	if model == "" {
		model = DefaultModel
	}
	p.models = append(p.models, model)
	return p.embedder, nil
}

// DefaultModel returns DefaultModel.
func (p *MockProvider) DefaultModel() string {
	return DefaultModel
}

// Close marks the provider closed.
func (p *MockProvider) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.closed = true
	return nil
}

// Models returns the models requested through Embedder, in call order.
func (p *MockProvider) Models() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]string(nil), p.models...)
}

// GetMockEmbedder returns the underlying mock embedder for test assertions.
func (p *MockProvider) GetMockEmbedder() *MockEmbedder {
	return p.embedder
}
