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

// Package ai provides abstractions for the embedding service used by kbase.
//
// The ingestion pipeline and the searcher depend on the Embedder and
// AIProvider interfaces rather than on a concrete client, so production code
// talks to an OpenAI-compatible API while tests use deterministic mocks.
//
// # Implementation Packages
//
//   - ai/openai: OpenAI-compatible embeddings through langchaingo
//   - ai/mock: deterministic test doubles
//
// # Decorators
//
// NewRateLimitedEmbedder and NewCachingEmbedder wrap any Embedder. The openai
// provider applies both according to Config:
//
//	cfg := ai.NewConfig(
//	    ai.WithEmbeddingHost("http://localhost:11434"),  // /v1 added automatically
//	    ai.WithEmbeddingModel("embeddinggemma"),
//	    ai.WithRateLimit(10, 2),
//	)
//	provider, err := openai.NewProvider(cfg)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer provider.Close()
//
//	embedder, err := provider.Embedder("")  // default model
//	vec, err := embedder.EmbedText(ctx, "Hello world")
package ai
