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

// Package openai implements ai.AIProvider on OpenAI-compatible embedding APIs
// (OpenAI, Ollama, LocalAI, vLLM) using the langchaingo client.
//
// The provider builds one embedder per model on first use and returns the
// same instance afterwards. Each embedder is wrapped with the rate limit and
// cache configured in ai.Config.
package openai
