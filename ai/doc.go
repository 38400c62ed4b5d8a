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


// Package ai provides the embedding abstraction used by finrank.
//
// Ingestion and search depend on the Embedder interface rather than on a
// concrete model client, so tests can swap in deterministic fakes.
//
// # Implementation Packages
//
//   - ai/openai: langchaingo client for OpenAI-compatible embedding APIs
//     (OpenAI, Ollama, vLLM, LocalAI). The client is built lazily on first use.
//   - ai/mock: deterministic hash-based vectors for tests.
//
// # Rate Limiting
//
// NewRateLimitedEmbedder wraps any Embedder with a token bucket so bulk
// ingestion does not overrun a hosted embedding endpoint:
//
//	provider, err := openai.NewProvider(ai.NewConfig(ai.WithHost("http://localhost:11434")))
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer provider.Close()
//
//	embedder := ai.NewRateLimitedEmbedder(provider.Embedder(), 5, 10)
//	vector, err := embedder.EmbedText(ctx, "capital expenditure guidance")
//
// Public constructors in ai/openai return interface types. Mock constructors
// return concrete types so tests can inspect call counts.
package ai
