// Copyright 2025 Kadir Pekel
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

package rag

import "log/slog"

// Callbacks lets callers observe pipeline progress. All fields are
// optional. Callbacks are invoked synchronously but their outcome
// never influences the pipeline: return values don't exist and panics
// are recovered and logged.
type Callbacks struct {
	OnIngestStart   func(path string)
	OnIngestEnd     func(path string, chunks int)
	OnIngestSkipped func(path string)
	OnIngestSummary func(summary IngestSummary)

	OnChunkingStart  func(path string)
	OnEmbeddingStart func(chunks int)

	OnRetrievalStart func(query string)
	OnRetrievalEnd   func(docs int)

	OnRerankingStart func(candidates int)
	OnRerankingEnd   func(kept int)

	OnGenerationStart func(query string)
	OnGenerationEnd   func(answer string)

	OnError func(err error)
}

// safeCall shields the pipeline from a panicking callback.
func safeCall(name string, fn func()) {
	defer func() {
		if r := recover(); r != nil {
			slog.Error("Callback panicked", "callback", name, "panic", r)
		}
	}()
	fn()
}

func (c Callbacks) ingestStart(path string) {
	if c.OnIngestStart != nil {
		safeCall("OnIngestStart", func() { c.OnIngestStart(path) })
	}
}

func (c Callbacks) ingestEnd(path string, chunks int) {
	if c.OnIngestEnd != nil {
		safeCall("OnIngestEnd", func() { c.OnIngestEnd(path, chunks) })
	}
}

func (c Callbacks) ingestSkipped(path string) {
	if c.OnIngestSkipped != nil {
		safeCall("OnIngestSkipped", func() { c.OnIngestSkipped(path) })
	}
}

func (c Callbacks) ingestSummary(summary IngestSummary) {
	if c.OnIngestSummary != nil {
		safeCall("OnIngestSummary", func() { c.OnIngestSummary(summary) })
	}
}

func (c Callbacks) chunkingStart(path string) {
	if c.OnChunkingStart != nil {
		safeCall("OnChunkingStart", func() { c.OnChunkingStart(path) })
	}
}

func (c Callbacks) embeddingStart(chunks int) {
	if c.OnEmbeddingStart != nil {
		safeCall("OnEmbeddingStart", func() { c.OnEmbeddingStart(chunks) })
	}
}

func (c Callbacks) retrievalStart(query string) {
	if c.OnRetrievalStart != nil {
		safeCall("OnRetrievalStart", func() { c.OnRetrievalStart(query) })
	}
}

func (c Callbacks) retrievalEnd(docs int) {
	if c.OnRetrievalEnd != nil {
		safeCall("OnRetrievalEnd", func() { c.OnRetrievalEnd(docs) })
	}
}

func (c Callbacks) rerankingStart(candidates int) {
	if c.OnRerankingStart != nil {
		safeCall("OnRerankingStart", func() { c.OnRerankingStart(candidates) })
	}
}

func (c Callbacks) rerankingEnd(kept int) {
	if c.OnRerankingEnd != nil {
		safeCall("OnRerankingEnd", func() { c.OnRerankingEnd(kept) })
	}
}

func (c Callbacks) generationStart(query string) {
	if c.OnGenerationStart != nil {
		safeCall("OnGenerationStart", func() { c.OnGenerationStart(query) })
	}
}

func (c Callbacks) generationEnd(answer string) {
	if c.OnGenerationEnd != nil {
		safeCall("OnGenerationEnd", func() { c.OnGenerationEnd(answer) })
	}
}

func (c Callbacks) errorf(err error) {
	if c.OnError != nil && err != nil {
		safeCall("OnError", func() { c.OnError(err) })
	}
}
