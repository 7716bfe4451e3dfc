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

import "sync"

// EmbeddingCache memoizes embeddings by chunk SHA-256. Because the key
// is a content hash, writes are idempotent: concurrent writers for the
// same key store identical vectors, so last-writer-wins is safe.
//
// The cache is process-wide per Engine and read-mostly; a RWMutex
// keeps lookups cheap under concurrent ingestion.
type EmbeddingCache struct {
	mu      sync.RWMutex
	vectors map[string][]float32
}

// NewEmbeddingCache creates an empty cache.
func NewEmbeddingCache() *EmbeddingCache {
	return &EmbeddingCache{vectors: make(map[string][]float32)}
}

// Get returns the cached vector for a chunk hash.
func (c *EmbeddingCache) Get(sha256 string) ([]float32, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	vec, ok := c.vectors[sha256]
	return vec, ok
}

// Put stores a vector under a chunk hash.
func (c *EmbeddingCache) Put(sha256 string, vec []float32) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.vectors[sha256] = vec
}

// Len returns the number of cached vectors.
func (c *EmbeddingCache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.vectors)
}
