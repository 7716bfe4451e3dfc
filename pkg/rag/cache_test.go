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

import (
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestEmbeddingCache(t *testing.T) {
	cache := NewEmbeddingCache()

	_, ok := cache.Get("missing")
	assert.False(t, ok)
	assert.Equal(t, 0, cache.Len())

	cache.Put("sha-1", []float32{0.1, 0.2})
	vec, ok := cache.Get("sha-1")
	assert.True(t, ok)
	assert.Equal(t, []float32{0.1, 0.2}, vec)
	assert.Equal(t, 1, cache.Len())
}

func TestEmbeddingCacheConcurrent(t *testing.T) {
	cache := NewEmbeddingCache()

	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			key := fmt.Sprintf("sha-%d", i%4)
			cache.Put(key, []float32{float32(i)})
			cache.Get(key)
		}(i)
	}
	wg.Wait()

	assert.Equal(t, 4, cache.Len())
}
