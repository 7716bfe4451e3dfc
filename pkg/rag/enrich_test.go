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
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEnrich(t *testing.T) {
	backend := newMockBackend()
	backend.replies = []string{
		"Here you go:\n{\"summary\": \" A summary. \", \"keywords\": [\" go \", \"\", \"rag\"], \"hypotheticalQuestions\": [\"What changed?\"]}\nDone.",
	}

	enrichment, err := NewEnricher(backend).Enrich(context.Background(), "chunk content")
	require.NoError(t, err)

	assert.Equal(t, "A summary.", enrichment.Summary)
	assert.Equal(t, []string{"go", "rag"}, enrichment.Keywords)
	assert.Equal(t, []string{"What changed?"}, enrichment.HypotheticalQuestions)
	assert.Contains(t, backend.prompts[0], "chunk content")
}

func TestEnrichFallbackOnError(t *testing.T) {
	backend := newMockBackend()
	backend.generateErr = errors.New("backend down")

	content := "beta beta beta gamma gamma alpha delta"
	enrichment, err := NewEnricher(backend).Enrich(context.Background(), content)
	require.NoError(t, err)

	assert.Equal(t, content, enrichment.Summary)
	assert.Equal(t, []string{"beta", "gamma", "alpha", "delta"}, enrichment.Keywords)
	assert.Equal(t, []string{}, enrichment.HypotheticalQuestions)
}

func TestEnrichFallbackOnGarbage(t *testing.T) {
	backend := newMockBackend()
	backend.replies = []string{"no json to be found"}

	enrichment, err := NewEnricher(backend).Enrich(context.Background(), "some words here")
	require.NoError(t, err)
	assert.Equal(t, "some words here", enrichment.Summary)
}

func TestEnrichCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	backend := newMockBackend()
	backend.generateErr = context.Canceled

	_, err := NewEnricher(backend).Enrich(ctx, "content")
	assert.ErrorIs(t, err, context.Canceled)
}

func TestParseEnrichment(t *testing.T) {
	_, ok := parseEnrichment("no braces")
	assert.False(t, ok)

	_, ok = parseEnrichment("{truncated")
	assert.False(t, ok)

	_, ok = parseEnrichment("}{")
	assert.False(t, ok)

	_, ok = parseEnrichment("{\"summary\": 42}")
	assert.False(t, ok)

	got, ok := parseEnrichment("noise {\"summary\":\"s\"} noise")
	require.True(t, ok)
	assert.Equal(t, "s", got.Summary)
}

func TestFrequentTokens(t *testing.T) {
	content := "beta beta beta gamma gamma alpha delta"

	assert.Equal(t, []string{"beta", "gamma"}, frequentTokens(content, 2))
	// Tokens of three runes or fewer never qualify.
	assert.Empty(t, frequentTokens("an ox an ox", 5))
}

func TestHead(t *testing.T) {
	assert.Equal(t, "hello", head("hello", 10))
	assert.Equal(t, "hel", head("hello", 3))
	// The cut shortens to a rune boundary instead of splitting é.
	assert.Equal(t, "h", head("héllo", 2))
}
