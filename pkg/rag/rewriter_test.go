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
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHypotheticalDocument(t *testing.T) {
	backend := newMockBackend()
	backend.replies = []string{"  A passage that answers it.  "}

	passage, err := NewRewriter(backend).HypotheticalDocument(context.Background(), "what is rrf?")
	require.NoError(t, err)
	assert.Equal(t, "A passage that answers it.", passage)
	assert.Contains(t, backend.prompts[0], "what is rrf?")
}

func TestHypotheticalDocumentErrors(t *testing.T) {
	backend := newMockBackend()
	backend.generateErr = errors.New("backend down")
	_, err := NewRewriter(backend).HypotheticalDocument(context.Background(), "q")
	assert.Error(t, err)

	backend = newMockBackend()
	backend.replies = []string{"   \n  "}
	_, err = NewRewriter(backend).HypotheticalDocument(context.Background(), "q")
	assert.ErrorContains(t, err, "empty hypothetical document")
}

// Rewrite merges reformulations, hypothetical questions and the
// original query, deduplicated in that order.
func TestRewrite(t *testing.T) {
	backend := newMockBackend()
	backend.generateFn = func(prompt, _ string) (string, error) {
		switch {
		case strings.Contains(prompt, "3 different ways"):
			return "alt one\n\nalt two\nalt three\nalt four", nil
		case strings.Contains(prompt, "related questions"):
			return `["q one", " q two ", "original question"]`, nil
		}
		return "", errors.New("unexpected prompt")
	}

	queries, err := NewRewriter(backend).Rewrite(context.Background(), "original question")
	require.NoError(t, err)
	assert.Equal(t, []string{
		"alt one", "alt two", "alt three",
		"q one", "q two",
		"original question",
	}, queries)
}

func TestRewriteDegradesToOriginal(t *testing.T) {
	backend := newMockBackend()
	backend.generateErr = errors.New("backend down")

	queries, err := NewRewriter(backend).Rewrite(context.Background(), "the query")
	require.NoError(t, err)
	assert.Equal(t, []string{"the query"}, queries)
}

func TestRewritePartialFailure(t *testing.T) {
	backend := newMockBackend()
	backend.generateFn = func(prompt, _ string) (string, error) {
		if strings.Contains(prompt, "3 different ways") {
			return "", errors.New("backend down")
		}
		return `["related one"]`, nil
	}

	queries, err := NewRewriter(backend).Rewrite(context.Background(), "the query")
	require.NoError(t, err)
	assert.Equal(t, []string{"related one", "the query"}, queries)
}

func TestRewriteGarbageQuestions(t *testing.T) {
	backend := newMockBackend()
	backend.generateFn = func(prompt, _ string) (string, error) {
		if strings.Contains(prompt, "3 different ways") {
			return "alt one", nil
		}
		return "no array in sight", nil
	}

	queries, err := NewRewriter(backend).Rewrite(context.Background(), "the query")
	require.NoError(t, err)
	assert.Equal(t, []string{"alt one", "the query"}, queries)
}

func TestRewriteCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	backend := newMockBackend()
	backend.generateErr = context.Canceled

	_, err := NewRewriter(backend).Rewrite(ctx, "the query")
	assert.ErrorIs(t, err, context.Canceled)
}
