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

	"github.com/kadirpekel/vectra/pkg/vector"
)

// judgeBackend routes generation calls: judge prompts get scripted
// scores, everything else is treated as answer synthesis.
func judgeBackend(faithful, relevant string, answer func(prompt string) (string, error)) *mockBackend {
	b := newMockBackend()
	b.generateFn = func(prompt, system string) (string, error) {
		switch {
		case strings.Contains(prompt, "how faithful"):
			return faithful, nil
		case strings.Contains(prompt, "how relevant"):
			return relevant, nil
		default:
			return answer(prompt)
		}
	}
	return b
}

func TestEvaluate(t *testing.T) {
	backend := judgeBackend("0.9", "0.75", func(string) (string, error) {
		return "The answer.", nil
	})
	store := &mockStore{results: []vector.SearchResult{
		searchHit("Alpha is a protocol.", 0.9, map[string]any{MetaSummary: "Summary text."}),
	}}
	e := testEngine(t, nil, backend, store)

	results, err := e.Evaluate(context.Background(), []EvalCase{
		{Question: "What is alpha?", ExpectedGroundTruth: "A protocol."},
	})
	require.NoError(t, err)
	require.Len(t, results, 1)

	assert.Equal(t, "What is alpha?", results[0].Question)
	assert.Equal(t, "A protocol.", results[0].ExpectedGroundTruth)
	assert.Equal(t, 0.9, results[0].Faithfulness)
	assert.Equal(t, 0.75, results[0].Relevance)

	// Answer, faithfulness judge, relevance judge.
	require.Equal(t, 3, backend.generateCalls)
	assert.Contains(t, backend.prompts[1], "Summary text.")
	assert.Contains(t, backend.prompts[1], "The answer.")
	assert.Contains(t, backend.prompts[2], "What is alpha?")
}

func TestEvaluateClampsScores(t *testing.T) {
	backend := judgeBackend("Score: 1.5", "I rate this 0.5 out of 1", func(string) (string, error) {
		return "An answer.", nil
	})
	e := testEngine(t, nil, backend, &mockStore{})

	results, err := e.Evaluate(context.Background(), []EvalCase{{Question: "q"}})
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, 1.0, results[0].Faithfulness)
	assert.Equal(t, 0.5, results[0].Relevance)
}

// A case whose query fails scores zero; the run moves on.
func TestEvaluateQueryFailureScoresZero(t *testing.T) {
	backend := judgeBackend("0.8", "0.6", func(prompt string) (string, error) {
		if strings.Contains(prompt, "broken") {
			return "", errors.New("generation failed")
		}
		return "Fine answer.", nil
	})
	e := testEngine(t, nil, backend, &mockStore{})

	results, err := e.Evaluate(context.Background(), []EvalCase{
		{Question: "broken question"},
		{Question: "good question"},
	})
	require.NoError(t, err)
	require.Len(t, results, 2)

	assert.Zero(t, results[0].Faithfulness)
	assert.Zero(t, results[0].Relevance)
	assert.Equal(t, 0.8, results[1].Faithfulness)
	assert.Equal(t, 0.6, results[1].Relevance)
}

func TestEvaluateCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	e := testEngine(t, nil, newMockBackend(), &mockStore{})
	results, err := e.Evaluate(ctx, []EvalCase{{Question: "q"}})
	assert.ErrorIs(t, err, context.Canceled)
	assert.Empty(t, results)
}

// Cancellation between cases returns the scores collected so far.
func TestEvaluateCancelledMidRun(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())

	backend := judgeBackend("0.9", "0.9", func(string) (string, error) {
		cancel()
		return "First answer.", nil
	})
	e := testEngine(t, nil, backend, &mockStore{})

	results, err := e.Evaluate(ctx, []EvalCase{
		{Question: "first"},
		{Question: "second"},
	})
	assert.ErrorIs(t, err, context.Canceled)
	require.Len(t, results, 1)
	assert.Equal(t, "first", results[0].Question)
}

func TestFaithfulnessPromptSkipsMissingSummaries(t *testing.T) {
	result := &QueryResult{
		Answer: "The answer.",
		Sources: []map[string]any{
			{MetaSummary: "First summary."},
			{"source": "no-summary.txt"},
			{MetaSummary: 42},
			{MetaSummary: "Second summary."},
		},
	}

	prompt := faithfulnessPrompt("the question", result)
	assert.Contains(t, prompt, "First summary.\nSecond summary.")
	assert.Contains(t, prompt, "Question: the question")
	assert.Contains(t, prompt, "Answer: The answer.")
}

func TestParseScore(t *testing.T) {
	tests := []struct {
		in   string
		want float64
	}{
		{"0.8", 0.8},
		{"Score: 0.75", 0.75},
		{"I'd say 0.66 roughly", 0.66},
		{"1", 1},
		{"0", 0},
		{"1.5", 1},
		{"42", 1},
		{"no score here", 0},
		{"", 0},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, parseScore(tt.in), "input %q", tt.in)
	}
}
