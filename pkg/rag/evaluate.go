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
	"fmt"
	"log/slog"
	"regexp"
	"strconv"
	"strings"
)

// EvalCase is one evaluation item: a question and the answer it is
// expected to ground out in.
type EvalCase struct {
	Question            string `json:"question" yaml:"question"`
	ExpectedGroundTruth string `json:"expectedGroundTruth" yaml:"expected_ground_truth"`
}

// EvalResult scores one case. Scores are in [0, 1]; a case whose
// query or judging failed scores 0.
type EvalResult struct {
	Question            string  `json:"question"`
	ExpectedGroundTruth string  `json:"expectedGroundTruth"`
	Faithfulness        float64 `json:"faithfulness"`
	Relevance           float64 `json:"relevance"`
}

// Evaluate runs the full query pipeline for each case and has the
// generation backend judge the answers: faithfulness against the
// source summaries, relevance against the question. Per-case failures
// score 0 and the run continues; only cancellation aborts it.
func (e *Engine) Evaluate(ctx context.Context, cases []EvalCase) ([]EvalResult, error) {
	results := make([]EvalResult, 0, len(cases))
	for _, c := range cases {
		if err := ctx.Err(); err != nil {
			return results, err
		}

		result := EvalResult{Question: c.Question, ExpectedGroundTruth: c.ExpectedGroundTruth}

		answer, err := e.Query(ctx, c.Question, QueryOptions{})
		if err != nil {
			if ctx.Err() != nil {
				return results, ctx.Err()
			}
			slog.Warn("Evaluation query failed", "question", c.Question, "error", err)
			results = append(results, result)
			continue
		}

		result.Faithfulness = e.judge(ctx, faithfulnessPrompt(c.Question, answer))
		result.Relevance = e.judge(ctx, relevancePrompt(c.Question, answer.Answer))
		results = append(results, result)
	}
	return results, nil
}

func faithfulnessPrompt(question string, result *QueryResult) string {
	var summaries []string
	for _, src := range result.Sources {
		if s, ok := src[MetaSummary].(string); ok && s != "" {
			summaries = append(summaries, s)
		}
	}
	return fmt.Sprintf("Rate from 0 to 1 how faithful the answer is to the source material.\n\nSources:\n%s\n\nQuestion: %s\n\nAnswer: %s\n\nRespond with a single number between 0 and 1, no other text.",
		strings.Join(summaries, "\n"), question, result.Answer)
}

func relevancePrompt(question, answer string) string {
	return fmt.Sprintf("Rate from 0 to 1 how relevant the answer is to the question.\n\nQuestion: %s\n\nAnswer: %s\n\nRespond with a single number between 0 and 1, no other text.",
		question, answer)
}

// judge asks the generation backend for a score. Any failure,
// including unparseable output, scores 0.
func (e *Engine) judge(ctx context.Context, prompt string) float64 {
	reply, err := e.generator.Generate(ctx, prompt, "")
	if err != nil {
		slog.Debug("Judge call failed", "error", err)
		return 0
	}
	return parseScore(reply)
}

var firstNumber = regexp.MustCompile(`\d+(\.\d+)?`)

// parseScore extracts the first number from judge output, clamped to
// [0, 1].
func parseScore(s string) float64 {
	match := firstNumber.FindString(s)
	if match == "" {
		return 0
	}
	score, err := strconv.ParseFloat(match, 64)
	if err != nil {
		return 0
	}
	return min(max(score, 0), 1)
}
