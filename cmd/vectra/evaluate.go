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

package main

import (
	"encoding/json"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/kadirpekel/vectra/pkg/rag"
)

// EvaluateCmd scores the pipeline against an evaluation set.
type EvaluateCmd struct {
	File   string `arg:"" help:"YAML or JSON file listing evaluation cases." type:"path"`
	Format string `short:"f" help:"Output format: table, json." default:"table" enum:"table,json"`
}

func (c *EvaluateCmd) Run(cli *CLI) error {
	ctx, cancel := signalContext()
	defer cancel()

	cases, err := loadEvalCases(c.File)
	if err != nil {
		return err
	}
	if len(cases) == 0 {
		return fmt.Errorf("%s: no evaluation cases", c.File)
	}

	cfg, err := cli.loadConfig()
	if err != nil {
		return err
	}

	engine, err := rag.New(cfg)
	if err != nil {
		return fmt.Errorf("failed to create engine: %w", err)
	}
	defer engine.Close()

	results, err := engine.Evaluate(ctx, cases)
	if err != nil {
		return err
	}

	switch c.Format {
	case "json":
		encoder := json.NewEncoder(os.Stdout)
		encoder.SetIndent("", "  ")
		return encoder.Encode(results)
	default:
		printEvalTable(results)
	}
	return nil
}

// loadEvalCases reads evaluation cases from a YAML or JSON file. The
// file holds a list of {question, expected_ground_truth} objects; YAML
// being a JSON superset, one decoder covers both.
func loadEvalCases(path string) ([]rag.EvalCase, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var cases []rag.EvalCase
	if err := yaml.Unmarshal(data, &cases); err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return cases, nil
}

// printEvalTable prints one row per case plus an average row.
func printEvalTable(results []rag.EvalResult) {
	fmt.Printf("%-50s  %12s  %9s\n", "QUESTION", "FAITHFULNESS", "RELEVANCE")

	var faithSum, relSum float64
	for _, r := range results {
		question := r.Question
		if len(question) > 50 {
			question = question[:47] + "..."
		}
		fmt.Printf("%-50s  %12.2f  %9.2f\n", question, r.Faithfulness, r.Relevance)
		faithSum += r.Faithfulness
		relSum += r.Relevance
	}

	n := float64(len(results))
	fmt.Printf("%-50s  %12.2f  %9.2f\n", "AVERAGE", faithSum/n, relSum/n)
}
