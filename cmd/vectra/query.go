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
	"fmt"

	"github.com/kadirpekel/vectra/pkg/rag"
	"github.com/kadirpekel/vectra/pkg/vector"
)

// QueryCmd answers a single question against the indexed corpus.
type QueryCmd struct {
	Text    string            `arg:"" help:"Question to ask."`
	Stream  bool              `help:"Stream the answer as it is generated."`
	Session string            `help:"Session id for conversation memory."`
	Filter  map[string]string `help:"Metadata filter (key=value pairs)." mapsep:","`
	Sources bool              `help:"Print source attributions after the answer."`
}

func (c *QueryCmd) Run(cli *CLI) error {
	ctx, cancel := signalContext()
	defer cancel()

	cfg, err := cli.loadConfig()
	if err != nil {
		return err
	}

	engine, err := rag.New(cfg)
	if err != nil {
		return fmt.Errorf("failed to create engine: %w", err)
	}
	defer engine.Close()

	opts := rag.QueryOptions{SessionID: c.Session}
	if len(c.Filter) > 0 {
		opts.Filter = make(map[string]any, len(c.Filter))
		for k, v := range c.Filter {
			opts.Filter[k] = v
		}
	}

	if c.Stream {
		chunks, err := engine.QueryStream(ctx, c.Text, opts)
		if err != nil {
			return err
		}
		for chunk := range chunks {
			if chunk.Err != nil {
				fmt.Println()
				return chunk.Err
			}
			fmt.Print(chunk.Delta)
		}
		fmt.Println()
		return nil
	}

	result, err := engine.Query(ctx, c.Text, opts)
	if err != nil {
		return err
	}
	fmt.Println(result.Answer)
	if c.Sources {
		printSources(result.Sources)
	}
	return nil
}

// printSources lists the documents an answer was drawn from, one line
// per source with whatever location metadata the chunk carries.
func printSources(sources []map[string]any) {
	if len(sources) == 0 {
		return
	}
	fmt.Println("\nSources:")
	for _, src := range sources {
		name, _ := src[vector.MetaSource].(string)
		if name == "" {
			name = "(unknown)"
		}
		line := "  - " + name
		if section, ok := src[rag.MetaSection].(string); ok && section != "" {
			line += ", section " + section
		}
		// Page numbers survive store roundtrips as int, float64 or
		// string depending on the backend. Zero means unpaginated.
		if page, ok := src[rag.MetaPageFrom]; ok {
			if s := fmt.Sprint(page); s != "" && s != "0" {
				line += ", page " + s
			}
		}
		fmt.Println(line)
	}
}
