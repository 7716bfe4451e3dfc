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
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/kadirpekel/vectra/pkg/rag"
)

// IngestCmd indexes a file or directory into the vector store.
type IngestCmd struct {
	Path  string `arg:"" help:"File or directory to ingest." type:"path"`
	Watch bool   `short:"w" help:"Keep watching the directory and re-ingest on changes."`
	Quiet bool   `short:"q" help:"Suppress per-file progress output."`
}

func (c *IngestCmd) Run(cli *CLI) error {
	ctx, cancel := signalContext()
	defer cancel()

	cfg, err := cli.loadConfig()
	if err != nil {
		return err
	}

	callbacks := rag.Callbacks{}
	if !c.Quiet {
		callbacks = rag.Callbacks{
			OnIngestStart: func(path string) {
				fmt.Printf("  indexing %s\n", path)
			},
			OnIngestEnd: func(path string, chunks int) {
				fmt.Printf("  indexed %s (%d chunks)\n", path, chunks)
			},
			OnIngestSkipped: func(path string) {
				fmt.Printf("  skipped %s (unchanged)\n", path)
			},
		}
	}

	engine, err := rag.New(cfg, rag.WithCallbacks(callbacks))
	if err != nil {
		return fmt.Errorf("failed to create engine: %w", err)
	}
	defer engine.Close()

	summary, err := engine.Ingest(ctx, c.Path)
	if err != nil {
		return err
	}
	printSummary(summary)

	if !c.Watch {
		if summary.Failed > 0 {
			return fmt.Errorf("%d of %d files failed", summary.Failed, summary.Processed)
		}
		return nil
	}

	info, err := os.Stat(c.Path)
	if err != nil {
		return err
	}
	if !info.IsDir() {
		return fmt.Errorf("--watch requires a directory")
	}

	watcher, err := rag.NewWatcher(engine, c.Path)
	if err != nil {
		return fmt.Errorf("failed to start watcher: %w", err)
	}
	defer watcher.Close()

	fmt.Printf("\nWatching %s for changes. Press Ctrl+C to stop.\n", c.Path)
	if err := watcher.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}

// printSummary reports an ingestion run on stdout.
func printSummary(summary *rag.IngestSummary) {
	fmt.Printf("\nIngested %d/%d files", summary.Succeeded, summary.Processed)
	if summary.Failed > 0 {
		fmt.Printf(" (%d failed)", summary.Failed)
	}
	fmt.Println()
	for _, e := range summary.Errors {
		fmt.Printf("  %s: %v\n", e.Path, e.Err)
	}
}
