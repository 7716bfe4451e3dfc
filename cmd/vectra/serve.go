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
	"fmt"
	"log/slog"

	"github.com/kadirpekel/vectra/pkg/observability"
	"github.com/kadirpekel/vectra/pkg/rag"
	"github.com/kadirpekel/vectra/pkg/server"
)

// ServeCmd starts the HTTP API server.
type ServeCmd struct {
	Host     string `help:"Interface to bind (overrides config)."`
	Port     int    `help:"Port to listen on (overrides config)."`
	WatchDir string `name:"watch-dir" help:"Directory to ingest at startup and watch for changes while serving." type:"path"`
}

func (c *ServeCmd) Run(cli *CLI) error {
	ctx, cancel := signalContext()
	defer cancel()

	cfg, err := cli.loadConfig()
	if err != nil {
		return err
	}

	// The config file's logging section wins for the server process
	// unless CLI flags or env vars say otherwise.
	if !cli.loggingOverridden() {
		cleanup, err := initLoggerFromConfig(&cfg.Logging)
		if err != nil {
			return err
		}
		if cleanup != nil {
			defer cleanup()
		}
	}

	if c.Host != "" {
		cfg.Server.Host = c.Host
	}
	if c.Port != 0 {
		cfg.Server.Port = c.Port
	}

	if cfg.Observability != nil && cfg.Observability.Tracing.Enabled {
		tp, err := observability.InitTracer(ctx, cfg.Observability.Tracing)
		if err != nil {
			return fmt.Errorf("failed to initialize tracing: %w", err)
		}
		defer func() {
			if err := observability.Shutdown(context.Background(), tp); err != nil {
				slog.Warn("Tracer shutdown failed", "error", err)
			}
		}()
	}

	if cfg.Observability != nil && cfg.Observability.Metrics.Enabled {
		metrics, err := observability.InitMetrics(ctx, cfg.Observability.Metrics)
		if err != nil {
			return fmt.Errorf("failed to initialize metrics: %w", err)
		}
		observability.SetGlobalMetrics(metrics)
	}

	engine, err := rag.New(cfg)
	if err != nil {
		return fmt.Errorf("failed to create engine: %w", err)
	}
	defer engine.Close()

	if c.WatchDir != "" {
		// Index asynchronously so startup is not blocked by a large corpus.
		go func() {
			if _, err := engine.Ingest(ctx, c.WatchDir); err != nil && ctx.Err() == nil {
				slog.Warn("Startup ingestion failed", "path", c.WatchDir, "error", err)
			}
		}()

		watcher, err := rag.NewWatcher(engine, c.WatchDir)
		if err != nil {
			return fmt.Errorf("failed to start watcher: %w", err)
		}
		defer watcher.Close()
		go func() {
			if err := watcher.Run(ctx); err != nil && ctx.Err() == nil {
				slog.Error("Watcher stopped", "error", err)
			}
		}()
	}

	srv := server.New(cfg.Server, engine)

	violetColor := "\033[38;2;124;58;237m"
	resetColor := "\033[0m"
	fmt.Printf("\n%svectra server ready!%s\n", violetColor, resetColor)
	fmt.Printf("   Query:   http://%s/v1/query\n", cfg.Server.Address())
	fmt.Printf("   Ingest:  http://%s/v1/ingest\n", cfg.Server.Address())
	fmt.Printf("   Health:  http://%s/healthz\n", cfg.Server.Address())
	fmt.Printf("   Metrics: http://%s/metrics\n", cfg.Server.Address())
	if cfg.Server.AuthToken != "" {
		fmt.Printf("   Auth:    bearer token required\n")
	}
	if c.WatchDir != "" {
		fmt.Printf("   Watch:   %s\n", c.WatchDir)
	}
	fmt.Println("\nPress Ctrl+C to stop")

	return srv.Run(ctx)
}
