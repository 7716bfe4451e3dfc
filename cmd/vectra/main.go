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

// Command vectra is the CLI for the vectra retrieval engine.
//
// Usage:
//
//	vectra ingest ./docs --config vectra.yaml
//	vectra query "What is the refund policy?" --stream
//	vectra serve --config vectra.yaml
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"runtime/debug"
	"syscall"

	"github.com/alecthomas/kong"

	"github.com/kadirpekel/vectra"
	"github.com/kadirpekel/vectra/pkg/config"
)

// CLI defines the command-line interface.
type CLI struct {
	Version  VersionCmd  `cmd:"" help:"Show version information."`
	Validate ValidateCmd `cmd:"" help:"Validate configuration file."`
	Schema   SchemaCmd   `cmd:"" help:"Generate JSON Schema for the configuration."`
	Ingest   IngestCmd   `cmd:"" help:"Index documents into the vector store."`
	Query    QueryCmd    `cmd:"" help:"Answer a single question against the indexed corpus."`
	Chat     ChatCmd     `cmd:"" help:"Interactive question-answering session."`
	Evaluate EvaluateCmd `cmd:"" help:"Score the pipeline against an evaluation set."`
	Serve    ServeCmd    `cmd:"" help:"Start the HTTP API server."`

	Config    string `short:"c" help:"Path to config file." type:"path"`
	LogLevel  string `help:"Log level (debug, info, warn, error). Defaults to info."`
	LogFile   string `help:"Log file path (empty = stderr)."`
	LogFormat string `help:"Log format (text or json). Defaults to text."`
}

// loadConfig loads the file named by --config, or a fully defaulted
// configuration when the flag is absent. Zero-config mode still reads
// .env files so provider API keys resolve from the environment.
func (c *CLI) loadConfig() (*config.Config, error) {
	if c.Config == "" {
		if err := config.LoadEnvFiles(); err != nil {
			return nil, err
		}
		slog.Info("No config file given, using defaults")
		return config.Default(), nil
	}

	cfg, err := config.Load(c.Config)
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	slog.Info("Loaded configuration", "path", c.Config)
	return cfg, nil
}

// signalContext returns a context cancelled on SIGINT or SIGTERM.
func signalContext() (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(context.Background())

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		slog.Info("Shutting down...")
		cancel()
	}()

	return ctx, cancel
}

// VersionCmd shows version information.
type VersionCmd struct{}

func (c *VersionCmd) Run() error {
	info := vectra.GetVersion()
	// Module version from the build wins over the baked-in default
	// when installed via go install.
	if bi, ok := debug.ReadBuildInfo(); ok {
		if bi.Main.Version != "(devel)" && bi.Main.Version != "" {
			info.Version = bi.Main.Version
		}
	}
	fmt.Println(info)
	return nil
}

// printBanner prints a colored ASCII banner using vectra-violet (#7c3aed)
func printBanner() {
	// Check if stdout is a terminal
	if fileInfo, err := os.Stdout.Stat(); err == nil {
		if (fileInfo.Mode() & os.ModeCharDevice) == 0 {
			// Not a terminal, skip banner
			return
		}
	} else {
		return
	}

	// Violet color: #7c3aed = RGB(124, 58, 237)
	violetColor := "\033[38;2;124;58;237m"
	resetColor := "\033[0m"

	banner := `
██╗   ██╗███████╗ ██████╗████████╗██████╗  █████╗
██║   ██║██╔════╝██╔════╝╚══██╔══╝██╔══██╗██╔══██╗
██║   ██║█████╗  ██║        ██║   ██████╔╝███████║
╚██╗ ██╔╝██╔══╝  ██║        ██║   ██╔══██╗██╔══██║
 ╚████╔╝ ███████╗╚██████╗   ██║   ██║  ██║██║  ██║
  ╚═══╝  ╚══════╝ ╚═════╝   ╚═╝   ╚═╝  ╚═╝╚═╝  ╚═╝
`
	fmt.Printf("%s%s%s\n", violetColor, banner, resetColor)
}

// shouldShowBanner limits the banner to the long-running interactive
// commands. Everything else keeps stdout clean for piping.
func shouldShowBanner(args []string) bool {
	for _, arg := range args[1:] {
		if arg == "serve" || arg == "chat" {
			return true
		}
	}
	return false
}

func main() {
	if shouldShowBanner(os.Args) {
		printBanner()
	}

	cli := CLI{}
	ctx := kong.Parse(&cli,
		kong.Name("vectra"),
		kong.Description("vectra - Provider-agnostic retrieval-augmented generation engine"),
		kong.UsageOnError(),
	)

	// Initialize logger with CLI flags/env vars (before config loading)
	cleanup, err := initLoggerFromCLI(cli.LogLevel, cli.LogFile, cli.LogFormat)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	if cleanup != nil {
		defer cleanup()
	}

	err = ctx.Run(&cli)
	ctx.FatalIfErrorf(err)
}
