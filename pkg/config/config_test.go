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

package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"gopkg.in/yaml.v3"
)

func TestLoad(t *testing.T) {
	tmpDir := t.TempDir()
	configFile := filepath.Join(tmpDir, "test.yaml")

	configYAML := `
embedding:
  provider: openai
  model: text-embedding-3-small
  api_key: test-key
  dimensions: 1536
llm:
  provider: openai
  model: gpt-4o-mini
  api_key: test-key
  temperature: 0.2
  timeout: 45s
chunking:
  chunk_size: 800
  chunk_overlap: 80
retrieval:
  strategy: mmr
  mmr_lambda: 0.7
database:
  type: chromem
  collection: docs
`
	if err := os.WriteFile(configFile, []byte(configYAML), 0644); err != nil {
		t.Fatalf("failed to create test config: %v", err)
	}

	cfg, err := Load(configFile)
	if err != nil {
		t.Fatalf("failed to load config: %v", err)
	}

	if cfg.Embedding.Dimensions != 1536 {
		t.Errorf("expected dimensions 1536, got %d", cfg.Embedding.Dimensions)
	}
	if cfg.LLM.Temperature != 0.2 {
		t.Errorf("expected temperature 0.2, got %g", cfg.LLM.Temperature)
	}
	if cfg.LLM.Timeout.Duration() != 45*time.Second {
		t.Errorf("expected 45s timeout, got %s", cfg.LLM.Timeout)
	}
	if cfg.Chunking.ChunkSize != 800 {
		t.Errorf("expected chunk_size 800, got %d", cfg.Chunking.ChunkSize)
	}
	if cfg.Retrieval.Strategy != RetrievalMMR {
		t.Errorf("expected mmr strategy, got %q", cfg.Retrieval.Strategy)
	}
	if cfg.Retrieval.MMRLambda != 0.7 {
		t.Errorf("expected mmr_lambda 0.7, got %g", cfg.Retrieval.MMRLambda)
	}
	if cfg.Database.Collection != "docs" {
		t.Errorf("expected collection docs, got %q", cfg.Database.Collection)
	}

	// Defaults fill the rest of the tree.
	if cfg.Ingestion.Mode != IngestionSkip {
		t.Errorf("expected default ingestion mode skip, got %q", cfg.Ingestion.Mode)
	}
	if cfg.QueryPlanning.TokenBudget != 2048 {
		t.Errorf("expected default token_budget 2048, got %d", cfg.QueryPlanning.TokenBudget)
	}
	if cfg.Memory.MaxMessages != 20 {
		t.Errorf("expected default max_messages 20, got %d", cfg.Memory.MaxMessages)
	}
	if cfg.Logging.Level != "info" {
		t.Errorf("expected default log level info, got %q", cfg.Logging.Level)
	}
}

func TestLoadMissingFile(t *testing.T) {
	if _, err := Load("/nonexistent/vectra.yaml"); err == nil {
		t.Fatal("expected error for nonexistent file")
	}
}

func TestParseEnvExpansion(t *testing.T) {
	t.Setenv("VECTRA_TEST_KEY", "secret-from-env")

	cfg, err := Parse([]byte(`
llm:
  provider: openai
  model: gpt-4o-mini
  api_key: ${VECTRA_TEST_KEY}
embedding:
  provider: openai
  model: text-embedding-3-small
  api_key: ${VECTRA_MISSING:-fallback-key}
`))
	if err != nil {
		t.Fatalf("failed to parse config: %v", err)
	}

	if cfg.LLM.APIKey != "secret-from-env" {
		t.Errorf("expected env-expanded api key, got %q", cfg.LLM.APIKey)
	}
	if cfg.Embedding.APIKey != "fallback-key" {
		t.Errorf("expected default-expanded api key, got %q", cfg.Embedding.APIKey)
	}
}

func TestValidateErrors(t *testing.T) {
	tests := []struct {
		name     string
		mutate   func(*Config)
		wantPath string
	}{
		{
			name:     "unknown llm provider",
			mutate:   func(c *Config) { c.LLM.Provider = "grok" },
			wantPath: "llm.provider",
		},
		{
			name:     "embedding provider without embeddings",
			mutate:   func(c *Config) { c.Embedding.Provider = ProviderAnthropic },
			wantPath: "embedding.provider",
		},
		{
			name: "overlap not below chunk size",
			mutate: func(c *Config) {
				c.Chunking.ChunkSize = 100
				c.Chunking.ChunkOverlap = 100
			},
			wantPath: "chunking.chunk_overlap",
		},
		{
			name:     "bad retrieval strategy",
			mutate:   func(c *Config) { c.Retrieval.Strategy = "fancy" },
			wantPath: "retrieval.strategy",
		},
		{
			name: "reranking window below top_n",
			mutate: func(c *Config) {
				c.Reranking.TopN = 10
				c.Reranking.WindowSize = 5
			},
			wantPath: "reranking.window_size",
		},
		{
			name:     "bad ingestion mode",
			mutate:   func(c *Config) { c.Ingestion.Mode = "merge" },
			wantPath: "ingestion.mode",
		},
		{
			name: "sql injection in table name",
			mutate: func(c *Config) {
				c.Database.Type = DatabasePostgres
				c.Database.DSN = "postgres://localhost/vectra"
				c.Database.TableName = "documents; DROP TABLE users"
			},
			wantPath: "database.table_name",
		},
		{
			name: "sql injection in column map",
			mutate: func(c *Config) {
				c.Database.Type = DatabasePostgres
				c.Database.DSN = "postgres://localhost/vectra"
				c.Database.ColumnMap.Embedding = "embedding--"
			},
			wantPath: "database.column_map.embedding",
		},
		{
			name:     "bad log level",
			mutate:   func(c *Config) { c.Logging.Level = "verbose" },
			wantPath: "logging.level",
		},
		{
			name: "relational memory without dsn",
			mutate: func(c *Config) {
				c.Memory.Enabled = true
				c.Memory.Kind = MemoryRelational
				c.Memory.Database.Driver = "postgres"
			},
			wantPath: "memory.database.dsn",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validConfig()
			tt.mutate(cfg)

			err := cfg.Validate()
			if err == nil {
				t.Fatal("expected validation error")
			}

			var cfgErr *ConfigError
			if !errors.As(err, &cfgErr) {
				t.Fatalf("expected *ConfigError, got %T: %v", err, err)
			}
			if cfgErr.Path != tt.wantPath {
				t.Errorf("expected path %q, got %q", tt.wantPath, cfgErr.Path)
			}
		})
	}
}

func TestConfigErrorMessage(t *testing.T) {
	err := NewConfigError("retrieval.mmr_lambda", "must be between %d and %d", 0, 1)
	want := "config retrieval.mmr_lambda: must be between 0 and 1"
	if err.Error() != want {
		t.Errorf("expected %q, got %q", want, err.Error())
	}
}

func TestProviderCapabilities(t *testing.T) {
	if ProviderAnthropic.SupportsEmbeddings() {
		t.Error("anthropic must not report embedding support")
	}
	if ProviderOpenRouter.SupportsEmbeddings() {
		t.Error("openrouter must not report embedding support")
	}
	if !ProviderOpenAI.SupportsEmbeddings() || !ProviderOpenAI.SupportsGeneration() {
		t.Error("openai must support both operations")
	}
	if Provider("grok").Valid() {
		t.Error("unknown provider must be invalid")
	}
}

func TestDurationUnmarshalYAML(t *testing.T) {
	var out struct {
		D Duration `yaml:"d"`
	}

	if err := yaml.Unmarshal([]byte("d: 500ms"), &out); err != nil {
		t.Fatalf("failed to unmarshal duration string: %v", err)
	}
	if out.D.Duration() != 500*time.Millisecond {
		t.Errorf("expected 500ms, got %s", out.D)
	}

	if err := yaml.Unmarshal([]byte("d: 1000000000"), &out); err != nil {
		t.Fatalf("failed to unmarshal duration integer: %v", err)
	}
	if out.D.Duration() != time.Second {
		t.Errorf("expected 1s, got %s", out.D)
	}

	if err := yaml.Unmarshal([]byte("d: soon"), &out); err == nil {
		t.Error("expected error for invalid duration")
	}
}

func TestDefaultIsValid(t *testing.T) {
	cfg := Default()
	// The generation model is operator-supplied and has no default.
	cfg.LLM.Model = "gpt-4o-mini"

	if err := cfg.Validate(); err != nil {
		t.Fatalf("default config must validate: %v", err)
	}
	if cfg.Database.Type != DatabaseChromem {
		t.Errorf("expected chromem default database, got %q", cfg.Database.Type)
	}
	if cfg.Server.Address() != "0.0.0.0:8080" {
		t.Errorf("unexpected default server address %q", cfg.Server.Address())
	}
}

func TestExpandEnvVarsInData(t *testing.T) {
	t.Setenv("VECTRA_HOST", "qdrant.internal")

	data := map[string]any{
		"host": "${VECTRA_HOST}",
		"nested": map[string]any{
			"list": []any{"$VECTRA_HOST", "static"},
		},
		"port": 6334,
	}

	out, ok := ExpandEnvVarsInData(data).(map[string]any)
	if !ok {
		t.Fatal("expected map result")
	}
	if out["host"] != "qdrant.internal" {
		t.Errorf("expected expanded host, got %v", out["host"])
	}
	nested := out["nested"].(map[string]any)
	list := nested["list"].([]any)
	if list[0] != "qdrant.internal" || list[1] != "static" {
		t.Errorf("unexpected list expansion: %v", list)
	}
	if out["port"] != 6334 {
		t.Errorf("non-string values must pass through, got %v", out["port"])
	}
}

// validConfig builds a config that passes validation, used as the base
// for mutation tests.
func validConfig() *Config {
	cfg := Default()
	cfg.LLM.Model = "gpt-4o-mini"
	cfg.LLM.APIKey = "test-key"
	cfg.Embedding.APIKey = "test-key"
	return cfg
}
