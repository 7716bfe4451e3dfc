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

// Package config defines the engine configuration tree.
//
// Configuration is loaded from YAML (JSON works too since YAML is a
// superset), environment variables are expanded, defaults applied, and
// the result validated. Every node exposes SetDefaults and Validate.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"reflect"
	"time"

	"github.com/mitchellh/mapstructure"
	"gopkg.in/yaml.v3"

	"github.com/kadirpekel/vectra/pkg/observability"
)

// Config is the root configuration.
type Config struct {
	// Embedding configures the embedding backend.
	Embedding EmbeddingConfig `yaml:"embedding,omitempty"`

	// LLM configures the generation backend.
	LLM LLMConfig `yaml:"llm,omitempty"`

	// Chunking controls document splitting.
	Chunking ChunkingConfig `yaml:"chunking,omitempty"`

	// Retrieval controls candidate search.
	Retrieval RetrievalConfig `yaml:"retrieval,omitempty"`

	// Reranking controls LLM-based rescoring.
	Reranking RerankingConfig `yaml:"reranking,omitempty"`

	// Metadata controls chunk metadata extraction.
	Metadata MetadataConfig `yaml:"metadata,omitempty"`

	// QueryPlanning controls context assembly.
	QueryPlanning QueryPlanningConfig `yaml:"query_planning,omitempty"`

	// Grounding controls sentence-level snippet selection.
	Grounding GroundingConfig `yaml:"grounding,omitempty"`

	// Generation controls answer synthesis.
	Generation GenerationConfig `yaml:"generation,omitempty"`

	// Prompts holds user-supplied prompt templates.
	Prompts PromptsConfig `yaml:"prompts,omitempty"`

	// Ingestion controls document indexing.
	Ingestion IngestionConfig `yaml:"ingestion,omitempty"`

	// Memory controls conversation history.
	Memory MemoryConfig `yaml:"memory,omitempty"`

	// Database configures the vector store.
	Database DatabaseConfig `yaml:"database,omitempty"`

	// Logging controls structured logging.
	Logging LoggingConfig `yaml:"logging,omitempty"`

	// Observability configures tracing and metrics.
	Observability *observability.Config `yaml:"observability,omitempty"`

	// Server configures the HTTP API.
	Server ServerConfig `yaml:"server,omitempty"`
}

// SetDefaults applies default values to the whole tree.
func (c *Config) SetDefaults() {
	c.Embedding.SetDefaults()
	c.LLM.SetDefaults()
	c.Chunking.SetDefaults()
	c.Retrieval.SetDefaults()
	c.Reranking.SetDefaults()
	c.Metadata.SetDefaults()
	c.QueryPlanning.SetDefaults()
	c.Grounding.SetDefaults()
	c.Generation.SetDefaults()
	c.Ingestion.SetDefaults()
	c.Memory.SetDefaults()
	c.Database.SetDefaults()
	c.Logging.SetDefaults()
	if c.Observability != nil {
		c.Observability.SetDefaults()
	}
	c.Server.SetDefaults()
}

// Validate checks the whole tree for errors. The first error wins.
func (c *Config) Validate() error {
	if err := c.Embedding.Validate("embedding"); err != nil {
		return err
	}
	if err := c.LLM.Validate("llm"); err != nil {
		return err
	}
	if err := c.Chunking.Validate(); err != nil {
		return err
	}
	if err := c.Retrieval.Validate(); err != nil {
		return err
	}
	if err := c.Reranking.Validate(); err != nil {
		return err
	}
	if err := c.Metadata.Validate(); err != nil {
		return err
	}
	if err := c.QueryPlanning.Validate(); err != nil {
		return err
	}
	if err := c.Grounding.Validate(); err != nil {
		return err
	}
	if err := c.Generation.Validate(); err != nil {
		return err
	}
	if err := c.Ingestion.Validate(); err != nil {
		return err
	}
	if err := c.Memory.Validate(); err != nil {
		return err
	}
	if err := c.Database.Validate(); err != nil {
		return err
	}
	if err := c.Logging.Validate(); err != nil {
		return err
	}
	if c.Observability != nil {
		if err := c.Observability.Validate(); err != nil {
			return NewConfigError("observability", "%v", err)
		}
	}
	if err := c.Server.Validate(); err != nil {
		return err
	}
	return nil
}

// Default returns a fully defaulted configuration without reading any
// file. Useful for tests and zero-config startup.
func Default() *Config {
	cfg := &Config{}
	cfg.SetDefaults()
	return cfg
}

// Load reads, expands, decodes and validates a configuration file.
func Load(path string) (*Config, error) {
	if err := LoadEnvFiles(); err != nil {
		return nil, err
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}
	return Parse(data)
}

// Parse decodes and validates raw configuration bytes.
func Parse(data []byte) (*Config, error) {
	rawMap, err := parseBytes(data)
	if err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	expanded, ok := ExpandEnvVarsInData(rawMap).(map[string]any)
	if !ok {
		expanded = rawMap
	}

	cfg := &Config{}
	if err := decodeConfig(expanded, cfg); err != nil {
		return nil, fmt.Errorf("failed to decode config: %w", err)
	}

	cfg.SetDefaults()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return cfg, nil
}

// parseBytes parses raw bytes into a map. YAML is tried first, JSON as
// a fallback.
func parseBytes(data []byte) (map[string]any, error) {
	var result map[string]any

	if err := yaml.Unmarshal(data, &result); err == nil {
		return result, nil
	}

	if err := json.Unmarshal(data, &result); err != nil {
		return nil, fmt.Errorf("failed to parse as YAML or JSON: %w", err)
	}

	return result, nil
}

// decodeConfig decodes a map into a Config struct using mapstructure.
func decodeConfig(input map[string]any, output *Config) error {
	decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		Result:           output,
		TagName:          "yaml",
		WeaklyTypedInput: true,
		DecodeHook: mapstructure.ComposeDecodeHookFunc(
			mapstructure.StringToTimeDurationHookFunc(),
			stringToDurationHookFunc(),
			mapstructure.StringToSliceHookFunc(","),
		),
	})
	if err != nil {
		return fmt.Errorf("failed to create decoder: %w", err)
	}

	if err := decoder.Decode(input); err != nil {
		return fmt.Errorf("failed to decode: %w", err)
	}

	return nil
}

// stringToDurationHookFunc converts "500ms" style strings into the
// local Duration type during decoding.
func stringToDurationHookFunc() mapstructure.DecodeHookFunc {
	durationType := reflect.TypeOf(Duration(0))
	return func(f reflect.Type, t reflect.Type, data any) (any, error) {
		if f.Kind() != reflect.String || t != durationType {
			return data, nil
		}
		d, err := time.ParseDuration(data.(string))
		if err != nil {
			return nil, err
		}
		return Duration(d), nil
	}
}
