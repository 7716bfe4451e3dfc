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

import "time"

// Provider identifies a language-model provider family.
type Provider string

const (
	ProviderOpenAI      Provider = "openai"
	ProviderGemini      Provider = "gemini"
	ProviderAnthropic   Provider = "anthropic"
	ProviderOpenRouter  Provider = "openrouter"
	ProviderHuggingFace Provider = "huggingface"
	ProviderOllama      Provider = "ollama"
)

// providerCapabilities records which operations each provider family
// supports. Missing capabilities are detected at config validation, not
// at first call.
var providerCapabilities = map[Provider]struct {
	embeddings bool
	generation bool
}{
	ProviderOpenAI:      {embeddings: true, generation: true},
	ProviderGemini:      {embeddings: true, generation: true},
	ProviderAnthropic:   {embeddings: false, generation: true},
	ProviderOpenRouter:  {embeddings: false, generation: true},
	ProviderHuggingFace: {embeddings: true, generation: true},
	ProviderOllama:      {embeddings: true, generation: true},
}

// Valid reports whether p is a known provider.
func (p Provider) Valid() bool {
	_, ok := providerCapabilities[p]
	return ok
}

// SupportsEmbeddings reports whether the provider can embed text.
func (p Provider) SupportsEmbeddings() bool {
	return providerCapabilities[p].embeddings
}

// SupportsGeneration reports whether the provider can generate text.
func (p Provider) SupportsGeneration() bool {
	return providerCapabilities[p].generation
}

// providerList returns the valid provider names for error messages.
const providerList = "openai, gemini, anthropic, openrouter, huggingface, ollama"

// LLMConfig configures a generation backend.
//
// Example YAML:
//
//	llm:
//	  provider: openai
//	  model: gpt-4o-mini
//	  api_key: ${OPENAI_API_KEY}
//	  temperature: 0.2
type LLMConfig struct {
	// Provider is the provider family: openai, gemini, anthropic,
	// openrouter, huggingface, ollama.
	Provider Provider `yaml:"provider"`

	// Model is the model name (e.g. "gpt-4o-mini").
	Model string `yaml:"model"`

	// APIKey authenticates against the provider. Falls back to the
	// conventional environment variable when empty.
	APIKey string `yaml:"api_key,omitempty"`

	// Temperature controls randomness (0-2).
	Temperature float64 `yaml:"temperature,omitempty"`

	// MaxTokens limits the response length.
	MaxTokens int `yaml:"max_tokens,omitempty"`

	// BaseURL overrides the provider endpoint (self-hosted gateways,
	// OpenAI-compatible servers).
	BaseURL string `yaml:"base_url,omitempty"`

	// DefaultHeaders are sent with every request (e.g. OpenRouter
	// attribution headers).
	DefaultHeaders map[string]string `yaml:"default_headers,omitempty"`

	// Timeout bounds a single request.
	Timeout Duration `yaml:"timeout,omitempty"`
}

// SetDefaults applies default values.
func (c *LLMConfig) SetDefaults() {
	if c.Provider == "" {
		c.Provider = ProviderOpenAI
	}
	if c.Temperature == 0 {
		c.Temperature = 0.7
	}
	if c.MaxTokens == 0 {
		c.MaxTokens = 4096
	}
	if c.APIKey == "" {
		c.APIKey = ProviderAPIKey(string(c.Provider))
	}
	if c.Timeout <= 0 {
		c.Timeout = Duration(2 * time.Minute)
	}
}

// Validate checks the configuration for errors.
func (c *LLMConfig) Validate(path string) error {
	if !c.Provider.Valid() {
		return NewConfigError(path+".provider", "invalid provider %q (valid: %s)", c.Provider, providerList)
	}
	if !c.Provider.SupportsGeneration() {
		return NewConfigError(path+".provider", "provider %q does not support text generation", c.Provider)
	}
	if c.Model == "" {
		return NewConfigError(path+".model", "model is required")
	}
	if c.Temperature < 0 || c.Temperature > 2 {
		return NewConfigError(path+".temperature", "temperature must be between 0 and 2, got %g", c.Temperature)
	}
	if c.MaxTokens < 0 {
		return NewConfigError(path+".max_tokens", "max_tokens must be non-negative")
	}
	return nil
}

// EmbeddingConfig configures an embedding backend.
//
// Example YAML:
//
//	embedding:
//	  provider: openai
//	  model: text-embedding-3-small
//	  dimensions: 1536
type EmbeddingConfig struct {
	// Provider is the provider family. Providers without an embeddings
	// endpoint (anthropic, openrouter) are rejected at validation.
	Provider Provider `yaml:"provider"`

	// Model is the embedding model name.
	Model string `yaml:"model"`

	// APIKey authenticates against the provider.
	APIKey string `yaml:"api_key,omitempty"`

	// Dimensions pins the embedding dimension. Zero means the model
	// default; when set, all stored vectors must match it.
	Dimensions int `yaml:"dimensions,omitempty"`

	// BaseURL overrides the provider endpoint.
	BaseURL string `yaml:"base_url,omitempty"`

	// Timeout bounds a single request.
	Timeout Duration `yaml:"timeout,omitempty"`
}

// SetDefaults applies default values.
func (c *EmbeddingConfig) SetDefaults() {
	if c.Provider == "" {
		c.Provider = ProviderOpenAI
	}
	if c.Model == "" {
		switch c.Provider {
		case ProviderOpenAI:
			c.Model = "text-embedding-3-small"
		case ProviderOllama:
			c.Model = "nomic-embed-text"
		case ProviderGemini:
			c.Model = "text-embedding-004"
		}
	}
	if c.APIKey == "" {
		c.APIKey = ProviderAPIKey(string(c.Provider))
	}
	if c.Timeout <= 0 {
		c.Timeout = Duration(time.Minute)
	}
}

// Validate checks the configuration for errors.
func (c *EmbeddingConfig) Validate(path string) error {
	if !c.Provider.Valid() {
		return NewConfigError(path+".provider", "invalid provider %q (valid: %s)", c.Provider, providerList)
	}
	if !c.Provider.SupportsEmbeddings() {
		return NewConfigError(path+".provider", "provider %q does not support embeddings", c.Provider)
	}
	if c.Model == "" {
		return NewConfigError(path+".model", "model is required")
	}
	if c.Dimensions < 0 {
		return NewConfigError(path+".dimensions", "dimensions must be non-negative")
	}
	return nil
}
