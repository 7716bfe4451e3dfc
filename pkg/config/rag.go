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

// Chunking strategies.
const (
	ChunkingRecursive = "recursive"
	ChunkingAgentic   = "agentic"
)

var validChunkingStrategies = map[string]bool{
	ChunkingRecursive: true,
	ChunkingAgentic:   true,
}

// ChunkingConfig controls how documents are split before embedding.
type ChunkingConfig struct {
	// Strategy selects the chunker: "recursive" (sentence windows with
	// entropy-adaptive overlap) or "agentic" (LLM proposition extraction
	// on top of recursive windows).
	Strategy string `yaml:"strategy,omitempty"`

	// ChunkSize is the target window length in characters.
	ChunkSize int `yaml:"chunk_size,omitempty"`

	// ChunkOverlap is the base overlap carried between windows. The
	// effective overlap grows with the entropy of the emitted window.
	ChunkOverlap int `yaml:"chunk_overlap,omitempty"`

	// Separators are tried in order for coarse pre-splitting before
	// sentence scanning.
	Separators []string `yaml:"separators,omitempty"`

	// AgenticLLM overrides the generation backend used for proposition
	// extraction. Only consulted when Strategy is "agentic".
	AgenticLLM *LLMConfig `yaml:"agentic_llm,omitempty"`
}

// SetDefaults applies default values.
func (c *ChunkingConfig) SetDefaults() {
	if c.Strategy == "" {
		c.Strategy = ChunkingRecursive
	}
	if c.ChunkSize == 0 {
		c.ChunkSize = 500
	}
	if c.ChunkOverlap == 0 {
		c.ChunkOverlap = 50
	}
	if len(c.Separators) == 0 {
		c.Separators = []string{"\n\n", "\n", ". ", " "}
	}
	if c.AgenticLLM != nil {
		c.AgenticLLM.SetDefaults()
	}
}

// Validate checks the configuration for errors.
func (c *ChunkingConfig) Validate() error {
	if !validChunkingStrategies[c.Strategy] {
		return NewConfigError("chunking.strategy", "invalid strategy %q (valid: recursive, agentic)", c.Strategy)
	}
	if c.ChunkSize <= 0 {
		return NewConfigError("chunking.chunk_size", "chunk_size must be positive, got %d", c.ChunkSize)
	}
	if c.ChunkOverlap < 0 {
		return NewConfigError("chunking.chunk_overlap", "chunk_overlap must be non-negative, got %d", c.ChunkOverlap)
	}
	if c.ChunkOverlap >= c.ChunkSize {
		return NewConfigError("chunking.chunk_overlap", "chunk_overlap (%d) must be smaller than chunk_size (%d)", c.ChunkOverlap, c.ChunkSize)
	}
	if c.AgenticLLM != nil {
		if err := c.AgenticLLM.Validate("chunking.agentic_llm"); err != nil {
			return err
		}
	}
	return nil
}

// Retrieval strategies.
const (
	RetrievalNaive      = "naive"
	RetrievalHyDE       = "hyde"
	RetrievalMultiQuery = "multi-query"
	RetrievalHybrid     = "hybrid"
	RetrievalMMR        = "mmr"
)

var validRetrievalStrategies = map[string]bool{
	RetrievalNaive:      true,
	RetrievalHyDE:       true,
	RetrievalMultiQuery: true,
	RetrievalHybrid:     true,
	RetrievalMMR:        true,
}

// RetrievalConfig controls how candidates are fetched from the store.
type RetrievalConfig struct {
	// Strategy selects the search pipeline: naive, hyde, multi-query,
	// hybrid, mmr.
	Strategy string `yaml:"strategy,omitempty"`

	// TopK is the number of results when reranking is disabled. When
	// reranking is enabled the reranker's window size wins.
	TopK int `yaml:"top_k,omitempty"`

	// LLM overrides the generation backend used by query rewriting
	// (hyde, multi-query). Falls back to the main llm when unset.
	LLM *LLMConfig `yaml:"llm,omitempty"`

	// MMRLambda balances relevance against diversity (0 = max
	// diversity, 1 = pure relevance). Clamped to [0, 1] at use.
	MMRLambda float64 `yaml:"mmr_lambda,omitempty"`

	// MMRFetchK is the candidate pool size fetched before MMR
	// selection. The effective pool is max(mmr_fetch_k, k).
	MMRFetchK int `yaml:"mmr_fetch_k,omitempty"`
}

// SetDefaults applies default values.
func (c *RetrievalConfig) SetDefaults() {
	if c.Strategy == "" {
		c.Strategy = RetrievalNaive
	}
	if c.TopK == 0 {
		c.TopK = 5
	}
	if c.MMRLambda == 0 {
		c.MMRLambda = 0.5
	}
	if c.MMRFetchK == 0 {
		c.MMRFetchK = 20
	}
	if c.LLM != nil {
		c.LLM.SetDefaults()
	}
}

// Validate checks the configuration for errors.
func (c *RetrievalConfig) Validate() error {
	if !validRetrievalStrategies[c.Strategy] {
		return NewConfigError("retrieval.strategy", "invalid strategy %q (valid: naive, hyde, multi-query, hybrid, mmr)", c.Strategy)
	}
	if c.TopK <= 0 {
		return NewConfigError("retrieval.top_k", "top_k must be positive, got %d", c.TopK)
	}
	if c.MMRFetchK < 0 {
		return NewConfigError("retrieval.mmr_fetch_k", "mmr_fetch_k must be non-negative, got %d", c.MMRFetchK)
	}
	if c.LLM != nil {
		if err := c.LLM.Validate("retrieval.llm"); err != nil {
			return err
		}
	}
	return nil
}

// RerankingConfig controls LLM-based candidate rescoring.
type RerankingConfig struct {
	// Enabled turns reranking on.
	Enabled bool `yaml:"enabled,omitempty"`

	// TopN is how many candidates survive reranking.
	TopN int `yaml:"top_n,omitempty"`

	// WindowSize is how many candidates are fetched for rescoring.
	WindowSize int `yaml:"window_size,omitempty"`

	// LLM overrides the generation backend used for scoring.
	LLM *LLMConfig `yaml:"llm,omitempty"`
}

// SetDefaults applies default values.
func (c *RerankingConfig) SetDefaults() {
	if c.TopN == 0 {
		c.TopN = 5
	}
	if c.WindowSize == 0 {
		c.WindowSize = 10
	}
	if c.LLM != nil {
		c.LLM.SetDefaults()
	}
}

// Validate checks the configuration for errors.
func (c *RerankingConfig) Validate() error {
	if c.TopN <= 0 {
		return NewConfigError("reranking.top_n", "top_n must be positive, got %d", c.TopN)
	}
	if c.WindowSize < c.TopN {
		return NewConfigError("reranking.window_size", "window_size (%d) must be at least top_n (%d)", c.WindowSize, c.TopN)
	}
	if c.LLM != nil {
		if err := c.LLM.Validate("reranking.llm"); err != nil {
			return err
		}
	}
	return nil
}

// MetadataConfig controls chunk metadata extraction.
type MetadataConfig struct {
	// Enrichment enables per-chunk LLM enrichment (summary, keywords,
	// hypothetical questions). Falls back to heuristic extraction when
	// the backend fails.
	Enrichment bool `yaml:"enrichment,omitempty"`

	// LLM overrides the generation backend used for enrichment.
	LLM *LLMConfig `yaml:"llm,omitempty"`
}

// SetDefaults applies default values.
func (c *MetadataConfig) SetDefaults() {
	if c.LLM != nil {
		c.LLM.SetDefaults()
	}
}

// Validate checks the configuration for errors.
func (c *MetadataConfig) Validate() error {
	if c.LLM != nil {
		if err := c.LLM.Validate("metadata.llm"); err != nil {
			return err
		}
	}
	return nil
}

// QueryPlanningConfig controls context assembly under a token budget.
type QueryPlanningConfig struct {
	// TokenBudget caps the estimated tokens of the assembled context.
	TokenBudget int `yaml:"token_budget,omitempty"`

	// PreferSummariesBelow uses a chunk's summary instead of its
	// content when the summary's token estimate is at most this value.
	PreferSummariesBelow int `yaml:"prefer_summaries_below,omitempty"`

	// IncludeCitations adds source headers to context parts.
	IncludeCitations *bool `yaml:"include_citations,omitempty"`
}

// SetDefaults applies default values.
func (c *QueryPlanningConfig) SetDefaults() {
	if c.TokenBudget == 0 {
		c.TokenBudget = 2048
	}
	if c.PreferSummariesBelow == 0 {
		c.PreferSummariesBelow = 120
	}
	if c.IncludeCitations == nil {
		c.IncludeCitations = BoolPtr(true)
	}
}

// Validate checks the configuration for errors.
func (c *QueryPlanningConfig) Validate() error {
	if c.TokenBudget <= 0 {
		return NewConfigError("query_planning.token_budget", "token_budget must be positive, got %d", c.TokenBudget)
	}
	if c.PreferSummariesBelow < 0 {
		return NewConfigError("query_planning.prefer_summaries_below", "prefer_summaries_below must be non-negative, got %d", c.PreferSummariesBelow)
	}
	return nil
}

// GroundingConfig controls sentence-level answer grounding.
type GroundingConfig struct {
	// Enabled turns grounding on.
	Enabled bool `yaml:"enabled,omitempty"`

	// Strict replaces the planned context with grounded snippets
	// instead of appending them.
	Strict bool `yaml:"strict,omitempty"`

	// MaxSnippets caps how many snippets are selected.
	MaxSnippets int `yaml:"max_snippets,omitempty"`
}

// SetDefaults applies default values.
func (c *GroundingConfig) SetDefaults() {
	if c.MaxSnippets == 0 {
		c.MaxSnippets = 5
	}
}

// Validate checks the configuration for errors.
func (c *GroundingConfig) Validate() error {
	if c.MaxSnippets <= 0 {
		return NewConfigError("grounding.max_snippets", "max_snippets must be positive, got %d", c.MaxSnippets)
	}
	return nil
}

// Output formats.
const (
	OutputText = "text"
	OutputJSON = "json"
)

// GenerationConfig controls answer synthesis.
type GenerationConfig struct {
	// OutputFormat is "text" or "json". With "json" the engine asks for
	// a JSON object and falls back to the raw answer when parsing fails.
	OutputFormat string `yaml:"output_format,omitempty"`
}

// SetDefaults applies default values.
func (c *GenerationConfig) SetDefaults() {
	if c.OutputFormat == "" {
		c.OutputFormat = OutputText
	}
}

// Validate checks the configuration for errors.
func (c *GenerationConfig) Validate() error {
	if c.OutputFormat != OutputText && c.OutputFormat != OutputJSON {
		return NewConfigError("generation.output_format", "invalid output_format %q (valid: text, json)", c.OutputFormat)
	}
	return nil
}

// PromptsConfig holds user-supplied prompt templates.
type PromptsConfig struct {
	// Query is the answer-synthesis template. {{context}} and
	// {{question}} placeholders are substituted; empty selects the
	// built-in prompt.
	Query string `yaml:"query,omitempty"`
}

// Ingestion modes.
const (
	IngestionSkip    = "skip"
	IngestionAppend  = "append"
	IngestionReplace = "replace"
)

var validIngestionModes = map[string]bool{
	IngestionSkip:    true,
	IngestionAppend:  true,
	IngestionReplace: true,
}

// IngestionConfig controls document indexing.
type IngestionConfig struct {
	// Mode decides what happens when a file is already indexed:
	// "skip" leaves it untouched, "append" adds new chunks alongside,
	// "replace" deletes the old chunks first.
	Mode string `yaml:"mode,omitempty"`

	// RateLimitEnabled batches embedding requests in groups of
	// ConcurrencyLimit instead of one large batch.
	RateLimitEnabled bool `yaml:"rate_limit_enabled,omitempty"`

	// ConcurrencyLimit is the embedding batch size under rate limiting.
	ConcurrencyLimit int `yaml:"concurrency_limit,omitempty"`

	// MaxConcurrent is the number of files processed in parallel during
	// directory ingestion. 1 means sequential.
	MaxConcurrent int `yaml:"max_concurrent,omitempty"`

	// Watch keeps the process alive after directory ingestion and
	// re-ingests files as they change.
	Watch bool `yaml:"watch,omitempty"`

	// Retry tunes backoff for embedding and upsert calls.
	Retry RetryConfig `yaml:"retry,omitempty"`
}

// SetDefaults applies default values.
func (c *IngestionConfig) SetDefaults() {
	if c.Mode == "" {
		c.Mode = IngestionSkip
	}
	if c.ConcurrencyLimit == 0 {
		c.ConcurrencyLimit = 5
	}
	if c.MaxConcurrent == 0 {
		c.MaxConcurrent = 1
	}
	c.Retry.SetDefaults()
}

// Validate checks the configuration for errors.
func (c *IngestionConfig) Validate() error {
	if !validIngestionModes[c.Mode] {
		return NewConfigError("ingestion.mode", "invalid mode %q (valid: skip, append, replace)", c.Mode)
	}
	if c.ConcurrencyLimit <= 0 {
		return NewConfigError("ingestion.concurrency_limit", "concurrency_limit must be positive, got %d", c.ConcurrencyLimit)
	}
	if c.MaxConcurrent <= 0 {
		return NewConfigError("ingestion.max_concurrent", "max_concurrent must be positive, got %d", c.MaxConcurrent)
	}
	if err := c.Retry.Validate("ingestion.retry"); err != nil {
		return err
	}
	return nil
}

// RetryConfig tunes retry backoff for transient failures.
type RetryConfig struct {
	// MaxRetries is the number of attempts before giving up.
	MaxRetries int `yaml:"max_retries,omitempty"`

	// BaseDelay is the first backoff delay; it doubles per attempt.
	BaseDelay Duration `yaml:"base_delay,omitempty"`

	// MaxDelay caps the backoff delay.
	MaxDelay Duration `yaml:"max_delay,omitempty"`
}

// SetDefaults applies default values.
func (c *RetryConfig) SetDefaults() {
	if c.MaxRetries == 0 {
		c.MaxRetries = 3
	}
	if c.BaseDelay <= 0 {
		c.BaseDelay = Duration(500 * time.Millisecond)
	}
	if c.MaxDelay <= 0 {
		c.MaxDelay = Duration(4 * time.Second)
	}
}

// Validate checks the configuration for errors.
func (c *RetryConfig) Validate(path string) error {
	if c.MaxRetries < 1 {
		return NewConfigError(path+".max_retries", "max_retries must be at least 1, got %d", c.MaxRetries)
	}
	if c.BaseDelay > c.MaxDelay {
		return NewConfigError(path+".base_delay", "base_delay must not exceed max_delay")
	}
	return nil
}
