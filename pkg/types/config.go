package types

import "time"

// HTTPConfig holds shared HTTP settings used by components that make network requests.
type HTTPConfig struct {
	// Timeout is the HTTP request timeout.
	Timeout time.Duration `json:"timeout" yaml:"timeout"`

	// UserAgent is the User-Agent header sent with HTTP requests
	// (e.g. "doc-engine/0.1"). Per prd005-lookup R4.2.
	UserAgent string `json:"user_agent" yaml:"user_agent"`
}

// AgentProvider identifies the model API family used by the execution backend.
// Per prd002-tasking R5.1.
type AgentProvider string

const (
	ProviderOpenAI AgentProvider = "openai"
	ProviderGemini AgentProvider = "gemini"
)

// AgentConfig holds settings for the agent execution backend.
// Per prd002-tasking R5.1-R5.6.
type AgentConfig struct {
	HTTPConfig `yaml:",inline"`

	// Provider selects the backend API family: openai (any OpenAI-compatible
	// endpoint, the default) or gemini.
	Provider AgentProvider `json:"provider" yaml:"provider"`

	// BaseURL is the API root for OpenAI-compatible providers
	// (default "https://openrouter.ai/api/v1").
	BaseURL string `json:"base_url" yaml:"base_url"`

	// Model is the model identifier (e.g. "openai/gpt-4.1-mini").
	Model string `json:"model" yaml:"model"`

	// APIKey is the authentication key for the model API.
	APIKey string `json:"api_key,omitempty" yaml:"api_key,omitempty"`

	// Temperature is the sampling temperature (default 0.7).
	Temperature float64 `json:"temperature" yaml:"temperature"`

	// MaxTokens is the completion token budget per stage call (default 4096).
	MaxTokens int `json:"max_tokens" yaml:"max_tokens"`

	// MaxRetries is the number of retry attempts for failed stage calls (default 3).
	MaxRetries int `json:"max_retries" yaml:"max_retries"`

	// RolesFile is an optional YAML file overriding built-in agent role
	// definitions field by field.
	RolesFile string `json:"roles_file,omitempty" yaml:"roles_file,omitempty"`
}

// LookupConfig holds settings for the encyclopedia lookup client.
// The language is threaded through client construction; there is no
// process-wide language setting. Per prd005-lookup R1.2, R5.1-R5.3.
type LookupConfig struct {
	HTTPConfig `yaml:",inline"`

	// Language is the encyclopedia language edition (default "fr").
	Language string `json:"language" yaml:"language"`

	// CacheSize bounds the number of cached lookup responses (default 128).
	CacheSize int `json:"cache_size" yaml:"cache_size"`

	// SummarySentences is the default sentence count for summaries (default 3).
	SummarySentences int `json:"summary_sentences" yaml:"summary_sentences"`
}

// MemoryConfig holds settings for the cross-run memory store.
// The pipeline must run correctly when the store is disabled or absent.
// Per prd006-memory R1.1, R4.1.
type MemoryConfig struct {
	// Enabled controls whether runs record to and recall from the store.
	Enabled bool `json:"enabled" yaml:"enabled"`

	// Dir is the directory holding the memory database (default "memory/").
	Dir string `json:"dir" yaml:"dir"`

	// EmbeddingModel enables semantic recall when non-empty
	// (e.g. "gemini-embedding-001").
	EmbeddingModel string `json:"embedding_model,omitempty" yaml:"embedding_model,omitempty"`

	// EmbeddingAPIKey authenticates the embedding API. Falls back to the
	// agent API key when empty and the provider is gemini.
	EmbeddingAPIKey string `json:"embedding_api_key,omitempty" yaml:"embedding_api_key,omitempty"`
}

// EnhanceConfig holds run-shape settings for the enhancement pipeline.
// Per prd003-orchestration R2.2-R2.4.
type EnhanceConfig struct {
	// Verify enables the optional fact-check stage between Enrich and Link.
	Verify bool `json:"verify" yaml:"verify"`

	// MaxSections caps how many sections are processed, lowest positions
	// first. Zero processes all sections.
	MaxSections int `json:"max_sections" yaml:"max_sections"`

	// Concurrency bounds how many independent section chains run at once
	// (default 1: sequential, matching the declared dependency order).
	Concurrency int `json:"concurrency" yaml:"concurrency"`
}

// PipelineConfig groups all component configurations.
type PipelineConfig struct {
	Agent   AgentConfig   `json:"agent" yaml:"agent"`
	Lookup  LookupConfig  `json:"lookup" yaml:"lookup"`
	Memory  MemoryConfig  `json:"memory" yaml:"memory"`
	Enhance EnhanceConfig `json:"enhance" yaml:"enhance"`
	Policy  PolicyConfig  `json:"policy" yaml:"policy"`
}
