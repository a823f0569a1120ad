// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package main

import (
	"context"
	"time"

	"github.com/spf13/viper"

	"github.com/pdiddy/doc-engine/internal/agent"
	"github.com/pdiddy/doc-engine/internal/memory"
	"github.com/pdiddy/doc-engine/pkg/types"
)

// loadConfig assembles the pipeline configuration from viper. Config file
// keys, DOC_ENGINE_* environment variables, and .secrets/ files merge in
// that order; values left unset fall through to each component's own
// defaults.
func loadConfig() types.PipelineConfig {
	v := viper.GetViper()

	httpCfg := types.HTTPConfig{
		Timeout:   time.Duration(v.GetInt("http.timeout_seconds")) * time.Second,
		UserAgent: v.GetString("http.user_agent"),
	}

	cfg := types.PipelineConfig{
		Agent: types.AgentConfig{
			HTTPConfig:  httpCfg,
			Provider:    types.AgentProvider(v.GetString("agent.provider")),
			BaseURL:     v.GetString("agent.base_url"),
			Model:       v.GetString("agent.model"),
			Temperature: v.GetFloat64("agent.temperature"),
			MaxTokens:   v.GetInt("agent.max_tokens"),
			MaxRetries:  v.GetInt("agent.max_retries"),
			RolesFile:   v.GetString("agent.roles_file"),
		},
		Lookup: types.LookupConfig{
			HTTPConfig:       httpCfg,
			Language:         v.GetString("lookup.language"),
			CacheSize:        v.GetInt("lookup.cache_size"),
			SummarySentences: v.GetInt("lookup.summary_sentences"),
		},
		Memory: types.MemoryConfig{
			Enabled:         v.GetBool("memory.enabled"),
			Dir:             v.GetString("memory.dir"),
			EmbeddingModel:  v.GetString("memory.embedding_model"),
			EmbeddingAPIKey: v.GetString("memory.embedding_api_key"),
		},
		Enhance: types.EnhanceConfig{
			Verify:      v.GetBool("pipeline.verify"),
			MaxSections: v.GetInt("pipeline.max_sections"),
			Concurrency: v.GetInt("pipeline.concurrency"),
		},
		Policy: types.PolicyConfig{
			MinSectionChars:    v.GetInt("policy.min_section_chars"),
			MinDocumentChars:   v.GetInt("policy.min_document_chars"),
			MinKeepRatio:       v.GetFloat64("policy.min_keep_ratio"),
			MinLinkOutputChars: v.GetInt("policy.min_link_output_chars"),
			MinLinks:           v.GetInt("policy.min_links"),
			MaxLinks:           v.GetInt("policy.max_links"),
		},
	}

	cfg.Agent.APIKey = secretDefault("api-key", v.GetString("agent.api_key"))
	if cfg.Agent.Provider == types.ProviderGemini {
		cfg.Agent.APIKey = secretDefault("gemini-api-key", cfg.Agent.APIKey)
	}
	cfg.Memory.EmbeddingAPIKey = secretDefault("embedding-api-key", cfg.Memory.EmbeddingAPIKey)
	return cfg
}

// buildRunner constructs the agent execution backend and the role set
// stage calls run under. Both errors are configuration errors and should
// end the command.
func buildRunner(ctx context.Context, cfg types.AgentConfig) (agent.Runner, agent.Roles, error) {
	runner, err := agent.New(ctx, cfg)
	if err != nil {
		return nil, agent.Roles{}, err
	}
	roles, err := agent.LoadRoles(cfg.RolesFile)
	if err != nil {
		return nil, agent.Roles{}, err
	}
	return runner, roles, nil
}

// openStore opens the cross-run memory store, attaching a semantic
// embedder when one is configured. The embedding key falls back to the
// agent key for the gemini provider.
func openStore(ctx context.Context, cfg types.MemoryConfig, agentCfg types.AgentConfig) (*memory.Store, error) {
	var embedder memory.Embedder
	if cfg.EmbeddingModel != "" {
		key := cfg.EmbeddingAPIKey
		if key == "" && agentCfg.Provider == types.ProviderGemini {
			key = agentCfg.APIKey
		}
		e, err := memory.NewGenAIEmbedder(ctx, key, cfg.EmbeddingModel)
		if err != nil {
			return nil, err
		}
		embedder = e
	}
	return memory.NewStore(cfg, embedder)
}
