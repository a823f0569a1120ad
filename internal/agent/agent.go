// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package agent provides the execution capability: role-specialized model
// backends that run one stage instruction and return text. Backends are
// interchangeable behind the Runner interface; missing credentials are a
// configuration failure and refuse construction.
// Implements: prd002-tasking (R5);
//
//	docs/ARCHITECTURE § Agents.
package agent

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	"github.com/pdiddy/doc-engine/pkg/types"
)

// Runner executes one stage instruction as a given role and returns the
// model's text reply.
type Runner interface {
	// Name identifies the backend ("openai", "gemini").
	Name() string

	// Run executes the instruction and returns the raw reply text.
	Run(ctx context.Context, role Role, instruction string) (string, error)
}

// New constructs the configured backend. A missing model identifier or
// API key is a configuration failure: construction fails rather than
// letting a run start with an invalid capability.
func New(ctx context.Context, cfg types.AgentConfig) (Runner, error) {
	if strings.TrimSpace(cfg.Model) == "" {
		return nil, fmt.Errorf("agent: model identifier is required")
	}
	if strings.TrimSpace(cfg.APIKey) == "" {
		return nil, fmt.Errorf("agent: API key is required")
	}

	switch cfg.Provider {
	case types.ProviderGemini:
		return NewGeminiBackend(ctx, cfg)
	case types.ProviderOpenAI, "":
		return NewOpenAIBackend(cfg), nil
	default:
		return nil, fmt.Errorf("agent: unknown provider %q", cfg.Provider)
	}
}

// httpClient builds the shared HTTP client for a backend config.
func httpClient(cfg types.AgentConfig) *http.Client {
	if cfg.Timeout <= 0 {
		return http.DefaultClient
	}
	return &http.Client{Timeout: cfg.Timeout}
}
