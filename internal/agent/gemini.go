// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package agent

import (
	"context"
	"fmt"
	"strings"

	"google.golang.org/genai"

	"github.com/pdiddy/doc-engine/pkg/types"
)

// GeminiBackend runs stage instructions through the Gemini API.
// Per prd002-tasking R5.3.
type GeminiBackend struct {
	client      *genai.Client
	model       string
	temperature float64
	maxTokens   int
}

// NewGeminiBackend creates the backend. Client construction validates
// the API key shape but performs no network call.
func NewGeminiBackend(ctx context.Context, cfg types.AgentConfig) (*GeminiBackend, error) {
	client, err := genai.NewClient(ctx, &genai.ClientConfig{APIKey: cfg.APIKey})
	if err != nil {
		return nil, fmt.Errorf("creating gemini client: %w", err)
	}

	temperature := cfg.Temperature
	if temperature == 0 {
		temperature = 0.7
	}
	maxTokens := cfg.MaxTokens
	if maxTokens == 0 {
		maxTokens = 4096
	}
	return &GeminiBackend{
		client:      client,
		model:       cfg.Model,
		temperature: temperature,
		maxTokens:   maxTokens,
	}, nil
}

// Name identifies the backend.
func (b *GeminiBackend) Name() string { return "gemini" }

// Run executes the instruction with the role as system instruction.
func (b *GeminiBackend) Run(ctx context.Context, role Role, instruction string) (string, error) {
	config := &genai.GenerateContentConfig{
		Temperature:       genai.Ptr(float32(b.temperature)),
		MaxOutputTokens:   int32(b.maxTokens),
		SystemInstruction: genai.NewContentFromText(role.SystemPrompt(), genai.RoleUser),
	}

	result, err := b.client.Models.GenerateContent(ctx, b.model, genai.Text(instruction), config)
	if err != nil {
		return "", fmt.Errorf("calling gemini API: %w", err)
	}

	text := strings.TrimSpace(result.Text())
	if text == "" {
		return "", fmt.Errorf("gemini API returned an empty reply")
	}
	return text, nil
}
