// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package agent

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/pdiddy/doc-engine/internal/httputil"
	"github.com/pdiddy/doc-engine/pkg/types"
)

// defaultOpenAIBaseURL is the API root used when the config leaves the
// base URL empty. The source deployment ran against OpenRouter.
var defaultOpenAIBaseURL = "https://openrouter.ai/api/v1"

// OpenAIBackend runs stage instructions against any OpenAI-compatible
// chat-completions endpoint. Per prd002-tasking R5.2.
type OpenAIBackend struct {
	BaseURL     string
	APIKey      string
	Model       string
	Temperature float64
	MaxTokens   int
	Client      *http.Client
}

// NewOpenAIBackend builds the backend from config, filling defaults for
// base URL, temperature, and token budget.
func NewOpenAIBackend(cfg types.AgentConfig) *OpenAIBackend {
	base := strings.TrimSuffix(cfg.BaseURL, "/")
	if base == "" {
		base = defaultOpenAIBaseURL
	}
	temperature := cfg.Temperature
	if temperature == 0 {
		temperature = 0.7
	}
	maxTokens := cfg.MaxTokens
	if maxTokens == 0 {
		maxTokens = 4096
	}
	return &OpenAIBackend{
		BaseURL:     base,
		APIKey:      cfg.APIKey,
		Model:       cfg.Model,
		Temperature: temperature,
		MaxTokens:   maxTokens,
		Client:      httpClient(cfg),
	}
}

// Name identifies the backend.
func (b *OpenAIBackend) Name() string { return "openai" }

// Run sends the role as system message and the instruction as user
// message, returning the first choice's text. Throttled responses are
// retried with backoff before the status check.
func (b *OpenAIBackend) Run(ctx context.Context, role Role, instruction string) (string, error) {
	reqBody := chatRequest{
		Model:       b.Model,
		Temperature: b.Temperature,
		MaxTokens:   b.MaxTokens,
		Messages: []chatMessage{
			{Role: "system", Content: role.SystemPrompt()},
			{Role: "user", Content: instruction},
		},
	}

	bodyBytes, err := json.Marshal(reqBody)
	if err != nil {
		return "", fmt.Errorf("marshaling request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, b.BaseURL+"/chat/completions", bytes.NewReader(bodyBytes))
	if err != nil {
		return "", fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+b.APIKey)

	client := b.Client
	if client == nil {
		client = http.DefaultClient
	}

	resp, err := httputil.DoWithRetry(ctx, client, req, 0)
	if err != nil {
		return "", fmt.Errorf("calling model API: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return "", fmt.Errorf("model API returned %d: %s", resp.StatusCode, string(body))
	}

	var cResp chatResponse
	if err := json.NewDecoder(resp.Body).Decode(&cResp); err != nil {
		return "", fmt.Errorf("decoding model response: %w", err)
	}
	if cResp.Error != nil {
		return "", fmt.Errorf("model API error: %s", cResp.Error.Message)
	}
	if len(cResp.Choices) == 0 {
		return "", fmt.Errorf("model API returned no choices")
	}

	text := strings.TrimSpace(cResp.Choices[0].Message.Content)
	if text == "" {
		return "", fmt.Errorf("model API returned an empty reply")
	}
	return text, nil
}

// chatRequest is the request body for the chat completions API.
type chatRequest struct {
	Model       string        `json:"model"`
	Temperature float64       `json:"temperature"`
	MaxTokens   int           `json:"max_tokens"`
	Messages    []chatMessage `json:"messages"`
}

// chatMessage is a single message in the conversation.
type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// chatResponse is the response body from the chat completions API.
type chatResponse struct {
	Choices []chatChoice `json:"choices"`
	Error   *chatError   `json:"error,omitempty"`
}

// chatChoice is one completion choice.
type chatChoice struct {
	Message chatMessage `json:"message"`
}

// chatError is the provider's error payload.
type chatError struct {
	Message string `json:"message"`
}
