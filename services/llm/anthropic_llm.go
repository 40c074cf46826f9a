package llm

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"strings"
	"time"
)

const (
	anthropicAPIVersion = "2023-06-01"
	anthropicMessages   = "https://api.anthropic.com/v1/messages"

	// connectedCue stands in for the caller when the dialogue opens with the
	// coach's greeting; the Messages API wants a user turn first.
	connectedCue = "(call connected)"
)

type anthropicRequest struct {
	Model       string             `json:"model"`
	System      string             `json:"system,omitempty"`
	Messages    []anthropicMessage `json:"messages"`
	MaxTokens   int                `json:"max_tokens"`
	Temperature *float32           `json:"temperature,omitempty"`
	TopP        *float32           `json:"top_p,omitempty"`
	TopK        *int               `json:"top_k,omitempty"`
	StopSeqs    []string           `json:"stop_sequences,omitempty"`
}

type anthropicMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type anthropicResponse struct {
	Content []struct {
		Type string `json:"type"`
		Text string `json:"text"`
	} `json:"content"`
	StopReason string `json:"stop_reason"`
}

// AnthropicClient talks to the Claude Messages API over REST.
type AnthropicClient struct {
	httpClient *http.Client
	apiKey     string
	model      string
	url        string
}

func NewAnthropicClient(cfg Config) (*AnthropicClient, error) {
	apiKey := cfg.APIKey
	if apiKey == "" {
		apiKey = readSecret("ANTHROPIC_API_KEY", "/run/secrets/anthropic_api_key")
	}
	if apiKey == "" {
		return nil, errors.New("ANTHROPIC_API_KEY is missing")
	}
	model := cfg.Model
	if model == "" {
		model = os.Getenv("CLAUDE_MODEL")
	}
	if model == "" {
		model = "claude-3-5-haiku-latest"
		slog.Info("CLAUDE_MODEL not set, defaulting to", "model", model)
	}
	url := cfg.BaseURL
	if url == "" {
		url = anthropicMessages
	}
	return &AnthropicClient{
		// Voice turns carry their own short deadlines through ctx.
		httpClient: &http.Client{Timeout: 30 * time.Second},
		apiKey:     apiKey,
		model:      model,
		url:        url,
	}, nil
}

// Generate implements the LLMClient interface
func (a *AnthropicClient) Generate(ctx context.Context, prompt string, params GenerationParams) (string, error) {
	return a.Chat(ctx, []Message{{Role: "user", Content: prompt}}, params)
}

// Chat implements the LLMClient interface. System messages are joined into
// the top-level system field.
func (a *AnthropicClient) Chat(ctx context.Context, messages []Message, params GenerationParams) (string, error) {
	ctx, span := startChatSpan(ctx, BackendAnthropic, a.model, len(messages))
	defer span.End()

	req := anthropicRequest{
		Model:       a.model,
		MaxTokens:   1024,
		Temperature: params.Temperature,
		TopP:        params.TopP,
		TopK:        params.TopK,
		StopSeqs:    params.Stop,
	}
	if params.MaxTokens != nil {
		req.MaxTokens = *params.MaxTokens
	}
	var system []string
	for _, m := range messages {
		if strings.EqualFold(m.Role, "system") {
			system = append(system, m.Content)
			continue
		}
		req.Messages = append(req.Messages, anthropicMessage{Role: m.Role, Content: m.Content})
	}
	req.System = strings.Join(system, "\n\n")
	if len(req.Messages) > 0 && req.Messages[0].Role != "user" {
		req.Messages = append([]anthropicMessage{{Role: "user", Content: connectedCue}}, req.Messages...)
	}

	var resp anthropicResponse
	err := postJSON(ctx, a.httpClient, BackendAnthropic, a.url, map[string]string{
		"x-api-key":         a.apiKey,
		"anthropic-version": anthropicAPIVersion,
	}, req, &resp)
	if err != nil {
		return "", failSpan(span, err)
	}

	var text strings.Builder
	for _, block := range resp.Content {
		if block.Type == "text" {
			text.WriteString(block.Text)
		}
	}
	if text.Len() == 0 {
		return "", failSpan(span, fmt.Errorf("empty reply from Anthropic (stop_reason %q)", resp.StopReason))
	}
	slog.Debug("Anthropic reply", "model", a.model, "stop_reason", resp.StopReason)
	return text.String(), nil
}
