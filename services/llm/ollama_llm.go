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

// OllamaClient talks to a local Ollama server. No API key.
type OllamaClient struct {
	httpClient *http.Client
	baseURL    string
	model      string
}

type ollamaChatRequest struct {
	Model    string         `json:"model"`
	Messages []Message      `json:"messages"`
	Stream   bool           `json:"stream"`
	Options  map[string]any `json:"options,omitempty"`
}

type ollamaChatResponse struct {
	Message    Message `json:"message"`
	Done       bool    `json:"done"`
	DoneReason string  `json:"done_reason"`
}

func NewOllamaClient(cfg Config) (*OllamaClient, error) {
	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = os.Getenv("OLLAMA_BASE_URL")
	}
	if baseURL == "" {
		return nil, errors.New("OLLAMA_BASE_URL environment variable not set")
	}
	model := cfg.Model
	if model == "" {
		model = os.Getenv("OLLAMA_MODEL")
	}
	if model == "" {
		slog.Warn("OLLAMA_MODEL not set, defaulting to llama3.2")
		model = "llama3.2"
	}
	baseURL = strings.TrimSuffix(baseURL, "/")
	slog.Info("Initializing Ollama client", "base_url", baseURL, "default_model", model)
	return &OllamaClient{
		httpClient: &http.Client{Timeout: 30 * time.Second},
		baseURL:    baseURL,
		model:      model,
	}, nil
}

// Generate implements the LLMClient interface
func (o *OllamaClient) Generate(ctx context.Context, prompt string, params GenerationParams) (string, error) {
	return o.Chat(ctx, []Message{{Role: "user", Content: prompt}}, params)
}

// Chat implements the LLMClient interface
func (o *OllamaClient) Chat(ctx context.Context, messages []Message, params GenerationParams) (string, error) {
	ctx, span := startChatSpan(ctx, BackendOllama, o.model, len(messages))
	defer span.End()

	var resp ollamaChatResponse
	err := postJSON(ctx, o.httpClient, BackendOllama, o.baseURL+"/api/chat", nil, ollamaChatRequest{
		Model:    o.model,
		Messages: messages,
		Options:  ollamaOptions(params),
	}, &resp)

	var se *statusError
	if errors.As(err, &se) && se.Status == http.StatusNotFound && strings.Contains(se.Body, "not found") {
		err = fmt.Errorf("model '%s' not found. Please run: 'ollama pull %s'", o.model, o.model)
	}
	if err != nil {
		slog.Error("Ollama chat failed", "model", o.model, "error", err)
		return "", failSpan(span, err)
	}
	if resp.Message.Role != "assistant" {
		slog.Warn("Ollama chat response message role was not 'assistant'", "role", resp.Message.Role)
	}
	return resp.Message.Content, nil
}

// ollamaOptions maps params onto Ollama's options. The defaults keep
// spoken replies short and steady.
func ollamaOptions(params GenerationParams) map[string]any {
	options := map[string]any{
		"temperature": float32(0.2),
		"top_k":       20,
		"top_p":       float32(0.9),
		"num_predict": 256,
	}
	if params.Temperature != nil {
		options["temperature"] = *params.Temperature
	}
	if params.TopK != nil {
		options["top_k"] = *params.TopK
	}
	if params.TopP != nil {
		options["top_p"] = *params.TopP
	}
	if params.MaxTokens != nil {
		options["num_predict"] = *params.MaxTokens
	}
	if len(params.Stop) > 0 {
		options["stop"] = params.Stop
	}
	return options
}
