package llm

import (
	"context"
	"fmt"
	"os"
	"strings"
)

type GenerationParams struct {
	Temperature *float32 `json:"temperature"`
	TopK        *int     `json:"top_k"`
	TopP        *float32 `json:"top_p"`
	MaxTokens   *int     `json:"max_tokens"`
	Stop        []string `json:"stop"`
}

// Message is one chat turn sent to a backend. Role is "system", "user" or
// "assistant".
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// LLMClient defines the standard interface for any LLM backend
type LLMClient interface {
	Generate(ctx context.Context, prompt string, params GenerationParams) (string, error)
	Chat(ctx context.Context, messages []Message, params GenerationParams) (string, error)
}

// Backend names a supported LLM provider.
type Backend string

const (
	BackendOpenAI    Backend = "openai"
	BackendAnthropic Backend = "claude"
	BackendOllama    Backend = "ollama"
)

// Config selects and configures a backend. Empty fields fall back to the
// provider's environment variables and mounted secrets.
type Config struct {
	Backend Backend
	Model   string
	BaseURL string
	APIKey  string
}

// New builds the client for cfg.Backend.
func New(cfg Config) (LLMClient, error) {
	switch Backend(strings.ToLower(string(cfg.Backend))) {
	case BackendOpenAI, "":
		return NewOpenAIClient(cfg)
	case BackendAnthropic, "anthropic":
		return NewAnthropicClient(cfg)
	case BackendOllama:
		return NewOllamaClient(cfg)
	default:
		return nil, fmt.Errorf("unknown LLM backend %q", cfg.Backend)
	}
}

// Float32 and Int build GenerationParams pointers inline.
func Float32(v float32) *float32 { return &v }
func Int(v int) *int             { return &v }

// readSecret returns the env var, falling back to the mounted secret file.
func readSecret(envVar, secretPath string) string {
	if v := os.Getenv(envVar); v != "" {
		return v
	}
	if content, err := os.ReadFile(secretPath); err == nil {
		return strings.TrimSpace(string(content))
	}
	return ""
}
