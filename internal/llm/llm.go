// Package llm provides chat-completion provider integrations used to translate
// questions to SQL and to explain empty results.
package llm

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
)

// ErrEmptyCompletion is returned when the provider answers without any text.
var ErrEmptyCompletion = errors.New("no text in completion")

// Provider defines the interface for LLM integrations.
type Provider interface {
	// Complete runs a single non-streaming completion.
	Complete(ctx context.Context, req CompletionRequest) (Completion, error)

	// Name returns the provider name for logging/debugging.
	Name() string
}

// CompletionRequest contains the input for one completion.
type CompletionRequest struct {
	System      string  // System instruction (may be empty)
	User        string  // Single user turn
	Temperature float64 // Sampling temperature
	MaxTokens   int     // Max tokens for response (0 = provider default)
}

// Completion contains the raw model output.
type Completion struct {
	Text   string
	Tokens int // Tokens used (for cost tracking)
}

// Config holds LLM provider configuration.
type Config struct {
	Provider string        // "openai" or "anthropic"
	APIKey   string        // API key for the provider
	Model    string        // Model name (e.g., "gpt-4o-mini", "claude-3-5-haiku-latest")
	BaseURL  string        // Base URL (for OpenRouter, proxies, etc.)
	Timeout  time.Duration // Per-completion timeout (0 = none)
}

const (
	DefaultOpenAIModel    = "gpt-4o-mini"
	DefaultAnthropicModel = "claude-3-5-haiku-latest"
	DefaultOpenAIBaseURL  = "https://api.openai.com/v1"

	defaultMaxTokens = 1024
)

// NewProvider creates an LLM provider based on configuration.
func NewProvider(cfg Config) (Provider, error) {
	if cfg.Provider == "" {
		cfg.Provider = "openai"
	}

	if cfg.APIKey == "" {
		return nil, fmt.Errorf("LLM_API_KEY is required")
	}

	switch strings.ToLower(cfg.Provider) {
	case "openai":
		if cfg.Model == "" {
			cfg.Model = DefaultOpenAIModel
		}
		if cfg.BaseURL == "" {
			cfg.BaseURL = DefaultOpenAIBaseURL
		}
		return NewOpenAIProvider(cfg.APIKey, cfg.Model, cfg.BaseURL, cfg.Timeout), nil

	case "anthropic":
		if cfg.Model == "" {
			cfg.Model = DefaultAnthropicModel
		}
		return NewAnthropicProvider(cfg.APIKey, cfg.Model, cfg.BaseURL, cfg.Timeout), nil

	default:
		return nil, fmt.Errorf("unknown LLM provider: %q (supported: openai, anthropic)", cfg.Provider)
	}
}

// withTimeout bounds a single completion. A zero timeout leaves ctx untouched.
func withTimeout(ctx context.Context, timeout time.Duration) (context.Context, context.CancelFunc) {
	if timeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, timeout)
}
