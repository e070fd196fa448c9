package llm

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/liushuangls/go-anthropic/v2"
)

// AnthropicProvider implements the Provider interface for Anthropic's Claude API.
type AnthropicProvider struct {
	model   string
	timeout time.Duration
	client  *anthropic.Client
}

// NewAnthropicProvider creates a new Anthropic provider. An empty baseURL keeps
// the client default.
func NewAnthropicProvider(apiKey, model, baseURL string, timeout time.Duration) *AnthropicProvider {
	var opts []anthropic.ClientOption
	if baseURL != "" {
		opts = append(opts, anthropic.WithBaseURL(strings.TrimRight(baseURL, "/")))
	}
	return &AnthropicProvider{
		model:   model,
		timeout: timeout,
		client:  anthropic.NewClient(apiKey, opts...),
	}
}

// Name returns the provider name.
func (p *AnthropicProvider) Name() string {
	return "anthropic"
}

// Complete sends one user turn to the messages API.
func (p *AnthropicProvider) Complete(ctx context.Context, req CompletionRequest) (Completion, error) {
	ctx, cancel := withTimeout(ctx, p.timeout)
	defer cancel()

	maxTokens := req.MaxTokens
	if maxTokens <= 0 {
		maxTokens = defaultMaxTokens
	}
	temperature := float32(req.Temperature)
	user := req.User

	resp, err := p.client.CreateMessages(ctx, anthropic.MessagesRequest{
		Model:       anthropic.Model(p.model),
		System:      req.System,
		MaxTokens:   maxTokens,
		Temperature: &temperature,
		Messages: []anthropic.Message{
			{Role: anthropic.RoleUser, Content: []anthropic.MessageContent{
				{Type: "text", Text: &user},
			}},
		},
	})
	if err != nil {
		return Completion{}, fmt.Errorf("API error: %w", err)
	}

	content := strings.TrimSpace(extractText(resp))
	if content == "" {
		return Completion{}, ErrEmptyCompletion
	}

	return Completion{
		Text:   content,
		Tokens: resp.Usage.InputTokens + resp.Usage.OutputTokens,
	}, nil
}

// extractText returns the first text block of resp.
func extractText(resp anthropic.MessagesResponse) string {
	for _, block := range resp.Content {
		if block.Type == "text" && block.Text != nil {
			return *block.Text
		}
	}
	return ""
}
