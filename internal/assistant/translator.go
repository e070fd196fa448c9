package assistant

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/JonMunkholm/CrmAssist/internal/credential"
	"github.com/JonMunkholm/CrmAssist/internal/llm"
	"github.com/JonMunkholm/CrmAssist/internal/observability"
	"github.com/JonMunkholm/CrmAssist/internal/prompt"
)

// DegradedSQL is returned by Translate when no usable credential is configured.
const DegradedSQL = "SELECT * FROM customers; -- AI ikke tilgængelig"

// Translator turns a question into one SQL statement.
type Translator struct {
	provider llm.Provider
	builder  *prompt.Builder
	cred     credential.Credential
	variant  string
	logger   *slog.Logger
}

func NewTranslator(provider llm.Provider, builder *prompt.Builder, cred credential.Credential, variant string, logger *slog.Logger) *Translator {
	if logger == nil {
		logger = slog.Default()
	}
	return &Translator{
		provider: provider,
		builder:  builder,
		cred:     cred,
		variant:  variant,
		logger:   logger,
	}
}

// Available reports whether live translation is possible.
func (t *Translator) Available() bool {
	return t.cred.Usable() && t.provider != nil
}

func (t *Translator) Translate(ctx context.Context, question string) (string, error) {
	if !t.Available() {
		observability.ObserveTranslation(observability.OutcomeDegraded)
		return DegradedSQL, nil
	}

	start := time.Now()
	out, err := t.provider.Complete(ctx, llm.CompletionRequest{
		System:      t.builder.SystemFor(t.variant),
		User:        question,
		Temperature: 0,
	})
	observability.ObserveCompletion("translate", time.Since(start))
	if err != nil {
		observability.ObserveTranslation(observability.OutcomeError)
		return "", fmt.Errorf("translate question: %w", err)
	}

	sql := StripFences(out.Text)
	if sql == "" {
		observability.ObserveTranslation(observability.OutcomeError)
		return "", ErrEmptySQL
	}

	observability.ObserveTranslation(observability.OutcomeOK)
	t.logger.DebugContext(ctx, "question translated",
		slog.String("trace_id", observability.TraceIDFromContext(ctx)),
		slog.String("provider", t.provider.Name()),
		slog.Int("tokens", out.Tokens),
	)
	return sql, nil
}
