package assistant

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/JonMunkholm/CrmAssist/internal/credential"
	"github.com/JonMunkholm/CrmAssist/internal/llm"
	"github.com/JonMunkholm/CrmAssist/internal/observability"
)

const (
	// DegradedExplanation is used when no usable credential is configured.
	DegradedExplanation = "Ingen data fundet for denne forespørgsel."
	// FallbackExplanation replaces any failed or empty explanation.
	FallbackExplanation = "Der blev ikke fundet nogen data for denne forespørgsel. Prøv at udvide søgekriterierne eller vælg et af eksemplerne ovenfor."
)

const explainTemplate = `Du er en hjælpsom CRM assistent. En bruger spurgte: "%s"

SQL query var: %s

Der blev ikke fundet nogen data. Giv et kort, venskabeligt svar (max 2 sætninger) på dansk der:
1. Bekræfter hvad de spurgte om
2. Foreslår hvad de kunne prøve i stedet

Vær positiv og hjælpsom.`

type ExplainConfig struct {
	Temperature float64
	MaxTokens   int
}

func DefaultExplainConfig() ExplainConfig {
	return ExplainConfig{Temperature: 0.7, MaxTokens: 100}
}

// Explainer writes a short Danish note when a query returns no rows. It never
// returns an error.
type Explainer struct {
	provider llm.Provider
	cred     credential.Credential
	cfg      ExplainConfig
	logger   *slog.Logger
}

func NewExplainer(provider llm.Provider, cred credential.Credential, cfg ExplainConfig, logger *slog.Logger) *Explainer {
	if logger == nil {
		logger = slog.Default()
	}
	return &Explainer{provider: provider, cred: cred, cfg: cfg, logger: logger}
}

func (e *Explainer) ExplainEmptyResult(ctx context.Context, question, sql string) string {
	if !e.cred.Usable() || e.provider == nil {
		observability.ObserveExplanation(observability.OutcomeDegraded)
		return DegradedExplanation
	}

	start := time.Now()
	out, err := e.provider.Complete(ctx, llm.CompletionRequest{
		User:        fmt.Sprintf(explainTemplate, question, sql),
		Temperature: e.cfg.Temperature,
		MaxTokens:   e.cfg.MaxTokens,
	})
	observability.ObserveCompletion("explain", time.Since(start))
	if err != nil || strings.TrimSpace(out.Text) == "" {
		observability.ObserveExplanation(observability.OutcomeFallback)
		e.logger.WarnContext(ctx, "explanation failed, using fallback",
			slog.String("trace_id", observability.TraceIDFromContext(ctx)),
			slog.Any("error", err),
		)
		return FallbackExplanation
	}

	observability.ObserveExplanation(observability.OutcomeOK)
	return strings.TrimSpace(out.Text)
}
