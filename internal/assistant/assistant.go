// Package assistant answers CRM questions: it translates a question to SQL,
// hands the statement to an executor and explains empty results.
package assistant

import (
	"context"
	"encoding/json"
	"log/slog"

	"github.com/JonMunkholm/CrmAssist/internal/audit"
	"github.com/JonMunkholm/CrmAssist/internal/credential"
	"github.com/JonMunkholm/CrmAssist/internal/llm"
	"github.com/JonMunkholm/CrmAssist/internal/observability"
	"github.com/JonMunkholm/CrmAssist/internal/prompt"
	"github.com/JonMunkholm/CrmAssist/internal/query"
)

// AIUnavailable is the Ask error when no usable credential is configured.
const AIUnavailable = "AI unavailable"

// Answer is the outcome of one Ask. Rows is nil when nothing was executed.
type Answer struct {
	SQL         string      `json:"sql,omitempty"`
	Columns     []string    `json:"columns,omitempty"`
	Rows        []query.Row `json:"rows"`
	Explanation string      `json:"explanation,omitempty"`
	Error       string      `json:"error,omitempty"`
}

// MarshalJSON emits "rows" only when the statement was executed.
func (a Answer) MarshalJSON() ([]byte, error) {
	type alias Answer
	out := struct {
		alias
		Rows *[]query.Row `json:"rows,omitempty"`
	}{alias: alias(a)}
	if a.Rows != nil {
		rows := a.Rows
		out.Rows = &rows
	}
	return json.Marshal(out)
}

// Executed reports whether the statement reached the store successfully.
func (a Answer) Executed() bool {
	return a.Rows != nil && a.Error == ""
}

type Option func(*Assistant)

func WithLogger(logger *slog.Logger) Option {
	return func(a *Assistant) {
		if logger != nil {
			a.logger = logger
		}
	}
}

// WithRecorder reports each generated statement before it runs.
func WithRecorder(r audit.Recorder) Option {
	return func(a *Assistant) {
		if r != nil {
			a.recorder = r
		}
	}
}

// WithStatementGuard rejects statements that are not SELECT or WITH before
// they reach the executor.
func WithStatementGuard() Option {
	return func(a *Assistant) { a.guard = true }
}

// WithVariant appends a specialised instruction to the translation prompt.
func WithVariant(key string) Option {
	return func(a *Assistant) { a.variant = key }
}

func WithExplainConfig(cfg ExplainConfig) Option {
	return func(a *Assistant) { a.explainCfg = cfg }
}

// Assistant is immutable after New and safe for concurrent use.
type Assistant struct {
	translator *Translator
	explainer  *Explainer
	executor   query.Executor
	provider   string
	recorder   audit.Recorder
	logger     *slog.Logger
	guard      bool
	variant    string
	explainCfg ExplainConfig
}

// New wires the assistant. provider may be nil when cred is not usable.
func New(provider llm.Provider, builder *prompt.Builder, executor query.Executor, cred credential.Credential, opts ...Option) *Assistant {
	a := &Assistant{
		executor:   executor,
		recorder:   audit.Nop{},
		logger:     slog.Default(),
		explainCfg: DefaultExplainConfig(),
	}
	for _, opt := range opts {
		opt(a)
	}
	if provider != nil {
		a.provider = provider.Name()
	}
	a.translator = NewTranslator(provider, builder, cred, a.variant, a.logger)
	a.explainer = NewExplainer(provider, cred, a.explainCfg, a.logger)
	return a
}

func (a *Assistant) Translator() *Translator { return a.translator }

func (a *Assistant) Explainer() *Explainer { return a.explainer }

// Available reports whether questions can be answered by the model.
func (a *Assistant) Available() bool {
	return a.translator.Available()
}

func (a *Assistant) Translate(ctx context.Context, question string) (string, error) {
	return a.translator.Translate(ctx, question)
}

func (a *Assistant) ExplainEmptyResult(ctx context.Context, question, sql string) string {
	return a.explainer.ExplainEmptyResult(ctx, question, sql)
}

// Ask runs the full question flow. Failures are reported in Answer.Error.
func (a *Assistant) Ask(ctx context.Context, question string) Answer {
	if !a.Available() {
		return Answer{Error: AIUnavailable}
	}

	sql, err := a.translator.Translate(ctx, question)
	if err != nil {
		a.logger.WarnContext(ctx, "translation failed",
			slog.String("trace_id", observability.TraceIDFromContext(ctx)),
			slog.String("error", err.Error()),
		)
		return Answer{Error: err.Error()}
	}

	traceID := observability.TraceIDFromContext(ctx)
	a.logger.InfoContext(ctx, "sql generated",
		slog.String("trace_id", traceID),
		slog.String("sql", sql),
	)
	if err := a.recorder.Record(ctx, audit.NewEvent(traceID, question, sql, a.provider)); err != nil {
		observability.IncrementAuditFailure()
		a.logger.WarnContext(ctx, "audit record failed",
			slog.String("trace_id", traceID),
			slog.String("error", err.Error()),
		)
	}

	if a.guard {
		if err := CheckStatement(sql); err != nil {
			observability.ObserveExecution(observability.OutcomeRejected)
			return Answer{SQL: sql, Error: err.Error()}
		}
	}

	result, err := a.executor.Execute(ctx, sql)
	if err != nil {
		observability.ObserveExecution(observability.OutcomeError)
		return Answer{SQL: sql, Error: err.Error()}
	}

	if result.Empty() {
		observability.ObserveExecution(observability.OutcomeEmpty)
		return Answer{
			SQL:         sql,
			Rows:        []query.Row{},
			Explanation: a.explainer.ExplainEmptyResult(ctx, question, sql),
		}
	}

	observability.ObserveExecution(observability.OutcomeOK)
	return Answer{SQL: sql, Columns: result.Columns, Rows: result.Rows}
}
