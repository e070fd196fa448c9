package cmd

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/JonMunkholm/CrmAssist/internal/assistant"
	"github.com/JonMunkholm/CrmAssist/internal/audit"
	"github.com/JonMunkholm/CrmAssist/internal/config"
	"github.com/JonMunkholm/CrmAssist/internal/credential"
	"github.com/JonMunkholm/CrmAssist/internal/crmdb"
	"github.com/JonMunkholm/CrmAssist/internal/llm"
	"github.com/JonMunkholm/CrmAssist/internal/observability"
	"github.com/JonMunkholm/CrmAssist/internal/prompt"
	"github.com/JonMunkholm/CrmAssist/internal/schema"
)

// app holds everything a command needs, wired from configuration.
type app struct {
	cfg       config.Config
	logger    *slog.Logger
	cred      credential.Credential
	builder   *prompt.Builder
	db        *sql.DB
	dialect   crmdb.Dialect
	executor  *crmdb.Executor
	dashboard *crmdb.Dashboard
	schema    *schema.Cache
	assistant *assistant.Assistant
	closers   []io.Closer
}

func loadConfig() (config.Config, error) {
	config.LoadDotEnv(envFiles...)
	return config.LoadFromEnv()
}

// newApp wires the assistant. logOut receives structured logs; commands that
// print to the terminal pass io.Discard unless --verbose is set.
func newApp(ctx context.Context, logOut io.Writer) (*app, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, err
	}
	a := &app{cfg: cfg, logger: observability.NewLogger(cfg, logOut)}

	safe := cfg.Redacted()
	a.logger.Debug("configuration loaded",
		slog.String("db_driver", safe.DB.Driver),
		slog.String("db_dsn", safe.DB.DSN),
		slog.String("llm_provider", safe.LLM.Provider),
		slog.String("llm_model", safe.LLM.Model),
	)

	a.builder, err = loadBuilder(cfg.Prompt)
	if err != nil {
		return nil, err
	}

	a.cred = resolveCredential(cfg, a.logger)

	var provider llm.Provider
	if a.cred.Usable() {
		provider, err = llm.NewProvider(llm.Config{
			Provider: cfg.LLM.Provider,
			APIKey:   a.cred.Value,
			Model:    cfg.LLM.Model,
			BaseURL:  cfg.LLM.BaseURL,
			Timeout:  cfg.LLM.Timeout,
		})
		if err != nil {
			return nil, err
		}
		a.logger.Info("llm provider initialized",
			slog.String("provider", provider.Name()),
			slog.String("credential_source", string(a.cred.Source)),
		)
	} else {
		a.logger.Warn("llm not configured, running in demo mode", slog.String("credential", a.cred.State.String()))
	}

	a.db, a.dialect, err = crmdb.Open(ctx, cfg.DB)
	if err != nil {
		return nil, err
	}
	a.closers = append(a.closers, a.db)
	a.executor = crmdb.NewExecutor(a.db, cfg.DB.QueryTimeout)
	a.dashboard = crmdb.NewDashboard(a.db)

	recorder, err := a.newRecorder()
	if err != nil {
		_ = a.Close()
		return nil, err
	}

	opts := []assistant.Option{
		assistant.WithLogger(a.logger),
		assistant.WithRecorder(recorder),
		assistant.WithVariant(cfg.Prompt.Variant),
		assistant.WithExplainConfig(assistant.ExplainConfig{
			Temperature: cfg.LLM.ExplainTemperature,
			MaxTokens:   cfg.LLM.ExplainMaxTokens,
		}),
	}
	if cfg.DB.ReadOnlyGuard {
		opts = append(opts, assistant.WithStatementGuard())
	}
	a.assistant = assistant.New(provider, a.builder, a.executor, a.cred, opts...)
	return a, nil
}

func loadBuilder(cfg config.PromptConfig) (*prompt.Builder, error) {
	var (
		rules prompt.Rules
		err   error
	)
	if cfg.RulesFile != "" {
		rules, err = prompt.LoadRules(cfg.RulesFile)
	} else {
		rules, err = prompt.DefaultRules()
	}
	if err != nil {
		return nil, err
	}
	return prompt.NewBuilder(rules)
}

// resolveCredential consults the OS keyring only when the environment has no
// usable key and the keyring is enabled.
func resolveCredential(cfg config.Config, logger *slog.Logger) credential.Credential {
	if !cfg.Keyring.Enabled || credential.Classify(cfg.LLM.APIKey) == credential.Present {
		return credential.Resolve(cfg.LLM.APIKey, nil)
	}
	ring, err := credential.OpenKeyring()
	if err != nil {
		logger.Debug("keyring unavailable", slog.String("error", err.Error()))
		return credential.Resolve(cfg.LLM.APIKey, nil)
	}
	return credential.Resolve(cfg.LLM.APIKey, ring)
}

func (a *app) newRecorder() (audit.Recorder, error) {
	recorders := audit.Multi{audit.NewLogRecorder(a.logger)}
	if len(a.cfg.Audit.KafkaBrokers) > 0 {
		kr, err := audit.NewKafkaRecorder(audit.KafkaConfig{
			Brokers: a.cfg.Audit.KafkaBrokers,
			Topic:   a.cfg.Audit.KafkaTopic,
		})
		if err != nil {
			return nil, fmt.Errorf("kafka audit: %w", err)
		}
		a.closers = append(a.closers, kr)
		recorders = append(recorders, kr)
		a.logger.Info("kafka audit enabled", slog.String("topic", a.cfg.Audit.KafkaTopic))
	}
	return recorders, nil
}

// loadSchema introspects the store and logs tables the prompt references but
// the store lacks. Failure leaves the cache empty.
func (a *app) loadSchema(ctx context.Context) {
	a.schema = schema.NewCache(a.dialect)
	if err := a.schema.Load(ctx, a.db); err != nil {
		a.logger.Warn("failed to load schema", slog.String("error", err.Error()))
		return
	}
	a.logger.Info("loaded schema", slog.Int("tables", a.schema.TableCount()))
	if missing := a.schema.Missing(a.builder.Tables()); len(missing) > 0 {
		a.logger.Warn("store is missing prompt tables", slog.Any("tables", missing))
	}
}

func (a *app) Close() error {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i].Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func logWriter() io.Writer {
	if verbose {
		return os.Stderr
	}
	return io.Discard
}
