// Package config loads runtime configuration from environment-style lookups.
package config

import (
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"github.com/JonMunkholm/CrmAssist/internal/logging"
)

type LookupFunc func(string) (string, bool)

type Config struct {
	HTTP          HTTPConfig
	DB            DBConfig
	LLM           LLMConfig
	Prompt        PromptConfig
	Observability ObservabilityConfig
	Audit         AuditConfig
	Keyring       KeyringConfig
}

type HTTPConfig struct {
	Address      string
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
}

type DBConfig struct {
	Driver          string
	DSN             string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
	QueryTimeout    time.Duration
	ReadOnlyGuard   bool
}

type LLMConfig struct {
	Provider           string
	APIKey             string
	Model              string
	BaseURL            string
	Timeout            time.Duration
	ExplainTemperature float64
	ExplainMaxTokens   int
}

type PromptConfig struct {
	RulesFile string
	Variant   string
}

type ObservabilityConfig struct {
	ServiceName string
	LogLevel    slog.Level
	LogJSON     bool
}

type AuditConfig struct {
	KafkaBrokers []string
	KafkaTopic   string
}

type KeyringConfig struct {
	Enabled bool
}

// LoadDotEnv loads .env files if present. Missing files are not an error.
func LoadDotEnv(files ...string) {
	_ = godotenv.Load(files...)
}

func LoadFromEnv() (Config, error) {
	return Load(os.LookupEnv)
}

func Load(lookup LookupFunc) (Config, error) {
	if lookup == nil {
		return Config{}, fmt.Errorf("lookup function is required")
	}

	cfg := defaults()

	if err := applyString(lookup, "ADDR", &cfg.HTTP.Address); err != nil {
		return Config{}, err
	}
	if err := applyDuration(lookup, "HTTP_READ_TIMEOUT", &cfg.HTTP.ReadTimeout); err != nil {
		return Config{}, err
	}
	if err := applyDuration(lookup, "HTTP_WRITE_TIMEOUT", &cfg.HTTP.WriteTimeout); err != nil {
		return Config{}, err
	}
	if err := applyString(lookup, "DB_DRIVER", &cfg.DB.Driver); err != nil {
		return Config{}, err
	}
	if err := applyString(lookup, "DB_DSN", &cfg.DB.DSN); err != nil {
		return Config{}, err
	}
	if err := applyInt(lookup, "DB_MAX_OPEN_CONNS", &cfg.DB.MaxOpenConns); err != nil {
		return Config{}, err
	}
	if err := applyInt(lookup, "DB_MAX_IDLE_CONNS", &cfg.DB.MaxIdleConns); err != nil {
		return Config{}, err
	}
	if err := applyDuration(lookup, "DB_CONN_MAX_LIFETIME", &cfg.DB.ConnMaxLifetime); err != nil {
		return Config{}, err
	}
	if err := applyDuration(lookup, "QUERY_TIMEOUT", &cfg.DB.QueryTimeout); err != nil {
		return Config{}, err
	}
	if err := applyBool(lookup, "SQL_READ_ONLY", &cfg.DB.ReadOnlyGuard); err != nil {
		return Config{}, err
	}
	if err := applyString(lookup, "LLM_PROVIDER", &cfg.LLM.Provider); err != nil {
		return Config{}, err
	}
	// OPENAI_API_KEY is the historical name; LLM_API_KEY wins when both are set.
	if err := applyString(lookup, "OPENAI_API_KEY", &cfg.LLM.APIKey); err != nil {
		return Config{}, err
	}
	if err := applyString(lookup, "LLM_API_KEY", &cfg.LLM.APIKey); err != nil {
		return Config{}, err
	}
	if err := applyString(lookup, "LLM_MODEL", &cfg.LLM.Model); err != nil {
		return Config{}, err
	}
	if err := applyString(lookup, "LLM_BASE_URL", &cfg.LLM.BaseURL); err != nil {
		return Config{}, err
	}
	if err := applyDuration(lookup, "LLM_TIMEOUT", &cfg.LLM.Timeout); err != nil {
		return Config{}, err
	}
	if err := applyFloat(lookup, "LLM_EXPLAIN_TEMPERATURE", &cfg.LLM.ExplainTemperature); err != nil {
		return Config{}, err
	}
	if err := applyInt(lookup, "LLM_EXPLAIN_MAX_TOKENS", &cfg.LLM.ExplainMaxTokens); err != nil {
		return Config{}, err
	}
	if err := applyString(lookup, "PROMPT_RULES_FILE", &cfg.Prompt.RulesFile); err != nil {
		return Config{}, err
	}
	if err := applyString(lookup, "PROMPT_VARIANT", &cfg.Prompt.Variant); err != nil {
		return Config{}, err
	}
	if err := applyString(lookup, "SERVICE_NAME", &cfg.Observability.ServiceName); err != nil {
		return Config{}, err
	}
	if err := applyLogLevel(lookup, "LOG_LEVEL", &cfg.Observability.LogLevel); err != nil {
		return Config{}, err
	}
	if err := applyBool(lookup, "LOG_JSON", &cfg.Observability.LogJSON); err != nil {
		return Config{}, err
	}
	if err := applyList(lookup, "AUDIT_KAFKA_BROKERS", &cfg.Audit.KafkaBrokers); err != nil {
		return Config{}, err
	}
	if err := applyString(lookup, "AUDIT_KAFKA_TOPIC", &cfg.Audit.KafkaTopic); err != nil {
		return Config{}, err
	}
	if err := applyBool(lookup, "KEYRING_ENABLED", &cfg.Keyring.Enabled); err != nil {
		return Config{}, err
	}

	cfg.LLM.Provider = strings.ToLower(cfg.LLM.Provider)
	cfg.DB.Driver = strings.ToLower(cfg.DB.Driver)

	if cfg.HTTP.Address == "" {
		return Config{}, fmt.Errorf("http address is required")
	}
	if cfg.DB.DSN == "" {
		return Config{}, fmt.Errorf("database dsn is required")
	}
	if cfg.LLM.Timeout < 0 {
		return Config{}, fmt.Errorf("invalid LLM_TIMEOUT: must not be negative")
	}
	if cfg.LLM.ExplainMaxTokens < 0 {
		return Config{}, fmt.Errorf("invalid LLM_EXPLAIN_MAX_TOKENS: must not be negative")
	}
	return cfg, nil
}

// Redacted returns a copy that is safe to log.
func (c Config) Redacted() Config {
	out := c
	if out.LLM.APIKey != "" {
		out.LLM.APIKey = "***"
	}
	out.DB.DSN = logging.Mask(out.DB.DSN)
	return out
}

func defaults() Config {
	return Config{
		HTTP: HTTPConfig{
			Address:      ":5001",
			ReadTimeout:  10 * time.Second,
			WriteTimeout: 120 * time.Second,
		},
		DB: DBConfig{
			Driver:          "sqlite",
			DSN:             "sqlite://./data/crm.db",
			MaxOpenConns:    10,
			MaxIdleConns:    5,
			ConnMaxLifetime: 30 * time.Minute,
		},
		LLM: LLMConfig{
			Provider:           "openai",
			Timeout:            60 * time.Second,
			ExplainTemperature: 0.7,
			ExplainMaxTokens:   100,
		},
		Observability: ObservabilityConfig{
			ServiceName: "crmassist",
			LogLevel:    slog.LevelInfo,
		},
		Audit: AuditConfig{
			KafkaTopic: "crm-sql-audit",
		},
		Keyring: KeyringConfig{
			Enabled: true,
		},
	}
}

func applyString(lookup LookupFunc, key string, dst *string) error {
	raw, ok := lookup(key)
	if !ok {
		return nil
	}
	value := strings.TrimSpace(raw)
	if value == "" {
		return nil
	}
	*dst = value
	return nil
}

func applyList(lookup LookupFunc, key string, dst *[]string) error {
	raw, ok := lookup(key)
	if !ok {
		return nil
	}
	var items []string
	for _, part := range strings.Split(raw, ",") {
		if part = strings.TrimSpace(part); part != "" {
			items = append(items, part)
		}
	}
	*dst = items
	return nil
}

func applyDuration(lookup LookupFunc, key string, dst *time.Duration) error {
	raw, ok := lookup(key)
	if !ok || strings.TrimSpace(raw) == "" {
		return nil
	}
	value, err := time.ParseDuration(strings.TrimSpace(raw))
	if err != nil {
		return fmt.Errorf("invalid %s: %w", key, err)
	}
	*dst = value
	return nil
}

func applyBool(lookup LookupFunc, key string, dst *bool) error {
	raw, ok := lookup(key)
	if !ok || strings.TrimSpace(raw) == "" {
		return nil
	}
	value, err := strconv.ParseBool(strings.TrimSpace(raw))
	if err != nil {
		return fmt.Errorf("invalid %s: %w", key, err)
	}
	*dst = value
	return nil
}

func applyInt(lookup LookupFunc, key string, dst *int) error {
	raw, ok := lookup(key)
	if !ok || strings.TrimSpace(raw) == "" {
		return nil
	}
	value, err := strconv.Atoi(strings.TrimSpace(raw))
	if err != nil {
		return fmt.Errorf("invalid %s: %w", key, err)
	}
	*dst = value
	return nil
}

func applyFloat(lookup LookupFunc, key string, dst *float64) error {
	raw, ok := lookup(key)
	if !ok || strings.TrimSpace(raw) == "" {
		return nil
	}
	value, err := strconv.ParseFloat(strings.TrimSpace(raw), 64)
	if err != nil {
		return fmt.Errorf("invalid %s: %w", key, err)
	}
	*dst = value
	return nil
}

func applyLogLevel(lookup LookupFunc, key string, dst *slog.Level) error {
	raw, ok := lookup(key)
	if !ok || strings.TrimSpace(raw) == "" {
		return nil
	}
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "debug":
		*dst = slog.LevelDebug
	case "info":
		*dst = slog.LevelInfo
	case "warn", "warning":
		*dst = slog.LevelWarn
	case "error":
		*dst = slog.LevelError
	default:
		return fmt.Errorf("invalid %s: %q", key, raw)
	}
	return nil
}
