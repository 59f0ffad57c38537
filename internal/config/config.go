// Package config loads runtime settings from the environment and stage
// overrides from an optional YAML file.
package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"
)

// Backend kinds selectable with AURATRIAGE_BACKEND.
const (
	BackendOpenRouter = "openrouter"
	BackendStub       = "stub"
)

// ConfigurationError reports a setting that prevents startup.
type ConfigurationError struct {
	Key    string
	Reason string
}

func (e *ConfigurationError) Error() string {
	return fmt.Sprintf("config: %s: %s", e.Key, e.Reason)
}

// IsConfigurationError reports whether err contains a ConfigurationError.
func IsConfigurationError(err error) bool {
	var ce *ConfigurationError
	return errors.As(err, &ce)
}

// Config holds all process settings.
type Config struct {
	APIKey  string
	BaseURL string
	Backend string

	Addr string

	StageTimeout     time.Duration
	StageInterval    time.Duration
	MaxCascadeBytes  int
	StopOnDisconnect bool
	RunHistory       int

	DBPath string
	Seed   bool

	LogLevel slog.Level

	OTELEndpoint string
	OTELInsecure bool
	ServiceName  string
}

// Load reads configuration from the environment. Unparsable values are
// reported together as ConfigurationErrors.
func Load() (Config, error) {
	var errs []error
	cfg := Config{
		APIKey:  envStr("OPENROUTER_API_KEY", ""),
		BaseURL: envStr("OPENROUTER_BASE_URL", "https://openrouter.ai/api/v1"),
		Backend: strings.ToLower(envStr("AURATRIAGE_BACKEND", BackendOpenRouter)),

		Addr: envStr("AURATRIAGE_ADDR", ":8000"),

		StageTimeout:     envDuration("AURATRIAGE_STAGE_TIMEOUT", 120*time.Second, &errs),
		StageInterval:    envDuration("AURATRIAGE_STAGE_INTERVAL", time.Second, &errs),
		MaxCascadeBytes:  envInt("AURATRIAGE_MAX_CASCADE_BYTES", 0, &errs),
		StopOnDisconnect: envBool("AURATRIAGE_STOP_ON_DISCONNECT", true, &errs),
		RunHistory:       envInt("AURATRIAGE_RUN_HISTORY", 256, &errs),

		DBPath: envStr("AURATRIAGE_DB_PATH", "auratriage.db"),
		Seed:   envBool("AURATRIAGE_SEED", true, &errs),

		LogLevel: envLevel("AURATRIAGE_LOG_LEVEL", slog.LevelInfo, &errs),

		OTELEndpoint: envStr("OTEL_EXPORTER_OTLP_ENDPOINT", ""),
		OTELInsecure: envBool("OTEL_EXPORTER_OTLP_INSECURE", false, &errs),
		ServiceName:  envStr("OTEL_SERVICE_NAME", "auratriage"),
	}
	return cfg, errors.Join(errs...)
}

// Validate checks that the configuration is usable.
func (c Config) Validate() error {
	switch c.Backend {
	case BackendOpenRouter:
		if c.APIKey == "" {
			return &ConfigurationError{Key: "OPENROUTER_API_KEY", Reason: "required when AURATRIAGE_BACKEND=openrouter"}
		}
	case BackendStub:
	default:
		return &ConfigurationError{Key: "AURATRIAGE_BACKEND", Reason: fmt.Sprintf("unknown backend %q (want openrouter or stub)", c.Backend)}
	}
	if c.StageTimeout < 0 {
		return &ConfigurationError{Key: "AURATRIAGE_STAGE_TIMEOUT", Reason: "must not be negative"}
	}
	if c.StageInterval < 0 {
		return &ConfigurationError{Key: "AURATRIAGE_STAGE_INTERVAL", Reason: "must not be negative"}
	}
	if c.MaxCascadeBytes < 0 {
		return &ConfigurationError{Key: "AURATRIAGE_MAX_CASCADE_BYTES", Reason: "must not be negative"}
	}
	if c.RunHistory <= 0 {
		return &ConfigurationError{Key: "AURATRIAGE_RUN_HISTORY", Reason: "must be positive"}
	}
	return nil
}

func envStr(key, defaultVal string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultVal
}

func envInt(key string, defaultVal int, errs *[]error) int {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		*errs = append(*errs, &ConfigurationError{Key: key, Reason: fmt.Sprintf("not an integer: %q", v)})
		return defaultVal
	}
	return n
}

func envBool(key string, defaultVal bool, errs *[]error) bool {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		*errs = append(*errs, &ConfigurationError{Key: key, Reason: fmt.Sprintf("not a boolean: %q", v)})
		return defaultVal
	}
	return b
}

func envDuration(key string, defaultVal time.Duration, errs *[]error) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		*errs = append(*errs, &ConfigurationError{Key: key, Reason: fmt.Sprintf("not a duration: %q", v)})
		return defaultVal
	}
	return d
}

func envLevel(key string, defaultVal slog.Level, errs *[]error) slog.Level {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(v)); err != nil {
		*errs = append(*errs, &ConfigurationError{Key: key, Reason: fmt.Sprintf("not a log level: %q", v)})
		return defaultVal
	}
	return lvl
}
