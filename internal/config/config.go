// Package config provides the environment-driven configuration schema for
// the PitchLab gateway.
package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"slices"
	"strconv"
	"time"
)

// LogLevel controls log verbosity for the gateway.
type LogLevel string

const (
	LogDebug LogLevel = "debug"
	LogInfo  LogLevel = "info"
	LogWarn  LogLevel = "warn"
	LogError LogLevel = "error"
)

// IsValid reports whether l is a recognised log level.
func (l LogLevel) IsValid() bool {
	switch l {
	case LogDebug, LogInfo, LogWarn, LogError:
		return true
	}
	return false
}

// SlogLevel maps l onto the slog level scale. Unrecognised levels map to info.
func (l LogLevel) SlogLevel() slog.Level {
	switch l {
	case LogDebug:
		return slog.LevelDebug
	case LogWarn:
		return slog.LevelWarn
	case LogError:
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// ValidLLMProviders lists the LLM backends selectable via LLM_PROVIDER.
var ValidLLMProviders = []string{"openai", "anthropic", "gemini", "ollama", "deepseek", "mistral", "groq"}

// Defaults applied when the corresponding variable is unset.
const (
	DefaultPort       = 3001
	DefaultLLMModel   = "gpt-4o-mini"
	DefaultLLMTimeout = 10 * time.Second
)

// Config is the root configuration for the gateway, assembled from
// environment variables by [FromEnv].
type Config struct {
	// Port is the TCP port the combined HTTP/WebSocket server listens on.
	Port int

	// LogLevel controls verbosity.
	LogLevel LogLevel

	// DeepgramAPIKey authenticates both the STT stream and the Aura TTS calls.
	DeepgramAPIKey string

	// LLMProvider selects the chat backend (see ValidLLMProviders).
	LLMProvider string

	// LLMAPIKey authenticates the chat backend.
	LLMAPIKey string

	// LLMModel is the chat model identifier (e.g., "gpt-4o-mini").
	LLMModel string

	// LLMBaseURL overrides the chat backend's default endpoint.
	// Leave empty to use the provider's built-in default.
	LLMBaseURL string

	// LLMTimeout bounds each chat completion call.
	LLMTimeout time.Duration

	// AuthHMACSecret verifies client auth tokens. Empty disables token
	// verification and every auth frame is accepted.
	AuthHMACSecret string

	// PostgresDSN selects the PostgreSQL session sink. Empty falls back to
	// the JSONL file sink under SessionLogDir.
	PostgresDSN string

	// SessionLogDir is the directory for the JSONL session sink.
	SessionLogDir string

	// ScenarioPackPath points at an optional YAML pack of extra scenarios
	// merged over the built-ins.
	ScenarioPackPath string
}

// FromEnv assembles a Config from the process environment and validates it.
func FromEnv() (*Config, error) {
	cfg := &Config{
		Port:             DefaultPort,
		LogLevel:         LogInfo,
		DeepgramAPIKey:   os.Getenv("DEEPGRAM_API_KEY"),
		LLMProvider:      getEnvDefault("LLM_PROVIDER", "openai"),
		LLMAPIKey:        os.Getenv("LLM_API_KEY"),
		LLMModel:         getEnvDefault("LLM_MODEL", DefaultLLMModel),
		LLMBaseURL:       os.Getenv("LLM_BASE_URL"),
		LLMTimeout:       DefaultLLMTimeout,
		AuthHMACSecret:   os.Getenv("AUTH_HMAC_SECRET"),
		PostgresDSN:      os.Getenv("POSTGRES_DSN"),
		SessionLogDir:    getEnvDefault("SESSION_LOG_PATH", "data/sessions"),
		ScenarioPackPath: os.Getenv("SCENARIO_PACK_PATH"),
	}

	if v := os.Getenv("PORT"); v != "" {
		port, err := strconv.Atoi(v)
		if err != nil {
			return nil, fmt.Errorf("config: PORT %q is not a number: %w", v, err)
		}
		cfg.Port = port
	}
	if v := os.Getenv("LOG_LEVEL"); v != "" {
		cfg.LogLevel = LogLevel(v)
	}
	if v := os.Getenv("LLM_TIMEOUT_MS"); v != "" {
		ms, err := strconv.Atoi(v)
		if err != nil {
			return nil, fmt.Errorf("config: LLM_TIMEOUT_MS %q is not a number: %w", v, err)
		}
		cfg.LLMTimeout = time.Duration(ms) * time.Millisecond
	}

	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks that cfg contains a coherent set of values.
// It returns a joined error listing all validation failures found.
func Validate(cfg *Config) error {
	var errs []error

	if cfg.Port <= 0 || cfg.Port > 65535 {
		errs = append(errs, fmt.Errorf("PORT %d is out of range (1, 65535]", cfg.Port))
	}
	if cfg.LogLevel != "" && !cfg.LogLevel.IsValid() {
		errs = append(errs, fmt.Errorf("LOG_LEVEL %q is invalid; valid values: debug, info, warn, error", cfg.LogLevel))
	}
	if cfg.DeepgramAPIKey == "" {
		errs = append(errs, errors.New("DEEPGRAM_API_KEY is required"))
	}
	if cfg.LLMAPIKey == "" && cfg.LLMProvider != "ollama" {
		errs = append(errs, errors.New("LLM_API_KEY is required"))
	}
	if cfg.LLMTimeout <= 0 {
		errs = append(errs, fmt.Errorf("LLM_TIMEOUT_MS must be positive, got %s", cfg.LLMTimeout))
	}

	if cfg.LLMProvider != "" && !slices.Contains(ValidLLMProviders, cfg.LLMProvider) {
		slog.Warn("unknown LLM provider — may be a typo or third-party backend",
			"provider", cfg.LLMProvider,
			"known", ValidLLMProviders,
		)
	}
	if cfg.AuthHMACSecret == "" {
		slog.Warn("AUTH_HMAC_SECRET is empty; client auth tokens will not be verified")
	}
	if cfg.PostgresDSN == "" {
		slog.Warn("POSTGRES_DSN is empty; sessions will be persisted to JSONL files",
			"dir", cfg.SessionLogDir,
		)
	}

	return errors.Join(errs...)
}

func getEnvDefault(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
