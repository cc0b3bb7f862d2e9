// Command pitchlab is the PitchLab voice sales-training gateway.
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/joho/godotenv"
	anyllmlib "github.com/mozilla-ai/any-llm-go"

	"github.com/pitchlab-ai/pitchlab/internal/auth"
	"github.com/pitchlab-ai/pitchlab/internal/coach"
	"github.com/pitchlab-ai/pitchlab/internal/config"
	"github.com/pitchlab-ai/pitchlab/internal/feedback"
	"github.com/pitchlab-ai/pitchlab/internal/health"
	"github.com/pitchlab-ai/pitchlab/internal/metrics"
	"github.com/pitchlab-ai/pitchlab/internal/observe"
	"github.com/pitchlab-ai/pitchlab/internal/persist"
	filestore "github.com/pitchlab-ai/pitchlab/internal/persist/file"
	"github.com/pitchlab-ai/pitchlab/internal/persist/postgres"
	"github.com/pitchlab-ai/pitchlab/internal/scenario"
	"github.com/pitchlab-ai/pitchlab/internal/server"
	"github.com/pitchlab-ai/pitchlab/internal/session"
	"github.com/pitchlab-ai/pitchlab/pkg/provider/llm"
	"github.com/pitchlab-ai/pitchlab/pkg/provider/llm/anyllm"
	"github.com/pitchlab-ai/pitchlab/pkg/provider/llm/openai"
	dgstt "github.com/pitchlab-ai/pitchlab/pkg/provider/stt/deepgram"
	dgtts "github.com/pitchlab-ai/pitchlab/pkg/provider/tts/deepgram"
)

func main() {
	os.Exit(run())
}

func run() int {
	// ── Configuration ─────────────────────────────────────────────────────────
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		fmt.Fprintf(os.Stderr, "pitchlab: loading .env: %v\n", err)
		return 1
	}

	cfg, err := config.FromEnv()
	if err != nil {
		fmt.Fprintf(os.Stderr, "pitchlab: %v\n", err)
		return 1
	}

	// ── Logger ────────────────────────────────────────────────────────────────
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: cfg.LogLevel.SlogLevel(),
	}))
	slog.SetDefault(logger)

	slog.Info("pitchlab starting",
		"port", cfg.Port,
		"llm_provider", cfg.LLMProvider,
		"llm_model", cfg.LLMModel,
		"log_level", cfg.LogLevel,
	)

	// ── Signal context ────────────────────────────────────────────────────────
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// ── Telemetry ─────────────────────────────────────────────────────────────
	shutdownTelemetry, err := observe.InitProvider(ctx, observe.ProviderConfig{
		ServiceName: "pitchlab",
	})
	if err != nil {
		slog.Error("failed to initialise telemetry", "err", err)
		return 1
	}
	defer func() {
		flushCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdownTelemetry(flushCtx); err != nil {
			slog.Warn("telemetry shutdown error", "err", err)
		}
	}()
	obsMetrics := observe.DefaultMetrics()

	// ── Providers ─────────────────────────────────────────────────────────────
	sttProvider, err := dgstt.New(cfg.DeepgramAPIKey)
	if err != nil {
		slog.Error("failed to create stt provider", "err", err)
		return 1
	}
	ttsProvider, err := dgtts.New(cfg.DeepgramAPIKey)
	if err != nil {
		slog.Error("failed to create tts provider", "err", err)
		return 1
	}
	llmProvider, err := buildLLM(cfg)
	if err != nil {
		slog.Error("failed to create llm provider", "err", err)
		return 1
	}
	slog.Info("providers ready", "stt", "deepgram", "tts", "deepgram-aura", "llm", cfg.LLMProvider)

	// ── Auth ──────────────────────────────────────────────────────────────────
	var verifier auth.Verifier
	if cfg.AuthHMACSecret != "" {
		verifier, err = auth.NewHMAC(cfg.AuthHMACSecret)
		if err != nil {
			slog.Error("failed to create token verifier", "err", err)
			return 1
		}
	} else {
		verifier = auth.Insecure{}
	}

	// ── Session store ─────────────────────────────────────────────────────────
	store, probes, closeStore, err := buildStore(ctx, cfg)
	if err != nil {
		slog.Error("failed to create session store", "err", err)
		return 1
	}
	defer closeStore()

	// ── Scenarios ─────────────────────────────────────────────────────────────
	catalog := scenario.NewCatalog()
	if cfg.ScenarioPackPath != "" {
		if err := catalog.LoadPack(cfg.ScenarioPackPath); err != nil {
			slog.Error("failed to load scenario pack", "path", cfg.ScenarioPackPath, "err", err)
			return 1
		}
		slog.Info("scenario pack loaded", "path", cfg.ScenarioPackPath, "scenarios", len(catalog.IDs()))
	}

	// ── Server ────────────────────────────────────────────────────────────────
	srv := server.New(server.Config{
		Addr: fmt.Sprintf(":%d", cfg.Port),
		Session: session.Config{
			STT:        sttProvider,
			LLM:        llmProvider,
			TTS:        ttsProvider,
			Coach:      coach.New(llmProvider),
			Scorer:     feedback.New(llmProvider),
			Auth:       verifier,
			Store:      store,
			Catalog:    catalog,
			Weights:    metrics.DefaultScoreWeights(),
			Metrics:    obsMetrics,
			Logger:     logger,
			LLMTimeout: cfg.LLMTimeout,
		},
		Metrics: obsMetrics,
		Probes:  probes,
		Logger:  logger,
	})

	slog.Info("server ready — press Ctrl+C to shut down")
	if err := srv.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		slog.Error("run error", "err", err)
		return 1
	}
	slog.Info("goodbye")
	return 0
}

// buildLLM selects the chat backend. OpenAI goes through the native SDK;
// everything else rides the any-llm abstraction.
func buildLLM(cfg *config.Config) (llm.Provider, error) {
	if cfg.LLMProvider == "openai" {
		var opts []openai.Option
		if cfg.LLMBaseURL != "" {
			opts = append(opts, openai.WithBaseURL(cfg.LLMBaseURL))
		}
		return openai.New(cfg.LLMAPIKey, cfg.LLMModel, opts...)
	}

	var opts []anyllmlib.Option
	if cfg.LLMAPIKey != "" {
		opts = append(opts, anyllmlib.WithAPIKey(cfg.LLMAPIKey))
	}
	if cfg.LLMBaseURL != "" {
		opts = append(opts, anyllmlib.WithBaseURL(cfg.LLMBaseURL))
	}
	return anyllm.New(cfg.LLMProvider, cfg.LLMModel, opts...)
}

// buildStore picks PostgreSQL when a DSN is configured, falling back to the
// JSONL file sink. It returns the readiness probes for whichever was chosen.
func buildStore(ctx context.Context, cfg *config.Config) (persist.Store, map[string]health.Probe, func(), error) {
	if cfg.PostgresDSN == "" {
		st, err := filestore.New(cfg.SessionLogDir)
		if err != nil {
			return nil, nil, nil, err
		}
		slog.Info("session store ready", "kind", "file", "dir", cfg.SessionLogDir)
		return st, nil, func() {}, nil
	}

	pool, err := pgxpool.New(ctx, cfg.PostgresDSN)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("connect postgres: %w", err)
	}
	st := postgres.New(pool)
	if err := st.Migrate(ctx); err != nil {
		pool.Close()
		return nil, nil, nil, fmt.Errorf("migrate: %w", err)
	}
	probes := map[string]health.Probe{
		"postgres": pool.Ping,
	}
	slog.Info("session store ready", "kind", "postgres")
	return st, probes, pool.Close, nil
}
