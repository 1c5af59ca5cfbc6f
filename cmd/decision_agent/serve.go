package main

import (
	"context"
	"errors"
	"fmt"
	"log"

	"github.com/spf13/cobra"

	"github.com/jonathan/decision-letters/internal/audit"
	"github.com/jonathan/decision-letters/internal/bias"
	"github.com/jonathan/decision-letters/internal/cache"
	"github.com/jonathan/decision-letters/internal/config"
	"github.com/jonathan/decision-letters/internal/db"
	"github.com/jonathan/decision-letters/internal/explain"
	"github.com/jonathan/decision-letters/internal/generation"
	"github.com/jonathan/decision-letters/internal/idempotency"
	"github.com/jonathan/decision-letters/internal/lint"
	"github.com/jonathan/decision-letters/internal/llm"
	"github.com/jonathan/decision-letters/internal/pipeline"
	"github.com/jonathan/decision-letters/internal/server"
	"github.com/jonathan/decision-letters/internal/server/ratelimit"
	"github.com/jonathan/decision-letters/internal/signing"
)

var servePort int

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the REST API server",
	Long:  `Start an HTTP server that generates decision letters and exposes the lint, bias and receipt checks.`,
	RunE:  runServe,
}

func init() {
	serveCmd.Flags().IntVar(&servePort, "port", 0, "Port to listen on (overrides PORT)")
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, _ []string) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	if servePort != 0 {
		cfg.Port = servePort
	}
	switch {
	case cfg.DatabaseURL == "":
		return errors.New("DATABASE_URL environment variable is required")
	case cfg.GeminiAPIKey == "":
		return errors.New("GEMINI_API_KEY environment variable is required")
	}
	if err := cfg.RequireSigning(); err != nil {
		return err
	}

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	database, err := db.Connect(ctx, cfg.DatabaseURL)
	if err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}
	defer database.Close()
	if err := database.EnsureSchema(ctx); err != nil {
		return fmt.Errorf("failed to apply schema: %w", err)
	}

	store, err := openCache(ctx, cfg)
	if err != nil {
		return err
	}
	defer store.Close() //nolint:errcheck

	provider, err := llm.NewProvider(ctx, cfg.LLMConfig(), cfg.GeminiAPIKey)
	if err != nil {
		return fmt.Errorf("failed to create provider: %w", err)
	}
	defer provider.Close() //nolint:errcheck

	logger := log.Default()
	sink := audit.MultiSink{audit.LogSink{Logger: logger}, audit.DBSink{Writer: database}}

	signer, err := signing.NewSigner([]byte(cfg.SigningSecret))
	if err != nil {
		return fmt.Errorf("failed to create signer: %w", err)
	}
	cards, err := explain.NewGenerator(signer)
	if err != nil {
		return fmt.Errorf("failed to create card generator: %w", err)
	}

	orchestrator, err := generation.NewOrchestrator(generation.RoutesFromConfig(provider, cfg.LLMConfig()), generation.Options{
		Store:   store,
		MemoTTL: cfg.GenerationMemoTTL,
		Filter:  generation.DefaultPhraseFilter(),
		Logger:  logger,
		Audit:   sink,
	})
	if err != nil {
		return fmt.Errorf("failed to create orchestrator: %w", err)
	}

	idemOpts := cfg.IdempotencyOptions()
	idemOpts.Logger = logger
	idemOpts.Audit = sink
	coordinator := idempotency.NewCoordinator(store, idemOpts)

	detector := bias.NewDetector(bias.WithPolicy(cfg.BiasPolicy()))
	linter := lint.NewLinter(detector)

	service, err := pipeline.NewService(pipeline.Options{
		Coordinator:      coordinator,
		Generator:        orchestrator,
		Cards:            cards,
		Store:            database,
		Detector:         detector,
		Linter:           linter,
		Audit:            sink,
		Logger:           logger,
		CompanyName:      cfg.CompanyName,
		TemplateVersion:  cfg.TemplateVersion,
		PassingThreshold: cfg.PassingThreshold,
		Generation:       cfg.GenerationConfig(),
		BannedPhrases:    cfg.BannedPhrases,
		BatchConcurrency: cfg.BatchConcurrency,
	})
	if err != nil {
		return fmt.Errorf("failed to create pipeline: %w", err)
	}

	rateLimit, err := ratelimit.LoadConfig()
	if err != nil {
		return err
	}

	srv, err := server.New(server.Config{Port: cfg.Port, RateLimit: rateLimit}, server.Deps{
		Decisions: service,
		Records:   database,
		Cards:     cards,
		Detector:  detector,
		Linter:    linter,
	})
	if err != nil {
		return fmt.Errorf("failed to create server: %w", err)
	}
	return srv.Start()
}

// openCache returns the shared Redis store behind a process-local fallback,
// or only the process-local store when REDIS_ADDR is unset.
func openCache(ctx context.Context, cfg *config.Config) (cache.Store, error) {
	if cfg.RedisAddr == "" {
		log.Printf("[serve] WARNING REDIS_ADDR is not set; idempotency is enforced per process only")
		return cache.NewMemoryStore(nil), nil
	}
	redisStore, err := cache.NewRedisStore(ctx, cfg.RedisConfig())
	if err != nil {
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}
	return cache.NewFallbackStore(redisStore, nil, log.Default()), nil
}
