package main

import (
	"context"
	"encoding/json"
	"flag"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/tokensentry/tokensentry/internal/config"
	"github.com/tokensentry/tokensentry/internal/feed"
	"github.com/tokensentry/tokensentry/internal/liqlock"
	"github.com/tokensentry/tokensentry/internal/model"
	"github.com/tokensentry/tokensentry/internal/pipeline"
	"github.com/tokensentry/tokensentry/internal/ratelimit"
	"github.com/tokensentry/tokensentry/internal/risk"
	"github.com/tokensentry/tokensentry/internal/verify"
)

func main() {
	configPath := flag.String("config", "", "path to YAML configuration")
	inputPath := flag.String("input", "", "JSON file of candidates (overrides feed.file)")
	outputPath := flag.String("output", "", "write reports to file instead of stdout")
	flag.Parse()

	// Setup structured logging
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnixMicro
	log.Logger = zerolog.New(os.Stderr).With().
		Timestamp().
		Str("service", "tokensentry").
		Logger()

	cfg, err := loadConfig(*configPath, *inputPath)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to load configuration")
	}
	applyLogSettings(cfg)

	log.Info().
		Str("instance_id", cfg.General.InstanceID).
		Str("environment", cfg.General.Environment).
		Msg("TokenSentry starting")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		log.Warn().Str("signal", sig.String()).Msg("Shutdown signal received")
		cancel()
	}()

	pipe := buildPipeline(cfg)

	switch {
	case cfg.Feed.File != "":
		if err := runBatch(ctx, pipe, cfg.Feed.File, *outputPath); err != nil {
			log.Fatal().Err(err).Msg("Batch run failed")
		}
	case cfg.Feed.Subscriber.Endpoint != "":
		if err := runStream(ctx, pipe, cfg, *outputPath); err != nil {
			log.Fatal().Err(err).Msg("Stream run failed")
		}
	}

	log.Info().Msg("TokenSentry shutdown complete")
}

func loadConfig(path, input string) (*config.Config, error) {
	// The -input flag counts as intake, so it must land before validation.
	override := func(cfg *config.Config) {
		if input != "" {
			cfg.Feed.File = input
		}
	}
	if path != "" {
		return config.Load(path, override)
	}
	cfg := config.Default()
	override(cfg)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func applyLogSettings(cfg *config.Config) {
	level, err := zerolog.ParseLevel(cfg.General.LogLevel)
	if err != nil {
		level = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(level)
	if cfg.General.LogFormat == "text" {
		log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})
	}
}

func buildPipeline(cfg *config.Config) *pipeline.Pipeline {
	limiter := ratelimit.New(cfg.RateLimit)

	verifier := verify.NewBatchVerifier(
		cfg.Verifier,
		verify.NewGoPlusClient(cfg.GoPlus, limiter),
		verify.NewExplorerClient(cfg.Explorer, limiter),
		verify.NewHoneypotClient(cfg.Honeypot, limiter),
		verify.NewSolanaClient(cfg.Solana, limiter),
	)
	locks := liqlock.NewEvaluator(cfg.Liquidity)
	scorer := risk.NewScorer(cfg.Risk)

	return pipeline.New(verifier, locks, scorer, cfg.Pipeline.MaxConcurrentLocks)
}

func runBatch(ctx context.Context, pipe *pipeline.Pipeline, path, output string) error {
	candidates, err := feed.LoadFile(path)
	if err != nil {
		return err
	}
	reports := pipe.Run(ctx, candidates)
	return writeReports(reports, output)
}

func runStream(ctx context.Context, pipe *pipeline.Pipeline, cfg *config.Config, output string) error {
	sub := feed.NewSubscriber(cfg.Feed.Subscriber)
	candidates, err := sub.Start(ctx)
	if err != nil {
		return err
	}

	// Micro-batch the stream so verification chunks fill up.
	const flushInterval = 5 * time.Second
	ticker := time.NewTicker(flushInterval)
	defer ticker.Stop()

	var pending []model.Candidate
	flush := func() {
		if len(pending) == 0 {
			return
		}
		reports := pipe.Run(ctx, pending)
		pending = pending[:0]
		if err := writeReports(reports, output); err != nil {
			log.Error().Err(err).Msg("Failed to write reports")
		}
	}

	for {
		select {
		case <-ctx.Done():
			flush()
			return nil
		case c, ok := <-candidates:
			if !ok {
				flush()
				return nil
			}
			pending = append(pending, c)
		case <-ticker.C:
			flush()
		}
	}
}

func writeReports(reports []*pipeline.Report, output string) error {
	out := os.Stdout
	if output != "" {
		f, err := os.OpenFile(output, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err != nil {
			return err
		}
		defer f.Close()
		out = f
	}

	enc := json.NewEncoder(out)
	for _, r := range reports {
		if err := enc.Encode(r); err != nil {
			return err
		}
	}
	return nil
}
