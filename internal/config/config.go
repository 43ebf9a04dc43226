package config

import (
	"fmt"
	"math"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/tokensentry/tokensentry/internal/feed"
	"github.com/tokensentry/tokensentry/internal/liqlock"
	"github.com/tokensentry/tokensentry/internal/ratelimit"
	"github.com/tokensentry/tokensentry/internal/risk"
	"github.com/tokensentry/tokensentry/internal/verify"
)

// Config is the root configuration structure for TokenSentry.
type Config struct {
	General   GeneralConfig                     `yaml:"general"`
	RateLimit map[string]ratelimit.SourceConfig `yaml:"rate_limit"`
	GoPlus    verify.GoPlusConfig               `yaml:"goplus"`
	Explorer  verify.ExplorerConfig             `yaml:"explorer"`
	Honeypot  verify.HoneypotConfig             `yaml:"honeypot"`
	Solana    verify.SolanaConfig               `yaml:"solana"`
	Verifier  verify.VerifierConfig             `yaml:"verifier"`
	Liquidity liqlock.Config                    `yaml:"liquidity"`
	Risk      risk.Config                       `yaml:"risk"`
	Feed      FeedConfig                        `yaml:"feed"`
	Pipeline  PipelineConfig                    `yaml:"pipeline"`
}

type GeneralConfig struct {
	InstanceID  string `yaml:"instance_id"`
	Environment string `yaml:"environment"` // production|staging|development
	LogLevel    string `yaml:"log_level"`
	LogFormat   string `yaml:"log_format"` // json|text
}

// FeedConfig selects the candidate intake: a JSON batch file, a WebSocket
// stream, or both.
type FeedConfig struct {
	File       string                `yaml:"file"`
	Subscriber feed.SubscriberConfig `yaml:"subscriber"`
}

type PipelineConfig struct {
	MaxConcurrentLocks int `yaml:"max_concurrent_locks"`
}

// Load reads and parses a YAML configuration file. Overrides run after
// parsing and defaulting but before validation, so command-line flags can
// complete a file that leaves a required setting to the invocation.
func Load(path string, overrides ...func(*Config)) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config file: %w", err)
	}

	// Expand environment variables
	expanded := os.ExpandEnv(string(data))

	cfg := Default()
	if err := yaml.Unmarshal([]byte(expanded), cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	applyDefaults(cfg)
	for _, override := range overrides {
		override(cfg)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Default returns the full default configuration, usable without a file.
func Default() *Config {
	cfg := &Config{
		RateLimit: DefaultRateLimits(),
		GoPlus:    verify.DefaultGoPlusConfig(),
		Explorer:  verify.DefaultExplorerConfig(),
		Honeypot:  verify.DefaultHoneypotConfig(),
		Solana:    verify.DefaultSolanaConfig(),
		Verifier:  verify.DefaultVerifierConfig(),
		Liquidity: liqlock.DefaultConfig(),
		Risk:      risk.DefaultConfig(),
		Feed: FeedConfig{
			Subscriber: feed.DefaultSubscriberConfig(),
		},
	}
	applyDefaults(cfg)
	return cfg
}

// DefaultRateLimits covers every external source with free-tier limits.
func DefaultRateLimits() map[string]ratelimit.SourceConfig {
	return map[string]ratelimit.SourceConfig{
		verify.SourceGoPlus:     {RequestsPerMinute: 30, MaxConcurrency: 4},
		verify.SourceExplorer:   {RequestsPerMinute: 5, MaxConcurrency: 1},
		verify.SourceHoneypot:   {RequestsPerMinute: 30, MaxConcurrency: 2},
		verify.SourceSolanaList: {RequestsPerMinute: 10, MaxConcurrency: 1},
		verify.SourceSolanaRPC:  {RequestsPerMinute: 60, MaxConcurrency: 2},
	}
}

func applyDefaults(cfg *Config) {
	if cfg.General.InstanceID == "" {
		cfg.General.InstanceID = "tokensentry-1"
	}
	if cfg.General.Environment == "" {
		cfg.General.Environment = "development"
	}
	if cfg.General.LogLevel == "" {
		cfg.General.LogLevel = "info"
	}
	if cfg.General.LogFormat == "" {
		cfg.General.LogFormat = "json"
	}
	if cfg.RateLimit == nil {
		cfg.RateLimit = DefaultRateLimits()
	} else {
		for name, sc := range DefaultRateLimits() {
			if _, ok := cfg.RateLimit[name]; !ok {
				cfg.RateLimit[name] = sc
			}
		}
	}
	if cfg.Pipeline.MaxConcurrentLocks == 0 {
		cfg.Pipeline.MaxConcurrentLocks = 8
	}
}

// Validate rejects configurations the pipeline cannot run with.
func (c *Config) Validate() error {
	if sum := c.Risk.Weights.Sum(); math.Abs(sum-1.0) > 1e-6 {
		return fmt.Errorf("config: risk weights sum to %.4f, want 1.0", sum)
	}
	for name, sc := range c.RateLimit {
		if sc.RequestsPerMinute < 0 {
			return fmt.Errorf("config: rate_limit.%s.requests_per_minute is negative", name)
		}
	}
	if c.Verifier.BatchSize <= 0 || c.Verifier.BatchSize > 100 {
		return fmt.Errorf("config: verifier.batch_size %d out of range 1..100", c.Verifier.BatchSize)
	}
	if c.Feed.File == "" && c.Feed.Subscriber.Endpoint == "" {
		return fmt.Errorf("config: no candidate intake configured (set feed.file or feed.subscriber.endpoint)")
	}
	return nil
}
