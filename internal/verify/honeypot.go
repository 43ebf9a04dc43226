package verify

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"
	"github.com/tokensentry/tokensentry/internal/model"
	"github.com/tokensentry/tokensentry/internal/ratelimit"
)

// ---------------------------------------------------------------------------
// Honeypot oracle: a single-address probe returning a boolean honeypot flag
// plus simulated buy/sell/transfer taxes. Used as a secondary opinion when the
// primary source has no data for an EVM address.
// ---------------------------------------------------------------------------

const SourceHoneypot = "honeypot_oracle"

// HoneypotConfig configures the honeypot oracle client.
type HoneypotConfig struct {
	BaseURL     string        `yaml:"base_url"`
	Timeout     time.Duration `yaml:"timeout"`
	MaxAttempts int           `yaml:"max_attempts"`
	RetryBase   time.Duration `yaml:"retry_base"`
	Chains      []string      `yaml:"chains"`
}

// DefaultHoneypotConfig returns production defaults.
func DefaultHoneypotConfig() HoneypotConfig {
	return HoneypotConfig{
		BaseURL:     "https://api.honeypot.is/v2/IsHoneypot",
		Timeout:     10 * time.Second,
		MaxAttempts: 2,
		RetryBase:   time.Second,
		Chains:      []string{"ethereum", "bsc", "base"},
	}
}

// HoneypotClient calls the honeypot oracle.
type HoneypotClient struct {
	cfg     HoneypotConfig
	http    *http.Client
	limiter *ratelimit.Limiter
	chains  map[string]bool
}

// NewHoneypotClient creates the oracle client.
func NewHoneypotClient(cfg HoneypotConfig, limiter *ratelimit.Limiter) *HoneypotClient {
	if cfg.BaseURL == "" {
		cfg = DefaultHoneypotConfig()
	}
	chains := make(map[string]bool, len(cfg.Chains))
	for _, ch := range cfg.Chains {
		chains[strings.ToLower(ch)] = true
	}
	return &HoneypotClient{
		cfg:     cfg,
		http:    &http.Client{Timeout: cfg.Timeout},
		limiter: limiter,
		chains:  chains,
	}
}

// Supports reports whether the oracle serves the chain.
func (c *HoneypotClient) Supports(chain string) bool {
	return c.chains[strings.ToLower(chain)]
}

type honeypotResponse struct {
	HoneypotResult struct {
		IsHoneypot bool `json:"isHoneypot"`
	} `json:"honeypotResult"`
	SimulationResult struct {
		BuyTax      float64 `json:"buyTax"`
		SellTax     float64 `json:"sellTax"`
		TransferTax float64 `json:"transferTax"`
	} `json:"simulationResult"`
	ContractCode struct {
		OpenSource bool `json:"openSource"`
		IsProxy    bool `json:"isProxy"`
	} `json:"contractCode"`
}

// Check probes a single address for honeypot behavior.
func (c *HoneypotClient) Check(ctx context.Context, chain, address string) (*model.VerificationResult, error) {
	if !c.Supports(chain) {
		return nil, fmt.Errorf("honeypot: unsupported chain %q", chain)
	}

	if err := c.limiter.Acquire(ctx, SourceHoneypot); err != nil {
		return nil, err
	}
	defer c.limiter.Release(SourceHoneypot)

	reqURL := fmt.Sprintf("%s?address=%s", c.cfg.BaseURL, url.QueryEscape(address))

	var payload honeypotResponse
	var raw json.RawMessage
	err := withRetry(ctx, c.cfg.MaxAttempts, c.cfg.RetryBase, func() error {
		if err := c.limiter.Await(ctx, SourceHoneypot); err != nil {
			return err
		}
		err := getJSON(ctx, c.http, reqURL, &payload)
		if errors.Is(err, errThrottled) {
			c.limiter.ReportThrottled(SourceHoneypot)
			return err
		}
		if err == nil {
			c.limiter.ReportSuccess(SourceHoneypot)
		}
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("honeypot: %s %s: %w", chain, address, err)
	}
	raw, _ = json.Marshal(payload)

	result := &model.VerificationResult{
		IsVerified:      payload.ContractCode.OpenSource,
		IsHoneypot:      payload.HoneypotResult.IsHoneypot,
		BuyTaxPercent:   decimal.NewFromFloat(payload.SimulationResult.BuyTax),
		SellTaxPercent:  decimal.NewFromFloat(payload.SimulationResult.SellTax),
		IsProxyContract: payload.ContractCode.IsProxy,
		SourceName:      SourceHoneypot,
		RawPayload:      raw,
	}

	if result.IsHoneypot {
		log.Warn().
			Str("chain", chain).
			Str("address", shortAddr(address)).
			Msg("honeypot: oracle flagged address")
	}

	return result, nil
}
