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
// GoPlus Security is the primary batch-capable source.
// One GET per chunk: chain id in the path, comma-joined addresses as a query
// parameter. A top-level `code` field signals success independent of the HTTP
// status; security flags arrive as "0"/"1" strings keyed by lowercase address.
// ---------------------------------------------------------------------------

const SourceGoPlus = "goplus"

// goplusChainIDs maps chain names to GoPlus numeric chain ids. Chains absent
// from this map are routed to the fallback chain by the batch verifier.
var goplusChainIDs = map[string]int{
	"ethereum":  1,
	"bsc":       56,
	"polygon":   137,
	"arbitrum":  42161,
	"avalanche": 43114,
	"fantom":    250,
	"optimism":  10,
	"base":      8453,
	"linea":     59144,
	"cronos":    25,
}

// GoPlusConfig configures the primary source client.
type GoPlusConfig struct {
	BaseURL     string        `yaml:"base_url"`
	SolanaURL   string        `yaml:"solana_url"`
	Timeout     time.Duration `yaml:"timeout"`
	MaxAttempts int           `yaml:"max_attempts"`
	RetryBase   time.Duration `yaml:"retry_base"`
}

// DefaultGoPlusConfig returns production defaults.
func DefaultGoPlusConfig() GoPlusConfig {
	return GoPlusConfig{
		BaseURL:     "https://api.gopluslabs.io/api/v1/token_security",
		SolanaURL:   "https://api.gopluslabs.io/api/v1/solana_token_security",
		Timeout:     30 * time.Second,
		MaxAttempts: 3,
		RetryBase:   time.Second,
	}
}

// GoPlusClient calls the GoPlus token-security API.
type GoPlusClient struct {
	cfg     GoPlusConfig
	http    *http.Client
	limiter *ratelimit.Limiter
}

// NewGoPlusClient creates the primary source client.
func NewGoPlusClient(cfg GoPlusConfig, limiter *ratelimit.Limiter) *GoPlusClient {
	if cfg.BaseURL == "" {
		cfg = DefaultGoPlusConfig()
	}
	return &GoPlusClient{
		cfg:     cfg,
		http:    &http.Client{Timeout: cfg.Timeout},
		limiter: limiter,
	}
}

// Supports reports whether the chain can be served by the batch endpoint.
func (c *GoPlusClient) Supports(chain string) bool {
	_, ok := goplusChainIDs[strings.ToLower(chain)]
	return ok
}

// goplusResponse is the raw batch payload.
type goplusResponse struct {
	Code    int                        `json:"code"`
	Message string                     `json:"message"`
	Result  map[string]json.RawMessage `json:"result"`
}

// goplusToken carries the per-address security fields we consume. GoPlus
// encodes booleans as "0"/"1" strings and taxes as decimal strings.
type goplusToken struct {
	IsHoneypot           string `json:"is_honeypot"`
	IsOpenSource         string `json:"is_open_source"`
	BuyTax               string `json:"buy_tax"`
	SellTax              string `json:"sell_tax"`
	CreatorAddress       string `json:"creator_address"`
	OwnerAddress         string `json:"owner_address"`
	CanTakeBackOwnership string `json:"can_take_back_ownership"`
	IsMintable           string `json:"is_mintable"`
	IsBlacklisted        string `json:"is_blacklisted"`
	IsProxy              string `json:"is_proxy"`
}

// VerifyChunk verifies up to one batch of addresses on a supported chain.
// The returned map has exactly one entry per requested address.
func (c *GoPlusClient) VerifyChunk(ctx context.Context, chain string, addresses []string) (map[string]*model.VerificationResult, error) {
	chainID, ok := goplusChainIDs[strings.ToLower(chain)]
	if !ok {
		return nil, fmt.Errorf("goplus: unsupported chain %q", chain)
	}

	if err := c.limiter.Acquire(ctx, SourceGoPlus); err != nil {
		return nil, err
	}
	defer c.limiter.Release(SourceGoPlus)

	reqURL := fmt.Sprintf("%s/%d?contract_addresses=%s",
		c.cfg.BaseURL, chainID, url.QueryEscape(strings.Join(addresses, ",")))

	var payload goplusResponse
	err := withRetry(ctx, c.cfg.MaxAttempts, c.cfg.RetryBase, func() error {
		if err := c.limiter.Await(ctx, SourceGoPlus); err != nil {
			return err
		}
		err := getJSON(ctx, c.http, reqURL, &payload)
		if errors.Is(err, errThrottled) {
			c.limiter.ReportThrottled(SourceGoPlus)
			return err
		}
		if err == nil {
			c.limiter.ReportSuccess(SourceGoPlus)
		}
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("goplus: batch chain=%s: %w", chain, err)
	}

	results := make(map[string]*model.VerificationResult, len(addresses))
	if payload.Code != 1 || payload.Result == nil {
		log.Warn().
			Int("code", payload.Code).
			Str("message", payload.Message).
			Str("chain", chain).
			Msg("goplus: unsuccessful response code")
		for _, addr := range addresses {
			results[addr] = model.NotFound(SourceGoPlus, fmt.Sprintf("api code %d", payload.Code))
		}
		return results, nil
	}

	for _, addr := range addresses {
		raw, ok := payload.Result[strings.ToLower(addr)]
		if !ok {
			results[addr] = model.NotFound(SourceGoPlus, "address not in source database")
			continue
		}
		results[addr] = parseGoPlusToken(raw)
	}

	log.Debug().
		Str("chain", chain).
		Int("requested", len(addresses)).
		Int("returned", len(payload.Result)).
		Msg("goplus: chunk verified")

	return results, nil
}

// VerifySolana verifies one Solana mint via the dedicated endpoint.
func (c *GoPlusClient) VerifySolana(ctx context.Context, address string) (*model.VerificationResult, error) {
	if err := c.limiter.Acquire(ctx, SourceGoPlus); err != nil {
		return nil, err
	}
	defer c.limiter.Release(SourceGoPlus)

	reqURL := fmt.Sprintf("%s?contract_addresses=%s", c.cfg.SolanaURL, url.QueryEscape(address))

	var payload goplusResponse
	err := withRetry(ctx, c.cfg.MaxAttempts, c.cfg.RetryBase, func() error {
		if err := c.limiter.Await(ctx, SourceGoPlus); err != nil {
			return err
		}
		err := getJSON(ctx, c.http, reqURL, &payload)
		if errors.Is(err, errThrottled) {
			c.limiter.ReportThrottled(SourceGoPlus)
			return err
		}
		if err == nil {
			c.limiter.ReportSuccess(SourceGoPlus)
		}
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("goplus: solana %s: %w", address, err)
	}

	if payload.Code != 1 || payload.Result == nil {
		return nil, fmt.Errorf("goplus: solana api code %d", payload.Code)
	}
	raw, ok := payload.Result[address]
	if !ok {
		raw, ok = payload.Result[strings.ToLower(address)]
	}
	if !ok {
		return nil, fmt.Errorf("goplus: solana mint not found")
	}

	result := parseGoPlusToken(raw)
	result.SourceName = SourceGoPlus + "_solana"
	// SPL mints have no proxy pattern; existence in the security DB counts
	// as verified for Solana.
	result.IsProxyContract = false
	result.IsVerified = true
	return result, nil
}

func parseGoPlusToken(raw json.RawMessage) *model.VerificationResult {
	var info goplusToken
	if err := json.Unmarshal(raw, &info); err != nil {
		return model.NotFound(SourceGoPlus, "malformed token entry")
	}

	owner := info.CreatorAddress
	if owner == "" {
		owner = info.OwnerAddress
	}

	return &model.VerificationResult{
		IsVerified:           info.IsOpenSource == "1",
		IsHoneypot:           info.IsHoneypot == "1",
		BuyTaxPercent:        parseTax(info.BuyTax),
		SellTaxPercent:       parseTax(info.SellTax),
		OwnerAddress:         owner,
		CanReclaimOwnership:  info.CanTakeBackOwnership == "1",
		HasMintFunction:      info.IsMintable == "1",
		HasBlacklistFunction: info.IsBlacklisted == "1",
		IsProxyContract:      info.IsProxy == "1",
		SourceName:           SourceGoPlus,
		RawPayload:           raw,
	}
}

// parseTax converts the source's tax string (a 0..1 fraction or empty) into a
// 0..100 percentage.
func parseTax(s string) decimal.Decimal {
	if s == "" {
		return decimal.Zero
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero
	}
	// Some chains report taxes as fractions; normalize to percent.
	if d.LessThanOrEqual(decimal.NewFromInt(1)) {
		return d.Mul(decimal.NewFromInt(100))
	}
	return d
}
