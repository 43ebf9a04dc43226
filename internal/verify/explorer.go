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
	"github.com/tokensentry/tokensentry/internal/model"
	"github.com/tokensentry/tokensentry/internal/ratelimit"
)

// ---------------------------------------------------------------------------
// Blockchain explorer fallback (Etherscan / BscScan family). Single-address
// getsourcecode calls, heavily rate-limited (~1 request per 5s without a key).
// A contract counts as verified when the returned source code is non-empty.
// ---------------------------------------------------------------------------

const SourceExplorer = "explorer"

// ExplorerConfig configures one chain-family explorer endpoint.
type ExplorerConfig struct {
	Endpoints   map[string]string `yaml:"endpoints"` // chain -> API base URL
	APIKeys     map[string]string `yaml:"api_keys"`  // chain -> key (optional)
	Timeout     time.Duration     `yaml:"timeout"`
	MaxAttempts int               `yaml:"max_attempts"`
	RetryBase   time.Duration     `yaml:"retry_base"`
}

// DefaultExplorerConfig returns the public endpoints for the two chains the
// explorer fallback serves.
func DefaultExplorerConfig() ExplorerConfig {
	return ExplorerConfig{
		Endpoints: map[string]string{
			"ethereum": "https://api.etherscan.io/api",
			"bsc":      "https://api.bscscan.com/api",
		},
		Timeout:     10 * time.Second,
		MaxAttempts: 2,
		RetryBase:   2 * time.Second,
	}
}

// ExplorerClient calls an Etherscan-style contract verification API.
type ExplorerClient struct {
	cfg     ExplorerConfig
	http    *http.Client
	limiter *ratelimit.Limiter
}

// NewExplorerClient creates the explorer fallback client.
func NewExplorerClient(cfg ExplorerConfig, limiter *ratelimit.Limiter) *ExplorerClient {
	if len(cfg.Endpoints) == 0 {
		cfg = DefaultExplorerConfig()
	}
	return &ExplorerClient{
		cfg:     cfg,
		http:    &http.Client{Timeout: cfg.Timeout},
		limiter: limiter,
	}
}

// Supports reports whether an explorer endpoint exists for the chain.
func (c *ExplorerClient) Supports(chain string) bool {
	_, ok := c.cfg.Endpoints[strings.ToLower(chain)]
	return ok
}

type explorerResponse struct {
	Status  string            `json:"status"`
	Message string            `json:"message"`
	Result  []json.RawMessage `json:"result"`
}

type explorerContract struct {
	SourceCode      string `json:"SourceCode"`
	ContractName    string `json:"ContractName"`
	ContractCreator string `json:"ContractCreator"`
	Proxy           string `json:"Proxy"`
}

// Verify fetches verification status for a single address.
func (c *ExplorerClient) Verify(ctx context.Context, chain, address string) (*model.VerificationResult, error) {
	endpoint, ok := c.cfg.Endpoints[strings.ToLower(chain)]
	if !ok {
		return nil, fmt.Errorf("explorer: no endpoint for chain %q", chain)
	}

	if err := c.limiter.Acquire(ctx, SourceExplorer); err != nil {
		return nil, err
	}
	defer c.limiter.Release(SourceExplorer)

	params := url.Values{}
	params.Set("module", "contract")
	params.Set("action", "getsourcecode")
	params.Set("address", address)
	if key := c.cfg.APIKeys[strings.ToLower(chain)]; key != "" {
		params.Set("apikey", key)
	}
	reqURL := endpoint + "?" + params.Encode()

	var payload explorerResponse
	err := withRetry(ctx, c.cfg.MaxAttempts, c.cfg.RetryBase, func() error {
		if err := c.limiter.Await(ctx, SourceExplorer); err != nil {
			return err
		}
		err := getJSON(ctx, c.http, reqURL, &payload)
		if errors.Is(err, errThrottled) {
			c.limiter.ReportThrottled(SourceExplorer)
			return err
		}
		if err == nil {
			c.limiter.ReportSuccess(SourceExplorer)
		}
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("explorer: %s %s: %w", chain, address, err)
	}

	if payload.Status != "1" || len(payload.Result) == 0 {
		return nil, fmt.Errorf("explorer: status %q for %s", payload.Status, address)
	}

	var contract explorerContract
	if err := json.Unmarshal(payload.Result[0], &contract); err != nil {
		return nil, fmt.Errorf("explorer: parse contract: %w", err)
	}

	result := &model.VerificationResult{
		IsVerified:      strings.TrimSpace(contract.SourceCode) != "",
		OwnerAddress:    contract.ContractCreator,
		IsProxyContract: contract.Proxy == "1",
		SourceName:      SourceExplorer,
		RawPayload:      payload.Result[0],
	}

	log.Debug().
		Str("chain", chain).
		Str("address", shortAddr(address)).
		Bool("verified", result.IsVerified).
		Msg("explorer: contract checked")

	return result, nil
}

func shortAddr(addr string) string {
	if len(addr) > 10 {
		return addr[:10] + "..."
	}
	return addr
}
