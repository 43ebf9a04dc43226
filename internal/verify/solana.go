package verify

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/mr-tron/base58"
	"github.com/rs/zerolog/log"
	"github.com/tokensentry/tokensentry/internal/model"
	"github.com/tokensentry/tokensentry/internal/ratelimit"
)

// ---------------------------------------------------------------------------
// Solana fallback path. GoPlus has no batch endpoint for Solana, so mints are
// confirmed through a public token list and, failing that, an account-info
// RPC call across rotating endpoints. This path confirms existence only, not
// full security semantics.
// ---------------------------------------------------------------------------

const (
	SourceSolanaList = "solana_token_list"
	SourceSolanaRPC  = "solana_rpc"
)

// SolanaConfig configures the Solana fallback client.
type SolanaConfig struct {
	TokenListURL string        `yaml:"token_list_url"`
	RPCEndpoints []string      `yaml:"rpc_endpoints"`
	Timeout      time.Duration `yaml:"timeout"`
}

// DefaultSolanaConfig returns production defaults.
func DefaultSolanaConfig() SolanaConfig {
	return SolanaConfig{
		TokenListURL: "https://token.jup.ag/strict",
		RPCEndpoints: []string{
			"https://api.mainnet-beta.solana.com",
			"https://rpc.ankr.com/solana",
		},
		Timeout: 10 * time.Second,
	}
}

// SolanaClient confirms Solana mint existence.
type SolanaClient struct {
	cfg     SolanaConfig
	http    *http.Client
	limiter *ratelimit.Limiter
}

// NewSolanaClient creates the Solana fallback client.
func NewSolanaClient(cfg SolanaConfig, limiter *ratelimit.Limiter) *SolanaClient {
	if cfg.TokenListURL == "" {
		cfg = DefaultSolanaConfig()
	}
	return &SolanaClient{
		cfg:     cfg,
		http:    &http.Client{Timeout: cfg.Timeout},
		limiter: limiter,
	}
}

// ValidMint reports whether the address decodes as a 32-byte base58 pubkey.
// Malformed mints are rejected before any network call.
func ValidMint(address string) bool {
	raw, err := base58.Decode(address)
	return err == nil && len(raw) == 32
}

type listedToken struct {
	Address string `json:"address"`
	Symbol  string `json:"symbol"`
	Name    string `json:"name"`
}

// Verify confirms the mint through the token list, then the RPC path.
func (c *SolanaClient) Verify(ctx context.Context, address string) (*model.VerificationResult, error) {
	if !ValidMint(address) {
		return nil, fmt.Errorf("solana: %q is not a valid base58 mint", address)
	}

	if result, err := c.checkTokenList(ctx, address); err == nil {
		return result, nil
	} else if ctx.Err() != nil {
		return nil, ctx.Err()
	}

	return c.checkAccountInfo(ctx, address)
}

// checkTokenList looks the mint up in the strict public token list. Listed
// mints are curated, so presence counts as verified.
func (c *SolanaClient) checkTokenList(ctx context.Context, address string) (*model.VerificationResult, error) {
	if err := c.limiter.Acquire(ctx, SourceSolanaList); err != nil {
		return nil, err
	}
	defer c.limiter.Release(SourceSolanaList)
	if err := c.limiter.Await(ctx, SourceSolanaList); err != nil {
		return nil, err
	}

	var tokens []listedToken
	if err := getJSON(ctx, c.http, c.cfg.TokenListURL, &tokens); err != nil {
		if errors.Is(err, errThrottled) {
			c.limiter.ReportThrottled(SourceSolanaList)
		}
		return nil, fmt.Errorf("solana: token list: %w", err)
	}
	c.limiter.ReportSuccess(SourceSolanaList)

	for _, t := range tokens {
		if t.Address == address {
			raw, _ := json.Marshal(t)
			log.Debug().Str("symbol", t.Symbol).Msg("solana: mint found in token list")
			return &model.VerificationResult{
				IsVerified: true,
				SourceName: SourceSolanaList,
				RawPayload: raw,
			}, nil
		}
	}
	return nil, fmt.Errorf("solana: mint not listed")
}

type rpcRequest struct {
	JSONRPC string `json:"jsonrpc"`
	ID      int    `json:"id"`
	Method  string `json:"method"`
	Params  []any  `json:"params"`
}

type rpcResponse struct {
	Result *struct {
		Value json.RawMessage `json:"value"`
	} `json:"result"`
	Error *struct {
		Code    int    `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

// checkAccountInfo confirms the account exists via getAccountInfo, trying the
// configured endpoints in order.
func (c *SolanaClient) checkAccountInfo(ctx context.Context, address string) (*model.VerificationResult, error) {
	if err := c.limiter.Acquire(ctx, SourceSolanaRPC); err != nil {
		return nil, err
	}
	defer c.limiter.Release(SourceSolanaRPC)

	req := rpcRequest{
		JSONRPC: "2.0",
		ID:      1,
		Method:  "getAccountInfo",
		Params:  []any{address, map[string]string{"encoding": "base64"}},
	}

	var lastErr error
	for _, endpoint := range c.cfg.RPCEndpoints {
		if err := c.limiter.Await(ctx, SourceSolanaRPC); err != nil {
			return nil, err
		}

		var resp rpcResponse
		if err := postJSON(ctx, c.http, endpoint, req, &resp); err != nil {
			if errors.Is(err, errThrottled) {
				c.limiter.ReportThrottled(SourceSolanaRPC)
			}
			lastErr = err
			continue
		}
		c.limiter.ReportSuccess(SourceSolanaRPC)

		if resp.Error != nil {
			lastErr = fmt.Errorf("rpc error %d: %s", resp.Error.Code, resp.Error.Message)
			continue
		}
		if resp.Result == nil || len(resp.Result.Value) == 0 || string(resp.Result.Value) == "null" {
			return nil, fmt.Errorf("solana: account %s does not exist", shortAddr(address))
		}

		return &model.VerificationResult{
			IsVerified: true,
			SourceName: SourceSolanaRPC,
			RawPayload: resp.Result.Value,
		}, nil
	}
	return nil, fmt.Errorf("solana: all rpc endpoints failed: %w", lastErr)
}
