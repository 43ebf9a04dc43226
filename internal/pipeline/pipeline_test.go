package pipeline

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tokensentry/tokensentry/internal/liqlock"
	"github.com/tokensentry/tokensentry/internal/model"
	"github.com/tokensentry/tokensentry/internal/ratelimit"
	"github.com/tokensentry/tokensentry/internal/risk"
	"github.com/tokensentry/tokensentry/internal/verify"
)

func testPipeline(goplusURL string) *Pipeline {
	limiter := ratelimit.New(map[string]ratelimit.SourceConfig{
		verify.SourceGoPlus:     {RequestsPerMinute: 10_000, MaxConcurrency: 8},
		verify.SourceExplorer:   {RequestsPerMinute: 10_000, MaxConcurrency: 8},
		verify.SourceHoneypot:   {RequestsPerMinute: 10_000, MaxConcurrency: 8},
		verify.SourceSolanaList: {RequestsPerMinute: 10_000, MaxConcurrency: 8},
		verify.SourceSolanaRPC:  {RequestsPerMinute: 10_000, MaxConcurrency: 8},
	})

	verifier := verify.NewBatchVerifier(
		verify.DefaultVerifierConfig(),
		verify.NewGoPlusClient(verify.GoPlusConfig{
			BaseURL: goplusURL, SolanaURL: goplusURL,
			Timeout: 5 * time.Second, MaxAttempts: 1, RetryBase: time.Millisecond,
		}, limiter),
		nil, nil, nil,
	)
	locks := liqlock.NewEvaluator(liqlock.DefaultConfig())
	scorer := risk.NewScorer(risk.DefaultConfig())
	return New(verifier, locks, scorer, 4)
}

func TestRunProducesCompleteReports(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"code": 1, "result": {
			"0xaaa": {"is_open_source": "1", "is_honeypot": "0"},
			"0xbbb": {"is_open_source": "0", "is_honeypot": "1"}
		}}`)
	}))
	defer srv.Close()

	p := testPipeline(srv.URL)
	old := time.Now().AddDate(-1, 0, 0)
	candidates := []model.Candidate{
		{Address: "0xaaa", Chain: "ethereum", Symbol: "AAA", Market: model.MarketMetrics{
			LiquidityUSD: decimal.NewFromInt(200_000), PairCreatedAt: old,
		}},
		{Address: "0xbbb", Chain: "ethereum", Symbol: "BBB", Market: model.MarketMetrics{
			LiquidityUSD: decimal.NewFromInt(200_000), PairCreatedAt: old,
		}},
	}

	reports := p.Run(context.Background(), candidates)
	require.Len(t, reports, 2)

	for _, r := range reports {
		// The join barrier guarantees every report has all three parts.
		require.NotNil(t, r.Verification, "%s", r.Token.Address)
		require.NotNil(t, r.Lock, "%s", r.Token.Address)
		require.NotNil(t, r.Assessment, "%s", r.Token.Address)
		assert.False(t, r.GeneratedAt.IsZero())
	}

	assert.Equal(t, "0xaaa", reports[0].Token.Address, "input order is preserved")
	assert.True(t, reports[0].Verification.IsVerified)
	assert.True(t, reports[1].Verification.IsHoneypot)
	assert.Equal(t, risk.LevelScamLikely, reports[1].Assessment.Level)
	assert.Equal(t, 1.0, reports[1].Assessment.OverallScore)
}

func TestRunDeduplicates(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"code": 1, "result": {"0xaaa": {"is_open_source": "1"}}}`)
	}))
	defer srv.Close()

	p := testPipeline(srv.URL)
	reports := p.Run(context.Background(), []model.Candidate{
		{Address: "0xaaa", Chain: "ethereum", Symbol: "AAA"},
		{Address: "0xAAA", Chain: "Ethereum", Symbol: "AAA"},
		{Address: "0xaaa", Chain: "ethereum", Symbol: "AAA"},
	})
	assert.Len(t, reports, 1)
}

func TestRunFakeTokenSignal(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"code": 1, "result": {"0ximpostor": {"is_open_source": "1"}}}`)
	}))
	defer srv.Close()

	p := testPipeline(srv.URL)
	reports := p.Run(context.Background(), []model.Candidate{
		// USDT lives on ethereum; the same symbol on bsc is an impersonation.
		{Address: "0ximpostor", Chain: "bsc", Symbol: "USDT", Market: model.MarketMetrics{
			LiquidityUSD: decimal.NewFromInt(500_000),
		}},
	})

	require.Len(t, reports, 1)
	r := reports[0]
	assert.True(t, r.FakeCheck.IsFake)
	assert.Equal(t, "wrong_chain", r.FakeCheck.DetectionMethod)
	// The name-risk floor pushes the market signal to maximum.
	assert.Equal(t, 1.0, r.Assessment.Breakdown[risk.SignalMarket])
	// A confident impersonation is disqualifying even when the contract
	// itself verifies clean and liquidity looks deep.
	assert.Equal(t, 1.0, r.Assessment.OverallScore)
	assert.Equal(t, risk.LevelScamLikely, r.Assessment.Level)
}

func TestRunEmptyAndInvalidInput(t *testing.T) {
	p := testPipeline("http://127.0.0.1:1")

	assert.Nil(t, p.Run(context.Background(), nil))
	assert.Nil(t, p.Run(context.Background(), []model.Candidate{
		{Address: "", Chain: "ethereum"},
		{Address: "0xaaa", Chain: ""},
	}))
}

func TestDedup(t *testing.T) {
	in := []model.Candidate{
		{Address: "0xa", Chain: "ethereum"},
		{Address: "0xA", Chain: "ETHEREUM"},
		{Address: "0xa", Chain: "bsc"},
	}
	out := dedup(in)
	require.Len(t, out, 2)
	assert.Equal(t, "ethereum", out[0].Chain)
	assert.Equal(t, "bsc", out[1].Chain)
}
