package risk

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tokensentry/tokensentry/internal/faketoken"
	"github.com/tokensentry/tokensentry/internal/liqlock"
	"github.com/tokensentry/tokensentry/internal/model"
)

func testScorer() *Scorer {
	s := NewScorer(DefaultConfig())
	s.now = func() time.Time { return time.Unix(1_700_000_000, 0) }
	return s
}

// oldPair is far enough in the past that the new-token penalty never fires.
func oldPair(s *Scorer) time.Time {
	return s.now().AddDate(-1, 0, 0)
}

func strongLock() *liqlock.LockInfo {
	return &liqlock.LockInfo{
		IsLocked:         true,
		LockedPercent:    95,
		LockDurationDays: 400,
		Platform:         "Team Finance",
	}
}

func TestWeightsSumToOne(t *testing.T) {
	assert.InDelta(t, 1.0, DefaultWeights().Sum(), 1e-9)
}

func TestScoreHealthyToken(t *testing.T) {
	s := testScorer()

	a := s.Score(Input{
		Verification: &model.VerificationResult{IsVerified: true, SourceName: "goplus"},
		Lock:         strongLock(),
		Market: model.MarketMetrics{
			LiquidityUSD:  decimal.NewFromInt(200_000),
			Volume24h:     decimal.NewFromInt(100_000),
			HasWebsite:    true,
			HasSocials:    true,
			PairCreatedAt: oldPair(s),
			Buys24h:       120,
			Sells24h:      100,
		},
	})

	assert.Less(t, a.OverallScore, 0.25)
	assert.Equal(t, LevelSafe, a.Level)
	assert.NotContains(t, a.Breakdown, PenaltyNewToken)
	assert.NotContains(t, a.Breakdown, PenaltyNoLock)
	assert.Equal(t, []string{"no significant risk signals detected"}, a.Recommendations)
	assert.NotEmpty(t, a.ID)
}

func TestScoreHoneypotDominates(t *testing.T) {
	s := testScorer()

	// Perfect lock and deep liquidity cannot rescue a honeypot.
	a := s.Score(Input{
		Verification: &model.VerificationResult{IsVerified: true, IsHoneypot: true},
		Lock:         strongLock(),
		Market: model.MarketMetrics{
			LiquidityUSD:  decimal.NewFromInt(500_000),
			HasWebsite:    true,
			HasSocials:    true,
			PairCreatedAt: oldPair(s),
		},
	})

	assert.Equal(t, 1.0, a.OverallScore)
	assert.Equal(t, LevelScamLikely, a.Level)
	assert.Contains(t, a.Recommendations[0], "honeypot")
}

func TestScoreConfidentFakeDominates(t *testing.T) {
	s := testScorer()

	// A pristine profile sold under a stolen symbol: verified contract,
	// strong lock, deep liquidity, healthy holders and trading.
	in := Input{
		Verification: &model.VerificationResult{IsVerified: true, SourceName: "goplus"},
		Lock:         strongLock(),
		Holders:      &model.HolderStats{Top10Percent: 20, GiniCoefficient: 0.2},
		Trading:      &model.TradingStats{WashTradingScore: 0.1, OrganicVolumeRatio: 0.9},
		Market: model.MarketMetrics{
			LiquidityUSD:  decimal.NewFromInt(500_000),
			HasWebsite:    true,
			HasSocials:    true,
			PairCreatedAt: oldPair(s),
		},
		Fake: faketoken.Result{
			IsFake:          true,
			Confidence:      0.9,
			Reason:          "USDT belongs to ethereum, found on bsc",
			DetectionMethod: "wrong_chain",
			NameRisk:        1.0,
		},
	}
	a := s.Score(in)

	assert.Equal(t, 1.0, a.OverallScore)
	assert.Equal(t, LevelScamLikely, a.Level)
	assert.Contains(t, a.Recommendations[0], "impersonation")

	// Below the confidence line, the determination only floors the market
	// signal and the composite stays in charge.
	in.Fake.Confidence = 0.5
	weak := s.Score(in)
	assert.Less(t, weak.OverallScore, 1.0)
}

func TestScoreNoDataWorstBucket(t *testing.T) {
	s := testScorer()

	a := s.Score(Input{
		Verification: model.NotFound("goplus", "source unavailable"),
		Lock:         &liqlock.LockInfo{},
		Market: model.MarketMetrics{
			LiquidityUSD:  decimal.NewFromInt(10_000),
			PairCreatedAt: oldPair(s),
		},
	})

	assert.GreaterOrEqual(t, a.OverallScore, 0.85)
	assert.Equal(t, LevelScamLikely, a.Level)
	assert.Contains(t, a.Breakdown, PenaltyNoLock)
}

func TestScoreNewTokenPenalty(t *testing.T) {
	s := testScorer()

	base := Input{
		Verification: &model.VerificationResult{IsVerified: true},
		Lock:         strongLock(),
		Market: model.MarketMetrics{
			LiquidityUSD:  decimal.NewFromInt(200_000),
			HasWebsite:    true,
			HasSocials:    true,
			PairCreatedAt: oldPair(s),
		},
	}
	old := s.Score(base)

	fresh := base
	fresh.Market.PairCreatedAt = s.now().Add(-2 * time.Hour)
	young := s.Score(fresh)

	assert.InDelta(t, old.OverallScore+s.cfg.NewTokenPenalty, young.OverallScore, 1e-9)
	assert.Contains(t, young.Breakdown, PenaltyNewToken)
}

func TestScoreUnknownAgeIsNotPenalized(t *testing.T) {
	s := testScorer()

	a := s.Score(Input{
		Verification: &model.VerificationResult{IsVerified: true},
		Lock:         strongLock(),
		Market:       model.MarketMetrics{LiquidityUSD: decimal.NewFromInt(200_000)},
	})
	assert.NotContains(t, a.Breakdown, PenaltyNewToken)
}

func TestUnlockedNeverSafe(t *testing.T) {
	s := testScorer()

	// Everything else pristine, but no lock.
	a := s.Score(Input{
		Verification: &model.VerificationResult{IsVerified: true},
		Lock:         &liqlock.LockInfo{},
		Holders:      &model.HolderStats{Top10Percent: 20, GiniCoefficient: 0.2},
		Trading:      &model.TradingStats{WashTradingScore: 0.1, OrganicVolumeRatio: 0.9},
		Market: model.MarketMetrics{
			LiquidityUSD:  decimal.NewFromInt(500_000),
			HasWebsite:    true,
			HasSocials:    true,
			PairCreatedAt: oldPair(s),
		},
	})

	assert.NotEqual(t, LevelSafe, a.Level)
	assert.Contains(t, a.Breakdown, PenaltyNoLock)
}

func TestLiquidityGates(t *testing.T) {
	s := testScorer()

	mkInput := func(liquidity int64) Input {
		return Input{
			Verification: &model.VerificationResult{IsVerified: true},
			Lock:         strongLock(),
			Market: model.MarketMetrics{
				LiquidityUSD:  decimal.NewFromInt(liquidity),
				HasWebsite:    true,
				HasSocials:    true,
				PairCreatedAt: oldPair(s),
			},
		}
	}

	// Same composite, thin liquidity: SAFE demotes to MODERATE.
	deep := s.Score(mkInput(200_000))
	thin := s.Score(mkInput(60_000))
	require.Equal(t, LevelSafe, deep.Level)
	assert.Equal(t, LevelModerate, thin.Level)
}

func TestMediumGateDowngradesToHigh(t *testing.T) {
	s := testScorer()

	in := Input{
		Verification: &model.VerificationResult{IsVerified: false, OwnerAddress: "0xowner"},
		Lock: &liqlock.LockInfo{
			IsLocked:         true,
			LockedPercent:    60,
			LockDurationDays: 45,
		},
		Market: model.MarketMetrics{
			LiquidityUSD:  decimal.NewFromInt(40_000),
			PairCreatedAt: oldPair(s),
		},
	}
	a := s.Score(in)
	if a.Level == LevelMedium {
		t.Fatal("medium with liquidity below the gate must downgrade")
	}
	// With the gate, a MEDIUM-score token under $50k lands on HIGH (or worse
	// if under $25k, which it is not here).
	assert.Equal(t, LevelHigh, a.Level)
}

func TestVerificationRiskTiers(t *testing.T) {
	s := testScorer()

	assert.Equal(t, 0.85, s.verificationRisk(nil))
	assert.Equal(t, 0.85, s.verificationRisk(model.NotFound("goplus", "no data")))
	assert.Equal(t, 0.8, s.verificationRisk(&model.VerificationResult{IsVerified: false}))
	assert.Equal(t, 0.5, s.verificationRisk(&model.VerificationResult{IsVerified: true, IsProxyContract: true}))
	assert.Equal(t, 0.35, s.verificationRisk(&model.VerificationResult{IsVerified: true, HasMintFunction: true}))
	assert.Equal(t, 0.1, s.verificationRisk(&model.VerificationResult{IsVerified: true}))
}

func TestOwnershipRiskTiers(t *testing.T) {
	s := testScorer()

	assert.Equal(t, 0.7, s.ownershipRisk(nil))
	assert.Equal(t, 0.9, s.ownershipRisk(&model.VerificationResult{IsVerified: true, CanReclaimOwnership: true}))
	assert.Equal(t, 0.0, s.ownershipRisk(&model.VerificationResult{IsVerified: true}))
	assert.Equal(t, 0.0, s.ownershipRisk(&model.VerificationResult{
		IsVerified:   true,
		OwnerAddress: "0x000000000000000000000000000000000000dead",
	}))
	assert.Equal(t, 0.5, s.ownershipRisk(&model.VerificationResult{
		IsVerified:   true,
		OwnerAddress: "0xsomeowner",
	}))
}

func TestDistributionRiskTiers(t *testing.T) {
	s := testScorer()

	assert.Equal(t, 0.5, s.distributionRisk(nil))
	assert.Equal(t, 0.9, s.distributionRisk(&model.HolderStats{Top10Percent: 85}))
	assert.Equal(t, 0.7, s.distributionRisk(&model.HolderStats{GiniCoefficient: 0.65}))
	assert.Equal(t, 0.2, s.distributionRisk(&model.HolderStats{Top10Percent: 15, GiniCoefficient: 0.2}))
}

func TestTradingRiskHeuristics(t *testing.T) {
	s := testScorer()

	// Explicit stats take precedence.
	assert.Equal(t, 0.9, s.tradingRisk(&model.TradingStats{WashTradingScore: 0.8}, model.MarketMetrics{}))

	// Heavy sell pressure from market metrics.
	sellHeavy := model.MarketMetrics{Buys24h: 10, Sells24h: 90}
	assert.InDelta(t, 0.5, s.tradingRisk(nil, sellHeavy), 1e-9)

	// Extreme volume/liquidity churn.
	churn := model.MarketMetrics{
		LiquidityUSD: decimal.NewFromInt(10_000),
		Volume24h:    decimal.NewFromInt(500_000),
	}
	assert.InDelta(t, 0.5, s.tradingRisk(nil, churn), 1e-9)
}

func TestMarketRiskNameSignalFloor(t *testing.T) {
	s := testScorer()

	m := model.MarketMetrics{
		LiquidityUSD: decimal.NewFromInt(500_000),
		HasWebsite:   true,
		HasSocials:   true,
	}
	clean := s.marketRisk(m, 0)
	suspicious := s.marketRisk(m, 0.9)
	assert.Less(t, clean, 0.2)
	assert.Equal(t, 0.9, suspicious)
}

func TestConfidenceGrowsWithData(t *testing.T) {
	s := testScorer()

	sparse := s.confidence(Input{})
	rich := s.confidence(Input{
		Verification: &model.VerificationResult{IsVerified: true},
		Lock:         strongLock(),
		Holders:      &model.HolderStats{},
		Trading:      &model.TradingStats{},
		Market:       model.MarketMetrics{LiquidityUSD: decimal.NewFromInt(1)},
	})
	assert.Equal(t, 0.5, sparse)
	assert.Equal(t, 1.0, rich)
}

func TestLevelString(t *testing.T) {
	assert.Equal(t, "SAFE", LevelSafe.String())
	assert.Equal(t, "SCAM_LIKELY", LevelScamLikely.String())

	text, err := LevelHigh.MarshalText()
	require.NoError(t, err)
	assert.Equal(t, "HIGH", string(text))
}
