package risk

import (
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"
	"github.com/tokensentry/tokensentry/internal/faketoken"
	"github.com/tokensentry/tokensentry/internal/liqlock"
	"github.com/tokensentry/tokensentry/internal/model"
)

// ---------------------------------------------------------------------------
// Risk scorer. Composes the verification record, liquidity-lock score, and
// holder/trading heuristics into one weighted 0..1 score and a discrete risk
// level. Every signal contributes a normalized 0..1 risk (higher = riskier);
// critical conditions are applied after the weighted sum as scale-consistent
// penalties, so an unlocked pool can dominate a mediocre composite without
// mixing scales. Honeypots and confident impersonations are disqualifying
// outright and pin the score regardless of how healthy the rest looks.
// ---------------------------------------------------------------------------

// Level is the ordered risk classification, safest first.
type Level int

const (
	LevelSafe Level = iota
	LevelModerate
	LevelMedium
	LevelHigh
	LevelScamLikely
)

func (l Level) String() string {
	switch l {
	case LevelSafe:
		return "SAFE"
	case LevelModerate:
		return "MODERATE"
	case LevelMedium:
		return "MEDIUM"
	case LevelHigh:
		return "HIGH"
	case LevelScamLikely:
		return "SCAM_LIKELY"
	default:
		return "UNKNOWN"
	}
}

// MarshalText makes Level serialize as its name in JSON reports.
func (l Level) MarshalText() ([]byte, error) {
	return []byte(l.String()), nil
}

// Signal names used in the breakdown map.
const (
	SignalVerification = "contract_verification"
	SignalOwnership    = "ownership_status"
	SignalLiquidity    = "liquidity_lock"
	SignalDistribution = "holder_distribution"
	SignalTrading      = "trading_patterns"
	SignalMarket       = "market_signal"

	PenaltyNewToken = "penalty:new_token"
	PenaltyNoLock   = "penalty:liquidity_unlocked"
)

// Weights are the per-signal weights; they must sum to 1.
type Weights struct {
	Verification float64 `yaml:"contract_verification"`
	Ownership    float64 `yaml:"ownership_status"`
	Liquidity    float64 `yaml:"liquidity_lock"`
	Distribution float64 `yaml:"holder_distribution"`
	Trading      float64 `yaml:"trading_patterns"`
	Market       float64 `yaml:"market_signal"`
}

// DefaultWeights returns the production weighting.
func DefaultWeights() Weights {
	return Weights{
		Verification: 0.15,
		Ownership:    0.20,
		Liquidity:    0.25,
		Distribution: 0.15,
		Trading:      0.10,
		Market:       0.15,
	}
}

// Sum returns the total of all weights.
func (w Weights) Sum() float64 {
	return w.Verification + w.Ownership + w.Liquidity + w.Distribution + w.Trading + w.Market
}

// Config tunes thresholds, penalties, and liquidity gates. Penalty magnitudes
// are deliberately configurable: the boundaries are tuned empirically and
// remain subject to product review.
type Config struct {
	Weights Weights `yaml:"weights"`

	// Bucket thresholds on the final 0..1 score, ascending.
	ModerateThreshold float64 `yaml:"moderate_threshold"` // default 0.25
	MediumThreshold   float64 `yaml:"medium_threshold"`   // default 0.45
	HighThreshold     float64 `yaml:"high_threshold"`     // default 0.65
	ScamThreshold     float64 `yaml:"scam_threshold"`     // default 0.85

	// Normalized critical penalties applied after the weighted sum.
	NewTokenPenalty float64       `yaml:"new_token_penalty"` // default 0.25
	NoLockPenalty   float64       `yaml:"no_lock_penalty"`   // default 0.20
	NewTokenMaxAge  time.Duration `yaml:"new_token_max_age"` // default 24h

	// An impersonation at or above this confidence pins the score to 1.
	FakeMinConfidence float64 `yaml:"fake_min_confidence"` // default 0.8

	// Per-bucket minimum-liquidity gates (USD). A token whose score earns a
	// bucket is still downgraded when its liquidity misses the gate.
	SafeMinLiquidity   decimal.Decimal `yaml:"safe_min_liquidity"`   // default 100k
	MediumMinLiquidity decimal.Decimal `yaml:"medium_min_liquidity"` // default 50k
	HighMinLiquidity   decimal.Decimal `yaml:"high_min_liquidity"`   // default 25k
}

// DefaultConfig returns production defaults.
func DefaultConfig() Config {
	return Config{
		Weights:            DefaultWeights(),
		ModerateThreshold:  0.25,
		MediumThreshold:    0.45,
		HighThreshold:      0.65,
		ScamThreshold:      0.85,
		NewTokenPenalty:    0.25,
		NoLockPenalty:      0.20,
		NewTokenMaxAge:     24 * time.Hour,
		FakeMinConfidence:  0.8,
		SafeMinLiquidity:   decimal.NewFromInt(100_000),
		MediumMinLiquidity: decimal.NewFromInt(50_000),
		HighMinLiquidity:   decimal.NewFromInt(25_000),
	}
}

// Input carries everything the scorer needs for one token. Verification and
// lock evaluation must both have completed before scoring starts.
type Input struct {
	Verification *model.VerificationResult
	Lock         *liqlock.LockInfo
	Market       model.MarketMetrics
	Holders      *model.HolderStats
	Trading      *model.TradingStats
	Fake         faketoken.Result
}

// Assessment is the scorer output.
type Assessment struct {
	ID              string             `json:"id"`
	OverallScore    float64            `json:"overall_score"` // 0..1, higher = riskier
	Level           Level              `json:"risk_level"`
	Confidence      float64            `json:"confidence"`
	Breakdown       map[string]float64 `json:"score_breakdown"`
	Recommendations []string           `json:"recommendations"`
}

// Scorer computes risk assessments.
type Scorer struct {
	cfg Config
	now func() time.Time
}

// NewScorer creates a scorer with the given configuration.
func NewScorer(cfg Config) *Scorer {
	if cfg.Weights.Sum() == 0 {
		cfg = DefaultConfig()
	}
	return &Scorer{cfg: cfg, now: time.Now}
}

// Score produces one assessment. It is a pure function of its inputs apart
// from the clock used for token age.
func (s *Scorer) Score(in Input) *Assessment {
	a := &Assessment{
		ID:        uuid.NewString(),
		Breakdown: make(map[string]float64, 8),
	}

	w := s.cfg.Weights
	signals := map[string]float64{
		SignalVerification: s.verificationRisk(in.Verification),
		SignalOwnership:    s.ownershipRisk(in.Verification),
		SignalLiquidity:    s.liquidityRisk(in.Lock),
		SignalDistribution: s.distributionRisk(in.Holders),
		SignalTrading:      s.tradingRisk(in.Trading, in.Market),
		SignalMarket:       s.marketRisk(in.Market, in.Fake.NameRisk),
	}

	score := signals[SignalVerification]*w.Verification +
		signals[SignalOwnership]*w.Ownership +
		signals[SignalLiquidity]*w.Liquidity +
		signals[SignalDistribution]*w.Distribution +
		signals[SignalTrading]*w.Trading +
		signals[SignalMarket]*w.Market

	for name, risk := range signals {
		a.Breakdown[name] = risk
	}

	// Critical penalties, same 0..1 scale as the composite.
	if in.Market.AgeHours(s.now()) < s.cfg.NewTokenMaxAge.Hours() {
		score += s.cfg.NewTokenPenalty
		a.Breakdown[PenaltyNewToken] = s.cfg.NewTokenPenalty
	}
	if liqlock.Score(in.Lock) == 0 {
		score += s.cfg.NoLockPenalty
		a.Breakdown[PenaltyNoLock] = s.cfg.NoLockPenalty
	}

	// Honeypots and confident impersonations dominate everything else; a
	// clean on-chain profile does not redeem a token sold under a stolen name.
	if in.Verification != nil && in.Verification.IsHoneypot {
		score = 1.0
	}
	if in.Fake.IsFake && in.Fake.Confidence >= s.cfg.FakeMinConfidence {
		score = 1.0
	}

	a.OverallScore = clamp01(score)
	a.Level = s.level(a.OverallScore, in)
	a.Confidence = s.confidence(in)
	a.Recommendations = s.recommendations(signals, in)

	log.Debug().
		Float64("score", a.OverallScore).
		Str("level", a.Level.String()).
		Float64("confidence", a.Confidence).
		Msg("risk: token scored")

	return a
}

// verificationRisk: unverified or unavailable contracts are risky by default;
// absence of confirmation is itself a negative signal.
func (s *Scorer) verificationRisk(v *model.VerificationResult) float64 {
	switch {
	case v == nil || v.Unavailable():
		return 0.85
	case !v.IsVerified:
		return 0.8
	case v.IsProxyContract || v.HasBlacklistFunction:
		return 0.5
	case v.HasMintFunction:
		return 0.35
	default:
		return 0.1
	}
}

// ownershipRisk: renounced ownership is safest; reclaimable ownership is
// nearly as bad as a honeypot switch.
func (s *Scorer) ownershipRisk(v *model.VerificationResult) float64 {
	switch {
	case v == nil || v.Unavailable():
		return 0.7
	case v.CanReclaimOwnership:
		return 0.9
	case v.OwnerAddress == "" || isBurnAddress(v.OwnerAddress):
		return 0.0
	default:
		return 0.5
	}
}

// liquidityRisk inverts the 0-100 lock score.
func (s *Scorer) liquidityRisk(lock *liqlock.LockInfo) float64 {
	return 1.0 - float64(liqlock.Score(lock))/100.0
}

// distributionRisk is a Gini/top-10 concentration measure; unknown holders
// contribute a neutral midpoint.
func (s *Scorer) distributionRisk(h *model.HolderStats) float64 {
	if h == nil {
		return 0.5
	}
	switch {
	case h.GiniCoefficient > 0.8 || h.Top10Percent > 80:
		return 0.9
	case h.GiniCoefficient > 0.6 || h.Top10Percent > 60:
		return 0.7
	case h.GiniCoefficient > 0.4 || h.Top10Percent > 40:
		return 0.5
	default:
		return 0.2
	}
}

// tradingRisk combines the wash-trading score with sell-pressure and
// volume/liquidity heuristics derived from market metrics.
func (s *Scorer) tradingRisk(t *model.TradingStats, m model.MarketMetrics) float64 {
	if t != nil {
		switch {
		case t.WashTradingScore > 0.7 || t.OrganicVolumeRatio < 0.3:
			return 0.9
		case t.WashTradingScore > 0.5 || t.OrganicVolumeRatio < 0.5:
			return 0.7
		case t.WashTradingScore > 0.3 || t.OrganicVolumeRatio < 0.7:
			return 0.5
		default:
			return 0.2
		}
	}

	risk := 0.2
	if total := m.Buys24h + m.Sells24h; total > 0 {
		if float64(m.Sells24h)/float64(total) > 0.8 {
			risk += 0.3
		}
	}
	if ratio := m.VolumeLiquidityRatio(); ratio > 20 {
		risk += 0.3
	} else if ratio > 5 {
		risk += 0.1
	}
	return clamp01(risk)
}

// marketRisk folds metadata completeness, liquidity depth, extreme price
// moves, and the fake-token name signal into one contribution.
func (s *Scorer) marketRisk(m model.MarketMetrics, nameRisk float64) float64 {
	risk := 0.1

	switch {
	case m.LiquidityUSD.LessThan(decimal.NewFromInt(25_000)):
		risk += 0.4
	case m.LiquidityUSD.LessThan(decimal.NewFromInt(100_000)):
		risk += 0.2
	}
	if !m.HasWebsite && !m.HasSocials {
		risk += 0.2
	}
	if m.PriceChange24h > 500 {
		risk += 0.3
	} else if m.PriceChange24h > 300 || m.PriceChange24h < -50 {
		risk += 0.1
	}
	if nameRisk > risk {
		risk = nameRisk
	}
	return clamp01(risk)
}

// level maps the final score to a bucket and applies the per-bucket
// minimum-liquidity downgrade gates.
func (s *Scorer) level(score float64, in Input) Level {
	var lvl Level
	switch {
	case score >= s.cfg.ScamThreshold:
		lvl = LevelScamLikely
	case score >= s.cfg.HighThreshold:
		lvl = LevelHigh
	case score >= s.cfg.MediumThreshold:
		lvl = LevelMedium
	case score >= s.cfg.ModerateThreshold:
		lvl = LevelModerate
	default:
		lvl = LevelSafe
	}

	liq := in.Market.LiquidityUSD

	if lvl == LevelSafe {
		if liq.LessThan(s.cfg.SafeMinLiquidity) {
			lvl = LevelModerate
		} else if liqlock.Score(in.Lock) == 0 {
			// An unlocked pool can never rate SAFE, whatever the score says.
			lvl = LevelModerate
		}
	}
	if lvl == LevelMedium && liq.LessThan(s.cfg.MediumMinLiquidity) {
		lvl = LevelHigh
	}
	if lvl == LevelHigh && liq.LessThan(s.cfg.HighMinLiquidity) {
		lvl = LevelScamLikely
	}
	return lvl
}

// confidence grows with the number of signals backed by real data.
func (s *Scorer) confidence(in Input) float64 {
	c := 0.5
	if in.Verification != nil && !in.Verification.Unavailable() {
		c += 0.15
	}
	if in.Lock != nil && in.Lock.IsLocked {
		c += 0.1
	}
	if in.Holders != nil {
		c += 0.1
	}
	if in.Trading != nil {
		c += 0.1
	}
	if !in.Market.LiquidityUSD.IsZero() {
		c += 0.05
	}
	if c > 1 {
		c = 1
	}
	return c
}

// recommendations lists the human-readable reasons behind risky signals.
func (s *Scorer) recommendations(signals map[string]float64, in Input) []string {
	var recs []string

	if in.Verification != nil && in.Verification.IsHoneypot {
		recs = append(recs, "honeypot detected: buyers cannot resell this token")
	}
	if in.Fake.IsFake {
		recs = append(recs, "impersonation of a known token: "+in.Fake.Reason)
	}
	if signals[SignalVerification] > 0.5 {
		recs = append(recs, "contract is not verified by any source")
	}
	if signals[SignalOwnership] > 0.5 {
		if in.Verification != nil && in.Verification.CanReclaimOwnership {
			recs = append(recs, "owner can reclaim ownership of the contract")
		} else {
			recs = append(recs, "ownership has not been renounced")
		}
	}
	if signals[SignalLiquidity] > 0.5 {
		recs = append(recs, "liquidity is not locked or the lock is weak")
	}
	if in.Lock != nil {
		recs = append(recs, in.Lock.Warnings...)
	}
	if signals[SignalDistribution] > 0.5 {
		recs = append(recs, "token supply is concentrated in few holders")
	}
	if signals[SignalTrading] > 0.5 {
		recs = append(recs, "trading pattern suggests wash trading or sell pressure")
	}
	if signals[SignalMarket] > 0.5 {
		recs = append(recs, "weak market footprint: low liquidity or missing metadata")
	}
	if len(recs) == 0 {
		recs = append(recs, "no significant risk signals detected")
	}
	return recs
}

func isBurnAddress(addr string) bool {
	switch addr {
	case "0x0000000000000000000000000000000000000000",
		"0x000000000000000000000000000000000000dead",
		"0x000000000000000000000000000000000000dEaD":
		return true
	}
	return false
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
