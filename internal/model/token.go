package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// ---------------------------------------------------------------------------
// Shared data model for the verification & risk-scoring pipeline.
// Candidates come from the external discovery feed; every struct here is
// serializable with stable JSON field names for downstream report generators.
// ---------------------------------------------------------------------------

// Candidate is the record produced by the upstream token-discovery feed.
type Candidate struct {
	Address string        `json:"address"`
	Chain   string        `json:"chain"`
	Symbol  string        `json:"symbol"`
	Name    string        `json:"name,omitempty"`
	Market  MarketMetrics `json:"market"`
	Holders *HolderStats  `json:"holders,omitempty"`
	Trading *TradingStats `json:"trading,omitempty"`
}

// MarketMetrics holds the market data attached to a candidate by the
// discovery feed. The pipeline never fetches these itself.
type MarketMetrics struct {
	PriceUSD       decimal.Decimal `json:"price_usd"`
	LiquidityUSD   decimal.Decimal `json:"liquidity_usd"`
	Volume24h      decimal.Decimal `json:"volume_24h"`
	PriceChange1h  float64         `json:"price_change_1h"`
	PriceChange24h float64         `json:"price_change_24h"`
	Buys24h        int             `json:"buys_24h"`
	Sells24h       int             `json:"sells_24h"`
	HasWebsite     bool            `json:"has_website"`
	HasSocials     bool            `json:"has_socials"`
	PairAddress    string          `json:"pair_address,omitempty"`
	PairCreatedAt  time.Time       `json:"pair_created_at,omitempty"`
}

// AgeHours returns the token age derived from pair creation time.
// Unknown creation time reports a very old token so age penalties do not fire.
func (m MarketMetrics) AgeHours(now time.Time) float64 {
	if m.PairCreatedAt.IsZero() {
		return 24 * 365
	}
	return now.Sub(m.PairCreatedAt).Hours()
}

// VolumeLiquidityRatio returns volume_24h / liquidity_usd, 0 when liquidity is 0.
func (m MarketMetrics) VolumeLiquidityRatio() float64 {
	if m.LiquidityUSD.IsZero() {
		return 0
	}
	ratio, _ := m.Volume24h.Div(m.LiquidityUSD).Float64()
	return ratio
}

// HolderStats summarizes holder distribution as supplied by the collector.
type HolderStats struct {
	Top10Percent    float64 `json:"top_10_percent"`
	GiniCoefficient float64 `json:"gini_coefficient"`
	UniqueHolders   int     `json:"unique_holders"`
}

// TradingStats summarizes trading-pattern heuristics for a candidate.
type TradingStats struct {
	WashTradingScore   float64 `json:"wash_trading_score"`   // 0..1, higher = more wash trading
	OrganicVolumeRatio float64 `json:"organic_volume_ratio"` // 0..1, higher = healthier
}
