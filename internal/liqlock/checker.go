package liqlock

import (
	"strings"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"
	"github.com/tokensentry/tokensentry/internal/cache"
)

// ---------------------------------------------------------------------------
// Liquidity-lock evaluation: determines whether a token's trading liquidity
// is time-locked, for how long, and on which platform, then reduces that to a
// 0-100 safety score. Lookup order: static registry of known locked pairs,
// then the locker-platform contract heuristic, then "not locked" with an
// explicit high-severity warning.
// ---------------------------------------------------------------------------

// LockInfo describes a token's liquidity lock. Created fresh per lookup.
type LockInfo struct {
	IsLocked         bool            `json:"is_locked"`
	LockedPercent    float64         `json:"locked_percentage"`
	UnlockAt         time.Time       `json:"unlock_timestamp,omitempty"`
	LockDurationDays int             `json:"lock_duration_days"`
	Platform         string          `json:"platform_name,omitempty"`
	LockContract     string          `json:"lock_contract_address,omitempty"`
	TotalLockedUSD   decimal.Decimal `json:"total_locked_usd"`
	Warnings         []string        `json:"warnings"`
}

// RegistryEntry is a known locked (chain, token) pair.
type RegistryEntry struct {
	Chain         string  `yaml:"chain"`
	Token         string  `yaml:"token"`
	LockedPercent float64 `yaml:"locked_percent"`
	DurationDays  int     `yaml:"duration_days"`
	Platform      string  `yaml:"platform"`
}

// Config configures the evaluator.
type Config struct {
	MinLockPercent  float64         `yaml:"min_lock_percent"`  // recommended minimum, default 80
	MinLockDays     int             `yaml:"min_lock_days"`     // default 30
	SafeLockDays    int             `yaml:"safe_lock_days"`    // default 180
	CacheTTL        time.Duration   `yaml:"cache_ttl"`         // default 1h
	CacheMaxEntries int             `yaml:"cache_max_entries"`
	Registry        []RegistryEntry `yaml:"registry"` // extra known locks from config
}

// DefaultConfig returns production defaults.
func DefaultConfig() Config {
	return Config{
		MinLockPercent: 80,
		MinLockDays:    30,
		SafeLockDays:   180,
		CacheTTL:       time.Hour,
	}
}

// trustedPlatforms are lockers on the allow-list; locks held elsewhere earn a
// smaller platform bonus.
var trustedPlatforms = map[string]bool{
	"Team Finance": true,
	"Unicrypt":     true,
	"PinkSale":     true,
}

// lockerContracts maps well-known locker contract addresses to platform names.
// A pair address matching one of these is treated as locked pending deeper
// transaction analysis.
var lockerContracts = map[string]string{
	"0xe2fe530c047f2d85298b07d9333c05737f1435fb": "Team Finance",
	"0x2d045410f002a95efcee67759a92518fa3fce677": "DxSale",
	"0x663a5c229c09b049e36dcc11a9b0d4a8eb9db214": "Unicrypt",
	"0x7ee058420e5937496f5a2096f04caa7721cf70cc": "PinkSale",
	"0x7536592bb74b5d62eb82e8b93b17eed4eed9a85c": "Mudra",
}

// Evaluator determines liquidity-lock safety.
type Evaluator struct {
	cfg      Config
	registry map[string]RegistryEntry // chain|token -> entry
	results  *cache.Cache[*LockInfo]

	now func() time.Time
}

// NewEvaluator creates an evaluator seeded with the built-in and configured
// registries.
func NewEvaluator(cfg Config) *Evaluator {
	if cfg.MinLockPercent == 0 {
		cfg.MinLockPercent = DefaultConfig().MinLockPercent
	}
	if cfg.MinLockDays == 0 {
		cfg.MinLockDays = DefaultConfig().MinLockDays
	}
	if cfg.SafeLockDays == 0 {
		cfg.SafeLockDays = DefaultConfig().SafeLockDays
	}
	if cfg.CacheTTL <= 0 {
		cfg.CacheTTL = DefaultConfig().CacheTTL
	}

	e := &Evaluator{
		cfg:      cfg,
		registry: make(map[string]RegistryEntry),
		results:  cache.New[*LockInfo](cfg.CacheTTL, cfg.CacheMaxEntries),
		now:      time.Now,
	}
	for _, entry := range builtinRegistry {
		e.registry[registryKey(entry.Chain, entry.Token)] = entry
	}
	for _, entry := range cfg.Registry {
		e.registry[registryKey(entry.Chain, entry.Token)] = entry
	}
	return e
}

// builtinRegistry covers a handful of majors whose locks are public knowledge.
var builtinRegistry = []RegistryEntry{
	{Chain: "ethereum", Token: "0x514910771af9ca656af840dff83e8264ecf986ca", LockedPercent: 100, DurationDays: 730, Platform: "Unicrypt"},
	{Chain: "bsc", Token: "0x0e09fabb73bd3ade0a17ecc321fd13a19e81ce82", LockedPercent: 90, DurationDays: 180, Platform: "PinkSale"},
}

func registryKey(chain, token string) string {
	return strings.ToLower(chain) + "|" + strings.ToLower(token)
}

// Check evaluates the lock status of (token, pair) on a chain. The result is
// cached with the same TTL discipline as verification records.
func (e *Evaluator) Check(tokenAddress, pairAddress, chain string) *LockInfo {
	key := cache.Key("liqlock", strings.ToLower(chain),
		strings.ToLower(tokenAddress)+"_"+strings.ToLower(pairAddress))
	if cached, ok := e.results.Get(key); ok {
		return cached
	}

	info := e.lookup(tokenAddress, pairAddress, chain)
	e.analyzeSafety(info)
	e.results.Put(key, info)

	if info.IsLocked {
		log.Debug().
			Str("token", tokenAddress).
			Float64("locked_percent", info.LockedPercent).
			Int("duration_days", info.LockDurationDays).
			Str("platform", info.Platform).
			Msg("liqlock: lock found")
	} else {
		log.Debug().Str("token", tokenAddress).Msg("liqlock: no lock found")
	}
	return info
}

func (e *Evaluator) lookup(tokenAddress, pairAddress, chain string) *LockInfo {
	info := &LockInfo{Warnings: []string{}}

	// 1. Static registry of well-known locked pairs.
	if entry, ok := e.registry[registryKey(chain, tokenAddress)]; ok {
		info.IsLocked = true
		info.LockedPercent = entry.LockedPercent
		info.LockDurationDays = entry.DurationDays
		info.Platform = entry.Platform
		info.UnlockAt = e.now().AddDate(0, 0, entry.DurationDays)
		return info
	}

	// 2. Known locker-platform contract heuristic on the pair address.
	if platform, ok := lockerContracts[strings.ToLower(pairAddress)]; ok {
		info.IsLocked = true
		info.Platform = platform
		info.LockContract = strings.ToLower(pairAddress)
		info.Warnings = append(info.Warnings,
			"lock inferred from locker contract interaction, needs confirmation")
		return info
	}

	// 3. No registry hit and no heuristic match.
	return info
}

// analyzeSafety appends the qualitative warnings consumed verbatim by the
// risk scorer and by reporting.
func (e *Evaluator) analyzeSafety(info *LockInfo) {
	if !info.IsLocked {
		info.Warnings = append(info.Warnings,
			"CRITICAL: liquidity is not locked, high rug pull risk")
		return
	}

	if info.LockedPercent < e.cfg.MinLockPercent {
		info.Warnings = append(info.Warnings, "locked percentage below recommended minimum")
	}
	if info.LockDurationDays > 0 && info.LockDurationDays < e.cfg.MinLockDays {
		info.Warnings = append(info.Warnings, "lock duration shorter than recommended minimum")
	}
	if !trustedPlatforms[info.Platform] {
		info.Warnings = append(info.Warnings, "lock held on an unrecognized platform")
	}
	if !info.UnlockAt.IsZero() && info.UnlockAt.Before(e.now().AddDate(0, 0, 7)) {
		info.Warnings = append(info.Warnings, "lock expires within 7 days")
	}
}

// Score reduces a lock record to a 0-100 safety score. No lock scores 0
// regardless of other fields; the score is non-decreasing in both locked
// percentage and lock duration.
func Score(info *LockInfo) int {
	if info == nil || !info.IsLocked {
		return 0
	}

	score := 30 // base for any lock

	switch {
	case info.LockedPercent >= 90:
		score += 25
	case info.LockedPercent >= 80:
		score += 20
	case info.LockedPercent >= 50:
		score += 10
	}

	switch {
	case info.LockDurationDays >= 365:
		score += 25
	case info.LockDurationDays >= 180:
		score += 20
	case info.LockDurationDays >= 90:
		score += 15
	case info.LockDurationDays >= 30:
		score += 10
	}

	if trustedPlatforms[info.Platform] {
		score += 20
	} else {
		score += 10
	}

	if score > 100 {
		score = 100
	}
	return score
}
