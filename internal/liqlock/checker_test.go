package liqlock

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	linkToken      = "0x514910771af9ca656af840dff83e8264ecf986ca"
	teamFinanceVau = "0xe2fe530c047f2d85298b07d9333c05737f1435fb"
)

func TestCheckRegistryHit(t *testing.T) {
	e := NewEvaluator(DefaultConfig())

	info := e.Check(linkToken, "0xpair", "ethereum")
	require.True(t, info.IsLocked)
	assert.Equal(t, 100.0, info.LockedPercent)
	assert.Equal(t, 730, info.LockDurationDays)
	assert.Equal(t, "Unicrypt", info.Platform)
	assert.Empty(t, info.Warnings)
}

func TestCheckConfiguredRegistry(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Registry = []RegistryEntry{
		{Chain: "polygon", Token: "0xCUSTOM", LockedPercent: 95, DurationDays: 365, Platform: "Team Finance"},
	}
	e := NewEvaluator(cfg)

	info := e.Check("0xcustom", "0xpair", "POLYGON")
	require.True(t, info.IsLocked)
	assert.Equal(t, 95.0, info.LockedPercent)
}

func TestCheckLockerContractHeuristic(t *testing.T) {
	e := NewEvaluator(DefaultConfig())

	info := e.Check("0xsome-token", teamFinanceVau, "ethereum")
	require.True(t, info.IsLocked)
	assert.Equal(t, "Team Finance", info.Platform)
	assert.Equal(t, teamFinanceVau, info.LockContract)
	assert.Contains(t, info.Warnings[0], "needs confirmation")
}

func TestCheckNotLocked(t *testing.T) {
	e := NewEvaluator(DefaultConfig())

	info := e.Check("0xunknown", "0xpair", "bsc")
	assert.False(t, info.IsLocked)
	require.NotEmpty(t, info.Warnings)
	assert.Contains(t, info.Warnings[0], "CRITICAL")
}

func TestCheckCaches(t *testing.T) {
	e := NewEvaluator(DefaultConfig())

	first := e.Check("0xunknown", "0xpair", "bsc")
	second := e.Check("0xUNKNOWN", "0xPAIR", "BSC")
	assert.Same(t, first, second)
}

func TestAnalyzeSafetyWarnings(t *testing.T) {
	e := NewEvaluator(DefaultConfig())
	e.now = func() time.Time { return time.Unix(1_700_000_000, 0) }

	info := &LockInfo{
		IsLocked:         true,
		LockedPercent:    40,
		LockDurationDays: 10,
		Platform:         "NoName Locker",
		UnlockAt:         time.Unix(1_700_000_000, 0).AddDate(0, 0, 3),
	}
	e.analyzeSafety(info)

	assert.Len(t, info.Warnings, 4)
	assert.Contains(t, info.Warnings[0], "below recommended minimum")
	assert.Contains(t, info.Warnings[1], "shorter than recommended")
	assert.Contains(t, info.Warnings[2], "unrecognized platform")
	assert.Contains(t, info.Warnings[3], "expires within 7 days")
}

func TestScoreUnlockedIsZero(t *testing.T) {
	assert.Equal(t, 0, Score(nil))
	assert.Equal(t, 0, Score(&LockInfo{IsLocked: false, LockedPercent: 100, LockDurationDays: 999}))
}

func TestScoreBest(t *testing.T) {
	info := &LockInfo{
		IsLocked:         true,
		LockedPercent:    95,
		LockDurationDays: 400,
		Platform:         "Team Finance",
	}
	assert.Equal(t, 100, Score(info))
}

func TestScoreTiers(t *testing.T) {
	// 30 base + 20 (80%) + 10 (30d) + 10 (unknown platform) = 70
	info := &LockInfo{IsLocked: true, LockedPercent: 80, LockDurationDays: 30}
	assert.Equal(t, 70, Score(info))

	// 30 base + 0 (<50%) + 0 (<30d) + 10 = 40
	weak := &LockInfo{IsLocked: true, LockedPercent: 20, LockDurationDays: 7}
	assert.Equal(t, 40, Score(weak))
}

func TestScoreMonotonic(t *testing.T) {
	percents := []float64{10, 50, 80, 90, 100}
	days := []int{0, 30, 90, 180, 365, 730}

	prevByDuration := make([]int, len(days))
	for _, pct := range percents {
		prev := -1
		for i, d := range days {
			s := Score(&LockInfo{IsLocked: true, LockedPercent: pct, LockDurationDays: d})
			assert.GreaterOrEqual(t, s, prev, "score must not decrease with duration")
			assert.GreaterOrEqual(t, s, prevByDuration[i], "score must not decrease with percentage")
			prev = s
			prevByDuration[i] = s
		}
	}
}
