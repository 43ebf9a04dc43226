package faketoken

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCheckCanonicalMatch(t *testing.T) {
	r := Check("USDT", "ethereum", "0xdAC17F958D2ee523a2206206994597C13D831ec7")
	assert.False(t, r.IsFake)
	assert.Equal(t, 0.0, r.NameRisk)
}

func TestCheckWrongChain(t *testing.T) {
	r := Check("USDT", "bsc", "0xsomething")
	assert.True(t, r.IsFake)
	assert.Equal(t, "wrong_chain", r.DetectionMethod)
	assert.Equal(t, "ethereum", r.CanonicalChain)
	assert.GreaterOrEqual(t, r.Confidence, 0.9)
	assert.Equal(t, 1.0, r.NameRisk)
	assert.Contains(t, r.Reason, "belongs to ethereum")
}

func TestCheckWrongAddress(t *testing.T) {
	r := Check("PEPE", "ethereum", "0xnot-the-real-pepe")
	assert.True(t, r.IsFake)
	assert.Equal(t, "wrong_address", r.DetectionMethod)
	assert.Equal(t, "0x6982508145454ce325ddbe47a25d4ec3d2311933", r.CanonicalAddr)
}

func TestCheckBlacklistedSymbol(t *testing.T) {
	r := Check("safemoon", "bsc", "0xwhatever")
	assert.True(t, r.IsFake)
	assert.Equal(t, "blacklist", r.DetectionMethod)
	assert.GreaterOrEqual(t, r.Confidence, 0.9)
}

func TestCheckSolanaCanonical(t *testing.T) {
	r := Check("BONK", "solana", "DezXAZ8z7PnrnRJjz3wXBoRgixCa6xjnB7YaB1pPB263")
	assert.False(t, r.IsFake)

	fake := Check("BONK", "solana", "SomeOtherMint1111111111111111111111111111111")
	assert.True(t, fake.IsFake)
	assert.Equal(t, "wrong_address", fake.DetectionMethod)
}

func TestNameRiskTiers(t *testing.T) {
	assert.Equal(t, 0.0, Check("QUANT", "ethereum", "0xabc").NameRisk)
	assert.Equal(t, 0.5, Check("ELONDOGE", "ethereum", "0xabc").NameRisk)
	assert.Equal(t, 0.4, Check("BABYCAT", "bsc", "0xabc").NameRisk)
	assert.Equal(t, 0.2, Check("DOGINU", "ethereum", "0xabc").NameRisk)

	// Strongest fragment wins.
	assert.Equal(t, 0.5, Check("BABYELON", "bsc", "0xabc").NameRisk)
}

func TestCheckUnknownSymbolClean(t *testing.T) {
	r := Check("XYZ", "arbitrum", "0xabc")
	assert.False(t, r.IsFake)
	assert.Equal(t, 0.0, r.Confidence)
	assert.Empty(t, r.Reason)
}
