package feed

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDecodeCandidate(t *testing.T) {
	c, err := DecodeCandidate([]byte(`{
		"address": "0xABC",
		"chain": "Ethereum",
		"symbol": "TKN",
		"market": {
			"price_usd": "0.5",
			"liquidity_usd": "120000",
			"volume_24h": "30000",
			"has_website": true
		},
		"holders": {"top_10_percent": 35.5, "unique_holders": 1200}
	}`))
	require.NoError(t, err)

	assert.Equal(t, "0xABC", c.Address)
	assert.Equal(t, "ethereum", c.Chain, "chain must be normalized to lowercase")
	assert.Equal(t, "TKN", c.Symbol)
	assert.True(t, c.Market.LiquidityUSD.Equal(decimal.NewFromInt(120_000)))
	require.NotNil(t, c.Holders)
	assert.Equal(t, 1200, c.Holders.UniqueHolders)
	assert.Nil(t, c.Trading)
}

func TestDecodeCandidateMissingFields(t *testing.T) {
	_, err := DecodeCandidate([]byte(`{"chain": "bsc"}`))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "missing address")

	_, err = DecodeCandidate([]byte(`{"address": "0xabc"}`))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "missing chain")

	_, err = DecodeCandidate([]byte(`not json`))
	require.Error(t, err)
}

func TestLoadFileArray(t *testing.T) {
	path := filepath.Join(t.TempDir(), "tokens.json")
	require.NoError(t, os.WriteFile(path, []byte(`[
		{"address": "0xaaa", "chain": "ethereum", "symbol": "AAA"},
		{"address": "0xbbb", "chain": "bsc", "symbol": "BBB"},
		{"chain": "bsc"}
	]`), 0o644))

	candidates, err := LoadFile(path)
	require.NoError(t, err)
	require.Len(t, candidates, 2, "the record without an address is skipped")
	assert.Equal(t, "0xaaa", candidates[0].Address)
	assert.Equal(t, "bsc", candidates[1].Chain)
}

func TestLoadFileWrappedObject(t *testing.T) {
	path := filepath.Join(t.TempDir(), "tokens.json")
	require.NoError(t, os.WriteFile(path, []byte(`{
		"tokens": [{"address": "0xaaa", "chain": "ethereum"}]
	}`), 0o644))

	candidates, err := LoadFile(path)
	require.NoError(t, err)
	require.Len(t, candidates, 1)
}

func TestLoadFileMalformed(t *testing.T) {
	path := filepath.Join(t.TempDir(), "tokens.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"foo": 1}`), 0o644))

	_, err := LoadFile(path)
	require.Error(t, err)
}

func TestLoadFileMissing(t *testing.T) {
	_, err := LoadFile(filepath.Join(t.TempDir(), "absent.json"))
	require.Error(t, err)
}
