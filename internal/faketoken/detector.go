package faketoken

import (
	"fmt"
	"strings"

	"github.com/rs/zerolog/log"
)

// ---------------------------------------------------------------------------
// Fake-token detection catches impersonations of well-known tokens (right
// symbol, wrong chain or wrong contract) and scores suspicious naming
// patterns. Naming suspicion floors the risk scorer's market signal; a
// confident fake determination pins the overall score outright.
// ---------------------------------------------------------------------------

// Result is the outcome of one fake-token check.
type Result struct {
	IsFake          bool    `json:"is_fake"`
	Confidence      float64 `json:"confidence"` // 0..1
	Reason          string  `json:"reason,omitempty"`
	CanonicalChain  string  `json:"canonical_chain,omitempty"`
	CanonicalAddr   string  `json:"canonical_address,omitempty"`
	DetectionMethod string  `json:"detection_method,omitempty"`
	NameRisk        float64 `json:"name_risk"` // 0..1 suspicious-naming signal
}

// canonical maps major symbols to the chain and contract they belong to.
// A candidate reusing one of these symbols elsewhere is an impersonation.
type canonicalToken struct {
	chain   string
	address string
}

var canonicalTokens = map[string]canonicalToken{
	"WETH":  {"ethereum", "0xc02aaa39b223fe8d0a0e5c4f27ead9083c756cc2"},
	"USDT":  {"ethereum", "0xdac17f958d2ee523a2206206994597c13d831ec7"},
	"USDC":  {"ethereum", "0xa0b86991c6218b36c1d19d4a2e9eb0ce3606eb48"},
	"DAI":   {"ethereum", "0x6b175474e89094c44da98b954eedeac495271d0f"},
	"WBTC":  {"ethereum", "0x2260fac5e5542a773aa44fbcfedf7c193bc2c599"},
	"LINK":  {"ethereum", "0x514910771af9ca656af840dff83e8264ecf986ca"},
	"UNI":   {"ethereum", "0x1f9840a85d5af5bf1d1762f925bdaddc4201f984"},
	"PEPE":  {"ethereum", "0x6982508145454ce325ddbe47a25d4ec3d2311933"},
	"SHIB":  {"ethereum", "0x95ad61b0a150d79219dcf64e1e6cc01f0b64c4ce"},
	"AAVE":  {"ethereum", "0x7fc66500c84a76ad7e9c93437bfc5ac33e2ddae9"},
	"CAKE":  {"bsc", "0x0e09fabb73bd3ade0a17ecc321fd13a19e81ce82"},
	"BUSD":  {"bsc", "0xe9e7cea3dedca5984780bafc599bd69add087d56"},
	"WBNB":  {"bsc", "0xbb4cdb9cbd36b01bd1cbaebf2de08d9173bc095c"},
	"BONK":  {"solana", "DezXAZ8z7PnrnRJjz3wXBoRgixCa6xjnB7YaB1pPB263"},
	"RAY":   {"solana", "4k3Dyjzvzp8eMZWUXbBCjEvwSkkk59S5iCNLY3QrkX6R"},
	"JUP":   {"solana", "JUPyiwrYJFskUPiHa7hkeR8VUtAeFoSYbKedZNsDvCN"},
	"WIF":   {"solana", "EKpQGSJtjMFqKZ1KQanSqABXRxaB45qe2XDQ5es4V7sM"},
	"ORCA":  {"solana", "orcaEKTdK7LKz57vaAYr9QeNsVEPfiu6QeMU1kektZE"},
	"MATIC": {"ethereum", "0x7d1afa7b718fb893db30a3abc0cfc608acafebb0"},
}

// blacklistedSymbols never pass: these names exist only to bait buyers.
var blacklistedSymbols = map[string]bool{
	"SAFEMOON": true, "SAFEMARS": true, "MOONSHOT": true,
	"SCAM": true, "FAKE": true, "TEST": true, "DUMMY": true,
}

// suspiciousFragments rank naming patterns by how often they appear in scams.
var suspiciousFragments = []struct {
	fragment string
	risk     float64
}{
	{"ELON", 0.5}, {"MUSK", 0.5}, {"PUMP", 0.5}, {"DUMP", 0.5},
	{"BABY", 0.4}, {"MINI", 0.4}, {"MICRO", 0.3},
	{"MOON", 0.3}, {"SAFE", 0.3}, {"INU", 0.2},
}

// Check inspects one candidate's symbol against the canonical registry and
// the naming heuristics.
func Check(symbol, chain, address string) Result {
	sym := strings.ToUpper(strings.TrimSpace(symbol))
	chain = strings.ToLower(chain)

	if blacklistedSymbols[sym] {
		return Result{
			IsFake:          true,
			Confidence:      0.95,
			Reason:          fmt.Sprintf("symbol %s is blacklisted", sym),
			DetectionMethod: "blacklist",
			NameRisk:        1.0,
		}
	}

	if canon, ok := canonicalTokens[sym]; ok {
		if chain != canon.chain {
			log.Debug().
				Str("symbol", sym).
				Str("chain", chain).
				Str("canonical_chain", canon.chain).
				Msg("faketoken: known symbol on wrong chain")
			return Result{
				IsFake:          true,
				Confidence:      0.9,
				Reason:          fmt.Sprintf("%s belongs to %s, found on %s", sym, canon.chain, chain),
				CanonicalChain:  canon.chain,
				CanonicalAddr:   canon.address,
				DetectionMethod: "wrong_chain",
				NameRisk:        1.0,
			}
		}
		if !strings.EqualFold(address, canon.address) {
			return Result{
				IsFake:          true,
				Confidence:      0.85,
				Reason:          fmt.Sprintf("%s on %s does not match the canonical contract", sym, chain),
				CanonicalChain:  canon.chain,
				CanonicalAddr:   canon.address,
				DetectionMethod: "wrong_address",
				NameRisk:        1.0,
			}
		}
		// Exact canonical match.
		return Result{}
	}

	return Result{NameRisk: nameRisk(sym)}
}

// nameRisk returns the strongest suspicious-fragment score found in the symbol.
func nameRisk(sym string) float64 {
	risk := 0.0
	for _, p := range suspiciousFragments {
		if strings.Contains(sym, p.fragment) && p.risk > risk {
			risk = p.risk
		}
	}
	return risk
}
