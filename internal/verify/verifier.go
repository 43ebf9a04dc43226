package verify

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/tokensentry/tokensentry/internal/cache"
	"github.com/tokensentry/tokensentry/internal/model"
)

// ---------------------------------------------------------------------------
// BatchVerifier groups candidate (address, chain) pairs, dispatches batch
// requests to the primary source under bounded concurrency, and routes chains
// the primary source cannot serve through a fallback chain:
//   solana path -> trusted-network defaults -> explorer -> "not found".
// The output map always contains one entry per requested address, even when
// every external call fails.
// ---------------------------------------------------------------------------

// Pair identifies one candidate to verify.
type Pair struct {
	Address string
	Chain   string
}

// trustedNetworks are chains with no public security API where tokens are
// accepted as existing by default, annotated with the network name.
var trustedNetworks = map[string]string{
	"ton":   "TON Network",
	"sonic": "Sonic Network",
}

// VerifierConfig configures batching and dispatch.
type VerifierConfig struct {
	BatchSize           int           `yaml:"batch_size"`
	MaxConcurrentChunks int           `yaml:"max_concurrent_chunks"`
	CacheTTL            time.Duration `yaml:"cache_ttl"`
	CacheMaxEntries     int           `yaml:"cache_max_entries"`
}

// DefaultVerifierConfig returns production defaults.
func DefaultVerifierConfig() VerifierConfig {
	return VerifierConfig{
		BatchSize:           25,
		MaxConcurrentChunks: 4,
		CacheTTL:            time.Hour,
		CacheMaxEntries:     10_000,
	}
}

// BatchVerifier merges heterogeneous source responses into normalized
// per-address verification records.
type BatchVerifier struct {
	cfg      VerifierConfig
	goplus   *GoPlusClient
	explorer *ExplorerClient
	honeypot *HoneypotClient
	solana   *SolanaClient
	results  *cache.Cache[*model.VerificationResult]
}

// NewBatchVerifier wires the source clients together.
func NewBatchVerifier(cfg VerifierConfig, goplus *GoPlusClient, explorer *ExplorerClient, honeypot *HoneypotClient, solana *SolanaClient) *BatchVerifier {
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = DefaultVerifierConfig().BatchSize
	}
	if cfg.MaxConcurrentChunks <= 0 {
		cfg.MaxConcurrentChunks = DefaultVerifierConfig().MaxConcurrentChunks
	}
	if cfg.CacheTTL <= 0 {
		cfg.CacheTTL = DefaultVerifierConfig().CacheTTL
	}
	return &BatchVerifier{
		cfg:      cfg,
		goplus:   goplus,
		explorer: explorer,
		honeypot: honeypot,
		solana:   solana,
		results:  cache.New[*model.VerificationResult](cfg.CacheTTL, cfg.CacheMaxEntries),
	}
}

// VerifyBatch verifies all requested pairs. The key set of the returned map
// equals the requested address set exactly; a chunk failure contributes
// annotated "source unavailable" records instead of aborting siblings.
func (v *BatchVerifier) VerifyBatch(ctx context.Context, pairs []Pair) map[string]*model.VerificationResult {
	out := make(map[string]*model.VerificationResult, len(pairs))
	if len(pairs) == 0 {
		return out
	}

	var mu sync.Mutex
	store := func(addr string, result *model.VerificationResult) {
		mu.Lock()
		out[addr] = result
		mu.Unlock()
	}

	// Serve cache hits first; collect misses per chain.
	byChain := make(map[string][]string)
	for _, p := range pairs {
		chain := strings.ToLower(p.Chain)
		if cached, ok := v.results.Get(cache.Key("verify", chain, strings.ToLower(p.Address))); ok {
			store(p.Address, cached)
			continue
		}
		byChain[chain] = append(byChain[chain], p.Address)
	}

	sem := make(chan struct{}, v.cfg.MaxConcurrentChunks)
	var wg sync.WaitGroup

	dispatch := func(fn func()) {
		wg.Add(1)
		go func() {
			defer wg.Done()
			select {
			case sem <- struct{}{}:
				defer func() { <-sem }()
			case <-ctx.Done():
				return
			}
			fn()
		}()
	}

	for chain, addresses := range byChain {
		switch {
		case v.goplus.Supports(chain):
			for _, chunk := range chunkAddresses(addresses, v.cfg.BatchSize) {
				chain, chunk := chain, chunk
				dispatch(func() { v.verifyChunk(ctx, chain, chunk, store) })
			}
		case chain == "solana":
			for _, addr := range addresses {
				addr := addr
				dispatch(func() { store(addr, v.verifySolanaToken(ctx, chain, addr)) })
			}
		default:
			for _, addr := range addresses {
				chain, addr := chain, addr
				dispatch(func() { store(addr, v.verifyFallback(ctx, chain, addr)) })
			}
		}
	}

	wg.Wait()

	// Completeness invariant: a cancelled or dropped task still yields a record.
	mu.Lock()
	for _, p := range pairs {
		if _, ok := out[p.Address]; !ok {
			out[p.Address] = model.NotFound(SourceGoPlus, "verification aborted")
		}
	}
	mu.Unlock()

	v.logStats(out)
	return out
}

// verifyChunk runs one primary-source batch and the per-address secondary
// fallback for entries the primary source had no data for.
func (v *BatchVerifier) verifyChunk(ctx context.Context, chain string, addresses []string, store func(string, *model.VerificationResult)) {
	chunkResults, err := v.goplus.VerifyChunk(ctx, chain, addresses)
	if err != nil {
		log.Warn().Err(err).Str("chain", chain).Int("addresses", len(addresses)).
			Msg("verifier: primary source chunk failed")
		for _, addr := range addresses {
			store(addr, v.finish(chain, addr, model.NotFound(SourceGoPlus, "source unavailable: "+err.Error())))
		}
		return
	}

	for addr, result := range chunkResults {
		if result.Unavailable() {
			result = v.verifyFallback(ctx, chain, addr)
		}
		store(addr, v.finish(chain, addr, result))
	}
}

// verifyFallback is the single-address fallback chain for EVM-family tokens:
// honeypot oracle, then explorer, then an explicit "not found" record.
func (v *BatchVerifier) verifyFallback(ctx context.Context, chain, address string) *model.VerificationResult {
	if name, ok := trustedNetworks[chain]; ok {
		return v.finish(chain, address, &model.VerificationResult{
			IsVerified: true,
			SourceName: name,
		})
	}

	if v.honeypot != nil && v.honeypot.Supports(chain) {
		if result, err := v.honeypot.Check(ctx, chain, address); err == nil {
			return v.finish(chain, address, result)
		} else if ctx.Err() != nil {
			return model.NotFound(SourceHoneypot, "verification aborted")
		}
	}

	if v.explorer != nil && v.explorer.Supports(chain) {
		if result, err := v.explorer.Verify(ctx, chain, address); err == nil {
			return v.finish(chain, address, result)
		} else if ctx.Err() != nil {
			return model.NotFound(SourceExplorer, "verification aborted")
		}
	}

	return v.finish(chain, address, model.NotFound(chain, "no source available for chain"))
}

// verifySolanaToken tries the dedicated security endpoint, then the existence
// fallback (token list, account-info RPC).
func (v *BatchVerifier) verifySolanaToken(ctx context.Context, chain, address string) *model.VerificationResult {
	if result, err := v.goplus.VerifySolana(ctx, address); err == nil {
		return v.finish(chain, address, result)
	} else if ctx.Err() != nil {
		return model.NotFound(SourceGoPlus, "verification aborted")
	}

	if v.solana != nil {
		if result, err := v.solana.Verify(ctx, address); err == nil {
			return v.finish(chain, address, result)
		} else if ctx.Err() != nil {
			return model.NotFound(SourceSolanaRPC, "verification aborted")
		}
	}

	return v.finish(chain, address, model.NotFound(SourceSolanaRPC, "mint not found by any source"))
}

// finish caches the record before handing it back to the merge.
func (v *BatchVerifier) finish(chain, address string, result *model.VerificationResult) *model.VerificationResult {
	v.results.Put(cache.Key("verify", chain, strings.ToLower(address)), result)
	return result
}

func (v *BatchVerifier) logStats(out map[string]*model.VerificationResult) {
	verified, honeypots, unavailable := 0, 0, 0
	for _, r := range out {
		if r.IsVerified {
			verified++
		}
		if r.IsHoneypot {
			honeypots++
		}
		if r.Unavailable() {
			unavailable++
		}
	}
	log.Info().
		Int("total", len(out)).
		Int("verified", verified).
		Int("honeypots", honeypots).
		Int("unavailable", unavailable).
		Msg("verifier: batch complete")
}

func chunkAddresses(addresses []string, size int) [][]string {
	var chunks [][]string
	for start := 0; start < len(addresses); start += size {
		end := start + size
		if end > len(addresses) {
			end = len(addresses)
		}
		chunks = append(chunks, addresses[start:end])
	}
	return chunks
}
