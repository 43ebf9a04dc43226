package pipeline

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/tokensentry/tokensentry/internal/faketoken"
	"github.com/tokensentry/tokensentry/internal/liqlock"
	"github.com/tokensentry/tokensentry/internal/model"
	"github.com/tokensentry/tokensentry/internal/risk"
	"github.com/tokensentry/tokensentry/internal/verify"
)

// ---------------------------------------------------------------------------
// Pipeline fans candidates out to verification and lock evaluation in
// parallel, joins both results per token, and scores. Scoring never starts
// for a token until both inputs are in.
// ---------------------------------------------------------------------------

// Report is the complete per-token output of one pipeline run.
type Report struct {
	Token        model.Candidate           `json:"token"`
	FakeCheck    faketoken.Result          `json:"fake_check"`
	Verification *model.VerificationResult `json:"verification"`
	Lock         *liqlock.LockInfo         `json:"liquidity_lock"`
	Assessment   *risk.Assessment          `json:"assessment"`
	GeneratedAt  time.Time                 `json:"generated_at"`
}

// Pipeline wires the verifier, lock evaluator, and scorer together.
type Pipeline struct {
	verifier *verify.BatchVerifier
	locks    *liqlock.Evaluator
	scorer   *risk.Scorer

	maxConcurrentLocks int

	now func() time.Time
}

// New creates a pipeline. maxConcurrentLocks bounds parallel lock checks.
func New(verifier *verify.BatchVerifier, locks *liqlock.Evaluator, scorer *risk.Scorer, maxConcurrentLocks int) *Pipeline {
	if maxConcurrentLocks <= 0 {
		maxConcurrentLocks = 8
	}
	return &Pipeline{
		verifier:           verifier,
		locks:              locks,
		scorer:             scorer,
		maxConcurrentLocks: maxConcurrentLocks,
		now:                time.Now,
	}
}

// Run processes one batch of candidates and returns a report per unique
// token, in first-seen order. Duplicate (address, chain) entries collapse
// into one.
func (p *Pipeline) Run(ctx context.Context, candidates []model.Candidate) []*Report {
	unique := dedup(candidates)
	if len(unique) == 0 {
		return nil
	}

	started := p.now()
	log.Info().
		Int("candidates", len(candidates)).
		Int("unique", len(unique)).
		Msg("pipeline: batch started")

	verifications := make(map[string]map[string]*model.VerificationResult, len(unique))
	var vmu sync.Mutex

	// Verification fans out per chain; lock checks run alongside under their
	// own concurrency bound.
	var wg sync.WaitGroup

	byChain := make(map[string][]verify.Pair)
	for _, c := range unique {
		chain := strings.ToLower(c.Chain)
		byChain[chain] = append(byChain[chain], verify.Pair{Address: c.Address, Chain: chain})
	}
	for chain, pairs := range byChain {
		chain, pairs := chain, pairs
		wg.Add(1)
		go func() {
			defer wg.Done()
			results := p.verifier.VerifyBatch(ctx, pairs)
			vmu.Lock()
			verifications[chain] = results
			vmu.Unlock()
			log.Debug().Str("chain", chain).Int("tokens", len(results)).Msg("pipeline: chain verified")
		}()
	}

	lockResults := make([]*liqlock.LockInfo, len(unique))
	lockSem := make(chan struct{}, p.maxConcurrentLocks)
	for i, c := range unique {
		i, c := i, c
		wg.Add(1)
		go func() {
			defer wg.Done()
			select {
			case lockSem <- struct{}{}:
				defer func() { <-lockSem }()
			case <-ctx.Done():
				return
			}
			lockResults[i] = p.locks.Check(c.Address, c.Market.PairAddress, c.Chain)
		}()
	}

	wg.Wait()

	reports := make([]*Report, 0, len(unique))
	for i, c := range unique {
		fake := faketoken.Check(c.Symbol, c.Chain, c.Address)

		verification := verifications[strings.ToLower(c.Chain)][c.Address]
		lock := lockResults[i]
		if lock == nil {
			// Lock check was dropped by cancellation; treat as unlocked with
			// an explicit warning so the gap is visible downstream.
			lock = &liqlock.LockInfo{Warnings: []string{"liquidity lock check did not complete"}}
		}

		assessment := p.scorer.Score(risk.Input{
			Verification: verification,
			Lock:         lock,
			Market:       c.Market,
			Holders:      c.Holders,
			Trading:      c.Trading,
			Fake:         fake,
		})

		reports = append(reports, &Report{
			Token:        c,
			FakeCheck:    fake,
			Verification: verification,
			Lock:         lock,
			Assessment:   assessment,
			GeneratedAt:  p.now(),
		})
	}

	log.Info().
		Int("reports", len(reports)).
		Dur("elapsed", p.now().Sub(started)).
		Msg("pipeline: batch complete")
	return reports
}

// dedup collapses duplicate (address, chain) candidates, keeping the first.
func dedup(candidates []model.Candidate) []model.Candidate {
	seen := make(map[string]bool, len(candidates))
	out := make([]model.Candidate, 0, len(candidates))
	for _, c := range candidates {
		if c.Address == "" || c.Chain == "" {
			continue
		}
		key := strings.ToLower(c.Chain) + "|" + strings.ToLower(c.Address)
		if seen[key] {
			continue
		}
		seen[key] = true
		out = append(out, c)
	}
	return out
}
