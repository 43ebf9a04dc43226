package ratelimit

import (
	"context"
	"fmt"
	"math/rand"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
)

// ---------------------------------------------------------------------------
// Per-source request pacing: rolling-window counters, minimum inter-request
// spacing, adaptive backoff under sustained 429s, plus a bounded-concurrency
// semaphore per source. All mutable per-source state lives behind one mutex
// so concurrent verification tasks never race on counters.
// ---------------------------------------------------------------------------

const (
	windowLength      = 60 * time.Second
	maxAdaptiveDelay  = 15 * time.Second
	baseAdaptiveDelay = 500 * time.Millisecond
	adaptiveDecay     = 0.5
)

// SourceConfig describes one external source's limits.
type SourceConfig struct {
	RequestsPerMinute int           `yaml:"requests_per_minute"`
	MinSpacing        time.Duration `yaml:"min_spacing"`
	MaxConcurrency    int           `yaml:"max_concurrency"`
}

type sourceState struct {
	cfg SourceConfig

	windowStart time.Time
	count       int

	lastRequest   time.Time
	adaptiveDelay time.Duration

	sem chan struct{}
}

// Limiter paces requests per external source.
type Limiter struct {
	mu      sync.Mutex
	sources map[string]*sourceState

	// Injectable clock/sleep for simulated-time tests.
	now   func() time.Time
	sleep func(ctx context.Context, d time.Duration) error
}

// New creates a limiter with the given per-source configuration.
func New(sources map[string]SourceConfig) *Limiter {
	l := &Limiter{
		sources: make(map[string]*sourceState, len(sources)),
		now:     time.Now,
		sleep:   sleepCtx,
	}
	for name, cfg := range sources {
		l.register(name, cfg)
	}
	return l
}

func (l *Limiter) register(name string, cfg SourceConfig) {
	if cfg.RequestsPerMinute <= 0 {
		cfg.RequestsPerMinute = 30
	}
	if cfg.MaxConcurrency <= 0 {
		cfg.MaxConcurrency = 1
	}
	l.sources[name] = &sourceState{
		cfg: cfg,
		sem: make(chan struct{}, cfg.MaxConcurrency),
	}
}

func (l *Limiter) state(source string) (*sourceState, error) {
	st, ok := l.sources[source]
	if !ok {
		return nil, fmt.Errorf("ratelimit: unknown source %q", source)
	}
	return st, nil
}

// Await blocks until it is safe to issue one request to the source. It
// accounts for the per-minute window, the minimum spacing, and the adaptive
// delay. The caller must already hold a concurrency slot via Acquire.
func (l *Limiter) Await(ctx context.Context, source string) error {
	for {
		l.mu.Lock()
		st, err := l.state(source)
		if err != nil {
			l.mu.Unlock()
			return err
		}

		now := l.now()

		// Reset the window once 60s have elapsed.
		if st.windowStart.IsZero() || now.Sub(st.windowStart) >= windowLength {
			st.windowStart = now
			st.count = 0
		}

		var wait time.Duration

		// Window exhausted: suspend for the remainder before resetting.
		if st.count >= st.cfg.RequestsPerMinute {
			wait = windowLength - now.Sub(st.windowStart)
		} else {
			// Minimum spacing between requests.
			if !st.lastRequest.IsZero() && st.cfg.MinSpacing > 0 {
				if since := now.Sub(st.lastRequest); since < st.cfg.MinSpacing {
					wait = st.cfg.MinSpacing - since
				}
			}
			// Adaptive delay with jitter on top of regular spacing.
			if st.adaptiveDelay > 0 {
				jitter := time.Duration(rand.Int63n(int64(st.adaptiveDelay)/4 + 1))
				wait += st.adaptiveDelay + jitter
			}
		}

		if wait <= 0 {
			st.count++
			st.lastRequest = now
			l.mu.Unlock()
			return nil
		}
		l.mu.Unlock()

		if err := l.sleep(ctx, wait); err != nil {
			return err
		}
	}
}

// Acquire takes a concurrency slot for the source, blocking until one is free
// or the context ends. Pair with Release.
func (l *Limiter) Acquire(ctx context.Context, source string) error {
	l.mu.Lock()
	st, err := l.state(source)
	l.mu.Unlock()
	if err != nil {
		return err
	}
	select {
	case st.sem <- struct{}{}:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Release frees a concurrency slot taken by Acquire.
func (l *Limiter) Release(source string) {
	l.mu.Lock()
	st, ok := l.sources[source]
	l.mu.Unlock()
	if !ok {
		return
	}
	select {
	case <-st.sem:
	default:
	}
}

// ReportThrottled doubles the source's adaptive delay after a "too many
// requests" signal, capped at 15s.
func (l *Limiter) ReportThrottled(source string) {
	l.mu.Lock()
	defer l.mu.Unlock()

	st, ok := l.sources[source]
	if !ok {
		return
	}
	if st.adaptiveDelay == 0 {
		st.adaptiveDelay = baseAdaptiveDelay
	} else {
		st.adaptiveDelay *= 2
	}
	if st.adaptiveDelay > maxAdaptiveDelay {
		st.adaptiveDelay = maxAdaptiveDelay
	}
	log.Warn().
		Str("source", source).
		Dur("adaptive_delay", st.adaptiveDelay).
		Msg("ratelimit: source throttled, backing off")
}

// ReportSuccess decays the adaptive delay toward zero after a clean response.
func (l *Limiter) ReportSuccess(source string) {
	l.mu.Lock()
	defer l.mu.Unlock()

	st, ok := l.sources[source]
	if !ok || st.adaptiveDelay == 0 {
		return
	}
	st.adaptiveDelay = time.Duration(float64(st.adaptiveDelay) * adaptiveDecay)
	if st.adaptiveDelay < 50*time.Millisecond {
		st.adaptiveDelay = 0
	}
}

// AdaptiveDelay returns the current adaptive delay for a source.
func (l *Limiter) AdaptiveDelay(source string) time.Duration {
	l.mu.Lock()
	defer l.mu.Unlock()
	if st, ok := l.sources[source]; ok {
		return st.adaptiveDelay
	}
	return 0
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
