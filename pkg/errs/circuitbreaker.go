package errs

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/entropycollective/batchsum/pkg/llm"
)

// ErrSummarizerUnavailable is returned by a tripped GuardedSummarizer
// without calling the underlying provider. Its message deliberately reads
// as a service-unavailable condition so Classify routes it through the
// Service row of the strategy matrix (retry with backoff, then fallback).
var ErrSummarizerUnavailable = errors.New("service unavailable: summarizer circuit open")

// BreakerConfig tunes a GuardedSummarizer.
type BreakerConfig struct {
	// TripThreshold is the number of consecutive transient failures that
	// trips the guard into fail-fast mode.
	TripThreshold int
	// Cooldown is how long the guard stays tripped before allowing probes.
	Cooldown time.Duration
	// ProbeQuota bounds how many calls may run concurrently while the
	// guard is testing whether the provider has recovered.
	ProbeQuota int
	// CallTimeout is the per-call deadline applied to every Summarize
	// call. Zero disables the deadline.
	CallTimeout time.Duration
}

// DefaultBreakerConfig matches the scheduler's retry cadence: the cooldown
// equals the maximum backoff cap, so a tripped guard recovers on roughly
// the same clock as a task's final retry.
func DefaultBreakerConfig() BreakerConfig {
	return BreakerConfig{
		TripThreshold: 5,
		Cooldown:      30 * time.Second,
		ProbeQuota:    1,
		CallTimeout:   10 * time.Second,
	}
}

// BreakerStats is a point-in-time snapshot for health reporting.
type BreakerStats struct {
	Tripped             bool
	ConsecutiveFailures int
	TotalCalls          int64
	TotalRejected       int64
	TotalFailures       int64
	LastFailure         time.Time
	TrippedAt           time.Time
}

// GuardedSummarizer wraps an llm.Summarizer so a dead or rate-limited
// provider fails fast instead of stalling every worker on the same
// timeout. Unlike a generic circuit breaker it is classification-aware:
// only transient failures (Network, Service, Timeout) count toward the
// trip threshold, so a provider rejecting one malformed segment never
// blacks out the whole batch.
type GuardedSummarizer struct {
	inner llm.Summarizer
	cfg   BreakerConfig

	mu          sync.Mutex
	tripped     bool
	trippedAt   time.Time
	consecutive int
	probes      int

	totalCalls    int64
	totalRejected int64
	totalFailures int64
	lastFailure   time.Time

	onTrip func(tripped bool)
}

// Guard wraps inner with the given config. A zero TripThreshold or
// Cooldown falls back to DefaultBreakerConfig's value.
func Guard(inner llm.Summarizer, cfg BreakerConfig) *GuardedSummarizer {
	def := DefaultBreakerConfig()
	if cfg.TripThreshold <= 0 {
		cfg.TripThreshold = def.TripThreshold
	}
	if cfg.Cooldown <= 0 {
		cfg.Cooldown = def.Cooldown
	}
	if cfg.ProbeQuota <= 0 {
		cfg.ProbeQuota = def.ProbeQuota
	}
	return &GuardedSummarizer{inner: inner, cfg: cfg}
}

// OnTrip registers a callback fired whenever the guard trips or resets,
// used to surface provider outages on the notifier.
func (g *GuardedSummarizer) OnTrip(fn func(tripped bool)) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.onTrip = fn
}

// Summarize applies admission control and the per-call deadline, then
// delegates to the wrapped provider.
func (g *GuardedSummarizer) Summarize(ctx context.Context, text string) (string, error) {
	probe, err := g.admit()
	if err != nil {
		return "", err
	}
	if probe {
		defer g.releaseProbe()
	}

	if g.cfg.CallTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, g.cfg.CallTimeout)
		defer cancel()
	}

	summary, err := g.inner.Summarize(ctx, text)
	g.record(err)
	if err != nil {
		return "", err
	}
	return summary, nil
}

// IsHealthy reports false while the guard is tripped, otherwise defers to
// the wrapped provider.
func (g *GuardedSummarizer) IsHealthy(ctx context.Context) bool {
	g.mu.Lock()
	tripped := g.tripped && time.Since(g.trippedAt) < g.cfg.Cooldown
	g.mu.Unlock()
	if tripped {
		return false
	}
	return g.inner.IsHealthy(ctx)
}

// Stats returns a snapshot of the guard's counters.
func (g *GuardedSummarizer) Stats() BreakerStats {
	g.mu.Lock()
	defer g.mu.Unlock()
	return BreakerStats{
		Tripped:             g.tripped,
		ConsecutiveFailures: g.consecutive,
		TotalCalls:          g.totalCalls,
		TotalRejected:       g.totalRejected,
		TotalFailures:       g.totalFailures,
		LastFailure:         g.lastFailure,
		TrippedAt:           g.trippedAt,
	}
}

// admit decides whether this call may proceed. The second return is true
// when the call is a recovery probe and must release its quota slot.
func (g *GuardedSummarizer) admit() (bool, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	g.totalCalls++

	if !g.tripped {
		return false, nil
	}
	if time.Since(g.trippedAt) < g.cfg.Cooldown {
		g.totalRejected++
		return false, ErrSummarizerUnavailable
	}
	if g.probes >= g.cfg.ProbeQuota {
		g.totalRejected++
		return false, ErrSummarizerUnavailable
	}
	g.probes++
	return true, nil
}

func (g *GuardedSummarizer) releaseProbe() {
	g.mu.Lock()
	if g.probes > 0 {
		g.probes--
	}
	g.mu.Unlock()
}

// record updates trip state from a call result. Only transiently-classified
// failures count toward the threshold; a success resets everything.
func (g *GuardedSummarizer) record(err error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	if err == nil {
		wasTripped := g.tripped
		g.tripped = false
		g.consecutive = 0
		if wasTripped && g.onTrip != nil {
			go g.onTrip(false)
		}
		return
	}

	g.totalFailures++
	g.lastFailure = time.Now()

	if !Classify(err, "summarizer").IsRetryable() {
		return
	}

	g.consecutive++
	if g.consecutive >= g.cfg.TripThreshold && !g.tripped {
		g.tripped = true
		g.trippedAt = time.Now()
		if g.onTrip != nil {
			go g.onTrip(true)
		}
	} else if g.tripped {
		// A failed probe restarts the cooldown clock.
		g.trippedAt = time.Now()
	}
}
