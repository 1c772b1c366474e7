package usage

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"
)

// ErrStoreUnavailable is returned by a [Guard] while its breaker is open and
// the retry timeout has not yet elapsed.
var ErrStoreUnavailable = errors.New("usage store: unavailable")

// BreakerState is the operating mode of a [Guard].
type BreakerState int

const (
	// BreakerClosed forwards every call. The normal state.
	BreakerClosed BreakerState = iota

	// BreakerOpen rejects calls immediately with [ErrStoreUnavailable]
	// until the retry timeout elapses.
	BreakerOpen

	// BreakerProbing lets a limited number of calls through to test whether
	// the store has recovered.
	BreakerProbing
)

func (s BreakerState) String() string {
	switch s {
	case BreakerClosed:
		return "closed"
	case BreakerOpen:
		return "open"
	case BreakerProbing:
		return "probing"
	default:
		return "unknown"
	}
}

// GuardConfig tunes a [Guard]. Zero fields take defaults.
type GuardConfig struct {
	// MaxFailures is the consecutive-failure count that opens the breaker.
	// Default: 5.
	MaxFailures int

	// RetryTimeout is how long the breaker stays open before probing
	// again. Default: 30s.
	RetryTimeout time.Duration

	// ProbeBudget is how many probe calls must succeed before the breaker
	// closes again. Default: 3.
	ProbeBudget int
}

// Guard wraps a [Store] with a three-state circuit breaker so that a dead
// database rejects requests immediately instead of holding every correction
// request on a connection timeout.
//
// Only infrastructure failures trip the breaker. [ErrUnauthorized] is a
// healthy answer about a bad credential and passes through uncounted.
//
// Safe for concurrent use.
type Guard struct {
	store Store

	maxFailures  int
	retryTimeout time.Duration
	probeBudget  int

	mu          sync.Mutex
	state       BreakerState
	failures    int
	lastFailure time.Time
	probes      int
	probeFails  int
}

var _ Store = (*Guard)(nil)

// NewGuard wraps store with breaker protection.
func NewGuard(store Store, cfg GuardConfig) *Guard {
	if cfg.MaxFailures <= 0 {
		cfg.MaxFailures = 5
	}
	if cfg.RetryTimeout <= 0 {
		cfg.RetryTimeout = 30 * time.Second
	}
	if cfg.ProbeBudget <= 0 {
		cfg.ProbeBudget = 3
	}
	return &Guard{
		store:        store,
		maxFailures:  cfg.MaxFailures,
		retryTimeout: cfg.RetryTimeout,
		probeBudget:  cfg.ProbeBudget,
	}
}

// Authenticate implements [Store].
func (g *Guard) Authenticate(ctx context.Context, secret string) (APIKey, error) {
	var key APIKey
	err := g.call(func() error {
		var err error
		key, err = g.store.Authenticate(ctx, secret)
		return err
	})
	return key, err
}

// Begin implements [Store].
func (g *Guard) Begin(ctx context.Context, keyID int64, method string, sourceSize int) (int64, error) {
	var id int64
	err := g.call(func() error {
		var err error
		id, err = g.store.Begin(ctx, keyID, method, sourceSize)
		return err
	})
	return id, err
}

// Finish implements [Store].
func (g *Guard) Finish(ctx context.Context, recordID int64, status Status, correctedSize int) error {
	return g.call(func() error {
		return g.store.Finish(ctx, recordID, status, correctedSize)
	})
}

// Close implements [Store].
func (g *Guard) Close() { g.store.Close() }

// State returns the current breaker state. An open breaker whose retry
// timeout has elapsed reports [BreakerProbing]; the transition itself happens
// on the next call.
func (g *Guard) State() BreakerState {
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.state == BreakerOpen && time.Since(g.lastFailure) >= g.retryTimeout {
		return BreakerProbing
	}
	return g.state
}

// call forwards fn through the breaker.
func (g *Guard) call(fn func() error) error {
	g.mu.Lock()
	switch g.state {
	case BreakerOpen:
		if time.Since(g.lastFailure) < g.retryTimeout {
			g.mu.Unlock()
			return ErrStoreUnavailable
		}
		g.state = BreakerProbing
		g.probes = 0
		g.probeFails = 0
		slog.Info("usage store breaker probing")

	case BreakerProbing:
		if g.probes >= g.probeBudget {
			g.mu.Unlock()
			return ErrStoreUnavailable
		}
	}
	probing := g.state == BreakerProbing
	if probing {
		g.probes++
	}
	g.mu.Unlock()

	err := fn()

	g.mu.Lock()
	defer g.mu.Unlock()

	switch {
	case err == nil || errors.Is(err, ErrUnauthorized):
		g.recordSuccess(probing)
	default:
		g.recordFailure(probing)
	}
	return err
}

func (g *Guard) recordFailure(probing bool) {
	g.lastFailure = time.Now()

	if probing {
		g.probeFails++
		g.state = BreakerOpen
		g.failures = g.maxFailures
		slog.Warn("usage store breaker re-opened")
		return
	}

	g.failures++
	if g.failures >= g.maxFailures && g.state == BreakerClosed {
		g.state = BreakerOpen
		slog.Warn("usage store breaker opened", "consecutive_failures", g.failures)
	}
}

func (g *Guard) recordSuccess(probing bool) {
	if probing {
		if g.probes-g.probeFails >= g.probeBudget {
			g.state = BreakerClosed
			g.failures = 0
			g.probes = 0
			g.probeFails = 0
			slog.Info("usage store breaker closed")
		}
		return
	}
	g.failures = 0
}
