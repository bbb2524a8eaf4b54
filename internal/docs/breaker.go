package docs

import (
	"sync"
	"time"

	"github.com/rendis/itemassert/pkg/schema"
)

// BreakerState is the state of the API circuit breaker.
type BreakerState int

const (
	BreakerClosed   BreakerState = iota // Normal operation
	BreakerOpen                         // Failing, rejecting requests
	BreakerHalfOpen                     // Probing recovery
)

func (s BreakerState) String() string {
	switch s {
	case BreakerClosed:
		return "closed"
	case BreakerOpen:
		return "open"
	case BreakerHalfOpen:
		return "half_open"
	default:
		return "unknown"
	}
}

// BreakerConfig configures the circuit breaker.
type BreakerConfig struct {
	// FailureThreshold is the number of consecutive failures before the circuit opens.
	FailureThreshold int
	// Cooldown is how long the circuit stays open before probing again.
	Cooldown time.Duration
	// HalfOpenMax is the number of trial requests allowed while half-open.
	HalfOpenMax int
}

// DefaultBreaker is used for zero fields of a BreakerConfig.
var DefaultBreaker = BreakerConfig{
	FailureThreshold: 5,
	Cooldown:         30 * time.Second,
	HalfOpenMax:      1,
}

// Breaker stops sending requests after repeated transport or server failures.
// Client errors (4xx) never count as failures.
type Breaker struct {
	mu          sync.Mutex
	state       BreakerState
	failures    int
	lastFailure time.Time
	trials      int
	cfg         BreakerConfig
	now         func() time.Time
}

// NewBreaker creates a closed breaker.
func NewBreaker(cfg BreakerConfig) *Breaker {
	if cfg.FailureThreshold <= 0 {
		cfg.FailureThreshold = DefaultBreaker.FailureThreshold
	}
	if cfg.Cooldown <= 0 {
		cfg.Cooldown = DefaultBreaker.Cooldown
	}
	if cfg.HalfOpenMax <= 0 {
		cfg.HalfOpenMax = DefaultBreaker.HalfOpenMax
	}
	return &Breaker{cfg: cfg, now: time.Now}
}

// Allow reports whether a request may be sent. An open circuit returns a
// TRANSPORT_ERROR describing the remaining cooldown.
func (b *Breaker) Allow() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	switch b.state {
	case BreakerOpen:
		elapsed := b.now().Sub(b.lastFailure)
		if elapsed >= b.cfg.Cooldown {
			b.state = BreakerHalfOpen
			b.trials = 1 // this request is the first trial
			return nil
		}
		return schema.NewErrorf(schema.ErrCodeTransport,
			"docs: circuit open after %d consecutive failures", b.failures).
			WithDetails(map[string]any{
				"state":                b.state.String(),
				"consecutive_failures": b.failures,
				"cooldown_remaining":   (b.cfg.Cooldown - elapsed).String(),
			})

	case BreakerHalfOpen:
		if b.trials >= b.cfg.HalfOpenMax {
			return schema.NewError(schema.ErrCodeTransport, "docs: circuit half-open, trial already in flight").
				WithDetails(map[string]any{"state": b.state.String()})
		}
		b.trials++
	}
	return nil
}

// RecordSuccess closes the circuit.
func (b *Breaker) RecordSuccess() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.failures = 0
	b.trials = 0
	b.state = BreakerClosed
}

// Release returns an admitted request's trial slot without recording an
// outcome. It is a no-op unless the breaker is half-open.
func (b *Breaker) Release() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.state == BreakerHalfOpen && b.trials > 0 {
		b.trials--
	}
}

// RecordFailure counts a failure and returns the resulting state.
func (b *Breaker) RecordFailure() BreakerState {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.failures++
	b.lastFailure = b.now()

	// Any failure while probing reopens the circuit.
	if b.state == BreakerHalfOpen || b.failures >= b.cfg.FailureThreshold {
		b.state = BreakerOpen
	}
	return b.state
}

// State returns the current state.
func (b *Breaker) State() BreakerState {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.state == BreakerOpen && b.now().Sub(b.lastFailure) >= b.cfg.Cooldown {
		return BreakerHalfOpen
	}
	return b.state
}
