// Package resilience guards outbound calls with circuit breakers and
// ordered failover.
//
// [Breaker] is a three-state breaker (closed, open, half-open) that stops
// hammering a backend once it fails repeatedly. [Chain] composes several
// candidates of one type, each behind its own breaker, and tries them in
// order until one answers.
//
// All types are safe for concurrent use.
package resilience

import (
	"errors"
	"log/slog"
	"sync"
	"time"
)

// ErrOpen is returned by [Breaker.Execute] while the breaker is open and
// the reset timeout has not elapsed.
var ErrOpen = errors.New("resilience: breaker is open")

// State is a breaker's operating mode.
type State int

const (
	// StateClosed forwards every call.
	StateClosed State = iota

	// StateOpen rejects every call with [ErrOpen] until the reset timeout
	// elapses.
	StateOpen

	// StateHalfOpen lets a bounded number of probe calls through. Enough
	// successes close the breaker; any failure re-opens it.
	StateHalfOpen
)

func (s State) String() string {
	switch s {
	case StateClosed:
		return "closed"
	case StateOpen:
		return "open"
	case StateHalfOpen:
		return "half-open"
	default:
		return "unknown"
	}
}

// Config tunes a [Breaker]. Zero values take the defaults.
type Config struct {
	// Name labels the breaker in log output.
	Name string

	// MaxFailures is how many consecutive failures open the breaker.
	// Defaults to 5.
	MaxFailures int

	// ResetTimeout is how long the breaker stays open before probing.
	// Defaults to 30s.
	ResetTimeout time.Duration

	// ProbeMax is how many half-open probe calls are allowed before the
	// breaker decides. Defaults to 3.
	ProbeMax int

	// Logger defaults to slog.Default.
	Logger *slog.Logger
}

// Breaker is a three-state circuit breaker.
type Breaker struct {
	name         string
	maxFailures  int
	resetTimeout time.Duration
	probeMax     int
	logger       *slog.Logger
	now          func() time.Time

	mu          sync.Mutex
	state       State
	failures    int
	lastFailure time.Time
	probeCalls  int
	probeFails  int
}

// NewBreaker builds a closed breaker.
func NewBreaker(cfg Config) *Breaker {
	if cfg.MaxFailures <= 0 {
		cfg.MaxFailures = 5
	}
	if cfg.ResetTimeout <= 0 {
		cfg.ResetTimeout = 30 * time.Second
	}
	if cfg.ProbeMax <= 0 {
		cfg.ProbeMax = 3
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &Breaker{
		name:         cfg.Name,
		maxFailures:  cfg.MaxFailures,
		resetTimeout: cfg.ResetTimeout,
		probeMax:     cfg.ProbeMax,
		logger:       cfg.Logger,
		now:          time.Now,
	}
}

// Execute runs fn unless the breaker refuses. While open it returns
// [ErrOpen] without calling fn; half-open admits up to ProbeMax probes.
func (b *Breaker) Execute(fn func() error) error {
	b.mu.Lock()
	switch b.state {
	case StateOpen:
		if b.now().Sub(b.lastFailure) < b.resetTimeout {
			b.mu.Unlock()
			return ErrOpen
		}
		b.state = StateHalfOpen
		b.probeCalls = 0
		b.probeFails = 0
		b.logger.Info("breaker half-open", "name", b.name)
	case StateHalfOpen:
		if b.probeCalls >= b.probeMax {
			b.mu.Unlock()
			return ErrOpen
		}
	}
	probing := b.state == StateHalfOpen
	if probing {
		b.probeCalls++
	}
	b.mu.Unlock()

	err := fn()

	b.mu.Lock()
	defer b.mu.Unlock()
	if err != nil {
		b.onFailure(probing)
	} else {
		b.onSuccess(probing)
	}
	return err
}

// onFailure must be called with b.mu held.
func (b *Breaker) onFailure(probing bool) {
	b.lastFailure = b.now()
	if probing {
		b.probeFails++
		b.state = StateOpen
		b.failures = b.maxFailures
		b.logger.Warn("breaker re-opened after failed probe", "name", b.name)
		return
	}
	b.failures++
	if b.failures >= b.maxFailures {
		b.state = StateOpen
		b.logger.Warn("breaker opened", "name", b.name, "consecutive_failures", b.failures)
	}
}

// onSuccess must be called with b.mu held.
func (b *Breaker) onSuccess(probing bool) {
	if probing {
		if b.probeCalls-b.probeFails >= b.probeMax {
			b.state = StateClosed
			b.failures = 0
			b.probeCalls = 0
			b.probeFails = 0
			b.logger.Info("breaker closed after successful probes", "name", b.name)
		}
		return
	}
	b.failures = 0
}

// State reports the current mode. An open breaker whose reset timeout has
// elapsed reports half-open; the transition itself happens on the next
// [Breaker.Execute].
func (b *Breaker) State() State {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.state == StateOpen && b.now().Sub(b.lastFailure) >= b.resetTimeout {
		return StateHalfOpen
	}
	return b.state
}

// Reset forces the breaker closed and clears all counters.
func (b *Breaker) Reset() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.state = StateClosed
	b.failures = 0
	b.probeCalls = 0
	b.probeFails = 0
}
