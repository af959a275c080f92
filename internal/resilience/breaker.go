// Package resilience guards calls to the live model with a circuit breaker so
// that a failing upstream is bypassed instead of stalling every session.
package resilience

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"
)

// ErrCircuitOpen is returned by Execute while the breaker rejects calls.
var ErrCircuitOpen = errors.New("circuit breaker is open")

// State is the breaker's operating mode.
type State int

const (
	StateClosed State = iota
	StateOpen
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

// BreakerConfig tunes a Breaker. Zero values take defaults.
type BreakerConfig struct {
	Name         string
	MaxFailures  int
	ResetTimeout time.Duration
}

// Breaker opens after MaxFailures consecutive failures, rejects calls for
// ResetTimeout, then lets a single probe through. A successful probe closes it;
// a failed probe re-opens it. Safe for concurrent use.
type Breaker struct {
	name         string
	maxFailures  int
	resetTimeout time.Duration
	now          func() time.Time

	mu          sync.Mutex
	state       State
	failures    int
	openedAt    time.Time
	probeActive bool
}

// NewBreaker creates a closed breaker.
func NewBreaker(cfg BreakerConfig) *Breaker {
	if cfg.MaxFailures <= 0 {
		cfg.MaxFailures = 5
	}
	if cfg.ResetTimeout <= 0 {
		cfg.ResetTimeout = 30 * time.Second
	}
	return &Breaker{
		name:         cfg.Name,
		maxFailures:  cfg.MaxFailures,
		resetTimeout: cfg.ResetTimeout,
		now:          time.Now,
	}
}

// Execute runs fn unless the breaker is open. Errors wrapping
// context.Canceled mean the caller gave up; they release a probe but are not
// counted as failures. A panic in fn counts as a failure and is re-raised.
func (b *Breaker) Execute(fn func() error) error {
	if b == nil {
		return fn()
	}

	probe, err := b.admit()
	if err != nil {
		return err
	}

	defer func() {
		if rec := recover(); rec != nil {
			b.record(probe, fmt.Errorf("panic: %v", rec))
			panic(rec)
		}
	}()

	return b.record(probe, fn())
}

func (b *Breaker) record(probe bool, callErr error) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if probe {
		b.probeActive = false
	}

	if errors.Is(callErr, context.Canceled) {
		return callErr
	}

	if callErr != nil {
		b.failures++
		if probe || b.failures >= b.maxFailures {
			if b.state != StateOpen {
				slog.Warn("circuit breaker opened", "name", b.name, "consecutive_failures", b.failures)
			}
			b.state = StateOpen
			b.openedAt = b.now()
		}
		return callErr
	}

	if probe {
		slog.Info("circuit breaker closed after successful probe", "name", b.name)
	}
	b.state = StateClosed
	b.failures = 0
	return nil
}

func (b *Breaker) admit() (probe bool, err error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	switch b.state {
	case StateOpen:
		if b.now().Sub(b.openedAt) < b.resetTimeout {
			return false, ErrCircuitOpen
		}
		b.state = StateHalfOpen
		b.probeActive = true
		return true, nil
	case StateHalfOpen:
		if b.probeActive {
			return false, ErrCircuitOpen
		}
		b.probeActive = true
		return true, nil
	default:
		return false, nil
	}
}

// State reports the current mode. An open breaker whose timeout has elapsed
// reports half-open; the transition itself happens on the next Execute.
func (b *Breaker) State() State {
	if b == nil {
		return StateClosed
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	if b.state == StateOpen && b.now().Sub(b.openedAt) >= b.resetTimeout {
		return StateHalfOpen
	}
	return b.state
}
