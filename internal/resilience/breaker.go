// Package resilience provides reliability patterns for outbound calls:
// a circuit breaker with per-target isolation and a bounded retry helper.
package resilience

import (
	"errors"
	"sync"
	"time"
)

// ErrCircuitOpen is returned when the circuit breaker is open and rejecting calls.
var ErrCircuitOpen = errors.New("circuit breaker is open")

// State is the breaker state: closed (normal), open (rejecting), or
// half-open (probing with a single trial call).
type State int

const (
	StateClosed State = iota
	StateOpen
	StateHalfOpen
)

// Breaker tracks consecutive failures against one downstream target and
// opens after maxFailures, rejecting calls until cooldown elapses. The
// first call after cooldown is a half-open probe: its failure reopens the
// circuit immediately, its success closes it.
type Breaker struct {
	mu          sync.Mutex
	state       State
	failures    int
	maxFailures int
	cooldown    time.Duration
	openedAt    time.Time
	now         func() time.Time // injectable for tests
}

// NewBreaker creates a circuit breaker with the given failure threshold
// and cooldown.
func NewBreaker(maxFailures int, cooldown time.Duration) *Breaker {
	return &Breaker{
		maxFailures: maxFailures,
		cooldown:    cooldown,
		now:         time.Now,
	}
}

// Execute runs fn unless the circuit is open, recording the outcome.
// Returns ErrCircuitOpen without invoking fn when the circuit rejects.
func (b *Breaker) Execute(fn func() error) error {
	if !b.admit() {
		return ErrCircuitOpen
	}

	err := fn()
	b.record(err)
	return err
}

// State returns the current breaker state, accounting for cooldown expiry.
func (b *Breaker) State() State {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.state == StateOpen && b.now().Sub(b.openedAt) >= b.cooldown {
		return StateHalfOpen
	}
	return b.state
}

func (b *Breaker) admit() bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.state == StateOpen {
		if b.now().Sub(b.openedAt) < b.cooldown {
			return false
		}
		b.state = StateHalfOpen
	}
	return true
}

func (b *Breaker) record(err error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if err == nil {
		b.failures = 0
		b.state = StateClosed
		return
	}

	b.failures++
	if b.state == StateHalfOpen || b.failures >= b.maxFailures {
		b.state = StateOpen
		b.openedAt = b.now()
	}
}

// BreakerSet holds independently failure-isolated breakers keyed by
// downstream target, so a fault on one target never blocks another.
type BreakerSet struct {
	mu          sync.Mutex
	breakers    map[string]*Breaker
	maxFailures int
	cooldown    time.Duration
}

// NewBreakerSet creates a BreakerSet whose members share a threshold and
// cooldown configuration.
func NewBreakerSet(maxFailures int, cooldown time.Duration) *BreakerSet {
	return &BreakerSet{
		breakers:    make(map[string]*Breaker),
		maxFailures: maxFailures,
		cooldown:    cooldown,
	}
}

// For returns the breaker for a target, creating it on first use.
func (s *BreakerSet) For(target string) *Breaker {
	s.mu.Lock()
	defer s.mu.Unlock()

	b, ok := s.breakers[target]
	if !ok {
		b = NewBreaker(s.maxFailures, s.cooldown)
		s.breakers[target] = b
	}
	return b
}
