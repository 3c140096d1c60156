// Package resilience provides per-caster circuit breakers so that a caster
// which keeps failing is skipped for a cooldown instead of being dialed on
// every request.
package resilience

import (
	"context"
	"sync"
	"time"

	"github.com/rotisserie/eris"
)

// State is the state of a circuit breaker.
type State int

const (
	// Closed lets every call through.
	Closed State = iota
	// Open rejects calls until the cooldown has elapsed.
	Open
	// HalfOpen lets a single trial call through to test recovery.
	HalfOpen
)

func (s State) String() string {
	switch s {
	case Closed:
		return "closed"
	case Open:
		return "open"
	case HalfOpen:
		return "half-open"
	default:
		return "unknown"
	}
}

// ErrOpen is returned when a call is rejected by an open circuit.
var ErrOpen = eris.New("resilience: circuit open")

// Config controls breaker behavior.
type Config struct {
	// Threshold is the number of consecutive failures that opens the
	// circuit. Default: 5.
	Threshold int

	// Cooldown is how long an open circuit rejects calls before letting a
	// trial call through. Default: 60s.
	Cooldown time.Duration

	// ShouldTrip reports whether err counts as a failure. Nil counts
	// every non-nil error.
	ShouldTrip func(err error) bool

	// OnStateChange is called on every transition with the breaker key.
	OnStateChange func(key string, from, to State)
}

func (c Config) withDefaults() Config {
	if c.Threshold <= 0 {
		c.Threshold = 5
	}
	if c.Cooldown <= 0 {
		c.Cooldown = 60 * time.Second
	}
	if c.ShouldTrip == nil {
		c.ShouldTrip = func(err error) bool { return err != nil }
	}
	return c
}

// Breaker guards calls to a single caster.
type Breaker struct {
	key string
	cfg Config

	mu       sync.Mutex
	state    State
	failures int
	openedAt time.Time

	now func() time.Time
}

// NewBreaker creates a closed breaker identified by key.
func NewBreaker(key string, cfg Config) *Breaker {
	return &Breaker{key: key, cfg: cfg.withDefaults(), now: time.Now}
}

// Do runs fn unless the circuit is open, and records its outcome.
func (b *Breaker) Do(ctx context.Context, fn func(ctx context.Context) error) error {
	if err := b.allow(); err != nil {
		return err
	}
	err := fn(ctx)
	b.record(err)
	return err
}

// State returns the current state. An open breaker past its cooldown
// reports HalfOpen.
func (b *Breaker) State() State {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.state == Open && b.now().Sub(b.openedAt) >= b.cfg.Cooldown {
		return HalfOpen
	}
	return b.state
}

// Failures returns the current count of consecutive failures.
func (b *Breaker) Failures() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.failures
}

func (b *Breaker) allow() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	switch b.state {
	case Open:
		if b.now().Sub(b.openedAt) < b.cfg.Cooldown {
			return eris.Wrapf(ErrOpen, "%s: %d consecutive failures", b.key, b.failures)
		}
		b.transition(HalfOpen)
	case HalfOpen:
		// Only one trial call at a time.
		return eris.Wrapf(ErrOpen, "%s: trial call in flight", b.key)
	}
	return nil
}

func (b *Breaker) record(err error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if err != nil && b.state == HalfOpen && !b.cfg.ShouldTrip(err) {
		// The trial call proved nothing about the caster. Reopen with the
		// old openedAt so the next call is let through again.
		b.transition(Open)
		return
	}
	if err == nil || !b.cfg.ShouldTrip(err) {
		b.failures = 0
		if b.state != Closed {
			b.transition(Closed)
		}
		return
	}

	b.failures++
	switch {
	case b.state == HalfOpen:
		b.openedAt = b.now()
		b.transition(Open)
	case b.state == Closed && b.failures >= b.cfg.Threshold:
		b.openedAt = b.now()
		b.transition(Open)
	}
}

func (b *Breaker) transition(to State) {
	from := b.state
	b.state = to
	if b.cfg.OnStateChange != nil && from != to {
		b.cfg.OnStateChange(b.key, from, to)
	}
}

// Breakers holds one breaker per key, created on first use.
type Breakers struct {
	cfg Config

	mu       sync.RWMutex
	breakers map[string]*Breaker
}

// NewBreakers creates an empty breaker registry.
func NewBreakers(cfg Config) *Breakers {
	return &Breakers{cfg: cfg, breakers: make(map[string]*Breaker)}
}

// For returns the breaker for key.
func (r *Breakers) For(key string) *Breaker {
	r.mu.RLock()
	b, ok := r.breakers[key]
	r.mu.RUnlock()
	if ok {
		return b
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if b, ok = r.breakers[key]; ok {
		return b
	}
	b = NewBreaker(key, r.cfg)
	r.breakers[key] = b
	return b
}

// States returns the state of every known breaker.
func (r *Breakers) States() map[string]State {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make(map[string]State, len(r.breakers))
	for k, b := range r.breakers {
		out[k] = b.State()
	}
	return out
}
