package resilience

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var errDial = errors.New("dial tcp: connection refused")

func fail(_ context.Context) error { return errDial }
func succeed(_ context.Context) error { return nil }

// newTestBreaker returns a breaker on a controllable clock.
func newTestBreaker(cfg Config) (*Breaker, *time.Time) {
	now := time.Date(2026, 10, 17, 12, 0, 0, 0, time.UTC)
	b := NewBreaker("caster.example.org:2101", cfg)
	b.now = func() time.Time { return now }
	return b, &now
}

func TestBreaker_ClosedPassesThrough(t *testing.T) {
	b, _ := newTestBreaker(Config{})

	calls := 0
	err := b.Do(context.Background(), func(context.Context) error {
		calls++
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, 1, calls)
	assert.Equal(t, Closed, b.State())
}

func TestBreaker_OpensAfterThreshold(t *testing.T) {
	b, _ := newTestBreaker(Config{Threshold: 3, Cooldown: time.Minute})
	ctx := context.Background()

	for range 3 {
		assert.ErrorIs(t, b.Do(ctx, fail), errDial)
	}
	assert.Equal(t, Open, b.State())
	assert.Equal(t, 3, b.Failures())

	called := false
	err := b.Do(ctx, func(context.Context) error {
		called = true
		return nil
	})
	require.ErrorIs(t, err, ErrOpen)
	assert.Contains(t, err.Error(), "caster.example.org:2101")
	assert.False(t, called)
}

func TestBreaker_SuccessResetsFailures(t *testing.T) {
	b, _ := newTestBreaker(Config{Threshold: 3})
	ctx := context.Background()

	_ = b.Do(ctx, fail)
	_ = b.Do(ctx, fail)
	require.NoError(t, b.Do(ctx, succeed))
	_ = b.Do(ctx, fail)

	assert.Equal(t, Closed, b.State())
	assert.Equal(t, 1, b.Failures())
}

func TestBreaker_HalfOpenRecovers(t *testing.T) {
	b, now := newTestBreaker(Config{Threshold: 1, Cooldown: time.Minute})
	ctx := context.Background()

	_ = b.Do(ctx, fail)
	require.Equal(t, Open, b.State())

	*now = now.Add(time.Minute)
	assert.Equal(t, HalfOpen, b.State())

	require.NoError(t, b.Do(ctx, succeed))
	assert.Equal(t, Closed, b.State())
	assert.Equal(t, 0, b.Failures())
}

func TestBreaker_HalfOpenFailureReopens(t *testing.T) {
	b, now := newTestBreaker(Config{Threshold: 1, Cooldown: time.Minute})
	ctx := context.Background()

	_ = b.Do(ctx, fail)
	*now = now.Add(2 * time.Minute)

	assert.ErrorIs(t, b.Do(ctx, fail), errDial)
	assert.Equal(t, Open, b.State())

	*now = now.Add(30 * time.Second)
	assert.ErrorIs(t, b.Do(ctx, succeed), ErrOpen)
}

func TestBreaker_HalfOpenSingleCall(t *testing.T) {
	b, now := newTestBreaker(Config{Threshold: 1, Cooldown: time.Minute})
	ctx := context.Background()

	_ = b.Do(ctx, fail)
	*now = now.Add(time.Minute)

	release := make(chan struct{})
	started := make(chan struct{})
	done := make(chan error)
	go func() {
		done <- b.Do(ctx, func(context.Context) error {
			close(started)
			<-release
			return nil
		})
	}()
	<-started

	assert.ErrorIs(t, b.Do(ctx, succeed), ErrOpen)
	close(release)
	require.NoError(t, <-done)
	assert.Equal(t, Closed, b.State())
}

func TestBreaker_ShouldTrip(t *testing.T) {
	b, _ := newTestBreaker(Config{
		Threshold:  1,
		ShouldTrip: func(err error) bool { return !errors.Is(err, context.Canceled) },
	})

	err := b.Do(context.Background(), func(context.Context) error { return context.Canceled })
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, Closed, b.State())
}

func TestBreaker_HalfOpenIgnoredErrorStaysUnhealthy(t *testing.T) {
	b, now := newTestBreaker(Config{
		Threshold:  1,
		Cooldown:   time.Minute,
		ShouldTrip: func(err error) bool { return !errors.Is(err, context.Canceled) },
	})
	ctx := context.Background()

	_ = b.Do(ctx, fail)
	*now = now.Add(time.Minute)

	err := b.Do(ctx, func(context.Context) error { return context.Canceled })
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, HalfOpen, b.State())
	assert.Equal(t, 1, b.Failures())

	require.NoError(t, b.Do(ctx, succeed))
	assert.Equal(t, Closed, b.State())
	assert.Equal(t, 0, b.Failures())
}

func TestBreaker_OnStateChange(t *testing.T) {
	var (
		mu          sync.Mutex
		transitions []string
	)
	b, now := newTestBreaker(Config{
		Threshold: 1,
		Cooldown:  time.Second,
		OnStateChange: func(key string, from, to State) {
			mu.Lock()
			defer mu.Unlock()
			assert.Equal(t, "caster.example.org:2101", key)
			transitions = append(transitions, from.String()+">"+to.String())
		},
	})
	ctx := context.Background()

	_ = b.Do(ctx, fail)
	*now = now.Add(time.Second)
	_ = b.Do(ctx, succeed)

	assert.Equal(t, []string{"closed>open", "open>half-open", "half-open>closed"}, transitions)
}

func TestBreakers_ForReusesBreaker(t *testing.T) {
	r := NewBreakers(Config{Threshold: 1})
	ctx := context.Background()

	a := r.For("a:2101")
	assert.Same(t, a, r.For("a:2101"))
	assert.NotSame(t, a, r.For("b:2101"))

	_ = a.Do(ctx, fail)
	states := r.States()
	assert.Equal(t, Open, states["a:2101"])
	assert.Equal(t, Closed, states["b:2101"])
}

func TestState_String(t *testing.T) {
	assert.Equal(t, "closed", Closed.String())
	assert.Equal(t, "open", Open.String())
	assert.Equal(t, "half-open", HalfOpen.String())
	assert.Equal(t, "unknown", State(9).String())
}
