package fetcher

import (
	"context"
	"errors"
	"net/url"

	"github.com/rotisserie/eris"

	"github.com/sells-group/ntripbrowser/internal/resilience"
)

// BreakerFetcher wraps a Fetcher with one circuit breaker per caster host.
// Once a caster has failed Threshold times in a row it is rejected with
// resilience.ErrOpen until the cooldown elapses.
type BreakerFetcher struct {
	next     Fetcher
	breakers *resilience.Breakers
}

// NewBreakerFetcher wraps next. Cancellation by the caller and replies
// that are not sourcetables do not count as caster failures.
func NewBreakerFetcher(next Fetcher, cfg resilience.Config) *BreakerFetcher {
	if cfg.ShouldTrip == nil {
		cfg.ShouldTrip = tripsBreaker
	}
	return &BreakerFetcher{next: next, breakers: resilience.NewBreakers(cfg)}
}

// Fetch implements Fetcher.
func (f *BreakerFetcher) Fetch(ctx context.Context, rawURL string) (*Payload, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return nil, eris.Wrapf(err, "fetch: parse url %q", rawURL)
	}

	var p *Payload
	err = f.breakers.For(u.Host).Do(ctx, func(ctx context.Context) error {
		var ferr error
		p, ferr = f.next.Fetch(ctx, rawURL)
		return ferr
	})
	if errors.Is(err, resilience.ErrOpen) {
		return nil, eris.Wrap(err, "fetch: caster skipped")
	}
	return p, err
}

// States reports the breaker state of every caster host seen so far.
func (f *BreakerFetcher) States() map[string]resilience.State {
	return f.breakers.States()
}

func tripsBreaker(err error) bool {
	switch {
	case err == nil:
		return false
	case errors.Is(err, context.Canceled):
		return false
	case errors.Is(err, ErrNotSourcetable):
		return false
	}
	return true
}
