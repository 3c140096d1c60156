// Package browse composes fetching, decoding and parsing of caster
// sourcetables.
package browse

import (
	"context"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/ntripbrowser/internal/fetcher"
	"github.com/sells-group/ntripbrowser/internal/geodesy"
	"github.com/sells-group/ntripbrowser/internal/metrics"
	"github.com/sells-group/ntripbrowser/internal/sourcetable"
)

// Request names one caster to browse.
type Request struct {
	Caster string
	Port   int
	Base   *geodesy.Point
}

// Result is a browsed sourcetable together with what was received.
type Result struct {
	Caster    string             `json:"caster"`
	URL       string             `json:"url"`
	Protocol  string             `json:"protocol,omitempty"`
	Status    string             `json:"status,omitempty"`
	Encoding  string             `json:"encoding"`
	FetchedAt time.Time          `json:"fetched_at"`
	Duration  time.Duration      `json:"duration"`
	Base      *geodesy.Point     `json:"base,omitempty"`
	Text      string             `json:"-"`
	Table     *sourcetable.Table `json:"table"`
}

// Service browses casters through a Fetcher.
type Service struct {
	fetcher     fetcher.Fetcher
	metrics     *metrics.Collector
	concurrency int
}

// Option configures a Service.
type Option func(*Service)

// WithMetrics records fetch and parse metrics on c.
func WithMetrics(c *metrics.Collector) Option {
	return func(s *Service) { s.metrics = c }
}

// WithConcurrency bounds the number of casters Scan fetches at once.
func WithConcurrency(n int) Option {
	return func(s *Service) {
		if n > 0 {
			s.concurrency = n
		}
	}
}

// NewService creates a Service backed by f.
func NewService(f fetcher.Fetcher, opts ...Option) *Service {
	s := &Service{fetcher: f, concurrency: 4}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Browse fetches, decodes and parses the sourcetable of one caster.
// Fetch failures are returned, never swallowed.
func (s *Service) Browse(ctx context.Context, req Request) (*Result, error) {
	u, err := fetcher.BuildURL(req.Caster, req.Port)
	if err != nil {
		return nil, eris.Wrapf(err, "browse: %s", req.Caster)
	}

	log := zap.L().With(zap.String("component", "browse"), zap.String("caster", req.Caster))
	log.Debug("fetching sourcetable", zap.String("url", u))

	start := time.Now()
	p, err := s.fetcher.Fetch(ctx, u)
	elapsed := time.Since(start)
	s.metrics.ObserveFetch(elapsed, err)
	if err != nil {
		return nil, eris.Wrapf(err, "browse: %s", req.Caster)
	}

	res, err := build(req.Caster, p.Body, p.ContentType, req.Base)
	if err != nil {
		return nil, eris.Wrapf(err, "browse: %s", req.Caster)
	}
	res.URL = p.URL
	res.Protocol = p.Protocol
	res.Status = p.Status
	res.FetchedAt = p.FetchedAt
	res.Duration = elapsed
	s.metrics.ObserveTable(res.Table)

	log.Info("browsed caster",
		zap.String("protocol", res.Protocol),
		zap.Int("streams", len(res.Table.Streams)),
		zap.Int("casters", len(res.Table.Casters)),
		zap.Int("networks", len(res.Table.Networks)),
		zap.Duration("duration", elapsed),
	)
	return res, nil
}

// Offline parses a sourcetable read from a file or stdin.
func Offline(source string, body []byte, base *geodesy.Point) (*Result, error) {
	res, err := build(source, body, "", base)
	if err != nil {
		return nil, eris.Wrapf(err, "browse: %s", source)
	}
	res.URL = source
	res.FetchedAt = time.Now().UTC()
	return res, nil
}

func build(caster string, body []byte, contentType string, base *geodesy.Point) (*Result, error) {
	text, enc, err := fetcher.Decode(body, contentType)
	if err != nil {
		return nil, err
	}

	var opts []sourcetable.Option
	if base != nil {
		opts = append(opts, sourcetable.WithBasePoint(*base))
	}
	return &Result{
		Caster:   caster,
		Encoding: enc,
		Base:     base,
		Text:     text,
		Table:    sourcetable.Parse(text, opts...),
	}, nil
}
