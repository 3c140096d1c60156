package fetcher

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

// ErrNotSourcetable marks a response that does not carry a sourcetable,
// such as a caster answering with a GNSS data stream.
var ErrNotSourcetable = errors.New("response is not a sourcetable")

// Content types used by NTRIP 2.0 casters.
const (
	ContentTypeSourcetable = "gnss/sourcetable"
	ContentTypeData        = "gnss/data"
)

// HTTPOptions configures the HTTP fetcher.
type HTTPOptions struct {
	UserAgent string
	Timeout   time.Duration
	// NtripVersion selects the request dialect: "2.0" sends an HTTP/1.1
	// request with the Ntrip-Version header, "1.0" speaks raw NTRIP 1.0.
	NtripVersion string
	MaxBodyBytes int64
	// RatePerHost bounds requests per second to a single caster host.
	// Zero disables limiting.
	RatePerHost  rate.Limit
	RateLimiters map[string]*rate.Limiter
}

// HTTPFetcher implements Fetcher over net/http with a raw NTRIP 1.0
// fallback for casters that do not answer with an HTTP status line.
type HTTPFetcher struct {
	client *http.Client
	opts   HTTPOptions

	mu       sync.Mutex
	limiters map[string]*rate.Limiter
}

// NewHTTPFetcher creates a new HTTPFetcher with the given options.
func NewHTTPFetcher(opts HTTPOptions) *HTTPFetcher {
	if opts.Timeout == 0 {
		opts.Timeout = 10 * time.Second
	}
	if opts.UserAgent == "" {
		opts.UserAgent = "NTRIP ntripbrowser/1.0"
	}
	if opts.NtripVersion == "" {
		opts.NtripVersion = "2.0"
	}
	if opts.MaxBodyBytes == 0 {
		opts.MaxBodyBytes = 8 << 20
	}
	limiters := make(map[string]*rate.Limiter)
	for k, v := range opts.RateLimiters {
		limiters[k] = v
	}
	transport := &http.Transport{
		MaxIdleConnsPerHost: 2,
		IdleConnTimeout:     30 * time.Second,
	}
	return &HTTPFetcher{
		client: &http.Client{
			Timeout:   opts.Timeout,
			Transport: transport,
		},
		opts:     opts,
		limiters: limiters,
	}
}

// limiterFor returns the limiter for host, creating one on first use.
// A nil limiter means the host is not limited.
func (f *HTTPFetcher) limiterFor(host string) *rate.Limiter {
	f.mu.Lock()
	defer f.mu.Unlock()
	if lim, ok := f.limiters[host]; ok {
		return lim
	}
	if f.opts.RatePerHost <= 0 {
		return nil
	}
	burst := int(f.opts.RatePerHost)
	if burst < 1 {
		burst = 1
	}
	lim := rate.NewLimiter(f.opts.RatePerHost, burst)
	f.limiters[host] = lim
	return lim
}

// Fetch requests the sourcetable at rawURL. A caster replying with a
// "SOURCETABLE 200 OK" status line is retried over a raw connection.
func (f *HTTPFetcher) Fetch(ctx context.Context, rawURL string) (*Payload, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return nil, eris.Wrapf(err, "fetch: parse url %q", rawURL)
	}
	if u.Host == "" {
		return nil, eris.Errorf("fetch: url %q has no host", rawURL)
	}

	if lim := f.limiterFor(u.Host); lim != nil {
		if err := lim.Wait(ctx); err != nil {
			return nil, eris.Wrap(err, "fetch: rate limiter wait")
		}
	}

	log := zap.L().With(zap.String("component", "fetcher"), zap.String("url", rawURL))

	if f.opts.NtripVersion == "1.0" {
		if u.Scheme == "https" {
			return nil, eris.Errorf("fetch: ntrip 1.0 does not support https (%s)", rawURL)
		}
		log.Debug("fetching sourcetable over ntrip 1.0")
		return f.fetchRaw(ctx, u)
	}

	p, err := f.fetchHTTP(ctx, u)
	if err != nil && isMalformedStatus(err) && u.Scheme == "http" {
		log.Debug("caster replied without an http status line, retrying over ntrip 1.0", zap.Error(err))
		return f.fetchRaw(ctx, u)
	}
	return p, err
}

func (f *HTTPFetcher) fetchHTTP(ctx context.Context, u *url.URL) (*Payload, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return nil, eris.Wrap(err, "fetch: create request")
	}
	req.Header.Set("User-Agent", f.opts.UserAgent)
	req.Header.Set("Ntrip-Version", "Ntrip/"+f.opts.NtripVersion)
	req.Header.Set("Accept", "*/*")
	if u.User != nil {
		pass, _ := u.User.Password()
		req.SetBasicAuth(u.User.Username(), pass)
	}

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, eris.Wrapf(err, "fetch: get %s", redact(u))
	}
	defer resp.Body.Close() //nolint:errcheck

	if resp.StatusCode != http.StatusOK {
		return nil, eris.Errorf("fetch: unexpected status %d from %s", resp.StatusCode, redact(u))
	}
	ct := resp.Header.Get("Content-Type")
	if strings.HasPrefix(ct, ContentTypeData) {
		return nil, eris.Wrapf(ErrNotSourcetable, "fetch: %s sent %s", redact(u), ct)
	}

	body, err := readLimited(resp.Body, f.opts.MaxBodyBytes)
	if err != nil {
		return nil, eris.Wrapf(err, "fetch: read body from %s", redact(u))
	}

	return &Payload{
		URL:         redact(u),
		Status:      resp.Status,
		Protocol:    ProtocolHTTP,
		ContentType: ct,
		Body:        body,
		FetchedAt:   time.Now().UTC(),
	}, nil
}

// readLimited reads r fully, failing if it holds more than limit bytes.
func readLimited(r io.Reader, limit int64) ([]byte, error) {
	body, err := io.ReadAll(io.LimitReader(r, limit+1))
	if err != nil {
		return nil, err
	}
	if int64(len(body)) > limit {
		return nil, eris.Errorf("body exceeds %d bytes", limit)
	}
	return body, nil
}

// isMalformedStatus reports whether err comes from net/http rejecting a
// non-HTTP status line such as "SOURCETABLE 200 OK" or "ICY 200 OK".
func isMalformedStatus(err error) bool {
	return strings.Contains(err.Error(), "malformed HTTP")
}

// redact drops credentials from u for logging and storage.
func redact(u *url.URL) string {
	return u.Redacted()
}
