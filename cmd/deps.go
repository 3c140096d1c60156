package main

import (
	"context"
	"time"

	"github.com/rotisserie/eris"
	"golang.org/x/time/rate"

	"github.com/sells-group/ntripbrowser/internal/fetcher"
	"github.com/sells-group/ntripbrowser/internal/geodesy"
	"github.com/sells-group/ntripbrowser/internal/store"
)

// newFetcher builds the caster fetcher from config. timeoutSecs overrides
// caster.timeout_secs when positive; ratePerHost of zero disables limiting.
func newFetcher(timeoutSecs int, ratePerHost float64) *fetcher.HTTPFetcher {
	if timeoutSecs <= 0 {
		timeoutSecs = cfg.Caster.TimeoutSecs
	}
	return fetcher.NewHTTPFetcher(fetcher.HTTPOptions{
		UserAgent:    cfg.Caster.UserAgent,
		Timeout:      time.Duration(timeoutSecs) * time.Second,
		NtripVersion: cfg.Caster.NtripVersion,
		MaxBodyBytes: cfg.Caster.MaxBodyBytes,
		RatePerHost:  rate.Limit(ratePerHost),
	})
}

// casterPort returns port, or the configured default when port is zero.
func casterPort(port int) int {
	if port != 0 {
		return port
	}
	return cfg.Caster.Port
}

// parseBase parses the --base-point flag. An empty value means no base.
func parseBase(s string) (*geodesy.Point, error) {
	if s == "" {
		return nil, nil
	}
	p, err := geodesy.ParsePoint(s)
	if err != nil {
		return nil, eris.Wrap(err, "invalid --base-point")
	}
	return &p, nil
}

// initStore opens and migrates the configured snapshot store.
func initStore(ctx context.Context) (store.Store, error) {
	var (
		st  store.Store
		err error
	)
	switch cfg.Store.Driver {
	case "sqlite":
		dsn := cfg.Store.DatabaseURL
		if dsn == "" {
			dsn = "ntripbrowser.db"
		}
		st, err = store.NewSQLite(dsn)
	case "postgres":
		if cfg.Store.DatabaseURL == "" {
			return nil, eris.New("store.database_url is required for postgres")
		}
		st, err = store.NewPostgres(ctx, cfg.Store.DatabaseURL, &store.PoolConfig{
			MaxConns: cfg.Store.MaxConns,
			MinConns: cfg.Store.MinConns,
		})
	default:
		return nil, eris.Errorf("unsupported store driver: %s", cfg.Store.Driver)
	}
	if err != nil {
		return nil, err
	}
	if err := st.Migrate(ctx); err != nil {
		st.Close() //nolint:errcheck
		return nil, err
	}
	return st, nil
}
