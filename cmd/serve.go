package main

import (
	"fmt"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/ntripbrowser/internal/browse"
	"github.com/sells-group/ntripbrowser/internal/fetcher"
	"github.com/sells-group/ntripbrowser/internal/metrics"
	"github.com/sells-group/ntripbrowser/internal/resilience"
	"github.com/sells-group/ntripbrowser/internal/server"
)

var (
	servePort    int
	serveNoStore bool
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve sourcetables and snapshot history over HTTP",
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := cfg.Validate("serve"); err != nil {
			return err
		}
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		m, err := metrics.NewCollector(prometheus.DefaultRegisterer)
		if err != nil {
			return err
		}
		var f fetcher.Fetcher = newFetcher(0, cfg.Scan.RatePerHost)
		if cfg.Server.BreakerThreshold > 0 {
			f = fetcher.NewBreakerFetcher(f, resilience.Config{
				Threshold: cfg.Server.BreakerThreshold,
				Cooldown:  time.Duration(cfg.Server.BreakerCooldownSecs) * time.Second,
				OnStateChange: func(host string, from, to resilience.State) {
					zap.L().Info("caster breaker", zap.String("host", host),
						zap.Stringer("from", from), zap.Stringer("to", to))
					m.ObserveBreaker(to.String())
				},
			})
		}
		svc := browse.NewService(
			f,
			browse.WithMetrics(m),
			browse.WithConcurrency(cfg.Scan.Concurrency),
		)

		opts := []server.Option{
			server.WithMetrics(m),
			server.WithCORSOrigins(cfg.Server.CORSOrigins),
			server.WithDefaultPort(cfg.Caster.Port),
		}
		if !serveNoStore {
			st, err := initStore(ctx)
			if err != nil {
				return err
			}
			defer st.Close() //nolint:errcheck
			opts = append(opts, server.WithStore(st))
		} else {
			zap.L().Info("snapshot routes disabled")
		}

		port := servePort
		if port == 0 {
			port = cfg.Server.Port
		}
		return server.New(svc, opts...).ListenAndServe(ctx, fmt.Sprintf(":%d", port))
	},
}

func init() {
	serveCmd.Flags().IntVar(&servePort, "port", 0, "server port (default from config)")
	serveCmd.Flags().BoolVar(&serveNoStore, "no-store", false, "disable the /snapshots routes")
	rootCmd.AddCommand(serveCmd)
}
