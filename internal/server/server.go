// Package server exposes caster sourcetables and snapshot history over HTTP.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/ntripbrowser/internal/browse"
	"github.com/sells-group/ntripbrowser/internal/fetcher"
	"github.com/sells-group/ntripbrowser/internal/geodesy"
	"github.com/sells-group/ntripbrowser/internal/metrics"
	"github.com/sells-group/ntripbrowser/internal/render"
	"github.com/sells-group/ntripbrowser/internal/resilience"
	"github.com/sells-group/ntripbrowser/internal/store"
)

// Server serves the HTTP API.
type Server struct {
	svc         *browse.Service
	store       store.Store
	metrics     *metrics.Collector
	origins     []string
	defaultPort int
}

// Option configures a Server.
type Option func(*Server)

// WithStore enables the /snapshots routes.
func WithStore(st store.Store) Option {
	return func(s *Server) { s.store = st }
}

// WithMetrics instruments requests and enables /metrics.
func WithMetrics(c *metrics.Collector) Option {
	return func(s *Server) { s.metrics = c }
}

// WithCORSOrigins sets the allowed CORS origins.
func WithCORSOrigins(origins []string) Option {
	return func(s *Server) { s.origins = origins }
}

// WithDefaultPort sets the caster port used when a request names none.
func WithDefaultPort(port int) Option {
	return func(s *Server) { s.defaultPort = port }
}

// New creates a Server browsing through svc.
func New(svc *browse.Service, opts ...Option) *Server {
	s := &Server{svc: svc, origins: []string{"*"}, defaultPort: fetcher.DefaultPort}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Handler builds the router.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: s.origins,
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders: []string{"Accept", "Content-Type"},
		MaxAge:         300,
	}))
	r.Use(s.metrics.Middleware)

	r.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	r.Get("/sourcetable", s.handleSourcetable)

	if s.store != nil {
		r.Route("/snapshots", func(r chi.Router) {
			r.Get("/", s.handleListSnapshots)
			r.Post("/", s.handleCreateSnapshot)
			r.Get("/{id}", s.handleGetSnapshot)
		})
	}
	if s.metrics != nil {
		r.Handle("/metrics", s.metrics.Handler())
	}
	return r
}

// ListenAndServe serves on addr until ctx is cancelled, then shuts down
// gracefully.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		<-ctx.Done()
		zap.L().Info("shutting down server")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		srv.Shutdown(shutdownCtx) //nolint:errcheck
	}()

	zap.L().Info("starting server", zap.String("addr", addr))
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return eris.Wrap(err, "server: listen")
	}
	return nil
}

// browseRequest reads caster, port and base from query parameters.
func (s *Server) browseRequest(r *http.Request) (browse.Request, error) {
	q := r.URL.Query()
	req := browse.Request{Caster: q.Get("caster"), Port: s.defaultPort}
	if req.Caster == "" {
		return req, eris.New("caster is required")
	}
	if p := q.Get("port"); p != "" {
		port, err := strconv.Atoi(p)
		if err != nil {
			return req, eris.Errorf("invalid port %q", p)
		}
		req.Port = port
	}
	if b := q.Get("base"); b != "" {
		base, err := geodesy.ParsePoint(b)
		if err != nil {
			return req, err
		}
		req.Base = &base
	}
	if _, err := fetcher.BuildURL(req.Caster, req.Port); err != nil {
		return req, err
	}
	return req, nil
}

func (s *Server) handleSourcetable(w http.ResponseWriter, r *http.Request) {
	req, err := s.browseRequest(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	q := r.URL.Query()
	format := render.FormatJSON
	if f := q.Get("format"); f != "" {
		if format, err = render.ParseFormat(f); err != nil || format == render.FormatShapefile {
			writeError(w, http.StatusBadRequest, eris.Errorf("unsupported format %q", f))
			return
		}
	}
	sections, err := render.ParseSections(q.Get("sections"))
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	view := render.View{SortBy: q.Get("sort")}
	if d := q.Get("max_distance"); d != "" {
		if view.MaxDistance, err = strconv.ParseFloat(d, 64); err != nil {
			writeError(w, http.StatusBadRequest, eris.Errorf("invalid max_distance %q", d))
			return
		}
	}
	if err := view.Validate(); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	res, err := s.svc.Browse(r.Context(), req)
	if err != nil {
		writeError(w, browseStatus(err), err)
		return
	}

	w.Header().Set("Content-Type", format.ContentType())
	if err := render.Write(w, view.Apply(res.Table), render.Options{Format: format, Sections: sections}); err != nil {
		zap.L().Error("write sourcetable response", zap.Error(err))
	}
}

func (s *Server) handleCreateSnapshot(w http.ResponseWriter, r *http.Request) {
	req, err := s.browseRequest(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	res, err := s.svc.Browse(r.Context(), req)
	if err != nil {
		writeError(w, browseStatus(err), err)
		return
	}
	snap := store.FromResult(res)
	if err := s.store.SaveSnapshot(r.Context(), snap); err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusCreated, snap)
}

func (s *Server) handleListSnapshots(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	filter := store.SnapshotFilter{Caster: q.Get("caster")}
	if l := q.Get("limit"); l != "" {
		n, err := strconv.Atoi(l)
		if err != nil || n < 0 {
			writeError(w, http.StatusBadRequest, eris.Errorf("invalid limit %q", l))
			return
		}
		filter.Limit = n
	}
	if o := q.Get("offset"); o != "" {
		n, err := strconv.Atoi(o)
		if err != nil || n < 0 {
			writeError(w, http.StatusBadRequest, eris.Errorf("invalid offset %q", o))
			return
		}
		filter.Offset = n
	}
	if since := q.Get("since"); since != "" {
		ts, err := time.Parse(time.RFC3339, since)
		if err != nil {
			writeError(w, http.StatusBadRequest, eris.Errorf("invalid since %q", since))
			return
		}
		filter.Since = ts
	}

	snaps, err := s.store.ListSnapshots(r.Context(), filter)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	if snaps == nil {
		snaps = []store.Snapshot{}
	}
	writeJSON(w, http.StatusOK, snaps)
}

func (s *Server) handleGetSnapshot(w http.ResponseWriter, r *http.Request) {
	snap, err := s.store.GetSnapshot(r.Context(), chi.URLParam(r, "id"))
	if errors.Is(err, store.ErrNotFound) {
		writeError(w, http.StatusNotFound, err)
		return
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusOK, snap)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		zap.L().Error("encode response", zap.Error(err))
	}
}

// browseStatus maps a browse failure to a response code. Casters skipped
// by an open breaker are reported as unavailable.
func browseStatus(err error) int {
	if errors.Is(err, resilience.ErrOpen) {
		return http.StatusServiceUnavailable
	}
	return http.StatusBadGateway
}

func writeError(w http.ResponseWriter, status int, err error) {
	if status >= http.StatusInternalServerError {
		zap.L().Warn("request failed", zap.Int("status", status), zap.Error(err))
	}
	writeJSON(w, status, map[string]string{"error": err.Error()})
}
