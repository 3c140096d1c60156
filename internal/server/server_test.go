package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/ntripbrowser/internal/browse"
	"github.com/sells-group/ntripbrowser/internal/fetcher"
	"github.com/sells-group/ntripbrowser/internal/fetcher/mocks"
	"github.com/sells-group/ntripbrowser/internal/metrics"
	"github.com/sells-group/ntripbrowser/internal/resilience"
	"github.com/sells-group/ntripbrowser/internal/store"
)

const casterURL = "http://rtk2go.com:2101/"

const table = "SOURCETABLE 200 OK\r\n\r\n" +
	"CAS;rtk2go.com;2101;RTK2go;SNIP;0;USA;47.6;-122.3;;0;http://rtk2go.com\r\n" +
	"STR;WTZR0;Wettzell;RTCM 3.2;;2;GPS;EUREF;DEU;49.14;12.88;0;0;gen;none;B;N;9600;\r\n" +
	"STR;BOGT0;Bogota;RTCM 3.1;;2;GPS;IGS;COL;4.64;-74.08;0;0;gen;none;B;N;5000;\r\n" +
	"ENDSOURCETABLE\r\n"

func payload() *fetcher.Payload {
	return &fetcher.Payload{
		URL:       casterURL,
		Status:    "200 OK",
		Protocol:  fetcher.ProtocolHTTP,
		Body:      []byte(table),
		FetchedAt: time.Date(2026, 10, 18, 12, 0, 0, 0, time.UTC),
	}
}

func newTestServer(t *testing.T, f fetcher.Fetcher, opts ...Option) http.Handler {
	t.Helper()
	return New(browse.NewService(f), opts...).Handler()
}

func newTestStore(t *testing.T) store.Store {
	t.Helper()
	st, err := store.NewSQLite(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() }) //nolint:errcheck
	require.NoError(t, st.Migrate(context.Background()))
	return st
}

func do(t *testing.T, h http.Handler, method, target string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, target, nil)
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)
	return rr
}

func TestHealth(t *testing.T) {
	h := newTestServer(t, mocks.NewMockFetcher(t))

	rr := do(t, h, http.MethodGet, "/health")
	assert.Equal(t, http.StatusOK, rr.Code)
	assert.Contains(t, rr.Header().Get("Content-Type"), "application/json")

	var body map[string]string
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &body))
	assert.Equal(t, "ok", body["status"])
}

func TestSourcetable_JSON(t *testing.T) {
	f := mocks.NewMockFetcher(t)
	f.On("Fetch", mock.Anything, casterURL).Return(payload(), nil)
	h := newTestServer(t, f)

	rr := do(t, h, http.MethodGet, "/sourcetable?caster=rtk2go.com&base=49.14,12.88&sort=distance")
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
	assert.Equal(t, "application/json", rr.Header().Get("Content-Type"))

	var body struct {
		Streams []map[string]any `json:"streams"`
		Casters []map[string]any `json:"casters"`
	}
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &body))
	require.Len(t, body.Streams, 2)
	assert.Equal(t, "WTZR0", body.Streams[0]["Mountpoint"])
	assert.InDelta(t, 0, body.Streams[0]["Distance"], 1e-9)
	assert.Len(t, body.Casters, 1)
}

func TestSourcetable_MaxDistanceAndFormat(t *testing.T) {
	f := mocks.NewMockFetcher(t)
	f.On("Fetch", mock.Anything, "http://rtk2go.com:2102/").Return(payload(), nil)
	h := newTestServer(t, f)

	rr := do(t, h, http.MethodGet, "/sourcetable?caster=rtk2go.com&port=2102&base=49.14,12.88&max_distance=100&format=csv")
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
	assert.Equal(t, "text/csv; charset=utf-8", rr.Header().Get("Content-Type"))
	assert.Contains(t, rr.Body.String(), "WTZR0")
	assert.NotContains(t, rr.Body.String(), "BOGT0")
}

func TestSourcetable_BadRequests(t *testing.T) {
	h := newTestServer(t, mocks.NewMockFetcher(t))

	tests := []struct {
		name   string
		target string
		want   string
	}{
		{"missing caster", "/sourcetable", "caster is required"},
		{"bad port", "/sourcetable?caster=a&port=x", "invalid port"},
		{"port range", "/sourcetable?caster=a&port=70000", "out of range"},
		{"bad base", "/sourcetable?caster=a&base=north", "lat,lon"},
		{"bad format", "/sourcetable?caster=a&format=pdf", "unsupported format"},
		{"shapefile", "/sourcetable?caster=a&format=shapefile", "unsupported format"},
		{"bad sections", "/sourcetable?caster=a&sections=XYZ", "unknown kind"},
		{"bad sort", "/sourcetable?caster=a&sort=Nope", "unknown sort field"},
		{"bad distance", "/sourcetable?caster=a&max_distance=far", "invalid max_distance"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rr := do(t, h, http.MethodGet, tt.target)
			assert.Equal(t, http.StatusBadRequest, rr.Code)
			assert.Contains(t, rr.Body.String(), tt.want)
		})
	}
}

func TestSourcetable_FetchError(t *testing.T) {
	f := mocks.NewMockFetcher(t)
	f.On("Fetch", mock.Anything, casterURL).Return(nil, errors.New("connection refused"))
	h := newTestServer(t, f)

	rr := do(t, h, http.MethodGet, "/sourcetable?caster=rtk2go.com")
	assert.Equal(t, http.StatusBadGateway, rr.Code)
	assert.Contains(t, rr.Body.String(), "connection refused")
}

func TestSourcetable_BreakerOpen(t *testing.T) {
	f := mocks.NewMockFetcher(t)
	f.On("Fetch", mock.Anything, casterURL).Return(nil, errors.New("connection refused")).Once()
	h := newTestServer(t, fetcher.NewBreakerFetcher(f, resilience.Config{Threshold: 1, Cooldown: time.Hour}))

	rr := do(t, h, http.MethodGet, "/sourcetable?caster=rtk2go.com")
	assert.Equal(t, http.StatusBadGateway, rr.Code)

	rr = do(t, h, http.MethodGet, "/sourcetable?caster=rtk2go.com")
	assert.Equal(t, http.StatusServiceUnavailable, rr.Code)
	assert.Contains(t, rr.Body.String(), "circuit open")
}

func TestSnapshots_NotMountedWithoutStore(t *testing.T) {
	h := newTestServer(t, mocks.NewMockFetcher(t))

	rr := do(t, h, http.MethodGet, "/snapshots")
	assert.Equal(t, http.StatusNotFound, rr.Code)
}

func TestSnapshots_CreateListGet(t *testing.T) {
	f := mocks.NewMockFetcher(t)
	f.On("Fetch", mock.Anything, casterURL).Return(payload(), nil)
	h := newTestServer(t, f, WithStore(newTestStore(t)))

	rr := do(t, h, http.MethodPost, "/snapshots?caster=rtk2go.com&base=49.14,12.88")
	require.Equal(t, http.StatusCreated, rr.Code, rr.Body.String())
	var created store.Snapshot
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &created))
	require.NotEmpty(t, created.ID)
	assert.Equal(t, 2, created.Streams)

	rr = do(t, h, http.MethodGet, "/snapshots?caster=rtk2go.com&limit=5")
	require.Equal(t, http.StatusOK, rr.Code)
	var list []store.Snapshot
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &list))
	require.Len(t, list, 1)
	assert.Equal(t, created.ID, list[0].ID)
	assert.Nil(t, list[0].Table)

	rr = do(t, h, http.MethodGet, "/snapshots/"+created.ID)
	require.Equal(t, http.StatusOK, rr.Code)
	var got store.Snapshot
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &got))
	require.NotNil(t, got.Table)
	assert.Len(t, got.Table.Streams, 2)
	require.NotNil(t, got.Base)
	assert.InDelta(t, 49.14, got.Base.Lat, 1e-9)
}

func TestSnapshots_EmptyListAndErrors(t *testing.T) {
	h := newTestServer(t, mocks.NewMockFetcher(t), WithStore(newTestStore(t)))

	rr := do(t, h, http.MethodGet, "/snapshots")
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, "[]", strings.TrimSpace(rr.Body.String()))

	rr = do(t, h, http.MethodGet, "/snapshots/missing")
	assert.Equal(t, http.StatusNotFound, rr.Code)

	rr = do(t, h, http.MethodGet, "/snapshots?limit=-1")
	assert.Equal(t, http.StatusBadRequest, rr.Code)

	rr = do(t, h, http.MethodGet, "/snapshots?since=yesterday")
	assert.Equal(t, http.StatusBadRequest, rr.Code)

	rr = do(t, h, http.MethodPost, "/snapshots")
	assert.Equal(t, http.StatusBadRequest, rr.Code)
}

func TestMetrics(t *testing.T) {
	m, err := metrics.NewCollector(prometheus.NewRegistry())
	require.NoError(t, err)
	h := newTestServer(t, mocks.NewMockFetcher(t), WithMetrics(m))

	do(t, h, http.MethodGet, "/health")
	rr := do(t, h, http.MethodGet, "/metrics")
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Contains(t, rr.Body.String(), `ntrip_http_requests_total{code="200",route="/health"} 1`)
}

func TestCORS(t *testing.T) {
	h := newTestServer(t, mocks.NewMockFetcher(t), WithCORSOrigins([]string{"https://map.example.org"}))

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	req.Header.Set("Origin", "https://map.example.org")
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)
	assert.Equal(t, "https://map.example.org", rr.Header().Get("Access-Control-Allow-Origin"))

	req = httptest.NewRequest(http.MethodGet, "/health", nil)
	req.Header.Set("Origin", "https://other.example.org")
	rr = httptest.NewRecorder()
	h.ServeHTTP(rr, req)
	assert.Empty(t, rr.Header().Get("Access-Control-Allow-Origin"))
}

func TestListenAndServe_StopsOnCancel(t *testing.T) {
	srv := New(browse.NewService(mocks.NewMockFetcher(t)))
	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan error, 1)
	go func() { done <- srv.ListenAndServe(ctx, "127.0.0.1:0") }()
	time.Sleep(50 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("server did not stop")
	}
}
