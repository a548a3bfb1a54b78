package api

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/atkit/botfleet/internal/metrics"
)

func init() {
	metrics.Init()
}

func get(t *testing.T, srv *Server, path string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, path, nil)
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)
	return rec
}

func TestHealthEndpoints(t *testing.T) {
	t.Parallel()

	srv := NewServer(nil, zap.NewNop())

	rec := get(t, srv, "/healthz")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"ok"}`, rec.Body.String())

	rec = get(t, srv, "/readyz")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"ready"}`, rec.Body.String())
}

func TestRequestIDHeader(t *testing.T) {
	t.Parallel()

	srv := NewServer(nil, zap.NewNop())
	rec := get(t, srv, "/healthz")
	assert.NotEmpty(t, rec.Header().Get("X-Request-ID"))
}

func TestStatusEndpoint(t *testing.T) {
	t.Parallel()

	started := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)
	srv := NewServer(func() Status {
		return Status{
			Bots: []BotStatus{
				{Handle: "pics.test", Strategy: "image"},
				{Handle: "quotes.test", Strategy: "quote"},
			},
			Connected: true,
			StartedAt: started,
		}
	}, zap.NewNop())

	rec := get(t, srv, "/v1/status")
	require.Equal(t, http.StatusOK, rec.Code)

	var got Status
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
	assert.True(t, got.Connected)
	require.Len(t, got.Bots, 2)
	assert.Equal(t, "image", got.Bots[0].Strategy)
	assert.True(t, got.StartedAt.Equal(started))
}

func TestStatusEndpointWithoutReporter(t *testing.T) {
	t.Parallel()

	srv := NewServer(nil, zap.NewNop())
	rec := get(t, srv, "/v1/status")
	require.Equal(t, http.StatusOK, rec.Code)

	var got Status
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
	assert.False(t, got.Connected)
	assert.Empty(t, got.Bots)
}

func TestMetricsEndpoint(t *testing.T) {
	t.Parallel()

	srv := NewServer(nil, zap.NewNop())
	rec := get(t, srv, "/metrics")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "go_goroutines")
}
