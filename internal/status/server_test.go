package status_test

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tidwall/gjson"

	"github.com/whotterre/log-watcher/internal/monitoring"
	"github.com/whotterre/log-watcher/internal/status"
	"github.com/whotterre/log-watcher/internal/watcher"
)

// ============================================================
// Helpers
// ============================================================

type stubSource struct {
	snap    watcher.Snapshot
	metrics *monitoring.MetricsCollector
	panics  bool
}

func (s *stubSource) Snapshot() watcher.Snapshot {
	if s.panics {
		panic("snapshot exploded")
	}
	return s.snap
}

func (s *stubSource) Metrics() *monitoring.MetricsCollector { return s.metrics }

func quietLogger() *monitoring.Logger {
	return monitoring.New(monitoring.LoggerConfig{Level: "disabled"})
}

func newTestServer(t *testing.T, src *stubSource) *httptest.Server {
	t.Helper()
	if src.metrics == nil {
		src.metrics = monitoring.NewMetricsCollector()
	}
	srv := httptest.NewServer(status.New("127.0.0.1:0", "1.2.3", src, quietLogger()).Handler())
	t.Cleanup(srv.Close)
	return srv
}

func get(t *testing.T, url string) (*http.Response, string) {
	t.Helper()
	resp, err := http.Get(url)
	require.NoError(t, err)
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	require.NoError(t, resp.Body.Close())
	return resp, string(body)
}

// ============================================================
// Endpoints
// ============================================================

func TestServer_Healthz(t *testing.T) {
	srv := newTestServer(t, &stubSource{})

	resp, body := get(t, srv.URL+"/healthz")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "application/json", resp.Header.Get("Content-Type"))
	assert.Equal(t, "ok", gjson.Get(body, "status").String())
	assert.NotEmpty(t, gjson.Get(body, "uptime").String())
	assert.NotEmpty(t, resp.Header.Get("X-Request-ID"))
}

func TestServer_StatusReportsPipelineState(t *testing.T) {
	started := time.Date(2026, 8, 21, 14, 0, 0, 0, time.UTC)
	src := &stubSource{
		snap: watcher.Snapshot{
			StartedAt:    started,
			LogPath:      "/var/log/nginx/access.log",
			WindowLen:    10,
			WindowCap:    200,
			ErrorRate:    30,
			ErrorCount:   3,
			CurrentPool:  "green",
			PreviousPool: "blue",
		},
		metrics: monitoring.NewMetricsCollector(),
	}
	src.metrics.RecordLine()
	src.metrics.RecordParse(true)
	src.metrics.RecordAlertEmitted()

	srv := newTestServer(t, src)

	resp, body := get(t, srv.URL+"/status")
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	assert.Equal(t, "log-watcher", gjson.Get(body, "service").String())
	assert.Equal(t, "1.2.3", gjson.Get(body, "version").String())
	assert.Equal(t, "green", gjson.Get(body, "pipeline.current_pool").String())
	assert.Equal(t, "blue", gjson.Get(body, "pipeline.previous_pool").String())
	assert.EqualValues(t, 10, gjson.Get(body, "pipeline.window_len").Int())
	assert.InDelta(t, 30.0, gjson.Get(body, "pipeline.error_rate").Float(), 0.001)
	assert.EqualValues(t, 1, gjson.Get(body, "counters.records").Int())
	assert.EqualValues(t, 1, gjson.Get(body, "counters.alerts_emitted").Int())
	assert.True(t, gjson.Get(body, "host.pid").Int() > 0)
	assert.True(t, gjson.Get(body, "host.goroutines").Int() > 0)
}

func TestServer_MethodNotAllowed(t *testing.T) {
	srv := newTestServer(t, &stubSource{})

	resp, err := http.Post(srv.URL+"/status", "application/json", nil)
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusMethodNotAllowed, resp.StatusCode)
	assert.Equal(t, http.MethodGet, resp.Header.Get("Allow"))
}

func TestServer_UnknownPathReturns404(t *testing.T) {
	srv := newTestServer(t, &stubSource{})

	resp, _ := get(t, srv.URL+"/nope")
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestServer_PanicRecoveryReturns500(t *testing.T) {
	srv := newTestServer(t, &stubSource{panics: true})

	resp, _ := get(t, srv.URL+"/status")
	assert.Equal(t, http.StatusInternalServerError, resp.StatusCode)
}

func TestServer_RequestIDIsPreserved(t *testing.T) {
	srv := newTestServer(t, &stubSource{})

	req, err := http.NewRequest(http.MethodGet, srv.URL+"/healthz", nil)
	require.NoError(t, err)
	req.Header.Set("X-Request-ID", "abc-123")
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, "abc-123", resp.Header.Get("X-Request-ID"))
}

func TestServer_StartShutdownRoundTrip(t *testing.T) {
	srv := status.New("127.0.0.1:0", "dev", &stubSource{metrics: monitoring.NewMetricsCollector()}, quietLogger())

	done := make(chan error, 1)
	go func() { done <- srv.Start() }()
	time.Sleep(100 * time.Millisecond)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	require.NoError(t, srv.Shutdown(ctx))

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("Start did not return after Shutdown")
	}
}
