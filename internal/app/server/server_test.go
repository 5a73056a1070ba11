package server

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"beacon-relay/internal/config"
)

type MockCollector struct {
	*httptest.Server
	mu      sync.Mutex
	queries []string
}

func newMockCollector(t *testing.T) *MockCollector {
	t.Helper()
	c := &MockCollector{}
	c.Server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		c.mu.Lock()
		c.queries = append(c.queries, r.URL.RawQuery)
		c.mu.Unlock()
		_, _ = w.Write([]byte("GIF89a"))
	}))
	t.Cleanup(c.Close)
	return c
}

func (c *MockCollector) Queries() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]string(nil), c.queries...)
}

func testConfig(collectorHost string) config.Config {
	var cfg config.Config
	cfg.Server.Addr = "127.0.0.1:0"
	cfg.Tracker = config.DefaultTracker()
	cfg.Tracker.EndpointHost = collectorHost
	cfg.Relay.AccountID = "UA-1234-1"
	cfg.Relay.DomainName = "www.example.com"
	cfg.Relay.AllowHash = true
	cfg.Relay.SessionTTL = 30 * time.Minute
	return cfg
}

func postPageview(t *testing.T, h http.Handler, clientID string) int {
	t.Helper()
	body := `{"client_id":"` + clientID + `","page":{"path":"/a","title":"Home"}}`
	req := httptest.NewRequest(http.MethodPost, "/v1/pageview", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", "Mozilla/5.0 (Windows NT 10.0; Win64; x64) Gecko/20100101 Firefox/121.0")
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	return w.Code
}

func TestServer_Relay(t *testing.T) {
	tests := []struct {
		name        string
		host        func(c *MockCollector) string
		wantStatus  int
		wantQueries int
	}{
		{"delivers to collector", func(c *MockCollector) string { return strings.TrimPrefix(c.URL, "http://") }, http.StatusAccepted, 1},
		{"simulation mode sends nothing", func(*MockCollector) string { return "" }, http.StatusAccepted, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := newMockCollector(t)
			srv := New(testConfig(tt.host(c)))

			ts := httptest.NewServer(srv.Handler())
			defer ts.Close()

			resp, err := http.Post(ts.URL+"/v1/pageview", "application/json",
				strings.NewReader(`{"client_id":"c1","page":{"path":"/a"}}`))
			require.NoError(t, err)
			resp.Body.Close()
			assert.Equal(t, tt.wantStatus, resp.StatusCode)
			assert.Len(t, c.Queries(), tt.wantQueries)
		})
	}
}

func TestServer_Reload(t *testing.T) {
	c := newMockCollector(t)
	cfg := testConfig(strings.TrimPrefix(c.URL, "http://"))
	srv := New(cfg)

	require.Equal(t, http.StatusAccepted, postPageview(t, srv.Handler(), "c1"))

	cfg.Relay.AccountID = "UA-999-9"
	srv.Reload(cfg)
	require.Equal(t, http.StatusAccepted, postPageview(t, srv.Handler(), "c1"))

	queries := c.Queries()
	require.Len(t, queries, 2)
	assert.Contains(t, queries[0], "utmac=UA-1234-1")
	assert.Contains(t, queries[1], "utmac=UA-999-9")
}

func TestServer_ReloadKeepsEndpoint(t *testing.T) {
	c := newMockCollector(t)
	cfg := testConfig(strings.TrimPrefix(c.URL, "http://"))
	srv := New(cfg)

	cfg.Tracker.EndpointHost = ""
	cfg.Tracker.EndpointPath = "/elsewhere.gif"
	cfg.Tracker.SitespeedSampleRate = 100
	srv.Reload(cfg)

	require.Equal(t, http.StatusAccepted, postPageview(t, srv.Handler(), "c1"))
	assert.Len(t, c.Queries(), 1, "still delivered to the startup collector")

	live, ok := srv.cfg.Load()
	require.True(t, ok)
	assert.Equal(t, "/__utm.gif", live.Tracker.EndpointPath)
	assert.Equal(t, 100, live.Tracker.SitespeedSampleRate)
}

func TestServer_RunFlushesOnShutdown(t *testing.T) {
	c := newMockCollector(t)
	cfg := testConfig(strings.TrimPrefix(c.URL, "http://"))
	cfg.Tracker.SendOnShutdown = true
	srv := New(cfg)

	for _, id := range []string{"c1", "c2", "c3"} {
		require.Equal(t, http.StatusAccepted, postPageview(t, srv.Handler(), id))
	}
	assert.Empty(t, c.Queries(), "nothing leaves before shutdown")

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- srv.Run(ctx, cfg.Server.Addr) }()

	time.Sleep(50 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("server did not stop")
	}
	assert.Len(t, c.Queries(), 3)
}
