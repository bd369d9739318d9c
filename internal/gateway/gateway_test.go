package gateway

import (
	"context"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/openmined/chunksync/internal/errs"
	"github.com/openmined/chunksync/internal/remote"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testToken = "s3cret"

func newTestGateway(t *testing.T, mutate ...func(*Config)) (*Server, *remote.HTTPStore) {
	t.Helper()
	cfg := &Config{
		Addr:         DefaultAddr,
		DBPath:       filepath.Join(t.TempDir(), "gateway.db"),
		Token:        testToken,
		MaxChunkSize: 8,
	}
	for _, fn := range mutate {
		fn(cfg)
	}

	srv, err := New(context.Background(), cfg)
	require.NoError(t, err)
	t.Cleanup(func() { srv.conn.Close() })

	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(ts.Close)

	client, err := remote.NewHTTPStore(ts.URL, cfg.Token, 5*time.Second)
	require.NoError(t, err)
	return srv, client
}

func TestGatewayRoundTrip(t *testing.T) {
	ctx := context.Background()
	_, client := newTestGateway(t)

	_, err := client.ResourceInfo(ctx, "/index.html")
	assert.ErrorIs(t, err, errs.ErrNotFound)

	r1, err := client.AppendChunk(ctx, "/index.html", []byte("<h1>"), "text/html")
	require.NoError(t, err)
	r2, err := client.AppendChunk(ctx, "/index.html", []byte("hi"), "text/html")
	require.NoError(t, err)
	assert.NotEqual(t, r1, r2)

	info, err := client.ResourceInfo(ctx, "/index.html")
	require.NoError(t, err)
	assert.Equal(t, 2, info.TotalChunks)
	assert.Equal(t, "text/html", info.ContentType)

	_, err = client.SetChunk(ctx, "/index.html", 1, []byte("yo"), "text/html", remote.RedirectNone)
	require.NoError(t, err)

	c, err := client.GetChunk(ctx, "/index.html", 1)
	require.NoError(t, err)
	assert.Equal(t, []byte("yo"), c.Bytes)

	_, err = client.GetChunk(ctx, "/index.html", 5)
	assert.ErrorIs(t, err, errs.ErrNotFound)

	res, err := remote.ReadResource(ctx, client, "/index.html")
	require.NoError(t, err)
	assert.Equal(t, []byte("<h1>yo"), res.Content)

	require.NoError(t, client.RemoveResource(ctx, "/index.html"))
	_, err = client.ResourceInfo(ctx, "/index.html")
	assert.ErrorIs(t, err, errs.ErrNotFound)

	// removing twice is fine
	assert.NoError(t, client.RemoveResource(ctx, "/index.html"))
}

func TestGatewayRedirectCode(t *testing.T) {
	ctx := context.Background()
	_, client := newTestGateway(t)

	_, err := client.SetChunk(ctx, "/logo.png", 0, []byte("ipfs://x"), "image/png", 302)
	require.NoError(t, err)

	info, err := client.ResourceInfo(ctx, "/logo.png")
	require.NoError(t, err)
	assert.Equal(t, 302, info.RedirectCode)
}

func TestGatewayRejectsOversizedChunk(t *testing.T) {
	_, client := newTestGateway(t)

	_, err := client.AppendChunk(context.Background(), "/a.txt", []byte("way too long"), "text/plain")
	assert.ErrorIs(t, err, errs.ErrRejected)
	assert.False(t, errs.IsRetryable(err))
}

func TestGatewayRejectsOutOfBoundsSet(t *testing.T) {
	_, client := newTestGateway(t)

	_, err := client.SetChunk(context.Background(), "/a.txt", 3, []byte("x"), "text/plain", remote.RedirectNone)
	assert.ErrorIs(t, err, errs.ErrRejected)
}

func TestGatewayAuth(t *testing.T) {
	srv, _ := newTestGateway(t)
	ts := httptest.NewServer(srv.Handler())
	defer ts.Close()

	bad, err := remote.NewHTTPStore(ts.URL, "wrong", 5*time.Second)
	require.NoError(t, err)
	_, err = bad.ResourceInfo(context.Background(), "/a.txt")
	assert.ErrorIs(t, err, errs.ErrRejected)

	resp, err := http.Get(ts.URL + "/healthz")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestGatewayBadRequest(t *testing.T) {
	srv, _ := newTestGateway(t, func(c *Config) { c.Token = "" })

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, remote.V1ResourceChunk+"?path=/a.txt", nil)
	srv.Handler().ServeHTTP(w, req)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Contains(t, w.Body.String(), remote.CodeInvalidRequest)

	w = httptest.NewRecorder()
	req = httptest.NewRequest(http.MethodGet, "/nope", nil)
	srv.Handler().ServeHTTP(w, req)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestGatewayRateLimit(t *testing.T) {
	srv, _ := newTestGateway(t, func(c *Config) {
		c.Token = ""
		c.RateLimit = "2-M"
	})

	codes := make([]int, 0, 3)
	for range 3 {
		w := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodGet, remote.V1Resources+"?path=/a.txt", nil)
		req.RemoteAddr = "10.0.0.1:1234"
		srv.Handler().ServeHTTP(w, req)
		codes = append(codes, w.Code)
	}
	assert.Equal(t, []int{http.StatusNotFound, http.StatusNotFound, http.StatusTooManyRequests}, codes)
}

func TestConfigValidate(t *testing.T) {
	_, err := New(context.Background(), &Config{MaxChunkSize: 4})
	assert.ErrorIs(t, err, errs.ErrInvalidConfiguration)

	_, err = New(context.Background(), &Config{Addr: DefaultAddr, MaxChunkSize: -1})
	assert.ErrorIs(t, err, errs.ErrInvalidConfiguration)

	_, err = SetupRoutes(nil, &Config{RateLimit: "lots"})
	assert.ErrorIs(t, err, errs.ErrInvalidConfiguration)
}

func TestServerStartStop(t *testing.T) {
	srv, err := New(context.Background(), &Config{Addr: "127.0.0.1:0", MaxChunkSize: 16})
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- srv.Start(ctx) }()

	time.Sleep(50 * time.Millisecond)
	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		require.FailNow(t, "gateway did not stop")
	}
}

func TestGatewayJWTAuth(t *testing.T) {
	const secret = "jwt-secret"
	token, err := IssueToken("ci", secret, time.Hour)
	require.NoError(t, err)

	_, client := newTestGateway(t, func(c *Config) {
		c.JWTSecret = secret
		c.Token = token
	})
	_, err = client.AppendChunk(context.Background(), "/a.txt", []byte("ok"), "text/plain")
	assert.NoError(t, err)

	forged, err := IssueToken("ci", "other-secret", time.Hour)
	require.NoError(t, err)
	_, bad := newTestGateway(t, func(c *Config) {
		c.JWTSecret = secret
		c.Token = forged
	})
	_, err = bad.AppendChunk(context.Background(), "/a.txt", []byte("no"), "text/plain")
	assert.ErrorIs(t, err, errs.ErrRejected)
}

func TestParseToken(t *testing.T) {
	token, err := IssueToken("alice", "s", time.Hour)
	require.NoError(t, err)

	claims, err := ParseToken(token, "s")
	require.NoError(t, err)
	assert.Equal(t, "alice", claims.Subject)

	expired, err := IssueToken("alice", "s", -time.Hour)
	require.NoError(t, err)
	_, err = ParseToken(expired, "s")
	assert.NoError(t, err, "a non-positive expiry never expires")

	_, err = IssueToken("alice", "", time.Hour)
	assert.Error(t, err)
}

func TestGatewaySecurityHeaders(t *testing.T) {
	srv, _ := newTestGateway(t)

	w := httptest.NewRecorder()
	srv.Handler().ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	assert.Equal(t, "nosniff", w.Header().Get("X-Content-Type-Options"))
	assert.Equal(t, "DENY", w.Header().Get("X-Frame-Options"))
}

func TestGatewayWithCache(t *testing.T) {
	ctx := context.Background()
	_, client := newTestGateway(t, func(c *Config) { c.CacheSize = 16 })

	_, err := client.AppendChunk(ctx, "/a.txt", []byte("one"), "text/plain")
	require.NoError(t, err)
	c, err := client.GetChunk(ctx, "/a.txt", 0)
	require.NoError(t, err)
	assert.Equal(t, []byte("one"), c.Bytes)

	_, err = client.SetChunk(ctx, "/a.txt", 0, []byte("two"), "text/plain", remote.RedirectNone)
	require.NoError(t, err)
	c, err = client.GetChunk(ctx, "/a.txt", 0)
	require.NoError(t, err)
	assert.Equal(t, []byte("two"), c.Bytes)
}
