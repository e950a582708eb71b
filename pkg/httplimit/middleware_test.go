package httplimit

import (
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/manenim/window-limiter/pkg/limiter"
)

var epoch = time.UnixMilli(1_700_000_000_000).UTC()

func okHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
}

func newLimiter(t *testing.T, maxRequests int, clk limiter.Clock) *limiter.Limiter {
	t.Helper()
	cfg, err := limiter.NewConfig(maxRequests, 10*time.Second, limiter.WithClock(clk))
	require.NoError(t, err)
	l, err := limiter.New(cfg)
	require.NoError(t, err)
	return l
}

func TestMiddleware_BlocksAfterLimit(t *testing.T) {
	clk := limiter.NewManualClock(epoch.Add(2500 * time.Millisecond))
	handler := New(newLimiter(t, 2, clk), WithClock(clk))(okHandler())

	for i := 1; i <= 2; i++ {
		req := httptest.NewRequest(http.MethodGet, "/ping", nil)
		req.RemoteAddr = "192.0.2.10:4321"
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)

		require.Equal(t, http.StatusOK, rec.Code, "request %d", i)
		assert.Equal(t, "2", rec.Header().Get("X-RateLimit-Limit"))
	}

	req := httptest.NewRequest(http.MethodGet, "/ping", nil)
	req.RemoteAddr = "192.0.2.10:4321"
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.Equal(t, "0", rec.Header().Get("X-RateLimit-Remaining"))
	assert.Equal(t, "8", rec.Header().Get("Retry-After"))
	assert.Equal(t, "1700000010", rec.Header().Get("X-RateLimit-Reset"))
	assert.Contains(t, rec.Body.String(), "maximum number of requests")
}

func TestMiddleware_KeysAreIndependent(t *testing.T) {
	clk := limiter.NewManualClock(epoch)
	handler := New(newLimiter(t, 1, clk), WithClock(clk))(okHandler())

	codes := make([]int, 0, 3)
	for _, addr := range []string{"192.0.2.1:1", "192.0.2.1:2", "192.0.2.2:1"} {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.RemoteAddr = addr
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)
		codes = append(codes, rec.Code)
	}

	assert.Equal(t, []int{http.StatusOK, http.StatusTooManyRequests, http.StatusOK}, codes)
}

type failingLimiter struct{}

func (failingLimiter) TryConsume(string) (limiter.Decision, error) {
	return limiter.Decision{}, errors.New("boom")
}

func TestMiddleware_LimiterError(t *testing.T) {
	handler := New(failingLimiter{})(okHandler())
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
}

func TestMiddleware_NilLimiterPassesThrough(t *testing.T) {
	handler := New(nil)(okHandler())
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))

	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestClientIP(t *testing.T) {
	tests := []struct {
		name     string
		headers  map[string]string
		remote   string
		expected string
	}{
		{"forwarded for is ignored", map[string]string{"X-Forwarded-For": "203.0.113.7, 10.0.0.1"}, "10.0.0.2:80", "ip:10.0.0.2"},
		{"real ip is ignored", map[string]string{"X-Real-IP": "203.0.113.8"}, "10.0.0.2:80", "ip:10.0.0.2"},
		{"remote addr", nil, "198.51.100.3:5555", "ip:198.51.100.3"},
		{"remote addr without port", nil, "198.51.100.4", "ip:198.51.100.4"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/", nil)
			req.RemoteAddr = tt.remote
			for k, v := range tt.headers {
				req.Header.Set(k, v)
			}
			assert.Equal(t, tt.expected, ClientIP(req))
		})
	}
}

func TestTrustedClientIP(t *testing.T) {
	trusted, err := ParsePrefixes([]string{"10.0.0.0/8", "192.0.2.1"})
	require.NoError(t, err)
	keyFn := TrustedClientIP(trusted...)

	tests := []struct {
		name     string
		headers  map[string]string
		remote   string
		expected string
	}{
		{"untrusted peer ignores headers", map[string]string{"X-Forwarded-For": "203.0.113.7"}, "198.51.100.9:80", "ip:198.51.100.9"},
		{"trusted peer uses forwarded for", map[string]string{"X-Forwarded-For": "203.0.113.7"}, "10.1.2.3:80", "ip:203.0.113.7"},
		{"trusted hops are skipped", map[string]string{"X-Forwarded-For": "198.51.100.1, 203.0.113.7, 10.9.9.9"}, "192.0.2.1:80", "ip:203.0.113.7"},
		{"spoofed leftmost hop is not used", map[string]string{"X-Forwarded-For": "1.2.3.4, 203.0.113.7"}, "10.1.2.3:80", "ip:203.0.113.7"},
		{"invalid hop stops at last valid", map[string]string{"X-Forwarded-For": "X-API-Key:victim"}, "10.1.2.3:80", "ip:10.1.2.3"},
		{"trusted peer uses real ip", map[string]string{"X-Real-IP": "203.0.113.8"}, "10.1.2.3:80", "ip:203.0.113.8"},
		{"trusted peer without headers", nil, "10.1.2.3:80", "ip:10.1.2.3"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/", nil)
			req.RemoteAddr = tt.remote
			for k, v := range tt.headers {
				req.Header.Set(k, v)
			}
			assert.Equal(t, tt.expected, keyFn(req))
		})
	}
}

func TestParsePrefixes(t *testing.T) {
	prefixes, err := ParsePrefixes([]string{"10.0.0.0/8", " 192.0.2.1 ", "", "2001:db8::/32"})
	require.NoError(t, err)
	require.Len(t, prefixes, 3)
	assert.Equal(t, "192.0.2.1/32", prefixes[1].String())

	_, err = ParsePrefixes([]string{"not-an-ip"})
	assert.Error(t, err)
}

func TestHeaderKey(t *testing.T) {
	keyFn := HeaderKey("x-api-key", nil)

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.RemoteAddr = "198.51.100.3:5555"
	assert.Equal(t, "ip:198.51.100.3", keyFn(req))

	req.Header.Set("X-API-Key", "abc123")
	assert.Equal(t, "header:X-Api-Key=abc123", keyFn(req))
}

func serve(handler http.Handler, remote string, headers map[string]string) int {
	req := httptest.NewRequest(http.MethodGet, "/ping", nil)
	req.RemoteAddr = remote
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	return rec.Code
}

func TestMiddleware_RotatingForwardedForDoesNotBypass(t *testing.T) {
	clk := limiter.NewManualClock(epoch)
	handler := New(newLimiter(t, 1, clk), WithClock(clk))(okHandler())

	codes := make([]int, 0, 5)
	for i := 0; i < 5; i++ {
		codes = append(codes, serve(handler, "192.0.2.10:4000", map[string]string{
			"X-Forwarded-For": fmt.Sprintf("203.0.113.%d", i),
		}))
	}

	assert.Equal(t, []int{200, 429, 429, 429, 429}, codes)
}

func TestMiddleware_TrustedProxies(t *testing.T) {
	clk := limiter.NewManualClock(epoch)
	trusted, err := ParsePrefixes([]string{"10.0.0.1"})
	require.NoError(t, err)
	handler := New(newLimiter(t, 1, clk), WithClock(clk), WithTrustedProxies(trusted...))(okHandler())

	assert.Equal(t, http.StatusOK, serve(handler, "10.0.0.1:80", map[string]string{"X-Forwarded-For": "203.0.113.1"}))
	assert.Equal(t, http.StatusOK, serve(handler, "10.0.0.1:80", map[string]string{"X-Forwarded-For": "203.0.113.2"}))
	assert.Equal(t, http.StatusTooManyRequests, serve(handler, "10.0.0.1:80", map[string]string{"X-Forwarded-For": "203.0.113.1"}))
	// A direct client cannot claim another address.
	assert.Equal(t, http.StatusOK, serve(handler, "198.51.100.5:80", map[string]string{"X-Forwarded-For": "203.0.113.2"}))
}

func TestMiddleware_ForwardedForCannotSpendHeaderQuota(t *testing.T) {
	clk := limiter.NewManualClock(epoch)
	trusted, err := ParsePrefixes([]string{"192.0.2.0/24"})
	require.NoError(t, err)
	keyFn := HeaderKey("X-API-Key", TrustedClientIP(trusted...))
	handler := New(newLimiter(t, 1, clk), WithClock(clk), WithKeyFunc(keyFn))(okHandler())

	for _, xff := range []string{"X-API-Key:victim", "header:X-Api-Key=victim", "X-Api-Key=victim"} {
		serve(handler, "192.0.2.10:4000", map[string]string{"X-Forwarded-For": xff})
	}

	code := serve(handler, "198.51.100.20:4000", map[string]string{"X-API-Key": "victim"})
	assert.Equal(t, http.StatusOK, code, "the key holder's quota must be untouched")
}
