// Package httplimit puts a limiter.RateLimiter in front of an http.Handler.
package httplimit

import (
	"fmt"
	"log/slog"
	"math"
	"net"
	"net/http"
	"net/netip"
	"strconv"
	"strings"
	"time"

	"github.com/manenim/window-limiter/pkg/limiter"
)

const rateLimitExceededMessage = "you have reached the maximum number of requests allowed within the current time window"

// KeyFunc derives the rate limit key for a request.
type KeyFunc func(r *http.Request) string

type config struct {
	keyFn  KeyFunc
	logger *slog.Logger
	now    func() time.Time
}

type Option func(*config)

// WithKeyFunc sets how requests are keyed (default: ClientIP).
// It replaces any key function set by WithTrustedProxies.
func WithKeyFunc(fn KeyFunc) Option {
	return func(c *config) {
		if fn != nil {
			c.keyFn = fn
		}
	}
}

// WithTrustedProxies keys requests with TrustedClientIP(trusted...), so
// forwarding headers are honoured only from these peers.
func WithTrustedProxies(trusted ...netip.Prefix) Option {
	return func(c *config) {
		c.keyFn = TrustedClientIP(trusted...)
	}
}

// WithLogger sets where limiter errors are reported (default: slog.Default).
func WithLogger(l *slog.Logger) Option {
	return func(c *config) {
		if l != nil {
			c.logger = l
		}
	}
}

// WithClock sets the time source used to compute Retry-After. It should be
// the same clock the limiter uses.
func WithClock(clk limiter.Clock) Option {
	return func(c *config) {
		if clk != nil {
			c.now = clk.Now
		}
	}
}

// New returns middleware that consumes one unit per request and answers 429
// once the key's window is exhausted. Limiter errors answer 500.
func New(l limiter.RateLimiter, opts ...Option) func(http.Handler) http.Handler {
	cfg := &config{
		keyFn:  ClientIP,
		logger: slog.Default(),
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(cfg)
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if l == nil {
				next.ServeHTTP(w, r)
				return
			}

			key := cfg.keyFn(r)
			if key == "" {
				key = limiter.AnonymousKey
			}

			dec, err := l.TryConsume(key)
			if err != nil {
				cfg.logger.Error("rate limiter failed", slog.String("key", key), slog.Any("error", err))
				http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
				return
			}

			writeHeaders(w, dec)
			if !dec.Allowed {
				writeTooManyRequests(w, dec.RetryAfter(cfg.now()))
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

func writeHeaders(w http.ResponseWriter, dec limiter.Decision) {
	h := w.Header()
	h.Set("X-RateLimit-Limit", strconv.Itoa(dec.Limit))
	h.Set("X-RateLimit-Remaining", strconv.Itoa(dec.Remaining))
	if !dec.Allowed {
		h.Set("X-RateLimit-Reset", strconv.FormatInt(dec.RetryAt.Unix(), 10))
	}
}

func writeTooManyRequests(w http.ResponseWriter, wait time.Duration) {
	w.Header().Set("Retry-After", strconv.Itoa(int(math.Ceil(wait.Seconds()))))
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusTooManyRequests)
	_, _ = w.Write([]byte(rateLimitExceededMessage))
}

// ClientIP keys requests by the host part of RemoteAddr, in the "ip"
// namespace. Forwarding headers are ignored; use TrustedClientIP behind a
// proxy.
func ClientIP(r *http.Request) string {
	return ipKey(remoteHost(r))
}

// TrustedClientIP keys requests like ClientIP, except that when the peer is
// one of the trusted proxies the client address is taken from
// X-Forwarded-For (walked right to left, skipping trusted hops) or, failing
// that, X-Real-IP. Hops that are not valid IP addresses end the walk.
func TrustedClientIP(trusted ...netip.Prefix) KeyFunc {
	if len(trusted) == 0 {
		return ClientIP
	}
	isTrusted := func(addr netip.Addr) bool {
		for _, p := range trusted {
			if p.Contains(addr) {
				return true
			}
		}
		return false
	}

	return func(r *http.Request) string {
		host := remoteHost(r)
		addr, err := netip.ParseAddr(host)
		if err != nil || !isTrusted(addr.Unmap()) {
			return ipKey(host)
		}

		client := addr
		if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
			hops := strings.Split(xff, ",")
			for i := len(hops) - 1; i >= 0; i-- {
				hop, err := netip.ParseAddr(strings.TrimSpace(hops[i]))
				if err != nil {
					break
				}
				client = hop
				if !isTrusted(hop.Unmap()) {
					break
				}
			}
			return ipKey(client.Unmap().String())
		}

		if realIP, err := netip.ParseAddr(strings.TrimSpace(r.Header.Get("X-Real-IP"))); err == nil {
			client = realIP
		}
		return ipKey(client.Unmap().String())
	}
}

// ParsePrefixes parses CIDR ranges or bare addresses (taken as single-host
// ranges) for TrustedClientIP.
func ParsePrefixes(values []string) ([]netip.Prefix, error) {
	prefixes := make([]netip.Prefix, 0, len(values))
	for _, v := range values {
		v = strings.TrimSpace(v)
		if v == "" {
			continue
		}
		if strings.Contains(v, "/") {
			p, err := netip.ParsePrefix(v)
			if err != nil {
				return nil, fmt.Errorf("invalid trusted proxy %q: %w", v, err)
			}
			prefixes = append(prefixes, p.Masked())
			continue
		}
		addr, err := netip.ParseAddr(v)
		if err != nil {
			return nil, fmt.Errorf("invalid trusted proxy %q: %w", v, err)
		}
		addr = addr.Unmap()
		prefixes = append(prefixes, netip.PrefixFrom(addr, addr.BitLen()))
	}
	return prefixes, nil
}

// HeaderKey keys requests by the named header (for example an API token) in
// the "header" namespace, falling back to fallback (ClientIP when nil) when
// the header is absent. Header keys never collide with IP keys.
func HeaderKey(name string, fallback KeyFunc) KeyFunc {
	if fallback == nil {
		fallback = ClientIP
	}
	name = http.CanonicalHeaderKey(name)
	return func(r *http.Request) string {
		if v := strings.TrimSpace(r.Header.Get(name)); v != "" {
			return limiter.Identity{Namespace: "header", Key: name + "=" + v}.String()
		}
		return fallback(r)
	}
}

func remoteHost(r *http.Request) string {
	host, _, err := net.SplitHostPort(strings.TrimSpace(r.RemoteAddr))
	if err != nil {
		return strings.TrimSpace(r.RemoteAddr)
	}
	return host
}

func ipKey(host string) string {
	return limiter.Identity{Namespace: "ip", Key: host}.String()
}
