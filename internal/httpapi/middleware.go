package httpapi

import (
	"net"
	"net/http"
	"strings"
	"sync"

	"golang.org/x/time/rate"
)

// rateLimiters holds one token bucket per peer IP, keyed lazily and
// rebuilt whenever rate_limit_per_second changes underneath it, the
// adaptation of §6.1's "bucket size = rate_limit_per_second, refill one
// token per 1/rate_limit_per_second seconds" onto golang.org/x/time/rate.
type rateLimiters struct {
	mu       sync.Mutex
	perSec   int
	limiters map[string]*rate.Limiter
}

func newRateLimiters() *rateLimiters {
	return &rateLimiters{limiters: make(map[string]*rate.Limiter)}
}

func (rl *rateLimiters) allow(ip string, perSecond int) bool {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	if perSecond != rl.perSec {
		rl.perSec = perSecond
		rl.limiters = make(map[string]*rate.Limiter)
	}
	lim, ok := rl.limiters[ip]
	if !ok {
		lim = rate.NewLimiter(rate.Limit(perSecond), perSecond)
		rl.limiters[ip] = lim
	}
	return lim.Allow()
}

// peerIP extracts the remote address's IP, stripping the port net/http
// leaves attached to RemoteAddr.
func peerIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

// ipAllowed reports whether ip matches any entry of allowed, where an
// entry may carry a single leading or trailing `*` glob anchor.
func ipAllowed(ip string, allowed []string) bool {
	for _, pattern := range allowed {
		if matchGlob(pattern, ip) {
			return true
		}
	}
	return false
}

func matchGlob(pattern, ip string) bool {
	switch {
	case pattern == ip:
		return true
	case strings.HasPrefix(pattern, "*"):
		return strings.HasSuffix(ip, strings.TrimPrefix(pattern, "*"))
	case strings.HasSuffix(pattern, "*"):
		return strings.HasPrefix(ip, strings.TrimSuffix(pattern, "*"))
	default:
		return false
	}
}

func denyForbidden(w http.ResponseWriter, ip string) {
	writeError(w, http.StatusForbidden, map[string]any{"error": "ip not allowed", "your_ip": ip})
}

// withAdminGate enforces the IP allowlist unconditionally, for the admin
// routes (§6.1: /purge, /compact, /trees, /settings, /status).
func (s *Server) withAdminGate(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ip := peerIP(r)
		if !ipAllowed(ip, s.App.Settings.Snapshot().AllowedIPs) {
			denyForbidden(w, ip)
			return
		}
		next(w, r)
	}
}

// withRateLimit applies the peer-IP token bucket unconditionally.
func (s *Server) withRateLimit(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		perSecond := s.App.Settings.Snapshot().RateLimitPerSecond
		if !s.rl.allow(peerIP(r), perSecond) {
			writeError(w, http.StatusTooManyRequests, map[string]any{"error": "rate limit exceeded"})
			return
		}
		next(w, r)
	}
}

// withRateLimitOnGet rate-limits only GET requests, used for /settings
// where PUT is a mutating admin call instead (§6.1).
func (s *Server) withRateLimitOnGet(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodGet {
			perSecond := s.App.Settings.Snapshot().RateLimitPerSecond
			if !s.rl.allow(peerIP(r), perSecond) {
				writeError(w, http.StatusTooManyRequests, map[string]any{"error": "rate limit exceeded"})
				return
			}
		}
		next(w, r)
	}
}

// withDataGates applies §6.1's split rule for /data/{key}: GET is rate
// limited only, every other method (POST, DELETE) is IP-gated as a
// mutating call.
func (s *Server) withDataGates(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodGet {
			perSecond := s.App.Settings.Snapshot().RateLimitPerSecond
			if !s.rl.allow(peerIP(r), perSecond) {
				writeError(w, http.StatusTooManyRequests, map[string]any{"error": "rate limit exceeded"})
				return
			}
			next(w, r)
			return
		}
		ip := peerIP(r)
		if !ipAllowed(ip, s.App.Settings.Snapshot().AllowedIPs) {
			denyForbidden(w, ip)
			return
		}
		next(w, r)
	}
}
