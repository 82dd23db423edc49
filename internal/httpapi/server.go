// Package httpapi is the HTTP/JSON surface of §6.1: plain net/http,
// following the teacher daemon's own mux.HandleFunc/withJSON shape, with
// an IP-allowlist gate and a per-peer rate limiter layered on top.
package httpapi

import (
	"net/http"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/brenik/zerocache/internal/appstate"
)

// Server owns the process-wide AppState and exposes an http.Handler.
type Server struct {
	App *appstate.AppState
	rl  *rateLimiters
}

// NewServer builds the routed mux for the Collection Engine's external
// interface (§6.1).
func NewServer(app *appstate.AppState) *Server {
	s := &Server{App: app, rl: newRateLimiters()}
	return s
}

// Handler returns the fully wrapped http.Handler: JSON content-type,
// request counting, then per-route gating.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/data/", s.withDataGates(s.handleData))
	mux.HandleFunc("/purge", s.withAdminGate(s.handlePurge))
	mux.HandleFunc("/compact", s.withAdminGate(s.handleCompact))
	mux.HandleFunc("/trees", s.withRateLimit(s.withAdminGate(s.handleTrees)))
	mux.HandleFunc("/settings", s.withRateLimitOnGet(s.withAdminGate(s.handleSettings)))
	mux.HandleFunc("/status", s.withRateLimit(s.withAdminGate(s.handleStatus)))
	return s.withRequestID(withJSON(s.withRequestCount(mux)))
}

// withRequestID tags each request with a fresh id, echoed back in a
// response header and attached to every log line the handler emits for
// it — ambient tracing texture, not a spec concept (SPEC_FULL.md §B).
func (s *Server) withRequestID(h http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := uuid.NewString()
		w.Header().Set("X-Request-Id", id)
		s.logger().Debug("request received", zap.String("request_id", id), zap.String("method", r.Method), zap.String("path", r.URL.Path))
		h.ServeHTTP(w, r)
	})
}

func withJSON(h http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json; charset=utf-8")
		h.ServeHTTP(w, r)
	})
}

func (s *Server) withRequestCount(h http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		s.App.CountRequest()
		h.ServeHTTP(w, r)
	})
}

func (s *Server) logger() *zap.Logger { return s.App.Log }
