// Package server exposes the history operations over HTTP: the
// tenant-facing API under /api/history and the peer protocol at the
// root, sharing one uniform response envelope.
package server

import (
	"context"
	"fmt"
	"log"
	"net"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/udit-pandey/kairon/internal/chathistory"
	"github.com/udit-pandey/kairon/internal/config"
	"github.com/udit-pandey/kairon/internal/history"
)

// Server is the HTTP server for the history API.
type Server struct {
	// mu guards cfg.Port and httpSrv. All other cfg fields are
	// immutable after New and are read without locking; SetPort is
	// the only mutator and must run before serving starts.
	mu      sync.RWMutex
	cfg     config.Config
	facade  *chathistory.Facade
	mux     *http.ServeMux
	httpSrv *http.Server

	// newEngine builds the peer protocol's local engine over this
	// instance's own store; tests substitute it.
	newEngine func() *history.Engine
}

// Option configures a Server.
type Option func(*Server)

// WithEngineFactory overrides how the peer handlers build their
// local engine. Nil is ignored.
func WithEngineFactory(f func() *history.Engine) Option {
	return func(s *Server) {
		if f != nil {
			s.newEngine = f
		}
	}
}

// New creates a new Server.
func New(cfg config.Config, facade *chathistory.Facade, opts ...Option) *Server {
	s := &Server{
		cfg:    cfg,
		facade: facade,
		mux:    http.NewServeMux(),
	}
	s.newEngine = func() *history.Engine {
		return history.NewEngine(cfg.DBPath, cfg.DefaultTenant)
	}
	for _, opt := range opts {
		opt(s)
	}
	s.routes()
	return s
}

func (s *Server) routes() {
	// Peer protocol: this instance's own store, queried by remote
	// proxy clients.
	s.mux.Handle("GET /users", s.withTimeout(s.handlePeerUsers))
	s.mux.Handle("GET /users/{sender}", s.withTimeout(s.handlePeerUserHistory))
	s.mux.Handle("GET /metrics/users", s.withTimeout(s.handlePeerUserMetrics))
	s.mux.Handle("GET /metrics/fallback", s.withTimeout(s.handlePeerFallback))
	s.mux.Handle(
		"GET /metrics/conversation/steps", s.withTimeout(s.handlePeerSteps),
	)
	s.mux.Handle(
		"GET /metrics/conversation/time", s.withTimeout(s.handlePeerTime),
	)

	// Tenant-facing API: endpoint resolution and enrichment via the
	// facade.
	s.mux.Handle("GET /api/history/users", s.withTimeout(s.handleUsers))
	s.mux.Handle(
		"GET /api/history/users/{sender}", s.withTimeout(s.handleUserHistory),
	)
	s.mux.Handle(
		"GET /api/history/metrics/users", s.withTimeout(s.handleUserMetrics),
	)
	s.mux.Handle(
		"GET /api/history/metrics/fallback", s.withTimeout(s.handleFallback),
	)
	s.mux.Handle(
		"GET /api/history/metrics/conversation/steps",
		s.withTimeout(s.handleSteps),
	)
	s.mux.Handle(
		"GET /api/history/metrics/conversation/time",
		s.withTimeout(s.handleTime),
	)
}

// SetPort updates the listen port (for testing). Call before
// ListenAndServe; the rest of the configuration is fixed at New.
func (s *Server) SetPort(port int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cfg.Port = port
}

// Handler returns the http.Handler with middleware applied.
func (s *Server) Handler() http.Handler {
	return corsMiddleware(logMiddleware(s.authMiddleware(s.mux)))
}

// ListenAndServe starts the HTTP server.
func (s *Server) ListenAndServe() error {
	s.mu.RLock()
	addr := fmt.Sprintf("%s:%d", s.cfg.Host, s.cfg.Port)
	s.mu.RUnlock()

	srv := &http.Server{
		Addr:        addr,
		Handler:     s.Handler(),
		ReadTimeout: 10 * time.Second,
		IdleTimeout: 120 * time.Second,
	}
	s.mu.Lock()
	s.httpSrv = srv
	s.mu.Unlock()
	log.Printf("Starting history server at http://%s", addr)
	return srv.ListenAndServe()
}

// Shutdown gracefully shuts down the HTTP server.
func (s *Server) Shutdown(ctx context.Context) error {
	s.mu.RLock()
	srv := s.httpSrv
	s.mu.RUnlock()
	if srv == nil {
		return nil
	}
	return srv.Shutdown(ctx)
}

// FindAvailablePort finds an available port starting from the
// given port, binding to the specified host.
func FindAvailablePort(host string, start int) int {
	for port := start; port < start+100; port++ {
		addr := net.JoinHostPort(host, strconv.Itoa(port))
		ln, err := net.Listen("tcp", addr)
		if err == nil {
			ln.Close()
			return port
		}
	}
	return start
}

func corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set(
			"Access-Control-Allow-Methods", "GET, OPTIONS",
		)
		w.Header().Set(
			"Access-Control-Allow-Headers",
			"Content-Type, Authorization, X-Tenant-ID",
		)
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// tenantOf extracts the tenant id established by the outer identity
// layer, falling back to the instance default.
func (s *Server) tenantOf(r *http.Request) string {
	if t := strings.TrimSpace(r.Header.Get("X-Tenant-ID")); t != "" {
		return t
	}
	return s.cfg.DefaultTenant
}
