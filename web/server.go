// Package web provides the HTTP server: service endpoints, CORS, metrics,
// optional basic auth, and the PLC API mounted under its prefix.
package web

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"log/slog"
	"net"
	"net/http"
	"slices"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"signaltap/api"
	"signaltap/config"
	"signaltap/logging"
	"signaltap/metrics"
	"signaltap/plcman"
)

// Version is reported by the root endpoint.
const Version = "1.0.0"

// Server is the HTTP server for the SignalTap API.
type Server struct {
	config  *config.Config
	manager *plcman.Manager
	log     *slog.Logger

	server   *http.Server
	listener net.Listener
	router   chi.Router
	running  bool
	mu       sync.RWMutex
}

// NewServer creates a server. Call Start to listen.
func NewServer(cfg *config.Config, manager *plcman.Manager, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	s := &Server{
		config:  cfg,
		manager: manager,
		log:     logger,
	}
	s.setupRoutes()
	return s
}

// setupRoutes configures the chi router with all routes.
func (s *Server) setupRoutes() {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Compress(5))
	if s.config.Metrics.Enabled {
		r.Use(metrics.Instrument)
	}
	r.Use(corsMiddleware(s.config.Server.CORSOrigins))

	r.Get("/", handleRoot)
	r.Get("/health", handleHealth)
	if s.config.Metrics.Enabled {
		r.Method(http.MethodGet, s.config.Metrics.Path, metrics.Handler())
	}

	apiRouter := api.NewRouter(api.Options{
		Manager:     s.manager,
		DefaultSlot: s.config.PLC.DefaultSlot,
		MaxTimeout:  s.config.PLCMaxTimeout(),
		Logger:      s.log,
	})
	r.Route(s.config.Server.APIPrefix, func(r chi.Router) {
		if s.config.Auth.Enabled {
			r.Use(basicAuth(s.config.Auth))
		}
		r.Mount("/", apiRouter)
	})

	s.router = r
}

// Handler returns the root handler.
func (s *Server) Handler() http.Handler {
	return s.router
}

// debugLogWriter adapts logging.DebugLog to an io.Writer for use with log.Logger.
type debugLogWriter string

func (tag debugLogWriter) Write(p []byte) (n int, err error) {
	logging.DebugLog(string(tag), "%s", string(p))
	return len(p), nil
}

var _ io.Writer = debugLogWriter("")

// corsMiddleware adds CORS headers. "*" in origins allows any origin.
// Preflight requests are answered directly.
func corsMiddleware(origins []string) func(http.Handler) http.Handler {
	allowAll := len(origins) == 0 || slices.Contains(origins, "*")

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			origin := r.Header.Get("Origin")
			switch {
			case allowAll:
				w.Header().Set("Access-Control-Allow-Origin", "*")
			case origin != "" && slices.Contains(origins, origin):
				w.Header().Set("Access-Control-Allow-Origin", origin)
				w.Header().Add("Vary", "Origin")
			}
			w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, PATCH, DELETE, OPTIONS")
			if h := r.Header.Get("Access-Control-Request-Headers"); h != "" {
				w.Header().Set("Access-Control-Allow-Headers", h)
			} else {
				w.Header().Set("Access-Control-Allow-Headers", "*")
			}

			if r.Method == http.MethodOptions {
				w.WriteHeader(http.StatusOK)
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func handleRoot(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"message":     "Welcome to SignalTap API",
		"version":     Version,
		"description": "PLC Tag Management System",
	})
}

func handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"status":  "healthy",
		"service": "SignalTap API",
	})
}

// Start listens on the configured address and serves in the background.
func (s *Server) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.running {
		return nil
	}

	ln, err := net.Listen("tcp", s.config.Server.Addr())
	if err != nil {
		return fmt.Errorf("listen %s: %w", s.config.Server.Addr(), err)
	}

	readHeaderTimeout := s.config.Server.ReadHeaderTimeout
	if readHeaderTimeout <= 0 {
		readHeaderTimeout = 10 * time.Second
	}
	srv := &http.Server{
		Handler:           s.router,
		ReadHeaderTimeout: readHeaderTimeout,
		ErrorLog:          log.New(debugLogWriter("http"), "", 0),
	}
	s.server = srv
	s.listener = ln

	go func() {
		if err := srv.Serve(ln); err != http.ErrServerClosed {
			s.log.Error("http server stopped", "error", err)
			s.mu.Lock()
			s.running = false
			s.mu.Unlock()
		}
	}()

	s.running = true
	s.log.Info("http server listening", "addr", ln.Addr().String(), "api_prefix", s.config.Server.APIPrefix)
	return nil
}

// Stop halts the HTTP server gracefully.
func (s *Server) Stop() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.running || s.server == nil {
		return nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	err := s.server.Shutdown(ctx)
	s.running = false
	s.server = nil
	s.listener = nil
	return err
}

// IsRunning returns whether the server is currently running.
func (s *Server) IsRunning() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.running
}

// Address returns the server URL, using the bound port once started.
func (s *Server) Address() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.listener != nil {
		return "http://" + s.listener.Addr().String()
	}
	return "http://" + s.config.Server.Addr()
}
