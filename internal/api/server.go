// Package api serves the memwall HTTP surface: REST endpoints for the
// scenario catalog and run history, a websocket that drives one run per
// connection, and server-sent events for passive observers.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/cors"

	"github.com/hugo-lorenzo-mato/memwall/internal/config"
	"github.com/hugo-lorenzo-mato/memwall/internal/events"
	"github.com/hugo-lorenzo-mato/memwall/internal/logging"
	"github.com/hugo-lorenzo-mato/memwall/internal/service"
	"github.com/hugo-lorenzo-mato/memwall/internal/telemetry"
)

// Server provides the HTTP API.
type Server struct {
	router   chi.Router
	launcher *service.Launcher
	configs  service.SnapshotSource
	bus      *events.Bus
	host     *telemetry.HostInfoCollector
	logger   *logging.Logger

	corsOrigins    []string
	requestTimeout time.Duration
	controlTimeout time.Duration
	writeTimeout   time.Duration
	readTimeout    time.Duration
	idleTimeout    time.Duration
}

// ServerOption configures the server.
type ServerOption func(*Server)

// WithLogger sets the server logger.
func WithLogger(logger *logging.Logger) ServerOption {
	return func(s *Server) {
		s.logger = logger
	}
}

// WithCORSOrigins sets the allowed browser origins. "*" allows any.
func WithCORSOrigins(origins []string) ServerOption {
	return func(s *Server) {
		s.corsOrigins = origins
	}
}

// WithHostInfo sets the collector behind /api/v1/system/info.
func WithHostInfo(c *telemetry.HostInfoCollector) ServerOption {
	return func(s *Server) {
		s.host = c
	}
}

// WithControlTimeout bounds the wait for a websocket control message.
func WithControlTimeout(d time.Duration) ServerOption {
	return func(s *Server) {
		s.controlTimeout = d
	}
}

// WithHTTPTimeouts sets the header read and keep-alive idle timeouts.
// Zero keeps the default.
func WithHTTPTimeouts(read, idle time.Duration) ServerOption {
	return func(s *Server) {
		if read > 0 {
			s.readTimeout = read
		}
		if idle > 0 {
			s.idleTimeout = idle
		}
	}
}

// NewServer creates a new API server.
func NewServer(launcher *service.Launcher, configs service.SnapshotSource, bus *events.Bus, opts ...ServerOption) *Server {
	s := &Server{
		launcher:       launcher,
		configs:        configs,
		bus:            bus,
		host:           telemetry.NewHostInfoCollector(),
		logger:         logging.NewNop(),
		corsOrigins:    []string{"*"},
		requestTimeout: 60 * time.Second,
		controlTimeout: 30 * time.Second,
		writeTimeout:   10 * time.Second,
		readTimeout:    10 * time.Second,
		idleTimeout:    2 * time.Minute,
	}
	for _, opt := range opts {
		opt(s)
	}
	s.router = s.setupRouter()
	return s
}

// Handler returns the HTTP handler for the server.
func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) setupRouter() chi.Router {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(s.loggingMiddleware)

	corsHandler := cors.New(cors.Options{
		AllowedOrigins:   s.corsOrigins,
		AllowedMethods:   []string{"GET", "POST", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Content-Type", "X-Requested-With"},
		AllowCredentials: false,
		MaxAge:           300,
	})
	r.Use(corsHandler.Handler)

	r.Get("/health", s.handleHealth)
	r.Get("/ws/analysis", s.handleAnalysisSocket)

	r.Route("/api/v1", func(r chi.Router) {
		// Streams must not inherit the request timeout.
		r.Get("/runs/stream", s.handleRunStream)
		r.Get("/runs/{runID}/events", s.handleRunStream)

		r.Group(func(r chi.Router) {
			r.Use(middleware.Timeout(s.requestTimeout))

			r.Get("/system/info", s.handleSystemInfo)
			r.Get("/scenarios", s.handleListScenarios)
			r.Get("/scenarios/{scenarioID}", s.handleGetScenario)
			r.Post("/scenarios/start", s.handleStartScenario)

			r.Get("/runs", s.handleListRuns)
			r.Get("/runs/active", s.handleActiveRuns)
			r.Get("/runs/{runID}", s.handleGetRun)
			r.Delete("/runs/{runID}", s.handleStopRun)

			r.Get("/tokens", s.handleTokens)
		})
	})

	return r
}

// loggingMiddleware logs HTTP requests.
func (s *Server) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)

		defer func() {
			s.logger.Debug("http request",
				"method", r.Method,
				"path", r.URL.Path,
				"status", ww.Status(),
				"duration", time.Since(start),
				"bytes", ww.BytesWritten(),
				"request_id", middleware.GetReqID(r.Context()),
			)
		}()

		next.ServeHTTP(ww, r)
	})
}

// respondJSON sends a JSON response.
func (s *Server) respondJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if data != nil {
		if err := json.NewEncoder(w).Encode(data); err != nil {
			s.logger.Error("failed to encode response", "error", err)
		}
	}
}

// respondError sends a JSON error response.
func (s *Server) respondError(w http.ResponseWriter, status int, message string) {
	s.respondJSON(w, status, map[string]string{"error": message})
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	s.respondJSON(w, http.StatusOK, map[string]string{
		"status": "ok",
		"time":   time.Now().UTC().Format(time.RFC3339),
	})
}

func (s *Server) snapshot() *config.Snapshot {
	return s.configs.Current()
}

func queryInt(r *http.Request, key string, def int) int {
	v := r.URL.Query().Get(key)
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil || n < 0 {
		return def
	}
	return n
}

// ListenAndServe serves until ctx is cancelled, then shuts down
// gracefully within shutdownTimeout.
func (s *Server) ListenAndServe(ctx context.Context, addr string, shutdownTimeout time.Duration) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("listening on %s: %w", addr, err)
	}
	return s.Serve(ctx, ln, shutdownTimeout)
}

// Serve is ListenAndServe on an existing listener.
func (s *Server) Serve(ctx context.Context, ln net.Listener, shutdownTimeout time.Duration) error {
	srv := &http.Server{
		Handler:           s.router,
		ReadHeaderTimeout: s.readTimeout,
		IdleTimeout:       s.idleTimeout,
		BaseContext:       func(net.Listener) context.Context { return ctx },
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	s.logger.Info("starting API server", "addr", ln.Addr().String())
	if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}
