// Package http is the engine's HTTP surface: ingest and status APIs, system
// lifecycle controls, health, metrics and the websocket event stream.
package http

import (
	"context"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"github.com/rs/zerolog/log"
	"golang.org/x/time/rate"

	"github.com/motorwatch/motorwatch/internal/events"
	"github.com/motorwatch/motorwatch/internal/ingest"
	"github.com/motorwatch/motorwatch/internal/lifecycle"
	"github.com/motorwatch/motorwatch/internal/store"
	"github.com/motorwatch/motorwatch/internal/telemetry"
)

type ctxKey string

const requestIDKey ctxKey = "request_id"

// Config holds the server settings.
type Config struct {
	Addr            string
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	ShutdownTimeout time.Duration
	RateLimit       float64
	RateBurst       int
}

// Server wires the HTTP API to the engine.
type Server struct {
	cfg        Config
	router     *mux.Router
	server     *http.Server
	facade     *ingest.Facade
	controller *lifecycle.Controller
	writer     store.PointWriter
	hub        *events.Hub
	eventLog   *events.Log
	metrics    *telemetry.Metrics
	limiter    *rate.Limiter
}

// New builds the server and its routes.
func New(cfg Config, facade *ingest.Facade, controller *lifecycle.Controller, writer store.PointWriter, hub *events.Hub, eventLog *events.Log, metrics *telemetry.Metrics) *Server {
	if cfg.RateLimit <= 0 {
		cfg.RateLimit = 200
	}
	if cfg.RateBurst <= 0 {
		cfg.RateBurst = int(cfg.RateLimit) * 2
	}

	s := &Server{
		cfg:        cfg,
		router:     mux.NewRouter(),
		facade:     facade,
		controller: controller,
		writer:     writer,
		hub:        hub,
		eventLog:   eventLog,
		metrics:    metrics,
		limiter:    rate.NewLimiter(rate.Limit(cfg.RateLimit), cfg.RateBurst),
	}
	s.setupRoutes()
	s.server = &http.Server{
		Addr:         cfg.Addr,
		Handler:      s.router,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
		IdleTimeout:  60 * time.Second,
	}
	return s
}

func (s *Server) setupRoutes() {
	s.router.Use(s.requestIDMiddleware)
	s.router.Use(s.loggingMiddleware)
	s.router.Use(s.rateLimitMiddleware)

	api := s.router.PathPrefix("/api/v1").Subrouter()
	api.Use(jsonContentTypeMiddleware)
	api.HandleFunc("/data/ingest", s.handleIngest).Methods("POST")
	api.HandleFunc("/data/history/{asset_id}", s.handleHistory).Methods("GET")
	api.HandleFunc("/status/{asset_id}", s.handleStatus).Methods("GET")
	api.HandleFunc("/baseline/build", s.handleBuildBaseline).Methods("POST")
	api.HandleFunc("/events", s.handleEvents).Methods("GET")

	system := s.router.PathPrefix("/system").Subrouter()
	system.Use(jsonContentTypeMiddleware)
	system.HandleFunc("/state", s.handleSystemState).Methods("GET")
	system.HandleFunc("/calibrate", s.handleCalibrate).Methods("POST")
	system.HandleFunc("/inject-fault", s.handleInjectFault).Methods("POST")
	system.HandleFunc("/reset", s.handleReset).Methods("POST")
	system.HandleFunc("/stop", s.handleStop).Methods("POST")
	system.HandleFunc("/purge", s.handlePurge).Methods("POST")

	s.router.HandleFunc("/healthz", s.handleHealthz).Methods("GET")
	s.router.Handle("/metrics", s.metrics.Handler()).Methods("GET")
	s.router.HandleFunc("/events/ws", s.handleEventsWS).Methods("GET")

	s.router.NotFoundHandler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "route not found"})
	})
}

// Handler exposes the router for tests.
func (s *Server) Handler() http.Handler { return s.router }

// Start serves until the listener fails or Shutdown is called.
func (s *Server) Start() error {
	log.Info().Str("addr", s.cfg.Addr).Msg("http server listening")
	return s.server.ListenAndServe()
}

// Shutdown drains in-flight requests and closes the websocket hub.
func (s *Server) Shutdown(ctx context.Context) error {
	log.Info().Msg("http server shutting down")
	s.hub.Close()
	return s.server.Shutdown(ctx)
}

func (s *Server) requestIDMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requestID := uuid.NewString()[:8]
		ctx := context.WithValue(r.Context(), requestIDKey, requestID)
		w.Header().Set("X-Request-ID", requestID)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func (s *Server) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		wrapper := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(wrapper, r)

		log.Debug().
			Str("request_id", requestIDFrom(r.Context())).
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Int("status", wrapper.status).
			Dur("duration", time.Since(start)).
			Str("remote", r.RemoteAddr).
			Msg("http request")
	})
}

func (s *Server) rateLimitMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !s.limiter.Allow() {
			w.Header().Set("Content-Type", "application/json")
			writeJSON(w, http.StatusTooManyRequests, map[string]string{"error": "rate limit exceeded"})
			return
		}
		next.ServeHTTP(w, r)
	})
}

func jsonContentTypeMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		next.ServeHTTP(w, r)
	})
}

func requestIDFrom(ctx context.Context) string {
	if v, ok := ctx.Value(requestIDKey).(string); ok {
		return v
	}
	return ""
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}
