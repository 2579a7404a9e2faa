// Package api serves stored dealer tables and policies over a read-only
// HTTP API.
package api

import (
	"context"
	"encoding/json"
	"net"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"

	"github.com/MJE43/blackjack-policy/internal/store"
)

const defaultRequestTimeout = 30 * time.Second

// Server handles HTTP requests against a store.Store.
type Server struct {
	store        store.Store
	log          zerolog.Logger
	errorHandler *ErrorHandler
	startTime    time.Time
	timeout      time.Duration

	addr       string
	httpServer *http.Server
}

// NewServer builds a server bound to addr. A non-positive timeout uses 30s.
func NewServer(st store.Store, addr string, timeout time.Duration, log zerolog.Logger) *Server {
	if timeout <= 0 {
		timeout = defaultRequestTimeout
	}
	log = log.With().Str("component", "api").Logger()
	return &Server{
		store:        st,
		log:          log,
		errorHandler: NewErrorHandler(log),
		startTime:    time.Now(),
		timeout:      timeout,
		addr:         addr,
	}
}

// Routes sets up the router and its middleware.
func (s *Server) Routes() http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(s.logRequest)
	r.Use(s.errorHandler.RecoveryHandler)
	r.Use(middleware.Timeout(s.timeout))

	r.Get("/health", s.handleHealthCheck)

	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/version", s.handleVersion)
		r.Get("/dealer", s.handleDealer)
		r.Get("/dealer/{upCard}", s.handleDealerRow)
		r.Get("/policy", s.handlePolicy)
		r.Get("/policy.csv", s.handlePolicyCSV)
		r.Get("/policy/lookup", s.handleLookup)
		r.Get("/runs", s.handleRuns)
	})

	return r
}

// Start begins listening in a goroutine. It returns once the socket is bound.
func (s *Server) Start() error {
	s.httpServer = &http.Server{
		Addr:              s.addr,
		Handler:           s.Routes(),
		ReadHeaderTimeout: 10 * time.Second,
		WriteTimeout:      s.timeout + 5*time.Second,
	}

	ln, err := net.Listen("tcp", s.addr)
	if err != nil {
		return err
	}
	s.addr = ln.Addr().String()
	go func() {
		if err := s.httpServer.Serve(ln); err != nil && err != http.ErrServerClosed {
			s.log.Error().Err(err).Msg("serve failed")
		}
	}()
	s.log.Info().Str("op", "api_operation").Str("addr", s.addr).Msg("listening")
	return nil
}

// Addr returns the bound address once Start has returned.
func (s *Server) Addr() string { return s.addr }

// Shutdown gracefully stops the HTTP server.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.httpServer == nil {
		return nil
	}
	return s.httpServer.Shutdown(ctx)
}

func (s *Server) logRequest(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)
		s.log.Debug().
			Str("op", "api_operation").
			Str("request_id", middleware.GetReqID(r.Context())).
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Int("status", ww.Status()).
			Dur("duration", time.Since(start)).
			Msg("request")
	})
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("X-Engine-Version", EngineVersion)
	w.WriteHeader(status)

	if err := json.NewEncoder(w).Encode(data); err != nil {
		s.log.Error().Err(err).Msg("encode response")
	}
}
