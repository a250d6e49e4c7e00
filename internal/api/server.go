// Package api exposes clustering runs over HTTP.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/sells-group/geocluster/internal/config"
	"github.com/sells-group/geocluster/internal/store"
	"github.com/sells-group/geocluster/pkg/geokmeans"
)

// Server serves the clustering API.
type Server struct {
	store   store.Store
	cluster config.ClusterConfig
	server  config.ServerConfig
	limiter *rate.Limiter
	log     *zap.Logger
}

// Option configures a Server.
type Option func(*Server)

// WithLogger sets the logger. Defaults to zap.L().
func WithLogger(l *zap.Logger) Option {
	return func(s *Server) { s.log = l }
}

// WithLimiter replaces the limiter built from ServerConfig.RateLimit.
func WithLimiter(l *rate.Limiter) Option {
	return func(s *Server) { s.limiter = l }
}

// NewServer creates a Server. A non-positive RateLimit disables rate limiting.
func NewServer(st store.Store, cfg *config.Config, opts ...Option) *Server {
	s := &Server{
		store:   st,
		cluster: cfg.Cluster,
		server:  cfg.Server,
		log:     zap.L(),
	}
	if cfg.Server.RateLimit > 0 {
		burst := int(cfg.Server.RateLimit)
		if burst < 1 {
			burst = 1
		}
		s.limiter = rate.NewLimiter(rate.Limit(cfg.Server.RateLimit), burst)
	} else {
		s.limiter = rate.NewLimiter(rate.Inf, 0)
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Handler returns the routed HTTP handler.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(s.requestLogger)
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: s.server.CORSOrigins,
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodDelete, http.MethodOptions},
		AllowedHeaders: []string{"Accept", "Content-Type"},
		MaxAge:         300,
	}))

	r.Get("/health", s.handleHealth)

	r.Route("/v1", func(r chi.Router) {
		r.With(s.rateLimit).Post("/cluster", s.handleCluster)
		r.Get("/runs", s.handleListRuns)
		r.Route("/runs/{id}", func(r chi.Router) {
			r.Get("/", s.handleGetRun)
			r.Delete("/", s.handleDeleteRun)
			r.Post("/predict", s.handlePredict)
			r.Post("/transform", s.handleTransform)
		})
	})
	return r
}

func (s *Server) rateLimit(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !s.limiter.Allow() {
			writeError(w, http.StatusTooManyRequests, "rate limit exceeded")
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (s *Server) requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		next.ServeHTTP(ww, r)
		s.log.Debug("api: request",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Int("status", ww.Status()),
			zap.Duration("elapsed", time.Since(start)),
			zap.String("request_id", middleware.GetReqID(r.Context())),
		)
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

// StatusClientClosedRequest is reported when the client went away before the
// response was ready.
const StatusClientClosedRequest = 499

// statusFor maps an error to its HTTP status.
func statusFor(err error) int {
	switch {
	case geokmeans.IsInvalidInput(err):
		return http.StatusBadRequest
	case errors.Is(err, store.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	case errors.Is(err, context.Canceled):
		return StatusClientClosedRequest
	default:
		return http.StatusInternalServerError
	}
}
