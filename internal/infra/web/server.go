package web

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/oklog/ulid/v2"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"storyloom/internal/infra/logging"
	"storyloom/internal/infra/metrics"
	"storyloom/internal/infra/redis"
	"storyloom/internal/usecase"
)

type claimsKey struct{}

// Server exposes the ops surface: liveness, Prometheus metrics and the
// JWT-guarded admin API (job stats, failed-job retry).
type Server struct {
	statsUC usecase.StatsUseCase
	retryUC usecase.RetryUseCase
	limiter *redis.RateLimiter
	auth    *AuthManager
	log     *zerolog.Logger

	srv *http.Server
}

func NewServer(
	port int,
	statsUC usecase.StatsUseCase,
	retryUC usecase.RetryUseCase,
	limiter *redis.RateLimiter,
	auth *AuthManager,
	logger *zerolog.Logger,
) *Server {
	sub := logger.With().Str("component", "web").Logger()
	s := &Server{
		statsUC: statsUC,
		retryUC: retryUC,
		limiter: limiter,
		auth:    auth,
		log:     &sub,
	}
	s.srv = &http.Server{
		Addr:              fmt.Sprintf(":%d", port),
		Handler:           s.Router(),
		ReadHeaderTimeout: 5 * time.Second,
	}
	return s
}

// Router builds the route tree. Separated from Start so tests can drive the
// handler directly with httptest.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(s.requestLogger)

	r.Get("/health", s.handleHealth)
	r.Method(http.MethodGet, "/metrics", promhttp.Handler())

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(s.authMiddleware)
		r.Get("/stats", s.handleStats)
		r.Post("/jobs/retry", s.handleRetry)
	})
	return r
}

func (s *Server) Start() error {
	s.log.Info().Str("addr", s.srv.Addr).Msg("ops server listening")
	if err := s.srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

func (s *Server) Shutdown(ctx context.Context) error {
	return s.srv.Shutdown(ctx)
}

// authMiddleware rejects requests without a valid admin token and stashes
// the claims so handlers can attribute the call to an operator.
func (s *Server) authMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		claims, err := s.auth.ParseFromRequest(r)
		if err != nil {
			if r.URL.Path == "/api/v1/jobs/retry" {
				metrics.IncRetryRequest("unauthorized")
			}
			http.Error(w, "Unauthorized", http.StatusUnauthorized)
			return
		}
		ctx := context.WithValue(r.Context(), claimsKey{}, claims)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func claimsFrom(r *http.Request) *AdminClaims {
	claims, _ := r.Context().Value(claimsKey{}).(*AdminClaims)
	return claims
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (rec *statusRecorder) WriteHeader(code int) {
	rec.status = code
	rec.ResponseWriter.WriteHeader(code)
}

func (s *Server) requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		traceID := ulid.Make().String()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r.WithContext(logging.WithTraceID(r.Context(), traceID)))
		s.log.Info().
			Str("trace_id", traceID).
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Int("status", rec.status).
			Dur("duration", time.Since(start)).
			Msg("http request")
	})
}
