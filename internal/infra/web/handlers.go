package web

import (
	"encoding/json"
	"net/http"
	"time"

	"storyloom/internal/domain/ports/repository"
	"storyloom/internal/infra/metrics"
	"storyloom/internal/infra/redis"
)

const (
	retryRateLimit  = 5
	retryRateWindow = time.Minute
)

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	counts, err := s.statsUC.JobCounts(r.Context())
	if err != nil {
		s.log.Error().Err(err).Msg("stats query failed")
		http.Error(w, "Failed to get job counts", http.StatusInternalServerError)
		return
	}

	response := struct {
		Jobs map[string]map[string]int `json:"jobs"`
	}{
		Jobs: counts,
	}
	writeJSON(w, http.StatusOK, response)
}

// The expected JSON request body for the retry endpoint. Exactly one
// selector must be set.
type retryRequest struct {
	JobID     string `json:"job_id"`
	UserID    string `json:"user_id"`
	ChapterID string `json:"chapter_id"`
}

func (req *retryRequest) filter() (repository.FailedJobFilter, bool) {
	set := 0
	for _, v := range []string{req.JobID, req.UserID, req.ChapterID} {
		if v != "" {
			set++
		}
	}
	if set != 1 {
		return repository.FailedJobFilter{}, false
	}
	return repository.FailedJobFilter{
		JobID:     req.JobID,
		UserID:    req.UserID,
		ChapterID: req.ChapterID,
	}, true
}

// handleRetry drives the failed-job recovery flow. Responses carry only the
// report's human-readable reasons; internal errors are never echoed back.
func (s *Server) handleRetry(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var req retryRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		metrics.IncRetryRequest("bad_request")
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}
	filter, ok := req.filter()
	if !ok {
		metrics.IncRetryRequest("bad_request")
		http.Error(w, "Exactly one of job_id, user_id or chapter_id must be set", http.StatusBadRequest)
		return
	}

	requester := "admin"
	if claims := claimsFrom(r); claims != nil && claims.Subject != "" {
		requester = claims.Subject
	}
	allowed, err := s.limiter.Allow(ctx, redis.RetryKey(requester), retryRateLimit, retryRateWindow)
	if err != nil {
		// A limiter outage must not lock operators out of recovery.
		s.log.Warn().Err(err).Msg("rate limiter unavailable, allowing request")
		allowed = true
	}
	if !allowed {
		metrics.IncRetryRateLimited()
		http.Error(w, "Too many retry requests", http.StatusTooManyRequests)
		return
	}

	report, err := s.retryUC.RetryFailed(ctx, filter)
	if err != nil {
		metrics.IncRetryRequest("error")
		s.log.Error().Err(err).Msg("retry flow failed")
		http.Error(w, "Failed to retry jobs", http.StatusInternalServerError)
		return
	}

	metrics.IncRetryRequest("ok")
	writeJSON(w, http.StatusOK, report)
}
