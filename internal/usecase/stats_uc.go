package usecase

import (
	"context"

	"github.com/rs/zerolog"

	"storyloom/internal/domain/model"
	"storyloom/internal/domain/ports/repository"
)

// Compile-time check
var _ StatsUseCase = (*statsUC)(nil)

// StatsUseCase serves the read-only aggregate views exposed by the ops
// endpoints.
type StatsUseCase interface {
	// JobCounts returns job counts keyed by status then kind.
	JobCounts(ctx context.Context) (map[string]map[string]int, error)
}

type statsUC struct {
	jobs repository.JobRepository

	log *zerolog.Logger
}

func NewStatsUseCase(jobs repository.JobRepository, logger *zerolog.Logger) *statsUC {
	return &statsUC{jobs: jobs, log: logger}
}

func (s *statsUC) JobCounts(ctx context.Context) (map[string]map[string]int, error) {
	counts, err := s.jobs.CountByStatus(ctx)
	if err != nil {
		return nil, err
	}
	// Terminal-free statuses always appear so dashboards get stable keys.
	for _, status := range []model.JobStatus{model.JobStatusPending, model.JobStatusProcessing} {
		if _, ok := counts[string(status)]; !ok {
			counts[string(status)] = map[string]int{}
		}
	}
	return counts, nil
}
