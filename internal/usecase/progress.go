package usecase

import (
	"context"

	"github.com/rs/zerolog"

	"storyloom/internal/domain/ports/repository"
)

// ProgressSink receives progress updates as a pipeline stage advances. The
// reported value is an absolute percentage for the whole job; sinks must
// treat it as monotonic and ignore regressions.
type ProgressSink interface {
	ReportProgress(ctx context.Context, jobID string, percent int, step string)
	ReportBullet(ctx context.Context, jobID string, bulletIndex int)
}

// Compile-time check
var _ ProgressSink = (*jobProgressSink)(nil)

// jobProgressSink persists progress straight onto the job row. Write failures
// are logged and swallowed: losing a progress update must never abort the
// generation that produced it.
type jobProgressSink struct {
	jobs repository.JobRepository
	log  *zerolog.Logger
}

func NewJobProgressSink(jobs repository.JobRepository, logger *zerolog.Logger) *jobProgressSink {
	return &jobProgressSink{jobs: jobs, log: logger}
}

func (s *jobProgressSink) ReportProgress(ctx context.Context, jobID string, percent int, step string) {
	if err := s.jobs.UpdateProgress(ctx, repository.NoTX, jobID, percent, step); err != nil {
		s.log.Warn().Err(err).Str("job_id", jobID).Int("percent", percent).Msg("failed to persist job progress")
	}
}

func (s *jobProgressSink) ReportBullet(ctx context.Context, jobID string, bulletIndex int) {
	if err := s.jobs.UpdateBulletProgress(ctx, repository.NoTX, jobID, bulletIndex); err != nil {
		// The counter is what makes a crashed chapter resumable, so this is
		// louder than a plain progress miss.
		s.log.Error().Err(err).Str("job_id", jobID).Int("bullet", bulletIndex).Msg("failed to persist bullet counter")
	}
}
