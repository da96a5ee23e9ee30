package usecase

import (
	"context"
	"errors"
	"fmt"

	"github.com/rs/zerolog"

	"storyloom/internal/domain"
	"storyloom/internal/domain/model"
	"storyloom/internal/domain/ports/repository"
	"storyloom/internal/infra/logging"
	"storyloom/internal/infra/metrics"
)

// Compile-time check
var _ RetryUseCase = (*retryUC)(nil)

// RetryReport enumerates what the retry flow did to each matched job.
type RetryReport struct {
	Retried []string     `json:"retried"`
	Deleted []string     `json:"deleted"`
	Skipped []SkippedJob `json:"skipped"`
}

// SkippedJob carries a human-readable reason, never a stack trace.
type SkippedJob struct {
	JobID  string `json:"job_id"`
	Reason string `json:"reason"`
}

// RetryUseCase is the operator-triggered recovery flow for failed jobs:
// structurally invalid jobs are deleted so they cannot fail forever, valid
// ones are reset to pending.
type RetryUseCase interface {
	RetryFailed(ctx context.Context, f repository.FailedJobFilter) (*RetryReport, error)
}

type retryUC struct {
	jobs      repository.JobRepository
	chapters  repository.ChapterRepository
	sequences repository.SequenceRepository
	quotes    repository.QuoteRepository

	log *zerolog.Logger
}

func NewRetryUseCase(
	jobs repository.JobRepository,
	chapters repository.ChapterRepository,
	sequences repository.SequenceRepository,
	quotes repository.QuoteRepository,
	logger *zerolog.Logger,
) *retryUC {
	return &retryUC{jobs: jobs, chapters: chapters, sequences: sequences, quotes: quotes, log: logger}
}

func (u *retryUC) RetryFailed(ctx context.Context, f repository.FailedJobFilter) (*RetryReport, error) {
	defer logging.TraceDuration(u.log, "RetryUseCase.RetryFailed")()

	failed, err := u.jobs.ListFailed(ctx, repository.NoTX, f)
	if err != nil {
		return nil, err
	}

	report := &RetryReport{Retried: []string{}, Deleted: []string{}, Skipped: []SkippedJob{}}
	for _, job := range failed {
		reason, verdictErr := u.validate(ctx, job)
		switch {
		case verdictErr != nil:
			// Could not decide; leave the job alone rather than guessing.
			report.Skipped = append(report.Skipped, SkippedJob{JobID: job.ID, Reason: verdictErr.Error()})
			metrics.IncRetryRequest("skipped")

		case reason != "":
			if err := u.jobs.Delete(ctx, repository.NoTX, job.ID); err != nil {
				report.Skipped = append(report.Skipped, SkippedJob{JobID: job.ID, Reason: "delete failed: " + err.Error()})
				metrics.IncRetryRequest("skipped")
				continue
			}
			u.log.Info().Str("job_id", job.ID).Str("reason", reason).Msg("deleted unrecoverable job")
			report.Deleted = append(report.Deleted, job.ID)
			metrics.IncRetryRequest("deleted")

		default:
			job.ResetForRetry()
			if err := u.jobs.Save(ctx, repository.NoTX, job); err != nil {
				report.Skipped = append(report.Skipped, SkippedJob{JobID: job.ID, Reason: "reset failed: " + err.Error()})
				metrics.IncRetryRequest("skipped")
				continue
			}
			u.log.Info().Str("job_id", job.ID).Msg("job reset to pending")
			report.Retried = append(report.Retried, job.ID)
			metrics.IncRetryRequest("retried")
		}
	}
	return report, nil
}

// validate checks a failed job's structural integrity. A non-empty reason
// means the job is unrecoverable and should be deleted; an error means the
// check itself could not complete.
func (u *retryUC) validate(ctx context.Context, job *model.Job) (reason string, err error) {
	switch job.Kind {
	case model.JobKindStory:
		if job.ChapterID == "" {
			return "story job has no chapter reference", nil
		}
		if _, err := u.chapters.FindByID(ctx, repository.NoTX, job.ChapterID); err != nil {
			if errors.Is(err, domain.ErrNotFound) {
				return "target chapter no longer exists", nil
			}
			return "", fmt.Errorf("chapter lookup failed: %w", err)
		}
		if job.SequenceID != "" {
			if _, err := u.sequences.FindByID(ctx, repository.NoTX, job.SequenceID); err != nil {
				if errors.Is(err, domain.ErrNotFound) {
					return "sequence no longer exists", nil
				}
				return "", fmt.Errorf("sequence lookup failed: %w", err)
			}
		}
		active, err := u.jobs.HasActiveForChapter(ctx, repository.NoTX, job.ChapterID, job.ID)
		if err != nil {
			return "", fmt.Errorf("duplicate check failed: %w", err)
		}
		if active {
			return "another active job already targets this chapter", nil
		}
		return "", nil

	case model.JobKindVideo:
		if job.QuoteID == "" {
			return "video job has no quote reference", nil
		}
		if _, err := u.quotes.FindByID(ctx, repository.NoTX, job.QuoteID); err != nil {
			if errors.Is(err, domain.ErrNotFound) {
				return "quote no longer exists", nil
			}
			return "", fmt.Errorf("quote lookup failed: %w", err)
		}
		return "", nil

	default:
		return fmt.Sprintf("unknown job kind %q", job.Kind), nil
	}
}
