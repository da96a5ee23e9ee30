package repository

import (
	"context"

	"storyloom/internal/domain/model"
)

// FailedJobFilter selects failed jobs for the administrative retry flow.
// Exactly one field should be set.
type FailedJobFilter struct {
	JobID     string
	UserID    string
	ChapterID string
}

type JobRepository interface {
	Save(ctx context.Context, tx Tx, job *model.Job) error
	FindByID(ctx context.Context, tx Tx, id string) (*model.Job, error)
	Delete(ctx context.Context, tx Tx, id string) error

	// ListPending returns up to limit pending jobs, oldest first.
	ListPending(ctx context.Context, limit int) ([]*model.Job, error)

	// Claim performs the atomic conditional update
	// "set status=processing where id=$1 and status=pending" and reports
	// whether this caller won. Zero rows affected is the expected outcome
	// of a lost race, not an error.
	Claim(ctx context.Context, id string) (bool, error)

	// UpdateProgress advances progress and the step label. Progress never
	// moves backwards while a job is processing.
	UpdateProgress(ctx context.Context, tx Tx, id string, progress int, step string) error

	// UpdateBulletProgress persists the resumable plot point counter.
	UpdateBulletProgress(ctx context.Context, tx Tx, id string, bullet int) error

	MarkCompleted(ctx context.Context, tx Tx, id string) error
	MarkFailed(ctx context.Context, tx Tx, id string, errMsg string) error

	ListFailed(ctx context.Context, tx Tx, f FailedJobFilter) ([]*model.Job, error)

	// HasActiveForChapter reports whether a pending or processing job other
	// than excludeID targets the chapter.
	HasActiveForChapter(ctx context.Context, tx Tx, chapterID, excludeID string) (bool, error)

	// CountByStatus returns job counts keyed by status then kind.
	CountByStatus(ctx context.Context) (map[string]map[string]int, error)
}
