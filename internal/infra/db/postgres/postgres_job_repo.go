package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v4"
	"github.com/jackc/pgx/v4/pgxpool"

	"storyloom/internal/domain"
	"storyloom/internal/domain/model"
	"storyloom/internal/domain/ports/repository"
	"storyloom/internal/infra/security"
)

var _ repository.JobRepository = (*JobRepo)(nil)

// JobRepo persists generation jobs. Preference payloads are encrypted at rest;
// the outline snapshot is kept verbatim and validated by the processor on read.
type JobRepo struct {
	pool *pgxpool.Pool
	enc  *security.EncryptionService
}

func NewJobRepo(pool *pgxpool.Pool, enc *security.EncryptionService) *JobRepo {
	return &JobRepo{pool: pool, enc: enc}
}

const jobColumns = `id, kind, status, chapter_id, sequence_id, quote_id, user_id,
  progress, step, last_error, bullet_progress, preferences_enc, outline_snapshot,
  created_at, started_at, completed_at`

func (r *JobRepo) Save(ctx context.Context, tx repository.Tx, job *model.Job) error {
	if job.ID == "" {
		job.ID = uuid.NewString()
	}
	if job.CreatedAt.IsZero() {
		job.CreatedAt = time.Now()
	}

	var prefsEnc *string
	if job.Preferences != nil {
		raw, err := json.Marshal(job.Preferences)
		if err != nil {
			return fmt.Errorf("marshal preferences: %w", err)
		}
		enc, err := r.enc.Encrypt(string(raw))
		if err != nil {
			return fmt.Errorf("encrypt preferences: %w", err)
		}
		prefsEnc = &enc
	}
	var snapshot []byte
	if len(job.OutlineSnapshot) > 0 {
		snapshot = job.OutlineSnapshot
	}

	const q = `
INSERT INTO generation_jobs (id, kind, status, chapter_id, sequence_id, quote_id, user_id,
  progress, step, last_error, bullet_progress, preferences_enc, outline_snapshot,
  created_at, started_at, completed_at)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16)
ON CONFLICT (id) DO UPDATE SET
  status = EXCLUDED.status,
  progress = EXCLUDED.progress,
  step = EXCLUDED.step,
  last_error = EXCLUDED.last_error,
  bullet_progress = EXCLUDED.bullet_progress,
  started_at = EXCLUDED.started_at,
  completed_at = EXCLUDED.completed_at;`

	_, err := execSQL(ctx, r.pool, tx, q,
		job.ID, string(job.Kind), string(job.Status), job.ChapterID, job.SequenceID, job.QuoteID, job.UserID,
		job.Progress, job.Step, job.Error, job.BulletProgress, prefsEnc, snapshot,
		job.CreatedAt, job.StartedAt, job.CompletedAt)
	return err
}

func (r *JobRepo) FindByID(ctx context.Context, tx repository.Tx, id string) (*model.Job, error) {
	row, err := pickRow(ctx, r.pool, tx, `SELECT `+jobColumns+` FROM generation_jobs WHERE id=$1;`, id)
	if err != nil {
		return nil, err
	}
	return r.scanJob(row)
}

func (r *JobRepo) Delete(ctx context.Context, tx repository.Tx, id string) error {
	tag, err := execSQL(ctx, r.pool, tx, `DELETE FROM generation_jobs WHERE id=$1;`, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrNotFound
	}
	return nil
}

func (r *JobRepo) ListPending(ctx context.Context, limit int) ([]*model.Job, error) {
	rows, err := pickRows(ctx, r.pool, nil,
		`SELECT `+jobColumns+` FROM generation_jobs WHERE status='pending' ORDER BY created_at LIMIT $1;`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return r.collectJobs(rows)
}

// Claim is the atomic hand-off between the poller and a worker. Losing the
// race yields (false, nil), not an error.
func (r *JobRepo) Claim(ctx context.Context, id string) (bool, error) {
	const q = `
UPDATE generation_jobs
   SET status='processing', started_at=NOW()
 WHERE id=$1 AND status='pending';`
	tag, err := r.pool.Exec(ctx, q, id)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() == 1, nil
}

func (r *JobRepo) UpdateProgress(ctx context.Context, tx repository.Tx, id string, progress int, step string) error {
	// GREATEST keeps progress monotonic even if stages report out of order.
	const q = `
UPDATE generation_jobs
   SET progress = GREATEST(progress, $2), step = $3
 WHERE id=$1;`
	_, err := execSQL(ctx, r.pool, tx, q, id, progress, step)
	return err
}

func (r *JobRepo) UpdateBulletProgress(ctx context.Context, tx repository.Tx, id string, bullet int) error {
	_, err := execSQL(ctx, r.pool, tx,
		`UPDATE generation_jobs SET bullet_progress=$2 WHERE id=$1;`, id, bullet)
	return err
}

func (r *JobRepo) MarkCompleted(ctx context.Context, tx repository.Tx, id string) error {
	const q = `
UPDATE generation_jobs
   SET status='completed', progress=100, last_error='', completed_at=NOW()
 WHERE id=$1;`
	_, err := execSQL(ctx, r.pool, tx, q, id)
	return err
}

func (r *JobRepo) MarkFailed(ctx context.Context, tx repository.Tx, id string, errMsg string) error {
	const q = `
UPDATE generation_jobs
   SET status='failed', last_error=$2, completed_at=NOW()
 WHERE id=$1;`
	_, err := execSQL(ctx, r.pool, tx, q, id, errMsg)
	return err
}

func (r *JobRepo) ListFailed(ctx context.Context, tx repository.Tx, f repository.FailedJobFilter) ([]*model.Job, error) {
	var where string
	var arg interface{}
	switch {
	case f.JobID != "":
		where, arg = "id=$1", f.JobID
	case f.UserID != "":
		where, arg = "user_id=$1", f.UserID
	case f.ChapterID != "":
		where, arg = "chapter_id=$1", f.ChapterID
	default:
		return nil, domain.ErrInvalidArgument
	}

	rows, err := pickRows(ctx, r.pool, tx,
		`SELECT `+jobColumns+` FROM generation_jobs WHERE status='failed' AND `+where+` ORDER BY created_at;`, arg)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return r.collectJobs(rows)
}

func (r *JobRepo) HasActiveForChapter(ctx context.Context, tx repository.Tx, chapterID, excludeID string) (bool, error) {
	const q = `
SELECT COUNT(*) FROM generation_jobs
 WHERE chapter_id=$1 AND id<>$2 AND status IN ('pending','processing');`
	row, err := pickRow(ctx, r.pool, tx, q, chapterID, excludeID)
	if err != nil {
		return false, err
	}
	var n int
	if err := row.Scan(&n); err != nil {
		return false, err
	}
	return n > 0, nil
}

func (r *JobRepo) CountByStatus(ctx context.Context) (map[string]map[string]int, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT status, kind, COUNT(*) FROM generation_jobs GROUP BY status, kind;`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := map[string]map[string]int{}
	for rows.Next() {
		var status, kind string
		var n int
		if err := rows.Scan(&status, &kind, &n); err != nil {
			return nil, domain.ErrReadDatabaseRow
		}
		if out[status] == nil {
			out[status] = map[string]int{}
		}
		out[status][kind] = n
	}
	return out, rows.Err()
}

func (r *JobRepo) scanJob(row pgx.Row) (*model.Job, error) {
	var j model.Job
	var kind, status string
	var prefsEnc *string
	var snapshot []byte

	err := row.Scan(&j.ID, &kind, &status, &j.ChapterID, &j.SequenceID, &j.QuoteID, &j.UserID,
		&j.Progress, &j.Step, &j.Error, &j.BulletProgress, &prefsEnc, &snapshot,
		&j.CreatedAt, &j.StartedAt, &j.CompletedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrNotFound
		}
		return nil, domain.ErrReadDatabaseRow
	}
	j.Kind = model.JobKind(kind)
	j.Status = model.JobStatus(status)
	j.OutlineSnapshot = snapshot

	if prefsEnc != nil && *prefsEnc != "" {
		plain, err := r.enc.Decrypt(*prefsEnc)
		if err != nil {
			return nil, fmt.Errorf("decrypt preferences: %w", err)
		}
		var prefs model.StoryPreferences
		if err := json.Unmarshal([]byte(plain), &prefs); err != nil {
			return nil, fmt.Errorf("unmarshal preferences: %w", err)
		}
		j.Preferences = &prefs
	}
	return &j, nil
}

func (r *JobRepo) collectJobs(rows pgx.Rows) ([]*model.Job, error) {
	var out []*model.Job
	for rows.Next() {
		j, err := r.scanJob(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, j)
	}
	return out, rows.Err()
}
