package postgres

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v4"
	"github.com/jackc/pgx/v4/pgxpool"

	"storyloom/internal/domain"
	"storyloom/internal/domain/model"
	"storyloom/internal/domain/ports/repository"
)

var _ repository.ChapterRepository = (*ChapterRepo)(nil)

type ChapterRepo struct {
	pool *pgxpool.Pool
}

func NewChapterRepo(pool *pgxpool.Pool) *ChapterRepo {
	return &ChapterRepo{pool: pool}
}

func (r *ChapterRepo) Save(ctx context.Context, tx repository.Tx, rec *model.ChapterRecord) error {
	if rec.ID == "" {
		rec.ID = uuid.NewString()
	}
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = time.Now()
	}
	rec.UpdatedAt = time.Now()

	const q = `
INSERT INTO chapters (id, sequence_id, parent_id, position, content,
  generation_status, generation_progress, created_at, updated_at)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)
ON CONFLICT (id) DO UPDATE SET
  content = EXCLUDED.content,
  generation_status = EXCLUDED.generation_status,
  generation_progress = EXCLUDED.generation_progress,
  updated_at = EXCLUDED.updated_at;`

	_, err := execSQL(ctx, r.pool, tx, q,
		rec.ID, rec.SequenceID, rec.ParentID, rec.Position, rec.Content,
		string(rec.GenerationStatus), rec.GenerationProgress, rec.CreatedAt, rec.UpdatedAt)
	return err
}

func (r *ChapterRepo) FindByID(ctx context.Context, tx repository.Tx, id string) (*model.ChapterRecord, error) {
	const q = `
SELECT id, sequence_id, parent_id, position, content,
       generation_status, generation_progress, created_at, updated_at
  FROM chapters WHERE id=$1;`
	row, err := pickRow(ctx, r.pool, tx, q, id)
	if err != nil {
		return nil, err
	}

	var rec model.ChapterRecord
	var status string
	err = row.Scan(&rec.ID, &rec.SequenceID, &rec.ParentID, &rec.Position, &rec.Content,
		&status, &rec.GenerationProgress, &rec.CreatedAt, &rec.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrNotFound
		}
		return nil, domain.ErrReadDatabaseRow
	}
	rec.GenerationStatus = model.ChapterStatus(status)
	return &rec, nil
}

func (r *ChapterRepo) UpdateContent(ctx context.Context, tx repository.Tx, id, content string, status model.ChapterStatus, progress int) error {
	const q = `
UPDATE chapters
   SET content=$2, generation_status=$3, generation_progress=$4, updated_at=NOW()
 WHERE id=$1;`
	tag, err := execSQL(ctx, r.pool, tx, q, id, content, string(status), progress)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrNotFound
	}
	return nil
}

// FailOrphaned flips chapters stuck in generating that no live job targets.
// Run at startup and, optionally, on a periodic sweep.
func (r *ChapterRepo) FailOrphaned(ctx context.Context) (int64, error) {
	const q = `
UPDATE chapters c
   SET generation_status='failed', updated_at=NOW()
 WHERE c.generation_status='generating'
   AND NOT EXISTS (
         SELECT 1 FROM generation_jobs j
          WHERE j.chapter_id = c.id AND j.status IN ('pending','processing')
       );`
	tag, err := r.pool.Exec(ctx, q)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}
