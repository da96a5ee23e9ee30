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

var _ repository.QuoteRepository = (*QuoteRepo)(nil)

type QuoteRepo struct {
	pool *pgxpool.Pool
}

func NewQuoteRepo(pool *pgxpool.Pool) *QuoteRepo {
	return &QuoteRepo{pool: pool}
}

func (r *QuoteRepo) Save(ctx context.Context, tx repository.Tx, q *model.Quote) error {
	if q.ID == "" {
		q.ID = uuid.NewString()
	}
	if q.CreatedAt.IsZero() {
		q.CreatedAt = time.Now()
	}
	q.UpdatedAt = time.Now()

	const sql = `
INSERT INTO quotes (id, chapter_id, sequence_id, quote_text, asset_url, created_at, updated_at)
VALUES ($1,$2,$3,$4,$5,$6,$7)
ON CONFLICT (id) DO UPDATE SET
  quote_text = EXCLUDED.quote_text,
  asset_url = EXCLUDED.asset_url,
  updated_at = EXCLUDED.updated_at;`

	_, err := execSQL(ctx, r.pool, tx, sql,
		q.ID, q.ChapterID, q.SequenceID, q.Text, q.AssetURL, q.CreatedAt, q.UpdatedAt)
	return err
}

func (r *QuoteRepo) FindByID(ctx context.Context, tx repository.Tx, id string) (*model.Quote, error) {
	const sql = `
SELECT id, chapter_id, sequence_id, quote_text, asset_url, created_at, updated_at
  FROM quotes WHERE id=$1;`
	row, err := pickRow(ctx, r.pool, tx, sql, id)
	if err != nil {
		return nil, err
	}

	var q model.Quote
	err = row.Scan(&q.ID, &q.ChapterID, &q.SequenceID, &q.Text, &q.AssetURL, &q.CreatedAt, &q.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrNotFound
		}
		return nil, domain.ErrReadDatabaseRow
	}
	return &q, nil
}

func (r *QuoteRepo) SetAssetURL(ctx context.Context, tx repository.Tx, id, url string) error {
	tag, err := execSQL(ctx, r.pool, tx,
		`UPDATE quotes SET asset_url=$2, updated_at=NOW() WHERE id=$1;`, id, url)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrNotFound
	}
	return nil
}
