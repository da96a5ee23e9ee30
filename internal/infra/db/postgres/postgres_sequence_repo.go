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

var _ repository.SequenceRepository = (*SequenceRepo)(nil)

// SequenceRepo persists story sequences. The outline and prompt history live
// in JSONB columns; prompt text is encrypted at rest, the embedding is a JSON
// array serialized into a text column.
type SequenceRepo struct {
	pool *pgxpool.Pool
	enc  *security.EncryptionService
}

func NewSequenceRepo(pool *pgxpool.Pool, enc *security.EncryptionService) *SequenceRepo {
	return &SequenceRepo{pool: pool, enc: enc}
}

func (r *SequenceRepo) Save(ctx context.Context, tx repository.Tx, seq *model.Sequence) error {
	if seq.ID == "" {
		seq.ID = uuid.NewString()
	}
	if seq.CreatedAt.IsZero() {
		seq.CreatedAt = time.Now()
	}
	seq.UpdatedAt = time.Now()

	chapters, err := json.Marshal(seq.Chapters)
	if err != nil {
		return fmt.Errorf("marshal chapters: %w", err)
	}
	prompts, err := r.marshalPrompts(seq.Prompts)
	if err != nil {
		return err
	}
	embedding, err := marshalEmbedding(seq.Embedding)
	if err != nil {
		return err
	}

	const q = `
INSERT INTO sequences (id, user_id, title, description, tags, trigger_warnings, is_explicit,
  target_audience, embedding, length_tier, chapters, prompts, writing_quirk, created_at, updated_at)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15)
ON CONFLICT (id) DO UPDATE SET
  title = EXCLUDED.title,
  description = EXCLUDED.description,
  tags = EXCLUDED.tags,
  trigger_warnings = EXCLUDED.trigger_warnings,
  is_explicit = EXCLUDED.is_explicit,
  target_audience = EXCLUDED.target_audience,
  embedding = EXCLUDED.embedding,
  length_tier = EXCLUDED.length_tier,
  chapters = EXCLUDED.chapters,
  prompts = EXCLUDED.prompts,
  writing_quirk = EXCLUDED.writing_quirk,
  updated_at = EXCLUDED.updated_at;`

	_, err = execSQL(ctx, r.pool, tx, q,
		seq.ID, seq.UserID, seq.Title, seq.Description, seq.Tags, seq.TriggerWarnings, seq.IsExplicit,
		seq.TargetAudience, embedding, string(seq.LengthTier), chapters, prompts, seq.WritingQuirk,
		seq.CreatedAt, seq.UpdatedAt)
	return err
}

func (r *SequenceRepo) FindByID(ctx context.Context, tx repository.Tx, id string) (*model.Sequence, error) {
	const q = `
SELECT id, user_id, title, description, tags, trigger_warnings, is_explicit,
       target_audience, embedding, length_tier, chapters, prompts, writing_quirk,
       created_at, updated_at
  FROM sequences WHERE id=$1;`
	row, err := pickRow(ctx, r.pool, tx, q, id)
	if err != nil {
		return nil, err
	}

	var s model.Sequence
	var tier string
	var embedding *string
	var chapters, prompts []byte
	err = row.Scan(&s.ID, &s.UserID, &s.Title, &s.Description, &s.Tags, &s.TriggerWarnings, &s.IsExplicit,
		&s.TargetAudience, &embedding, &tier, &chapters, &prompts, &s.WritingQuirk,
		&s.CreatedAt, &s.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrNotFound
		}
		return nil, domain.ErrReadDatabaseRow
	}
	s.LengthTier = model.LengthTier(tier)

	if embedding != nil && *embedding != "" {
		if err := json.Unmarshal([]byte(*embedding), &s.Embedding); err != nil {
			return nil, fmt.Errorf("unmarshal embedding: %w", err)
		}
	}
	if len(chapters) > 0 {
		if err := json.Unmarshal(chapters, &s.Chapters); err != nil {
			return nil, fmt.Errorf("unmarshal chapters: %w", err)
		}
	}
	if len(prompts) > 0 {
		if err := json.Unmarshal(prompts, &s.Prompts); err != nil {
			return nil, fmt.Errorf("unmarshal prompts: %w", err)
		}
		for i := range s.Prompts {
			plain, err := r.enc.Decrypt(s.Prompts[i].Text)
			if err != nil {
				return nil, fmt.Errorf("decrypt prompt %s: %w", s.Prompts[i].ID, err)
			}
			s.Prompts[i].Text = plain
		}
	}
	return &s, nil
}

func (r *SequenceRepo) UpdateOutline(ctx context.Context, tx repository.Tx, id string, chapters []model.OutlineChapter, quirk string) error {
	raw, err := json.Marshal(chapters)
	if err != nil {
		return fmt.Errorf("marshal chapters: %w", err)
	}
	const q = `
UPDATE sequences SET chapters=$2, writing_quirk=$3, updated_at=NOW() WHERE id=$1;`
	tag, err := execSQL(ctx, r.pool, tx, q, id, raw, quirk)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrNotFound
	}
	return nil
}

func (r *SequenceRepo) UpdateMetadata(ctx context.Context, tx repository.Tx, id string, md model.StoryMetadata) error {
	const q = `
UPDATE sequences
   SET title=$2, description=$3, tags=$4, trigger_warnings=$5, is_explicit=$6,
       target_audience=$7, updated_at=NOW()
 WHERE id=$1;`
	tag, err := execSQL(ctx, r.pool, tx, q,
		id, md.Title, md.Description, md.Tags, md.TriggerWarnings, md.IsExplicit, md.TargetAudience)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrNotFound
	}
	return nil
}

func (r *SequenceRepo) UpdateEmbedding(ctx context.Context, tx repository.Tx, id string, vec []float64) error {
	embedding, err := marshalEmbedding(vec)
	if err != nil {
		return err
	}
	tag, err := execSQL(ctx, r.pool, tx,
		`UPDATE sequences SET embedding=$2, updated_at=NOW() WHERE id=$1;`, id, embedding)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrNotFound
	}
	return nil
}

func (r *SequenceRepo) AddPrompt(ctx context.Context, tx repository.Tx, sequenceID string, p model.UserPrompt) error {
	if p.ID == "" {
		p.ID = uuid.NewString()
	}
	if p.CreatedAt.IsZero() {
		p.CreatedAt = time.Now()
	}
	encText, err := r.enc.Encrypt(p.Text)
	if err != nil {
		return fmt.Errorf("encrypt prompt: %w", err)
	}
	p.Text = encText

	raw, err := json.Marshal(p)
	if err != nil {
		return fmt.Errorf("marshal prompt: %w", err)
	}
	const q = `
UPDATE sequences SET prompts = prompts || jsonb_build_array($2::jsonb), updated_at=NOW()
 WHERE id=$1;`
	tag, err := execSQL(ctx, r.pool, tx, q, sequenceID, raw)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrNotFound
	}
	return nil
}

func (r *SequenceRepo) MarkPromptProcessed(ctx context.Context, tx repository.Tx, sequenceID, promptID string) error {
	// Rewrites the prompt array, flipping the processed flag on the matching
	// element only. The flag is one-way.
	const q = `
UPDATE sequences
   SET prompts = (
         SELECT COALESCE(jsonb_agg(
           CASE WHEN p->>'id' = $2 THEN jsonb_set(p, '{processed}', 'true') ELSE p END
         ), '[]'::jsonb)
         FROM jsonb_array_elements(prompts) AS p
       ),
       updated_at = NOW()
 WHERE id=$1;`
	tag, err := execSQL(ctx, r.pool, tx, q, sequenceID, promptID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrNotFound
	}
	return nil
}

func (r *SequenceRepo) marshalPrompts(prompts []model.UserPrompt) ([]byte, error) {
	enc := make([]model.UserPrompt, len(prompts))
	copy(enc, prompts)
	for i := range enc {
		ct, err := r.enc.Encrypt(enc[i].Text)
		if err != nil {
			return nil, fmt.Errorf("encrypt prompt: %w", err)
		}
		enc[i].Text = ct
	}
	return json.Marshal(enc)
}

func marshalEmbedding(vec []float64) (*string, error) {
	if len(vec) == 0 {
		return nil, nil
	}
	raw, err := json.Marshal(vec)
	if err != nil {
		return nil, fmt.Errorf("marshal embedding: %w", err)
	}
	s := string(raw)
	return &s, nil
}
