package repository

import (
	"context"

	"storyloom/internal/domain/model"
)

type SequenceRepository interface {
	Save(ctx context.Context, tx Tx, seq *model.Sequence) error
	FindByID(ctx context.Context, tx Tx, id string) (*model.Sequence, error)

	// UpdateOutline replaces the planned chapter list (and the writing quirk,
	// which is picked once and then carried forward unchanged).
	UpdateOutline(ctx context.Context, tx Tx, id string, chapters []model.OutlineChapter, quirk string) error

	UpdateMetadata(ctx context.Context, tx Tx, id string, md model.StoryMetadata) error
	UpdateEmbedding(ctx context.Context, tx Tx, id string, vec []float64) error

	AddPrompt(ctx context.Context, tx Tx, sequenceID string, p model.UserPrompt) error

	// MarkPromptProcessed is one-way; a processed prompt is never reprocessed.
	MarkPromptProcessed(ctx context.Context, tx Tx, sequenceID, promptID string) error
}
