package repository

import (
	"context"

	"storyloom/internal/domain/model"
)

type ChapterRepository interface {
	Save(ctx context.Context, tx Tx, rec *model.ChapterRecord) error
	FindByID(ctx context.Context, tx Tx, id string) (*model.ChapterRecord, error)

	// UpdateContent writes the accumulated chapter text plus generation
	// status/progress. Content only grows while status is generating.
	UpdateContent(ctx context.Context, tx Tx, id, content string, status model.ChapterStatus, progress int) error

	// FailOrphaned flips chapters stuck in generating status with no pending
	// or processing job to failed, returning how many were swept. Used by the
	// crash-recovery reconciliation at startup.
	FailOrphaned(ctx context.Context) (int64, error)
}
