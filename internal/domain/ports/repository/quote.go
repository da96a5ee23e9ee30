package repository

import (
	"context"

	"storyloom/internal/domain/model"
)

type QuoteRepository interface {
	Save(ctx context.Context, tx Tx, q *model.Quote) error
	FindByID(ctx context.Context, tx Tx, id string) (*model.Quote, error)
	SetAssetURL(ctx context.Context, tx Tx, id, url string) error
}
