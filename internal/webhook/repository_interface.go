package webhook

import "context"

type Repository interface {
	Insert(ctx context.Context, p InsertParams) (*Record, error)
	GetByID(ctx context.Context, id int) (*Record, error)
	MarkProcessed(ctx context.Context, id int) error
	MarkFailed(ctx context.Context, id int, errorMessage string) error
	ListUnprocessed(ctx context.Context, limit int) ([]Record, error)
}
