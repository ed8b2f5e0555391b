package storage

import (
	"context"
	"errors"

	"metaphorlab/internal/domain"
)

var ErrNotFound = errors.New("storage: analysis not found")

type AnalysisRepository interface {
	Save(ctx context.Context, a domain.Analysis) error
	FindByID(ctx context.Context, id string) (*domain.Analysis, error)
	FindAll(ctx context.Context, limit, offset int) ([]domain.Analysis, error)
	Exists(ctx context.Context, id string) (bool, error)
}
