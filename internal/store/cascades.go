package store

import (
	"context"

	"bookingcore/backend/internal/domain"
)

type CascadeJournal interface {
	GetCascade(ctx context.Context, absenceID string) (domain.CascadeRun, error)
	SaveCascade(ctx context.Context, run domain.CascadeRun) error
	ListRetryableCascades(ctx context.Context, limit int) ([]domain.CascadeRun, error)
}
