package postgres

import (
	"context"
	"time"

	"github.com/uptrace/bun"

	"bookingcore/backend/internal/domain"
)

type CascadeRepo struct {
	db bun.IDB
}

func NewCascadeRepo(db bun.IDB) *CascadeRepo {
	return &CascadeRepo{db: db}
}

func (r *CascadeRepo) GetCascade(ctx context.Context, absenceID string) (domain.CascadeRun, error) {
	var row domain.CascadeRun
	err := r.db.NewSelect().Model(&row).Where("absence_id = ?", absenceID).Limit(1).Scan(ctx)
	return row, notFound(err)
}

func (r *CascadeRepo) SaveCascade(ctx context.Context, run domain.CascadeRun) error {
	if run.UpdatedAt.IsZero() {
		run.UpdatedAt = time.Now().UTC()
	}
	_, err := r.db.NewInsert().
		Model(&run).
		On("CONFLICT (absence_id) DO UPDATE").
		Set("status = EXCLUDED.status").
		Set("attempts = EXCLUDED.attempts").
		Set("cancelled_count = EXCLUDED.cancelled_count").
		Set("last_error = EXCLUDED.last_error").
		Set("updated_at = EXCLUDED.updated_at").
		Exec(ctx)
	return err
}

func (r *CascadeRepo) ListRetryableCascades(ctx context.Context, limit int) ([]domain.CascadeRun, error) {
	var rows []domain.CascadeRun
	q := r.db.NewSelect().
		Model(&rows).
		Where("status IN (?)", bun.In([]domain.CascadeStatus{domain.CascadePending, domain.CascadeFailed})).
		OrderExpr("updated_at ASC")
	if limit > 0 {
		q = q.Limit(limit)
	}
	if err := q.Scan(ctx); err != nil {
		return nil, err
	}
	return rows, nil
}
