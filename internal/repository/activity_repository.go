package repository

import (
	"context"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/spec-kit/coop-member-import/internal/domain"
)

// ActivityRepository stores append-only audit entries.
type ActivityRepository interface {
	Create(ctx context.Context, activity *domain.Activity) error
	ListByAction(ctx context.Context, action domain.ActivityAction, limit int) ([]domain.Activity, error)
}

type activityRepository struct {
	pool *pgxpool.Pool
}

// NewActivityRepository builds repository.
func NewActivityRepository(pool *pgxpool.Pool) ActivityRepository {
	return &activityRepository{pool: pool}
}

func (r *activityRepository) Create(ctx context.Context, activity *domain.Activity) error {
	const query = `
        INSERT INTO activity_logs (id, actor_id, action, description, metadata, created_at)
        VALUES ($1,$2,$3,$4,$5,$6)`
	metadata := activity.Metadata
	if metadata == nil {
		metadata = map[string]any{}
	}
	_, err := r.pool.Exec(ctx, query,
		activity.ID,
		activity.ActorID,
		activity.Action,
		activity.Description,
		metadata,
		activity.CreatedAt,
	)
	return err
}

func (r *activityRepository) ListByAction(ctx context.Context, action domain.ActivityAction, limit int) ([]domain.Activity, error) {
	if limit <= 0 {
		limit = 50
	}
	const query = `
        SELECT id, actor_id, action, description, metadata, created_at
        FROM activity_logs WHERE action=$1 ORDER BY created_at DESC LIMIT $2`
	rows, err := r.pool.Query(ctx, query, action, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []domain.Activity
	for rows.Next() {
		var activity domain.Activity
		if err := rows.Scan(
			&activity.ID,
			&activity.ActorID,
			&activity.Action,
			&activity.Description,
			&activity.Metadata,
			&activity.CreatedAt,
		); err != nil {
			return nil, err
		}
		result = append(result, activity)
	}
	return result, rows.Err()
}
