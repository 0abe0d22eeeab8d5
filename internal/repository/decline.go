package repository

import (
	"context"

	"github.com/jmoiron/sqlx"
)

type DeclineRepository interface {
	// Create records a decline; duplicates are silent no-ops.
	Create(ctx context.Context, sessionID, decliningUserID, declinedUserID string) error
}

type declineRepo struct {
	db *sqlx.DB
}

func NewDeclineRepository(db *sqlx.DB) DeclineRepository {
	return &declineRepo{db: db}
}

func (r *declineRepo) Create(ctx context.Context, sessionID, decliningUserID, declinedUserID string) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO declines (session_id, declining_user_id, declined_user_id)
		VALUES ($1, $2, $3)
		ON CONFLICT DO NOTHING
	`, sessionID, decliningUserID, declinedUserID)
	return err
}
