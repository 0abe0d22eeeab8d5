package repository

import (
	"context"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/lateshift-app/afterhours-server/internal/model"
)

type SessionRepository interface {
	FindByID(ctx context.Context, id string) (*model.Session, error)
	FindActiveByUserID(ctx context.Context, userID string) (*model.Session, error)
	Create(ctx context.Context, params model.CreateSessionParams) (*model.Session, error)
	// MarkEnded sets ended_at if the session is still open; returns false
	// when the session was already ended.
	MarkEnded(ctx context.Context, id string) (bool, error)
	// ListCandidates returns other active, verified sessions not suppressed
	// by a decline between the two users, in either direction. Only declines
	// recorded under the requester's current session or the candidate's
	// current session count: rows surviving from earlier sessions (retained
	// until the sweeper purges them) must not carry over.
	ListCandidates(ctx context.Context, sessionID, userID string) ([]model.Session, error)
	ExpireOverdue(ctx context.Context) (int64, error)
	ListExpiringSoon(ctx context.Context, within time.Duration) ([]model.Session, error)
	MarkExpiryNotified(ctx context.Context, id string) error
	DeleteEndedBefore(ctx context.Context, cutoff time.Time) (int64, error)
}

type sessionRepo struct {
	db *sqlx.DB
}

func NewSessionRepository(db *sqlx.DB) SessionRepository {
	return &sessionRepo{db: db}
}

func (r *sessionRepo) FindByID(ctx context.Context, id string) (*model.Session, error) {
	var session model.Session
	err := r.db.GetContext(ctx, &session, `
		SELECT * FROM sessions WHERE id = $1
	`, id)
	return HandleNotFound(&session, err)
}

func (r *sessionRepo) FindActiveByUserID(ctx context.Context, userID string) (*model.Session, error) {
	var session model.Session
	err := r.db.GetContext(ctx, &session, `
		SELECT * FROM sessions
		WHERE user_id = $1 AND ended_at IS NULL AND expires_at > NOW()
	`, userID)
	return HandleNotFound(&session, err)
}

func (r *sessionRepo) Create(ctx context.Context, params model.CreateSessionParams) (*model.Session, error) {
	var session model.Session
	err := r.db.GetContext(ctx, &session, `
		INSERT INTO sessions
			(id, user_id, gender, seeking_gender, max_distance_m, verified,
			 exact_lat, exact_lon, fuzzed_lat, fuzzed_lon, expires_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		RETURNING *
	`, params.ID, params.UserID, params.Gender, params.SeekingGender,
		params.MaxDistanceM, params.Verified, params.ExactLat, params.ExactLon,
		params.FuzzedLat, params.FuzzedLon, params.ExpiresAt)
	if err != nil {
		return nil, err
	}
	return &session, nil
}

func (r *sessionRepo) MarkEnded(ctx context.Context, id string) (bool, error) {
	result, err := r.db.ExecContext(ctx, `
		UPDATE sessions SET ended_at = NOW()
		WHERE id = $1 AND ended_at IS NULL
	`, id)
	if err != nil {
		return false, err
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return false, err
	}
	return affected > 0, nil
}

func (r *sessionRepo) ListCandidates(ctx context.Context, sessionID, userID string) ([]model.Session, error) {
	var sessions []model.Session
	err := r.db.SelectContext(ctx, &sessions, `
		SELECT * FROM sessions s
		WHERE s.ended_at IS NULL
		AND s.expires_at > NOW()
		AND s.user_id <> $2
		AND s.verified
		AND NOT EXISTS (
			SELECT 1 FROM declines d
			WHERE d.session_id IN ($1, s.id)
			AND ((d.declining_user_id = $2 AND d.declined_user_id = s.user_id)
			  OR (d.declining_user_id = s.user_id AND d.declined_user_id = $2))
		)
	`, sessionID, userID)
	return sessions, err
}

func (r *sessionRepo) ExpireOverdue(ctx context.Context) (int64, error) {
	result, err := r.db.ExecContext(ctx, `
		UPDATE sessions SET ended_at = NOW()
		WHERE ended_at IS NULL AND expires_at < NOW()
	`)
	if err != nil {
		return 0, err
	}
	return result.RowsAffected()
}

func (r *sessionRepo) ListExpiringSoon(ctx context.Context, within time.Duration) ([]model.Session, error) {
	var sessions []model.Session
	err := r.db.SelectContext(ctx, &sessions, `
		SELECT * FROM sessions
		WHERE ended_at IS NULL
		AND expiry_notified_at IS NULL
		AND expires_at < NOW() + $1 * INTERVAL '1 second'
		AND expires_at > NOW()
	`, int64(within.Seconds()))
	return sessions, err
}

func (r *sessionRepo) MarkExpiryNotified(ctx context.Context, id string) error {
	_, err := r.db.ExecContext(ctx, `
		UPDATE sessions SET expiry_notified_at = NOW() WHERE id = $1
	`, id)
	return err
}

func (r *sessionRepo) DeleteEndedBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	result, err := r.db.ExecContext(ctx, `
		DELETE FROM sessions WHERE ended_at IS NOT NULL AND ended_at < $1
	`, cutoff)
	if err != nil {
		return 0, err
	}
	return result.RowsAffected()
}
