package repository

import (
	"context"
	"database/sql"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/lateshift-app/afterhours-server/internal/model"
)

type ConnectionRepository interface {
	FindByID(ctx context.Context, id string) (*model.Connection, error)
	// FindBySessions looks up the connection formed between two sessions,
	// in either engagement direction.
	FindBySessions(ctx context.Context, sessionA, sessionB string) (*model.Connection, error)
	Create(ctx context.Context, params model.CreateConnectionParams) (*model.Connection, error)
	ListOpenBySession(ctx context.Context, sessionID string) ([]model.Connection, error)
	// LockByID loads the connection row under FOR UPDATE. Only meaningful
	// on a transaction-scoped repository.
	LockByID(ctx context.Context, id string) (*model.Connection, error)
	// CastVote records a save vote for userID in its slot, idempotently.
	CastVote(ctx context.Context, id, userID string, at time.Time) error
	MarkConverted(ctx context.Context, id, permanentID string, at time.Time) error
	// DeleteExpired purges unconverted connections past expiry plus grace.
	// Messages cascade.
	DeleteExpired(ctx context.Context, grace time.Duration) (int64, error)
	// DeleteConvertedBefore purges converted connections' ephemeral
	// remnants once their retention window has passed.
	DeleteConvertedBefore(ctx context.Context, cutoff time.Time) (int64, error)
	// WithTx returns a new repository bound to the given transaction
	WithTx(tx *sqlx.Tx) ConnectionRepository
}

// connectionDB is satisfied by both *sqlx.DB and *sqlx.Tx
type connectionDB interface {
	GetContext(ctx context.Context, dest interface{}, query string, args ...interface{}) error
	SelectContext(ctx context.Context, dest interface{}, query string, args ...interface{}) error
	ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error)
}

type connectionRepo struct {
	db connectionDB
}

func NewConnectionRepository(db *sqlx.DB) ConnectionRepository {
	return &connectionRepo{db: db}
}

func (r *connectionRepo) WithTx(tx *sqlx.Tx) ConnectionRepository {
	return &connectionRepo{db: tx}
}

func (r *connectionRepo) FindByID(ctx context.Context, id string) (*model.Connection, error) {
	var conn model.Connection
	err := r.db.GetContext(ctx, &conn, `SELECT * FROM connections WHERE id = $1`, id)
	return HandleNotFound(&conn, err)
}

func (r *connectionRepo) FindBySessions(ctx context.Context, sessionA, sessionB string) (*model.Connection, error) {
	var conn model.Connection
	err := r.db.GetContext(ctx, &conn, `
		SELECT * FROM connections
		WHERE (session_a = $1 AND session_b = $2)
		   OR (session_a = $2 AND session_b = $1)
	`, sessionA, sessionB)
	return HandleNotFound(&conn, err)
}

func (r *connectionRepo) Create(ctx context.Context, params model.CreateConnectionParams) (*model.Connection, error) {
	var conn model.Connection
	err := r.db.GetContext(ctx, &conn, `
		INSERT INTO connections (id, session_a, session_b, user_a, user_b, expires_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING *
	`, params.ID, params.SessionA, params.SessionB, params.UserA, params.UserB, params.ExpiresAt)
	if err != nil {
		return nil, err
	}
	return &conn, nil
}

func (r *connectionRepo) ListOpenBySession(ctx context.Context, sessionID string) ([]model.Connection, error) {
	var conns []model.Connection
	err := r.db.SelectContext(ctx, &conns, `
		SELECT * FROM connections
		WHERE state = 'open' AND (session_a = $1 OR session_b = $1)
	`, sessionID)
	return conns, err
}

func (r *connectionRepo) LockByID(ctx context.Context, id string) (*model.Connection, error) {
	var conn model.Connection
	err := r.db.GetContext(ctx, &conn, `
		SELECT * FROM connections WHERE id = $1 FOR UPDATE
	`, id)
	return HandleNotFound(&conn, err)
}

func (r *connectionRepo) CastVote(ctx context.Context, id, userID string, at time.Time) error {
	_, err := r.db.ExecContext(ctx, `
		UPDATE connections SET
			vote_a = CASE WHEN user_a = $2 AND vote_a IS NULL THEN $3 ELSE vote_a END,
			vote_b = CASE WHEN user_b = $2 AND vote_b IS NULL THEN $3 ELSE vote_b END
		WHERE id = $1 AND state = 'open'
	`, id, userID, at)
	return err
}

func (r *connectionRepo) MarkConverted(ctx context.Context, id, permanentID string, at time.Time) error {
	_, err := r.db.ExecContext(ctx, `
		UPDATE connections SET
			state = 'converted',
			permanent_id = $2,
			converted_at = $3
		WHERE id = $1 AND state = 'open'
	`, id, permanentID, at)
	return err
}

func (r *connectionRepo) DeleteExpired(ctx context.Context, grace time.Duration) (int64, error) {
	result, err := r.db.ExecContext(ctx, `
		DELETE FROM connections
		WHERE state = 'open'
		AND expires_at + $1 * INTERVAL '1 second' < NOW()
	`, int64(grace.Seconds()))
	if err != nil {
		return 0, err
	}
	return result.RowsAffected()
}

func (r *connectionRepo) DeleteConvertedBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	result, err := r.db.ExecContext(ctx, `
		DELETE FROM connections
		WHERE state = 'converted' AND converted_at < $1
	`, cutoff)
	if err != nil {
		return 0, err
	}
	return result.RowsAffected()
}
