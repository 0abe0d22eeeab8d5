package repository

import (
	"context"
	"database/sql"

	"github.com/jmoiron/sqlx"

	"github.com/lateshift-app/afterhours-server/internal/model"
)

type MessageRepository interface {
	Create(ctx context.Context, params model.CreateMessageParams) (*model.Message, error)
	// ListByConnection returns every message for the connection in
	// insertion order, the delivery-order authority.
	ListByConnection(ctx context.Context, connectionID string) ([]model.Message, error)
	// WithTx returns a new repository bound to the given transaction
	WithTx(tx *sqlx.Tx) MessageRepository
}

type messageDB interface {
	GetContext(ctx context.Context, dest interface{}, query string, args ...interface{}) error
	SelectContext(ctx context.Context, dest interface{}, query string, args ...interface{}) error
	ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error)
}

type messageRepo struct {
	db messageDB
}

func NewMessageRepository(db *sqlx.DB) MessageRepository {
	return &messageRepo{db: db}
}

func (r *messageRepo) WithTx(tx *sqlx.Tx) MessageRepository {
	return &messageRepo{db: tx}
}

func (r *messageRepo) Create(ctx context.Context, params model.CreateMessageParams) (*model.Message, error) {
	var msg model.Message
	err := r.db.GetContext(ctx, &msg, `
		INSERT INTO messages (id, connection_id, sender_id, body)
		VALUES ($1, $2, $3, $4)
		RETURNING *
	`, params.ID, params.ConnectionID, params.SenderID, params.Body)
	if err != nil {
		return nil, err
	}
	return &msg, nil
}

func (r *messageRepo) ListByConnection(ctx context.Context, connectionID string) ([]model.Message, error) {
	var msgs []model.Message
	err := r.db.SelectContext(ctx, &msgs, `
		SELECT * FROM messages
		WHERE connection_id = $1
		ORDER BY seq ASC
	`, connectionID)
	return msgs, err
}
