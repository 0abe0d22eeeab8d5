package model

import (
	"encoding/json"
	"time"
)

// Message is one ephemeral chat message. Seq is assigned by the store's
// insertion order and is the delivery-order authority within a connection.
type Message struct {
	ID           string    `db:"id" json:"id"`
	ConnectionID string    `db:"connection_id" json:"connectionId"`
	SenderID     string    `db:"sender_id" json:"senderId"`
	Body         string    `db:"body" json:"body"`
	Seq          int64     `db:"seq" json:"seq"`
	CreatedAt    time.Time `db:"created_at" json:"createdAt"`
}

// ToEventData returns the JSON payload broadcast on the connection's live
// channel when the message is persisted.
func (m *Message) ToEventData() json.RawMessage {
	data, _ := json.Marshal(m)
	return data
}

type CreateMessageParams struct {
	ID           string
	ConnectionID string
	SenderID     string
	Body         string
}
