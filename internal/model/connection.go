package model

import "time"

type ConnectionState string

const (
	ConnectionStateOpen      ConnectionState = "open"
	ConnectionStateConverted ConnectionState = "converted"
)

// Connection is the ephemeral pairing between two sessions. The user pair
// is stored normalized (UserA < UserB) so the unordered-pair uniqueness
// constraint is a plain unique index. ExpiresAt is the earlier of the two
// owning sessions' expiries; if either owner ends early the live session
// rows close messaging immediately.
type Connection struct {
	ID          string          `db:"id" json:"id"`
	SessionA    string          `db:"session_a" json:"sessionA"`
	SessionB    string          `db:"session_b" json:"sessionB"`
	UserA       string          `db:"user_a" json:"userA"`
	UserB       string          `db:"user_b" json:"userB"`
	State       ConnectionState `db:"state" json:"state"`
	VoteA       *time.Time      `db:"vote_a" json:"voteA,omitempty"`
	VoteB       *time.Time      `db:"vote_b" json:"voteB,omitempty"`
	PermanentID *string         `db:"permanent_id" json:"permanentId,omitempty"`
	CreatedAt   time.Time       `db:"created_at" json:"createdAt"`
	ExpiresAt   time.Time       `db:"expires_at" json:"expiresAt"`
	ConvertedAt *time.Time      `db:"converted_at" json:"convertedAt,omitempty"`
}

// HasParticipant reports whether userID is one of the two participants.
func (c *Connection) HasParticipant(userID string) bool {
	return c.UserA == userID || c.UserB == userID
}

// Peer returns the other participant's user id.
func (c *Connection) Peer(userID string) string {
	if c.UserA == userID {
		return c.UserB
	}
	return c.UserA
}

// HasVoted reports whether userID has already cast a save vote.
func (c *Connection) HasVoted(userID string) bool {
	if c.UserA == userID {
		return c.VoteA != nil
	}
	if c.UserB == userID {
		return c.VoteB != nil
	}
	return false
}

// MutualSave reports whether both participants have voted save.
func (c *Connection) MutualSave() bool {
	return c.VoteA != nil && c.VoteB != nil
}

type CreateConnectionParams struct {
	ID        string
	SessionA  string
	SessionB  string
	UserA     string
	UserB     string
	ExpiresAt time.Time
}
