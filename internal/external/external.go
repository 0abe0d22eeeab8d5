package external

import (
	"context"
	"time"
)

// EligibilityResult is the core application's verdict on a user at
// session start. It is trusted for the session's lifetime; there is no
// mid-session re-check.
type EligibilityResult struct {
	Verified  bool `json:"verified"`
	Premium   bool `json:"premium"`
	Consented bool `json:"consented"`
}

// Eligibility answers whether a user may enter the matching pool.
type Eligibility interface {
	IsEligible(ctx context.Context, userID string) (EligibilityResult, error)
}

// BlockChecker exposes the core application's permanent block
// relationships, consulted by the proximity matcher.
type BlockChecker interface {
	IsBlocked(ctx context.Context, userA, userB string) (bool, error)
}

// PermanentStore is the core application's durable match/message storage,
// invoked only during conversion.
type PermanentStore interface {
	CreateRelationship(ctx context.Context, userA, userB string) (string, error)
	AppendMessage(ctx context.Context, permanentID, senderID, body string, createdAt time.Time) error
}

// Notifier delivers push notifications. Fire-and-forget: implementations
// log failures and never propagate them.
type Notifier interface {
	Notify(ctx context.Context, userID, eventType string, payload any)
}

// Notification event types
const (
	EventSessionExpiringSoon = "session_expiring_soon"
	EventNewCandidateFound   = "new_candidate_found"
	EventConnectionOpened    = "connection_opened"
	EventSaveRequested       = "save_requested"
	EventSaveConfirmed       = "save_confirmed"
)
