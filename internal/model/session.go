package model

import "time"

// Session is one user's time-boxed participation window in the matching
// pool. Exact coordinates are write-once at creation and never serialized
// to peers; only the fuzzed pair leaves this process.
type Session struct {
	ID               string     `db:"id" json:"id"`
	UserID           string     `db:"user_id" json:"userId"`
	Gender           string     `db:"gender" json:"gender"`
	SeekingGender    string     `db:"seeking_gender" json:"seekingGender"`
	MaxDistanceM     float64    `db:"max_distance_m" json:"maxDistanceMeters"`
	Verified         bool       `db:"verified" json:"verified"`
	ExactLat         float64    `db:"exact_lat" json:"-"`
	ExactLon         float64    `db:"exact_lon" json:"-"`
	FuzzedLat        float64    `db:"fuzzed_lat" json:"fuzzedLat"`
	FuzzedLon        float64    `db:"fuzzed_lon" json:"fuzzedLon"`
	StartedAt        time.Time  `db:"started_at" json:"startedAt"`
	ExpiresAt        time.Time  `db:"expires_at" json:"expiresAt"`
	EndedAt          *time.Time `db:"ended_at" json:"endedAt,omitempty"`
	ExpiryNotifiedAt *time.Time `db:"expiry_notified_at" json:"-"`
}

// Active reports whether the session is neither ended nor past expiry.
func (s *Session) Active(now time.Time) bool {
	return s.EndedAt == nil && now.Before(s.ExpiresAt)
}

type CreateSessionParams struct {
	ID            string
	UserID        string
	Gender        string
	SeekingGender string
	MaxDistanceM  float64
	Verified      bool
	ExactLat      float64
	ExactLon      float64
	FuzzedLat     float64
	FuzzedLon     float64
	ExpiresAt     time.Time
}
