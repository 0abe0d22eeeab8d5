package config

import "time"

// Database connection pool settings
const (
	DBMaxOpenConns    = 25
	DBMaxIdleConns    = 5
	DBConnMaxLifetime = 5 * time.Minute
)

// HTTP server timeouts
const (
	ServerRequestTimeout  = 60 * time.Second
	ServerReadTimeout     = 15 * time.Second
	ServerIdleTimeout     = 120 * time.Second
	ServerShutdownTimeout = 30 * time.Second
)

// Database ping timeout for health checks
const DBPingTimeout = 5 * time.Second

// Coordinate rounding applied after fuzzing, ~111 m grid
const FuzzRoundDecimals = 3

// How long first-seen candidate tracking outlives the searches that fed it;
// sessions are long gone before this lapses
const CandidateNoticeTTL = 24 * time.Hour

// Coarse distance bucket width used for candidate ordering and display
const DistanceBucketMeters = 500.0

// How far ahead of session expiry the expiring-soon notice fires
const ExpiryWarningWindow = 5 * time.Minute

// Message body limits
const MaxMessageBodyLen = 2000

// Timeout applied to external collaborator calls
const CoreAPITimeout = 10 * time.Second
