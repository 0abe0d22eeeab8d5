package service

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/lateshift-app/afterhours-server/internal/audit"
	apperrors "github.com/lateshift-app/afterhours-server/internal/errors"
	"github.com/lateshift-app/afterhours-server/internal/external"
	"github.com/lateshift-app/afterhours-server/internal/geo"
	"github.com/lateshift-app/afterhours-server/internal/model"
	"github.com/lateshift-app/afterhours-server/internal/repository"
	"github.com/lateshift-app/afterhours-server/internal/sse"
)

const defaultMaxDistanceM = 5000.0

type StartSessionParams struct {
	Lat           float64
	Lon           float64
	Gender        string
	SeekingGender string
	MaxDistanceM  float64
}

type SessionService struct {
	sessionRepo repository.SessionRepository
	connRepo    repository.ConnectionRepository
	eligibility external.Eligibility
	broker      *sse.Broker
	duration    time.Duration
	fuzzRadius  float64
}

func NewSessionService(
	sessionRepo repository.SessionRepository,
	connRepo repository.ConnectionRepository,
	eligibility external.Eligibility,
	broker *sse.Broker,
	duration time.Duration,
	fuzzRadius float64,
) *SessionService {
	return &SessionService{
		sessionRepo: sessionRepo,
		connRepo:    connRepo,
		eligibility: eligibility,
		broker:      broker,
		duration:    duration,
		fuzzRadius:  fuzzRadius,
	}
}

// Start admits a user into the matching pool. Eligibility is checked once
// here and trusted for the session's lifetime. This is the only code path
// that persists exact coordinates.
func (s *SessionService) Start(ctx context.Context, userID string, params StartSessionParams) (*model.Session, error) {
	if !geo.ValidCoordinate(params.Lat, params.Lon) {
		return nil, apperrors.InvalidCoordinate(params.Lat, params.Lon)
	}
	if params.Gender == "" || params.SeekingGender == "" {
		return nil, apperrors.InvalidInput("preferences", "gender and seekingGender are required")
	}
	if params.MaxDistanceM <= 0 {
		params.MaxDistanceM = defaultMaxDistanceM
	}

	eligible, err := s.eligibility.IsEligible(ctx, userID)
	if err != nil {
		return nil, apperrors.External("eligibility", err)
	}
	switch {
	case !eligible.Verified:
		return nil, apperrors.NotEligible("identity not verified")
	case !eligible.Consented:
		return nil, apperrors.NotEligible("after hours consent not given")
	case !eligible.Premium:
		return nil, apperrors.NotEligible("premium subscription required")
	}

	existing, err := s.sessionRepo.FindActiveByUserID(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("find active session: %w", err)
	}
	if existing != nil {
		return nil, apperrors.SessionAlreadyActive()
	}

	fuzzedLat, fuzzedLon, err := geo.Fuzz(params.Lat, params.Lon, s.fuzzRadius)
	if err != nil {
		return nil, err
	}

	session, err := s.sessionRepo.Create(ctx, model.CreateSessionParams{
		ID:            uuid.New().String(),
		UserID:        userID,
		Gender:        params.Gender,
		SeekingGender: params.SeekingGender,
		MaxDistanceM:  params.MaxDistanceM,
		Verified:      eligible.Verified,
		ExactLat:      params.Lat,
		ExactLon:      params.Lon,
		FuzzedLat:     fuzzedLat,
		FuzzedLon:     fuzzedLon,
		ExpiresAt:     time.Now().Add(s.duration),
	})
	if err != nil {
		// The partial unique index on (user_id) WHERE ended_at IS NULL is
		// the invariant's last line of defense against racing starts. The
		// losing insert is rejected, never merged.
		if repository.IsUniqueViolation(err) {
			log.Warn().Str("userId", userID).Msg("concurrent session start rejected by unique index")
			return nil, apperrors.SessionAlreadyActive()
		}
		return nil, fmt.Errorf("create session: %w", err)
	}

	audit.Log(audit.Event{
		Type:      audit.EventSessionStart,
		UserID:    userID,
		SessionID: session.ID,
		Details:   map[string]interface{}{"expiresAt": session.ExpiresAt.Format(time.RFC3339)},
	})

	log.Info().
		Str("sessionId", session.ID).
		Str("userId", userID).
		Time("expiresAt", session.ExpiresAt).
		Msg("session started")

	return session, nil
}

// End closes a session early. Only the owner may end it; ending cascades a
// close signal to every open connection the session participates in.
func (s *SessionService) End(ctx context.Context, sessionID, userID string) error {
	session, err := s.sessionRepo.FindByID(ctx, sessionID)
	if err != nil {
		return fmt.Errorf("find session: %w", err)
	}
	if session == nil {
		return apperrors.NotFound("Session")
	}
	if session.UserID != userID {
		return apperrors.NotOwner()
	}

	ended, err := s.sessionRepo.MarkEnded(ctx, sessionID)
	if err != nil {
		return fmt.Errorf("mark ended: %w", err)
	}
	if !ended {
		return apperrors.AlreadyEnded()
	}

	s.closeOpenConnections(ctx, sessionID)

	audit.Log(audit.Event{
		Type:      audit.EventSessionEnd,
		UserID:    userID,
		SessionID: sessionID,
	})

	log.Info().
		Str("sessionId", sessionID).
		Str("userId", userID).
		Msg("session ended")

	return nil
}

// ActiveFor returns the user's current non-ended session, or nil.
func (s *SessionService) ActiveFor(ctx context.Context, userID string) (*model.Session, error) {
	return s.sessionRepo.FindActiveByUserID(ctx, userID)
}

func (s *SessionService) closeOpenConnections(ctx context.Context, sessionID string) {
	conns, err := s.connRepo.ListOpenBySession(ctx, sessionID)
	if err != nil {
		log.Error().Err(err).Str("sessionId", sessionID).Msg("failed to list open connections for close signal")
		return
	}

	for _, conn := range conns {
		data, _ := json.Marshal(map[string]string{
			"connectionId": conn.ID,
			"reason":       "session_ended",
		})
		if err := s.broker.Publish(ctx, conn.ID, sse.Event{
			Type: sse.EventTypeConnectionClosed,
			Data: data,
		}); err != nil {
			log.Warn().Err(err).Str("connectionId", conn.ID).Msg("failed to publish connection close")
		}
	}
}
