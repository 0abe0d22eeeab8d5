package service

import (
	"context"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/lateshift-app/afterhours-server/internal/audit"
	"github.com/lateshift-app/afterhours-server/internal/config"
	apperrors "github.com/lateshift-app/afterhours-server/internal/errors"
	"github.com/lateshift-app/afterhours-server/internal/external"
	"github.com/lateshift-app/afterhours-server/internal/model"
	"github.com/lateshift-app/afterhours-server/internal/repository"
	"github.com/lateshift-app/afterhours-server/internal/sse"
)

type ConnectionService struct {
	connRepo    repository.ConnectionRepository
	messageRepo repository.MessageRepository
	sessionRepo repository.SessionRepository
	broker      *sse.Broker
	notifier    external.Notifier
}

func NewConnectionService(
	connRepo repository.ConnectionRepository,
	messageRepo repository.MessageRepository,
	sessionRepo repository.SessionRepository,
	broker *sse.Broker,
	notifier external.Notifier,
) *ConnectionService {
	return &ConnectionService{
		connRepo:    connRepo,
		messageRepo: messageRepo,
		sessionRepo: sessionRepo,
		broker:      broker,
		notifier:    notifier,
	}
}

// Open engages a matched candidate, creating the ephemeral pairing. If a
// connection already exists for this session pair it is returned as-is so
// client retries are idempotent. Expiry is the earlier of the two owning
// sessions' expiries.
func (s *ConnectionService) Open(ctx context.Context, sessionID, userID, targetUserID string) (*model.Connection, error) {
	if targetUserID == "" || targetUserID == userID {
		return nil, apperrors.InvalidInput("targetUserId", "must be another user")
	}

	session, err := s.sessionRepo.FindByID(ctx, sessionID)
	if err != nil {
		return nil, fmt.Errorf("find session: %w", err)
	}
	if session == nil {
		return nil, apperrors.NotFound("Session")
	}
	if session.UserID != userID {
		return nil, apperrors.NotOwner()
	}
	if !session.Active(time.Now()) {
		return nil, apperrors.AlreadyEnded()
	}

	target, err := s.sessionRepo.FindActiveByUserID(ctx, targetUserID)
	if err != nil {
		return nil, fmt.Errorf("find target session: %w", err)
	}
	if target == nil {
		return nil, apperrors.NotFound("Candidate session")
	}

	existing, err := s.connRepo.FindBySessions(ctx, session.ID, target.ID)
	if err != nil {
		return nil, fmt.Errorf("find existing connection: %w", err)
	}
	if existing != nil {
		return existing, nil
	}

	params := model.CreateConnectionParams{
		ID:        uuid.New().String(),
		SessionA:  session.ID,
		SessionB:  target.ID,
		UserA:     session.UserID,
		UserB:     target.UserID,
		ExpiresAt: earlier(session.ExpiresAt, target.ExpiresAt),
	}
	// Stored pair order is normalized so the unique index covers both
	// engagement directions.
	if params.UserA > params.UserB {
		params.UserA, params.UserB = params.UserB, params.UserA
		params.SessionA, params.SessionB = params.SessionB, params.SessionA
	}

	conn, err := s.connRepo.Create(ctx, params)
	if err != nil {
		if repository.IsUniqueViolation(err) {
			// Lost a race with the peer engaging first; their row wins.
			return s.connRepo.FindBySessions(ctx, session.ID, target.ID)
		}
		return nil, fmt.Errorf("create connection: %w", err)
	}

	s.notifier.Notify(ctx, targetUserID, external.EventConnectionOpened, map[string]string{
		"connectionId": conn.ID,
		"userId":       userID,
	})

	audit.Log(audit.Event{
		Type:         audit.EventConnectionOpen,
		UserID:       userID,
		SessionID:    sessionID,
		ConnectionID: conn.ID,
	})

	log.Info().
		Str("connectionId", conn.ID).
		Str("sessionA", conn.SessionA).
		Str("sessionB", conn.SessionB).
		Msg("connection opened")

	return conn, nil
}

// Send persists a message and fans it out on the connection's live
// channel. Persistence is synchronous so the sender gets a durable ack;
// fan-out failure never fails the send.
func (s *ConnectionService) Send(ctx context.Context, connectionID, senderID, body string) (*model.Message, error) {
	body = strings.TrimSpace(body)
	if body == "" {
		return nil, apperrors.InvalidInput("body", "must not be empty")
	}
	// Limit counts characters, not bytes.
	if utf8.RuneCountInString(body) > config.MaxMessageBodyLen {
		return nil, apperrors.InvalidInput("body", fmt.Sprintf("must be at most %d characters", config.MaxMessageBodyLen))
	}

	conn, err := s.connRepo.FindByID(ctx, connectionID)
	if err != nil {
		return nil, fmt.Errorf("find connection: %w", err)
	}
	if conn == nil {
		return nil, apperrors.NotFound("Connection")
	}
	if !conn.HasParticipant(senderID) {
		return nil, apperrors.NotParticipant()
	}

	open, err := s.isOpenForMessaging(ctx, conn)
	if err != nil {
		return nil, err
	}
	if !open {
		return nil, apperrors.ConnectionNotOpen()
	}

	msg, err := s.messageRepo.Create(ctx, model.CreateMessageParams{
		ID:           uuid.New().String(),
		ConnectionID: connectionID,
		SenderID:     senderID,
		Body:         body,
	})
	if err != nil {
		return nil, fmt.Errorf("create message: %w", err)
	}

	if err := s.broker.Publish(ctx, connectionID, sse.Event{
		Type: sse.EventTypeMessage,
		Data: msg.ToEventData(),
	}); err != nil {
		log.Warn().Err(err).Str("connectionId", connectionID).Msg("failed to publish message event")
	}

	return msg, nil
}

// Messages returns the connection's persisted history in insertion order.
// Reconnecting clients resynchronize here; the live channel never redelivers.
func (s *ConnectionService) Messages(ctx context.Context, connectionID, userID string) ([]model.Message, error) {
	conn, err := s.connRepo.FindByID(ctx, connectionID)
	if err != nil {
		return nil, fmt.Errorf("find connection: %w", err)
	}
	if conn == nil {
		return nil, apperrors.NotFound("Connection")
	}
	if !conn.HasParticipant(userID) {
		return nil, apperrors.NotParticipant()
	}

	return s.messageRepo.ListByConnection(ctx, connectionID)
}

// VerifyParticipant loads a connection after checking the user belongs to it.
func (s *ConnectionService) VerifyParticipant(ctx context.Context, connectionID, userID string) (*model.Connection, error) {
	conn, err := s.connRepo.FindByID(ctx, connectionID)
	if err != nil {
		return nil, fmt.Errorf("find connection: %w", err)
	}
	if conn == nil {
		return nil, apperrors.NotFound("Connection")
	}
	if !conn.HasParticipant(userID) {
		return nil, apperrors.NotParticipant()
	}
	return conn, nil
}

// isOpenForMessaging checks the live state of both owning sessions: a
// converted connection, a past-expiry connection, or an early-ended owner
// all close the channel immediately.
func (s *ConnectionService) isOpenForMessaging(ctx context.Context, conn *model.Connection) (bool, error) {
	if conn.State != model.ConnectionStateOpen {
		return false, nil
	}

	now := time.Now()
	if now.After(conn.ExpiresAt) {
		return false, nil
	}

	for _, sessionID := range []string{conn.SessionA, conn.SessionB} {
		session, err := s.sessionRepo.FindByID(ctx, sessionID)
		if err != nil {
			return false, fmt.Errorf("find owning session: %w", err)
		}
		if session == nil || session.EndedAt != nil {
			return false, nil
		}
	}

	return true, nil
}

func earlier(a, b time.Time) time.Time {
	if a.Before(b) {
		return a
	}
	return b
}
