package service

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/rs/zerolog/log"

	"github.com/lateshift-app/afterhours-server/internal/audit"
	"github.com/lateshift-app/afterhours-server/internal/database"
	apperrors "github.com/lateshift-app/afterhours-server/internal/errors"
	"github.com/lateshift-app/afterhours-server/internal/external"
	"github.com/lateshift-app/afterhours-server/internal/model"
	"github.com/lateshift-app/afterhours-server/internal/repository"
	"github.com/lateshift-app/afterhours-server/internal/sse"
)

type ConvertResult struct {
	Converted   bool   `json:"converted"`
	PermanentID string `json:"permanentId,omitempty"`
}

// TxRunner executes a function inside a database transaction.
type TxRunner interface {
	WithTx(ctx context.Context, fn database.TxFunc) error
}

type ConvertService struct {
	db          TxRunner
	connRepo    repository.ConnectionRepository
	messageRepo repository.MessageRepository
	permanent   external.PermanentStore
	notifier    external.Notifier
	broker      *sse.Broker
	grace       time.Duration
}

func NewConvertService(
	db TxRunner,
	connRepo repository.ConnectionRepository,
	messageRepo repository.MessageRepository,
	permanent external.PermanentStore,
	notifier external.Notifier,
	broker *sse.Broker,
	grace time.Duration,
) *ConvertService {
	return &ConvertService{
		db:          db,
		connRepo:    connRepo,
		messageRepo: messageRepo,
		permanent:   permanent,
		notifier:    notifier,
		broker:      broker,
		grace:       grace,
	}
}

// CastSaveVote records a participant's save vote and, when it completes
// the pair, converts the connection. The whole step runs under the
// connection's row lock: vote, mutual check and state flip are one
// indivisible transition, so two concurrent votes cannot both observe
// "not yet mutual". The same lock keeps the sweeper's purge from touching
// a connection mid-conversion.
//
// Conversion is all-or-nothing: any failure rolls the transaction back
// and leaves the connection OPEN for explicit retry.
func (s *ConvertService) CastSaveVote(ctx context.Context, connectionID, userID string) (*ConvertResult, error) {
	var (
		conn        *model.Connection
		hadVoted    bool
		converted   bool
		permanentID string
		copied      int
	)

	err := s.db.WithTx(ctx, func(tx *sqlx.Tx) error {
		connRepo := s.connRepo.WithTx(tx)

		locked, err := connRepo.LockByID(ctx, connectionID)
		if err != nil {
			return fmt.Errorf("lock connection: %w", err)
		}
		if locked == nil {
			return apperrors.NotFound("Connection")
		}
		if !locked.HasParticipant(userID) {
			return apperrors.NotParticipant()
		}
		if locked.State == model.ConnectionStateConverted {
			return apperrors.ConnectionTerminal()
		}

		now := time.Now()
		// Voting stays open through the grace period even after messaging
		// has closed, so a last-second mutual save is never lost.
		if now.After(locked.ExpiresAt.Add(s.grace)) {
			return apperrors.ConnectionNotOpen()
		}

		hadVoted = locked.HasVoted(userID)
		if err := connRepo.CastVote(ctx, connectionID, userID, now); err != nil {
			return fmt.Errorf("cast vote: %w", err)
		}

		conn, err = connRepo.FindByID(ctx, connectionID)
		if err != nil {
			return fmt.Errorf("reload connection: %w", err)
		}

		if !conn.MutualSave() {
			return nil
		}

		messages, err := s.messageRepo.WithTx(tx).ListByConnection(ctx, connectionID)
		if err != nil {
			return fmt.Errorf("list messages: %w", err)
		}

		permanentID, err = s.permanent.CreateRelationship(ctx, conn.UserA, conn.UserB)
		if err != nil {
			return apperrors.External("permanent store", err)
		}

		for _, msg := range messages {
			if err := s.permanent.AppendMessage(ctx, permanentID, msg.SenderID, msg.Body, msg.CreatedAt); err != nil {
				return apperrors.External("permanent store", err)
			}
		}

		if err := connRepo.MarkConverted(ctx, connectionID, permanentID, now); err != nil {
			return fmt.Errorf("mark converted: %w", err)
		}

		converted = true
		copied = len(messages)
		return nil
	})
	if err != nil {
		return nil, err
	}

	if converted {
		s.afterConversion(ctx, conn, permanentID, copied)
		return &ConvertResult{Converted: true, PermanentID: permanentID}, nil
	}

	// A repeat vote by the same user changes nothing and re-notifies no one.
	if !hadVoted {
		s.afterSingleVote(ctx, conn, userID)
	}

	return &ConvertResult{Converted: false}, nil
}

func (s *ConvertService) afterConversion(ctx context.Context, conn *model.Connection, permanentID string, copied int) {
	payload := map[string]string{
		"connectionId": conn.ID,
		"permanentId":  permanentID,
	}
	for _, userID := range []string{conn.UserA, conn.UserB} {
		s.notifier.Notify(ctx, userID, external.EventSaveConfirmed, payload)
	}

	data, _ := json.Marshal(payload)
	if err := s.broker.Publish(ctx, conn.ID, sse.Event{
		Type: sse.EventTypeSaveConfirmed,
		Data: data,
	}); err != nil {
		log.Warn().Err(err).Str("connectionId", conn.ID).Msg("failed to publish save confirmation")
	}

	audit.Log(audit.Event{
		Type:         audit.EventConnectionConvert,
		ConnectionID: conn.ID,
		Details: map[string]interface{}{
			"permanentId":    permanentID,
			"messagesCopied": copied,
		},
	})

	log.Info().
		Str("connectionId", conn.ID).
		Str("permanentId", permanentID).
		Int("messagesCopied", copied).
		Msg("connection converted to permanent relationship")
}

func (s *ConvertService) afterSingleVote(ctx context.Context, conn *model.Connection, voterID string) {
	peer := conn.Peer(voterID)
	s.notifier.Notify(ctx, peer, external.EventSaveRequested, map[string]string{
		"connectionId": conn.ID,
	})

	data, _ := json.Marshal(map[string]string{
		"connectionId": conn.ID,
		"userId":       voterID,
	})
	if err := s.broker.Publish(ctx, conn.ID, sse.Event{
		Type: sse.EventTypeSaveRequested,
		Data: data,
	}); err != nil {
		log.Warn().Err(err).Str("connectionId", conn.ID).Msg("failed to publish save request")
	}

	log.Info().
		Str("connectionId", conn.ID).
		Str("userId", voterID).
		Msg("save vote recorded, awaiting peer")
}
