package service

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"

	apperrors "github.com/lateshift-app/afterhours-server/internal/errors"
	"github.com/lateshift-app/afterhours-server/internal/repository"
)

type DeclineService struct {
	declineRepo repository.DeclineRepository
	sessionRepo repository.SessionRepository
}

func NewDeclineService(declineRepo repository.DeclineRepository, sessionRepo repository.SessionRepository) *DeclineService {
	return &DeclineService{
		declineRepo: declineRepo,
		sessionRepo: sessionRepo,
	}
}

// Decline records a session-scoped "not now" against a surfaced candidate.
// Duplicate declines are no-ops. A future session starts with a clean
// ledger: not now is not never.
func (s *DeclineService) Decline(ctx context.Context, sessionID, userID, declinedUserID string) error {
	if declinedUserID == "" {
		return apperrors.InvalidInput("declinedUserId", "must not be empty")
	}
	if declinedUserID == userID {
		return apperrors.InvalidInput("declinedUserId", "cannot decline yourself")
	}

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
	if !session.Active(time.Now()) {
		return apperrors.AlreadyEnded()
	}

	if err := s.declineRepo.Create(ctx, sessionID, userID, declinedUserID); err != nil {
		return fmt.Errorf("record decline: %w", err)
	}

	log.Debug().
		Str("sessionId", sessionID).
		Str("userId", userID).
		Msg("candidate declined")

	return nil
}
