package service

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "github.com/lateshift-app/afterhours-server/internal/errors"
	"github.com/lateshift-app/afterhours-server/internal/model"
)

func TestDecline(t *testing.T) {
	ctx := context.Background()

	session := &model.Session{
		ID:        "sess-1",
		UserID:    "user-1",
		ExpiresAt: time.Now().Add(20 * time.Minute),
	}

	t.Run("records decline for active owned session", func(t *testing.T) {
		sessionRepo := new(mockSessionRepo)
		declineRepo := new(mockDeclineRepo)
		svc := NewDeclineService(declineRepo, sessionRepo)

		sessionRepo.On("FindByID", ctx, "sess-1").Return(session, nil)
		declineRepo.On("Create", ctx, "sess-1", "user-1", "user-2").Return(nil)

		require.NoError(t, svc.Decline(ctx, "sess-1", "user-1", "user-2"))
		declineRepo.AssertExpectations(t)
	})

	t.Run("repeat decline is a no-op", func(t *testing.T) {
		sessionRepo := new(mockSessionRepo)
		declineRepo := new(mockDeclineRepo)
		svc := NewDeclineService(declineRepo, sessionRepo)

		sessionRepo.On("FindByID", ctx, "sess-1").Return(session, nil)
		declineRepo.On("Create", ctx, "sess-1", "user-1", "user-2").Return(nil)

		require.NoError(t, svc.Decline(ctx, "sess-1", "user-1", "user-2"))
		require.NoError(t, svc.Decline(ctx, "sess-1", "user-1", "user-2"))
	})

	t.Run("rejects self decline", func(t *testing.T) {
		svc := NewDeclineService(new(mockDeclineRepo), new(mockSessionRepo))

		err := svc.Decline(ctx, "sess-1", "user-1", "user-1")
		assert.True(t, apperrors.HasCode(err, apperrors.ErrCodeInvalidInput))
	})

	t.Run("rejects empty target", func(t *testing.T) {
		svc := NewDeclineService(new(mockDeclineRepo), new(mockSessionRepo))

		err := svc.Decline(ctx, "sess-1", "user-1", "")
		assert.True(t, apperrors.HasCode(err, apperrors.ErrCodeInvalidInput))
	})

	t.Run("rejects non-owner", func(t *testing.T) {
		sessionRepo := new(mockSessionRepo)
		svc := NewDeclineService(new(mockDeclineRepo), sessionRepo)

		sessionRepo.On("FindByID", ctx, "sess-1").Return(session, nil)

		err := svc.Decline(ctx, "sess-1", "intruder", "user-2")
		assert.True(t, apperrors.HasCode(err, apperrors.ErrCodeNotOwner))
	})

	t.Run("rejects ended session", func(t *testing.T) {
		sessionRepo := new(mockSessionRepo)
		svc := NewDeclineService(new(mockDeclineRepo), sessionRepo)

		endedAt := time.Now().Add(-time.Minute)
		ended := &model.Session{
			ID:        "sess-1",
			UserID:    "user-1",
			ExpiresAt: time.Now().Add(20 * time.Minute),
			EndedAt:   &endedAt,
		}
		sessionRepo.On("FindByID", ctx, "sess-1").Return(ended, nil)

		err := svc.Decline(ctx, "sess-1", "user-1", "user-2")
		assert.True(t, apperrors.HasCode(err, apperrors.ErrCodeAlreadyEnded))
	})

	t.Run("unknown session", func(t *testing.T) {
		sessionRepo := new(mockSessionRepo)
		svc := NewDeclineService(new(mockDeclineRepo), sessionRepo)

		sessionRepo.On("FindByID", ctx, "missing").Return(nil, nil)

		err := svc.Decline(ctx, "missing", "user-1", "user-2")
		assert.True(t, apperrors.HasCode(err, apperrors.ErrCodeNotFound))
	})
}
