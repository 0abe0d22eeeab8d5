package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	apperrors "github.com/lateshift-app/afterhours-server/internal/errors"
	"github.com/lateshift-app/afterhours-server/internal/external"
	"github.com/lateshift-app/afterhours-server/internal/model"
)

func TestCastSaveVote(t *testing.T) {
	ctx := context.Background()
	grace := 30 * time.Minute

	t.Run("first vote records and notifies peer", func(t *testing.T) {
		connRepo := new(mockConnectionRepo)
		notifier := &fakeNotifier{}
		svc := NewConvertService(fakeTxRunner{}, connRepo, new(mockMessageRepo), &fakePermanentStore{}, notifier, testBroker(t), grace)

		before := openConnection(time.Now().Add(10 * time.Minute))
		voted := *before
		now := time.Now()
		voted.VoteA = &now

		connRepo.On("LockByID", ctx, "conn-1").Return(before, nil)
		connRepo.On("CastVote", ctx, "conn-1", "user-a", mock.AnythingOfType("time.Time")).Return(nil)
		connRepo.On("FindByID", ctx, "conn-1").Return(&voted, nil)

		result, err := svc.CastSaveVote(ctx, "conn-1", "user-a")
		require.NoError(t, err)
		assert.False(t, result.Converted)
		assert.Empty(t, result.PermanentID)

		require.Len(t, notifier.events, 1)
		assert.Equal(t, "user-b", notifier.events[0].userID)
		assert.Equal(t, external.EventSaveRequested, notifier.events[0].eventType)
	})

	t.Run("repeat vote changes nothing and re-notifies no one", func(t *testing.T) {
		connRepo := new(mockConnectionRepo)
		notifier := &fakeNotifier{}
		svc := NewConvertService(fakeTxRunner{}, connRepo, new(mockMessageRepo), &fakePermanentStore{}, notifier, testBroker(t), grace)

		now := time.Now()
		voted := openConnection(time.Now().Add(10 * time.Minute))
		voted.VoteA = &now

		connRepo.On("LockByID", ctx, "conn-1").Return(voted, nil)
		connRepo.On("CastVote", ctx, "conn-1", "user-a", mock.AnythingOfType("time.Time")).Return(nil)
		connRepo.On("FindByID", ctx, "conn-1").Return(voted, nil)

		result, err := svc.CastSaveVote(ctx, "conn-1", "user-a")
		require.NoError(t, err)
		assert.False(t, result.Converted)
		assert.Empty(t, notifier.events)
	})

	t.Run("completing the pair converts and copies messages in order", func(t *testing.T) {
		connRepo := new(mockConnectionRepo)
		messageRepo := new(mockMessageRepo)
		store := &fakePermanentStore{relationshipID: "rel-99"}
		notifier := &fakeNotifier{}
		svc := NewConvertService(fakeTxRunner{}, connRepo, messageRepo, store, notifier, testBroker(t), grace)

		now := time.Now()
		before := openConnection(time.Now().Add(10 * time.Minute))
		before.VoteA = &now

		after := *before
		after.VoteB = &now

		connRepo.On("LockByID", ctx, "conn-1").Return(before, nil)
		connRepo.On("CastVote", ctx, "conn-1", "user-b", mock.AnythingOfType("time.Time")).Return(nil)
		connRepo.On("FindByID", ctx, "conn-1").Return(&after, nil)
		messageRepo.On("ListByConnection", ctx, "conn-1").Return([]model.Message{
			{ID: "m1", SenderID: "user-a", Body: "first", Seq: 1},
			{ID: "m2", SenderID: "user-b", Body: "second", Seq: 2},
			{ID: "m3", SenderID: "user-a", Body: "third", Seq: 3},
		}, nil)
		connRepo.On("MarkConverted", ctx, "conn-1", "rel-99", mock.AnythingOfType("time.Time")).Return(nil)

		result, err := svc.CastSaveVote(ctx, "conn-1", "user-b")
		require.NoError(t, err)
		assert.True(t, result.Converted)
		assert.Equal(t, "rel-99", result.PermanentID)

		require.Len(t, store.created, 1)
		assert.Equal(t, [2]string{"user-a", "user-b"}, store.created[0])

		require.Len(t, store.appended, 3)
		assert.Equal(t, "first", store.appended[0].body)
		assert.Equal(t, "second", store.appended[1].body)
		assert.Equal(t, "third", store.appended[2].body)
		assert.Equal(t, "user-b", store.appended[1].senderID)

		// Both participants learn of the confirmed save.
		require.Len(t, notifier.events, 2)
		for _, ev := range notifier.events {
			assert.Equal(t, external.EventSaveConfirmed, ev.eventType)
		}

		connRepo.AssertExpectations(t)
	})

	t.Run("permanent store failure rolls back and leaves connection open", func(t *testing.T) {
		connRepo := new(mockConnectionRepo)
		messageRepo := new(mockMessageRepo)
		store := &fakePermanentStore{createErr: errors.New("core api 503")}
		svc := NewConvertService(fakeTxRunner{}, connRepo, messageRepo, store, &fakeNotifier{}, testBroker(t), grace)

		now := time.Now()
		before := openConnection(time.Now().Add(10 * time.Minute))
		before.VoteA = &now
		after := *before
		after.VoteB = &now

		connRepo.On("LockByID", ctx, "conn-1").Return(before, nil)
		connRepo.On("CastVote", ctx, "conn-1", "user-b", mock.AnythingOfType("time.Time")).Return(nil)
		connRepo.On("FindByID", ctx, "conn-1").Return(&after, nil)
		messageRepo.On("ListByConnection", ctx, "conn-1").Return([]model.Message{}, nil)

		_, err := svc.CastSaveVote(ctx, "conn-1", "user-b")
		assert.True(t, apperrors.HasCode(err, apperrors.ErrCodeExternal))
		connRepo.AssertNotCalled(t, "MarkConverted", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
	})

	t.Run("message copy failure also rolls back", func(t *testing.T) {
		connRepo := new(mockConnectionRepo)
		messageRepo := new(mockMessageRepo)
		store := &fakePermanentStore{relationshipID: "rel-1", appendErr: errors.New("timeout")}
		svc := NewConvertService(fakeTxRunner{}, connRepo, messageRepo, store, &fakeNotifier{}, testBroker(t), grace)

		now := time.Now()
		before := openConnection(time.Now().Add(10 * time.Minute))
		before.VoteA = &now
		after := *before
		after.VoteB = &now

		connRepo.On("LockByID", ctx, "conn-1").Return(before, nil)
		connRepo.On("CastVote", ctx, "conn-1", "user-b", mock.AnythingOfType("time.Time")).Return(nil)
		connRepo.On("FindByID", ctx, "conn-1").Return(&after, nil)
		messageRepo.On("ListByConnection", ctx, "conn-1").Return([]model.Message{
			{ID: "m1", SenderID: "user-a", Body: "only one", Seq: 1},
		}, nil)

		_, err := svc.CastSaveVote(ctx, "conn-1", "user-b")
		assert.True(t, apperrors.HasCode(err, apperrors.ErrCodeExternal))
		connRepo.AssertNotCalled(t, "MarkConverted", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
	})

	t.Run("voting stays open through the grace period", func(t *testing.T) {
		connRepo := new(mockConnectionRepo)
		svc := NewConvertService(fakeTxRunner{}, connRepo, new(mockMessageRepo), &fakePermanentStore{}, &fakeNotifier{}, testBroker(t), grace)

		// Expired five minutes ago, still inside the 30 minute grace window.
		inGrace := openConnection(time.Now().Add(-5 * time.Minute))
		now := time.Now()
		voted := *inGrace
		voted.VoteA = &now

		connRepo.On("LockByID", ctx, "conn-1").Return(inGrace, nil)
		connRepo.On("CastVote", ctx, "conn-1", "user-a", mock.AnythingOfType("time.Time")).Return(nil)
		connRepo.On("FindByID", ctx, "conn-1").Return(&voted, nil)

		result, err := svc.CastSaveVote(ctx, "conn-1", "user-a")
		require.NoError(t, err)
		assert.False(t, result.Converted)
	})

	t.Run("rejects vote after the grace period", func(t *testing.T) {
		connRepo := new(mockConnectionRepo)
		svc := NewConvertService(fakeTxRunner{}, connRepo, new(mockMessageRepo), &fakePermanentStore{}, &fakeNotifier{}, testBroker(t), grace)

		stale := openConnection(time.Now().Add(-45 * time.Minute))
		connRepo.On("LockByID", ctx, "conn-1").Return(stale, nil)

		_, err := svc.CastSaveVote(ctx, "conn-1", "user-a")
		assert.True(t, apperrors.HasCode(err, apperrors.ErrCodeConnectionNotOpen))
	})

	t.Run("rejects vote on converted connection", func(t *testing.T) {
		connRepo := new(mockConnectionRepo)
		svc := NewConvertService(fakeTxRunner{}, connRepo, new(mockMessageRepo), &fakePermanentStore{}, &fakeNotifier{}, testBroker(t), grace)

		converted := openConnection(time.Now().Add(10 * time.Minute))
		converted.State = model.ConnectionStateConverted
		connRepo.On("LockByID", ctx, "conn-1").Return(converted, nil)

		_, err := svc.CastSaveVote(ctx, "conn-1", "user-a")
		assert.True(t, apperrors.HasCode(err, apperrors.ErrCodeConnectionTerminal))
	})

	t.Run("rejects non-participant", func(t *testing.T) {
		connRepo := new(mockConnectionRepo)
		svc := NewConvertService(fakeTxRunner{}, connRepo, new(mockMessageRepo), &fakePermanentStore{}, &fakeNotifier{}, testBroker(t), grace)

		connRepo.On("LockByID", ctx, "conn-1").Return(openConnection(time.Now().Add(10*time.Minute)), nil)

		_, err := svc.CastSaveVote(ctx, "conn-1", "outsider")
		assert.True(t, apperrors.HasCode(err, apperrors.ErrCodeNotParticipant))
	})

	t.Run("unknown connection", func(t *testing.T) {
		connRepo := new(mockConnectionRepo)
		svc := NewConvertService(fakeTxRunner{}, connRepo, new(mockMessageRepo), &fakePermanentStore{}, &fakeNotifier{}, testBroker(t), grace)

		connRepo.On("LockByID", ctx, "missing").Return(nil, nil)

		_, err := svc.CastSaveVote(ctx, "missing", "user-a")
		assert.True(t, apperrors.HasCode(err, apperrors.ErrCodeNotFound))
	})
}
