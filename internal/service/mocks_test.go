package service

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/jmoiron/sqlx"
	goredis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/mock"

	"github.com/lateshift-app/afterhours-server/internal/database"
	"github.com/lateshift-app/afterhours-server/internal/external"
	"github.com/lateshift-app/afterhours-server/internal/model"
	redisclient "github.com/lateshift-app/afterhours-server/internal/redis"
	"github.com/lateshift-app/afterhours-server/internal/repository"
	"github.com/lateshift-app/afterhours-server/internal/sse"
)

// Mock session repository

type mockSessionRepo struct {
	mock.Mock
}

func (m *mockSessionRepo) FindByID(ctx context.Context, id string) (*model.Session, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.Session), args.Error(1)
}

func (m *mockSessionRepo) FindActiveByUserID(ctx context.Context, userID string) (*model.Session, error) {
	args := m.Called(ctx, userID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.Session), args.Error(1)
}

func (m *mockSessionRepo) Create(ctx context.Context, params model.CreateSessionParams) (*model.Session, error) {
	args := m.Called(ctx, params)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.Session), args.Error(1)
}

func (m *mockSessionRepo) MarkEnded(ctx context.Context, id string) (bool, error) {
	args := m.Called(ctx, id)
	return args.Bool(0), args.Error(1)
}

func (m *mockSessionRepo) ListCandidates(ctx context.Context, sessionID, userID string) ([]model.Session, error) {
	args := m.Called(ctx, sessionID, userID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]model.Session), args.Error(1)
}

func (m *mockSessionRepo) ExpireOverdue(ctx context.Context) (int64, error) {
	args := m.Called(ctx)
	return args.Get(0).(int64), args.Error(1)
}

func (m *mockSessionRepo) ListExpiringSoon(ctx context.Context, within time.Duration) ([]model.Session, error) {
	args := m.Called(ctx, within)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]model.Session), args.Error(1)
}

func (m *mockSessionRepo) MarkExpiryNotified(ctx context.Context, id string) error {
	args := m.Called(ctx, id)
	return args.Error(0)
}

func (m *mockSessionRepo) DeleteEndedBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	args := m.Called(ctx, cutoff)
	return args.Get(0).(int64), args.Error(1)
}

// Mock connection repository

type mockConnectionRepo struct {
	mock.Mock
}

func (m *mockConnectionRepo) FindByID(ctx context.Context, id string) (*model.Connection, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.Connection), args.Error(1)
}

func (m *mockConnectionRepo) FindBySessions(ctx context.Context, sessionA, sessionB string) (*model.Connection, error) {
	args := m.Called(ctx, sessionA, sessionB)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.Connection), args.Error(1)
}

func (m *mockConnectionRepo) Create(ctx context.Context, params model.CreateConnectionParams) (*model.Connection, error) {
	args := m.Called(ctx, params)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.Connection), args.Error(1)
}

func (m *mockConnectionRepo) ListOpenBySession(ctx context.Context, sessionID string) ([]model.Connection, error) {
	args := m.Called(ctx, sessionID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]model.Connection), args.Error(1)
}

func (m *mockConnectionRepo) LockByID(ctx context.Context, id string) (*model.Connection, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.Connection), args.Error(1)
}

func (m *mockConnectionRepo) CastVote(ctx context.Context, id, userID string, at time.Time) error {
	args := m.Called(ctx, id, userID, at)
	return args.Error(0)
}

func (m *mockConnectionRepo) MarkConverted(ctx context.Context, id, permanentID string, at time.Time) error {
	args := m.Called(ctx, id, permanentID, at)
	return args.Error(0)
}

func (m *mockConnectionRepo) DeleteExpired(ctx context.Context, grace time.Duration) (int64, error) {
	args := m.Called(ctx, grace)
	return args.Get(0).(int64), args.Error(1)
}

func (m *mockConnectionRepo) DeleteConvertedBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	args := m.Called(ctx, cutoff)
	return args.Get(0).(int64), args.Error(1)
}

func (m *mockConnectionRepo) WithTx(tx *sqlx.Tx) repository.ConnectionRepository {
	return m
}

// Mock message repository

type mockMessageRepo struct {
	mock.Mock
}

func (m *mockMessageRepo) Create(ctx context.Context, params model.CreateMessageParams) (*model.Message, error) {
	args := m.Called(ctx, params)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.Message), args.Error(1)
}

func (m *mockMessageRepo) ListByConnection(ctx context.Context, connectionID string) ([]model.Message, error) {
	args := m.Called(ctx, connectionID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]model.Message), args.Error(1)
}

func (m *mockMessageRepo) WithTx(tx *sqlx.Tx) repository.MessageRepository {
	return m
}

// Mock decline repository

type mockDeclineRepo struct {
	mock.Mock
}

func (m *mockDeclineRepo) Create(ctx context.Context, sessionID, decliningUserID, declinedUserID string) error {
	args := m.Called(ctx, sessionID, decliningUserID, declinedUserID)
	return args.Error(0)
}

// External collaborator fakes

type fakeEligibility struct {
	result external.EligibilityResult
	err    error
}

func (f *fakeEligibility) IsEligible(ctx context.Context, userID string) (external.EligibilityResult, error) {
	return f.result, f.err
}

type fakeBlockChecker struct {
	blocked map[string]bool
	err     error
}

func (f *fakeBlockChecker) IsBlocked(ctx context.Context, userA, userB string) (bool, error) {
	if f.err != nil {
		return false, f.err
	}
	return f.blocked[userA+"|"+userB] || f.blocked[userB+"|"+userA], nil
}

type appendedMessage struct {
	senderID string
	body     string
}

type fakePermanentStore struct {
	relationshipID string
	createErr      error
	appendErr      error
	created        [][2]string
	appended       []appendedMessage
}

func (f *fakePermanentStore) CreateRelationship(ctx context.Context, userA, userB string) (string, error) {
	if f.createErr != nil {
		return "", f.createErr
	}
	f.created = append(f.created, [2]string{userA, userB})
	return f.relationshipID, nil
}

func (f *fakePermanentStore) AppendMessage(ctx context.Context, permanentID, senderID, body string, createdAt time.Time) error {
	if f.appendErr != nil {
		return f.appendErr
	}
	f.appended = append(f.appended, appendedMessage{senderID: senderID, body: body})
	return nil
}

type notifiedEvent struct {
	userID    string
	eventType string
}

type fakeNotifier struct {
	events []notifiedEvent
}

func (f *fakeNotifier) Notify(ctx context.Context, userID, eventType string, payload any) {
	f.events = append(f.events, notifiedEvent{userID: userID, eventType: eventType})
}

// fakeTxRunner invokes the transaction body directly. The mock repositories
// ignore the tx handle, so passing nil is safe.
type fakeTxRunner struct{}

func (fakeTxRunner) WithTx(ctx context.Context, fn database.TxFunc) error {
	return fn(nil)
}

func testRedis(t *testing.T) *redisclient.Client {
	t.Helper()

	mr := miniredis.RunT(t)
	client := goredis.NewClient(&goredis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })

	return &redisclient.Client{Client: client}
}

func testBroker(t *testing.T) *sse.Broker {
	t.Helper()

	broker := sse.NewBroker(testRedis(t))
	t.Cleanup(broker.Close)
	return broker
}
