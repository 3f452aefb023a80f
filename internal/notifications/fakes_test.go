package notifications

import (
	"context"
	"sync"
	"time"

	"github.com/stretchr/testify/mock"

	"reportnotify/internal/external"
	"reportnotify/internal/types"
)

// fakeTokens hands out a fixed token, or err when set. With failAfter > 0 the
// first failAfter calls succeed and later ones return err.
type fakeTokens struct {
	token     string
	err       error
	failAfter int
	calls     int
}

func (f *fakeTokens) GetValidAccessToken(ctx context.Context) (string, error) {
	f.calls++
	if f.err != nil && f.calls > f.failAfter {
		return "", f.err
	}
	return f.token, nil
}

func (f *fakeTokens) ComputeSigningProof(accessToken string) string {
	return "proof(" + accessToken + ")"
}

// fakeProfiles maps phone numbers to platform ids.
type fakeProfiles struct {
	ids   map[string]string
	errs  map[string]error
	calls []string
}

func (f *fakeProfiles) GetProfile(ctx context.Context, accessToken, proof, phone string) (*external.ZaloProfile, error) {
	f.calls = append(f.calls, phone)
	if err := f.errs[phone]; err != nil {
		return nil, err
	}
	return &external.ZaloProfile{UserID: f.ids[phone]}, nil
}

// fakeSender returns a verdict per platform user id.
type fakeSender struct {
	mu       sync.Mutex
	verdicts map[string]*external.SendResult
	errs     map[string]error
	sent     []sentMessage
}

type sentMessage struct {
	accessToken, proof, userID, text string
}

func (f *fakeSender) SendTextMessage(ctx context.Context, accessToken, proof, userID, text string) (*external.SendResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sent = append(f.sent, sentMessage{accessToken, proof, userID, text})
	if err := f.errs[userID]; err != nil {
		return nil, err
	}
	if v, ok := f.verdicts[userID]; ok {
		return v, nil
	}
	return &external.SendResult{Delivered: true}, nil
}

type mockUserStore struct {
	mock.Mock
}

func (m *mockUserStore) GetByID(ctx context.Context, id int64) (*types.User, error) {
	args := m.Called(ctx, id)
	u, _ := args.Get(0).(*types.User)
	return u, args.Error(1)
}

func (m *mockUserStore) SetExternalMessagingID(ctx context.Context, id int64, externalID string) error {
	return m.Called(ctx, id, externalID).Error(0)
}

type mockReportStore struct {
	mock.Mock
}

func (m *mockReportStore) ListTargetUsers(ctx context.Context, requestID int64) ([]*types.User, error) {
	args := m.Called(ctx, requestID)
	users, _ := args.Get(0).([]*types.User)
	return users, args.Error(1)
}

func (m *mockReportStore) MarkNotifiedIfUnset(ctx context.Context, id int64, at time.Time) (bool, error) {
	args := m.Called(ctx, id, at)
	return args.Bool(0), args.Error(1)
}

func (m *mockReportStore) MarkNotified(ctx context.Context, id int64, at time.Time) error {
	return m.Called(ctx, id, at).Error(0)
}

type recordingMetrics struct {
	mu         sync.Mutex
	deliveries []types.DispatchResult
	triggers   []string
}

func (r *recordingMetrics) RecordDelivery(_ context.Context, trigger string, result types.DispatchResult) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.deliveries = append(r.deliveries, result)
	r.triggers = append(r.triggers, trigger)
}

func (r *recordingMetrics) RecordTokenRefresh(context.Context, error) {}
func (r *recordingMetrics) RecordTick(context.Context, time.Duration, int) {}

type recordingPublisher struct {
	events []types.DeadlineNotificationEvent
	err    error
}

func (p *recordingPublisher) PublishDeadlineNotification(_ context.Context, evt types.DeadlineNotificationEvent) error {
	p.events = append(p.events, evt)
	return p.err
}
