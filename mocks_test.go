package podauth_test

import (
	"context"
	"sync"

	"github.com/goliatone/go-podauth"
	"github.com/stretchr/testify/mock"
)

// MockNotifier implements podauth.Notifier
type MockNotifier struct {
	mock.Mock
}

func (m *MockNotifier) SendOTP(ctx context.Context, n podauth.OTPNotification) error {
	args := m.Called(ctx, n)
	return args.Error(0)
}

// MockTokenValidator implements podauth.TokenValidator
type MockTokenValidator struct {
	mock.Mock
}

func (m *MockTokenValidator) Validate(token string) (podauth.AuthClaims, error) {
	args := m.Called(token)
	claims, _ := args.Get(0).(podauth.AuthClaims)
	return claims, args.Error(1)
}

// outbox records every notification and remembers the last code per key
type outbox struct {
	mu    sync.Mutex
	sent  []podauth.OTPNotification
	codes map[podauth.ChallengeKey]string
}

func newOutbox() *outbox {
	return &outbox{codes: map[podauth.ChallengeKey]string{}}
}

func (o *outbox) SendOTP(ctx context.Context, n podauth.OTPNotification) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.sent = append(o.sent, n)
	o.codes[podauth.ChallengeKey{Email: n.Email, Purpose: n.Purpose}] = n.Code
	return nil
}

func (o *outbox) Code(email string, purpose podauth.Purpose) string {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.codes[podauth.ChallengeKey{Email: email, Purpose: purpose}]
}

func (o *outbox) Sent() []podauth.OTPNotification {
	o.mu.Lock()
	defer o.mu.Unlock()
	return append([]podauth.OTPNotification(nil), o.sent...)
}

// activityRecorder collects activity events
type activityRecorder struct {
	mu     sync.Mutex
	events []podauth.ActivityEvent
}

func (r *activityRecorder) Record(ctx context.Context, event podauth.ActivityEvent) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, event)
	return nil
}

func (r *activityRecorder) Types() []podauth.ActivityEventType {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]podauth.ActivityEventType, 0, len(r.events))
	for _, e := range r.events {
		out = append(out, e.EventType)
	}
	return out
}
