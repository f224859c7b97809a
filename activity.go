package podauth

import (
	"context"
	"time"
)

// ActivityEventType enumerates supported activity categories.
type ActivityEventType string

const (
	ActivityEventSignup           ActivityEventType = "auth.signup"
	ActivityEventSigninSuccess    ActivityEventType = "auth.signin.success"
	ActivityEventSigninFailure    ActivityEventType = "auth.signin.failure"
	ActivityEventFederatedSignin  ActivityEventType = "auth.signin.federated"
	ActivityEventOTPIssued        ActivityEventType = "auth.otp.issued"
	ActivityEventOTPVerified      ActivityEventType = "auth.otp.verified"
	ActivityEventOTPFailed        ActivityEventType = "auth.otp.failed"
	ActivityEventResetSessionOpen ActivityEventType = "auth.reset_session.opened"
	ActivityEventPasswordReset    ActivityEventType = "auth.password.reset"
)

// ActivityEvent captures audit-friendly information about an action.
// Codes and passwords never go into Metadata.
type ActivityEvent struct {
	EventType  ActivityEventType
	UserID     string
	Email      string
	Metadata   map[string]any
	OccurredAt time.Time
}

// ActivitySink consumes activity events for auditing/telemetry purposes.
type ActivitySink interface {
	Record(ctx context.Context, event ActivityEvent) error
}

// ActivitySinkFunc adapts a function to the ActivitySink interface.
type ActivitySinkFunc func(ctx context.Context, event ActivityEvent) error

// Record implements ActivitySink.
func (f ActivitySinkFunc) Record(ctx context.Context, event ActivityEvent) error {
	if f == nil {
		return nil
	}
	return f(ctx, event)
}

type noopActivitySink struct{}

func (noopActivitySink) Record(context.Context, ActivityEvent) error {
	return nil
}

func normalizeActivitySink(s ActivitySink) ActivitySink {
	if s == nil {
		return noopActivitySink{}
	}
	return s
}
