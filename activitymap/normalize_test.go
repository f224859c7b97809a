package activitymap_test

import (
	"context"
	"testing"
	"time"

	"github.com/goliatone/go-podauth"
	"github.com/goliatone/go-podauth/activitymap"
)

func TestNormalizeDefaults(t *testing.T) {
	t.Parallel()

	ts := time.Date(2026, 1, 10, 9, 30, 0, 0, time.UTC)
	event := podauth.ActivityEvent{
		EventType: podauth.ActivityEventOTPIssued,
		UserID:    "user-100",
		Email:     "ada@Example.com",
		Metadata: map[string]any{
			"purpose": string(podauth.PurposePasswordReset),
		},
		OccurredAt: ts,
	}

	out := activitymap.Normalize(event)

	if out.ActorID != "user-100" {
		t.Fatalf("expected actor_id user-100, got %q", out.ActorID)
	}
	if out.Verb != string(podauth.ActivityEventOTPIssued) {
		t.Fatalf("expected verb %q, got %q", podauth.ActivityEventOTPIssued, out.Verb)
	}
	if out.ObjectType != "identity" {
		t.Fatalf("expected object_type identity, got %q", out.ObjectType)
	}
	if out.ObjectID != "user-100" {
		t.Fatalf("expected object_id user-100, got %q", out.ObjectID)
	}
	if out.Channel != "auth" {
		t.Fatalf("expected channel auth, got %q", out.Channel)
	}
	if !out.OccurredAt.Equal(ts) {
		t.Fatalf("expected occurred_at %v, got %v", ts, out.OccurredAt)
	}

	if out.Metadata["purpose"] != string(podauth.PurposePasswordReset) {
		t.Fatalf("expected metadata purpose, got %#v", out.Metadata["purpose"])
	}
	if out.Metadata[activitymap.MetadataKeyEmailDomain] != "example.com" {
		t.Fatalf("expected email_domain example.com, got %#v", out.Metadata[activitymap.MetadataKeyEmailDomain])
	}
	if _, ok := out.Metadata[activitymap.MetadataKeyOutcome]; ok {
		t.Fatalf("expected no outcome for a successful event")
	}

	if len(event.Metadata) != 1 {
		t.Fatalf("expected source metadata to remain unchanged, got %+v", event.Metadata)
	}
}

func TestNormalizeFailures(t *testing.T) {
	t.Parallel()

	for _, eventType := range []podauth.ActivityEventType{
		podauth.ActivityEventSigninFailure,
		podauth.ActivityEventOTPFailed,
	} {
		out := activitymap.Normalize(podauth.ActivityEvent{EventType: eventType})
		if out.Metadata[activitymap.MetadataKeyOutcome] != "failure" {
			t.Fatalf("expected failure outcome for %s, got %#v", eventType, out.Metadata)
		}
	}
}

func TestNormalizeOptionOverrides(t *testing.T) {
	t.Parallel()

	now := time.Date(2026, 2, 1, 0, 0, 0, 0, time.UTC)
	out := activitymap.Normalize(
		podauth.ActivityEvent{EventType: podauth.ActivityEventPasswordReset, UserID: "user-200"},
		activitymap.WithDefaultChannel("security"),
		activitymap.WithDefaultObjectType("account"),
		activitymap.WithClock(func() time.Time { return now }),
	)

	if out.Channel != "security" {
		t.Fatalf("expected channel security, got %q", out.Channel)
	}
	if out.ObjectType != "account" {
		t.Fatalf("expected object_type account, got %q", out.ObjectType)
	}
	if !out.OccurredAt.Equal(now) {
		t.Fatalf("expected occurred_at from clock, got %v", out.OccurredAt)
	}
	if out.Metadata != nil {
		t.Fatalf("expected nil metadata, got %#v", out.Metadata)
	}
}

func TestNormalizeActorFallback(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		event  podauth.ActivityEvent
		opts   []activitymap.Option
		expect string
	}{
		{
			name:   "uses user id when present",
			event:  podauth.ActivityEvent{UserID: "user-2"},
			expect: "user-2",
		},
		{
			name:   "uses default fallback when user missing",
			event:  podauth.ActivityEvent{Email: "ghost@example.com"},
			expect: "anonymous",
		},
		{
			name:   "uses configured fallback when user missing",
			event:  podauth.ActivityEvent{},
			opts:   []activitymap.Option{activitymap.WithActorFallback("job")},
			expect: "job",
		},
	}

	for _, tc := range tests {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			out := activitymap.Normalize(tc.event, tc.opts...)
			if out.ActorID != tc.expect {
				t.Fatalf("expected actor_id %q, got %q", tc.expect, out.ActorID)
			}
		})
	}
}

func TestSink(t *testing.T) {
	t.Parallel()

	var got activitymap.Normalized
	sink := activitymap.Sink(func(ctx context.Context, n activitymap.Normalized) error {
		got = n
		return nil
	}, activitymap.WithDefaultChannel("podstream"))

	err := sink.Record(context.Background(), podauth.ActivityEvent{
		EventType: podauth.ActivityEventSignup,
		UserID:    "user-9",
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got.Verb != string(podauth.ActivityEventSignup) || got.Channel != "podstream" {
		t.Fatalf("unexpected normalized record %+v", got)
	}
}
