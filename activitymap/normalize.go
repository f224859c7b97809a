package activitymap

import (
	"context"
	"strings"
	"time"

	"github.com/goliatone/go-podauth"
)

const (
	// MetadataKeyEmailDomain stores the domain part of the event email.
	// The full address is kept out of normalized records.
	MetadataKeyEmailDomain = "email_domain"
	// MetadataKeyOutcome is "failure" for failed signins and OTP checks
	MetadataKeyOutcome = "outcome"
)

const (
	defaultChannel    = "auth"
	defaultObjectType = "identity"
	defaultActorID    = "anonymous"
)

// Normalized is a transport-agnostic activity shape for downstream systems.
type Normalized struct {
	ActorID    string         `json:"actor_id"`
	Verb       string         `json:"verb"`
	ObjectType string         `json:"object_type,omitempty"`
	ObjectID   string         `json:"object_id,omitempty"`
	Channel    string         `json:"channel,omitempty"`
	Metadata   map[string]any `json:"metadata,omitempty"`
	OccurredAt time.Time      `json:"occurred_at"`
}

// Option customizes normalization behavior.
type Option func(*normalizeOptions)

type normalizeOptions struct {
	channel       string
	objectType    string
	actorFallback string
	clock         func() time.Time
}

// Normalize converts a podauth.ActivityEvent into a generic normalized shape.
func Normalize(event podauth.ActivityEvent, opts ...Option) Normalized {
	options := defaultNormalizeOptions()
	for _, opt := range opts {
		if opt != nil {
			opt(&options)
		}
	}

	userID := strings.TrimSpace(event.UserID)
	actorID := firstNonEmpty(userID, options.actorFallback)

	occurredAt := event.OccurredAt
	if occurredAt.IsZero() {
		occurredAt = options.clock()
	}

	return Normalized{
		ActorID:    actorID,
		Verb:       string(event.EventType),
		ObjectType: options.objectType,
		ObjectID:   userID,
		Channel:    options.channel,
		Metadata:   normalizeMetadata(event),
		OccurredAt: occurredAt,
	}
}

// Sink returns an ActivitySink handing normalized records to fn
func Sink(fn func(context.Context, Normalized) error, opts ...Option) podauth.ActivitySink {
	return podauth.ActivitySinkFunc(func(ctx context.Context, event podauth.ActivityEvent) error {
		return fn(ctx, Normalize(event, opts...))
	})
}

// WithDefaultChannel sets the default channel for normalized records.
func WithDefaultChannel(channel string) Option {
	return func(opts *normalizeOptions) {
		opts.channel = strings.TrimSpace(channel)
	}
}

// WithDefaultObjectType sets the default object type for normalized records.
func WithDefaultObjectType(objectType string) Option {
	return func(opts *normalizeOptions) {
		opts.objectType = strings.TrimSpace(objectType)
	}
}

// WithActorFallback sets the actor id used for events without a user,
// like a signin attempt for an unknown email.
func WithActorFallback(actorID string) Option {
	return func(opts *normalizeOptions) {
		opts.actorFallback = strings.TrimSpace(actorID)
	}
}

// WithClock sets the time used for events without OccurredAt
func WithClock(clock func() time.Time) Option {
	return func(opts *normalizeOptions) {
		if clock != nil {
			opts.clock = clock
		}
	}
}

func defaultNormalizeOptions() normalizeOptions {
	return normalizeOptions{
		channel:       defaultChannel,
		objectType:    defaultObjectType,
		actorFallback: defaultActorID,
		clock:         func() time.Time { return time.Now().UTC() },
	}
}

func normalizeMetadata(event podauth.ActivityEvent) map[string]any {
	metadata := cloneMap(event.Metadata)

	if domain := emailDomain(event.Email); domain != "" {
		if metadata == nil {
			metadata = map[string]any{}
		}
		metadata[MetadataKeyEmailDomain] = domain
	}

	switch event.EventType {
	case podauth.ActivityEventSigninFailure, podauth.ActivityEventOTPFailed:
		if metadata == nil {
			metadata = map[string]any{}
		}
		metadata[MetadataKeyOutcome] = "failure"
	}

	return metadata
}

func emailDomain(email string) string {
	at := strings.LastIndexByte(email, '@')
	if at < 0 || at == len(email)-1 {
		return ""
	}
	return strings.ToLower(email[at+1:])
}

func cloneMap(in map[string]any) map[string]any {
	if len(in) == 0 {
		return nil
	}
	out := make(map[string]any, len(in))
	for key, value := range in {
		out[key] = value
	}
	return out
}

func firstNonEmpty(values ...string) string {
	for _, value := range values {
		if value != "" {
			return value
		}
	}
	return ""
}
