package podauth

import (
	"context"
	"crypto/subtle"
	"time"

	"github.com/puzpuzpuz/xsync/v3"
)

// MemoryChallengeStore keeps challenges in process. Every transition runs
// inside xsync's per key Compute, which makes verification an atomic
// compare-and-consume.
type MemoryChallengeStore struct {
	challenges *xsync.MapOf[ChallengeKey, Challenge]
	grants     *xsync.MapOf[string, ResetGrant]
	opts       ChallengeStoreOptions
	clock      Clock
	logger     Logger
}

var _ ChallengeStore = (*MemoryChallengeStore)(nil)

// MemoryStoreOption configures a MemoryChallengeStore
type MemoryStoreOption func(*MemoryChallengeStore)

// WithMemoryStoreClock overrides the time source
func WithMemoryStoreClock(c Clock) MemoryStoreOption {
	return func(s *MemoryChallengeStore) {
		s.clock = c
	}
}

// WithMemoryStoreLogger sets the logger
func WithMemoryStoreLogger(l Logger) MemoryStoreOption {
	return func(s *MemoryChallengeStore) {
		s.logger = normalizeLogger(l)
	}
}

// NewMemoryChallengeStore returns an empty store
func NewMemoryChallengeStore(opts ChallengeStoreOptions, options ...MemoryStoreOption) *MemoryChallengeStore {
	s := &MemoryChallengeStore{
		challenges: xsync.NewMapOf[ChallengeKey, Challenge](),
		grants:     xsync.NewMapOf[string, ResetGrant](),
		opts:       opts.withDefaults(),
		logger:     defLogger{},
	}
	for _, opt := range options {
		if opt != nil {
			opt(s)
		}
	}
	return s
}

func (s *MemoryChallengeStore) Put(ctx context.Context, challenge *Challenge) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.challenges.Store(challenge.Key(), *challenge)
	return nil
}

func (s *MemoryChallengeStore) Verify(ctx context.Context, key ChallengeKey, code string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	now := s.clock.now()
	var result error

	s.challenges.Compute(key, func(current Challenge, loaded bool) (Challenge, bool) {
		switch {
		case !loaded || current.Consumed:
			result = ErrWrongOTP
			return current, !loaded
		case current.Expired(now):
			result = ErrOTPExpired
			return current, true
		case subtle.ConstantTimeCompare([]byte(current.Code), []byte(code)) == 1:
			current.Consumed = true
			return current, false
		}

		current.Attempts++
		if current.Attempts >= s.opts.MaxAttempts {
			result = ErrOTPAttemptsExceeded
			return current, true
		}
		result = ErrWrongOTP
		return current, false
	})

	if result != nil {
		return result
	}

	if !key.Purpose.GrantsReset() {
		return nil
	}

	s.grants.Store(key.Email, ResetGrant{
		Email:     key.Email,
		State:     ResetGranted,
		ExpiresAt: now.Add(s.opts.ResetTTL),
	})

	return nil
}

func (s *MemoryChallengeStore) Discard(ctx context.Context, key ChallengeKey, code string) error {
	s.challenges.Compute(key, func(current Challenge, loaded bool) (Challenge, bool) {
		if !loaded {
			return current, true
		}
		return current, current.Code == code
	})
	return nil
}

func (s *MemoryChallengeStore) OpenResetSession(ctx context.Context, email string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	now := s.clock.now()
	result := ErrSessionExpired

	s.grants.Compute(email, func(current ResetGrant, loaded bool) (ResetGrant, bool) {
		if !loaded {
			return current, true
		}
		if !now.Before(current.ExpiresAt) {
			return current, true
		}
		if current.State != ResetGranted {
			return current, false
		}
		current.State = ResetSessionOpen
		result = nil
		return current, false
	})

	return result
}

func (s *MemoryChallengeStore) ConsumeResetGrant(ctx context.Context, email string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	now := s.clock.now()
	result := ErrSessionExpired

	s.grants.Compute(email, func(current ResetGrant, loaded bool) (ResetGrant, bool) {
		if loaded && now.Before(current.ExpiresAt) {
			result = nil
		}
		return current, true
	})

	return result
}

// Get returns a copy of the challenge stored for key
func (s *MemoryChallengeStore) Get(key ChallengeKey) (Challenge, bool) {
	return s.challenges.Load(key)
}

// Sweep evicts expired or consumed challenges and expired grants. It
// returns the number of removed entries.
func (s *MemoryChallengeStore) Sweep() int {
	now := s.clock.now()
	removed := 0

	s.challenges.Range(func(key ChallengeKey, _ Challenge) bool {
		s.challenges.Compute(key, func(current Challenge, loaded bool) (Challenge, bool) {
			evict := !loaded || current.Consumed || current.Expired(now)
			if evict && loaded {
				removed++
			}
			return current, evict
		})
		return true
	})

	s.grants.Range(func(email string, _ ResetGrant) bool {
		s.grants.Compute(email, func(current ResetGrant, loaded bool) (ResetGrant, bool) {
			evict := !loaded || !now.Before(current.ExpiresAt)
			if evict && loaded {
				removed++
			}
			return current, evict
		})
		return true
	})

	return removed
}

// StartJanitor sweeps every interval until ctx is done
func (s *MemoryChallengeStore) StartJanitor(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = time.Minute
	}

	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if n := s.Sweep(); n > 0 {
					s.logger.Debug("challenge store sweep", "removed", n)
				}
			}
		}
	}()
}
