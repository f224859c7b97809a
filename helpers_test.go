package podauth_test

import (
	"sync"
	"time"

	"github.com/goliatone/go-podauth"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func (c *fakeClock) Clock() podauth.Clock {
	return c.Now
}

func newChallenge(clock *fakeClock, email string, purpose podauth.Purpose, code string) *podauth.Challenge {
	now := clock.Now()
	return &podauth.Challenge{
		Email:     email,
		Purpose:   purpose,
		Code:      code,
		IssuedAt:  now,
		ExpiresAt: now.Add(podauth.DefaultOTPTTL),
	}
}
