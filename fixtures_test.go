package podauth_test

import (
	"context"
	"database/sql"
	"fmt"
	"testing"
	"time"

	"github.com/goliatone/go-podauth"
	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/sqlitedialect"
	"github.com/uptrace/bun/driver/sqliteshim"
	"golang.org/x/crypto/bcrypt"
)

type testConfig struct {
	signingKey          string
	tokenTTL            time.Duration
	refreshTTL          time.Duration
	issuer              string
	audience            []string
	otpLength           int
	otpTTL              time.Duration
	otpMaxAttempts      int
	resetTTL            time.Duration
	requireVerification bool
}

func newTestConfig() *testConfig {
	return &testConfig{
		signingKey:     "test-signing-key-0123456789abcdef",
		tokenTTL:       15 * time.Minute,
		refreshTTL:     24 * time.Hour,
		issuer:         "podauth-test",
		audience:       []string{"podstream"},
		otpLength:      6,
		otpTTL:         10 * time.Minute,
		otpMaxAttempts: 5,
		resetTTL:       15 * time.Minute,
	}
}

func (c *testConfig) GetSigningKey() string { return c.signingKey }
func (c *testConfig) GetTokenExpiration() time.Duration { return c.tokenTTL }
func (c *testConfig) GetRefreshTokenExpiration() time.Duration { return c.refreshTTL }
func (c *testConfig) GetIssuer() string { return c.issuer }
func (c *testConfig) GetAudience() []string { return c.audience }
func (c *testConfig) GetOTPLength() int { return c.otpLength }
func (c *testConfig) GetOTPExpiration() time.Duration { return c.otpTTL }
func (c *testConfig) GetOTPMaxAttempts() int { return c.otpMaxAttempts }
func (c *testConfig) GetResetSessionExpiration() time.Duration { return c.resetTTL }
func (c *testConfig) GetRequireEmailVerification() bool { return c.requireVerification }

// newTestDB returns a migrated in memory sqlite database private to t
func newTestDB(t *testing.T) *bun.DB {
	t.Helper()

	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", uuid.NewString())
	sqldb, err := sql.Open(sqliteshim.ShimName, dsn)
	require.NoError(t, err)
	sqldb.SetMaxOpenConns(1)

	db := bun.NewDB(sqldb, sqlitedialect.New())
	t.Cleanup(func() { db.Close() })

	_, err = podauth.Migrate(context.Background(), db)
	require.NoError(t, err)

	return db
}

type harness struct {
	machine  *podauth.SessionMachine
	repo     podauth.RepositoryManager
	tokens   *podauth.TokenService
	store    *podauth.MemoryChallengeStore
	outbox   *outbox
	activity *activityRecorder
	clock    *fakeClock
	cfg      *testConfig
}

type harnessOption func(*harnessSetup)

type harnessSetup struct {
	cfg      *testConfig
	notifier podauth.Notifier
}

func withConfig(fn func(*testConfig)) harnessOption {
	return func(s *harnessSetup) {
		fn(s.cfg)
	}
}

func withNotifier(n podauth.Notifier) harnessOption {
	return func(s *harnessSetup) {
		s.notifier = n
	}
}

func newHarness(t *testing.T, opts ...harnessOption) *harness {
	t.Helper()

	setup := &harnessSetup{cfg: newTestConfig()}
	for _, opt := range opts {
		opt(setup)
	}

	h := &harness{
		cfg:      setup.cfg,
		clock:    newFakeClock(),
		outbox:   newOutbox(),
		activity: &activityRecorder{},
	}

	notifier := setup.notifier
	if notifier == nil {
		notifier = h.outbox
	}

	db := newTestDB(t)
	h.repo = podauth.NewRepositoryManager(db)
	require.NoError(t, h.repo.Validate())

	h.tokens = podauth.NewTokenService(h.cfg,
		podauth.WithTokenClock(h.clock.Clock()),
		podauth.WithRefreshTokenStore(h.repo.RefreshTokens()),
	)

	h.store = podauth.NewMemoryChallengeStore(podauth.ChallengeStoreOptions{
		MaxAttempts: h.cfg.otpMaxAttempts,
		ResetTTL:    h.cfg.resetTTL,
	}, podauth.WithMemoryStoreClock(h.clock.Clock()))

	h.machine = podauth.NewSessionMachine(h.repo, h.tokens, h.store, notifier, h.cfg,
		podauth.WithPasswordHasher(podauth.NewBcryptHasher(bcrypt.MinCost)),
		podauth.WithActivitySink(h.activity),
		podauth.WithClock(h.clock.Clock()),
	)

	return h
}
