package podauth

import (
	"context"
	"strconv"
	"time"

	"github.com/goliatone/go-errors"
	"github.com/redis/go-redis/v9"
)

const defaultRedisNamespace = "podauth"

// verify returns 1 on success, 0 for a missing challenge, -1 for a wrong
// code and -2 once the attempts limit is reached. The reset grant is only
// written when ARGV[4] is "1".
var verifyChallengeScript = redis.NewScript(`
local code = redis.call('HGET', KEYS[1], 'code')
if not code then
	return 0
end
if code == ARGV[1] then
	redis.call('DEL', KEYS[1])
	if ARGV[4] == '1' then
		redis.call('SET', KEYS[2], 'granted', 'PX', ARGV[3])
	end
	return 1
end
local attempts = redis.call('HINCRBY', KEYS[1], 'attempts', 1)
if attempts >= tonumber(ARGV[2]) then
	redis.call('DEL', KEYS[1])
	return -2
end
return -1
`)

var discardChallengeScript = redis.NewScript(`
if redis.call('HGET', KEYS[1], 'code') == ARGV[1] then
	return redis.call('DEL', KEYS[1])
end
return 0
`)

var openResetSessionScript = redis.NewScript(`
if redis.call('GET', KEYS[1]) ~= 'granted' then
	return 0
end
local ttl = redis.call('PTTL', KEYS[1])
if ttl <= 0 then
	redis.call('DEL', KEYS[1])
	return 0
end
redis.call('SET', KEYS[1], 'open', 'PX', ttl)
return 1
`)

var consumeResetGrantScript = redis.NewScript(`
if redis.call('GET', KEYS[1]) then
	redis.call('DEL', KEYS[1])
	return 1
end
return 0
`)

// RedisChallengeStore shares challenges between instances. Expiry is
// delegated to key TTLs, so an expired code looks like a missing one and
// fails with ErrWrongOTP.
type RedisChallengeStore struct {
	client    redis.UniversalClient
	namespace string
	opts      ChallengeStoreOptions
}

var _ ChallengeStore = (*RedisChallengeStore)(nil)

// NewRedisChallengeStore returns a store using client. Keys are prefixed
// with namespace, "podauth" when empty.
func NewRedisChallengeStore(client redis.UniversalClient, namespace string, opts ChallengeStoreOptions) *RedisChallengeStore {
	if namespace == "" {
		namespace = defaultRedisNamespace
	}
	return &RedisChallengeStore{
		client:    client,
		namespace: namespace,
		opts:      opts.withDefaults(),
	}
}

func (s *RedisChallengeStore) challengeKey(key ChallengeKey) string {
	return s.namespace + ":otp:" + key.String()
}

func (s *RedisChallengeStore) grantKey(email string) string {
	return s.namespace + ":reset:" + email
}

func (s *RedisChallengeStore) Put(ctx context.Context, challenge *Challenge) error {
	ttl := challenge.ExpiresAt.Sub(challenge.IssuedAt)
	if ttl <= 0 {
		return errors.New("challenge expiry must be after issuance", errors.CategoryBadInput)
	}

	key := s.challengeKey(challenge.Key())
	_, err := s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Del(ctx, key)
		pipe.HSet(ctx, key,
			"code", challenge.Code,
			"attempts", 0,
			"issued_at", challenge.IssuedAt.Unix(),
		)
		pipe.PExpire(ctx, key, ttl)
		return nil
	})
	if err != nil {
		return errors.Wrap(err, errors.CategoryInternal, "failed to store challenge")
	}
	return nil
}

func (s *RedisChallengeStore) Verify(ctx context.Context, key ChallengeKey, code string) error {
	grant := "0"
	if key.Purpose.GrantsReset() {
		grant = "1"
	}

	res, err := verifyChallengeScript.Run(ctx, s.client,
		[]string{s.challengeKey(key), s.grantKey(key.Email)},
		code,
		s.opts.MaxAttempts,
		strconv.FormatInt(s.opts.ResetTTL.Milliseconds(), 10),
		grant,
	).Int()
	if err != nil {
		return errors.Wrap(err, errors.CategoryInternal, "failed to verify challenge")
	}

	switch res {
	case 1:
		return nil
	case -2:
		return ErrOTPAttemptsExceeded
	default:
		return ErrWrongOTP
	}
}

func (s *RedisChallengeStore) Discard(ctx context.Context, key ChallengeKey, code string) error {
	if err := discardChallengeScript.Run(ctx, s.client, []string{s.challengeKey(key)}, code).Err(); err != nil {
		return errors.Wrap(err, errors.CategoryInternal, "failed to discard challenge")
	}
	return nil
}

func (s *RedisChallengeStore) OpenResetSession(ctx context.Context, email string) error {
	res, err := openResetSessionScript.Run(ctx, s.client, []string{s.grantKey(email)}).Int()
	if err != nil {
		return errors.Wrap(err, errors.CategoryInternal, "failed to open reset session")
	}
	if res != 1 {
		return ErrSessionExpired
	}
	return nil
}

func (s *RedisChallengeStore) ConsumeResetGrant(ctx context.Context, email string) error {
	res, err := consumeResetGrantScript.Run(ctx, s.client, []string{s.grantKey(email)}).Int()
	if err != nil {
		return errors.Wrap(err, errors.CategoryInternal, "failed to consume reset grant")
	}
	if res != 1 {
		return ErrSessionExpired
	}
	return nil
}

// TTL returns the remaining lifetime of the challenge stored for key
func (s *RedisChallengeStore) TTL(ctx context.Context, key ChallengeKey) (time.Duration, error) {
	return s.client.PTTL(ctx, s.challengeKey(key)).Result()
}
