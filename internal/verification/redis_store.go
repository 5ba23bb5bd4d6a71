package verification

import (
	"context"
	"crypto/subtle"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// consumeScript checks the digest and either deletes the challenge or bumps
// its attempt counter, in one round trip.
// KEYS[1] = challenge key, ARGV[1] = provided digest, ARGV[2] = max attempts
var consumeScript = redis.NewScript(`
local stored = redis.call('HGET', KEYS[1], 'code_hash')
if not stored then
  return {err='not_found'}
end
if stored ~= ARGV[1] then
  local attempts = redis.call('HINCRBY', KEYS[1], 'attempts', 1)
  if attempts >= tonumber(ARGV[2]) then
    redis.call('DEL', KEYS[1])
    return {err='attempts_exceeded'}
  end
  return {err='code_mismatch'}
end
local fields = redis.call('HMGET', KEYS[1], 'phone', 'subject')
redis.call('DEL', KEYS[1])
return {fields[1] or '', fields[2] or '', stored}
`)

// RedisStore keeps challenges in Redis hashes with a TTL.
type RedisStore struct {
	client *redis.Client
	prefix string
}

// NewRedisStore creates a Redis-backed challenge store.
func NewRedisStore(client *redis.Client) *RedisStore {
	return &RedisStore{client: client, prefix: "otp:v1:"}
}

func (s *RedisStore) key(id string) string {
	return s.prefix + id
}

func (s *RedisStore) Save(ctx context.Context, ch Challenge, ttl time.Duration) error {
	key := s.key(ch.ID)
	pipe := s.client.TxPipeline()
	pipe.HSet(ctx, key, "phone", ch.Phone, "subject", ch.Subject, "code_hash", ch.CodeHash, "attempts", 0)
	pipe.Expire(ctx, key, ttl)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	return nil
}

func (s *RedisStore) Consume(ctx context.Context, id, code string, maxAttempts int) (Challenge, error) {
	digest := HashCode(code)
	res, err := consumeScript.Run(ctx, s.client, []string{s.key(id)}, digest, maxAttempts).StringSlice()
	if err != nil {
		switch err.Error() {
		case "not_found":
			return Challenge{}, ErrNotFound
		case "attempts_exceeded":
			return Challenge{}, ErrAttemptsExceeded
		case "code_mismatch":
			return Challenge{}, ErrCodeMismatch
		default:
			return Challenge{}, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
		}
	}
	if len(res) != 3 {
		return Challenge{}, fmt.Errorf("%w: unexpected script result", ErrStoreUnavailable)
	}
	if subtle.ConstantTimeCompare([]byte(res[2]), []byte(digest)) != 1 {
		return Challenge{}, ErrCodeMismatch
	}
	return Challenge{ID: id, Phone: res[0], Subject: res[1], CodeHash: res[2]}, nil
}
