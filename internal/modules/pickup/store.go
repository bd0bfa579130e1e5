// README: Pickup code store backed by Redis hashes with TTL.
package pickup

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"bento/internal/types"
)

const codeKeyPrefix = "pickup:order:%s:code"

// consumeScript atomically validates and marks a code redeemed so two
// concurrent redeems cannot both win.
var consumeScript = redis.NewScript(`
local code = redis.call('HGET', KEYS[1], 'code')
if not code then return 'expired' end
local exp = tonumber(redis.call('HGET', KEYS[1], 'expires_at'))
if tonumber(ARGV[2]) > exp then return 'expired' end
if redis.call('HGET', KEYS[1], 'redeemed') == '1' then return 'mismatch' end
if code ~= ARGV[1] then return 'mismatch' end
redis.call('HSET', KEYS[1], 'redeemed', '1')
return 'ok'
`)

// revokeScript flags an existing record redeemed without touching its TTL.
// Deleting the record instead would make a later attempt look expired; the
// flagged record keeps answering mismatch until the TTL lapses.
var revokeScript = redis.NewScript(`
if redis.call('EXISTS', KEYS[1]) == 1 then
  redis.call('HSET', KEYS[1], 'redeemed', '1')
end
return 0
`)

type RedisStore struct {
	redis *redis.Client
}

func NewRedisStore(client *redis.Client) *RedisStore {
	return &RedisStore{redis: client}
}

func codeKey(orderID types.ID) string {
	return fmt.Sprintf(codeKeyPrefix, string(orderID))
}

func (s *RedisStore) Put(ctx context.Context, orderID types.ID, rec Record, ttl time.Duration) error {
	key := codeKey(orderID)
	pipe := s.redis.Pipeline()
	pipe.Del(ctx, key)
	pipe.HSet(ctx, key,
		"code", rec.Code,
		"expires_at", rec.ExpiresAt.Unix(),
		"redeemed", boolField(rec.Redeemed),
	)
	pipe.Expire(ctx, key, ttl)
	_, err := pipe.Exec(ctx)
	return err
}

func (s *RedisStore) Get(ctx context.Context, orderID types.ID) (Record, bool, error) {
	vals, err := s.redis.HGetAll(ctx, codeKey(orderID)).Result()
	if err != nil {
		return Record{}, false, err
	}
	if len(vals) == 0 {
		return Record{}, false, nil
	}
	exp, err := strconv.ParseInt(vals["expires_at"], 10, 64)
	if err != nil {
		return Record{}, false, fmt.Errorf("corrupt expires_at: %w", err)
	}
	return Record{
		Code:      vals["code"],
		ExpiresAt: time.Unix(exp, 0),
		Redeemed:  vals["redeemed"] == "1",
	}, true, nil
}

func (s *RedisStore) Consume(ctx context.Context, orderID types.ID, code string, now time.Time) (ConsumeResult, error) {
	res, err := consumeScript.Run(ctx, s.redis, []string{codeKey(orderID)}, code, now.Unix()).Text()
	if err != nil {
		return ConsumeMismatch, err
	}
	switch res {
	case "ok":
		return ConsumeOK, nil
	case "expired":
		return ConsumeExpired, nil
	default:
		return ConsumeMismatch, nil
	}
}

func (s *RedisStore) Revoke(ctx context.Context, orderID types.ID) error {
	return revokeScript.Run(ctx, s.redis, []string{codeKey(orderID)}).Err()
}

func boolField(v bool) string {
	if v {
		return "1"
	}
	return "0"
}
