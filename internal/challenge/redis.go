package challenge

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/authpay/server/internal/model"
)

const (
	redisKeyPrefix = "authpay:challenge:"
	redisIndexKey  = "authpay:challenges"
)

// markVerifiedScript performs the atomic check-and-set transition server
// side. Return values: "not_found", "expired", "already_verified", "ok".
// Expiry is checked before the verified flag, matching the Store contract.
var markVerifiedScript = redis.NewScript(`
local expires = redis.call('HGET', KEYS[1], 'expires_at')
if not expires then
  return 'not_found'
end
if tonumber(expires) < tonumber(ARGV[1]) then
  redis.call('DEL', KEYS[1])
  redis.call('SREM', KEYS[2], ARGV[2])
  return 'expired'
end
if redis.call('HGET', KEYS[1], 'verified') == '1' then
  return 'already_verified'
end
redis.call('HSET', KEYS[1], 'verified', '1')
redis.call('HSET', KEYS[1], 'verified_at', ARGV[1])
return 'ok'
`)

// sweepOneScript deletes one challenge if it is past expiry. Orphaned index
// members (hash already gone) are pruned without counting as removed.
var sweepOneScript = redis.NewScript(`
local expires = redis.call('HGET', KEYS[1], 'expires_at')
if not expires then
  redis.call('SREM', KEYS[2], ARGV[2])
  return 0
end
if tonumber(expires) < tonumber(ARGV[1]) then
  redis.call('DEL', KEYS[1])
  redis.call('SREM', KEYS[2], ARGV[2])
  return 1
end
return 0
`)

// RedisStore is a Store backed by a Redis hash per challenge plus an index
// set for sweeping. All state transitions run as Lua scripts, so the
// at-most-once verify property holds across any number of service replicas.
type RedisStore struct {
	client *redis.Client
	ttl    time.Duration
}

var _ Store = (*RedisStore)(nil)

// NewRedisStore creates a redis-backed challenge store.
func NewRedisStore(client *redis.Client, ttl time.Duration) *RedisStore {
	return &RedisStore{client: client, ttl: ttl}
}

func (s *RedisStore) Create(ctx context.Context, ch model.Challenge) (model.Challenge, error) {
	ch.ID = uuid.NewString()
	ch.CreatedAt = time.Now()
	ch.ExpiresAt = ch.CreatedAt.Add(s.ttl)
	ch.Verified = false
	ch.VerifiedAt = nil

	key := redisKeyPrefix + ch.ID
	exists, err := s.client.Exists(ctx, key).Result()
	if err != nil {
		return model.Challenge{}, fmt.Errorf("check challenge key: %w", err)
	}
	if exists > 0 {
		return model.Challenge{}, ErrIDCollision
	}

	fields, err := encodeChallenge(ch)
	if err != nil {
		return model.Challenge{}, err
	}
	pipe := s.client.TxPipeline()
	pipe.HSet(ctx, key, fields)
	pipe.SAdd(ctx, redisIndexKey, ch.ID)
	if _, err := pipe.Exec(ctx); err != nil {
		return model.Challenge{}, fmt.Errorf("store challenge: %w", err)
	}
	return ch, nil
}

func (s *RedisStore) Get(ctx context.Context, id string) (model.Challenge, error) {
	fields, err := s.client.HGetAll(ctx, redisKeyPrefix+id).Result()
	if err != nil {
		return model.Challenge{}, fmt.Errorf("load challenge: %w", err)
	}
	if len(fields) == 0 {
		return model.Challenge{}, ErrNotFound
	}
	return decodeChallenge(id, fields)
}

func (s *RedisStore) MarkVerified(ctx context.Context, id string, now time.Time) (model.Challenge, error) {
	res, err := markVerifiedScript.Run(ctx, s.client,
		[]string{redisKeyPrefix + id, redisIndexKey},
		strconv.FormatInt(now.UnixNano(), 10), id,
	).Result()
	if err != nil {
		return model.Challenge{}, fmt.Errorf("mark verified: %w", err)
	}
	switch res {
	case "not_found":
		return model.Challenge{}, ErrNotFound
	case "expired":
		return model.Challenge{}, ErrExpired
	case "already_verified":
		return model.Challenge{}, ErrAlreadyVerified
	}
	return s.Get(ctx, id)
}

func (s *RedisStore) Delete(ctx context.Context, id string) error {
	pipe := s.client.TxPipeline()
	pipe.Del(ctx, redisKeyPrefix+id)
	pipe.SRem(ctx, redisIndexKey, id)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("delete challenge: %w", err)
	}
	return nil
}

func (s *RedisStore) Sweep(ctx context.Context, now time.Time) (int, error) {
	ids, err := s.client.SMembers(ctx, redisIndexKey).Result()
	if err != nil {
		return 0, fmt.Errorf("list challenges: %w", err)
	}
	nowArg := strconv.FormatInt(now.UnixNano(), 10)
	removed := 0
	for _, id := range ids {
		res, err := sweepOneScript.Run(ctx, s.client,
			[]string{redisKeyPrefix + id, redisIndexKey}, nowArg, id,
		).Int()
		if err != nil {
			return removed, fmt.Errorf("sweep challenge %s: %w", id, err)
		}
		removed += res
	}
	return removed, nil
}

func (s *RedisStore) Count(ctx context.Context) (int, error) {
	n, err := s.client.SCard(ctx, redisIndexKey).Result()
	if err != nil {
		return 0, fmt.Errorf("count challenges: %w", err)
	}
	return int(n), nil
}

func encodeChallenge(ch model.Challenge) (map[string]string, error) {
	fields := map[string]string{
		"merchant_id":  ch.MerchantID,
		"amount":       strconv.FormatFloat(ch.Amount, 'f', -1, 64),
		"currency":     ch.Currency,
		"email":        ch.Email,
		"geo":          ch.Geo,
		"mfa_required": boolField(ch.MFARequired),
		"reason":       string(ch.Reason),
		"created_at":   strconv.FormatInt(ch.CreatedAt.UnixNano(), 10),
		"expires_at":   strconv.FormatInt(ch.ExpiresAt.UnixNano(), 10),
		"verified":     boolField(ch.Verified),
	}
	if ch.Device != nil {
		device, err := json.Marshal(ch.Device)
		if err != nil {
			return nil, fmt.Errorf("encode device: %w", err)
		}
		fields["device"] = string(device)
	}
	return fields, nil
}

func decodeChallenge(id string, fields map[string]string) (model.Challenge, error) {
	ch := model.Challenge{
		ID:          id,
		MerchantID:  fields["merchant_id"],
		Currency:    fields["currency"],
		Email:       fields["email"],
		Geo:         fields["geo"],
		MFARequired: fields["mfa_required"] == "1",
		Reason:      model.Reason(fields["reason"]),
		Verified:    fields["verified"] == "1",
	}
	var err error
	if ch.Amount, err = strconv.ParseFloat(fields["amount"], 64); err != nil {
		return model.Challenge{}, fmt.Errorf("decode amount: %w", err)
	}
	createdAt, err := strconv.ParseInt(fields["created_at"], 10, 64)
	if err != nil {
		return model.Challenge{}, fmt.Errorf("decode created_at: %w", err)
	}
	ch.CreatedAt = time.Unix(0, createdAt)
	expiresAt, err := strconv.ParseInt(fields["expires_at"], 10, 64)
	if err != nil {
		return model.Challenge{}, fmt.Errorf("decode expires_at: %w", err)
	}
	ch.ExpiresAt = time.Unix(0, expiresAt)
	if v := fields["verified_at"]; v != "" {
		n, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			return model.Challenge{}, fmt.Errorf("decode verified_at: %w", err)
		}
		t := time.Unix(0, n)
		ch.VerifiedAt = &t
	}
	if v := fields["device"]; v != "" {
		ch.Device = &model.Device{}
		if err := json.Unmarshal([]byte(v), ch.Device); err != nil {
			return model.Challenge{}, fmt.Errorf("decode device: %w", err)
		}
	}
	return ch, nil
}

func boolField(b bool) string {
	if b {
		return "1"
	}
	return "0"
}
