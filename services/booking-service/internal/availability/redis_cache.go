package availability

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

// generationField holds the invalidation counter inside the date hash.
// Service fields are UUIDs or "-", so it cannot collide.
const generationField = "_gen"

// RedisCache keeps one hash per company and date, one field per service
// plus the generation. The TTL is set when the hash is created, so every
// service for a date expires together.
type RedisCache struct {
	rdb redis.UniversalClient
	ttl time.Duration
}

// KEYS[1] hash; ARGV service field, json slots, ttl ms, expected generation.
var setSlotsScript = redis.NewScript(`
local gen = tonumber(redis.call("HGET", KEYS[1], "_gen") or "0")
if gen ~= tonumber(ARGV[4]) then
  return 0
end
redis.call("HSET", KEYS[1], ARGV[1], ARGV[2])
if redis.call("PTTL", KEYS[1]) < 0 then
  redis.call("PEXPIRE", KEYS[1], ARGV[3])
end
return 1
`)

// KEYS[1] hash; ARGV ttl ms. Leaves only the bumped generation behind.
var invalidateScript = redis.NewScript(`
local gen = tonumber(redis.call("HGET", KEYS[1], "_gen") or "0") + 1
redis.call("DEL", KEYS[1])
redis.call("HSET", KEYS[1], "_gen", gen)
redis.call("PEXPIRE", KEYS[1], ARGV[1])
return gen
`)

func NewRedisCache(rdb redis.UniversalClient, ttl time.Duration) *RedisCache {
	return &RedisCache{rdb: rdb, ttl: ttl}
}

func (c *RedisCache) Get(ctx context.Context, companyID, date, serviceID string) (Lookup, error) {
	vals, err := c.rdb.HMGet(ctx, cacheKey(companyID, date), serviceField(serviceID), generationField).Result()
	if err != nil {
		return Lookup{}, err
	}
	var lk Lookup
	if raw, ok := vals[1].(string); ok {
		if lk.Generation, err = strconv.ParseInt(raw, 10, 64); err != nil {
			return Lookup{}, fmt.Errorf("slot cache generation %q: %w", raw, err)
		}
	}
	raw, ok := vals[0].(string)
	if !ok {
		return lk, nil
	}
	if err := json.Unmarshal([]byte(raw), &lk.Slots); err != nil {
		return Lookup{}, err
	}
	lk.Hit = true
	return lk, nil
}

func (c *RedisCache) Set(ctx context.Context, companyID, date, serviceID string, gen int64, slots []string) (bool, error) {
	if c.ttl <= 0 {
		return false, nil
	}
	if slots == nil {
		slots = []string{}
	}
	raw, err := json.Marshal(slots)
	if err != nil {
		return false, err
	}
	keys := []string{cacheKey(companyID, date)}
	stored, err := setSlotsScript.Run(ctx, c.rdb, keys, serviceField(serviceID), string(raw), c.ttl.Milliseconds(), gen).Int()
	if err != nil {
		return false, err
	}
	return stored == 1, nil
}

func (c *RedisCache) Invalidate(ctx context.Context, companyID, date string) error {
	key := cacheKey(companyID, date)
	if c.ttl <= 0 {
		return c.rdb.Del(ctx, key).Err()
	}
	return invalidateScript.Run(ctx, c.rdb, []string{key}, c.ttl.Milliseconds()).Err()
}

func (c *RedisCache) Ping(ctx context.Context) error {
	return c.rdb.Ping(ctx).Err()
}
