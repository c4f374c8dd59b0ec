package cache

import (
	"context"
	"errors"
	"fmt"
	"itinerary-route-service/internal/platform/obs"
	"itinerary-route-service/internal/ports"
	"time"

	"github.com/goccy/go-json"
	goredis "github.com/redis/go-redis/v9"
)

const distanceKeyPrefix = "itinerary:distance:"

type distanceEntry struct {
	Meters  int `json:"m"`
	Seconds int `json:"s"`
}

// RedisDistanceCache keeps provider-sourced hops in Redis with a TTL, in
// front of (or instead of) the SQL cache.
type RedisDistanceCache struct {
	rdb *goredis.Client
	ttl time.Duration
}

func NewRedisDistanceCache(rdb *goredis.Client, ttl time.Duration) *RedisDistanceCache {
	return &RedisDistanceCache{rdb: rdb, ttl: ttl}
}

// NewRedisClient connects and pings the server.
func NewRedisClient(ctx context.Context, addr string) (*goredis.Client, error) {
	rdb := goredis.NewClient(&goredis.Options{
		Addr:        addr,
		DialTimeout: 5 * time.Second,
	})

	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("redis ping: %w", err)
	}
	return rdb, nil
}

func redisKey(k ports.DistanceKey) string {
	return distanceKeyPrefix + string(k.Mode) + ":" + k.Origin + ":" + k.Destination
}

func (c *RedisDistanceCache) GetMany(
	ctx context.Context,
	keys []ports.DistanceKey,
) (_ map[ports.DistanceKey]ports.DistanceResult, err error) {
	defer obs.Time(ctx, "distance.redis.GetMany")(&err)

	if c.rdb == nil {
		return nil, errors.New("redis distance cache: client is nil")
	}

	uniq := uniqueDistanceKeys(keys)
	out := make(map[ports.DistanceKey]ports.DistanceResult, len(uniq))
	if len(uniq) == 0 {
		return out, nil
	}

	rkeys := make([]string, len(uniq))
	for i, k := range uniq {
		rkeys[i] = redisKey(k)
	}
	vals, err := c.rdb.MGet(ctx, rkeys...).Result()
	if err != nil {
		return nil, fmt.Errorf("get redis distance cache: mget: %w", err)
	}

	for i, v := range vals {
		s, ok := v.(string)
		if !ok {
			continue
		}
		var e distanceEntry
		if err := json.Unmarshal([]byte(s), &e); err != nil {
			// A corrupt entry is a miss; the next put overwrites it.
			continue
		}
		out[uniq[i]] = ports.DistanceResult{DistanceMeters: e.Meters, DurationSeconds: e.Seconds}
	}
	return out, nil
}

// PutMany stores provider-sourced hops in one pipeline. Estimated results
// are skipped.
func (c *RedisDistanceCache) PutMany(ctx context.Context, entries map[ports.DistanceKey]ports.DistanceResult) error {
	if c.rdb == nil {
		return errors.New("redis distance cache: client is nil")
	}
	if len(entries) == 0 {
		return nil
	}

	pipe := c.rdb.Pipeline()
	queued := 0
	for k, r := range entries {
		if r.Estimated || !validDistanceKey(k) {
			continue
		}
		raw, err := json.Marshal(distanceEntry{Meters: r.DistanceMeters, Seconds: r.DurationSeconds})
		if err != nil {
			return fmt.Errorf("put redis distance cache: encode: %w", err)
		}
		pipe.Set(ctx, redisKey(k), raw, c.ttl)
		queued++
	}
	if queued == 0 {
		return nil
	}

	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("put redis distance cache: exec pipeline: %w", err)
	}
	return nil
}

// TieredDistanceCache reads from the first cache that has a key and writes
// to all of them. Hits from a lower tier are copied up.
type TieredDistanceCache struct {
	tiers []ports.DistanceCache
}

func NewTieredDistanceCache(tiers ...ports.DistanceCache) *TieredDistanceCache {
	return &TieredDistanceCache{tiers: tiers}
}

func (t *TieredDistanceCache) GetMany(
	ctx context.Context,
	keys []ports.DistanceKey,
) (map[ports.DistanceKey]ports.DistanceResult, error) {
	out := make(map[ports.DistanceKey]ports.DistanceResult, len(keys))
	missing := keys
	var errs []error
	for i, tier := range t.tiers {
		if len(missing) == 0 {
			break
		}
		hits, err := tier.GetMany(ctx, missing)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		for k, v := range hits {
			out[k] = v
		}
		if i > 0 && len(hits) > 0 {
			for _, upper := range t.tiers[:i] {
				_ = upper.PutMany(ctx, hits)
			}
		}

		next := missing[:0:0]
		for _, k := range missing {
			if _, ok := hits[k]; !ok {
				next = append(next, k)
			}
		}
		missing = next
	}
	if len(out) == 0 && len(errs) == len(t.tiers) && len(errs) > 0 {
		return nil, errors.Join(errs...)
	}
	return out, nil
}

func (t *TieredDistanceCache) PutMany(ctx context.Context, entries map[ports.DistanceKey]ports.DistanceResult) error {
	var errs []error
	for _, tier := range t.tiers {
		if err := tier.PutMany(ctx, entries); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
