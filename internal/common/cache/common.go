package cache

import (
	"context"
	"crypto/rand"
	"math/big"
	"time"

	"golang.org/x/sync/singleflight"
)

// NullCacheValue marks a cached miss so absent ids do not hit the database on every poll.
const NullCacheValue = "$NULL$"

// loads collapses concurrent misses on the same key into one fetch.
var loads singleflight.Group

// GetWithCached reads key through the cache. On a miss fn is called once per key no matter
// how many callers are waiting; empty results are cached for emptyTTL and returned as the
// zero value.
//
//	sub, err := GetWithCached(ctx, c, "judge:submission:"+id, time.Hour, time.Minute,
//		func(s *model.Submission) bool { return s == nil },
//		marshalSubmission, unmarshalSubmission,
//		func(ctx context.Context) (*model.Submission, error) { return repo.fromDB(ctx, id) })
func GetWithCached[T any](
	ctx context.Context,
	cache Cache,
	key string,
	ttl time.Duration,
	emptyTTL time.Duration,
	isEmpty func(T) bool,
	marshal func(T) string,
	unmarshal func(string) (T, error),
	fn func(context.Context) (T, error),
) (T, error) {
	var zero T

	if cached, err := cache.Get(ctx, key); err == nil && cached != "" {
		if cached == NullCacheValue {
			return zero, nil
		}
		// An undecodable entry is treated as a miss and overwritten below.
		if result, err := unmarshal(cached); err == nil {
			return result, nil
		}
	}

	v, err, _ := loads.Do(key, func() (interface{}, error) {
		data, err := fn(ctx)
		if err != nil {
			return zero, err
		}
		if isEmpty(data) {
			_ = cache.Set(ctx, key, NullCacheValue, emptyTTL)
			return zero, nil
		}
		_ = cache.Set(ctx, key, marshal(data), ttl)
		return data, nil
	})
	if err != nil {
		return zero, err
	}
	result, _ := v.(T)
	return result, nil
}

// UpdateCached runs fn and then drops key, so the next read repopulates it.
func UpdateCached(ctx context.Context, cache Cache, key string, fn func(context.Context) error) error {
	if err := fn(ctx); err != nil {
		return err
	}
	_ = cache.Del(ctx, key)
	return nil
}

// JitterTTL shortens ttl by up to 10% so keys written together do not expire together.
func JitterTTL(ttl time.Duration) time.Duration {
	if ttl <= 0 {
		return ttl
	}
	maxJitter := int64(ttl / 10)
	if maxJitter <= 0 {
		return ttl
	}
	n, err := rand.Int(rand.Reader, big.NewInt(maxJitter+1))
	if err != nil {
		return ttl
	}
	return ttl - time.Duration(n.Int64())
}
