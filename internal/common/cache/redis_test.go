package cache

import (
	"context"
	"errors"
	"strconv"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

func newTestCache(t *testing.T) (*RedisCache, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	c, err := NewRedisCacheWithClient(client)
	if err != nil {
		t.Fatalf("new cache: %v", err)
	}
	return c, mr
}

func TestGetMissingKeyReturnsEmpty(t *testing.T) {
	c, _ := newTestCache(t)
	v, err := c.Get(context.Background(), "absent")
	if err != nil || v != "" {
		t.Fatalf("expected empty miss, got %q err=%v", v, err)
	}
}

func TestGetWithCachedReadThrough(t *testing.T) {
	c, mr := newTestCache(t)
	ctx := context.Background()
	calls := 0
	fetch := func(context.Context) (int, error) {
		calls++
		return 42, nil
	}
	isEmpty := func(v int) bool { return v == 0 }
	marshal := func(v int) string { return strconv.Itoa(v) }
	unmarshal := func(s string) (int, error) { return strconv.Atoi(s) }

	for i := 0; i < 2; i++ {
		v, err := GetWithCached(ctx, c, "k", time.Minute, time.Second, isEmpty, marshal, unmarshal, fetch)
		if err != nil || v != 42 {
			t.Fatalf("unexpected value %d err=%v", v, err)
		}
	}
	if calls != 1 {
		t.Fatalf("expected one fetch, got %d", calls)
	}
	if ttl := mr.TTL("k"); ttl <= 0 || ttl > time.Minute {
		t.Fatalf("unexpected ttl %v", ttl)
	}
}

func TestGetWithCachedCachesEmpty(t *testing.T) {
	c, mr := newTestCache(t)
	ctx := context.Background()
	calls := 0
	fetch := func(context.Context) (*string, error) {
		calls++
		return nil, nil
	}
	isEmpty := func(v *string) bool { return v == nil }
	marshal := func(v *string) string { return *v }
	unmarshal := func(s string) (*string, error) { return &s, nil }

	for i := 0; i < 2; i++ {
		v, err := GetWithCached(ctx, c, "none", time.Minute, time.Second, isEmpty, marshal, unmarshal, fetch)
		if err != nil || v != nil {
			t.Fatalf("expected nil, got %v err=%v", v, err)
		}
	}
	if calls != 1 {
		t.Fatalf("expected null value to be cached, got %d fetches", calls)
	}
	if got, _ := mr.Get("none"); got != NullCacheValue {
		t.Fatalf("expected null sentinel, got %q", got)
	}
}

func TestGetWithCachedPropagatesError(t *testing.T) {
	c, mr := newTestCache(t)
	boom := errors.New("db down")
	_, err := GetWithCached(context.Background(), c, "err", time.Minute, time.Second,
		func(int) bool { return false },
		strconv.Itoa,
		strconv.Atoi,
		func(context.Context) (int, error) { return 0, boom },
	)
	if !errors.Is(err, boom) {
		t.Fatalf("expected fetch error, got %v", err)
	}
	if mr.Exists("err") {
		t.Fatalf("errors must not be cached")
	}
}

func TestGetWithCachedCollapsesConcurrentMisses(t *testing.T) {
	c, _ := newTestCache(t)
	release := make(chan struct{})
	var calls atomic.Int32
	fetch := func(context.Context) (int, error) {
		calls.Add(1)
		<-release
		return 7, nil
	}

	const callers = 8
	var wg sync.WaitGroup
	results := make([]int, callers)
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			v, _ := GetWithCached(context.Background(), c, "hot", time.Minute, time.Second,
				func(v int) bool { return v == 0 }, strconv.Itoa, strconv.Atoi, fetch)
			results[i] = v
		}(i)
	}
	// Let the callers pile up on the in-flight load before releasing it.
	time.Sleep(50 * time.Millisecond)
	close(release)
	wg.Wait()

	if n := calls.Load(); n != 1 {
		t.Fatalf("expected one fetch, got %d", n)
	}
	for i, v := range results {
		if v != 7 {
			t.Fatalf("caller %d got %d", i, v)
		}
	}
}

func TestJitterTTL(t *testing.T) {
	ttl := 10 * time.Minute
	for i := 0; i < 20; i++ {
		got := JitterTTL(ttl)
		if got > ttl || got < ttl-ttl/10 {
			t.Fatalf("jitter out of range: %v", got)
		}
	}
	if JitterTTL(0) != 0 {
		t.Fatalf("zero ttl must stay zero")
	}
}
