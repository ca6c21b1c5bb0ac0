package redis

import (
	"context"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	redislib "github.com/redis/go-redis/v9"
)

// startRedis runs an in-process server and a client that are both closed
// when the test ends.
func startRedis(t *testing.T) (*redislib.Client, *miniredis.Miniredis) {
	t.Helper()

	mr := miniredis.RunT(t)
	client := redislib.NewClient(&redislib.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	return client, mr
}

func TestReportCacheAndIdempotencyShareOneServer(t *testing.T) {
	client, mr := startRedis(t)
	ctx := context.Background()

	cache := NewCache(client)
	idem := NewIdempotencyStore(client)

	const key = "POST /api/v1/sales till-1-0001"
	if err := cache.Set(ctx, key, []byte(`{"total_revenue":"30"}`), time.Hour); err != nil {
		t.Fatalf("cache set: %v", err)
	}

	exists, _, err := idem.CheckAndSet(ctx, key, nil, time.Hour)
	if err != nil {
		t.Fatalf("check and set: %v", err)
	}

	if exists {
		t.Fatal("a cached report must not look like a claimed sale key")
	}

	if !mr.Exists("cache:"+key) || !mr.Exists("idempotency:"+key) {
		t.Fatalf("expected both prefixed keys, have %v", mr.Keys())
	}

	if err := idem.Release(ctx, key); err != nil {
		t.Fatalf("release: %v", err)
	}

	if got, err := cache.Get(ctx, key); err != nil || string(got) != `{"total_revenue":"30"}` {
		t.Fatalf("releasing the sale key touched the report cache: %q %v", got, err)
	}
}
