//go:build integration
// +build integration

// Package test holds end-to-end scenarios run against a real Redis.
//
//	REDIS_ADDR=127.0.0.1:6379 go test -tags integration ./test/...
package test

import (
	"context"
	"fmt"
	"os"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"

	authcore "github.com/TSavo/authcore"
)

var testSecret = []byte("integration-secret-integration-s")

func redisAddr() string {
	if addr := os.Getenv("REDIS_ADDR"); addr != "" {
		return addr
	}
	return "127.0.0.1:6379"
}

// newIntegrationEngine builds an engine against the shared Redis under a
// unique prefix, and removes that prefix's keys on cleanup. The prefix is
// returned for tests that need to reach behind the engine's back.
func newIntegrationEngine(t *testing.T, mutate func(*authcore.Config)) (*redis.Client, *authcore.Engine, string) {
	t.Helper()

	client := redis.NewClient(&redis.Options{Addr: redisAddr()})
	if err := client.Ping(context.Background()).Err(); err != nil {
		t.Skipf("redis not reachable at %s: %v", redisAddr(), err)
	}

	prefix := fmt.Sprintf("ac-it-%d", time.Now().UnixNano())

	cfg := authcore.Config{
		Store: authcore.StoreConfig{KeyPrefix: prefix},
		JWT: authcore.JWTConfig{
			AccessTTL:     15 * time.Minute,
			RefreshTTL:    time.Hour,
			SigningMethod: "hs256",
			Secret:        testSecret,
			Issuer:        "authcore-integration",
		},
		RateLimit: authcore.RateLimitConfig{
			Enabled:  true,
			Profiles: authcore.DefaultRateProfiles(),
		},
		Delay: authcore.DelayConfig{
			Enabled:      true,
			Base:         time.Second,
			Factor:       2,
			Max:          time.Minute,
			JitterFactor: 0.1,
			CounterTTL:   time.Hour,
		},
		Sessions: authcore.SessionConfig{IndexGrace: time.Hour},
		Metrics:  authcore.MetricsConfig{Enabled: true},
	}
	if mutate != nil {
		mutate(&cfg)
	}

	engine, err := authcore.New().WithConfig(cfg).WithRedis(client).Build()
	if err != nil {
		t.Fatalf("Build failed: %v", err)
	}

	t.Cleanup(func() {
		engine.Close()
		flushPrefix(t, client, prefix)
		_ = client.Close()
	})

	return client, engine, prefix
}

func flushPrefix(t *testing.T, client *redis.Client, prefix string) {
	t.Helper()
	ctx := context.Background()

	var cursor uint64
	for {
		keys, next, err := client.Scan(ctx, cursor, prefix+":*", 500).Result()
		if err != nil {
			t.Logf("cleanup scan failed: %v", err)
			return
		}
		if len(keys) > 0 {
			_ = client.Del(ctx, keys...).Err()
		}
		cursor = next
		if cursor == 0 {
			return
		}
	}
}
