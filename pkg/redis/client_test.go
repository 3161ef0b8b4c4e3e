package redis

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
)

func TestFixedWindowAllow(t *testing.T) {
	ctx := context.Background()
	mock := newMockCmdable()
	now := time.Date(2026, 1, 5, 9, 0, 15, 0, time.UTC)
	client := &Client{store: mock, now: func() time.Time { return now }}

	decision, err := client.FixedWindowAllow(ctx, "generate:user-1", 2, time.Minute)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !decision.Allowed || decision.Count != 1 {
		t.Fatalf("expected first hit allowed, got %+v", decision)
	}
	if decision.ResetIn != 45*time.Second {
		t.Fatalf("expected reset in 45s, got %s", decision.ResetIn)
	}
	if len(mock.expireCalls) != 1 || mock.expireCalls[0].ttl != time.Minute {
		t.Fatalf("expected one expire with window ttl, got %+v", mock.expireCalls)
	}

	decision, _ = client.FixedWindowAllow(ctx, "generate:user-1", 2, time.Minute)
	if !decision.Allowed || decision.Count != 2 || len(mock.expireCalls) != 1 {
		t.Fatalf("unexpected second hit %+v expires=%d", decision, len(mock.expireCalls))
	}

	decision, _ = client.FixedWindowAllow(ctx, "generate:user-1", 2, time.Minute)
	if decision.Allowed {
		t.Fatalf("expected limit reached")
	}

	now = now.Add(time.Minute)
	decision, _ = client.FixedWindowAllow(ctx, "generate:user-1", 2, time.Minute)
	if !decision.Allowed || decision.Count != 1 {
		t.Fatalf("next window should start a fresh counter, got %+v", decision)
	}
	if len(mock.expireCalls) != 2 || mock.expireCalls[0].key == mock.expireCalls[1].key {
		t.Fatalf("expected a distinct key per window, got %+v", mock.expireCalls)
	}
}

func TestFixedWindowAllowRejectsZeroWindow(t *testing.T) {
	client := &Client{store: newMockCmdable()}
	if _, err := client.FixedWindowAllow(context.Background(), "scope", 1, 0); err == nil {
		t.Fatal("expected error for zero window")
	}
}

func TestIdempotencyReservationLifecycle(t *testing.T) {
	ctx := context.Background()
	mock := newMockCmdable()
	client := &Client{store: mock}
	key := client.IdempotencyKey("user-1|POST|/api/billing/checkout", "abc")

	if _, ok, err := client.Lookup(ctx, key); err != nil || ok {
		t.Fatalf("expected unknown key, got ok=%v err=%v", ok, err)
	}

	won, err := client.Reserve(ctx, key, time.Minute)
	if err != nil || !won {
		t.Fatalf("expected first reservation to win, got %v %v", won, err)
	}
	won, err = client.Reserve(ctx, key, time.Minute)
	if err != nil || won {
		t.Fatalf("expected second reservation to lose, got %v %v", won, err)
	}
	if value, ok, _ := client.Lookup(ctx, key); !ok || value != InFlightMarker {
		t.Fatalf("expected in-flight marker, got %q", value)
	}

	if err := client.Complete(ctx, key, `{"status":201}`, time.Hour); err != nil {
		t.Fatalf("complete failed: %v", err)
	}
	if value, _, _ := client.Lookup(ctx, key); value != `{"status":201}` {
		t.Fatalf("unexpected record %q", value)
	}

	if err := client.Release(ctx, key); err != nil {
		t.Fatalf("release failed: %v", err)
	}
	if _, ok, _ := client.Lookup(ctx, key); ok {
		t.Fatal("expected key to be gone after release")
	}
}

func TestUninitializedClient(t *testing.T) {
	client := &Client{}
	if err := client.Ping(context.Background()); err == nil {
		t.Fatal("expected error from uninitialized client")
	}
	if _, err := client.Reserve(context.Background(), "k", time.Second); err == nil {
		t.Fatal("expected error from uninitialized reserve")
	}
	if err := client.Close(); err != nil {
		t.Fatalf("close should be a no-op: %v", err)
	}
}

func TestKeyBuilders(t *testing.T) {
	client := &Client{}
	if got := client.IdempotencyKey("scope", "id"); got != "pm:idempotency:scope:id" {
		t.Fatalf("unexpected idempotency key %s", got)
	}
	if got := client.RateLimitKey("generate:user-1"); got != "pm:rate_limit:generate:user-1" {
		t.Fatalf("unexpected rate limit key %s", got)
	}
	if got := client.IdempotencyKey("", "id"); got != "pm:idempotency:id" {
		t.Fatalf("empty parts should be skipped, got %s", got)
	}
}

type mockCmdable struct {
	data        map[string]string
	incr        map[string]int64
	expireCalls []expireCall
}

type expireCall struct {
	key string
	ttl time.Duration
}

func newMockCmdable() *mockCmdable {
	return &mockCmdable{
		data: make(map[string]string),
		incr: make(map[string]int64),
	}
}

func (m *mockCmdable) Ping(context.Context) *redis.StatusCmd {
	return redis.NewStatusResult("PONG", nil)
}

func (m *mockCmdable) Set(ctx context.Context, key string, value any, expiration time.Duration) *redis.StatusCmd {
	m.data[key] = fmt.Sprint(value)
	return redis.NewStatusResult("OK", nil)
}

func (m *mockCmdable) Get(ctx context.Context, key string) *redis.StringCmd {
	v, ok := m.data[key]
	if !ok {
		return redis.NewStringResult("", redis.Nil)
	}
	return redis.NewStringResult(v, nil)
}

func (m *mockCmdable) SetNX(ctx context.Context, key string, value any, expiration time.Duration) *redis.BoolCmd {
	if _, exists := m.data[key]; exists {
		return redis.NewBoolResult(false, nil)
	}
	m.data[key] = fmt.Sprint(value)
	return redis.NewBoolResult(true, nil)
}

func (m *mockCmdable) Incr(ctx context.Context, key string) *redis.IntCmd {
	m.incr[key]++
	return redis.NewIntResult(m.incr[key], nil)
}

func (m *mockCmdable) Expire(ctx context.Context, key string, expiration time.Duration) *redis.BoolCmd {
	m.expireCalls = append(m.expireCalls, expireCall{key: key, ttl: expiration})
	return redis.NewBoolResult(true, nil)
}

func (m *mockCmdable) Del(ctx context.Context, keys ...string) *redis.IntCmd {
	for _, key := range keys {
		delete(m.data, key)
	}
	return redis.NewIntResult(int64(len(keys)), nil)
}
