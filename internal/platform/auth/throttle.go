package auth

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// LoginThrottle counts failed logins per account and locks the account out
// once the count reaches a limit within the window.
type LoginThrottle interface {
	Allowed(ctx context.Context, account string) (bool, error)
	Failed(ctx context.Context, account string) error
	Reset(ctx context.Context, account string) error
}

func throttleKey(account string) string {
	return "login_fail:" + strings.ToLower(strings.TrimSpace(account))
}

// RedisThrottle keeps failure counters in Redis so every server instance
// sees the same lockouts.
type RedisThrottle struct {
	client *redis.Client
	max    int64
	window time.Duration
}

// NewRedisClient connects to url (redis://...) and pings it.
func NewRedisClient(ctx context.Context, url string) (*redis.Client, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	client := redis.NewClient(opts)

	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("redis connection failed: %w", err)
	}
	return client, nil
}

// NewRedisThrottle locks an account for window after max failures. max <= 0
// disables the lockout.
func NewRedisThrottle(client *redis.Client, max int, window time.Duration) *RedisThrottle {
	return &RedisThrottle{client: client, max: int64(max), window: window}
}

func (t *RedisThrottle) Allowed(ctx context.Context, account string) (bool, error) {
	if t.max <= 0 {
		return true, nil
	}
	n, err := t.client.Get(ctx, throttleKey(account)).Int64()
	if err == redis.Nil {
		return true, nil
	}
	if err != nil {
		return false, fmt.Errorf("read login failures: %w", err)
	}
	return n < t.max, nil
}

// Failed increments the counter; the first failure starts the window.
func (t *RedisThrottle) Failed(ctx context.Context, account string) error {
	if t.max <= 0 {
		return nil
	}
	key := throttleKey(account)
	var incr *redis.IntCmd
	_, err := t.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		incr = pipe.Incr(ctx, key)
		pipe.ExpireNX(ctx, key, t.window)
		return nil
	})
	if err != nil {
		return fmt.Errorf("record login failure: %w", err)
	}
	return incr.Err()
}

func (t *RedisThrottle) Reset(ctx context.Context, account string) error {
	if err := t.client.Del(ctx, throttleKey(account)).Err(); err != nil {
		return fmt.Errorf("reset login failures: %w", err)
	}
	return nil
}

// MemoryThrottle is the single-instance fallback used when no Redis URL is
// configured.
type MemoryThrottle struct {
	mu      sync.Mutex
	max     int
	window  time.Duration
	now     func() time.Time
	entries map[string]*throttleEntry
	// lastSweep is when expired entries were last dropped.
	lastSweep time.Time
}

type throttleEntry struct {
	count   int
	expires time.Time
}

func NewMemoryThrottle(max int, window time.Duration) *MemoryThrottle {
	return &MemoryThrottle{max: max, window: window, now: time.Now, entries: make(map[string]*throttleEntry)}
}

// entry returns the live entry for key, dropping it if expired. At most once
// per window it also drops every other expired entry. Callers hold t.mu.
func (t *MemoryThrottle) entry(key string) *throttleEntry {
	t.sweep()
	e, ok := t.entries[key]
	if !ok {
		return nil
	}
	if !t.now().Before(e.expires) {
		delete(t.entries, key)
		return nil
	}
	return e
}

func (t *MemoryThrottle) sweep() {
	now := t.now()
	if now.Sub(t.lastSweep) < t.window {
		return
	}
	for k, e := range t.entries {
		if !now.Before(e.expires) {
			delete(t.entries, k)
		}
	}
	t.lastSweep = now
}

func (t *MemoryThrottle) Allowed(ctx context.Context, account string) (bool, error) {
	if t.max <= 0 {
		return true, nil
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	e := t.entry(throttleKey(account))
	return e == nil || e.count < t.max, nil
}

func (t *MemoryThrottle) Failed(ctx context.Context, account string) error {
	if t.max <= 0 {
		return nil
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	key := throttleKey(account)
	e := t.entry(key)
	if e == nil {
		e = &throttleEntry{expires: t.now().Add(t.window)}
		t.entries[key] = e
	}
	e.count++
	return nil
}

func (t *MemoryThrottle) Reset(ctx context.Context, account string) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.entries, throttleKey(account))
	return nil
}
