package auth

import (
	"context"
	"fmt"
	"testing"
	"time"
)

func TestMemoryThrottle_LocksAfterMaxFailures(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2025, 1, 1, 9, 0, 0, 0, time.UTC)
	th := NewMemoryThrottle(3, 15*time.Minute)
	th.now = func() time.Time { return now }

	for i := 0; i < 3; i++ {
		ok, _ := th.Allowed(ctx, "Ada@Example.com")
		if !ok {
			t.Fatalf("attempt %d: expected allowed", i+1)
		}
		th.Failed(ctx, "ada@example.com")
	}
	if ok, _ := th.Allowed(ctx, " ADA@example.com "); ok {
		t.Error("expected lockout after 3 failures, keyed case-insensitively")
	}

	now = now.Add(15 * time.Minute)
	if ok, _ := th.Allowed(ctx, "ada@example.com"); !ok {
		t.Error("expected lockout to lapse after the window")
	}
}

func TestMemoryThrottle_ResetClears(t *testing.T) {
	ctx := context.Background()
	th := NewMemoryThrottle(1, time.Minute)
	th.Failed(ctx, "a@b.c")
	if ok, _ := th.Allowed(ctx, "a@b.c"); ok {
		t.Fatal("expected lockout")
	}
	th.Reset(ctx, "a@b.c")
	if ok, _ := th.Allowed(ctx, "a@b.c"); !ok {
		t.Error("expected reset to clear the lockout")
	}
}

func TestMemoryThrottle_DisabledWhenMaxIsZero(t *testing.T) {
	ctx := context.Background()
	th := NewMemoryThrottle(0, time.Minute)
	for i := 0; i < 10; i++ {
		th.Failed(ctx, "a@b.c")
	}
	if ok, _ := th.Allowed(ctx, "a@b.c"); !ok {
		t.Error("expected throttle disabled")
	}
}

func TestThrottleKey(t *testing.T) {
	if throttleKey(" Ada@Example.COM") != "login_fail:ada@example.com" {
		t.Errorf("unexpected key %q", throttleKey(" Ada@Example.COM"))
	}
}

func TestMemoryThrottle_SweepsExpiredAccounts(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2025, 1, 1, 9, 0, 0, 0, time.UTC)
	th := NewMemoryThrottle(5, time.Minute)
	th.now = func() time.Time { return now }

	for i := 0; i < 1000; i++ {
		th.Failed(ctx, fmt.Sprintf("user%d@example.com", i))
	}
	if len(th.entries) != 1000 {
		t.Fatalf("expected 1000 entries, got %d", len(th.entries))
	}

	now = now.Add(2 * time.Minute)
	th.Failed(ctx, "late@example.com")

	if len(th.entries) != 1 {
		t.Errorf("expected only the live entry after the window, got %d", len(th.entries))
	}
	if ok, _ := th.Allowed(ctx, "user1@example.com"); !ok {
		t.Error("expected expired account allowed")
	}
}
