package ratelimit

import (
	"net/http/httptest"
	"testing"
	"time"
)

func TestLimiter_Allow(t *testing.T) {
	l := NewLimiter(5, 5)
	defer l.Close()
	k := Key{Scope: ScopeUser, ID: "u1", Tier: "write"}

	for i := range 5 {
		res := l.Allow(k)
		if !res.Allowed {
			t.Errorf("request %d should be allowed", i+1)
		}
		if res.Limit != 5 {
			t.Errorf("got Limit=%d, want 5", res.Limit)
		}
	}
	res := l.Allow(k)
	if res.Allowed {
		t.Error("6th request should be rate limited")
	}
	if res.RetryAfter < time.Second {
		t.Errorf("got RetryAfter %v, want >= 1s", res.RetryAfter)
	}
	if res.Remaining != 0 {
		t.Errorf("got Remaining=%d, want 0", res.Remaining)
	}
	if !res.ResetAt.After(time.Now()) {
		t.Errorf("got ResetAt %v, want in the future", res.ResetAt)
	}
}

func TestLimiter_DifferentKeys(t *testing.T) {
	l := NewLimiter(2, 2)
	defer l.Close()
	a := Key{Scope: ScopeUser, ID: "a", Tier: "read"}
	for range 2 {
		l.Allow(a)
	}
	if l.Allow(a).Allowed {
		t.Error("a should be rate limited")
	}
	if !l.Allow(Key{Scope: ScopeUser, ID: "b", Tier: "read"}).Allowed {
		t.Error("b should be allowed")
	}
	if !l.Allow(Key{Scope: ScopeUser, ID: "a", Tier: "write"}).Allowed {
		t.Error("another tier is another bucket")
	}
	if got := l.Len(); got != 3 {
		t.Errorf("got %d buckets, want 3", got)
	}
}

func TestLimiter_Sweep(t *testing.T) {
	l := NewLimiter(60, 1)
	defer l.Close()
	l.Allow(Key{ID: "idle"})
	l.sweep(time.Now())
	if l.Len() != 1 {
		t.Fatal("a fresh bucket must be kept")
	}
	l.sweep(time.Now().Add(staleAfter + time.Minute))
	if l.Len() != 0 {
		t.Error("an idle refilled bucket must be dropped")
	}
}

func TestKey_String(t *testing.T) {
	tests := []struct {
		key  Key
		want string
	}{
		{Key{ScopeIP, "192.168.1.1", "read"}, "ip:192.168.1.1:read"},
		{Key{ScopeUser, "abc", "write"}, "user:abc:write"},
		{Key{Scope(99), "x", "read"}, "unknown:x:read"},
	}
	for _, tt := range tests {
		if got := tt.key.String(); got != tt.want {
			t.Errorf("got %q, want %q", got, tt.want)
		}
	}
}

func TestTier_Check(t *testing.T) {
	tier := Tier{Name: "write", Scope: ScopeUser, Limiter: NewLimiter(1, 1)}
	defer tier.Limiter.Close()

	w := httptest.NewRecorder()
	if !tier.Check(w, "u").Allowed {
		t.Fatal("first request should be allowed")
	}
	if w.Header().Get("X-RateLimit-Limit") != "1" {
		t.Errorf("got X-RateLimit-Limit %q", w.Header().Get("X-RateLimit-Limit"))
	}
	if w.Header().Get("Retry-After") != "" {
		t.Error("Retry-After must only be set when refused")
	}

	w = httptest.NewRecorder()
	if tier.Check(w, "u").Allowed {
		t.Fatal("second request should be refused")
	}
	if w.Header().Get("Retry-After") == "" {
		t.Error("Retry-After must be set when refused")
	}
}
