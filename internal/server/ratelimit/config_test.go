package ratelimit

import (
	"testing"

	"github.com/maruel/eduapi/internal/storage"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()
	defer cfg.Close()

	if cfg.Write.Scope != ScopeUser {
		t.Error("Write tier should have User scope")
	}
	if cfg.Read.Scope != ScopeUser {
		t.Error("Read tier should have User scope")
	}
	if cfg.Write.Limiter == nil {
		t.Error("Write limiter should not be nil")
	}
	if cfg.Read.Limiter == nil {
		t.Error("Read limiter should not be nil")
	}
}

func TestConfig_MatchAuth(t *testing.T) {
	cfg := DefaultConfig()
	defer cfg.Close()

	tests := []struct {
		method   string
		path     string
		wantTier string
	}{
		{"GET", "/api/health", ""},
		{"GET", "/api/projects/123", "read"},
		{"POST", "/api/projects", "write"},
		{"PATCH", "/api/projects/123", "write"},
		{"PATCH", "/api/projects/123/draft/mode", "write"},
		{"DELETE", "/api/projects/123/draft", "write"},
		{"OPTIONS", "/api/projects", ""},
	}

	for _, tt := range tests {
		t.Run(tt.method+" "+tt.path, func(t *testing.T) {
			tier := cfg.MatchAuth(tt.method, tt.path)
			if tt.wantTier == "" {
				if tier != nil {
					t.Errorf("expected no tier, got %q", tier.Name)
				}
				return
			}
			if tier == nil {
				t.Fatalf("expected tier %q, got nil", tt.wantTier)
			}
			if tier.Name != tt.wantTier {
				t.Errorf("got tier %q, want %q", tier.Name, tt.wantTier)
			}
		})
	}
}

func TestNewConfig_Unlimited(t *testing.T) {
	cfg := NewConfig(storage.RateLimits{ReadRatePerMin: 60})
	defer cfg.Close()
	if tier := cfg.MatchAuth("POST", "/api/projects"); tier != nil {
		t.Errorf("write must be unlimited, got %q", tier.Name)
	}
	if tier := cfg.MatchAuth("GET", "/api/projects/1"); tier == nil {
		t.Error("read must be limited")
	}
}
