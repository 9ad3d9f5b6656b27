// Defines rate limit tiers and routing rules.

package ratelimit

import (
	"net/http"

	"github.com/maruel/eduapi/internal/storage"
)

// Scope defines how rate limit keys are determined.
type Scope int

const (
	// ScopeIP uses client IP address as the rate limit key.
	ScopeIP Scope = iota
	// ScopeUser uses authenticated user ID as the rate limit key.
	ScopeUser
)

// Tier defines a rate limit tier with its limiter and scope.
type Tier struct {
	Name    string
	Limiter *Limiter
	Scope   Scope
}

// Config holds rate limiters for different tiers. A tier with a nil Limiter
// is unlimited.
type Config struct {
	Write Tier
	Read  Tier
}

// NewConfig creates a Config from per-minute limits. Bursts are a tenth of
// the per-minute rate, at least one request.
func NewConfig(rl storage.RateLimits) *Config {
	c := &Config{
		Write: Tier{Name: "write", Scope: ScopeUser},
		Read:  Tier{Name: "read", Scope: ScopeUser},
	}
	if rl.WriteRatePerMin > 0 {
		c.Write.Limiter = NewLimiter(rl.WriteRatePerMin, max(rl.WriteRatePerMin/10, 1))
	}
	if rl.ReadRatePerMin > 0 {
		c.Read.Limiter = NewLimiter(rl.ReadRatePerMin, max(rl.ReadRatePerMin/10, 1))
	}
	return c
}

// DefaultConfig creates a Config with storage.DefaultRateLimits.
func DefaultConfig() *Config {
	return NewConfig(storage.DefaultRateLimits())
}

// MatchAuth returns the tier for authenticated requests.
// Returns nil for paths that should not be rate limited.
func (c *Config) MatchAuth(method, path string) *Tier {
	if path == "/api/health" {
		return nil
	}
	var t *Tier
	switch method {
	case http.MethodPost, http.MethodPatch, http.MethodPut, http.MethodDelete:
		t = &c.Write
	case http.MethodGet, http.MethodHead:
		t = &c.Read
	default:
		return nil
	}
	if t.Limiter == nil {
		return nil
	}
	return t
}

// Close stops all limiter cleanup goroutines.
func (c *Config) Close() {
	for _, t := range []*Tier{&c.Write, &c.Read} {
		if t.Limiter != nil {
			t.Limiter.Close()
		}
	}
}
