// Defines request context keys and helper functions for metadata access.

// Package reqctx provides request context utilities for passing request metadata.
package reqctx

import (
	"context"
	"net/http"
	"strings"

	"github.com/maruel/eduapi/internal/storage/identity"
	"github.com/maruel/ksid"
)

// GetClientIP extracts the client IP from an HTTP request,
// checking X-Forwarded-For and X-Real-IP headers for proxied requests.
func GetClientIP(r *http.Request) string {
	// Check X-Forwarded-For header first (for proxies)
	// X-Forwarded-For can contain multiple IPs: "client, proxy1, proxy2"
	// The leftmost IP is the original client.
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		if first, _, found := strings.Cut(xff, ","); found {
			return strings.TrimSpace(first)
		}
		return strings.TrimSpace(xff)
	}
	// Check X-Real-IP header
	if xri := r.Header.Get("X-Real-IP"); xri != "" {
		return xri
	}
	// Fall back to RemoteAddr, stripping port if present
	addr := r.RemoteAddr
	// Handle IPv6 addresses like [::1]:8080
	if strings.HasPrefix(addr, "[") {
		if host, _, found := strings.Cut(addr, "]:"); found {
			return host[1:] // Strip leading "["
		}
		// Malformed but try to be lenient
		return strings.Trim(addr, "[]")
	}
	// IPv4 or hostname with port
	if host, _, found := strings.Cut(addr, ":"); found {
		return host
	}
	return addr
}

// Context keys for request metadata.
type contextKey string

const (
	keyClientIP  contextKey = "clientIP"
	keyUserAgent contextKey = "userAgent"
	keyRequestID contextKey = "requestID"
	keyUser      contextKey = "user"
)

// WithClientIP adds the client IP to the context.
func WithClientIP(ctx context.Context, ip string) context.Context {
	return context.WithValue(ctx, keyClientIP, ip)
}

// WithUserAgent adds the User-Agent to the context.
func WithUserAgent(ctx context.Context, ua string) context.Context {
	return context.WithValue(ctx, keyUserAgent, ua)
}

// WithRequestID adds the request ID to the context.
func WithRequestID(ctx context.Context, id ksid.ID) context.Context {
	return context.WithValue(ctx, keyRequestID, id)
}

// ClientIP extracts the client IP from the context.
func ClientIP(ctx context.Context) string {
	if v, ok := ctx.Value(keyClientIP).(string); ok {
		return v
	}
	return ""
}

// UserAgent extracts the User-Agent from the context.
func UserAgent(ctx context.Context) string {
	if v, ok := ctx.Value(keyUserAgent).(string); ok {
		return v
	}
	return ""
}

// RequestID extracts the request ID from the context.
func RequestID(ctx context.Context) ksid.ID {
	if v, ok := ctx.Value(keyRequestID).(ksid.ID); ok {
		return v
	}
	return 0
}

// WithUser adds the authenticated user to the context.
func WithUser(ctx context.Context, user *identity.User) context.Context {
	return context.WithValue(ctx, keyUser, user)
}

// User extracts the authenticated user from the context.
func User(ctx context.Context) *identity.User {
	if v, ok := ctx.Value(keyUser).(*identity.User); ok {
		return v
	}
	return nil
}
