package ratelimit

import (
	"net/http"
	"strconv"
)

// WriteHeaders sets the X-RateLimit-* headers, plus Retry-After when the
// request was refused.
func WriteHeaders(h http.Header, res Result) {
	h.Set("X-RateLimit-Limit", strconv.Itoa(res.Limit))
	h.Set("X-RateLimit-Remaining", strconv.Itoa(res.Remaining))
	h.Set("X-RateLimit-Reset", strconv.FormatInt(res.ResetAt.Unix(), 10))
	if !res.Allowed {
		h.Set("Retry-After", strconv.Itoa(int(res.RetryAfter.Seconds())))
	}
}

// Check consumes a token from the tier's limiter for id and writes the
// headers on w. It returns the result; the caller answers 429 when
// Allowed is false.
func (t *Tier) Check(w http.ResponseWriter, id string) Result {
	res := t.Limiter.Allow(Key{Scope: t.Scope, ID: id, Tier: t.Name})
	WriteHeaders(w.Header(), res)
	return res
}
