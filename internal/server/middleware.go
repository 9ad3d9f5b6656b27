package server

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/maruel/eduapi/internal/server/reqctx"
	"github.com/maruel/ksid"
)

// statusWriter records the status code written by a handler.
type statusWriter struct {
	http.ResponseWriter
	status int
}

func (s *statusWriter) WriteHeader(code int) {
	if s.status == 0 {
		s.status = code
	}
	s.ResponseWriter.WriteHeader(code)
}

func (s *statusWriter) Write(b []byte) (int, error) {
	if s.status == 0 {
		s.status = http.StatusOK
	}
	return s.ResponseWriter.Write(b)
}

func (s *statusWriter) Unwrap() http.ResponseWriter {
	return s.ResponseWriter
}

// logRequests tags each request with an ID, echoed in X-Request-Id, and
// logs one line per request once it completes.
func logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		id := ksid.NewID()
		w.Header().Set("X-Request-Id", id.String())
		ctx := reqctx.WithRequestID(r.Context(), id)
		sw := &statusWriter{ResponseWriter: w}
		next.ServeHTTP(sw, r.WithContext(ctx))
		level := slog.LevelInfo
		if sw.status >= http.StatusInternalServerError {
			level = slog.LevelError
		}
		slog.Log(ctx, level, "http",
			"req", id,
			"m", r.Method,
			"p", r.URL.Path,
			"s", sw.status,
			"d", time.Since(start).Round(time.Millisecond),
			"ip", reqctx.GetClientIP(r),
		)
	})
}
