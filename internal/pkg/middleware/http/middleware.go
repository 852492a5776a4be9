package http

import (
	"context"
	"net/http"
	"time"

	"github.com/autopeer-io/groundlink/pkg/log"
)

const DefaultRequestTimeout = 10 * time.Second

// Timeout bounds the request context when the client did not set a deadline
// of its own. Handlers that call the vehicle backend inherit it.
func Timeout(d time.Duration) func(http.Handler) http.Handler {
	if d <= 0 {
		d = DefaultRequestTimeout
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()
			if _, ok := ctx.Deadline(); !ok {
				var cancel context.CancelFunc
				ctx, cancel = context.WithTimeout(ctx, d)
				defer cancel()
			}
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

// Logging logs every request at debug level, and failed ones at warn.
func Logging(logger log.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
			next.ServeHTTP(rec, r)

			kv := []any{"method", r.Method, "path", r.URL.Path, "status", rec.status, "duration", time.Since(start)}
			if rec.status >= http.StatusInternalServerError {
				logger.Warn("Request failed", kv...)
				return
			}
			logger.Debug("Request served", kv...)
		})
	}
}
