package server

import (
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/my-personal-agent/google-service/internal/instrumentation"
)

// statusRecorder captures the response status code and stamps the
// X-Process-Time header just before the status line is written, which
// is the last point headers can still be set.
type statusRecorder struct {
	http.ResponseWriter
	status int
	start  time.Time
}

func (r *statusRecorder) WriteHeader(status int) {
	if r.status == 0 {
		r.status = status
		r.Header().Set("X-Process-Time", fmt.Sprintf("%.6f", time.Since(r.start).Seconds()))
	}
	r.ResponseWriter.WriteHeader(status)
}

func (r *statusRecorder) Write(b []byte) (int, error) {
	if r.status == 0 {
		r.WriteHeader(http.StatusOK)
	}
	return r.ResponseWriter.Write(b)
}

// withInstrumentation wraps a handler with request logging, metrics, and
// the X-Process-Time response header. The route pattern keeps the path
// label bounded regardless of query strings.
func withInstrumentation(next http.Handler, route string, log *slog.Logger, metrics *instrumentation.Metrics) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, start: start}

		next.ServeHTTP(rec, r)

		elapsed := time.Since(start)
		if rec.status == 0 {
			rec.status = http.StatusOK
		}

		log.Info("http request",
			"method", r.Method,
			"path", route,
			"status", rec.status,
			"duration", elapsed,
		)
		if metrics != nil {
			metrics.RecordHTTPRequest(r.Context(), r.Method, route, rec.status, elapsed)
		}
	})
}
