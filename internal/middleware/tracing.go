package middleware

import (
	"net/http"
	"regexp"

	"github.com/printflow/portal/internal/logging"
)

var traceIDPattern = regexp.MustCompile(`^[A-Za-z0-9._-]{1,64}$`)

// Tracing assigns every request a trace ID, reusing a well-formed
// X-Trace-ID header, and echoes it on the response.
func Tracing(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		traceID := r.Header.Get("X-Trace-ID")
		if !traceIDPattern.MatchString(traceID) {
			traceID = logging.NewTraceID()
		}

		w.Header().Set("X-Trace-ID", traceID)
		next.ServeHTTP(w, r.WithContext(logging.WithTraceID(r.Context(), traceID)))
	})
}
