package middleware

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
)

// HTTPRecorder receives one observation per completed request.
type HTTPRecorder interface {
	ObserveRequest(method, route string, status int, duration time.Duration)
}

// Metrics reports every request to rec, labelled by the chi route pattern
// ("/entries/{id}") rather than the raw path so entry IDs do not explode
// the label set. Unmatched requests are reported as "unmatched".
func Metrics(rec HTTPRecorder) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			rw := wrap(w)

			next.ServeHTTP(rw, r)

			route := "unmatched"
			if rctx := chi.RouteContext(r.Context()); rctx != nil {
				if p := rctx.RoutePattern(); p != "" {
					route = p
				}
			}
			rec.ObserveRequest(r.Method, route, rw.statusCode, time.Since(start))
		})
	}
}
