package middleware

import (
	"net/http"
	"strconv"
	"time"
)

// unmatchedRoute labels requests that matched no route, so unknown paths
// cannot grow label cardinality.
const unmatchedRoute = "unmatched"

// HTTPMetrics records request duration, sizes and counts labelled by the chi
// route pattern. /health and /metrics are excluded.
func HTTPMetrics(metrics *Metrics) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.URL.Path == "/health" || r.URL.Path == "/metrics" {
				next.ServeHTTP(w, r)
				return
			}

			start := time.Now()
			rw := newResponseWriter(w)

			requestSize := r.ContentLength
			if requestSize < 0 {
				requestSize = 0
			}

			next.ServeHTTP(rw, r)

			// The pattern is complete only after routing has run.
			route := routePattern(r)
			if route == "" {
				route = unmatchedRoute
			}
			metrics.ObserveHTTPRequest(
				r.Method,
				route,
				strconv.Itoa(rw.statusCode),
				time.Since(start).Seconds(),
				requestSize,
				int64(rw.size),
			)
		})
	}
}
