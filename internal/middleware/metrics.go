package middleware

import (
	"net/http"
	"strconv"
	"time"

	"github.com/oggyb/wa-notifier/internal/metrics"
)

// Metrics records request count and latency per route pattern. Requests
// that matched no route are labelled "unmatched" to keep cardinality bounded.
func Metrics() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			rec := record(w)

			next.ServeHTTP(rec, r)

			route := r.Pattern
			if route == "" || route == "/" {
				route = "unmatched"
			}
			metrics.APIRequestsTotal.WithLabelValues(r.Method, route, strconv.Itoa(rec.code())).Inc()
			metrics.APIRequestDuration.WithLabelValues(r.Method, route).Observe(time.Since(start).Seconds())
		})
	}
}
