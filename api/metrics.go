/*
metrics.go - Prometheus instrumentation

PURPOSE:
  Counts the operations that matter for a running rotation: HTTP traffic,
  group activations, and cycle advancements (both manual and scheduled).
  Exposed on /metrics via promhttp.

SEE ALSO:
  - server.go: Mounts the /metrics endpoint and the counting middleware
  - scheduler.go: Increments cyclesAdvanced on auto-advance
*/
package api

import (
	"net/http"
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	httpRequests = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "paluwagan_http_requests_total",
		Help: "HTTP requests by method and status code.",
	}, []string{"method", "code"})

	groupsStarted = promauto.NewCounter(prometheus.CounterOpts{
		Name: "paluwagan_groups_started_total",
		Help: "Groups activated (forming -> active).",
	})

	cyclesAdvanced = promauto.NewCounter(prometheus.CounterOpts{
		Name: "paluwagan_cycles_advanced_total",
		Help: "Cycles closed via manual or scheduled advancement.",
	})

	schedulerRuns = promauto.NewCounter(prometheus.CounterOpts{
		Name: "paluwagan_scheduler_runs_total",
		Help: "Auto-advance scheduler sweeps completed.",
	})
)

// statusRecorder captures the response code for the request counter.
type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (sr *statusRecorder) WriteHeader(code int) {
	sr.status = code
	sr.ResponseWriter.WriteHeader(code)
}

// countRequests is middleware recording every request in httpRequests.
func countRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		sr := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(sr, r)
		httpRequests.WithLabelValues(r.Method, strconv.Itoa(sr.status)).Inc()
	})
}
