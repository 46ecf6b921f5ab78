/*
metrics.go - Prometheus collectors and HTTP metrics middleware

PURPOSE:
  Counts requests per method/path/status and a handful of domain events
  (disbursements, repayments, shortages, sweeper runs). Exposed via
  GET /metrics for Prometheus scraping.

CARDINALITY:
  The path label uses the chi route pattern ("/api/loans/{id}/approve"),
  not the raw URL, so IDs never explode the label space.

SEE ALSO:
  - server.go: Mounts the middleware and the /metrics endpoint
  - scheduler.go: Sweeper counters
*/
package api

import (
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	httpRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "sacco_http_requests_total",
		Help: "HTTP requests by method, route pattern and status code.",
	}, []string{"method", "path", "status"})

	loansDisbursedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "sacco_loans_disbursed_total",
		Help: "Loans disbursed (or parked pending an async provider).",
	})

	repaymentsRecordedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "sacco_repayments_recorded_total",
		Help: "Repayments recorded against disbursed loans.",
	})

	shortagesRaisedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "sacco_shortages_raised_total",
		Help: "Shortages raised at float reconciliation.",
	})

	sweepRunsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "sacco_sweep_runs_total",
		Help: "Overdue sweeper executions.",
	})

	penaltiesAssessedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "sacco_penalties_assessed_total",
		Help: "Late-payment penalties assessed by the sweeper.",
	})

	loansDefaultedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "sacco_loans_defaulted_total",
		Help: "Loans flagged defaulted by the sweeper.",
	})
)

// metricsMiddleware counts completed requests.
func metricsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)

		path := r.URL.Path
		if rctx := chi.RouteContext(r.Context()); rctx != nil {
			if pattern := rctx.RoutePattern(); pattern != "" {
				path = pattern
			}
		}
		httpRequestsTotal.WithLabelValues(r.Method, path, strconv.Itoa(ww.Status())).Inc()
	})
}
