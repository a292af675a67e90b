package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	httpRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "meatchain_http_requests_total",
		Help: "Total number of HTTP requests",
	}, []string{"method", "path", "status"})

	httpRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "meatchain_http_request_duration_seconds",
		Help:    "Duration of HTTP requests",
		Buckets: prometheus.DefBuckets,
	}, []string{"method", "path", "status"})

	tenantResolutions = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "meatchain_tenant_resolutions_total",
		Help: "Tenant resolution outcomes by resolution step",
	}, []string{"outcome"})

	isolationViolations = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "meatchain_tenant_isolation_violations_total",
		Help: "Cross-tenant attempts detected by the repository guard",
	}, []string{"kind"})

	invitationEvents = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "meatchain_invitation_events_total",
		Help: "Invitation lifecycle events",
	}, []string{"event"})
)

// ObserveHTTPRequest records an HTTP request metric
func ObserveHTTPRequest(method, path, status string, duration time.Duration) {
	httpRequestsTotal.WithLabelValues(method, path, status).Inc()
	httpRequestDuration.WithLabelValues(method, path, status).Observe(duration.Seconds())
}

// ObserveResolution records a tenant resolution outcome
// (header/domain/slug/membership/unresolved/ambiguous/not_found)
func ObserveResolution(outcome string) {
	tenantResolutions.WithLabelValues(outcome).Inc()
}

// ObserveIsolationViolation counts a detected cross-tenant attempt.
// Security-relevant: the caller also logs the full request context.
func ObserveIsolationViolation(kind string) {
	isolationViolations.WithLabelValues(kind).Inc()
}

// ObserveInvitation records an invitation lifecycle event
// (created/redeemed/revoked/expired/conflict)
func ObserveInvitation(event string) {
	invitationEvents.WithLabelValues(event).Inc()
}
