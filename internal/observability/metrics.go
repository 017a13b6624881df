// Package observability provides Prometheus metrics for the task-list
// service and the HTTP middleware that records per-request metrics.
package observability

import "github.com/prometheus/client_golang/prometheus"

// Outcome labels shared by the auth counters.
const (
	ResultSuccess = "success"
	ResultFailure = "failure"
	ResultError   = "error"
)

var (
	// RequestsTotal counts HTTP requests by method, route pattern and status class.
	RequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tasklist_http_requests_total",
			Help: "HTTP requests",
		},
		[]string{"method", "route", "status"},
	)

	// RequestDuration records HTTP request duration in seconds.
	RequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "tasklist_http_request_duration_seconds",
			Help:    "HTTP request duration",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "route"},
	)

	// LoginsTotal counts credential checks by result
	// (success, failure, error).
	LoginsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tasklist_auth_logins_total",
			Help: "Credential checks",
		},
		[]string{"result"},
	)

	// VerificationsTotal counts token verifications by result.
	VerificationsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tasklist_auth_verifications_total",
			Help: "Token verifications",
		},
		[]string{"result"},
	)

	// TokensIssuedTotal counts tokens signed and stored.
	TokensIssuedTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "tasklist_auth_tokens_issued_total",
			Help: "Session tokens issued",
		},
	)

	// TokensRevokedTotal counts logout calls that completed.
	TokensRevokedTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "tasklist_auth_tokens_revoked_total",
			Help: "Session tokens revoked",
		},
	)

	// TaskOperationsTotal counts task operations by kind and result.
	TaskOperationsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tasklist_task_operations_total",
			Help: "Task operations",
		},
		[]string{"operation", "result"},
	)
)

func init() {
	prometheus.MustRegister(
		RequestsTotal,
		RequestDuration,
		LoginsTotal,
		VerificationsTotal,
		TokensIssuedTotal,
		TokensRevokedTotal,
		TaskOperationsTotal,
	)
}

// ResultOf maps an operation error to a result label. expected reports
// whether err is a normal client-side outcome (bad credentials, not found)
// rather than a server fault.
func ResultOf(err error, expected func(error) bool) string {
	switch {
	case err == nil:
		return ResultSuccess
	case expected != nil && expected(err):
		return ResultFailure
	default:
		return ResultError
	}
}
