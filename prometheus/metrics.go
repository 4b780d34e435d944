package prometheus

import (
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Counter metrics
var (
	// Login counters
	LoginCounter = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "auth_login_total",
			Help: "Total number of login attempts",
		},
	)

	// Registration counters
	RegisterCounter = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "auth_register_total",
			Help: "Total number of user registrations",
		},
	)

	// Token refresh counter
	RefreshCounter = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "auth_refresh_total",
			Help: "Total number of token refresh attempts",
		},
	)

	// Error counters
	AuthErrorCounter = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "auth_errors_total",
			Help: "Total number of authentication errors",
		},
		[]string{"type"}, // "invalid_token", "user_not_found", "account_disabled", etc.
	)

	// Authorization decision counter
	AuthzDecisionCounter = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "authz_decisions_total",
			Help: "Total number of authorization decisions by outcome",
		},
		[]string{"outcome"}, // "allow" or "deny"
	)

	// Authorization fault counter (server-side configuration problems)
	AuthzFaultCounter = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "authz_faults_total",
			Help: "Total number of authorization configuration faults",
		},
		[]string{"type"},
	)

	// Tenant operation counter
	TenantOperationCounter = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tenant_operations_total",
			Help: "Total number of tenant operations",
		},
		[]string{"operation"}, // "create", "add_member", "remove_member", etc.
	)

	// User cache lookups
	UserCacheCounter = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "user_cache_lookups_total",
			Help: "Total number of user cache lookups by result",
		},
		[]string{"result"}, // "hit", "miss", "error"
	)

	// Object storage operations
	StorageOperationCounter = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "storage_operations_total",
			Help: "Total number of object storage operations",
		},
		[]string{"operation", "status"},
	)

	// Background jobs
	WorkerJobCounter = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "worker_jobs_total",
			Help: "Total number of background jobs by type and result",
		},
		[]string{"type", "status"},
	)

	// ActiveTokensGauge tracks tokens issued minus tokens revoked
	ActiveTokensGauge = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "auth_active_tokens",
			Help: "Number of refresh tokens currently outstanding",
		},
	)

	// DBOperationDuration records database operation durations
	DBOperationDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "db_operation_duration_seconds",
			Help:    "Duration of database operations in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"operation"},
	)

	// HTTP request metrics
	HTTPRequestCounter = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "path", "status"},
	)

	HTTPRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "Duration of HTTP requests in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "path", "status"},
	)
)

var registerOnce sync.Once

// InitMetrics registers all metric vectors with the default registry
func InitMetrics() {
	registerOnce.Do(func() {
		prometheus.MustRegister(
			LoginCounter,
			RegisterCounter,
			RefreshCounter,
			AuthErrorCounter,
			AuthzDecisionCounter,
			AuthzFaultCounter,
			TenantOperationCounter,
			UserCacheCounter,
			StorageOperationCounter,
			WorkerJobCounter,
			ActiveTokensGauge,
			DBOperationDuration,
			HTTPRequestCounter,
			HTTPRequestDuration,
		)
	})
}

// RecordAuthError increments the auth error counter for the given type
func RecordAuthError(errorType string) {
	AuthErrorCounter.WithLabelValues(errorType).Inc()
}

// RecordAuthzDecision counts an allow/deny authorization decision
func RecordAuthzDecision(outcome string) {
	AuthzDecisionCounter.WithLabelValues(outcome).Inc()
}

// RecordAuthzFault counts a server-side authorization configuration fault
func RecordAuthzFault(faultType string) {
	AuthzFaultCounter.WithLabelValues(faultType).Inc()
}

// RecordTenantOperation counts a tenant management operation
func RecordTenantOperation(operation string) {
	TenantOperationCounter.WithLabelValues(operation).Inc()
}

// RecordCacheLookup counts a user cache lookup result
func RecordCacheLookup(result string) {
	UserCacheCounter.WithLabelValues(result).Inc()
}

// RecordStorageOperation counts an object storage operation
func RecordStorageOperation(operation, status string) {
	StorageOperationCounter.WithLabelValues(operation, status).Inc()
}

// RecordWorkerJob counts a background job result
func RecordWorkerJob(jobType, status string) {
	WorkerJobCounter.WithLabelValues(jobType, status).Inc()
}

// IncreaseActiveTokens increments the active token gauge
func IncreaseActiveTokens() {
	ActiveTokensGauge.Inc()
}

// DecreaseActiveTokens decrements the active token gauge
func DecreaseActiveTokens() {
	ActiveTokensGauge.Dec()
}

// TrackDBOperation returns a function that records the duration of a
// database operation when called:
//
//	defer prometheus.TrackDBOperation("query")(time.Now())
func TrackDBOperation(operation string) func(time.Time) {
	return func(start time.Time) {
		DBOperationDuration.WithLabelValues(operation).Observe(time.Since(start).Seconds())
	}
}

// MetricsMiddleware creates an Echo middleware that records HTTP request metrics
func MetricsMiddleware() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			start := time.Now()

			err := next(c)

			status := c.Response().Status
			method := c.Request().Method
			path := c.Path()
			statusStr := strconv.Itoa(status)

			HTTPRequestCounter.WithLabelValues(method, path, statusStr).Inc()
			HTTPRequestDuration.WithLabelValues(method, path, statusStr).Observe(time.Since(start).Seconds())

			return err
		}
	}
}

// GetPrometheusHandler returns an HTTP handler for exposing Prometheus metrics
func GetPrometheusHandler() http.Handler {
	return promhttp.Handler()
}
