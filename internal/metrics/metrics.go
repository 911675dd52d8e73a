package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "fitsync"

// Outcome labels for handled webhook events
const (
	OutcomeProcessed  = "processed"
	OutcomeRetry      = "retry"
	OutcomeDeadLetter = "dead_letter"
)

var (
	EventsReceived = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "webhook",
		Name:      "events_received_total",
		Help:      "Inbound Strava webhook events by result (enqueued, dropped).",
	}, []string{"result"})

	EventsHandled = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "processor",
		Name:      "events_handled_total",
		Help:      "Queued webhook events handled by the processor, by subject and outcome.",
	}, []string{"object_type", "outcome"})

	EventDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace,
		Subsystem: "processor",
		Name:      "event_duration_seconds",
		Help:      "Time spent handling one webhook event.",
		Buckets:   prometheus.DefBuckets,
	}, []string{"object_type"})

	TokenRefreshes = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "strava",
		Name:      "token_refreshes_total",
		Help:      "OAuth token refresh attempts by result.",
	}, []string{"result"})

	RateLimitedDeferrals = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "strava",
		Name:      "rate_limited_deferrals_total",
		Help:      "Events deferred because the Strava read budget was spent.",
	})

	ReadBudgetUsage = prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: namespace,
		Subsystem: "strava",
		Name:      "read_budget_usage",
		Help:      "Strava read requests used in the current window.",
	}, []string{"window"})

	APIRequests = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "strava",
		Name:      "api_requests_total",
		Help:      "Outbound Strava API requests by endpoint and status class.",
	}, []string{"endpoint", "status"})

	CircuitBreakerState = prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: namespace,
		Subsystem: "strava",
		Name:      "circuit_breaker_state",
		Help:      "Circuit breaker state (0 closed, 1 half-open, 2 open).",
	}, []string{"name"})
)

func init() {
	prometheus.MustRegister(
		EventsReceived,
		EventsHandled,
		EventDuration,
		TokenRefreshes,
		RateLimitedDeferrals,
		ReadBudgetUsage,
		APIRequests,
		CircuitBreakerState,
	)
}

// RecordReadBudget publishes the limiter's current usage
func RecordReadBudget(usage15Min, usageDaily int) {
	ReadBudgetUsage.WithLabelValues("15min").Set(float64(usage15Min))
	ReadBudgetUsage.WithLabelValues("daily").Set(float64(usageDaily))
}
