package observability

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	registerOnce           sync.Once
	apiRequestsTotal       *prometheus.CounterVec
	apiLatencySeconds      *prometheus.HistogramVec
	apiErrorsTotal         *prometheus.CounterVec
	submissionsJudgedTotal *prometheus.CounterVec
	pointsAwardedTotal     prometheus.Counter
	leaderboardConflicts   prometheus.Counter
	awardsReconciledTotal  prometheus.Counter
	liveSubscribers        *prometheus.GaugeVec
	liveMessagesTotal      *prometheus.CounterVec
)

// RegisterMetrics initialises the Prometheus collectors used across the API.
func RegisterMetrics() {
	registerOnce.Do(func() {
		apiRequestsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "codearena_api_requests_total",
			Help: "Total number of API requests served.",
		}, []string{"method", "route", "status"})

		apiLatencySeconds = prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "codearena_api_latency_seconds",
			Help:    "Latency distribution for API requests.",
			Buckets: []float64{0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1.0, 2.0, 5.0, 15.0, 30.0},
		}, []string{"method", "route"})

		apiErrorsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "codearena_api_errors_total",
			Help: "Total number of error responses returned by the API.",
		}, []string{"method", "route", "status"})

		submissionsJudgedTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "codearena_submissions_judged_total",
			Help: "Submissions persisted after evaluation, by verdict.",
		}, []string{"status"})

		pointsAwardedTotal = prometheus.NewCounter(prometheus.CounterOpts{
			Name: "codearena_points_awarded_total",
			Help: "Points credited to leaderboards.",
		})

		leaderboardConflicts = prometheus.NewCounter(prometheus.CounterOpts{
			Name: "codearena_leaderboard_conflicts_total",
			Help: "Leaderboard writes retried after losing an optimistic version check.",
		})

		awardsReconciledTotal = prometheus.NewCounter(prometheus.CounterOpts{
			Name: "codearena_awards_reconciled_total",
			Help: "Accepted submissions credited by the reconciler.",
		})

		liveSubscribers = prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "codearena_live_subscribers",
			Help: "Open live feed subscriptions by feed kind.",
		}, []string{"feed"})

		liveMessagesTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "codearena_live_messages_total",
			Help: "Live feed messages delivered or dropped.",
		}, []string{"feed", "result"})

		prometheus.MustRegister(
			apiRequestsTotal,
			apiLatencySeconds,
			apiErrorsTotal,
			submissionsJudgedTotal,
			pointsAwardedTotal,
			leaderboardConflicts,
			awardsReconciledTotal,
			liveSubscribers,
			liveMessagesTotal,
		)
	})
}

// APIRequests exposes the counter for API requests.
func APIRequests() *prometheus.CounterVec {
	RegisterMetrics()
	return apiRequestsTotal
}

// APILatency exposes the latency histogram for API requests.
func APILatency() *prometheus.HistogramVec {
	RegisterMetrics()
	return apiLatencySeconds
}

// APIErrors exposes the counter for API error responses.
func APIErrors() *prometheus.CounterVec {
	RegisterMetrics()
	return apiErrorsTotal
}

// SubmissionsJudged counts persisted submissions per verdict.
func SubmissionsJudged() *prometheus.CounterVec {
	RegisterMetrics()
	return submissionsJudgedTotal
}

func PointsAwarded() prometheus.Counter {
	RegisterMetrics()
	return pointsAwardedTotal
}

// LeaderboardConflicts counts lost optimistic write races.
func LeaderboardConflicts() prometheus.Counter {
	RegisterMetrics()
	return leaderboardConflicts
}

func AwardsReconciled() prometheus.Counter {
	RegisterMetrics()
	return awardsReconciledTotal
}

// LiveSubscribers tracks open subscriptions per feed kind.
func LiveSubscribers() *prometheus.GaugeVec {
	RegisterMetrics()
	return liveSubscribers
}

func LiveMessages() *prometheus.CounterVec {
	RegisterMetrics()
	return liveMessagesTotal
}
