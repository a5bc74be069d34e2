package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

const (
	StatusSuccess = "success"
	StatusFailed  = "failed"
)

var (
	friendMetricsOnce sync.Once

	friendRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "friend_requests_total",
			Help: "Total number of friend request attempts",
		},
		[]string{"status"},
	)

	friendAcceptsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "friend_accepts_total",
			Help: "Total number of friend request accept attempts",
		},
		[]string{"status"},
	)

	friendRejectsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "friend_rejects_total",
			Help: "Total number of friend request reject attempts",
		},
		[]string{"status"},
	)

	friendRemovalsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "friend_removals_total",
			Help: "Total number of friend removal attempts",
		},
		[]string{"status"},
	)

	friendPartialFailuresTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "friend_partial_failures_total",
			Help: "Dual-record writes that stopped after the first record was updated",
		},
		[]string{"operation"},
	)

	friendRepairsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "friend_repairs_total",
			Help: "Repair attempts for half-applied relationship changes",
		},
		[]string{"status"},
	)
)

func RegisterFriendMetrics() {
	friendMetricsOnce.Do(func() {
		prometheus.MustRegister(
			friendRequestsTotal,
			friendAcceptsTotal,
			friendRejectsTotal,
			friendRemovalsTotal,
			friendPartialFailuresTotal,
			friendRepairsTotal,
		)
	})
}

func IncFriendRequest(status string) {
	RegisterFriendMetrics()
	friendRequestsTotal.WithLabelValues(status).Inc()
}

func IncFriendAccept(status string) {
	RegisterFriendMetrics()
	friendAcceptsTotal.WithLabelValues(status).Inc()
}

func IncFriendReject(status string) {
	RegisterFriendMetrics()
	friendRejectsTotal.WithLabelValues(status).Inc()
}

func IncFriendRemoval(status string) {
	RegisterFriendMetrics()
	friendRemovalsTotal.WithLabelValues(status).Inc()
}

func IncPartialFailure(operation string) {
	RegisterFriendMetrics()
	friendPartialFailuresTotal.WithLabelValues(operation).Inc()
}

func IncRepair(status string) {
	RegisterFriendMetrics()
	friendRepairsTotal.WithLabelValues(status).Inc()
}
