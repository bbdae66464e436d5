/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package telemetry

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "parkbay"

var (
	// BookingsTotal counts booking attempts by outcome (created, slot_unavailable, invalid_window, ...).
	BookingsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "bookings_total",
		Help:      "Booking requests by outcome.",
	}, []string{"outcome"})

	// TransitionsTotal counts applied reservation transitions.
	TransitionsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "reservation_transitions_total",
		Help:      "Reservation status transitions by source, target and trigger.",
	}, []string{"from", "to", "trigger"})

	// TransitionConflictsTotal counts compare-and-swap misses.
	TransitionConflictsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "reservation_transition_conflicts_total",
		Help:      "Status transitions skipped because the row changed underneath.",
	}, []string{"trigger"})

	// SweepRunsTotal counts sweep runs by result.
	SweepRunsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "sweep_runs_total",
		Help:      "Lifecycle sweep runs by result.",
	}, []string{"result"})

	// SweepErrorsTotal counts per-row sweep failures by step.
	SweepErrorsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "sweep_errors_total",
		Help:      "Per-reservation sweep failures by step.",
	}, []string{"step"})

	// SweepDuration records how long a sweep run took.
	SweepDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "sweep_duration_seconds",
		Help:      "Duration of lifecycle sweep runs.",
		Buckets:   prometheus.DefBuckets,
	})

	// NotificationsTotal counts sink deliveries by sink, kind and result.
	NotificationsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "notifications_total",
		Help:      "Notification deliveries by sink, event kind and result.",
	}, []string{"sink", "kind", "result"})

	// DatabaseQueryDuration records gorm operation latency.
	DatabaseQueryDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "db_query_duration_seconds",
		Help:      "Database operation duration by operation and table.",
		Buckets:   []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1},
	}, []string{"operation", "table"})

	// DatabaseErrorsTotal counts gorm operation failures.
	DatabaseErrorsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "db_errors_total",
		Help:      "Database operation failures by operation and table.",
	}, []string{"operation", "table"})

	// APIRequestsTotal counts HTTP requests.
	APIRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "api_requests_total",
		Help:      "HTTP requests by method, route and status.",
	}, []string{"method", "endpoint", "status"})

	// APIRequestDuration records HTTP latency.
	APIRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "api_request_duration_seconds",
		Help:      "HTTP request duration by method, route and status.",
		Buckets:   prometheus.DefBuckets,
	}, []string{"method", "endpoint", "status"})

	// APIActiveConnections tracks in-flight HTTP requests.
	APIActiveConnections = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "api_active_connections",
		Help:      "In-flight HTTP requests.",
	})

	// EventStreamConnections tracks open event stream websockets.
	EventStreamConnections = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "event_stream_connections",
		Help:      "Open reservation event stream websockets.",
	})

	// EventRelayMessages counts events relayed between instances.
	EventRelayMessages = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "event_relay_messages_total",
		Help:      "Events relayed between instances by direction and result.",
	}, []string{"direction", "result"})

	// LeaderElectionStatus is 1 while this instance leads the sweep.
	LeaderElectionStatus = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "leader_election_status",
		Help:      "1 if this instance holds the sweep leadership lease.",
	}, []string{"instance_id"})

	// LeaderElectionChanges counts leadership acquisitions and losses.
	LeaderElectionChanges = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "leader_election_changes_total",
		Help:      "Leadership changes by instance and direction.",
	}, []string{"instance_id", "change"})
)

// Handler exposes the Prometheus metrics endpoint.
func Handler() http.Handler {
	return promhttp.Handler()
}
