package server

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var reportsSubmitted = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "sitrep_reports_submitted_total",
	Help: "Reports accepted by the intake pipeline",
}, []string{"category"})

var intakeRejected = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "sitrep_intake_rejected_total",
	Help: "Submissions that did not produce a report, by reason",
}, []string{"reason"})

var intakeCompensations = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "sitrep_intake_compensations_total",
	Help: "Blob deletions run after a failed report insert, by outcome",
}, []string{"outcome"})

var intakeOrphanedBlobs = promauto.NewCounter(prometheus.CounterOpts{
	Name: "sitrep_intake_orphaned_blobs_total",
	Help: "Blobs left behind because compensation failed",
})

var statusTransitions = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "sitrep_status_transitions_total",
	Help: "Persisted report status changes, by target status",
}, []string{"to"})

var reportsDeleted = promauto.NewCounter(prometheus.CounterOpts{
	Name: "sitrep_reports_deleted_total",
	Help: "Reports deleted together with their image",
})

var sweepDeletedBlobs = promauto.NewCounter(prometheus.CounterOpts{
	Name: "sitrep_sweep_deleted_blobs_total",
	Help: "Unreferenced blobs removed by the sweeper",
})

var httpRequests = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "sitrep_http_requests_total",
	Help: "HTTP requests served, by route and status class",
}, []string{"route", "code"})

var httpRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
	Name:    "sitrep_http_request_duration_seconds",
	Help:    "HTTP request latency by route",
	Buckets: prometheus.DefBuckets,
}, []string{"route"})
