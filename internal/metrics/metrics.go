package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Execution metrics
var (
	// ExecutionsTotal tracks workflow executions by trigger and status
	ExecutionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "workflow_executions_total",
			Help: "Total number of workflow executions by trigger and status",
		},
		[]string{"trigger", "status"},
	)

	// ExecutionDuration tracks end-to-end execution duration
	ExecutionDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "workflow_execution_duration_seconds",
			Help:    "Workflow execution duration in seconds",
			Buckets: []float64{0.1, 0.5, 1, 5, 10, 30, 60, 120, 300, 600},
		},
		[]string{"trigger"},
	)

	// ExecutionsInProgress tracks currently running executions
	ExecutionsInProgress = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "workflow_executions_in_progress",
			Help: "Number of workflow executions currently in progress",
		},
	)

	// AdmissionRejectionsTotal tracks rejected execution requests
	AdmissionRejectionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "execution_admission_rejections_total",
			Help: "Total execution requests rejected before dispatch",
		},
		[]string{"reason"},
	)
)

// Batch metrics
var (
	// BatchItemsTotal tracks batch items by outcome
	BatchItemsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "batch_items_total",
			Help: "Total batch items processed by outcome",
		},
		[]string{"outcome"},
	)

	// BatchItemsInFlight tracks items currently being processed
	BatchItemsInFlight = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "batch_items_in_flight",
			Help: "Number of batch items currently being processed",
		},
	)

	// BatchDuration tracks whole-batch processing duration
	BatchDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "batch_duration_seconds",
			Help:    "Batch processing duration in seconds",
			Buckets: []float64{0.1, 0.5, 1, 5, 10, 30, 60, 300},
		},
	)
)

// Document metrics
var (
	// DocumentsTotal tracks document processing by status
	DocumentsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "documents_processed_total",
			Help: "Total documents processed by final status",
		},
		[]string{"status"},
	)

	// DocumentProcessingDuration tracks ingestion duration
	DocumentProcessingDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "document_processing_duration_seconds",
			Help:    "Document ingestion duration in seconds",
			Buckets: []float64{0.5, 1, 5, 10, 30, 60, 120, 300},
		},
	)

	// DocumentsRecoveredTotal tracks stale documents force-failed by
	// the recovery job
	DocumentsRecoveredTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "documents_recovered_total",
			Help: "Total stale processing documents force-failed by recovery",
		},
	)
)

// Scheduler metrics
var (
	// ScheduledRunsTotal tracks cron-triggered executions
	ScheduledRunsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "scheduled_runs_total",
			Help: "Total scheduler-triggered executions by status",
		},
		[]string{"status"},
	)
)
