package service

import (
	"fmt"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/Paashik/MyIS-sub004/internal/models"
)

// MetricsService encapsulates Prometheus instrumentation for the workflow
// engine and the synchronization coordinator.
type MetricsService struct {
	registry *prometheus.Registry
	handler  http.Handler

	requestDuration *prometheus.HistogramVec
	requestTotal    *prometheus.CounterVec

	workflowApplies *prometheus.CounterVec
	syncRuns        *prometheus.CounterVec
	syncRecords     *prometheus.CounterVec
	syncDuration    *prometheus.HistogramVec
}

// NewMetricsService registers core Prometheus collectors.
func NewMetricsService() *MetricsService {
	registry := prometheus.NewRegistry()

	requestDuration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "http_request_duration_seconds",
		Help:    "Duration of HTTP requests in seconds",
		Buckets: prometheus.DefBuckets,
	}, []string{"method", "path", "status"})

	requestTotal := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "http_requests_total",
		Help: "Total number of HTTP requests",
	}, []string{"method", "path", "status"})

	workflowApplies := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "workflow_apply_total",
		Help: "Workflow actions applied, by request type, action and outcome",
	}, []string{"type", "action", "outcome"})

	syncRuns := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "sync_runs_total",
		Help: "Synchronization runs, by scope, mode and final status",
	}, []string{"scope", "mode", "status"})

	syncRecords := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "sync_records_total",
		Help: "Synchronization record outcomes, by scope and action",
	}, []string{"scope", "action"})

	syncDuration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "sync_run_duration_seconds",
		Help:    "Duration of synchronization runs in seconds",
		Buckets: []float64{1, 5, 15, 60, 300, 900, 1800},
	}, []string{"scope", "mode"})

	registry.MustRegister(requestDuration, requestTotal, workflowApplies, syncRuns, syncRecords, syncDuration)

	return &MetricsService{
		registry:        registry,
		handler:         promhttp.HandlerFor(registry, promhttp.HandlerOpts{}),
		requestDuration: requestDuration,
		requestTotal:    requestTotal,
		workflowApplies: workflowApplies,
		syncRuns:        syncRuns,
		syncRecords:     syncRecords,
		syncDuration:    syncDuration,
	}
}

// Handler exposes the Prometheus scrape endpoint.
func (s *MetricsService) Handler() http.Handler {
	if s == nil {
		return http.NotFoundHandler()
	}
	return s.handler
}

// ObserveHTTPRequest records one HTTP request.
func (s *MetricsService) ObserveHTTPRequest(method, path string, status int, duration time.Duration) {
	if s == nil {
		return
	}
	labels := []string{method, path, fmt.Sprintf("%d", status)}
	s.requestDuration.WithLabelValues(labels...).Observe(duration.Seconds())
	s.requestTotal.WithLabelValues(labels...).Inc()
}

// ObserveWorkflowApply records one workflow action attempt.
func (s *MetricsService) ObserveWorkflowApply(typeCode, actionCode, outcome string) {
	if s == nil {
		return
	}
	s.workflowApplies.WithLabelValues(typeCode, actionCode, outcome).Inc()
}

// ObserveSyncRun records one finished synchronization run.
func (s *MetricsService) ObserveSyncRun(scope models.SyncScope, mode models.SyncMode, status models.SyncRunStatus, duration time.Duration) {
	if s == nil {
		return
	}
	s.syncRuns.WithLabelValues(string(scope), string(mode), string(status)).Inc()
	s.syncDuration.WithLabelValues(string(scope), string(mode)).Observe(duration.Seconds())
}

// ObserveSyncRecord records one per-record reconciliation outcome.
func (s *MetricsService) ObserveSyncRecord(scope models.SyncScope, action models.ResolutionAction) {
	if s == nil {
		return
	}
	s.syncRecords.WithLabelValues(string(scope), string(action)).Inc()
}
