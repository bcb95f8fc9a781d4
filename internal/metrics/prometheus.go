// internal/metrics/prometheus.go
package metrics

import (
	"context"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/owl29bd/cctv-automation-backend/internal/database"
)

// Prometheus metrics
var (
	ScanTicks = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "cctv_scan_ticks_total",
			Help: "Fleet health scans run, by outcome",
		},
		[]string{"result"},
	)

	ScanDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "cctv_scan_duration_seconds",
			Help:    "Time spent on one fleet health scan",
			Buckets: prometheus.DefBuckets,
		},
	)

	ProbeTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "cctv_probes_total",
			Help: "Camera reachability probes, by result",
		},
		[]string{"method", "result"},
	)

	ProbeLatency = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "cctv_probe_latency_milliseconds",
			Help:    "Round-trip time reported by successful probes",
			Buckets: []float64{1, 2, 5, 10, 25, 50, 100, 250, 500, 1000, 3000},
		},
	)

	StatusChanges = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "cctv_camera_status_changes_total",
			Help: "Camera status transitions applied",
		},
		[]string{"from", "to", "source"},
	)

	CamerasByStatus = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "cctv_cameras",
			Help: "Number of cameras per status",
		},
		[]string{"status"},
	)

	WorkflowTransitions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "cctv_maintenance_transitions_total",
			Help: "Maintenance workflow operations, by outcome",
		},
		[]string{"operation", "result"},
	)

	ActiveRequests = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "cctv_maintenance_requests_active",
			Help: "Maintenance requests not yet completed or failed",
		},
	)

	RealtimeSessions = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "cctv_realtime_sessions_active",
			Help: "Number of connected realtime sessions",
		},
	)

	RealtimeDeliveries = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "cctv_realtime_deliveries_total",
			Help: "Realtime frames queued to sessions, by event and outcome",
		},
		[]string{"event", "result"},
	)

	DatabaseOperations = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "cctv_database_operations_total",
			Help: "Total database operations performed",
		},
		[]string{"operation", "status"},
	)
)

// Collector refreshes gauges that are derived from stored state.
type Collector struct {
	store database.Store
}

func NewCollector(store database.Store) *Collector {
	return &Collector{store: store}
}

func (c *Collector) UpdateSystemMetrics(ctx context.Context) error {
	cameras, err := c.store.ListCameras(ctx, database.CameraFilters{})
	if err != nil {
		DatabaseOperations.WithLabelValues("list_cameras", "error").Inc()
		return err
	}
	DatabaseOperations.WithLabelValues("list_cameras", "success").Inc()

	counts := map[database.CameraStatus]int{
		database.CameraOnline:      0,
		database.CameraOffline:     0,
		database.CameraDead:        0,
		database.CameraLost:        0,
		database.CameraMaintenance: 0,
	}
	for _, camera := range cameras {
		counts[camera.Status]++
	}
	for status, count := range counts {
		CamerasByStatus.WithLabelValues(string(status)).Set(float64(count))
	}

	stats, err := c.store.GetDatabaseStats(ctx)
	if err != nil {
		DatabaseOperations.WithLabelValues("stats", "error").Inc()
		return err
	}
	DatabaseOperations.WithLabelValues("stats", "success").Inc()
	ActiveRequests.Set(float64(stats.ActiveRequests))

	return nil
}

func RecordProbe(method string, success bool, latencyMs *float64) {
	ProbeTotal.WithLabelValues(method, resultLabel(success)).Inc()
	if success && latencyMs != nil {
		ProbeLatency.Observe(*latencyMs)
	}
}

func RecordStatusChange(from, to database.CameraStatus, source string) {
	StatusChanges.WithLabelValues(string(from), string(to), source).Inc()
}

func RecordTransition(operation string, err error) {
	WorkflowTransitions.WithLabelValues(operation, resultLabel(err == nil)).Inc()
}

func RecordDelivery(event string, delivered bool) {
	result := "delivered"
	if !delivered {
		result = "dropped"
	}
	RealtimeDeliveries.WithLabelValues(event, result).Inc()
}

func resultLabel(ok bool) string {
	if ok {
		return "success"
	}
	return "failure"
}
