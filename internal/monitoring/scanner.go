// internal/monitoring/scanner.go
package monitoring

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/owl29bd/cctv-automation-backend/internal/database"
	"github.com/owl29bd/cctv-automation-backend/internal/errdefs"
	"github.com/owl29bd/cctv-automation-backend/internal/events"
	"github.com/owl29bd/cctv-automation-backend/internal/metrics"
	"github.com/owl29bd/cctv-automation-backend/internal/notifications"
	"github.com/owl29bd/cctv-automation-backend/internal/realtime"
	"github.com/owl29bd/cctv-automation-backend/internal/telemetry"
)

// ScanSource tags status history written by the scanner.
const ScanSource = "scanner"

// ErrScanInProgress is returned when a scan is requested while one is running.
var ErrScanInProgress = errors.New("scan already in progress")

// CameraDirectory is the part of the camera store the scanner needs.
type CameraDirectory interface {
	ListProbeTargets(ctx context.Context, excludeStatus database.CameraStatus) ([]database.ProbeTarget, error)
	BulkSetStatus(ctx context.Context, updates []database.StatusUpdate, source string) ([]database.StatusUpdate, error)
}

type Broadcaster interface {
	Broadcast(notification realtime.Notification) error
}

type Alerter interface {
	NotifyStatusChange(ctx context.Context, event notifications.StatusChangeEvent) error
}

// PingResult is the probe outcome for one camera in one scan.
type PingResult struct {
	CameraID  string    `json:"cameraId"`
	IP        string    `json:"ip"`
	Success   bool      `json:"success"`
	LatencyMs *float64  `json:"latencyMs,omitempty"`
	Error     string    `json:"error,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// StatusChange is a status decision derived from one PingResult.
type StatusChange struct {
	CameraID       string                `json:"cameraId"`
	PreviousStatus database.CameraStatus `json:"previousStatus"`
	NewStatus      database.CameraStatus `json:"newStatus"`
}

type ScanReport struct {
	StartedAt    time.Time      `json:"startedAt"`
	Duration     time.Duration  `json:"duration"`
	Results      []PingResult   `json:"results"`
	Changes      []StatusChange `json:"changes"`
	SuccessCount int            `json:"successCount"`
	FailureCount int            `json:"failureCount"`
}

// Decide maps the persisted status and a probe outcome to the new status.
// The second return is false when the status should stay as it is.
func Decide(current database.CameraStatus, success bool) (database.CameraStatus, bool) {
	switch current {
	case database.CameraOnline:
		if !success {
			return database.CameraOffline, true
		}
	case database.CameraOffline, database.CameraDead, database.CameraLost:
		if success {
			return database.CameraOnline, true
		}
	}
	return current, false
}

// Scanner probes every camera outside maintenance and reconciles statuses.
type Scanner struct {
	cameras     CameraDirectory
	prober      Prober
	broadcaster Broadcaster
	publisher   events.Publisher
	alerter     Alerter
	workers     int
	tracer      trace.Tracer

	running    sync.Mutex
	mu         sync.RWMutex
	lastReport *ScanReport
}

type ScannerOption func(*Scanner)

func WithBroadcaster(b Broadcaster) ScannerOption {
	return func(s *Scanner) { s.broadcaster = b }
}

func WithPublisher(p events.Publisher) ScannerOption {
	return func(s *Scanner) { s.publisher = p }
}

func WithAlerter(a Alerter) ScannerOption {
	return func(s *Scanner) { s.alerter = a }
}

// WithWorkers probes up to n cameras at once. Results keep directory order.
func WithWorkers(n int) ScannerOption {
	return func(s *Scanner) {
		if n > 0 {
			s.workers = n
		}
	}
}

func NewScanner(cameras CameraDirectory, prober Prober, opts ...ScannerOption) *Scanner {
	s := &Scanner{
		cameras:   cameras,
		prober:    prober,
		publisher: events.Noop(),
		workers:   1,
		tracer:    telemetry.Tracer("monitoring"),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Scan runs one tick. Probe failures are data in the report; only directory
// errors, cancellation and an overlapping run are returned as errors.
func (s *Scanner) Scan(ctx context.Context) (*ScanReport, error) {
	if !s.running.TryLock() {
		metrics.ScanTicks.WithLabelValues("skipped").Inc()
		return nil, ErrScanInProgress
	}
	defer s.running.Unlock()

	ctx, span := s.tracer.Start(ctx, "scanner.scan")
	defer span.End()

	report, err := s.scan(ctx)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		metrics.ScanTicks.WithLabelValues("error").Inc()
		return nil, err
	}

	span.SetAttributes(
		attribute.Int("scan.cameras", len(report.Results)),
		attribute.Int("scan.changes", len(report.Changes)),
		attribute.Int("scan.failures", report.FailureCount),
	)
	metrics.ScanTicks.WithLabelValues("success").Inc()
	metrics.ScanDuration.Observe(report.Duration.Seconds())

	s.mu.Lock()
	s.lastReport = report
	s.mu.Unlock()
	return report, nil
}

func (s *Scanner) scan(ctx context.Context) (*ScanReport, error) {
	started := time.Now()
	report := &ScanReport{StartedAt: started.UTC(), Changes: []StatusChange{}}

	targets, err := s.cameras.ListProbeTargets(ctx, database.CameraMaintenance)
	if err != nil {
		return nil, fmt.Errorf("failed to list probe targets: %w", err)
	}
	if len(targets) == 0 {
		logrus.Debug("No cameras to probe")
		report.Duration = time.Since(started)
		return report, nil
	}

	results, err := s.probeAll(ctx, targets)
	if err != nil {
		return nil, err
	}
	report.Results = results

	updates := make([]database.StatusUpdate, 0)
	for i, result := range results {
		target := targets[i]
		if result.Success {
			report.SuccessCount++
		} else {
			report.FailureCount++
		}

		next, changed := Decide(target.Status, result.Success)
		if !changed {
			continue
		}
		report.Changes = append(report.Changes, StatusChange{
			CameraID:       target.ID,
			PreviousStatus: target.Status,
			NewStatus:      next,
		})
		updates = append(updates, database.StatusUpdate{
			CameraID: target.ID,
			Status:   next,
			Expected: target.Status,
		})
	}

	if len(updates) > 0 {
		applied, err := s.cameras.BulkSetStatus(ctx, updates, ScanSource)
		if err != nil {
			return nil, fmt.Errorf("failed to persist status changes: %w", err)
		}
		report.Changes = appliedChanges(report.Changes, applied)
	}
	report.Duration = time.Since(started)

	logrus.WithFields(logrus.Fields{
		"cameras":  len(results),
		"success":  report.SuccessCount,
		"failure":  report.FailureCount,
		"changes":  len(report.Changes),
		"duration": report.Duration,
	}).Info("Fleet scan completed")

	s.emit(ctx, report, targets)
	return report, nil
}

// appliedChanges drops the changes the directory did not write, such as a
// camera a workflow moved into maintenance while the scan was probing.
func appliedChanges(changes []StatusChange, applied []database.StatusUpdate) []StatusChange {
	written := make(map[string]bool, len(applied))
	for _, update := range applied {
		written[update.CameraID] = true
	}
	kept := make([]StatusChange, 0, len(applied))
	for _, change := range changes {
		if written[change.CameraID] {
			kept = append(kept, change)
			continue
		}
		logrus.WithFields(logrus.Fields{
			"camera_id": change.CameraID,
			"from":      change.PreviousStatus,
			"to":        change.NewStatus,
		}).Debug("Status change not applied, dropping from scan report")
	}
	return kept
}

// probeAll returns one result per target in target order.
func (s *Scanner) probeAll(ctx context.Context, targets []database.ProbeTarget) ([]PingResult, error) {
	results := make([]PingResult, len(targets))

	if s.workers <= 1 {
		for i, target := range targets {
			if err := ctx.Err(); err != nil {
				return nil, err
			}
			results[i] = s.probeOne(ctx, target)
		}
		return results, nil
	}

	jobs := make(chan int)
	var wg sync.WaitGroup
	for w := 0; w < s.workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := range jobs {
				results[i] = s.probeOne(ctx, targets[i])
			}
		}()
	}

	var cancelled error
	for i := range targets {
		if err := ctx.Err(); err != nil {
			cancelled = err
			break
		}
		jobs <- i
	}
	close(jobs)
	wg.Wait()

	if cancelled != nil {
		return nil, cancelled
	}
	return results, nil
}

// probeOne never panics past its boundary; a failing prober yields a failure result.
func (s *Scanner) probeOne(ctx context.Context, target database.ProbeTarget) (result PingResult) {
	result = PingResult{CameraID: target.ID, IP: target.IP}
	defer func() {
		if r := recover(); r != nil {
			result.Success = false
			result.LatencyMs = nil
			result.Error = fmt.Sprintf("probe panicked: %v", r)
			logrus.WithFields(logrus.Fields{
				"camera_id": target.ID,
				"ip":        target.IP,
				"panic":     r,
			}).Error("Probe panicked")
		}
		result.Timestamp = time.Now().UTC()
		metrics.RecordProbe(s.prober.Name(), result.Success, result.LatencyMs)
	}()

	probe := s.prober.Probe(ctx, target.IP)
	result.Success = probe.Success
	result.LatencyMs = probe.LatencyMs
	result.Error = probe.Error

	logrus.WithFields(logrus.Fields{
		"camera_id": target.ID,
		"ip":        target.IP,
		"success":   probe.Success,
		"error":     probe.Error,
	}).Debug("Probed camera")
	return result
}

// emit reports the tick to the realtime channel, the event bus and Pushover.
// None of these can fail the scan.
func (s *Scanner) emit(ctx context.Context, report *ScanReport, targets []database.ProbeTarget) {
	for _, change := range report.Changes {
		metrics.RecordStatusChange(change.PreviousStatus, change.NewStatus, ScanSource)
	}

	if s.broadcaster != nil {
		notification := realtime.NewNotification(realtime.TypePingResults, report.Changes, map[string]interface{}{
			"total":   len(report.Results),
			"success": report.SuccessCount,
			"failure": report.FailureCount,
		})
		if err := s.broadcaster.Broadcast(notification); err != nil {
			entry := logrus.WithError(err)
			if errors.Is(err, errdefs.ErrChannelUninitialized) {
				entry.Warn("Realtime channel not ready, scan results not broadcast")
			} else {
				entry.Error("Failed to broadcast scan results")
			}
		}
	}

	if err := s.publisher.Publish(ctx, events.ScanCompleted, map[string]interface{}{
		"startedAt": report.StartedAt,
		"total":     len(report.Results),
		"success":   report.SuccessCount,
		"failure":   report.FailureCount,
		"changes":   len(report.Changes),
	}); err != nil {
		logrus.WithError(err).Warn("Failed to publish scan event")
	}

	addresses := make(map[string]string, len(targets))
	for _, target := range targets {
		addresses[target.ID] = target.IP
	}
	for _, change := range report.Changes {
		if err := s.publisher.Publish(ctx, events.CameraStatusChanged, change); err != nil {
			logrus.WithError(err).WithField("camera_id", change.CameraID).Warn("Failed to publish status change")
		}
		if s.alerter == nil {
			continue
		}
		event := notifications.StatusChangeEvent{
			CameraID:       change.CameraID,
			IP:             addresses[change.CameraID],
			PreviousStatus: change.PreviousStatus,
			Status:         change.NewStatus,
			Timestamp:      time.Now(),
		}
		if err := s.alerter.NotifyStatusChange(ctx, event); err != nil {
			logrus.WithError(err).WithField("camera_id", change.CameraID).Error("Failed to send status alert")
		}
	}
}

// LastReport returns the most recent completed scan, or nil.
func (s *Scanner) LastReport() *ScanReport {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.lastReport
}
