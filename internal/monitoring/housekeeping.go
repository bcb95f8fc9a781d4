// internal/monitoring/housekeeping.go
package monitoring

import (
	"context"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/owl29bd/cctv-automation-backend/internal/database"
	"github.com/owl29bd/cctv-automation-backend/internal/metrics"
)

// Housekeeper trims camera status history older than the retention window.
type Housekeeper struct {
	history   database.HistoryStore
	retention time.Duration
	now       func() time.Time
}

func NewHousekeeper(history database.HistoryStore, retention time.Duration) *Housekeeper {
	if retention <= 0 {
		retention = 30 * 24 * time.Hour
	}
	return &Housekeeper{history: history, retention: retention, now: time.Now}
}

// PurgeHistory deletes history entries older than the retention window and
// returns how many were removed.
func (h *Housekeeper) PurgeHistory(ctx context.Context) (int, error) {
	cutoff := h.now().Add(-h.retention)
	removed, err := h.history.DeleteStatusHistoryBefore(ctx, cutoff)
	if err != nil {
		metrics.DatabaseOperations.WithLabelValues("purge_history", "error").Inc()
		return 0, err
	}
	metrics.DatabaseOperations.WithLabelValues("purge_history", "success").Inc()

	if removed > 0 {
		logrus.WithFields(logrus.Fields{
			"removed": removed,
			"cutoff":  cutoff.Format(time.RFC3339),
		}).Info("Purged camera status history")
	}
	return removed, nil
}

// SchedulePeriodicPurge purges once now and then every interval until ctx is done.
func (h *Housekeeper) SchedulePeriodicPurge(ctx context.Context, interval time.Duration) {
	go func() {
		if _, err := h.PurgeHistory(ctx); err != nil {
			logrus.WithError(err).Error("Initial history purge failed")
		}

		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				logrus.Debug("Stopping periodic history purge")
				return
			case <-ticker.C:
				if _, err := h.PurgeHistory(ctx); err != nil {
					logrus.WithError(err).Error("Scheduled history purge failed")
				}
			}
		}
	}()

	logrus.WithField("interval", interval).Info("Scheduled periodic history purge")
}
