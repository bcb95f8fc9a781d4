// internal/monitoring/engine.go
package monitoring

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/owl29bd/cctv-automation-backend/internal/config"
	"github.com/owl29bd/cctv-automation-backend/internal/database"
	"github.com/owl29bd/cctv-automation-backend/internal/errdefs"
	"github.com/owl29bd/cctv-automation-backend/internal/metrics"
)

// Engine drives the fleet scanner on a fixed interval and runs housekeeping.
type Engine struct {
	config      *config.Config
	store       database.Store
	scanner     *Scanner
	housekeeper *Housekeeper
	collector   *metrics.Collector

	mu      sync.Mutex
	running bool
	cancel  context.CancelFunc
	done    chan struct{}
}

func NewEngine(cfg *config.Config, store database.Store, scanner *Scanner, collector *metrics.Collector) *Engine {
	return &Engine{
		config:      cfg,
		store:       store,
		scanner:     scanner,
		housekeeper: NewHousekeeper(store, cfg.Database.HistoryRetention),
		collector:   collector,
	}
}

func (e *Engine) Scanner() *Scanner {
	return e.scanner
}

func (e *Engine) Housekeeper() *Housekeeper {
	return e.housekeeper
}

// Start seeds the directories from config and begins the scan loop. The
// first scan runs one interval after start, not immediately.
func (e *Engine) Start(ctx context.Context) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.running {
		return nil
	}

	if err := e.syncConfig(ctx); err != nil {
		logrus.WithError(err).Error("Failed to sync config")
		return err
	}
	e.refreshMetrics(ctx)

	ctx, cancel := context.WithCancel(ctx)
	e.cancel = cancel
	e.done = make(chan struct{})
	e.running = true

	e.housekeeper.SchedulePeriodicPurge(ctx, e.config.Database.CleanupInterval)

	if !e.config.Monitoring.IsEnabled() {
		logrus.Info("Fleet scanning disabled")
		close(e.done)
		return nil
	}

	go e.run(ctx, e.done)

	logrus.WithFields(logrus.Fields{
		"interval": e.config.Monitoring.ScanInterval,
		"method":   e.scanner.prober.Name(),
		"workers":  e.scanner.workers,
	}).Info("Started monitoring engine")
	return nil
}

func (e *Engine) Stop() {
	e.mu.Lock()
	if !e.running {
		e.mu.Unlock()
		return
	}
	cancel, done := e.cancel, e.done
	e.running = false
	e.mu.Unlock()

	logrus.Info("Stopping monitoring engine")
	cancel()
	<-done
}

func (e *Engine) run(ctx context.Context, done chan struct{}) {
	defer close(done)

	ticker := time.NewTicker(e.config.Monitoring.ScanInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := e.RunOnce(ctx); err != nil && !errors.Is(err, context.Canceled) {
				logrus.WithError(err).Error("Fleet scan failed")
			}
		}
	}
}

// RunOnce performs a single scan outside the schedule.
func (e *Engine) RunOnce(ctx context.Context) (*ScanReport, error) {
	report, err := e.scanner.Scan(ctx)
	if err != nil {
		if errors.Is(err, ErrScanInProgress) {
			logrus.Warn("Previous fleet scan still running, skipping tick")
		}
		return nil, err
	}
	e.refreshMetrics(ctx)
	return report, nil
}

func (e *Engine) refreshMetrics(ctx context.Context) {
	if e.collector == nil {
		return
	}
	if err := e.collector.UpdateSystemMetrics(ctx); err != nil {
		logrus.WithError(err).Warn("Failed to update system metrics")
	}
}

// syncConfig seeds cameras only into an empty directory; configured users
// are created when missing and never overwritten.
func (e *Engine) syncConfig(ctx context.Context) error {
	count, err := e.store.CountCameras(ctx)
	if err != nil {
		return err
	}

	if count == 0 {
		for _, cameraCfg := range e.config.Cameras {
			camera := &database.Camera{
				ID:           cameraCfg.ID,
				Name:         cameraCfg.Name,
				Description:  cameraCfg.Description,
				Location:     cameraCfg.Location,
				IP:           cameraCfg.IP,
				SerialNumber: cameraCfg.SerialNumber,
				Status:       database.CameraOnline,
			}
			if err := e.store.CreateCamera(ctx, camera); err != nil {
				logrus.WithError(err).WithField("camera", camera.Name).Error("Failed to create camera")
				continue
			}
			logrus.WithFields(logrus.Fields{
				"camera": camera.Name,
				"ip":     camera.IP,
			}).Info("Seeded camera")
		}
	} else if len(e.config.Cameras) > 0 {
		logrus.WithField("cameras", count).Debug("Camera directory already populated, skipping seed")
	}

	for _, userCfg := range e.config.Users {
		if userCfg.ID != "" {
			if _, err := e.store.GetUser(ctx, userCfg.ID); err == nil {
				continue
			} else if !errors.Is(err, errdefs.ErrNotFound) {
				return err
			}
		}
		user := &database.User{
			ID:        userCfg.ID,
			Email:     userCfg.Email,
			FirstName: userCfg.FirstName,
			LastName:  userCfg.LastName,
			Role:      database.Role(userCfg.Role),
		}
		if err := e.store.CreateUser(ctx, user); err != nil {
			entry := logrus.WithError(err).WithField("email", user.Email)
			if errors.Is(err, errdefs.ErrInvalidArgument) {
				entry.Debug("Configured user already present")
			} else {
				entry.Warn("Failed to create user")
			}
			continue
		}
		logrus.WithFields(logrus.Fields{
			"user": user.Email,
			"role": user.Role,
		}).Info("Seeded user")
	}

	return nil
}
