// cmd/cctvd/serve.go
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/owl29bd/cctv-automation-backend/internal/config"
	"github.com/owl29bd/cctv-automation-backend/internal/database"
	"github.com/owl29bd/cctv-automation-backend/internal/events"
	"github.com/owl29bd/cctv-automation-backend/internal/maintenance"
	"github.com/owl29bd/cctv-automation-backend/internal/metrics"
	"github.com/owl29bd/cctv-automation-backend/internal/monitoring"
	"github.com/owl29bd/cctv-automation-backend/internal/notifications"
	"github.com/owl29bd/cctv-automation-backend/internal/realtime"
	"github.com/owl29bd/cctv-automation-backend/internal/telemetry"
	"github.com/owl29bd/cctv-automation-backend/internal/web"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the API, the realtime channel and the scan loop",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		if cfg.Auth.JWTSecret == "" {
			return errMissingSecret
		}
		return serve(cfg)
	},
}

var errMissingSecret = errors.New("auth.jwt_secret or ACCESS_TOKEN_SECRET must be set")

func init() {
	rootCmd.AddCommand(serveCmd)
}

// app holds the wired services shared by serve and scan.
type app struct {
	store         *database.BoltStore
	publisher     events.Publisher
	notifications *notifications.Service
	hub           *realtime.Hub
	engine        *monitoring.Engine
	maintenance   *maintenance.Service
	collector     *metrics.Collector
}

func buildApp(cfg *config.Config) (*app, error) {
	if err := telemetry.InitTracer(cfg.Tracing, web.Version); err != nil {
		return nil, fmt.Errorf("failed to initialize tracing: %w", err)
	}

	store, err := database.NewBoltStore(cfg.Database.Path)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize database: %w", err)
	}

	publisher := events.NewPublisher(cfg.Events)

	notifier, err := notifications.NewService(&cfg.Notifications, store)
	if err != nil {
		store.Close()
		return nil, fmt.Errorf("failed to initialize notifications: %w", err)
	}

	registry := realtime.NewRegistry(cfg.Realtime.IdleSweepInterval, cfg.Realtime.MaxReconnectAttempts)
	hub := realtime.NewHub(registry, cfg.Realtime)

	scanner := monitoring.NewScanner(store, monitoring.NewProber(cfg.Monitoring),
		monitoring.WithBroadcaster(hub),
		monitoring.WithPublisher(publisher),
		monitoring.WithAlerter(notifier),
		monitoring.WithWorkers(cfg.Monitoring.ProbeWorkers),
	)

	collector := metrics.NewCollector(store)

	return &app{
		store:         store,
		publisher:     publisher,
		notifications: notifier,
		hub:           hub,
		engine:        monitoring.NewEngine(cfg, store, scanner, collector),
		maintenance:   maintenance.NewService(store, hub, publisher),
		collector:     collector,
	}, nil
}

func (a *app) close() {
	if err := a.publisher.Close(); err != nil {
		logrus.WithError(err).Warn("Failed to close event publisher")
	}
	if err := a.store.Close(); err != nil {
		logrus.WithError(err).Warn("Failed to close database")
	}
}

// start brings up the realtime channel and then the scan loop. The channel
// is stopped again when the engine cannot start.
func (a *app) start(ctx context.Context) error {
	a.hub.Start(ctx)

	if err := a.engine.Start(ctx); err != nil {
		a.hub.Stop()
		return fmt.Errorf("failed to start monitoring engine: %w", err)
	}
	return nil
}

func serve(cfg *config.Config) error {
	logrus.WithFields(logrus.Fields{
		"config_file":   cfgFile,
		"port":          cfg.Server.Port,
		"scan_interval": cfg.Monitoring.ScanInterval,
		"probe_method":  cfg.Monitoring.ProbeMethod,
	}).Info("Starting CCTV automation backend")

	a, err := buildApp(cfg)
	if err != nil {
		return err
	}
	defer a.close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := a.start(ctx); err != nil {
		return err
	}

	server := web.NewServer(cfg, web.Dependencies{
		Store:         a.store,
		Engine:        a.engine,
		Maintenance:   a.maintenance,
		Hub:           a.hub,
		Notifications: a.notifications,
		Metrics:       a.collector,
	})
	if err := server.Start(ctx); err != nil {
		return fmt.Errorf("failed to start web server: %w", err)
	}

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	sig := <-sigChan
	logrus.WithField("signal", sig).Info("Received shutdown signal")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := server.Stop(shutdownCtx); err != nil {
		logrus.WithError(err).Warn("Web server did not shut down cleanly")
	}
	a.engine.Stop()
	a.hub.Stop()
	cancel()
	telemetry.ShutdownTracer(shutdownCtx)

	logrus.Info("Shutdown complete")
	return nil
}
