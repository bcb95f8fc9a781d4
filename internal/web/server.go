// internal/web/server.go
package web

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"

	"github.com/owl29bd/cctv-automation-backend/internal/config"
	"github.com/owl29bd/cctv-automation-backend/internal/database"
	"github.com/owl29bd/cctv-automation-backend/internal/maintenance"
	"github.com/owl29bd/cctv-automation-backend/internal/metrics"
	"github.com/owl29bd/cctv-automation-backend/internal/monitoring"
	"github.com/owl29bd/cctv-automation-backend/internal/notifications"
	"github.com/owl29bd/cctv-automation-backend/internal/realtime"
)

// Dependencies groups the services the HTTP API fronts.
type Dependencies struct {
	Store         database.Store
	Engine        *monitoring.Engine
	Maintenance   *maintenance.Service
	Hub           *realtime.Hub
	Notifications *notifications.Service
	Metrics       *metrics.Collector
}

type Server struct {
	config        *config.Config
	store         database.Store
	engine        *monitoring.Engine
	maintenance   *maintenance.Service
	hub           *realtime.Hub
	notifications *notifications.Service
	metrics       *metrics.Collector
	auth          *Authenticator
	router        *gin.Engine
	server        *http.Server
}

func NewServer(cfg *config.Config, deps Dependencies) *Server {
	if cfg.Logging.Level != "debug" {
		gin.SetMode(gin.ReleaseMode)
	}

	router := gin.New()
	router.Use(gin.Logger())
	router.Use(gin.Recovery())
	router.Use(corsMiddleware(cfg.Realtime.AllowedOrigins))

	server := &Server{
		config:        cfg,
		store:         deps.Store,
		engine:        deps.Engine,
		maintenance:   deps.Maintenance,
		hub:           deps.Hub,
		notifications: deps.Notifications,
		metrics:       deps.Metrics,
		auth:          NewAuthenticator(cfg.Auth),
		router:        router,
	}

	server.setupRoutes()
	return server
}

// Handler exposes the router, mostly for tests.
func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) Start(ctx context.Context) error {
	s.server = &http.Server{
		Addr:         s.config.Server.Port,
		Handler:      s.router,
		ReadTimeout:  s.config.Server.ReadTimeout,
		WriteTimeout: s.config.Server.WriteTimeout,
	}

	logrus.WithField("port", s.config.Server.Port).Info("Starting web server")

	if s.metrics != nil {
		go s.updateMetricsRoutine(ctx)
	}

	go func() {
		if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logrus.WithError(err).Fatal("Failed to start server")
		}
	}()

	return nil
}

func (s *Server) Stop(ctx context.Context) error {
	if s.server != nil {
		return s.server.Shutdown(ctx)
	}
	return nil
}

func (s *Server) setupRoutes() {
	api := s.router.Group("/api")
	{
		api.GET("/health", s.healthCheck)
		api.GET("/version", s.getBuildInfo)
	}

	authed := api.Group("")
	authed.Use(s.auth.Middleware())
	{
		authed.GET("/stats", s.getStats)

		cameras := authed.Group("/cameras")
		cameras.GET("", s.getCameras)
		cameras.GET("/:id", s.getCamera)
		cameras.GET("/:id/image", s.getCameraImage)
		cameras.GET("/:id/history", s.getCameraHistory)
		cameras.POST("", requireRoles(adminRoles...), s.createCamera)
		cameras.PATCH("/:id/status", requireRoles(adminRoles...), s.setCameraStatus)
		cameras.PUT("/:id/image", requireRoles(adminRoles...), s.putCameraImage)

		authed.POST("/scan", requireRoles(adminRoles...), s.runScan)

		s.setupMaintenanceRoutes(authed)
		s.setupAdminRoutes(authed)
	}

	s.router.GET("/ws", gin.WrapF(s.hub.ServeWS))

	if s.config.Prometheus.Enabled {
		s.router.GET(s.config.Prometheus.MetricsPath, gin.WrapH(promhttp.Handler()))
	}
}

func (s *Server) healthCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":    "healthy",
		"timestamp": time.Now(),
		"version":   Version,
		"realtime":  s.hub.Initialized(),
	})
}

func (s *Server) getStats(c *gin.Context) {
	stats, err := s.store.GetDatabaseStats(c.Request.Context())
	if err != nil {
		logrus.WithError(err).Error("Failed to get database stats")
		respondError(c, err)
		return
	}

	data := gin.H{
		"database": stats,
		"realtime": gin.H{"sessions": s.hub.Registry().Count()},
	}
	if report := s.engine.Scanner().LastReport(); report != nil {
		data["lastScan"] = gin.H{
			"startedAt":    report.StartedAt,
			"duration":     report.Duration.String(),
			"successCount": report.SuccessCount,
			"failureCount": report.FailureCount,
			"changes":      len(report.Changes),
		}
	}
	if s.notifications != nil {
		data["notifications"] = s.notifications.Stats()
	}

	c.JSON(http.StatusOK, gin.H{"data": data})
}

func (s *Server) updateMetricsRoutine(ctx context.Context) {
	ticker := time.NewTicker(30 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := s.metrics.UpdateSystemMetrics(ctx); err != nil {
				logrus.WithError(err).Error("Failed to update system metrics")
			}
		}
	}
}

// corsMiddleware echoes allowed origins; an empty list allows any origin.
func corsMiddleware(allowed []string) gin.HandlerFunc {
	origins := make(map[string]bool, len(allowed))
	for _, o := range allowed {
		origins[o] = true
	}

	return func(c *gin.Context) {
		origin := c.GetHeader("Origin")
		switch {
		case len(origins) == 0:
			c.Header("Access-Control-Allow-Origin", "*")
		case origins[origin]:
			c.Header("Access-Control-Allow-Origin", origin)
			c.Header("Vary", "Origin")
		}
		c.Header("Access-Control-Allow-Credentials", "true")
		c.Header("Access-Control-Allow-Headers", "Content-Type, Content-Length, Accept-Encoding, Authorization, accept, origin, Cache-Control, X-Requested-With")
		c.Header("Access-Control-Allow-Methods", "POST, OPTIONS, GET, PUT, PATCH, DELETE")

		if c.Request.Method == http.MethodOptions {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}

		c.Next()
	}
}
