// internal/web/purge_handlers.go
package web

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"github.com/owl29bd/cctv-automation-backend/internal/realtime"
)

func (s *Server) setupAdminRoutes(api *gin.RouterGroup) {
	admin := api.Group("")
	admin.Use(requireRoles(adminRoles...))
	{
		admin.DELETE("/history/purge", s.purgeHistory)
		admin.GET("/realtime/sessions", s.getRealtimeSessions)

		admin.GET("/notifications/stats", s.getNotificationStats)
		admin.POST("/notifications/test", s.sendTestNotification)
	}
}

// DELETE /api/history/purge - drop status history older than the retention window
func (s *Server) purgeHistory(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 30*time.Second)
	defer cancel()

	removed, err := s.engine.Housekeeper().PurgeHistory(ctx)
	if err != nil {
		logrus.WithError(err).Error("Failed to purge status history")
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"message":   "Status history purged successfully",
		"removed":   removed,
		"timestamp": time.Now(),
	})
}

// GET /api/realtime/sessions - live websocket sessions, oldest first
func (s *Server) getRealtimeSessions(c *gin.Context) {
	sessions := s.hub.Registry().All()
	if sessions == nil {
		sessions = []realtime.Session{}
	}
	c.JSON(http.StatusOK, gin.H{
		"data":  sessions,
		"count": len(sessions),
	})
}
