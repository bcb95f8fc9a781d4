// internal/web/notification_handlers.go - Pushover alert endpoints
package web

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"github.com/owl29bd/cctv-automation-backend/internal/errdefs"
)

// TestNotificationRequest represents a test notification request
type TestNotificationRequest struct {
	Message string `json:"message" binding:"required"`
}

// GET /api/notifications/stats
func (s *Server) getNotificationStats(c *gin.Context) {
	if s.notifications == nil {
		c.JSON(http.StatusOK, gin.H{"data": gin.H{"enabled": false}})
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": s.notifications.Stats()})
}

// POST /api/notifications/test
func (s *Server) sendTestNotification(c *gin.Context) {
	var req TestNotificationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}

	if s.notifications == nil || !s.notifications.Enabled() {
		respondError(c, errdefs.InvalidState("pushover notifications are not enabled"))
		return
	}

	ctx, cancel := context.WithTimeout(c.Request.Context(), 15*time.Second)
	defer cancel()

	if err := s.notifications.SendTest(ctx, req.Message); err != nil {
		logrus.WithError(err).Error("Failed to send test notification")
		c.JSON(http.StatusBadGateway, gin.H{"error": gin.H{
			"code":    "UPSTREAM",
			"message": err.Error(),
		}})
		return
	}

	logrus.WithField("caller", callerFrom(c).ID).Info("Test notification sent")
	c.JSON(http.StatusOK, gin.H{
		"message":   "Test notification sent",
		"timestamp": time.Now(),
	})
}
