// internal/web/camera_handlers.go
package web

import (
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"github.com/owl29bd/cctv-automation-backend/internal/database"
	"github.com/owl29bd/cctv-automation-backend/internal/errdefs"
	"github.com/owl29bd/cctv-automation-backend/internal/metrics"
	"github.com/owl29bd/cctv-automation-backend/internal/monitoring"
)

const maxImageSize = 5 << 20

// CameraResponse is a camera without its image bytes.
type CameraResponse struct {
	ID           string    `json:"id"`
	Name         string    `json:"name"`
	Description  string    `json:"description,omitempty"`
	Location     string    `json:"location"`
	IP           string    `json:"ip"`
	SerialNumber string    `json:"serialNumber"`
	Status       string    `json:"status"`
	HasImage     bool      `json:"hasImage"`
	CreatedAt    time.Time `json:"createdAt"`
	UpdatedAt    time.Time `json:"updatedAt"`
}

type CreateCameraRequest struct {
	ID           string `json:"id"`
	Name         string `json:"name" binding:"required"`
	Description  string `json:"description"`
	Location     string `json:"location"`
	IP           string `json:"ip" binding:"required"`
	SerialNumber string `json:"serialNumber"`
	Status       string `json:"status"`
}

type SetStatusRequest struct {
	Status string `json:"status" binding:"required"`
}

func newCameraResponse(camera *database.Camera) CameraResponse {
	return CameraResponse{
		ID:           camera.ID,
		Name:         camera.Name,
		Description:  camera.Description,
		Location:     camera.Location,
		IP:           camera.IP,
		SerialNumber: camera.SerialNumber,
		Status:       string(camera.Status),
		HasImage:     len(camera.Image) > 0,
		CreatedAt:    camera.CreatedAt,
		UpdatedAt:    camera.UpdatedAt,
	}
}

func (s *Server) getCameras(c *gin.Context) {
	status := database.CameraStatus(c.Query("status"))
	if status != "" && !status.Valid() {
		respondError(c, errdefs.InvalidArgument("invalid camera status %q", status))
		return
	}

	cameras, err := s.store.ListCameras(c.Request.Context(), database.CameraFilters{Status: status})
	if err != nil {
		respondError(c, err)
		return
	}

	response := make([]CameraResponse, 0, len(cameras))
	for i := range cameras {
		response = append(response, newCameraResponse(&cameras[i]))
	}

	c.JSON(http.StatusOK, gin.H{
		"data":  response,
		"count": len(response),
	})
}

func (s *Server) getCamera(c *gin.Context) {
	camera, err := s.store.GetCamera(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": newCameraResponse(camera)})
}

func (s *Server) createCamera(c *gin.Context) {
	var req CreateCameraRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}

	camera := &database.Camera{
		ID:           req.ID,
		Name:         req.Name,
		Description:  req.Description,
		Location:     req.Location,
		IP:           req.IP,
		SerialNumber: req.SerialNumber,
		Status:       database.CameraStatus(req.Status),
	}
	if err := s.store.CreateCamera(c.Request.Context(), camera); err != nil {
		respondError(c, err)
		return
	}

	logrus.WithFields(logrus.Fields{
		"camera_id": camera.ID,
		"ip":        camera.IP,
	}).Info("Camera created")

	c.JSON(http.StatusCreated, gin.H{"data": newCameraResponse(camera)})
}

// setCameraStatus is a manual override and is recorded in status history.
func (s *Server) setCameraStatus(c *gin.Context) {
	var req SetStatusRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}

	ctx := c.Request.Context()
	id := c.Param("id")

	before, err := s.store.GetCamera(ctx, id)
	if err != nil {
		respondError(c, err)
		return
	}

	status := database.CameraStatus(req.Status)
	if err := s.store.SetCameraStatus(ctx, id, status, "api"); err != nil {
		respondError(c, err)
		return
	}
	if before.Status != status {
		metrics.RecordStatusChange(before.Status, status, "api")
	}

	camera, err := s.store.GetCamera(ctx, id)
	if err != nil {
		respondError(c, err)
		return
	}

	logrus.WithFields(logrus.Fields{
		"camera_id": id,
		"from":      before.Status,
		"to":        status,
		"caller":    callerFrom(c).ID,
	}).Info("Camera status set manually")

	c.JSON(http.StatusOK, gin.H{"data": newCameraResponse(camera)})
}

func (s *Server) putCameraImage(c *gin.Context) {
	file, err := c.FormFile("image")
	if err != nil {
		respondError(c, errdefs.InvalidArgument("multipart field \"image\" is required"))
		return
	}
	if file.Size > maxImageSize {
		respondError(c, errdefs.InvalidArgument("image exceeds %d bytes", maxImageSize))
		return
	}

	f, err := file.Open()
	if err != nil {
		respondError(c, errdefs.Internal(err, "failed to open upload"))
		return
	}
	defer f.Close()

	data, err := io.ReadAll(f)
	if err != nil {
		respondError(c, errdefs.Internal(err, "failed to read upload"))
		return
	}

	contentType := file.Header.Get("Content-Type")
	if contentType == "" || contentType == "application/octet-stream" {
		contentType = http.DetectContentType(data)
	}

	if err := s.store.SetCameraImage(c.Request.Context(), c.Param("id"), data, contentType); err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": gin.H{
		"id":          c.Param("id"),
		"contentType": contentType,
		"size":        len(data),
	}})
}

func (s *Server) getCameraImage(c *gin.Context) {
	camera, err := s.store.GetCamera(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}
	if len(camera.Image) == 0 {
		respondError(c, errdefs.NotFound("camera %s has no image", camera.ID))
		return
	}
	c.Data(http.StatusOK, camera.ImageContentType, camera.Image)
}

func (s *Server) getCameraHistory(c *gin.Context) {
	since := time.Now().Add(-24 * time.Hour)
	if sinceStr := c.Query("since"); sinceStr != "" {
		parsed, err := time.Parse(time.RFC3339, sinceStr)
		if err != nil {
			respondError(c, errdefs.InvalidArgument("since must be RFC3339"))
			return
		}
		since = parsed
	}

	ctx := c.Request.Context()
	if _, err := s.store.GetCamera(ctx, c.Param("id")); err != nil {
		respondError(c, err)
		return
	}

	history, err := s.store.GetStatusHistory(ctx, c.Param("id"), since)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"data":  history,
		"count": len(history),
	})
}

// runScan performs one fleet scan immediately.
func (s *Server) runScan(c *gin.Context) {
	report, err := s.engine.RunOnce(c.Request.Context())
	if err != nil {
		if errors.Is(err, monitoring.ErrScanInProgress) {
			respondError(c, errdefs.InvalidState("a fleet scan is already running"))
			return
		}
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": report})
}
