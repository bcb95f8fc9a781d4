// internal/web/maintenance_handlers.go
package web

import (
	"context"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/owl29bd/cctv-automation-backend/internal/database"
	"github.com/owl29bd/cctv-automation-backend/internal/maintenance"
)

type CreateRequestBody struct {
	CameraID string `json:"cameraId" binding:"required"`
	Notes    string `json:"notes"`
}

type NotesBody struct {
	Notes string `json:"notes"`
}

// AssignBody names the new provider. An empty or absent id unassigns.
type AssignBody struct {
	ServiceProviderID string `json:"serviceProviderId"`
}

type CompleteBody struct {
	CameraStatus string `json:"cameraStatus"`
	Feedback     string `json:"feedback"`
}

func (s *Server) setupMaintenanceRoutes(api *gin.RouterGroup) {
	requests := api.Group("/maintenance-requests")
	{
		requests.POST("", s.createRequest)
		requests.GET("", s.listRequests)
		requests.GET("/unassigned", s.listUnassignedRequests)
		requests.GET("/mine", s.listMyRequests)
		requests.GET("/latest/:cameraId", s.getLatestRequest)
		requests.GET("/:id", s.getRequest)

		requests.PATCH("/:id/accept", s.acceptRequest)
		requests.PATCH("/:id/apply-verification", s.applyForVerification)
		requests.PATCH("/:id/verify", s.verifyRequest)
		requests.PATCH("/:id/reject", s.rejectVerification)
		requests.PATCH("/:id/assign-service-provider", s.assignServiceProvider)
		requests.PATCH("/:id/complete", s.completeRequest)
	}
}

func (s *Server) createRequest(c *gin.Context) {
	var body CreateRequestBody
	if err := c.ShouldBindJSON(&body); err != nil {
		badRequest(c, err)
		return
	}

	req, err := s.maintenance.Create(c.Request.Context(), callerFrom(c), maintenance.CreateInput{
		CameraID: body.CameraID,
		Notes:    body.Notes,
	})
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"data": maintenance.NewResponse(req)})
}

func (s *Server) listRequests(c *gin.Context) {
	page, limit := pageParams(c)
	result, err := s.maintenance.List(c.Request.Context(), database.RequestStatus(c.Query("status")), page, limit)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, paginate(result, maintenance.NewResponses(result.Items)))
}

func (s *Server) listUnassignedRequests(c *gin.Context) {
	page, limit := pageParams(c)
	result, err := s.maintenance.ListUnassigned(c.Request.Context(), database.RequestStatus(c.Query("status")), page, limit)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, paginate(result, maintenance.NewResponses(result.Items)))
}

func (s *Server) listMyRequests(c *gin.Context) {
	page, limit := pageParams(c)
	result, err := s.maintenance.ListByProvider(c.Request.Context(), callerFrom(c).ID, database.RequestStatus(c.Query("status")), page, limit)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, paginate(result, maintenance.NewResponses(result.Items)))
}

func (s *Server) getLatestRequest(c *gin.Context) {
	req, err := s.maintenance.LatestForCamera(c.Request.Context(), c.Param("cameraId"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": maintenance.NewResponse(req)})
}

// getRequest returns one request; ?resolve=true embeds camera and users.
func (s *Server) getRequest(c *gin.Context) {
	resolve, _ := strconv.ParseBool(c.DefaultQuery("resolve", "false"))

	details, err := s.maintenance.Get(c.Request.Context(), c.Param("id"), resolve)
	if err != nil {
		respondError(c, err)
		return
	}
	if !resolve {
		c.JSON(http.StatusOK, gin.H{"data": maintenance.NewResponse(details.Request)})
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": maintenance.NewDetailsResponse(details)})
}

type transitionFunc func(ctx context.Context, caller maintenance.Caller, id string) (*database.MaintenanceRequest, error)

// runTransition executes one workflow step and writes the updated request.
func (s *Server) runTransition(c *gin.Context, fn transitionFunc) {
	req, err := fn(c.Request.Context(), callerFrom(c), c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": maintenance.NewResponse(req)})
}

func (s *Server) acceptRequest(c *gin.Context) {
	s.runTransition(c, s.maintenance.Accept)
}

func (s *Server) verifyRequest(c *gin.Context) {
	s.runTransition(c, s.maintenance.Verify)
}

func (s *Server) applyForVerification(c *gin.Context) {
	var body NotesBody
	if !bindOptionalJSON(c, &body) {
		return
	}
	s.runTransition(c, func(ctx context.Context, caller maintenance.Caller, id string) (*database.MaintenanceRequest, error) {
		return s.maintenance.ApplyForVerification(ctx, caller, id, body.Notes)
	})
}

func (s *Server) rejectVerification(c *gin.Context) {
	var body NotesBody
	if !bindOptionalJSON(c, &body) {
		return
	}
	s.runTransition(c, func(ctx context.Context, caller maintenance.Caller, id string) (*database.MaintenanceRequest, error) {
		return s.maintenance.RejectVerification(ctx, caller, id, body.Notes)
	})
}

func (s *Server) assignServiceProvider(c *gin.Context) {
	var body AssignBody
	if !bindOptionalJSON(c, &body) {
		return
	}
	s.runTransition(c, func(ctx context.Context, caller maintenance.Caller, id string) (*database.MaintenanceRequest, error) {
		return s.maintenance.AssignServiceProvider(ctx, caller, id, body.ServiceProviderID)
	})
}

func (s *Server) completeRequest(c *gin.Context) {
	var body CompleteBody
	if !bindOptionalJSON(c, &body) {
		return
	}
	s.runTransition(c, func(ctx context.Context, caller maintenance.Caller, id string) (*database.MaintenanceRequest, error) {
		return s.maintenance.MarkComplete(ctx, caller, id, maintenance.CompleteInput{
			CameraStatus: database.CameraStatus(body.CameraStatus),
			Feedback:     body.Feedback,
		})
	})
}

// bindOptionalJSON decodes a body when one is sent. It reports false after
// writing a 400 for malformed input.
func bindOptionalJSON(c *gin.Context, dst interface{}) bool {
	if c.Request.ContentLength == 0 {
		return true
	}
	if err := c.ShouldBindJSON(dst); err != nil {
		badRequest(c, err)
		return false
	}
	return true
}
