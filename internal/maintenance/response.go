// internal/maintenance/response.go
package maintenance

import (
	"time"

	"github.com/owl29bd/cctv-automation-backend/internal/database"
)

// Response is the public shape of a maintenance request.
type Response struct {
	ID                      string     `json:"id"`
	CameraID                string     `json:"cameraId"`
	Status                  string     `json:"status"`
	RequestDate             time.Time  `json:"requestDate"`
	AcceptedDate            *time.Time `json:"acceptedDate,omitempty"`
	VerificationRequestDate *time.Time `json:"verificationRequestDate,omitempty"`
	Notes                   string     `json:"notes,omitempty"`
	Feedback                string     `json:"feedback,omitempty"`
	AdministratorID         string     `json:"administratorId"`
	ServiceProviderID       *string    `json:"serviceProviderId"`
}

// CameraSummary is the camera as embedded in a resolved request. The image
// payload is never included.
type CameraSummary struct {
	ID           string `json:"id"`
	Name         string `json:"name"`
	Location     string `json:"location"`
	IP           string `json:"ip"`
	SerialNumber string `json:"serialNumber"`
	Status       string `json:"status"`
}

type UserSummary struct {
	ID        string `json:"id"`
	Email     string `json:"email"`
	FirstName string `json:"firstName"`
	LastName  string `json:"lastName"`
	Role      string `json:"role"`
}

type DetailsResponse struct {
	Response
	Camera          *CameraSummary `json:"camera,omitempty"`
	ServiceProvider *UserSummary   `json:"serviceProvider,omitempty"`
	Administrator   *UserSummary   `json:"administrator,omitempty"`
}

func NewResponse(req *database.MaintenanceRequest) Response {
	resp := Response{
		ID:                      req.ID,
		CameraID:                req.CameraID,
		Status:                  string(req.Status),
		RequestDate:             req.RequestDate,
		AcceptedDate:            req.AcceptedDate,
		VerificationRequestDate: req.VerificationRequestDate,
		Notes:                   req.Notes,
		Feedback:                req.Feedback,
		AdministratorID:         req.AdministratorID,
	}
	if req.ServiceProviderID != "" {
		provider := req.ServiceProviderID
		resp.ServiceProviderID = &provider
	}
	return resp
}

func NewResponses(reqs []database.MaintenanceRequest) []Response {
	out := make([]Response, 0, len(reqs))
	for i := range reqs {
		out = append(out, NewResponse(&reqs[i]))
	}
	return out
}

func NewDetailsResponse(details *Details) DetailsResponse {
	resp := DetailsResponse{Response: NewResponse(details.Request)}
	if details.Camera != nil {
		resp.Camera = NewCameraSummary(details.Camera)
	}
	if details.ServiceProvider != nil {
		resp.ServiceProvider = NewUserSummary(details.ServiceProvider)
	}
	if details.Administrator != nil {
		resp.Administrator = NewUserSummary(details.Administrator)
	}
	return resp
}

func NewCameraSummary(camera *database.Camera) *CameraSummary {
	return &CameraSummary{
		ID:           camera.ID,
		Name:         camera.Name,
		Location:     camera.Location,
		IP:           camera.IP,
		SerialNumber: camera.SerialNumber,
		Status:       string(camera.Status),
	}
}

func NewUserSummary(user *database.User) *UserSummary {
	return &UserSummary{
		ID:        user.ID,
		Email:     user.Email,
		FirstName: user.FirstName,
		LastName:  user.LastName,
		Role:      string(user.Role),
	}
}
