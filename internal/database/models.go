// internal/database/models.go
package database

import (
	"time"
)

type CameraStatus string

const (
	CameraOnline      CameraStatus = "online"
	CameraOffline     CameraStatus = "offline"
	CameraDead        CameraStatus = "dead"
	CameraLost        CameraStatus = "lost"
	CameraMaintenance CameraStatus = "maintenance"
)

func (s CameraStatus) Valid() bool {
	switch s {
	case CameraOnline, CameraOffline, CameraDead, CameraLost, CameraMaintenance:
		return true
	}
	return false
}

type Role string

const (
	RoleAdministrator   Role = "administrator"
	RoleAdmin           Role = "admin"
	RoleServiceProvider Role = "service_provider"
	RoleUser            Role = "user"
)

func (r Role) Valid() bool {
	switch r {
	case RoleAdministrator, RoleAdmin, RoleServiceProvider, RoleUser:
		return true
	}
	return false
}

// IsAdmin reports whether the role may run administrator-only transitions.
func (r Role) IsAdmin() bool {
	return r == RoleAdministrator || r == RoleAdmin
}

type RequestStatus string

const (
	RequestPending             RequestStatus = "pending"
	RequestInProgress          RequestStatus = "in_progress"
	RequestPendingVerification RequestStatus = "pending_verification"
	RequestCompleted           RequestStatus = "completed"
	RequestFailed              RequestStatus = "failed"
)

func (s RequestStatus) Valid() bool {
	switch s {
	case RequestPending, RequestInProgress, RequestPendingVerification, RequestCompleted, RequestFailed:
		return true
	}
	return false
}

// Active reports whether the request still blocks a new one on the same camera.
func (s RequestStatus) Active() bool {
	return s == RequestPending || s == RequestInProgress || s == RequestPendingVerification
}

type Camera struct {
	ID               string       `json:"id"`
	Name             string       `json:"name"`
	Description      string       `json:"description"`
	Location         string       `json:"location"`
	IP               string       `json:"ip"`
	SerialNumber     string       `json:"serial_number"`
	Status           CameraStatus `json:"status"`
	Image            []byte       `json:"image,omitempty"`
	ImageContentType string       `json:"image_content_type,omitempty"`
	CreatedAt        time.Time    `json:"created_at"`
	UpdatedAt        time.Time    `json:"updated_at"`
}

type User struct {
	ID        string    `json:"id"`
	Email     string    `json:"email"`
	FirstName string    `json:"first_name"`
	LastName  string    `json:"last_name"`
	Role      Role      `json:"role"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

type MaintenanceRequest struct {
	ID                      string        `json:"id"`
	CameraID                string        `json:"camera_id"`
	Status                  RequestStatus `json:"status"`
	RequestDate             time.Time     `json:"request_date"`
	AcceptedDate            *time.Time    `json:"accepted_date,omitempty"`
	VerificationRequestDate *time.Time    `json:"verification_request_date,omitempty"`
	Notes                   string        `json:"notes,omitempty"`
	Feedback                string        `json:"feedback,omitempty"`
	AdministratorID         string        `json:"administrator_id"`
	ServiceProviderID       string        `json:"service_provider_id,omitempty"`
	CreatedAt               time.Time     `json:"created_at"`
	UpdatedAt               time.Time     `json:"updated_at"`
}

// ProbeTarget is the slice of a camera the health scanner needs.
type ProbeTarget struct {
	ID     string       `json:"id"`
	IP     string       `json:"ip"`
	Status CameraStatus `json:"status"`
}

// StatusUpdate sets a camera status. When Expected is set the update only
// applies if the stored status still equals it.
type StatusUpdate struct {
	CameraID string       `json:"camera_id"`
	Status   CameraStatus `json:"status"`
	Expected CameraStatus `json:"expected,omitempty"`
}

// StatusHistoryEntry records one camera status transition.
type StatusHistoryEntry struct {
	CameraID       string       `json:"camera_id"`
	PreviousStatus CameraStatus `json:"previous_status"`
	NewStatus      CameraStatus `json:"new_status"`
	Source         string       `json:"source"`
	Timestamp      time.Time    `json:"timestamp"`
}

type CameraFilters struct {
	Status CameraStatus
}

type RequestFilters struct {
	Status            RequestStatus
	CameraID          string
	ServiceProviderID string
	Unassigned        bool
	Page              int
	Limit             int
}

// Page is one slice of a filtered, sorted result set.
type Page[T any] struct {
	Items      []T `json:"items"`
	Page       int `json:"page"`
	Limit      int `json:"limit"`
	TotalItems int `json:"total_items"`
	TotalPages int `json:"total_pages"`
}

func (p Page[T]) HasNextPage() bool {
	return p.Page < p.TotalPages
}

func (p Page[T]) HasPrevPage() bool {
	return p.Page > 1
}

// DatabaseStats provides information about database size and contents.
type DatabaseStats struct {
	TotalCameras       int       `json:"total_cameras"`
	TotalUsers         int       `json:"total_users"`
	TotalRequests      int       `json:"total_requests"`
	ActiveRequests     int       `json:"active_requests"`
	TotalHistorySize   int       `json:"total_history_size"`
	DatabaseSize       int64     `json:"database_size_bytes"`
	OldestHistoryEntry time.Time `json:"oldest_history_entry"`
	NewestHistoryEntry time.Time `json:"newest_history_entry"`
}
