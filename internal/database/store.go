// internal/database/store.go
package database

import (
	"context"
	"time"
)

// CameraStore is the camera directory.
type CameraStore interface {
	ListCameras(ctx context.Context, filters CameraFilters) ([]Camera, error)
	GetCamera(ctx context.Context, id string) (*Camera, error)
	CreateCamera(ctx context.Context, camera *Camera) error
	UpdateCamera(ctx context.Context, camera *Camera) error
	SetCameraImage(ctx context.Context, id string, image []byte, contentType string) error
	CountCameras(ctx context.Context) (int, error)

	// Health scanner operations
	ListProbeTargets(ctx context.Context, excludeStatus CameraStatus) ([]ProbeTarget, error)
	BulkSetStatus(ctx context.Context, updates []StatusUpdate, source string) ([]StatusUpdate, error)
	SetCameraStatus(ctx context.Context, id string, status CameraStatus, source string) error
}

// UserStore is the user directory.
type UserStore interface {
	GetUser(ctx context.Context, id string) (*User, error)
	CreateUser(ctx context.Context, user *User) error
	ListUsers(ctx context.Context, role Role) ([]User, error)
}

// RequestMutation edits a request and its camera inside one write transaction.
// Returning an error aborts both writes.
type RequestMutation func(req *MaintenanceRequest, camera *Camera) error

// RequestStore persists maintenance requests.
type RequestStore interface {
	// CreateRequest inserts req unless its camera is missing or already has an active request.
	CreateRequest(ctx context.Context, req *MaintenanceRequest) error
	GetRequest(ctx context.Context, id string) (*MaintenanceRequest, error)
	LatestRequestForCamera(ctx context.Context, cameraID string) (*MaintenanceRequest, error)
	ListRequests(ctx context.Context, filters RequestFilters) (Page[MaintenanceRequest], error)
	MutateRequest(ctx context.Context, id string, mutate RequestMutation) (*MaintenanceRequest, *Camera, error)
}

// HistoryStore keeps camera status transitions and housekeeping operations.
type HistoryStore interface {
	GetStatusHistory(ctx context.Context, cameraID string, since time.Time) ([]StatusHistoryEntry, error)
	DeleteStatusHistoryBefore(ctx context.Context, cutoff time.Time) (int, error)
	GetDatabaseStats(ctx context.Context) (*DatabaseStats, error)
}

// Store defines the interface for database operations
type Store interface {
	CameraStore
	UserStore
	RequestStore
	HistoryStore

	// Close the database connection
	Close() error
}
