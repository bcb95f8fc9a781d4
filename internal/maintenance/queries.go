// internal/maintenance/queries.go
package maintenance

import (
	"context"
	"errors"

	"github.com/owl29bd/cctv-automation-backend/internal/database"
	"github.com/owl29bd/cctv-automation-backend/internal/errdefs"
)

// Get returns one request. With resolve set, its camera, provider and
// creating administrator are loaded too; references that no longer exist
// are left nil.
func (s *Service) Get(ctx context.Context, id string, resolve bool) (*Details, error) {
	req, err := s.store.GetRequest(ctx, id)
	if err != nil {
		return nil, err
	}

	details := &Details{Request: req}
	if !resolve {
		return details, nil
	}

	if details.Camera, err = optional(s.store.GetCamera(ctx, req.CameraID)); err != nil {
		return nil, err
	}
	if req.ServiceProviderID != "" {
		if details.ServiceProvider, err = optional(s.store.GetUser(ctx, req.ServiceProviderID)); err != nil {
			return nil, err
		}
	}
	if req.AdministratorID != "" {
		if details.Administrator, err = optional(s.store.GetUser(ctx, req.AdministratorID)); err != nil {
			return nil, err
		}
	}
	return details, nil
}

func optional[T any](value *T, err error) (*T, error) {
	if errors.Is(err, errdefs.ErrNotFound) {
		return nil, nil
	}
	return value, err
}

// LatestForCamera returns the most recently requested maintenance for a camera.
func (s *Service) LatestForCamera(ctx context.Context, cameraID string) (*database.MaintenanceRequest, error) {
	if _, err := s.store.GetCamera(ctx, cameraID); err != nil {
		return nil, err
	}
	return s.store.LatestRequestForCamera(ctx, cameraID)
}

// List returns requests newest first, optionally filtered by status.
func (s *Service) List(ctx context.Context, status database.RequestStatus, page, limit int) (database.Page[database.MaintenanceRequest], error) {
	if err := validStatusFilter(status); err != nil {
		return database.Page[database.MaintenanceRequest]{}, err
	}
	return s.store.ListRequests(ctx, database.RequestFilters{Status: status, Page: page, Limit: limit})
}

// ListByProvider returns the requests assigned to one service provider.
func (s *Service) ListByProvider(ctx context.Context, providerID string, status database.RequestStatus, page, limit int) (database.Page[database.MaintenanceRequest], error) {
	if providerID == "" {
		return database.Page[database.MaintenanceRequest]{}, errdefs.InvalidArgument("service provider id is required")
	}
	if err := validStatusFilter(status); err != nil {
		return database.Page[database.MaintenanceRequest]{}, err
	}
	return s.store.ListRequests(ctx, database.RequestFilters{
		Status:            status,
		ServiceProviderID: providerID,
		Page:              page,
		Limit:             limit,
	})
}

// ListUnassigned returns requests with no service provider.
func (s *Service) ListUnassigned(ctx context.Context, status database.RequestStatus, page, limit int) (database.Page[database.MaintenanceRequest], error) {
	if err := validStatusFilter(status); err != nil {
		return database.Page[database.MaintenanceRequest]{}, err
	}
	return s.store.ListRequests(ctx, database.RequestFilters{
		Status:     status,
		Unassigned: true,
		Page:       page,
		Limit:      limit,
	})
}

func validStatusFilter(status database.RequestStatus) error {
	if status != "" && !status.Valid() {
		return errdefs.InvalidArgument("invalid request status %q", status)
	}
	return nil
}
