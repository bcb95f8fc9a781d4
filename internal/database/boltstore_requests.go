// internal/database/boltstore_requests.go - maintenance request persistence
package database

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"
	"go.etcd.io/bbolt"

	"github.com/owl29bd/cctv-automation-backend/internal/errdefs"
)

const (
	DefaultPageLimit = 10
	MaxPageLimit     = 100
)

// CreateRequest checks the camera and the active-request index and inserts
// the request in the same write transaction, so two concurrent creations
// for one camera cannot both succeed.
func (s *BoltStore) CreateRequest(ctx context.Context, req *MaintenanceRequest) error {
	if req.ID == "" {
		req.ID = uuid.New().String()
	}
	if req.Status == "" {
		req.Status = RequestPending
	}
	now := time.Now()
	if req.RequestDate.IsZero() {
		req.RequestDate = now
	}
	req.CreatedAt = now
	req.UpdatedAt = now

	return s.db.Update(func(tx *bbolt.Tx) error {
		if tx.Bucket(CamerasBucket).Get([]byte(req.CameraID)) == nil {
			return errdefs.NotFound("camera %s not found", req.CameraID)
		}

		active := tx.Bucket(ActiveRequestsBucket)
		if existing := active.Get([]byte(req.CameraID)); existing != nil {
			return errdefs.InvalidState("camera %s already has an active maintenance request %s", req.CameraID, existing)
		}

		if err := putJSON(tx.Bucket(RequestsBucket), req.ID, req); err != nil {
			return err
		}
		if req.Status.Active() {
			return active.Put([]byte(req.CameraID), []byte(req.ID))
		}
		return nil
	})
}

func (s *BoltStore) GetRequest(ctx context.Context, id string) (*MaintenanceRequest, error) {
	var req MaintenanceRequest

	err := s.db.View(func(tx *bbolt.Tx) error {
		v := tx.Bucket(RequestsBucket).Get([]byte(id))
		if v == nil {
			return errdefs.NotFound("maintenance request %s not found", id)
		}
		return json.Unmarshal(v, &req)
	})
	if err != nil {
		return nil, err
	}
	return &req, nil
}

func (s *BoltStore) LatestRequestForCamera(ctx context.Context, cameraID string) (*MaintenanceRequest, error) {
	requests, err := s.scanRequests(RequestFilters{CameraID: cameraID})
	if err != nil {
		return nil, err
	}
	if len(requests) == 0 {
		return nil, errdefs.NotFound("no maintenance request for camera %s", cameraID)
	}
	return &requests[0], nil
}

// ListRequests filters, sorts by request date descending and paginates.
func (s *BoltStore) ListRequests(ctx context.Context, filters RequestFilters) (Page[MaintenanceRequest], error) {
	page, limit := normalizePage(filters.Page, filters.Limit)

	requests, err := s.scanRequests(filters)
	if err != nil {
		return Page[MaintenanceRequest]{}, err
	}

	total := len(requests)
	start := (page - 1) * limit
	if start > total {
		start = total
	}
	end := start + limit
	if end > total {
		end = total
	}

	return Page[MaintenanceRequest]{
		Items:      requests[start:end],
		Page:       page,
		Limit:      limit,
		TotalItems: total,
		TotalPages: (total + limit - 1) / limit,
	}, nil
}

// MutateRequest loads a request and its camera, applies mutate and writes
// both back in one transaction. The active-request index and the camera
// status history follow whatever mutate did.
func (s *BoltStore) MutateRequest(ctx context.Context, id string, mutate RequestMutation) (*MaintenanceRequest, *Camera, error) {
	var req MaintenanceRequest
	var camera *Camera

	err := s.db.Update(func(tx *bbolt.Tx) error {
		rb := tx.Bucket(RequestsBucket)
		cb := tx.Bucket(CamerasBucket)

		v := rb.Get([]byte(id))
		if v == nil {
			return errdefs.NotFound("maintenance request %s not found", id)
		}
		if err := json.Unmarshal(v, &req); err != nil {
			return fmt.Errorf("failed to unmarshal request %s: %w", id, err)
		}

		var err error
		camera, err = getCamera(cb, req.CameraID)
		if err != nil {
			return err
		}
		previous := camera.Status
		cameraID := req.CameraID

		if err := mutate(&req, camera); err != nil {
			return err
		}
		if req.ID != id || req.CameraID != cameraID {
			return errdefs.InvalidArgument("request identity cannot change")
		}

		now := time.Now()
		req.UpdatedAt = now
		if err := putJSON(rb, req.ID, &req); err != nil {
			return err
		}
		if err := syncActiveIndex(tx.Bucket(ActiveRequestsBucket), &req); err != nil {
			return err
		}

		if camera.Status != previous {
			target := camera.Status
			camera.Status = previous
			if err := setStatus(cb, tx.Bucket(StatusHistBucket), camera, target, "maintenance", now); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, nil, err
	}
	return &req, camera, nil
}

func syncActiveIndex(b *bbolt.Bucket, req *MaintenanceRequest) error {
	key := []byte(req.CameraID)
	if req.Status.Active() {
		return b.Put(key, []byte(req.ID))
	}
	if string(b.Get(key)) == req.ID {
		return b.Delete(key)
	}
	return nil
}

func (s *BoltStore) scanRequests(filters RequestFilters) ([]MaintenanceRequest, error) {
	requests := []MaintenanceRequest{}

	err := s.db.View(func(tx *bbolt.Tx) error {
		return tx.Bucket(RequestsBucket).ForEach(func(k, v []byte) error {
			var req MaintenanceRequest
			if err := json.Unmarshal(v, &req); err != nil {
				return fmt.Errorf("failed to unmarshal request %s: %w", k, err)
			}

			if filters.Status != "" && req.Status != filters.Status {
				return nil
			}
			if filters.CameraID != "" && req.CameraID != filters.CameraID {
				return nil
			}
			if filters.ServiceProviderID != "" && req.ServiceProviderID != filters.ServiceProviderID {
				return nil
			}
			if filters.Unassigned && req.ServiceProviderID != "" {
				return nil
			}

			requests = append(requests, req)
			return nil
		})
	})
	if err != nil {
		return nil, err
	}

	sort.SliceStable(requests, func(i, j int) bool {
		if requests[i].RequestDate.Equal(requests[j].RequestDate) {
			return requests[i].ID > requests[j].ID
		}
		return requests[i].RequestDate.After(requests[j].RequestDate)
	})
	return requests, nil
}

func normalizePage(page, limit int) (int, int) {
	if page < 1 {
		page = 1
	}
	if limit <= 0 {
		limit = DefaultPageLimit
	}
	if limit > MaxPageLimit {
		limit = MaxPageLimit
	}
	return page, limit
}
