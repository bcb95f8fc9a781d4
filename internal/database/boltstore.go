// internal/database/boltstore.go - BoltDB camera and user directory
package database

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"go.etcd.io/bbolt"

	"github.com/owl29bd/cctv-automation-backend/internal/errdefs"
)

var (
	CamerasBucket        = []byte("cameras")
	UsersBucket          = []byte("users")
	RequestsBucket       = []byte("maintenance_requests")
	ActiveRequestsBucket = []byte("active_requests")
	StatusHistBucket     = []byte("status_history")
	MetaBucket           = []byte("meta")
)

var allBuckets = [][]byte{CamerasBucket, UsersBucket, RequestsBucket, ActiveRequestsBucket, StatusHistBucket, MetaBucket}

type BoltStore struct {
	db   *bbolt.DB
	path string
}

func NewBoltStore(path string) (*BoltStore, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, fmt.Errorf("failed to create data directory: %w", err)
	}

	db, err := bbolt.Open(path, 0600, &bbolt.Options{
		Timeout: 1 * time.Second,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open BoltDB: %w", err)
	}

	store := &BoltStore{db: db, path: path}

	if err := store.initBuckets(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize buckets: %w", err)
	}

	return store, nil
}

func (s *BoltStore) initBuckets() error {
	return s.db.Update(func(tx *bbolt.Tx) error {
		for _, bucket := range allBuckets {
			if _, err := tx.CreateBucketIfNotExists(bucket); err != nil {
				return fmt.Errorf("failed to create bucket %s: %w", bucket, err)
			}
		}
		return nil
	})
}

func (s *BoltStore) ListCameras(ctx context.Context, filters CameraFilters) ([]Camera, error) {
	var cameras []Camera

	err := s.db.View(func(tx *bbolt.Tx) error {
		b := tx.Bucket(CamerasBucket)
		return b.ForEach(func(k, v []byte) error {
			var camera Camera
			if err := json.Unmarshal(v, &camera); err != nil {
				return fmt.Errorf("failed to unmarshal camera %s: %w", k, err)
			}

			if filters.Status != "" && camera.Status != filters.Status {
				return nil
			}

			cameras = append(cameras, camera)
			return nil
		})
	})
	if err != nil {
		return nil, err
	}

	sortCameras(cameras)
	return cameras, nil
}

func (s *BoltStore) GetCamera(ctx context.Context, id string) (*Camera, error) {
	var camera Camera

	err := s.db.View(func(tx *bbolt.Tx) error {
		v := tx.Bucket(CamerasBucket).Get([]byte(id))
		if v == nil {
			return errdefs.NotFound("camera %s not found", id)
		}
		return json.Unmarshal(v, &camera)
	})
	if err != nil {
		return nil, err
	}
	return &camera, nil
}

func (s *BoltStore) CreateCamera(ctx context.Context, camera *Camera) error {
	if camera.ID == "" {
		camera.ID = uuid.New().String()
	}
	if camera.Status == "" {
		camera.Status = CameraOnline
	}
	if !camera.Status.Valid() {
		return errdefs.InvalidArgument("invalid camera status %q", camera.Status)
	}
	now := time.Now()
	camera.CreatedAt = now
	camera.UpdatedAt = now

	return s.db.Update(func(tx *bbolt.Tx) error {
		b := tx.Bucket(CamerasBucket)
		if b.Get([]byte(camera.ID)) != nil {
			return errdefs.InvalidArgument("camera %s already exists", camera.ID)
		}
		return putJSON(b, camera.ID, camera)
	})
}

func (s *BoltStore) UpdateCamera(ctx context.Context, camera *Camera) error {
	if !camera.Status.Valid() {
		return errdefs.InvalidArgument("invalid camera status %q", camera.Status)
	}
	camera.UpdatedAt = time.Now()

	return s.db.Update(func(tx *bbolt.Tx) error {
		b := tx.Bucket(CamerasBucket)
		if b.Get([]byte(camera.ID)) == nil {
			return errdefs.NotFound("camera %s not found", camera.ID)
		}
		return putJSON(b, camera.ID, camera)
	})
}

func (s *BoltStore) SetCameraImage(ctx context.Context, id string, image []byte, contentType string) error {
	return s.db.Update(func(tx *bbolt.Tx) error {
		b := tx.Bucket(CamerasBucket)
		camera, err := getCamera(b, id)
		if err != nil {
			return err
		}
		camera.Image = image
		camera.ImageContentType = contentType
		camera.UpdatedAt = time.Now()
		return putJSON(b, id, camera)
	})
}

func (s *BoltStore) CountCameras(ctx context.Context) (int, error) {
	count := 0
	err := s.db.View(func(tx *bbolt.Tx) error {
		count = tx.Bucket(CamerasBucket).Stats().KeyN
		return nil
	})
	return count, err
}

// ListProbeTargets returns every camera except those in excludeStatus, in creation order.
func (s *BoltStore) ListProbeTargets(ctx context.Context, excludeStatus CameraStatus) ([]ProbeTarget, error) {
	cameras, err := s.ListCameras(ctx, CameraFilters{})
	if err != nil {
		return nil, err
	}

	sort.SliceStable(cameras, func(i, j int) bool {
		if cameras[i].CreatedAt.Equal(cameras[j].CreatedAt) {
			return cameras[i].ID < cameras[j].ID
		}
		return cameras[i].CreatedAt.Before(cameras[j].CreatedAt)
	})

	targets := make([]ProbeTarget, 0, len(cameras))
	for _, camera := range cameras {
		if excludeStatus != "" && camera.Status == excludeStatus {
			continue
		}
		targets = append(targets, ProbeTarget{ID: camera.ID, IP: camera.IP, Status: camera.Status})
	}
	return targets, nil
}

// BulkSetStatus applies all updates in a single transaction and returns the
// ones that were written. Cameras that disappeared, or whose status moved
// away from Expected since they were listed, are skipped.
func (s *BoltStore) BulkSetStatus(ctx context.Context, updates []StatusUpdate, source string) ([]StatusUpdate, error) {
	if len(updates) == 0 {
		return nil, nil
	}

	var applied []StatusUpdate
	err := s.db.Update(func(tx *bbolt.Tx) error {
		applied = applied[:0]
		b := tx.Bucket(CamerasBucket)
		hb := tx.Bucket(StatusHistBucket)
		now := time.Now()

		for _, update := range updates {
			if !update.Status.Valid() {
				return errdefs.InvalidArgument("invalid camera status %q", update.Status)
			}
			camera, err := getCamera(b, update.CameraID)
			if err != nil {
				logrus.WithField("camera_id", update.CameraID).Warn("Skipping status update for missing camera")
				continue
			}
			if update.Expected != "" && camera.Status != update.Expected {
				logrus.WithFields(logrus.Fields{
					"camera_id": update.CameraID,
					"expected":  update.Expected,
					"actual":    camera.Status,
				}).Warn("Skipping stale status update")
				continue
			}
			if err := setStatus(b, hb, camera, update.Status, source, now); err != nil {
				return err
			}
			applied = append(applied, update)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return applied, nil
}

func (s *BoltStore) SetCameraStatus(ctx context.Context, id string, status CameraStatus, source string) error {
	if !status.Valid() {
		return errdefs.InvalidArgument("invalid camera status %q", status)
	}

	return s.db.Update(func(tx *bbolt.Tx) error {
		b := tx.Bucket(CamerasBucket)
		camera, err := getCamera(b, id)
		if err != nil {
			return err
		}
		return setStatus(b, tx.Bucket(StatusHistBucket), camera, status, source, time.Now())
	})
}

func (s *BoltStore) GetUser(ctx context.Context, id string) (*User, error) {
	var user User

	err := s.db.View(func(tx *bbolt.Tx) error {
		v := tx.Bucket(UsersBucket).Get([]byte(id))
		if v == nil {
			return errdefs.NotFound("user %s not found", id)
		}
		return json.Unmarshal(v, &user)
	})
	if err != nil {
		return nil, err
	}
	return &user, nil
}

func (s *BoltStore) CreateUser(ctx context.Context, user *User) error {
	if user.ID == "" {
		user.ID = uuid.New().String()
	}
	if user.Role == "" {
		user.Role = RoleUser
	}
	if !user.Role.Valid() {
		return errdefs.InvalidArgument("invalid role %q", user.Role)
	}
	now := time.Now()
	user.CreatedAt = now
	user.UpdatedAt = now

	return s.db.Update(func(tx *bbolt.Tx) error {
		b := tx.Bucket(UsersBucket)
		if b.Get([]byte(user.ID)) != nil {
			return errdefs.InvalidArgument("user %s already exists", user.ID)
		}
		if user.Email != "" {
			err := b.ForEach(func(k, v []byte) error {
				var existing User
				if err := json.Unmarshal(v, &existing); err != nil {
					return nil
				}
				if strings.EqualFold(existing.Email, user.Email) {
					return errdefs.InvalidArgument("email %s already registered", user.Email)
				}
				return nil
			})
			if err != nil {
				return err
			}
		}
		return putJSON(b, user.ID, user)
	})
}

func (s *BoltStore) ListUsers(ctx context.Context, role Role) ([]User, error) {
	var users []User

	err := s.db.View(func(tx *bbolt.Tx) error {
		return tx.Bucket(UsersBucket).ForEach(func(k, v []byte) error {
			var user User
			if err := json.Unmarshal(v, &user); err != nil {
				return fmt.Errorf("failed to unmarshal user %s: %w", k, err)
			}
			if role != "" && user.Role != role {
				return nil
			}
			users = append(users, user)
			return nil
		})
	})
	if err != nil {
		return nil, err
	}

	sort.Slice(users, func(i, j int) bool { return users[i].Email < users[j].Email })
	return users, nil
}

func (s *BoltStore) Close() error {
	return s.db.Close()
}

func getCamera(b *bbolt.Bucket, id string) (*Camera, error) {
	v := b.Get([]byte(id))
	if v == nil {
		return nil, errdefs.NotFound("camera %s not found", id)
	}
	var camera Camera
	if err := json.Unmarshal(v, &camera); err != nil {
		return nil, fmt.Errorf("failed to unmarshal camera %s: %w", id, err)
	}
	return &camera, nil
}

// setStatus writes the new status and a history entry when it actually changes.
func setStatus(b, hb *bbolt.Bucket, camera *Camera, status CameraStatus, source string, now time.Time) error {
	if camera.Status == status {
		return nil
	}
	entry := StatusHistoryEntry{
		CameraID:       camera.ID,
		PreviousStatus: camera.Status,
		NewStatus:      status,
		Source:         source,
		Timestamp:      now,
	}
	camera.Status = status
	camera.UpdatedAt = now
	if err := putJSON(b, camera.ID, camera); err != nil {
		return err
	}
	return putJSON(hb, historyKey(camera.ID, now), entry)
}

func putJSON(b *bbolt.Bucket, key string, value interface{}) error {
	data, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("failed to marshal %s: %w", key, err)
	}
	return b.Put([]byte(key), data)
}

func sortCameras(cameras []Camera) {
	sort.SliceStable(cameras, func(i, j int) bool {
		if cameras[i].Name == cameras[j].Name {
			return cameras[i].ID < cameras[j].ID
		}
		return cameras[i].Name < cameras[j].Name
	})
}
