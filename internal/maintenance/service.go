// internal/maintenance/service.go
// Package maintenance runs the maintenance-request state machine. Every
// transition commits the request and the camera status it implies in one
// store transaction, then tells the other party over the realtime channel.
package maintenance

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/owl29bd/cctv-automation-backend/internal/database"
	"github.com/owl29bd/cctv-automation-backend/internal/errdefs"
	"github.com/owl29bd/cctv-automation-backend/internal/events"
	"github.com/owl29bd/cctv-automation-backend/internal/metrics"
	"github.com/owl29bd/cctv-automation-backend/internal/realtime"
	"github.com/owl29bd/cctv-automation-backend/internal/telemetry"
)

// Operation names used in logs, metrics and notifications.
const (
	OpCreate                = "create"
	OpAccept                = "accept"
	OpApplyForVerification  = "apply_for_verification"
	OpVerify                = "verify"
	OpRejectVerification    = "reject_verification"
	OpAssignServiceProvider = "assign_service_provider"
	OpMarkComplete          = "mark_complete"
)

// Caller is the authenticated user running an operation.
type Caller struct {
	ID   string
	Role database.Role
}

// Store is what the workflow needs from persistence.
type Store interface {
	database.RequestStore
	GetCamera(ctx context.Context, id string) (*database.Camera, error)
	GetUser(ctx context.Context, id string) (*database.User, error)
}

// Notifier delivers a notification to one user's live session.
type Notifier interface {
	SendToUser(userID string, notification realtime.Notification) error
}

type CreateInput struct {
	CameraID string
	Notes    string
}

type CompleteInput struct {
	CameraStatus database.CameraStatus
	Feedback     string
}

// Details is a request with its references resolved.
type Details struct {
	Request         *database.MaintenanceRequest
	Camera          *database.Camera
	ServiceProvider *database.User
	Administrator   *database.User
}

type Service struct {
	store     Store
	notifier  Notifier
	publisher events.Publisher
	tracer    trace.Tracer
	now       func() time.Time
}

func NewService(store Store, notifier Notifier, publisher events.Publisher) *Service {
	if publisher == nil {
		publisher = events.Noop()
	}
	return &Service{
		store:     store,
		notifier:  notifier,
		publisher: publisher,
		tracer:    telemetry.Tracer("maintenance"),
		now:       time.Now,
	}
}

func requireAdmin(caller Caller, op string) error {
	if !caller.Role.IsAdmin() {
		return errdefs.Unauthorized("role %q may not %s a maintenance request", caller.Role, strings.ReplaceAll(op, "_", " "))
	}
	return nil
}

func requireProviderRole(caller Caller, op string) error {
	if caller.Role != database.RoleServiceProvider && !caller.Role.IsAdmin() {
		return errdefs.Unauthorized("role %q may not %s a maintenance request", caller.Role, strings.ReplaceAll(op, "_", " "))
	}
	return nil
}

func requireStatus(req *database.MaintenanceRequest, allowed ...database.RequestStatus) error {
	for _, status := range allowed {
		if req.Status == status {
			return nil
		}
	}
	return errdefs.InvalidState("maintenance request %s is %s", req.ID, req.Status)
}

// Create opens a pending request. The camera keeps its status until Accept.
func (s *Service) Create(ctx context.Context, caller Caller, input CreateInput) (*database.MaintenanceRequest, error) {
	ctx, span := s.tracer.Start(ctx, "maintenance.create", trace.WithAttributes(attribute.String("camera.id", input.CameraID)))
	defer span.End()

	err := requireAdmin(caller, OpCreate)
	if err == nil && strings.TrimSpace(input.CameraID) == "" {
		err = errdefs.InvalidArgument("cameraId is required")
	}

	var req *database.MaintenanceRequest
	if err == nil {
		req = &database.MaintenanceRequest{
			CameraID:        input.CameraID,
			Status:          database.RequestPending,
			RequestDate:     s.now(),
			Notes:           input.Notes,
			AdministratorID: caller.ID,
		}
		err = s.store.CreateRequest(ctx, req)
	}

	s.finish(span, OpCreate, caller, req, err)
	if err != nil {
		return nil, err
	}

	metrics.ActiveRequests.Inc()
	s.publish(ctx, events.MaintenanceCreated, OpCreate, req)
	return req, nil
}

// Accept moves a pending request to in progress and puts the camera into maintenance.
// With no provider assigned the caller becomes the provider.
func (s *Service) Accept(ctx context.Context, caller Caller, id string) (*database.MaintenanceRequest, error) {
	if err := requireProviderRole(caller, OpAccept); err != nil {
		return nil, s.reject(ctx, OpAccept, caller, id, err)
	}

	req, err := s.transition(ctx, OpAccept, caller, id, func(req *database.MaintenanceRequest, camera *database.Camera) error {
		if err := requireStatus(req, database.RequestPending); err != nil {
			return err
		}
		if req.ServiceProviderID != "" && req.ServiceProviderID != caller.ID {
			return errdefs.Unauthorized("maintenance request %s is assigned to another service provider", req.ID)
		}
		now := s.now()
		req.ServiceProviderID = caller.ID
		req.AcceptedDate = &now
		req.Status = database.RequestInProgress
		camera.Status = database.CameraMaintenance
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.notify(req.AdministratorID, OpAccept, req)
	return req, nil
}

// ApplyForVerification asks the creating administrator to verify the work.
func (s *Service) ApplyForVerification(ctx context.Context, caller Caller, id, notes string) (*database.MaintenanceRequest, error) {
	if err := requireProviderRole(caller, OpApplyForVerification); err != nil {
		return nil, s.reject(ctx, OpApplyForVerification, caller, id, err)
	}

	req, err := s.transition(ctx, OpApplyForVerification, caller, id, func(req *database.MaintenanceRequest, camera *database.Camera) error {
		if err := requireStatus(req, database.RequestInProgress); err != nil {
			return err
		}
		if req.ServiceProviderID != caller.ID {
			return errdefs.Unauthorized("only the assigned service provider may apply for verification")
		}
		now := s.now()
		req.VerificationRequestDate = &now
		req.Status = database.RequestPendingVerification
		if notes != "" {
			req.Notes = notes
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.notify(req.AdministratorID, OpApplyForVerification, req)
	return req, nil
}

// Verify completes the request and brings the camera back online. Only the
// administrator who created the request may verify it.
func (s *Service) Verify(ctx context.Context, caller Caller, id string) (*database.MaintenanceRequest, error) {
	if err := requireAdmin(caller, OpVerify); err != nil {
		return nil, s.reject(ctx, OpVerify, caller, id, err)
	}

	req, err := s.transition(ctx, OpVerify, caller, id, func(req *database.MaintenanceRequest, camera *database.Camera) error {
		if err := requireStatus(req, database.RequestPendingVerification); err != nil {
			return err
		}
		if req.AdministratorID != caller.ID {
			return errdefs.Unauthorized("only the administrator who created the request may verify it")
		}
		req.Status = database.RequestCompleted
		camera.Status = database.CameraOnline
		return nil
	})
	if err != nil {
		return nil, err
	}

	metrics.ActiveRequests.Dec()
	s.notify(req.ServiceProviderID, OpVerify, req)
	return req, nil
}

// RejectVerification sends the request back to the provider. The camera stays in maintenance.
func (s *Service) RejectVerification(ctx context.Context, caller Caller, id, notes string) (*database.MaintenanceRequest, error) {
	if err := requireAdmin(caller, OpRejectVerification); err != nil {
		return nil, s.reject(ctx, OpRejectVerification, caller, id, err)
	}

	req, err := s.transition(ctx, OpRejectVerification, caller, id, func(req *database.MaintenanceRequest, camera *database.Camera) error {
		if err := requireStatus(req, database.RequestPendingVerification); err != nil {
			return err
		}
		if req.AdministratorID != caller.ID {
			return errdefs.Unauthorized("only the administrator who created the request may reject it")
		}
		req.Status = database.RequestInProgress
		if notes != "" {
			req.Notes = notes
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.notify(req.ServiceProviderID, OpRejectVerification, req)
	return req, nil
}

// AssignServiceProvider sets or, with an empty id, clears the provider.
func (s *Service) AssignServiceProvider(ctx context.Context, caller Caller, id, providerID string) (*database.MaintenanceRequest, error) {
	if err := requireAdmin(caller, OpAssignServiceProvider); err != nil {
		return nil, s.reject(ctx, OpAssignServiceProvider, caller, id, err)
	}

	providerID = strings.TrimSpace(providerID)
	if providerID != "" {
		provider, err := s.store.GetUser(ctx, providerID)
		if err != nil {
			return nil, s.reject(ctx, OpAssignServiceProvider, caller, id, err)
		}
		if provider.Role != database.RoleServiceProvider {
			err := errdefs.InvalidArgument("user %s is not a service provider", providerID)
			return nil, s.reject(ctx, OpAssignServiceProvider, caller, id, err)
		}
	}

	var previous string
	req, err := s.transition(ctx, OpAssignServiceProvider, caller, id, func(req *database.MaintenanceRequest, camera *database.Camera) error {
		if err := requireStatus(req, database.RequestPending, database.RequestInProgress); err != nil {
			return err
		}
		previous = req.ServiceProviderID
		req.ServiceProviderID = providerID
		return nil
	})
	if err != nil {
		return nil, err
	}

	if providerID != "" {
		s.notify(providerID, OpAssignServiceProvider, req)
	}
	if previous != "" && previous != providerID {
		s.notify(previous, OpAssignServiceProvider, req)
	}
	return req, nil
}

// MarkComplete closes an in-progress request directly and sets the camera
// to the status the provider reports. AcceptedDate is reused as the
// completion time.
func (s *Service) MarkComplete(ctx context.Context, caller Caller, id string, input CompleteInput) (*database.MaintenanceRequest, error) {
	if err := requireProviderRole(caller, OpMarkComplete); err != nil {
		return nil, s.reject(ctx, OpMarkComplete, caller, id, err)
	}

	target := input.CameraStatus
	if target == "" {
		target = database.CameraOnline
	}
	if !target.Valid() {
		err := errdefs.InvalidArgument("invalid camera status %q", input.CameraStatus)
		return nil, s.reject(ctx, OpMarkComplete, caller, id, err)
	}

	req, err := s.transition(ctx, OpMarkComplete, caller, id, func(req *database.MaintenanceRequest, camera *database.Camera) error {
		if err := requireStatus(req, database.RequestInProgress); err != nil {
			return err
		}
		if req.ServiceProviderID != caller.ID {
			return errdefs.Unauthorized("only the assigned service provider may complete the request")
		}
		now := s.now()
		req.AcceptedDate = &now
		req.Status = database.RequestCompleted
		if input.Feedback != "" {
			req.Feedback = input.Feedback
		}
		camera.Status = target
		return nil
	})
	if err != nil {
		return nil, err
	}

	metrics.ActiveRequests.Dec()
	s.notify(req.AdministratorID, OpMarkComplete, req)
	return req, nil
}

// transition runs mutate against the request and its camera in one store
// transaction and records the outcome.
func (s *Service) transition(ctx context.Context, op string, caller Caller, id string, mutate database.RequestMutation) (*database.MaintenanceRequest, error) {
	ctx, span := s.tracer.Start(ctx, "maintenance."+op, trace.WithAttributes(
		attribute.String("request.id", id),
		attribute.String("caller.id", caller.ID),
	))
	defer span.End()

	req, camera, err := s.store.MutateRequest(ctx, id, mutate)
	s.finish(span, op, caller, req, err)
	if err != nil {
		return nil, err
	}

	eventType := events.MaintenanceUpdated
	if req.Status == database.RequestCompleted || req.Status == database.RequestFailed {
		eventType = events.MaintenanceCompleted
	}
	s.publish(ctx, eventType, op, req)

	logrus.WithFields(logrus.Fields{
		"request_id":    req.ID,
		"camera_id":     req.CameraID,
		"status":        req.Status,
		"camera_status": camera.Status,
	}).Debug("Maintenance transition committed")
	return req, nil
}

// reject records an operation refused before reaching the store.
func (s *Service) reject(ctx context.Context, op string, caller Caller, id string, err error) error {
	_, span := s.tracer.Start(ctx, "maintenance."+op, trace.WithAttributes(attribute.String("request.id", id)))
	defer span.End()
	s.finish(span, op, caller, nil, err)
	return err
}

func (s *Service) finish(span trace.Span, op string, caller Caller, req *database.MaintenanceRequest, err error) {
	metrics.RecordTransition(op, err)

	fields := logrus.Fields{
		"operation": op,
		"caller_id": caller.ID,
		"role":      caller.Role,
	}
	if req != nil {
		fields["request_id"] = req.ID
		fields["camera_id"] = req.CameraID
		fields["status"] = req.Status
	}

	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		fields["kind"] = errdefs.KindOf(err)
		logrus.WithFields(fields).WithError(err).Warn("Maintenance operation refused")
		return
	}
	logrus.WithFields(fields).Info("Maintenance operation applied")
}

// notify tells one user about a transition. Delivery problems never undo
// a committed transition.
func (s *Service) notify(userID, op string, req *database.MaintenanceRequest) {
	if s.notifier == nil || userID == "" {
		return
	}

	notification := realtime.NewNotification(realtime.TypeMaintenance, NewResponse(req), map[string]interface{}{
		"operation": op,
	})
	if err := s.notifier.SendToUser(userID, notification); err != nil {
		entry := logrus.WithError(err).WithFields(logrus.Fields{
			"user_id":    userID,
			"request_id": req.ID,
			"operation":  op,
		})
		if errors.Is(err, errdefs.ErrChannelUninitialized) {
			entry.Warn("Realtime channel not ready, maintenance notification dropped")
			return
		}
		entry.Error("Failed to send maintenance notification")
	}
}

func (s *Service) publish(ctx context.Context, eventType, op string, req *database.MaintenanceRequest) {
	payload := map[string]interface{}{
		"operation": op,
		"request":   NewResponse(req),
	}
	if err := s.publisher.Publish(ctx, eventType, payload); err != nil {
		logrus.WithError(err).WithField("request_id", req.ID).Warn("Failed to publish maintenance event")
	}
}
