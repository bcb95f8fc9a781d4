// internal/notifications/pushover.go - Pushover alerts for camera status changes
package notifications

import (
	"bytes"
	"context"
	"fmt"
	"sync"
	"text/template"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/sirupsen/logrus"

	"github.com/owl29bd/cctv-automation-backend/internal/config"
	"github.com/owl29bd/cctv-automation-backend/internal/database"
)

const UserAgent = "cctv-automation-backend/1.0"

// StatusChangeEvent is one camera transition reported by the health scanner.
type StatusChangeEvent struct {
	CameraID       string
	IP             string
	PreviousStatus database.CameraStatus
	Status         database.CameraStatus
	Timestamp      time.Time
}

// IsRecovery reports a return to online from any other status.
func (e StatusChangeEvent) IsRecovery() bool {
	return e.Status == database.CameraOnline && e.PreviousStatus != database.CameraOnline
}

// CameraLookup resolves the camera details used in message templates.
type CameraLookup interface {
	GetCamera(ctx context.Context, id string) (*database.Camera, error)
}

// Service sends Pushover messages for camera status changes.
type Service struct {
	config    *config.NotificationConfig
	client    *resty.Client
	cameras   CameraLookup
	throttler *Throttler
	title     *template.Template
	message   *template.Template
	now       func() time.Time
}

type PushoverMessage struct {
	Token     string `json:"token"`
	User      string `json:"user"`
	Message   string `json:"message"`
	Title     string `json:"title,omitempty"`
	Priority  int    `json:"priority,omitempty"`
	Retry     int    `json:"retry,omitempty"`
	Expire    int    `json:"expire,omitempty"`
	Sound     string `json:"sound,omitempty"`
	Device    string `json:"device,omitempty"`
	Timestamp int64  `json:"timestamp,omitempty"`
}

type PushoverResponse struct {
	Status  int      `json:"status"`
	Request string   `json:"request,omitempty"`
	Errors  []string `json:"errors,omitempty"`
}

// templateData is what title and message templates may reference.
type templateData struct {
	ID             string
	Name           string
	IP             string
	Location       string
	SerialNumber   string
	PreviousStatus string
	Status         string
	Timestamp      string
	IsRecovery     bool
}

func NewService(cfg *config.NotificationConfig, cameras CameraLookup) (*Service, error) {
	service := &Service{
		config:  cfg,
		cameras: cameras,
		now:     time.Now,
	}

	if !service.Enabled() {
		logrus.Info("Pushover notifications disabled")
		return service, nil
	}

	title, err := template.New("title").Parse(cfg.Pushover.Title)
	if err != nil {
		return nil, fmt.Errorf("failed to parse title template: %w", err)
	}
	message, err := template.New("message").Parse(cfg.Pushover.Template)
	if err != nil {
		return nil, fmt.Errorf("failed to parse message template: %w", err)
	}
	service.title = title
	service.message = message

	service.client = resty.New().
		SetBaseURL(cfg.Pushover.APIURL).
		SetTimeout(30*time.Second).
		SetRetryCount(2).
		SetRetryWaitTime(time.Second).
		SetHeader("User-Agent", UserAgent).
		SetHeader("Content-Type", "application/json").
		SetHeader("Accept", "application/json")

	if cfg.Pushover.Throttle.Enabled {
		service.throttler = NewThrottler(cfg.Pushover.Throttle)
	}

	logrus.WithFields(logrus.Fields{
		"priority":         cfg.Pushover.Priority,
		"only_on_state":    cfg.Pushover.OnlyOnState,
		"throttle_enabled": cfg.Pushover.Throttle.Enabled,
	}).Info("Pushover notifications enabled")

	return service, nil
}

func (s *Service) Enabled() bool {
	return s.config != nil && s.config.Enabled && s.config.Pushover.Enabled
}

// NotifyStatusChange sends one alert unless it is filtered, in quiet hours
// or throttled. Filtered alerts are not errors.
func (s *Service) NotifyStatusChange(ctx context.Context, event StatusChangeEvent) error {
	if !s.Enabled() {
		return nil
	}

	fields := logrus.Fields{
		"camera_id": event.CameraID,
		"from":      event.PreviousStatus,
		"to":        event.Status,
	}

	if !s.shouldNotify(event) {
		logrus.WithFields(fields).Debug("Skipping notification based on state filter")
		return nil
	}
	if s.config.Pushover.QuietHours.IsQuietTime(s.now()) {
		logrus.WithFields(fields).Debug("Skipping notification during quiet hours")
		return nil
	}
	if s.throttler != nil && s.throttler.IsThrottled(event.CameraID) {
		logrus.WithFields(fields).Debug("Notification throttled")
		return nil
	}

	message, err := s.buildMessage(ctx, event)
	if err != nil {
		return fmt.Errorf("failed to build message: %w", err)
	}
	if err := s.send(ctx, message); err != nil {
		return err
	}

	if s.throttler != nil {
		s.throttler.RecordNotification(event.CameraID)
	}
	logrus.WithFields(fields).Info("Pushover notification sent")
	return nil
}

func (s *Service) shouldNotify(event StatusChangeEvent) bool {
	states := s.config.Pushover.OnlyOnState
	if len(states) == 0 {
		return true
	}
	for _, state := range states {
		if state == string(event.Status) {
			return true
		}
		if state == "recovery" && event.IsRecovery() {
			return true
		}
	}
	return false
}

func (s *Service) buildMessage(ctx context.Context, event StatusChangeEvent) (*PushoverMessage, error) {
	timestamp := event.Timestamp
	if timestamp.IsZero() {
		timestamp = s.now()
	}

	data := templateData{
		ID:             event.CameraID,
		Name:           event.CameraID,
		IP:             event.IP,
		PreviousStatus: string(event.PreviousStatus),
		Status:         string(event.Status),
		Timestamp:      timestamp.Format("2006-01-02 15:04:05"),
		IsRecovery:     event.IsRecovery(),
	}
	if s.cameras != nil {
		if camera, err := s.cameras.GetCamera(ctx, event.CameraID); err == nil {
			data.Name = camera.Name
			data.Location = camera.Location
			data.SerialNumber = camera.SerialNumber
			if data.IP == "" {
				data.IP = camera.IP
			}
		}
	}

	title, err := render(s.title, data)
	if err != nil {
		return nil, err
	}
	body, err := render(s.message, data)
	if err != nil {
		return nil, err
	}

	p := s.config.Pushover
	message := &PushoverMessage{
		Token:     p.APIToken,
		User:      p.UserKey,
		Title:     title,
		Message:   body,
		Priority:  p.Priority,
		Sound:     p.Sound,
		Device:    p.Device,
		Timestamp: timestamp.Unix(),
	}
	if p.Priority == 2 {
		message.Retry = p.Retry
		message.Expire = p.Expire
	}
	return message, nil
}

func render(tmpl *template.Template, data templateData) (string, error) {
	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, data); err != nil {
		return "", fmt.Errorf("failed to execute template %s: %w", tmpl.Name(), err)
	}
	return buf.String(), nil
}

func (s *Service) send(ctx context.Context, message *PushoverMessage) error {
	resp, err := s.client.R().
		SetContext(ctx).
		SetBody(message).
		SetResult(&PushoverResponse{}).
		SetError(&PushoverResponse{}).
		Post("/messages.json")
	if err != nil {
		return fmt.Errorf("failed to send request: %w", err)
	}

	if resp.IsError() {
		if apiErr, ok := resp.Error().(*PushoverResponse); ok && len(apiErr.Errors) > 0 {
			return fmt.Errorf("pushover API error: %v", apiErr.Errors)
		}
		return fmt.Errorf("pushover API error: %s", resp.Status())
	}

	result, ok := resp.Result().(*PushoverResponse)
	if !ok || result.Status != 1 {
		return fmt.Errorf("pushover API rejected message: %s", resp.String())
	}
	return nil
}

// SendTest delivers a plain message, bypassing filters and throttling.
func (s *Service) SendTest(ctx context.Context, text string) error {
	if !s.Enabled() {
		return fmt.Errorf("notifications are not enabled or configured")
	}
	return s.send(ctx, &PushoverMessage{
		Token:   s.config.Pushover.APIToken,
		User:    s.config.Pushover.UserKey,
		Title:   "CCTV test notification",
		Message: text,
		Sound:   s.config.Pushover.Sound,
	})
}

func (s *Service) Stats() map[string]interface{} {
	stats := map[string]interface{}{
		"enabled":          s.Enabled(),
		"throttle_enabled": s.throttler != nil,
	}
	if s.Enabled() {
		stats["priority"] = s.config.Pushover.Priority
		stats["only_on_state"] = s.config.Pushover.OnlyOnState
	}
	if s.throttler != nil {
		cameras, total := s.throttler.Counts()
		stats["throttle_window"] = s.throttler.config.Window.String()
		stats["throttle_cameras"] = cameras
		stats["throttle_total_recent"] = total
	}
	return stats
}

// Throttler caps alerts per camera and overall within a sliding window.
type Throttler struct {
	config       config.ThrottleConfig
	cameraCounts map[string][]time.Time
	totalCounts  []time.Time
	now          func() time.Time
	mu           sync.Mutex
}

func NewThrottler(cfg config.ThrottleConfig) *Throttler {
	return &Throttler{
		config:       cfg,
		cameraCounts: make(map[string][]time.Time),
		now:          time.Now,
	}
}

func (t *Throttler) IsThrottled(cameraID string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.pruneLocked()
	if t.config.MaxPerCamera > 0 && len(t.cameraCounts[cameraID]) >= t.config.MaxPerCamera {
		return true
	}
	return t.config.MaxTotal > 0 && len(t.totalCounts) >= t.config.MaxTotal
}

func (t *Throttler) RecordNotification(cameraID string) {
	t.mu.Lock()
	defer t.mu.Unlock()

	now := t.now()
	t.cameraCounts[cameraID] = append(t.cameraCounts[cameraID], now)
	t.totalCounts = append(t.totalCounts, now)
}

// Counts returns the cameras with recent alerts and the total in the window.
func (t *Throttler) Counts() (int, int) {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.pruneLocked()
	return len(t.cameraCounts), len(t.totalCounts)
}

func (t *Throttler) pruneLocked() {
	windowStart := t.now().Add(-t.config.Window)

	for cameraID, times := range t.cameraCounts {
		recent := keepAfter(times, windowStart)
		if len(recent) == 0 {
			delete(t.cameraCounts, cameraID)
		} else {
			t.cameraCounts[cameraID] = recent
		}
	}
	t.totalCounts = keepAfter(t.totalCounts, windowStart)
}

func keepAfter(times []time.Time, cutoff time.Time) []time.Time {
	recent := times[:0]
	for _, ts := range times {
		if ts.After(cutoff) {
			recent = append(recent, ts)
		}
	}
	return recent
}
