// internal/events/publisher.go
// Package events mirrors camera status changes and maintenance transitions
// onto NATS so other services can follow the fleet without polling.
package events

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/nats-io/nats.go"
	"github.com/sirupsen/logrus"

	"github.com/owl29bd/cctv-automation-backend/internal/config"
)

// Event types published by the backend.
const (
	CameraStatusChanged  = "camera.status_changed"
	ScanCompleted        = "scan.completed"
	MaintenanceCreated   = "maintenance.created"
	MaintenanceUpdated   = "maintenance.updated"
	MaintenanceCompleted = "maintenance.completed"
)

const envelopeVersion = "1.0.0"

// Publisher sends domain events. Implementations never block the caller on
// delivery to subscribers.
type Publisher interface {
	Publish(ctx context.Context, eventType string, payload interface{}) error
	Close() error
}

// EventEnvelope wraps every published payload.
type EventEnvelope struct {
	Type          string      `json:"type"`
	Version       string      `json:"version"`
	OccurredAt    time.Time   `json:"occurredAt"`
	CorrelationID string      `json:"correlationId"`
	Payload       interface{} `json:"payload"`
}

type noop struct{}

func (n *noop) Publish(ctx context.Context, eventType string, payload interface{}) error {
	return nil
}

func (n *noop) Close() error { return nil }

// Noop returns a publisher that drops every event.
func Noop() Publisher {
	return &noop{}
}

type natsPub struct {
	nc     *nats.Conn
	js     nats.JetStreamContext
	prefix string
}

// NewPublisher connects to cfg.NATSURL. An empty URL or a failed connection
// yields a no-op publisher. When JetStream is unavailable events go out on
// core NATS subjects instead.
func NewPublisher(cfg config.EventsConfig) Publisher {
	if cfg.NATSURL == "" {
		return &noop{}
	}

	nc, err := nats.Connect(cfg.NATSURL,
		nats.Name("cctv-automation-backend"),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(2*time.Second),
	)
	if err != nil {
		logrus.WithError(err).Warn("NATS connect failed, using noop publisher")
		return &noop{}
	}

	prefix := strings.TrimSuffix(cfg.SubjectPrefix, ".")
	if prefix == "" {
		prefix = "cctv"
	}
	pub := &natsPub{nc: nc, prefix: prefix}

	js, err := nc.JetStream()
	if err == nil {
		err = initStream(js, prefix)
	}
	if err != nil {
		logrus.WithError(err).Warn("JetStream unavailable, publishing on core NATS")
	} else {
		pub.js = js
	}

	logrus.WithFields(logrus.Fields{
		"url":       cfg.NATSURL,
		"prefix":    prefix,
		"jetstream": pub.js != nil,
	}).Info("Event publisher connected")
	return pub
}

func initStream(js nats.JetStreamContext, prefix string) error {
	name := strings.ToUpper(strings.ReplaceAll(prefix, ".", "_")) + "_EVENTS"
	if _, err := js.StreamInfo(name); err == nil {
		return nil
	}
	_, err := js.AddStream(&nats.StreamConfig{
		Name:      name,
		Subjects:  []string{prefix + ".>"},
		Retention: nats.LimitsPolicy,
		MaxAge:    24 * time.Hour,
		Discard:   nats.DiscardOld,
		Storage:   nats.FileStorage,
	})
	if err != nil {
		return fmt.Errorf("failed to create %s stream: %w", name, err)
	}
	return nil
}

// Subject returns the NATS subject an event type is published on.
func Subject(prefix, eventType string) string {
	return prefix + "." + eventType
}

func (p *natsPub) Publish(ctx context.Context, eventType string, payload interface{}) error {
	data, err := encode(eventType, payload)
	if err != nil {
		return err
	}

	subject := Subject(p.prefix, eventType)
	if p.js != nil {
		if _, err := p.js.Publish(subject, data, nats.Context(ctx)); err != nil {
			return fmt.Errorf("failed to publish %s: %w", subject, err)
		}
		return nil
	}
	if err := p.nc.Publish(subject, data); err != nil {
		return fmt.Errorf("failed to publish %s: %w", subject, err)
	}
	return nil
}

func (p *natsPub) Close() error {
	if p.nc != nil {
		if err := p.nc.Drain(); err != nil {
			p.nc.Close()
		}
	}
	return nil
}

func encode(eventType string, payload interface{}) ([]byte, error) {
	envelope := EventEnvelope{
		Type:          eventType,
		Version:       envelopeVersion,
		OccurredAt:    time.Now().UTC(),
		CorrelationID: uuid.New().String(),
		Payload:       payload,
	}
	data, err := json.Marshal(envelope)
	if err != nil {
		return nil, fmt.Errorf("failed to encode %s event: %w", eventType, err)
	}
	return data, nil
}
