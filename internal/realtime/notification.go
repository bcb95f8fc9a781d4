// internal/realtime/notification.go
package realtime

import (
	"time"
)

const (
	TypePingResults = "pingResults"
	TypeMaintenance = "maintenance"
)

// Notification is the payload pushed to connected sessions.
type Notification struct {
	Type      string                 `json:"type"`
	Content   interface{}            `json:"content"`
	Timestamp time.Time              `json:"timestamp"`
	Metadata  map[string]interface{} `json:"metadata,omitempty"`
}

func NewNotification(notificationType string, content interface{}, metadata map[string]interface{}) Notification {
	return Notification{
		Type:      notificationType,
		Content:   content,
		Timestamp: time.Now().UTC(),
		Metadata:  metadata,
	}
}
