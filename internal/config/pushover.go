// internal/config/pushover.go - Pushover configuration structures
package config

import (
	"fmt"
	"time"
)

type NotificationConfig struct {
	Enabled  bool           `yaml:"enabled"`
	Pushover PushoverConfig `yaml:"pushover"`
}

// PushoverConfig holds Pushover settings for camera status alerts
type PushoverConfig struct {
	Enabled  bool   `yaml:"enabled"`
	APIURL   string `yaml:"api_url"`
	APIToken string `yaml:"api_token"`
	UserKey  string `yaml:"user_key"`
	Device   string `yaml:"device,omitempty"`
	Priority int    `yaml:"priority"` // -2 to 2
	Retry    int    `yaml:"retry"`    // seconds, emergency priority only
	Expire   int    `yaml:"expire"`   // seconds, emergency priority only
	Sound    string `yaml:"sound,omitempty"`
	Title    string `yaml:"title"`
	Template string `yaml:"template"`
	// OnlyOnState limits alerts to these new camera statuses; "recovery" matches any return to online.
	OnlyOnState []string       `yaml:"only_on_state"`
	QuietHours  *QuietHours    `yaml:"quiet_hours,omitempty"`
	Throttle    ThrottleConfig `yaml:"throttle"`
}

// QuietHours defines when notifications should be suppressed
type QuietHours struct {
	Enabled   bool   `yaml:"enabled"`
	StartHour int    `yaml:"start_hour"` // 0-23
	EndHour   int    `yaml:"end_hour"`   // 0-23
	Timezone  string `yaml:"timezone"`   // IANA timezone, e.g., "Asia/Dhaka"
}

type ThrottleConfig struct {
	Enabled      bool          `yaml:"enabled"`
	Window       time.Duration `yaml:"window"`
	MaxPerCamera int           `yaml:"max_per_camera"`
	MaxTotal     int           `yaml:"max_total"`
}

func setPushoverDefaults(p *PushoverConfig) {
	if p.APIURL == "" {
		p.APIURL = "https://api.pushover.net/1"
	}
	if p.Title == "" {
		p.Title = "Camera {{.Name}} is {{.Status}}"
	}
	if p.Template == "" {
		p.Template = "{{.Name}} ({{.IP}}) at {{.Location}} changed from {{.PreviousStatus}} to {{.Status}}"
	}
	if len(p.OnlyOnState) == 0 {
		p.OnlyOnState = []string{"offline", "recovery"}
	}
	if p.Sound == "" {
		p.Sound = "pushover"
	}
	if p.Throttle.Window == 0 {
		p.Throttle.Window = 15 * time.Minute
	}
	if p.Throttle.MaxPerCamera == 0 {
		p.Throttle.MaxPerCamera = 3
	}
	if p.Throttle.MaxTotal == 0 {
		p.Throttle.MaxTotal = 20
	}
	if p.QuietHours != nil && p.QuietHours.Timezone == "" {
		p.QuietHours.Timezone = "UTC"
	}
}

// Validate ensures the Pushover configuration is valid
func (p *PushoverConfig) Validate() error {
	if !p.Enabled {
		return nil
	}

	if p.UserKey == "" {
		return fmt.Errorf("notifications.pushover.user_key is required when Pushover is enabled")
	}
	if p.APIToken == "" {
		return fmt.Errorf("notifications.pushover.api_token is required when Pushover is enabled")
	}
	if p.Priority < -2 || p.Priority > 2 {
		return fmt.Errorf("notifications.pushover.priority must be between -2 and 2")
	}
	if p.Priority == 2 {
		if p.Retry < 30 {
			return fmt.Errorf("notifications.pushover.retry must be at least 30 seconds for emergency priority")
		}
		if p.Expire < 60 || p.Expire > 10800 {
			return fmt.Errorf("notifications.pushover.expire must be between 60 and 10800 seconds for emergency priority")
		}
	}

	if p.QuietHours != nil && p.QuietHours.Enabled {
		if p.QuietHours.StartHour < 0 || p.QuietHours.StartHour > 23 {
			return fmt.Errorf("quiet hours start_hour must be between 0 and 23")
		}
		if p.QuietHours.EndHour < 0 || p.QuietHours.EndHour > 23 {
			return fmt.Errorf("quiet hours end_hour must be between 0 and 23")
		}
		if _, err := time.LoadLocation(p.QuietHours.Timezone); err != nil {
			return fmt.Errorf("quiet hours timezone %q: %w", p.QuietHours.Timezone, err)
		}
	}

	return nil
}

// IsQuietTime checks if t falls within quiet hours
func (q *QuietHours) IsQuietTime(t time.Time) bool {
	if q == nil || !q.Enabled {
		return false
	}

	loc, err := time.LoadLocation(q.Timezone)
	if err != nil {
		loc = time.UTC
	}
	hour := t.In(loc).Hour()

	// Quiet hours may span midnight
	if q.StartHour <= q.EndHour {
		return hour >= q.StartHour && hour < q.EndHour
	}
	return hour >= q.StartHour || hour < q.EndHour
}
