// internal/config/config.go
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

type Config struct {
	Server        ServerConfig       `yaml:"server"`
	Database      DatabaseConfig     `yaml:"database"`
	Prometheus    PrometheusConfig   `yaml:"prometheus"`
	Monitoring    MonitoringConfig   `yaml:"monitoring"`
	Realtime      RealtimeConfig     `yaml:"realtime"`
	Auth          AuthConfig         `yaml:"auth"`
	Events        EventsConfig       `yaml:"events"`
	Tracing       TracingConfig      `yaml:"tracing"`
	Logging       LoggingConfig      `yaml:"logging"`
	Notifications NotificationConfig `yaml:"notifications"`
	Cameras       []CameraConfig     `yaml:"cameras"`
	Users         []UserConfig       `yaml:"users"`
	Include       IncludeConfig      `yaml:"include"`
}

type IncludeConfig struct {
	Directory string `yaml:"directory"`
	Pattern   string `yaml:"pattern"`
	Enabled   bool   `yaml:"enabled"`
}

type ServerConfig struct {
	Port         string        `yaml:"port"`
	ReadTimeout  time.Duration `yaml:"read_timeout"`
	WriteTimeout time.Duration `yaml:"write_timeout"`
}

type DatabaseConfig struct {
	Path             string        `yaml:"path"`
	CleanupInterval  time.Duration `yaml:"cleanup_interval"`
	HistoryRetention time.Duration `yaml:"history_retention"`
}

type PrometheusConfig struct {
	Enabled     bool   `yaml:"enabled"`
	MetricsPath string `yaml:"metrics_path"`
}

type MonitoringConfig struct {
	Enabled      *bool         `yaml:"enabled"`
	ScanInterval time.Duration `yaml:"scan_interval"`
	ProbeTimeout time.Duration `yaml:"probe_timeout"`
	ProbeMethod  string        `yaml:"probe_method"` // icmp or tcp
	ProbePort    int           `yaml:"probe_port"`
	ProbeWorkers int           `yaml:"probe_workers"`
}

// IsEnabled defaults to true when the key is absent.
func (m MonitoringConfig) IsEnabled() bool {
	return m.Enabled == nil || *m.Enabled
}

type RealtimeConfig struct {
	IdleSweepInterval    time.Duration `yaml:"idle_sweep_interval"`
	MaxReconnectAttempts int           `yaml:"max_reconnect_attempts"`
	SendBuffer           int           `yaml:"send_buffer"`
	AllowedOrigins       []string      `yaml:"allowed_origins"`
}

type AuthConfig struct {
	JWTSecret string `yaml:"jwt_secret"`
	Issuer    string `yaml:"issuer"`
}

type EventsConfig struct {
	NATSURL       string `yaml:"nats_url"`
	SubjectPrefix string `yaml:"subject_prefix"`
}

type TracingConfig struct {
	Enabled     bool   `yaml:"enabled"`
	ServiceName string `yaml:"service_name"`
}

type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

type CameraConfig struct {
	ID           string `yaml:"id"`
	Name         string `yaml:"name"`
	Description  string `yaml:"description"`
	Location     string `yaml:"location"`
	IP           string `yaml:"ip"`
	SerialNumber string `yaml:"serial_number"`
}

type UserConfig struct {
	ID        string `yaml:"id"`
	Email     string `yaml:"email"`
	FirstName string `yaml:"first_name"`
	LastName  string `yaml:"last_name"`
	Role      string `yaml:"role"`
}

// PartialConfig is what an include file may contribute
type PartialConfig struct {
	Cameras []CameraConfig `yaml:"cameras,omitempty"`
	Users   []UserConfig   `yaml:"users,omitempty"`
}

// LoadDotEnv loads .env and .env.local when present. Variables already set
// in the process environment win.
func LoadDotEnv() {
	for _, name := range []string{".env", ".env.local"} {
		if _, err := os.Stat(name); err != nil {
			continue
		}
		if err := godotenv.Load(name); err != nil {
			fmt.Fprintf(os.Stderr, "warning: failed to load %s: %v\n", name, err)
		}
	}
}

// Load reads the YAML file, applies includes, defaults and environment
// overrides, and validates. A missing file yields the defaults.
func Load(filename string) (*Config, error) {
	config, err := loadConfigFile(filename)
	if err != nil {
		return nil, fmt.Errorf("failed to load main config file: %w", err)
	}

	if config.Include.Enabled && config.Include.Directory != "" {
		if err := loadIncludes(config, filepath.Dir(filename)); err != nil {
			return nil, fmt.Errorf("failed to load includes: %w", err)
		}
	}

	applyEnv(config)
	setDefaults(config)

	if err := validate(config); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return config, nil
}

func loadConfigFile(filename string) (*Config, error) {
	var config Config
	if filename == "" {
		return &config, nil
	}

	data, err := os.ReadFile(filename)
	if os.IsNotExist(err) {
		return &config, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	if err := yaml.Unmarshal(data, &config); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}

	return &config, nil
}

func loadIncludes(config *Config, baseDir string) error {
	includeDir := config.Include.Directory
	if !filepath.IsAbs(includeDir) {
		includeDir = filepath.Join(baseDir, includeDir)
	}

	if _, err := os.Stat(includeDir); os.IsNotExist(err) {
		return fmt.Errorf("include directory does not exist: %s", includeDir)
	}

	pattern := config.Include.Pattern
	if pattern == "" {
		pattern = "*.yaml"
	}

	matches, err := filepath.Glob(filepath.Join(includeDir, pattern))
	if err != nil {
		return fmt.Errorf("failed to glob include pattern: %w", err)
	}
	if pattern == "*.yaml" {
		ymlMatches, err := filepath.Glob(filepath.Join(includeDir, "*.yml"))
		if err != nil {
			return fmt.Errorf("failed to glob .yml files: %w", err)
		}
		matches = append(matches, ymlMatches...)
	}
	sort.Slice(matches, func(i, j int) bool {
		return filepath.Base(matches[i]) < filepath.Base(matches[j])
	})

	for _, match := range matches {
		data, err := os.ReadFile(match)
		if err != nil {
			return fmt.Errorf("failed to read include file %s: %w", match, err)
		}
		var partial PartialConfig
		if err := yaml.Unmarshal(data, &partial); err != nil {
			return fmt.Errorf("failed to parse include file %s: %w", match, err)
		}
		config.Cameras = append(config.Cameras, partial.Cameras...)
		config.Users = append(config.Users, partial.Users...)
	}

	return nil
}

// applyEnv overlays environment variables on the file values.
func applyEnv(cfg *Config) {
	if v := os.Getenv("CCTV_PORT"); v != "" {
		if !strings.HasPrefix(v, ":") {
			v = ":" + v
		}
		cfg.Server.Port = v
	}
	if v := os.Getenv("CCTV_DB_PATH"); v != "" {
		cfg.Database.Path = v
	}
	if v := os.Getenv("ACCESS_TOKEN_SECRET"); v != "" {
		cfg.Auth.JWTSecret = v
	}
	if v := os.Getenv("CCTV_NATS_URL"); v != "" {
		cfg.Events.NATSURL = v
	}
	if v := os.Getenv("CCTV_LOG_LEVEL"); v != "" {
		cfg.Logging.Level = v
	}
	if v := os.Getenv("CCTV_SCAN_INTERVAL"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.Monitoring.ScanInterval = d
		}
	}
	if v := os.Getenv("CCTV_PROBE_WORKERS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Monitoring.ProbeWorkers = n
		}
	}
	if v := os.Getenv("IP_CAMERAS"); v != "" {
		cfg.Cameras = mergeCameraAddresses(cfg.Cameras, v)
	}
}

// mergeCameraAddresses appends a seed entry for every address in the
// comma separated list that is not configured yet.
func mergeCameraAddresses(cameras []CameraConfig, list string) []CameraConfig {
	known := make(map[string]bool, len(cameras))
	for _, camera := range cameras {
		known[camera.IP] = true
	}
	for _, ip := range strings.Split(list, ",") {
		ip = strings.TrimSpace(ip)
		if ip == "" || known[ip] {
			continue
		}
		known[ip] = true
		cameras = append(cameras, CameraConfig{Name: "camera-" + ip, IP: ip})
	}
	return cameras
}

func setDefaults(cfg *Config) {
	if cfg.Server.Port == "" {
		cfg.Server.Port = ":8000"
	}
	if cfg.Server.ReadTimeout == 0 {
		cfg.Server.ReadTimeout = 15 * time.Second
	}
	if cfg.Server.WriteTimeout == 0 {
		cfg.Server.WriteTimeout = 15 * time.Second
	}

	if cfg.Database.Path == "" {
		cfg.Database.Path = "./data/cctv.db"
	}
	if cfg.Database.CleanupInterval == 0 {
		cfg.Database.CleanupInterval = 6 * time.Hour
	}
	if cfg.Database.HistoryRetention == 0 {
		cfg.Database.HistoryRetention = 30 * 24 * time.Hour
	}

	if cfg.Prometheus.MetricsPath == "" {
		cfg.Prometheus.MetricsPath = "/metrics"
	}

	if cfg.Monitoring.ScanInterval == 0 {
		cfg.Monitoring.ScanInterval = 2 * time.Minute
	}
	if cfg.Monitoring.ProbeTimeout == 0 {
		cfg.Monitoring.ProbeTimeout = 3 * time.Second
	}
	if cfg.Monitoring.ProbeMethod == "" {
		cfg.Monitoring.ProbeMethod = "icmp"
	}
	if cfg.Monitoring.ProbePort == 0 {
		cfg.Monitoring.ProbePort = 554
	}
	if cfg.Monitoring.ProbeWorkers == 0 {
		cfg.Monitoring.ProbeWorkers = 1
	}

	if cfg.Realtime.IdleSweepInterval == 0 {
		cfg.Realtime.IdleSweepInterval = 60 * time.Second
	}
	if cfg.Realtime.MaxReconnectAttempts == 0 {
		cfg.Realtime.MaxReconnectAttempts = 10
	}
	if cfg.Realtime.SendBuffer == 0 {
		cfg.Realtime.SendBuffer = 256
	}

	if cfg.Auth.Issuer == "" {
		cfg.Auth.Issuer = "cctv-automation-backend"
	}

	if cfg.Events.SubjectPrefix == "" {
		cfg.Events.SubjectPrefix = "cctv"
	}

	if cfg.Tracing.ServiceName == "" {
		cfg.Tracing.ServiceName = "cctvd"
	}

	if cfg.Logging.Level == "" {
		cfg.Logging.Level = "info"
	}
	if cfg.Logging.Format == "" {
		cfg.Logging.Format = "text"
	}

	if cfg.Include.Pattern == "" {
		cfg.Include.Pattern = "*.yaml"
	}

	setPushoverDefaults(&cfg.Notifications.Pushover)
}

func validate(cfg *Config) error {
	if cfg.Monitoring.ScanInterval <= 0 {
		return fmt.Errorf("monitoring.scan_interval must be positive")
	}
	if cfg.Monitoring.ProbeTimeout <= 0 {
		return fmt.Errorf("monitoring.probe_timeout must be positive")
	}
	if cfg.Monitoring.ProbeTimeout >= cfg.Monitoring.ScanInterval {
		return fmt.Errorf("monitoring.probe_timeout must be shorter than monitoring.scan_interval")
	}
	switch cfg.Monitoring.ProbeMethod {
	case "icmp", "tcp":
	default:
		return fmt.Errorf("monitoring.probe_method must be icmp or tcp, got %q", cfg.Monitoring.ProbeMethod)
	}
	if cfg.Monitoring.ProbePort < 1 || cfg.Monitoring.ProbePort > 65535 {
		return fmt.Errorf("monitoring.probe_port must be between 1 and 65535")
	}
	if cfg.Monitoring.ProbeWorkers < 1 {
		return fmt.Errorf("monitoring.probe_workers must be at least 1")
	}

	if cfg.Realtime.IdleSweepInterval <= 0 {
		return fmt.Errorf("realtime.idle_sweep_interval must be positive")
	}
	if cfg.Realtime.MaxReconnectAttempts < 1 {
		return fmt.Errorf("realtime.max_reconnect_attempts must be at least 1")
	}

	switch cfg.Logging.Format {
	case "text", "json":
	default:
		return fmt.Errorf("logging.format must be text or json")
	}

	if cfg.Include.Enabled {
		if cfg.Include.Directory == "" {
			return fmt.Errorf("include.directory must be specified when include.enabled is true")
		}
		if !isValidGlobPattern(cfg.Include.Pattern) {
			return fmt.Errorf("include.pattern contains invalid glob pattern: %s", cfg.Include.Pattern)
		}
	}

	if cfg.Notifications.Enabled {
		if err := cfg.Notifications.Pushover.Validate(); err != nil {
			return err
		}
	}

	cameraIDs := make(map[string]bool)
	for _, camera := range cfg.Cameras {
		if camera.IP == "" {
			return fmt.Errorf("camera %q has no ip", camera.Name)
		}
		if camera.ID == "" {
			continue
		}
		if cameraIDs[camera.ID] {
			return fmt.Errorf("duplicate camera ID: %s", camera.ID)
		}
		cameraIDs[camera.ID] = true
	}

	for _, user := range cfg.Users {
		switch user.Role {
		case "administrator", "admin", "service_provider", "user":
		default:
			return fmt.Errorf("user %q has invalid role %q", user.Email, user.Role)
		}
	}

	return nil
}

// isValidGlobPattern checks if a string is a valid glob pattern
func isValidGlobPattern(pattern string) bool {
	if strings.Contains(pattern, "/") || strings.Contains(pattern, "\\") {
		return false
	}
	_, err := filepath.Match(pattern, "test.yaml")
	return err == nil
}
