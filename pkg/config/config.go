// Package config loads gensession settings from YAML files and the
// environment.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	gserrors "github.com/odvcencio/gensession/pkg/errors"
)

// Config is the complete gensession configuration.
type Config struct {
	Backend   BackendConfig   `yaml:"backend"`
	Telemetry TelemetryConfig `yaml:"telemetry"`
	Workspace WorkspaceConfig `yaml:"workspace"`
	Messenger MessengerConfig `yaml:"messenger"`
	Storage   StorageConfig   `yaml:"storage"`
	Logging   LoggingConfig   `yaml:"logging"`
	Tracing   TracingConfig   `yaml:"tracing"`
	Session   SessionConfig   `yaml:"session"`
}

// BackendConfig configures the generation service client.
type BackendConfig struct {
	BaseURL         string        `yaml:"base_url"`
	Token           string        `yaml:"token"`
	Timeout         time.Duration `yaml:"timeout"`
	RateLimit       float64       `yaml:"rate_limit"`
	Burst           int           `yaml:"burst"`
	MaxRetries      int           `yaml:"max_retries"`
	PollInterval    time.Duration `yaml:"poll_interval"`
	MaxPollAttempts int           `yaml:"max_poll_attempts"`
}

// TelemetryConfig holds the user context stamped on telemetry events.
type TelemetryConfig struct {
	OptOut      bool   `yaml:"opt_out"`
	Product     string `yaml:"product"`
	IDECategory string `yaml:"ide_category"`
	IDEVersion  string `yaml:"ide_version"`
	ClientID    string `yaml:"client_id"`
}

// WorkspaceConfig bounds what gets uploaded.
type WorkspaceConfig struct {
	MaxUploadBytes int64    `yaml:"max_upload_bytes"`
	Exclude        []string `yaml:"exclude"`
}

// MessengerConfig selects the notification transport.
type MessengerConfig struct {
	Driver        string `yaml:"driver"`
	NATSURL       string `yaml:"nats_url"`
	SubjectPrefix string `yaml:"subject_prefix"`
}

// StorageConfig locates the SQLite database.
type StorageConfig struct {
	Path string `yaml:"path"`
}

// LoggingConfig configures the JSONL logger.
type LoggingConfig struct {
	Dir   string `yaml:"dir"`
	Level string `yaml:"level"`
}

// TracingConfig toggles OpenTelemetry span export.
type TracingConfig struct {
	Enabled bool `yaml:"enabled"`
}

// SessionConfig tunes session behaviour.
type SessionConfig struct {
	MaxRetries int `yaml:"max_retries"`
}

const (
	DriverMemory = "memory"
	DriverNATS   = "nats"
)

// DefaultConfig returns the built-in defaults.
func DefaultConfig() *Config {
	return &Config{
		Backend: BackendConfig{
			BaseURL:         "http://localhost:8080/v1",
			Timeout:         60 * time.Second,
			RateLimit:       5,
			Burst:           10,
			MaxRetries:      3,
			PollInterval:    2 * time.Second,
			MaxPollAttempts: 300,
		},
		Telemetry: TelemetryConfig{
			Product:     "gensession",
			IDECategory: "CLI",
			IDEVersion:  "dev",
		},
		Workspace: WorkspaceConfig{
			MaxUploadBytes: 200 << 20,
		},
		Messenger: MessengerConfig{
			Driver:        DriverMemory,
			NATSURL:       "nats://localhost:4222",
			SubjectPrefix: "gensession",
		},
		Storage: StorageConfig{
			Path: filepath.Join("~", ".gensession", "gensession.db"),
		},
		Logging: LoggingConfig{
			Dir:   filepath.Join("~", ".gensession", "logs"),
			Level: "info",
		},
		Session: SessionConfig{
			MaxRetries: 3,
		},
	}
}

// Load loads configuration from default locations with proper precedence:
// defaults, ~/.gensession/config.yaml, ./.gensession/config.yaml, then
// GENSESSION_* environment variables.
func Load() (*Config, error) {
	cfg := DefaultConfig()
	configEnv := loadConfigEnvVars()

	home, err := os.UserHomeDir()
	if err != nil {
		home = os.Getenv("HOME")
	}
	if home != "" {
		userConfigPath := filepath.Join(home, ".gensession", "config.yaml")
		if err := loadAndMerge(cfg, userConfigPath); err != nil && !os.IsNotExist(err) {
			return nil, gserrors.Wrap(err, gserrors.ErrCodeConfigLoad, "loading user config").WithContext("path", userConfigPath)
		}
	}

	projectConfigPath := filepath.Join(".", ".gensession", "config.yaml")
	if err := loadAndMerge(cfg, projectConfigPath); err != nil && !os.IsNotExist(err) {
		return nil, gserrors.Wrap(err, gserrors.ErrCodeConfigLoad, "loading project config").WithContext("path", projectConfigPath)
	}

	return finish(cfg, configEnv)
}

// LoadFromPath loads configuration from a specific file path
func LoadFromPath(path string) (*Config, error) {
	cfg := DefaultConfig()
	configEnv := loadConfigEnvVars()

	if err := loadAndMerge(cfg, path); err != nil {
		return nil, gserrors.Wrap(err, gserrors.ErrCodeConfigLoad, "loading config").WithContext("path", path)
	}

	return finish(cfg, configEnv)
}

func finish(cfg *Config, configEnv map[string]string) (*Config, error) {
	applyEnvOverrides(cfg, configEnv)
	cfg.Storage.Path = expandHomeDir(cfg.Storage.Path)
	cfg.Logging.Dir = expandHomeDir(cfg.Logging.Dir)
	if strings.TrimSpace(cfg.Telemetry.ClientID) == "" {
		cfg.Telemetry.ClientID = uuid.NewString()
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// applyEnvOverrides applies GENSESSION_* overrides. Values from
// ~/.gensession/config.env are used when the process environment lacks them.
func applyEnvOverrides(cfg *Config, configEnv map[string]string) {
	get := func(key string) string {
		if v := strings.TrimSpace(os.Getenv(key)); v != "" {
			return v
		}
		return strings.TrimSpace(configEnv[key])
	}

	if v := get("GENSESSION_BACKEND_URL"); v != "" {
		cfg.Backend.BaseURL = v
	}
	if v := get("GENSESSION_BACKEND_TOKEN"); v != "" {
		cfg.Backend.Token = v
	}
	if v := get("GENSESSION_BACKEND_TIMEOUT"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.Backend.Timeout = d
		}
	}
	if v := get("GENSESSION_POLL_INTERVAL"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.Backend.PollInterval = d
		}
	}
	if v := get("GENSESSION_MAX_RETRIES"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Session.MaxRetries = n
		}
	}
	if val, ok := envBool(get("GENSESSION_TELEMETRY_OPT_OUT")); ok {
		cfg.Telemetry.OptOut = val
	}
	if v := get("GENSESSION_CLIENT_ID"); v != "" {
		cfg.Telemetry.ClientID = v
	}
	if v := get("GENSESSION_MESSENGER_DRIVER"); v != "" {
		cfg.Messenger.Driver = strings.ToLower(v)
	}
	if v := get("GENSESSION_NATS_URL"); v != "" {
		cfg.Messenger.NATSURL = v
	}
	if v := get("GENSESSION_STORAGE_PATH"); v != "" {
		cfg.Storage.Path = v
	}
	if v := get("GENSESSION_LOG_DIR"); v != "" {
		cfg.Logging.Dir = v
	}
	if v := get("GENSESSION_LOG_LEVEL"); v != "" {
		cfg.Logging.Level = strings.ToLower(v)
	}
	if val, ok := envBool(get("GENSESSION_TRACING")); ok {
		cfg.Tracing.Enabled = val
	}
	if v := get("GENSESSION_EXCLUDE"); v != "" {
		cfg.Workspace.Exclude = append(cfg.Workspace.Exclude, splitCommaList(v)...)
	}
}

func splitCommaList(raw string) []string {
	parts := strings.Split(raw, ",")
	out := make([]string, 0, len(parts))
	for _, part := range parts {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		out = append(out, part)
	}
	return out
}

func envBool(val string) (bool, bool) {
	switch strings.ToLower(strings.TrimSpace(val)) {
	case "1", "true", "yes", "on":
		return true, true
	case "0", "false", "no", "off":
		return false, true
	default:
		return false, false
	}
}

// Validate checks configuration validity
func (c *Config) Validate() error {
	invalid := func(format string, args ...any) error {
		return gserrors.New(gserrors.ErrCodeConfigInvalid, fmt.Sprintf(format, args...))
	}

	if strings.TrimSpace(c.Backend.BaseURL) == "" {
		return invalid("backend.base_url is required")
	}
	if !strings.HasPrefix(c.Backend.BaseURL, "http://") && !strings.HasPrefix(c.Backend.BaseURL, "https://") {
		return invalid("backend.base_url must be an http(s) URL: %s", c.Backend.BaseURL)
	}
	if c.Backend.Timeout <= 0 {
		return invalid("backend.timeout must be positive")
	}
	if c.Backend.RateLimit <= 0 {
		return invalid("backend.rate_limit must be positive")
	}
	if c.Backend.Burst < 1 {
		return invalid("backend.burst must be at least 1")
	}
	if c.Backend.MaxRetries < 0 {
		return invalid("backend.max_retries cannot be negative")
	}
	if c.Backend.PollInterval <= 0 {
		return invalid("backend.poll_interval must be positive")
	}
	if c.Backend.MaxPollAttempts < 1 {
		return invalid("backend.max_poll_attempts must be at least 1")
	}
	if c.Workspace.MaxUploadBytes <= 0 {
		return invalid("workspace.max_upload_bytes must be positive")
	}
	switch c.Messenger.Driver {
	case DriverMemory:
	case DriverNATS:
		if strings.TrimSpace(c.Messenger.NATSURL) == "" {
			return invalid("messenger.nats_url is required for the nats driver")
		}
	default:
		return invalid("invalid messenger driver: %s (valid: memory, nats)", c.Messenger.Driver)
	}
	if strings.TrimSpace(c.Storage.Path) == "" {
		return invalid("storage.path is required")
	}
	switch c.Logging.Level {
	case "debug", "info", "warn", "error":
	default:
		return invalid("invalid logging level: %s (valid: debug, info, warn, error)", c.Logging.Level)
	}
	if c.Session.MaxRetries < 0 {
		return invalid("session.max_retries cannot be negative")
	}
	return nil
}

func loadConfigEnvVars() map[string]string {
	home, err := os.UserHomeDir()
	if err != nil || home == "" {
		return nil
	}

	data, err := os.ReadFile(filepath.Join(home, ".gensession", "config.env"))
	if err != nil {
		return nil
	}

	vars := make(map[string]string)
	for _, line := range strings.Split(string(data), "\n") {
		line = strings.TrimSpace(line)
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		line = strings.TrimSpace(strings.TrimPrefix(line, "export "))
		key, value, ok := strings.Cut(line, "=")
		if !ok {
			continue
		}
		key = strings.TrimSpace(key)
		if key == "" {
			continue
		}
		vars[key] = strings.Trim(strings.TrimSpace(value), "\"'")
	}
	return vars
}

func expandHomeDir(path string) string {
	path = strings.TrimSpace(path)
	if path == "" || path == ":memory:" {
		return path
	}
	if path == "~" {
		if home, err := os.UserHomeDir(); err == nil && strings.TrimSpace(home) != "" {
			return home
		}
		return path
	}
	if strings.HasPrefix(path, "~/") {
		if home, err := os.UserHomeDir(); err == nil && strings.TrimSpace(home) != "" {
			return filepath.Join(home, path[2:])
		}
	}
	return path
}
