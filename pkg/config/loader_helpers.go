package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// loadAndMerge loads a YAML file and merges it into the config.
func loadAndMerge(cfg *Config, path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}

	var override Config
	if err := yaml.Unmarshal(data, &override); err != nil {
		return fmt.Errorf("parsing YAML: %w", err)
	}

	var raw map[string]any
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return fmt.Errorf("parsing YAML: %w", err)
	}

	mergeConfigs(cfg, &override, raw)
	return nil
}

// mergeConfigs merges override into base. Zero values leave base untouched
// except for booleans, which are applied whenever the key is present.
func mergeConfigs(base, override *Config, raw map[string]any) {
	if override == nil {
		return
	}

	if override.Backend.BaseURL != "" {
		base.Backend.BaseURL = override.Backend.BaseURL
	}
	if override.Backend.Token != "" {
		base.Backend.Token = override.Backend.Token
	}
	if override.Backend.Timeout != 0 {
		base.Backend.Timeout = override.Backend.Timeout
	}
	if override.Backend.RateLimit != 0 {
		base.Backend.RateLimit = override.Backend.RateLimit
	}
	if override.Backend.Burst != 0 {
		base.Backend.Burst = override.Backend.Burst
	}
	if fieldSet(raw, "backend", "max_retries") {
		base.Backend.MaxRetries = override.Backend.MaxRetries
	}
	if override.Backend.PollInterval != 0 {
		base.Backend.PollInterval = override.Backend.PollInterval
	}
	if override.Backend.MaxPollAttempts != 0 {
		base.Backend.MaxPollAttempts = override.Backend.MaxPollAttempts
	}

	if fieldSet(raw, "telemetry", "opt_out") {
		base.Telemetry.OptOut = override.Telemetry.OptOut
	}
	if override.Telemetry.Product != "" {
		base.Telemetry.Product = override.Telemetry.Product
	}
	if override.Telemetry.IDECategory != "" {
		base.Telemetry.IDECategory = override.Telemetry.IDECategory
	}
	if override.Telemetry.IDEVersion != "" {
		base.Telemetry.IDEVersion = override.Telemetry.IDEVersion
	}
	if override.Telemetry.ClientID != "" {
		base.Telemetry.ClientID = override.Telemetry.ClientID
	}

	if override.Workspace.MaxUploadBytes != 0 {
		base.Workspace.MaxUploadBytes = override.Workspace.MaxUploadBytes
	}
	if fieldSet(raw, "workspace", "exclude") {
		base.Workspace.Exclude = append([]string(nil), override.Workspace.Exclude...)
	}

	if override.Messenger.Driver != "" {
		base.Messenger.Driver = override.Messenger.Driver
	}
	if override.Messenger.NATSURL != "" {
		base.Messenger.NATSURL = override.Messenger.NATSURL
	}
	if override.Messenger.SubjectPrefix != "" {
		base.Messenger.SubjectPrefix = override.Messenger.SubjectPrefix
	}

	if override.Storage.Path != "" {
		base.Storage.Path = override.Storage.Path
	}
	if override.Logging.Dir != "" {
		base.Logging.Dir = override.Logging.Dir
	}
	if override.Logging.Level != "" {
		base.Logging.Level = override.Logging.Level
	}
	if fieldSet(raw, "tracing", "enabled") {
		base.Tracing.Enabled = override.Tracing.Enabled
	}
	if fieldSet(raw, "session", "max_retries") {
		base.Session.MaxRetries = override.Session.MaxRetries
	}
}

func fieldSet(raw map[string]any, path ...string) bool {
	if len(path) == 0 || raw == nil {
		return false
	}
	current := any(raw)
	for _, key := range path {
		m, ok := current.(map[string]any)
		if !ok {
			return false
		}
		val, ok := m[key]
		if !ok {
			return false
		}
		current = val
	}
	return true
}
