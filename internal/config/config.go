// Package config loads per-session configuration files and session manifests.
package config

import (
	"fmt"
	"time"

	"github.com/spf13/viper"

	"github.com/joescharf/ftpsync/internal/models"
)

var requiredFields = []string{
	"host",
	"username",
	"remote_root",
	"local_root",
}

// field: default value
var optionalFields = map[string]any{
	"port":          21,
	"poll_interval": 30 * time.Second,
	"max_retries":   3,
	"retry_backoff": 2 * time.Second,
	"explicit_tls":  false,
}

// LoadSession reads a session config file (JSON or YAML, by extension) into
// an immutable SessionConfig. Environment variables do not participate:
// session configs are written by the host and must be reproducible.
func LoadSession(path string) (*models.SessionConfig, error) {
	v := viper.New()
	v.SetConfigFile(path)

	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("read session config: %w", err)
	}

	for _, field := range requiredFields {
		if !v.IsSet(field) {
			return nil, fmt.Errorf("session config missing required field: %s", field)
		}
	}

	for field, def := range optionalFields {
		v.SetDefault(field, def)
	}

	var cfg models.SessionConfig
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal session config: %w", err)
	}

	if cfg.Port <= 0 || cfg.Port > 65535 {
		return nil, fmt.Errorf("session config has invalid port: %d", cfg.Port)
	}
	if cfg.MaxRetries < 0 {
		return nil, fmt.Errorf("session config has negative max_retries: %d", cfg.MaxRetries)
	}

	return &cfg, nil
}
