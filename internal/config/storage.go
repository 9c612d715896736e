package config

import (
	"errors"
	"fmt"
	"strings"

	"github.com/smallbiznis/telemetry/pkg/db"
	"github.com/spf13/viper"
)

// StorageConfig holds the per-backend option sets read from storage.yml.
type StorageConfig struct {
	Backends map[db.Backend]db.BackendOptions
}

// LoadStorage reads storage.yml from dir (or the default locations) once.
// A missing file yields the built-in defaults.
func LoadStorage(cfg Config) (StorageConfig, error) {
	defaults := db.DefaultBackends(cfg.MySQLEngine)

	v := viper.New()
	v.SetConfigName("storage")
	v.SetConfigType("yml")
	if cfg.StorageConfigDir != "" {
		v.AddConfigPath(cfg.StorageConfigDir)
	}
	v.AddConfigPath("/etc/telemetry")
	v.AddConfigPath(".")

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return StorageConfig{}, fmt.Errorf("read storage config: %w", err)
		}
		return StorageConfig{Backends: defaults}, nil
	}

	var raw map[string]db.BackendOptions
	if err := v.UnmarshalKey("backends", &raw); err != nil {
		return StorageConfig{}, fmt.Errorf("decode storage backends: %w", err)
	}

	backends := defaults
	for name, opts := range raw {
		backend := db.Backend(strings.ToLower(strings.TrimSpace(name)))
		if _, ok := defaults[backend]; !ok {
			return StorageConfig{}, fmt.Errorf("unknown backend %q in storage config", name)
		}
		backends[backend] = opts
	}
	return StorageConfig{Backends: backends}, nil
}
