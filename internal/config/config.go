package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"gopkg.in/yaml.v3"
)

// Storage backends understood by the player.
const (
	BackendSQLite   = "sqlite"
	BackendPostgres = "postgres"
	BackendMemory   = "memory"
)

type GameConfig struct {
	Version int `yaml:"version"`
	Game    struct {
		ID   string `yaml:"id"`
		Name string `yaml:"name"`
	} `yaml:"game"`
	AutoSave struct {
		DebounceMS    int `yaml:"debounce_ms"`
		IntervalMS    int `yaml:"interval_ms"`
		SuccessHoldMS int `yaml:"success_hold_ms"`
	} `yaml:"autosave"`
	Storage struct {
		Backend string `yaml:"backend"`
		Path    string `yaml:"path"`
	} `yaml:"storage"`
	Content struct {
		Dir string `yaml:"dir"`
	} `yaml:"content"`
	Profile struct {
		DefaultLanguage string `yaml:"default_language"`
	} `yaml:"profile"`
	MQTT struct {
		Enabled     bool   `yaml:"enabled"`
		URL         string `yaml:"url"`
		TopicPrefix string `yaml:"topic_prefix"`
	} `yaml:"mqtt"`
}

// Overrides are environment variables that win over game.yaml.
type Overrides struct {
	StorageBackend string `env:"BEARCU_STORAGE_BACKEND"`
	StoragePath    string `env:"BEARCU_STORAGE_PATH"`
	ContentDir     string `env:"BEARCU_CONTENT_DIR"`
	MQTTEnabled    *bool  `env:"BEARCU_MQTT_ENABLED"`
	MQTTURL        string `env:"MQTT_URL"`
}

// DebounceDelay returns the auto-save debounce delay, defaulting to 2s.
func (c *GameConfig) DebounceDelay() time.Duration {
	if c.AutoSave.DebounceMS <= 0 {
		return 2 * time.Second
	}
	return time.Duration(c.AutoSave.DebounceMS) * time.Millisecond
}

// SaveInterval returns the periodic auto-save period, defaulting to 30s.
func (c *GameConfig) SaveInterval() time.Duration {
	if c.AutoSave.IntervalMS <= 0 {
		return 30 * time.Second
	}
	return time.Duration(c.AutoSave.IntervalMS) * time.Millisecond
}

// SuccessHold returns how long the success status is shown before idle, defaulting to 1s.
func (c *GameConfig) SuccessHold() time.Duration {
	if c.AutoSave.SuccessHoldMS <= 0 {
		return time.Second
	}
	return time.Duration(c.AutoSave.SuccessHoldMS) * time.Millisecond
}

// StorageBackend returns the configured backend, defaulting to sqlite.
func (c *GameConfig) StorageBackend() string {
	if c.Storage.Backend == "" {
		return BackendSQLite
	}
	return c.Storage.Backend
}

// StoragePath returns the sqlite file path, defaulting to bearcu.db.
func (c *GameConfig) StoragePath() string {
	if c.Storage.Path == "" {
		return "bearcu.db"
	}
	return c.Storage.Path
}

// ContentDir returns the chapter directory, defaulting to content/chapters.
func (c *GameConfig) ContentDir() string {
	if c.Content.Dir == "" {
		return "content/chapters"
	}
	return c.Content.Dir
}

// DefaultLanguage returns the language for new profiles, defaulting to "id".
func (c *GameConfig) DefaultLanguage() string {
	if c.Profile.DefaultLanguage == "" {
		return "id"
	}
	return c.Profile.DefaultLanguage
}

// TopicPrefix returns the MQTT topic prefix, defaulting to "bearcu".
func (c *GameConfig) TopicPrefix() string {
	if c.MQTT.TopicPrefix == "" {
		return "bearcu"
	}
	return strings.TrimSuffix(c.MQTT.TopicPrefix, "/")
}

// BrokerURL returns the MQTT broker URL, defaulting to tcp://localhost:1883.
func (c *GameConfig) BrokerURL() string {
	if c.MQTT.URL == "" {
		return "tcp://localhost:1883"
	}
	return c.MQTT.URL
}

func LoadGameConfig(path string) (*GameConfig, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var cfg GameConfig
	if err := yaml.Unmarshal(b, &cfg); err != nil {
		return nil, err
	}

	if cfg.Version != 1 {
		return nil, fmt.Errorf("unsupported game.yaml version: %d", cfg.Version)
	}

	switch cfg.StorageBackend() {
	case BackendSQLite, BackendPostgres, BackendMemory:
	default:
		return nil, fmt.Errorf("unsupported storage backend: %q", cfg.Storage.Backend)
	}

	return &cfg, nil
}

// ApplyEnv overlays environment overrides onto cfg.
func ApplyEnv(cfg *GameConfig) error {
	var o Overrides
	if err := env.Parse(&o); err != nil {
		return fmt.Errorf("parse env: %w", err)
	}

	if o.StorageBackend != "" {
		switch o.StorageBackend {
		case BackendSQLite, BackendPostgres, BackendMemory:
		default:
			return fmt.Errorf("unsupported storage backend: %q", o.StorageBackend)
		}
		cfg.Storage.Backend = o.StorageBackend
	}
	if o.StoragePath != "" {
		cfg.Storage.Path = o.StoragePath
	}
	if o.ContentDir != "" {
		cfg.Content.Dir = o.ContentDir
	}
	if o.MQTTEnabled != nil {
		cfg.MQTT.Enabled = *o.MQTTEnabled
	}
	if o.MQTTURL != "" {
		cfg.MQTT.URL = o.MQTTURL
	}
	return nil
}
