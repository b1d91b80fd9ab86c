package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"gopkg.in/yaml.v3"
)

// Defaults applied to unset fields.
const (
	DefaultMaxAlerts       = 50
	DefaultSweepInterval   = 30 * time.Second
	DefaultNotifyTimeout   = 10 * time.Second
	DefaultWeatherLifetime = 3 * time.Hour
	DefaultChangeLifetime  = 10 * time.Minute
	DefaultAPIPort         = 8080
	DefaultStormThreshold  = 10
	DefaultStormWindow     = time.Minute
	DefaultLogLevel        = "info"
)

// LoadConfig loads the YAML file at path, then applies defaults and
// environment overrides. Variables in a .env file in the working directory
// are loaded first. An empty path yields the defaults.
func LoadConfig(path string) (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("loading .env: %w", err)
	}
	return LoadConfigWithEnv(path, os.Getenv)
}

// LoadConfigWithEnv is LoadConfig with an explicit environment lookup.
func LoadConfigWithEnv(path string, getenv func(string) string) (*Config, error) {
	cfg := &Config{}
	if path != "" {
		if err := loadYAML(path, cfg); err != nil {
			return nil, fmt.Errorf("loading %s: %w", path, err)
		}
	}

	ApplyDefaults(cfg)
	if err := applyEnv(cfg, getenv); err != nil {
		return nil, err
	}

	if err := ValidateConfig(cfg); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}
	return cfg, nil
}

// loadYAML loads a YAML file into a struct
func loadYAML(path string, out interface{}) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	return yaml.Unmarshal(data, out)
}

// ApplyDefaults fills unset fields.
func ApplyDefaults(cfg *Config) {
	if cfg.Queue.MaxAlerts == 0 {
		cfg.Queue.MaxAlerts = DefaultMaxAlerts
	}
	if cfg.Queue.SweepInterval == 0 {
		cfg.Queue.SweepInterval = DefaultSweepInterval
	}
	if cfg.Security.ChangeLifetime == 0 {
		cfg.Security.ChangeLifetime = DefaultChangeLifetime
	}
	if cfg.Notifications.Timeout == 0 {
		cfg.Notifications.Timeout = DefaultNotifyTimeout
	}
	if cfg.Weather.DefaultLifetime == 0 {
		cfg.Weather.DefaultLifetime = DefaultWeatherLifetime
	}
	if cfg.MQTT.ClientID == "" {
		cfg.MQTT.ClientID = "sentryhome"
	}
	if cfg.MQTT.Topics.SecurityLevel == "" {
		cfg.MQTT.Topics.SecurityLevel = "sentryhome/security_level"
	}
	if cfg.MQTT.Topics.EventAlarms == "" {
		cfg.MQTT.Topics.EventAlarms = "sentryhome/alarms/+"
	}
	if cfg.MQTT.Topics.WeatherAlerts == "" {
		cfg.MQTT.Topics.WeatherAlerts = "sentryhome/weather"
	}
	if cfg.API.Port == 0 {
		cfg.API.Port = DefaultAPIPort
	}
	if cfg.Storm.Threshold == 0 {
		cfg.Storm.Threshold = DefaultStormThreshold
	}
	if cfg.Storm.Window == 0 {
		cfg.Storm.Window = DefaultStormWindow
	}
	if cfg.Logging.Level == "" {
		cfg.Logging.Level = DefaultLogLevel
	}
}

func applyEnv(cfg *Config, getenv func(string) string) error {
	if v := getenv("API_PORT"); v != "" {
		port, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("API_PORT: %w", err)
		}
		cfg.API.Port = port
	}
	if v := getenv("LOG_LEVEL"); v != "" {
		cfg.Logging.Level = v
	}
	if v := getenv("MQTT_BROKER"); v != "" {
		cfg.MQTT.Broker = v
		cfg.MQTT.Enabled = true
	}
	if v := getenv("MQTT_PASSWORD"); v != "" {
		cfg.MQTT.Password = v
	}
	if v := getenv("APPRISE_API_URL"); v != "" {
		cfg.Notifications.AppriseAPIURL = v
	}
	return nil
}

// ValidateConfig validates the configuration
func ValidateConfig(cfg *Config) error {
	if cfg.Queue.MaxAlerts < 1 {
		return fmt.Errorf("queue.max_alerts must be at least 1")
	}
	if cfg.Queue.SweepInterval < time.Second {
		return fmt.Errorf("queue.sweep_interval must be at least 1s")
	}
	if !cfg.Security.InitialLevel.Settable() {
		return fmt.Errorf("security.initial_level %s cannot be the current level", cfg.Security.InitialLevel)
	}
	if cfg.Notifications.Timeout < 0 {
		return fmt.Errorf("notifications.timeout must not be negative")
	}

	for name, channel := range cfg.Notifications.Channels {
		if channel.Type != "apprise" {
			return fmt.Errorf("channel %s: only 'apprise' type is supported", name)
		}
		if channel.URLEnv == "" {
			return fmt.Errorf("channel %s: url_env is required", name)
		}
		for _, level := range channel.SeverityFilter {
			if !level.AlertWorthy() {
				return fmt.Errorf("channel %s: severity_filter contains %s", name, level)
			}
		}
		// Note: We don't validate env var exists here as it may be set at runtime
	}

	for level := range cfg.Audio.Cues {
		switch level {
		case "critical", "warning", "info":
		default:
			return fmt.Errorf("audio.cues: unknown level %q", level)
		}
	}

	if cfg.Weather.DefaultLifetime < 0 {
		return fmt.Errorf("weather.default_lifetime must not be negative")
	}

	if cfg.MQTT.Enabled {
		if cfg.MQTT.Broker == "" {
			return fmt.Errorf("mqtt.broker is required when mqtt is enabled")
		}
		if cfg.MQTT.QoS > 2 {
			return fmt.Errorf("mqtt.qos must be 0, 1 or 2")
		}
	}

	if cfg.API.Port < 1 || cfg.API.Port > 65535 {
		return fmt.Errorf("api.port %d out of range", cfg.API.Port)
	}
	if cfg.Storm.Threshold < 1 {
		return fmt.Errorf("storm.threshold must be at least 1")
	}
	if cfg.Storm.Window <= 0 {
		return fmt.Errorf("storm.window must be positive")
	}
	if _, err := zerolog.ParseLevel(cfg.Logging.Level); err != nil {
		return fmt.Errorf("logging.level: %w", err)
	}

	return nil
}
