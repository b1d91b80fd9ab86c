package config

import (
	"time"

	"github.com/sentryhome/sentryhome/internal/types"
)

// Config represents the complete sentryhome configuration
type Config struct {
	Queue         QueueConfig         `yaml:"queue"`
	Security      SecurityConfig      `yaml:"security"`
	Notifications NotificationsConfig `yaml:"notifications"`
	Audio         AudioConfig         `yaml:"audio"`
	Weather       WeatherConfig       `yaml:"weather"`
	MQTT          MQTTConfig          `yaml:"mqtt"`
	API           APIConfig           `yaml:"api"`
	Storm         StormConfig         `yaml:"storm"`
	Logging       LoggingConfig       `yaml:"logging"`
}

// QueueConfig bounds the alert queue and its maintenance sweep
type QueueConfig struct {
	MaxAlerts     int           `yaml:"max_alerts"`
	SweepInterval time.Duration `yaml:"sweep_interval"`
}

// SecurityConfig sets the starting operating mode
type SecurityConfig struct {
	InitialLevel   types.SecurityLevel `yaml:"initial_level"`
	ChangeLifetime time.Duration       `yaml:"change_lifetime"`
}

// NotificationsConfig defines where new alerts are announced
type NotificationsConfig struct {
	Timeout       time.Duration            `yaml:"timeout"`
	AppriseAPIURL string                   `yaml:"apprise_api_url"`
	Channels      map[string]ChannelConfig `yaml:"channels"`
}

// ChannelConfig defines a notification channel
type ChannelConfig struct {
	Type           string             `yaml:"type"`
	URLEnv         string             `yaml:"url_env"`
	SeverityFilter []types.AlarmLevel `yaml:"severity_filter,omitempty"`
}

// AudioConfig maps alarm levels ("critical", "warning", "info") to cue files
type AudioConfig struct {
	Cues map[string]string `yaml:"cues"`
}

// WeatherConfig controls conversion of weather feed records
type WeatherConfig struct {
	Allow           []string                    `yaml:"allow,omitempty"`
	Deny            []string                    `yaml:"deny,omitempty"`
	SeverityMap     map[string]types.AlarmLevel `yaml:"severity_map,omitempty"`
	DefaultLifetime time.Duration               `yaml:"default_lifetime"`
}

// MQTTConfig defines the broker connection and the topics producers publish on
type MQTTConfig struct {
	Enabled  bool       `yaml:"enabled"`
	Broker   string     `yaml:"broker"`
	ClientID string     `yaml:"client_id"`
	Username string     `yaml:"username,omitempty"`
	Password string     `yaml:"password,omitempty"`
	QoS      byte       `yaml:"qos"`
	Topics   MQTTTopics `yaml:"topics"`
}

// MQTTTopics names the subscribed topics
type MQTTTopics struct {
	SecurityLevel string `yaml:"security_level"`
	EventAlarms   string `yaml:"event_alarms"`
	WeatherAlerts string `yaml:"weather_alerts"`
}

// APIConfig defines the HTTP listener
type APIConfig struct {
	Port int `yaml:"port"`
}

// StormConfig defines when evictions count as an alarm storm
type StormConfig struct {
	Threshold int           `yaml:"threshold"`
	Window    time.Duration `yaml:"window"`
}

// LoggingConfig defines the log level
type LoggingConfig struct {
	Level string `yaml:"level"`
}
