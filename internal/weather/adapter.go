package weather

import (
	"strings"
	"time"
	"unicode"

	"github.com/rs/zerolog"
	"github.com/sentryhome/sentryhome/internal/types"
)

// DefaultLifetime keeps a weather alert alive when the feed gives no expiry.
const DefaultLifetime = 3 * time.Hour

// DefaultSeverityMap maps the feed's severity vocabulary onto alarm levels.
var DefaultSeverityMap = map[string]types.AlarmLevel{
	"extreme":  types.AlarmLevelCritical,
	"severe":   types.AlarmLevelCritical,
	"moderate": types.AlarmLevelWarning,
	"minor":    types.AlarmLevelInfo,
}

// Record is one alert as published by a weather feed.
type Record struct {
	ID          string    `json:"id"`
	Event       string    `json:"event"`
	Severity    string    `json:"severity"`
	Headline    string    `json:"headline"`
	Description string    `json:"description,omitempty"`
	Area        string    `json:"area,omitempty"`
	Sender      string    `json:"sender,omitempty"`
	Effective   time.Time `json:"effective,omitempty"`
	Expires     time.Time `json:"expires,omitempty"`
}

// Config controls which records become alarms and at what level.
type Config struct {
	// Allow, when non-empty, is the only set of event types converted.
	Allow []string
	// Deny lists event types that are never converted.
	Deny []string
	// SeverityMap overrides or extends DefaultSeverityMap. Mapping a
	// severity to none drops matching records.
	SeverityMap     map[string]types.AlarmLevel
	DefaultLifetime time.Duration
}

// Adapter turns weather records into alarms. It knows nothing about the
// alert queue.
type Adapter struct {
	allow    map[string]bool
	deny     map[string]bool
	severity map[string]types.AlarmLevel
	lifetime time.Duration
	now      func() time.Time
	log      zerolog.Logger
}

// NewAdapter builds an adapter from cfg.
func NewAdapter(cfg Config, log zerolog.Logger) *Adapter {
	a := &Adapter{
		allow:    make(map[string]bool, len(cfg.Allow)),
		deny:     make(map[string]bool, len(cfg.Deny)),
		severity: make(map[string]types.AlarmLevel, len(DefaultSeverityMap)+len(cfg.SeverityMap)),
		lifetime: cfg.DefaultLifetime,
		now:      time.Now,
		log:      log.With().Str("component", "weather-adapter").Logger(),
	}
	for _, event := range cfg.Allow {
		a.allow[NormalizeEvent(event)] = true
	}
	for _, event := range cfg.Deny {
		a.deny[NormalizeEvent(event)] = true
	}
	for severity, level := range DefaultSeverityMap {
		a.severity[severity] = level
	}
	for severity, level := range cfg.SeverityMap {
		a.severity[strings.ToLower(strings.TrimSpace(severity))] = level
	}
	if a.lifetime <= 0 {
		a.lifetime = DefaultLifetime
	}
	return a
}

// WithClock replaces the adapter's clock. It returns a for chaining.
func (a *Adapter) WithClock(now func() time.Time) *Adapter {
	if now != nil {
		a.now = now
	}
	return a
}

// ToAlarm converts record into an alarm. ok is false when the record is
// filtered out, maps to none, or has already expired.
func (a *Adapter) ToAlarm(record Record) (alarm types.Alarm, ok bool) {
	event := NormalizeEvent(record.Event)
	if event == "" {
		a.log.Debug().Str("id", record.ID).Msg("Weather record has no event type, skipping")
		return types.Alarm{}, false
	}
	if !a.admits(event) {
		a.log.Debug().Str("event", event).Msg("Weather event type filtered")
		return types.Alarm{}, false
	}

	level := a.Level(record.Severity)
	if !level.AlertWorthy() {
		a.log.Debug().
			Str("event", event).
			Str("severity", record.Severity).
			Msg("Weather severity mapped to none, skipping")
		return types.Alarm{}, false
	}

	now := a.now()
	lifetime := a.lifetime
	if !record.Expires.IsZero() {
		lifetime = record.Expires.Sub(now)
		if lifetime <= 0 {
			a.log.Debug().
				Str("event", event).
				Time("expires", record.Expires).
				Msg("Weather record already expired")
			return types.Alarm{}, false
		}
	}

	title := strings.TrimSpace(record.Headline)
	if title == "" {
		title = strings.TrimSpace(record.Event)
	}

	details := map[string]string{
		"severity": record.Severity,
	}
	for key, value := range map[string]string{
		"id":          record.ID,
		"area":        record.Area,
		"sender":      record.Sender,
		"description": record.Description,
	} {
		if value != "" {
			details[key] = value
		}
	}
	if !record.Expires.IsZero() {
		details["expires"] = record.Expires.UTC().Format(time.RFC3339)
	}

	return types.NewAlarm(types.SourceWeather, event, title, level, types.SecurityLevelAll, lifetime, now, details), true
}

// Level maps a feed severity onto an alarm level. Unknown severities are
// warnings.
func (a *Adapter) Level(severity string) types.AlarmLevel {
	if level, ok := a.severity[strings.ToLower(strings.TrimSpace(severity))]; ok {
		return level
	}
	return types.AlarmLevelWarning
}

func (a *Adapter) admits(event string) bool {
	if a.deny[event] {
		return false
	}
	return len(a.allow) == 0 || a.allow[event]
}

// NormalizeEvent turns "Severe Thunderstorm Warning" into
// "severe_thunderstorm_warning".
func NormalizeEvent(event string) string {
	var b strings.Builder
	pendingSep := false
	for _, r := range strings.TrimSpace(event) {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			if pendingSep && b.Len() > 0 {
				b.WriteByte('_')
			}
			pendingSep = false
			b.WriteRune(unicode.ToLower(r))
			continue
		}
		pendingSep = true
	}
	return b.String()
}
