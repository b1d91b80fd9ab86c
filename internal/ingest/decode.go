// Package ingest decodes the JSON payloads that producers publish over MQTT
// and HTTP into domain values.
package ingest

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/sentryhome/sentryhome/internal/types"
	"github.com/sentryhome/sentryhome/internal/weather"
)

// DefaultAlarmLifetime applies when an alarm payload omits lifetime_seconds.
const DefaultAlarmLifetime = 5 * time.Minute

// maxLifetimeSeconds is the longest lifetime a time.Duration can hold.
const maxLifetimeSeconds = float64(math.MaxInt64 / int64(time.Second))

// ErrMalformed wraps every decoding failure.
var ErrMalformed = errors.New("malformed payload")

// AlarmPayload is the wire form of an alarm raised by a rule engine.
type AlarmPayload struct {
	Source          string            `json:"source"`
	Type            string            `json:"type"`
	Title           string            `json:"title"`
	Level           string            `json:"alarm_level"`
	SecurityLevel   string            `json:"security_level"`
	LifetimeSeconds *float64          `json:"lifetime_seconds"`
	RaisedAt        *time.Time        `json:"raised_at"`
	Details         map[string]string `json:"source_details"`
}

// DecodeAlarm parses an alarm payload. Missing source defaults to event,
// missing security_level to all and missing raised_at to now. A none level
// decodes fine; the queue is the one that rejects it.
func DecodeAlarm(data []byte, now time.Time) (types.Alarm, error) {
	var payload AlarmPayload
	if err := json.Unmarshal(data, &payload); err != nil {
		return types.Alarm{}, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	return payload.Alarm(now)
}

// Alarm validates the payload and builds the alarm.
func (p AlarmPayload) Alarm(now time.Time) (types.Alarm, error) {
	alarmType := strings.TrimSpace(p.Type)
	if alarmType == "" {
		return types.Alarm{}, fmt.Errorf("%w: type is required", ErrMalformed)
	}
	if strings.Contains(alarmType, ".") {
		return types.Alarm{}, fmt.Errorf("%w: type %q must not contain '.'", ErrMalformed, alarmType)
	}

	level, err := types.ParseAlarmLevel(p.Level)
	if err != nil {
		return types.Alarm{}, fmt.Errorf("%w: %v", ErrMalformed, err)
	}

	security := types.SecurityLevelAll
	if strings.TrimSpace(p.SecurityLevel) != "" {
		security, err = types.ParseSecurityLevel(p.SecurityLevel)
		if err != nil {
			return types.Alarm{}, fmt.Errorf("%w: %v", ErrMalformed, err)
		}
	}

	source := types.SourceEvent
	if s := strings.TrimSpace(p.Source); s != "" {
		source = types.AlarmSource(strings.ToLower(s))
	}

	lifetime := DefaultAlarmLifetime
	if p.LifetimeSeconds != nil {
		seconds := *p.LifetimeSeconds
		if !(seconds > 0 && seconds <= maxLifetimeSeconds) {
			return types.Alarm{}, fmt.Errorf("%w: lifetime_seconds must be in (0, %.0f], got %v",
				ErrMalformed, maxLifetimeSeconds, seconds)
		}
		lifetime = time.Duration(seconds * float64(time.Second))
	}

	raisedAt := now
	if p.RaisedAt != nil && !p.RaisedAt.IsZero() {
		raisedAt = *p.RaisedAt
	}

	title := strings.TrimSpace(p.Title)
	if title == "" {
		title = alarmType
	}

	return types.NewAlarm(source, alarmType, title, level, security, lifetime, raisedAt, p.Details), nil
}

// DecodeWeatherRecord parses one weather feed record.
func DecodeWeatherRecord(data []byte) (weather.Record, error) {
	var record weather.Record
	if err := json.Unmarshal(data, &record); err != nil {
		return weather.Record{}, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	if strings.TrimSpace(record.Event) == "" {
		return weather.Record{}, fmt.Errorf("%w: event is required", ErrMalformed)
	}
	return record, nil
}

// DecodeSecurityLevel accepts a bare level ("away"), a JSON string
// ("\"away\"") or an object ({"level":"away"}).
func DecodeSecurityLevel(data []byte) (types.SecurityLevel, error) {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 {
		return types.SecurityLevelAll, fmt.Errorf("%w: empty security level", ErrMalformed)
	}

	text := string(trimmed)
	switch trimmed[0] {
	case '{':
		var body struct {
			Level string `json:"level"`
		}
		if err := json.Unmarshal(trimmed, &body); err != nil {
			return types.SecurityLevelAll, fmt.Errorf("%w: %v", ErrMalformed, err)
		}
		text = body.Level
	case '"':
		if err := json.Unmarshal(trimmed, &text); err != nil {
			return types.SecurityLevelAll, fmt.Errorf("%w: %v", ErrMalformed, err)
		}
	}

	level, err := types.ParseSecurityLevel(text)
	if err != nil {
		return types.SecurityLevelAll, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	return level, nil
}
