package types

import (
	"time"

	"github.com/google/uuid"
)

// Signature renders the grouping key of an alarm. Alarms with equal
// signatures describe the same ongoing condition.
func Signature(source AlarmSource, alarmType string, level AlarmLevel) string {
	return string(source) + "." + alarmType + "." + level.String()
}

// Alarm is a single detection event. It is passed and stored by value and
// never modified after construction.
type Alarm struct {
	ID            string            `json:"id"`
	Source        AlarmSource       `json:"source"`
	Type          string            `json:"type"`
	Title         string            `json:"title"`
	SourceDetails map[string]string `json:"source_details,omitempty"`
	SecurityLevel SecurityLevel     `json:"security_level"`
	Level         AlarmLevel        `json:"alarm_level"`
	Lifetime      time.Duration     `json:"lifetime"`
	RaisedAt      time.Time         `json:"raised_at"`
}

// NewAlarm builds an alarm with a fresh ID. details is copied.
func NewAlarm(source AlarmSource, alarmType, title string, level AlarmLevel, security SecurityLevel, lifetime time.Duration, raisedAt time.Time, details map[string]string) Alarm {
	return Alarm{
		ID:            uuid.NewString(),
		Source:        source,
		Type:          alarmType,
		Title:         title,
		SourceDetails: copyDetails(details),
		SecurityLevel: security,
		Level:         level,
		Lifetime:      lifetime,
		RaisedAt:      raisedAt,
	}
}

// Signature returns the grouping key of the alarm.
func (a Alarm) Signature() string {
	return Signature(a.Source, a.Type, a.Level)
}

// ExpiresAt is the time until which this alarm keeps its alert alive.
// Negative lifetimes count as zero.
func (a Alarm) ExpiresAt() time.Time {
	if a.Lifetime < 0 {
		return a.RaisedAt
	}
	return a.RaisedAt.Add(a.Lifetime)
}

func (a Alarm) clone() Alarm {
	a.SourceDetails = copyDetails(a.SourceDetails)
	return a
}

func copyDetails(details map[string]string) map[string]string {
	if details == nil {
		return nil
	}
	out := make(map[string]string, len(details))
	for k, v := range details {
		out[k] = v
	}
	return out
}
