package types

import (
	"fmt"
	"strings"
)

// AlarmLevel is the severity of an alarm. Levels are ordered and each one
// carries a priority weight used to rank alerts.
type AlarmLevel int

const (
	AlarmLevelNone AlarmLevel = iota
	AlarmLevelInfo
	AlarmLevelWarning
	AlarmLevelCritical
)

// AlarmLevels lists every alert-worthy level, highest first.
var AlarmLevels = []AlarmLevel{AlarmLevelCritical, AlarmLevelWarning, AlarmLevelInfo}

// Priority returns the ranking weight of the level.
func (l AlarmLevel) Priority() int {
	switch l {
	case AlarmLevelNone:
		return 0
	case AlarmLevelInfo:
		return 10
	case AlarmLevelWarning:
		return 100
	case AlarmLevelCritical:
		return 1000
	}
	panic(fmt.Sprintf("alarm level %d has no priority", int(l)))
}

// AlertWorthy reports whether alarms at this level may become alerts.
func (l AlarmLevel) AlertWorthy() bool {
	return l != AlarmLevelNone && l.Valid()
}

// Valid reports whether l is a declared level.
func (l AlarmLevel) Valid() bool {
	return l >= AlarmLevelNone && l <= AlarmLevelCritical
}

func (l AlarmLevel) String() string {
	switch l {
	case AlarmLevelNone:
		return "none"
	case AlarmLevelInfo:
		return "info"
	case AlarmLevelWarning:
		return "warning"
	case AlarmLevelCritical:
		return "critical"
	default:
		return fmt.Sprintf("level(%d)", int(l))
	}
}

// Label is the human form used in alert titles.
func (l AlarmLevel) Label() string {
	s := l.String()
	return strings.ToUpper(s[:1]) + s[1:]
}

// ParseAlarmLevel parses the text form of a level.
func ParseAlarmLevel(s string) (AlarmLevel, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "none":
		return AlarmLevelNone, nil
	case "info":
		return AlarmLevelInfo, nil
	case "warning", "warn":
		return AlarmLevelWarning, nil
	case "critical":
		return AlarmLevelCritical, nil
	}
	return AlarmLevelNone, fmt.Errorf("unknown alarm level %q", s)
}

func (l AlarmLevel) MarshalText() ([]byte, error) {
	if !l.Valid() {
		return nil, fmt.Errorf("invalid alarm level %d", int(l))
	}
	return []byte(l.String()), nil
}

func (l *AlarmLevel) UnmarshalText(text []byte) error {
	parsed, err := ParseAlarmLevel(string(text))
	if err != nil {
		return err
	}
	*l = parsed
	return nil
}

// SecurityLevel is the operating mode of the home. SecurityLevelAll is only
// meaningful on an alarm and means the alarm applies in every mode.
type SecurityLevel int

const (
	SecurityLevelAll SecurityLevel = iota - 1
	SecurityLevelDay
	SecurityLevelNight
	SecurityLevelAway
	SecurityLevelDisabled
)

// Settable reports whether the level can be the current operating mode.
func (s SecurityLevel) Settable() bool {
	return s >= SecurityLevelDay && s <= SecurityLevelDisabled
}

func (s SecurityLevel) String() string {
	switch s {
	case SecurityLevelAll:
		return "all"
	case SecurityLevelDay:
		return "day"
	case SecurityLevelNight:
		return "night"
	case SecurityLevelAway:
		return "away"
	case SecurityLevelDisabled:
		return "disabled"
	default:
		return fmt.Sprintf("security(%d)", int(s))
	}
}

// ParseSecurityLevel parses the text form of a security level, including "all".
func ParseSecurityLevel(s string) (SecurityLevel, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "all", "*":
		return SecurityLevelAll, nil
	case "day":
		return SecurityLevelDay, nil
	case "night":
		return SecurityLevelNight, nil
	case "away":
		return SecurityLevelAway, nil
	case "disabled", "off":
		return SecurityLevelDisabled, nil
	}
	return SecurityLevelAll, fmt.Errorf("unknown security level %q", s)
}

func (s SecurityLevel) MarshalText() ([]byte, error) {
	if s != SecurityLevelAll && !s.Settable() {
		return nil, fmt.Errorf("invalid security level %d", int(s))
	}
	return []byte(s.String()), nil
}

func (s *SecurityLevel) UnmarshalText(text []byte) error {
	parsed, err := ParseSecurityLevel(string(text))
	if err != nil {
		return err
	}
	*s = parsed
	return nil
}

// MatchesSecurityLevel reports whether an alarm declared for alarmLevel is
// admitted while the home is in current.
func MatchesSecurityLevel(alarmLevel, current SecurityLevel) bool {
	return alarmLevel == SecurityLevelAll || alarmLevel == current
}

// AlarmSource names the subsystem that raised an alarm. It is an open tag.
type AlarmSource string

const (
	SourceEvent    AlarmSource = "event"
	SourceWeather  AlarmSource = "weather"
	SourceSecurity AlarmSource = "security"
)
