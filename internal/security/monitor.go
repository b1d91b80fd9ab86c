package security

import (
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"github.com/sentryhome/sentryhome/internal/types"
)

// DefaultChangeLifetime keeps a level change alert visible for a while.
const DefaultChangeLifetime = 10 * time.Minute

// AlarmSubmitter accepts alarms. *alerter.Engine satisfies it.
type AlarmSubmitter interface {
	AddAlarm(alarm types.Alarm) (*types.Alert, bool, error)
}

// Listener hears about every effective level change. *websocket.Hub
// satisfies it.
type Listener interface {
	SecurityLevelChanged(previous, current types.SecurityLevel)
}

// Monitor is the only writer of State. Every effective change raises an
// info alarm.
type Monitor struct {
	state     *State
	alarms    AlarmSubmitter
	lifetime  time.Duration
	listeners []Listener
	now       func() time.Time
	log       zerolog.Logger
}

// NewMonitor creates a monitor around state.
func NewMonitor(state *State, alarms AlarmSubmitter, lifetime time.Duration, log zerolog.Logger) *Monitor {
	if lifetime <= 0 {
		lifetime = DefaultChangeLifetime
	}
	return &Monitor{
		state:    state,
		alarms:   alarms,
		lifetime: lifetime,
		now:      time.Now,
		log:      log.With().Str("component", "security-monitor").Logger(),
	}
}

// AddListener registers l. Call it before the monitor is shared.
func (m *Monitor) AddListener(l Listener) {
	if l != nil {
		m.listeners = append(m.listeners, l)
	}
}

// Current returns the current level.
func (m *Monitor) Current() types.SecurityLevel {
	return m.state.Current()
}

// SetLevel switches the home to level. It reports whether the level changed.
func (m *Monitor) SetLevel(level types.SecurityLevel) (bool, error) {
	previous, err := m.state.Set(level)
	if err != nil {
		return false, err
	}
	if previous == level {
		return false, nil
	}

	m.log.Info().
		Stringer("from", previous).
		Stringer("to", level).
		Msg("Security level changed")

	for _, l := range m.listeners {
		l.SecurityLevelChanged(previous, level)
	}

	if m.alarms == nil {
		return true, nil
	}
	alarm := types.NewAlarm(
		types.SourceSecurity,
		"level_changed",
		fmt.Sprintf("Security level set to %s", level),
		types.AlarmLevelInfo,
		types.SecurityLevelAll,
		m.lifetime,
		m.now(),
		map[string]string{"from": previous.String(), "to": level.String()},
	)
	if _, _, err := m.alarms.AddAlarm(alarm); err != nil {
		m.log.Warn().Err(err).Msg("Failed to raise security level alarm")
	}
	return true, nil
}
