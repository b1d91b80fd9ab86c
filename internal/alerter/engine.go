package alerter

import (
	"sort"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/sentryhome/sentryhome/internal/metrics"
	"github.com/sentryhome/sentryhome/internal/types"
)

// DefaultMaxAlerts bounds the number of alerts the queue retains.
const DefaultMaxAlerts = 50

// LevelSource supplies the current security level.
type LevelSource interface {
	Current() types.SecurityLevel
}

// Engine is the alert queue. It groups alarms into alerts by signature and
// owns every alert it holds.
type Engine struct {
	levels    LevelSource
	gate      *Gate
	storm     *StormDetector
	metrics   *metrics.Metrics
	logger    zerolog.Logger
	maxAlerts int
	now       func() time.Time

	mu     sync.Mutex
	alerts map[string]*types.Alert
}

// Option configures an Engine.
type Option func(*Engine)

// WithMaxAlerts overrides DefaultMaxAlerts.
func WithMaxAlerts(n int) Option {
	return func(e *Engine) {
		if n > 0 {
			e.maxAlerts = n
		}
	}
}

// WithGate sets the notification gate fired for new alerts.
func WithGate(gate *Gate) Option {
	return func(e *Engine) {
		e.gate = gate
	}
}

// WithStormDetector records evictions in the given detector.
func WithStormDetector(storm *StormDetector) Option {
	return func(e *Engine) {
		e.storm = storm
	}
}

// WithMetrics sets the metrics sink.
func WithMetrics(m *metrics.Metrics) Option {
	return func(e *Engine) {
		e.metrics = m
	}
}

// WithClock overrides the wall clock used for eviction bookkeeping.
func WithClock(now func() time.Time) Option {
	return func(e *Engine) {
		if now != nil {
			e.now = now
		}
	}
}

// NewEngine creates an alert queue reading the security level from levels.
func NewEngine(levels LevelSource, logger zerolog.Logger, opts ...Option) *Engine {
	e := &Engine{
		levels:    levels,
		logger:    logger.With().Str("component", "alert-queue").Logger(),
		maxAlerts: DefaultMaxAlerts,
		now:       time.Now,
		alerts:    make(map[string]*types.Alert),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// AddAlarm submits an alarm. It returns a copy of the alert the alarm joined
// and whether that alert was created by this call. Alarms not admitted at the
// current security level return (nil, false, nil). Alarms that are not
// alert-worthy return a *RejectedAlarmError.
func (e *Engine) AddAlarm(alarm types.Alarm) (*types.Alert, bool, error) {
	signature := alarm.Signature()
	source := string(alarm.Source)

	if !alarm.Level.AlertWorthy() {
		e.metrics.ObserveAlarm(source, metrics.OutcomeRejected)
		return nil, false, &RejectedAlarmError{Signature: signature, Level: alarm.Level}
	}

	current := e.levels.Current()
	if !types.MatchesSecurityLevel(alarm.SecurityLevel, current) {
		e.metrics.ObserveAlarm(source, metrics.OutcomeFiltered)
		e.logger.Debug().
			Str("signature", signature).
			Stringer("alarm_security_level", alarm.SecurityLevel).
			Stringer("current_security_level", current).
			Msg("Alarm not admitted at current security level, dropping")
		return nil, false, nil
	}

	e.mu.Lock()
	alert, exists := e.alerts[signature]
	var evicted *types.Alert
	if exists {
		alert.Add(alarm)
	} else {
		if len(e.alerts) >= e.maxAlerts {
			evicted = e.evictLocked()
		}
		alert = types.NewAlert(alarm)
		e.alerts[signature] = alert
	}
	snapshot := alert.Clone()
	e.mu.Unlock()

	if evicted != nil {
		e.recordEviction(evicted)
	}

	isNew := !exists
	if isNew {
		e.metrics.ObserveAlarm(source, metrics.OutcomeCreated)
		e.logger.Info().
			Str("signature", signature).
			Stringer("level", alarm.Level).
			Time("end", snapshot.End).
			Msg("Alert created")
	} else {
		e.metrics.ObserveAlarm(source, metrics.OutcomeRegrouped)
		e.logger.Debug().
			Str("signature", signature).
			Int("count", snapshot.Count()).
			Time("end", snapshot.End).
			Msg("Alarm grouped into existing alert")
	}

	if ShouldNotify(isNew) {
		e.gate.Dispatch(snapshot.Clone(), alarm)
	}
	return snapshot, isNew, nil
}

// evictLocked removes the lowest priority alert, oldest first. Callers hold e.mu.
func (e *Engine) evictLocked() *types.Alert {
	var victim *types.Alert
	for _, alert := range e.alerts {
		if victim == nil || evictsBefore(alert, victim) {
			victim = alert
		}
	}
	if victim != nil {
		delete(e.alerts, victim.Signature)
	}
	return victim
}

func evictsBefore(a, b *types.Alert) bool {
	if pa, pb := a.Level.Priority(), b.Level.Priority(); pa != pb {
		return pa < pb
	}
	if !a.Start.Equal(b.Start) {
		return a.Start.Before(b.Start)
	}
	return a.Signature < b.Signature
}

func (e *Engine) recordEviction(evicted *types.Alert) {
	e.metrics.IncEviction(evicted.Level.String())
	e.logger.Info().
		Str("signature", evicted.Signature).
		Stringer("level", evicted.Level).
		Int("max_alerts", e.maxAlerts).
		Msg("Alert queue full, evicted alert")
	if e.storm != nil {
		e.storm.RecordEviction(e.now())
	}
}

// Acknowledge marks the alert with the given signature as acknowledged. The
// alert stays visible until it expires.
func (e *Engine) Acknowledge(signature string) bool {
	e.mu.Lock()
	alert, exists := e.alerts[signature]
	if exists {
		alert.Acknowledged = true
	}
	e.mu.Unlock()

	if !exists {
		return false
	}
	e.metrics.IncAcknowledged()
	e.logger.Info().Str("signature", signature).Msg("Alert acknowledged")
	return true
}

// ActiveAlerts returns copies of all alerts, highest priority first and
// longest standing first within a priority.
func (e *Engine) ActiveAlerts() []*types.Alert {
	e.mu.Lock()
	alerts := make([]*types.Alert, 0, len(e.alerts))
	for _, alert := range e.alerts {
		alerts = append(alerts, alert.Clone())
	}
	e.mu.Unlock()

	SortAlerts(alerts)
	return alerts
}

// Get returns a copy of the alert with the given signature.
func (e *Engine) Get(signature string) (*types.Alert, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	alert, ok := e.alerts[signature]
	if !ok {
		return nil, false
	}
	return alert.Clone(), true
}

// Len returns the number of alerts held.
func (e *Engine) Len() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.alerts)
}

// Sweep removes every alert whose end time is before now and returns how
// many were removed. Acknowledgment does not shorten an alert's life.
func (e *Engine) Sweep(now time.Time) int {
	var removed []string
	e.mu.Lock()
	for signature, alert := range e.alerts {
		if alert.Expired(now) {
			delete(e.alerts, signature)
			removed = append(removed, signature)
		}
	}
	e.mu.Unlock()

	if len(removed) > 0 {
		e.metrics.AddSwept(len(removed))
		e.logger.Debug().
			Strs("signatures", removed).
			Int("removed", len(removed)).
			Msg("Expired alerts swept")
	}
	return len(removed)
}

// SortAlerts orders alerts by priority descending, then start ascending.
func SortAlerts(alerts []*types.Alert) {
	sort.Slice(alerts, func(i, j int) bool {
		a, b := alerts[i], alerts[j]
		if pa, pb := a.Level.Priority(), b.Level.Priority(); pa != pb {
			return pa > pb
		}
		if !a.Start.Equal(b.Start) {
			return a.Start.Before(b.Start)
		}
		return a.Signature < b.Signature
	})
}

// SelectTopAlert returns the first alert of an ordered snapshot, or nil.
func SelectTopAlert(alerts []*types.Alert) *types.Alert {
	if len(alerts) == 0 {
		return nil
	}
	return alerts[0]
}

// Unacknowledged filters an ordered snapshot down to alerts not yet acknowledged.
func Unacknowledged(alerts []*types.Alert) []*types.Alert {
	out := make([]*types.Alert, 0, len(alerts))
	for _, alert := range alerts {
		if !alert.Acknowledged {
			out = append(out, alert)
		}
	}
	return out
}
