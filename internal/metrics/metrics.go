package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

const metricPrefix = "sentryhome_"

// Alarm outcomes recorded by ObserveAlarm.
const (
	OutcomeCreated   = "created"
	OutcomeRegrouped = "regrouped"
	OutcomeFiltered  = "filtered"
	OutcomeRejected  = "rejected"
)

// Metrics holds the alert engine collectors. A nil *Metrics is valid and
// records nothing.
type Metrics struct {
	alarmsTotal        *prometheus.CounterVec
	evictionsTotal     *prometheus.CounterVec
	sweptTotal         prometheus.Counter
	acknowledgedTotal  prometheus.Counter
	notificationsTotal *prometheus.CounterVec
	activeAlerts       *prometheus.GaugeVec
	stormActive        prometheus.Gauge
}

// New creates the collectors and registers them with reg.
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		alarmsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: metricPrefix + "alarms_total",
				Help: "Alarms submitted to the alert queue by source and outcome",
			},
			[]string{"source", "outcome"},
		),
		evictionsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: metricPrefix + "alert_evictions_total",
				Help: "Alerts evicted because the queue was full, by evicted level",
			},
			[]string{"level"},
		),
		sweptTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: metricPrefix + "alerts_swept_total",
				Help: "Expired alerts removed by the maintenance sweep",
			},
		),
		acknowledgedTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: metricPrefix + "alerts_acknowledged_total",
				Help: "Alerts acknowledged by a user",
			},
		),
		notificationsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: metricPrefix + "notifications_total",
				Help: "Notification deliveries by result",
			},
			[]string{"result"},
		),
		activeAlerts: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: metricPrefix + "active_alerts",
				Help: "Alerts currently held by the queue by level",
			},
			[]string{"level"},
		),
		stormActive: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: metricPrefix + "alarm_storm_active",
				Help: "1 while evictions exceed the storm threshold",
			},
		),
	}
	if reg != nil {
		reg.MustRegister(
			m.alarmsTotal,
			m.evictionsTotal,
			m.sweptTotal,
			m.acknowledgedTotal,
			m.notificationsTotal,
			m.activeAlerts,
			m.stormActive,
		)
	}
	return m
}

// ObserveAlarm counts one submitted alarm.
func (m *Metrics) ObserveAlarm(source, outcome string) {
	if m == nil {
		return
	}
	if source == "" {
		source = "unknown"
	}
	m.alarmsTotal.WithLabelValues(source, outcome).Inc()
}

// IncEviction counts an alert evicted under capacity pressure.
func (m *Metrics) IncEviction(level string) {
	if m == nil {
		return
	}
	m.evictionsTotal.WithLabelValues(level).Inc()
}

// AddSwept counts alerts removed by a sweep.
func (m *Metrics) AddSwept(n int) {
	if m == nil || n <= 0 {
		return
	}
	m.sweptTotal.Add(float64(n))
}

// IncAcknowledged counts a successful acknowledgment.
func (m *Metrics) IncAcknowledged() {
	if m == nil {
		return
	}
	m.acknowledgedTotal.Inc()
}

// IncNotification counts a delivery attempt by result.
func (m *Metrics) IncNotification(result string) {
	if m == nil {
		return
	}
	if result == "" {
		result = "unknown"
	}
	m.notificationsTotal.WithLabelValues(result).Inc()
}

// SetActive replaces the per-level active alert gauge.
func (m *Metrics) SetActive(byLevel map[string]int) {
	if m == nil {
		return
	}
	m.activeAlerts.Reset()
	for level, n := range byLevel {
		m.activeAlerts.WithLabelValues(level).Set(float64(n))
	}
}

// SetStorm flags whether an alarm storm is in progress.
func (m *Metrics) SetStorm(active bool) {
	if m == nil {
		return
	}
	if active {
		m.stormActive.Set(1)
		return
	}
	m.stormActive.Set(0)
}
