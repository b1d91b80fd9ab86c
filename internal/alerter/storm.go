package alerter

import (
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/sentryhome/sentryhome/internal/metrics"
)

// StormDetector watches queue evictions. When evictions inside the window
// reach the threshold, detectors are raising alarms faster than the queue
// can hold them.
type StormDetector struct {
	log       zerolog.Logger
	metrics   *metrics.Metrics
	threshold int           // evictions inside window that start a storm
	window    time.Duration // sliding window for threshold
	mu        sync.Mutex
	evictions []time.Time
	storming  bool
	since     time.Time
}

// NewStormDetector creates a storm detector.
func NewStormDetector(log zerolog.Logger, threshold int, window time.Duration, m *metrics.Metrics) *StormDetector {
	if threshold <= 0 {
		threshold = 1
	}
	return &StormDetector{
		log:       log.With().Str("component", "storm-detector").Logger(),
		metrics:   m,
		threshold: threshold,
		window:    window,
	}
}

// RecordEviction records an eviction at now. It returns whether a storm is
// in progress and whether this eviction started it.
func (s *StormDetector) RecordEviction(now time.Time) (storming bool, justStarted bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.evictions = append(s.prune(now), now)
	if len(s.evictions) < s.threshold {
		return s.storming, false
	}
	if s.storming {
		return true, false
	}
	s.storming = true
	s.since = now
	s.metrics.SetStorm(true)
	s.log.Warn().
		Int("evictions", len(s.evictions)).
		Dur("window", s.window).
		Msg("alarm storm detected")
	return true, true
}

// CheckSubsided ends a storm once evictions inside the window drop below
// the threshold. Returns true if a storm just ended.
func (s *StormDetector) CheckSubsided(now time.Time) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.evictions = s.prune(now)
	if !s.storming || len(s.evictions) >= s.threshold {
		return false
	}
	s.storming = false
	s.metrics.SetStorm(false)
	s.log.Info().Dur("duration", now.Sub(s.since)).Msg("alarm storm subsided")
	return true
}

// InStorm reports whether a storm is in progress.
func (s *StormDetector) InStorm() bool {
	if s == nil {
		return false
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.storming
}

// prune drops evictions older than the window. Callers hold s.mu.
func (s *StormDetector) prune(now time.Time) []time.Time {
	cutoff := now.Add(-s.window)
	kept := s.evictions[:0]
	for _, ts := range s.evictions {
		if ts.After(cutoff) {
			kept = append(kept, ts)
		}
	}
	return kept
}
