package alerter

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/sentryhome/sentryhome/internal/metrics"
	"github.com/sentryhome/sentryhome/internal/types"
)

// DefaultSweepInterval is how often the sweeper runs when unset.
const DefaultSweepInterval = 30 * time.Second

// CueUpdater is told which alert should drive the audio cue after each
// sweep. top is nil when nothing unacknowledged remains.
type CueUpdater interface {
	Update(top *types.Alert)
}

// SweeperOptions encapsulates the dependencies of a Sweeper.
type SweeperOptions struct {
	Engine   *Engine
	Interval time.Duration
	Cues     CueUpdater
	Storm    *StormDetector
	Metrics  *metrics.Metrics
	Logger   zerolog.Logger
	Now      func() time.Time
}

// Sweeper periodically removes expired alerts and re-selects the top alert.
type Sweeper struct {
	engine   *Engine
	interval time.Duration
	cues     CueUpdater
	storm    *StormDetector
	metrics  *metrics.Metrics
	log      zerolog.Logger
	now      func() time.Time

	stop     chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup

	mu  sync.RWMutex
	top *types.Alert
}

// NewSweeper constructs a sweeper.
func NewSweeper(opts SweeperOptions) *Sweeper {
	interval := opts.Interval
	if interval <= 0 {
		interval = DefaultSweepInterval
	}
	now := opts.Now
	if now == nil {
		now = time.Now
	}
	return &Sweeper{
		engine:   opts.Engine,
		interval: interval,
		cues:     opts.Cues,
		storm:    opts.Storm,
		metrics:  opts.Metrics,
		log:      opts.Logger.With().Str("component", "sweeper").Logger(),
		now:      now,
		stop:     make(chan struct{}),
	}
}

// Start launches the sweep loop.
func (s *Sweeper) Start(ctx context.Context) {
	s.log.Info().Dur("interval", s.interval).Msg("Starting alert sweeper")

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		ticker := time.NewTicker(s.interval)
		defer ticker.Stop()

		s.SweepOnce(s.now())

		for {
			select {
			case <-ticker.C:
				s.SweepOnce(s.now())
			case <-s.stop:
				s.log.Info().Msg("Alert sweeper stopping")
				return
			case <-ctx.Done():
				s.log.Info().Msg("Alert sweeper context cancelled")
				return
			}
		}
	}()
}

// Stop ends the sweep loop and waits for it to exit.
func (s *Sweeper) Stop() {
	s.stopOnce.Do(func() { close(s.stop) })
	s.wg.Wait()
}

// SweepOnce runs one maintenance pass at now and returns how many alerts
// were removed.
func (s *Sweeper) SweepOnce(now time.Time) int {
	removed := s.engine.Sweep(now)

	alerts := s.engine.ActiveAlerts()
	top := SelectTopAlert(Unacknowledged(alerts))

	s.mu.Lock()
	s.top = top
	s.mu.Unlock()

	if s.cues != nil {
		s.cues.Update(top)
	}
	if s.storm != nil {
		s.storm.CheckSubsided(now)
	}

	byLevel := make(map[string]int, len(types.AlarmLevels))
	for _, alert := range alerts {
		byLevel[alert.Level.String()]++
	}
	s.metrics.SetActive(byLevel)

	if removed > 0 {
		s.log.Info().
			Int("removed", removed).
			Int("remaining", len(alerts)).
			Msg("Sweep removed expired alerts")
	}
	return removed
}

// Top returns the alert selected by the last sweep, or nil.
func (s *Sweeper) Top() *types.Alert {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.top == nil {
		return nil
	}
	return s.top.Clone()
}
