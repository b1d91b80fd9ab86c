package alerter

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/sentryhome/sentryhome/internal/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type cueRecorder struct {
	mu   sync.Mutex
	tops []string
}

func (c *cueRecorder) Update(top *types.Alert) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if top == nil {
		c.tops = append(c.tops, "")
		return
	}
	c.tops = append(c.tops, top.Signature)
}

func (c *cueRecorder) Calls() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]string(nil), c.tops...)
}

func TestSweepOnceSelectsTopUnacknowledged(t *testing.T) {
	engine, _, _, _ := newTestEngine(t)
	cues := &cueRecorder{}
	sweeper := NewSweeper(SweeperOptions{Engine: engine, Cues: cues, Logger: zerolog.Nop()})

	critical, _, err := engine.AddAlarm(motion(types.AlarmLevelCritical, 5*time.Minute, t0))
	require.NoError(t, err)
	warning, _, err := engine.AddAlarm(motion(types.AlarmLevelWarning, time.Hour, t0))
	require.NoError(t, err)

	assert.Equal(t, 0, sweeper.SweepOnce(t0.Add(time.Minute)))
	require.NotNil(t, sweeper.Top())
	assert.Equal(t, critical.Signature, sweeper.Top().Signature)

	// acknowledged alerts stay queued but stop driving the cue
	require.True(t, engine.Acknowledge(critical.Signature))
	sweeper.SweepOnce(t0.Add(2 * time.Minute))
	assert.Equal(t, warning.Signature, sweeper.Top().Signature)
	assert.Equal(t, 2, engine.Len())

	assert.Equal(t, 1, sweeper.SweepOnce(t0.Add(10*time.Minute)))
	assert.Equal(t, 1, sweeper.SweepOnce(t0.Add(2*time.Hour)))
	assert.Nil(t, sweeper.Top())

	assert.Equal(t, []string{critical.Signature, warning.Signature, warning.Signature, ""}, cues.Calls())
}

func TestSweepOnceChecksStorm(t *testing.T) {
	storm := NewStormDetector(zerolog.Nop(), 1, time.Minute, nil)
	engine, _, _, _ := newTestEngine(t)
	sweeper := NewSweeper(SweeperOptions{Engine: engine, Storm: storm, Logger: zerolog.Nop()})

	storm.RecordEviction(t0)
	require.True(t, storm.InStorm())
	sweeper.SweepOnce(t0.Add(2 * time.Minute))
	assert.False(t, storm.InStorm())
}

func TestSweeperStartStop(t *testing.T) {
	engine, _, _, _ := newTestEngine(t)
	_, _, err := engine.AddAlarm(motion(types.AlarmLevelInfo, time.Minute, t0))
	require.NoError(t, err)

	cues := &cueRecorder{}
	sweeper := NewSweeper(SweeperOptions{
		Engine:   engine,
		Interval: 5 * time.Millisecond,
		Cues:     cues,
		Logger:   zerolog.Nop(),
		Now:      func() time.Time { return t0.Add(time.Hour) },
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	sweeper.Start(ctx)

	require.Eventually(t, func() bool { return engine.Len() == 0 }, time.Second, 5*time.Millisecond)
	sweeper.Stop()
	sweeper.Stop()

	assert.NotEmpty(t, cues.Calls())
}

func TestSweeperStopsOnContextCancel(t *testing.T) {
	engine, _, _, _ := newTestEngine(t)
	sweeper := NewSweeper(SweeperOptions{Engine: engine, Interval: time.Hour, Logger: zerolog.Nop()})

	ctx, cancel := context.WithCancel(context.Background())
	sweeper.Start(ctx)
	cancel()

	done := make(chan struct{})
	go func() {
		sweeper.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("sweeper did not exit after cancel")
	}
}
