package alerter

import (
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
)

func TestStormDetectorThreshold(t *testing.T) {
	storm := NewStormDetector(zerolog.Nop(), 3, time.Minute, nil)

	storming, started := storm.RecordEviction(t0)
	assert.False(t, storming)
	assert.False(t, started)
	storm.RecordEviction(t0.Add(10 * time.Second))

	storming, started = storm.RecordEviction(t0.Add(20 * time.Second))
	assert.True(t, storming)
	assert.True(t, started)

	storming, started = storm.RecordEviction(t0.Add(30 * time.Second))
	assert.True(t, storming)
	assert.False(t, started)
	assert.True(t, storm.InStorm())
}

func TestStormDetectorWindowSlides(t *testing.T) {
	storm := NewStormDetector(zerolog.Nop(), 3, time.Minute, nil)
	storm.RecordEviction(t0)
	storm.RecordEviction(t0.Add(30 * time.Second))
	storming, _ := storm.RecordEviction(t0.Add(90 * time.Second))
	assert.False(t, storming)
}

func TestStormDetectorSubsides(t *testing.T) {
	storm := NewStormDetector(zerolog.Nop(), 2, time.Minute, nil)
	storm.RecordEviction(t0)
	storm.RecordEviction(t0.Add(time.Second))
	assert.True(t, storm.InStorm())

	assert.False(t, storm.CheckSubsided(t0.Add(30*time.Second)))
	assert.True(t, storm.CheckSubsided(t0.Add(2*time.Minute)))
	assert.False(t, storm.InStorm())
	assert.False(t, storm.CheckSubsided(t0.Add(3*time.Minute)))
}

func TestStormDetectorNilAndThresholdFloor(t *testing.T) {
	var nilStorm *StormDetector
	assert.False(t, nilStorm.InStorm())

	storm := NewStormDetector(zerolog.Nop(), 0, time.Minute, nil)
	storming, started := storm.RecordEviction(t0)
	assert.True(t, storming)
	assert.True(t, started)
}
