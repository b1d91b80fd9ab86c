package webui

import (
	"io"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLogBufferCapturesZerolog(t *testing.T) {
	buf := NewLogBuffer(10)
	log := zerolog.New(buf).With().Timestamp().Str("component", "alert-queue").Logger()

	log.Info().Str("signature", "event.motion.critical").Msg("Alert created")
	log.Warn().Msg(`quoted "text" inside`)

	entries := buf.GetEntries()
	require.Len(t, entries, 2)
	assert.Equal(t, "info", entries[0].Level)
	assert.Equal(t, "Alert created", entries[0].Message)
	assert.Equal(t, "alert-queue", entries[0].Component)
	assert.Contains(t, entries[0].Raw, "event.motion.critical")
	assert.Equal(t, "warn", entries[1].Level)
	assert.Equal(t, `quoted "text" inside`, entries[1].Message)
}

func TestLogBufferWrapsAround(t *testing.T) {
	buf := NewLogBuffer(3)
	for _, msg := range []string{"a", "b", "c", "d", "e"} {
		_, err := io.WriteString(buf, `{"level":"debug","message":"`+msg+`"}`+"\n")
		require.NoError(t, err)
	}

	entries := buf.GetEntries()
	require.Len(t, entries, 3)
	assert.Equal(t, "c", entries[0].Message)
	assert.Equal(t, "e", entries[2].Message)

	recent := buf.GetRecentEntries(2, "")
	require.Len(t, recent, 2)
	assert.Equal(t, "d", recent[0].Message)

	buf.Clear()
	assert.Empty(t, buf.GetEntries())
}

func TestLogBufferNonJSONAndFilter(t *testing.T) {
	buf := NewLogBuffer(5)
	fixed := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	buf.now = func() time.Time { return fixed }

	_, _ = io.WriteString(buf, "plain text line\n")
	_, _ = io.WriteString(buf, `{"level":"error","message":"boom"}`)

	entries := buf.GetEntries()
	require.Len(t, entries, 2)
	assert.Equal(t, "plain text line", entries[0].Message)
	assert.Equal(t, "info", entries[0].Level)
	assert.Equal(t, fixed, entries[0].Timestamp)

	errorsOnly := buf.GetRecentEntries(0, "error")
	require.Len(t, errorsOnly, 1)
	assert.Equal(t, "boom", errorsOnly[0].Message)
}
