package notifier

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/sentryhome/sentryhome/internal/config"
	"github.com/sentryhome/sentryhome/internal/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var t0 = time.Date(2026, 2, 14, 3, 15, 0, 0, time.UTC)

func criticalMotion() (*types.Alert, types.Alarm) {
	alarm := types.NewAlarm(types.SourceEvent, "motion", "Motion Detected", types.AlarmLevelCritical,
		types.SecurityLevelAway, 5*time.Minute, t0, map[string]string{"sensor": "hall", "area": "ground floor"})
	return types.NewAlert(alarm), alarm
}

type appriseServer struct {
	mu       sync.Mutex
	payloads []apprisePayload
	status   int
}

func (s *appriseServer) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost || r.URL.Path != "/notify/" {
		http.NotFound(w, r)
		return
	}
	var p apprisePayload
	if err := json.NewDecoder(r.Body).Decode(&p); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	s.mu.Lock()
	s.payloads = append(s.payloads, p)
	s.mu.Unlock()
	if s.status != 0 {
		http.Error(w, "upstream refused", s.status)
		return
	}
	w.WriteHeader(http.StatusOK)
}

func TestDeliverPostsToAcceptingChannels(t *testing.T) {
	backend := &appriseServer{}
	srv := httptest.NewServer(backend)
	defer srv.Close()

	n := NewApprise(srv.URL+"/", []Channel{
		{Name: "phone", URL: "pover://user@token"},
		{Name: "email", URL: "mailto://me@example.com", SeverityFilter: []types.AlarmLevel{types.AlarmLevelInfo}},
	}, zerolog.Nop())

	alert, trigger := criticalMotion()
	require.NoError(t, n.Deliver(context.Background(), alert, trigger))

	require.Len(t, backend.payloads, 1)
	p := backend.payloads[0]
	assert.Equal(t, "pover://user@token", p.URLs)
	assert.Equal(t, "🔴 Alert: Critical: Motion Detected", p.Title)
	assert.Equal(t, "failure", p.Type)
	assert.Equal(t, "text", p.Format)
	assert.Contains(t, p.Body, "Source: event")
	assert.Contains(t, p.Body, "Started: 2026-02-14T03:15:00Z")
	assert.True(t, strings.Index(p.Body, "area: ground floor") < strings.Index(p.Body, "sensor: hall"))
}

func TestDeliverJoinsChannelErrors(t *testing.T) {
	backend := &appriseServer{status: http.StatusInternalServerError}
	srv := httptest.NewServer(backend)
	defer srv.Close()

	n := NewApprise(srv.URL, []Channel{
		{Name: "a", URL: "json://a"},
		{Name: "b", URL: "json://b"},
	}, zerolog.Nop())

	alert, trigger := criticalMotion()
	err := n.Deliver(context.Background(), alert, trigger)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "channel a")
	assert.Contains(t, err.Error(), "channel b")
	assert.Contains(t, err.Error(), "500")
	assert.Len(t, backend.payloads, 2)
}

func TestDeliverHonoursContext(t *testing.T) {
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		// the server only sees the client go away once the body is drained
		_, _ = io.Copy(io.Discard, r.Body)
		select {
		case <-r.Context().Done():
		case <-release:
		}
	}))
	defer srv.Close()
	defer close(release)

	n := NewApprise(srv.URL, []Channel{{Name: "slow", URL: "json://slow"}}, zerolog.Nop())
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	alert, trigger := criticalMotion()
	err := n.Deliver(ctx, alert, trigger)
	require.Error(t, err)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestDeliverWithoutAPIURLIsDryRun(t *testing.T) {
	n := NewApprise("", []Channel{{Name: "phone", URL: "pover://x"}}, zerolog.Nop())
	alert, trigger := criticalMotion()
	assert.NoError(t, n.Deliver(context.Background(), alert, trigger))
}

func TestResolveChannels(t *testing.T) {
	env := map[string]string{"PHONE_URL": "pover://user@token"}
	channels := ResolveChannels(map[string]config.ChannelConfig{
		"phone":   {Type: "apprise", URLEnv: "PHONE_URL", SeverityFilter: []types.AlarmLevel{types.AlarmLevelCritical}},
		"missing": {Type: "apprise", URLEnv: "NOPE_URL"},
	}, func(k string) string { return env[k] }, zerolog.Nop())

	require.Len(t, channels, 1)
	assert.Equal(t, "phone", channels[0].Name)
	assert.True(t, channels[0].Accepts(types.AlarmLevelCritical))
	assert.False(t, channels[0].Accepts(types.AlarmLevelInfo))
	assert.True(t, Channel{}.Accepts(types.AlarmLevelInfo))
}

func TestMultiJoinsErrors(t *testing.T) {
	var calls []string
	ok := delivererFunc(func() error { calls = append(calls, "ok"); return nil })
	bad := delivererFunc(func() error { calls = append(calls, "bad"); return errors.New("socket closed") })

	alert, trigger := criticalMotion()
	err := NewMulti(bad, nil, ok).Deliver(context.Background(), alert, trigger)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "socket closed")
	assert.Equal(t, []string{"bad", "ok"}, calls)

	assert.NoError(t, NewMulti(ok).Deliver(context.Background(), alert, trigger))
}

type delivererFunc func() error

func (f delivererFunc) Deliver(context.Context, *types.Alert, types.Alarm) error { return f() }
