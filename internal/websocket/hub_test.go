package websocket

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
	"github.com/sentryhome/sentryhome/internal/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type received struct {
	Type    string        `json:"type"`
	Payload types.Summary `json:"payload"`
}

func startHub(t *testing.T) (*Hub, *httptest.Server) {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	hub := NewHub(zerolog.Nop())
	go hub.Run(ctx)

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ServeWs(hub, w, r, zerolog.Nop(), func() *Message {
			return &Message{Type: "hello", Payload: types.Summary{Title: "snapshot"}}
		})
	}))
	t.Cleanup(func() {
		srv.Close()
		cancel()
	})
	return hub, srv
}

func dial(t *testing.T, srv *httptest.Server) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(srv.URL, "http")
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return conn
}

func TestHubDeliversAlertSummaries(t *testing.T) {
	hub, srv := startHub(t)
	conn := dial(t, srv)
	require.Eventually(t, func() bool { return hub.ClientCount() == 1 }, time.Second, 10*time.Millisecond)

	var msg received
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	require.NoError(t, conn.ReadJSON(&msg))
	assert.Equal(t, "hello", msg.Type)
	assert.Equal(t, "snapshot", msg.Payload.Title)

	alarm := types.NewAlarm(types.SourceWeather, "flood_warning", "Flood Warning", types.AlarmLevelCritical,
		types.SecurityLevelAll, time.Hour, time.Now(), nil)
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	require.NoError(t, hub.Deliver(ctx, types.NewAlert(alarm), alarm))

	require.NoError(t, conn.ReadJSON(&msg))
	assert.Equal(t, TypeAlertCreated, msg.Type)
	assert.Equal(t, "weather.flood_warning.critical", msg.Payload.Signature)
	assert.Equal(t, "Critical: Flood Warning", msg.Payload.Title)
	assert.Equal(t, types.AlarmLevelCritical, msg.Payload.Level)
}

func TestHubUnregistersClosedClients(t *testing.T) {
	hub, srv := startHub(t)
	conn := dial(t, srv)
	require.Eventually(t, func() bool { return hub.ClientCount() == 1 }, time.Second, 10*time.Millisecond)

	conn.Close()
	require.Eventually(t, func() bool { return hub.ClientCount() == 0 }, 2*time.Second, 10*time.Millisecond)
}

func TestPublishAfterStop(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	hub := NewHub(zerolog.Nop())
	stopped := make(chan struct{})
	go func() {
		hub.Run(ctx)
		close(stopped)
	}()
	cancel()
	<-stopped

	err := hub.Publish(context.Background(), TypeSecurityLevel, "away")
	assert.Error(t, err)
}

func TestPublishRespectsContext(t *testing.T) {
	hub := NewHub(zerolog.Nop())
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	assert.ErrorIs(t, hub.Publish(ctx, TypeSecurityLevel, "away"), context.DeadlineExceeded)
}

func TestBroadcastDuringSnapshotReachesClient(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	hub := NewHub(zerolog.Nop())
	go hub.Run(ctx)

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ServeWs(hub, w, r, zerolog.Nop(), func() *Message {
			// an alert created while the snapshot is being built
			err := hub.Publish(context.Background(), TypeAlertCreated, types.Summary{Title: "raced"})
			assert.NoError(t, err)
			return &Message{Type: TypeAlertsSnapshot, Payload: types.Summary{Title: "snapshot"}}
		})
	}))
	t.Cleanup(func() {
		srv.Close()
		cancel()
	})

	conn := dial(t, srv)
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))

	var msg received
	require.NoError(t, conn.ReadJSON(&msg))
	assert.Equal(t, TypeAlertsSnapshot, msg.Type)
	require.NoError(t, conn.ReadJSON(&msg))
	assert.Equal(t, TypeAlertCreated, msg.Type)
	assert.Equal(t, "raced", msg.Payload.Title)
}

func TestSecurityLevelChangedIsPushed(t *testing.T) {
	hub, srv := startHub(t)
	conn := dial(t, srv)
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))

	var hello received
	require.NoError(t, conn.ReadJSON(&hello))
	require.Eventually(t, func() bool { return hub.ClientCount() == 1 }, time.Second, 10*time.Millisecond)

	hub.SecurityLevelChanged(types.SecurityLevelDay, types.SecurityLevelAway)

	var msg struct {
		Type    string `json:"type"`
		Payload string `json:"payload"`
	}
	require.NoError(t, conn.ReadJSON(&msg))
	assert.Equal(t, TypeSecurityLevel, msg.Type)
	assert.Equal(t, "away", msg.Payload)
}

func TestSecurityLevelChangedAfterStopDoesNotBlock(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	hub := NewHub(zerolog.Nop())
	stopped := make(chan struct{})
	go func() {
		hub.Run(ctx)
		close(stopped)
	}()
	cancel()
	<-stopped

	done := make(chan struct{})
	go func() {
		hub.SecurityLevelChanged(types.SecurityLevelDay, types.SecurityLevelNight)
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("SecurityLevelChanged blocked on a stopped hub")
	}
}
