package mqtt

import (
	"errors"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/sentryhome/sentryhome/internal/alerter"
	"github.com/sentryhome/sentryhome/internal/config"
	"github.com/sentryhome/sentryhome/internal/types"
	"github.com/sentryhome/sentryhome/internal/weather"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var now = time.Date(2026, 8, 1, 18, 0, 0, 0, time.UTC)

type fakeLevels struct {
	set []types.SecurityLevel
}

func (f *fakeLevels) SetLevel(level types.SecurityLevel) (bool, error) {
	if !level.Settable() {
		return false, errors.New("not settable")
	}
	f.set = append(f.set, level)
	return true, nil
}

type subscriptions map[string]MessageHandler

func (s subscriptions) Subscribe(topic string, handler MessageHandler) error {
	s[topic] = handler
	return nil
}

var topics = config.MQTTTopics{
	SecurityLevel: "home/security",
	EventAlarms:   "home/alarms/+",
	WeatherAlerts: "home/weather",
}

func newBridge(t *testing.T) (*Bridge, *alerter.Engine, *fakeLevels) {
	t.Helper()
	levels := &fakeLevels{}
	engine := alerter.NewEngine(fixedDay{}, zerolog.Nop())
	wx := weather.NewAdapter(weather.Config{}, zerolog.Nop()).WithClock(func() time.Time { return now })
	b := NewBridge(topics, engine, levels, wx, zerolog.Nop())
	b.now = func() time.Time { return now }
	return b, engine, levels
}

type fixedDay struct{}

func (fixedDay) Current() types.SecurityLevel { return types.SecurityLevelDay }

func TestBridgeSubscribesAllTopics(t *testing.T) {
	b, _, _ := newBridge(t)
	subs := subscriptions{}
	require.NoError(t, b.Subscribe(subs))
	assert.Len(t, subs, 3)
	assert.Contains(t, subs, "home/alarms/+")

	noWeather := NewBridge(topics, nil, nil, nil, zerolog.Nop())
	subs = subscriptions{}
	require.NoError(t, noWeather.Subscribe(subs))
	assert.Len(t, subs, 1)
}

func TestHandleEventAlarm(t *testing.T) {
	b, engine, _ := newBridge(t)
	payload := []byte(`{"type":"motion","title":"Motion Detected","alarm_level":"critical","lifetime_seconds":300}`)

	require.NoError(t, b.HandleEventAlarm("home/alarms/hall", payload))
	require.NoError(t, b.HandleEventAlarm("home/alarms/hall", payload))

	alerts := engine.ActiveAlerts()
	require.Len(t, alerts, 1)
	assert.Equal(t, 2, alerts[0].Count())
	assert.Equal(t, now.Add(5*time.Minute), alerts[0].End)

	assert.NoError(t, b.HandleEventAlarm("home/alarms/hall", []byte(`{"type":"motion","alarm_level":"none"}`)))
	assert.Error(t, b.HandleEventAlarm("home/alarms/hall", []byte(`not json`)))
	assert.Len(t, engine.ActiveAlerts(), 1)
}

func TestHandleWeatherAlert(t *testing.T) {
	b, engine, _ := newBridge(t)

	require.NoError(t, b.HandleWeatherAlert("home/weather",
		[]byte(`{"event":"Tornado Warning","severity":"Extreme","expires":"2026-08-01T19:00:00Z"}`)))
	require.NoError(t, b.HandleWeatherAlert("home/weather",
		[]byte(`{"event":"Heat Advisory","severity":"Minor","expires":"2026-08-01T17:00:00Z"}`)))

	alerts := engine.ActiveAlerts()
	require.Len(t, alerts, 1)
	assert.Equal(t, "weather.tornado_warning.critical", alerts[0].Signature)
	assert.Equal(t, now.Add(time.Hour), alerts[0].End)
}

func TestHandleSecurityLevel(t *testing.T) {
	b, _, levels := newBridge(t)
	require.NoError(t, b.HandleSecurityLevel("home/security", []byte(`{"level":"away"}`)))
	assert.Equal(t, []types.SecurityLevel{types.SecurityLevelAway}, levels.set)

	assert.Error(t, b.HandleSecurityLevel("home/security", []byte("all")))
	assert.Error(t, b.HandleSecurityLevel("home/security", []byte("vacation")))
}

func TestMatchTopic(t *testing.T) {
	tests := []struct {
		pattern, topic string
		want           bool
	}{
		{"home/alarms/+", "home/alarms/hall", true},
		{"home/alarms/+", "home/alarms/hall/extra", false},
		{"home/alarms/+", "home/alarms", false},
		{"home/#", "home/alarms/hall", true},
		{"home/#", "home", true},
		{"home/weather", "home/weather", true},
		{"home/weather", "home/weatherx", false},
		{"+/weather", "home/weather", true},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, matchTopic(tt.pattern, tt.topic), "%s vs %s", tt.pattern, tt.topic)
	}
}

func TestClientDispatchesByPattern(t *testing.T) {
	c := NewClient(config.MQTTConfig{Broker: "tcp://127.0.0.1:1883", ClientID: "test"}, zerolog.Nop())
	var got []string
	c.handlers["home/alarms/+"] = func(topic string, _ []byte) error {
		got = append(got, topic)
		return nil
	}
	c.handlers["home/weather"] = func(string, []byte) error {
		return errors.New("bad record")
	}

	c.handleMessage("home/alarms/door", []byte("{}"))
	c.handleMessage("home/weather", []byte("{}"))
	c.handleMessage("elsewhere", []byte("{}"))

	assert.Equal(t, []string{"home/alarms/door"}, got)
	assert.False(t, c.IsConnected())
	assert.Error(t, c.Subscribe("home/x", nil))
}
