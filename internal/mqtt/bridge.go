package mqtt

import (
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"github.com/sentryhome/sentryhome/internal/alerter"
	"github.com/sentryhome/sentryhome/internal/config"
	"github.com/sentryhome/sentryhome/internal/ingest"
	"github.com/sentryhome/sentryhome/internal/types"
	"github.com/sentryhome/sentryhome/internal/weather"
)

// AlarmSubmitter accepts alarms for the alert queue.
type AlarmSubmitter interface {
	AddAlarm(alarm types.Alarm) (*types.Alert, bool, error)
}

// LevelSetter switches the security level.
type LevelSetter interface {
	SetLevel(level types.SecurityLevel) (bool, error)
}

// WeatherConverter turns weather records into alarms.
type WeatherConverter interface {
	ToAlarm(record weather.Record) (types.Alarm, bool)
}

// Subscriber is the part of Client the bridge needs.
type Subscriber interface {
	Subscribe(topic string, handler MessageHandler) error
}

// Bridge routes producer topics into the alert engine.
type Bridge struct {
	topics  config.MQTTTopics
	alarms  AlarmSubmitter
	levels  LevelSetter
	weather WeatherConverter
	now     func() time.Time
	log     zerolog.Logger
}

// NewBridge creates a bridge. Any of levels or weather may be nil, which
// leaves the corresponding topic unsubscribed.
func NewBridge(topics config.MQTTTopics, alarms AlarmSubmitter, levels LevelSetter, wx WeatherConverter, log zerolog.Logger) *Bridge {
	return &Bridge{
		topics:  topics,
		alarms:  alarms,
		levels:  levels,
		weather: wx,
		now:     time.Now,
		log:     log.With().Str("component", "mqtt-bridge").Logger(),
	}
}

// Subscribe registers the bridge's handlers with sub.
func (b *Bridge) Subscribe(sub Subscriber) error {
	if b.levels != nil && b.topics.SecurityLevel != "" {
		if err := sub.Subscribe(b.topics.SecurityLevel, b.HandleSecurityLevel); err != nil {
			return err
		}
	}
	if b.topics.EventAlarms != "" {
		if err := sub.Subscribe(b.topics.EventAlarms, b.HandleEventAlarm); err != nil {
			return err
		}
	}
	if b.weather != nil && b.topics.WeatherAlerts != "" {
		if err := sub.Subscribe(b.topics.WeatherAlerts, b.HandleWeatherAlert); err != nil {
			return err
		}
	}
	return nil
}

// HandleSecurityLevel applies a security level published by the security
// state owner.
func (b *Bridge) HandleSecurityLevel(topic string, payload []byte) error {
	level, err := ingest.DecodeSecurityLevel(payload)
	if err != nil {
		return err
	}
	if _, err := b.levels.SetLevel(level); err != nil {
		return fmt.Errorf("setting security level from %s: %w", topic, err)
	}
	return nil
}

// HandleEventAlarm submits an alarm raised by the rule engine.
func (b *Bridge) HandleEventAlarm(topic string, payload []byte) error {
	alarm, err := ingest.DecodeAlarm(payload, b.now())
	if err != nil {
		return err
	}
	return b.submit(topic, alarm)
}

// HandleWeatherAlert converts a weather record and submits the alarm, if any.
func (b *Bridge) HandleWeatherAlert(topic string, payload []byte) error {
	record, err := ingest.DecodeWeatherRecord(payload)
	if err != nil {
		return err
	}
	alarm, ok := b.weather.ToAlarm(record)
	if !ok {
		return nil
	}
	return b.submit(topic, alarm)
}

func (b *Bridge) submit(topic string, alarm types.Alarm) error {
	_, _, err := b.alarms.AddAlarm(alarm)
	if errors.Is(err, alerter.ErrRejectedAlarm) {
		b.log.Debug().Err(err).Str("topic", topic).Msg("Alarm rejected")
		return nil
	}
	return err
}
