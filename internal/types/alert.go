package types

import (
	"fmt"
	"time"
)

// Alert groups every alarm sharing one signature. Alerts are owned by the
// alert queue; everything handed out of it is a Clone.
type Alert struct {
	Signature    string
	Level        AlarmLevel
	Alarms       []Alarm
	Start        time.Time
	End          time.Time
	Acknowledged bool
}

// NewAlert starts an alert from its first alarm.
func NewAlert(first Alarm) *Alert {
	return &Alert{
		Signature: first.Signature(),
		Level:     first.Level,
		Alarms:    []Alarm{first.clone()},
		Start:     first.RaisedAt,
		End:       first.ExpiresAt(),
	}
}

// Add appends a matching alarm and extends the end time when the alarm
// outlives the current one. It reports whether End moved.
func (a *Alert) Add(alarm Alarm) bool {
	a.Alarms = append(a.Alarms, alarm.clone())
	if expires := alarm.ExpiresAt(); expires.After(a.End) {
		a.End = expires
		return true
	}
	return false
}

// Count is the number of constituent alarms.
func (a *Alert) Count() int {
	return len(a.Alarms)
}

// Latest returns the most recently added alarm.
func (a *Alert) Latest() Alarm {
	return a.Alarms[len(a.Alarms)-1]
}

// Title renders e.g. "Critical: Motion Detected (3)".
func (a *Alert) Title() string {
	title := fmt.Sprintf("%s: %s", a.Level.Label(), a.Latest().Title)
	if n := a.Count(); n > 1 {
		title = fmt.Sprintf("%s (%d)", title, n)
	}
	return title
}

// Expired reports whether the alert is past its end time at now.
func (a *Alert) Expired(now time.Time) bool {
	return now.After(a.End)
}

// Clone returns a deep copy.
func (a *Alert) Clone() *Alert {
	out := *a
	out.Alarms = make([]Alarm, len(a.Alarms))
	for i, alarm := range a.Alarms {
		out.Alarms[i] = alarm.clone()
	}
	return &out
}

// Summary is the view of an alert served to display clients.
type Summary struct {
	Signature    string     `json:"signature"`
	Title        string     `json:"title"`
	AlarmTitles  []string   `json:"alarm_titles"`
	Count        int        `json:"count"`
	Level        AlarmLevel `json:"alarm_level"`
	Source       string     `json:"source"`
	Start        time.Time  `json:"start_datetime"`
	End          time.Time  `json:"end_datetime"`
	Acknowledged bool       `json:"acknowledged"`
}

// Summary builds the display view of the alert.
func (a *Alert) Summary() Summary {
	titles := make([]string, len(a.Alarms))
	for i, alarm := range a.Alarms {
		titles[i] = alarm.Title
	}
	return Summary{
		Signature:    a.Signature,
		Title:        a.Title(),
		AlarmTitles:  titles,
		Count:        a.Count(),
		Level:        a.Level,
		Source:       string(a.Latest().Source),
		Start:        a.Start,
		End:          a.End,
		Acknowledged: a.Acknowledged,
	}
}
