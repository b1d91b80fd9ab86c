package notifier

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"sort"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/sentryhome/sentryhome/internal/config"
	"github.com/sentryhome/sentryhome/internal/types"
)

// Channel is one resolved Apprise destination.
type Channel struct {
	Name string
	URL  string
	// SeverityFilter limits the channel to these levels. Empty means all.
	SeverityFilter []types.AlarmLevel
}

// Accepts reports whether the channel wants alerts at level.
func (c Channel) Accepts(level types.AlarmLevel) bool {
	if len(c.SeverityFilter) == 0 {
		return true
	}
	for _, l := range c.SeverityFilter {
		if l == level {
			return true
		}
	}
	return false
}

// ResolveChannels turns configured channels into destinations, reading each
// service URL from the environment through lookup. Channels whose variable
// is unset are skipped with a warning.
func ResolveChannels(channels map[string]config.ChannelConfig, lookup func(string) string, logger zerolog.Logger) []Channel {
	names := make([]string, 0, len(channels))
	for name := range channels {
		names = append(names, name)
	}
	sort.Strings(names)

	resolved := make([]Channel, 0, len(names))
	for _, name := range names {
		ch := channels[name]
		serviceURL := lookup(ch.URLEnv)
		if serviceURL == "" {
			logger.Warn().
				Str("channel", name).
				Str("url_env", ch.URLEnv).
				Msg("Channel URL not found, skipping")
			continue
		}
		resolved = append(resolved, Channel{
			Name:           name,
			URL:            serviceURL,
			SeverityFilter: ch.SeverityFilter,
		})
	}
	return resolved
}

// Apprise sends alert notifications through an Apprise API server.
type Apprise struct {
	apiURL   string
	channels []Channel
	client   *http.Client
	logger   zerolog.Logger
}

// NewApprise creates a notifier posting to the stateless notify endpoint of
// apiURL. With an empty apiURL nothing is sent and each notification is
// logged instead.
func NewApprise(apiURL string, channels []Channel, logger zerolog.Logger) *Apprise {
	return &Apprise{
		apiURL:   strings.TrimRight(apiURL, "/"),
		channels: channels,
		client: &http.Client{
			Timeout: 10 * time.Second,
		},
		logger: logger.With().Str("component", "apprise").Logger(),
	}
}

type apprisePayload struct {
	URLs   string `json:"urls"`
	Title  string `json:"title"`
	Body   string `json:"body"`
	Type   string `json:"type"`
	Format string `json:"format"`
}

// Deliver sends the alert to every channel that accepts its level. Errors
// from individual channels are joined; a failing channel does not stop the
// others.
func (n *Apprise) Deliver(ctx context.Context, alert *types.Alert, trigger types.Alarm) error {
	payload := apprisePayload{
		Title:  FormatTitle(alert),
		Body:   FormatBody(alert, trigger),
		Type:   notifyType(alert.Level),
		Format: "text",
	}

	var errs []error
	for _, channel := range n.channels {
		if !channel.Accepts(alert.Level) {
			continue
		}
		if err := n.send(ctx, channel, payload); err != nil {
			n.logger.Error().
				Err(err).
				Str("channel", channel.Name).
				Str("signature", alert.Signature).
				Msg("Failed to send notification")
			errs = append(errs, fmt.Errorf("channel %s: %w", channel.Name, err))
			continue
		}
		n.logger.Info().
			Str("channel", channel.Name).
			Str("signature", alert.Signature).
			Msg("Notification sent")
	}
	return errors.Join(errs...)
}

func (n *Apprise) send(ctx context.Context, channel Channel, payload apprisePayload) error {
	if n.apiURL == "" {
		n.logger.Info().
			Str("channel", channel.Name).
			Str("title", payload.Title).
			Msg("Would send notification (Apprise not configured)")
		return nil
	}

	payload.URLs = channel.URL
	jsonData, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to marshal payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, n.apiURL+"/notify/", bytes.NewReader(jsonData))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := n.client.Do(req)
	if err != nil {
		return fmt.Errorf("failed to send request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return fmt.Errorf("apprise API error: %d - %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}
	return nil
}

// FormatTitle renders the notification headline.
func FormatTitle(alert *types.Alert) string {
	var emoji string
	switch alert.Level {
	case types.AlarmLevelCritical:
		emoji = "🔴"
	case types.AlarmLevelWarning:
		emoji = "⚠️"
	default:
		emoji = "ℹ️"
	}
	return fmt.Sprintf("%s Alert: %s", emoji, alert.Title())
}

// FormatBody renders the notification text for the alarm that opened alert.
func FormatBody(alert *types.Alert, trigger types.Alarm) string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s\n\nSource: %s\nType: %s\nLevel: %s\nStarted: %s\nUntil: %s",
		trigger.Title,
		trigger.Source,
		trigger.Type,
		alert.Level.Label(),
		alert.Start.Format(time.RFC3339),
		alert.End.Format(time.RFC3339))

	keys := make([]string, 0, len(trigger.SourceDetails))
	for k := range trigger.SourceDetails {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		fmt.Fprintf(&b, "\n%s: %s", k, trigger.SourceDetails[k])
	}
	return b.String()
}

func notifyType(level types.AlarmLevel) string {
	switch level {
	case types.AlarmLevelCritical:
		return "failure"
	case types.AlarmLevelWarning:
		return "warning"
	default:
		return "info"
	}
}
