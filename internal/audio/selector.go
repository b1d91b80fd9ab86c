package audio

import (
	"fmt"
	"sync"

	"github.com/rs/zerolog"
	"github.com/sentryhome/sentryhome/internal/types"
)

// Player plays one cue at a time. Play replaces whatever is playing.
type Player interface {
	Play(cue string) error
	Stop() error
}

// Selector keeps the playing cue in step with the top unacknowledged alert.
type Selector struct {
	cues   map[types.AlarmLevel]string
	player Player
	log    zerolog.Logger

	mu      sync.Mutex
	current string
}

// ParseCues converts a level name to file map as found in configuration.
func ParseCues(raw map[string]string) (map[types.AlarmLevel]string, error) {
	cues := make(map[types.AlarmLevel]string, len(raw))
	for name, file := range raw {
		level, err := types.ParseAlarmLevel(name)
		if err != nil {
			return nil, err
		}
		if !level.AlertWorthy() {
			return nil, fmt.Errorf("no cue can be bound to level %s", level)
		}
		cues[level] = file
	}
	return cues, nil
}

// NewSelector creates a selector driving player.
func NewSelector(cues map[types.AlarmLevel]string, player Player, log zerolog.Logger) *Selector {
	return &Selector{
		cues:   cues,
		player: player,
		log:    log.With().Str("component", "audio").Logger(),
	}
}

// Update selects the cue for top. A nil top, or a level without a cue,
// silences playback. The player is only called when the cue changes.
func (s *Selector) Update(top *types.Alert) {
	cue := ""
	if top != nil {
		cue = s.cues[top.Level]
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if cue == s.current {
		return
	}

	var err error
	if cue == "" {
		err = s.player.Stop()
	} else {
		err = s.player.Play(cue)
	}
	if err != nil {
		s.log.Warn().Err(err).Str("cue", cue).Msg("Audio cue change failed")
		return
	}
	s.current = cue

	if top != nil && cue != "" {
		s.log.Info().
			Str("cue", cue).
			Str("signature", top.Signature).
			Msg("Playing audio cue")
	} else {
		s.log.Info().Msg("Audio cue stopped")
	}
}

// Current returns the cue the selector last started, or "".
func (s *Selector) Current() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.current
}

// LogPlayer stands in for a speaker by logging what would play.
type LogPlayer struct {
	log zerolog.Logger
}

// NewLogPlayer creates a logging player.
func NewLogPlayer(log zerolog.Logger) *LogPlayer {
	return &LogPlayer{log: log.With().Str("component", "audio-player").Logger()}
}

func (p *LogPlayer) Play(cue string) error {
	p.log.Info().Str("cue", cue).Msg("Would play audio cue")
	return nil
}

func (p *LogPlayer) Stop() error {
	p.log.Debug().Msg("Would stop audio cue")
	return nil
}
