package security

import (
	"errors"
	"fmt"
	"sync/atomic"

	"github.com/sentryhome/sentryhome/internal/types"
)

// ErrNotSettable is returned when asked to switch to a level that cannot be
// the current operating mode.
var ErrNotSettable = errors.New("security level cannot be set")

// State owns the current security level. Reads never block.
type State struct {
	level atomic.Int32
}

// NewState starts in initial.
func NewState(initial types.SecurityLevel) (*State, error) {
	s := &State{}
	if _, err := s.Set(initial); err != nil {
		return nil, err
	}
	return s, nil
}

// Current returns the current security level.
func (s *State) Current() types.SecurityLevel {
	return types.SecurityLevel(s.level.Load())
}

// Set switches to level and returns the previous level and whether it changed.
func (s *State) Set(level types.SecurityLevel) (previous types.SecurityLevel, err error) {
	if !level.Settable() {
		return s.Current(), fmt.Errorf("%w: %s", ErrNotSettable, level)
	}
	return types.SecurityLevel(s.level.Swap(int32(level))), nil
}
