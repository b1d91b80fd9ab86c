package alerter

import (
	"errors"
	"fmt"

	"github.com/sentryhome/sentryhome/internal/types"
)

// ErrRejectedAlarm is matched by every RejectedAlarmError.
var ErrRejectedAlarm = errors.New("alarm not alert-worthy")

// RejectedAlarmError is returned for alarms whose level can never become an alert.
type RejectedAlarmError struct {
	Signature string
	Level     types.AlarmLevel
}

func (e *RejectedAlarmError) Error() string {
	return fmt.Sprintf("alarm %s rejected: level %s is not alert-worthy", e.Signature, e.Level)
}

func (e *RejectedAlarmError) Is(target error) bool {
	return target == ErrRejectedAlarm
}
