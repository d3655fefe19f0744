// Package core implements the robot driver control core: the periodic
// control loop, the mode/state machine, the command-source multiplexer,
// the trajectory task lifecycle, and state publishing.
package core

import "time"

// Clock supplies the monotonic time base the control loop schedules
// against. time.Now() already carries a monotonic reading on every
// supported platform, so the default implementation wraps it directly
// rather than tracking a separate epoch.
type Clock interface {
	Now() time.Time
}

type systemClock struct{}

// NewSystemClock returns a Clock backed by time.Now().
func NewSystemClock() Clock {
	return systemClock{}
}

func (systemClock) Now() time.Time {
	return time.Now()
}
