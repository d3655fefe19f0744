package core

import (
	"context"
	"time"
)

// ControlLoop drives one Controller at a fixed tick period using
// absolute-deadline scheduling: each tick's deadline is computed from
// the loop's start time plus an integer multiple of the period, so a
// slow tick shortens (never skips) the next sleep instead of letting
// drift accumulate. Overruns are counted, not escalated.
type ControlLoop struct {
	controller *Controller
	period     time.Duration
	overruns   int
}

// NewControlLoop builds a loop over controller at the configured tick
// period.
func NewControlLoop(controller *Controller) *ControlLoop {
	return &ControlLoop{
		controller: controller,
		period:     controller.config.TickPeriod,
	}
}

// Overruns returns the number of ticks that ran past their deadline.
func (l *ControlLoop) Overruns() int {
	return l.overruns
}

// Run executes ticks until ctx is cancelled.
func (l *ControlLoop) Run(ctx context.Context) {
	start := l.controller.clock.Now()
	deadline := start.Add(l.period)
	tick := 0

	for {
		l.controller.tick()

		tick++
		deadline = start.Add(time.Duration(tick) * l.period)
		now := l.controller.clock.Now()
		sleep := deadline.Sub(now)
		if sleep <= 0 {
			l.overruns++
			sleep = 0
		}

		timer := time.NewTimer(sleep)
		select {
		case <-ctx.Done():
			timer.Stop()
			return
		case <-timer.C:
		}
	}
}

// tick runs exactly one control cycle: verify communication and robot
// state under lock, select a command source, then send the command
// and publish state outside the lock so slow I/O never extends the
// locked section.
func (c *Controller) tick() {
	now := c.clock.Now()

	c.mu.Lock()
	c.applyHaltRequest()

	c.state.StateSeqno++

	// Cleared every tick, not just when the multiplexer runs: a tick
	// that fails verification must not report the previous tick's
	// valid_*_command or trajectory_running flags.
	c.wirePos.sentThisTick = false
	c.wireVel.sentThisTick = false
	c.trajectoryReporting = trajectoryReport{}

	var posCmd, velCmd []float64
	commOK := c.verifyCommunication(now)
	if commOK && c.verifyRobotState(now) {
		posCmd, velCmd, _ = c.fillRobotCommand(now)
	}

	bundle := c.buildStates(now, posCmd, velCmd)
	c.mu.Unlock()

	c.publish(bundle)

	if c.transport != nil && (posCmd != nil || velCmd != nil) {
		c.transport.SendRobotCommand(now, posCmd, velCmd)
	}
}
