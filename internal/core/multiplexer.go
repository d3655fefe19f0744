package core

import (
	"math"
	"time"
)

const ticksPerRevolution = 1 << 20

// convertPosition converts a wire value expressed in unit to radians.
func convertPosition(value float64, unit Unit) (float64, bool) {
	switch unit {
	case UnitImplicit, UnitRadian:
		return value, true
	case UnitDegree:
		return value * math.Pi / 180, true
	case UnitTicksRot:
		return (value / ticksPerRevolution) * 2 * math.Pi, true
	case UnitNanoticksRot:
		return (value / (ticksPerRevolution * 1e9)) * 2 * math.Pi, true
	default:
		return 0, false
	}
}

// convertVelocity converts a wire value expressed in unit to radians
// per second. The same per-unit-time ratios apply as for position.
func convertVelocity(value float64, unit Unit) (float64, bool) {
	switch unit {
	case UnitImplicit, UnitRadianSecond:
		return value, true
	case UnitDegreeSecond:
		return value * math.Pi / 180, true
	case UnitTicksRotSecond:
		return (value / ticksPerRevolution) * 2 * math.Pi, true
	case UnitNanoticksRotSecond:
		return (value / (ticksPerRevolution * 1e9)) * 2 * math.Pi, true
	default:
		return 0, false
	}
}

// fillRobotCommand is the per-tick command source multiplexer. It
// produces at most one of (posCmd, velCmd); all wire/jog/trajectory
// bookkeeping happens here, under the controller lock.
func (c *Controller) fillRobotCommand(now time.Time) (posCmd, velCmd []float64, ok bool) {
	if c.state.CommandMode != ModeTrajectory {
		c.abortActiveTrajectoryLocked(errInvalidModeReason)
	}

	switch c.state.CommandMode {
	case ModeJog:
		return c.fillJogCommand(now)
	case ModePositionCommand:
		return c.fillPositionCommand()
	case ModeVelocityCommand:
		return c.fillVelocityCommand()
	case ModeTrajectory:
		return c.fillTrajectoryCommand(now)
	default: // halt, homing, invalid_state
		return nil, nil, true
	}
}

const errInvalidModeReason = "invalid_mode"

func (c *Controller) fillJogCommand(now time.Time) (posCmd, velCmd []float64, ok bool) {
	js := &c.jog
	if js.Target == nil || now.Sub(js.LastCommandTime) > c.config.JogJointTimeout {
		c.failJogLocked(failedError("jog timed out"))
		return nil, nil, true
	}

	within := true
	for i, target := range js.Target {
		if i >= len(c.feedback.JointPosition) {
			within = false
			break
		}
		if math.Abs(target-c.feedback.JointPosition[i]) > c.config.JogJointTolRad {
			within = false
			break
		}
	}
	if within {
		c.succeedJogLocked()
		return nil, nil, true
	}

	return js.Target, nil, true
}

func (c *Controller) fillPositionCommand() (posCmd, velCmd []float64, ok bool) {
	pending := c.wirePos.pending
	if pending == nil {
		return nil, nil, true
	}
	c.wirePos.pending = nil

	if pending.EndpointID != c.wirePos.endpointID {
		c.wirePos.endpointID = pending.EndpointID
		c.wirePos.lastSeqno = 0
	}

	if !c.acceptWirePayload(&c.wirePos, pending) {
		return nil, nil, true
	}

	converted, accepted := convertVector(pending.Command, pending.Units, convertPosition)
	if !accepted {
		return nil, nil, true
	}

	c.wirePos.lastSeqno = pending.Seqno
	c.wirePos.sentThisTick = true
	return converted, nil, true
}

func (c *Controller) fillVelocityCommand() (posCmd, velCmd []float64, ok bool) {
	pending := c.wireVel.pending
	if pending == nil {
		return nil, nil, true
	}
	c.wireVel.pending = nil

	if pending.EndpointID != c.wireVel.endpointID {
		c.wireVel.endpointID = pending.EndpointID
		c.wireVel.lastSeqno = 0
	}

	if !c.acceptWirePayload(&c.wireVel, pending) {
		return nil, nil, true
	}

	converted, accepted := convertVector(pending.Command, pending.Units, convertVelocity)
	if !accepted {
		return nil, nil, true
	}

	if c.state.SpeedRatio != 1.0 {
		for i := range converted {
			converted[i] *= c.state.SpeedRatio
		}
	}

	c.wireVel.lastSeqno = pending.Seqno
	c.wireVel.sentThisTick = true
	return nil, converted, true
}

// acceptWirePayload applies the silent-rejection rules common to both
// wire directions: stale seqno, stale state_seqno, or wrong length
// drop the payload without surfacing an error.
func (c *Controller) acceptWirePayload(w *wireCmdState, p *WirePayload) bool {
	if p.Seqno <= w.lastSeqno {
		return false
	}
	diff := int64(c.state.StateSeqno) - int64(p.StateSeqno)
	if diff < 0 {
		diff = -diff
	}
	if diff > 10 {
		return false
	}
	if len(p.Command) != c.config.JointCount() {
		return false
	}
	if len(p.Units) != 0 && len(p.Units) != c.config.JointCount() {
		return false
	}
	return true
}

// convertVector converts every component of command using convert,
// defaulting to implicit radians when units is empty.
func convertVector(command []float64, units []Unit, convert func(float64, Unit) (float64, bool)) ([]float64, bool) {
	out := make([]float64, len(command))
	for i, v := range command {
		unit := UnitImplicit
		if len(units) == len(command) {
			unit = units[i]
		}
		converted, ok := convert(v, unit)
		if !ok {
			return nil, false
		}
		out[i] = converted
	}
	return out, true
}

// trajectoryReport carries the multiplexer's trajectory-mode outcome
// for the state publisher (trajectory_running flag).
type trajectoryReport struct {
	running bool
}

func (c *Controller) fillTrajectoryCommand(now time.Time) (posCmd, velCmd []float64, ok bool) {
	active := c.trajectory.active
	if active == nil {
		return nil, nil, true
	}

	status, jointPos, send := active.getSetpoint(now, c.feedback.JointPosition)

	switch status {
	case StatusReady:
		c.trajectoryReporting.running = true
		return nil, nil, true
	case StatusFirstValidSetpoint, StatusValidSetpoint:
		c.trajectoryReporting.running = true
		if send {
			return jointPos, nil, true
		}
		return nil, nil, true
	case StatusTrajectoryComplete:
		c.trajectoryReporting.running = true
		c.trajectory.promoteHead()
		if send {
			return jointPos, nil, true
		}
		return nil, nil, true
	case StatusFailed, StatusJointTolError:
		c.trajectory.dropActive()
		return nil, nil, true
	default:
		return nil, nil, true
	}
}

// abortActiveTrajectoryLocked aborts the active trajectory (if any) and
// flushes the queue, because command_mode left trajectory.
func (c *Controller) abortActiveTrajectoryLocked(reason string) {
	if c.trajectory.active == nil && len(c.trajectory.queued) == 0 {
		return
	}
	active := c.trajectory.active
	queued := c.trajectory.queued
	c.trajectory.active = nil
	c.trajectory.queued = nil

	if active != nil {
		active.cancelDueToModeChange()
	}
	for _, t := range queued {
		t.cancelDueToModeChange()
	}
}
