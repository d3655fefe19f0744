package core

import (
	"context"
	"math"
)

// SetCommandMode applies the permitted-transition table: invalid_state
// moves to homing only when enabled and communicating; every other
// transition requires ready and communicating, and every non-halt
// target requires first passing through halt.
func (c *Controller) SetCommandMode(v CommandMode) error {
	switch v {
	case ModeHalt, ModeJog, ModeHoming, ModePositionCommand, ModeVelocityCommand, ModeTrajectory:
	default:
		return argumentError("unknown command mode %q", v)
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	s := &c.state

	if s.CommandMode == ModeInvalidState && v == ModeHoming {
		if !s.Enabled || s.CommunicationFailure {
			return invalidStateError("homing requires enabled and communicating")
		}
		s.CommandMode = ModeHoming
		return nil
	}

	if !s.Ready || s.CommunicationFailure {
		return invalidStateError("controller not ready")
	}

	if v != ModeHalt && s.CommandMode != ModeHalt {
		return invalidStateError("must pass through halt before entering %q", v)
	}

	c.abortActiveTrajectoryLocked(errInvalidModeReason)
	if v == ModeJog {
		c.jog.Target = nil
	}
	s.CommandMode = v
	return nil
}

// JogJoint latches a jog target for the multiplexer to drive toward.
// With wait=true, it blocks until the target is reached, the jog
// times out, or ctx is cancelled.
func (c *Controller) JogJoint(ctx context.Context, target, maxVel []float64, relative bool, wait bool) error {
	n := c.config.JointCount()
	if len(target) != n || len(maxVel) != n {
		return argumentError("target/max_vel must have length %d", n)
	}

	c.mu.Lock()
	if c.state.CommandMode != ModeJog {
		c.mu.Unlock()
		return invalidStateError("jog_joint requires command_mode=jog")
	}
	if !c.state.Ready {
		c.mu.Unlock()
		return invalidStateError("controller not ready")
	}
	if len(c.feedback.JointPosition) != n {
		c.mu.Unlock()
		return invalidStateError("feedback not available")
	}

	absTarget := make([]float64, n)
	for i := range target {
		t := target[i]
		if relative {
			t += c.feedback.JointPosition[i]
		}
		if math.Abs(t-c.feedback.JointPosition[i]) > c.config.JogJointLimitRad {
			c.mu.Unlock()
			return argumentError("joint %d target exceeds jog limit", i)
		}
		absTarget[i] = t
	}

	if c.jog.pending != nil {
		c.jog.pending.notify(taskSignalResult{status: StatusFailed, err: abortedError("superseded by new jog_joint")})
	}

	c.jog.Target = absTarget
	c.jog.LastCommandTime = c.clock.Now()

	if !wait {
		c.jog.pending = nil
		c.mu.Unlock()
		return nil
	}

	signal := newProgressSignal()
	c.jog.pending = signal
	c.mu.Unlock()

	select {
	case result := <-signal.ch:
		return result.err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// ExecuteTrajectory installs traj as the active trajectory task (or
// appends it to the queue if one is already running), after an
// off-lock interpolator build and start-pose tolerance check.
func (c *Controller) ExecuteTrajectory(ctx context.Context, traj Trajectory, speedRatioOverride float64) (*TrajectoryTask, error) {
	c.mu.Lock()
	if c.state.CommandMode != ModeTrajectory {
		c.mu.Unlock()
		return nil, invalidStateError("execute_trajectory requires command_mode=trajectory")
	}
	speedRatio := c.state.SpeedRatio
	if speedRatioOverride > 0 {
		speedRatio = speedRatioOverride
	}
	currentJointPos := copyVector(c.feedback.JointPosition)
	c.mu.Unlock()

	interp := c.interpolatorFactory.New()
	if err := interp.LoadTrajectory(traj.Waypoints, speedRatio); err != nil {
		return nil, failedError("load trajectory: %v", err)
	}

	startPos, _ := interp.Interpolate(0)
	for i, p := range startPos {
		if i >= len(currentJointPos) {
			break
		}
		if math.Abs(p-currentJointPos[i]) > c.config.TrajectoryErrorTolRad {
			return nil, argumentError("joint %d start deviates from current position", i)
		}
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state.CommandMode != ModeTrajectory {
		return nil, invalidStateError("command_mode changed during trajectory setup")
	}

	queued := c.trajectory.active != nil
	endpointID, _ := endpointFromContext(ctx)
	task := newTrajectoryTask(c, interp, speedRatio, endpointID, queued)
	c.trajectory.enqueue(task)
	go task.watchLiveness(c.endpointHealth)
	return task, nil
}

type endpointIDKey struct{}

// WithEndpointID attaches the calling client's endpoint id to ctx, so
// ExecuteTrajectory can record trajectory ownership for the liveness
// watcher.
func WithEndpointID(ctx context.Context, endpointID string) context.Context {
	return context.WithValue(ctx, endpointIDKey{}, endpointID)
}

func endpointFromContext(ctx context.Context) (string, bool) {
	v, ok := ctx.Value(endpointIDKey{}).(string)
	return v, ok
}

// Disable delegates to the transport's disable hook.
func (c *Controller) Disable() <-chan error {
	return c.transport.SendDisable()
}

// Enable delegates to the transport's enable hook.
func (c *Controller) Enable() <-chan error {
	return c.transport.SendEnable()
}

// ResetErrors delegates to the transport's reset hook.
func (c *Controller) ResetErrors() <-chan error {
	return c.transport.SendResetErrors()
}

// Halt forces command_mode to halt, unless the controller is in
// invalid_state (where halt is meaningless).
func (c *Controller) Halt() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state.CommandMode == ModeInvalidState {
		return
	}
	c.abortActiveTrajectoryLocked(errInvalidModeReason)
	c.state.CommandMode = ModeHalt
	c.jog.Target = nil
}

// GetSpeedRatio returns the current speed_ratio.
func (c *Controller) GetSpeedRatio() float64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state.SpeedRatio
}

// SetSpeedRatio sets speed_ratio, rejecting values outside [0.1, 10.0].
func (c *Controller) SetSpeedRatio(v float64) error {
	if v < 0.1 || v > 10.0 {
		return argumentError("speed_ratio must be in [0.1, 10.0], got %v", v)
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.state.SpeedRatio = v
	return nil
}

// GetRobotInfo returns the immutable robot configuration.
func (c *Controller) GetRobotInfo() RobotConfig {
	return c.config
}

// SubmitPositionCommand latches payload as the pending position-wire
// submission for the next tick. Acceptance (seqno/state_seqno/length
// checks) happens inside fillPositionCommand under the lock; a
// rejected payload is silently dropped, matching the wire's silent-
// rejection semantics.
func (c *Controller) SubmitPositionCommand(payload WirePayload) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.wirePos.pending = &payload
}

// SubmitVelocityCommand latches payload as the pending velocity-wire
// submission for the next tick.
func (c *Controller) SubmitVelocityCommand(payload WirePayload) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.wireVel.pending = &payload
}
