package core

import "sync"

// Controller is the robot driver control core: a single mutex-guarded
// state machine plus command multiplexer, driven once per tick by
// ControlLoop. All fields are touched only while mu is held, except
// the publish wires and sensorData pipe, which are themselves
// concurrency-safe.
type Controller struct {
	mu sync.Mutex

	clock  Clock
	config RobotConfig

	transport           Transport
	interpolatorFactory InterpolatorFactory
	endpointHealth      EndpointHealth

	state    ControllerState
	feedback RobotFeedback
	jog      JogState

	wirePos wireCmdState
	wireVel wireCmdState

	trajectory          trajectoryQueue
	trajectoryReporting trajectoryReport

	robotStateWire     latestValue[RobotState]
	advancedStateWire  latestValue[AdvancedRobotState]
	sensorData         *sensorPipe

	haltRequested bool
}

// NewController builds a Controller in its startup state: invalid
// command mode, undefined machine state, no feedback.
func NewController(cfg RobotConfig, transport Transport, factory InterpolatorFactory, health EndpointHealth, clock Clock) *Controller {
	if clock == nil {
		clock = NewSystemClock()
	}
	c := &Controller{
		clock:               clock,
		config:              cfg,
		transport:           transport,
		interpolatorFactory: factory,
		endpointHealth:      health,
		sensorData:          newSensorPipe(),
	}
	c.state.CommandMode = ModeInvalidState
	c.state.Machine = MachineUndefined
	c.state.EstopSource = EstopNone
	c.state.SpeedRatio = 1.0
	return c
}

// RobotState returns the latest published state snapshot, if any.
func (c *Controller) RobotState() (RobotState, bool) {
	return c.robotStateWire.get()
}

// AdvancedRobotState returns the latest published advanced snapshot.
func (c *Controller) AdvancedRobotState() (AdvancedRobotState, bool) {
	return c.advancedStateWire.get()
}

// SensorData exposes the lossy sensor-data stream.
func (c *Controller) SensorData() <-chan RobotStateSensorData {
	return c.sensorData.Samples()
}

// OnFeedback records a new feedback sample from the transport's
// ingress, timestamped by the controller's clock.
func (c *Controller) OnFeedback(jointPos, jointVel, jointEffort []float64, endpointPose, endpointVel []Pose) {
	now := c.clock.Now()
	c.mu.Lock()
	defer c.mu.Unlock()
	c.feedback.JointPosition = jointPos
	c.feedback.JointVelocity = jointVel
	c.feedback.JointEffort = jointEffort
	c.feedback.EndpointPose = endpointPose
	c.feedback.EndpointVelocity = endpointVel
	c.feedback.JointArrival = now
	c.feedback.HealthArrival = now
	c.feedback.EndpointArrival = now
}

// OnRobotHealth records the transport's latest robot-health sample:
// the ready/enabled/homed/stopped/error/estop inputs the feedback
// ingress reports independently of the joint kinematic stream. Any
// concrete Transport calls this as its health channel updates;
// verifyRobotState reads these booleans every tick.
func (c *Controller) OnRobotHealth(ready, enabled, homed, stopped, errored bool, estopSource EstopSource) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.state.Ready = ready
	c.state.Enabled = enabled
	c.state.Homed = homed
	c.state.Stopped = stopped
	c.state.Error = errored
	c.state.EstopSource = estopSource
}

// requestHalt asks the next tick to force command_mode back to halt.
// Used by TrajectoryTask.Abort. It takes the controller lock, so it
// must not be called while that lock is already held.
func (c *Controller) requestHalt() {
	c.mu.Lock()
	c.haltRequested = true
	c.mu.Unlock()
}

// dropTrajectory removes t from the queue if present. If t was active,
// every queued task is cancelled along with it; t itself is not
// re-notified, since the caller (Abort/Close/cancelDueToConnectionLoss)
// already delivered the terminal signal.
func (c *Controller) dropTrajectory(t *TrajectoryTask) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.trajectory.active == t {
		c.trajectory.dropActive()
		return
	}
	c.trajectory.remove(t)
}

// failJogLocked abandons the outstanding jog target as failed.
func (c *Controller) failJogLocked(err error) {
	c.jog.Target = nil
	if c.jog.pending != nil {
		c.jog.pending.notify(taskSignalResult{status: StatusFailed, err: err})
		c.jog.pending = nil
	}
}

// succeedJogLocked reports the outstanding jog target as reached.
func (c *Controller) succeedJogLocked() {
	c.jog.Target = nil
	if c.jog.pending != nil {
		c.jog.pending.notify(taskSignalResult{status: StatusTrajectoryComplete})
		c.jog.pending = nil
	}
}

// applyHaltRequest consumes a pending halt request raised by
// requestHalt, forcing command_mode to halt for this tick's
// verify/fill pass.
func (c *Controller) applyHaltRequest() {
	if c.haltRequested {
		c.haltRequested = false
		c.state.CommandMode = ModeHalt
		c.jog.Target = nil
	}
}
