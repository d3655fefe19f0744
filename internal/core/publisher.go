package core

import (
	"sync"
	"time"
)

// RobotState is the latest-value snapshot published to clients.
type RobotState struct {
	StateSeqno      uint64
	CommandMode     CommandMode
	OperationalMode string
	ControllerState MachineState
	SpeedRatio      float64
	Flags           Flags
}

// AdvancedRobotState carries the richer per-tick snapshot: commanded
// values and endpoint kinematics.
type AdvancedRobotState struct {
	JointPositionCommand []float64
	JointVelocityCommand []float64
	JointPositionUnits   []Unit
	JointEffortUnits     []Unit
	EndpointPose         []Pose
	EndpointVelocity     []Pose
}

// RobotStateSensorData is the streamed, lossy sensor-data sample.
type RobotStateSensorData struct {
	StateSeqno    uint64
	Timestamp     time.Time
	DeviceUUID    string
	JointPosition []float64
	JointVelocity []float64
	JointEffort   []float64
}

// latestValue is a latest-value "wire": readers only ever see the most
// recent published value, and a publish never blocks.
type latestValue[T any] struct {
	mu  sync.RWMutex
	val T
	set bool
}

func (w *latestValue[T]) publish(v T) {
	w.mu.Lock()
	w.val = v
	w.set = true
	w.mu.Unlock()
}

func (w *latestValue[T]) get() (T, bool) {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.val, w.set
}

// sensorPipe is the lossy streaming "pipe" for sensor data with a
// bounded backlog: once full, the oldest queued sample is dropped to
// make room for the newest.
type sensorPipe struct {
	ch chan RobotStateSensorData
}

const sensorPipeBacklog = 3

func newSensorPipe() *sensorPipe {
	return &sensorPipe{ch: make(chan RobotStateSensorData, sensorPipeBacklog)}
}

func (p *sensorPipe) publish(sample RobotStateSensorData) {
	for {
		select {
		case p.ch <- sample:
			return
		default:
		}
		select {
		case <-p.ch:
		default:
		}
	}
}

// Samples exposes the sensor-data stream for a reader (e.g. rpcgateway).
func (p *sensorPipe) Samples() <-chan RobotStateSensorData {
	return p.ch
}

// fillStateFlags builds the flag bitmask. If communication has failed,
// only that bit is set.
func (c *Controller) fillStateFlags() Flags {
	s := &c.state
	if s.CommunicationFailure {
		return FlagCommunicationFailure
	}

	var f Flags
	if s.Error {
		f |= FlagError
	}
	if s.Stopped {
		f |= FlagEstop
		switch s.EstopSource {
		case EstopButton1:
			f |= FlagEstopButton1
		case EstopOther:
			f |= FlagEstopOther
		case EstopFault:
			f |= FlagEstopFault
		case EstopInternal:
			f |= FlagEstopInternal
		}
	}
	if s.Enabled {
		f |= FlagEnabled
	}
	if s.Ready {
		f |= FlagReady
	}
	if s.Homed {
		f |= FlagHomed
	} else {
		f |= FlagHomingRequired
	}
	if c.wirePos.sentThisTick {
		f |= FlagValidPositionCommand
	}
	if c.wireVel.sentThisTick {
		f |= FlagValidVelocityCommand
	}
	if c.trajectoryReporting.running {
		f |= FlagTrajectoryRunning
	}
	return f
}

// snapshotBundle is the set of values buildStates reads under the
// controller lock. Publishing it is lock-free, so the caller can
// release the lock first and publish afterward.
type snapshotBundle struct {
	state    RobotState
	advanced AdvancedRobotState
	sensor   RobotStateSensorData
}

// buildStates assembles the three state snapshots. Defensive copies
// are taken so publication can safely happen outside the controller
// lock.
func (c *Controller) buildStates(now time.Time, sentPos, sentVel []float64) snapshotBundle {
	flags := c.fillStateFlags()

	state := RobotState{
		StateSeqno:      c.state.StateSeqno,
		CommandMode:     c.state.CommandMode,
		OperationalMode: c.state.OperationalMode,
		ControllerState: c.state.Machine,
		SpeedRatio:      c.state.SpeedRatio,
		Flags:           flags,
	}

	// Command fields mirror this tick's sent command; unit slices carry
	// one entry per configured joint.
	advanced := AdvancedRobotState{
		JointPositionCommand: copyVector(sentPos),
		JointVelocityCommand: copyVector(sentVel),
		JointPositionUnits:   uniformUnits(c.config.JointCount(), UnitRadian),
		JointEffortUnits:     uniformUnits(c.config.JointCount(), UnitNewtonMeter),
		EndpointPose:         copyPoses(c.feedback.EndpointPose),
		EndpointVelocity:     copyPoses(c.feedback.EndpointVelocity),
	}

	sensor := RobotStateSensorData{
		StateSeqno:    c.state.StateSeqno,
		Timestamp:     now.UTC(),
		DeviceUUID:    c.config.DeviceUUID,
		JointPosition: copyVector(c.feedback.JointPosition),
		JointVelocity: copyVector(c.feedback.JointVelocity),
		JointEffort:   copyVector(c.feedback.JointEffort),
	}

	return snapshotBundle{state: state, advanced: advanced, sensor: sensor}
}

// publish pushes a previously built bundle onto the wires. Safe to
// call without the controller lock held.
func (c *Controller) publish(b snapshotBundle) {
	c.robotStateWire.publish(b.state)
	c.advancedStateWire.publish(b.advanced)
	c.sensorData.publish(b.sensor)
}

func copyVector(v []float64) []float64 {
	if v == nil {
		return nil
	}
	out := make([]float64, len(v))
	copy(out, v)
	return out
}

func copyPoses(v []Pose) []Pose {
	if v == nil {
		return nil
	}
	out := make([]Pose, len(v))
	copy(out, v)
	return out
}

// uniformUnits builds a length-n slice of the same unit, one entry per
// joint.
func uniformUnits(n int, unit Unit) []Unit {
	out := make([]Unit, n)
	for i := range out {
		out[i] = unit
	}
	return out
}
