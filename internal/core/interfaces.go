package core

import "time"

// Transport is the concrete hardware/simulator collaborator the core
// drives every tick. Calls are best-effort and non-blocking from the
// core's perspective: the send methods never block the control loop,
// and the lifecycle hooks return a completion channel the caller may
// ignore.
type Transport interface {
	// SendRobotCommand is fire-and-forget; failures are swallowed into
	// a dropped-command sink and the next tick reattempts.
	SendRobotCommand(now time.Time, posCmd, velCmd []float64)
	SendDisable() <-chan error
	SendEnable() <-chan error
	SendResetErrors() <-chan error
}

// Waypoint is one knot of an in-memory trajectory definition.
type Waypoint struct {
	JointPositions []float64
	TimeFromStart  float64 // seconds
}

// Trajectory is the client-submitted path to execute.
type Trajectory struct {
	Waypoints []Waypoint
}

// Interpolator evaluates joint setpoints at time t along a loaded
// trajectory. A fresh instance is built per TrajectoryTask.
type Interpolator interface {
	LoadTrajectory(waypoints []Waypoint, speedRatio float64) error
	Interpolate(t float64) (jointPos []float64, waypointIndex int)
	MaxTime() float64
}

// InterpolatorFactory builds interpolator instances off the control
// loop's critical path, per ExecuteTrajectory step 2.
type InterpolatorFactory interface {
	New() Interpolator
}

// EndpointHealth reports whether a client endpoint is still reachable,
// injected at construction so trajectory liveness watching never
// reaches into global connection state.
type EndpointHealth interface {
	IsAlive(endpointID string, timeout time.Duration) bool
}
