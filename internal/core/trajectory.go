package core

import (
	"math"
	"sync"
	"time"

	"github.com/google/uuid"
)

// TaskStatus is the status a TrajectoryTask reports to its owning
// client, either from Next() or internally from getSetpoint.
type TaskStatus string

const (
	StatusQueued             TaskStatus = "queued"
	StatusReady              TaskStatus = "ready"
	StatusFirstValidSetpoint TaskStatus = "first_valid_setpoint"
	StatusValidSetpoint      TaskStatus = "valid_setpoint"
	StatusTrajectoryComplete TaskStatus = "trajectory_complete"
	StatusJointTolError      TaskStatus = "joint_tol_error"
	StatusFailed             TaskStatus = "failed"
	StatusEndOfStream        TaskStatus = "end_of_stream"
)

// progressSignal is a single-slot, latest-value mailbox: exactly the
// "wire" semantics from the glossary applied to a one-shot/rearm-per-
// round event instead of a state channel. notify never blocks and
// always leaves the most recent value waiting; wait consumes it or
// times out.
type progressSignal struct {
	ch chan taskSignalResult
}

type taskSignalResult struct {
	status        TaskStatus
	jointPos      []float64
	waypointIndex int
	err           error
}

func newProgressSignal() *progressSignal {
	return &progressSignal{ch: make(chan taskSignalResult, 1)}
}

func (p *progressSignal) notify(r taskSignalResult) {
	select {
	case <-p.ch:
	default:
	}
	p.ch <- r
}

const nextPollTimeout = 5 * time.Second

// TrajectoryTask is one execution of a trajectory: a generator-style
// progress stream owned by a single client endpoint. It behaves as an
// asynchronous iterator with Next/Close/Abort; end-of-stream is a
// distinct status, never an error.
type TrajectoryTask struct {
	mu sync.Mutex

	id               string
	controller       *Controller
	interpolator     Interpolator
	speedRatio       float64
	ownerEndpointID  string
	trajectoryTolRad float64

	queued        bool
	nextCalled    bool
	started       bool
	finished      bool
	aborted       bool
	cancelled     bool
	jointTolError bool
	endOfStream   bool

	startTime     time.Time
	lastStatus    TaskStatus
	lastWaypoint  int

	nextWait  *progressSignal
	queueWait *progressSignal
}

func newTrajectoryTask(c *Controller, interp Interpolator, speedRatio float64, ownerEndpointID string, queued bool) *TrajectoryTask {
	return &TrajectoryTask{
		id:               uuid.NewString(),
		controller:       c,
		interpolator:     interp,
		speedRatio:       speedRatio,
		ownerEndpointID:  ownerEndpointID,
		trajectoryTolRad: c.config.TrajectoryErrorTolRad,
		queued:           queued,
		lastStatus:       StatusReady,
		nextWait:         newProgressSignal(),
		queueWait:        newProgressSignal(),
	}
}

// ID returns this task's server-assigned identity, stable for its
// whole lifetime and suitable for correlating audit events with the
// client-visible RefID of the request that created it.
func (t *TrajectoryTask) ID() string {
	return t.id
}

// Next returns the task's current progress, waiting up to a 5s poll
// window for a state change. Callers are expected to call Next in a
// loop until it reports StatusEndOfStream.
func (t *TrajectoryTask) Next() (TaskStatus, []float64, int, error) {
	t.mu.Lock()
	if t.endOfStream {
		t.mu.Unlock()
		return StatusEndOfStream, nil, 0, nil
	}
	if !t.nextCalled {
		t.nextCalled = true
		if t.queued {
			t.mu.Unlock()
			return StatusQueued, nil, 0, nil
		}
	}
	nextWait, queueWait := t.nextWait, t.queueWait
	t.mu.Unlock()

	var result taskSignalResult
	var ok bool
	select {
	case result = <-nextWait.ch:
		ok = true
	case result = <-queueWait.ch:
		ok = true
	case <-time.After(nextPollTimeout):
		ok = false
	}

	if !ok {
		t.mu.Lock()
		started := t.started
		status := t.lastStatus
		t.mu.Unlock()
		if !started {
			return StatusQueued, nil, 0, nil
		}
		return status, nil, 0, nil
	}

	t.mu.Lock()
	switch result.status {
	case StatusTrajectoryComplete, StatusFailed, StatusJointTolError:
		t.endOfStream = true
	}
	t.mu.Unlock()

	return result.status, result.jointPos, result.waypointIndex, result.err
}

// Abort terminates the task immediately: the parent is asked to flip
// to halt and any pending Next fails with an aborted error.
func (t *TrajectoryTask) Abort() {
	t.mu.Lock()
	if t.finished || t.aborted || t.cancelled {
		t.mu.Unlock()
		return
	}
	t.aborted = true
	t.mu.Unlock()

	t.nextWait.notify(taskSignalResult{status: StatusFailed, err: abortedError("trajectory aborted")})
	t.controller.requestHalt()
	t.controller.dropTrajectory(t)
}

// Close cooperatively cancels the task: it is dropped from active/queue
// and any pending Next fails with an aborted error.
func (t *TrajectoryTask) Close() {
	t.mu.Lock()
	if t.finished || t.aborted || t.cancelled {
		t.mu.Unlock()
		return
	}
	t.cancelled = true
	t.mu.Unlock()

	t.nextWait.notify(taskSignalResult{status: StatusFailed, err: abortedError("trajectory closed")})
	t.controller.dropTrajectory(t)
}

// cancelDueToConnectionLoss is invoked by the liveness watcher.
func (t *TrajectoryTask) cancelDueToConnectionLoss() {
	t.mu.Lock()
	if t.finished || t.aborted || t.cancelled {
		t.mu.Unlock()
		return
	}
	t.cancelled = true
	t.mu.Unlock()

	t.nextWait.notify(taskSignalResult{status: StatusFailed, err: connectionLostError("owning endpoint unreachable")})
	t.controller.dropTrajectory(t)
}

// cancelDueToModeChange handles leaving trajectory mode or flushing the
// queue behind an aborted active task.
func (t *TrajectoryTask) cancelDueToModeChange() {
	t.mu.Lock()
	if t.finished || t.aborted || t.cancelled {
		t.mu.Unlock()
		return
	}
	t.cancelled = true
	t.mu.Unlock()

	t.nextWait.notify(taskSignalResult{status: StatusFailed, err: abortedError("invalid_mode")})
}

// isLive reports whether the task can still be selected by the
// multiplexer.
func (t *TrajectoryTask) isLive() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return !t.finished && !t.aborted && !t.cancelled
}

const (
	livenessPollInterval = 50 * time.Millisecond
	// livenessTimeout is how long the owning endpoint may stay silent
	// before the watcher declares the connection lost. Detection is
	// 50ms-granular via the poll, but an endpoint that merely hasn't
	// sent a frame in one poll interval is not gone; a forgotten
	// (disconnected) endpoint fails IsAlive immediately regardless.
	livenessTimeout = 5 * time.Second
)

// watchLiveness polls the owning client endpoint's health every 50ms
// and cancels the task on connection loss. It exits once the task
// reaches a terminal state, whether from this watcher or from
// getSetpoint/Abort/Close.
func (t *TrajectoryTask) watchLiveness(health EndpointHealth) {
	if health == nil {
		return
	}
	ticker := time.NewTicker(livenessPollInterval)
	defer ticker.Stop()
	for range ticker.C {
		if !t.isLive() {
			return
		}
		if !health.IsAlive(t.ownerEndpointID, livenessTimeout) {
			t.cancelDueToConnectionLoss()
			return
		}
	}
}

// getSetpoint is called once per tick by the command multiplexer while
// the controller lock is held.
func (t *TrajectoryTask) getSetpoint(now time.Time, currentJointPos []float64) (status TaskStatus, posCmd []float64, sendIt bool) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.cancelled || t.aborted {
		return StatusFailed, nil, false
	}

	if !t.nextCalled {
		return StatusReady, nil, false
	}

	firstCall := !t.started
	if firstCall {
		t.started = true
		t.startTime = now
	}

	tSeconds := now.Sub(t.startTime).Seconds()
	jointPos, waypointIdx := t.interpolator.Interpolate(tSeconds)

	for i, p := range jointPos {
		if i >= len(currentJointPos) {
			break
		}
		if math.Abs(p-currentJointPos[i]) > t.trajectoryTolRad {
			t.jointTolError = true
			t.lastStatus = StatusJointTolError
			t.nextWait.notify(taskSignalResult{status: StatusJointTolError, err: failedError("joint tolerance exceeded")})
			return StatusJointTolError, nil, false
		}
	}

	maxTime := t.interpolator.MaxTime()
	if tSeconds > maxTime {
		t.finished = true
		t.lastWaypoint = waypointIdx
		t.lastStatus = StatusTrajectoryComplete
		t.nextWait.notify(taskSignalResult{status: StatusTrajectoryComplete, jointPos: jointPos, waypointIndex: waypointIdx})
		return StatusTrajectoryComplete, jointPos, true
	}

	status = StatusValidSetpoint
	if firstCall {
		status = StatusFirstValidSetpoint
		wasQueued := t.queued
		t.queued = false
		if wasQueued {
			t.queueWait.notify(taskSignalResult{status: status, jointPos: jointPos, waypointIndex: waypointIdx})
		}
	}
	t.lastWaypoint = waypointIdx
	t.lastStatus = status
	t.nextWait.notify(taskSignalResult{status: status, jointPos: jointPos, waypointIndex: waypointIdx})

	return status, jointPos, true
}

// trajectoryQueue holds at most one active task plus a FIFO of queued
// tasks. Cancelling the active task cancels every queued task.
type trajectoryQueue struct {
	active *TrajectoryTask
	queued []*TrajectoryTask
}

func (q *trajectoryQueue) enqueue(t *TrajectoryTask) {
	if q.active == nil {
		q.active = t
		return
	}
	q.queued = append(q.queued, t)
}

func (q *trajectoryQueue) promoteHead() {
	if len(q.queued) == 0 {
		q.active = nil
		return
	}
	next := q.queued[0]
	q.queued = q.queued[1:]
	q.active = next
}

// dropActive removes the active task (without cancelling it; caller
// already dealt with its terminal signal) and flushes the queue.
func (q *trajectoryQueue) dropActive() {
	q.active = nil
	flushed := q.queued
	q.queued = nil
	for _, t := range flushed {
		t.cancelDueToModeChange()
	}
}

// remove drops a specific queued task (e.g. Close() on a not-yet-active
// task), guarding against an absent index rather than assuming it is
// always found.
func (q *trajectoryQueue) remove(t *TrajectoryTask) {
	for i, qt := range q.queued {
		if qt == t {
			q.queued = append(q.queued[:i], q.queued[i+1:]...)
			return
		}
	}
}
