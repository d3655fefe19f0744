package core

import (
	"context"
	"errors"
	"testing"
	"time"
)

func isKind(err error, kind Kind) bool {
	var coreErr *CoreError
	return errors.As(err, &coreErr) && coreErr.Kind == kind
}

func TestSetCommandMode_RejectsUnknownMode(t *testing.T) {
	c, _, _ := newTestController(2)
	err := c.SetCommandMode(CommandMode("warp_drive"))
	if !isKind(err, KindArgument) {
		t.Errorf("expected argument error, got %v", err)
	}
}

func TestSetCommandMode_InvalidStateOnlyLeavesToHoming(t *testing.T) {
	c, _, _ := newTestController(2)

	// Not enabled: even homing is rejected.
	if err := c.SetCommandMode(ModeHoming); !isKind(err, KindInvalidState) {
		t.Errorf("expected invalid_state while disabled, got %v", err)
	}
	if err := c.SetCommandMode(ModeJog); !isKind(err, KindInvalidState) {
		t.Errorf("expected invalid_state for jog from invalid_state, got %v", err)
	}

	c.mu.Lock()
	c.state.Enabled = true
	c.mu.Unlock()
	if err := c.SetCommandMode(ModeHoming); err != nil {
		t.Errorf("expected homing to be reachable from invalid_state while enabled, got %v", err)
	}
}

func TestSetCommandMode_RequiresHaltBetweenModes(t *testing.T) {
	c, _, _ := newTestController(2)
	feedFeedback(c, 2)

	if err := c.SetCommandMode(ModeHalt); err != nil {
		t.Fatal(err)
	}
	if err := c.SetCommandMode(ModeJog); err != nil {
		t.Fatal(err)
	}
	// jog -> position_command directly is forbidden.
	if err := c.SetCommandMode(ModePositionCommand); !isKind(err, KindInvalidState) {
		t.Errorf("expected invalid_state for direct mode switch, got %v", err)
	}
	// Passing through halt unlocks it.
	if err := c.SetCommandMode(ModeHalt); err != nil {
		t.Fatal(err)
	}
	if err := c.SetCommandMode(ModePositionCommand); err != nil {
		t.Errorf("expected position_command after halt, got %v", err)
	}
}

func TestSetCommandMode_HaltFromHaltIsIdempotent(t *testing.T) {
	c, _, _ := newTestController(2)
	feedFeedback(c, 2)
	if err := c.SetCommandMode(ModeHalt); err != nil {
		t.Fatal(err)
	}
	if err := c.SetCommandMode(ModeHalt); err != nil {
		t.Errorf("expected halt from halt to succeed, got %v", err)
	}
}

func TestHalt_NoOpInInvalidState(t *testing.T) {
	c, _, _ := newTestController(2)
	c.Halt()
	c.mu.Lock()
	mode := c.state.CommandMode
	c.mu.Unlock()
	if mode != ModeInvalidState {
		t.Errorf("halt in invalid_state must be a no-op, got %s", mode)
	}
}

func TestSetSpeedRatio_Bounds(t *testing.T) {
	c, _, _ := newTestController(2)
	for _, v := range []float64{0.09, 10.01, -1, 0} {
		if err := c.SetSpeedRatio(v); !isKind(err, KindArgument) {
			t.Errorf("expected argument error for %v, got %v", v, err)
		}
	}
	for _, v := range []float64{0.1, 1, 10} {
		if err := c.SetSpeedRatio(v); err != nil {
			t.Errorf("expected %v accepted, got %v", v, err)
		}
		if got := c.GetSpeedRatio(); got != v {
			t.Errorf("expected speed ratio %v, got %v", v, got)
		}
	}
}

func TestJogJoint_RejectsOversizedStep(t *testing.T) {
	c, _, _ := newTestController(2)
	feedFeedback(c, 2)
	if err := c.SetCommandMode(ModeHalt); err != nil {
		t.Fatal(err)
	}
	if err := c.SetCommandMode(ModeJog); err != nil {
		t.Fatal(err)
	}

	// JogJointLimitRad is 1.0 in the test config.
	err := c.JogJoint(context.Background(), []float64{1.5, 0}, []float64{1, 1}, false, false)
	if !isKind(err, KindArgument) {
		t.Errorf("expected argument error for oversized jog, got %v", err)
	}
}

func TestJogJoint_WrongLengthsRejected(t *testing.T) {
	c, _, _ := newTestController(3)
	feedFeedback(c, 3)
	err := c.JogJoint(context.Background(), []float64{0, 0}, []float64{1, 1, 1}, false, false)
	if !isKind(err, KindArgument) {
		t.Errorf("expected argument error for wrong target length, got %v", err)
	}
}

func TestJogJoint_RequiresJogMode(t *testing.T) {
	c, _, _ := newTestController(2)
	feedFeedback(c, 2)
	err := c.JogJoint(context.Background(), []float64{0, 0}, []float64{1, 1}, false, false)
	if !isKind(err, KindInvalidState) {
		t.Errorf("expected invalid_state outside jog mode, got %v", err)
	}
}

func TestJogJoint_RelativeTargetsAddToCurrent(t *testing.T) {
	c, _, _ := newTestController(2)
	feedFeedback(c, 2)
	c.OnFeedback([]float64{0.5, 0.5}, make([]float64, 2), make([]float64, 2), nil, nil)
	if err := c.SetCommandMode(ModeHalt); err != nil {
		t.Fatal(err)
	}
	if err := c.SetCommandMode(ModeJog); err != nil {
		t.Fatal(err)
	}

	if err := c.JogJoint(context.Background(), []float64{0.1, -0.1}, []float64{1, 1}, true, false); err != nil {
		t.Fatal(err)
	}
	c.mu.Lock()
	target := c.jog.Target
	c.mu.Unlock()
	if !almostEqual(target[0], 0.6) || !almostEqual(target[1], 0.4) {
		t.Errorf("expected relative target [0.6 0.4], got %v", target)
	}
}

func TestJogJoint_SupersededJogFailsPriorWaiter(t *testing.T) {
	c, _, _ := newTestController(1)
	feedFeedback(c, 1)
	if err := c.SetCommandMode(ModeHalt); err != nil {
		t.Fatal(err)
	}
	if err := c.SetCommandMode(ModeJog); err != nil {
		t.Fatal(err)
	}

	done := make(chan error, 1)
	started := make(chan struct{})
	go func() {
		close(started)
		done <- c.JogJoint(context.Background(), []float64{0.5}, []float64{1}, false, true)
	}()
	<-started
	// Wait until the first jog's completion is actually pending.
	for {
		c.mu.Lock()
		pending := c.jog.pending != nil
		c.mu.Unlock()
		if pending {
			break
		}
		time.Sleep(time.Millisecond)
	}

	if err := c.JogJoint(context.Background(), []float64{0.4}, []float64{1}, false, false); err != nil {
		t.Fatal(err)
	}

	err := <-done
	if !isKind(err, KindOperationAborted) {
		t.Errorf("expected first jog to fail aborted, got %v", err)
	}
}

func TestExecuteTrajectory_RequiresTrajectoryMode(t *testing.T) {
	c, _, _ := newTestController(1)
	feedFeedback(c, 1)
	traj := Trajectory{Waypoints: []Waypoint{
		{JointPositions: []float64{0}, TimeFromStart: 0},
		{JointPositions: []float64{0}, TimeFromStart: 1},
	}}
	_, err := c.ExecuteTrajectory(context.Background(), traj, 1.0)
	if !isKind(err, KindInvalidState) {
		t.Errorf("expected invalid_state outside trajectory mode, got %v", err)
	}
}

func TestExecuteTrajectory_StartTooFarIsArgumentError(t *testing.T) {
	c, _, _ := newTestController(1)
	feedFeedback(c, 1)
	if err := c.SetCommandMode(ModeHalt); err != nil {
		t.Fatal(err)
	}
	if err := c.SetCommandMode(ModeTrajectory); err != nil {
		t.Fatal(err)
	}

	// Current position is 0; trajectory starts at 1.0, beyond the 0.05
	// tolerance.
	traj := Trajectory{Waypoints: []Waypoint{
		{JointPositions: []float64{1.0}, TimeFromStart: 0},
		{JointPositions: []float64{1.1}, TimeFromStart: 1},
	}}
	_, err := c.ExecuteTrajectory(context.Background(), traj, 1.0)
	if !isKind(err, KindArgument) {
		t.Errorf("expected argument error for distant start, got %v", err)
	}
}

func TestSubmitPositionCommand_ResubmittingSameSeqnoIsNoOp(t *testing.T) {
	c, _, transport := newTestController(2)
	feedFeedback(c, 2)
	if err := c.SetCommandMode(ModeHalt); err != nil {
		t.Fatal(err)
	}
	if err := c.SetCommandMode(ModePositionCommand); err != nil {
		t.Fatal(err)
	}

	payload := WirePayload{EndpointID: "ep-1", Seqno: 1, StateSeqno: 0, Command: []float64{0.1, 0.2}}
	c.SubmitPositionCommand(payload)
	c.tick()
	if transport.sendCalls != 1 {
		t.Fatalf("expected first submission to send, got %d calls", transport.sendCalls)
	}

	// Same seqno again: silently rejected, nothing sent.
	c.SubmitPositionCommand(payload)
	c.OnFeedback(make([]float64, 2), make([]float64, 2), make([]float64, 2), nil, nil)
	c.tick()
	if transport.sendCalls != 1 {
		t.Errorf("expected resubmitted seqno to be dropped, got %d calls", transport.sendCalls)
	}

	state, _ := c.RobotState()
	if state.Flags&FlagValidPositionCommand != 0 {
		t.Error("valid_position_command must clear on a tick with no accepted payload")
	}
}

func TestSubmitPositionCommand_EndpointChangeResetsSeqno(t *testing.T) {
	c, _, transport := newTestController(2)
	feedFeedback(c, 2)
	if err := c.SetCommandMode(ModeHalt); err != nil {
		t.Fatal(err)
	}
	if err := c.SetCommandMode(ModePositionCommand); err != nil {
		t.Fatal(err)
	}

	c.SubmitPositionCommand(WirePayload{EndpointID: "ep-1", Seqno: 7, StateSeqno: 0, Command: []float64{0, 0}})
	c.tick()
	if transport.sendCalls != 1 {
		t.Fatalf("expected first payload accepted, got %d calls", transport.sendCalls)
	}

	// A different endpoint restarts its own seqno space at 1.
	c.OnFeedback(make([]float64, 2), make([]float64, 2), make([]float64, 2), nil, nil)
	c.SubmitPositionCommand(WirePayload{EndpointID: "ep-2", Seqno: 1, StateSeqno: 1, Command: []float64{0, 0}})
	c.tick()
	if transport.sendCalls != 2 {
		t.Errorf("expected new endpoint's seqno 1 accepted, got %d calls", transport.sendCalls)
	}
}

func TestDisableEnableReset_DelegateToTransport(t *testing.T) {
	c, _, _ := newTestController(1)
	if err := <-c.Disable(); err != nil {
		t.Errorf("disable: %v", err)
	}
	if err := <-c.Enable(); err != nil {
		t.Errorf("enable: %v", err)
	}
	if err := <-c.ResetErrors(); err != nil {
		t.Errorf("reset_errors: %v", err)
	}
}

func TestGetRobotInfo_ReturnsConfig(t *testing.T) {
	c, _, _ := newTestController(4)
	info := c.GetRobotInfo()
	if info.JointCount() != 4 {
		t.Errorf("expected 4 joints, got %d", info.JointCount())
	}
	if info.DeviceUUID != "test-device" {
		t.Errorf("unexpected device uuid %q", info.DeviceUUID)
	}
}
