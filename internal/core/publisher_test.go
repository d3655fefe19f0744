package core

import (
	"testing"
	"time"
)

func TestFillStateFlags_CommunicationFailureMasksEverything(t *testing.T) {
	c, _, _ := newTestController(2)
	c.mu.Lock()
	c.state.CommunicationFailure = true
	c.state.Error = true
	c.state.Enabled = true
	c.state.Ready = true
	flags := c.fillStateFlags()
	c.mu.Unlock()

	if flags != FlagCommunicationFailure {
		t.Errorf("expected only communication_failure bit, got %b", flags)
	}
}

func TestFillStateFlags_EstopSourceBits(t *testing.T) {
	cases := []struct {
		source EstopSource
		want   Flags
	}{
		{EstopButton1, FlagEstop | FlagEstopButton1},
		{EstopOther, FlagEstop | FlagEstopOther},
		{EstopFault, FlagEstop | FlagEstopFault},
		{EstopInternal, FlagEstop | FlagEstopInternal},
		{EstopNone, FlagEstop},
	}
	for _, tc := range cases {
		t.Run(string(tc.source), func(t *testing.T) {
			c, _, _ := newTestController(2)
			c.mu.Lock()
			c.state.Stopped = true
			c.state.EstopSource = tc.source
			flags := c.fillStateFlags()
			c.mu.Unlock()

			if flags&(FlagEstop|FlagEstopButton1|FlagEstopOther|FlagEstopFault|FlagEstopInternal) != tc.want {
				t.Errorf("got %b, want estop bits %b", flags, tc.want)
			}
		})
	}
}

func TestFillStateFlags_HomingRequiredWhenNotHomed(t *testing.T) {
	c, _, _ := newTestController(2)
	c.mu.Lock()
	flags := c.fillStateFlags()
	c.mu.Unlock()
	if flags&FlagHomingRequired == 0 {
		t.Error("expected homing_required when not homed")
	}
	if flags&FlagHomed != 0 {
		t.Error("homed and homing_required are mutually exclusive")
	}

	c.mu.Lock()
	c.state.Homed = true
	flags = c.fillStateFlags()
	c.mu.Unlock()
	if flags&FlagHomed == 0 || flags&FlagHomingRequired != 0 {
		t.Error("expected homed without homing_required")
	}
}

func TestBuildStates_DefensiveCopies(t *testing.T) {
	c, clock, _ := newTestController(2)
	feedFeedback(c, 2)

	c.mu.Lock()
	bundle := c.buildStates(clock.Now(), []float64{1, 2}, nil)
	// Mutate the live feedback after the snapshot was built.
	c.feedback.JointPosition[0] = 99
	c.mu.Unlock()

	if bundle.sensor.JointPosition[0] == 99 {
		t.Error("sensor snapshot must not alias the live feedback vector")
	}
	if len(bundle.advanced.JointPositionCommand) != 2 {
		t.Errorf("expected mirrored position command, got %v", bundle.advanced.JointPositionCommand)
	}
	if len(bundle.advanced.JointPositionUnits) != 2 || len(bundle.advanced.JointEffortUnits) != 2 {
		t.Error("expected unit slices sized to the joint count")
	}
	if bundle.sensor.Timestamp.Location() != time.UTC {
		t.Error("sensor timestamp must be UTC")
	}
	if bundle.sensor.DeviceUUID != c.config.DeviceUUID {
		t.Error("sensor header must carry the robot UUID")
	}
}

func TestSensorPipe_DropsOldestUnderBackpressure(t *testing.T) {
	p := newSensorPipe()
	for i := 1; i <= 5; i++ {
		p.publish(RobotStateSensorData{StateSeqno: uint64(i)})
	}

	// Backlog is 3: seqnos 1 and 2 were dropped, 3..5 remain in order.
	want := uint64(3)
	for {
		select {
		case s := <-p.Samples():
			if s.StateSeqno != want {
				t.Fatalf("expected seqno %d, got %d", want, s.StateSeqno)
			}
			want++
		default:
			if want != 6 {
				t.Fatalf("expected backlog drained through seqno 5, stopped at %d", want)
			}
			return
		}
	}
}

func TestLatestValue_OverwritesAndReports(t *testing.T) {
	var w latestValue[RobotState]
	if _, ok := w.get(); ok {
		t.Fatal("expected no value before first publish")
	}
	w.publish(RobotState{StateSeqno: 1})
	w.publish(RobotState{StateSeqno: 2})
	v, ok := w.get()
	if !ok || v.StateSeqno != 2 {
		t.Errorf("expected latest value 2, got %v/%v", v.StateSeqno, ok)
	}
}

func TestTick_StateSeqnoIncrementsByOne(t *testing.T) {
	c, _, _ := newTestController(2)
	feedFeedback(c, 2)

	for i := 1; i <= 5; i++ {
		c.tick()
		state, ok := c.RobotState()
		if !ok {
			t.Fatal("expected a published state")
		}
		if state.StateSeqno != uint64(i) {
			t.Fatalf("tick %d: expected state_seqno %d, got %d", i, i, state.StateSeqno)
		}
	}
}
