package core

import "time"

// verifyCommunication checks the three feedback arrival timestamps
// against the configured communication timeout. Any stale channel
// means the transport link is gone: feedback is cleared and the
// controller drops to invalid_state until fresh samples arrive.
func (c *Controller) verifyCommunication(now time.Time) bool {
	timeout := c.config.CommunicationTimeout
	stale := now.Sub(c.feedback.JointArrival) > timeout ||
		now.Sub(c.feedback.HealthArrival) > timeout ||
		now.Sub(c.feedback.EndpointArrival) > timeout

	if stale {
		c.state.CommunicationFailure = true
		c.state.CommandMode = ModeInvalidState
		c.state.OperationalMode = ""
		// Reported machine state stays meaningful during the outage:
		// estop and fault conditions latched before the link dropped
		// keep being published, everything else reads motor_off.
		switch {
		case c.state.Stopped:
			c.state.Machine = MachineEmergencyStop
		case c.state.Error:
			c.state.Machine = MachineGuardStop
		default:
			c.state.Machine = MachineMotorOff
		}
		c.feedback.clear()
		return false
	}

	c.state.CommunicationFailure = false
	return true
}

// verifyRobotState applies the readiness policy table, updating
// Machine and CommandMode and reporting whether the tick may proceed
// to command selection.
func (c *Controller) verifyRobotState(now time.Time) bool {
	s := &c.state

	switch {
	case s.CommandMode == ModeHoming && s.Enabled && !s.Error && !s.CommunicationFailure:
		s.Machine = MachineMotorOff
		return true

	case !s.Ready || s.CommunicationFailure:
		switch {
		case s.Stopped:
			s.Machine = MachineEmergencyStop
		case s.Error:
			s.Machine = MachineGuardStop
		default:
			s.Machine = MachineMotorOff
		}
		s.CommandMode = ModeInvalidState
		return false

	case !s.Enabled:
		s.Machine = MachineMotorOff
		s.CommandMode = ModeInvalidState
		return false

	default:
		if s.CommandMode == ModeInvalidState {
			s.CommandMode = ModeHalt
		}
		s.Machine = MachineMotorOn
		return true
	}
}
