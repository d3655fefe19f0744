// Package hwtransport provides core.Transport implementations.
package hwtransport

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/industrial-robotics/robotcore/internal/core"
)

// StubTransport is a no-op robot transport for development and
// integration testing: every send is logged and reported as
// immediately successful.
type StubTransport struct {
	logger *zap.Logger
}

// NewStubTransport creates a new stub transport.
func NewStubTransport(logger *zap.Logger) *StubTransport {
	return &StubTransport{logger: logger}
}

// SendRobotCommand logs the command (no-op for POC).
func (s *StubTransport) SendRobotCommand(now time.Time, posCmd, velCmd []float64) {
	s.logger.Debug("robot command",
		zap.Time("now", now),
		zap.Float64s("pos_cmd", posCmd),
		zap.Float64s("vel_cmd", velCmd))
}

// SendDisable logs the disable request and reports success.
func (s *StubTransport) SendDisable() <-chan error {
	s.logger.Info("disable requested")
	return immediate(nil)
}

// SendEnable logs the enable request and reports success.
func (s *StubTransport) SendEnable() <-chan error {
	s.logger.Info("enable requested")
	return immediate(nil)
}

// SendResetErrors logs the reset-errors request and reports success.
func (s *StubTransport) SendResetErrors() <-chan error {
	s.logger.Info("reset_errors requested")
	return immediate(nil)
}

func immediate(err error) <-chan error {
	ch := make(chan error, 1)
	ch <- err
	return ch
}

// Simulate feeds a steady, healthy feedback stream into controller at
// period until ctx is cancelled: joint vectors held at zero and the
// robot-health channel reporting ready+enabled. Development/integration
// substitute for real hardware telemetry, since nothing else in this
// process ever calls Controller.OnFeedback/OnRobotHealth.
func (s *StubTransport) Simulate(ctx context.Context, controller *core.Controller, jointCount int, period time.Duration) {
	ticker := time.NewTicker(period)
	defer ticker.Stop()

	zeros := make([]float64, jointCount)
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			controller.OnFeedback(zeros, zeros, zeros, nil, nil)
			controller.OnRobotHealth(true, true, true, false, false, core.EstopNone)
		}
	}
}

var _ core.Transport = (*StubTransport)(nil)
