package hwtransport

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/industrial-robotics/robotcore/internal/core"
)

type fakeInterpolator struct{}

func (fakeInterpolator) LoadTrajectory([]core.Waypoint, float64) error { return nil }
func (fakeInterpolator) Interpolate(float64) ([]float64, int)         { return nil, 0 }
func (fakeInterpolator) MaxTime() float64                             { return 0 }

type fakeFactory struct{}

func (fakeFactory) New() core.Interpolator { return fakeInterpolator{} }

type fakeHealth struct{}

func (fakeHealth) IsAlive(string, time.Duration) bool { return true }

func TestStubTransport_SimulateDrivesControllerReady(t *testing.T) {
	cfg := core.RobotConfig{
		JointNames:            []string{"j1", "j2"},
		DeviceUUID:            "dev-1",
		JogJointLimitRad:      1,
		JogJointTolRad:        0.01,
		TrajectoryErrorTolRad: 0.05,
		JogJointTimeout:       5 * time.Second,
		CommunicationTimeout:  250 * time.Millisecond,
		TickPeriod:            10 * time.Millisecond,
	}

	s := NewStubTransport(zap.NewNop())
	controller := core.NewController(cfg, s, fakeFactory{}, fakeHealth{}, nil)
	loop := core.NewControlLoop(controller)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go s.Simulate(ctx, controller, 2, 5*time.Millisecond)
	go loop.Run(ctx)

	require.Eventually(t, func() bool {
		state, ok := controller.RobotState()
		return ok && state.ControllerState == core.MachineMotorOn
	}, time.Second, 5*time.Millisecond, "controller never reached motor_on via simulated health feed")
}
