package core

import "time"

// CommandMode is the active command source for the multiplexer.
type CommandMode string

const (
	ModeInvalidState     CommandMode = "invalid_state"
	ModeHalt             CommandMode = "halt"
	ModeJog              CommandMode = "jog"
	ModeHoming           CommandMode = "homing"
	ModePositionCommand  CommandMode = "position_command"
	ModeVelocityCommand  CommandMode = "velocity_command"
	ModeTrajectory       CommandMode = "trajectory"
)

// MachineState is the externally reported machine status, published to
// clients as "controller_state".
type MachineState string

const (
	MachineUndefined     MachineState = "undefined"
	MachineMotorOff      MachineState = "motor_off"
	MachineMotorOn       MachineState = "motor_on"
	MachineEmergencyStop MachineState = "emergency_stop"
	MachineGuardStop     MachineState = "guard_stop"
)

// EstopSource identifies what raised an emergency stop.
type EstopSource string

const (
	EstopNone     EstopSource = "none"
	EstopButton1  EstopSource = "button1"
	EstopOther    EstopSource = "other"
	EstopFault    EstopSource = "fault"
	EstopInternal EstopSource = "internal"
)

// RobotConfig is immutable once constructed: joint topology and the
// tolerance/timeout constants the control loop enforces every tick.
type RobotConfig struct {
	JointNames []string
	DeviceUUID string

	JogJointLimitRad      float64
	JogJointTolRad        float64
	TrajectoryErrorTolRad float64
	JogJointTimeout       time.Duration
	CommunicationTimeout  time.Duration
	TickPeriod            time.Duration
}

// JointCount returns N, the number of joints this configuration names.
func (c RobotConfig) JointCount() int {
	return len(c.JointNames)
}

// Pose is a single Cartesian endpoint pose or spatial velocity sample.
// These travel as 0- or 1-length sequences; "none" is a nil/empty
// slice of Pose rather than a distinct type.
type Pose struct {
	Position    [3]float64
	Orientation [4]float64 // quaternion, x/y/z/w
}

// RobotFeedback holds the latest values delivered by the transport's
// feedback ingress. Joint vectors are length N or 0 (0 only while
// communication_failure holds). Mutated only by Controller.OnFeedback
// and cleared by verifyCommunication, always under the controller lock.
type RobotFeedback struct {
	JointPosition []float64
	JointVelocity []float64
	JointEffort   []float64

	EndpointPose     []Pose
	EndpointVelocity []Pose

	JointArrival    time.Time
	HealthArrival   time.Time
	EndpointArrival time.Time
}

// clear empties the feedback vectors, as required while
// communication_failure holds.
func (f *RobotFeedback) clear() {
	f.JointPosition = nil
	f.JointVelocity = nil
	f.JointEffort = nil
	f.EndpointPose = nil
	f.EndpointVelocity = nil
}

// ControllerState is the mutable mode/status record guarded by the
// controller's single lock.
type ControllerState struct {
	CommandMode     CommandMode
	OperationalMode string
	Machine         MachineState

	Homed                bool
	Ready                bool
	Enabled              bool
	Stopped              bool
	Error                bool
	CommunicationFailure bool

	EstopSource EstopSource
	StateSeqno  uint64
	SpeedRatio  float64
}

// JogState tracks the outstanding jog target, if any.
type JogState struct {
	Target          []float64
	LastCommandTime time.Time
	pending         *progressSignal
}

// Unit identifies the encoding of a wire command component.
type Unit string

const (
	UnitImplicit           Unit = ""
	UnitRadian             Unit = "radian"
	UnitDegree             Unit = "degree"
	UnitTicksRot           Unit = "ticks_rot"
	UnitNanoticksRot       Unit = "nanoticks_rot"
	UnitRadianSecond       Unit = "radian_second"
	UnitDegreeSecond       Unit = "degree_second"
	UnitTicksRotSecond     Unit = "ticks_rot_second"
	UnitNanoticksRotSecond Unit = "nanoticks_rot_second"
	UnitNewtonMeter        Unit = "newton_meter"
)

// WirePayload is a single {seqno, state_seqno, command[N], units[0|N]}
// submission received on the position or velocity wire.
type WirePayload struct {
	EndpointID string
	Seqno      uint64
	StateSeqno uint64
	Command    []float64
	Units      []Unit
}

// wireCmdState tracks per-(endpoint, direction) sequencing and holds the
// latest pending payload for that direction (wire semantics: readers
// only ever see the most recent value).
type wireCmdState struct {
	endpointID   string
	lastSeqno    uint64
	sentThisTick bool
	pending      *WirePayload
}

// Flags is the bitmask StatePublisher exposes to clients.
type Flags uint32

const (
	FlagCommunicationFailure Flags = 1 << iota
	FlagError
	FlagEstop
	FlagEstopButton1
	FlagEstopOther
	FlagEstopFault
	FlagEstopInternal
	FlagEnabled
	FlagReady
	FlagHomed
	FlagHomingRequired
	FlagValidPositionCommand
	FlagValidVelocityCommand
	FlagTrajectoryRunning
)
