// Package protocol defines the wire message types exchanged over the
// client RPC surface: authentication, the position/velocity command
// wires, the robot_state/advanced_robot_state wires, the
// robot_state_sensor_data stream, and the jog_joint/execute_trajectory
// RPC calls.
package protocol

// MessageType identifies the type of a gateway frame.
type MessageType string

const (
	TypeAuth    MessageType = "auth"
	TypeAuthOK  MessageType = "auth_ok"
	TypeAuthErr MessageType = "auth_err"

	TypePositionCommand   MessageType = "position_command"
	TypeVelocityCommand   MessageType = "velocity_command"
	TypeJogJoint          MessageType = "jog_joint"
	TypeExecuteTrajectory MessageType = "execute_trajectory"
	TypeSetCommandMode    MessageType = "set_command_mode"
	TypeSetSpeedRatio     MessageType = "set_speed_ratio"
	TypeHalt              MessageType = "halt"
	TypeEnable            MessageType = "enable"
	TypeDisable           MessageType = "disable"
	TypeResetErrors       MessageType = "reset_errors"

	TypeRobotState         MessageType = "robot_state"
	TypeAdvancedRobotState MessageType = "advanced_robot_state"
	TypeSensorData         MessageType = "robot_state_sensor_data"
	TypeTrajectoryProgress MessageType = "trajectory_progress"

	TypeAck   MessageType = "ack"
	TypeError MessageType = "error"
)

// BaseMessage is the common envelope for all frames.
type BaseMessage struct {
	Type MessageType `json:"type"`
}

// AuthMessage authenticates a client endpoint connection.
type AuthMessage struct {
	Type       MessageType `json:"type"`
	EndpointID string      `json:"endpoint_id"`
	Token      string      `json:"token"`
}

// AuthOKMessage confirms successful authentication.
type AuthOKMessage struct {
	Type       MessageType `json:"type"`
	EndpointID string      `json:"endpoint_id"`
	RobotID    string      `json:"robot_id"`
	Scope      []string    `json:"scope"`
	ExpiresAt  int64       `json:"expires_at"`
}

// AuthErrMessage indicates authentication failure.
type AuthErrMessage struct {
	Type   MessageType `json:"type"`
	Code   string      `json:"code"`
	Reason string      `json:"reason"`
}

// Auth error codes.
const (
	ErrInvalidToken      = "INVALID_TOKEN"
	ErrTokenExpired      = "TOKEN_EXPIRED"
	ErrWrongAudience     = "WRONG_AUDIENCE"
	ErrUnknownEndpoint   = "UNKNOWN_ENDPOINT"
	ErrInsufficientScope = "INSUFFICIENT_SCOPE"
)

// WireCommandMessage carries a {seqno, state_seqno, command[N],
// units[0|N]} payload on either the position_command or
// velocity_command wire (Type distinguishes direction).
type WireCommandMessage struct {
	Type       MessageType `json:"type"`
	Seqno      uint64      `json:"seqno"`
	StateSeqno uint64      `json:"state_seqno"`
	Command    []float64   `json:"command"`
	Units      []string    `json:"units,omitempty"`
}

// JogJointMessage requests jog_joint(target, max_vel, relative, wait).
type JogJointMessage struct {
	Type     MessageType `json:"type"`
	RefID    string      `json:"ref_id"`
	Target   []float64   `json:"target"`
	MaxVel   []float64   `json:"max_vel"`
	Relative bool        `json:"relative"`
	Wait     bool        `json:"wait"`
}

// WaypointPayload is one knot of an execute_trajectory request.
type WaypointPayload struct {
	JointPositions []float64 `json:"joint_positions"`
	TimeFromStart  float64   `json:"time_from_start"`
}

// ExecuteTrajectoryMessage requests execute_trajectory(trajectory).
type ExecuteTrajectoryMessage struct {
	Type      MessageType       `json:"type"`
	RefID     string            `json:"ref_id"`
	Waypoints []WaypointPayload `json:"waypoints"`
}

// SetCommandModeMessage requests set_command_mode(v).
type SetCommandModeMessage struct {
	Type        MessageType `json:"type"`
	RefID       string      `json:"ref_id"`
	CommandMode string      `json:"command_mode"`
}

// SetSpeedRatioMessage requests set_speed_ratio(v).
type SetSpeedRatioMessage struct {
	Type       MessageType `json:"type"`
	RefID      string      `json:"ref_id"`
	SpeedRatio float64     `json:"speed_ratio"`
}

// AckMessage acknowledges a request-reply call.
type AckMessage struct {
	Type  MessageType `json:"type"`
	RefID string      `json:"ref_id"`
}

// ErrorMessage reports a CoreError back to the client.
type ErrorMessage struct {
	Type   MessageType `json:"type"`
	RefID  string      `json:"ref_id,omitempty"`
	Kind   string      `json:"kind"`
	Reason string      `json:"reason"`
}

// Error kinds mirror core.Kind.
const (
	ErrKindArgument         = "argument_error"
	ErrKindOperationAborted = "operation_aborted"
	ErrKindOperationFailed  = "operation_failed"
	ErrKindConnectionLost   = "connection_lost"
	ErrKindInvalidState     = "invalid_state"
	ErrRateLimited          = "RATE_LIMITED"
)

// RobotStateMessage mirrors core.RobotState.
type RobotStateMessage struct {
	Type            MessageType `json:"type"`
	StateSeqno      uint64      `json:"state_seqno"`
	CommandMode     string      `json:"command_mode"`
	OperationalMode string      `json:"operational_mode"`
	ControllerState string      `json:"controller_state"`
	SpeedRatio      float64     `json:"speed_ratio"`
	Flags           uint32      `json:"flags"`
}

// PosePayload mirrors core.Pose.
type PosePayload struct {
	Position    [3]float64 `json:"position"`
	Orientation [4]float64 `json:"orientation"`
}

// AdvancedRobotStateMessage mirrors core.AdvancedRobotState.
type AdvancedRobotStateMessage struct {
	Type                 MessageType   `json:"type"`
	JointPositionCommand []float64     `json:"joint_position_command"`
	JointVelocityCommand []float64     `json:"joint_velocity_command"`
	JointPositionUnits   []string      `json:"joint_position_units"`
	JointEffortUnits     []string      `json:"joint_effort_units"`
	EndpointPose         []PosePayload `json:"endpoint_pose"`
	EndpointVelocity     []PosePayload `json:"endpoint_velocity"`
}

// SensorDataMessage mirrors core.RobotStateSensorData.
type SensorDataMessage struct {
	Type          MessageType `json:"type"`
	StateSeqno    uint64      `json:"state_seqno"`
	Timestamp     int64       `json:"timestamp"`
	DeviceUUID    string      `json:"device_uuid"`
	JointPosition []float64   `json:"joint_position"`
	JointVelocity []float64   `json:"joint_velocity"`
	JointEffort   []float64   `json:"joint_effort"`
}

// TrajectoryProgressMessage reports one TrajectoryTask.Next() result.
type TrajectoryProgressMessage struct {
	Type          MessageType `json:"type"`
	RefID         string      `json:"ref_id"`
	Status        string      `json:"status"`
	JointPos      []float64   `json:"joint_pos,omitempty"`
	WaypointIndex int         `json:"waypoint_index,omitempty"`
	Error         string      `json:"error,omitempty"`
}

// Flag bit labels, matching core.Flags bit for bit.
const (
	FlagLabelCommunicationFailure = "communication_failure"
	FlagLabelError                = "error"
	FlagLabelEstop                = "estop"
	FlagLabelEstopButton1         = "estop_button1"
	FlagLabelEstopOther           = "estop_other"
	FlagLabelEstopFault           = "estop_fault"
	FlagLabelEstopInternal        = "estop_internal"
	FlagLabelEnabled              = "enabled"
	FlagLabelReady                = "ready"
	FlagLabelHomed                = "homed"
	FlagLabelHomingRequired       = "homing_required"
	FlagLabelValidPositionCommand = "valid_position_command"
	FlagLabelValidVelocityCommand = "valid_velocity_command"
	FlagLabelTrajectoryRunning    = "trajectory_running"
)

// Scopes for authorization, granted to a client endpoint by its
// capability token.
const (
	ScopeJog        = "teleop:jog"
	ScopePosition   = "teleop:position"
	ScopeVelocity   = "teleop:velocity"
	ScopeTrajectory = "teleop:trajectory"
	ScopeEstop      = "teleop:estop"
)
