// Package rpcgateway is the concrete client RPC surface: it upgrades
// HTTP connections to websockets, authenticates each client endpoint,
// dispatches wire/RPC frames into a core.Controller, and streams state
// back out. internal/core never imports this package — it only sees
// the Transport/EndpointHealth interfaces it defines.
package rpcgateway

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/industrial-robotics/robotcore/internal/audit"
	"github.com/industrial-robotics/robotcore/internal/core"
	"github.com/industrial-robotics/robotcore/internal/session"
	"github.com/industrial-robotics/robotcore/pkg/protocol"
)

// Server upgrades and serves client RPC connections.
type Server struct {
	controller  *core.Controller
	registry    *session.Registry
	auditor     *audit.Publisher
	logger      *zap.Logger
	upgrader    websocket.Upgrader
	rateLimiter *wireRateLimiter
}

// NewServer builds an RPC gateway over controller, authenticating
// connections against registry and forwarding select events to
// auditor. posHz/velHz bound the position_command/velocity_command
// wire rate per authenticated endpoint.
func NewServer(controller *core.Controller, registry *session.Registry, auditor *audit.Publisher, logger *zap.Logger, posHz, velHz int) *Server {
	return &Server{
		controller:  controller,
		registry:    registry,
		auditor:     auditor,
		logger:      logger,
		upgrader:    websocket.Upgrader{ReadBufferSize: 4096, WriteBufferSize: 4096},
		rateLimiter: newWireRateLimiter(posHz, velHz),
	}
}

// ServeHTTP upgrades the connection and runs its session until it
// disconnects.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Warn("websocket upgrade failed", zap.Error(err))
		return
	}

	sess := &clientSession{
		server: s,
		conn:   conn,
		send:   make(chan any, 16),
		done:   make(chan struct{}),
	}
	sess.run()
}

// clientSession is one authenticated client endpoint's connection: a
// read pump dispatching inbound frames into the controller, and a
// write pump that both drains sess.send and forwards the controller's
// published state wires.
type clientSession struct {
	server     *Server
	conn       *websocket.Conn
	endpointID string
	send       chan any
	done       chan struct{}
}

func (sess *clientSession) run() {
	defer sess.conn.Close()

	if !sess.authenticate() {
		return
	}

	// A trajectory client can legitimately send nothing for the whole
	// motion, so inbound frames alone cannot carry liveness: the write
	// pump pings on an interval and every pong counts as a heartbeat.
	// Pong frames are consumed by the read pump's ReadMessage calls.
	sess.conn.SetPongHandler(func(string) error {
		sess.server.registry.Touch(sess.endpointID)
		return nil
	})

	go sess.writePump()
	sess.readPump()

	close(sess.done)
	sess.server.registry.Forget(sess.endpointID)
	sess.server.rateLimiter.Forget(sess.endpointID)
}

func (sess *clientSession) authenticate() bool {
	var auth protocol.AuthMessage
	if err := sess.conn.ReadJSON(&auth); err != nil {
		return false
	}

	info, err := sess.server.registry.Authenticate(auth.EndpointID, auth.Token)
	if err != nil {
		sess.conn.WriteJSON(protocol.AuthErrMessage{
			Type:   protocol.TypeAuthErr,
			Code:   protocol.ErrInvalidToken,
			Reason: err.Error(),
		})
		return false
	}

	sess.endpointID = info.EndpointID
	robotInfo := sess.server.controller.GetRobotInfo()
	sess.conn.WriteJSON(protocol.AuthOKMessage{
		Type:       protocol.TypeAuthOK,
		EndpointID: info.EndpointID,
		RobotID:    robotInfo.DeviceUUID,
		Scope:      info.Scope,
		ExpiresAt:  info.ExpiresAt.Unix(),
	})
	return true
}

func (sess *clientSession) readPump() {
	for {
		_, raw, err := sess.conn.ReadMessage()
		if err != nil {
			return
		}
		sess.server.registry.Touch(sess.endpointID)
		sess.dispatch(raw)
	}
}

// scopeFor maps an inbound frame type to the capability scope required
// to act on it. Frame types absent from this table (set_command_mode,
// set_speed_ratio, enable) require no scope beyond having
// authenticated.
var scopeFor = map[protocol.MessageType]string{
	protocol.TypePositionCommand:   protocol.ScopePosition,
	protocol.TypeVelocityCommand:   protocol.ScopeVelocity,
	protocol.TypeJogJoint:          protocol.ScopeJog,
	protocol.TypeExecuteTrajectory: protocol.ScopeTrajectory,
	protocol.TypeHalt:              protocol.ScopeEstop,
	protocol.TypeDisable:           protocol.ScopeEstop,
	protocol.TypeResetErrors:       protocol.ScopeEstop,
}

func (sess *clientSession) dispatch(raw []byte) {
	var base protocol.BaseMessage
	if err := json.Unmarshal(raw, &base); err != nil {
		return
	}

	if scope, gated := scopeFor[base.Type]; gated && !sess.server.registry.HasScope(sess.endpointID, scope) {
		return
	}

	switch base.Type {
	case protocol.TypePositionCommand, protocol.TypeVelocityCommand:
		sess.handleWireCommand(base.Type, raw)
	case protocol.TypeJogJoint:
		sess.handleJogJoint(raw)
	case protocol.TypeExecuteTrajectory:
		sess.handleExecuteTrajectory(raw)
	case protocol.TypeSetCommandMode:
		sess.handleSetCommandMode(raw)
	case protocol.TypeSetSpeedRatio:
		sess.handleSetSpeedRatio(raw)
	case protocol.TypeHalt:
		sess.server.controller.Halt()
		sess.server.auditor.Publish(audit.Event{
			EventType:  audit.EventEStop,
			EndpointID: sess.endpointID,
			Timestamp:  time.Now(),
		})
	case protocol.TypeEnable:
		<-sess.server.controller.Enable()
	case protocol.TypeDisable:
		<-sess.server.controller.Disable()
	case protocol.TypeResetErrors:
		<-sess.server.controller.ResetErrors()
	}
}

const pingInterval = time.Second

func (sess *clientSession) writePump() {
	ticker := time.NewTicker(20 * time.Millisecond)
	defer ticker.Stop()
	pinger := time.NewTicker(pingInterval)
	defer pinger.Stop()

	var lastSeqno uint64
	for {
		select {
		case <-sess.done:
			return
		case <-pinger.C:
			sess.conn.WriteMessage(websocket.PingMessage, nil)
		case msg := <-sess.send:
			sess.conn.WriteJSON(msg)
		case sample := <-sess.server.controller.SensorData():
			sess.conn.WriteJSON(protocol.SensorDataMessage{
				Type:          protocol.TypeSensorData,
				StateSeqno:    sample.StateSeqno,
				Timestamp:     sample.Timestamp.UnixMilli(),
				DeviceUUID:    sample.DeviceUUID,
				JointPosition: sample.JointPosition,
				JointVelocity: sample.JointVelocity,
				JointEffort:   sample.JointEffort,
			})
		case <-ticker.C:
			state, ok := sess.server.controller.RobotState()
			if !ok || state.StateSeqno == lastSeqno {
				continue
			}
			lastSeqno = state.StateSeqno
			sess.conn.WriteJSON(protocol.RobotStateMessage{
				Type:            protocol.TypeRobotState,
				StateSeqno:      state.StateSeqno,
				CommandMode:     string(state.CommandMode),
				OperationalMode: state.OperationalMode,
				ControllerState: string(state.ControllerState),
				SpeedRatio:      state.SpeedRatio,
				Flags:           uint32(state.Flags),
			})
			if advanced, ok := sess.server.controller.AdvancedRobotState(); ok {
				sess.conn.WriteJSON(protocol.AdvancedRobotStateMessage{
					Type:                 protocol.TypeAdvancedRobotState,
					JointPositionCommand: advanced.JointPositionCommand,
					JointVelocityCommand: advanced.JointVelocityCommand,
					JointPositionUnits:   unitStrings(advanced.JointPositionUnits),
					JointEffortUnits:     unitStrings(advanced.JointEffortUnits),
					EndpointPose:         posePayloads(advanced.EndpointPose),
					EndpointVelocity:     posePayloads(advanced.EndpointVelocity),
				})
			}
		}
	}
}

func unitStrings(units []core.Unit) []string {
	if units == nil {
		return nil
	}
	out := make([]string, len(units))
	for i, u := range units {
		out[i] = string(u)
	}
	return out
}

func posePayloads(poses []core.Pose) []protocol.PosePayload {
	if poses == nil {
		return nil
	}
	out := make([]protocol.PosePayload, len(poses))
	for i, p := range poses {
		out[i] = protocol.PosePayload{Position: p.Position, Orientation: p.Orientation}
	}
	return out
}
