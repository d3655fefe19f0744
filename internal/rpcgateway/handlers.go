package rpcgateway

import (
	"context"
	"encoding/json"
	"time"

	"github.com/industrial-robotics/robotcore/internal/audit"
	"github.com/industrial-robotics/robotcore/internal/core"
	"github.com/industrial-robotics/robotcore/pkg/protocol"
)

func (sess *clientSession) handleWireCommand(msgType protocol.MessageType, raw []byte) {
	if !sess.server.rateLimiter.Allow(sess.endpointID, msgType) {
		select {
		case sess.send <- protocol.ErrorMessage{Type: protocol.TypeError, Kind: protocol.ErrRateLimited, Reason: "wire command rate exceeded"}:
		default:
		}
		return
	}

	var msg protocol.WireCommandMessage
	if err := json.Unmarshal(raw, &msg); err != nil {
		return
	}

	units := make([]core.Unit, len(msg.Units))
	for i, u := range msg.Units {
		units[i] = core.Unit(u)
	}

	payload := core.WirePayload{
		EndpointID: sess.endpointID,
		Seqno:      msg.Seqno,
		StateSeqno: msg.StateSeqno,
		Command:    msg.Command,
		Units:      units,
	}

	if msgType == protocol.TypePositionCommand {
		sess.server.controller.SubmitPositionCommand(payload)
	} else {
		sess.server.controller.SubmitVelocityCommand(payload)
	}
}

func (sess *clientSession) handleJogJoint(raw []byte) {
	var msg protocol.JogJointMessage
	if err := json.Unmarshal(raw, &msg); err != nil {
		return
	}

	reply := func(err error) {
		if err != nil {
			sess.send <- errorMessage(msg.RefID, err)
			return
		}
		sess.send <- protocol.AckMessage{Type: protocol.TypeAck, RefID: msg.RefID}
	}

	if !msg.Wait {
		err := sess.server.controller.JogJoint(context.Background(), msg.Target, msg.MaxVel, msg.Relative, false)
		reply(err)
		return
	}

	go func() {
		err := sess.server.controller.JogJoint(context.Background(), msg.Target, msg.MaxVel, msg.Relative, true)
		reply(err)
	}()
}

func (sess *clientSession) handleExecuteTrajectory(raw []byte) {
	var msg protocol.ExecuteTrajectoryMessage
	if err := json.Unmarshal(raw, &msg); err != nil {
		return
	}

	waypoints := make([]core.Waypoint, len(msg.Waypoints))
	for i, w := range msg.Waypoints {
		waypoints[i] = core.Waypoint{JointPositions: w.JointPositions, TimeFromStart: w.TimeFromStart}
	}

	ctx := core.WithEndpointID(context.Background(), sess.endpointID)
	task, err := sess.server.controller.ExecuteTrajectory(ctx, core.Trajectory{Waypoints: waypoints}, 0)
	if err != nil {
		sess.send <- errorMessage(msg.RefID, err)
		return
	}

	go sess.streamTrajectoryProgress(msg.RefID, task)
}

func (sess *clientSession) streamTrajectoryProgress(refID string, task *core.TrajectoryTask) {
	for {
		status, jointPos, waypointIdx, err := task.Next()
		progress := protocol.TrajectoryProgressMessage{
			Type:          protocol.TypeTrajectoryProgress,
			RefID:         refID,
			Status:        string(status),
			JointPos:      jointPos,
			WaypointIndex: waypointIdx,
		}
		if err != nil {
			progress.Error = err.Error()
		}

		switch status {
		case core.StatusTrajectoryComplete:
			sess.auditTrajectoryOutcome(task.ID(), audit.EventTrajectoryDone, "")
		case core.StatusFailed, core.StatusJointTolError:
			sess.auditTrajectoryOutcome(task.ID(), audit.EventTrajectoryAborted, progress.Error)
		}

		select {
		case sess.send <- progress:
		case <-sess.done:
			return
		}

		if status == core.StatusEndOfStream {
			return
		}
	}
}

func (sess *clientSession) auditTrajectoryOutcome(taskID string, eventType audit.EventType, reason string) {
	meta := map[string]string{"task_id": taskID}
	if reason != "" {
		meta["reason"] = reason
	}
	sess.server.auditor.Publish(audit.Event{
		EventType:  eventType,
		EndpointID: sess.endpointID,
		Timestamp:  time.Now(),
		Metadata:   meta,
	})
}

func (sess *clientSession) handleSetCommandMode(raw []byte) {
	var msg protocol.SetCommandModeMessage
	if err := json.Unmarshal(raw, &msg); err != nil {
		return
	}
	err := sess.server.controller.SetCommandMode(core.CommandMode(msg.CommandMode))
	if err != nil {
		sess.send <- errorMessage(msg.RefID, err)
		return
	}
	sess.server.auditor.Publish(audit.Event{
		EventType:  audit.EventModeChanged,
		EndpointID: sess.endpointID,
		Timestamp:  time.Now(),
		Metadata:   map[string]string{"command_mode": msg.CommandMode},
	})
	sess.send <- protocol.AckMessage{Type: protocol.TypeAck, RefID: msg.RefID}
}

func (sess *clientSession) handleSetSpeedRatio(raw []byte) {
	var msg protocol.SetSpeedRatioMessage
	if err := json.Unmarshal(raw, &msg); err != nil {
		return
	}
	err := sess.server.controller.SetSpeedRatio(msg.SpeedRatio)
	if err != nil {
		sess.send <- errorMessage(msg.RefID, err)
		return
	}
	sess.send <- protocol.AckMessage{Type: protocol.TypeAck, RefID: msg.RefID}
}

func errorMessage(refID string, err error) protocol.ErrorMessage {
	kind := "operation_failed"
	if ce, ok := err.(*core.CoreError); ok {
		kind = string(ce.Kind)
	}
	return protocol.ErrorMessage{
		Type:   protocol.TypeError,
		RefID:  refID,
		Kind:   kind,
		Reason: err.Error(),
	}
}
