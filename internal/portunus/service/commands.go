package service

import (
	"context"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/BrandonDHaskell/Portunus/biometric/internal/portunus/protocol"
	"github.com/BrandonDHaskell/Portunus/biometric/internal/portunus/types"
)

// Result labels for frames that are not access queries.
const (
	ResultTestOK         = "TEST_OK"
	ResultUnknownCommand = "UNKNOWN_COMMAND"
	ResultInvalidFormat  = "INVALID_FORMAT"
)

// Response is what handling one sensor line produced.
type Response struct {
	Command protocol.Command
	// Label is the decision for queries, otherwise one of the Result*
	// constants.
	Label   string
	Granted bool
	// Query is set for QUERY and VERIFY frames only.
	Query *types.QueryResult
	// Reply is the exact line to write back to the sensor.
	Reply string
}

// CommandHandler dispatches decoded sensor frames. Only QUERY and VERIFY
// reach the matcher and the access log.
type CommandHandler struct {
	queries    *QueryService
	heartbeats *HeartbeatService
	log        logrus.FieldLogger
}

func NewCommandHandler(q *QueryService, hb *HeartbeatService, logger logrus.FieldLogger) *CommandHandler {
	return &CommandHandler{queries: q, heartbeats: hb, log: logger}
}

// Handle processes one raw line. ok is false for blank lines, which get
// no reply at all.
func (h *CommandHandler) Handle(ctx context.Context, line string) (resp Response, ok bool) {
	cmd, ok := protocol.Decode(line)
	if !ok {
		return Response{}, false
	}
	resp = Response{Command: cmd}

	if err := cmd.Validate(); err != nil {
		h.log.WithError(err).WithField("fields", cmd.Fields).Warn("ignoring malformed frame")
		resp.Label = ResultInvalidFormat
		resp.Reply = protocol.Reply(false)
		return resp, true
	}

	switch {
	case cmd.Type == protocol.CommandTest:
		if h.heartbeats != nil {
			if err := h.heartbeats.Record(ctx, cmd.ReceivedAt); err != nil {
				h.log.WithError(err).Warn("sensor heartbeat not recorded")
			}
		}
		resp.Label = ResultTestOK
		resp.Granted = true

	case cmd.IsQuery():
		h.log.WithFields(logrus.Fields{"type": cmd.Type, "finger": cmd.Finger}).Debug("processing biometric query")
		res := h.queries.Process(ctx, types.QueryRequest{
			Template:   cmd.Template,
			Finger:     cmd.Finger,
			ReceivedAt: cmd.ReceivedAt.Format(time.RFC3339Nano),
		})
		resp.Query = &res
		resp.Label = string(res.Result)
		resp.Granted = res.AccessGranted

	default:
		h.log.WithField("type", cmd.Token).Warn("unknown command type")
		resp.Label = ResultUnknownCommand
	}

	resp.Reply = protocol.Reply(resp.Granted)
	return resp, true
}
