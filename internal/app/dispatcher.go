package app

import (
	"context"
	"errors"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/dkeye/tablekeeper/internal/core"
	"github.com/dkeye/tablekeeper/internal/domain"
)

// Dispatcher routes a decoded request to the store or coordinator and shapes the reply.
// Every outcome, including unknown commands and panics, comes back as a Response.
type Dispatcher struct {
	Rooms       *core.RoomStore
	Coordinator *Coordinator
}

func NewDispatcher(rooms *core.RoomStore, coord *Coordinator) *Dispatcher {
	return &Dispatcher{Rooms: rooms, Coordinator: coord}
}

func (d *Dispatcher) Handle(ctx context.Context, req Request) (resp Response) {
	logger := zerolog.Ctx(ctx).With().Str("module", "app.dispatcher").Str("command", string(req.Command)).Logger()
	defer func() {
		if r := recover(); r != nil {
			logger.Error().Interface("panic", r).Msg("handler panicked")
			resp = errorResponse(fmt.Errorf("%v", r), "Internal error")
		}
	}()

	switch req.Command {
	case CmdJoin:
		resp = d.join(req)
	case CmdJoinAck:
		resp = d.joinAck(req)
	case CmdList:
		resp = d.list(req)
	case CmdLeave:
		resp = d.leave(req)
	default:
		err := fmt.Errorf("%w: %q", domain.ErrUnknownCommand, req.Command)
		resp = errorResponse(err, fmt.Sprintf("Unknown command %q", req.Command))
	}

	logger.Debug().Str("status", string(resp.Status)).Str("room", req.RoomID).Str("client", req.ClientID).Msg("handled")
	return resp
}

func (d *Dispatcher) join(req Request) Response {
	if req.RoomID == "" || req.ClientID == "" {
		return malformed("JOIN requires room_id and client_id")
	}
	res, err := d.Coordinator.Join(domain.RoomID(req.RoomID), req.ClientID)
	if err != nil {
		r := errorResponse(err, joinErrorMessage(err))
		r.RoomID = req.RoomID
		return r
	}

	resp := Response{RoomID: req.RoomID, Members: res.Ticket.Members}
	switch {
	case res.Created:
		resp.Status, resp.Message = StatusSuccess, "Created new room"
	case res.AlreadyMember:
		resp.Status, resp.Message = StatusSuccess, "Already a member of room"
	case res.Ticket.Outcome == domain.Admitted:
		resp.Status, resp.Message = StatusSuccess, "Joined room"
	default:
		resp.Status, resp.Message = StatusPending, "Waiting for member acknowledgments"
		resp.JoinID = string(res.Ticket.Join.ID)
		resp.Threshold = res.Ticket.Join.Threshold
	}
	return resp
}

func (d *Dispatcher) joinAck(req Request) Response {
	acker := req.Acker()
	if req.JoinID == "" || acker == "" {
		return malformed("JOIN_ACK requires join_id and member_id")
	}
	ticket, err := d.Coordinator.Ack(domain.JoinID(req.JoinID), acker)
	if err != nil {
		r := errorResponse(err, ackErrorMessage(err))
		r.JoinID = req.JoinID
		return r
	}

	resp := Response{
		RoomID:    string(ticket.Join.RoomID),
		JoinID:    req.JoinID,
		Members:   ticket.Members,
		Threshold: ticket.Join.Threshold,
		Acks:      len(ticket.Join.Acks),
	}
	if ticket.Outcome == domain.Admitted {
		resp.Status, resp.Message = StatusSuccess, "Join operation completed"
	} else {
		resp.Status, resp.Message = StatusAckReceived, "Waiting for more acknowledgments"
	}
	return resp
}

func (d *Dispatcher) list(req Request) Response {
	if req.RoomID == "" {
		return malformed("LIST requires room_id")
	}
	return Response{
		Status:  StatusSuccess,
		Message: "Room members",
		RoomID:  req.RoomID,
		Members: d.Rooms.SnapshotMembers(domain.RoomID(req.RoomID)),
	}
}

func (d *Dispatcher) leave(req Request) Response {
	if req.RoomID == "" || req.ClientID == "" {
		return malformed("LEAVE requires room_id and client_id")
	}
	_, err := d.Rooms.RemoveMember(domain.RoomID(req.RoomID), domain.HostnameFor(req.ClientID))
	if err != nil {
		msg := "Not a member of room"
		if errors.Is(err, domain.ErrUnknownRoom) {
			msg = "Room does not exist"
		}
		r := errorResponse(err, msg)
		r.RoomID = req.RoomID
		return r
	}
	return Response{
		Status:  StatusSuccess,
		Message: "Left room",
		RoomID:  req.RoomID,
		Members: d.Rooms.SnapshotMembers(domain.RoomID(req.RoomID)),
	}
}

func joinErrorMessage(err error) string {
	switch {
	case errors.Is(err, domain.ErrRoomBusy):
		return "Room is busy"
	case errors.Is(err, domain.ErrRateLimited):
		return "Too many join attempts, slow down"
	default:
		return "Join failed"
	}
}

func ackErrorMessage(err error) string {
	switch {
	case errors.Is(err, domain.ErrUnknownJoin):
		return "Invalid join operation"
	case errors.Is(err, domain.ErrNotAMember):
		return "Only room members can acknowledge a join"
	default:
		return "Acknowledgment failed"
	}
}

// MalformedResponse is the reply for a payload that could not be decoded.
func MalformedResponse(err error) Response {
	return errorResponse(fmt.Errorf("%w: %v", domain.ErrMalformedRequest, err), "Malformed request")
}

func malformed(msg string) Response {
	return errorResponse(domain.ErrMalformedRequest, msg)
}

func errorResponse(err error, msg string) Response {
	return Response{Status: StatusError, Message: msg, Error: domain.Code(err), Members: []string{}}
}
