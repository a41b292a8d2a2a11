package domain

import "errors"

var (
	ErrRoomBusy         = errors.New("room is busy")
	ErrUnknownJoin      = errors.New("invalid join operation")
	ErrNotAMember       = errors.New("not a member")
	ErrUnknownRoom      = errors.New("room does not exist")
	ErrUnknownCommand   = errors.New("unknown command")
	ErrMalformedRequest = errors.New("malformed request")
	ErrRateLimited      = errors.New("too many join attempts")
	ErrAlreadyMember    = errors.New("already a member")
)

// Code maps an error to the short code sent to clients.
func Code(err error) string {
	switch {
	case errors.Is(err, ErrRoomBusy):
		return "room_busy"
	case errors.Is(err, ErrUnknownJoin):
		return "unknown_join"
	case errors.Is(err, ErrNotAMember):
		return "not_a_member"
	case errors.Is(err, ErrUnknownRoom):
		return "unknown_room"
	case errors.Is(err, ErrUnknownCommand):
		return "unknown_command"
	case errors.Is(err, ErrMalformedRequest):
		return "malformed_request"
	case errors.Is(err, ErrRateLimited):
		return "rate_limited"
	case errors.Is(err, ErrAlreadyMember):
		return "already_member"
	default:
		return "internal"
	}
}
