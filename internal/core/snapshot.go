package core

import (
	"time"

	"github.com/dkeye/tablekeeper/internal/domain"
)

// RoomSnapshot is a read-only copy of a room for APIs.
type RoomSnapshot struct {
	ID          domain.RoomID     `json:"room_id"`
	Status      domain.RoomStatus `json:"status"`
	Members     []domain.Member   `json:"members"`
	CreatedAt   time.Time         `json:"created_at"`
	PendingJoin domain.JoinID     `json:"pending_join,omitempty"`
}

// JoinTicket reports where a join stands after BeginJoin or RecordAck.
// Members are the room's labels at that moment.
type JoinTicket struct {
	Join    domain.PendingJoin
	Outcome domain.AckOutcome
	Members []string
}
