package app

type Command string

const (
	CmdJoin    Command = "JOIN"
	CmdJoinAck Command = "JOIN_ACK"
	CmdList    Command = "LIST"
	CmdLeave   Command = "LEAVE"
)

// Request is one decoded client record. Which fields matter depends on Command.
type Request struct {
	Command  Command `json:"command"`
	RoomID   string  `json:"room_id,omitempty"`
	ClientID string  `json:"client_id,omitempty"`
	JoinID   string  `json:"join_id,omitempty"`
	MemberID string  `json:"member_id,omitempty"`
}

// Acker is the identity a JOIN_ACK speaks for. Older clients only send client_id.
func (r Request) Acker() string {
	if r.MemberID != "" {
		return r.MemberID
	}
	return r.ClientID
}

type Status string

const (
	StatusSuccess     Status = "success"
	StatusPending     Status = "pending"
	StatusError       Status = "error"
	StatusAckReceived Status = "ack_received"
)

type Response struct {
	Status    Status   `json:"status"`
	Message   string   `json:"message"`
	Error     string   `json:"error,omitempty"`
	RoomID    string   `json:"room_id,omitempty"`
	Members   []string `json:"members"`
	JoinID    string   `json:"join_id,omitempty"`
	Threshold int      `json:"threshold,omitempty"`
	Acks      int      `json:"acks,omitempty"`
}
