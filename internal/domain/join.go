package domain

import "time"

type JoinID string

// PendingJoin tracks an admission attempt waiting for member acks.
// Threshold is fixed when the join begins.
type PendingJoin struct {
	ID          JoinID
	RoomID      RoomID
	CandidateID string
	CreatedAt   time.Time
	Threshold   int
	Acks        map[string]struct{}
}

// Clone returns a copy that shares nothing with the receiver.
func (p *PendingJoin) Clone() PendingJoin {
	out := *p
	out.Acks = make(map[string]struct{}, len(p.Acks))
	for k := range p.Acks {
		out.Acks[k] = struct{}{}
	}
	return out
}

type AckOutcome int

const (
	StillPending AckOutcome = iota
	Admitted
)

func (o AckOutcome) String() string {
	if o == Admitted {
		return "admitted"
	}
	return "still_pending"
}

// Quorum is a strict majority of k existing members.
func Quorum(k int) int {
	if k <= 0 {
		return 0
	}
	return k/2 + 1
}
