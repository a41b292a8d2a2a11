package core

import (
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/dkeye/tablekeeper/internal/domain"
)

// RoomStore is the single owner of rooms, pending joins and their acks.
// Every method is one short critical section; nothing inside does I/O.
type RoomStore struct {
	mu      sync.Mutex
	rooms   map[domain.RoomID]*domain.Room
	pending map[domain.JoinID]*domain.PendingJoin
	byRoom  map[domain.RoomID]domain.JoinID

	now   func() time.Time
	newID func() domain.JoinID
}

type StoreOption func(*RoomStore)

// WithClock replaces time.Now, mostly for tests.
func WithClock(now func() time.Time) StoreOption {
	return func(s *RoomStore) { s.now = now }
}

// WithIDGenerator replaces the uuid based join token source.
func WithIDGenerator(gen func() domain.JoinID) StoreOption {
	return func(s *RoomStore) { s.newID = gen }
}

func NewRoomStore(opts ...StoreOption) *RoomStore {
	s := &RoomStore{
		rooms:   make(map[domain.RoomID]*domain.Room),
		pending: make(map[domain.JoinID]*domain.PendingJoin),
		byRoom:  make(map[domain.RoomID]domain.JoinID),
		now:     time.Now,
		newID:   func() domain.JoinID { return domain.JoinID(uuid.NewString()) },
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// CreateOrGetRoom creates the room with requester as its only member when it is unseen.
func (s *RoomStore) CreateOrGetRoom(id domain.RoomID, requester string) (bool, RoomSnapshot) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if room, ok := s.rooms[id]; ok {
		return false, s.snapshotLocked(room)
	}
	room := &domain.Room{
		ID:        id,
		Status:    domain.RoomAvailable,
		Members:   []domain.Member{domain.NewMember(requester)},
		CreatedAt: s.now(),
	}
	s.rooms[id] = room
	return true, s.snapshotLocked(room)
}

// SnapshotMembers returns member labels in join order, empty for an unknown room.
func (s *RoomStore) SnapshotMembers(id domain.RoomID) []string {
	s.mu.Lock()
	defer s.mu.Unlock()

	room, ok := s.rooms[id]
	if !ok {
		return []string{}
	}
	return room.Labels()
}

func (s *RoomStore) Room(id domain.RoomID) (RoomSnapshot, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	room, ok := s.rooms[id]
	if !ok {
		return RoomSnapshot{}, false
	}
	return s.snapshotLocked(room), true
}

func (s *RoomStore) Rooms() []RoomSnapshot {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]RoomSnapshot, 0, len(s.rooms))
	for _, room := range s.rooms {
		out = append(out, s.snapshotLocked(room))
	}
	return out
}

// RemoveMember drops the first member listed under label.
// The error tells an unknown room apart from a missing member.
func (s *RoomStore) RemoveMember(id domain.RoomID, label string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	room, ok := s.rooms[id]
	if !ok {
		return false, fmt.Errorf("leave %q: %w", id, domain.ErrUnknownRoom)
	}
	for i, m := range room.Members {
		if m.Hostname == label {
			room.Members = append(room.Members[:i], room.Members[i+1:]...)
			return true, nil
		}
	}
	return false, fmt.Errorf("leave %q as %q: %w", id, label, domain.ErrNotAMember)
}

// BeginJoin flips an available room to busy and opens a pending join for candidate.
// An empty room has nobody to ask, so the candidate is admitted on the spot.
func (s *RoomStore) BeginJoin(id domain.RoomID, candidate string) (JoinTicket, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	room, ok := s.rooms[id]
	if !ok {
		return JoinTicket{}, fmt.Errorf("join %q: %w", id, domain.ErrUnknownRoom)
	}
	if room.Status == domain.RoomBusy {
		return JoinTicket{}, fmt.Errorf("join %q: %w", id, domain.ErrRoomBusy)
	}
	if room.IndexOf(candidate) >= 0 {
		return JoinTicket{}, fmt.Errorf("join %q as %q: %w", id, candidate, domain.ErrAlreadyMember)
	}

	pj := &domain.PendingJoin{
		ID:          s.newID(),
		RoomID:      id,
		CandidateID: candidate,
		CreatedAt:   s.now(),
		Threshold:   domain.Quorum(len(room.Members)),
		Acks:        make(map[string]struct{}),
	}
	if pj.Threshold == 0 {
		room.Members = append(room.Members, domain.NewMember(candidate))
		return JoinTicket{Join: pj.Clone(), Outcome: domain.Admitted, Members: room.Labels()}, nil
	}

	members := room.Labels()
	room.Status = domain.RoomBusy
	s.pending[pj.ID] = pj
	s.byRoom[id] = pj.ID
	return JoinTicket{Join: pj.Clone(), Outcome: domain.StillPending, Members: members}, nil
}

// RecordAck adds acker to the join's ack set. Acking twice counts once.
// Reaching the threshold admits the candidate and deletes the join in the same step.
func (s *RoomStore) RecordAck(joinID domain.JoinID, acker string) (JoinTicket, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	pj, ok := s.pending[joinID]
	if !ok {
		return JoinTicket{}, fmt.Errorf("ack %q: %w", joinID, domain.ErrUnknownJoin)
	}
	room := s.rooms[pj.RoomID]
	if room.IndexOf(acker) < 0 {
		return JoinTicket{}, fmt.Errorf("ack %q from %q: %w", joinID, acker, domain.ErrNotAMember)
	}

	pj.Acks[acker] = struct{}{}
	if len(pj.Acks) < pj.Threshold {
		return JoinTicket{Join: pj.Clone(), Outcome: domain.StillPending, Members: room.Labels()}, nil
	}

	room.Members = append(room.Members, domain.NewMember(pj.CandidateID))
	room.Status = domain.RoomAvailable
	delete(s.pending, joinID)
	delete(s.byRoom, pj.RoomID)
	return JoinTicket{Join: pj.Clone(), Outcome: domain.Admitted, Members: room.Labels()}, nil
}

func (s *RoomStore) Pending(joinID domain.JoinID) (domain.PendingJoin, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	pj, ok := s.pending[joinID]
	if !ok {
		return domain.PendingJoin{}, false
	}
	return pj.Clone(), true
}

// ExpireJoins drops pending joins created before cutoff and frees their rooms.
func (s *RoomStore) ExpireJoins(cutoff time.Time) []domain.PendingJoin {
	s.mu.Lock()
	defer s.mu.Unlock()

	var expired []domain.PendingJoin
	for id, pj := range s.pending {
		if !pj.CreatedAt.Before(cutoff) {
			continue
		}
		if room, ok := s.rooms[pj.RoomID]; ok {
			room.Status = domain.RoomAvailable
		}
		delete(s.pending, id)
		delete(s.byRoom, pj.RoomID)
		expired = append(expired, pj.Clone())
	}
	return expired
}

func (s *RoomStore) snapshotLocked(room *domain.Room) RoomSnapshot {
	snap := RoomSnapshot{
		ID:        room.ID,
		Status:    room.Status,
		Members:   append([]domain.Member(nil), room.Members...),
		CreatedAt: room.CreatedAt,
	}
	if jid, ok := s.byRoom[room.ID]; ok {
		snap.PendingJoin = jid
	}
	return snap
}
