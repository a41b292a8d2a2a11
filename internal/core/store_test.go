package core

import (
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dkeye/tablekeeper/internal/domain"
)

// seedRoom builds a room holding members in order, admitting each through the ack path.
func seedRoom(t *testing.T, s *RoomStore, id domain.RoomID, members ...string) {
	t.Helper()
	require.NotEmpty(t, members)
	created, _ := s.CreateOrGetRoom(id, members[0])
	require.True(t, created)
	for i, m := range members[1:] {
		ticket, err := s.BeginJoin(id, m)
		require.NoError(t, err)
		for _, acker := range members[:i+1] {
			ticket, err = s.RecordAck(ticket.Join.ID, acker)
			require.NoError(t, err)
			if ticket.Outcome == domain.Admitted {
				break
			}
		}
		require.Equal(t, domain.Admitted, ticket.Outcome)
	}
}

func TestCreateOrGetRoom_FirstJoinCreates(t *testing.T) {
	now := time.Unix(1700000000, 0)
	s := NewRoomStore(WithClock(func() time.Time { return now }))

	created, snap := s.CreateOrGetRoom("T1", "A")
	assert.True(t, created)
	assert.Equal(t, domain.RoomAvailable, snap.Status)
	assert.Equal(t, []domain.Member{{ID: "A", Hostname: "playerA.local"}}, snap.Members)
	assert.Equal(t, now, snap.CreatedAt)

	created, snap = s.CreateOrGetRoom("T1", "B")
	assert.False(t, created)
	assert.Len(t, snap.Members, 1)
	assert.Equal(t, now, snap.CreatedAt)
}

func TestSnapshotMembers_UnknownRoomIsEmpty(t *testing.T) {
	s := NewRoomStore()
	members := s.SnapshotMembers("nope")
	assert.NotNil(t, members)
	assert.Empty(t, members)
}

func TestSnapshotIsACopy(t *testing.T) {
	s := NewRoomStore()
	_, snap := s.CreateOrGetRoom("T1", "A")
	snap.Members[0].Hostname = "mutated"
	assert.Equal(t, []string{"playerA.local"}, s.SnapshotMembers("T1"))
}

func TestBeginJoin_BusyRoomRejected(t *testing.T) {
	s := NewRoomStore()
	s.CreateOrGetRoom("T1", "A")

	first, err := s.BeginJoin("T1", "B")
	require.NoError(t, err)
	assert.Equal(t, domain.StillPending, first.Outcome)
	assert.Equal(t, []string{"playerA.local"}, first.Members)

	_, err = s.BeginJoin("T1", "C")
	assert.ErrorIs(t, err, domain.ErrRoomBusy)

	snap, ok := s.Room("T1")
	require.True(t, ok)
	assert.Equal(t, domain.RoomBusy, snap.Status)
	assert.Equal(t, first.Join.ID, snap.PendingJoin)
	assert.Len(t, s.pending, 1)
}

func TestBeginJoin_UnknownRoom(t *testing.T) {
	s := NewRoomStore()
	_, err := s.BeginJoin("ghost", "A")
	assert.ErrorIs(t, err, domain.ErrUnknownRoom)
}

func TestBeginJoin_ExistingMember(t *testing.T) {
	s := NewRoomStore()
	s.CreateOrGetRoom("T1", "A")
	_, err := s.BeginJoin("T1", "A")
	assert.ErrorIs(t, err, domain.ErrAlreadyMember)

	snap, _ := s.Room("T1")
	assert.Equal(t, domain.RoomAvailable, snap.Status)
}

func TestBeginJoin_EmptyRoomAdmitsImmediately(t *testing.T) {
	s := NewRoomStore()
	s.CreateOrGetRoom("T1", "A")
	removed, err := s.RemoveMember("T1", "playerA.local")
	require.NoError(t, err)
	require.True(t, removed)

	ticket, err := s.BeginJoin("T1", "B")
	require.NoError(t, err)
	assert.Equal(t, domain.Admitted, ticket.Outcome)
	assert.Equal(t, 0, ticket.Join.Threshold)
	assert.Equal(t, []string{"playerB.local"}, ticket.Members)
	assert.Empty(t, s.pending)

	snap, _ := s.Room("T1")
	assert.Equal(t, domain.RoomAvailable, snap.Status)
	assert.Empty(t, snap.PendingJoin)
}

func TestRecordAck_MajorityOfPreJoinMembers(t *testing.T) {
	for k := 1; k <= 6; k++ {
		t.Run(fmt.Sprintf("k=%d", k), func(t *testing.T) {
			s := NewRoomStore()
			members := make([]string, k)
			for i := range members {
				members[i] = fmt.Sprintf("m%d", i)
			}
			seedRoom(t, s, "T", members...)

			ticket, err := s.BeginJoin("T", "cand")
			require.NoError(t, err)
			need := k/2 + 1
			assert.Equal(t, need, ticket.Join.Threshold)

			for i := 0; i < need; i++ {
				ticket, err = s.RecordAck(ticket.Join.ID, members[i])
				require.NoError(t, err)
				if i < need-1 {
					assert.Equal(t, domain.StillPending, ticket.Outcome, "ack %d of %d", i+1, need)
				}
			}
			assert.Equal(t, domain.Admitted, ticket.Outcome)
			assert.Len(t, s.SnapshotMembers("T"), k+1)
		})
	}
}

func TestRecordAck_Idempotent(t *testing.T) {
	s := NewRoomStore()
	seedRoom(t, s, "T1", "A", "B")

	ticket, err := s.BeginJoin("T1", "C")
	require.NoError(t, err)
	require.Equal(t, 2, ticket.Join.Threshold)

	for i := 0; i < 3; i++ {
		ticket, err = s.RecordAck(ticket.Join.ID, "A")
		require.NoError(t, err)
		assert.Equal(t, domain.StillPending, ticket.Outcome)
		assert.Len(t, ticket.Join.Acks, 1)
	}
}

func TestRecordAck_ReplayAfterAdmission(t *testing.T) {
	s := NewRoomStore()
	s.CreateOrGetRoom("T1", "A")
	ticket, err := s.BeginJoin("T1", "B")
	require.NoError(t, err)

	ticket, err = s.RecordAck(ticket.Join.ID, "A")
	require.NoError(t, err)
	require.Equal(t, domain.Admitted, ticket.Outcome)

	_, ok := s.Pending(ticket.Join.ID)
	assert.False(t, ok)
	_, err = s.RecordAck(ticket.Join.ID, "A")
	assert.ErrorIs(t, err, domain.ErrUnknownJoin)
}

func TestRecordAck_NonMemberRejected(t *testing.T) {
	s := NewRoomStore()
	s.CreateOrGetRoom("T1", "A")
	ticket, err := s.BeginJoin("T1", "B")
	require.NoError(t, err)

	_, err = s.RecordAck(ticket.Join.ID, "B")
	assert.ErrorIs(t, err, domain.ErrNotAMember)

	pj, ok := s.Pending(ticket.Join.ID)
	require.True(t, ok)
	assert.Empty(t, pj.Acks)
}

func TestPending_ReturnsCopy(t *testing.T) {
	s := NewRoomStore()
	seedRoom(t, s, "T1", "A", "B")
	ticket, err := s.BeginJoin("T1", "C")
	require.NoError(t, err)

	ticket.Join.Acks["A"] = struct{}{}
	pj, ok := s.Pending(ticket.Join.ID)
	require.True(t, ok)
	assert.Empty(t, pj.Acks)
}

func TestRemoveMember(t *testing.T) {
	s := NewRoomStore()
	seedRoom(t, s, "T1", "A", "B")

	removed, err := s.RemoveMember("T1", "playerA.local")
	require.NoError(t, err)
	assert.True(t, removed)
	assert.Equal(t, []string{"playerB.local"}, s.SnapshotMembers("T1"))

	removed, err = s.RemoveMember("T1", "playerA.local")
	assert.False(t, removed)
	assert.ErrorIs(t, err, domain.ErrNotAMember)

	removed, err = s.RemoveMember("ghost", "playerA.local")
	assert.False(t, removed)
	assert.ErrorIs(t, err, domain.ErrUnknownRoom)
}

func TestRemoveMember_RoomStaysAddressable(t *testing.T) {
	s := NewRoomStore()
	s.CreateOrGetRoom("T1", "A")
	_, err := s.RemoveMember("T1", "playerA.local")
	require.NoError(t, err)

	snap, ok := s.Room("T1")
	require.True(t, ok)
	assert.Empty(t, snap.Members)
	created, _ := s.CreateOrGetRoom("T1", "B")
	assert.False(t, created)
}

func TestConcurrentBeginJoin_OneWins(t *testing.T) {
	s := NewRoomStore()
	s.CreateOrGetRoom("T1", "A")

	const n = 32
	var (
		wg   sync.WaitGroup
		mu   sync.Mutex
		ok   int
		busy int
	)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, err := s.BeginJoin("T1", fmt.Sprintf("c%d", i))
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				ok++
			case assert.ErrorIs(t, err, domain.ErrRoomBusy):
				busy++
			}
		}(i)
	}
	wg.Wait()

	assert.Equal(t, 1, ok)
	assert.Equal(t, n-1, busy)
	assert.Len(t, s.pending, 1)
}

func TestExpireJoins(t *testing.T) {
	now := time.Unix(1700000000, 0)
	s := NewRoomStore(WithClock(func() time.Time { return now }))
	s.CreateOrGetRoom("old", "A")
	s.CreateOrGetRoom("new", "A")

	stale, err := s.BeginJoin("old", "B")
	require.NoError(t, err)
	now = now.Add(time.Minute)
	fresh, err := s.BeginJoin("new", "B")
	require.NoError(t, err)

	expired := s.ExpireJoins(now.Add(-30 * time.Second))
	require.Len(t, expired, 1)
	assert.Equal(t, stale.Join.ID, expired[0].ID)

	snap, _ := s.Room("old")
	assert.Equal(t, domain.RoomAvailable, snap.Status)
	_, err = s.RecordAck(stale.Join.ID, "A")
	assert.ErrorIs(t, err, domain.ErrUnknownJoin)

	ticket, err := s.RecordAck(fresh.Join.ID, "A")
	require.NoError(t, err)
	assert.Equal(t, domain.Admitted, ticket.Outcome)
}

func TestWithIDGenerator(t *testing.T) {
	s := NewRoomStore(WithIDGenerator(func() domain.JoinID { return "J" }))
	s.CreateOrGetRoom("T1", "A")
	ticket, err := s.BeginJoin("T1", "B")
	require.NoError(t, err)
	assert.Equal(t, domain.JoinID("J"), ticket.Join.ID)
}
