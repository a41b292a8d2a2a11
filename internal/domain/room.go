// Package domain holds the room, member and pending-join model together with
// the quorum rule and the error taxonomy shared by every layer.
package domain

import (
	"fmt"
	"time"
)

type RoomID string

type RoomStatus string

const (
	RoomAvailable RoomStatus = "available"
	RoomBusy      RoomStatus = "busy"
)

// Member is a seat holder in a room.
type Member struct {
	ID       string `json:"id"`
	Hostname string `json:"hostname"`
}

// NewMember avoids raw literals in adapters and keeps the label derivation in one place.
func NewMember(id string) Member {
	return Member{ID: id, Hostname: HostnameFor(id)}
}

// HostnameFor is the label a client id is listed under.
func HostnameFor(id string) string {
	return fmt.Sprintf("player%s.local", id)
}

type Room struct {
	ID        RoomID
	Status    RoomStatus
	Members   []Member
	CreatedAt time.Time
}

// Labels returns member hostnames in join order.
func (r *Room) Labels() []string {
	out := make([]string, 0, len(r.Members))
	for _, m := range r.Members {
		out = append(out, m.Hostname)
	}
	return out
}

func (r *Room) IndexOf(id string) int {
	for i, m := range r.Members {
		if m.ID == id {
			return i
		}
	}
	return -1
}
