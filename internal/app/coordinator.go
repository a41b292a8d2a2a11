package app

import (
	"errors"
	"fmt"

	"github.com/rs/zerolog/log"

	"github.com/dkeye/tablekeeper/internal/core"
	"github.com/dkeye/tablekeeper/internal/domain"
)

// JoinResult is what a JOIN ended up doing.
type JoinResult struct {
	Created       bool
	AlreadyMember bool
	Ticket        core.JoinTicket
}

// Coordinator drives JOIN and JOIN_ACK through the store.
// It never waits on another client: an unmet quorum is reported and the caller retries.
type Coordinator struct {
	Store   *core.RoomStore
	Limiter *JoinLimiter
}

func NewCoordinator(store *core.RoomStore, limiter *JoinLimiter) *Coordinator {
	return &Coordinator{Store: store, Limiter: limiter}
}

func (c *Coordinator) Join(roomID domain.RoomID, clientID string) (JoinResult, error) {
	if c.Limiter != nil && !c.Limiter.Allow(clientID) {
		log.Warn().Str("module", "app.coordinator").Str("room", string(roomID)).Str("client", clientID).Msg("join throttled")
		return JoinResult{}, fmt.Errorf("join %q as %q: %w", roomID, clientID, domain.ErrRateLimited)
	}

	created, snap := c.Store.CreateOrGetRoom(roomID, clientID)
	if created {
		labels := make([]string, 0, len(snap.Members))
		for _, m := range snap.Members {
			labels = append(labels, m.Hostname)
		}
		log.Info().Str("module", "app.coordinator").Str("room", string(roomID)).Str("client", clientID).Msg("room created")
		return JoinResult{
			Created: true,
			Ticket:  core.JoinTicket{Outcome: domain.Admitted, Members: labels},
		}, nil
	}

	ticket, err := c.Store.BeginJoin(roomID, clientID)
	switch {
	case errors.Is(err, domain.ErrAlreadyMember):
		return JoinResult{AlreadyMember: true, Ticket: core.JoinTicket{
			Outcome: domain.Admitted,
			Members: c.Store.SnapshotMembers(roomID),
		}}, nil
	case err != nil:
		log.Debug().Err(err).Str("module", "app.coordinator").Str("room", string(roomID)).Str("client", clientID).Msg("join rejected")
		return JoinResult{}, err
	}

	if ticket.Outcome == domain.Admitted {
		log.Info().Str("module", "app.coordinator").Str("room", string(roomID)).Str("client", clientID).Msg("admitted into empty room")
	} else {
		log.Info().Str("module", "app.coordinator").Str("room", string(roomID)).Str("client", clientID).
			Str("join_id", string(ticket.Join.ID)).Int("threshold", ticket.Join.Threshold).Msg("join pending")
	}
	return JoinResult{Ticket: ticket}, nil
}

func (c *Coordinator) Ack(joinID domain.JoinID, ackerID string) (core.JoinTicket, error) {
	ticket, err := c.Store.RecordAck(joinID, ackerID)
	if err != nil {
		log.Debug().Err(err).Str("module", "app.coordinator").Str("join_id", string(joinID)).Str("acker", ackerID).Msg("ack rejected")
		return core.JoinTicket{}, err
	}

	ev := log.Info().Str("module", "app.coordinator").Str("room", string(ticket.Join.RoomID)).
		Str("join_id", string(joinID)).Str("acker", ackerID).Int("acks", len(ticket.Join.Acks)).Int("threshold", ticket.Join.Threshold)
	if ticket.Outcome == domain.Admitted {
		ev.Str("client", ticket.Join.CandidateID).Msg("join admitted")
	} else {
		ev.Msg("ack recorded")
	}
	return ticket, nil
}
