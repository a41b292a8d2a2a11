package app

import (
	"context"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/dkeye/tablekeeper/internal/core"
)

// Reaper expires pending joins that outlive their lease and frees the room.
// It also prunes idle limiter entries on the same tick.
type Reaper struct {
	Store    *core.RoomStore
	Limiter  *JoinLimiter
	Lease    time.Duration
	Interval time.Duration
	now      func() time.Time
}

func NewReaper(store *core.RoomStore, limiter *JoinLimiter, lease, interval time.Duration) *Reaper {
	return &Reaper{Store: store, Limiter: limiter, Lease: lease, Interval: interval, now: time.Now}
}

func (r *Reaper) Enabled() bool {
	return r.Lease > 0 && r.Interval > 0
}

// Sweep runs one pass and returns how many joins were expired.
func (r *Reaper) Sweep() int {
	expired := r.Store.ExpireJoins(r.now().Add(-r.Lease))
	for _, pj := range expired {
		log.Warn().Str("module", "app.reaper").Str("room", string(pj.RoomID)).Str("join_id", string(pj.ID)).
			Str("client", pj.CandidateID).Int("acks", len(pj.Acks)).Int("threshold", pj.Threshold).Msg("pending join expired")
	}
	if r.Limiter != nil {
		r.Limiter.Prune()
	}
	return len(expired)
}

func (r *Reaper) Run(ctx context.Context) {
	if !r.Enabled() {
		log.Info().Str("module", "app.reaper").Msg("join lease disabled")
		return
	}
	ticker := time.NewTicker(r.Interval)
	defer ticker.Stop()
	log.Info().Str("module", "app.reaper").Dur("lease", r.Lease).Dur("interval", r.Interval).Msg("reaper started")
	for {
		select {
		case <-ctx.Done():
			log.Info().Str("module", "app.reaper").Msg("reaper stopped")
			return
		case <-ticker.C:
			r.Sweep()
		}
	}
}
