package app

import (
	"sort"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/dkeye/tablekeeper/internal/core"
)

// SessionInfo is a read-only view of one live connection.
type SessionInfo struct {
	ID          core.SessionID `json:"id"`
	Transport   string         `json:"transport"`
	Remote      string         `json:"remote"`
	ConnectedAt time.Time      `json:"connected_at"`
	Clients     []string       `json:"clients"`
	Requests    int            `json:"requests"`
}

type sessionEntry struct {
	info    SessionInfo
	clients map[string]struct{}
}

// Registry tracks live connections and the client ids seen on them.
// It never touches room state: closing a session leaves memberships alone.
type Registry struct {
	mu       sync.RWMutex
	sessions map[core.SessionID]*sessionEntry
}

func NewRegistry() *Registry {
	return &Registry{sessions: make(map[core.SessionID]*sessionEntry)}
}

func (r *Registry) Open(sid core.SessionID, transport, remote string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sessions[sid] = &sessionEntry{
		info: SessionInfo{
			ID:          sid,
			Transport:   transport,
			Remote:      remote,
			ConnectedAt: time.Now(),
		},
		clients: make(map[string]struct{}),
	}
	log.Info().Str("module", "app.registry").Str("sid", string(sid)).Str("transport", transport).Str("remote", remote).Msg("session opened")
}

// Observe counts a request on sid and remembers the client id it named.
func (r *Registry) Observe(sid core.SessionID, req Request) {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.sessions[sid]
	if !ok {
		return
	}
	e.info.Requests++
	if id := req.ClientID; id != "" {
		e.clients[id] = struct{}{}
	}
	if id := req.MemberID; id != "" {
		e.clients[id] = struct{}{}
	}
}

func (r *Registry) Close(sid core.SessionID) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.sessions, sid)
	log.Info().Str("module", "app.registry").Str("sid", string(sid)).Msg("session closed")
}

func (r *Registry) Get(sid core.SessionID) (SessionInfo, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.sessions[sid]
	if !ok {
		return SessionInfo{}, false
	}
	return e.snapshot(), true
}

func (r *Registry) Sessions() []SessionInfo {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]SessionInfo, 0, len(r.sessions))
	for _, e := range r.sessions {
		out = append(out, e.snapshot())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ConnectedAt.Before(out[j].ConnectedAt) })
	return out
}

func (e *sessionEntry) snapshot() SessionInfo {
	info := e.info
	info.Clients = make([]string, 0, len(e.clients))
	for id := range e.clients {
		info.Clients = append(info.Clients, id)
	}
	sort.Strings(info.Clients)
	return info
}
