package app

import (
	"context"
	"sync"

	"github.com/dkeye/Signal/internal/core"
	"github.com/dkeye/Signal/internal/domain"
	"github.com/rs/zerolog/log"
)

type sessionEntry struct {
	Member domain.Member
	Conn   core.SignalConnection
	Cancel context.CancelFunc
}

// Registry is the set of live sessions. It owns no transport resources: the
// lock only guards the map and is never held while sending.
type Registry struct {
	mu       sync.RWMutex
	sessions map[domain.SessionID]*sessionEntry
	newID    func() domain.SessionID
}

func NewRegistry() *Registry {
	return &Registry{
		sessions: make(map[domain.SessionID]*sessionEntry),
		newID:    domain.NewSessionID,
	}
}

// Register records a new live session and returns its server-assigned id.
// cancel, if set, is what Cancel invokes to terminate the session.
func (r *Registry) Register(conn core.SignalConnection, username string, cancel context.CancelFunc) domain.SessionID {
	r.mu.Lock()
	defer r.mu.Unlock()
	sid := r.newID()
	for {
		if _, taken := r.sessions[sid]; !taken {
			break
		}
		sid = r.newID()
	}
	r.sessions[sid] = &sessionEntry{
		Member: *domain.NewMember(sid, username),
		Conn:   conn,
		Cancel: cancel,
	}
	log.Info().Str("module", "app.registry").Str("sid", string(sid)).Msg("registered session")
	return sid
}

// Unregister is idempotent.
func (r *Registry) Unregister(sid domain.SessionID) {
	r.mu.Lock()
	_, ok := r.sessions[sid]
	delete(r.sessions, sid)
	r.mu.Unlock()
	if ok {
		log.Info().Str("module", "app.registry").Str("sid", string(sid)).Msg("unregistered session")
	}
}

func (r *Registry) IsLive(sid domain.SessionID) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.sessions[sid]
	return ok
}

// Snapshot returns a point-in-time copy of the live session ids.
func (r *Registry) Snapshot() []domain.SessionID {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]domain.SessionID, 0, len(r.sessions))
	for sid := range r.sessions {
		out = append(out, sid)
	}
	return out
}

func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.sessions)
}

func (r *Registry) Conn(sid domain.SessionID) (core.SignalConnection, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if e, ok := r.sessions[sid]; ok {
		return e.Conn, true
	}
	return nil, false
}

func (r *Registry) Member(sid domain.SessionID) (domain.Member, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if e, ok := r.sessions[sid]; ok {
		return e.Member, true
	}
	return domain.Member{}, false
}

func (r *Registry) UpdateUsername(sid domain.SessionID, name string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.sessions[sid]
	if !ok {
		return domain.ErrNotLive
	}
	if err := e.Member.SetUsername(name); err != nil {
		return err
	}
	log.Info().Str("module", "app.registry").Str("sid", string(sid)).Str("username", name).Msg("updated username")
	return nil
}

// Cancel asks the session's runner to shut down.
func (r *Registry) Cancel(sid domain.SessionID) bool {
	r.mu.RLock()
	e, ok := r.sessions[sid]
	r.mu.RUnlock()
	if !ok {
		return false
	}
	if e.Cancel != nil {
		e.Cancel()
	}
	log.Info().Str("module", "app.registry").Str("sid", string(sid)).Msg("canceled session")
	return true
}
