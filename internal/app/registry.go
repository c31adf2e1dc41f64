package app

import (
	"context"
	"sync"

	"github.com/dkeye/copilot/internal/core"
	"github.com/dkeye/copilot/internal/domain"
	"github.com/rs/zerolog/log"
)

type connEntry struct {
	Signal core.SignalConnection
	Rooms  map[domain.InterviewID]struct{}
	Media  *MediaSession
	Cancel context.CancelFunc
}

// Registry tracks every live connection and the rooms it joined.
type Registry struct {
	mu    sync.RWMutex
	conns map[domain.ConnID]*connEntry
}

func NewRegistry() *Registry {
	return &Registry{conns: make(map[domain.ConnID]*connEntry)}
}

func (r *Registry) BindSignal(cid domain.ConnID, conn core.SignalConnection, cancel context.CancelFunc) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.conns[cid] = &connEntry{
		Signal: conn,
		Rooms:  make(map[domain.InterviewID]struct{}),
		Cancel: cancel,
	}
	log.Info().Str("module", "app.registry").Str("conn", string(cid)).Msg("bound signal")
}

func (r *Registry) Signal(cid domain.ConnID) (core.SignalConnection, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if e, ok := r.conns[cid]; ok {
		return e.Signal, true
	}
	return nil, false
}

// AddRoom reports false when cid is unknown.
func (r *Registry) AddRoom(cid domain.ConnID, id domain.InterviewID) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.conns[cid]
	if !ok {
		return false
	}
	e.Rooms[id] = struct{}{}
	return true
}

func (r *Registry) RemoveRoom(cid domain.ConnID, id domain.InterviewID) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.conns[cid]
	if !ok {
		return false
	}
	if _, member := e.Rooms[id]; !member {
		return false
	}
	delete(e.Rooms, id)
	return true
}

func (r *Registry) RoomsOf(cid domain.ConnID) []domain.InterviewID {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.conns[cid]
	if !ok {
		return nil
	}
	out := make([]domain.InterviewID, 0, len(e.Rooms))
	for id := range e.Rooms {
		out = append(out, id)
	}
	return out
}

// SetMedia attaches the connection's media session; false when cid is unknown.
func (r *Registry) SetMedia(cid domain.ConnID, media *MediaSession) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.conns[cid]
	if !ok {
		return false
	}
	e.Media = media
	return true
}

func (r *Registry) Media(cid domain.ConnID) (*MediaSession, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.conns[cid]
	if !ok || e.Media == nil {
		return nil, false
	}
	return e.Media, true
}

// Unbind forgets cid and returns what it held so the caller can release it.
func (r *Registry) Unbind(cid domain.ConnID) (rooms []domain.InterviewID, media *MediaSession, ok bool) {
	r.mu.Lock()
	e, ok := r.conns[cid]
	if ok {
		delete(r.conns, cid)
	}
	r.mu.Unlock()
	if !ok {
		return nil, nil, false
	}
	rooms = make([]domain.InterviewID, 0, len(e.Rooms))
	for id := range e.Rooms {
		rooms = append(rooms, id)
	}
	log.Info().Str("module", "app.registry").Str("conn", string(cid)).Int("rooms", len(rooms)).Msg("unbind connection")
	return rooms, e.Media, true
}

func (r *Registry) Cancel(cid domain.ConnID) bool {
	r.mu.RLock()
	e, ok := r.conns[cid]
	r.mu.RUnlock()
	if !ok {
		return false
	}
	if e.Cancel != nil {
		e.Cancel()
	}
	log.Info().Str("module", "app.registry").Str("conn", string(cid)).Msg("canceled connection")
	return true
}

func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.conns)
}
