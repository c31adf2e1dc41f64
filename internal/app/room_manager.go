package app

import (
	"sync"

	"github.com/dkeye/copilot/internal/core"
	"github.com/dkeye/copilot/internal/domain"
	"github.com/dkeye/copilot/internal/metrics"
	"github.com/rs/zerolog/log"
)

// RoomManagerImpl creates a room on first join and deletes it when the last
// member leaves. Both happen under mu, so a join never lands in a room that
// is being dropped.
type RoomManagerImpl struct {
	mu    sync.RWMutex
	rooms map[domain.InterviewID]core.RoomService
}

func NewRoomManager() *RoomManagerImpl {
	return &RoomManagerImpl{rooms: make(map[domain.InterviewID]core.RoomService)}
}

func (f *RoomManagerImpl) Join(id domain.InterviewID, cid domain.ConnID, conn core.SignalConnection) (core.RoomService, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	room, ok := f.rooms[id]
	if !ok {
		room = core.NewRoomService(&domain.Room{ID: id})
		f.rooms[id] = room
		metrics.RoomsActive.Inc()
		log.Debug().Str("module", "app.rooms").Str("interview", string(id)).Msg("room created")
	}
	return room, room.AddMember(cid, conn)
}

func (f *RoomManagerImpl) Leave(id domain.InterviewID, cid domain.ConnID) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	room, ok := f.rooms[id]
	if !ok {
		return false
	}
	if room.RemoveMember(cid) == 0 {
		delete(f.rooms, id)
		metrics.RoomsActive.Dec()
		log.Debug().Str("module", "app.rooms").Str("interview", string(id)).Msg("room deleted")
	}
	return true
}

func (f *RoomManagerImpl) Get(id domain.InterviewID) (core.RoomService, bool) {
	f.mu.RLock()
	defer f.mu.RUnlock()
	room, ok := f.rooms[id]
	return room, ok
}

func (f *RoomManagerImpl) List() []core.RoomInfo {
	f.mu.RLock()
	defer f.mu.RUnlock()
	out := make([]core.RoomInfo, 0, len(f.rooms))
	for id, r := range f.rooms {
		out = append(out, core.RoomInfo{InterviewID: id, MemberCount: r.MemberCount()})
	}
	return out
}

func (f *RoomManagerImpl) Evict(id domain.InterviewID) ([]domain.ConnID, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	room, ok := f.rooms[id]
	if !ok {
		return nil, false
	}
	delete(f.rooms, id)
	metrics.RoomsActive.Dec()
	log.Debug().Str("module", "app.rooms").Str("interview", string(id)).Msg("room evicted")
	return room.Members(), true
}
