package core

import (
	"sync"

	"github.com/dkeye/copilot/internal/domain"
	"github.com/rs/zerolog/log"
)

// roomImpl is a threadsafe in-memory room.
// It never closes adapter-owned resources.
type roomImpl struct {
	room    *domain.Room
	mu      sync.RWMutex
	members map[domain.ConnID]SignalConnection
}

func NewRoomService(room *domain.Room) RoomService {
	return &roomImpl{
		room:    room,
		members: make(map[domain.ConnID]SignalConnection),
	}
}

func (r *roomImpl) Room() *domain.Room { return r.room }

func (r *roomImpl) MemberCount() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.members)
}

func (r *roomImpl) AddMember(cid domain.ConnID, conn SignalConnection) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.members[cid]; ok {
		return false
	}
	r.members[cid] = conn
	log.Info().Str("module", "core.room").Str("interview", string(r.room.ID)).Str("conn", string(cid)).Msg("member added")
	return true
}

func (r *roomImpl) RemoveMember(cid domain.ConnID) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.members[cid]; ok {
		delete(r.members, cid)
		log.Info().Str("module", "core.room").Str("interview", string(r.room.ID)).Str("conn", string(cid)).Msg("member removed")
	}
	return len(r.members)
}

// Broadcast enqueues data for every current member. A failing member is
// reported in Dropped and never stops delivery to the rest.
func (r *roomImpl) Broadcast(data Frame) PublishResult {
	r.mu.RLock()
	defer r.mu.RUnlock()
	res := PublishResult{}
	for cid, conn := range r.members {
		if err := conn.TrySend(data); err != nil {
			res.Dropped = append(res.Dropped, cid)
			continue
		}
		res.SentTo++
	}
	log.Debug().Str("module", "core.room").Str("interview", string(r.room.ID)).Int("sent_to", res.SentTo).Int("dropped", len(res.Dropped)).Msg("broadcast result")
	return res
}

func (r *roomImpl) Members() []domain.ConnID {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]domain.ConnID, 0, len(r.members))
	for cid := range r.members {
		out = append(out, cid)
	}
	return out
}
