package orch

import (
	"github.com/dkeye/copilot/internal/domain"
	"github.com/dkeye/copilot/internal/metrics"
	"github.com/rs/zerolog/log"
)

// Join adds cid to the interview room and returns the member count.
// Joining twice is a no-op.
func (o *Orchestrator) Join(cid domain.ConnID, id domain.InterviewID) (int, error) {
	conn, ok := o.Registry.Signal(cid)
	if !ok {
		return 0, ErrUnknownConnection
	}
	room, added := o.Rooms.Join(id, cid, conn)
	if !o.Registry.AddRoom(cid, id) {
		// Disconnected while joining.
		o.Rooms.Leave(id, cid)
		return 0, ErrUnknownConnection
	}
	if added {
		log.Info().Str("module", "orch").Str("conn", string(cid)).Str("interview", string(id)).Msg("joined room")
	}
	return room.MemberCount(), nil
}

// Leave removes cid from one room; false when it was not a member.
func (o *Orchestrator) Leave(cid domain.ConnID, id domain.InterviewID) bool {
	if !o.Registry.RemoveRoom(cid, id) {
		return false
	}
	o.Rooms.Leave(id, cid)
	log.Info().Str("module", "orch").Str("conn", string(cid)).Str("interview", string(id)).Msg("left room")
	return true
}

// Disconnect releases everything cid holds. Unknown connections are ignored.
func (o *Orchestrator) Disconnect(cid domain.ConnID) {
	// Media first so screenshare:stopped still reaches the rooms.
	o.cleanupMedia(cid)

	rooms, media, ok := o.Registry.Unbind(cid)
	if !ok {
		return
	}
	// Attached by a screen share request racing the cleanup above.
	if media != nil {
		media.Close()
	}
	metrics.ConnectionsActive.Dec()
	for _, id := range rooms {
		o.Rooms.Leave(id, cid)
	}
	log.Info().Str("module", "orch").Str("conn", string(cid)).Int("rooms", len(rooms)).Msg("disconnected")
}

// EvictRoom drops every member from the room and deletes it. Connections
// stay open.
func (o *Orchestrator) EvictRoom(id domain.InterviewID) int {
	members, ok := o.Rooms.Evict(id)
	if !ok {
		return 0
	}
	for _, cid := range members {
		o.Registry.RemoveRoom(cid, id)
		_ = o.Send(cid, domain.EventLeft, map[string]any{"interviewId": id})
	}
	log.Info().Str("module", "orch").Str("interview", string(id)).Int("members", len(members)).Msg("room evicted")
	return len(members)
}
