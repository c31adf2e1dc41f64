package core

import (
	"github.com/dkeye/copilot/internal/domain"
)

// PublishResult reports delivery stats/backpressure to orchestrator.
type PublishResult struct {
	SentTo  int
	Dropped []domain.ConnID
}

// RoomService is the core-facing API of a room.
// It owns the membership set but never touches transport resources.
type RoomService interface {
	Room() *domain.Room
	MemberCount() int
	Members() []domain.ConnID

	// AddMember reports false when the connection was already a member.
	AddMember(cid domain.ConnID, conn SignalConnection) bool
	// RemoveMember returns the number of members left.
	RemoveMember(cid domain.ConnID) int
	Broadcast(data Frame) PublishResult
}

type RoomInfo struct {
	InterviewID domain.InterviewID `json:"interviewId"`
	MemberCount int                `json:"memberCount"`
}

// RoomManager owns every room. Membership changes go through it so that
// creating a room on join and deleting it on last leave cannot interleave.
type RoomManager interface {
	Join(id domain.InterviewID, cid domain.ConnID, conn SignalConnection) (RoomService, bool)
	Leave(id domain.InterviewID, cid domain.ConnID) bool
	Get(id domain.InterviewID) (RoomService, bool)
	List() []RoomInfo
	// Evict deletes the room and returns who was in it at that moment.
	Evict(id domain.InterviewID) ([]domain.ConnID, bool)
}
