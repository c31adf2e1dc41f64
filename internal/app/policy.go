package app

import (
	"github.com/dkeye/copilot/internal/core"
	"github.com/dkeye/copilot/internal/domain"
)

type BackpressureAction int

const (
	NoAction BackpressureAction = iota
	KickMember
	DropFrame
)

type Policy interface {
	OnBackPressure(room core.RoomService, cid domain.ConnID) BackpressureAction
}

// DropPolicy skips the frame for a lagging member and keeps it connected.
type DropPolicy struct{}

func (DropPolicy) OnBackPressure(core.RoomService, domain.ConnID) BackpressureAction {
	return DropFrame
}

// KickPolicy disconnects a member whose output queue is full.
type KickPolicy struct{}

func (KickPolicy) OnBackPressure(core.RoomService, domain.ConnID) BackpressureAction {
	return KickMember
}

// PolicyFor maps the config value to a policy; anything but "kick" drops.
func PolicyFor(name string) Policy {
	if name == "kick" {
		return KickPolicy{}
	}
	return DropPolicy{}
}
