package app

import (
	"context"
	"sort"
	"testing"

	"github.com/dkeye/copilot/internal/domain"
)

func TestRegistryTracksRooms(t *testing.T) {
	r := NewRegistry()
	if r.AddRoom("c1", "i1") {
		t.Fatal("AddRoom on unknown connection")
	}
	r.BindSignal("c1", &stubConn{}, nil)
	r.AddRoom("c1", "i1")
	r.AddRoom("c1", "i2")

	rooms := r.RoomsOf("c1")
	sort.Slice(rooms, func(i, j int) bool { return rooms[i] < rooms[j] })
	if len(rooms) != 2 || rooms[0] != "i1" || rooms[1] != "i2" {
		t.Fatalf("rooms = %v", rooms)
	}
	if !r.RemoveRoom("c1", "i1") || r.RemoveRoom("c1", "i1") {
		t.Fatal("RemoveRoom must succeed once")
	}
}

func TestRegistryUnbindReturnsHoldings(t *testing.T) {
	r := NewRegistry()
	canceled := false
	r.BindSignal("c1", &stubConn{}, func() { canceled = true })
	r.AddRoom("c1", "i1")
	media := &MediaSession{}
	if !r.SetMedia("c1", media) {
		t.Fatal("SetMedia failed")
	}
	if got, ok := r.Media("c1"); !ok || got != media {
		t.Fatal("media not stored")
	}
	if !r.Cancel("c1") || !canceled {
		t.Fatal("cancel not invoked")
	}

	rooms, m, ok := r.Unbind("c1")
	if !ok || len(rooms) != 1 || rooms[0] != domain.InterviewID("i1") || m != media {
		t.Fatalf("unbind = %v %v %v", rooms, m, ok)
	}
	if _, _, ok := r.Unbind("c1"); ok {
		t.Fatal("second unbind succeeded")
	}
	if r.Count() != 0 {
		t.Fatalf("count = %d", r.Count())
	}
}

func TestRegistryMediaUnknown(t *testing.T) {
	r := NewRegistry()
	r.BindSignal("c1", &stubConn{}, context.CancelFunc(func() {}))
	if _, ok := r.Media("c1"); ok {
		t.Fatal("media present before SetMedia")
	}
	if r.SetMedia("nope", &MediaSession{}) {
		t.Fatal("SetMedia on unknown connection")
	}
}

func TestPolicyFor(t *testing.T) {
	if PolicyFor("kick").OnBackPressure(nil, "c") != KickMember {
		t.Fatal("kick policy")
	}
	for _, name := range []string{"drop", "", "other"} {
		if PolicyFor(name).OnBackPressure(nil, "c") != DropFrame {
			t.Fatalf("%q should drop", name)
		}
	}
}
