package app

import (
	"slices"
	"sync"
	"testing"

	"github.com/dkeye/copilot/internal/core"
	"github.com/dkeye/copilot/internal/domain"
)

type stubConn struct {
	mu     sync.Mutex
	frames []core.Frame
	err    error
	closed bool
}

func (c *stubConn) TrySend(f core.Frame) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.err != nil {
		return c.err
	}
	c.frames = append(c.frames, f)
	return nil
}

func (c *stubConn) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed = true
}

func TestRoomManagerCreatesOnFirstJoin(t *testing.T) {
	rm := NewRoomManager()
	if _, ok := rm.Get("i1"); ok {
		t.Fatal("room exists before join")
	}
	room, added := rm.Join("i1", "c1", &stubConn{})
	if !added || room.MemberCount() != 1 {
		t.Fatalf("added=%v count=%d", added, room.MemberCount())
	}
	again, added := rm.Join("i1", "c1", &stubConn{})
	if added || again != room || room.MemberCount() != 1 {
		t.Fatal("duplicate join must be idempotent")
	}
}

func TestRoomManagerDeletesOnLastLeave(t *testing.T) {
	rm := NewRoomManager()
	rm.Join("i1", "c1", &stubConn{})
	rm.Join("i1", "c2", &stubConn{})

	if !rm.Leave("i1", "c1") {
		t.Fatal("leave reported unknown room")
	}
	if _, ok := rm.Get("i1"); !ok {
		t.Fatal("room deleted while a member remains")
	}
	rm.Leave("i1", "c2")
	if _, ok := rm.Get("i1"); ok {
		t.Fatal("empty room kept")
	}
	if rm.Leave("i1", "c2") {
		t.Fatal("leave on missing room reported true")
	}
}

func TestRoomManagerList(t *testing.T) {
	rm := NewRoomManager()
	rm.Join("a", "c1", &stubConn{})
	rm.Join("b", "c1", &stubConn{})
	rm.Join("b", "c2", &stubConn{})

	counts := map[domain.InterviewID]int{}
	for _, info := range rm.List() {
		counts[info.InterviewID] = info.MemberCount
	}
	if counts["a"] != 1 || counts["b"] != 2 || len(counts) != 2 {
		t.Fatalf("list = %v", counts)
	}

	members, ok := rm.Evict("b")
	if !ok || len(members) != 2 {
		t.Fatalf("evict = %v, %v", members, ok)
	}
	if _, ok := rm.Get("b"); ok {
		t.Fatal("Evict kept the room")
	}
	if _, ok := rm.Evict("b"); ok {
		t.Fatal("second Evict reported a room")
	}
}

func TestRoomManagerEvictRacingJoin(t *testing.T) {
	for round := 0; round < 100; round++ {
		rm := NewRoomManager()
		rm.Join("i1", "seed", &stubConn{})

		var evicted []domain.ConnID
		var wg sync.WaitGroup
		wg.Add(2)
		go func() {
			defer wg.Done()
			evicted, _ = rm.Evict("i1")
		}()
		go func() {
			defer wg.Done()
			rm.Join("i1", "late", &stubConn{})
		}()
		wg.Wait()

		// The late joiner is either told it was evicted or sits in a live room.
		inEvicted := slices.Contains(evicted, "late")
		inLive := false
		if room, ok := rm.Get("i1"); ok {
			inLive = slices.Contains(room.Members(), "late")
		}
		if inEvicted == inLive {
			t.Fatalf("round %d: evicted=%v live=%v", round, inEvicted, inLive)
		}
	}
}

func TestRoomManagerConcurrentJoinLeave(t *testing.T) {
	rm := NewRoomManager()
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			cid := domain.ConnID(string(rune('a' + n%26)))
			rm.Join("shared", cid, &stubConn{})
			rm.Leave("shared", cid)
		}(i)
	}
	wg.Wait()
	if room, ok := rm.Get("shared"); ok {
		t.Fatalf("room left with %d members", room.MemberCount())
	}
}
