package orch

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/dkeye/copilot/internal/app"
	"github.com/dkeye/copilot/internal/app/screenshare"
	"github.com/dkeye/copilot/internal/core"
	"github.com/dkeye/copilot/internal/domain"
	"github.com/pion/rtp"
	"github.com/pion/webrtc/v4"
)

type testConn struct {
	mu     sync.Mutex
	frames []core.Frame
	full   bool
	closed bool
}

func (c *testConn) TrySend(f core.Frame) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return core.ErrConnectionClosed
	}
	if c.full {
		return core.ErrBackpressure
	}
	c.frames = append(c.frames, f)
	return nil
}

func (c *testConn) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed = true
}

func (c *testConn) isClosed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}

func (c *testConn) types() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]string, 0, len(c.frames))
	for _, f := range c.frames {
		var env struct {
			Type string `json:"type"`
		}
		_ = json.Unmarshal(f, &env)
		out = append(out, env.Type)
	}
	return out
}

func (c *testConn) count(kind domain.EventKind) int {
	n := 0
	for _, t := range c.types() {
		if t == string(kind) {
			n++
		}
	}
	return n
}

func newOrch() *Orchestrator {
	return &Orchestrator{
		Registry: app.NewRegistry(),
		Rooms:    app.NewRoomManager(),
		Policy:   app.DropPolicy{},
	}
}

func connect(o *Orchestrator, cid domain.ConnID) *testConn {
	c := &testConn{}
	o.Connect(cid, c, func() {})
	return c
}

func transcript(id domain.InterviewID, text string) domain.TranscriptEvent {
	return domain.TranscriptEvent{InterviewID: id, Text: text, IsFinal: true, Timestamp: "2026-01-01T00:00:00.000Z"}
}

func TestJoinBeforePublishReceives(t *testing.T) {
	o := newOrch()
	a := connect(o, "a")
	if _, err := o.Join("a", "i1"); err != nil {
		t.Fatal(err)
	}
	res := o.PublishTranscript(transcript("i1", "hello"))
	if res.SentTo != 1 || a.count(domain.EventTranscript) != 1 {
		t.Fatalf("sentTo=%d frames=%v", res.SentTo, a.types())
	}
}

func TestLateJoinerMissesEarlierEvents(t *testing.T) {
	o := newOrch()
	a := connect(o, "a")
	b := connect(o, "b")
	o.Join("a", "i1")
	o.PublishTranscript(transcript("i1", "first"))
	o.Join("b", "i1")
	o.PublishTranscript(transcript("i1", "second"))

	if a.count(domain.EventTranscript) != 2 {
		t.Fatalf("a got %v", a.types())
	}
	if b.count(domain.EventTranscript) != 1 {
		t.Fatalf("b got %v", b.types())
	}
}

func TestNoCrossRoomLeakage(t *testing.T) {
	o := newOrch()
	a := connect(o, "a")
	b := connect(o, "b")
	o.Join("a", "i1")
	o.Join("b", "i2")

	o.PublishSuggestions(domain.SuggestionEvent{InterviewID: "i1", Suggestions: []string{"x"}})
	if a.count(domain.EventSuggestions) != 1 {
		t.Fatalf("a got %v", a.types())
	}
	if len(b.types()) != 0 {
		t.Fatalf("b received from another room: %v", b.types())
	}
}

func TestJoinIsIdempotentAndMultiRoom(t *testing.T) {
	o := newOrch()
	a := connect(o, "a")
	o.Join("a", "i1")
	n, _ := o.Join("a", "i1")
	if n != 1 {
		t.Fatalf("count = %d", n)
	}
	o.Join("a", "i2")
	o.PublishTranscript(transcript("i1", "x"))
	o.PublishTranscript(transcript("i2", "y"))
	if a.count(domain.EventTranscript) != 2 {
		t.Fatalf("a got %v", a.types())
	}
}

func TestJoinUnknownConnection(t *testing.T) {
	o := newOrch()
	if _, err := o.Join("ghost", "i1"); !errors.Is(err, ErrUnknownConnection) {
		t.Fatalf("err = %v", err)
	}
	if _, ok := o.Rooms.Get("i1"); ok {
		t.Fatal("room created for unknown connection")
	}
}

func TestDisconnectRemovesFromEveryRoom(t *testing.T) {
	o := newOrch()
	a := connect(o, "a")
	b := connect(o, "b")
	o.Join("a", "i1")
	o.Join("a", "i2")
	o.Join("b", "i1")

	o.Disconnect("a")
	o.Disconnect("a")
	o.Disconnect("never-connected")

	res := o.PublishTranscript(transcript("i1", "after"))
	if res.SentTo != 1 || len(res.Dropped) != 0 {
		t.Fatalf("res = %+v", res)
	}
	if a.count(domain.EventTranscript) != 0 {
		t.Fatal("disconnected connection received an event")
	}
	if b.count(domain.EventTranscript) != 1 {
		t.Fatalf("b got %v", b.types())
	}
	if _, ok := o.Rooms.Get("i2"); ok {
		t.Fatal("empty room kept after disconnect")
	}
}

func TestLeaveOneRoom(t *testing.T) {
	o := newOrch()
	a := connect(o, "a")
	o.Join("a", "i1")
	o.Join("a", "i2")
	if !o.Leave("a", "i1") || o.Leave("a", "i1") {
		t.Fatal("leave must succeed once")
	}
	o.PublishTranscript(transcript("i1", "x"))
	o.PublishTranscript(transcript("i2", "y"))
	if a.count(domain.EventTranscript) != 1 {
		t.Fatalf("a got %v", a.types())
	}
}

func TestSlowMemberIsolated(t *testing.T) {
	o := newOrch()
	slow := connect(o, "slow")
	fast := connect(o, "fast")
	o.Join("slow", "i1")
	o.Join("fast", "i1")
	slow.full = true

	res := o.PublishTranscript(transcript("i1", "x"))
	if res.SentTo != 1 || len(res.Dropped) != 1 || res.Dropped[0] != "slow" {
		t.Fatalf("res = %+v", res)
	}
	if fast.count(domain.EventTranscript) != 1 {
		t.Fatal("fast member starved by slow member")
	}
	if slow.isClosed() {
		t.Fatal("drop policy must not close the member")
	}
}

func TestKickPolicyClosesSlowMember(t *testing.T) {
	o := newOrch()
	o.Policy = app.KickPolicy{}
	slow := connect(o, "slow")
	o.Join("slow", "i1")
	slow.full = true

	o.PublishTranscript(transcript("i1", "x"))
	if !slow.isClosed() {
		t.Fatal("kick policy did not close the member")
	}
}

func TestEvictRoom(t *testing.T) {
	o := newOrch()
	a := connect(o, "a")
	o.Join("a", "i1")
	if n := o.EvictRoom("i1"); n != 1 {
		t.Fatalf("evicted %d", n)
	}
	if a.count(domain.EventLeft) != 1 {
		t.Fatalf("a got %v", a.types())
	}
	if len(o.Registry.RoomsOf("a")) != 0 {
		t.Fatal("registry still lists the room")
	}
	if o.PublishTranscript(transcript("i1", "x")).SentTo != 0 {
		t.Fatal("delivered to evicted room")
	}
}

// media fakes

type fakeTrack struct {
	once  sync.Once
	ended chan struct{}
}

func (t *fakeTrack) ID() string { return "screen" }
func (t *fakeTrack) ReadRTP() (*rtp.Packet, error) {
	<-t.ended
	return nil, errors.New("ended")
}
func (t *fakeTrack) Ended() <-chan struct{} { return t.ended }
func (t *fakeTrack) Stop() { t.once.Do(func() { close(t.ended) }) }

type fakeCapturer struct{ track *fakeTrack }

func (c *fakeCapturer) Capture(context.Context) (core.CaptureTrack, error) {
	c.track = &fakeTrack{ended: make(chan struct{})}
	return c.track, nil
}

type fakeMedia struct {
	mu        sync.Mutex
	closes    int
	closed    bool
	onClosed  func()
	closeHook func()
	stats     webrtc.StatsReport
}

func (m *fakeMedia) PublishTrack(context.Context, core.CaptureTrack, core.AppData) (core.Producer, error) {
	return core.Producer{ID: "prod-1", AppData: screenshare.AppData()}, nil
}

func (m *fakeMedia) CloseProducer(domain.ProducerID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closes++
	return nil
}

func (m *fakeMedia) Start(context.Context) error { return nil }

func (m *fakeMedia) Close() {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return
	}
	m.closed = true
	fn, hook := m.onClosed, m.closeHook
	m.mu.Unlock()
	if fn != nil {
		fn()
	}
	if hook != nil {
		hook()
	}
}

// markClosed flags the transport closed without delivering OnClosed.
func (m *fakeMedia) markClosed() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
}

func (m *fakeMedia) IsClosed() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.closed
}

func (m *fakeMedia) AddICECandidate(webrtc.ICECandidateInit) error { return nil }
func (m *fakeMedia) ApplyOfferAndCreateAnswer(webrtc.SessionDescription) (*webrtc.SessionDescription, error) {
	return &webrtc.SessionDescription{Type: webrtc.SDPTypeAnswer, SDP: "v=0"}, nil
}
func (m *fakeMedia) ApplyAnswer(webrtc.SessionDescription) error { return nil }
func (m *fakeMedia) SendTransportStats(context.Context) webrtc.StatsReport {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.stats
}
func (m *fakeMedia) OnICECandidate(func(webrtc.ICECandidateInit)) {}
func (m *fakeMedia) OnOffer(func(webrtc.SessionDescription)) {}
func (m *fakeMedia) OnClosed(fn func()) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.onClosed = fn
}

func (m *fakeMedia) closeCalls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.closes
}

func mediaOrch() (*Orchestrator, *fakeMedia, *fakeCapturer) {
	o := newOrch()
	fm := &fakeMedia{}
	fc := &fakeCapturer{}
	o.NewMedia = func(domain.ConnID) (core.MediaConnection, error) { return fm, nil }
	o.Capturer = fc
	return o, fm, fc
}

func TestScreenShareNotifiesRooms(t *testing.T) {
	o, fm, _ := mediaOrch()
	sharer := connect(o, "sharer")
	viewer := connect(o, "viewer")
	outsider := connect(o, "outsider")
	o.Join("sharer", "i1")
	o.Join("viewer", "i1")
	o.Join("outsider", "i2")

	ctx := context.Background()
	if err := o.StartScreenShare(ctx, "sharer"); err != nil {
		t.Fatal(err)
	}
	if viewer.count(domain.EventScreenShareStarted) != 1 || sharer.count(domain.EventScreenShareStarted) != 1 {
		t.Fatalf("viewer=%v sharer=%v", viewer.types(), sharer.types())
	}
	if err := o.StopScreenShare("sharer"); err != nil {
		t.Fatal(err)
	}
	if err := o.StopScreenShare("sharer"); err != nil {
		t.Fatal(err)
	}
	if viewer.count(domain.EventScreenShareStopped) != 1 {
		t.Fatalf("viewer=%v", viewer.types())
	}
	if fm.closeCalls() != 1 {
		t.Fatalf("closeProducer calls = %d", fm.closeCalls())
	}
	if len(outsider.types()) != 0 {
		t.Fatalf("outsider got %v", outsider.types())
	}
}

func TestTrackEndStopsShare(t *testing.T) {
	o, fm, fc := mediaOrch()
	viewer := connect(o, "viewer")
	connect(o, "sharer")
	o.Join("sharer", "i1")
	o.Join("viewer", "i1")

	if err := o.StartScreenShare(context.Background(), "sharer"); err != nil {
		t.Fatal(err)
	}
	fc.track.Stop()

	deadline := time.Now().Add(2 * time.Second)
	for viewer.count(domain.EventScreenShareStopped) == 0 {
		if time.Now().After(deadline) {
			t.Fatal("no screenshare:stopped after track end")
		}
		time.Sleep(10 * time.Millisecond)
	}
	if fm.closeCalls() != 1 {
		t.Fatalf("closeProducer calls = %d", fm.closeCalls())
	}
}

func TestDisconnectStopsShareAndClosesMedia(t *testing.T) {
	o, fm, _ := mediaOrch()
	viewer := connect(o, "viewer")
	connect(o, "sharer")
	o.Join("sharer", "i1")
	o.Join("viewer", "i1")
	if err := o.StartScreenShare(context.Background(), "sharer"); err != nil {
		t.Fatal(err)
	}

	o.Disconnect("sharer")
	if viewer.count(domain.EventScreenShareStopped) != 1 {
		t.Fatalf("viewer=%v", viewer.types())
	}
	if !fm.IsClosed() || fm.closeCalls() != 1 {
		t.Fatalf("closed=%v closeProducer=%d", fm.IsClosed(), fm.closeCalls())
	}
	if _, ok := o.Registry.Media("sharer"); ok {
		t.Fatal("media still registered")
	}
}

func TestMediaClosedOutOfBand(t *testing.T) {
	o, fm, _ := mediaOrch()
	connect(o, "a")
	if _, err := o.HandleOffer(context.Background(), "a", webrtc.SessionDescription{Type: webrtc.SDPTypeOffer, SDP: "v=0"}); err != nil {
		t.Fatal(err)
	}
	fm.Close()
	if _, ok := o.Registry.Media("a"); ok {
		t.Fatal("media kept after transport closed")
	}
	if err := o.StopScreenShare("a"); !errors.Is(err, ErrNoMediaSession) {
		t.Fatalf("err = %v", err)
	}
}

func TestQualityPublishedToRooms(t *testing.T) {
	o := newOrch()
	a := connect(o, "a")
	lonely := connect(o, "lonely")
	o.Join("a", "i1")

	o.onQuality("a", 3)
	o.onQuality("lonely", 2)
	if a.count(domain.EventNetworkQuality) != 1 || lonely.count(domain.EventNetworkQuality) != 1 {
		t.Fatalf("a=%v lonely=%v", a.types(), lonely.types())
	}
}

func TestDisconnectClosesMediaAttachedDuringCleanup(t *testing.T) {
	o := newOrch()
	connect(o, "a")
	first, late := &fakeMedia{}, &fakeMedia{}
	o.NewMedia = func(domain.ConnID) (core.MediaConnection, error) {
		if first.IsClosed() {
			return late, nil
		}
		return first, nil
	}
	ctx := context.Background()
	if _, err := o.AttachMedia(ctx, "a"); err != nil {
		t.Fatal(err)
	}
	// A screen share request attaches new media while the first is torn down.
	first.closeHook = func() {
		if _, err := o.AttachMedia(ctx, "a"); err != nil {
			t.Errorf("attach during cleanup: %v", err)
		}
	}

	o.Disconnect("a")
	if !late.IsClosed() {
		t.Fatal("media attached during disconnect left open")
	}
	if _, err := o.AttachMedia(ctx, "a"); !errors.Is(err, ErrUnknownConnection) {
		t.Fatalf("attach after disconnect: %v", err)
	}
}

func TestAttachMediaReplacesClosedTransport(t *testing.T) {
	o := newOrch()
	connect(o, "a")
	first, second := &fakeMedia{}, &fakeMedia{}
	o.NewMedia = func(domain.ConnID) (core.MediaConnection, error) {
		if first.IsClosed() {
			return second, nil
		}
		return first, nil
	}
	ctx := context.Background()
	m1, err := o.AttachMedia(ctx, "a")
	if err != nil {
		t.Fatal(err)
	}
	if again, _ := o.AttachMedia(ctx, "a"); again != m1 {
		t.Fatal("live media not reused")
	}

	first.markClosed()
	m2, err := o.AttachMedia(ctx, "a")
	if err != nil {
		t.Fatal(err)
	}
	if m2 == m1 || m2.Conn != second {
		t.Fatal("closed transport reused")
	}

	// The old transport's close callback arrives late and must leave m2 alone.
	first.mu.Lock()
	late := first.onClosed
	first.mu.Unlock()
	late()
	if got, ok := o.Registry.Media("a"); !ok || got != m2 {
		t.Fatal("late close callback dropped the new media")
	}
}

func TestEnableQualityToggle(t *testing.T) {
	o := newOrch()
	a := connect(o, "a")
	ctx := context.Background()
	if err := o.EnableQuality(ctx, "a", true); !errors.Is(err, ErrNoMediaSession) {
		t.Fatalf("err = %v", err)
	}

	fm := &fakeMedia{stats: webrtc.StatsReport{}}
	o.NewMedia = func(domain.ConnID) (core.MediaConnection, error) { return fm, nil }
	o.QualityInterval = 10 * time.Millisecond
	if _, err := o.AttachMedia(ctx, "a"); err != nil {
		t.Fatal(err)
	}
	if err := o.EnableQuality(ctx, "a", true); err != nil {
		t.Fatal(err)
	}
	deadline := time.Now().Add(2 * time.Second)
	for a.count(domain.EventNetworkQuality) == 0 {
		if time.Now().After(deadline) {
			t.Fatal("no network-quality after enable")
		}
		time.Sleep(5 * time.Millisecond)
	}
	if err := o.EnableQuality(ctx, "a", false); err != nil {
		t.Fatal(err)
	}
	// Steady stats report once; after disable nothing more arrives either way.
	n := a.count(domain.EventNetworkQuality)
	time.Sleep(50 * time.Millisecond)
	if got := a.count(domain.EventNetworkQuality); got != n || n != 1 {
		t.Fatalf("network-quality events = %d then %d", n, got)
	}
}
