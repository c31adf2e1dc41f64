package rtc

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/dkeye/copilot/internal/app/sfu"
	"github.com/dkeye/copilot/internal/core"
	"github.com/dkeye/copilot/internal/domain"
	"github.com/pion/webrtc/v4"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

var ErrNotStarted = errors.New("media connection not started")

type producer struct {
	sender  *webrtc.RTPSender
	appData core.AppData
}

type WebRTCConnection struct {
	pc     *webrtc.PeerConnection
	cid    domain.ConnID
	logger zerolog.Logger
	pumps  *sfu.PumpManager

	ctx    context.Context
	cancel context.CancelFunc
	closed atomic.Bool

	mu        sync.Mutex
	producers map[domain.ProducerID]producer
	onICE     func(webrtc.ICECandidateInit)
	onOffer   func(webrtc.SessionDescription)
	onClosed  func()
	closeOnce sync.Once
}

// DefaultWebRTCConfig builds the ICE configuration from STUN urls.
func DefaultWebRTCConfig(stunURLs []string) webrtc.Configuration {
	if len(stunURLs) == 0 {
		return webrtc.Configuration{}
	}
	return webrtc.Configuration{
		ICEServers: []webrtc.ICEServer{
			{URLs: stunURLs},
		},
	}
}

func NewWebRTCConnection(cfg webrtc.Configuration, cid domain.ConnID) (*WebRTCConnection, error) {
	pc, err := webrtc.NewPeerConnection(cfg)
	if err != nil {
		return nil, err
	}
	return &WebRTCConnection{
		pc:        pc,
		cid:       cid,
		logger:    log.With().Str("module", "webrtc").Str("conn", string(cid)).Logger(),
		pumps:     sfu.NewPumpManager(),
		producers: make(map[domain.ProducerID]producer),
	}, nil
}

func (c *WebRTCConnection) Start(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	c.mu.Lock()
	c.ctx, c.cancel = ctx, cancel
	c.mu.Unlock()

	c.pc.OnICEConnectionStateChange(func(s webrtc.ICEConnectionState) {
		c.logger.Info().Str("ice_state", s.String()).Msg("ICE state")
		if s == webrtc.ICEConnectionStateFailed ||
			s == webrtc.ICEConnectionStateClosed {
			cancel()
		}
	})

	c.pc.OnConnectionStateChange(func(s webrtc.PeerConnectionState) {
		c.logger.Info().Str("peer_connection_state", s.String()).Msg("Peer state")
		if s == webrtc.PeerConnectionStateFailed ||
			s == webrtc.PeerConnectionStateClosed {
			c.fireClosed()
		}
	})

	c.pc.OnICECandidate(func(cand *webrtc.ICECandidate) {
		if cand == nil {
			return
		}
		c.mu.Lock()
		fn := c.onICE
		c.mu.Unlock()
		if fn != nil {
			fn(cand.ToJSON())
		}
	})

	c.pc.OnNegotiationNeeded(c.renegotiate)

	context.AfterFunc(ctx, c.Close)
	return nil
}

// renegotiate sends a fresh offer after tracks were added or removed.
func (c *WebRTCConnection) renegotiate() {
	if c.closed.Load() {
		return
	}
	c.mu.Lock()
	fn := c.onOffer
	c.mu.Unlock()
	if fn == nil {
		return
	}
	offer, err := c.pc.CreateOffer(nil)
	if err != nil {
		c.logger.Error().Err(err).Msg("create offer")
		return
	}
	if err := c.pc.SetLocalDescription(offer); err != nil {
		c.logger.Error().Err(err).Msg("set local offer")
		return
	}
	fn(*c.pc.LocalDescription())
}

func (c *WebRTCConnection) ApplyOfferAndCreateAnswer(offer webrtc.SessionDescription) (*webrtc.SessionDescription, error) {
	if err := c.pc.SetRemoteDescription(offer); err != nil {
		return nil, err
	}
	answer, err := c.pc.CreateAnswer(nil)
	if err != nil {
		return nil, err
	}

	gatherComplete := webrtc.GatheringCompletePromise(c.pc)
	if err := c.pc.SetLocalDescription(answer); err != nil {
		return nil, err
	}
	<-gatherComplete

	return c.pc.LocalDescription(), nil
}

func (c *WebRTCConnection) ApplyAnswer(answer webrtc.SessionDescription) error {
	return c.pc.SetRemoteDescription(answer)
}

// PublishTrack adds a local RTP track fed by the capture source and starts
// pumping packets into it for the lifetime of the connection.
func (c *WebRTCConnection) PublishTrack(_ context.Context, track core.CaptureTrack, appData core.AppData) (core.Producer, error) {
	if c.closed.Load() {
		return core.Producer{}, core.ErrConnectionClosed
	}
	c.mu.Lock()
	connCtx := c.ctx
	c.mu.Unlock()
	if connCtx == nil {
		return core.Producer{}, ErrNotStarted
	}

	id := domain.NewProducerID()
	streamID := "media"
	if kind, ok := appData["type"].(string); ok && kind != "" {
		streamID = kind
	}
	local, err := webrtc.NewTrackLocalStaticRTP(
		webrtc.RTPCodecCapability{MimeType: webrtc.MimeTypeVP8},
		fmt.Sprintf("%s-%s", streamID, id),
		streamID,
	)
	if err != nil {
		return core.Producer{}, err
	}
	sender, err := c.pc.AddTrack(local)
	if err != nil {
		return core.Producer{}, err
	}

	// Drain RTCP so interceptors keep working.
	go func() {
		buf := make([]byte, 1500)
		for {
			if _, _, err := sender.Read(buf); err != nil {
				return
			}
		}
	}()

	c.mu.Lock()
	c.producers[id] = producer{sender: sender, appData: appData}
	c.mu.Unlock()

	c.pumps.Start(connCtx, id, track, local)
	c.logger.Info().
		Str("producer", string(id)).
		Str("track_id", local.ID()).
		Str("source", track.ID()).
		Msg("track published")
	return core.Producer{ID: id, AppData: appData}, nil
}

// CloseProducer removes the producer's track. Unknown ids are ignored.
func (c *WebRTCConnection) CloseProducer(id domain.ProducerID) error {
	c.mu.Lock()
	p, ok := c.producers[id]
	delete(c.producers, id)
	c.mu.Unlock()
	if !ok {
		return nil
	}
	c.pumps.Stop(id)
	if c.closed.Load() {
		return nil
	}
	if err := c.pc.RemoveTrack(p.sender); err != nil && !c.closed.Load() {
		return err
	}
	c.logger.Info().Str("producer", string(id)).Msg("producer closed")
	return nil
}

func (c *WebRTCConnection) Producers() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.producers)
}

// SendTransportStats returns nil once the connection is closed.
func (c *WebRTCConnection) SendTransportStats(ctx context.Context) webrtc.StatsReport {
	if c.closed.Load() || ctx.Err() != nil {
		return nil
	}
	return c.pc.GetStats()
}

func (c *WebRTCConnection) Close() {
	if !c.closed.CompareAndSwap(false, true) {
		return
	}
	c.mu.Lock()
	cancel := c.cancel
	c.producers = make(map[domain.ProducerID]producer)
	c.mu.Unlock()
	if cancel != nil {
		cancel()
	}
	pumps := c.pumps.Len()
	c.pumps.StopAll()
	if err := c.pc.Close(); err != nil {
		c.logger.Error().Err(err).Msg("close error")
	} else {
		c.logger.Info().Int("pumps", pumps).Msg("closed")
	}
	c.fireClosed()
}

func (c *WebRTCConnection) IsClosed() bool { return c.closed.Load() }

func (c *WebRTCConnection) fireClosed() {
	c.closeOnce.Do(func() {
		c.mu.Lock()
		fn := c.onClosed
		c.mu.Unlock()
		if fn != nil {
			fn()
		}
	})
}

func (c *WebRTCConnection) AddICECandidate(ci webrtc.ICECandidateInit) error {
	return c.pc.AddICECandidate(ci)
}

func (c *WebRTCConnection) OnICECandidate(fn func(webrtc.ICECandidateInit)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.onICE = fn
}

// OnOffer sets the callback for server-initiated offers.
func (c *WebRTCConnection) OnOffer(fn func(webrtc.SessionDescription)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.onOffer = fn
}

// OnClosed sets application-level callback for cleanup media session.
func (c *WebRTCConnection) OnClosed(fn func()) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.onClosed = fn
}
