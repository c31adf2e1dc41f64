package orch

import (
	"context"

	"github.com/dkeye/copilot/internal/app"
	"github.com/dkeye/copilot/internal/app/quality"
	"github.com/dkeye/copilot/internal/app/screenshare"
	"github.com/dkeye/copilot/internal/domain"
	"github.com/pion/webrtc/v4"
	"github.com/rs/zerolog/log"
)

// AttachMedia returns the connection's media session, opening one on first use.
// ctx bounds the media lifetime, usually the signal connection's context.
func (o *Orchestrator) AttachMedia(ctx context.Context, cid domain.ConnID) (*app.MediaSession, error) {
	var stale *app.MediaSession
	defer func() {
		// Runs after mediaMu is released.
		if stale != nil {
			stale.Close()
		}
	}()
	o.mediaMu.Lock()
	defer o.mediaMu.Unlock()
	if m, ok := o.Registry.Media(cid); ok {
		if !m.Conn.IsClosed() {
			return m, nil
		}
		// Transport died and its close callback has not landed yet.
		stale = m
		o.Registry.SetMedia(cid, nil)
	}
	if _, ok := o.Registry.Signal(cid); !ok {
		return nil, ErrUnknownConnection
	}
	if o.NewMedia == nil {
		return nil, ErrNoMediaSession
	}
	mc, err := o.NewMedia(cid)
	if err != nil {
		return nil, err
	}
	logger := log.With().Str("conn", string(cid)).Logger()

	mc.OnICECandidate(func(c webrtc.ICECandidateInit) {
		if err := o.Send(cid, domain.EventCandidate, c); err != nil {
			logger.Debug().Err(err).Str("module", "orch").Msg("send candidate")
		}
	})
	mc.OnOffer(func(sd webrtc.SessionDescription) {
		if err := o.Send(cid, domain.EventOffer, map[string]string{"sdp": sd.SDP}); err != nil {
			logger.Debug().Err(err).Str("module", "orch").Msg("send offer")
		}
	})
	media := &app.MediaSession{Conn: mc}
	media.Share = screenshare.NewSession(o.Capturer, mc, &roomNotifier{o: o, cid: cid}, logger)
	media.Quality = quality.NewMonitor(mc, o.QualityInterval, func(l quality.Level) {
		o.onQuality(cid, l)
	}, logger)

	if err := mc.Start(ctx); err != nil {
		mc.Close()
		return nil, err
	}
	if !o.Registry.SetMedia(cid, media) {
		mc.Close()
		return nil, ErrUnknownConnection
	}
	// Registered last: Close on the error paths above must not re-enter mediaMu.
	mc.OnClosed(func() { o.onMediaClosed(cid, media) })
	if o.QualityEnabled {
		media.Quality.Enable(ctx)
	}
	logger.Info().Str("module", "orch").Msg("media attached")
	return media, nil
}

// HandleOffer applies a client offer and returns the answer.
func (o *Orchestrator) HandleOffer(ctx context.Context, cid domain.ConnID, offer webrtc.SessionDescription) (*webrtc.SessionDescription, error) {
	media, err := o.AttachMedia(ctx, cid)
	if err != nil {
		return nil, err
	}
	return media.Conn.ApplyOfferAndCreateAnswer(offer)
}

// HandleAnswer applies the client's answer to a server-initiated offer.
func (o *Orchestrator) HandleAnswer(cid domain.ConnID, answer webrtc.SessionDescription) error {
	media, ok := o.Registry.Media(cid)
	if !ok {
		return ErrNoMediaSession
	}
	return media.Conn.ApplyAnswer(answer)
}

func (o *Orchestrator) HandleCandidate(cid domain.ConnID, c webrtc.ICECandidateInit) error {
	media, ok := o.Registry.Media(cid)
	if !ok {
		return ErrNoMediaSession
	}
	return media.Conn.AddICECandidate(c)
}

// StartScreenShare blocks while the capture request is pending. Only a
// transport publish failure is returned. ctx is the connection's context.
func (o *Orchestrator) StartScreenShare(ctx context.Context, cid domain.ConnID) error {
	media, err := o.AttachMedia(ctx, cid)
	if err != nil {
		return err
	}
	return media.Share.Start(ctx)
}

func (o *Orchestrator) StopScreenShare(cid domain.ConnID) error {
	media, ok := o.Registry.Media(cid)
	if !ok {
		return ErrNoMediaSession
	}
	media.Share.Stop()
	return nil
}

// EnableQuality toggles network quality polling for the connection.
func (o *Orchestrator) EnableQuality(ctx context.Context, cid domain.ConnID, on bool) error {
	media, ok := o.Registry.Media(cid)
	if !ok {
		return ErrNoMediaSession
	}
	if on {
		media.Quality.Enable(ctx)
	} else {
		media.Quality.Disable()
	}
	return nil
}

func (o *Orchestrator) onQuality(cid domain.ConnID, level quality.Level) {
	ev := domain.NetworkQualityEvent{PeerID: cid, Quality: int(level)}
	rooms := o.Registry.RoomsOf(cid)
	if len(rooms) == 0 {
		_ = o.Send(cid, domain.EventNetworkQuality, ev)
		return
	}
	// The connection is a member of each room, so it hears its own level.
	for _, id := range rooms {
		o.Publish(domain.EventNetworkQuality, id, ev)
	}
}

func (o *Orchestrator) onMediaClosed(cid domain.ConnID, media *app.MediaSession) {
	log.Info().Str("module", "orch").Str("conn", string(cid)).Msg("media closed")
	o.releaseMedia(cid, media)
}

func (o *Orchestrator) cleanupMedia(cid domain.ConnID) {
	o.releaseMedia(cid, nil)
}

// releaseMedia detaches and closes the connection's media session. A non-nil
// only leaves a newer session in place.
func (o *Orchestrator) releaseMedia(cid domain.ConnID, only *app.MediaSession) {
	o.mediaMu.Lock()
	media, ok := o.Registry.Media(cid)
	if ok && only != nil && media != only {
		ok = false
	}
	if ok {
		o.Registry.SetMedia(cid, nil)
	}
	o.mediaMu.Unlock()
	if ok {
		media.Close()
	}
}

// roomNotifier reports producer transitions to every room the connection joined.
type roomNotifier struct {
	o   *Orchestrator
	cid domain.ConnID
}

func (n *roomNotifier) OnStarted(id domain.ProducerID) {
	for _, room := range n.o.Registry.RoomsOf(n.cid) {
		n.o.Publish(domain.EventScreenShareStarted, room, domain.ScreenShareEvent{
			InterviewID: room,
			PeerID:      n.cid,
			ProducerID:  id,
			AppData:     screenshare.AppData(),
		})
	}
}

func (n *roomNotifier) OnStopped(id domain.ProducerID) {
	for _, room := range n.o.Registry.RoomsOf(n.cid) {
		n.o.Publish(domain.EventScreenShareStopped, room, domain.ScreenShareEvent{
			InterviewID: room,
			PeerID:      n.cid,
			ProducerID:  id,
		})
	}
}
