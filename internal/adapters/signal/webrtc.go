package signal

import (
	"context"
	"encoding/json"
	"errors"

	"github.com/dkeye/copilot/internal/app/screenshare"
	"github.com/dkeye/copilot/internal/domain"
	"github.com/pion/webrtc/v4"
	"github.com/rs/zerolog/log"
)

type sdpPayload struct {
	SDP string `json:"sdp"`
}

func (ctl *SignalWSController) handleOffer(
	ctx context.Context,
	cid domain.ConnID,
	conn *WsSignalConn,
	data []byte,
) {
	var p sdpPayload
	if !ctl.decode(conn, data, &p) {
		return
	}
	offer := webrtc.SessionDescription{Type: webrtc.SDPTypeOffer, SDP: p.SDP}
	answer, err := ctl.Orch.HandleOffer(ctx, cid, offer)
	if err != nil {
		log.Error().Err(err).Str("module", "signal").Str("conn", string(cid)).Msg("webrtc apply offer")
		ctl.sendError(conn, "offer_failed")
		return
	}
	ctl.sendJSON(conn, domain.EventAnswer, sdpPayload{SDP: answer.SDP})
}

func (ctl *SignalWSController) handleAnswer(
	cid domain.ConnID,
	conn *WsSignalConn,
	data []byte,
) {
	var p sdpPayload
	if !ctl.decode(conn, data, &p) {
		return
	}
	answer := webrtc.SessionDescription{Type: webrtc.SDPTypeAnswer, SDP: p.SDP}
	if err := ctl.Orch.HandleAnswer(cid, answer); err != nil {
		log.Error().Err(err).Str("module", "signal").Str("conn", string(cid)).Msg("webrtc apply answer")
		ctl.sendError(conn, "answer_failed")
	}
}

func (ctl *SignalWSController) handleCandidate(
	cid domain.ConnID,
	data []byte,
) {
	type candidatePayload struct {
		Candidate     string  `json:"candidate"`
		SDPMid        *string `json:"sdpMid"`
		SDPMLineIndex *uint16 `json:"sdpMLineIndex"`
	}
	var p candidatePayload
	if err := json.Unmarshal(data, &p); err != nil {
		log.Error().Err(err).Str("module", "signal").Msg("bad candidate payload")
		return
	}
	cand := webrtc.ICECandidateInit{
		Candidate:     p.Candidate,
		SDPMid:        p.SDPMid,
		SDPMLineIndex: p.SDPMLineIndex,
	}
	if err := ctl.Orch.HandleCandidate(cid, cand); err != nil {
		log.Warn().Err(err).Str("module", "signal").Str("conn", string(cid)).Msg("add ice candidate")
	}
}

// handleScreenShareStart runs the capture request off the read loop; it may
// wait on the capture source for a long time.
func (ctl *SignalWSController) handleScreenShareStart(
	ctx context.Context,
	cid domain.ConnID,
	conn *WsSignalConn,
) {
	go func() {
		err := ctl.Orch.StartScreenShare(ctx, cid)
		switch {
		case err == nil:
		case errors.Is(err, screenshare.ErrPublishFailed):
			log.Error().Err(err).Str("module", "signal").Str("conn", string(cid)).Msg("screen share publish")
			ctl.sendError(conn, "publish_failed")
		default:
			log.Error().Err(err).Str("module", "signal").Str("conn", string(cid)).Msg("screen share start")
			ctl.sendError(conn, "screenshare_unavailable")
		}
	}()
}

func (ctl *SignalWSController) handleScreenShareStop(
	cid domain.ConnID,
	conn *WsSignalConn,
) {
	if err := ctl.Orch.StopScreenShare(cid); err != nil {
		ctl.sendError(conn, "no_media")
	}
}

// handleQualityEnable toggles network quality polling on the caller's media
// session.
func (ctl *SignalWSController) handleQualityEnable(
	ctx context.Context,
	cid domain.ConnID,
	conn *WsSignalConn,
	data []byte,
) {
	var p struct {
		Enabled bool `json:"enabled"`
	}
	if !ctl.decode(conn, data, &p) {
		return
	}
	if err := ctl.Orch.EnableQuality(ctx, cid, p.Enabled); err != nil {
		ctl.sendError(conn, "no_media")
		return
	}
	log.Info().Str("module", "signal").Str("conn", string(cid)).Bool("enabled", p.Enabled).Msg("network quality toggled")
}
