package signal

import (
	"context"

	"github.com/dkeye/copilot/internal/app/copilot"
	"github.com/dkeye/copilot/internal/domain"
	"github.com/rs/zerolog/log"
)

func (ctl *SignalWSController) handleTranscript(conn *WsSignalConn, data []byte) {
	var ev domain.TranscriptEvent
	if !ctl.decode(conn, data, &ev) {
		return
	}
	ctl.Orch.PublishTranscript(ev)
}

func (ctl *SignalWSController) handleSuggestions(conn *WsSignalConn, data []byte) {
	var ev domain.SuggestionEvent
	if !ctl.decode(conn, data, &ev) {
		return
	}
	ctl.Orch.PublishSuggestions(ev)
}

func (ctl *SignalWSController) handleSpeech(conn *WsSignalConn, data []byte) {
	var m domain.SpeechMetrics
	if !ctl.decode(conn, data, &m) {
		return
	}
	ctl.Orch.Publish(domain.EventSpeech, m.InterviewID, m)
}

func (ctl *SignalWSController) handleVisual(conn *WsSignalConn, data []byte) {
	var m domain.VisualMetrics
	if !ctl.decode(conn, data, &m) {
		return
	}
	ctl.Orch.Publish(domain.EventVisual, m.InterviewID, m)
}

func (ctl *SignalWSController) handleLandmarks(conn *WsSignalConn, data []byte) {
	var p struct {
		InterviewID domain.InterviewID `json:"interviewId"`
		Landmarks   []copilot.Point    `json:"landmarks"`
	}
	if !ctl.decode(conn, data, &p) {
		return
	}
	ctl.Orch.AnalyzeLandmarks(p.InterviewID, p.Landmarks)
}

// handleStop flushes the interview's pending transcript without blocking
// the read loop on the suggestion call.
func (ctl *SignalWSController) handleStop(ctx context.Context, conn *WsSignalConn, data []byte) {
	var p interviewPayload
	if !ctl.decode(conn, data, &p) {
		return
	}
	id := domain.InterviewID(p.InterviewID)
	log.Info().Str("module", "signal").Str("interview", string(id)).Msg("copilot stop")
	go ctl.Orch.StopCopilot(context.WithoutCancel(ctx), id)
}
