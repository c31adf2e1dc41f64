package signal

import (
	"github.com/dkeye/copilot/internal/domain"
	"github.com/rs/zerolog/log"
)

type interviewPayload struct {
	InterviewID string `json:"interviewId"`
}

func (ctl *SignalWSController) handleJoin(
	cid domain.ConnID,
	conn *WsSignalConn,
	data []byte,
) {
	var p interviewPayload
	if !ctl.decode(conn, data, &p) {
		return
	}
	id, err := domain.ParseInterviewID(p.InterviewID)
	if err != nil {
		ctl.sendError(conn, "invalid_interview")
		return
	}
	count, err := ctl.Orch.Join(cid, id)
	if err != nil {
		log.Warn().Err(err).Str("module", "signal").Str("conn", string(cid)).Msg("join")
		ctl.sendError(conn, "join_failed")
		return
	}
	log.Info().Str("module", "signal").Str("conn", string(cid)).Str("interview", string(id)).Int("count", count).Msg("join")
	ctl.sendJSON(conn, domain.EventJoined, struct {
		InterviewID domain.InterviewID `json:"interviewId"`
		Count       int                `json:"count"`
	}{id, count})
}

// handleLeave leaves one room; the connection stays open.
func (ctl *SignalWSController) handleLeave(
	cid domain.ConnID,
	conn *WsSignalConn,
	data []byte,
) {
	var p interviewPayload
	if !ctl.decode(conn, data, &p) {
		return
	}
	id := domain.InterviewID(p.InterviewID)
	if !ctl.Orch.Leave(cid, id) {
		ctl.sendError(conn, "not_a_member")
		return
	}
	ctl.sendJSON(conn, domain.EventLeft, interviewPayload{InterviewID: p.InterviewID})
}
