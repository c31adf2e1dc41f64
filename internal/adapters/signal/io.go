package signal

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/dkeye/copilot/internal/core"
	"github.com/dkeye/copilot/internal/domain"
	"github.com/dkeye/copilot/internal/metrics"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"
)

func (ctl *SignalWSController) writePump(ctx context.Context, cid domain.ConnID, c *WsSignalConn) {
	ticker := time.NewTicker(ctl.Opts.PingPeriod)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			log.Info().Str("module", "signal").Str("conn", string(cid)).Msg("writePump ctx done")
			c.Close()
			return
		case <-ticker.C:
			deadline := time.Now().Add(ctl.Opts.WriteTimeout)
			if err := c.conn.WriteControl(websocket.PingMessage, nil, deadline); err != nil {
				log.Debug().Err(err).Str("module", "signal").Str("conn", string(cid)).Msg("writePump ping")
				c.Close()
				return
			}
		case data, ok := <-c.send:
			if !ok {
				log.Debug().Str("module", "signal").Str("conn", string(cid)).Msg("writePump channel closed")
				return
			}
			if err := c.conn.SetWriteDeadline(time.Now().Add(ctl.Opts.WriteTimeout)); err != nil {
				log.Error().Err(err).Str("module", "signal").Msg("writePump set deadline")
				c.Close()
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
				log.Error().Err(err).Str("module", "signal").Str("conn", string(cid)).Msg("writePump write error")
				c.Close()
				return
			}
		}
	}
}

func (ctl *SignalWSController) readPump(ctx context.Context, cancel context.CancelFunc, cid domain.ConnID, c *WsSignalConn) {
	defer func() {
		log.Info().Str("module", "signal").Str("conn", string(cid)).Msg("readPump closing")
		cancel()
		c.Close()
		ctl.Orch.Disconnect(cid)
		if ctl.Limiter != nil {
			ctl.Limiter.Forget(cid)
		}
	}()

	pongWait := ctl.Opts.PingPeriod * 2
	c.conn.SetReadLimit(ctl.Opts.ReadLimit)
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		select {
		case <-ctx.Done():
			log.Info().Str("module", "signal").Str("conn", string(cid)).Msg("readPump ctx done")
			return
		default:
			_, data, err := c.conn.ReadMessage()
			if err != nil {
				if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
					log.Warn().Err(err).Str("module", "signal").Str("conn", string(cid)).Msg("readPump read error")
				}
				return
			}
			_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
			ctl.handleSignal(ctx, cid, c, data)
		}
	}
}

func (ctl *SignalWSController) handleSignal(ctx context.Context, cid domain.ConnID, c *WsSignalConn, data []byte) {
	var env struct {
		Type domain.EventKind `json:"type"`
	}
	if err := json.Unmarshal(data, &env); err != nil {
		log.Warn().Err(err).Str("module", "signal").Msg("bad json")
		metrics.InvalidEvents.WithLabelValues("json").Inc()
		ctl.sendError(c, "bad_json")
		return
	}
	if ctl.Limiter != nil && throttled(env.Type) && !ctl.Limiter.Allow(cid) {
		metrics.InvalidEvents.WithLabelValues("rate_limited").Inc()
		ctl.sendError(c, "rate_limited")
		return
	}
	if ctl.Schemas != nil {
		if err := ctl.Schemas.Validate(env.Type, data); err != nil {
			log.Debug().Err(err).Str("module", "signal").Str("type", string(env.Type)).Msg("schema rejected event")
			metrics.InvalidEvents.WithLabelValues("schema").Inc()
			ctl.sendError(c, "bad_payload")
			return
		}
	}

	switch env.Type {
	case domain.EventJoinInterview:
		ctl.handleJoin(cid, c, data)
	case domain.EventLeaveInterview:
		ctl.handleLeave(cid, c, data)
	case domain.EventPing:
		ctl.handlePing(c)
	case domain.EventTranscript:
		ctl.handleTranscript(c, data)
	case domain.EventSuggestions:
		ctl.handleSuggestions(c, data)
	case domain.EventSpeech:
		ctl.handleSpeech(c, data)
	case domain.EventVisual:
		ctl.handleVisual(c, data)
	case domain.EventLandmarks:
		ctl.handleLandmarks(c, data)
	case domain.EventStop:
		ctl.handleStop(ctx, c, data)
	case domain.EventOffer:
		ctl.handleOffer(ctx, cid, c, data)
	case domain.EventAnswer:
		ctl.handleAnswer(cid, c, data)
	case domain.EventCandidate:
		ctl.handleCandidate(cid, data)
	case domain.EventScreenShareStart:
		ctl.handleScreenShareStart(ctx, cid, c)
	case domain.EventScreenShareStop:
		ctl.handleScreenShareStop(cid, c)
	case domain.EventQualityEnable:
		ctl.handleQualityEnable(ctx, cid, c, data)
	default:
		log.Warn().Str("module", "signal").Str("type", string(env.Type)).Msg("unknown signal")
		metrics.InvalidEvents.WithLabelValues("unknown_type").Inc()
		ctl.sendError(c, "unknown_type")
	}
}

// throttled reports whether kind counts against the connection's rate limit.
// Room-addressed relay traffic and keepalives are never refused.
func throttled(kind domain.EventKind) bool {
	switch kind {
	case domain.EventPing,
		domain.EventTranscript,
		domain.EventSuggestions,
		domain.EventSpeech,
		domain.EventVisual,
		domain.EventLandmarks:
		return false
	}
	return true
}

func (ctl *SignalWSController) sendJSON(c *WsSignalConn, kind domain.EventKind, v any) {
	frame, err := core.EncodeEvent(kind, v)
	if err != nil {
		log.Error().Err(err).Str("module", "signal").Msg("sendJSON marshal")
		return
	}
	if err := c.TrySend(frame); err != nil && !errors.Is(err, core.ErrConnectionClosed) {
		log.Debug().Err(err).Str("module", "signal").Str("type", string(kind)).Msg("sendJSON")
	}
}

func (ctl *SignalWSController) sendError(c *WsSignalConn, code string) {
	ctl.sendJSON(c, domain.EventError, map[string]string{"error": code})
}

func (ctl *SignalWSController) decode(c *WsSignalConn, data []byte, v any) bool {
	if err := json.Unmarshal(data, v); err != nil {
		log.Warn().Err(err).Str("module", "signal").Msg("bad payload")
		metrics.InvalidEvents.WithLabelValues("decode").Inc()
		ctl.sendError(c, "bad_payload")
		return false
	}
	return true
}
