package orch

import (
	"errors"
	"sync"
	"time"

	"github.com/dkeye/copilot/internal/app"
	"github.com/dkeye/copilot/internal/app/copilot"
	"github.com/dkeye/copilot/internal/app/screenshare"
	"github.com/dkeye/copilot/internal/core"
	"github.com/dkeye/copilot/internal/domain"
	"github.com/dkeye/copilot/internal/metrics"
	"github.com/rs/zerolog/log"
)

var (
	ErrUnknownConnection = errors.New("unknown connection")
	ErrNoMediaSession    = errors.New("no media session")
)

// MediaFactory opens the conferencing transport for one connection.
type MediaFactory func(cid domain.ConnID) (core.MediaConnection, error)

// Orchestrator is the relay: it owns membership, fan-out and the per
// connection media wiring.
type Orchestrator struct {
	Registry *app.Registry
	Rooms    core.RoomManager
	Policy   app.Policy
	Copilot  *copilot.Pipeline

	NewMedia        MediaFactory
	Capturer        screenshare.Capturer
	QualityEnabled  bool
	QualityInterval time.Duration

	mediaMu sync.Mutex
}

// Connect registers a live signal connection. cancel tears down its pumps.
func (o *Orchestrator) Connect(cid domain.ConnID, conn core.SignalConnection, cancel func()) {
	o.Registry.BindSignal(cid, conn, cancel)
	metrics.ConnectionsActive.Inc()
}

// Publish delivers payload to every current member of the interview room.
// Delivery failures stay per member and are handed to the policy.
func (o *Orchestrator) Publish(kind domain.EventKind, id domain.InterviewID, payload any) core.PublishResult {
	logger := log.With().Str("module", "orch").Str("interview", string(id)).Str("kind", string(kind)).Logger()
	metrics.EventsPublished.WithLabelValues(string(kind)).Inc()

	room, ok := o.Rooms.Get(id)
	if !ok {
		logger.Debug().Msg("publish to empty room")
		return core.PublishResult{}
	}
	frame, err := core.EncodeEvent(kind, payload)
	if err != nil {
		logger.Error().Err(err).Msg("encode event")
		return core.PublishResult{}
	}

	res := room.Broadcast(frame)
	metrics.Deliveries.WithLabelValues("sent").Add(float64(res.SentTo))
	if len(res.Dropped) == 0 {
		return res
	}
	metrics.Deliveries.WithLabelValues("dropped").Add(float64(len(res.Dropped)))
	if o.Policy == nil {
		return res
	}
	for _, slow := range res.Dropped {
		switch o.Policy.OnBackPressure(room, slow) {
		case app.KickMember:
			logger.Warn().Str("conn", string(slow)).Msg("kicking slow member")
			o.Kick(slow)
		case app.DropFrame, app.NoAction:
			logger.Debug().Str("conn", string(slow)).Msg("frame dropped for slow member")
		}
	}
	return res
}

// Send writes one event to a single connection.
func (o *Orchestrator) Send(cid domain.ConnID, kind domain.EventKind, payload any) error {
	conn, ok := o.Registry.Signal(cid)
	if !ok {
		return ErrUnknownConnection
	}
	frame, err := core.EncodeEvent(kind, payload)
	if err != nil {
		return err
	}
	return conn.TrySend(frame)
}

// Kick closes the member's transport; its read loop then runs Disconnect.
func (o *Orchestrator) Kick(cid domain.ConnID) {
	conn, ok := o.Registry.Signal(cid)
	if !ok {
		return
	}
	metrics.MembersKicked.Inc()
	o.Registry.Cancel(cid)
	conn.Close()
}
