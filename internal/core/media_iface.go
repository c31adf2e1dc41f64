package core

import (
	"context"

	"github.com/dkeye/copilot/internal/domain"
	"github.com/pion/rtp"
	"github.com/pion/webrtc/v4"
)

// AppData is descriptive metadata attached to a published track.
type AppData map[string]any

// Producer is one outbound track published on the conferencing transport.
type Producer struct {
	ID      domain.ProducerID
	AppData AppData
}

// CaptureTrack is a local capture source. Ended is closed when the source
// terminates on its own or after Stop.
type CaptureTrack interface {
	ID() string
	ReadRTP() (*rtp.Packet, error)
	Ended() <-chan struct{}
	Stop()
}

// ProducerTransport is the conferencing-transport side of a media session.
type ProducerTransport interface {
	PublishTrack(ctx context.Context, track CaptureTrack, appData AppData) (Producer, error)
	// CloseProducer must not fail for an unknown or already closed producer.
	CloseProducer(id domain.ProducerID) error
}

type MediaConnection interface {
	ProducerTransport

	// Start configures internal callbacks and binds the connection lifetime to ctx.
	Start(ctx context.Context) error
	// Close should stop all underlying media resources.
	Close()
	IsClosed() bool
	// AddICECandidate applies a remote ICE candidate.
	AddICECandidate(webrtc.ICECandidateInit) error
	ApplyOfferAndCreateAnswer(webrtc.SessionDescription) (*webrtc.SessionDescription, error)
	ApplyAnswer(webrtc.SessionDescription) error
	// SendTransportStats returns nil when no snapshot is available.
	SendTransportStats(ctx context.Context) webrtc.StatsReport
	// OnICECandidate sets a callback for newly gathered local ICE candidates.
	OnICECandidate(func(webrtc.ICECandidateInit))
	// OnOffer sets a callback for server-initiated renegotiation offers.
	OnOffer(func(webrtc.SessionDescription))
	// OnClosed sets a callback for cleanup media session.
	OnClosed(func())
}
