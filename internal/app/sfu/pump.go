// Package sfu moves RTP from local capture sources onto outbound tracks.
package sfu

import (
	"context"
	"errors"
	"io"
	"sync/atomic"

	"github.com/pion/rtp"
	"github.com/rs/zerolog"
)

type PacketSource interface {
	ReadRTP() (*rtp.Packet, error)
}

type PacketSink interface {
	WriteRTP(*rtp.Packet) error
}

type PumpState int32

const (
	PumpRunning PumpState = iota
	PumpDone
)

// Pump forwards every packet read from Src to Sink until either side fails
// or the pump is stopped.
type Pump struct {
	Src  PacketSource
	Sink PacketSink

	state   atomic.Int32
	cancel  context.CancelFunc
	done    chan struct{}
	written atomic.Uint64
}

func NewPump(src PacketSource, sink PacketSink) *Pump {
	return &Pump{Src: src, Sink: sink, done: make(chan struct{})}
}

func (p *Pump) State() PumpState { return PumpState(p.state.Load()) }

func (p *Pump) Written() uint64 { return p.written.Load() }

// Done is closed when the loop has exited.
func (p *Pump) Done() <-chan struct{} { return p.done }

func (p *Pump) loop(ctx context.Context, logger *zerolog.Logger) {
	defer close(p.done)
	defer p.state.Store(int32(PumpDone))
	for {
		select {
		case <-ctx.Done():
			logger.Info().Msg("pump ctx done")
			return
		default:
		}
		pkt, err := p.Src.ReadRTP()
		if err != nil {
			if errors.Is(err, io.EOF) {
				logger.Info().Msg("pump source ended")
			} else {
				logger.Error().Err(err).Msg("pump read RTP error, stopping")
			}
			return
		}
		if ctx.Err() != nil {
			return
		}
		if err := p.Sink.WriteRTP(pkt); err != nil {
			if errors.Is(err, io.ErrClosedPipe) {
				logger.Info().Msg("pump sink closed")
			} else {
				logger.Error().Err(err).Msg("pump write RTP error, stopping")
			}
			return
		}
		p.written.Add(1)
	}
}
