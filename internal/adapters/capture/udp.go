// Package capture provides screen capture sources for the media session.
// The UDP source accepts an RTP stream pushed by a local encoder, for
// example `ffmpeg -f x11grab ... -f rtp rtp://127.0.0.1:5004`.
package capture

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"sync"
	"time"

	"github.com/dkeye/copilot/internal/app/screenshare"
	"github.com/dkeye/copilot/internal/core"
	"github.com/pion/rtp"
	"github.com/rs/zerolog/log"
)

const maxPacket = 1500

type UDPCapturer struct {
	Enabled     bool
	ListenAddr  string
	IdleTimeout time.Duration
}

// Capture binds the listen address and waits for the first packet. A
// disabled capturer or a canceled wait counts as a denied request.
func (c *UDPCapturer) Capture(ctx context.Context) (core.CaptureTrack, error) {
	if !c.Enabled {
		return nil, screenshare.ErrCaptureDenied
	}
	var lc net.ListenConfig
	pc, err := lc.ListenPacket(ctx, "udp", c.ListenAddr)
	if err != nil {
		return nil, fmt.Errorf("listen %s: %w", c.ListenAddr, err)
	}
	conn := pc.(*net.UDPConn)

	stop := context.AfterFunc(ctx, func() {
		_ = conn.SetReadDeadline(time.Now())
	})
	buf := make([]byte, maxPacket)
	n, _, err := conn.ReadFromUDP(buf)
	if !stop() || ctx.Err() != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("%w: %w", screenshare.ErrCaptureDenied, context.Cause(ctx))
	}
	if err != nil {
		_ = conn.Close()
		return nil, err
	}
	first := &rtp.Packet{}
	if err := first.Unmarshal(buf[:n]); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("first packet: %w", err)
	}

	idle := c.IdleTimeout
	if idle <= 0 {
		idle = 5 * time.Second
	}
	t := &udpTrack{
		id:    conn.LocalAddr().String(),
		conn:  conn,
		idle:  idle,
		first: first,
		ended: make(chan struct{}),
	}
	log.Info().Str("module", "capture").Str("addr", t.id).Msg("capture stream started")
	return t, nil
}

type udpTrack struct {
	id   string
	conn *net.UDPConn
	idle time.Duration

	mu    sync.Mutex
	first *rtp.Packet

	once  sync.Once
	ended chan struct{}
	buf   [maxPacket]byte
}

func (t *udpTrack) ID() string { return t.id }

// ReadRTP returns io.EOF once the stream stopped or went quiet for longer
// than the idle timeout. Not safe for concurrent readers.
func (t *udpTrack) ReadRTP() (*rtp.Packet, error) {
	t.mu.Lock()
	first := t.first
	t.first = nil
	t.mu.Unlock()
	if first != nil {
		return first, nil
	}

	for {
		select {
		case <-t.ended:
			return nil, io.EOF
		default:
		}
		_ = t.conn.SetReadDeadline(time.Now().Add(t.idle))
		n, _, err := t.conn.ReadFromUDP(t.buf[:])
		if err != nil {
			var ne net.Error
			if errors.As(err, &ne) && ne.Timeout() {
				log.Info().Str("module", "capture").Str("addr", t.id).Msg("capture stream idle")
			}
			t.Stop()
			return nil, io.EOF
		}
		pkt := &rtp.Packet{}
		if err := pkt.Unmarshal(t.buf[:n]); err != nil {
			continue
		}
		return pkt, nil
	}
}

func (t *udpTrack) Ended() <-chan struct{} { return t.ended }

func (t *udpTrack) Stop() {
	t.once.Do(func() {
		close(t.ended)
		_ = t.conn.Close()
	})
}
