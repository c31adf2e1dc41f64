// Package screenshare owns the lifecycle of one participant's screen-share
// producer: Idle -> Requesting -> Active -> Idle.
package screenshare

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/dkeye/copilot/internal/core"
	"github.com/dkeye/copilot/internal/domain"
	"github.com/dkeye/copilot/internal/metrics"
	"github.com/rs/zerolog"
)

type State int32

const (
	Idle State = iota
	Requesting
	Active
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case Requesting:
		return "requesting"
	case Active:
		return "active"
	}
	return fmt.Sprintf("state(%d)", int32(s))
}

var (
	// ErrCaptureDenied is returned by a Capturer when the user declines or
	// cancels the capture request.
	ErrCaptureDenied = errors.New("screen capture denied")
	ErrPublishFailed = errors.New("publish screen track")
)

type Capturer interface {
	Capture(ctx context.Context) (core.CaptureTrack, error)
}

// Notifier is told about producer transitions. Implementations must not block.
type Notifier interface {
	OnStarted(id domain.ProducerID)
	OnStopped(id domain.ProducerID)
}

// AppData marks a published track as a screen share.
func AppData() core.AppData {
	return core.AppData{"type": "screen"}
}

type Session struct {
	capturer  Capturer
	transport core.ProducerTransport
	notifier  Notifier
	logger    zerolog.Logger

	mu        sync.Mutex
	state     State
	gen       uint64
	cancelReq context.CancelFunc
	producer  core.Producer
	track     core.CaptureTrack
	stopWatch context.CancelFunc
}

func NewSession(capturer Capturer, transport core.ProducerTransport, notifier Notifier, logger zerolog.Logger) *Session {
	return &Session{
		capturer:  capturer,
		transport: transport,
		notifier:  notifier,
		logger:    logger.With().Str("module", "screenshare").Logger(),
	}
}

func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// ProducerID returns the active producer, if any.
func (s *Session) ProducerID() (domain.ProducerID, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != Active {
		return "", false
	}
	return s.producer.ID, true
}

// Start requests a capture and publishes it. It is a no-op unless Idle.
// Only a transport publish failure is returned; capture failures are logged
// and leave the session Idle.
func (s *Session) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.state != Idle {
		s.mu.Unlock()
		return nil
	}
	reqCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	s.gen++
	gen := s.gen
	s.state = Requesting
	s.cancelReq = cancel
	s.mu.Unlock()

	track, err := s.capturer.Capture(reqCtx)
	if err != nil {
		s.abandon(gen)
		if errors.Is(err, ErrCaptureDenied) || errors.Is(err, context.Canceled) {
			metrics.ScreenShareFailures.WithLabelValues("denied").Inc()
			s.logger.Debug().Err(err).Msg("capture cancelled")
			return nil
		}
		metrics.ScreenShareFailures.WithLabelValues("capture").Inc()
		s.logger.Error().Err(err).Msg("capture failed")
		return nil
	}

	producer, err := s.transport.PublishTrack(reqCtx, track, AppData())
	if err != nil {
		track.Stop()
		s.abandon(gen)
		metrics.ScreenShareFailures.WithLabelValues("publish").Inc()
		return fmt.Errorf("%w: %w", ErrPublishFailed, err)
	}

	s.mu.Lock()
	if s.state != Requesting || s.gen != gen {
		// Stop arrived while the request was in flight.
		s.mu.Unlock()
		if err := s.transport.CloseProducer(producer.ID); err != nil {
			s.logger.Warn().Err(err).Str("producer", string(producer.ID)).Msg("close abandoned producer")
		}
		track.Stop()
		return nil
	}
	watchCtx, stopWatch := context.WithCancel(context.Background())
	s.state = Active
	s.cancelReq = nil
	s.producer = producer
	s.track = track
	s.stopWatch = stopWatch
	s.mu.Unlock()

	go s.watch(watchCtx, track, producer.ID)

	metrics.ScreenSharesActive.Inc()
	s.logger.Info().Str("producer", string(producer.ID)).Str("track", track.ID()).Msg("screen share started")
	s.notifier.OnStarted(producer.ID)
	return nil
}

// Stop closes the active producer. Safe to call repeatedly and from any
// goroutine; while Requesting it cancels the pending capture.
func (s *Session) Stop() {
	s.stop("")
}

func (s *Session) abandon(gen uint64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.gen == gen && s.state == Requesting {
		s.state = Idle
		s.cancelReq = nil
	}
}

// watch turns an out-of-band track end into a regular stop.
func (s *Session) watch(ctx context.Context, track core.CaptureTrack, id domain.ProducerID) {
	select {
	case <-ctx.Done():
	case <-track.Ended():
		s.logger.Info().Str("producer", string(id)).Msg("capture track ended")
		s.stop(id)
	}
}

// stop tears down the session. A non-empty match only stops that producer.
func (s *Session) stop(match domain.ProducerID) {
	s.mu.Lock()
	switch s.state {
	case Idle:
		s.mu.Unlock()
		return
	case Requesting:
		if match == "" && s.cancelReq != nil {
			s.cancelReq()
			s.cancelReq = nil
			s.state = Idle
		}
		s.mu.Unlock()
		return
	}
	if match != "" && s.producer.ID != match {
		s.mu.Unlock()
		return
	}
	producer, track, stopWatch := s.producer, s.track, s.stopWatch
	s.state = Idle
	s.producer = core.Producer{}
	s.track = nil
	s.stopWatch = nil
	// Closed under the lock so a new Start cannot publish before the old
	// producer is gone.
	if err := s.transport.CloseProducer(producer.ID); err != nil {
		s.logger.Warn().Err(err).Str("producer", string(producer.ID)).Msg("close producer")
	}
	s.mu.Unlock()

	stopWatch()
	metrics.ScreenSharesActive.Dec()
	s.notifier.OnStopped(producer.ID)
	track.Stop()
	s.logger.Info().Str("producer", string(producer.ID)).Msg("screen share stopped")
}
