// Package copilot turns raw transcript and face-landmark events into the
// derived payloads recruiters see: speech metrics, visual metrics and batched
// AI suggestions.
package copilot

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/dkeye/copilot/internal/core"
	"github.com/dkeye/copilot/internal/domain"
	"github.com/dkeye/copilot/internal/metrics"
	"github.com/rs/zerolog"
)

// Suggester is the external interview service.
type Suggester interface {
	Suggest(ctx context.Context, id domain.InterviewID, transcript string) ([]string, error)
	Persist(ctx context.Context, id domain.InterviewID, chunks []string) error
}

// Publisher delivers an event to the interview's room.
type Publisher interface {
	Publish(kind domain.EventKind, id domain.InterviewID, payload any) core.PublishResult
}

type Config struct {
	SuggestDelay   time.Duration
	KeepChunks     int
	RequestTimeout time.Duration
	IdleTTL        time.Duration
}

func (c Config) withDefaults() Config {
	if c.SuggestDelay <= 0 {
		c.SuggestDelay = 8 * time.Second
	}
	if c.KeepChunks < 0 {
		c.KeepChunks = 0
	}
	if c.RequestTimeout <= 0 {
		c.RequestTimeout = 15 * time.Second
	}
	if c.IdleTTL <= 0 {
		c.IdleTTL = 30 * time.Minute
	}
	return c
}

type interviewState struct {
	chunks   []string
	timer    *time.Timer
	gen      uint64
	speech   *SpeechTracker
	face     *FaceAnalyzer
	lastSeen time.Time
}

type Pipeline struct {
	cfg       Config
	suggester Suggester
	pub       Publisher
	logger    zerolog.Logger
	now       func() time.Time

	mu         sync.Mutex
	interviews map[domain.InterviewID]*interviewState
}

// NewPipeline builds a pipeline; a nil suggester disables suggestion batching.
func NewPipeline(cfg Config, suggester Suggester, pub Publisher, logger zerolog.Logger) *Pipeline {
	return &Pipeline{
		cfg:        cfg.withDefaults(),
		suggester:  suggester,
		pub:        pub,
		logger:     logger.With().Str("module", "copilot").Logger(),
		now:        time.Now,
		interviews: make(map[domain.InterviewID]*interviewState),
	}
}

func (p *Pipeline) stateLocked(id domain.InterviewID) *interviewState {
	st, ok := p.interviews[id]
	if !ok {
		st = &interviewState{
			speech: NewSpeechTracker(p.now),
			face:   NewFaceAnalyzer(nil),
		}
		p.interviews[id] = st
	}
	st.lastSeen = p.now()
	return st
}

// OnTranscript updates speech metrics, publishes them and schedules a
// suggestion batch for final text.
func (p *Pipeline) OnTranscript(ev domain.TranscriptEvent) domain.SpeechMetrics {
	p.mu.Lock()
	st := p.stateLocked(ev.InterviewID)
	if !st.speech.Listening() {
		st.speech.Start()
	}
	m := st.speech.Observe(ev.Text, ev.IsFinal)
	if ev.IsFinal && strings.TrimSpace(ev.Text) != "" && p.suggester != nil {
		st.chunks = append(st.chunks, ev.Text)
		if st.timer != nil {
			st.timer.Stop()
		}
		// A timer that already fired may be waiting on mu; gen tells it apart.
		st.gen++
		id, gen := ev.InterviewID, st.gen
		st.timer = time.AfterFunc(p.cfg.SuggestDelay, func() { p.flush(id, gen) })
	}
	p.mu.Unlock()

	m.InterviewID = ev.InterviewID
	p.pub.Publish(domain.EventSpeech, ev.InterviewID, m)
	return m
}

// OnLandmarks scores one analyzed video frame and publishes the result.
func (p *Pipeline) OnLandmarks(id domain.InterviewID, landmarks []Point) domain.VisualMetrics {
	p.mu.Lock()
	st := p.stateLocked(id)
	p.mu.Unlock()

	m := st.face.Analyze(landmarks)
	m.InterviewID = id
	p.pub.Publish(domain.EventVisual, id, m)
	return m
}

// Stop flushes what is buffered for id and forgets the interview.
func (p *Pipeline) Stop(ctx context.Context, id domain.InterviewID) {
	p.mu.Lock()
	st, ok := p.interviews[id]
	if ok {
		delete(p.interviews, id)
		if st.timer != nil {
			st.timer.Stop()
		}
		st.speech.Stop()
	}
	p.mu.Unlock()
	if !ok {
		return
	}
	p.logger.Info().Str("interview", string(id)).Int("pending", len(st.chunks)).Msg("copilot stopped")
	if len(st.chunks) > 0 {
		p.suggest(ctx, id, st.chunks)
	}
}

// Close flushes every interview. Used on shutdown.
func (p *Pipeline) Close(ctx context.Context) {
	p.mu.Lock()
	ids := make([]domain.InterviewID, 0, len(p.interviews))
	for id := range p.interviews {
		ids = append(ids, id)
	}
	p.mu.Unlock()
	for _, id := range ids {
		p.Stop(ctx, id)
	}
}

// Sweep stops interviews with no activity for longer than the idle TTL.
func (p *Pipeline) Sweep(ctx context.Context) int {
	cutoff := p.now().Add(-p.cfg.IdleTTL)
	p.mu.Lock()
	var idle []domain.InterviewID
	for id, st := range p.interviews {
		if st.lastSeen.Before(cutoff) {
			idle = append(idle, id)
		}
	}
	p.mu.Unlock()
	for _, id := range idle {
		p.Stop(ctx, id)
	}
	return len(idle)
}

// Run sweeps idle interviews until ctx is done.
func (p *Pipeline) Run(ctx context.Context) error {
	ticker := time.NewTicker(p.cfg.IdleTTL / 2)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			if n := p.Sweep(ctx); n > 0 {
				p.logger.Info().Int("evicted", n).Msg("idle interviews swept")
			}
		}
	}
}

func (p *Pipeline) flush(id domain.InterviewID, gen uint64) {
	p.mu.Lock()
	st, ok := p.interviews[id]
	if !ok || st.gen != gen || len(st.chunks) == 0 {
		p.mu.Unlock()
		return
	}
	chunks := append([]string(nil), st.chunks...)
	if keep := p.cfg.KeepChunks; len(st.chunks) > keep {
		st.chunks = append([]string(nil), st.chunks[len(st.chunks)-keep:]...)
	}
	st.timer = nil
	p.mu.Unlock()

	p.suggest(context.Background(), id, chunks)
}

func (p *Pipeline) suggest(parent context.Context, id domain.InterviewID, chunks []string) {
	ctx, cancel := context.WithTimeout(parent, p.cfg.RequestTimeout)
	defer cancel()
	logger := p.logger.With().Str("interview", string(id)).Logger()
	text := strings.Join(chunks, " ")

	start := time.Now()
	suggestions, err := p.suggester.Suggest(ctx, id, text)
	metrics.SuggestDuration.Observe(time.Since(start).Seconds())
	switch {
	case err != nil:
		metrics.SuggestionBatches.WithLabelValues("error").Inc()
		logger.Error().Err(err).Msg("suggest failed")
	case len(suggestions) == 0:
		metrics.SuggestionBatches.WithLabelValues("empty").Inc()
	default:
		metrics.SuggestionBatches.WithLabelValues("ok").Inc()
		p.pub.Publish(domain.EventSuggestions, id, domain.SuggestionEvent{
			InterviewID: id,
			Suggestions: suggestions,
			Timestamp:   domain.Timestamp(p.now()),
		})
		logger.Info().Int("count", len(suggestions)).Msg("suggestions published")
	}

	if err := p.suggester.Persist(ctx, id, []string{text}); err != nil {
		logger.Warn().Err(err).Msg("persist transcript")
	}
}
