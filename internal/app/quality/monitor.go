package quality

import (
	"context"
	"sync"
	"time"

	"github.com/dkeye/copilot/internal/metrics"
	"github.com/pion/webrtc/v4"
	"github.com/rs/zerolog"
)

const DefaultInterval = 5 * time.Second

// StatsSource returns nil when no snapshot is available for this cycle.
type StatsSource interface {
	SendTransportStats(ctx context.Context) webrtc.StatsReport
}

// Monitor polls a StatsSource on a fixed interval while enabled and reports
// the derived level whenever it changes.
type Monitor struct {
	src      StatsSource
	interval time.Duration
	onLevel  func(Level)
	logger   zerolog.Logger

	mu       sync.Mutex
	level    Level
	reported bool
	cancel   context.CancelFunc
	done     chan struct{}
}

// NewMonitor starts disabled at LevelExcellent. onLevel runs on the polling
// goroutine and must not call Disable.
func NewMonitor(src StatsSource, interval time.Duration, onLevel func(Level), logger zerolog.Logger) *Monitor {
	if interval <= 0 {
		interval = DefaultInterval
	}
	return &Monitor{
		src:      src,
		interval: interval,
		onLevel:  onLevel,
		logger:   logger.With().Str("module", "quality").Logger(),
		level:    LevelExcellent,
	}
}

func (m *Monitor) Level() Level {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.level
}

// Poll takes one snapshot. It returns false and keeps the previous level
// when the source has nothing.
func (m *Monitor) Poll(ctx context.Context) (Level, bool) {
	report := m.src.SendTransportStats(ctx)
	if report == nil {
		m.logger.Debug().Msg("no stats this cycle")
		return m.Level(), false
	}
	level := Derive(SampleFromReport(report))
	metrics.QualityLevels.WithLabelValues(level.String()).Inc()

	m.mu.Lock()
	m.level = level
	m.mu.Unlock()
	return level, true
}

// Enable starts polling; it is a no-op when already enabled.
func (m *Monitor) Enable(ctx context.Context) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.cancel != nil {
		return
	}
	ctx, cancel := context.WithCancel(ctx)
	m.cancel = cancel
	m.done = make(chan struct{})
	go m.loop(ctx, m.done)
}

// Disable stops polling. Once it returns onLevel is not called again.
func (m *Monitor) Disable() {
	m.mu.Lock()
	cancel, done := m.cancel, m.done
	m.cancel, m.done = nil, nil
	m.mu.Unlock()
	if cancel == nil {
		return
	}
	cancel()
	<-done
}

func (m *Monitor) loop(ctx context.Context, done chan struct{}) {
	defer close(done)
	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
		prev := m.Level()
		level, ok := m.Poll(ctx)
		if !ok || ctx.Err() != nil {
			continue
		}
		m.mu.Lock()
		first := !m.reported
		m.reported = true
		m.mu.Unlock()
		if (first || level != prev) && m.onLevel != nil {
			m.onLevel(level)
		}
	}
}
