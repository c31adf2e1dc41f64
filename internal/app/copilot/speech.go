package copilot

import (
	"math"
	"strings"
	"sync"
	"time"

	"github.com/dkeye/copilot/internal/domain"
)

// StabilizationWindow is how long a session must run before WPM is reported.
const StabilizationWindow = 6 * time.Second

// SpeechTracker accumulates recognition results for one interview and
// derives words per minute.
type SpeechTracker struct {
	now func() time.Time

	mu      sync.Mutex
	started time.Time
	finals  []string
	interim string
	wpm     int
}

func NewSpeechTracker(now func() time.Time) *SpeechTracker {
	if now == nil {
		now = time.Now
	}
	return &SpeechTracker{now: now}
}

// Start begins the listening clock. Calling it again restarts the clock.
func (t *SpeechTracker) Start() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.started = t.now()
}

func (t *SpeechTracker) Listening() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return !t.started.IsZero()
}

// Stop halts the clock; WPM keeps its last value.
func (t *SpeechTracker) Stop() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.started = time.Time{}
}

// Observe applies one recognition callback. An interim result replaces the
// previous interim text; a final one is appended for good.
func (t *SpeechTracker) Observe(text string, isFinal bool) domain.SpeechMetrics {
	t.mu.Lock()
	defer t.mu.Unlock()
	if isFinal {
		t.finals = append(t.finals, text)
		t.interim = ""
	} else {
		t.interim = text
	}
	transcript := t.transcriptLocked()
	words := len(strings.Fields(transcript))
	if !t.started.IsZero() && words > 0 {
		elapsed := t.now().Sub(t.started)
		if elapsed > StabilizationWindow {
			t.wpm = int(math.Round(float64(words) / elapsed.Minutes()))
		}
	}
	return domain.SpeechMetrics{Transcript: transcript, WPM: t.wpm, IsFinal: isFinal}
}

func (t *SpeechTracker) transcriptLocked() string {
	parts := make([]string, 0, len(t.finals)+1)
	for _, f := range t.finals {
		if s := strings.TrimSpace(f); s != "" {
			parts = append(parts, s)
		}
	}
	if s := strings.TrimSpace(t.interim); s != "" {
		parts = append(parts, s)
	}
	return strings.Join(parts, " ")
}
