package copilot

import (
	"math"
	"math/rand"
	"sync"

	"github.com/dkeye/copilot/internal/domain"
)

// Point is a normalized landmark coordinate.
type Point struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

const (
	noseLandmark        = 1
	confidentEyeContact = 70
)

// FaceAnalyzer derives eye contact and a coarse sentiment from face
// landmarks, one frame at a time.
type FaceAnalyzer struct {
	rnd func() float64

	mu   sync.Mutex
	last domain.VisualMetrics
}

// NewFaceAnalyzer uses rnd for the score jitter; nil means math/rand.
func NewFaceAnalyzer(rnd func() float64) *FaceAnalyzer {
	if rnd == nil {
		rnd = rand.Float64
	}
	return &FaceAnalyzer{
		rnd:  rnd,
		last: domain.VisualMetrics{Sentiment: domain.SentimentNeutral},
	}
}

// Analyze scores one frame. A frame without a face keeps the last score and
// clears IsFaceDetected.
func (a *FaceAnalyzer) Analyze(landmarks []Point) domain.VisualMetrics {
	a.mu.Lock()
	defer a.mu.Unlock()
	if len(landmarks) <= noseLandmark {
		a.last.IsFaceDetected = false
		return a.last
	}
	a.last = AnalyzeFace(landmarks[noseLandmark], a.rnd)
	return a.last
}

// AnalyzeFace scores a single frame from the nose position. Centered noses
// land in [85,100), anything else in [50,70).
func AnalyzeFace(nose Point, rnd func() float64) domain.VisualMetrics {
	var score float64
	if nose.X > 0.4 && nose.X < 0.6 && nose.Y > 0.4 && nose.Y < 0.6 {
		score = 85 + rnd()*15
	} else {
		score = 50 + rnd()*20
	}
	sentiment := domain.SentimentNeutral
	if score > confidentEyeContact {
		sentiment = domain.SentimentConfident
	}
	return domain.VisualMetrics{
		EyeContactScore: int(math.Round(score)),
		Sentiment:       sentiment,
		IsFaceDetected:  true,
	}
}
