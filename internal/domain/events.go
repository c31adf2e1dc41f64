package domain

import "time"

type EventKind string

const (
	EventJoinInterview  EventKind = "join_interview"
	EventLeaveInterview EventKind = "leave_interview"
	EventJoined         EventKind = "joined"
	EventLeft           EventKind = "left"

	EventTranscript  EventKind = "copilot:transcript"
	EventSuggestions EventKind = "copilot:suggestions"
	EventStop        EventKind = "copilot:stop"
	EventSpeech      EventKind = "copilot:speech"
	EventVisual      EventKind = "copilot:visual"
	EventLandmarks   EventKind = "copilot:landmarks"

	EventScreenShareStart   EventKind = "screenshare:start"
	EventScreenShareStop    EventKind = "screenshare:stop"
	EventScreenShareStarted EventKind = "screenshare:started"
	EventScreenShareStopped EventKind = "screenshare:stopped"
	EventNetworkQuality     EventKind = "network-quality"
	EventQualityEnable      EventKind = "quality:enable"

	EventOffer     EventKind = "offer"
	EventAnswer    EventKind = "answer"
	EventCandidate EventKind = "candidate"
	EventPing      EventKind = "ping"
	EventPong      EventKind = "pong"
	EventError     EventKind = "error"
)

// TranscriptEvent is one recognition result for an interview.
type TranscriptEvent struct {
	InterviewID InterviewID `json:"interviewId"`
	Text        string      `json:"text"`
	IsFinal     bool        `json:"isFinal"`
	Timestamp   string      `json:"timestamp"`
}

type SuggestionEvent struct {
	InterviewID InterviewID `json:"interviewId"`
	Suggestions []string    `json:"suggestions"`
	Timestamp   string      `json:"timestamp"`
}

// SpeechMetrics is the transcription pipeline output.
type SpeechMetrics struct {
	InterviewID InterviewID `json:"interviewId,omitempty"`
	Transcript  string      `json:"transcript"`
	WPM         int         `json:"wpm"`
	IsFinal     bool        `json:"isFinal"`
}

type Sentiment string

const (
	SentimentNeutral   Sentiment = "neutral"
	SentimentConfident Sentiment = "confident"
)

// VisualMetrics is the face-landmark pipeline output.
type VisualMetrics struct {
	InterviewID     InterviewID `json:"interviewId,omitempty"`
	EyeContactScore int         `json:"eyeContactScore"`
	Sentiment       Sentiment   `json:"sentiment"`
	IsFaceDetected  bool        `json:"isFaceDetected"`
}

type ScreenShareEvent struct {
	InterviewID InterviewID    `json:"interviewId"`
	PeerID      ConnID         `json:"peerId"`
	ProducerID  ProducerID     `json:"producerId"`
	AppData     map[string]any `json:"appData,omitempty"`
}

type NetworkQualityEvent struct {
	PeerID  ConnID `json:"peerId"`
	Quality int    `json:"quality"`
}

// Timestamp formats t the way event producers stamp payloads.
func Timestamp(t time.Time) string {
	return t.UTC().Format("2006-01-02T15:04:05.000Z07:00")
}
