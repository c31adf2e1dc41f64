// Package quality maps send-transport statistics to a 1..5 quality level.
package quality

import (
	"strconv"

	"github.com/pion/webrtc/v4"
)

// Level is 1 (worst) to 5 (best).
type Level int

const (
	LevelBad Level = iota + 1
	LevelPoor
	LevelFair
	LevelGood
	LevelExcellent
)

func (l Level) String() string { return strconv.Itoa(int(l)) }

// Sample is the reduced form of one statistics snapshot.
type Sample struct {
	PacketsLost              int64
	PacketsSent              int64
	AvailableOutgoingBitrate float64
}

func (s Sample) LossRate() float64 {
	if s.PacketsSent == 0 {
		return 0
	}
	return float64(s.PacketsLost) / float64(s.PacketsSent)
}

// Derive is evaluated top to bottom, first match wins. A zero bitrate means
// no estimate and never lowers the level on its own.
func Derive(s Sample) Level {
	loss := s.LossRate()
	bitrate := s.AvailableOutgoingBitrate
	known := bitrate > 0
	switch {
	case loss > 0.10 || (known && bitrate < 100_000):
		return LevelBad
	case loss > 0.05 || (known && bitrate < 250_000):
		return LevelPoor
	case known && bitrate < 500_000:
		return LevelFair
	case known && bitrate < 1_000_000:
		return LevelGood
	}
	return LevelExcellent
}

// SampleFromReport sums packets sent over outbound RTP streams and packets
// lost reported by the remote end, and takes the available bitrate of the
// succeeded candidate pair.
func SampleFromReport(report webrtc.StatsReport) Sample {
	var s Sample
	for _, stat := range report {
		switch st := stat.(type) {
		case webrtc.OutboundRTPStreamStats:
			s.PacketsSent += int64(st.PacketsSent)
		case *webrtc.OutboundRTPStreamStats:
			s.PacketsSent += int64(st.PacketsSent)
		case webrtc.RemoteInboundRTPStreamStats:
			s.PacketsLost += int64(st.PacketsLost)
		case *webrtc.RemoteInboundRTPStreamStats:
			s.PacketsLost += int64(st.PacketsLost)
		case webrtc.ICECandidatePairStats:
			s.applyPair(st)
		case *webrtc.ICECandidatePairStats:
			s.applyPair(*st)
		}
	}
	return s
}

func (s *Sample) applyPair(p webrtc.ICECandidatePairStats) {
	if p.State == webrtc.StatsICECandidatePairStateSucceeded && p.AvailableOutgoingBitrate > 0 {
		s.AvailableOutgoingBitrate = p.AvailableOutgoingBitrate
	}
}
