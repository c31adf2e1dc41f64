package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	ConnectionsActive = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "relay_connections_active",
		Help: "Currently open relay connections",
	})

	RoomsActive = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "relay_rooms_active",
		Help: "Interview rooms with at least one member",
	})

	EventsPublished = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "relay_events_published_total",
		Help: "Events published to a room, by kind",
	}, []string{"kind"})

	Deliveries = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "relay_deliveries_total",
		Help: "Per-member deliveries by outcome",
	}, []string{"outcome"})

	MembersKicked = promauto.NewCounter(prometheus.CounterOpts{
		Name: "relay_members_kicked_total",
		Help: "Connections closed by the backpressure policy",
	})

	InvalidEvents = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "relay_invalid_events_total",
		Help: "Inbound events rejected before relaying",
	}, []string{"reason"})

	ScreenSharesActive = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "screenshare_producers_active",
		Help: "Screen-share producers currently published",
	})

	ScreenShareFailures = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "screenshare_failures_total",
		Help: "Screen-share start failures by cause",
	}, []string{"cause"})

	QualityLevels = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "network_quality_samples_total",
		Help: "Derived quality levels per poll",
	}, []string{"level"})

	SuggestionBatches = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "copilot_suggestion_batches_total",
		Help: "Transcript batches sent for suggestions, by outcome",
	}, []string{"outcome"})

	SuggestDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "copilot_suggest_duration_seconds",
		Help:    "Latency of the external suggestion call",
		Buckets: []float64{0.1, 0.25, 0.5, 1.0, 2.0, 5.0, 10.0},
	})
)
