package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Overflow components.
const (
	ComponentIntake = "intake"
	ComponentDedup  = "dedup"
	ComponentSink   = "sink"
)

var (
	EventsPublished = promauto.NewCounter(prometheus.CounterOpts{
		Name: "paystream_events_published_total",
		Help: "Total number of events published on the broadcast channel.",
	})

	EventsIngested = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "paystream_events_ingested_total",
		Help: "Total number of events accepted at ingestion, labelled by source.",
	}, []string{"source"})

	EventsRejected = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "paystream_events_rejected_total",
		Help: "Total number of malformed events rejected at ingestion, labelled by field.",
	}, []string{"field"})

	DuplicatesAbsorbed = promauto.NewCounter(prometheus.CounterOpts{
		Name: "paystream_duplicates_absorbed_total",
		Help: "Total number of redelivered events suppressed by a deduplicator.",
	})

	EventsApplied = promauto.NewCounter(prometheus.CounterOpts{
		Name: "paystream_events_applied_total",
		Help: "Total number of events applied to pipeline aggregates.",
	})

	OverflowDrops = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "paystream_overflow_drops_total",
		Help: "Total number of entries dropped or evicted under pressure, labelled by component.",
	}, []string{"component"})

	SinkWrites = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "paystream_sink_writes_total",
		Help: "Total number of write-behind store writes, labelled by status.",
	}, []string{"status"})

	Subscribers = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "paystream_subscribers",
		Help: "Current number of subscriptions registered on the broadcast channel.",
	})

	QueueDepth = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "paystream_pipeline_queue_depth",
		Help: "Events waiting in a pipeline intake queue.",
	}, []string{"pipeline"})

	ApplyDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "paystream_apply_duration_us",
		Help:    "Time spent applying one event to a pipeline, in microseconds.",
		Buckets: []float64{1, 5, 10, 25, 50, 100, 250, 500, 1000},
	})

	GeneratorTicks = promauto.NewCounter(prometheus.CounterOpts{
		Name: "paystream_generator_ticks_total",
		Help: "Total number of simulated events produced by the generator.",
	})

	BridgeMessages = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "paystream_bridge_messages_total",
		Help: "Messages moved across broker bridges, labelled by bridge, direction and status.",
	}, []string{"bridge", "direction", "status"})
)
