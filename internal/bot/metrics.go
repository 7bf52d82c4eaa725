package bot

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics структура для метрик Prometheus
type Metrics struct {
	MessagesProcessed    prometheus.Counter
	ErrorsTotal          prometheus.Counter
	UpdateProcessingTime prometheus.Histogram
	PollCycles           *prometheus.CounterVec
	ActionsDispatched    *prometheus.CounterVec
	ActiveTrackers       prometheus.Gauge
	RidesFinished        *prometheus.CounterVec
}

// NewMetrics создает новые метрики
func NewMetrics() *Metrics {
	return &Metrics{
		MessagesProcessed: promauto.NewCounter(prometheus.CounterOpts{
			Name: "cab_bot_messages_processed_total",
			Help: "Total number of processed Telegram updates",
		}),

		ErrorsTotal: promauto.NewCounter(prometheus.CounterOpts{
			Name: "cab_bot_errors_total",
			Help: "Total number of handler errors and panics",
		}),

		UpdateProcessingTime: promauto.NewHistogram(prometheus.HistogramOpts{
			Name:    "cab_bot_update_processing_time_seconds",
			Help:    "Time spent processing updates",
			Buckets: prometheus.DefBuckets,
		}),

		PollCycles: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "cab_bot_poll_cycles_total",
			Help: "Ride poll ticks by result",
		}, []string{"result"}),

		ActionsDispatched: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "cab_bot_actions_dispatched_total",
			Help: "Ride actions dispatched to the platform",
		}, []string{"action", "result"}),

		ActiveTrackers: promauto.NewGauge(prometheus.GaugeOpts{
			Name: "cab_bot_active_trackers",
			Help: "Chats currently tracking a ride",
		}),

		RidesFinished: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "cab_bot_rides_finished_total",
			Help: "Observed ride completions by final status",
		}, []string{"status"}),
	}
}
