package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// HTTP metrics
	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "cafe_http_requests_total",
			Help: "Total HTTP requests",
		},
		[]string{"method", "path", "status"},
	)

	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "cafe_http_request_duration_seconds",
			Help:    "HTTP request duration",
			Buckets: []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1},
		},
		[]string{"method", "path"},
	)

	// Director metrics
	ActiveRooms = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "cafe_active_rooms",
			Help: "Rooms currently managed by the director",
		},
	)

	TurnsGenerated = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "cafe_turns_total",
			Help: "Turn cycles by outcome",
		},
		[]string{"outcome"}, // completed, tool_handled, rate_limited, provider_error, no_credential, abandoned
	)

	CompletionLatency = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "cafe_completion_latency_seconds",
			Help:    "Completion provider call latency",
			Buckets: []float64{.25, .5, 1, 2, 4, 8, 16, 32},
		},
	)

	TurnDelay = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "cafe_turn_delay_seconds",
			Help:    "Pacing delay scheduled between turns",
			Buckets: []float64{4, 6, 8, 10, 12, 14, 16, 18, 20},
		},
	)

	StuckTurns = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "cafe_stuck_turns_total",
			Help: "Turns force-advanced by the watchdog",
		},
	)

	// Backpressure metrics
	RateLimitHits = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "cafe_rate_limit_hits_total",
			Help: "Provider rate-limit responses",
		},
	)

	GlobalPauses = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "cafe_global_pauses_total",
			Help: "Global pauses started",
		},
	)

	Paused = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "cafe_global_paused",
			Help: "1 while generation is globally paused",
		},
	)

	// Ledger metrics
	TradesExecuted = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "cafe_trades_executed_total",
			Help: "Settled trades",
		},
		[]string{"kind"},
	)

	TradesFailed = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "cafe_trades_failed_total",
			Help: "Rejected settlements",
		},
		[]string{"reason"},
	)

	// Event fan-out
	EventsPublished = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "cafe_events_published_total",
			Help: "Events published to the boundary",
		},
		[]string{"type"},
	)

	WebsocketClients = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "cafe_websocket_clients",
			Help: "Connected event stream clients",
		},
	)

	// Infrastructure metrics
	RedisLatency = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "cafe_redis_latency_seconds",
			Help:    "Redis operation latency",
			Buckets: []float64{.0001, .0005, .001, .005, .01, .05},
		},
	)

	PostgresLatency = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "cafe_postgres_latency_seconds",
			Help:    "PostgreSQL query latency",
			Buckets: []float64{.001, .005, .01, .025, .05, .1},
		},
	)
)
