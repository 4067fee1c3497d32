package worker

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// ============ Обработчик платежей ============

// ProcessorPasses - проходы по результату: completed или причина пропуска
var ProcessorPasses = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: "liraexchange",
		Subsystem: "processor",
		Name:      "passes_total",
		Help:      "Reconciliation passes by result",
	},
	[]string{"result"}, // completed, skipped_busy, skipped_too_soon, skipped_cooldown
)

// ProcessorItems - обработанные заявки по проходу и исходу
var ProcessorItems = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: "liraexchange",
		Subsystem: "processor",
		Name:      "items_total",
		Help:      "Exchanges handled by sweep and outcome",
	},
	[]string{"sweep", "outcome"},
)

// ProcessorPassDuration - длительность прохода
var ProcessorPassDuration = promauto.NewHistogram(
	prometheus.HistogramOpts{
		Namespace: "liraexchange",
		Subsystem: "processor",
		Name:      "pass_duration_seconds",
		Help:      "Duration of a reconciliation pass",
		Buckets:   []float64{0.1, 0.5, 1, 2, 5, 10, 30, 60, 120},
	},
)

// ProcessorCooldowns - сколько раз включалась пауза
var ProcessorCooldowns = promauto.NewCounter(
	prometheus.CounterOpts{
		Namespace: "liraexchange",
		Subsystem: "processor",
		Name:      "cooldowns_total",
		Help:      "Cooldowns triggered by consecutive errors",
	},
)

// SecretFailures - секрет кошелька не открылся. Любое ненулевое значение - алерт.
var SecretFailures = promauto.NewCounter(
	prometheus.CounterOpts{
		Namespace: "liraexchange",
		Subsystem: "processor",
		Name:      "secret_failures_total",
		Help:      "Payouts aborted because a wallet secret could not be opened",
	},
)

// ============ Котировки ============

// RateRefreshes - обновления котировок по результату
var RateRefreshes = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: "liraexchange",
		Subsystem: "rates",
		Name:      "refreshes_total",
		Help:      "Rate refresh runs by result",
	},
	[]string{"result"}, // ok, partial
)

// RateFallbacks - пара не получила рыночную цену
var RateFallbacks = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: "liraexchange",
		Subsystem: "rates",
		Name:      "market_failures_total",
		Help:      "Reference pairs whose market price was unavailable or invalid",
	},
	[]string{"pair"},
)

// RateFetchLatency - время ответа рыночного API
var RateFetchLatency = promauto.NewHistogramVec(
	prometheus.HistogramOpts{
		Namespace: "liraexchange",
		Subsystem: "rates",
		Name:      "fetch_latency_ms",
		Help:      "Market ticker fetch latency in milliseconds",
		Buckets:   []float64{25, 50, 100, 250, 500, 1000, 2500, 5000},
	},
	[]string{"pair"},
)
