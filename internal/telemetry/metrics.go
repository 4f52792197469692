package telemetry

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Пути выполнения команд.
const (
	PathSync       = "sync"
	PathBackground = "background"
)

var (
	commandsClaimed = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "quickcategories_commands_claimed_total",
		Help: "Commands claimed for execution, by path",
	}, []string{"path"})

	commandsFinished = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "quickcategories_commands_finished_total",
		Help: "Commands finished, by outcome",
	}, []string{"outcome"})

	backgroundStops = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "quickcategories_background_stops_total",
		Help: "Background runs stopped or suspended by the worker, by reason",
	}, []string{"reason"})

	wikiRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "quickcategories_wiki_request_duration_seconds",
		Help:    "Latency of wiki API requests, by operation",
		Buckets: prometheus.DefBuckets,
	}, []string{"op"})

	stalePendingsRecovered = promauto.NewCounter(prometheus.CounterOpts{
		Name: "quickcategories_stale_pendings_recovered_total",
		Help: "Abandoned pending commands reverted to plan by the sweep",
	})

	httpRequests = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "quickcategories_api_http_requests_total",
		Help: "Total HTTP requests handled by the API, by status class",
	}, []string{"code"})
)

// CommandsClaimed увеличивает счётчик захваченных команд.
func CommandsClaimed(path string, n int) {
	commandsClaimed.WithLabelValues(path).Add(float64(n))
}

// CommandFinished учитывает результат команды ("edit", "noop" или вид ошибки).
func CommandFinished(outcome string) {
	commandsFinished.WithLabelValues(outcome).Inc()
}

// BackgroundStopped учитывает остановку или приостановку фонового выполнения.
func BackgroundStopped(reason string) {
	backgroundStops.WithLabelValues(reason).Inc()
}

// ObserveWikiRequest записывает длительность запроса к вики.
func ObserveWikiRequest(op string, started time.Time) {
	wikiRequestDuration.WithLabelValues(op).Observe(time.Since(started).Seconds())
}

// StalePendingsRecovered увеличивает счётчик откатанных захватов.
func StalePendingsRecovered(n int) {
	stalePendingsRecovered.Add(float64(n))
}

// HTTPRequest учитывает обработанный HTTP-запрос по классу кода.
func HTTPRequest(status int) {
	httpRequests.WithLabelValues(statusClass(status)).Inc()
}

// statusClass возвращает класс HTTP-кода: "2xx", "4xx" и т.д.
func statusClass(status int) string {
	switch {
	case status >= 500:
		return "5xx"
	case status >= 400:
		return "4xx"
	case status >= 300:
		return "3xx"
	case status >= 200:
		return "2xx"
	default:
		return "other"
	}
}
