package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const (
	mediaMigration = "media_migration"

	itemsTotal             = "items_total"
	itemsInFlight          = "items_in_flight"
	downloadedBytesTotal   = "downloaded_bytes_total"
	registrarAttemptsTotal = "registrar_attempts_total"
	stageDurationSeconds   = "stage_duration_seconds"

	// Labels
	stateLabel  = "state"
	stageLabel  = "stage"
	resultLabel = "result"
)

/**
* Metrics definition
**/
var itemsTotalMetric = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Subsystem: mediaMigration,
		Name:      itemsTotal,
		Help:      "number of items that reached a terminal state, partitioned by state",
	},
	[]string{stateLabel},
)

var itemsInFlightMetric = prometheus.NewGauge(
	prometheus.GaugeOpts{
		Subsystem: mediaMigration,
		Name:      itemsInFlight,
		Help:      "number of items currently holding a pipeline permit",
	},
)

var downloadedBytesTotalMetric = prometheus.NewCounter(
	prometheus.CounterOpts{
		Subsystem: mediaMigration,
		Name:      downloadedBytesTotal,
		Help:      "bytes written to the staging directory",
	},
)

var registrarAttemptsTotalMetric = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Subsystem: mediaMigration,
		Name:      registrarAttemptsTotal,
		Help:      "number of submissions to the registrar, partitioned by result",
	},
	[]string{resultLabel},
)

var stageDurationMetric = prometheus.NewHistogramVec(
	prometheus.HistogramOpts{
		Subsystem: mediaMigration,
		Name:      stageDurationSeconds,
		Help:      "time spent in each pipeline stage",
		Buckets:   []float64{0.05, 0.25, 1, 5, 30, 120, 600},
	},
	[]string{stageLabel},
)

func IncreaseItemsTotalMetric(state string) {
	itemsTotalMetric.With(prometheus.Labels{stateLabel: state}).Inc()
}

func IncreaseItemsInFlightMetric() {
	itemsInFlightMetric.Inc()
}

func DecreaseItemsInFlightMetric() {
	itemsInFlightMetric.Dec()
}

func AddDownloadedBytesMetric(n int64) {
	downloadedBytesTotalMetric.Add(float64(n))
}

func IncreaseRegistrarAttemptsMetric(result string) {
	registrarAttemptsTotalMetric.With(prometheus.Labels{resultLabel: result}).Inc()
}

func ObserveStageDurationMetric(stage string, seconds float64) {
	stageDurationMetric.With(prometheus.Labels{stageLabel: stage}).Observe(seconds)
}

func Handler() http.Handler {
	return promhttp.Handler()
}

func init() {
	registerMetrics()
}

func registerMetrics() {
	prometheus.MustRegister(itemsTotalMetric)
	prometheus.MustRegister(itemsInFlightMetric)
	prometheus.MustRegister(downloadedBytesTotalMetric)
	prometheus.MustRegister(registrarAttemptsTotalMetric)
	prometheus.MustRegister(stageDurationMetric)
}
