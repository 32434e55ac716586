// Package metrics holds the Prometheus collectors of the service.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"signaltap/driver"
)

var (
	HTTPRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "signaltap_http_requests_total",
		Help: "Count of all HTTP requests",
	}, []string{"code", "method"})

	HTTPRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name: "signaltap_http_request_duration_seconds",
		Help: "Duration of all HTTP requests",
	}, []string{"code", "method"})

	PLCOperations = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "signaltap_plc_operations_total",
		Help: "PLC operations by operation and result kind",
	}, []string{"op", "result"})

	PLCOperationDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "signaltap_plc_operation_duration_seconds",
		Help:    "Duration of PLC operations",
		Buckets: []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10, 30},
	}, []string{"op"})

	PLCSessionsActive = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "signaltap_plc_sessions_active",
		Help: "PLC sessions currently open",
	})

	PLCBusy = promauto.NewCounter(prometheus.CounterOpts{
		Name: "signaltap_plc_busy_total",
		Help: "Requests that gave up waiting for a PLC session slot",
	})

	EventsPublished = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "signaltap_events_published_total",
		Help: "Events handed to sinks, by sink and result",
	}, []string{"sink", "result"})
)

// ObservePLC records one PLC operation with its result label.
func ObservePLC(op string, start time.Time, result string) {
	PLCOperationDuration.WithLabelValues(op).Observe(time.Since(start).Seconds())
	PLCOperations.WithLabelValues(op, result).Inc()
}

// Result is the result label for err: "ok" or the driver error kind.
func Result(err error) string {
	if err == nil {
		return "ok"
	}
	return driver.KindOf(err).String()
}

// RegisterQueueGauge exposes a queue length and a drop counter read from fn
// at scrape time.
func RegisterQueueGauge(reg prometheus.Registerer, pending func() int, dropped func() uint64) error {
	if err := reg.Register(prometheus.NewGaugeFunc(prometheus.GaugeOpts{
		Name: "signaltap_events_pending",
		Help: "Events queued for sinks",
	}, func() float64 { return float64(pending()) })); err != nil {
		return err
	}
	return reg.Register(prometheus.NewCounterFunc(prometheus.CounterOpts{
		Name: "signaltap_events_dropped_total",
		Help: "Events dropped because the queue was full",
	}, func() float64 { return float64(dropped()) }))
}

// Instrument wraps next with the HTTP request counter and duration histogram.
func Instrument(next http.Handler) http.Handler {
	return promhttp.InstrumentHandlerCounter(HTTPRequestsTotal,
		promhttp.InstrumentHandlerDuration(HTTPRequestDuration, next))
}

// Handler serves the default registry.
func Handler() http.Handler {
	return promhttp.Handler()
}
