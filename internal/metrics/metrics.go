// Package metrics exposes Prometheus instruments for scraping and the API.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/shopspring/decimal"
)

// Scrape outcomes.
const (
	OutcomeSuccess = "success"
	OutcomeEmpty   = "empty"
	OutcomeError   = "error"
	OutcomeSkipped = "skipped"
)

// Metrics owns a private registry. A nil *Metrics records nothing.
type Metrics struct {
	registry *prometheus.Registry

	scrapes         *prometheus.CounterVec
	observations    prometheus.Counter
	lastScrape      prometheus.Gauge
	latestPrice     *prometheus.GaugeVec
	requestDuration *prometheus.HistogramVec
}

// New registers every instrument on a fresh registry.
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		scrapes: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "fuelwatch_scrapes_total",
				Help: "Scrape cycles by outcome.",
			},
			[]string{"outcome"},
		),
		observations: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "fuelwatch_observations_inserted_total",
			Help: "Observations written to the store.",
		}),
		lastScrape: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "fuelwatch_last_scrape_timestamp_seconds",
			Help: "Unix time of the last successful scrape.",
		}),
		latestPrice: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "fuelwatch_latest_price_eur",
				Help: "Most recent scraped price per fuel type.",
			},
			[]string{"fuel_type"},
		),
		requestDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "fuelwatch_http_request_duration_seconds",
				Help:    "API request latency.",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"route", "code"},
		),
	}
	m.registry.MustRegister(
		m.scrapes,
		m.observations,
		m.lastScrape,
		m.latestPrice,
		m.requestDuration,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return m
}

// Registry returns the underlying registry.
func (m *Metrics) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.registry
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// ObserveScrape counts one scrape cycle.
func (m *Metrics) ObserveScrape(outcome string, inserted int, at time.Time) {
	if m == nil {
		return
	}
	m.scrapes.WithLabelValues(outcome).Inc()
	if inserted > 0 {
		m.observations.Add(float64(inserted))
	}
	if outcome == OutcomeSuccess {
		m.lastScrape.Set(float64(at.Unix()))
	}
}

// SetLatestPrice records the newest price of fuelType.
func (m *Metrics) SetLatestPrice(fuelType string, price decimal.Decimal) {
	if m == nil {
		return
	}
	m.latestPrice.WithLabelValues(fuelType).Set(price.InexactFloat64())
}

// ObserveRequest records one API request.
func (m *Metrics) ObserveRequest(route string, code int, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.requestDuration.WithLabelValues(route, strconv.Itoa(code)).Observe(elapsed.Seconds())
}
