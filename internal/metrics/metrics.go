package metrics

import (
	"net/http"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds Prometheus counters.
type Metrics struct {
	txsProcessed        prometheus.Counter
	matches             prometheus.Counter
	extractionsUpserted prometheus.Counter
	handlerErrors       prometheus.Counter
	wsReconnects        prometheus.Counter
}

var (
	once    sync.Once
	metrics *Metrics
)

// Init initializes global metrics (idempotent).
func Init() *Metrics {
	once.Do(func() {
		metrics = &Metrics{
			txsProcessed: prometheus.NewCounter(prometheus.CounterOpts{
				Name: "cw_indexer_txs_processed_total",
				Help: "Total number of transactions run through the pipeline",
			}),
			matches: prometheus.NewCounter(prometheus.CounterOpts{
				Name: "cw_indexer_matches_total",
				Help: "Total number of data source match records produced",
			}),
			extractionsUpserted: prometheus.NewCounter(prometheus.CounterOpts{
				Name: "cw_indexer_extractions_upserted_total",
				Help: "Total number of extraction records upserted",
			}),
			handlerErrors: prometheus.NewCounter(prometheus.CounterOpts{
				Name: "cw_indexer_handler_errors_total",
				Help: "Total number of extract calls that failed",
			}),
			wsReconnects: prometheus.NewCounter(prometheus.CounterOpts{
				Name: "cw_indexer_ws_reconnects_total",
				Help: "Total number of WebSocket reconnect attempts",
			}),
		}
		prometheus.MustRegister(
			metrics.txsProcessed,
			metrics.matches,
			metrics.extractionsUpserted,
			metrics.handlerErrors,
			metrics.wsReconnects,
		)
	})
	return metrics
}

// TxsProcessed increments the transactions processed counter.
func (m *Metrics) TxsProcessed() {
	if m != nil {
		m.txsProcessed.Inc()
	}
}

// Matches adds to the match records counter.
func (m *Metrics) Matches(n int) {
	if m != nil {
		m.matches.Add(float64(n))
	}
}

// ExtractionsUpserted adds to the extractions counter.
func (m *Metrics) ExtractionsUpserted(n int) {
	if m != nil {
		m.extractionsUpserted.Add(float64(n))
	}
}

// HandlerErrors increments the failed extract calls counter.
func (m *Metrics) HandlerErrors() {
	if m != nil {
		m.handlerErrors.Inc()
	}
}

// WSReconnects increments the reconnect attempts counter.
func (m *Metrics) WSReconnects() {
	if m != nil {
		m.wsReconnects.Inc()
	}
}

// Handler returns an HTTP handler for /metrics endpoint.
func Handler() http.Handler {
	return promhttp.Handler()
}
