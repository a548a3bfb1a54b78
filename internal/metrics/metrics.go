// Package metrics exposes Prometheus collectors for both engines.
package metrics

import (
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	firehoseEventsTotal      *prometheus.CounterVec
	firehoseReconnectsTotal  prometheus.Counter
	repliesTotal             *prometheus.CounterVec
	replyDurationSeconds     *prometheus.HistogramVec
	crawlReposTotal          *prometheus.CounterVec
	crawlPagesTotal          *prometheus.CounterVec
	crawlErrorsTotal         prometheus.Counter
	resolveRequestsTotal     prometheus.Counter
	rateLimitDelaySeconds    *prometheus.HistogramVec
	inflightReplies          prometheus.Gauge

	once sync.Once
)

// Init registers the Prometheus collectors. Safe to call multiple times.
func Init() {
	once.Do(func() {
		firehoseEventsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "botfleet_firehose_events_total",
				Help: "Total firehose commit events consumed, labeled by collection.",
			},
			[]string{"collection"},
		)

		firehoseReconnectsTotal = promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "botfleet_firehose_reconnects_total",
				Help: "Total firehose reconnection attempts.",
			},
		)

		repliesTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "botfleet_replies_total",
				Help: "Total reply executions, labeled by strategy and outcome.",
			},
			[]string{"strategy", "outcome"},
		)

		replyDurationSeconds = promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "botfleet_reply_duration_seconds",
				Help:    "Histogram of reply strategy execution latency.",
				Buckets: []float64{0.1, 0.5, 1, 2, 5, 10, 30},
			},
			[]string{"strategy"},
		)

		crawlReposTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "botfleet_crawl_repos_total",
				Help: "Total repositories listed during crawls, labeled by host and activity.",
			},
			[]string{"host", "state"},
		)

		crawlPagesTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "botfleet_crawl_pages_total",
				Help: "Total directory pages processed, labeled by host.",
			},
			[]string{"host"},
		)

		crawlErrorsTotal = promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "botfleet_crawl_errors_total",
				Help: "Total failed resolution batches during crawls.",
			},
		)

		resolveRequestsTotal = promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "botfleet_resolve_requests_total",
				Help: "Total batch resolution requests issued.",
			},
		)

		rateLimitDelaySeconds = promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "botfleet_rate_limit_delay_seconds",
				Help:    "Histogram of advisory rate limit wait durations.",
				Buckets: []float64{0.1, 0.5, 1, 2, 5, 10, 30, 60},
			},
			[]string{"host"},
		)

		inflightReplies = promauto.NewGauge(
			prometheus.GaugeOpts{
				Name: "botfleet_inflight_replies",
				Help: "Number of reply tasks currently executing.",
			},
		)
	})
}

// Handler returns an http.Handler exposing the metrics.
func Handler() http.Handler {
	return promhttp.Handler()
}

// ObserveFirehoseEvent counts one consumed commit event.
func ObserveFirehoseEvent(collection string) {
	firehoseEventsTotal.WithLabelValues(collection).Inc()
}

// ObserveFirehoseReconnect counts a reconnection attempt.
func ObserveFirehoseReconnect() {
	firehoseReconnectsTotal.Inc()
}

// ObserveReply records one strategy execution.
func ObserveReply(strategy, outcome string, dur time.Duration) {
	repliesTotal.WithLabelValues(strategy, outcome).Inc()
	replyDurationSeconds.WithLabelValues(strategy).Observe(dur.Seconds())
}

// ObserveCrawlPage records one processed directory page.
func ObserveCrawlPage(host string, active, suspended int) {
	crawlPagesTotal.WithLabelValues(host).Inc()
	crawlReposTotal.WithLabelValues(host, "active").Add(float64(active))
	crawlReposTotal.WithLabelValues(host, "suspended").Add(float64(suspended))
}

// ObserveResolve records the requests and failures of one resolve call.
func ObserveResolve(requests, errors int) {
	resolveRequestsTotal.Add(float64(requests))
	crawlErrorsTotal.Add(float64(errors))
}

// ObserveRateLimitDelay records an advisory quota wait.
func ObserveRateLimitDelay(host string, dur time.Duration) {
	rateLimitDelaySeconds.WithLabelValues(host).Observe(dur.Seconds())
}

// IncInflightReplies increments the in-flight reply gauge.
func IncInflightReplies() {
	inflightReplies.Inc()
}

// DecInflightReplies decrements the in-flight reply gauge.
func DecInflightReplies() {
	inflightReplies.Dec()
}
