// Package metrics exposes the Prometheus collectors for the crawler. One
// Collectors value satisfies the observer interfaces of the ladder, the
// extraction client, the pool and the launch pacer.
package metrics

import (
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/JakeFAU/venue-crawler/internal/crawler"
)

// Collectors groups every crawler metric.
type Collectors struct {
	tasksTotal          *prometheus.CounterVec
	taskDuration        *prometheus.HistogramVec
	activeWorkers       prometheus.Gauge
	strategyTotal       *prometheus.CounterVec
	strategyDuration    *prometheus.HistogramVec
	extractionTotal     *prometheus.CounterVec
	extractionDuration  *prometheus.HistogramVec
	launchDelaySeconds  *prometheus.HistogramVec
	httpRequestsTotal   *prometheus.CounterVec
	httpRequestDuration *prometheus.HistogramVec

	gatherer prometheus.Gatherer
}

// New registers the collectors against reg. A nil reg uses a fresh registry.
func New(reg *prometheus.Registry) (*Collectors, error) {
	if reg == nil {
		reg = prometheus.NewRegistry()
	}
	c := &Collectors{
		tasksTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "venuecrawler_tasks_total",
			Help: "Tasks finished, labeled by kind and result.",
		}, []string{"kind", "result"}),
		taskDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "venuecrawler_task_duration_seconds",
			Help:    "Wall time per task, labeled by kind.",
			Buckets: []float64{1, 2, 5, 10, 20, 40, 60, 100},
		}, []string{"kind"}),
		activeWorkers: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "venuecrawler_active_workers",
			Help: "Workers currently holding a browser.",
		}),
		strategyTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "venuecrawler_ladder_attempts_total",
			Help: "Content ladder attempts, labeled by strategy and status.",
		}, []string{"strategy", "status"}),
		strategyDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "venuecrawler_ladder_attempt_duration_seconds",
			Help:    "Content ladder attempt latency, labeled by strategy.",
			Buckets: []float64{0.25, 0.5, 1, 2, 5, 10, 25},
		}, []string{"strategy"}),
		extractionTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "venuecrawler_extraction_calls_total",
			Help: "Extraction service calls, labeled by kind and outcome.",
		}, []string{"kind", "outcome"}),
		extractionDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "venuecrawler_extraction_duration_seconds",
			Help:    "Extraction service latency, labeled by kind.",
			Buckets: []float64{0.5, 1, 2, 5, 10, 25},
		}, []string{"kind"}),
		launchDelaySeconds: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "venuecrawler_launch_delay_seconds",
			Help:    "Time tasks waited for launch pacing, labeled by site.",
			Buckets: []float64{0.1, 0.5, 1, 2, 5, 10, 30},
		}, []string{"site"}),
		httpRequestsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "HTTP requests, labeled by method and code.",
		}, []string{"method", "code"}),
		httpRequestDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "HTTP request latency, labeled by method and route.",
			Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5, 30, 120},
		}, []string{"method", "route"}),
		gatherer: reg,
	}
	for _, collector := range []prometheus.Collector{
		c.tasksTotal, c.taskDuration, c.activeWorkers,
		c.strategyTotal, c.strategyDuration,
		c.extractionTotal, c.extractionDuration,
		c.launchDelaySeconds,
		c.httpRequestsTotal, c.httpRequestDuration,
	} {
		if err := reg.Register(collector); err != nil {
			return nil, fmt.Errorf("register metrics collector: %w", err)
		}
	}
	return c, nil
}

// Handler serves the registry in the Prometheus exposition format.
func (c *Collectors) Handler() http.Handler {
	return promhttp.HandlerFor(c.gatherer, promhttp.HandlerOpts{})
}

// SanitizeSite extracts a lowercase hostname for use as a label. It returns
// "unknown" when no host can be found.
func SanitizeSite(rawURL string) string {
	if !strings.HasPrefix(rawURL, "http") {
		rawURL = "http://" + rawURL
	}
	u, err := url.Parse(rawURL)
	if err != nil || u.Hostname() == "" {
		return "unknown"
	}
	return strings.ToLower(u.Hostname())
}

// ObserveTask implements pool.Observer.
func (c *Collectors) ObserveTask(kind crawler.TaskKind, result string, d time.Duration) {
	c.tasksTotal.WithLabelValues(string(kind), result).Inc()
	c.taskDuration.WithLabelValues(string(kind)).Observe(d.Seconds())
}

// SetActiveWorkers implements pool.Observer.
func (c *Collectors) SetActiveWorkers(n int) {
	c.activeWorkers.Set(float64(n))
}

// ObserveStrategy implements content.Observer.
func (c *Collectors) ObserveStrategy(strategy, status string, d time.Duration) {
	c.strategyTotal.WithLabelValues(strategy, status).Inc()
	c.strategyDuration.WithLabelValues(strategy).Observe(d.Seconds())
}

// ObserveExtraction implements extraction.Observer.
func (c *Collectors) ObserveExtraction(kind, outcome string, d time.Duration) {
	c.extractionTotal.WithLabelValues(kind, outcome).Inc()
	c.extractionDuration.WithLabelValues(kind).Observe(d.Seconds())
}

// ObserveLaunchDelay implements ratelimit.Observer.
func (c *Collectors) ObserveLaunchDelay(host string, d time.Duration) {
	c.launchDelaySeconds.WithLabelValues(SanitizeSite(host)).Observe(d.Seconds())
}

// ObserveHTTPRequest records one API request.
func (c *Collectors) ObserveHTTPRequest(method, route string, code int, d time.Duration) {
	c.httpRequestsTotal.WithLabelValues(method, strconv.Itoa(code)).Inc()
	c.httpRequestDuration.WithLabelValues(method, route).Observe(d.Seconds())
}
