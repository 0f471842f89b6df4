// Package monitoring exposes Prometheus metrics for the controller and its
// HTTP surface.
package monitoring

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all Prometheus collectors. A nil *Metrics is valid and
// records nothing.
type Metrics struct {
	registry *prometheus.Registry

	// HTTP metrics
	RequestsTotal   *prometheus.CounterVec
	RequestDuration *prometheus.HistogramVec

	// Connection metrics
	Connects        prometheus.Counter
	ConnectFailures prometheus.Counter
	Disconnects     *prometheus.CounterVec
	Connected       prometheus.Gauge

	// Cue metrics
	CueStarts   prometheus.Counter
	CueFinishes prometheus.Counter
	CueStops    *prometheus.CounterVec

	// Discovery metrics
	DiscoveryUpdates prometheus.Counter
	Workspaces       prometheus.Gauge

	// WebSocket metrics
	WSConnections prometheus.Gauge
	WSMessages    *prometheus.CounterVec
}

// NewMetrics creates collectors on a fresh registry.
func NewMetrics() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector())
	reg.MustRegister(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	f := promauto.With(reg)

	return &Metrics{
		registry: reg,

		RequestsTotal: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "cueremote_http_requests_total",
				Help: "Total number of HTTP requests",
			},
			[]string{"method", "path", "status"},
		),
		RequestDuration: f.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "cueremote_http_request_duration_seconds",
				Help:    "HTTP request duration in seconds",
				Buckets: []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10},
			},
			[]string{"method", "path"},
		),

		Connects: f.NewCounter(prometheus.CounterOpts{
			Name: "cueremote_workspace_connects_total",
			Help: "Successful workspace connections",
		}),
		ConnectFailures: f.NewCounter(prometheus.CounterOpts{
			Name: "cueremote_workspace_connect_failures_total",
			Help: "Workspace connection attempts that failed or timed out",
		}),
		Disconnects: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "cueremote_workspace_disconnects_total",
				Help: "Workspace disconnections by reason",
			},
			[]string{"reason"},
		),
		Connected: f.NewGauge(prometheus.GaugeOpts{
			Name: "cueremote_workspace_connected",
			Help: "1 while a workspace is connected",
		}),

		CueStarts: f.NewCounter(prometheus.CounterOpts{
			Name: "cueremote_cue_starts_total",
			Help: "Cues started",
		}),
		CueFinishes: f.NewCounter(prometheus.CounterOpts{
			Name: "cueremote_cue_finishes_total",
			Help: "Cues cleared by their duration timer",
		}),
		CueStops: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "cueremote_cue_stops_total",
				Help: "Stop commands by kind",
			},
			[]string{"kind"},
		),

		DiscoveryUpdates: f.NewCounter(prometheus.CounterOpts{
			Name: "cueremote_discovery_updates_total",
			Help: "Discovery updates processed",
		}),
		Workspaces: f.NewGauge(prometheus.GaugeOpts{
			Name: "cueremote_workspaces",
			Help: "Workspaces currently reported by discovery",
		}),

		WSConnections: f.NewGauge(prometheus.GaugeOpts{
			Name: "cueremote_ws_connections",
			Help: "Active WebSocket connections",
		}),
		WSMessages: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "cueremote_ws_messages_total",
				Help: "WebSocket messages by direction and type",
			},
			[]string{"direction", "type"},
		),
	}
}

// Registry returns the registry backing these collectors.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// RecordConnect records a successful workspace connection.
func (m *Metrics) RecordConnect() {
	if m == nil {
		return
	}
	m.Connects.Inc()
	m.Connected.Set(1)
}

// RecordConnectFailure records a failed connection attempt.
func (m *Metrics) RecordConnectFailure() {
	if m == nil {
		return
	}
	m.ConnectFailures.Inc()
}

// RecordDisconnect records a teardown with the given reason.
func (m *Metrics) RecordDisconnect(reason string) {
	if m == nil {
		return
	}
	m.Disconnects.WithLabelValues(reason).Inc()
	m.Connected.Set(0)
}

// RecordCueStart records a start command.
func (m *Metrics) RecordCueStart() {
	if m == nil {
		return
	}
	m.CueStarts.Inc()
}

// RecordCueFinish records a cue cleared by its duration timer.
func (m *Metrics) RecordCueFinish() {
	if m == nil {
		return
	}
	m.CueFinishes.Inc()
}

// RecordCueStop records a stop command of the given kind.
func (m *Metrics) RecordCueStop(kind string) {
	if m == nil {
		return
	}
	m.CueStops.WithLabelValues(kind).Inc()
}

// RecordDiscovery records a processed discovery update.
func (m *Metrics) RecordDiscovery(workspaces int) {
	if m == nil {
		return
	}
	m.DiscoveryUpdates.Inc()
	m.Workspaces.Set(float64(workspaces))
}

// RecordWSConnection adjusts the connection gauge by delta.
func (m *Metrics) RecordWSConnection(delta int) {
	if m == nil {
		return
	}
	m.WSConnections.Add(float64(delta))
}

// RecordWSMessage counts a message in the given direction.
func (m *Metrics) RecordWSMessage(direction, msgType string) {
	if m == nil {
		return
	}
	m.WSMessages.WithLabelValues(direction, msgType).Inc()
}

// Middleware records request counts and latency.
func (m *Metrics) Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		if m == nil {
			c.Next()
			return
		}

		start := time.Now()
		c.Next()

		path := c.FullPath()
		if path == "" {
			path = "unmatched"
		}
		status := strconv.Itoa(c.Writer.Status())

		m.RequestsTotal.WithLabelValues(c.Request.Method, path, status).Inc()
		m.RequestDuration.WithLabelValues(c.Request.Method, path).Observe(time.Since(start).Seconds())
	}
}
