package server

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/smallnest/researchcanvas/canvas"
	"github.com/smallnest/researchcanvas/graph"
)

// Metrics holds the Prometheus collectors of the server.
type Metrics struct {
	registry *prometheus.Registry

	graphSteps      *prometheus.CounterVec
	toolCalls       *prometheus.CounterVec
	httpRequests    *prometheus.CounterVec
	requestDuration *prometheus.HistogramVec
}

// NewMetrics registers the collectors on a fresh registry, together with
// the Go runtime and process collectors.
func NewMetrics() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		graphSteps: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "canvas_graph_steps_total",
			Help: "Completed graph steps by node.",
		}, []string{"node"}),
		toolCalls: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "canvas_tool_calls_total",
			Help: "Dispatched model tool calls by tool name.",
		}, []string{"tool"}),
		httpRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "canvas_http_requests_total",
			Help: "HTTP requests by method, route and status code.",
		}, []string{"method", "path", "status"}),
		requestDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "canvas_http_request_duration_seconds",
			Help:    "HTTP request latency by method and route.",
			Buckets: prometheus.DefBuckets,
		}, []string{"method", "path"}),
	}
	m.registry.MustRegister(
		m.graphSteps,
		m.toolCalls,
		m.httpRequests,
		m.requestDuration,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return m
}

// ToolCall counts a dispatched tool call. It is meant for canvas.Options.OnToolCall.
func (m *Metrics) ToolCall(name string) {
	m.toolCalls.WithLabelValues(name).Inc()
}

// StepListener counts completed graph steps.
func (m *Metrics) StepListener() graph.NodeListener[canvas.AgentState] {
	return graph.NodeListenerFunc[canvas.AgentState](func(_ context.Context, event graph.NodeEvent, node string, _ canvas.AgentState, _ error) {
		if event == graph.NodeEventComplete {
			m.graphSteps.WithLabelValues(node).Inc()
		}
	})
}

// Middleware records request counts and latency by route pattern.
func (m *Metrics) Middleware() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			start := time.Now()
			err := next(c)

			status := c.Response().Status
			if err != nil {
				if he, ok := err.(*echo.HTTPError); ok {
					status = he.Code
				} else if !c.Response().Committed {
					status = http.StatusInternalServerError
				}
			}
			path := c.Path()
			if path == "" {
				path = "unmatched"
			}
			method := c.Request().Method
			m.httpRequests.WithLabelValues(method, path, strconv.Itoa(status)).Inc()
			m.requestDuration.WithLabelValues(method, path).Observe(time.Since(start).Seconds())
			return err
		}
	}
}

// Handler serves the registry in the Prometheus text format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
