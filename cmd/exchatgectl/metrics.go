package main

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// metrics holds the CLI host's own isolated Prometheus registry, the
// same "own Registry, not the global default" shape pkg/p2pnet.Metrics
// uses, scaled down to what a short-lived CLI invocation can actually
// observe: connection outcomes and frame-level counters rather than
// proxy/peer/discovery metrics that need a long-running daemon.
type metrics struct {
	registry *prometheus.Registry

	connectionsTotal *prometheus.CounterVec
	messagesTotal    *prometheus.CounterVec
	fileBytesTotal   *prometheus.CounterVec
}

func newMetrics() *metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(prometheus.NewGoCollector())
	reg.MustRegister(prometheus.NewProcessCollector(prometheus.ProcessCollectorOpts{}))

	m := &metrics{
		registry: reg,
		connectionsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "exchatgectl_connections_total",
				Help: "Total connection attempts to the server, by outcome.",
			},
			[]string{"result"},
		),
		messagesTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "exchatgectl_messages_total",
				Help: "Total conversation messages, by direction.",
			},
			[]string{"direction"},
		),
		fileBytesTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "exchatgectl_file_bytes_total",
				Help: "Total file exchange bytes, by direction.",
			},
			[]string{"direction"},
		),
	}
	reg.MustRegister(m.connectionsTotal, m.messagesTotal, m.fileBytesTotal)
	return m
}

func (m *metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// serveMetrics starts the /metrics endpoint in the background and
// returns a func that shuts it down. A bind failure is logged, not
// fatal: metrics are a diagnostic, never load-bearing for a chat or
// file transfer command in progress.
func serveMetrics(addr string, m *metrics) func() {
	mux := http.NewServeMux()
	mux.Handle("/metrics", m.Handler())
	srv := &http.Server{Addr: addr, Handler: mux}

	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Warn("metrics server stopped", "error", err)
		}
	}()
	return func() { srv.Shutdown(context.Background()) }
}
