// Package metrics exposes bridge counters in Prometheus format on an
// optional HTTP endpoint.
package metrics

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Bridge holds every collector the bridge updates.
type Bridge struct {
	MessagesReceived     prometheus.Counter
	MessagesDeduped      prometheus.Counter
	MessagesUnauthorized prometheus.Counter
	CommandsDispatched   prometheus.Counter
	SendFailures         prometheus.Counter
	Reconnects           prometheus.Counter
	NotificationsSent    prometheus.Counter
	EntityCacheSize      prometheus.Gauge
	PollCycles           prometheus.Counter
}

// NewBridge registers the bridge collectors on a fresh registry and
// returns both.
func NewBridge() (*Bridge, *prometheus.Registry) {
	reg := prometheus.NewRegistry()
	factory := promauto.With(reg)

	b := &Bridge{
		MessagesReceived: factory.NewCounter(prometheus.CounterOpts{
			Name: "sigbridge_messages_received_total",
			Help: "Inbound messages fetched from the chat transport.",
		}),
		MessagesDeduped: factory.NewCounter(prometheus.CounterOpts{
			Name: "sigbridge_messages_deduped_total",
			Help: "Messages skipped as already seen.",
		}),
		MessagesUnauthorized: factory.NewCounter(prometheus.CounterOpts{
			Name: "sigbridge_messages_unauthorized_total",
			Help: "Messages dropped by the allow-list gate.",
		}),
		CommandsDispatched: factory.NewCounter(prometheus.CounterOpts{
			Name: "sigbridge_commands_dispatched_total",
			Help: "Messages that reached the command dispatcher.",
		}),
		SendFailures: factory.NewCounter(prometheus.CounterOpts{
			Name: "sigbridge_send_failures_total",
			Help: "Outbound chat messages that failed to send.",
		}),
		Reconnects: factory.NewCounter(prometheus.CounterOpts{
			Name: "sigbridge_reconnects_total",
			Help: "Successful chat socket (re)connections.",
		}),
		NotificationsSent: factory.NewCounter(prometheus.CounterOpts{
			Name: "sigbridge_notifications_sent_total",
			Help: "Backend event notifications relayed to chat.",
		}),
		EntityCacheSize: factory.NewGauge(prometheus.GaugeOpts{
			Name: "sigbridge_entity_cache_aliases",
			Help: "Aliases currently indexed in the entity cache.",
		}),
		PollCycles: factory.NewCounter(prometheus.CounterOpts{
			Name: "sigbridge_poll_cycles_total",
			Help: "Completed poll/dispatch cycles.",
		}),
	}
	return b, reg
}

// Serve runs the /metrics endpoint until ctx is cancelled.
func Serve(ctx context.Context, port int, reg *prometheus.Registry, logger *slog.Logger) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))

	server := &http.Server{
		Addr:              fmt.Sprintf(":%d", port),
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()
	logger.Info("metrics server started", "port", port)

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return server.Shutdown(shutdownCtx)
	case err := <-errCh:
		return err
	}
}
