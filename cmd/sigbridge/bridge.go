package main

import (
	"context"
	"log/slog"
	"net/url"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"sigbridge/internal/audit"
	"sigbridge/internal/bridge"
	"sigbridge/internal/config"
	"sigbridge/internal/domain"
	"sigbridge/internal/hass"
	"sigbridge/internal/metrics"
	transport "sigbridge/internal/signal"
)

func bridgeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "bridge",
		Short: "Run the bridge daemon",
		RunE:  runBridge,
	}
}

func runBridge(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		logger.Error("cannot load config", "err", err)
		return err
	}
	if err := cfg.Validate(); err != nil {
		logger.Error("invalid config", "err", err)
		return err
	}
	log := newLeveledLogger(cfg.General.LogLevel)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Backend reachability is a startup requirement: the bridge is
	// useless without it, so failing here is fatal.
	backend := hass.NewClient(cfg.Hass.URL, cfg.Hass.Token, log)
	probeCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	backendInfo, err := backend.Config(probeCtx)
	cancel()
	if err != nil {
		log.Error("home-automation backend unreachable", "url", cfg.Hass.URL, "err", err)
		return err
	}
	log.Info("backend connected", "location", backendInfo.LocationName, "version", backendInfo.Version)

	bridgeMetrics, registry := metrics.NewBridge()
	if cfg.Metrics.Enabled {
		go func() {
			if err := metrics.Serve(ctx, cfg.Metrics.Port, registry, log); err != nil {
				log.Error("metrics server failed", "err", err)
			}
		}()
	}

	var auditStore *audit.Store
	if cfg.Audit.Enabled {
		auditStore, err = audit.NewStore(cfg.Audit.DBPath, log)
		if err != nil {
			log.Error("cannot open audit store", "err", err)
			return err
		}
		defer auditStore.Close()
	}

	chat := newChatTransport(ctx, cfg, bridgeMetrics, log)
	defer chat.Close()

	resolver := bridge.NewResolver(backend, time.Duration(cfg.Hass.EntityTTLSeconds)*time.Second, log)
	dispatcher := bridge.NewDispatcher(resolver, backend, log)

	var events <-chan hass.StateChange
	if cfg.Hass.SubscribeEvents {
		stream := hass.NewEventStream(cfg.Hass.URL, cfg.Hass.Token, log)
		go stream.Run(ctx)
		events = stream.Events()
	}

	if cfg.Signal.Broadcast.GroupID != "" {
		log.Info("broadcast notifications enabled",
			"group", cfg.Signal.Broadcast.GroupID,
			"name", cfg.Signal.Broadcast.Name,
		)
	}

	loop := bridge.NewLoop(bridge.LoopConfig{
		Transport:      chat,
		Dispatcher:     dispatcher,
		Resolver:       resolver,
		Dedup:          bridge.NewDedupGate(0),
		Auth:           bridge.NewAuthGate(cfg.Signal.AllowFrom, log),
		Events:         events,
		Broadcast:      domain.ReplyTarget{GroupID: cfg.Signal.Broadcast.GroupID},
		PollInterval:   time.Duration(cfg.Signal.PollIntervalSeconds) * time.Second,
		StatusSchedule: cfg.Signal.StatusSchedule,
		Audit:          auditStore,
		Metrics:        bridgeMetrics,
		Logger:         log,
	})
	return loop.Run(ctx)
}

// newChatTransport constructs the variant selected by signal.mode. The
// rest of the process only ever sees domain.Transport.
func newChatTransport(ctx context.Context, cfg *config.Config, m *metrics.Bridge, log *slog.Logger) domain.Transport {
	if cfg.Signal.Mode == "socket" {
		socket := transport.NewSocketTransport(websocketURL(cfg.Signal.URL), cfg.Signal.Account, log)
		socket.OnReconnect(func() { m.Reconnects.Inc() })
		go socket.Run(ctx)
		return socket
	}
	return transport.NewRESTTransport(cfg.Signal.URL, cfg.Signal.Account, log)
}

// websocketURL rewrites an http(s) base URL to its ws(s) equivalent;
// URLs already using a ws scheme pass through unchanged.
func websocketURL(base string) string {
	u, err := url.Parse(base)
	if err != nil {
		return base
	}
	switch u.Scheme {
	case "http":
		u.Scheme = "ws"
	case "https":
		u.Scheme = "wss"
	}
	if !strings.HasSuffix(u.Path, "/jsonrpc") {
		u.Path = strings.TrimRight(u.Path, "/") + "/jsonrpc"
	}
	return u.String()
}
