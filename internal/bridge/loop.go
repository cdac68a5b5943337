// Package bridge contains the dispatch pipeline: dedup and
// authorization gates, entity resolution, the command grammar, and the
// top-level control loop.
package bridge

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/robfig/cron/v3"

	"sigbridge/internal/audit"
	"sigbridge/internal/domain"
	"sigbridge/internal/hass"
	"sigbridge/internal/metrics"
)

const defaultPollInterval = 60 * time.Second

// LoopConfig wires the loop's collaborators. Transport, Dispatcher,
// Resolver, Dedup, Auth and Logger are required; the rest are optional.
type LoopConfig struct {
	Transport  domain.Transport
	Dispatcher *Dispatcher
	Resolver   *Resolver
	Dedup      *DedupGate
	Auth       *AuthGate

	// Events delivers backend state changes; nil disables notifications.
	Events <-chan hass.StateChange

	// Broadcast receives event notifications and scheduled status
	// reports. Zero value disables both.
	Broadcast domain.ReplyTarget

	PollInterval   time.Duration
	StatusSchedule string // cron expression, empty disables

	Audit   *audit.Store
	Metrics *metrics.Bridge
	Logger  *slog.Logger
}

// Loop is the top-level control loop. It is the only component with
// both inbound and outbound transport access: the poll cycle drains
// the transport and runs each message through dedup, authorization and
// the dispatcher, while a separate goroutine relays backend push
// events out as chat notifications.
type Loop struct {
	cfg LoopConfig
}

func NewLoop(cfg LoopConfig) *Loop {
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = defaultPollInterval
	}
	return &Loop{cfg: cfg}
}

// Run blocks until ctx is cancelled. Poll cycles run strictly one at a
// time on this goroutine; a tick that fires while a cycle is still
// working is coalesced by the ticker, never stacked.
func (l *Loop) Run(ctx context.Context) error {
	if l.cfg.Events != nil {
		go l.relayEvents(ctx)
	}

	var scheduler *cron.Cron
	if l.cfg.StatusSchedule != "" && l.hasBroadcast() {
		scheduler = cron.New()
		_, err := scheduler.AddFunc(l.cfg.StatusSchedule, func() { l.statusReport(ctx) })
		if err != nil {
			return fmt.Errorf("invalid status schedule %q: %w", l.cfg.StatusSchedule, err)
		}
		scheduler.Start()
		defer scheduler.Stop()
		l.cfg.Logger.Info("status report scheduled", "cron", l.cfg.StatusSchedule)
	}

	l.cfg.Logger.Info("bridge loop started",
		"transport", l.cfg.Transport.Name(),
		"poll_interval", l.cfg.PollInterval,
	)

	ticker := time.NewTicker(l.cfg.PollInterval)
	defer ticker.Stop()

	// First cycle immediately rather than one interval in.
	l.cycle(ctx)

	for {
		select {
		case <-ctx.Done():
			l.cfg.Logger.Info("bridge loop stopping")
			return nil
		case <-ticker.C:
			l.cycle(ctx)
		}
	}
}

// cycle fetches pending messages and processes them in transport
// order. Per-message failures are isolated: they never abort the cycle
// or the loop.
func (l *Loop) cycle(ctx context.Context) {
	messages, err := l.cfg.Transport.ReceiveMessages(ctx)
	if err != nil {
		l.cfg.Logger.Warn("receive failed, retrying next cycle", "err", err)
		return
	}
	for _, msg := range messages {
		l.process(ctx, msg)
	}
	if m := l.cfg.Metrics; m != nil {
		m.PollCycles.Inc()
		m.EntityCacheSize.Set(float64(l.cfg.Resolver.CacheSize()))
	}
}

func (l *Loop) process(ctx context.Context, msg domain.InboundMessage) {
	m := l.cfg.Metrics
	if m != nil {
		m.MessagesReceived.Inc()
	}

	if !l.cfg.Dedup.Admit(msg.Identity()) {
		if m != nil {
			m.MessagesDeduped.Inc()
		}
		return
	}
	if !l.cfg.Auth.Allowed(msg) {
		if m != nil {
			m.MessagesUnauthorized.Inc()
		}
		return
	}
	if strings.TrimSpace(msg.Text) == "" {
		return
	}

	l.cfg.Logger.Info("dispatching command",
		"sender", msg.SenderID,
		"origin", msg.Origin.String(),
		"text", msg.Text,
	)
	reply := l.cfg.Dispatcher.Dispatch(ctx, msg.Text)
	if m != nil {
		m.CommandsDispatched.Inc()
	}

	if l.cfg.Audit != nil {
		l.cfg.Audit.Record(ctx, audit.Entry{
			SenderID: msg.SenderID,
			GroupID:  msg.GroupID,
			Command:  msg.Text,
			Reply:    reply,
		})
	}

	if reply == "" {
		return
	}
	if err := l.cfg.Transport.SendMessage(ctx, msg.Target(), reply); err != nil {
		l.cfg.Logger.Error("reply send failed", "target", msg.Target().String(), "err", err)
		if m != nil {
			m.SendFailures.Inc()
		}
	}
}

// relayEvents consumes backend state changes on its own schedule,
// fully decoupled from the poll timer, and emits one-line
// notifications for the configured event patterns. Best-effort: send
// failures are logged, not retried.
func (l *Loop) relayEvents(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case change, ok := <-l.cfg.Events:
			if !ok {
				return
			}
			if note := l.notification(ctx, change); note != "" {
				l.notify(ctx, note)
			}
		}
	}
}

// notification decides whether a state change is worth telling the
// chat about: lock transitions locked→unlocked and motion sensors
// going off→on.
func (l *Loop) notification(ctx context.Context, change hass.StateChange) string {
	entityDomain := change.EntityID
	if i := strings.Index(entityDomain, "."); i >= 0 {
		entityDomain = entityDomain[:i]
	}

	switch entityDomain {
	case "lock":
		if change.OldState == "locked" && change.NewState == "unlocked" {
			return "🔓 " + l.displayName(ctx, change.EntityID) + " was unlocked"
		}
	case "binary_sensor":
		if change.OldState == "off" && change.NewState == "on" && l.isMotionSensor(ctx, change.EntityID) {
			return "🚶 Motion detected: " + l.displayName(ctx, change.EntityID)
		}
	}
	return ""
}

func (l *Loop) isMotionSensor(ctx context.Context, entityID string) bool {
	if entity, ok, err := l.cfg.Resolver.Resolve(ctx, entityID); err == nil && ok {
		if class, _ := entity.Attributes["device_class"].(string); class != "" {
			return class == "motion"
		}
	}
	return strings.Contains(entityID, "motion")
}

func (l *Loop) displayName(ctx context.Context, entityID string) string {
	if entity, ok, err := l.cfg.Resolver.Resolve(ctx, entityID); err == nil && ok {
		return entity.FriendlyName()
	}
	return entityID
}

func (l *Loop) statusReport(ctx context.Context) {
	l.notify(ctx, l.cfg.Dispatcher.Dispatch(ctx, "status"))
}

func (l *Loop) notify(ctx context.Context, text string) {
	if !l.hasBroadcast() {
		return
	}
	if err := l.cfg.Transport.SendMessage(ctx, l.cfg.Broadcast, text); err != nil {
		l.cfg.Logger.Warn("notification send failed", "err", err)
		if l.cfg.Metrics != nil {
			l.cfg.Metrics.SendFailures.Inc()
		}
		return
	}
	if l.cfg.Metrics != nil {
		l.cfg.Metrics.NotificationsSent.Inc()
	}
}

func (l *Loop) hasBroadcast() bool {
	return l.cfg.Broadcast.GroupID != "" || l.cfg.Broadcast.Recipient != ""
}
