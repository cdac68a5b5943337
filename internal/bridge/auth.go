package bridge

import (
	"log/slog"

	"sigbridge/internal/domain"
)

// AuthGate is the allow-list check on sender identity. Group-origin
// messages pass unconditionally: group membership is the access
// control boundary there, enforced by the chat backend itself.
type AuthGate struct {
	allowed map[string]struct{}
	logger  *slog.Logger
}

func NewAuthGate(allowFrom []string, logger *slog.Logger) *AuthGate {
	allowed := make(map[string]struct{}, len(allowFrom))
	for _, id := range allowFrom {
		allowed[id] = struct{}{}
	}
	return &AuthGate{allowed: allowed, logger: logger}
}

// Allowed reports whether the message may be processed. Rejections are
// logged only; no reply is ever sent to an unauthorized sender, to
// avoid confirming the bot's presence.
func (g *AuthGate) Allowed(msg domain.InboundMessage) bool {
	if msg.Origin == domain.OriginGroup {
		return true
	}
	if _, ok := g.allowed[msg.SenderID]; ok {
		return true
	}
	g.logger.Warn("rejected message from unauthorized sender", "sender", msg.SenderID)
	return false
}
