package hass

import (
	"context"
	"errors"
	"log/slog"
	"net/url"
	"strings"
	"time"

	"github.com/gorilla/websocket"
)

const eventReconnectBackoff = 5 * time.Second

// StateChange is one state_changed event from the backend stream.
type StateChange struct {
	EntityID string
	OldState string
	NewState string
}

// EventStream subscribes to the backend's WebSocket event surface and
// delivers state_changed events on Events(). It reconnects forever
// with a fixed backoff; the channel closes only when the context is
// cancelled.
type EventStream struct {
	wsURL  string
	token  string
	logger *slog.Logger
	events chan StateChange
}

func NewEventStream(baseURL, token string, logger *slog.Logger) *EventStream {
	return &EventStream{
		wsURL:  websocketURL(baseURL),
		token:  token,
		logger: logger,
		events: make(chan StateChange, 64),
	}
}

func websocketURL(baseURL string) string {
	u, err := url.Parse(baseURL)
	if err != nil {
		return baseURL
	}
	switch u.Scheme {
	case "https":
		u.Scheme = "wss"
	default:
		u.Scheme = "ws"
	}
	u.Path = strings.TrimRight(u.Path, "/") + "/api/websocket"
	return u.String()
}

// Events returns the stream of state changes.
func (s *EventStream) Events() <-chan StateChange {
	return s.events
}

// Run connects, authenticates, subscribes, and pumps events until ctx
// is cancelled. Connection failures are logged and retried forever,
// except a rejected token: retrying that would hammer the backend with
// the same bad credentials, so the stream stops.
func (s *EventStream) Run(ctx context.Context) {
	defer close(s.events)
	for {
		if err := s.connectAndPump(ctx); err != nil {
			var authErr *AuthError
			if errors.As(err, &authErr) {
				s.logger.Error("event stream stopped", "err", err)
				return
			}
			s.logger.Warn("event stream disconnected", "err", err)
		}
		select {
		case <-ctx.Done():
			return
		case <-time.After(eventReconnectBackoff):
		}
	}
}

// wsFrame is the superset of frames the backend sends.
type wsFrame struct {
	Type  string `json:"type"`
	ID    int64  `json:"id,omitempty"`
	Event *struct {
		EventType string `json:"event_type"`
		Data      struct {
			EntityID string  `json:"entity_id"`
			OldState *Entity `json:"old_state"`
			NewState *Entity `json:"new_state"`
		} `json:"data"`
	} `json:"event,omitempty"`
}

func (s *EventStream) connectAndPump(ctx context.Context) error {
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, s.wsURL, nil)
	if err != nil {
		return err
	}
	defer conn.Close()

	// Close the socket when the context ends so ReadJSON unblocks.
	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-ctx.Done():
			conn.Close()
		case <-done:
		}
	}()

	if err := s.authenticate(conn); err != nil {
		return err
	}

	sub := map[string]any{"id": 1, "type": "subscribe_events", "event_type": "state_changed"}
	if err := conn.WriteJSON(sub); err != nil {
		return err
	}

	s.logger.Info("event stream connected", "url", s.wsURL)

	for {
		var frame wsFrame
		if err := conn.ReadJSON(&frame); err != nil {
			return err
		}
		if frame.Type != "event" || frame.Event == nil || frame.Event.EventType != "state_changed" {
			continue
		}
		data := frame.Event.Data
		change := StateChange{EntityID: data.EntityID}
		if data.OldState != nil {
			change.OldState = data.OldState.State
		}
		if data.NewState != nil {
			change.NewState = data.NewState.State
		}
		select {
		case s.events <- change:
		default:
			s.logger.Warn("event stream buffer full, dropping event", "entity", change.EntityID)
		}
	}
}

// authenticate runs the auth_required → auth → auth_ok handshake.
func (s *EventStream) authenticate(conn *websocket.Conn) error {
	var hello wsFrame
	if err := conn.ReadJSON(&hello); err != nil {
		return err
	}
	if hello.Type != "auth_required" {
		// Some backends skip the handshake entirely.
		return nil
	}
	if err := conn.WriteJSON(map[string]any{"type": "auth", "access_token": s.token}); err != nil {
		return err
	}
	var result wsFrame
	if err := conn.ReadJSON(&result); err != nil {
		return err
	}
	if result.Type != "auth_ok" {
		return &AuthError{Response: result.Type}
	}
	return nil
}

// AuthError reports a rejected event-stream authentication.
type AuthError struct {
	Response string
}

func (e *AuthError) Error() string {
	return "event stream auth rejected: " + e.Response
}
