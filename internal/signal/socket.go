package signal

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"

	"sigbridge/internal/domain"
)

const reconnectBackoff = 5 * time.Second

// SocketTransport is the socket variant: one persistent JSON-RPC
// connection carrying both request/response pairs and unsolicited
// "receive" push notifications. Outbound operations route through the
// correlator; inbound pushes accumulate in a queue drained by
// ReceiveMessages. On unexpected close all pending calls fail and the
// transport reconnects forever with a fixed backoff. Availability over
// fast-failing: there is no circuit breaker.
type SocketTransport struct {
	wsURL   string
	account string
	logger  *slog.Logger
	backoff time.Duration

	correlator *Correlator
	connected  atomic.Bool

	connMu sync.Mutex
	conn   *websocket.Conn

	queueMu sync.Mutex
	queue   []domain.InboundMessage

	// onReconnect, when set, is invoked after each successful
	// (re)connection. Used for metrics.
	onReconnect func()
}

func NewSocketTransport(wsURL, account string, logger *slog.Logger) *SocketTransport {
	t := &SocketTransport{
		wsURL:   wsURL,
		account: account,
		logger:  logger,
		backoff: reconnectBackoff,
	}
	t.correlator = NewCorrelator(t.writeFrame, logger)
	return t
}

func (t *SocketTransport) Name() string { return "socket" }

// OnReconnect registers a callback fired after every successful dial.
func (t *SocketTransport) OnReconnect(fn func()) { t.onReconnect = fn }

// Connected reports whether the socket is currently up.
func (t *SocketTransport) Connected() bool { return t.connected.Load() }

// Run dials and pumps the connection until ctx is cancelled,
// reconnecting after a fixed backoff on any failure. Callers start it
// in its own goroutine before using the transport.
func (t *SocketTransport) Run(ctx context.Context) {
	for {
		if err := t.connectAndRead(ctx); err != nil {
			t.logger.Warn("chat socket disconnected", "err", err)
		}
		t.connected.Store(false)
		t.correlator.Reset()

		select {
		case <-ctx.Done():
			return
		case <-time.After(t.backoff):
		}
	}
}

func (t *SocketTransport) connectAndRead(ctx context.Context) error {
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, t.wsURL, nil)
	if err != nil {
		return err
	}

	t.connMu.Lock()
	t.conn = conn
	t.connMu.Unlock()
	t.connected.Store(true)
	t.logger.Info("chat socket connected", "url", t.wsURL)
	if t.onReconnect != nil {
		t.onReconnect()
	}

	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-ctx.Done():
			conn.Close()
		case <-done:
		}
	}()
	defer func() {
		t.connMu.Lock()
		t.conn = nil
		t.connMu.Unlock()
		conn.Close()
	}()

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			return err
		}
		t.route(data)
	}
}

// inboundFrame is the superset of frames the socket delivers: a
// response (id + result/error) or a notification (method + params).
type inboundFrame struct {
	ID     *int64          `json:"id"`
	Method string          `json:"method"`
	Params json.RawMessage `json:"params"`
	Result json.RawMessage `json:"result"`
	Error  *RemoteError    `json:"error"`
}

// route demultiplexes one frame: responses resolve the matching
// pending call, "receive" notifications join the message queue.
func (t *SocketTransport) route(data []byte) {
	var frame inboundFrame
	if err := json.Unmarshal(data, &frame); err != nil {
		t.logger.Warn("invalid socket frame", "err", err)
		return
	}

	switch {
	case frame.Method == "receive":
		t.enqueue(frame.Params)
	case frame.ID != nil:
		t.correlator.Resolve(*frame.ID, frame.Result, frame.Error)
	default:
		t.logger.Debug("ignoring socket frame", "method", frame.Method)
	}
}

func (t *SocketTransport) enqueue(params json.RawMessage) {
	var env envelope
	if err := json.Unmarshal(params, &env); err != nil {
		t.logger.Warn("invalid receive notification", "err", err)
		return
	}
	msg, ok := normalize(env)
	if !ok {
		return
	}
	t.queueMu.Lock()
	t.queue = append(t.queue, msg)
	t.queueMu.Unlock()
}

func (t *SocketTransport) writeFrame(data []byte) error {
	t.connMu.Lock()
	defer t.connMu.Unlock()
	if t.conn == nil || !t.connected.Load() {
		return domain.ErrConnectionLost
	}
	return t.conn.WriteMessage(websocket.TextMessage, data)
}

// SendMessage routes through the correlator as a "send" call.
func (t *SocketTransport) SendMessage(ctx context.Context, target domain.ReplyTarget, text string) error {
	params := map[string]any{
		"account": t.account,
		"message": text,
	}
	if target.GroupID != "" {
		params["groupId"] = target.GroupID
	} else {
		params["recipient"] = []string{target.Recipient}
	}
	if _, err := t.correlator.Call(ctx, "send", params); err != nil {
		return &SendError{Target: target, Err: err}
	}
	return nil
}

// ReceiveMessages drains and clears the push queue without blocking.
func (t *SocketTransport) ReceiveMessages(ctx context.Context) ([]domain.InboundMessage, error) {
	t.queueMu.Lock()
	defer t.queueMu.Unlock()
	if len(t.queue) == 0 {
		return nil, nil
	}
	msgs := t.queue
	t.queue = nil
	return msgs, nil
}

// ListGroups has no protocol equivalent on the socket surface.
func (t *SocketTransport) ListGroups(ctx context.Context) ([]domain.GroupInfo, error) {
	return nil, domain.ErrUnsupported
}

// CreateGroup has no protocol equivalent on the socket surface.
func (t *SocketTransport) CreateGroup(ctx context.Context, name string, members []string) (string, error) {
	return "", domain.ErrUnsupported
}

func (t *SocketTransport) Close() error {
	t.connMu.Lock()
	defer t.connMu.Unlock()
	if t.conn != nil {
		return t.conn.Close()
	}
	return nil
}
