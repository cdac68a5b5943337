package signal

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"sigbridge/internal/domain"
)

const rpcTimeout = 30 * time.Second

// RemoteError is a JSON-RPC error object reported by the chat backend.
type RemoteError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

func (e *RemoteError) Error() string {
	return fmt.Sprintf("remote rpc error %d: %s", e.Code, e.Message)
}

// rpcRequest is one outbound JSON-RPC 2.0 call.
type rpcRequest struct {
	JSONRPC string `json:"jsonrpc"`
	Method  string `json:"method"`
	Params  any    `json:"params,omitempty"`
	ID      int64  `json:"id"`
}

// rpcResult is delivered to the waiting caller.
type rpcResult struct {
	result json.RawMessage
	err    error
}

// Correlator matches asynchronous JSON-RPC responses to their pending
// callers over a single persistent connection. It owns the pending
// table exclusively: an entry is removed on response, timeout, or
// connection reset, never twice. A response that arrives after its
// entry was removed is logged and discarded.
type Correlator struct {
	write   func([]byte) error
	logger  *slog.Logger
	timeout time.Duration

	mu      sync.Mutex
	nextID  int64
	pending map[int64]chan rpcResult
}

// NewCorrelator wires a correlator to a connection write function. The
// write function must be safe for concurrent use.
func NewCorrelator(write func([]byte) error, logger *slog.Logger) *Correlator {
	return &Correlator{
		write:   write,
		logger:  logger,
		timeout: rpcTimeout,
		pending: make(map[int64]chan rpcResult),
	}
}

// Call sends a request and suspends the caller until the matching
// response arrives, the 30s timeout elapses, or ctx is cancelled.
func (c *Correlator) Call(ctx context.Context, method string, params any) (json.RawMessage, error) {
	c.mu.Lock()
	c.nextID++
	id := c.nextID
	ch := make(chan rpcResult, 1)
	c.pending[id] = ch
	c.mu.Unlock()

	payload, err := json.Marshal(rpcRequest{JSONRPC: "2.0", Method: method, Params: params, ID: id})
	if err != nil {
		c.remove(id)
		return nil, err
	}
	if err := c.write(payload); err != nil {
		c.remove(id)
		return nil, fmt.Errorf("rpc write %s: %w", method, err)
	}

	timer := time.NewTimer(c.timeout)
	defer timer.Stop()

	select {
	case res := <-ch:
		return res.result, res.err
	case <-timer.C:
		c.remove(id)
		return nil, fmt.Errorf("rpc %s (id %d): %w", method, id, domain.ErrTimeout)
	case <-ctx.Done():
		c.remove(id)
		return nil, ctx.Err()
	}
}

// Resolve delivers a response to the caller waiting on id. Late
// responses (entry already removed) are discarded since no one is
// listening.
func (c *Correlator) Resolve(id int64, result json.RawMessage, remoteErr *RemoteError) {
	c.mu.Lock()
	ch, ok := c.pending[id]
	if ok {
		delete(c.pending, id)
	}
	c.mu.Unlock()

	if !ok {
		c.logger.Debug("discarding late rpc response", "id", id)
		return
	}
	if remoteErr != nil {
		ch <- rpcResult{err: remoteErr}
		return
	}
	ch <- rpcResult{result: result}
}

// Reset rejects every pending call with ErrConnectionLost. Called when
// the underlying connection drops; callers must be prepared to retry.
func (c *Correlator) Reset() {
	c.mu.Lock()
	pending := c.pending
	c.pending = make(map[int64]chan rpcResult)
	c.mu.Unlock()

	for id, ch := range pending {
		ch <- rpcResult{err: fmt.Errorf("rpc id %d: %w", id, domain.ErrConnectionLost)}
	}
	if len(pending) > 0 {
		c.logger.Warn("failed pending rpc calls after connection loss", "count", len(pending))
	}
}

// Pending reports the number of in-flight calls.
func (c *Correlator) Pending() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.pending)
}

func (c *Correlator) remove(id int64) {
	c.mu.Lock()
	delete(c.pending, id)
	c.mu.Unlock()
}
