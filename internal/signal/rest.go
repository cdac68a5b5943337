package signal

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"sigbridge/internal/domain"
)

const (
	sendTimeout    = 30 * time.Second
	receiveTimeout = 60 * time.Second
)

// SendError reports a failed outbound message.
type SendError struct {
	Target domain.ReplyTarget
	Err    error
}

func (e *SendError) Error() string {
	return fmt.Sprintf("send to %s failed: %v", e.Target, e.Err)
}

func (e *SendError) Unwrap() error { return e.Err }

// RESTTransport is the polling variant: one long-timeout GET per
// receive call, one POST per send.
type RESTTransport struct {
	baseURL string
	account string
	client  *http.Client
	logger  *slog.Logger
}

func NewRESTTransport(baseURL, account string, logger *slog.Logger) *RESTTransport {
	return &RESTTransport{
		baseURL: strings.TrimRight(baseURL, "/"),
		account: account,
		// No client-level timeout: receive long-polls for up to 60s
		// and send gets its own per-request deadline.
		client: &http.Client{},
		logger: logger,
	}
}

func (t *RESTTransport) Name() string { return "rest" }

type sendRequest struct {
	Recipient string `json:"recipient,omitempty"`
	GroupID   string `json:"groupId,omitempty"`
	Message   string `json:"message"`
}

// SendMessage issues a single POST /send. Failures propagate as
// SendError; there are no internal retries.
func (t *RESTTransport) SendMessage(ctx context.Context, target domain.ReplyTarget, text string) error {
	body, err := json.Marshal(sendRequest{
		Recipient: target.Recipient,
		GroupID:   target.GroupID,
		Message:   text,
	})
	if err != nil {
		return &SendError{Target: target, Err: err}
	}

	ctx, cancel := context.WithTimeout(ctx, sendTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, t.baseURL+"/send", bytes.NewReader(body))
	if err != nil {
		return &SendError{Target: target, Err: err}
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := t.client.Do(req)
	if err != nil {
		return &SendError{Target: target, Err: err}
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		b, _ := io.ReadAll(io.LimitReader(resp.Body, 256))
		return &SendError{Target: target, Err: fmt.Errorf("status %d: %s", resp.StatusCode, strings.TrimSpace(string(b)))}
	}
	return nil
}

// ReceiveMessages issues one blocking GET /receive/{account} and
// normalizes whatever came back. A non-success status with an empty
// body means "no messages", not an error: the backend answers that way
// when the poll window closes without traffic.
func (t *RESTTransport) ReceiveMessages(ctx context.Context) ([]domain.InboundMessage, error) {
	ctx, cancel := context.WithTimeout(ctx, receiveTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, t.baseURL+"/receive/"+t.account, nil)
	if err != nil {
		return nil, err
	}
	resp, err := t.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("receive: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("receive: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		if len(bytes.TrimSpace(body)) == 0 {
			return nil, nil
		}
		return nil, fmt.Errorf("receive: status %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}
	if len(bytes.TrimSpace(body)) == 0 {
		return nil, nil
	}

	var envelopes []envelope
	if err := json.Unmarshal(body, &envelopes); err != nil {
		return nil, fmt.Errorf("receive: decode envelopes: %w", err)
	}

	var messages []domain.InboundMessage
	for _, env := range envelopes {
		if msg, ok := normalize(env); ok {
			messages = append(messages, msg)
		}
	}
	return messages, nil
}

type restGroup struct {
	ID      string   `json:"id"`
	Name    string   `json:"name"`
	Members []string `json:"members"`
}

// ListGroups returns the groups the account is a member of.
func (t *RESTTransport) ListGroups(ctx context.Context) ([]domain.GroupInfo, error) {
	ctx, cancel := context.WithTimeout(ctx, sendTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, t.baseURL+"/groups/"+t.account, nil)
	if err != nil {
		return nil, err
	}
	resp, err := t.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("list groups: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("list groups: status %d", resp.StatusCode)
	}

	var groups []restGroup
	if err := json.NewDecoder(resp.Body).Decode(&groups); err != nil {
		return nil, fmt.Errorf("list groups: decode: %w", err)
	}
	out := make([]domain.GroupInfo, 0, len(groups))
	for _, g := range groups {
		out = append(out, domain.GroupInfo{ID: g.ID, Name: g.Name, Members: g.Members})
	}
	return out, nil
}

// CreateGroup creates a group with the given members and returns its id.
func (t *RESTTransport) CreateGroup(ctx context.Context, name string, members []string) (string, error) {
	body, err := json.Marshal(map[string]any{"name": name, "members": members})
	if err != nil {
		return "", err
	}

	ctx, cancel := context.WithTimeout(ctx, sendTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, t.baseURL+"/groups/"+t.account, bytes.NewReader(body))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := t.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("create group: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return "", fmt.Errorf("create group: status %d", resp.StatusCode)
	}

	var created restGroup
	if err := json.NewDecoder(resp.Body).Decode(&created); err != nil {
		return "", fmt.Errorf("create group: decode: %w", err)
	}
	return created.ID, nil
}

// InviteToGroup adds the account's contacts to an existing group.
func (t *RESTTransport) InviteToGroup(ctx context.Context, groupID string) error {
	ctx, cancel := context.WithTimeout(ctx, sendTimeout)
	defer cancel()

	url := fmt.Sprintf("%s/groups/%s/%s", t.baseURL, t.account, groupID)
	req, err := http.NewRequestWithContext(ctx, http.MethodPut, url, nil)
	if err != nil {
		return err
	}
	resp, err := t.client.Do(req)
	if err != nil {
		return fmt.Errorf("invite to group: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("invite to group: status %d", resp.StatusCode)
	}
	return nil
}

func (t *RESTTransport) Close() error { return nil }
