// Package hass talks to the home-automation backend: a REST API for
// entity states and service calls, and a WebSocket event stream for
// state-change pushes.
package hass

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
)

const restTimeout = 30 * time.Second

// Entity is one addressable automation object, sourced verbatim from
// the backend. The bridge never mutates it, only indexes it.
type Entity struct {
	EntityID    string         `json:"entity_id"`
	State       string         `json:"state"`
	Attributes  map[string]any `json:"attributes"`
	LastChanged time.Time      `json:"last_changed"`
}

// Domain returns the category prefix of the entity id (e.g. "light"
// for "light.kitchen").
func (e Entity) Domain() string {
	if i := strings.Index(e.EntityID, "."); i >= 0 {
		return e.EntityID[:i]
	}
	return e.EntityID
}

// FriendlyName returns the human-readable name, falling back to the
// entity id when the backend supplies none.
func (e Entity) FriendlyName() string {
	if v, ok := e.Attributes["friendly_name"].(string); ok && v != "" {
		return v
	}
	return e.EntityID
}

// Unit returns the unit_of_measurement attribute, if any.
func (e Entity) Unit() string {
	v, _ := e.Attributes["unit_of_measurement"].(string)
	return v
}

// StatusError is a non-2xx response from the backend REST API.
type StatusError struct {
	Status int
	Body   string
}

func (e StatusError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("backend returned status %d", e.Status)
	}
	return fmt.Sprintf("backend returned status %d: %s", e.Status, e.Body)
}

// Client is the backend REST client.
type Client struct {
	baseURL    string
	token      string
	httpClient *http.Client
	logger     *slog.Logger
}

func NewClient(baseURL, token string, logger *slog.Logger) *Client {
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		token:      token,
		httpClient: &http.Client{Timeout: restTimeout},
		logger:     logger,
	}
}

// States returns all entity states, in backend order.
func (c *Client) States(ctx context.Context) ([]Entity, error) {
	var entities []Entity
	if err := c.get(ctx, "/api/states", &entities); err != nil {
		return nil, err
	}
	return entities, nil
}

// State returns one entity by id.
func (c *Client) State(ctx context.Context, entityID string) (Entity, error) {
	var entity Entity
	err := c.get(ctx, "/api/states/"+entityID, &entity)
	return entity, err
}

// CallService invokes a named backend service, e.g.
// CallService(ctx, "light", "turn_on", map[string]any{"entity_id": id}).
func (c *Client) CallService(ctx context.Context, domain, service string, data map[string]any) error {
	body, err := json.Marshal(data)
	if err != nil {
		return err
	}
	path := fmt.Sprintf("/api/services/%s/%s", domain, service)
	req, err := c.newRequest(ctx, http.MethodPost, path, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("call service %s.%s: %w", domain, service, err)
	}
	defer resp.Body.Close()
	return checkStatus(resp)
}

// BackendConfig is the subset of GET /api/config the bridge cares about.
type BackendConfig struct {
	LocationName string `json:"location_name"`
	Version      string `json:"version"`
}

// Config fetches backend metadata. Used as the startup reachability
// probe: a failure here is fatal.
func (c *Client) Config(ctx context.Context) (BackendConfig, error) {
	var cfg BackendConfig
	err := c.get(ctx, "/api/config", &cfg)
	return cfg, err
}

func (c *Client) get(ctx context.Context, path string, out any) error {
	req, err := c.newRequest(ctx, http.MethodGet, path, nil)
	if err != nil {
		return err
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("GET %s: %w", path, err)
	}
	defer resp.Body.Close()
	if err := checkStatus(resp); err != nil {
		return err
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

func (c *Client) newRequest(ctx context.Context, method, path string, body io.Reader) (*http.Request, error) {
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return nil, err
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}
	return req, nil
}

func checkStatus(resp *http.Response) error {
	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return nil
	}
	body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
	return StatusError{Status: resp.StatusCode, Body: strings.TrimSpace(string(body))}
}
