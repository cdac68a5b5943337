package hass

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"testing"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
}

func TestClient_States(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/states" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		if got := r.Header.Get("Authorization"); got != "Bearer secret" {
			t.Errorf("unexpected auth header %q", got)
		}
		w.Write([]byte(`[
			{"entity_id": "light.kitchen", "state": "on",
			 "attributes": {"friendly_name": "Kitchen Light", "brightness": 200},
			 "last_changed": "2024-01-01T10:00:00Z"},
			{"entity_id": "lock.front_door", "state": "locked", "attributes": {}}
		]`))
	}))
	defer server.Close()

	c := NewClient(server.URL, "secret", testLogger())
	states, err := c.States(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if len(states) != 2 {
		t.Fatalf("expected 2 entities, got %d", len(states))
	}

	kitchen := states[0]
	if kitchen.Domain() != "light" {
		t.Errorf("Domain() = %q, want light", kitchen.Domain())
	}
	if kitchen.FriendlyName() != "Kitchen Light" {
		t.Errorf("FriendlyName() = %q", kitchen.FriendlyName())
	}

	// Missing friendly_name falls back to the id.
	if states[1].FriendlyName() != "lock.front_door" {
		t.Errorf("FriendlyName() fallback = %q", states[1].FriendlyName())
	}
}

func TestClient_State(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/states/light.kitchen" {
			http.Error(w, "entity not found", http.StatusNotFound)
			return
		}
		w.Write([]byte(`{"entity_id": "light.kitchen", "state": "on", "attributes": {}}`))
	}))
	defer server.Close()

	c := NewClient(server.URL, "secret", testLogger())
	e, err := c.State(context.Background(), "light.kitchen")
	if err != nil {
		t.Fatal(err)
	}
	if e.EntityID != "light.kitchen" || e.State != "on" {
		t.Errorf("unexpected entity %+v", e)
	}

	_, err = c.State(context.Background(), "light.nonexistent")
	var statusErr StatusError
	if !errors.As(err, &statusErr) || statusErr.Status != http.StatusNotFound {
		t.Errorf("expected 404 StatusError, got %v", err)
	}
}

func TestClient_CallService(t *testing.T) {
	var gotPath string
	var gotBody map[string]any
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		json.NewDecoder(r.Body).Decode(&gotBody)
		w.Write([]byte("[]"))
	}))
	defer server.Close()

	c := NewClient(server.URL, "secret", testLogger())
	err := c.CallService(context.Background(), "light", "turn_on", map[string]any{"entity_id": "light.kitchen"})
	if err != nil {
		t.Fatal(err)
	}
	if gotPath != "/api/services/light/turn_on" {
		t.Errorf("unexpected path %s", gotPath)
	}
	if gotBody["entity_id"] != "light.kitchen" {
		t.Errorf("unexpected body %v", gotBody)
	}
}

func TestClient_StatusError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "invalid token", http.StatusUnauthorized)
	}))
	defer server.Close()

	c := NewClient(server.URL, "wrong", testLogger())
	_, err := c.States(context.Background())

	var statusErr StatusError
	if !errors.As(err, &statusErr) {
		t.Fatalf("expected StatusError, got %v", err)
	}
	if statusErr.Status != http.StatusUnauthorized {
		t.Errorf("Status = %d, want 401", statusErr.Status)
	}
}

func TestEntityHelpers(t *testing.T) {
	tests := []struct {
		id     string
		domain string
	}{
		{"light.kitchen", "light"},
		{"binary_sensor.hall_motion", "binary_sensor"},
		{"nodots", "nodots"},
	}
	for _, tt := range tests {
		e := Entity{EntityID: tt.id}
		if got := e.Domain(); got != tt.domain {
			t.Errorf("Domain(%q) = %q, want %q", tt.id, got, tt.domain)
		}
	}

	e := Entity{EntityID: "sensor.temp", Attributes: map[string]any{"unit_of_measurement": "°C"}}
	if e.Unit() != "°C" {
		t.Errorf("Unit() = %q", e.Unit())
	}
}

func TestWebsocketURL(t *testing.T) {
	tests := []struct {
		base string
		want string
	}{
		{"http://localhost:8123", "ws://localhost:8123/api/websocket"},
		{"https://ha.example.com", "wss://ha.example.com/api/websocket"},
		{"http://ha.local:8123/", "ws://ha.local:8123/api/websocket"},
	}
	for _, tt := range tests {
		if got := websocketURL(tt.base); got != tt.want {
			t.Errorf("websocketURL(%q) = %q, want %q", tt.base, got, tt.want)
		}
	}
}
