package bridge

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"sigbridge/internal/hass"
)

// fakeBackend is an httptest stand-in for the automation backend.
type fakeBackend struct {
	t *testing.T

	mu           sync.Mutex
	states       []hass.Entity
	serviceCalls []serviceCall
	statesServed int
	server       *httptest.Server
}

type serviceCall struct {
	Domain  string
	Service string
	Data    map[string]any
}

func newFakeBackend(t *testing.T, states []hass.Entity) *fakeBackend {
	t.Helper()
	fb := &fakeBackend{t: t, states: states}

	mux := http.NewServeMux()
	mux.HandleFunc("/api/states", func(w http.ResponseWriter, r *http.Request) {
		fb.mu.Lock()
		defer fb.mu.Unlock()
		fb.statesServed++
		json.NewEncoder(w).Encode(fb.states)
	})
	mux.HandleFunc("/api/states/", func(w http.ResponseWriter, r *http.Request) {
		id := strings.TrimPrefix(r.URL.Path, "/api/states/")
		fb.mu.Lock()
		defer fb.mu.Unlock()
		for _, e := range fb.states {
			if e.EntityID == id {
				json.NewEncoder(w).Encode(e)
				return
			}
		}
		http.Error(w, "entity not found", http.StatusNotFound)
	})
	mux.HandleFunc("/api/services/", func(w http.ResponseWriter, r *http.Request) {
		parts := strings.Split(strings.TrimPrefix(r.URL.Path, "/api/services/"), "/")
		if len(parts) != 2 {
			http.Error(w, "bad service path", http.StatusBadRequest)
			return
		}
		var data map[string]any
		json.NewDecoder(r.Body).Decode(&data)
		fb.mu.Lock()
		fb.serviceCalls = append(fb.serviceCalls, serviceCall{Domain: parts[0], Service: parts[1], Data: data})
		fb.mu.Unlock()
		w.Write([]byte("[]"))
	})
	mux.HandleFunc("/api/config", func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]string{"location_name": "Test Home", "version": "1.0"})
	})

	fb.server = httptest.NewServer(mux)
	t.Cleanup(fb.server.Close)
	return fb
}

func (fb *fakeBackend) client() *hass.Client {
	return hass.NewClient(fb.server.URL, "test-token", testLogger())
}

func (fb *fakeBackend) setStates(states []hass.Entity) {
	fb.mu.Lock()
	defer fb.mu.Unlock()
	fb.states = states
}

func (fb *fakeBackend) calls() []serviceCall {
	fb.mu.Lock()
	defer fb.mu.Unlock()
	out := make([]serviceCall, len(fb.serviceCalls))
	copy(out, fb.serviceCalls)
	return out
}

func entity(id, state, friendlyName string) hass.Entity {
	attrs := map[string]any{}
	if friendlyName != "" {
		attrs["friendly_name"] = friendlyName
	}
	return hass.Entity{EntityID: id, State: state, Attributes: attrs}
}
