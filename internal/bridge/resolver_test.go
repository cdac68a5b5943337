package bridge

import (
	"context"
	"sync"
	"testing"
	"time"

	"sigbridge/internal/hass"
)

func TestResolver_AliasSymmetric(t *testing.T) {
	fb := newFakeBackend(t, []hass.Entity{
		entity("light.living_room_light", "on", "Living Room Light"),
	})
	r := NewResolver(fb.client(), time.Minute, testLogger())

	// The id, the friendly name, and the normalized id all resolve to
	// the same record, in any casing.
	inputs := []string{
		"light.living_room_light",
		"Living Room Light",
		"living room light",
		"LIVING ROOM LIGHT",
	}
	for _, input := range inputs {
		got, ok, err := r.Resolve(context.Background(), input)
		if err != nil {
			t.Fatalf("Resolve(%q): %v", input, err)
		}
		if !ok {
			t.Fatalf("Resolve(%q): no match", input)
		}
		if got.EntityID != "light.living_room_light" {
			t.Errorf("Resolve(%q) = %s, want light.living_room_light", input, got.EntityID)
		}
	}
}

func TestResolver_SubstringMatch(t *testing.T) {
	fb := newFakeBackend(t, []hass.Entity{
		entity("light.kitchen", "off", "Kitchen Light"),
		entity("lock.front_door", "locked", "Front Door"),
	})
	r := NewResolver(fb.client(), time.Minute, testLogger())

	tests := []struct {
		input string
		want  string
		found bool
	}{
		{"kitchen light", "light.kitchen", true},  // exact friendly-name match
		{"kitchen", "light.kitchen", true},        // input is substring of alias
		{"the kitchen light please", "light.kitchen", true}, // alias is substring of input
		{"front door", "lock.front_door", true},
		{"garage", "", false},
	}
	for _, tt := range tests {
		got, ok, err := r.Resolve(context.Background(), tt.input)
		if err != nil {
			t.Fatalf("Resolve(%q): %v", tt.input, err)
		}
		if ok != tt.found {
			t.Errorf("Resolve(%q) found = %v, want %v", tt.input, ok, tt.found)
			continue
		}
		if ok && got.EntityID != tt.want {
			t.Errorf("Resolve(%q) = %s, want %s", tt.input, got.EntityID, tt.want)
		}
	}
}

func TestResolver_SubstringTiesFavorEarlierEntries(t *testing.T) {
	fb := newFakeBackend(t, []hass.Entity{
		entity("light.bedroom_one", "off", "Bedroom One"),
		entity("light.bedroom_two", "off", "Bedroom Two"),
	})
	r := NewResolver(fb.client(), time.Minute, testLogger())

	got, ok, err := r.Resolve(context.Background(), "bedroom")
	if err != nil || !ok {
		t.Fatalf("Resolve: ok=%v err=%v", ok, err)
	}
	if got.EntityID != "light.bedroom_one" {
		t.Errorf("ambiguous match should favor the earlier entry, got %s", got.EntityID)
	}
}

func TestResolver_RefreshReplacesStaleAliases(t *testing.T) {
	fb := newFakeBackend(t, []hass.Entity{
		entity("light.kitchen", "off", "Old Name"),
	})
	r := NewResolver(fb.client(), time.Minute, testLogger())

	if _, ok, _ := r.Resolve(context.Background(), "old name"); !ok {
		t.Fatal("initial alias should resolve")
	}

	// Rename on the backend, then refresh: the old alias must not
	// survive as an orphan.
	fb.setStates([]hass.Entity{entity("light.kitchen", "off", "New Name")})
	if err := r.Refresh(context.Background()); err != nil {
		t.Fatal(err)
	}

	if _, ok, _ := r.Resolve(context.Background(), "old name"); ok {
		t.Error("stale alias survived the refresh")
	}
	if _, ok, _ := r.Resolve(context.Background(), "new name"); !ok {
		t.Error("new alias should resolve after refresh")
	}
}

func TestResolver_LazyBuildAndTTL(t *testing.T) {
	fb := newFakeBackend(t, []hass.Entity{
		entity("light.kitchen", "off", "Kitchen"),
	})
	r := NewResolver(fb.client(), 50*time.Millisecond, testLogger())

	if fb.statesServed != 0 {
		t.Fatal("cache should not be built before first use")
	}
	r.Resolve(context.Background(), "kitchen")
	r.Resolve(context.Background(), "kitchen")
	if got := fb.statesServed; got != 1 {
		t.Errorf("expected 1 backend fetch within TTL, got %d", got)
	}

	time.Sleep(80 * time.Millisecond)
	r.Resolve(context.Background(), "kitchen")
	if got := fb.statesServed; got != 2 {
		t.Errorf("expected rebuild after TTL, got %d fetches", got)
	}
}

func TestResolver_ConcurrentResolveDuringRefresh(t *testing.T) {
	fb := newFakeBackend(t, []hass.Entity{
		entity("light.kitchen", "off", "Kitchen"),
	})
	r := NewResolver(fb.client(), time.Minute, testLogger())
	if err := r.Refresh(context.Background()); err != nil {
		t.Fatal(err)
	}

	var wg sync.WaitGroup
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 50; j++ {
				_, ok, err := r.Resolve(context.Background(), "kitchen")
				if err != nil || !ok {
					t.Errorf("Resolve during refresh: ok=%v err=%v", ok, err)
					return
				}
			}
		}()
	}
	for i := 0; i < 20; i++ {
		if err := r.Refresh(context.Background()); err != nil {
			t.Fatal(err)
		}
	}
	wg.Wait()
}
