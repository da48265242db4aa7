package entity

import (
	"testing"
	"time"

	"github.com/TPO-2024-2025/DynamicScenes/internal/attr"
	"github.com/TPO-2024-2025/DynamicScenes/internal/host"
)

func testTranslator() attr.TranslateFunc {
	return attr.Translator([]attr.Kind{attr.LightState, attr.Brightness})
}

func rawState(label string, brightness float64) *host.RawState {
	return &host.RawState{
		EntityID:   "light.test",
		State:      label,
		Attributes: map[string]any{"brightness": brightness},
	}
}

func TestHandleEventExternalChange(t *testing.T) {
	var calls []attr.State
	s := NewSync("light.test", testTranslator(), func(st attr.State) { calls = append(calls, st) })
	s.Prime(rawState("on", 100))

	s.HandleEvent(host.StateChange{
		EntityID: "light.test",
		Old:      rawState("on", 100),
		New:      rawState("on", 200),
	})

	if len(calls) != 1 {
		t.Fatalf("external callback invoked %d times, want 1", len(calls))
	}
	if calls[0]["brightness"].Raw() != 200 {
		t.Errorf("callback brightness = %v, want 200", calls[0]["brightness"].Raw())
	}
	if s.Current()["brightness"].Raw() != 200 {
		t.Errorf("stored brightness = %v, want 200", s.Current()["brightness"].Raw())
	}
}

func TestHandleEventEchoSuppression(t *testing.T) {
	var calls int
	s := NewSync("light.test", testTranslator(), func(attr.State) { calls++ })
	s.Prime(rawState("on", 100))

	id := s.TrackContext()

	s.HandleEvent(host.StateChange{
		EntityID:      "light.test",
		Old:           rawState("on", 100),
		New:           rawState("on", 200),
		CorrelationID: id,
	})

	if calls != 0 {
		t.Fatalf("echo invoked external callback %d times", calls)
	}
	if s.Current()["brightness"].Raw() != 200 {
		t.Errorf("echo must still update stored state, got %v", s.Current()["brightness"].Raw())
	}

	// Same payload again under an unknown id: diff finds nothing, no callback.
	s.HandleEvent(host.StateChange{
		EntityID:      "light.test",
		Old:           rawState("on", 200),
		New:           rawState("on", 200),
		CorrelationID: "unknown",
	})
	if calls != 0 {
		t.Errorf("unchanged state invoked callback %d times", calls)
	}

	// A correlation id is consumed on first use.
	s.HandleEvent(host.StateChange{
		EntityID:      "light.test",
		Old:           rawState("on", 200),
		New:           rawState("on", 50),
		CorrelationID: id,
	})
	if calls != 1 {
		t.Errorf("consumed id must not suppress again, callback count = %d", calls)
	}
}

func TestHandleEventMalformed(t *testing.T) {
	var calls int
	s := NewSync("light.test", testTranslator(), func(attr.State) { calls++ })
	s.Prime(rawState("on", 100))

	s.HandleEvent(host.StateChange{EntityID: "light.test", New: rawState("on", 200)})
	s.HandleEvent(host.StateChange{EntityID: "light.test", Old: rawState("on", 100)})

	if calls != 0 {
		t.Errorf("malformed events invoked callback %d times", calls)
	}
	if s.Current()["brightness"].Raw() != 100 {
		t.Errorf("malformed events mutated state: %v", s.Current()["brightness"].Raw())
	}
}

func TestHandleEventUnchangedDiscarded(t *testing.T) {
	var calls int
	s := NewSync("light.test", testTranslator(), func(attr.State) { calls++ })
	s.Prime(rawState("on", 100))

	s.HandleEvent(host.StateChange{
		EntityID: "light.test",
		Old:      rawState("on", 100),
		New:      rawState("on", 100),
	})

	if calls != 0 {
		t.Errorf("no-change event invoked callback %d times", calls)
	}
}

func TestContextCacheExpiry(t *testing.T) {
	s := NewSync("light.test", testTranslator(), nil)
	s.Prime(rawState("on", 100))

	now := time.Now()
	s.now = func() time.Time { return now }

	id := s.TrackContext()

	// Advance past the TTL; the id must no longer count as internal.
	s.now = func() time.Time { return now.Add(contextTTL + time.Second) }

	var calls int
	s.onExternal = func(attr.State) { calls++ }

	s.HandleEvent(host.StateChange{
		EntityID:      "light.test",
		Old:           rawState("on", 100),
		New:           rawState("on", 200),
		CorrelationID: "miss-triggers-sweep",
	})
	if calls != 1 {
		t.Fatalf("external change callback count = %d", calls)
	}

	// The sweep above removed the expired id: it no longer suppresses.
	s.HandleEvent(host.StateChange{
		EntityID:      "light.test",
		Old:           rawState("on", 200),
		New:           rawState("on", 50),
		CorrelationID: id,
	})
	if calls != 2 {
		t.Errorf("expired correlation id suppressed a change, callback count = %d", calls)
	}
}

func TestContextCacheSizeBound(t *testing.T) {
	s := NewSync("light.test", testTranslator(), nil)

	now := time.Now()
	s.now = func() time.Time { return now }

	// Mint old ids beyond the limit, then one fresh id.
	var stale []string
	for i := 0; i < contextCacheLimit+10; i++ {
		stale = append(stale, s.TrackContext())
	}
	s.now = func() time.Time { return now.Add(contextTTL + time.Second) }
	fresh := s.TrackContext()

	// Consuming a known id with the cache over its bound sweeps stale entries.
	if !s.consumeContextLocked(stale[0]) {
		t.Fatal("known id not consumed")
	}
	if len(s.contexts) != 1 {
		t.Errorf("cache holds %d entries after sweep, want 1", len(s.contexts))
	}
	if _, ok := s.contexts[fresh]; !ok {
		t.Error("fresh id swept")
	}
}
