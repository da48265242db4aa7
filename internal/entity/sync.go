// Package entity implements per-entity control: state synchronization with
// echo detection, deferred deduplicated updates, and the capability matching
// that maps raw host entities onto controllable types.
package entity

import (
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/TPO-2024-2025/DynamicScenes/internal/attr"
	"github.com/TPO-2024-2025/DynamicScenes/internal/host"
)

const (
	// contextTTL bounds how long a minted correlation id stays valid.
	contextTTL = 10 * time.Second
	// contextCacheLimit triggers a sweep once the cache grows past it.
	contextCacheLimit = 100
)

// ExternalChangeFunc is invoked with the new translated state whenever an
// entity changes due to an actor other than this daemon.
type ExternalChangeFunc func(state attr.State)

// Sync tracks one entity's translated state and classifies every inbound
// state-change notification as either an echo of this daemon's own write or
// a genuine external change. Only external changes reach the callback.
type Sync struct {
	entityID   string
	translate  attr.TranslateFunc
	onExternal ExternalChangeFunc

	// One mutex covers current state and the correlation cache: the
	// diff-then-mutate-then-check sequence must be atomic per entity.
	mu       sync.Mutex
	current  attr.State
	contexts map[string]time.Time

	now func() time.Time
}

// NewSync creates a synchronizer for an entity.
func NewSync(entityID string, translate attr.TranslateFunc, onExternal ExternalChangeFunc) *Sync {
	return &Sync{
		entityID:   entityID,
		translate:  translate,
		onExternal: onExternal,
		current:    make(attr.State),
		contexts:   make(map[string]time.Time),
		now:        time.Now,
	}
}

// Prime seeds the current state from a raw snapshot, without diffing and
// without notifying. Used once at startup.
func (s *Sync) Prime(raw *host.RawState) {
	if raw == nil {
		log.Warn().Str("entity", s.entityID).Msg("No initial state available")
		return
	}

	s.mu.Lock()
	s.current = s.translate(raw.State, raw.Attributes)
	s.mu.Unlock()
}

// Current returns a snapshot of the last known translated state.
func (s *Sync) Current() attr.State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.current.Clone()
}

// TrackContext mints a correlation id for an imminent write and records it
// so the resulting state-change notification can be recognized as an echo.
func (s *Sync) TrackContext() string {
	s.mu.Lock()
	defer s.mu.Unlock()

	id := uuid.NewString()
	s.contexts[id] = s.now()
	return id
}

// HandleEvent is the single entry point for inbound state-change
// notifications. Malformed events are dropped. Unchanged payloads are
// discarded without touching stored state. Changed payloads replace the
// stored state; the external callback fires only when the change was not
// caused by a write this daemon issued.
func (s *Sync) HandleEvent(change host.StateChange) {
	if change.New == nil {
		log.Warn().Str("entity", s.entityID).Msg("State change event missing new state, dropping")
		return
	}
	if change.Old == nil {
		log.Warn().Str("entity", s.entityID).Msg("State change event missing old state, dropping")
		return
	}

	translated := s.translate(change.New.State, change.New.Attributes)

	s.mu.Lock()

	if !s.hasChangedLocked(translated) {
		s.mu.Unlock()
		log.Debug().Str("entity", s.entityID).Msg("State unchanged, ignoring event")
		return
	}

	s.current = translated

	if s.consumeContextLocked(change.CorrelationID) {
		s.mu.Unlock()
		log.Debug().
			Str("entity", s.entityID).
			Str("correlation_id", change.CorrelationID).
			Msg("State changed by internal write, suppressing notification")
		return
	}

	snapshot := s.current.Clone()
	s.mu.Unlock()

	log.Info().
		Str("entity", s.entityID).
		Stringer("state", snapshot["state"]).
		Msg("State changed by external actor")

	if s.onExternal != nil {
		s.onExternal(snapshot)
	}
}

// hasChangedLocked reports whether any translated value differs from the
// stored state. Comparison is per-kind structural equality; time is not
// part of it.
func (s *Sync) hasChangedLocked(translated attr.State) bool {
	for name, val := range translated {
		cur, ok := s.current[name]
		if !ok || !cur.Equal(val) {
			log.Debug().
				Str("entity", s.entityID).
				Str("kind", name).
				Stringer("new", val).
				Msg("Attribute changed")
			return true
		}
	}
	return false
}

// consumeContextLocked checks whether a correlation id belongs to a write
// this daemon issued, removing it if so. Expired entries are swept on every
// miss, and on hits once the cache exceeds its size bound.
func (s *Sync) consumeContextLocked(correlationID string) bool {
	if correlationID != "" {
		if _, ok := s.contexts[correlationID]; ok {
			delete(s.contexts, correlationID)
			if len(s.contexts) > contextCacheLimit {
				s.sweepContextsLocked()
			}
			return true
		}
	}

	s.sweepContextsLocked()
	return false
}

// sweepContextsLocked drops correlation ids older than contextTTL.
func (s *Sync) sweepContextsLocked() {
	cutoff := s.now().Add(-contextTTL)
	for id, minted := range s.contexts {
		if minted.Before(cutoff) {
			delete(s.contexts, id)
		}
	}
}
