package entity

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/TPO-2024-2025/DynamicScenes/internal/attr"
	"github.com/TPO-2024-2025/DynamicScenes/internal/update"
)

// ApplyFunc performs the platform write for a target state. The track
// function mints a correlation id per issued command so the resulting host
// notifications can be matched back as echoes.
type ApplyFunc func(ctx context.Context, target attr.State, track func() string) error

// Updates defers entity writes on the shared scheduler and keeps at most one
// pending write per deduplication key. Scheduling a key that is already
// pending re-arms the timer with the new target instead of queueing twice.
type Updates struct {
	entityID string
	sched    *update.Scheduler
	track    func() string
	apply    ApplyFunc

	mu   sync.Mutex
	keys map[string]struct{}
}

// NewUpdates creates the update ability for an entity. track is typically
// the entity's Sync.TrackContext.
func NewUpdates(entityID string, sched *update.Scheduler, track func() string, apply ApplyFunc) *Updates {
	return &Updates{
		entityID: entityID,
		sched:    sched,
		track:    track,
		apply:    apply,
		keys:     make(map[string]struct{}),
	}
}

// Schedule arranges for the target state to be written after delay. The key
// identifies the pending write: only its most recently scheduled target
// eventually fires.
func (u *Updates) Schedule(target attr.State, key string, delay time.Duration) {
	u.mu.Lock()
	u.keys[key] = struct{}{}
	u.mu.Unlock()

	log.Info().
		Str("entity", u.entityID).
		Str("key", key).
		Dur("delay", delay).
		Msg("Scheduling update")

	u.sched.Schedule(u.scopedKey(key), delay, func() {
		u.mu.Lock()
		delete(u.keys, key)
		u.mu.Unlock()

		if err := u.apply(context.Background(), target, u.track); err != nil {
			log.Error().Err(err).
				Str("entity", u.entityID).
				Str("key", key).
				Msg("Update failed")
		}
	})
}

// CancelAll cancels every update currently tracked for this entity.
// Best-effort: a write already firing may still complete.
func (u *Updates) CancelAll() {
	u.mu.Lock()
	keys := make([]string, 0, len(u.keys))
	for key := range u.keys {
		keys = append(keys, key)
	}
	u.keys = make(map[string]struct{})
	u.mu.Unlock()

	for _, key := range keys {
		log.Info().Str("entity", u.entityID).Str("key", key).Msg("Cancelling update")
		u.sched.Cancel(u.scopedKey(key))
	}
}

// scopedKey namespaces keys per entity on the shared scheduler.
func (u *Updates) scopedKey(key string) string {
	return u.entityID + "/" + key
}
