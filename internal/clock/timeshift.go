package clock

import (
	"sync"

	"github.com/rs/zerolog/log"
)

// Timeshift holds the virtual-clock offset for a single entity. The offset
// is kept inside the [-12h, +12h] ring: out-of-range inputs wrap around to
// their equivalent on the ring instead of saturating.
type Timeshift struct {
	entityID string

	mu     sync.Mutex
	offset int

	onChange func(offset int)
	nowFn    func() int
}

// NewTimeshift creates a zero-offset timeshift for an entity. The onChange
// callback receives the effective offset after every Set or Shift; it may be nil.
func NewTimeshift(entityID string, onChange func(offset int)) *Timeshift {
	return &Timeshift{
		entityID: entityID,
		onChange: onChange,
		nowFn:    SecondsFromMidnight,
	}
}

// Now returns the entity's virtual time: wall-clock seconds since midnight
// plus the offset, wrapped to [0, Day).
func (t *Timeshift) Now() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return ((t.nowFn()+t.offset)%Day + Day) % Day
}

// Offset returns the stored offset in seconds.
func (t *Timeshift) Offset() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.offset
}

// Set stores an absolute offset in seconds, wrapped into the 12h ring.
func (t *Timeshift) Set(offset int) {
	t.mu.Lock()
	t.offset = wrapOffset(offset)
	effective := t.offset
	t.mu.Unlock()

	if t.onChange != nil {
		t.onChange(effective)
	}

	log.Info().
		Str("entity", t.entityID).
		Int("offset", effective).
		Msg("Timeshift set")
}

// Shift adjusts the offset by a relative amount in seconds, same wrapping rule.
func (t *Timeshift) Shift(delta int) {
	t.mu.Lock()
	t.offset = wrapOffset(t.offset + delta)
	effective := t.offset
	t.mu.Unlock()

	if t.onChange != nil {
		t.onChange(effective)
	}

	log.Info().
		Str("entity", t.entityID).
		Int("delta", delta).
		Int("offset", effective).
		Msg("Timeshift shifted")
}

// wrapOffset maps any offset onto [-HalfDay, HalfDay].
func wrapOffset(offset int) int {
	return ((offset+HalfDay)%Day+Day)%Day - HalfDay
}
