// Package attr implements timed attribute values: immutable value/time pairs
// for every controllable property of an entity, with per-kind validation and
// interpolation between two values of the same kind.
package attr

import (
	"fmt"

	"github.com/rs/zerolog/log"

	"github.com/TPO-2024-2025/DynamicScenes/internal/clock"
)

// Kind describes one controllable property type: its naming, its off and
// default values, and its validation and interpolation rules.
type Kind interface {
	// Name is the identifier used in scene files and configuration.
	Name() string
	// ExternalName is the attribute name used by the host platform.
	ExternalName() string
	// Off is the value representing the property when the entity is off.
	Off() any
	// Default is the value used when construction omits a value.
	Default() any
	// Normalize coerces a raw value into the kind's canonical representation,
	// rejecting values that fail the kind's validation predicate.
	Normalize(v any) (any, error)
	// Lerp maps two canonical values and a ratio in [0, 1] onto a new value.
	Lerp(a, b any, ratio float64) any
}

// ValidationError reports a rejected time or value at construction.
type ValidationError struct {
	Kind  string
	Time  int
	Value any
	Msg   string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s(t=%s, v=%v): %s", e.Kind, clock.ToHHMMSS(e.Time), e.Value, e.Msg)
}

// TypeMismatchError reports an interpolation attempt between different kinds.
type TypeMismatchError struct {
	Kind  string
	Other string
}

func (e *TypeMismatchError) Error() string {
	return fmt.Sprintf("interpolation for %s: got %s instead of %s", e.Kind, e.Other, e.Kind)
}

// Value is an immutable attribute value tagged with a time of day.
type Value struct {
	kind Kind
	val  any
	tod  int
}

// New constructs a validated value. A nil value falls back to the kind's
// default. The time must be in [0, Day).
func New(kind Kind, v any, timeOfDay int) (Value, error) {
	if timeOfDay < 0 || timeOfDay >= clock.Day {
		return Value{}, &ValidationError{
			Kind: kind.Name(), Time: timeOfDay, Value: v,
			Msg: "time is not in range 0-23.59.59h",
		}
	}

	if v == nil {
		v = kind.Default()
	}

	canonical, err := kind.Normalize(v)
	if err != nil {
		return Value{}, &ValidationError{
			Kind: kind.Name(), Time: timeOfDay, Value: v,
			Msg: err.Error(),
		}
	}

	return Value{kind: kind, val: canonical, tod: timeOfDay}, nil
}

// NewNow constructs a validated value tagged with the current wall-clock time.
func NewNow(kind Kind, v any) (Value, error) {
	return New(kind, v, clock.SecondsFromMidnight())
}

// Kind returns the kind this value belongs to.
func (v Value) Kind() Kind { return v.kind }

// Raw returns the kind-specific payload.
func (v Value) Raw() any { return v.val }

// Time returns the value's time of day in seconds since midnight.
func (v Value) Time() int { return v.tod }

// Equal reports whether two values have the same kind and payload. The time
// of day is deliberately not part of equality: diffing detects changed
// payloads, not timing jitter.
func (v Value) Equal(other Value) bool {
	if v.kind == nil || other.kind == nil {
		return v.kind == other.kind
	}
	return v.kind.Name() == other.kind.Name() && v.val == other.val
}

func (v Value) String() string {
	if v.kind == nil {
		return "<attr(nil)>"
	}
	return fmt.Sprintf("<attr(%s, t=%s, v=%v)>", v.kind.Name(), clock.ToHHMMSS(v.tod), v.val)
}

// Interpolate produces a fresh value between v and next at the given time of
// day. When the keyframe interval crosses midnight the times are normalized
// into one 24h window first, so walking forward from v always yields a ratio
// in [0, 1]. Identical keyframe times degrade to ratio 0.
func (v Value) Interpolate(next Value, atTime int) (Value, error) {
	if v.kind == nil || next.kind == nil || v.kind.Name() != next.kind.Name() {
		name, otherName := "<nil>", "<nil>"
		if v.kind != nil {
			name = v.kind.Name()
		}
		if next.kind != nil {
			otherName = next.kind.Name()
		}
		return Value{}, &TypeMismatchError{Kind: name, Other: otherName}
	}

	prev, nextT := normalizeTimes(atTime, v.tod, next.tod)

	ratio := 0.0
	if prev != nextT {
		ratio = float64(atTime-prev) / float64(nextT-prev)
	}

	newValue := v.kind.Lerp(v.val, next.val, ratio)

	result, err := New(v.kind, newValue, atTime)
	if err != nil {
		return Value{}, err
	}

	log.Debug().
		Str("kind", v.kind.Name()).
		Str("prev", clock.ToHHMMSS(v.tod)).
		Str("next", clock.ToHHMMSS(next.tod)).
		Str("at", clock.ToHHMMSS(atTime)).
		Interface("value", newValue).
		Msg("Interpolated attribute")

	return result, nil
}

// normalizeTimes handles midnight wraparound by moving prev or next into the
// same 24h period as atTime.
func normalizeTimes(atTime, prev, next int) (int, int) {
	if prev > next { // interval crosses midnight
		if atTime >= prev {
			next += clock.Day // next is tomorrow
		} else {
			prev -= clock.Day // prev was yesterday
		}
	}
	return prev, next
}

// State maps kind names to their current values for one entity.
type State map[string]Value

// Clone returns a shallow copy of the state. Values are immutable, so a
// shallow copy is a safe snapshot.
func (s State) Clone() State {
	out := make(State, len(s))
	for k, v := range s {
		out[k] = v
	}
	return out
}
