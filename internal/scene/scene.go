// Package scene holds dynamic scene definitions: per-attribute keyframe
// tables that describe how an entity's target state evolves over the day.
package scene

import (
	"fmt"
	"sort"

	"github.com/TPO-2024-2025/DynamicScenes/internal/attr"
	"github.com/TPO-2024-2025/DynamicScenes/internal/clock"
)

// Track is the ordered keyframe list for one attribute kind.
type Track struct {
	Kind   attr.Kind
	Frames []attr.Value // sorted by time of day
}

// at interpolates the track at a time of day. With a single frame the value
// is constant over the whole day.
func (tr Track) at(t int) (attr.Value, error) {
	prev, next := tr.surrounding(t)
	return prev.Interpolate(next, t)
}

// surrounding picks the keyframes around t. The table wraps: before the
// first frame of the day the previous frame is yesterday's last one.
func (tr Track) surrounding(t int) (attr.Value, attr.Value) {
	frames := tr.Frames
	first, last := frames[0], frames[len(frames)-1]

	if t < first.Time() || t >= last.Time() {
		return last, first
	}

	// first frame with time > t; its predecessor is the active frame
	idx := sort.Search(len(frames), func(i int) bool { return frames[i].Time() > t })
	return frames[idx-1], frames[idx]
}

// nextBoundary returns the ring distance in seconds from t to the track's
// next keyframe.
func (tr Track) nextBoundary(t int) int {
	best := clock.Day
	for _, f := range tr.Frames {
		d := ((f.Time()-t)%clock.Day + clock.Day) % clock.Day
		if d == 0 {
			d = clock.Day
		}
		if d < best {
			best = d
		}
	}
	return best
}

// Scene is a named set of tracks for one entity.
type Scene struct {
	Name   string
	Tracks map[string]Track // by kind name
}

// StateAt computes the scene's target state at a time of day by
// interpolating every track.
func (s *Scene) StateAt(t int) (attr.State, error) {
	out := make(attr.State, len(s.Tracks))
	for name, tr := range s.Tracks {
		v, err := tr.at(t)
		if err != nil {
			return nil, fmt.Errorf("scene %q, track %q: %w", s.Name, name, err)
		}
		out[name] = v
	}
	return out, nil
}

// NextChange returns the seconds until the scene's next keyframe boundary
// after t, capped at a full day.
func (s *Scene) NextChange(t int) int {
	best := clock.Day
	for _, tr := range s.Tracks {
		if d := tr.nextBoundary(t); d < best {
			best = d
		}
	}
	return best
}
