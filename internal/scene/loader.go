package scene

import (
	"fmt"
	"os"
	"sort"

	"github.com/rs/zerolog/log"
	"gopkg.in/yaml.v3"

	"github.com/TPO-2024-2025/DynamicScenes/internal/attr"
	"github.com/TPO-2024-2025/DynamicScenes/internal/clock"
)

// Library holds the parsed scene definitions for every configured entity.
type Library struct {
	byEntity map[string]map[string]*Scene
}

// Scene returns a named scene for an entity.
func (l *Library) Scene(entityID, name string) (*Scene, bool) {
	scenes, ok := l.byEntity[entityID]
	if !ok {
		return nil, false
	}
	s, ok := scenes[name]
	return s, ok
}

// Entities returns every entity id with at least one scene, sorted.
func (l *Library) Entities() []string {
	out := make([]string, 0, len(l.byEntity))
	for id := range l.byEntity {
		out = append(out, id)
	}
	sort.Strings(out)
	return out
}

// rawFrame is one keyframe entry in the scene file: a time plus attribute
// values keyed by their config names.
type rawFrame map[string]any

// Load reads a scene file. Format:
//
//	light.living_room:
//	  default:
//	    - time: "07:00"
//	      state: on
//	      brightness: 255
//	    - time: "22:30"
//	      brightness: 60
func Load(path string, reg *attr.Registry) (*Library, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read scene file: %w", err)
	}
	return Parse(data, reg)
}

// Parse parses scene file contents.
func Parse(data []byte, reg *attr.Registry) (*Library, error) {
	var doc map[string]map[string][]rawFrame
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("invalid scene file: %w", err)
	}

	lib := &Library{byEntity: make(map[string]map[string]*Scene)}

	for entityID, scenes := range doc {
		lib.byEntity[entityID] = make(map[string]*Scene, len(scenes))
		for name, frames := range scenes {
			s, err := buildScene(name, frames, reg)
			if err != nil {
				return nil, fmt.Errorf("entity %q: %w", entityID, err)
			}
			lib.byEntity[entityID][name] = s

			log.Debug().
				Str("entity", entityID).
				Str("scene", name).
				Int("tracks", len(s.Tracks)).
				Msg("Scene loaded")
		}
	}

	return lib, nil
}

func buildScene(name string, frames []rawFrame, reg *attr.Registry) (*Scene, error) {
	if len(frames) == 0 {
		return nil, fmt.Errorf("scene %q has no keyframes", name)
	}

	tracks := make(map[string][]attr.Value)

	for i, frame := range frames {
		timeRaw, ok := frame["time"]
		if !ok {
			return nil, fmt.Errorf("scene %q, keyframe %d: missing time", name, i)
		}
		timeStr, ok := timeRaw.(string)
		if !ok {
			return nil, fmt.Errorf("scene %q, keyframe %d: time must be a string", name, i)
		}
		tod, err := clock.ParseTime(timeStr)
		if err != nil {
			return nil, fmt.Errorf("scene %q, keyframe %d: %w", name, i, err)
		}

		for key, raw := range frame {
			if key == "time" {
				continue
			}
			kind, err := reg.ByName(key)
			if err != nil {
				return nil, fmt.Errorf("scene %q, keyframe %d: %w", name, i, err)
			}
			val, err := attr.New(kind, raw, tod)
			if err != nil {
				return nil, fmt.Errorf("scene %q, keyframe %d: %w", name, i, err)
			}
			tracks[kind.Name()] = append(tracks[kind.Name()], val)
		}
	}

	s := &Scene{Name: name, Tracks: make(map[string]Track, len(tracks))}
	for kindName, vals := range tracks {
		sort.SliceStable(vals, func(i, j int) bool { return vals[i].Time() < vals[j].Time() })
		kind, _ := reg.ByName(kindName)
		s.Tracks[kindName] = Track{Kind: kind, Frames: vals}
	}

	return s, nil
}
