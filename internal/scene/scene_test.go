package scene

import (
	"testing"

	"github.com/TPO-2024-2025/DynamicScenes/internal/attr"
	"github.com/TPO-2024-2025/DynamicScenes/internal/clock"
)

const testScenes = `
light.living_room:
  default:
    - time: "07:00"
      state: on
      brightness: 200
      color_temp: 250
    - time: "22:00"
      state: on
      brightness: 100
      color_temp: 400
    - time: "23:00"
      state: off
      brightness: 20
      color_temp: 450
  night:
    - time: "00:00"
      brightness: 10
light.hallway:
  default:
    - time: "08:00"
      brightness: 255
`

func testRegistry(t *testing.T) *attr.Registry {
	t.Helper()
	r := attr.NewRegistry()
	if err := attr.RegisterDefaults(r); err != nil {
		t.Fatal(err)
	}
	return r
}

func loadTestLibrary(t *testing.T) *Library {
	t.Helper()
	lib, err := Parse([]byte(testScenes), testRegistry(t))
	if err != nil {
		t.Fatal(err)
	}
	return lib
}

func TestParse(t *testing.T) {
	lib := loadTestLibrary(t)

	entities := lib.Entities()
	if len(entities) != 2 {
		t.Fatalf("parsed %d entities, want 2", len(entities))
	}
	if entities[0] != "light.hallway" || entities[1] != "light.living_room" {
		t.Errorf("entities = %v", entities)
	}

	s, ok := lib.Scene("light.living_room", "default")
	if !ok {
		t.Fatal("default scene missing")
	}
	if len(s.Tracks) != 3 {
		t.Errorf("default scene has %d tracks, want 3", len(s.Tracks))
	}
	if _, ok := lib.Scene("light.living_room", "missing"); ok {
		t.Error("lookup of missing scene succeeded")
	}
}

func TestParseErrors(t *testing.T) {
	reg := testRegistry(t)

	tests := []struct {
		name string
		doc  string
	}{
		{"unknown_attribute", "light.a:\n  s:\n    - time: \"07:00\"\n      hue: 100\n"},
		{"missing_time", "light.a:\n  s:\n    - brightness: 100\n"},
		{"bad_time", "light.a:\n  s:\n    - time: \"25:00\"\n      brightness: 100\n"},
		{"bad_value", "light.a:\n  s:\n    - time: \"07:00\"\n      brightness: 999\n"},
		{"empty_scene", "light.a:\n  s: []\n"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := Parse([]byte(tt.doc), reg); err == nil {
				t.Error("expected parse error")
			}
		})
	}
}

func TestStateAtInterpolates(t *testing.T) {
	lib := loadTestLibrary(t)
	s, _ := lib.Scene("light.living_room", "default")

	// Halfway between 07:00 (200) and 22:00 (100).
	mid := (7*3600 + 22*3600) / 2
	state, err := s.StateAt(mid)
	if err != nil {
		t.Fatal(err)
	}
	if state["brightness"].Raw() != 150 {
		t.Errorf("brightness = %v, want 150", state["brightness"].Raw())
	}
	if state["state"].Raw() != "on" {
		t.Errorf("state = %v, want on", state["state"].Raw())
	}

	// Exactly on a keyframe.
	state, err = s.StateAt(22 * 3600)
	if err != nil {
		t.Fatal(err)
	}
	if state["brightness"].Raw() != 100 {
		t.Errorf("brightness at keyframe = %v, want 100", state["brightness"].Raw())
	}
}

func TestStateAtWrapsMidnight(t *testing.T) {
	lib := loadTestLibrary(t)
	s, _ := lib.Scene("light.living_room", "default")

	// 03:00 is halfway between 23:00 (20) and tomorrow 07:00 (200).
	state, err := s.StateAt(3 * 3600)
	if err != nil {
		t.Fatal(err)
	}
	if state["brightness"].Raw() != 110 {
		t.Errorf("brightness = %v, want 110", state["brightness"].Raw())
	}
}

func TestStateAtSingleFrame(t *testing.T) {
	lib := loadTestLibrary(t)
	s, _ := lib.Scene("light.living_room", "night")

	for _, at := range []int{0, 12 * 3600, clock.Day - 1} {
		state, err := s.StateAt(at)
		if err != nil {
			t.Fatal(err)
		}
		if state["brightness"].Raw() != 10 {
			t.Errorf("single-frame scene at %d = %v, want 10", at, state["brightness"].Raw())
		}
	}
}

func TestNextChange(t *testing.T) {
	lib := loadTestLibrary(t)
	s, _ := lib.Scene("light.living_room", "default")

	if got := s.NextChange(6 * 3600); got != 3600 {
		t.Errorf("NextChange(06:00) = %d, want 3600", got)
	}
	if got := s.NextChange(7 * 3600); got != 15*3600 {
		t.Errorf("NextChange(07:00) = %d, want %d", got, 15*3600)
	}
	// After the last keyframe the next boundary is tomorrow's first.
	if got := s.NextChange(23*3600 + 1800); got != 7*3600+1800 {
		t.Errorf("NextChange(23:30) = %d, want %d", got, 7*3600+1800)
	}
}
