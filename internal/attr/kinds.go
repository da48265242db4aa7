package attr

import (
	"fmt"
	"math"
)

// Built-in kinds. LightState carries the host's on/off label; the numeric
// kinds carry the host's native integer ranges.
var (
	LightState Kind = &stateKind{}

	Brightness Kind = &rangeKind{
		name:     "brightness",
		external: "brightness",
		min:      0,
		max:      255,
		def:      255,
		off:      0,
	}

	// Color temperature in mireds, warm-white range.
	ColorTemp Kind = &rangeKind{
		name:     "color_temp",
		external: "color_temp",
		min:      153,
		max:      500,
		def:      370,
		off:      500,
	}
)

// rangeKind is a numeric kind with an inclusive integer range and linear
// interpolation.
type rangeKind struct {
	name     string
	external string
	min, max int
	def, off int
}

func (k *rangeKind) Name() string         { return k.name }
func (k *rangeKind) ExternalName() string { return k.external }
func (k *rangeKind) Off() any             { return k.off }
func (k *rangeKind) Default() any         { return k.def }

func (k *rangeKind) Normalize(v any) (any, error) {
	n, ok := toInt(v)
	if !ok {
		return nil, fmt.Errorf("value %v (%T) is not numeric", v, v)
	}
	if n < k.min || n > k.max {
		return nil, fmt.Errorf("value %d is not in range %d-%d", n, k.min, k.max)
	}
	return n, nil
}

func (k *rangeKind) Lerp(a, b any, ratio float64) any {
	av, bv := a.(int), b.(int)
	return av + int(math.Round(float64(bv-av)*ratio))
}

// stateKind is the on/off power state. It has no midpoint: interpolation
// keeps the previous value until the ratio reaches 0.5, then snaps to the
// next one.
type stateKind struct{}

func (k *stateKind) Name() string         { return "state" }
func (k *stateKind) ExternalName() string { return "state" }
func (k *stateKind) Off() any             { return "off" }
func (k *stateKind) Default() any         { return "on" }

func (k *stateKind) Normalize(v any) (any, error) {
	switch s := v.(type) {
	case string:
		if s != "on" && s != "off" {
			return nil, fmt.Errorf("value %q is not on/off", s)
		}
		return s, nil
	case bool:
		// YAML parses a bare on/off as a bool.
		if s {
			return "on", nil
		}
		return "off", nil
	default:
		return nil, fmt.Errorf("value %v (%T) is not on/off", v, v)
	}
}

func (k *stateKind) Lerp(a, b any, ratio float64) any {
	if ratio < 0.5 {
		return a
	}
	return b
}

// toInt coerces the numeric types produced by JSON and YAML decoding.
func toInt(v any) (int, bool) {
	switch n := v.(type) {
	case int:
		return n, true
	case int64:
		return int(n), true
	case uint64:
		return int(n), true
	case float64:
		if n != math.Trunc(n) {
			return 0, false
		}
		return int(n), true
	case float32:
		if float64(n) != math.Trunc(float64(n)) {
			return 0, false
		}
		return int(n), true
	default:
		return 0, false
	}
}
