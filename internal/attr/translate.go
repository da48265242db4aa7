package attr

import (
	"github.com/rs/zerolog/log"

	"github.com/TPO-2024-2025/DynamicScenes/internal/clock"
)

// TranslateFunc turns a raw host state (state label plus attribute map) into
// typed attribute values. Supplied to the state synchronizer at construction.
type TranslateFunc func(stateLabel string, attributes map[string]any) State

// Translator builds a TranslateFunc covering the given kinds. The state
// label feeds the LightState kind; every other kind is read from the
// attribute map under its external name. Values that fail validation are
// logged and skipped so the event stream keeps flowing.
func Translator(kinds []Kind) TranslateFunc {
	return func(stateLabel string, attributes map[string]any) State {
		now := clock.SecondsFromMidnight()
		out := make(State, len(kinds))

		for _, k := range kinds {
			var raw any
			if k.ExternalName() == LightState.ExternalName() {
				if stateLabel != "on" && stateLabel != "off" {
					// unavailable/unknown: the host has no usable label
					log.Debug().Str("label", stateLabel).Msg("Skipping non on/off state label")
					continue
				}
				raw = stateLabel
			} else {
				v, ok := attributes[k.ExternalName()]
				if !ok || v == nil {
					continue
				}
				raw = v
			}

			val, err := New(k, raw, now)
			if err != nil {
				log.Warn().Err(err).Str("kind", k.Name()).Msg("Dropping untranslatable attribute")
				continue
			}
			out[k.Name()] = val
		}

		return out
	}
}
