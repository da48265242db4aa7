package entity

import (
	"github.com/rs/zerolog/log"

	"github.com/TPO-2024-2025/DynamicScenes/internal/attr"
)

// Type describes a class of controllable entities: which attribute kinds it
// drives and how to recognize a raw host entity as an instance.
type Type struct {
	Name   string
	Domain string
	Kinds  []attr.Kind

	supports func(entityID string, attributes map[string]any) bool
}

// Supports reports whether a raw entity in the given domain matches this type.
func (t *Type) Supports(domain, entityID string, attributes map[string]any) bool {
	if domain != t.Domain {
		return false
	}
	return t.supports(entityID, attributes)
}

// ServiceCall maps a target state onto a host service call for this type.
// A target whose power state is off turns the entity off; anything else
// turns it on with the remaining attributes as payload.
func (t *Type) ServiceCall(target attr.State) (service string, payload map[string]any) {
	stateName := attr.LightState.Name()

	if v, ok := target[stateName]; ok && v.Raw() == "off" {
		return "turn_off", nil
	}

	payload = make(map[string]any)
	for _, k := range t.Kinds {
		if k.Name() == stateName {
			continue
		}
		if v, ok := target[k.Name()]; ok {
			payload[k.ExternalName()] = v.Raw()
		}
	}
	return "turn_on", payload
}

// Light is a dimmable light without color support.
var Light = &Type{
	Name:   "light",
	Domain: "light",
	Kinds:  []attr.Kind{attr.LightState, attr.Brightness},
	supports: func(entityID string, attributes map[string]any) bool {
		if _, ok := attributes["brightness"]; !ok {
			log.Debug().Str("entity", entityID).Msg("Not a dimmable light: no brightness attribute")
			return false
		}
		if modes, ok := attributes["supported_color_modes"].([]any); ok && len(modes) > 0 {
			if !onlyBrightnessModes(modes) {
				return false
			}
		}
		return true
	},
}

// WWLight is a warm-white light with tunable color temperature.
var WWLight = &Type{
	Name:   "ww_light",
	Domain: "light",
	Kinds:  []attr.Kind{attr.LightState, attr.Brightness, attr.ColorTemp},
	supports: func(entityID string, attributes map[string]any) bool {
		if _, ok := attributes["brightness"]; !ok {
			return false
		}
		if _, ok := attributes["color_temp"]; !ok {
			return false
		}
		modes, ok := attributes["supported_color_modes"].([]any)
		if !ok {
			return false
		}
		for _, m := range modes {
			if m == "color_temp" {
				return true
			}
		}
		log.Debug().Str("entity", entityID).Msg("Not a ww light: color_temp not in supported_color_modes")
		return false
	},
}

// types in matching priority order: more capable first.
var types = []*Type{WWLight, Light}

// Detect returns the most capable type matching a raw entity.
func Detect(domain, entityID string, attributes map[string]any) (*Type, bool) {
	for _, t := range types {
		if t.Supports(domain, entityID, attributes) {
			log.Debug().Str("entity", entityID).Str("type", t.Name).Msg("Entity type detected")
			return t, true
		}
	}
	return nil, false
}

// onlyBrightnessModes reports whether every color mode is brightness-only.
func onlyBrightnessModes(modes []any) bool {
	for _, m := range modes {
		if m != "brightness" && m != "onoff" {
			return false
		}
	}
	return true
}
