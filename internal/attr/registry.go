package attr

import (
	"errors"
	"fmt"
	"sync"

	"github.com/rs/zerolog/log"
)

// ErrUnknownAttribute is returned by registry lookups for names no kind
// owns. A miss is a configuration defect, not a runtime fault.
var ErrUnknownAttribute = errors.New("unknown attribute")

// Registry maps attribute names to kinds. It is populated once at startup
// and read-only afterwards.
type Registry struct {
	mu         sync.RWMutex
	byName     map[string]Kind
	byExternal map[string]Kind
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		byName:     make(map[string]Kind),
		byExternal: make(map[string]Kind),
	}
}

// Register adds a kind under both its config name and its external name.
func (r *Registry) Register(k Kind) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.byName[k.Name()]; ok {
		return fmt.Errorf("attribute %q already registered", k.Name())
	}
	if _, ok := r.byExternal[k.ExternalName()]; ok {
		return fmt.Errorf("attribute external name %q already registered", k.ExternalName())
	}

	r.byName[k.Name()] = k
	r.byExternal[k.ExternalName()] = k

	log.Debug().Str("kind", k.Name()).Str("external", k.ExternalName()).Msg("Attribute kind registered")
	return nil
}

// ByName looks up a kind by its config/scene-file name.
func (r *Registry) ByName(name string) (Kind, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	k, ok := r.byName[name]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownAttribute, name)
	}
	return k, nil
}

// ByExternalName looks up a kind by the host platform's attribute name.
func (r *Registry) ByExternalName(name string) (Kind, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	k, ok := r.byExternal[name]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownAttribute, name)
	}
	return k, nil
}

// Kinds returns all registered kinds.
func (r *Registry) Kinds() []Kind {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]Kind, 0, len(r.byName))
	for _, k := range r.byName {
		out = append(out, k)
	}
	return out
}

// RegisterDefaults registers every built-in kind. Called once at startup.
func RegisterDefaults(r *Registry) error {
	for _, k := range []Kind{LightState, Brightness, ColorTemp} {
		if err := r.Register(k); err != nil {
			return err
		}
	}
	return nil
}
