// Package coordinator drives every configured entity toward its active
// scene: it computes target states at each entity's virtual time, schedules
// deduplicated writes, and reacts to external changes and service calls.
package coordinator

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/TPO-2024-2025/DynamicScenes/internal/attr"
	"github.com/TPO-2024-2025/DynamicScenes/internal/clock"
	"github.com/TPO-2024-2025/DynamicScenes/internal/entity"
	"github.com/TPO-2024-2025/DynamicScenes/internal/eventbus"
	"github.com/TPO-2024-2025/DynamicScenes/internal/host"
	"github.com/TPO-2024-2025/DynamicScenes/internal/scene"
	"github.com/TPO-2024-2025/DynamicScenes/internal/storage"
	"github.com/TPO-2024-2025/DynamicScenes/internal/update"
)

// Config contains coordinator settings.
type Config struct {
	// DefaultDelay spaces out writes triggered by the control loop.
	DefaultDelay time.Duration
	// RefreshInterval caps the time between target recomputations, so
	// interpolation keeps moving between keyframes.
	RefreshInterval time.Duration
}

// EntityStatus is a read-only snapshot of one managed entity.
type EntityStatus struct {
	EntityID    string         `json:"entity_id"`
	Type        string         `json:"type"`
	Manual      bool           `json:"manual"`
	ActiveScene string         `json:"active_scene,omitempty"`
	Timeshift   int            `json:"timeshift"`
	State       map[string]any `json:"state"`
}

// managed bundles one entity's abilities with its control mode.
type managed struct {
	id      string
	typ     *entity.Type
	sync    *entity.Sync
	updates *entity.Updates
	shift   *clock.Timeshift
	unsub   func()

	mu     sync.Mutex
	manual bool
	scenes []string // scenes whose condition is met, most recent last
}

// activeScene returns the scene currently driving the entity, or "".
func (m *managed) activeScene() string {
	if len(m.scenes) == 0 {
		return ""
	}
	return m.scenes[len(m.scenes)-1]
}

// Coordinator owns the managed entities and the control loop.
type Coordinator struct {
	cfg     Config
	bus     *eventbus.Bus
	store   *storage.Store
	library *scene.Library
	states  host.StateStore
	writer  host.Writer
	sched   *update.Scheduler

	mu       sync.Mutex
	entities map[string]*managed

	recompute chan struct{}
}

// New creates a coordinator. Init must be called before Run.
func New(
	cfg Config,
	bus *eventbus.Bus,
	store *storage.Store,
	library *scene.Library,
	states host.StateStore,
	writer host.Writer,
	sched *update.Scheduler,
) *Coordinator {
	if cfg.RefreshInterval <= 0 {
		cfg.RefreshInterval = time.Minute
	}

	return &Coordinator{
		cfg:       cfg,
		bus:       bus,
		store:     store,
		library:   library,
		states:    states,
		writer:    writer,
		sched:     sched,
		entities:  make(map[string]*managed),
		recompute: make(chan struct{}, 1),
	}
}

// Init registers every entity the scene library names: detects its type
// from raw host state, seeds the synchronizer, restores persisted settings
// and subscribes to its state-change events.
func (c *Coordinator) Init(ctx context.Context) error {
	for _, id := range c.library.Entities() {
		raw, err := c.states.GetState(ctx, id)
		if err != nil {
			return err
		}
		if raw == nil {
			log.Warn().Str("entity", id).Msg("Entity not found on host, skipping")
			continue
		}

		domain, _, _ := strings.Cut(id, ".")
		typ, ok := entity.Detect(domain, id, raw.Attributes)
		if !ok {
			log.Warn().Str("entity", id).Msg("No supported entity type matches, skipping")
			continue
		}

		m := &managed{id: id, typ: typ}

		m.sync = entity.NewSync(id, attr.Translator(typ.Kinds), func(st attr.State) {
			c.onExternalChange(m, st)
		})
		m.sync.Prime(raw)

		m.updates = entity.NewUpdates(id, c.sched, m.sync.TrackContext, func(ctx context.Context, target attr.State, track func() string) error {
			service, payload := typ.ServiceCall(target)
			return c.writer.PerformWrite(ctx, id, typ.Domain, service, payload, track())
		})

		m.shift = clock.NewTimeshift(id, func(offset int) {
			if err := c.store.SetTimeshift(id, offset); err != nil {
				log.Error().Err(err).Str("entity", id).Msg("Failed to persist timeshift")
			}
			c.notifyRecompute()
		})

		if err := c.restoreSettings(m); err != nil {
			return err
		}

		m.unsub = c.bus.SubscribeEntity(eventbus.EventTypeStateChanged, id, func(ev eventbus.Event) {
			if change, ok := ev.Data.(host.StateChange); ok {
				m.sync.HandleEvent(change)
			}
		})

		c.mu.Lock()
		c.entities[id] = m
		c.mu.Unlock()

		log.Info().Str("entity", id).Str("type", typ.Name).Msg("Entity registered")
	}

	return nil
}

// restoreSettings applies persisted timeshift, mode and active scene.
func (c *Coordinator) restoreSettings(m *managed) error {
	settings, err := c.store.Get(m.id)
	if err != nil {
		return err
	}

	if settings.Timeshift != 0 {
		m.shift.Set(settings.Timeshift)
	}

	m.mu.Lock()
	m.manual = settings.Manual
	if settings.ActiveScene != "" {
		if _, ok := c.library.Scene(m.id, settings.ActiveScene); ok {
			m.scenes = append(m.scenes, settings.ActiveScene)
		} else {
			log.Warn().
				Str("entity", m.id).
				Str("scene", settings.ActiveScene).
				Msg("Persisted scene no longer defined, discarding")
		}
	}
	m.mu.Unlock()

	return nil
}

// Run executes the control loop: apply targets, sleep until the next
// keyframe boundary (capped by the refresh interval) or until something
// triggers a recompute.
func (c *Coordinator) Run(ctx context.Context) error {
	log.Info().Dur("refresh_interval", c.cfg.RefreshInterval).Msg("Coordinator started")

	for {
		c.applyAll()

		timer := time.NewTimer(c.nextWake())

		select {
		case <-ctx.Done():
			timer.Stop()
			log.Info().Msg("Coordinator stopping")
			return nil
		case <-c.recompute:
			timer.Stop()
		case <-timer.C:
		}
	}
}

// nextWake returns the sleep duration until the earliest upcoming keyframe
// across all automatically controlled entities.
func (c *Coordinator) nextWake() time.Duration {
	best := c.cfg.RefreshInterval

	c.mu.Lock()
	defer c.mu.Unlock()

	for _, m := range c.entities {
		m.mu.Lock()
		name := m.activeScene()
		manual := m.manual
		m.mu.Unlock()

		if manual || name == "" {
			continue
		}
		sc, ok := c.library.Scene(m.id, name)
		if !ok {
			continue
		}

		d := time.Duration(sc.NextChange(m.shift.Now())) * time.Second
		if d < best {
			best = d
		}
	}

	if best <= 0 {
		best = time.Second
	}
	return best
}

// applyAll schedules an update for every automatically controlled entity
// with an active scene.
func (c *Coordinator) applyAll() {
	c.mu.Lock()
	entities := make([]*managed, 0, len(c.entities))
	for _, m := range c.entities {
		entities = append(entities, m)
	}
	c.mu.Unlock()

	for _, m := range entities {
		c.applyEntity(m)
	}
}

func (c *Coordinator) applyEntity(m *managed) {
	m.mu.Lock()
	manual := m.manual
	name := m.activeScene()
	m.mu.Unlock()

	if manual || name == "" {
		return
	}

	sc, ok := c.library.Scene(m.id, name)
	if !ok {
		log.Error().Str("entity", m.id).Str("scene", name).Msg("Active scene not defined")
		return
	}

	target, err := sc.StateAt(m.shift.Now())
	if err != nil {
		log.Error().Err(err).Str("entity", m.id).Str("scene", name).Msg("Failed to compute target state")
		return
	}

	m.updates.Schedule(target, name, c.cfg.DefaultDelay)
}

// onExternalChange handles a genuine external state change: the entity
// leaves automatic control until continue_adjustments is called.
func (c *Coordinator) onExternalChange(m *managed, state attr.State) {
	m.mu.Lock()
	wasManual := m.manual
	m.manual = true
	m.mu.Unlock()

	if wasManual {
		return
	}

	log.Info().
		Str("entity", m.id).
		Msg("External change detected, suspending automatic control")

	m.updates.CancelAll()

	if err := c.store.SetManual(m.id, true); err != nil {
		log.Error().Err(err).Str("entity", m.id).Msg("Failed to persist manual mode")
	}
}

func (c *Coordinator) notifyRecompute() {
	select {
	case c.recompute <- struct{}{}:
	default:
	}
}

// forEach resolves entity ids to managed entities, warning on unknown ids.
func (c *Coordinator) forEach(ids []string, fn func(m *managed)) {
	for _, id := range ids {
		c.mu.Lock()
		m, ok := c.entities[id]
		c.mu.Unlock()

		if !ok {
			log.Warn().Str("entity", id).Msg("Service call names unmanaged entity")
			continue
		}
		fn(m)
	}
}

// SetSceneActive marks a scene's condition as met for the given entities.
// The most recently activated scene drives the entity.
func (c *Coordinator) SetSceneActive(ids []string, name string) {
	c.forEach(ids, func(m *managed) {
		if _, ok := c.library.Scene(m.id, name); !ok {
			log.Warn().Str("entity", m.id).Str("scene", name).Msg("Scene not defined for entity")
			return
		}

		m.mu.Lock()
		m.scenes = removeScene(m.scenes, name)
		m.scenes = append(m.scenes, name)
		active := m.activeScene()
		m.mu.Unlock()

		if err := c.store.SetActiveScene(m.id, active); err != nil {
			log.Error().Err(err).Str("entity", m.id).Msg("Failed to persist active scene")
		}

		log.Info().Str("entity", m.id).Str("scene", name).Msg("Scene activated")
	})
	c.notifyRecompute()
}

// SetSceneInactive marks a scene's condition as no longer met.
func (c *Coordinator) SetSceneInactive(ids []string, name string) {
	c.forEach(ids, func(m *managed) {
		m.mu.Lock()
		m.scenes = removeScene(m.scenes, name)
		active := m.activeScene()
		m.mu.Unlock()

		if err := c.store.SetActiveScene(m.id, active); err != nil {
			log.Error().Err(err).Str("entity", m.id).Msg("Failed to persist active scene")
		}

		log.Info().Str("entity", m.id).Str("scene", name).Msg("Scene deactivated")
	})
	c.notifyRecompute()
}

// StopAdjustments switches entities to manual control and cancels their
// pending writes.
func (c *Coordinator) StopAdjustments(ids []string) {
	c.forEach(ids, func(m *managed) {
		m.mu.Lock()
		m.manual = true
		m.mu.Unlock()

		m.updates.CancelAll()

		if err := c.store.SetManual(m.id, true); err != nil {
			log.Error().Err(err).Str("entity", m.id).Msg("Failed to persist manual mode")
		}

		log.Info().Str("entity", m.id).Msg("Adjustments stopped")
	})
}

// ContinueAdjustments resumes automatic control.
func (c *Coordinator) ContinueAdjustments(ids []string) {
	c.forEach(ids, func(m *managed) {
		m.mu.Lock()
		m.manual = false
		m.mu.Unlock()

		if err := c.store.SetManual(m.id, false); err != nil {
			log.Error().Err(err).Str("entity", m.id).Msg("Failed to persist manual mode")
		}

		log.Info().Str("entity", m.id).Msg("Adjustments resumed")
	})
	c.notifyRecompute()
}

// SetTimeshift sets an absolute timeshift in seconds for the given entities.
func (c *Coordinator) SetTimeshift(ids []string, seconds int) {
	c.forEach(ids, func(m *managed) { m.shift.Set(seconds) })
}

// ShiftTime adjusts the timeshift by a relative amount in seconds.
func (c *Coordinator) ShiftTime(ids []string, seconds int) {
	c.forEach(ids, func(m *managed) { m.shift.Shift(seconds) })
}

// Snapshot returns the status of every managed entity, sorted by id.
func (c *Coordinator) Snapshot() []EntityStatus {
	c.mu.Lock()
	entities := make([]*managed, 0, len(c.entities))
	for _, m := range c.entities {
		entities = append(entities, m)
	}
	c.mu.Unlock()

	out := make([]EntityStatus, 0, len(entities))
	for _, m := range entities {
		state := make(map[string]any)
		for name, v := range m.sync.Current() {
			state[name] = v.Raw()
		}

		m.mu.Lock()
		status := EntityStatus{
			EntityID:    m.id,
			Type:        m.typ.Name,
			Manual:      m.manual,
			ActiveScene: m.activeScene(),
			Timeshift:   m.shift.Offset(),
			State:       state,
		}
		m.mu.Unlock()

		out = append(out, status)
	}

	sort.Slice(out, func(i, j int) bool { return out[i].EntityID < out[j].EntityID })
	return out
}

// Stop unsubscribes every entity from the bus.
func (c *Coordinator) Stop() {
	c.mu.Lock()
	defer c.mu.Unlock()

	for _, m := range c.entities {
		if m.unsub != nil {
			m.unsub()
		}
	}
}

func removeScene(scenes []string, name string) []string {
	out := scenes[:0]
	for _, s := range scenes {
		if s != name {
			out = append(out, s)
		}
	}
	return out
}
