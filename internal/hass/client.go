// Package hass implements the Home Assistant websocket client: the concrete
// state store, event source and write collaborator behind the host
// interfaces. State-change events are published to the event bus with the
// correlation id of the originating write resolved where possible.
package hass

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"
	"golang.org/x/time/rate"

	"github.com/TPO-2024-2025/DynamicScenes/internal/eventbus"
	"github.com/TPO-2024-2025/DynamicScenes/internal/host"
)

// ErrMaxReconnectsExceeded is returned when the maximum number of reconnect
// attempts is exceeded.
var ErrMaxReconnectsExceeded = errors.New("max reconnects exceeded")

// ErrNotConnected is returned for commands issued while disconnected.
var ErrNotConnected = errors.New("not connected to home assistant")

// writeContextTTL bounds how long a host-assigned context stays mapped to
// the correlation id of the write that produced it.
const writeContextTTL = 10 * time.Second

// Config contains connection settings.
type Config struct {
	URL   string // e.g. ws://hass.local:8123/api/websocket
	Token string

	CallTimeout time.Duration

	// Reconnect backoff
	MinBackoff    time.Duration
	MaxBackoff    time.Duration
	Multiplier    float64
	MaxReconnects int // 0 = infinite

	// Outbound service-call rate limit
	RateLimitRPS float64
}

// DefaultConfig returns sensible defaults for everything but URL and Token.
func DefaultConfig() Config {
	return Config{
		CallTimeout:  10 * time.Second,
		MinBackoff:   1 * time.Second,
		MaxBackoff:   2 * time.Minute,
		Multiplier:   2.0,
		RateLimitRPS: 10.0,
	}
}

type trackedWrite struct {
	correlationID string
	minted        time.Time
}

// Client maintains the websocket session. It implements host.StateStore and
// host.Writer.
type Client struct {
	cfg     Config
	bus     *eventbus.Bus
	limiter *rate.Limiter

	mu    sync.Mutex
	conn  *websocket.Conn
	seq   int64
	calls map[int64]chan *wsEnvelope

	stateMu sync.RWMutex
	states  map[string]*host.RawState

	// Host-assigned context id -> correlation id of the write that caused it.
	ctxMu         sync.Mutex
	writeContexts map[string]trackedWrite

	readyOnce sync.Once
	ready     chan struct{}
}

// NewClient creates a client. Run must be called to establish the session.
func NewClient(cfg Config, bus *eventbus.Bus) *Client {
	return &Client{
		cfg:           cfg,
		bus:           bus,
		limiter:       rate.NewLimiter(rate.Limit(cfg.RateLimitRPS), int(cfg.RateLimitRPS)),
		calls:         make(map[int64]chan *wsEnvelope),
		states:        make(map[string]*host.RawState),
		writeContexts: make(map[string]trackedWrite),
		ready:         make(chan struct{}),
	}
}

// WaitReady blocks until the first state snapshot has been loaded.
func (c *Client) WaitReady(ctx context.Context) error {
	select {
	case <-c.ready:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Run maintains the websocket session, reconnecting with exponential
// backoff. It blocks until the context is cancelled or the reconnect budget
// is exhausted.
func (c *Client) Run(ctx context.Context) error {
	backoff := c.cfg.MinBackoff
	attempts := 0

	for {
		start := time.Now()
		err := c.session(ctx)
		if ctx.Err() != nil {
			return nil
		}

		// A session that held for a while resets the backoff.
		if time.Since(start) > c.cfg.MaxBackoff {
			backoff = c.cfg.MinBackoff
			attempts = 0
		}

		attempts++
		if c.cfg.MaxReconnects > 0 && attempts > c.cfg.MaxReconnects {
			return fmt.Errorf("%w after %d attempts: %v", ErrMaxReconnectsExceeded, attempts-1, err)
		}

		log.Warn().
			Err(err).
			Dur("backoff", backoff).
			Int("attempt", attempts).
			Msg("Home Assistant session ended, reconnecting")

		c.bus.Publish(eventbus.Event{Type: eventbus.EventTypeConnectivity, Data: false})

		select {
		case <-ctx.Done():
			return nil
		case <-time.After(backoff):
		}

		backoff = time.Duration(float64(backoff) * c.cfg.Multiplier)
		if backoff > c.cfg.MaxBackoff {
			backoff = c.cfg.MaxBackoff
		}
	}
}

// session runs one connected session: dial, authenticate, subscribe, prime
// the state cache, then pump events until the connection drops.
func (c *Client) session(ctx context.Context) error {
	dialCtx, cancel := context.WithTimeout(ctx, c.cfg.CallTimeout)
	conn, _, err := websocket.DefaultDialer.DialContext(dialCtx, c.cfg.URL, nil)
	cancel()
	if err != nil {
		return fmt.Errorf("dial failed: %w", err)
	}
	defer conn.Close()

	if err := c.authenticate(conn); err != nil {
		return err
	}

	c.mu.Lock()
	c.conn = conn
	c.mu.Unlock()
	defer c.teardown()

	readErr := make(chan error, 1)
	go func() { readErr <- c.readLoop(conn) }()

	if _, err := c.call(ctx, wsRequest{Type: msgSubscribeEvents, EventType: "state_changed"}); err != nil {
		return fmt.Errorf("subscribe failed: %w", err)
	}

	if err := c.primeStates(ctx); err != nil {
		return fmt.Errorf("initial state fetch failed: %w", err)
	}

	log.Info().Str("url", c.cfg.URL).Msg("Connected to Home Assistant")
	c.readyOnce.Do(func() { close(c.ready) })
	c.bus.Publish(eventbus.Event{Type: eventbus.EventTypeConnectivity, Data: true})

	select {
	case <-ctx.Done():
		return nil
	case err := <-readErr:
		return err
	}
}

// authenticate performs the auth handshake synchronously before the read
// loop starts.
func (c *Client) authenticate(conn *websocket.Conn) error {
	var hello wsEnvelope
	if err := conn.ReadJSON(&hello); err != nil {
		return fmt.Errorf("auth handshake failed: %w", err)
	}
	if hello.Type != msgAuthRequired {
		return fmt.Errorf("unexpected first message %q", hello.Type)
	}

	if err := conn.WriteJSON(wsRequest{Type: msgAuth, AccessToken: c.cfg.Token}); err != nil {
		return fmt.Errorf("auth send failed: %w", err)
	}

	var reply wsEnvelope
	if err := conn.ReadJSON(&reply); err != nil {
		return fmt.Errorf("auth reply failed: %w", err)
	}
	switch reply.Type {
	case msgAuthOK:
		return nil
	case msgAuthInvalid:
		return fmt.Errorf("authentication rejected: %s", reply.Message)
	default:
		return fmt.Errorf("unexpected auth reply %q", reply.Type)
	}
}

// teardown clears the connection and fails every in-flight call.
func (c *Client) teardown() {
	c.mu.Lock()
	c.conn = nil
	for id, ch := range c.calls {
		close(ch)
		delete(c.calls, id)
	}
	c.mu.Unlock()
}

// readLoop dispatches incoming messages: results to their waiting calls,
// events to the handler.
func (c *Client) readLoop(conn *websocket.Conn) error {
	for {
		var msg wsEnvelope
		if err := conn.ReadJSON(&msg); err != nil {
			return err
		}

		switch msg.Type {
		case msgResult:
			c.mu.Lock()
			ch, ok := c.calls[msg.ID]
			if ok {
				delete(c.calls, msg.ID)
			}
			c.mu.Unlock()
			if ok {
				ch <- &msg
			}
		case msgEvent:
			if msg.Event != nil {
				c.handleEvent(msg.Event)
			}
		default:
			log.Debug().Str("type", msg.Type).Msg("Ignoring unexpected websocket message")
		}
	}
}

// call sends a command and waits for its result.
func (c *Client) call(ctx context.Context, req wsRequest) (*wsEnvelope, error) {
	c.mu.Lock()
	conn := c.conn
	if conn == nil {
		c.mu.Unlock()
		return nil, ErrNotConnected
	}
	c.seq++
	req.ID = c.seq
	ch := make(chan *wsEnvelope, 1)
	c.calls[req.ID] = ch

	// Writes happen under the same mutex: gorilla connections allow only one
	// concurrent writer.
	err := conn.WriteJSON(req)
	if err != nil {
		delete(c.calls, req.ID)
		c.mu.Unlock()
		return nil, fmt.Errorf("write failed: %w", err)
	}
	c.mu.Unlock()

	timeout := time.NewTimer(c.cfg.CallTimeout)
	defer timeout.Stop()

	select {
	case <-ctx.Done():
		c.dropCall(req.ID)
		return nil, ctx.Err()
	case <-timeout.C:
		c.dropCall(req.ID)
		return nil, fmt.Errorf("command %q timed out", req.Type)
	case res, ok := <-ch:
		if !ok {
			return nil, ErrNotConnected
		}
		if !res.Success {
			if res.Error != nil {
				return nil, fmt.Errorf("command %q failed: %s (%s)", req.Type, res.Error.Message, res.Error.Code)
			}
			return nil, fmt.Errorf("command %q failed", req.Type)
		}
		return res, nil
	}
}

func (c *Client) dropCall(id int64) {
	c.mu.Lock()
	delete(c.calls, id)
	c.mu.Unlock()
}

// primeStates loads the full state snapshot into the cache.
func (c *Client) primeStates(ctx context.Context) error {
	res, err := c.call(ctx, wsRequest{Type: msgGetStates})
	if err != nil {
		return err
	}

	var states []wsState
	if err := json.Unmarshal(res.Result, &states); err != nil {
		return fmt.Errorf("failed to decode states: %w", err)
	}

	c.stateMu.Lock()
	for i := range states {
		s := &states[i]
		c.states[s.EntityID] = rawState(s)
	}
	c.stateMu.Unlock()

	log.Debug().Int("entities", len(states)).Msg("State snapshot loaded")
	return nil
}

// handleEvent updates the state cache and forwards the change to the bus,
// resolving the host context back to a correlation id when this daemon's
// own write caused it.
func (c *Client) handleEvent(ev *wsEvent) {
	if ev.EventType != "state_changed" {
		return
	}

	data := ev.Data
	change := host.StateChange{
		EntityID: data.EntityID,
		Old:      rawState(data.OldState),
		New:      rawState(data.NewState),
	}

	if data.NewState != nil {
		c.stateMu.Lock()
		c.states[data.EntityID] = change.New
		c.stateMu.Unlock()

		change.CorrelationID = c.resolveWrite(data.NewState.Context.ID)
	}

	c.bus.Publish(eventbus.Event{
		Type:   eventbus.EventTypeStateChanged,
		Entity: data.EntityID,
		Data:   change,
	})
}

// Connected reports whether a websocket session is currently established.
func (c *Client) Connected() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.conn != nil
}

// GetState returns the cached raw state of an entity, or nil when unknown.
func (c *Client) GetState(_ context.Context, entityID string) (*host.RawState, error) {
	c.stateMu.RLock()
	defer c.stateMu.RUnlock()

	s, ok := c.states[entityID]
	if !ok {
		return nil, nil
	}
	return s, nil
}

// PerformWrite issues a service call and maps the host-assigned context of
// the call back to the given correlation id, so the resulting state-change
// notifications can be recognized as echoes.
func (c *Client) PerformWrite(ctx context.Context, entityID, domain, service string, payload map[string]any, correlationID string) error {
	if err := c.limiter.Wait(ctx); err != nil {
		return err
	}

	log.Info().
		Str("entity", entityID).
		Str("service", domain+"."+service).
		Interface("payload", payload).
		Msg("Issuing service call")

	res, err := c.call(ctx, wsRequest{
		Type:        msgCallService,
		Domain:      domain,
		Service:     service,
		ServiceData: payload,
		Target:      &wsTarget{EntityID: entityID},
	})
	if err != nil {
		return err
	}

	var result callServiceResult
	if err := json.Unmarshal(res.Result, &result); err != nil || result.Context.ID == "" {
		log.Debug().Str("entity", entityID).Msg("Service call result carried no context")
		return nil
	}

	c.ctxMu.Lock()
	c.writeContexts[result.Context.ID] = trackedWrite{
		correlationID: correlationID,
		minted:        time.Now(),
	}
	c.sweepWriteContextsLocked()
	c.ctxMu.Unlock()

	return nil
}

// resolveWrite consumes the correlation id recorded for a host context.
func (c *Client) resolveWrite(hostContextID string) string {
	if hostContextID == "" {
		return ""
	}

	c.ctxMu.Lock()
	defer c.ctxMu.Unlock()

	w, ok := c.writeContexts[hostContextID]
	if !ok {
		return ""
	}
	delete(c.writeContexts, hostContextID)
	return w.correlationID
}

func (c *Client) sweepWriteContextsLocked() {
	cutoff := time.Now().Add(-writeContextTTL)
	for id, w := range c.writeContexts {
		if w.minted.Before(cutoff) {
			delete(c.writeContexts, id)
		}
	}
}

// rawState converts a wire state into the host representation.
func rawState(s *wsState) *host.RawState {
	if s == nil {
		return nil
	}
	return &host.RawState{
		EntityID:   s.EntityID,
		State:      s.State,
		Attributes: s.Attributes,
	}
}
