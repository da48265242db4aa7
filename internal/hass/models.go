package hass

import "encoding/json"

// Websocket message types used by the Home Assistant API.
const (
	msgAuthRequired = "auth_required"
	msgAuth         = "auth"
	msgAuthOK       = "auth_ok"
	msgAuthInvalid  = "auth_invalid"

	msgSubscribeEvents = "subscribe_events"
	msgGetStates       = "get_states"
	msgCallService     = "call_service"
	msgResult          = "result"
	msgEvent           = "event"
)

// wsRequest is an outgoing command message.
type wsRequest struct {
	ID          int64          `json:"id,omitempty"`
	Type        string         `json:"type"`
	AccessToken string         `json:"access_token,omitempty"`
	EventType   string         `json:"event_type,omitempty"`
	Domain      string         `json:"domain,omitempty"`
	Service     string         `json:"service,omitempty"`
	ServiceData map[string]any `json:"service_data,omitempty"`
	Target      *wsTarget      `json:"target,omitempty"`
}

type wsTarget struct {
	EntityID string `json:"entity_id"`
}

// wsEnvelope is any incoming message.
type wsEnvelope struct {
	ID      int64           `json:"id"`
	Type    string          `json:"type"`
	Success bool            `json:"success"`
	Result  json.RawMessage `json:"result"`
	Event   *wsEvent        `json:"event"`
	Error   *wsError        `json:"error"`
	Message string          `json:"message"` // auth phase only
}

type wsError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

type wsEvent struct {
	EventType string      `json:"event_type"`
	Data      wsEventData `json:"data"`
}

type wsEventData struct {
	EntityID string   `json:"entity_id"`
	OldState *wsState `json:"old_state"`
	NewState *wsState `json:"new_state"`
}

type wsState struct {
	EntityID   string         `json:"entity_id"`
	State      string         `json:"state"`
	Attributes map[string]any `json:"attributes"`
	Context    wsContext      `json:"context"`
}

type wsContext struct {
	ID string `json:"id"`
}

// callServiceResult is the payload of a successful call_service result.
type callServiceResult struct {
	Context wsContext `json:"context"`
}
