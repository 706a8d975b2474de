// Package alexa holds the JSON envelopes exchanged with the voice platform
// and a response builder that mirrors the platform SDK.
package alexa

import (
	"fmt"
	"time"
)

// Request types
const (
	LaunchRequest       = "LaunchRequest"
	IntentRequest       = "IntentRequest"
	SessionEndedRequest = "SessionEndedRequest"
)

// Built-in intents
const (
	HelpIntent     = "AMAZON.HelpIntent"
	StopIntent     = "AMAZON.StopIntent"
	CancelIntent   = "AMAZON.CancelIntent"
	RepeatIntent   = "AMAZON.RepeatIntent"
	FallbackIntent = "AMAZON.FallbackIntent"
)

// RequestEnvelope is the body the platform POSTs to the skill endpoint
type RequestEnvelope struct {
	Version string   `json:"version"`
	Session *Session `json:"session,omitempty"`
	Context *Context `json:"context,omitempty"`
	Request *Request `json:"request"`
}

// Session carries the conversation state kept by the platform
type Session struct {
	New         bool           `json:"new"`
	SessionID   string         `json:"sessionId"`
	Application Application    `json:"application"`
	Attributes  map[string]any `json:"attributes,omitempty"`
	User        User           `json:"user"`
}

// Application identifies the skill
type Application struct {
	ApplicationID string `json:"applicationId"`
}

// User identifies the account using the skill
type User struct {
	UserID string `json:"userId"`
}

// Context describes the device state at request time
type Context struct {
	System System `json:"System"`
}

// System is the system section of the request context
type System struct {
	Application Application `json:"application"`
	User        User        `json:"user"`
	Device      *Device     `json:"device,omitempty"`
	APIEndpoint string      `json:"apiEndpoint,omitempty"`
}

// Device identifies the calling device
type Device struct {
	DeviceID string `json:"deviceId"`
}

// Request is the typed request section
type Request struct {
	Type      string        `json:"type"`
	RequestID string        `json:"requestId"`
	Timestamp string        `json:"timestamp"`
	Locale    string        `json:"locale,omitempty"`
	Intent    *Intent       `json:"intent,omitempty"`
	Reason    string        `json:"reason,omitempty"`
	Error     *RequestError `json:"error,omitempty"`
}

// Intent is the resolved user intent
type Intent struct {
	Name               string          `json:"name"`
	ConfirmationStatus string          `json:"confirmationStatus,omitempty"`
	Slots              map[string]Slot `json:"slots,omitempty"`
}

// Slot is a single intent argument
type Slot struct {
	Name               string `json:"name"`
	Value              string `json:"value,omitempty"`
	ConfirmationStatus string `json:"confirmationStatus,omitempty"`
}

// RequestError is attached to SessionEndedRequest when the session ended on an error
type RequestError struct {
	Type    string `json:"type"`
	Message string `json:"message"`
}

// RequestType returns the request type or "" for envelopes without a request
func (e *RequestEnvelope) RequestType() string {
	if e == nil || e.Request == nil {
		return ""
	}
	return e.Request.Type
}

// IntentName returns the intent name for intent requests
func (e *RequestEnvelope) IntentName() string {
	if e.RequestType() != IntentRequest || e.Request.Intent == nil {
		return ""
	}
	return e.Request.Intent.Name
}

// SlotValue returns the value of the named slot. ok is false when the slot is
// absent or was not filled.
func (e *RequestEnvelope) SlotValue(name string) (value string, ok bool) {
	if e.IntentName() == "" {
		return "", false
	}
	slot, found := e.Request.Intent.Slots[name]
	if !found || slot.Value == "" {
		return "", false
	}
	return slot.Value, true
}

// ApplicationID returns the skill id from the context, falling back to the session
func (e *RequestEnvelope) ApplicationID() string {
	if e == nil {
		return ""
	}
	if e.Context != nil && e.Context.System.Application.ApplicationID != "" {
		return e.Context.System.Application.ApplicationID
	}
	if e.Session != nil {
		return e.Session.Application.ApplicationID
	}
	return ""
}

// SessionID returns the session id, if any
func (e *RequestEnvelope) SessionID() string {
	if e == nil || e.Session == nil {
		return ""
	}
	return e.Session.SessionID
}

// SessionAttributes returns a copy of the session attributes
func (e *RequestEnvelope) SessionAttributes() map[string]any {
	attrs := make(map[string]any)
	if e == nil || e.Session == nil {
		return attrs
	}
	for k, v := range e.Session.Attributes {
		attrs[k] = v
	}
	return attrs
}

// Time parses the request timestamp
func (e *RequestEnvelope) Time() (time.Time, error) {
	if e == nil || e.Request == nil || e.Request.Timestamp == "" {
		return time.Time{}, fmt.Errorf("request timestamp is missing")
	}
	ts, err := time.Parse(time.RFC3339, e.Request.Timestamp)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid request timestamp %q: %w", e.Request.Timestamp, err)
	}
	return ts, nil
}
