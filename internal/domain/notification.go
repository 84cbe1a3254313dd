package domain

import (
	"context"
	"encoding/json"
)

// NotificationType tags a server-pushed message.
type NotificationType string

const (
	NotifyGuestAdded      NotificationType = "guest_added"
	NotifyGuestRemoved    NotificationType = "guest_removed"
	NotifyEventCompleted  NotificationType = "event_completed"
	NotifyGuestsReset     NotificationType = "guests_reset"
	NotifyAnalyticsUpdate NotificationType = "analytics_update"
)

// Notification is the push channel message envelope. Data is opaque to
// the channel; the synchronization core decides whether to trust it
// (in practice it never does, except for event_completed timing).
type Notification struct {
	Type    NotificationType `json:"type"`
	EventID string           `json:"eventId"`
	Data    json.RawMessage  `json:"data,omitempty"`
}

// ConnState describes a push channel connection-state transition.
type ConnState int

const (
	ConnDisconnected ConnState = iota
	ConnConnected
	ConnError
)

func (s ConnState) String() string {
	switch s {
	case ConnConnected:
		return "connected"
	case ConnError:
		return "connect_error"
	default:
		return "disconnected"
	}
}

// PushChannel is a live subscription scoped to a single event id.
// Connect is idempotent for an already open event id; Disconnect is
// safe to call when already disconnected.
type PushChannel interface {
	Connect(ctx context.Context, eventID string) error
	Disconnect()
	Notifications() <-chan Notification
	States() <-chan ConnState
}
