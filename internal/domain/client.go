package domain

import "context"

// EventAPI defines the backend operations consumed by the dashboard.
// Implementations perform the network call only; cache effects belong
// to the synchronization core.
type EventAPI interface {
	CreateEvent(ctx context.Context, name string) (*Event, error)
	GetEventDetails(ctx context.Context, eventID string) (*EventDetails, error)
	CompleteEvent(ctx context.Context, eventID string) (*CompletionSummary, error)
	ResetGuests(ctx context.Context, eventID string) error
	ExportCSV(ctx context.Context, eventID string) ([]byte, error)
	ListGuests(ctx context.Context, eventID string) ([]Guest, error)
	CreateGuest(ctx context.Context, eventID, name string, gender Gender) (*Guest, error)
	DeleteGuest(ctx context.Context, eventID, guestID string) error
	Health(ctx context.Context) (*HealthStatus, error)
}
