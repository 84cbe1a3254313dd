package domain

import (
	"strings"
	"time"
)

// EventStatus is the lifecycle state of an event.
type EventStatus string

const (
	StatusActive    EventStatus = "ACTIVE"
	StatusCompleted EventStatus = "COMPLETED"
)

// Gender of a registered guest.
type Gender string

const (
	GenderMale   Gender = "MALE"
	GenderFemale Gender = "FEMALE"
)

// Valid reports whether g is a known gender value.
func (g Gender) Valid() bool {
	return g == GenderMale || g == GenderFemale
}

// Event represents a guestbook event with its registered guests.
// Guests are ordered by registration time (insertion order).
type Event struct {
	ID          string      `json:"id"`
	Name        string      `json:"name"`
	Status      EventStatus `json:"status"`
	StartedAt   time.Time   `json:"startedAt"`
	CompletedAt *time.Time  `json:"completedAt,omitempty"`
	Guests      []Guest     `json:"guests"`
	CreatedAt   time.Time   `json:"createdAt"`
	UpdatedAt   time.Time   `json:"updatedAt"`
}

// Guest represents a single registration. Guests are immutable once
// created except for removal.
type Guest struct {
	ID        string    `json:"id"`
	EventID   string    `json:"eventId"`
	Name      string    `json:"name"`
	Gender    Gender    `json:"gender"`
	CreatedAt time.Time `json:"createdAt"`
}

// ValidateGuestInput checks a prospective guest registration before any
// network call. Returns the trimmed name.
func ValidateGuestInput(name string, gender Gender) (string, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return "", ErrInvalidInput
	}
	if !gender.Valid() {
		return "", ErrInvalidInput
	}
	return name, nil
}

// EventDetails bundles an event with its analytics snapshot, as served
// by GET /events/{id}.
type EventDetails struct {
	Event     Event             `json:"event"`
	Analytics AnalyticsSnapshot `json:"analytics"`
}

// CompletionSummary is the payload of PATCH /events/{id}/complete. The
// CompletedAt here is authoritative and replaces any client-side guess.
type CompletionSummary struct {
	ID           string    `json:"id"`
	Name         string    `json:"name"`
	StartedAt    time.Time `json:"startedAt"`
	CompletedAt  time.Time `json:"completedAt"`
	Duration     string    `json:"duration"`
	TotalGuests  int       `json:"totalGuests"`
	MaleGuests   int       `json:"maleGuests"`
	FemaleGuests int       `json:"femaleGuests"`
}

// HealthStatus is the liveness payload of GET /health.
type HealthStatus struct {
	Success   bool      `json:"success"`
	Message   string    `json:"message"`
	Timestamp time.Time `json:"timestamp"`
}
