// Package view derives display-ready fields from cached state. Pure:
// same cache contents produce the same output, no hidden state.
package view

import (
	"fmt"
	"time"

	"guestbookdash/internal/domain"
)

// NotStarted is reported when the event's start time is in the future.
const NotStarted = "Event not started"

// GuestRow is one display line of the guest table.
type GuestRow struct {
	Name         string
	Gender       domain.Gender
	RegisteredAt time.Time
}

// DashboardView is the display model for one event.
type DashboardView struct {
	EventName   string
	StatusLabel string
	Completed   bool
	Elapsed     string
	Total       int
	Male        int
	Female      int
	Guests      []GuestRow
	Hourly      []domain.HourlyBucket
}

// Build projects the cached event bundle and guest list into a
// DashboardView at the given instant.
func Build(details domain.EventDetails, guests []domain.Guest, now time.Time) DashboardView {
	event := details.Event
	completed := event.Status == domain.StatusCompleted

	end := now
	if completed && event.CompletedAt != nil {
		end = *event.CompletedAt
	}

	label := "Event Running"
	if completed {
		label = "Event Completed"
	}

	rows := make([]GuestRow, 0, len(guests))
	for _, g := range guests {
		rows = append(rows, GuestRow{Name: g.Name, Gender: g.Gender, RegisteredAt: g.CreatedAt})
	}

	hourly := make([]domain.HourlyBucket, len(details.Analytics.Hourly))
	copy(hourly, details.Analytics.Hourly)

	return DashboardView{
		EventName:   event.Name,
		StatusLabel: label,
		Completed:   completed,
		Elapsed:     FormatElapsed(event.StartedAt, end),
		Total:       details.Analytics.Total,
		Male:        details.Analytics.Male,
		Female:      details.Analytics.Female,
		Guests:      rows,
		Hourly:      hourly,
	}
}

// FormatElapsed renders the duration between start and end as
// "Xh Ym Zs", dropping zero-valued leading units. A start in the
// future reports NotStarted instead of a negative duration.
func FormatElapsed(start, end time.Time) string {
	diff := end.Sub(start)
	if diff < 0 {
		return NotStarted
	}
	hours := int(diff / time.Hour)
	minutes := int(diff % time.Hour / time.Minute)
	seconds := int(diff % time.Minute / time.Second)
	switch {
	case hours > 0:
		return fmt.Sprintf("%dh %dm %ds", hours, minutes, seconds)
	case minutes > 0:
		return fmt.Sprintf("%dm %ds", minutes, seconds)
	default:
		return fmt.Sprintf("%ds", seconds)
	}
}
