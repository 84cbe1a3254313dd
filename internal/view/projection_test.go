package view

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"guestbookdash/internal/domain"
)

func TestFormatElapsed(t *testing.T) {
	base := time.Date(2026, 8, 28, 10, 0, 0, 0, time.UTC)

	tests := []struct {
		name string
		end  time.Time
		want string
	}{
		{"seconds only", base.Add(12 * time.Second), "12s"},
		{"zero", base, "0s"},
		{"minutes and seconds", base.Add(5*time.Minute + 3*time.Second), "5m 3s"},
		{"whole minutes keep seconds", base.Add(2 * time.Minute), "2m 0s"},
		{"hours carry lower units", base.Add(3*time.Hour + 7*time.Minute + 9*time.Second), "3h 7m 9s"},
		{"hours with zero minutes", base.Add(time.Hour), "1h 0m 0s"},
		{"start in the future", base.Add(-time.Second), NotStarted},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, FormatElapsed(base, tt.end))
		})
	}
}

func TestBuildActiveEvent(t *testing.T) {
	started := time.Date(2026, 8, 28, 10, 0, 0, 0, time.UTC)
	now := started.Add(90 * time.Second)
	guests := []domain.Guest{
		{ID: "g-1", Name: "Ana", Gender: domain.GenderFemale, CreatedAt: started.Add(time.Minute)},
		{ID: "g-2", Name: "Bo", Gender: domain.GenderMale, CreatedAt: started.Add(80 * time.Second)},
	}
	details := domain.EventDetails{
		Event:     domain.Event{Name: "Launch Party", Status: domain.StatusActive, StartedAt: started},
		Analytics: domain.ComputeAnalytics(guests, now),
	}

	dv := Build(details, guests, now)

	assert.Equal(t, "Launch Party", dv.EventName)
	assert.Equal(t, "Event Running", dv.StatusLabel)
	assert.False(t, dv.Completed)
	assert.Equal(t, "1m 30s", dv.Elapsed)
	assert.Equal(t, 2, dv.Total)
	assert.Equal(t, 1, dv.Male)
	assert.Equal(t, 1, dv.Female)
	require.Len(t, dv.Guests, 2)
	assert.Equal(t, "Ana", dv.Guests[0].Name, "rows keep insertion order")
	assert.Equal(t, "Bo", dv.Guests[1].Name)
}

func TestBuildCompletedEventFreezesElapsed(t *testing.T) {
	started := time.Date(2026, 8, 28, 10, 0, 0, 0, time.UTC)
	completed := started.Add(2 * time.Hour)
	details := domain.EventDetails{
		Event: domain.Event{
			Name:        "Launch Party",
			Status:      domain.StatusCompleted,
			StartedAt:   started,
			CompletedAt: &completed,
		},
	}

	// Elapsed is measured to completedAt, not to now.
	dv := Build(details, nil, completed.Add(time.Hour))

	assert.Equal(t, "Event Completed", dv.StatusLabel)
	assert.True(t, dv.Completed)
	assert.Equal(t, "2h 0m 0s", dv.Elapsed)
}

func TestBuildIsReferentiallyStable(t *testing.T) {
	started := time.Date(2026, 8, 28, 10, 0, 0, 0, time.UTC)
	now := started.Add(time.Minute)
	guests := []domain.Guest{{ID: "g-1", Name: "Ana", Gender: domain.GenderFemale, CreatedAt: started}}
	details := domain.EventDetails{
		Event:     domain.Event{Name: "Launch Party", Status: domain.StatusActive, StartedAt: started},
		Analytics: domain.ComputeAnalytics(guests, now),
	}

	first := Build(details, guests, now)
	second := Build(details, guests, now)
	assert.Equal(t, first, second)
}
