package domain

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestComputeAnalytics(t *testing.T) {
	now := time.Date(2026, 8, 28, 15, 30, 0, 0, time.UTC)
	guests := []Guest{
		{ID: "g-1", Gender: GenderFemale, CreatedAt: now.Add(-10 * time.Minute)},
		{ID: "g-2", Gender: GenderMale, CreatedAt: now.Add(-2 * time.Hour)},
		{ID: "g-3", Gender: GenderFemale, CreatedAt: now.Add(-2 * time.Hour)},
	}

	snap := ComputeAnalytics(guests, now)

	assert.Equal(t, 3, snap.Total)
	assert.Equal(t, 1, snap.Male)
	assert.Equal(t, 2, snap.Female)
	require.Len(t, snap.Hourly, 24)

	sum := 0
	for _, b := range snap.Hourly {
		sum += b.Count
	}
	assert.Equal(t, snap.Total, sum)

	last := snap.Hourly[23]
	assert.True(t, last.Hour.Equal(time.Date(2026, 8, 28, 15, 0, 0, 0, time.UTC)))
	assert.Equal(t, 1, last.Count)
	assert.Equal(t, 2, snap.Hourly[21].Count, "both two-hour-old guests land in the same bucket")
}

func TestComputeAnalyticsIgnoresGuestsOutsideWindow(t *testing.T) {
	now := time.Date(2026, 8, 28, 15, 0, 0, 0, time.UTC)
	guests := []Guest{{ID: "g-old", Gender: GenderMale, CreatedAt: now.Add(-48 * time.Hour)}}

	snap := ComputeAnalytics(guests, now)

	// Counters include the guest; the histogram window does not.
	assert.Equal(t, 1, snap.Total)
	sum := 0
	for _, b := range snap.Hourly {
		sum += b.Count
	}
	assert.Zero(t, sum)
}

func TestZeroedKeepsBucketTimestamps(t *testing.T) {
	now := time.Date(2026, 8, 28, 15, 0, 0, 0, time.UTC)
	snap := ComputeAnalytics([]Guest{{Gender: GenderMale, CreatedAt: now}}, now)

	z := snap.Zeroed()

	assert.Zero(t, z.Total)
	assert.Zero(t, z.Male)
	assert.Zero(t, z.Female)
	require.Len(t, z.Hourly, 24)
	for i, b := range z.Hourly {
		assert.Zero(t, b.Count)
		assert.True(t, b.Hour.Equal(snap.Hourly[i].Hour))
	}
	// The original is untouched.
	assert.Equal(t, 1, snap.Total)
}

func TestCloneIsIndependent(t *testing.T) {
	now := time.Date(2026, 8, 28, 15, 0, 0, 0, time.UTC)
	snap := ComputeAnalytics([]Guest{{Gender: GenderMale, CreatedAt: now}}, now)

	c := snap.Clone()
	c.Hourly[23].Count = 99

	assert.Equal(t, 1, snap.Hourly[23].Count)
}

func TestValidateGuestInput(t *testing.T) {
	name, err := ValidateGuestInput("  Ana  ", GenderFemale)
	require.NoError(t, err)
	assert.Equal(t, "Ana", name)

	_, err = ValidateGuestInput("   ", GenderFemale)
	assert.ErrorIs(t, err, ErrInvalidInput)

	_, err = ValidateGuestInput("Ana", Gender("UNKNOWN"))
	assert.ErrorIs(t, err, ErrInvalidInput)
}

func TestAPIErrorMatchesNotFound(t *testing.T) {
	err := &APIError{StatusCode: 404, Message: "event not found"}
	assert.ErrorIs(t, err, ErrNotFound)

	err = &APIError{StatusCode: 500, Message: "boom"}
	assert.NotErrorIs(t, err, ErrNotFound)
}

func TestUserMessage(t *testing.T) {
	assert.Equal(t, "event not found", UserMessage(&APIError{StatusCode: 404, Message: "event not found"}))
	assert.Equal(t, "The request timed out", UserMessage(ErrTimeout))
	assert.Equal(t, "Invalid input", UserMessage(ErrInvalidInput))
}
