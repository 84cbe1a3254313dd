package services

import (
	"time"

	"guestbookdash/internal/domain"
)

// Cached values are shared between readers, so every transform copies
// before modifying. Guest lists are cached as []domain.Guest and the
// event+analytics bundle as domain.EventDetails.

func cloneGuests(guests []domain.Guest) []domain.Guest {
	out := make([]domain.Guest, len(guests))
	copy(out, guests)
	return out
}

func cloneDetails(d domain.EventDetails) domain.EventDetails {
	out := d
	out.Event.Guests = cloneGuests(d.Event.Guests)
	out.Analytics = d.Analytics.Clone()
	return out
}

// appendGuest adds g to the end of a cached guest list.
func appendGuest(g domain.Guest) func(any) any {
	return func(v any) any {
		guests, ok := v.([]domain.Guest)
		if !ok {
			return v
		}
		return append(cloneGuests(guests), g)
	}
}

// removeGuestByID drops the guest with the given id from a cached
// guest list. Exact inverse of appendGuest for a still-present guest.
func removeGuestByID(id string) func(any) any {
	return func(v any) any {
		guests, ok := v.([]domain.Guest)
		if !ok {
			return v
		}
		out := make([]domain.Guest, 0, len(guests))
		for _, g := range guests {
			if g.ID != id {
				out = append(out, g)
			}
		}
		return out
	}
}

// insertGuestAt restores a removed guest to its original position.
func insertGuestAt(index int, g domain.Guest) func(any) any {
	return func(v any) any {
		guests, ok := v.([]domain.Guest)
		if !ok {
			return v
		}
		if index < 0 || index > len(guests) {
			index = len(guests)
		}
		out := make([]domain.Guest, 0, len(guests)+1)
		out = append(out, guests[:index]...)
		out = append(out, g)
		out = append(out, guests[index:]...)
		return out
	}
}

// replaceGuest swaps the speculative guest for the server-confirmed
// one in the same conceptual slot.
func replaceGuest(pendingID string, confirmed domain.Guest) func(any) any {
	return func(v any) any {
		guests, ok := v.([]domain.Guest)
		if !ok {
			return v
		}
		out := cloneGuests(guests)
		for i := range out {
			if out[i].ID == pendingID {
				out[i] = confirmed
				return out
			}
		}
		return out
	}
}

// bumpHourly adjusts the bucket matching hour by delta. Hours compare
// as UTC bucket starts; a missing bucket is left alone (the
// invalidation path reconciles it).
func bumpHourly(a *domain.AnalyticsSnapshot, hour time.Time, delta int) {
	h := hour.UTC().Truncate(time.Hour)
	for i := range a.Hourly {
		if a.Hourly[i].Hour.Equal(h) {
			a.Hourly[i].Count += delta
			if a.Hourly[i].Count < 0 {
				a.Hourly[i].Count = 0
			}
			return
		}
	}
}

func bumpGender(a *domain.AnalyticsSnapshot, gender domain.Gender, delta int) {
	a.Total += delta
	switch gender {
	case domain.GenderMale:
		a.Male += delta
	case domain.GenderFemale:
		a.Female += delta
	}
	if a.Total < 0 {
		a.Total = 0
	}
	if a.Male < 0 {
		a.Male = 0
	}
	if a.Female < 0 {
		a.Female = 0
	}
}

// detailsAddGuest speculatively appends g to the embedded guest list
// and bumps total, the gender counter, and the hourly bucket of g's
// (client-synthesized) timestamp.
func detailsAddGuest(g domain.Guest) func(any) any {
	return func(v any) any {
		d, ok := v.(domain.EventDetails)
		if !ok {
			return v
		}
		out := cloneDetails(d)
		out.Event.Guests = append(out.Event.Guests, g)
		bumpGender(&out.Analytics, g.Gender, 1)
		bumpHourly(&out.Analytics, g.CreatedAt, 1)
		return out
	}
}

// detailsRemoveGuest is the exact inverse of detailsAddGuest when
// withHourly is true (failed-add rollback); with withHourly false it
// is the speculative delete, which only decrements total and gender
// (matching what a fetched snapshot would report after the delete is
// reconciled -- the hourly histogram keeps the registration).
func detailsRemoveGuest(id string, withHourly bool) func(any) any {
	return func(v any) any {
		d, ok := v.(domain.EventDetails)
		if !ok {
			return v
		}
		out := cloneDetails(d)
		idx := -1
		for i := range out.Event.Guests {
			if out.Event.Guests[i].ID == id {
				idx = i
				break
			}
		}
		if idx < 0 {
			return out
		}
		removed := out.Event.Guests[idx]
		out.Event.Guests = append(out.Event.Guests[:idx], out.Event.Guests[idx+1:]...)
		bumpGender(&out.Analytics, removed.Gender, -1)
		if withHourly {
			bumpHourly(&out.Analytics, removed.CreatedAt, -1)
		}
		return out
	}
}

// detailsRestoreGuest undoes a speculative delete: the retained record
// goes back to its original slot and total/gender counters recover.
func detailsRestoreGuest(index int, g domain.Guest) func(any) any {
	return func(v any) any {
		d, ok := v.(domain.EventDetails)
		if !ok {
			return v
		}
		out := cloneDetails(d)
		guests := out.Event.Guests
		if index < 0 || index > len(guests) {
			index = len(guests)
		}
		merged := make([]domain.Guest, 0, len(guests)+1)
		merged = append(merged, guests[:index]...)
		merged = append(merged, g)
		merged = append(merged, guests[index:]...)
		out.Event.Guests = merged
		bumpGender(&out.Analytics, g.Gender, 1)
		return out
	}
}

// detailsReplaceGuest swaps the speculative guest for the confirmed
// one inside the event bundle. Counters are untouched: they were
// already bumped speculatively and invalidation reconciles the rest.
func detailsReplaceGuest(pendingID string, confirmed domain.Guest) func(any) any {
	return func(v any) any {
		d, ok := v.(domain.EventDetails)
		if !ok {
			return v
		}
		out := cloneDetails(d)
		for i := range out.Event.Guests {
			if out.Event.Guests[i].ID == pendingID {
				out.Event.Guests[i] = confirmed
				break
			}
		}
		return out
	}
}

// detailsClearGuests is the zeroed shape shared by the optimistic
// reset and the guests_reset push notification: no guests, all
// counters and hourly buckets at zero.
func detailsClearGuests() func(any) any {
	return func(v any) any {
		d, ok := v.(domain.EventDetails)
		if !ok {
			return v
		}
		out := cloneDetails(d)
		out.Event.Guests = []domain.Guest{}
		out.Analytics = out.Analytics.Zeroed()
		return out
	}
}

// restoreValue is the reset inverse: the saved pre-reset value is
// restored verbatim.
func restoreValue(saved any) func(any) any {
	return func(any) any {
		return saved
	}
}

// detailsComplete marks the cached event completed at the given time.
// Used with the server-confirmed timestamp on mutation success and
// with client-observed time for the event_completed push.
func detailsComplete(completedAt time.Time) func(any) any {
	return func(v any) any {
		d, ok := v.(domain.EventDetails)
		if !ok {
			return v
		}
		out := cloneDetails(d)
		out.Event.Status = domain.StatusCompleted
		t := completedAt
		out.Event.CompletedAt = &t
		return out
	}
}
