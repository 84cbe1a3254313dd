package domain

import "time"

// HourlyBucket is one point of the 24-hour registration histogram.
// Hour is the bucket start, truncated to the hour in UTC.
type HourlyBucket struct {
	Hour  time.Time `json:"hour"`
	Count int       `json:"count"`
}

// AnalyticsSnapshot aggregates an event's guest set. When consistent
// with the guest set, Total = Male + Female = sum of hourly counts;
// optimistic updates may violate this transiently until the
// authoritative response or push notification arrives.
type AnalyticsSnapshot struct {
	Total  int            `json:"total"`
	Male   int            `json:"male"`
	Female int            `json:"female"`
	Hourly []HourlyBucket `json:"hourly"`
}

// Clone returns a deep copy. Cached snapshots are shared between
// readers, so every transform works on a copy.
func (a AnalyticsSnapshot) Clone() AnalyticsSnapshot {
	out := a
	out.Hourly = make([]HourlyBucket, len(a.Hourly))
	copy(out.Hourly, a.Hourly)
	return out
}

// Zeroed returns a copy with all counts reset to zero while keeping the
// hourly bucket timestamps. This is the shape written by both the
// optimistic reset path and the guests_reset push notification.
func (a AnalyticsSnapshot) Zeroed() AnalyticsSnapshot {
	out := a.Clone()
	out.Total = 0
	out.Male = 0
	out.Female = 0
	for i := range out.Hourly {
		out.Hourly[i].Count = 0
	}
	return out
}

// ComputeAnalytics derives a snapshot from a guest set over a 24-hour
// window ending at the hour containing now. Buckets are UTC hours.
func ComputeAnalytics(guests []Guest, now time.Time) AnalyticsSnapshot {
	end := now.UTC().Truncate(time.Hour)
	snap := AnalyticsSnapshot{Hourly: make([]HourlyBucket, 24)}
	for i := range snap.Hourly {
		snap.Hourly[i].Hour = end.Add(time.Duration(i-23) * time.Hour)
	}
	for _, g := range guests {
		snap.Total++
		switch g.Gender {
		case GenderMale:
			snap.Male++
		case GenderFemale:
			snap.Female++
		}
		h := g.CreatedAt.UTC().Truncate(time.Hour)
		for i := range snap.Hourly {
			if snap.Hourly[i].Hour.Equal(h) {
				snap.Hourly[i].Count++
				break
			}
		}
	}
	return snap
}
