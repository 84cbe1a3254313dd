package cache

// Key identifies a cached query result. Keys are parameterized by
// event id so that operations for different events never touch each
// other's entries.
type Key string

// EventsKey covers the "all events" listing.
func EventsKey() Key {
	return "events"
}

// DetailsKey covers the event + analytics bundle for one event.
func DetailsKey(eventID string) Key {
	return Key("events/details/" + eventID)
}

// GuestsKey covers the guest list for one event.
func GuestsKey(eventID string) Key {
	return Key("events/guests/" + eventID)
}
