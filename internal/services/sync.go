// Package services contains the synchronization core: the rules that
// tie the transport client, cache store, and push channel together so
// that the locally cached event view stays consistent across
// optimistic mutations, server responses, and push notifications.
package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"guestbookdash/internal/cache"
	"guestbookdash/internal/domain"
	"guestbookdash/internal/export"
)

// speculativeIDPrefix marks locally synthesized guest ids. The backend
// has never seen such an id; deletes targeting one must not reach it.
const speculativeIDPrefix = "pending-"

// pendingAdd tracks one in-flight guest creation so a delete arriving
// before it resolves can be deferred to the server-confirmed id.
type pendingAdd struct {
	deleteRequested bool
}

// SyncService owns the per-trigger cache rules. Every mutation follows
// the same three-phase protocol: apply an inverse-recorded speculative
// patch, await the network result, then either confirm and invalidate
// or apply the recorded inverse.
type SyncService struct {
	api     domain.EventAPI
	store   *cache.Store
	channel domain.PushChannel
	logger  *slog.Logger
	timeout time.Duration

	// injectable for tests
	now   func() time.Time
	newID func() string

	mu      sync.Mutex
	watched string
	pending map[string]*pendingAdd
}

func NewSyncService(api domain.EventAPI, store *cache.Store, channel domain.PushChannel, logger *slog.Logger, timeout time.Duration) *SyncService {
	if logger == nil {
		logger = slog.Default()
	}
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &SyncService{
		api:     api,
		store:   store,
		channel: channel,
		logger:  logger,
		timeout: timeout,
		now:     time.Now,
		newID:   uuid.NewString,
		pending: make(map[string]*pendingAdd),
	}
}

// WatchEvent registers the fetchers for one event's cache keys and
// opens the push subscription. A connect failure is returned but the
// dashboard keeps working through invalidation-triggered refetches.
func (s *SyncService) WatchEvent(ctx context.Context, eventID string) error {
	if eventID == "" {
		return domain.ErrInvalidInput
	}

	s.store.Register(cache.DetailsKey(eventID), func(ctx context.Context) (any, error) {
		ctx, cancel := context.WithTimeout(ctx, s.timeout)
		defer cancel()
		d, err := s.api.GetEventDetails(ctx, eventID)
		if err != nil {
			return nil, err
		}
		return *d, nil
	})
	s.store.Register(cache.GuestsKey(eventID), func(ctx context.Context) (any, error) {
		ctx, cancel := context.WithTimeout(ctx, s.timeout)
		defer cancel()
		return s.api.ListGuests(ctx, eventID)
	})

	s.mu.Lock()
	s.watched = eventID
	s.mu.Unlock()

	if s.channel == nil {
		return nil
	}
	if err := s.channel.Connect(ctx, eventID); err != nil {
		s.logger.Warn("push channel unavailable, falling back to refetch on invalidation", "event_id", eventID, "err", err)
		return err
	}
	return nil
}

// Unwatch tears down the push subscription. In-flight reconciliations
// for the abandoned event may still resolve; they only ever touch that
// event's keys.
func (s *SyncService) Unwatch() {
	s.mu.Lock()
	s.watched = ""
	s.mu.Unlock()
	if s.channel != nil {
		s.channel.Disconnect()
	}
}

func (s *SyncService) watchedEvent() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.watched
}

// CreateEvent has no optimistic step: no prior id exists. On success
// the all-events listing is marked stale.
func (s *SyncService) CreateEvent(ctx context.Context, name string) (*domain.Event, error) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	event, err := s.api.CreateEvent(ctx, name)
	if err != nil {
		return nil, fmt.Errorf("create event: %w", err)
	}
	s.store.Invalidate(cache.EventsKey())
	return event, nil
}

// AddGuest speculatively appends a guest with a locally synthesized id
// and timestamp to both the guest-list and event-details caches, then
// reconciles with the server response. A rejected guest is never left
// visible.
func (s *SyncService) AddGuest(ctx context.Context, eventID, name string, gender domain.Gender) (*domain.Guest, error) {
	name, err := domain.ValidateGuestInput(name, gender)
	if err != nil {
		return nil, err
	}
	if eventID == "" {
		return nil, domain.ErrInvalidInput
	}

	detailsKey := cache.DetailsKey(eventID)
	guestsKey := cache.GuestsKey(eventID)

	// A completed event rejects registrations before any network call.
	if v, _, ok := s.store.Read(detailsKey); ok {
		if d, ok := v.(domain.EventDetails); ok && d.Event.Status == domain.StatusCompleted {
			return nil, fmt.Errorf("%w: event already completed", domain.ErrInvalidInput)
		}
	}

	speculative := domain.Guest{
		ID:        speculativeIDPrefix + s.newID(),
		EventID:   eventID,
		Name:      name,
		Gender:    gender,
		CreatedAt: s.now().UTC(),
	}
	s.mu.Lock()
	s.pending[speculative.ID] = &pendingAdd{}
	s.mu.Unlock()

	m := newMutation()
	if epoch, applied := s.store.Transform(guestsKey, appendGuest(speculative)); applied {
		m.record(guestsKey, epoch, removeGuestByID(speculative.ID))
	}
	if epoch, applied := s.store.Transform(detailsKey, detailsAddGuest(speculative)); applied {
		m.record(detailsKey, epoch, detailsRemoveGuest(speculative.ID, true))
	}

	callCtx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()
	confirmed, err := s.api.CreateGuest(callCtx, eventID, name, gender)

	s.mu.Lock()
	p := s.pending[speculative.ID]
	delete(s.pending, speculative.ID)
	s.mu.Unlock()

	if err != nil {
		m.rollback(s.store)
		return nil, fmt.Errorf("add guest: %w", err)
	}

	if p != nil && p.deleteRequested {
		// The guest was deleted locally while the create was in flight.
		// Its speculative entries are already gone; issue the delete
		// against the confirmed id and reconcile both keys.
		delCtx, delCancel := context.WithTimeout(ctx, s.timeout)
		if err := s.api.DeleteGuest(delCtx, eventID, confirmed.ID); err != nil {
			s.logger.Warn("deferred guest delete failed, reconciling via refetch", "guest_id", confirmed.ID, "err", err)
		}
		delCancel()
		m.confirm()
		s.store.Invalidate(detailsKey)
		s.store.Invalidate(guestsKey)
		return confirmed, nil
	}

	// The speculative guest is superseded by the server-confirmed one,
	// then both keys go stale to force reconciliation.
	s.store.WriteFunc(guestsKey, replaceGuest(speculative.ID, *confirmed))
	s.store.WriteFunc(detailsKey, detailsReplaceGuest(speculative.ID, *confirmed))
	m.confirm()
	s.store.Invalidate(detailsKey)
	s.store.Invalidate(guestsKey)
	return confirmed, nil
}

// DeleteGuest speculatively removes the guest from both caches,
// retaining enough of the removed record to restore it verbatim on
// failure.
func (s *SyncService) DeleteGuest(ctx context.Context, eventID, guestID string) error {
	if eventID == "" || guestID == "" {
		return domain.ErrInvalidInput
	}
	if strings.HasPrefix(guestID, speculativeIDPrefix) {
		return s.deletePending(eventID, guestID)
	}

	detailsKey := cache.DetailsKey(eventID)
	guestsKey := cache.GuestsKey(eventID)

	m := newMutation()
	if v, _, ok := s.store.Read(guestsKey); ok {
		if guests, ok := v.([]domain.Guest); ok {
			for i, g := range guests {
				if g.ID == guestID {
					index, removed := i, g
					if epoch, applied := s.store.Transform(guestsKey, removeGuestByID(guestID)); applied {
						m.record(guestsKey, epoch, insertGuestAt(index, removed))
					}
					break
				}
			}
		}
	}
	if v, _, ok := s.store.Read(detailsKey); ok {
		if d, ok := v.(domain.EventDetails); ok {
			for i, g := range d.Event.Guests {
				if g.ID == guestID {
					index, removed := i, g
					if epoch, applied := s.store.Transform(detailsKey, detailsRemoveGuest(guestID, false)); applied {
						m.record(detailsKey, epoch, detailsRestoreGuest(index, removed))
					}
					break
				}
			}
		}
	}

	callCtx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()
	if err := s.api.DeleteGuest(callCtx, eventID, guestID); err != nil {
		m.rollback(s.store)
		return fmt.Errorf("delete guest: %w", err)
	}
	m.confirm()
	s.store.Invalidate(detailsKey)
	s.store.Invalidate(guestsKey)
	return nil
}

// deletePending removes a guest whose creation has not resolved yet.
// The backend has never seen the speculative id, so the delete is
// deferred: the local entries go away now and AddGuest issues the
// backend delete with the confirmed id once the create resolves. The
// cancelled add never existed, so nothing is recorded to roll back.
func (s *SyncService) deletePending(eventID, guestID string) error {
	s.mu.Lock()
	p, inflight := s.pending[guestID]
	if inflight {
		p.deleteRequested = true
	}
	s.mu.Unlock()
	if !inflight {
		return fmt.Errorf("delete guest: %w", domain.ErrNotFound)
	}
	s.store.Transform(cache.GuestsKey(eventID), removeGuestByID(guestID))
	s.store.Transform(cache.DetailsKey(eventID), detailsRemoveGuest(guestID, true))
	return nil
}

// CompleteEvent makes no optimistic guest changes. On success the
// cached status transitions to COMPLETED with the server-confirmed
// completion time, never a client-guessed one.
func (s *SyncService) CompleteEvent(ctx context.Context, eventID string) (*domain.CompletionSummary, error) {
	if eventID == "" {
		return nil, domain.ErrInvalidInput
	}
	callCtx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()
	summary, err := s.api.CompleteEvent(callCtx, eventID)
	if err != nil {
		return nil, fmt.Errorf("complete event: %w", err)
	}
	s.store.WriteFunc(cache.DetailsKey(eventID), detailsComplete(summary.CompletedAt))
	s.store.Invalidate(cache.DetailsKey(eventID))
	s.store.Invalidate(cache.GuestsKey(eventID))
	return summary, nil
}

// ResetGuests optimistically clears the guest sequence and zeroes
// every counter. The pre-reset values are retained until the operation
// resolves so a failure restores them exactly.
func (s *SyncService) ResetGuests(ctx context.Context, eventID string) error {
	if eventID == "" {
		return domain.ErrInvalidInput
	}

	detailsKey := cache.DetailsKey(eventID)
	guestsKey := cache.GuestsKey(eventID)

	m := newMutation()
	if v, _, ok := s.store.Read(guestsKey); ok {
		if guests, ok := v.([]domain.Guest); ok {
			saved := cloneGuests(guests)
			if epoch, applied := s.store.Transform(guestsKey, func(any) any { return []domain.Guest{} }); applied {
				m.record(guestsKey, epoch, restoreValue(saved))
			}
		}
	}
	if v, _, ok := s.store.Read(detailsKey); ok {
		if d, ok := v.(domain.EventDetails); ok {
			saved := cloneDetails(d)
			if epoch, applied := s.store.Transform(detailsKey, detailsClearGuests()); applied {
				m.record(detailsKey, epoch, restoreValue(saved))
			}
		}
	}

	callCtx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()
	if err := s.api.ResetGuests(callCtx, eventID); err != nil {
		m.rollback(s.store)
		return fmt.Errorf("reset guests: %w", err)
	}
	m.confirm()
	s.store.Invalidate(detailsKey)
	s.store.Invalidate(guestsKey)
	return nil
}

// ExportCSV fetches the guest export and reports the download
// filename. Only meaningful once the event is completed; the backend
// enforces that. If the backend is unreachable the export is assembled
// from the cached guest list instead.
func (s *SyncService) ExportCSV(ctx context.Context, eventID string) (filename string, data []byte, err error) {
	if eventID == "" {
		return "", nil, domain.ErrInvalidInput
	}
	callCtx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()
	data, err = s.api.ExportCSV(callCtx, eventID)
	if err != nil {
		if errors.Is(err, domain.ErrConnection) || errors.Is(err, domain.ErrTimeout) {
			if v, _, ok := s.store.Read(cache.GuestsKey(eventID)); ok {
				if guests, ok := v.([]domain.Guest); ok {
					local, buildErr := export.BuildCSV(guests)
					if buildErr == nil {
						s.logger.Warn("backend export unavailable, serving cached guests", "event_id", eventID, "err", err)
						return export.Filename(eventID), local, nil
					}
				}
			}
		}
		return "", nil, fmt.Errorf("export csv: %w", err)
	}
	return export.Filename(eventID), data, nil
}

// Health probes the backend.
func (s *SyncService) Health(ctx context.Context) (*domain.HealthStatus, error) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()
	return s.api.Health(ctx)
}

// Run consumes push notifications and connection-state transitions
// until ctx is cancelled. Every transition to connected re-fetches
// authoritative state, because notifications may have been missed
// while disconnected.
func (s *SyncService) Run(ctx context.Context) {
	if s.channel == nil {
		<-ctx.Done()
		return
	}
	for {
		select {
		case <-ctx.Done():
			return
		case n, ok := <-s.channel.Notifications():
			if !ok {
				return
			}
			s.HandleNotification(n)
		case state, ok := <-s.channel.States():
			if !ok {
				return
			}
			s.handleState(state)
		}
	}
}

func (s *SyncService) handleState(state domain.ConnState) {
	eventID := s.watchedEvent()
	s.logger.Debug("push channel state", "state", state.String(), "event_id", eventID)
	if state == domain.ConnConnected && eventID != "" {
		s.store.Invalidate(cache.DetailsKey(eventID))
		s.store.Invalidate(cache.GuestsKey(eventID))
	}
}

// HandleNotification applies one push notification to the cache. Push
// payloads are not guaranteed to carry the full updated entity, so
// guest and analytics changes invalidate instead of writing; only
// event_completed and guests_reset write directly.
func (s *SyncService) HandleNotification(n domain.Notification) {
	eventID := n.EventID
	if eventID == "" {
		eventID = s.watchedEvent()
	}
	if eventID == "" {
		return
	}
	detailsKey := cache.DetailsKey(eventID)
	guestsKey := cache.GuestsKey(eventID)

	switch n.Type {
	case domain.NotifyGuestAdded, domain.NotifyGuestRemoved:
		s.store.Invalidate(detailsKey)
		s.store.Invalidate(guestsKey)
	case domain.NotifyAnalyticsUpdate:
		s.store.Invalidate(detailsKey)
	case domain.NotifyEventCompleted:
		// The push may not carry the authoritative timestamp: write
		// client-observed time now, then invalidate to pick up the
		// server's value.
		s.store.WriteFunc(detailsKey, detailsComplete(s.now().UTC()))
		s.store.Invalidate(detailsKey)
	case domain.NotifyGuestsReset:
		// Authoritative writes: a rollback from a local mutation that
		// fails later must not restore state over the server's reset.
		s.store.WriteFunc(detailsKey, detailsClearGuests())
		s.store.WriteFunc(guestsKey, func(any) any { return []domain.Guest{} })
	default:
		s.logger.Warn("ignoring unknown push notification", "type", string(n.Type), "event_id", eventID)
	}
}
