// Package cache provides the keyed query store shared by the
// synchronization core and the view layer. All mutation of cached data
// goes through Read/Write/Transform/Invalidate; nothing else touches
// entries.
package cache

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"guestbookdash/internal/domain"
)

// maxRefetchFailures is the consecutive-failure cap after which a
// background refetch is abandoned. A not-found aborts immediately and
// is never retried.
const maxRefetchFailures = 3

// FetchFunc loads the authoritative value for a key.
type FetchFunc func(ctx context.Context) (any, error)

// entry is one cached result. epoch advances on every authoritative
// change (Write, Invalidate); optimistic transforms leave it alone so
// that a later rollback can detect it has been superseded.
type entry struct {
	value    any
	has      bool
	stale    bool
	epoch    uint64
	fetching bool
	rerun    bool
	failures int
}

// Store is the process-wide query cache. Constructed once at
// application start and passed explicitly to its consumers.
type Store struct {
	mu       sync.Mutex
	entries  map[Key]*entry
	fetchers map[Key]FetchFunc
	subs     map[Key]map[int]func(Key)
	nextSub  int
	logger   *slog.Logger

	retryDelay time.Duration
}

func NewStore(logger *slog.Logger) *Store {
	if logger == nil {
		logger = slog.Default()
	}
	return &Store{
		entries:    make(map[Key]*entry),
		fetchers:   make(map[Key]FetchFunc),
		subs:       make(map[Key]map[int]func(Key)),
		logger:     logger,
		retryDelay: 250 * time.Millisecond,
	}
}

// Register installs the fetcher used by invalidation-triggered
// refetches of key.
func (s *Store) Register(key Key, fetch FetchFunc) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.fetchers[key] = fetch
}

// Subscribe registers fn to run after every change to key. The
// returned function removes the subscription.
func (s *Store) Subscribe(key Key, fn func(Key)) (unsubscribe func()) {
	s.mu.Lock()
	defer s.mu.Unlock()
	id := s.nextSub
	s.nextSub++
	set, ok := s.subs[key]
	if !ok {
		set = make(map[int]func(Key))
		s.subs[key] = set
	}
	set[id] = fn
	return func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		if set, ok := s.subs[key]; ok {
			delete(set, id)
			if len(set) == 0 {
				delete(s.subs, key)
			}
		}
	}
}

// Read returns the last cached value and whether it is fresh. It never
// blocks on a fetch.
func (s *Store) Read(key Key) (value any, fresh bool, ok bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, exists := s.entries[key]
	if !exists || !e.has {
		return nil, false, false
	}
	return e.value, !e.stale, true
}

// Write stores an authoritative value: the entry becomes fresh, its
// epoch advances, and subscribers are notified after the write.
func (s *Store) Write(key Key, value any) {
	s.mu.Lock()
	e := s.ensure(key)
	e.value = value
	e.has = true
	e.stale = false
	e.epoch++
	e.failures = 0
	notify := s.subscribers(key)
	s.mu.Unlock()
	for _, fn := range notify {
		fn(key)
	}
}

// Transform applies a pure function to the cached value as an
// optimistic write. It reports the epoch observed at apply time, which
// the caller passes back to CompareTransform to roll back. Missing
// entries are left untouched.
func (s *Store) Transform(key Key, f func(any) any) (epoch uint64, applied bool) {
	s.mu.Lock()
	e, exists := s.entries[key]
	if !exists || !e.has {
		s.mu.Unlock()
		return 0, false
	}
	e.value = f(e.value)
	epoch = e.epoch
	notify := s.subscribers(key)
	s.mu.Unlock()
	for _, fn := range notify {
		fn(key)
	}
	return epoch, true
}

// WriteFunc applies f to the cached value as an authoritative write:
// like Write it advances the epoch and marks the entry fresh, so
// rollbacks recorded against earlier epochs become no-ops. Missing
// entries are left untouched.
func (s *Store) WriteFunc(key Key, f func(any) any) bool {
	s.mu.Lock()
	e, exists := s.entries[key]
	if !exists || !e.has {
		s.mu.Unlock()
		return false
	}
	e.value = f(e.value)
	e.stale = false
	e.epoch++
	e.failures = 0
	notify := s.subscribers(key)
	s.mu.Unlock()
	for _, fn := range notify {
		fn(key)
	}
	return true
}

// CompareTransform applies f only while the entry's epoch still equals
// epoch. A rollback whose key was invalidated or rewritten by a newer
// event is therefore a no-op.
func (s *Store) CompareTransform(key Key, epoch uint64, f func(any) any) bool {
	s.mu.Lock()
	e, exists := s.entries[key]
	if !exists || !e.has || e.epoch != epoch {
		s.mu.Unlock()
		return false
	}
	e.value = f(e.value)
	notify := s.subscribers(key)
	s.mu.Unlock()
	for _, fn := range notify {
		fn(key)
	}
	return true
}

// Invalidate marks key stale and, when a fetcher is registered and a
// reader is subscribed, starts a background refetch. A second
// invalidate while a refetch is pending coalesces into the in-flight
// one.
func (s *Store) Invalidate(key Key) {
	s.mu.Lock()
	e := s.ensure(key)
	e.stale = true
	e.epoch++
	fetch, hasFetcher := s.fetchers[key]
	subscribed := len(s.subs[key]) > 0
	start := hasFetcher && subscribed && !e.fetching
	if start {
		e.fetching = true
		e.failures = 0
	} else if e.fetching {
		// Coalesce into the in-flight refetch: no duplicate call, but
		// one follow-up fetch once it completes, since the in-flight
		// result may predate this invalidation.
		e.rerun = true
	}
	s.mu.Unlock()
	if start {
		go s.refetch(key, fetch)
	}
}

// refetch drives one fetch cycle for key until success, a not-found,
// or the consecutive-failure cap.
func (s *Store) refetch(key Key, fetch FetchFunc) {
	for {
		value, err := fetch(context.Background())
		if err == nil {
			s.mu.Lock()
			e := s.ensure(key)
			e.value = value
			e.has = true
			e.stale = e.rerun
			e.epoch++
			e.failures = 0
			again := e.rerun
			e.rerun = false
			if !again {
				e.fetching = false
			}
			notify := s.subscribers(key)
			s.mu.Unlock()
			for _, fn := range notify {
				fn(key)
			}
			if again {
				continue
			}
			return
		}

		if errors.Is(err, domain.ErrNotFound) {
			s.logger.Warn("refetch aborted, not found", "key", string(key))
			s.finishFetch(key)
			return
		}

		s.mu.Lock()
		e := s.ensure(key)
		e.failures++
		failures := e.failures
		s.mu.Unlock()
		if failures >= maxRefetchFailures {
			s.logger.Error("refetch abandoned after repeated failures", "key", string(key), "failures", failures, "err", err)
			s.finishFetch(key)
			return
		}
		s.logger.Warn("refetch failed, retrying", "key", string(key), "attempt", failures, "err", err)
		time.Sleep(s.retryDelay)
	}
}

func (s *Store) finishFetch(key Key) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e := s.ensure(key)
	e.fetching = false
	e.rerun = false
}

// ensure returns the entry for key, creating it if needed. Caller must
// hold mu.
func (s *Store) ensure(key Key) *entry {
	e, ok := s.entries[key]
	if !ok {
		e = &entry{}
		s.entries[key] = e
	}
	return e
}

// subscribers snapshots the callbacks for key. Caller must hold mu;
// the callbacks are invoked after release.
func (s *Store) subscribers(key Key) []func(Key) {
	set := s.subs[key]
	if len(set) == 0 {
		return nil
	}
	out := make([]func(Key), 0, len(set))
	for _, fn := range set {
		out = append(out, fn)
	}
	return out
}
