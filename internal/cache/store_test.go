package cache

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"guestbookdash/internal/domain"
)

func newTestStore() *Store {
	s := NewStore(nil)
	s.retryDelay = time.Millisecond
	return s
}

func TestReadMissingKey(t *testing.T) {
	s := newTestStore()
	_, _, ok := s.Read(Key("nope"))
	assert.False(t, ok)
}

func TestWriteThenRead(t *testing.T) {
	s := newTestStore()
	key := DetailsKey("ev-1")

	s.Write(key, "value")

	v, fresh, ok := s.Read(key)
	require.True(t, ok)
	assert.True(t, fresh)
	assert.Equal(t, "value", v)
}

func TestWriteNotifiesSubscribersAfterWrite(t *testing.T) {
	s := newTestStore()
	key := GuestsKey("ev-1")

	var got []string
	unsub := s.Subscribe(key, func(k Key) {
		v, _, _ := s.Read(k)
		got = append(got, v.(string))
	})
	defer unsub()

	s.Write(key, "first")
	s.Write(key, "second")

	// The callback observes the written value, not the prior one.
	assert.Equal(t, []string{"first", "second"}, got)
}

func TestUnsubscribeStopsNotifications(t *testing.T) {
	s := newTestStore()
	key := GuestsKey("ev-1")

	calls := 0
	unsub := s.Subscribe(key, func(Key) { calls++ })
	s.Write(key, 1)
	unsub()
	s.Write(key, 2)

	assert.Equal(t, 1, calls)
}

func TestTransformAppliesOnlyToExistingEntries(t *testing.T) {
	s := newTestStore()
	key := GuestsKey("ev-1")

	_, applied := s.Transform(key, func(v any) any { return "x" })
	assert.False(t, applied, "transform on a missing entry must not create one")

	s.Write(key, 1)
	_, applied = s.Transform(key, func(v any) any { return v.(int) + 1 })
	require.True(t, applied)

	v, _, _ := s.Read(key)
	assert.Equal(t, 2, v)
}

func TestCompareTransformNoOpAfterInvalidate(t *testing.T) {
	s := newTestStore()
	key := GuestsKey("ev-1")
	s.Write(key, "base")

	epoch, applied := s.Transform(key, func(any) any { return "optimistic" })
	require.True(t, applied)

	// A newer event supersedes the optimistic write.
	s.Invalidate(key)

	rolledBack := s.CompareTransform(key, epoch, func(any) any { return "base" })
	assert.False(t, rolledBack, "rollback after invalidation must be a no-op")

	v, _, _ := s.Read(key)
	assert.Equal(t, "optimistic", v)
}

func TestCompareTransformAppliesWhileEpochCurrent(t *testing.T) {
	s := newTestStore()
	key := GuestsKey("ev-1")
	s.Write(key, "base")

	epoch, _ := s.Transform(key, func(any) any { return "optimistic" })
	require.True(t, s.CompareTransform(key, epoch, func(any) any { return "base" }))

	v, _, _ := s.Read(key)
	assert.Equal(t, "base", v)
}

func TestWriteFuncSupersedesRecordedEpochs(t *testing.T) {
	s := newTestStore()
	key := GuestsKey("ev-1")
	s.Write(key, "base")

	epoch, applied := s.Transform(key, func(any) any { return "optimistic" })
	require.True(t, applied)

	require.True(t, s.WriteFunc(key, func(any) any { return "authoritative" }))

	rolledBack := s.CompareTransform(key, epoch, func(any) any { return "base" })
	assert.False(t, rolledBack, "rollback after an authoritative write must be a no-op")

	v, fresh, _ := s.Read(key)
	assert.Equal(t, "authoritative", v)
	assert.True(t, fresh)
}

func TestWriteFuncIgnoresMissingEntries(t *testing.T) {
	s := newTestStore()
	assert.False(t, s.WriteFunc(Key("nope"), func(v any) any { return v }))
	_, _, ok := s.Read(Key("nope"))
	assert.False(t, ok)
}

func TestInvalidateMarksStale(t *testing.T) {
	s := newTestStore()
	key := DetailsKey("ev-1")
	s.Write(key, "value")

	s.Invalidate(key)

	v, fresh, ok := s.Read(key)
	require.True(t, ok)
	assert.False(t, fresh)
	assert.Equal(t, "value", v, "stale reads still see the last value")
}

func TestInvalidateWithoutSubscriberDoesNotFetch(t *testing.T) {
	s := newTestStore()
	key := DetailsKey("ev-1")

	var calls atomic.Int32
	s.Register(key, func(context.Context) (any, error) {
		calls.Add(1)
		return "fetched", nil
	})

	s.Invalidate(key)
	time.Sleep(20 * time.Millisecond)
	assert.Zero(t, calls.Load())
}

func TestInvalidateTriggersRefetchForSubscribedKey(t *testing.T) {
	s := newTestStore()
	key := DetailsKey("ev-1")

	s.Register(key, func(context.Context) (any, error) {
		return "fetched", nil
	})
	unsub := s.Subscribe(key, func(Key) {})
	defer unsub()

	s.Invalidate(key)

	require.Eventually(t, func() bool {
		v, fresh, ok := s.Read(key)
		return ok && fresh && v == "fetched"
	}, time.Second, time.Millisecond)
}

func TestConcurrentInvalidatesCoalesce(t *testing.T) {
	s := newTestStore()
	key := DetailsKey("ev-1")

	var calls atomic.Int32
	gate := make(chan struct{})
	s.Register(key, func(context.Context) (any, error) {
		calls.Add(1)
		<-gate
		return "fetched", nil
	})
	unsub := s.Subscribe(key, func(Key) {})
	defer unsub()

	s.Invalidate(key)
	require.Eventually(t, func() bool { return calls.Load() == 1 }, time.Second, time.Millisecond)

	// Invalidates while the fetch is in flight must not start a
	// duplicate concurrent call; they coalesce into one follow-up
	// fetch after the in-flight one completes.
	s.Invalidate(key)
	s.Invalidate(key)
	assert.Equal(t, int32(1), calls.Load())
	close(gate)

	require.Eventually(t, func() bool {
		_, fresh, ok := s.Read(key)
		return ok && fresh
	}, time.Second, time.Millisecond)
	assert.Equal(t, int32(2), calls.Load())
}

func TestRefetchAbandonedAfterThreeFailures(t *testing.T) {
	s := newTestStore()
	key := DetailsKey("ev-1")

	var calls atomic.Int32
	s.Register(key, func(context.Context) (any, error) {
		calls.Add(1)
		return nil, errors.New("backend down")
	})
	unsub := s.Subscribe(key, func(Key) {})
	defer unsub()

	s.Invalidate(key)

	require.Eventually(t, func() bool { return calls.Load() == 3 }, time.Second, time.Millisecond)
	time.Sleep(20 * time.Millisecond)
	assert.Equal(t, int32(3), calls.Load())

	// The key is fetchable again afterwards.
	s.Invalidate(key)
	require.Eventually(t, func() bool { return calls.Load() > 3 }, time.Second, time.Millisecond)
}

func TestNotFoundIsNeverRetried(t *testing.T) {
	s := newTestStore()
	key := DetailsKey("ev-gone")

	var calls atomic.Int32
	s.Register(key, func(context.Context) (any, error) {
		calls.Add(1)
		return nil, domain.ErrNotFound
	})
	unsub := s.Subscribe(key, func(Key) {})
	defer unsub()

	s.Invalidate(key)

	time.Sleep(30 * time.Millisecond)
	assert.Equal(t, int32(1), calls.Load())
}

func TestKeysAreParameterizedByEvent(t *testing.T) {
	assert.NotEqual(t, DetailsKey("a"), DetailsKey("b"))
	assert.NotEqual(t, DetailsKey("a"), GuestsKey("a"))

	s := newTestStore()
	s.Write(DetailsKey("a"), "for-a")
	_, _, ok := s.Read(DetailsKey("b"))
	assert.False(t, ok)
}

func TestConcurrentWritesAreSerialized(t *testing.T) {
	s := newTestStore()
	key := GuestsKey("ev-1")
	s.Write(key, 0)

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			s.Transform(key, func(v any) any { return v.(int) + 1 })
		}()
	}
	wg.Wait()

	v, _, _ := s.Read(key)
	assert.Equal(t, 50, v)
}
