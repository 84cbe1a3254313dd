package services

import (
	"guestbookdash/internal/cache"
)

// mutationPhase tracks the lifecycle of one in-flight optimistic
// mutation: speculative patches applied, network call pending, then
// either confirmed or rolled back.
type mutationPhase int

const (
	mutationPending mutationPhase = iota
	mutationConfirmed
	mutationRolledBack
)

// patch is one applied speculative change together with its precise
// inverse and the cache epoch observed when it was applied. Recording
// per-change inverses (rather than whole-collection snapshots) lets
// overlapping mutations on the same key compose in any order.
type patch struct {
	key     cache.Key
	epoch   uint64
	inverse func(any) any
}

// mutation is the Pending -> Confirmed | RolledBack record for one
// user action.
type mutation struct {
	phase   mutationPhase
	patches []patch
}

func newMutation() *mutation {
	return &mutation{phase: mutationPending}
}

// record remembers an applied speculative patch and its inverse.
func (m *mutation) record(key cache.Key, epoch uint64, inverse func(any) any) {
	m.patches = append(m.patches, patch{key: key, epoch: epoch, inverse: inverse})
}

// confirm marks the mutation as accepted by the server. The
// speculative patches stay in place until invalidation-triggered
// refetch replaces them with server truth.
func (m *mutation) confirm() {
	m.phase = mutationConfirmed
}

// rollback applies the recorded inverses in reverse order. Each
// inverse is epoch-guarded: if the key was invalidated or rewritten by
// a newer event since the patch was applied, the inverse is a no-op,
// so a stale rollback never clobbers fresher data.
func (m *mutation) rollback(store *cache.Store) {
	for i := len(m.patches) - 1; i >= 0; i-- {
		p := m.patches[i]
		store.CompareTransform(p.key, p.epoch, p.inverse)
	}
	m.phase = mutationRolledBack
}
