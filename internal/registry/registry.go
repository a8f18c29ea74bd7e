// Package registry tracks the set of node ids the engine manages and
// decides when that set has drifted enough to require a migration: a
// version bump plus a full on-disk rewrite, cache flush, and delta log
// reset.
package registry

import "sort"

// Registry is the current, authoritative node-id set plus its version.
// The version is persisted in both base.bin's header and delta.bin's
// header (low 16 bits) so a reader can detect a stale delta log.
type Registry struct {
	ids     []uint64
	version uint32
}

// New wraps an already sorted, deduplicated id slice. Callers that aren't
// sure their input is sorted/deduplicated should go through Dedup first.
func New(ids []uint64, version uint32) *Registry {
	return &Registry{ids: ids, version: version}
}

// Empty returns a fresh, versionless registry with no nodes.
func Empty() *Registry {
	return &Registry{ids: nil, version: 0}
}

// IDs returns the registry's node ids in ascending order. The returned
// slice is owned by the registry and must not be mutated by the caller.
func (r *Registry) IDs() []uint64 { return r.ids }

// Version returns the registry's migration version.
func (r *Registry) Version() uint32 { return r.version }

// Len returns the number of tracked nodes.
func (r *Registry) Len() int { return len(r.ids) }

// Contains reports whether id is tracked, via binary search over the
// sorted id slice.
func (r *Registry) Contains(id uint64) bool {
	i := sort.Search(len(r.ids), func(i int) bool { return r.ids[i] >= id })
	return i < len(r.ids) && r.ids[i] == id
}

// Dedup sorts ids ascending and removes duplicates in place, returning the
// deduplicated slice.
func Dedup(ids []uint64) []uint64 {
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	out := ids[:0]
	var last uint64
	haveLast := false
	for _, id := range ids {
		if haveLast && id == last {
			continue
		}
		out = append(out, id)
		last, haveLast = id, true
	}
	return out
}

// NeedsMigration compares candidate (sorted and deduplicated by Dedup
// first) against the registry's current id set, short-circuiting on the
// first difference: a length mismatch, or any index whose id doesn't
// match. Equal sets need no migration regardless of how the caller
// assembled candidate — this mirrors ensure_innate_registry's fast path
// for "the innate set hasn't changed since last boot".
func (r *Registry) NeedsMigration(candidate []uint64) bool {
	if len(candidate) != len(r.ids) {
		return true
	}
	for i, id := range candidate {
		if id != r.ids[i] {
			return true
		}
	}
	return false
}

// Migrate returns a new Registry holding candidate (assumed sorted and
// deduplicated) at version+1. It does not touch disk; callers are
// responsible for driving the accompanying store rewrite, cache clear,
// and delta log reset that a migration requires.
func (r *Registry) Migrate(candidate []uint64) *Registry {
	return &Registry{ids: candidate, version: r.version + 1}
}
