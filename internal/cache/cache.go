// Package cache implements the hybrid pinned+LRU sender cache: a pinned
// map holding the hot set plus a bounded LRU for the warm tail, both
// governed by a RAM budget recomputed from live system memory.
//
// The bounded LRU itself is a generic, byte-sized structure:
// a container/list-backed LRU keyed by a generic comparable type with a
// caller-supplied size function, generalized here to hold a sender's
// base synapse list.
package cache

import (
	"container/list"
	"sort"

	"github.com/ragpdb/ragp/internal/codec"
	"github.com/ragpdb/ragp/internal/rmetrics"
	"github.com/ragpdb/ragp/internal/sysmem"
)

// Policy selects the cache's tiering behavior.
type Policy int

const (
	// PinnedLRU runs the full hybrid scheme: a scored pinned hot set plus
	// an LRU for everything else.
	PinnedLRU Policy = iota
	// LRUOnly leaves the pinned tier empty; the cache is observationally a
	// single bounded LRU.
	LRUOnly
)

// ParsePolicy maps the CACHE_POLICY environment value onto a Policy,
// defaulting to PinnedLRU for anything unrecognized.
func ParsePolicy(s string) Policy {
	if s == "lru" {
		return LRUOnly
	}
	return PinnedLRU
}

// nodeCacheBytes estimates one sender's cache footprint: 12 bytes per
// synapse record plus a fixed 64-byte overhead.
func nodeCacheBytes(n int) uint64 {
	return uint64(n)*codec.SynapseSize + 64
}

// Options configures a Cache's budget inputs.
type Options struct {
	Policy      Policy
	RAMFraction float32 // clamped to [0.01, 0.90]
	PinFraction float32 // clamped to [0.05, 0.90]
	MinBytes    uint64
	MaxBytes    uint64
	Sampler     sysmem.Sampler
	Metrics     *rmetrics.Metrics // may be nil
}

// Cache is the hybrid pinned+LRU sender cache.
type Cache struct {
	opts Options

	pinned    map[uint64][]codec.Synapse
	pinnedSet map[uint64]bool
	lru       *lru[uint64, []codec.Synapse]

	accessCount          map[uint64]uint32
	accessSinceRecompute uint32

	budgetBytes       uint64
	pinnedBudgetBytes uint64
	lruBudgetBytes    uint64
}

// New constructs an empty Cache. RefreshBudget should be called once
// before use so the budgets aren't all zero.
func New(opts Options) *Cache {
	if opts.RAMFraction < 0.01 {
		opts.RAMFraction = 0.01
	} else if opts.RAMFraction > 0.90 {
		opts.RAMFraction = 0.90
	}
	if opts.PinFraction < 0.05 {
		opts.PinFraction = 0.05
	} else if opts.PinFraction > 0.90 {
		opts.PinFraction = 0.90
	}
	if opts.MaxBytes < opts.MinBytes {
		opts.MaxBytes = opts.MinBytes
	}
	return &Cache{
		opts:        opts,
		pinned:      make(map[uint64][]codec.Synapse),
		pinnedSet:   make(map[uint64]bool),
		lru:         newLRU[uint64, []codec.Synapse](0, func(v []codec.Synapse) uint64 { return nodeCacheBytes(len(v)) }),
		accessCount: make(map[uint64]uint32),
	}
}

// GetOrLoad returns sender's base synapse list, consulting the pinned tier
// then the LRU then finally calling load (a disk read) on a miss. A
// freshly loaded list is inserted into pinned (if sender is in the pinned
// set) or the LRU, and the budget is enforced immediately after.
func (c *Cache) GetOrLoad(sender uint64, load func(uint64) []codec.Synapse) []codec.Synapse {
	if c.opts.Policy == PinnedLRU {
		if v, ok := c.pinned[sender]; ok {
			c.hit()
			return v
		}
	}
	if v, ok := c.lru.get(sender); ok {
		c.hit()
		return v
	}

	c.miss()
	loaded := load(sender)
	if c.opts.Policy == PinnedLRU && c.pinnedSet[sender] {
		c.pinned[sender] = loaded
	} else {
		c.lru.put(sender, loaded)
	}
	c.EnforceBudget()
	return loaded
}

func (c *Cache) hit() {
	if c.opts.Metrics != nil {
		c.opts.Metrics.CacheHits.Inc()
	}
}

func (c *Cache) miss() {
	if c.opts.Metrics != nil {
		c.opts.Metrics.CacheMisses.Inc()
	}
}

// Invalidate drops sender from both cache tiers.
func (c *Cache) Invalidate(sender uint64) {
	delete(c.pinned, sender)
	c.lru.remove(sender)
	c.EnforceBudget()
}

// Clear empties both tiers and the pinned set, and resets access counts.
// Used by init_node_pool, registry migration, and consolidation.
func (c *Cache) Clear() {
	c.pinned = make(map[uint64][]codec.Synapse)
	c.pinnedSet = make(map[uint64]bool)
	c.lru.clear()
	c.accessCount = make(map[uint64]uint32)
	c.accessSinceRecompute = 0
}

// RecordAccess bumps sender's access counter and reports whether the
// 500-access rescore interval has just been reached. Callers
// that get true back are expected to call RefreshBudget and Rescore.
func (c *Cache) RecordAccess(sender uint64) bool {
	c.accessCount[sender]++
	c.accessSinceRecompute++
	if c.accessSinceRecompute >= codec.CacheRescoreAccesses {
		c.accessSinceRecompute = 0
		return true
	}
	return false
}

// RefreshBudget samples available system memory and recomputes the
// pinned/LRU byte budgets, then enforces them immediately.
func (c *Cache) RefreshBudget() {
	available, err := c.opts.Sampler.AvailableBytes()
	if err != nil {
		available = 0
	}
	target := uint64(float64(available) * float64(c.opts.RAMFraction))
	if target < c.opts.MinBytes {
		target = c.opts.MinBytes
	}
	if target > c.opts.MaxBytes {
		target = c.opts.MaxBytes
	}
	c.budgetBytes = target

	if c.opts.Policy == PinnedLRU {
		c.pinnedBudgetBytes = uint64(float64(target) * float64(c.opts.PinFraction))
		c.lruBudgetBytes = target - c.pinnedBudgetBytes
	} else {
		c.pinnedBudgetBytes = 0
		c.lruBudgetBytes = target
	}
	c.EnforceBudget()
}

// BudgetBytes returns the combined cache byte budget.
func (c *Cache) BudgetBytes() uint64 { return c.budgetBytes }

// BytesEst returns the current estimated cache footprint across both
// tiers (spec testable property 9: this must never exceed BudgetBytes
// after EnforceBudget returns).
func (c *Cache) BytesEst() uint64 {
	return c.pinnedBytesEst() + c.lru.bytesEst()
}

func (c *Cache) pinnedBytesEst() uint64 {
	var total uint64
	for _, v := range c.pinned {
		total += nodeCacheBytes(len(v))
	}
	return total
}

// lowestScoredPinned returns the pinned sender with the lowest pin score,
// or false if the pinned tier is empty.
func (c *Cache) lowestScoredPinned() (uint64, bool) {
	maxAccess := c.maxAccessCount()
	var (
		worst      uint64
		worstScore float32
		found      bool
	)
	for sender, synapses := range c.pinned {
		score := pinScore(sender, synapses, c.accessCount[sender], maxAccess)
		if !found || score < worstScore {
			worst, worstScore, found = sender, score, true
		}
	}
	return worst, found
}

func (c *Cache) maxAccessCount() uint32 {
	var max uint32
	for _, n := range c.accessCount {
		if n > max {
			max = n
		}
	}
	if max == 0 {
		return 1
	}
	return max
}

// pinScore computes score = 0.6*max(weight in S) + 0.4*(access/max_access).
func pinScore(_ uint64, synapses []codec.Synapse, access uint32, maxAccess uint32) float32 {
	var maxWeight float32
	for _, s := range synapses {
		if s.Weight > maxWeight {
			maxWeight = s.Weight
		}
	}
	var accessNorm float32
	if maxAccess > 0 {
		accessNorm = float32(access) / float32(maxAccess)
	}
	return 0.6*maxWeight + 0.4*accessNorm
}

// EnforceBudget evicts from the LRU until under its budget, then from the
// pinned tier by lowest score, then from whichever tier still exceeds the
// combined budget, in three distinct phases.
func (c *Cache) EnforceBudget() {
	for c.lru.bytesEst() > c.lruBudgetBytes {
		if !c.lru.evictOldest() {
			break
		}
		c.evicted()
	}

	if c.opts.Policy == PinnedLRU {
		for c.pinnedBytesEst() > c.pinnedBudgetBytes {
			victim, ok := c.lowestScoredPinned()
			if !ok {
				break
			}
			delete(c.pinned, victim)
			delete(c.pinnedSet, victim)
			c.evicted()
		}
	}

	for c.BytesEst() > c.budgetBytes {
		if c.lru.evictOldest() {
			c.evicted()
			continue
		}
		victim, ok := c.lowestScoredPinned()
		if !ok {
			break
		}
		delete(c.pinned, victim)
		delete(c.pinnedSet, victim)
		c.evicted()
	}
}

func (c *Cache) evicted() {
	if c.opts.Metrics != nil {
		c.opts.Metrics.EvictTotal.Inc()
	}
}

// Rescore recomputes the pinned set from scratch: every id in nodeIDs is
// scored (loading its synapse list from whichever tier currently holds it,
// or from disk via load), the highest scorers are greedily packed into the
// new pinned set within pinnedBudgetBytes (a single oversized top scorer
// is allowed to sit alone), old-pinned senders that fell out are demoted
// to the LRU, and new-pinned senders are promoted — warmed from disk only
// when eagerWarm is true. Exactly the procedure in spec §4.3.
func (c *Cache) Rescore(nodeIDs []uint64, load func(uint64) []codec.Synapse, eagerWarm bool) {
	if c.opts.Metrics != nil {
		c.opts.Metrics.RescoreTotal.Inc()
	}
	if c.opts.Policy != PinnedLRU {
		c.pinnedSet = make(map[uint64]bool)
		c.pinned = make(map[uint64][]codec.Synapse)
		c.EnforceBudget()
		return
	}

	maxAccess := c.maxAccessCount()
	type scored struct {
		id    uint64
		score float32
		bytes uint64
	}
	rows := make([]scored, 0, len(nodeIDs))
	for _, id := range nodeIDs {
		var synapses []codec.Synapse
		if v, ok := c.pinned[id]; ok {
			synapses = v
		} else if v, ok := c.lru.get(id); ok {
			synapses = v
		} else {
			synapses = load(id)
		}
		rows = append(rows, scored{id: id, score: pinScore(id, synapses, c.accessCount[id], maxAccess), bytes: nodeCacheBytes(len(synapses))})
	}
	sort.SliceStable(rows, func(i, j int) bool { return rows[i].score > rows[j].score })

	newPinned := make(map[uint64]bool)
	var used uint64
	for _, r := range rows {
		next := used + r.bytes
		switch {
		case len(newPinned) == 0 && r.bytes > c.pinnedBudgetBytes:
			newPinned[r.id] = true
			used = r.bytes
		case next <= c.pinnedBudgetBytes:
			newPinned[r.id] = true
			used = next
		}
	}
	c.pinnedSet = newPinned

	for id, v := range c.pinned {
		if !newPinned[id] {
			c.lru.put(id, v)
			delete(c.pinned, id)
		}
	}
	for id := range newPinned {
		if _, ok := c.pinned[id]; ok {
			continue
		}
		if v, ok := c.lru.get(id); ok {
			c.pinned[id] = v
			c.lru.remove(id)
			continue
		}
		if eagerWarm {
			c.pinned[id] = load(id)
		}
	}

	c.EnforceBudget()
}

// PinnedCount and LRUCount expose tier sizes for status reporting.
func (c *Cache) PinnedCount() int { return len(c.pinned) }
func (c *Cache) LRUCount() int    { return c.lru.len() }

// ---- generic bytes-capped LRU ----

type lruEntry[K comparable, V any] struct {
	key   K
	value V
}

type lru[K comparable, V any] struct {
	ll       *list.List
	entries  map[K]*list.Element
	curBytes uint64
	capBytes uint64
	sizeOf   func(V) uint64
}

func newLRU[K comparable, V any](capBytes uint64, sizeOf func(V) uint64) *lru[K, V] {
	return &lru[K, V]{
		ll:       list.New(),
		entries:  make(map[K]*list.Element),
		capBytes: capBytes,
		sizeOf:   sizeOf,
	}
}

func (l *lru[K, V]) get(k K) (V, bool) {
	if el, ok := l.entries[k]; ok {
		l.ll.MoveToFront(el)
		return el.Value.(lruEntry[K, V]).value, true
	}
	var zero V
	return zero, false
}

func (l *lru[K, V]) put(k K, v V) {
	if el, ok := l.entries[k]; ok {
		old := el.Value.(lruEntry[K, V])
		l.curBytes -= l.sizeOf(old.value)
		el.Value = lruEntry[K, V]{key: k, value: v}
		l.curBytes += l.sizeOf(v)
		l.ll.MoveToFront(el)
		return
	}
	el := l.ll.PushFront(lruEntry[K, V]{key: k, value: v})
	l.entries[k] = el
	l.curBytes += l.sizeOf(v)
}

func (l *lru[K, V]) remove(k K) {
	if el, ok := l.entries[k]; ok {
		l.curBytes -= l.sizeOf(el.Value.(lruEntry[K, V]).value)
		delete(l.entries, k)
		l.ll.Remove(el)
	}
}

func (l *lru[K, V]) evictOldest() bool {
	el := l.ll.Back()
	if el == nil {
		return false
	}
	en := el.Value.(lruEntry[K, V])
	delete(l.entries, en.key)
	l.curBytes -= l.sizeOf(en.value)
	l.ll.Remove(el)
	return true
}

func (l *lru[K, V]) bytesEst() uint64 { return l.curBytes }
func (l *lru[K, V]) len() int         { return l.ll.Len() }
func (l *lru[K, V]) clear() {
	l.ll = list.New()
	l.entries = make(map[K]*list.Element)
	l.curBytes = 0
}
