// Package ragp implements an embedded graph-memory engine: a chunked
// on-disk store for a directed weighted sparse graph, an append-only
// delta log overlaying it, a hybrid pinned+LRU sender cache, a sharded
// asynchronous activation-spreading runtime, and the consolidation
// procedure that folds the delta log back into the base.
//
// Its overall shape — a primary-thread-owned store plus an auxiliary
// concurrent component, wired together through a single constructor and
// a handful of top-level operations — follows the same pattern as
// DAG-based consensus engines, adapted onto a sparse weighted
// activation graph instead of a block DAG.
package ragp

import (
	"crypto/rand"
	"encoding/binary"
	"fmt"
	mrand "math/rand"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/ragpdb/ragp/engineconfig"
	"github.com/ragpdb/ragp/internal/async"
	"github.com/ragpdb/ragp/internal/cache"
	"github.com/ragpdb/ragp/internal/codec"
	"github.com/ragpdb/ragp/internal/delta"
	"github.com/ragpdb/ragp/internal/registry"
	"github.com/ragpdb/ragp/internal/rlog"
	"github.com/ragpdb/ragp/internal/rmetrics"
	"github.com/ragpdb/ragp/internal/store"
	"github.com/ragpdb/ragp/internal/sysmem"
)

type temporalEvent struct {
	node     uint64
	strength float32
}

// Engine is a single embedded graph-memory instance rooted at one storage
// directory. The zero value is not usable; construct with New.
type Engine struct {
	mu sync.Mutex

	dir   string
	store *store.Store
	delta *delta.Log
	cache *cache.Cache

	registry *registry.Registry
	nodes    map[uint64]codec.NodeRecord
	overlay  map[uint64]map[uint64]delta.Entry

	tick           uint32
	activation     map[uint64]float32
	temporalWindow []temporalEvent

	async *async.Runtime

	params  engineconfig.Parameters
	logger  rlog.Logger
	metrics *rmetrics.Metrics
	sampler sysmem.Sampler
	rng     *mrand.Rand
}

// cryptoSeed reads 8 bytes from crypto/rand to seed the engine's
// math/rand source unpredictably at construction when no explicit seed
// is supplied via WithRandSeed.
func cryptoSeed() int64 {
	var buf [8]byte
	if _, err := rand.Read(buf[:]); err != nil {
		return time.Now().UnixNano()
	}
	return int64(binary.LittleEndian.Uint64(buf[:]))
}

// New opens (or initializes) an engine rooted at dir, which must already
// exist. If base.bin is absent the engine starts with an empty registry;
// callers then call InitNodePool or EnsureInnateRegistry. If base.bin is
// present but predates the chunked format (no chunk files, non-chunk
// offsets), New migrates it into the chunked layout immediately (spec
// §4.1's legacy-compatibility path).
func New(dir string, opts ...Option) (*Engine, error) {
	settings := defaultSettings()
	for _, o := range opts {
		o(&settings)
	}
	if err := settings.params.Validate(); err != nil {
		return nil, fmt.Errorf("ragp: invalid parameters: %w", err)
	}

	st := store.New(dir)
	deltaLog := delta.New(filepath.Join(dir, "delta.bin"))

	e := &Engine{
		dir:        dir,
		store:      st,
		delta:      deltaLog,
		registry:   registry.Empty(),
		nodes:      make(map[uint64]codec.NodeRecord),
		overlay:    make(map[uint64]map[uint64]delta.Entry),
		activation: make(map[uint64]float32),
		params:     settings.params,
		logger:     settings.logger,
		metrics:    settings.metrics,
		sampler:    settings.sampler,
		rng:        newRand(settings),
	}

	e.cache = cache.New(cache.Options{
		Policy:      cache.ParsePolicy(e.params.CachePolicy),
		RAMFraction: float32(e.params.CacheRAMFrac),
		PinFraction: float32(e.params.CachePinFrac),
		MinBytes:    e.params.CacheRAMMinMB << 20,
		MaxBytes:    e.params.CacheRAMMaxMB << 20,
		Sampler:     e.sampler,
		Metrics:     e.metrics,
	})

	records, regVersion, present, err := st.LoadManifest()
	if err != nil {
		return nil, fmt.Errorf("ragp: load manifest: %w", err)
	}
	if present {
		ids := make([]uint64, 0, len(records))
		for _, rec := range records {
			e.nodes[rec.NodeID] = rec
			ids = append(ids, rec.NodeID)
		}
		sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
		e.registry = registry.New(ids, regVersion)

		if !st.HasChunkFiles() && hasLegacyOffsets(records) {
			if err := e.migrateLegacyLayout(records, regVersion); err != nil {
				return nil, fmt.Errorf("ragp: legacy migration: %w", err)
			}
		}

		overlay, maxTS, _ := delta.Load(deltaLog.Path(), regVersion, e.registry.Contains)
		for sender, recvs := range overlay {
			e.overlay[sender] = recvs
		}
		e.tick = maxTS
	}

	e.cache.RefreshBudget()
	e.cache.Rescore(e.registry.IDs(), e.loadBaseSynapses, true)

	return e, nil
}

func hasLegacyOffsets(records []codec.NodeRecord) bool {
	for _, r := range records {
		if r.Offset != codec.NoSynapses && !codec.IsChunkOffset(r.Offset) {
			return true
		}
	}
	return false
}

// migrateLegacyLayout reads every sender's synapses out of the monolithic
// legacy base.bin (addressed by absolute offset) and rewrites them into
// the chunked base+chunk-file layout, per spec §4.1.
func (e *Engine) migrateLegacyLayout(records []codec.NodeRecord, regVersion uint32) error {
	data := make([]store.SenderData, 0, len(records))
	for _, rec := range records {
		var synapses []codec.Synapse
		if rec.Offset != codec.NoSynapses {
			synapses = e.store.ReadSynapses(rec.Offset, rec.Count)
		}
		data = append(data, store.SenderData{NodeID: rec.NodeID, Threshold: rec.Threshold, Synapses: synapses})
	}
	newRecords, err := e.store.Rewrite(regVersion, data)
	if err != nil {
		return err
	}
	e.nodes = make(map[uint64]codec.NodeRecord, len(newRecords))
	for _, rec := range newRecords {
		e.nodes[rec.NodeID] = rec
	}
	return nil
}

func (e *Engine) loadBaseSynapses(sender uint64) []codec.Synapse {
	rec, ok := e.nodes[sender]
	if !ok || rec.Offset == codec.NoSynapses {
		return nil
	}
	return e.store.ReadSynapses(rec.Offset, rec.Count)
}

// InitNodePool replaces the entire graph with a fresh, edge-free registry
// over ids. Any existing base, chunk files, delta log, and cache contents
// are discarded.
func (e *Engine) InitNodePool(ids []uint64) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	deduped := registry.Dedup(append([]uint64(nil), ids...))
	data := make([]store.SenderData, 0, len(deduped))
	for _, id := range deduped {
		data = append(data, store.SenderData{NodeID: id, Threshold: codec.DefaultThreshold})
	}

	newVersion := e.params.RegistryVersion
	records, err := e.store.Rewrite(newVersion, data)
	if err != nil {
		return fmt.Errorf("ragp: init node pool: %w", err)
	}

	e.nodes = make(map[uint64]codec.NodeRecord, len(records))
	for _, rec := range records {
		e.nodes[rec.NodeID] = rec
	}
	e.registry = registry.New(deduped, newVersion)
	e.overlay = make(map[uint64]map[uint64]delta.Entry)
	e.tick = 0
	e.activation = make(map[uint64]float32)
	e.temporalWindow = nil

	if err := e.delta.Reset(newVersion); err != nil {
		return fmt.Errorf("ragp: init node pool: reset delta: %w", err)
	}

	e.cache.Clear()
	e.cache.RefreshBudget()
	e.cache.Rescore(e.registry.IDs(), e.loadBaseSynapses, true)

	if e.async != nil {
		e.rebuildAsyncSnapshotLocked()
	}
	return nil
}

// MigrationSummary reports the outcome of EnsureInnateRegistry.
type MigrationSummary struct {
	Migrated bool
	Added    int
	Removed  int
}

// EnsureInnateRegistry is the sort-dedup-compare-or-migrate entry point
// (spec §4.4). The very first call on an empty registry is treated as a
// plain InitNodePool: it reports Migrated=false, Added=0, Removed=0, the
// same special case the original's ensure_innate_registry carries.
func (e *Engine) EnsureInnateRegistry(ids []uint64) (MigrationSummary, error) {
	candidate := registry.Dedup(append([]uint64(nil), ids...))

	e.mu.Lock()
	empty := e.registry.Len() == 0
	needsMigration := e.registry.NeedsMigration(candidate) || e.registry.Version() != e.params.RegistryVersion
	e.mu.Unlock()

	if empty {
		if err := e.InitNodePool(candidate); err != nil {
			return MigrationSummary{}, err
		}
		return MigrationSummary{}, nil
	}
	if !needsMigration {
		return MigrationSummary{}, nil
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	return e.migrateLocked(candidate)
}

func (e *Engine) migrateLocked(candidate []uint64) (MigrationSummary, error) {
	oldIDs := e.registry.IDs()
	oldSet := make(map[uint64]bool, len(oldIDs))
	for _, id := range oldIDs {
		oldSet[id] = true
	}
	newSet := make(map[uint64]bool, len(candidate))
	for _, id := range candidate {
		newSet[id] = true
	}

	var added, removed int
	for _, id := range candidate {
		if !oldSet[id] {
			added++
		}
	}
	for _, id := range oldIDs {
		if !newSet[id] {
			removed++
		}
	}

	merged := make(map[uint64][]codec.Synapse, len(oldIDs))
	for _, sender := range oldIDs {
		merged[sender] = e.mergedConnectionsLocked(sender)
	}

	data := make([]store.SenderData, 0, len(candidate))
	for _, id := range candidate {
		var synapses []codec.Synapse
		if edges, ok := merged[id]; ok {
			for _, syn := range edges {
				if newSet[syn.ReceiverID] {
					synapses = append(synapses, syn)
				}
			}
			sort.SliceStable(synapses, func(i, j int) bool { return synapses[i].Weight > synapses[j].Weight })
		}
		data = append(data, store.SenderData{NodeID: id, Threshold: codec.DefaultThreshold, Synapses: synapses})
	}

	newVersion := e.params.RegistryVersion
	records, err := e.store.Rewrite(newVersion, data)
	if err != nil {
		return MigrationSummary{}, fmt.Errorf("ragp: migrate registry: %w", err)
	}

	e.nodes = make(map[uint64]codec.NodeRecord, len(records))
	for _, rec := range records {
		e.nodes[rec.NodeID] = rec
	}
	e.registry = registry.New(candidate, newVersion)
	e.overlay = make(map[uint64]map[uint64]delta.Entry)

	if err := e.delta.Reset(newVersion); err != nil {
		return MigrationSummary{}, fmt.Errorf("ragp: migrate registry: reset delta: %w", err)
	}

	e.cache.Clear()
	e.cache.RefreshBudget()
	e.cache.Rescore(e.registry.IDs(), e.loadBaseSynapses, true)

	if e.async != nil {
		e.rebuildAsyncSnapshotLocked()
	}

	return MigrationSummary{Migrated: true, Added: added, Removed: removed}, nil
}

// mergedConnectionsLocked returns sender's base synapses overlaid with
// its delta entries, deduplicated by receiver (delta wins). Each call
// counts as one cache access; every codec.CacheRescoreAccesses accesses
// the cache budget is refreshed and the pinned set rescored. Caller must
// hold e.mu.
func (e *Engine) mergedConnectionsLocked(sender uint64) []codec.Synapse {
	base := e.cache.GetOrLoad(sender, e.loadBaseSynapses)
	if e.cache.RecordAccess(sender) {
		e.cache.RefreshBudget()
		e.cache.Rescore(e.registry.IDs(), e.loadBaseSynapses, false)
	}
	recvOverlay := e.overlay[sender]
	if len(recvOverlay) == 0 {
		return append([]codec.Synapse(nil), base...)
	}

	out := make([]codec.Synapse, 0, len(base)+len(recvOverlay))
	seen := make(map[uint64]bool, len(base))
	for _, syn := range base {
		if entry, ok := recvOverlay[syn.ReceiverID]; ok {
			out = append(out, codec.Synapse{ReceiverID: syn.ReceiverID, Weight: entry.Weight})
		} else {
			out = append(out, syn)
		}
		seen[syn.ReceiverID] = true
	}
	for receiver, entry := range recvOverlay {
		if !seen[receiver] {
			out = append(out, codec.Synapse{ReceiverID: receiver, Weight: entry.Weight})
		}
	}
	return out
}

// GetConnections returns sender's current outgoing edges: the base
// synapse list overlaid with any live delta entries.
func (e *Engine) GetConnections(sender uint64) ([]codec.Synapse, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if !e.registry.Contains(sender) {
		return nil, unknownNode("sender", sender)
	}
	return e.mergedConnectionsLocked(sender), nil
}

func (e *Engine) edgeCountLocked(sender uint64) int {
	return len(e.mergedConnectionsLocked(sender))
}

// UpdateWeight sets the weight of edge sender->receiver, appending a
// delta entry, updating the in-memory overlay, invalidating the sender's
// cache line, and — if the async runtime is running — routing an
// UpdateEdge to the owner shard first (spec §4.6's update routing: a
// routing failure aborts before the delta is appended).
func (e *Engine) UpdateWeight(sender, receiver uint64, weight float32) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if !e.registry.Contains(sender) {
		return unknownNode("sender", sender)
	}
	if !e.registry.Contains(receiver) {
		return unknownNode("receiver", receiver)
	}

	if weight < 0 {
		weight = 0
	} else if weight > 1 {
		weight = 1
	}
	e.tick++

	if e.async != nil {
		if err := e.async.UpdateEdge(sender, receiver, weight); err != nil {
			return fmt.Errorf("%w: %v", ErrAsyncRouting, err)
		}
	}
	return e.applyEdgeWriteLocked(sender, receiver, weight, e.tick)
}

// applyEdgeWriteLocked appends the delta entry, updates the in-memory
// overlay, and invalidates the sender's cache line. Caller must hold e.mu
// and must have already routed the edge to the async owner shard, if one
// is running.
func (e *Engine) applyEdgeWriteLocked(sender, receiver uint64, weight float32, tick uint32) error {
	entry := codec.DeltaEntry{SenderID: sender, ReceiverID: receiver, Weight: weight, Timestamp: tick}
	if err := e.delta.Append(entry); err != nil {
		return fmt.Errorf("ragp: update weight: %w", err)
	}

	senderMap, ok := e.overlay[sender]
	if !ok {
		senderMap = make(map[uint64]delta.Entry)
		e.overlay[sender] = senderMap
	}
	senderMap[receiver] = delta.Entry{Weight: weight, Timestamp: tick}

	e.cache.Invalidate(sender)
	return nil
}

// Status summarizes the engine's current state, mirroring the original's
// status() field set.
func (e *Engine) Status() Status {
	e.mu.Lock()
	defer e.mu.Unlock()

	deltaSenders, deltaEntries := 0, 0
	for _, m := range e.overlay {
		deltaSenders++
		deltaEntries += len(m)
	}

	s := Status{
		Nodes:            e.registry.Len(),
		ChunkFiles:       len(e.store.ChunkFileStarts()),
		DeltaSenders:     deltaSenders,
		DeltaEntries:     deltaEntries,
		Tick:             e.tick,
		RegistryVersion:  e.registry.Version(),
		PinnedNodes:      e.cache.PinnedCount(),
		LRUNodes:         e.cache.LRUCount(),
		CacheBudgetBytes: e.cache.BudgetBytes(),
		CacheBytesEst:    e.cache.BytesEst(),
		GuardMode:        "normal",
	}
	if e.async != nil {
		astat := e.async.Status()
		s.AsyncOn = true
		s.AsyncShards = astat.ShardCount
		s.GlobalQueueLen = astat.GlobalQueueLen
		s.GuardMode = astat.GuardMode.String()
		s.ActiveNodes = len(e.async.ActiveNodes())
	} else {
		for _, v := range e.activation {
			if v > 0 {
				s.ActiveNodes++
			}
		}
	}
	return s
}

// Close releases resources held by the engine, stopping the async
// runtime if it is running. It does not wait for shard goroutines to
// exit (see async.Runtime.Stop).
func (e *Engine) Close() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.async != nil {
		e.async.Stop()
		e.async = nil
	}
	return nil
}
