package ragp

import (
	"runtime"

	"github.com/ragpdb/ragp/internal/async"
)

func (e *Engine) buildAsyncSnapshotLocked() (map[uint64][]async.Edge, map[uint64]float32) {
	adjacency := make(map[uint64][]async.Edge)
	thresholds := make(map[uint64]float32, e.registry.Len())
	for _, id := range e.registry.IDs() {
		thresholds[id] = e.thresholdLocked(id)
		conns := e.mergedConnectionsLocked(id)
		if len(conns) == 0 {
			continue
		}
		edges := make([]async.Edge, len(conns))
		for i, syn := range conns {
			edges[i] = async.Edge{Receiver: syn.ReceiverID, Weight: syn.Weight}
		}
		adjacency[id] = edges
	}
	return adjacency, thresholds
}

func (e *Engine) rebuildAsyncSnapshotLocked() {
	adjacency, thresholds := e.buildAsyncSnapshotLocked()
	e.async.InstallSnapshot(adjacency, thresholds)
}

// StartAsyncRuntime launches the sharded actor runtime over the current
// graph snapshot. shardCount <= 0 falls back to the configured
// AsyncShardCount, and then to async.DefaultShardCount(runtime.NumCPU()).
// Calling it while already running is a no-op.
func (e *Engine) StartAsyncRuntime(shardCount int) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.async != nil {
		return nil
	}
	if shardCount <= 0 {
		shardCount = e.params.AsyncShardCount
	}
	if shardCount <= 0 {
		shardCount = async.DefaultShardCount(runtime.NumCPU())
	}

	adjacency, thresholds := e.buildAsyncSnapshotLocked()
	rt := async.New(async.Options{
		ShardCount:          shardCount,
		RAMWarnMB:           e.params.AsyncRAMWarnMB,
		RAMCriticalMB:       e.params.AsyncRAMCriticalMB,
		CoalesceWindowMs:    e.params.AsyncCoalesceWindowMs,
		WriteThrottlePerSec: e.params.AsyncWriteThrottlePerSec,
		Sampler:             e.sampler,
		Metrics:             e.metrics,
		Logger:              e.logger,
	}, adjacency, thresholds)
	rt.Start()
	e.async = rt
	e.logger.Info("async runtime started", "shards", shardCount)
	return nil
}

// StopAsyncRuntime sends Stop to every shard and drops the runtime
// reference; it is a fire-and-drop call that does not wait for shard
// goroutines to exit.
func (e *Engine) StopAsyncRuntime() {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.async == nil {
		return
	}
	e.async.Stop()
	e.async = nil
}

// SubmitStimulus admits a single external seed for async processing. It
// fails with ErrAsyncNotStarted if the runtime isn't running, and with an
// UnknownNodeError if node isn't registered; a clean admission-control
// drop returns (false, nil) rather than an error, since running at
// capacity is an expected condition, not a failure.
func (e *Engine) SubmitStimulus(node uint64, strength float32) (bool, error) {
	e.mu.Lock()
	if !e.registry.Contains(node) {
		e.mu.Unlock()
		return false, unknownNode("seed", node)
	}
	rt := e.async
	tick := e.tick
	e.mu.Unlock()
	if rt == nil {
		return false, ErrAsyncNotStarted
	}
	return rt.SubmitStimulus(node, strength, uint64(tick)), nil
}

// StimulusRequest is one entry of a SubmitStimuli batch.
type StimulusRequest struct {
	Node     uint64
	Strength float32
	Source   uint64
}

// SubmitStimuli coalesces batch by (node, source), keeping the max
// strength per pair and counting the rest into the coalesced-total
// metric, then submits each surviving entry as a batch ingest. Entries
// naming an unregistered node are silently skipped rather than
// failing the whole batch.
func (e *Engine) SubmitStimuli(batch []StimulusRequest) (accepted int, err error) {
	e.mu.Lock()
	rt := e.async
	tick := e.tick
	e.mu.Unlock()
	if rt == nil {
		return 0, ErrAsyncNotStarted
	}

	type key struct{ node, source uint64 }
	best := make(map[key]float32, len(batch))
	order := make([]key, 0, len(batch))
	coalescedCount := 0
	for _, req := range batch {
		k := key{req.Node, req.Source}
		if prev, ok := best[k]; !ok {
			best[k] = req.Strength
			order = append(order, k)
		} else {
			coalescedCount++
			if req.Strength > prev {
				best[k] = req.Strength
			}
		}
	}
	if coalescedCount > 0 && e.metrics != nil {
		e.metrics.AsyncCoalescedTotal.Add(float64(coalescedCount))
	}

	e.mu.Lock()
	known := make(map[uint64]bool, len(order))
	for _, k := range order {
		known[k.node] = e.registry.Contains(k.node)
	}
	e.mu.Unlock()

	for _, k := range order {
		if !known[k.node] {
			continue
		}
		if rt.SubmitStimulus(k.node, best[k], uint64(tick)) {
			accepted++
		}
	}
	return accepted, nil
}

// GetAsyncMetrics returns the async runtime's current counters.
func (e *Engine) GetAsyncMetrics() (async.Status, error) {
	e.mu.Lock()
	rt := e.async
	e.mu.Unlock()
	if rt == nil {
		return async.Status{}, ErrAsyncNotStarted
	}
	return rt.Status(), nil
}

// SetAsyncPolicy applies runtime policy overrides, clamped to their
// documented floors.
func (e *Engine) SetAsyncPolicy(overrides async.PolicyOverrides) error {
	e.mu.Lock()
	rt := e.async
	e.mu.Unlock()
	if rt == nil {
		return ErrAsyncNotStarted
	}
	rt.SetPolicy(overrides)
	return nil
}
