package ragp

import (
	"fmt"
	"sort"

	"github.com/ragpdb/ragp/internal/codec"
	"github.com/ragpdb/ragp/internal/delta"
	"github.com/ragpdb/ragp/internal/store"
)

// Consolidate runs the full sequence: pause async ingress
// and flush every shard; for every sender with a live delta overlay,
// merge it into the base, prune edges below 0.3*mean(weight), and sort
// the survivors descending by weight; rewrite the base and chunk files
// over the entire registry (touched senders get their pruned set,
// untouched senders keep their existing base data unchanged); reset the
// delta log, activation map, and temporal window; drop and rebuild the
// cache; rebuild the async adjacency snapshot and resume ingress. It
// returns the number of delta entries merged and the number of edges
// pruned.
func (e *Engine) Consolidate() (merged, pruned int, err error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.async != nil {
		e.async.Pause()
		e.async.Flush()
		defer e.async.Resume()
	}

	touched := make([]uint64, 0, len(e.overlay))
	for sender := range e.overlay {
		touched = append(touched, sender)
	}
	sort.Slice(touched, func(i, j int) bool { return touched[i] < touched[j] })

	pruned_, merged_ := 0, 0
	rebuiltSynapses := make(map[uint64][]codec.Synapse, len(touched))
	for _, sender := range touched {
		merged_ += len(e.overlay[sender])

		connections := e.mergedConnectionsLocked(sender)
		if len(connections) == 0 {
			rebuiltSynapses[sender] = nil
			continue
		}
		var sum float32
		for _, syn := range connections {
			sum += syn.Weight
		}
		avg := sum / float32(len(connections))
		floor := avg * codec.PruneRatio

		kept := make([]codec.Synapse, 0, len(connections))
		for _, syn := range connections {
			if syn.Weight >= floor {
				kept = append(kept, syn)
			} else {
				pruned_++
			}
		}
		sort.SliceStable(kept, func(i, j int) bool { return kept[i].Weight > kept[j].Weight })
		rebuiltSynapses[sender] = kept
	}

	allIDs := e.registry.IDs()
	data := make([]store.SenderData, 0, len(allIDs))
	for _, id := range allIDs {
		synapses, ok := rebuiltSynapses[id]
		if !ok {
			synapses = e.cache.GetOrLoad(id, e.loadBaseSynapses)
		}
		data = append(data, store.SenderData{NodeID: id, Threshold: e.thresholdLocked(id), Synapses: synapses})
	}

	records, err := e.store.Rewrite(e.registry.Version(), data)
	if err != nil {
		return 0, 0, fmt.Errorf("ragp: consolidate: %w", err)
	}
	e.nodes = make(map[uint64]codec.NodeRecord, len(records))
	for _, rec := range records {
		e.nodes[rec.NodeID] = rec
	}

	e.overlay = make(map[uint64]map[uint64]delta.Entry)
	if err := e.delta.Reset(e.registry.Version()); err != nil {
		return 0, 0, fmt.Errorf("ragp: consolidate: reset delta: %w", err)
	}
	e.activation = make(map[uint64]float32)
	e.temporalWindow = nil

	e.cache.Clear()
	e.cache.RefreshBudget()
	e.cache.Rescore(e.registry.IDs(), e.loadBaseSynapses, true)

	if e.async != nil {
		e.rebuildAsyncSnapshotLocked()
	}

	if e.metrics != nil {
		e.metrics.ConsolidateMerged.Add(float64(merged_))
		e.metrics.ConsolidatePruned.Add(float64(pruned_))
	}

	return merged_, pruned_, nil
}
