package ragp

import "fmt"

// Status is the engine's point-in-time summary, mirroring the original's
// status() line (node/chunk/delta/active/tick/registry/cache/async counters).
type Status struct {
	Nodes            int
	ChunkFiles       int
	DeltaSenders     int
	DeltaEntries     int
	ActiveNodes      int
	Tick             uint32
	RegistryVersion  uint32
	PinnedNodes      int
	LRUNodes         int
	CacheBudgetBytes uint64
	CacheBytesEst    uint64
	AsyncOn          bool
	AsyncShards      int
	GlobalQueueLen   int64
	GuardMode        string
}

func (s Status) String() string {
	return fmt.Sprintf(
		"Nodes=%d | Chunks=%d | Delta senders=%d entries=%d | Active=%d | Tick=%d | reg_ver=%d | "+
			"pinned_nodes=%d | lru_nodes=%d | cache_budget_mb=%.1f | cache_bytes_est_mb=%.1f | "+
			"async_on=%t | shards=%d | global_queue_len=%d | guard_mode=%s",
		s.Nodes, s.ChunkFiles, s.DeltaSenders, s.DeltaEntries, s.ActiveNodes, s.Tick, s.RegistryVersion,
		s.PinnedNodes, s.LRUNodes, float64(s.CacheBudgetBytes)/(1<<20), float64(s.CacheBytesEst)/(1<<20),
		s.AsyncOn, s.AsyncShards, s.GlobalQueueLen, s.GuardMode,
	)
}
