package cache

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/ragpdb/ragp/internal/codec"
	"github.com/ragpdb/ragp/internal/sysmem"
)

func synapses(weights ...float32) []codec.Synapse {
	out := make([]codec.Synapse, len(weights))
	for i, w := range weights {
		out[i] = codec.Synapse{ReceiverID: uint64(i + 1), Weight: w}
	}
	return out
}

func newTestCache(t *testing.T, availableBytes uint64) *Cache {
	t.Helper()
	c := New(Options{
		Policy:      PinnedLRU,
		RAMFraction: 0.5,
		PinFraction: 0.5,
		MinBytes:    1 << 10,
		MaxBytes:    1 << 20,
		Sampler:     sysmem.NewStaticSampler(availableBytes),
	})
	c.RefreshBudget()
	return c
}

func TestGetOrLoadCachesOnMiss(t *testing.T) {
	c := newTestCache(t, 1<<20)
	calls := 0
	load := func(uint64) []codec.Synapse {
		calls++
		return synapses(0.5)
	}

	first := c.GetOrLoad(1, load)
	second := c.GetOrLoad(1, load)
	require.Equal(t, first, second)
	require.Equal(t, 1, calls)
}

func TestInvalidateForcesReload(t *testing.T) {
	c := newTestCache(t, 1<<20)
	calls := 0
	load := func(uint64) []codec.Synapse {
		calls++
		return synapses(0.5)
	}

	c.GetOrLoad(1, load)
	c.Invalidate(1)
	c.GetOrLoad(1, load)
	require.Equal(t, 2, calls)
}

func TestRecordAccessSignalsEveryRescoreInterval(t *testing.T) {
	c := newTestCache(t, 1<<20)
	due := false
	for i := 0; i < codec.CacheRescoreAccesses; i++ {
		due = c.RecordAccess(1)
	}
	require.True(t, due)

	due = c.RecordAccess(1)
	require.False(t, due)
}

func TestRefreshBudgetClampsToMinMax(t *testing.T) {
	c := New(Options{
		Policy:      PinnedLRU,
		RAMFraction: 0.5,
		PinFraction: 0.5,
		MinBytes:    1 << 20,
		MaxBytes:    2 << 20,
		Sampler:     sysmem.NewStaticSampler(0),
	})
	c.RefreshBudget()
	require.Equal(t, uint64(1<<20), c.BudgetBytes())

	c.opts.Sampler = sysmem.NewStaticSampler(1 << 40)
	c.RefreshBudget()
	require.Equal(t, uint64(2<<20), c.BudgetBytes())
}

func TestEnforceBudgetEvictsLRUWhenOverBudget(t *testing.T) {
	c := New(Options{
		Policy:      LRUOnly,
		RAMFraction: 1.0,
		PinFraction: 0.5,
		MinBytes:    200,
		MaxBytes:    200,
		Sampler:     sysmem.NewStaticSampler(1 << 30),
	})
	c.RefreshBudget()

	load := func(id uint64) []codec.Synapse { return synapses(0.1, 0.2, 0.3, 0.4, 0.5) }
	c.GetOrLoad(1, load)
	c.GetOrLoad(2, load)
	c.GetOrLoad(3, load)

	require.LessOrEqual(t, c.BytesEst(), c.BudgetBytes())
	require.Less(t, c.LRUCount(), 3)
}

func TestRescorePromotesHighestScoringSenders(t *testing.T) {
	c := New(Options{
		Policy:      PinnedLRU,
		RAMFraction: 1.0,
		PinFraction: 0.9,
		MinBytes:    1 << 20,
		MaxBytes:    1 << 20,
		Sampler:     sysmem.NewStaticSampler(1 << 30),
	})
	c.RefreshBudget()

	data := map[uint64][]codec.Synapse{
		1: synapses(0.9),
		2: synapses(0.1),
	}
	load := func(id uint64) []codec.Synapse { return data[id] }

	c.Rescore([]uint64{1, 2}, load, true)
	require.True(t, c.pinnedSet[1])
}

func TestRescoreLRUOnlyPolicyKeepsPinnedEmpty(t *testing.T) {
	c := New(Options{
		Policy:      LRUOnly,
		RAMFraction: 1.0,
		PinFraction: 0.9,
		MinBytes:    1 << 20,
		MaxBytes:    1 << 20,
		Sampler:     sysmem.NewStaticSampler(1 << 30),
	})
	c.RefreshBudget()
	load := func(id uint64) []codec.Synapse { return synapses(0.9) }

	c.Rescore([]uint64{1, 2}, load, true)
	require.Equal(t, 0, c.PinnedCount())
}

func TestClearResetsBothTiersAndAccessCounts(t *testing.T) {
	c := newTestCache(t, 1<<20)
	load := func(id uint64) []codec.Synapse { return synapses(0.5) }
	c.GetOrLoad(1, load)
	c.RecordAccess(1)

	c.Clear()
	require.Equal(t, 0, c.PinnedCount())
	require.Equal(t, 0, c.LRUCount())
	require.Equal(t, uint64(0), c.BytesEst())
}

func TestParsePolicy(t *testing.T) {
	require.Equal(t, LRUOnly, ParsePolicy("lru"))
	require.Equal(t, PinnedLRU, ParsePolicy("pinned_lru"))
	require.Equal(t, PinnedLRU, ParsePolicy("anything-else"))
}
