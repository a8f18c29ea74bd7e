package registry

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestDedupSortsAndRemovesDuplicates(t *testing.T) {
	out := Dedup([]uint64{5, 1, 3, 1, 5, 2})
	require.Equal(t, []uint64{1, 2, 3, 5}, out)
}

func TestDedupEmpty(t *testing.T) {
	require.Empty(t, Dedup(nil))
}

func TestContains(t *testing.T) {
	r := New([]uint64{1, 4, 9, 16}, 1)
	require.True(t, r.Contains(9))
	require.False(t, r.Contains(10))
	require.False(t, Empty().Contains(1))
}

func TestNeedsMigration(t *testing.T) {
	r := New([]uint64{1, 2, 3}, 1)

	require.False(t, r.NeedsMigration([]uint64{1, 2, 3}))
	require.True(t, r.NeedsMigration([]uint64{1, 2}))
	require.True(t, r.NeedsMigration([]uint64{1, 2, 4}))
}

func TestMigrateBumpsVersionAndReplacesIDs(t *testing.T) {
	r := New([]uint64{1, 2, 3}, 5)
	next := r.Migrate([]uint64{2, 3, 4})

	require.Equal(t, uint32(6), next.Version())
	require.Equal(t, []uint64{2, 3, 4}, next.IDs())
	// The original registry is unchanged.
	require.Equal(t, uint32(5), r.Version())
	require.Equal(t, []uint64{1, 2, 3}, r.IDs())
}

func TestEmptyRegistry(t *testing.T) {
	r := Empty()
	require.Equal(t, 0, r.Len())
	require.Equal(t, uint32(0), r.Version())
	require.True(t, r.NeedsMigration([]uint64{1}))
	require.False(t, r.NeedsMigration(nil))
}
