package ragp

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestStatusStringContainsKeyFields(t *testing.T) {
	e := newTestEngine(t)
	require.NoError(t, e.InitNodePool([]uint64{1, 2}))
	require.NoError(t, e.UpdateWeight(1, 2, 0.5))

	s := e.Status().String()
	require.Contains(t, s, "Nodes=2")
	require.Contains(t, s, "async_on=false")
}

func TestStatusReflectsAsyncRuntimeWhenRunning(t *testing.T) {
	e := newTestEngine(t)
	require.NoError(t, e.InitNodePool([]uint64{1, 2}))
	require.NoError(t, e.StartAsyncRuntime(3))

	st := e.Status()
	require.True(t, st.AsyncOn)
	require.Equal(t, 3, st.AsyncShards)
}
