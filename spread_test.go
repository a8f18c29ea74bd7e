package ragp

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestSpreadActivationCascadesThroughChain(t *testing.T) {
	e := newTestEngine(t)
	require.NoError(t, e.InitNodePool([]uint64{1, 2, 3}))
	require.NoError(t, e.UpdateWeight(1, 2, 0.9))
	require.NoError(t, e.UpdateWeight(2, 3, 0.9))

	require.NoError(t, e.SpreadActivation(1, 1.0))

	activation := e.GetActivation()
	require.InDelta(t, float32(1.0), activation[1], 1e-6)
	require.InDelta(t, float32(0.9), activation[2], 1e-6)
	require.InDelta(t, float32(0.81), activation[3], 1e-6)

	active := e.GetActiveNodes()
	require.ElementsMatch(t, []uint64{1, 2, 3}, active)
}

func TestSpreadActivationStopsBelowThreshold(t *testing.T) {
	e := newTestEngine(t)
	require.NoError(t, e.InitNodePool([]uint64{1, 2}))
	require.NoError(t, e.UpdateWeight(1, 2, 0.1)) // 1.0*0.1 = 0.1 < default threshold 0.2

	require.NoError(t, e.SpreadActivation(1, 1.0))
	activation := e.GetActivation()
	require.Equal(t, float32(0), activation[2])
}

func TestSpreadActivationRejectsUnknownSeed(t *testing.T) {
	e := newTestEngine(t)
	require.NoError(t, e.InitNodePool([]uint64{1}))
	err := e.SpreadActivation(99, 1.0)
	require.Error(t, err)
}

// FormSynapsesFromWindow is exercised with every temporal-window strength
// fixed at 1.0, so the formation probability (strength_i*strength_j = 1.0)
// always clears the uniform [0,1) draw and the outcome is deterministic
// regardless of RNG seed.
func TestFormSynapsesFromWindowFillsInMissingPairs(t *testing.T) {
	e := newTestEngine(t)
	require.NoError(t, e.InitNodePool([]uint64{1, 2, 3}))
	require.NoError(t, e.UpdateWeight(1, 2, 1.0))
	require.NoError(t, e.UpdateWeight(2, 3, 1.0))

	require.NoError(t, e.SpreadActivation(1, 1.0))

	formed, err := e.FormSynapsesFromWindow()
	require.NoError(t, err)
	require.Equal(t, 4, formed)

	conns1, _ := e.GetConnections(1)
	conns2, _ := e.GetConnections(2)
	conns3, _ := e.GetConnections(3)
	require.Len(t, conns1, 2) // existing 1->2, plus new 1->3
	require.Len(t, conns2, 2) // existing 2->3, plus new 2->1
	require.Len(t, conns3, 2) // new 3->1, 3->2
}

func TestComputeCDRanksByCompetitionDegree(t *testing.T) {
	e := newTestEngine(t)
	require.NoError(t, e.InitNodePool([]uint64{1, 2, 3, 4}))

	require.NoError(t, e.UpdateWeight(1, 2, 0.8)) // stimulus -> action 2
	require.NoError(t, e.UpdateWeight(1, 3, 0.4)) // stimulus -> action 3
	require.NoError(t, e.UpdateWeight(2, 4, 0.6)) // action 2's own outgoing edge (cost)
	require.NoError(t, e.UpdateWeight(3, 4, 0.2)) // action 3's own outgoing edge (cost)
	require.NoError(t, e.UpdateWeight(4, 2, 0.9)) // context node 4 -> action 2 (opportunity)

	results, err := e.ComputeCD(1, []uint64{4})
	require.NoError(t, err)
	require.Len(t, results, 2)

	require.Equal(t, uint64(2), results[0].ActionID)
	require.InDelta(t, 1.2, results[0].CD, 1e-6)
	require.Equal(t, uint64(3), results[1].ActionID)
	require.InDelta(t, 1.0, results[1].CD, 1e-6)
}

func TestComputeCDRejectsUnknownStimulus(t *testing.T) {
	e := newTestEngine(t)
	require.NoError(t, e.InitNodePool([]uint64{1}))
	_, err := e.ComputeCD(99, nil)
	require.Error(t, err)
}

func TestComputeCDRejectsUnknownContext(t *testing.T) {
	e := newTestEngine(t)
	require.NoError(t, e.InitNodePool([]uint64{1, 2}))
	require.NoError(t, e.UpdateWeight(1, 2, 0.5))

	_, err := e.ComputeCD(1, []uint64{99})
	require.Error(t, err)
	var unknown *UnknownNodeError
	require.True(t, errors.As(err, &unknown))
	require.Equal(t, "context", unknown.Role)
}
