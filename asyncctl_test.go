package ragp

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/ragpdb/ragp/internal/async"
)

func TestAsyncLifecycleAndSubmitStimulus(t *testing.T) {
	e := newTestEngine(t)
	require.NoError(t, e.InitNodePool([]uint64{1, 2}))
	require.NoError(t, e.UpdateWeight(1, 2, 0.9))

	require.NoError(t, e.StartAsyncRuntime(2))
	require.NoError(t, e.StartAsyncRuntime(2)) // idempotent

	ok, err := e.SubmitStimulus(1, 1.0)
	require.NoError(t, err)
	require.True(t, ok)

	metrics, err := e.GetAsyncMetrics()
	require.NoError(t, err)
	require.Equal(t, 2, metrics.ShardCount)

	e.StopAsyncRuntime()
	_, err = e.GetAsyncMetrics()
	require.ErrorIs(t, err, ErrAsyncNotStarted)
}

func TestSubmitStimulusFailsWithoutAsyncRuntime(t *testing.T) {
	e := newTestEngine(t)
	require.NoError(t, e.InitNodePool([]uint64{1}))

	_, err := e.SubmitStimulus(1, 1.0)
	require.ErrorIs(t, err, ErrAsyncNotStarted)
}

func TestSubmitStimulusRejectsUnknownNode(t *testing.T) {
	e := newTestEngine(t)
	require.NoError(t, e.InitNodePool([]uint64{1}))
	require.NoError(t, e.StartAsyncRuntime(2))

	_, err := e.SubmitStimulus(99, 1.0)
	require.Error(t, err)
	var unknown *UnknownNodeError
	require.ErrorAs(t, err, &unknown)
}

func TestSubmitStimuliCoalescesByNodeAndSource(t *testing.T) {
	e := newTestEngine(t)
	require.NoError(t, e.InitNodePool([]uint64{1, 2}))
	require.NoError(t, e.StartAsyncRuntime(2))

	accepted, err := e.SubmitStimuli([]StimulusRequest{
		{Node: 1, Source: 0, Strength: 0.2},
		{Node: 1, Source: 0, Strength: 0.8}, // coalesces with the above, keeping 0.8
		{Node: 2, Source: 0, Strength: 0.5},
	})
	require.NoError(t, err)
	require.Equal(t, 2, accepted)
}

func TestSubmitStimuliSkipsUnknownNodesWithoutFailingBatch(t *testing.T) {
	e := newTestEngine(t)
	require.NoError(t, e.InitNodePool([]uint64{1}))
	require.NoError(t, e.StartAsyncRuntime(2))

	accepted, err := e.SubmitStimuli([]StimulusRequest{
		{Node: 1, Strength: 0.5},
		{Node: 99, Strength: 0.5},
	})
	require.NoError(t, err)
	require.Equal(t, 1, accepted)
}

func TestSetAsyncPolicyRequiresRunningRuntime(t *testing.T) {
	e := newTestEngine(t)
	require.NoError(t, e.InitNodePool([]uint64{1}))

	warn := uint64(2000)
	err := e.SetAsyncPolicy(async.PolicyOverrides{RAMWarnMB: &warn})
	require.ErrorIs(t, err, ErrAsyncNotStarted)

	require.NoError(t, e.StartAsyncRuntime(2))
	require.NoError(t, e.SetAsyncPolicy(async.PolicyOverrides{RAMWarnMB: &warn}))
}
