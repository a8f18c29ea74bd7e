package rmetrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/require"
)

func TestNewRegistersAllCollectorsWithoutError(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := New(reg)

	m.CacheHits.Inc()
	m.AsyncQueueLen.Set(3)

	families, err := reg.Gather()
	require.NoError(t, err)
	require.NotEmpty(t, families)
}

func TestNewWithNilRegistryStillUsable(t *testing.T) {
	m := New(nil)
	require.NotPanics(t, func() {
		m.CacheMisses.Inc()
	})
}

func TestGuardModeValue(t *testing.T) {
	require.Equal(t, float64(0), GuardModeValue("normal"))
	require.Equal(t, float64(1), GuardModeValue("warn"))
	require.Equal(t, float64(2), GuardModeValue("critical"))
}
