package ragp

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/ragpdb/ragp/engineconfig"
)

func TestWithRandSeedIsDeterministic(t *testing.T) {
	a := defaultSettings()
	WithRandSeed(42)(&a)
	b := defaultSettings()
	WithRandSeed(42)(&b)

	ra := newRand(a)
	rb := newRand(b)
	for i := 0; i < 10; i++ {
		require.Equal(t, ra.Float64(), rb.Float64())
	}
}

func TestWithParametersOverridesDefaults(t *testing.T) {
	s := defaultSettings()
	custom := engineconfig.DefaultParams().WithShardCount(6)
	WithParameters(custom)(&s)
	require.Equal(t, 6, s.params.AsyncShardCount)
}

func TestNewRejectsInvalidParameters(t *testing.T) {
	bad := engineconfig.DefaultParams()
	bad.CachePolicy = "not-a-policy"
	_, err := New(t.TempDir(), WithParameters(bad))
	require.Error(t, err)
}
