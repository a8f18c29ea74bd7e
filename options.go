package ragp

import (
	"math/rand"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/ragpdb/ragp/engineconfig"
	"github.com/ragpdb/ragp/internal/rlog"
	"github.com/ragpdb/ragp/internal/rmetrics"
	"github.com/ragpdb/ragp/internal/sysmem"
)

// Option configures a new Engine, using the functional-options shape
// common to constructors that take variadic config funcs.
type Option func(*engineSettings)

type engineSettings struct {
	params  engineconfig.Parameters
	logger  rlog.Logger
	metrics *rmetrics.Metrics
	sampler sysmem.Sampler
	rngSeed int64
	hasSeed bool
}

func defaultSettings() engineSettings {
	return engineSettings{
		params:  engineconfig.FromEnv(),
		logger:  rlog.NewNoOp(),
		sampler: sysmem.GopsutilSampler{},
	}
}

// WithParameters overrides the engine's tunables (default: engineconfig.FromEnv()).
func WithParameters(p engineconfig.Parameters) Option {
	return func(s *engineSettings) { s.params = p }
}

// WithLogger sets the engine's structured logger (default: a no-op).
func WithLogger(l rlog.Logger) Option {
	return func(s *engineSettings) { s.logger = l }
}

// WithMetricsRegistry wires Prometheus collectors into reg (default: no
// metrics are collected). A nil reg creates the collectors without
// registering them.
func WithMetricsRegistry(reg prometheus.Registerer) Option {
	return func(s *engineSettings) { s.metrics = rmetrics.New(reg) }
}

// WithSampler overrides the RAM sampler (default: github.com/shirou/gopsutil).
// Tests use this to inject a deterministic sysmem.NewStaticSampler.
func WithSampler(sampler sysmem.Sampler) Option {
	return func(s *engineSettings) { s.sampler = sampler }
}

// WithRandSeed seeds the engine's synapse-formation RNG deterministically
// (default: seeded from crypto/rand at construction). This resolves spec
// §9's open question about the original's wall-clock-subsecond PRNG: a
// seeded math/rand source with a documented seeding policy, since no repo
// in the pack reaches for a dedicated third-party non-crypto PRNG.
func WithRandSeed(seed int64) Option {
	return func(s *engineSettings) { s.rngSeed = seed; s.hasSeed = true }
}

func newRand(s engineSettings) *rand.Rand {
	if s.hasSeed {
		return rand.New(rand.NewSource(s.rngSeed))
	}
	return rand.New(rand.NewSource(cryptoSeed()))
}
