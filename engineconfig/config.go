// Package engineconfig holds the engine's environment-derived tunables:
// a plain Parameters struct, a DefaultParams constructor, copy-builder
// With... methods, and a Validate method.
package engineconfig

import (
	"errors"
	"fmt"
	"os"
	"strconv"
)

// Errors mirror config.ErrParametersInvalid's style: one sentinel per
// distinct invalid-field case, so callers can match on the specific
// failure rather than parsing a message.
var (
	ErrInvalidCachePolicy     = errors.New("engineconfig: cache policy must be pinned_lru or lru")
	ErrInvalidRAMFraction     = errors.New("engineconfig: cache ram fraction must be in (0, 1)")
	ErrInvalidPinFraction     = errors.New("engineconfig: cache pin fraction must be in (0, 1)")
	ErrInvalidRAMBounds       = errors.New("engineconfig: cache ram min must be <= cache ram max")
	ErrInvalidAsyncRAMBounds  = errors.New("engineconfig: async ram warn must be <= async ram critical")
	ErrInvalidCoalesceWindow  = errors.New("engineconfig: async coalesce window must be >= 50ms")
	ErrInvalidWriteThrottle   = errors.New("engineconfig: async write throttle must be >= 100/sec")
	ErrInvalidShardCount      = errors.New("engineconfig: async shard count must be >= 1")
	ErrInvalidRegistryVersion = errors.New("engineconfig: innate registry version must be >= 1")
)

// Parameters is the complete set of engine tunables, loadable from the
// environment via FromEnv or constructed directly via DefaultParams.
type Parameters struct {
	CachePolicy     string // "pinned_lru" or "lru"
	CacheRAMFrac    float64
	CacheRAMMinMB   uint64
	CacheRAMMaxMB   uint64
	CachePinFrac    float64
	RegistryVersion uint32

	AsyncShardCount          int
	AsyncRAMWarnMB           uint64
	AsyncRAMCriticalMB       uint64
	AsyncCoalesceWindowMs    uint64
	AsyncWriteThrottlePerSec uint64
}

// DefaultParams returns the defaults enumerated in the engine's
// configuration reference: CACHE_POLICY=pinned_lru, CACHE_RAM_FRACTION=0.25,
// CACHE_RAM_MIN_MB=256, CACHE_RAM_MAX_MB=1536, CACHE_PIN_FRACTION=0.35,
// INNATE_REGISTRY_VERSION=1, plus the async runtime's own defaults
// (AsyncShardCount is left at 0 here to signal "use DefaultShardCount(cores)"
// — callers that want an explicit count should set it after DefaultParams).
func DefaultParams() Parameters {
	return Parameters{
		CachePolicy:     "pinned_lru",
		CacheRAMFrac:    0.25,
		CacheRAMMinMB:   256,
		CacheRAMMaxMB:   1536,
		CachePinFrac:    0.35,
		RegistryVersion: 1,

		AsyncShardCount:          0,
		AsyncRAMWarnMB:           1024,
		AsyncRAMCriticalMB:       1536,
		AsyncCoalesceWindowMs:    100,
		AsyncWriteThrottlePerSec: 1000,
	}
}

// FromEnv returns DefaultParams overridden by whichever of the package's
// environment variables are set: CACHE_POLICY, CACHE_RAM_FRACTION,
// CACHE_RAM_MIN_MB, CACHE_RAM_MAX_MB, CACHE_PIN_FRACTION,
// INNATE_REGISTRY_VERSION, ASYNC_RAM_WARN_MB, ASYNC_RAM_CRITICAL_MB,
// ASYNC_COALESCE_WINDOW_MS, ASYNC_WRITE_THROTTLE_PER_SEC. A value that
// fails to parse is ignored and the default is kept.
func FromEnv() Parameters {
	p := DefaultParams()
	if v, ok := os.LookupEnv("CACHE_POLICY"); ok {
		p.CachePolicy = v
	}
	if v, ok := parseFloatEnv("CACHE_RAM_FRACTION"); ok {
		p.CacheRAMFrac = v
	}
	if v, ok := parseUintEnv("CACHE_RAM_MIN_MB"); ok {
		p.CacheRAMMinMB = v
	}
	if v, ok := parseUintEnv("CACHE_RAM_MAX_MB"); ok {
		p.CacheRAMMaxMB = v
	}
	if v, ok := parseFloatEnv("CACHE_PIN_FRACTION"); ok {
		p.CachePinFrac = v
	}
	if v, ok := parseUintEnv("INNATE_REGISTRY_VERSION"); ok {
		p.RegistryVersion = uint32(v)
	}
	if v, ok := parseUintEnv("ASYNC_RAM_WARN_MB"); ok {
		p.AsyncRAMWarnMB = v
	}
	if v, ok := parseUintEnv("ASYNC_RAM_CRITICAL_MB"); ok {
		p.AsyncRAMCriticalMB = v
	}
	if v, ok := parseUintEnv("ASYNC_COALESCE_WINDOW_MS"); ok {
		p.AsyncCoalesceWindowMs = v
	}
	if v, ok := parseUintEnv("ASYNC_WRITE_THROTTLE_PER_SEC"); ok {
		p.AsyncWriteThrottlePerSec = v
	}
	return p
}

func parseUintEnv(name string) (uint64, bool) {
	raw, ok := os.LookupEnv(name)
	if !ok {
		return 0, false
	}
	v, err := strconv.ParseUint(raw, 10, 64)
	if err != nil {
		return 0, false
	}
	return v, true
}

func parseFloatEnv(name string) (float64, bool) {
	raw, ok := os.LookupEnv(name)
	if !ok {
		return 0, false
	}
	v, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return 0, false
	}
	return v, true
}

// WithCachePolicy returns a copy of p with CachePolicy set.
func (p Parameters) WithCachePolicy(policy string) Parameters {
	p.CachePolicy = policy
	return p
}

// WithShardCount returns a copy of p with AsyncShardCount set.
func (p Parameters) WithShardCount(n int) Parameters {
	p.AsyncShardCount = n
	return p
}

// WithRAMBudget returns a copy of p with the cache RAM fraction/min/max set.
func (p Parameters) WithRAMBudget(fraction float64, minMB, maxMB uint64) Parameters {
	p.CacheRAMFrac = fraction
	p.CacheRAMMinMB = minMB
	p.CacheRAMMaxMB = maxMB
	return p
}

// Validate checks every field's documented constraint in a fixed order,
// returning the first violated sentinel error.
func (p Parameters) Validate() error {
	if p.CachePolicy != "pinned_lru" && p.CachePolicy != "lru" {
		return ErrInvalidCachePolicy
	}
	if p.CacheRAMFrac <= 0 || p.CacheRAMFrac >= 1 {
		return ErrInvalidRAMFraction
	}
	if p.CachePinFrac <= 0 || p.CachePinFrac >= 1 {
		return ErrInvalidPinFraction
	}
	if p.CacheRAMMinMB > p.CacheRAMMaxMB {
		return ErrInvalidRAMBounds
	}
	if p.RegistryVersion < 1 {
		return ErrInvalidRegistryVersion
	}
	if p.AsyncShardCount < 0 {
		return ErrInvalidShardCount
	}
	if p.AsyncRAMCriticalMB < p.AsyncRAMWarnMB {
		return ErrInvalidAsyncRAMBounds
	}
	if p.AsyncCoalesceWindowMs < 50 {
		return ErrInvalidCoalesceWindow
	}
	if p.AsyncWriteThrottlePerSec < 100 {
		return ErrInvalidWriteThrottle
	}
	return nil
}

// String renders the parameters for logging, in the same "key=value ..."
// shape the engine's Status.String() uses.
func (p Parameters) String() string {
	return fmt.Sprintf(
		"cache_policy=%s cache_ram_fraction=%.2f cache_ram_min_mb=%d cache_ram_max_mb=%d cache_pin_fraction=%.2f registry_version=%d async_shards=%d async_ram_warn_mb=%d async_ram_critical_mb=%d async_coalesce_ms=%d async_write_throttle=%d",
		p.CachePolicy, p.CacheRAMFrac, p.CacheRAMMinMB, p.CacheRAMMaxMB, p.CachePinFrac, p.RegistryVersion,
		p.AsyncShardCount, p.AsyncRAMWarnMB, p.AsyncRAMCriticalMB, p.AsyncCoalesceWindowMs, p.AsyncWriteThrottlePerSec,
	)
}
