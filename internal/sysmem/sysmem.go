// Package sysmem samples system available memory for the cache's RAM
// budget (spec §4.3) and the async runtime's guard mode (spec §4.6). It is
// the Go-ecosystem equivalent of the original Rust implementation's use of
// the sysinfo crate.
package sysmem

import "github.com/shirou/gopsutil/v3/mem"

// Sampler reports currently available system memory in bytes.
type Sampler interface {
	AvailableBytes() (uint64, error)
}

// GopsutilSampler backs Sampler with gopsutil's virtual-memory stats.
type GopsutilSampler struct{}

// AvailableBytes returns the OS's notion of memory available for new
// allocations without swapping, in bytes. Unlike the original's sysinfo
// crate, which reported KiB on some platforms and bytes on others and
// needed a heuristic to tell them apart, gopsutil always reports bytes —
// no normalization step is needed here.
func (GopsutilSampler) AvailableBytes() (uint64, error) {
	vm, err := mem.VirtualMemory()
	if err != nil {
		return 0, err
	}
	return vm.Available, nil
}

// staticSampler is a fixed-value Sampler for tests.
type staticSampler struct{ bytes uint64 }

// NewStaticSampler returns a Sampler that always reports bytes available.
// Used by tests that need deterministic cache-budget/guard-mode behavior.
func NewStaticSampler(bytes uint64) Sampler {
	return staticSampler{bytes: bytes}
}

func (s staticSampler) AvailableBytes() (uint64, error) {
	return s.bytes, nil
}
