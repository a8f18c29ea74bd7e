// Package rmetrics wires the engine's counters and gauges into a
// Prometheus registry via a thin struct over a prometheus.Registerer.
package rmetrics

import "github.com/prometheus/client_golang/prometheus"

// Metrics holds every collector the engine updates. A nil *Metrics means
// no metrics are collected; every user of it checks for nil before
// touching a collector.
type Metrics struct {
	CacheHits    prometheus.Counter
	CacheMisses  prometheus.Counter
	RescoreTotal prometheus.Counter
	EvictTotal   prometheus.Counter

	AsyncDroppedTotal   prometheus.Counter
	AsyncCoalescedTotal prometheus.Counter
	AsyncHopTotal       prometheus.Counter
	AsyncProcessedTotal prometheus.Counter
	AsyncQueueLen       prometheus.Gauge
	AsyncGuardMode      prometheus.Gauge

	ConsolidateMerged prometheus.Counter
	ConsolidatePruned prometheus.Counter
}

// New registers and returns a Metrics bound to reg. reg may be nil, in
// which case collectors are created but never registered (useful for
// tests that don't care about a live registry).
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		CacheHits:    prometheus.NewCounter(prometheus.CounterOpts{Namespace: "ragp", Subsystem: "cache", Name: "hits_total"}),
		CacheMisses:  prometheus.NewCounter(prometheus.CounterOpts{Namespace: "ragp", Subsystem: "cache", Name: "misses_total"}),
		RescoreTotal: prometheus.NewCounter(prometheus.CounterOpts{Namespace: "ragp", Subsystem: "cache", Name: "rescore_total"}),
		EvictTotal:   prometheus.NewCounter(prometheus.CounterOpts{Namespace: "ragp", Subsystem: "cache", Name: "evict_total"}),

		AsyncDroppedTotal:   prometheus.NewCounter(prometheus.CounterOpts{Namespace: "ragp", Subsystem: "async", Name: "dropped_total"}),
		AsyncCoalescedTotal: prometheus.NewCounter(prometheus.CounterOpts{Namespace: "ragp", Subsystem: "async", Name: "coalesced_total"}),
		AsyncHopTotal:       prometheus.NewCounter(prometheus.CounterOpts{Namespace: "ragp", Subsystem: "async", Name: "hop_total"}),
		AsyncProcessedTotal: prometheus.NewCounter(prometheus.CounterOpts{Namespace: "ragp", Subsystem: "async", Name: "processed_total"}),
		AsyncQueueLen:       prometheus.NewGauge(prometheus.GaugeOpts{Namespace: "ragp", Subsystem: "async", Name: "global_queue_len"}),
		AsyncGuardMode:      prometheus.NewGauge(prometheus.GaugeOpts{Namespace: "ragp", Subsystem: "async", Name: "guard_mode"}),

		ConsolidateMerged: prometheus.NewCounter(prometheus.CounterOpts{Namespace: "ragp", Subsystem: "consolidate", Name: "merged_total"}),
		ConsolidatePruned: prometheus.NewCounter(prometheus.CounterOpts{Namespace: "ragp", Subsystem: "consolidate", Name: "pruned_total"}),
	}
	if reg == nil {
		return m
	}
	for _, c := range []prometheus.Collector{
		m.CacheHits, m.CacheMisses, m.RescoreTotal, m.EvictTotal,
		m.AsyncDroppedTotal, m.AsyncCoalescedTotal, m.AsyncHopTotal, m.AsyncProcessedTotal,
		m.AsyncQueueLen, m.AsyncGuardMode, m.ConsolidateMerged, m.ConsolidatePruned,
	} {
		_ = reg.Register(c)
	}
	return m
}

// GuardModeValue encodes the async guard mode as a gauge-friendly ordinal.
func GuardModeValue(mode string) float64 {
	switch mode {
	case "warn":
		return 1
	case "critical":
		return 2
	default:
		return 0
	}
}
