// Package async implements the sharded activation-spreading runtime: one
// actor goroutine per shard, owning senders by plain `sender_id mod
// shard_count`, communicating over per-shard message channels while
// sharing adjacency/threshold/activation state behind a single mutex.
//
// The shard/channel skeleton is a fixed slice of shards each owning a
// disjoint key partition, generalized from a concurrent map with
// per-shard RWMutexes into message-passing actors with a single
// shared-state mutex. Ownership uses plain modulo rather than hashing: a
// predictable shard per sender id is load-bearing for callers here.
package async

import (
	"fmt"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/ragpdb/ragp/internal/codec"
	"github.com/ragpdb/ragp/internal/rlog"
	"github.com/ragpdb/ragp/internal/rmetrics"
	"github.com/ragpdb/ragp/internal/sysmem"
)

// GuardMode gates stimulus ingress by available system memory.
type GuardMode int

const (
	Normal GuardMode = iota
	Warn
	Critical
)

func (g GuardMode) String() string {
	switch g {
	case Warn:
		return "warn"
	case Critical:
		return "critical"
	default:
		return "normal"
	}
}

// Edge is one adjacency-snapshot entry: a receiver and the weight of the
// edge leading to it.
type Edge struct {
	Receiver uint64
	Weight   float32
}

// shardQueueCap is the per-shard channel buffer size. An unbounded
// channel has no Go equivalent; a generously sized buffer is the
// pragmatic stand-in, documented rather than silently substituted. A
// runtime under sustained overload relies on the admission guard to shed
// load before this buffer would ever fill.
const shardQueueCap = 1 << 16

// message is the sum type shard actors select over. Go has no tagged
// union, so — like the rest of this codebase's channel-of-interface
// usages — shard channels carry `interface{}` and actors type-switch.
type stimulusMsg struct {
	node       uint64
	strength   float32
	originTick uint64
	reply      chan bool
}

type hopMsg struct {
	node       uint64
	strength   float32
	originTick uint64
	depth      int
}

type updateEdgeMsg struct {
	sender   uint64
	receiver uint64
	weight   float32
	reply    chan error
}

type flushMsg struct {
	reply chan struct{}
}

type stopMsg struct{}

// Options configures a new Runtime.
type Options struct {
	ShardCount          int
	RAMWarnMB           uint64
	RAMCriticalMB       uint64
	CoalesceWindowMs    uint64
	WriteThrottlePerSec uint64
	MaxSpreadDepth      int
	Sampler             sysmem.Sampler
	Metrics             *rmetrics.Metrics // may be nil
	Logger              rlog.Logger       // may be nil -> rlog.NewNoOp()
}

// shared is the single mutex-guarded record every shard actor mutates.
// Per spec §4.6 this may be split into finer-grained locks by an
// implementation as long as the visible ordering guarantees hold; a
// single mutex is the simplest correct choice and is what this runtime
// uses.
type shared struct {
	mu sync.Mutex

	adjacency  map[uint64][]Edge
	thresholds map[uint64]float32
	activation map[uint64]float32

	guardMode     GuardMode
	ingressPaused bool

	globalQueueLen    int64
	perShardQueue     []int64
	processedTotal    uint64
	perShardProcessed []uint64
	droppedTotal      uint64
	hopTotal          uint64
	coalescedTotal    uint64
	processedPerSec   float64
	rateSnapAt        time.Time
	rateSnapTotal     uint64
}

// Runtime owns the shard goroutines and the shared cross-shard state.
type Runtime struct {
	opts   Options
	chans  []chan interface{}
	shared *shared
	wg     sync.WaitGroup
	logger rlog.Logger
}

// DefaultShardCount returns max(2, cores/2), the default shard count
// formula.
func DefaultShardCount(cores int) int {
	n := cores / 2
	if n < 2 {
		n = 2
	}
	return n
}

// New constructs a Runtime with the given adjacency/threshold snapshot.
// Start must be called before any message is submitted.
func New(opts Options, adjacency map[uint64][]Edge, thresholds map[uint64]float32) *Runtime {
	if opts.ShardCount < 1 {
		opts.ShardCount = DefaultShardCount(2)
	}
	if opts.MaxSpreadDepth <= 0 {
		opts.MaxSpreadDepth = codec.MaxSpreadDepth
	}
	if opts.Logger == nil {
		opts.Logger = rlog.NewNoOp()
	}
	if adjacency == nil {
		adjacency = make(map[uint64][]Edge)
	}
	if thresholds == nil {
		thresholds = make(map[uint64]float32)
	}
	r := &Runtime{
		opts: opts,
		shared: &shared{
			adjacency:         adjacency,
			thresholds:        thresholds,
			activation:        make(map[uint64]float32),
			perShardQueue:     make([]int64, opts.ShardCount),
			perShardProcessed: make([]uint64, opts.ShardCount),
			rateSnapAt:        time.Time{},
		},
		logger: opts.Logger,
	}
	r.chans = make([]chan interface{}, opts.ShardCount)
	for i := range r.chans {
		r.chans[i] = make(chan interface{}, shardQueueCap)
	}
	return r
}

// Start launches one goroutine per shard.
func (r *Runtime) Start() {
	for i := 0; i < r.opts.ShardCount; i++ {
		r.wg.Add(1)
		go r.shardLoop(i)
	}
}

// Stop sends Stop to every shard and returns immediately; it does not
// wait for the goroutines to exit, matching the original's fire-and-drop
// stop_async_runtime.
func (r *Runtime) Stop() {
	for _, ch := range r.chans {
		ch <- stopMsg{}
	}
}

// Wait blocks until every shard goroutine has exited. Not part of the
// spec's surface; useful for tests and for a clean process shutdown.
func (r *Runtime) Wait() { r.wg.Wait() }

func (r *Runtime) owner(node uint64) int {
	return int(node % uint64(r.opts.ShardCount))
}

func (r *Runtime) shardLoop(idx int) {
	defer r.wg.Done()
	for msg := range r.chans[idx] {
		switch m := msg.(type) {
		case stimulusMsg:
			r.decQueue(idx)
			r.spreadLocal(idx, m.node, m.strength, 0)
			r.markProcessed(idx)
			if m.reply != nil {
				m.reply <- true
			}
		case hopMsg:
			r.decQueue(idx)
			r.spreadLocal(idx, m.node, m.strength, m.depth)
			r.markProcessed(idx)
		case updateEdgeMsg:
			r.applyUpdateEdge(m)
		case flushMsg:
			m.reply <- struct{}{}
		case stopMsg:
			return
		}
	}
}

// spreadLocal runs the bounded-depth BFS starting at node/strength/depth,
// confined to shard idx's local stack until a hop crosses a shard
// boundary, at which point a Hop message is routed to the owner. Max-wins
// semantics: a receiver's activation is updated only when the incoming
// value strictly exceeds what is already recorded (spec §4.6).
func (r *Runtime) spreadLocal(idx int, node uint64, strength float32, depth int) {
	type item struct {
		node     uint64
		strength float32
		depth    int
	}
	stack := []item{{node, strength, depth}}
	for len(stack) > 0 {
		cur := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		if cur.depth >= r.opts.MaxSpreadDepth {
			continue
		}

		r.shared.mu.Lock()
		edges := append([]Edge(nil), r.shared.adjacency[cur.node]...)
		r.shared.mu.Unlock()

		for _, e := range edges {
			incoming := cur.strength * e.Weight

			r.shared.mu.Lock()
			threshold, ok := r.shared.thresholds[e.Receiver]
			if !ok {
				threshold = codec.DefaultThreshold
			}
			if incoming < threshold {
				r.shared.mu.Unlock()
				continue
			}
			updated := false
			if incoming > r.shared.activation[e.Receiver] {
				r.shared.activation[e.Receiver] = incoming
				updated = true
			}
			r.shared.mu.Unlock()

			if !updated {
				continue
			}
			nextDepth := cur.depth + 1
			if nextDepth > r.opts.MaxSpreadDepth {
				continue
			}
			ownerOf := r.owner(e.Receiver)
			if ownerOf == idx {
				stack = append(stack, item{e.Receiver, incoming, nextDepth})
				continue
			}
			r.incQueue(ownerOf)
			r.shared.mu.Lock()
			r.shared.hopTotal++
			r.shared.mu.Unlock()
			if r.opts.Metrics != nil {
				r.opts.Metrics.AsyncHopTotal.Inc()
			}
			r.chans[ownerOf] <- hopMsg{node: e.Receiver, strength: incoming, depth: nextDepth}
		}
	}
}

func (r *Runtime) applyUpdateEdge(m updateEdgeMsg) {
	r.shared.mu.Lock()
	edges := r.shared.adjacency[m.sender]
	found := false
	for i := range edges {
		if edges[i].Receiver == m.receiver {
			edges[i].Weight = m.weight
			found = true
			break
		}
	}
	if !found {
		edges = append(edges, Edge{Receiver: m.receiver, Weight: m.weight})
	}
	r.shared.adjacency[m.sender] = edges
	r.shared.mu.Unlock()
	if m.reply != nil {
		m.reply <- nil
	}
}

func (r *Runtime) incQueue(idx int) {
	r.shared.mu.Lock()
	r.shared.globalQueueLen++
	r.shared.perShardQueue[idx]++
	r.shared.mu.Unlock()
	if r.opts.Metrics != nil {
		r.opts.Metrics.AsyncQueueLen.Inc()
	}
}

func (r *Runtime) decQueue(idx int) {
	r.shared.mu.Lock()
	r.shared.globalQueueLen--
	r.shared.perShardQueue[idx]--
	r.shared.mu.Unlock()
	if r.opts.Metrics != nil {
		r.opts.Metrics.AsyncQueueLen.Dec()
	}
}

func (r *Runtime) markProcessed(idx int) {
	r.shared.mu.Lock()
	r.shared.processedTotal++
	r.shared.perShardProcessed[idx]++
	total := r.shared.processedTotal
	elapsed := time.Since(r.shared.rateSnapAt)
	if elapsed >= 200*time.Millisecond {
		if !r.shared.rateSnapAt.IsZero() {
			r.shared.processedPerSec = float64(total-r.shared.rateSnapTotal) / elapsed.Seconds()
		}
		r.shared.rateSnapAt = time.Now()
		r.shared.rateSnapTotal = total
	}
	r.shared.mu.Unlock()
	if r.opts.Metrics != nil {
		r.opts.Metrics.AsyncProcessedTotal.Inc()
	}
}

// RefreshGuardMode samples available RAM and updates the runtime's guard
// mode (spec §4.6: critical <= ram_critical_mb, warn <= ram_warn_mb, else
// normal). It is called automatically by SubmitStimulus, and is exposed
// for callers (e.g. a status poller) that want an up-to-date read without
// submitting anything.
func (r *Runtime) RefreshGuardMode() GuardMode {
	available, err := r.opts.Sampler.AvailableBytes()
	if err != nil {
		available = 0
	}
	mb := available / (1 << 20)
	var mode GuardMode
	switch {
	case mb <= r.opts.RAMCriticalMB:
		mode = Critical
	case mb <= r.opts.RAMWarnMB:
		mode = Warn
	default:
		mode = Normal
	}
	r.shared.mu.Lock()
	r.shared.guardMode = mode
	r.shared.mu.Unlock()
	if r.opts.Metrics != nil {
		r.opts.Metrics.AsyncGuardMode.Set(rmetrics.GuardModeValue(mode.String()))
	}
	return mode
}

// Pause and Resume toggle ingress admission; Consolidate drives this
// around its rebuild (spec §4.6's "Paused" phase).
func (r *Runtime) Pause() {
	r.shared.mu.Lock()
	r.shared.ingressPaused = true
	r.shared.mu.Unlock()
}

func (r *Runtime) Resume() {
	r.shared.mu.Lock()
	r.shared.ingressPaused = false
	r.shared.mu.Unlock()
}

// SubmitStimulus admits an external seed, clamping strength to [0,1] and
// applying the ingress guard: dropped (returns false, dropped_total++) if
// ingress is paused, or if guard_mode is critical and the global queue
// already exceeds 20,000. Admitted stimuli are routed to the owner shard
// of node and processed asynchronously; originTick is carried in the
// message but is not read by the runtime, and no reply is sent back.
func (r *Runtime) SubmitStimulus(node uint64, strength float32, originTick uint64) bool {
	mode := r.RefreshGuardMode()

	r.shared.mu.Lock()
	paused := r.shared.ingressPaused
	qlen := r.shared.globalQueueLen
	r.shared.mu.Unlock()

	if paused || (mode == Critical && qlen > 20000) {
		r.shared.mu.Lock()
		r.shared.droppedTotal++
		r.shared.mu.Unlock()
		if r.opts.Metrics != nil {
			r.opts.Metrics.AsyncDroppedTotal.Inc()
		}
		return false
	}

	if strength < 0 {
		strength = 0
	} else if strength > 1 {
		strength = 1
	}

	owner := r.owner(node)
	r.incQueue(owner)
	r.chans[owner] <- stimulusMsg{node: node, strength: strength, originTick: originTick}
	return true
}

// UpdateEdge routes an edge mutation to its owner shard and blocks for
// the ack, per spec §4.6's update_weight routing ("on ack, the engine
// also appends a delta entry and invalidates the sender's cache").
func (r *Runtime) UpdateEdge(sender, receiver uint64, weight float32) error {
	reply := make(chan error, 1)
	owner := r.owner(sender)
	r.chans[owner] <- updateEdgeMsg{sender: sender, receiver: receiver, weight: weight, reply: reply}
	return <-reply
}

// Flush drains every shard to a quiescent point and returns once every
// shard has acked. Because each shard's channel is FIFO and a Flush
// message only replies once it reaches the front of its own queue, every
// message enqueued before Flush was sent is guaranteed processed by the
// time this call returns (spec §4.6's strict-drain property).
func (r *Runtime) Flush() {
	var g errgroup.Group
	replies := make([]chan struct{}, len(r.chans))
	for i, ch := range r.chans {
		reply := make(chan struct{})
		replies[i] = reply
		ch <- flushMsg{reply: reply}
	}
	for i := range replies {
		reply := replies[i]
		g.Go(func() error {
			<-reply
			return nil
		})
	}
	_ = g.Wait()
}

// InstallSnapshot wholesale-replaces the adjacency and threshold maps,
// used after consolidation rebuilds the on-disk layout (spec §4.6: "Node
// thresholds are immutable during normal operation and replaced wholesale
// during install").
func (r *Runtime) InstallSnapshot(adjacency map[uint64][]Edge, thresholds map[uint64]float32) {
	r.shared.mu.Lock()
	r.shared.adjacency = adjacency
	r.shared.thresholds = thresholds
	r.shared.activation = make(map[uint64]float32)
	r.shared.mu.Unlock()
}

// PolicyOverrides carries the optional fields of set_async_policy; a nil
// field leaves the corresponding setting untouched.
type PolicyOverrides struct {
	RAMWarnMB           *uint64
	RAMCriticalMB       *uint64
	CoalesceWindowMs    *uint64
	WriteThrottlePerSec *uint64
}

// SetPolicy applies overrides with the original's clamps: critical RAM
// floor is the warn floor, coalesce window floors at 50ms, and write
// throttle floors at 100/sec. coalesce_window_ms and write_throttle_per_sec
// are stored for a future streaming-ingress variant but are not yet
// enforced by this synchronous-submit runtime — a known, documented gap
// (spec §9's open question on streaming ingress), not a silent drop.
func (r *Runtime) SetPolicy(o PolicyOverrides) {
	if o.RAMWarnMB != nil {
		r.opts.RAMWarnMB = *o.RAMWarnMB
	}
	if o.RAMCriticalMB != nil {
		v := *o.RAMCriticalMB
		if v < r.opts.RAMWarnMB {
			v = r.opts.RAMWarnMB
		}
		r.opts.RAMCriticalMB = v
	}
	if o.CoalesceWindowMs != nil {
		v := *o.CoalesceWindowMs
		if v < 50 {
			v = 50
		}
		r.opts.CoalesceWindowMs = v
	}
	if o.WriteThrottlePerSec != nil {
		v := *o.WriteThrottlePerSec
		if v < 100 {
			v = 100
		}
		r.opts.WriteThrottlePerSec = v
	}
}

// Activation returns the current activation value for node (0 if never
// touched by a spread).
func (r *Runtime) Activation(node uint64) float32 {
	r.shared.mu.Lock()
	defer r.shared.mu.Unlock()
	return r.shared.activation[node]
}

// ActiveNodes returns every node with nonzero activation.
func (r *Runtime) ActiveNodes() []uint64 {
	r.shared.mu.Lock()
	defer r.shared.mu.Unlock()
	out := make([]uint64, 0, len(r.shared.activation))
	for id, v := range r.shared.activation {
		if v > 0 {
			out = append(out, id)
		}
	}
	return out
}

// ResetActivation clears every recorded activation, typically between
// independent spread runs.
func (r *Runtime) ResetActivation() {
	r.shared.mu.Lock()
	r.shared.activation = make(map[uint64]float32)
	r.shared.mu.Unlock()
}

// Status is the async runtime's point-in-time counters, mirroring the
// original's status() field set.
type Status struct {
	ShardCount        int
	GlobalQueueLen    int64
	PerShardQueueLen  []int64
	ProcessedTotal    uint64
	PerShardProcessed []uint64
	DroppedTotal      uint64
	HopTotal          uint64
	CoalescedTotal    uint64
	ProcessedPerSec   float64
	GuardMode         GuardMode
	IngressPaused     bool
}

func (s Status) String() string {
	return fmt.Sprintf(
		"async: shards=%d queue=%d processed=%d dropped=%d hops=%d coalesced=%d rate/s=%.1f guard=%s paused=%t",
		s.ShardCount, s.GlobalQueueLen, s.ProcessedTotal, s.DroppedTotal, s.HopTotal, s.CoalescedTotal,
		s.ProcessedPerSec, s.GuardMode, s.IngressPaused,
	)
}

// Status snapshots the runtime's counters under the shared lock.
func (r *Runtime) Status() Status {
	r.shared.mu.Lock()
	defer r.shared.mu.Unlock()
	return Status{
		ShardCount:        r.opts.ShardCount,
		GlobalQueueLen:    r.shared.globalQueueLen,
		PerShardQueueLen:  append([]int64(nil), r.shared.perShardQueue...),
		ProcessedTotal:    r.shared.processedTotal,
		PerShardProcessed: append([]uint64(nil), r.shared.perShardProcessed...),
		DroppedTotal:      r.shared.droppedTotal,
		HopTotal:          r.shared.hopTotal,
		CoalescedTotal:    r.shared.coalescedTotal,
		ProcessedPerSec:   r.shared.processedPerSec,
		GuardMode:         r.shared.guardMode,
		IngressPaused:     r.shared.ingressPaused,
	}
}
