package ragp

import (
	"math"
	"sort"

	"github.com/ragpdb/ragp/internal/codec"
)

func (e *Engine) thresholdLocked(id uint64) float32 {
	if rec, ok := e.nodes[id]; ok {
		return rec.Threshold
	}
	return codec.DefaultThreshold
}

func (e *Engine) pushTemporalLocked(node uint64, strength float32) {
	e.temporalWindow = append(e.temporalWindow, temporalEvent{node: node, strength: strength})
	if len(e.temporalWindow) > codec.TemporalWindowSize {
		e.temporalWindow = e.temporalWindow[1:]
	}
}

// addEdgeLocked routes the edge through the async owner shard (if
// running) before appending the delta entry, exactly like UpdateWeight's
// routing (spec overview: synapse formation "funnels them through the
// same delta-append path"). Caller must hold e.mu.
func (e *Engine) addEdgeLocked(sender, receiver uint64, weight float32, tick uint32) error {
	if e.async != nil {
		if err := e.async.UpdateEdge(sender, receiver, weight); err != nil {
			return err
		}
	}
	return e.applyEdgeWriteLocked(sender, receiver, weight, tick)
}

// SpreadActivation runs a synchronous bounded-depth BFS from seed: clears
// the activation map, seeds the temporal window, and propagates with
// max-wins semantics up to codec.MaxSpreadDepth hops. It does
// not itself call FormSynapsesFromWindow — that remains a distinct,
// explicitly invoked operation per the external interface.
func (e *Engine) SpreadActivation(seed uint64, strength float32) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if !e.registry.Contains(seed) {
		return unknownNode("seed", seed)
	}
	e.tick++

	e.activation = make(map[uint64]float32)
	e.activation[seed] = strength
	e.temporalWindow = nil
	e.pushTemporalLocked(seed, strength)

	type item struct {
		node     uint64
		strength float32
		depth    int
	}
	queue := []item{{seed, strength, 0}}
	for len(queue) > 0 {
		cur := queue[0]
		queue = queue[1:]
		if cur.depth >= codec.MaxSpreadDepth {
			continue
		}
		for _, syn := range e.mergedConnectionsLocked(cur.node) {
			incoming := cur.strength * syn.Weight
			if incoming < e.thresholdLocked(syn.ReceiverID) {
				continue
			}
			if incoming > e.activation[syn.ReceiverID] {
				e.activation[syn.ReceiverID] = incoming
				e.pushTemporalLocked(syn.ReceiverID, incoming)
				queue = append(queue, item{syn.ReceiverID, incoming, cur.depth + 1})
			}
		}
	}
	return nil
}

func (e *Engine) edgeExistsLocked(sender, receiver uint64) bool {
	for _, syn := range e.mergedConnectionsLocked(sender) {
		if syn.ReceiverID == receiver {
			return true
		}
	}
	return false
}

// FormSynapsesFromWindow evaluates every ordered pair in the current
// temporal window and probabilistically forms new edges:
// the sender's own strength must clear its threshold, the sender must be
// under the 7000-edge cap, the edge must not already exist, and a
// uniform [0,1) sample must fall at or below strength_i*strength_j. New
// edges carry codec.InitialEdgeWeight and the engine's current tick.
func (e *Engine) FormSynapsesFromWindow() (int, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	window := append([]temporalEvent(nil), e.temporalWindow...)
	formed := 0
	for i := range window {
		for j := range window {
			if i == j {
				continue
			}
			sender, strengthI := window[i].node, window[i].strength
			receiver, strengthJ := window[j].node, window[j].strength

			if strengthI < e.thresholdLocked(sender) {
				continue
			}
			if e.edgeCountLocked(sender) >= codec.MaxSynapsesPerNode {
				continue
			}
			if e.edgeExistsLocked(sender, receiver) {
				continue
			}
			if e.rng.Float64() > float64(strengthI)*float64(strengthJ) {
				continue
			}
			if err := e.addEdgeLocked(sender, receiver, codec.InitialEdgeWeight, e.tick); err != nil {
				return formed, err
			}
			formed++
		}
	}
	return formed, nil
}

// CDResult is one scored candidate from ComputeCD.
type CDResult struct {
	ActionID uint64
	CD       float64
}

// ComputeCD ranks stimulus's outgoing neighbors by competition degree:
// for each neighbor "action" with edge weight value, cost is
// the mean weight of action's own outgoing edges (1 if none), opportunity
// is the mean weight of edges from context nodes into action (0.5 if no
// context node has one), and Cd = value*opportunity/cost, or +Inf if
// cost is zero. Results are sorted by Cd descending.
func (e *Engine) ComputeCD(stimulus uint64, context []uint64) ([]CDResult, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if !e.registry.Contains(stimulus) {
		return nil, unknownNode("stimulus", stimulus)
	}
	for _, ctx := range context {
		if !e.registry.Contains(ctx) {
			return nil, unknownNode("context", ctx)
		}
	}

	neighbors := e.mergedConnectionsLocked(stimulus)
	results := make([]CDResult, 0, len(neighbors))
	for _, syn := range neighbors {
		action := syn.ReceiverID
		value := float64(syn.Weight)

		actionEdges := e.mergedConnectionsLocked(action)
		cost := 1.0
		if len(actionEdges) > 0 {
			var sum float64
			for _, ae := range actionEdges {
				sum += float64(ae.Weight)
			}
			cost = sum / float64(len(actionEdges))
		}

		opportunity := 0.5
		var oppSum float64
		var oppCount int
		for _, ctx := range context {
			for _, ce := range e.mergedConnectionsLocked(ctx) {
				if ce.ReceiverID == action {
					oppSum += float64(ce.Weight)
					oppCount++
					break
				}
			}
		}
		if oppCount > 0 {
			opportunity = oppSum / float64(oppCount)
		}

		var cd float64
		if cost == 0 {
			cd = math.Inf(1)
		} else {
			cd = value * opportunity / cost
		}
		results = append(results, CDResult{ActionID: action, CD: cd})
	}

	sort.SliceStable(results, func(i, j int) bool { return results[i].CD > results[j].CD })
	return results, nil
}

// GetActiveNodes returns every node with nonzero activation, reading from
// the async runtime's shared activation map if it is running, otherwise
// from the primary thread's own map maintained by SpreadActivation.
func (e *Engine) GetActiveNodes() []uint64 {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.async != nil {
		return e.async.ActiveNodes()
	}
	out := make([]uint64, 0, len(e.activation))
	for id, v := range e.activation {
		if v > 0 {
			out = append(out, id)
		}
	}
	return out
}

// GetActivation returns a copy of the current activation map.
func (e *Engine) GetActivation() map[uint64]float32 {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.async != nil {
		out := make(map[uint64]float32)
		for _, id := range e.async.ActiveNodes() {
			out[id] = e.async.Activation(id)
		}
		return out
	}
	out := make(map[uint64]float32, len(e.activation))
	for k, v := range e.activation {
		out[k] = v
	}
	return out
}
