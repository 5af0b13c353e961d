package sim

import "fmt"

// NodeKind classifies wait-for graph nodes.
type NodeKind int

const (
	NodeFlow NodeKind = iota
	NodeDevice
	NodeGate
)

// Node is one wait-for graph vertex. Nodes are interned to stable integer
// indices so cycle detection is a plain graph algorithm over an adjacency
// mapping, independent of object ownership.
type Node struct {
	Kind NodeKind
	Name string
}

func (n Node) String() string {
	switch n.Kind {
	case NodeDevice:
		return "device:" + n.Name
	case NodeGate:
		return "gate:" + n.Name
	default:
		return "flow:" + n.Name
	}
}

type blockEdge struct {
	reason WaitReason
	target int // node index the blocked flow awaits
}

// WaitForGraph tracks which blocked entities await which resources. Edges
// exist only while the blocking condition holds and are removed the instant
// it clears.
//
// Edge shape:
//   - blocked flow -> awaited device (capacity wait)
//   - blocked flow -> awaited gate (gate wait; gates have no out-edges)
//   - blocked flow -> each live instance of the awaited dependency flow
//   - device -> each flow currently holding one of its units
type WaitForGraph struct {
	nodes []Node
	index map[Node]int

	blocked map[int]blockEdge // flow node -> what it awaits
	holders map[int][]int     // device node -> holder flow nodes, acquisition order
	live    map[FlowID][]int  // definition -> live (incomplete) instance nodes
}

// NewWaitForGraph creates an empty graph.
func NewWaitForGraph() *WaitForGraph {
	return &WaitForGraph{
		index:   make(map[Node]int),
		blocked: make(map[int]blockEdge),
		holders: make(map[int][]int),
		live:    make(map[FlowID][]int),
	}
}

// intern returns the stable index for a node, creating it on first use.
func (g *WaitForGraph) intern(n Node) int {
	if i, ok := g.index[n]; ok {
		return i
	}
	i := len(g.nodes)
	g.nodes = append(g.nodes, n)
	g.index[n] = i
	return i
}

func (g *WaitForGraph) flowNode(fi *FlowInstance) int {
	return g.intern(Node{Kind: NodeFlow, Name: fi.ID})
}

func (g *WaitForGraph) deviceNode(id DeviceID) int {
	return g.intern(Node{Kind: NodeDevice, Name: string(id)})
}

// OnActivate registers a spawned instance as live for dependency edges.
func (g *WaitForGraph) OnActivate(fi *FlowInstance) {
	id := fi.Def.Config.FlowID
	g.live[id] = append(g.live[id], g.flowNode(fi))
}

// OnComplete retires an instance: it can no longer appear on any wait path.
func (g *WaitForGraph) OnComplete(fi *FlowInstance) {
	id := fi.Def.Config.FlowID
	n := g.flowNode(fi)
	g.live[id] = removeNode(g.live[id], n)
	delete(g.blocked, n)
}

// OnAcquire records that the instance now holds one unit of the device.
func (g *WaitForGraph) OnAcquire(fi *FlowInstance, dev DeviceID) {
	d := g.deviceNode(dev)
	g.holders[d] = append(g.holders[d], g.flowNode(fi))
}

// OnRelease removes the hold edge for one unit of the device.
func (g *WaitForGraph) OnRelease(fi *FlowInstance, dev DeviceID) {
	d := g.deviceNode(dev)
	g.holders[d] = removeNode(g.holders[d], g.flowNode(fi))
}

// Block records the wait-for edge for a newly ineligible instance,
// replacing any previous edge for the same instance.
func (g *WaitForGraph) Block(fi *FlowInstance, reason WaitReason, target string) {
	var t int
	switch reason {
	case WaitCapacity:
		t = g.deviceNode(DeviceID(target))
	case WaitGate:
		t = g.intern(Node{Kind: NodeGate, Name: target})
	case WaitDependency:
		// dependency edges fan out to live instances at traversal time;
		// store the definition node as the nominal target
		t = g.intern(Node{Kind: NodeFlow, Name: target})
	default:
		return
	}
	f := g.flowNode(fi)
	if f == t {
		panic(fmt.Sprintf("wait-for self-loop: %s", fi.ID))
	}
	g.blocked[f] = blockEdge{reason: reason, target: t}
}

// Unblock removes the instance's wait-for edge the instant its blocking
// condition clears.
func (g *WaitForGraph) Unblock(fi *FlowInstance) {
	delete(g.blocked, g.flowNode(fi))
}

// successors returns the out-edges of a node in deterministic order.
func (g *WaitForGraph) successors(n int) []int {
	node := g.nodes[n]
	switch node.Kind {
	case NodeDevice:
		return g.holders[n]
	case NodeFlow:
		be, ok := g.blocked[n]
		if !ok {
			return nil
		}
		if be.reason == WaitDependency {
			return g.live[FlowID(g.nodes[be.target].Name)]
		}
		return []int{be.target}
	default: // gates never wait on anything
		return nil
	}
}

// FindCycle runs a depth-first traversal from each blocked node and returns
// the first closed path found, as interned node indices in cycle order.
// Returns nil when the graph is acyclic.
func (g *WaitForGraph) FindCycle() []Node {
	const (
		white = 0
		gray  = 1
		black = 2
	)
	color := make(map[int]int, len(g.nodes))
	var stack []int
	var cycle []int

	var visit func(n int) bool
	visit = func(n int) bool {
		color[n] = gray
		stack = append(stack, n)
		for _, next := range g.successors(n) {
			switch color[next] {
			case gray:
				for i, s := range stack {
					if s == next {
						cycle = append([]int{}, stack[i:]...)
						return true
					}
				}
			case white:
				if visit(next) {
					return true
				}
			}
		}
		stack = stack[:len(stack)-1]
		color[n] = black
		return false
	}

	// Deterministic start order: blocked flow nodes by interning index.
	for n := range g.nodes {
		if _, isBlocked := g.blocked[n]; !isBlocked {
			continue
		}
		if color[n] == white && visit(n) {
			out := make([]Node, len(cycle))
			for i, idx := range cycle {
				out[i] = g.nodes[idx]
			}
			return out
		}
	}
	return nil
}

// Snapshot renders the current adjacency as printable node names, for the
// deadlock_info wait graph dump.
func (g *WaitForGraph) Snapshot() map[string][]string {
	snap := make(map[string][]string)
	for n := range g.blocked {
		var succ []string
		for _, s := range g.successors(n) {
			succ = append(succ, g.nodes[s].String())
		}
		snap[g.nodes[n].String()] = succ
	}
	for d, hs := range g.holders {
		if len(hs) == 0 {
			continue
		}
		var succ []string
		for _, h := range hs {
			succ = append(succ, g.nodes[h].String())
		}
		snap[g.nodes[d].String()] = succ
	}
	return snap
}

// BlockedCount returns the number of flows with live wait-for edges.
func (g *WaitForGraph) BlockedCount() int {
	return len(g.blocked)
}

func removeNode(list []int, n int) []int {
	for i, v := range list {
		if v == n {
			return append(list[:i], list[i+1:]...)
		}
	}
	return list
}
