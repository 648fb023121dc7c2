package graph

import (
	"container/heap"
	"errors"
	"fmt"
	"slices"
	"strings"
)

// ErrCycle is matched by every *CycleError.
var ErrCycle = errors.New("graph: dependency cycle")

// CycleError reports passes that depend on each other. Compilation cannot
// pick an order for them; the graph has to be fixed.
type CycleError struct {
	// Indices are the declaration indices of the passes on the cycle.
	Indices []int
	// Passes are their names, when known.
	Passes []string
}

func (e *CycleError) Error() string {
	if len(e.Passes) > 0 {
		return fmt.Sprintf("graph: dependency cycle between passes %s", strings.Join(quoteAll(e.Passes), ", "))
	}
	return fmt.Sprintf("graph: dependency cycle between passes %v", e.Indices)
}

// Is reports whether target is ErrCycle.
func (e *CycleError) Is(target error) bool { return target == ErrCycle }

func quoteAll(ss []string) []string {
	out := make([]string, len(ss))
	for i, s := range ss {
		out[i] = fmt.Sprintf("%q", s)
	}
	return out
}

// DependencyInput lists the resource accesses of every pass in declaration
// order. Slices are indexed by pass.
type DependencyInput struct {
	PassCount    int
	ImageReads   [][]ImageHandle
	ImageWrites  [][]ImageHandle
	BufferReads  [][]BufferHandle
	BufferWrites [][]BufferHandle

	// UninitializedImages and UninitializedBuffers name resources with
	// undefined contents at graph entry. A read of one of them declared
	// before its first writer consumes that writer's output instead of the
	// (nonexistent) initial contents.
	UninitializedImages  []ImageHandle
	UninitializedBuffers []BufferHandle
}

// Edge is an ordering constraint From -> To and the resources causing it.
type Edge struct {
	From    int
	To      int
	Images  []ImageHandle
	Buffers []BufferHandle
}

// DependencyGraph is the pass ordering relation of a render graph.
type DependencyGraph struct {
	n     int
	succ  [][]int
	pred  [][]int
	edges map[[2]int]*Edge
}

func newDependencyGraph(n int) *DependencyGraph {
	return &DependencyGraph{
		n:     n,
		succ:  make([][]int, n),
		pred:  make([][]int, n),
		edges: make(map[[2]int]*Edge),
	}
}

func (g *DependencyGraph) edge(from, to int) *Edge {
	k := [2]int{from, to}
	e, ok := g.edges[k]
	if !ok {
		e = &Edge{From: from, To: to}
		g.edges[k] = e
		g.succ[from] = append(g.succ[from], to)
		g.pred[to] = append(g.pred[to], from)
	}
	return e
}

func (g *DependencyGraph) addImageEdge(from, to int, h ImageHandle) {
	e := g.edge(from, to)
	if !slices.Contains(e.Images, h) {
		e.Images = append(e.Images, h)
	}
}

func (g *DependencyGraph) addBufferEdge(from, to int, h BufferHandle) {
	e := g.edge(from, to)
	if !slices.Contains(e.Buffers, h) {
		e.Buffers = append(e.Buffers, h)
	}
}

// Len returns the number of passes.
func (g *DependencyGraph) Len() int { return g.n }

// Successors returns the passes that must run after pass i, ascending.
func (g *DependencyGraph) Successors(i int) []int { return g.succ[i] }

// Predecessors returns the passes that must run before pass i, ascending.
func (g *DependencyGraph) Predecessors(i int) []int { return g.pred[i] }

// HasEdge reports whether pass from must run before pass to.
func (g *DependencyGraph) HasEdge(from, to int) bool {
	_, ok := g.edges[[2]int{from, to}]
	return ok
}

// Edges returns every edge ordered by (From, To).
func (g *DependencyGraph) Edges() []Edge {
	out := make([]Edge, 0, len(g.edges))
	for _, e := range g.edges {
		out = append(out, *e)
	}
	slices.SortFunc(out, func(a, b Edge) int {
		if a.From != b.From {
			return a.From - b.From
		}
		return a.To - b.To
	})
	return out
}

// access is one pass's use of a resource.
type access struct {
	pass  int
	write bool
}

// Analyze builds the dependency graph of the passes described by in.
//
// For every resource the accesses are taken in declaration order, one per
// pass with a write taking precedence over a read. Any pair in which at least
// one side writes becomes an edge from the earlier access to the later one;
// read/read pairs never constrain each other. For uninitialized resources the
// first writer is moved ahead of the reads declared before it.
func Analyze(in DependencyInput) *DependencyGraph {
	g := newDependencyGraph(in.PassCount)

	imgs := collect(in.PassCount, in.ImageReads, in.ImageWrites)
	bufs := collect(in.PassCount, in.BufferReads, in.BufferWrites)
	for _, h := range in.UninitializedImages {
		hoistFirstWriter(imgs[h])
	}
	for _, h := range in.UninitializedBuffers {
		hoistFirstWriter(bufs[h])
	}

	for _, h := range sortedKeys(imgs, ImageHandle.index) {
		forEachHazard(imgs[h], func(from, to int) { g.addImageEdge(from, to, h) })
	}
	for _, h := range sortedKeys(bufs, BufferHandle.index) {
		forEachHazard(bufs[h], func(from, to int) { g.addBufferEdge(from, to, h) })
	}

	for i := range g.succ {
		slices.Sort(g.succ[i])
		slices.Sort(g.pred[i])
	}
	return g
}

func collect[H comparable](n int, reads, writes [][]H) map[H][]access {
	out := make(map[H][]access)
	for p := 0; p < n; p++ {
		if p < len(reads) {
			for _, h := range reads[p] {
				out[h] = mergeAccess(out[h], p, false)
			}
		}
		if p < len(writes) {
			for _, h := range writes[p] {
				out[h] = mergeAccess(out[h], p, true)
			}
		}
	}
	return out
}

func mergeAccess(list []access, pass int, write bool) []access {
	if n := len(list); n > 0 && list[n-1].pass == pass {
		list[n-1].write = list[n-1].write || write
		return list
	}
	return append(list, access{pass: pass, write: write})
}

// hoistFirstWriter moves the first write ahead of the reads preceding it.
func hoistFirstWriter(list []access) {
	w := slices.IndexFunc(list, func(a access) bool { return a.write })
	if w <= 0 {
		return
	}
	first := list[w]
	copy(list[1:w+1], list[:w])
	list[0] = first
}

func forEachHazard(list []access, fn func(from, to int)) {
	for i := range list {
		for j := i + 1; j < len(list); j++ {
			if list[i].write || list[j].write {
				fn(list[i].pass, list[j].pass)
			}
		}
	}
}

func sortedKeys[H comparable](m map[H][]access, index func(H) int) []H {
	keys := make([]H, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	slices.SortFunc(keys, func(a, b H) int { return index(a) - index(b) })
	return keys
}

// readyQueue is a min-heap of pass indices.
type readyQueue []int

func (q readyQueue) Len() int           { return len(q) }
func (q readyQueue) Less(i, j int) bool { return q[i] < q[j] }
func (q readyQueue) Swap(i, j int)      { q[i], q[j] = q[j], q[i] }
func (q *readyQueue) Push(x any)        { *q = append(*q, x.(int)) }
func (q *readyQueue) Pop() any {
	old := *q
	n := len(old)
	x := old[n-1]
	*q = old[:n-1]
	return x
}

// TopologicalSort orders the passes so that every edge points forward.
// Passes without a relative constraint keep their declaration order.
// If the graph has a cycle it returns a *CycleError listing the passes on it.
func (g *DependencyGraph) TopologicalSort() ([]int, error) {
	indeg := make([]int, g.n)
	for i := range g.pred {
		indeg[i] = len(g.pred[i])
	}

	q := &readyQueue{}
	for i, d := range indeg {
		if d == 0 {
			*q = append(*q, i)
		}
	}
	heap.Init(q)

	order := make([]int, 0, g.n)
	for q.Len() > 0 {
		p := heap.Pop(q).(int)
		order = append(order, p)
		for _, s := range g.succ[p] {
			indeg[s]--
			if indeg[s] == 0 {
				heap.Push(q, s)
			}
		}
	}

	if len(order) == g.n {
		return order, nil
	}
	return nil, &CycleError{Indices: g.cyclicPasses(indeg)}
}

// cyclicPasses trims the passes left over by the sort down to those that
// lie on a cycle, dropping passes that are merely downstream of one.
func (g *DependencyGraph) cyclicPasses(indeg []int) []int {
	left := make([]bool, g.n)
	for i, d := range indeg {
		left[i] = d > 0
	}
	outdeg := make([]int, g.n)
	var stack []int
	for i := range left {
		if !left[i] {
			continue
		}
		for _, s := range g.succ[i] {
			if left[s] {
				outdeg[i]++
			}
		}
		if outdeg[i] == 0 {
			stack = append(stack, i)
		}
	}
	for len(stack) > 0 {
		p := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		left[p] = false
		for _, pr := range g.pred[p] {
			if left[pr] {
				outdeg[pr]--
				if outdeg[pr] == 0 {
					stack = append(stack, pr)
				}
			}
		}
	}

	var out []int
	for i, ok := range left {
		if ok {
			out = append(out, i)
		}
	}
	return out
}
