package hnsw

import (
	"math"
	"math/rand"
	"slices"

	"github.com/RoaringBitmap/roaring/v2"

	"github.com/hupe1980/near"
	"github.com/hupe1980/near/distance"
	"github.com/hupe1980/near/internal/queue"
)

// maxLevelCap bounds the random layer assignment.
const maxLevelCap = 16

// noParent marks the first node of a layer.
const noParent = math.MaxUint32

// node is one arena entry. Links hold slots, never pointers.
//
// parent[l] is the neighbor the node was attached to on layer l. The links
// node->parent and parent->node are never pruned, so on every layer the parent
// edges form a tree whose edges run both ways and every node on the layer
// stays reachable from every other. Link lists may exceed the degree cap by
// these edges.
type node struct {
	id     near.ID
	vector []float32
	links  [][]uint32 // links[layer]
	parent []uint32   // parent[layer]
}

// graph is the arena-backed HNSW structure. It is not safe for concurrent
// mutation; the owning Index serializes writers and guards readers.
type graph struct {
	nodes      []node
	slot       map[near.ID]uint32
	tombstones *roaring.Bitmap

	entry    uint32
	maxLevel int

	m              int
	m0             int
	efConstruction int
	levelMult      float64

	dist    distance.Func
	rng     *rand.Rand
	visited *visitedSet // writer-side traversals only
}

func newGraph(opts Options, dist distance.Func, capacity int) *graph {
	return &graph{
		nodes:          make([]node, 0, capacity),
		slot:           make(map[near.ID]uint32, capacity),
		tombstones:     roaring.New(),
		m:              opts.M,
		m0:             opts.M * mmax0Multiplier,
		efConstruction: opts.EfConstruction,
		levelMult:      1 / math.Log(float64(opts.M)),
		dist:           dist,
		rng:            rand.New(rand.NewSource(opts.Seed)),
		visited:        newVisitedSet(capacity),
	}
}

// live returns the number of searchable nodes.
func (g *graph) live() int { return len(g.slot) }

func (g *graph) contains(id near.ID) bool {
	_, ok := g.slot[id]
	return ok
}

// randomLevel draws floor(-ln(U) / ln(M)) with U in (0, 1].
func (g *graph) randomLevel() int {
	u := 1 - g.rng.Float64()
	return min(int(math.Floor(-math.Log(u)*g.levelMult)), maxLevelCap)
}

func (g *graph) maxConns(level int) int {
	if level == 0 {
		return g.m0
	}
	return g.m
}

// insert links a new node for id. The caller guarantees id is absent and
// vec has the space's dimension.
func (g *graph) insert(id near.ID, vec []float32) {
	level := g.randomLevel()
	s := uint32(len(g.nodes))
	parent := make([]uint32, level+1)
	for l := range parent {
		parent[l] = noParent
	}
	g.nodes = append(g.nodes, node{id: id, vector: vec, links: make([][]uint32, level+1), parent: parent})
	g.slot[id] = s

	if s == 0 {
		g.entry = s
		g.maxLevel = level
		return
	}

	cur := g.entry
	curDist := g.dist(vec, g.nodes[cur].vector)

	// 1. Greedy descent from the top to level + 1.
	for l := g.maxLevel; l > level; l-- {
		cur, curDist = g.greedy(vec, cur, curDist, l)
	}

	// 2. Beam search and link from min(level, maxLevel) down to 0. Tombstoned
	// nodes are valid link targets: they keep routing until the next rebuild.
	for l := min(level, g.maxLevel); l >= 0; l-- {
		candidates := g.searchLayer(vec, cur, curDist, l, g.efConstruction, true, g.visited)
		if len(candidates) == 0 {
			continue
		}
		cur, curDist = uint32(candidates[0].Node), candidates[0].Distance

		neighbors := g.selectNeighbors(candidates, g.maxConns(l))
		g.nodes[s].parent[l] = g.pickParent(neighbors, l)
		g.nodes[s].links[l] = neighbors
		for _, n := range neighbors {
			g.addConnection(n, s, l)
		}
	}

	if level > g.maxLevel {
		g.maxLevel = level
		g.entry = s
	}
}

// delete tombstones id. The node keeps its links so traversals still pass through it.
func (g *graph) delete(id near.ID) bool {
	s, ok := g.slot[id]
	if !ok {
		return false
	}
	delete(g.slot, id)
	g.tombstones.Add(s)
	return true
}

// greedy walks to the closest neighbor on level until no neighbor improves.
func (g *graph) greedy(q []float32, cur uint32, curDist float64, level int) (uint32, float64) {
	for changed := true; changed; {
		changed = false
		for _, next := range g.nodes[cur].links[level] {
			if d := g.dist(q, g.nodes[next].vector); d < curDist {
				cur, curDist = next, d
				changed = true
			}
		}
	}
	return cur, curDist
}

// searchLayer runs a beam search of width ef on level and returns the
// results best first. Tombstoned nodes are always traversed but only
// returned when includeDeleted is set.
func (g *graph) searchLayer(q []float32, ep uint32, epDist float64, level, ef int, includeDeleted bool, visited *visitedSet) []queue.PriorityQueueItem {
	visited.Reset()

	candidates := queue.NewMin(ef)  // best candidate to explore on top
	results := queue.NewMax(ef + 1) // worst kept result on top

	visited.Visit(ep)
	candidates.PushItem(queue.PriorityQueueItem{Node: uint64(ep), Distance: epDist})
	if includeDeleted || !g.tombstones.Contains(ep) {
		results.PushItem(queue.PriorityQueueItem{Node: uint64(ep), Distance: epDist})
	}

	for candidates.Len() > 0 {
		curr, _ := candidates.PopItem()

		if results.Len() >= ef {
			worst, _ := results.TopItem()
			if curr.Distance > worst.Distance {
				break
			}
		}

		for _, next := range g.nodes[curr.Node].links[level] {
			if visited.Visited(next) {
				continue
			}
			visited.Visit(next)

			d := g.dist(q, g.nodes[next].vector)
			if results.Len() >= ef {
				worst, _ := results.TopItem()
				if d > worst.Distance {
					continue
				}
			}

			item := queue.PriorityQueueItem{Node: uint64(next), Distance: d}
			candidates.PushItem(item)
			if includeDeleted || !g.tombstones.Contains(next) {
				results.PushItem(item)
				if results.Len() > ef {
					_, _ = results.PopItem()
				}
			}
		}
	}

	out := make([]queue.PriorityQueueItem, results.Len())
	for i := len(out) - 1; i >= 0; i-- {
		out[i], _ = results.PopItem()
	}
	return out
}

// selectNeighbors applies the relative-neighborhood heuristic to candidates
// (sorted best first): a candidate is kept only if it is closer to the base
// than to every neighbor already kept. Remaining slots are filled with the
// closest pruned candidates.
func (g *graph) selectNeighbors(candidates []queue.PriorityQueueItem, m int) []uint32 {
	if len(candidates) <= m {
		out := make([]uint32, len(candidates))
		for i, c := range candidates {
			out[i] = uint32(c.Node)
		}
		return out
	}

	result := make([]uint32, 0, m)
	pruned := make([]uint32, 0, len(candidates))

	for _, cand := range candidates {
		if len(result) >= m {
			break
		}
		candVec := g.nodes[cand.Node].vector

		good := true
		for _, r := range result {
			if g.dist(candVec, g.nodes[r].vector) < cand.Distance {
				good = false
				break
			}
		}

		if good {
			result = append(result, uint32(cand.Node))
		} else {
			pruned = append(pruned, uint32(cand.Node))
		}
	}

	for _, p := range pruned {
		if len(result) >= m {
			break
		}
		result = append(result, p)
	}

	return result
}

// pickParent returns the least connected of neighbors on level, preferring
// the closer one on ties. neighbors is non-empty and sorted best first.
func (g *graph) pickParent(neighbors []uint32, level int) uint32 {
	best := neighbors[0]
	for _, n := range neighbors[1:] {
		if len(g.nodes[n].links[level]) < len(g.nodes[best].links[level]) {
			best = n
		}
	}
	return best
}

// treeEdge reports whether a and b are linked as parent and child on level.
func (g *graph) treeEdge(a, b uint32, level int) bool {
	return g.nodes[a].parent[level] == b || g.nodes[b].parent[level] == a
}

// addConnection links source to target on level, pruning source's list
// with the heuristic when it overflows. Tree edges survive pruning.
func (g *graph) addConnection(source, target uint32, level int) {
	conns := g.nodes[source].links[level]
	for _, c := range conns {
		if c == target {
			return
		}
	}

	maxM := g.maxConns(level)
	if len(conns) < maxM {
		g.nodes[source].links[level] = append(conns, target)
		return
	}

	base := g.nodes[source].vector
	candidates := make([]queue.PriorityQueueItem, 0, len(conns)+1)
	for _, c := range conns {
		candidates = append(candidates, queue.PriorityQueueItem{Node: uint64(c), Distance: g.dist(base, g.nodes[c].vector)})
	}
	candidates = append(candidates, queue.PriorityQueueItem{Node: uint64(target), Distance: g.dist(base, g.nodes[target].vector)})
	slices.SortFunc(candidates, queue.Compare)

	kept := g.selectNeighbors(candidates, maxM)
	for _, c := range candidates {
		if n := uint32(c.Node); g.treeEdge(source, n, level) && !slices.Contains(kept, n) {
			kept = append(kept, n)
		}
	}
	g.nodes[source].links[level] = kept
}
