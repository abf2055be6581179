package hnsw

// visitedSet tracks visited slots using generation tokens for O(1) reset.
type visitedSet struct {
	visited []uint32
	token   uint32
}

func newVisitedSet(capacity int) *visitedSet {
	return &visitedSet{
		visited: make([]uint32, capacity),
		token:   1,
	}
}

// Visit marks a slot as visited.
func (v *visitedSet) Visit(slot uint32) {
	v.ensureCapacity(int(slot))
	v.visited[slot] = v.token
}

// Visited returns true if the slot has been visited.
func (v *visitedSet) Visited(slot uint32) bool {
	if int(slot) >= len(v.visited) {
		return false
	}
	return v.visited[slot] == v.token
}

// Reset prepares the set for a new traversal by incrementing the generation token.
func (v *visitedSet) Reset() {
	v.token++
	if v.token == 0 {
		// Overflow, clear all.
		clear(v.visited)
		v.token = 1
	}
}

func (v *visitedSet) ensureCapacity(idx int) {
	if idx < len(v.visited) {
		return
	}
	newCap := len(v.visited) * 2
	if newCap <= idx {
		newCap = idx + 1
	}
	grown := make([]uint32, newCap)
	copy(grown, v.visited)
	v.visited = grown
}
