package hnsw

import (
	"fmt"
	"strings"
)

// Stats describes the shape of the HNSW graph.
type Stats struct {
	Live       int
	Tombstones int
	MaxLevel   int

	// NodesPerLevel[l] counts nodes whose top layer is l.
	NodesPerLevel []int
	// AvgConnections[l] is the mean out-degree on layer l.
	AvgConnections []float64
}

// Stats returns statistics about the HNSW graph.
func (h *Index) Stats() Stats {
	h.mu.RLock()
	defer h.mu.RUnlock()

	g := h.g
	s := Stats{
		Live:           g.live(),
		Tombstones:     int(g.tombstones.GetCardinality()),
		MaxLevel:       g.maxLevel,
		NodesPerLevel:  make([]int, g.maxLevel+1),
		AvgConnections: make([]float64, g.maxLevel+1),
	}
	if len(g.nodes) == 0 {
		return s
	}

	onLevel := make([]int, g.maxLevel+1)
	links := make([]int, g.maxLevel+1)
	for _, n := range g.nodes {
		s.NodesPerLevel[len(n.links)-1]++
		for l, conns := range n.links {
			onLevel[l]++
			links[l] += len(conns)
		}
	}
	for l := range links {
		if onLevel[l] > 0 {
			s.AvgConnections[l] = float64(links[l]) / float64(onLevel[l])
		}
	}
	return s
}

func (s Stats) String() string {
	var b strings.Builder
	fmt.Fprintf(&b, "live=%d tombstones=%d max_level=%d", s.Live, s.Tombstones, s.MaxLevel)
	for l := range s.NodesPerLevel {
		fmt.Fprintf(&b, " L%d(nodes=%d,avg_links=%.1f)", l, s.NodesPerLevel[l], s.AvgConnections[l])
	}
	return b.String()
}
