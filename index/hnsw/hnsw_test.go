package hnsw

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hupe1980/near"
	"github.com/hupe1980/near/index/flat"
	"github.com/hupe1980/near/neartest"
	"github.com/hupe1980/near/storage/memory"
)

func TestConformance(t *testing.T) {
	neartest.RunConformance(t, Factory())
}

func TestNew(t *testing.T) {
	ctx := context.Background()
	space := near.MustSpace(16, near.MetricEuclidean)

	h, err := New(ctx, space, memory.New(), WithM(8), WithEfConstruction(100), WithEfSearch(32))
	require.NoError(t, err)

	assert.Equal(t, 8, h.opts.M)
	assert.Equal(t, 8, h.g.m)
	assert.Equal(t, 16, h.g.m0)
	assert.Equal(t, 100, h.opts.EfConstruction)
	assert.Equal(t, 32, h.opts.EfSearch)
	assert.Equal(t, DefaultRecallTarget, h.RecallTarget())

	h, err = New(ctx, space, memory.New(), WithRecallTarget(0.95))
	require.NoError(t, err)
	assert.Equal(t, 0.95, h.RecallTarget())

	invalid := map[string]Option{
		"M":              WithM(1),
		"EfConstruction": WithEfConstruction(0),
		"EfSearch":       WithEfSearch(0),
		"RecallTarget":   WithRecallTarget(1.5),
	}
	for name, opt := range invalid {
		t.Run(name, func(t *testing.T) {
			_, err := New(ctx, space, memory.New(), opt)
			assert.Error(t, err)
		})
	}
}

type recallCase struct {
	size int
	dim  int
	k    int
	opts []Option
}

func TestRecall(t *testing.T) {
	ctx := context.Background()

	cases := []recallCase{
		{size: 1000, dim: 16, k: 10},
		{size: 2000, dim: 32, k: 10},
		{size: 1000, dim: 16, k: 10, opts: []Option{WithM(8)}},
	}

	for _, tc := range cases {
		t.Run(fmt.Sprintf("Vec=%d,Dim=%d,K=%d,Opts=%d", tc.size, tc.dim, tc.k, len(tc.opts)), func(t *testing.T) {
			space := near.MustSpace(tc.dim, near.MetricEuclidean)
			rng := neartest.NewRNG(4711)

			h, err := New(ctx, space, memory.New(), tc.opts...)
			require.NoError(t, err)
			oracle, err := flat.New(ctx, space, memory.New())
			require.NoError(t, err)

			for i, v := range rng.UniformVectors(tc.size, tc.dim) {
				require.NoError(t, h.Insert(ctx, near.ID(i), v, nil))
				require.NoError(t, oracle.Insert(ctx, near.ID(i), v, nil))
			}

			recall, err := neartest.MeasureRecall(ctx, h, oracle, rng.UniformVectors(100, tc.dim), tc.k)
			require.NoError(t, err)
			t.Logf("recall@%d => %f", tc.k, recall)
			assert.GreaterOrEqual(t, recall, h.RecallTarget())
		})
	}
}

func TestRecallAfterDeletes(t *testing.T) {
	ctx := context.Background()
	const dim = 16
	space := near.MustSpace(dim, near.MetricCosine)
	rng := neartest.NewRNG(7)

	h, err := New(ctx, space, memory.New())
	require.NoError(t, err)
	oracle, err := flat.New(ctx, space, memory.New())
	require.NoError(t, err)

	for i, v := range rng.ClusteredVectors(1500, dim, 10, 0.2) {
		require.NoError(t, h.Insert(ctx, near.ID(i), v, nil))
		require.NoError(t, oracle.Insert(ctx, near.ID(i), v, nil))
	}
	for i := 0; i < 1500; i += 3 {
		require.NoError(t, h.Delete(ctx, near.ID(i)))
		require.NoError(t, oracle.Delete(ctx, near.ID(i)))
	}
	assert.Equal(t, oracle.Len(), h.Len())

	queries := rng.ClusteredVectors(100, dim, 10, 0.2)

	recall, err := neartest.MeasureRecall(ctx, h, oracle, queries, 10)
	require.NoError(t, err)
	assert.GreaterOrEqual(t, recall, h.RecallTarget())

	require.NoError(t, h.Rebuild(ctx))
	assert.Equal(t, 0, h.Stats().Tombstones)

	recall, err = neartest.MeasureRecall(ctx, h, oracle, queries, 10)
	require.NoError(t, err)
	assert.GreaterOrEqual(t, recall, h.RecallTarget())
}

// unreachable returns the slots on level that a traversal from the entry
// point cannot reach. Tombstoned nodes count: they still route.
func unreachable(g *graph, level int) []uint32 {
	reached := map[uint32]bool{g.entry: true}
	stack := []uint32{g.entry}
	for len(stack) > 0 {
		s := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		for _, n := range g.nodes[s].links[level] {
			if !reached[n] {
				reached[n] = true
				stack = append(stack, n)
			}
		}
	}

	var out []uint32
	for s, n := range g.nodes {
		if len(n.links) > level && !reached[uint32(s)] {
			out = append(out, uint32(s))
		}
	}
	return out
}

func assertNavigable(t *testing.T, h *Index) {
	t.Helper()
	h.mu.RLock()
	defer h.mu.RUnlock()
	for l := 0; l <= h.g.maxLevel; l++ {
		assert.Empty(t, unreachable(h.g, l), "level %d", l)
	}
}

// Every node stays reachable from the entry point on every level across
// interleaved inserts and deletes.
func TestNavigability(t *testing.T) {
	ctx := context.Background()
	const dim = 8
	h, err := New(ctx, near.MustSpace(dim, near.MetricEuclidean), memory.New(), WithM(4))
	require.NoError(t, err)

	rng := neartest.NewRNG(3)
	vectors := rng.UniformVectors(900, dim)

	for i, v := range vectors[:600] {
		require.NoError(t, h.Insert(ctx, near.ID(i), v, nil))
	}
	for _, i := range rng.Perm(600)[:250] {
		require.NoError(t, h.Delete(ctx, near.ID(i)))
	}
	for i, v := range vectors[600:] {
		require.NoError(t, h.Insert(ctx, near.ID(600+i), v, nil))
	}

	assertNavigable(t, h)
}

// Tight clusters with a small M overflow link lists constantly; pruning must
// never cut a node off.
func TestNavigabilityClustered(t *testing.T) {
	ctx := context.Background()
	const (
		size = 3000
		dim  = 8
	)

	for _, m := range []int{2, 4} {
		for _, seed := range []int64{1, 2, 3} {
			t.Run(fmt.Sprintf("M=%d,Seed=%d", m, seed), func(t *testing.T) {
				h, err := New(ctx, near.MustSpace(dim, near.MetricEuclidean), memory.New(),
					WithM(m), WithEfConstruction(64), WithSeed(seed))
				require.NoError(t, err)

				for i, v := range neartest.NewRNG(seed).ClusteredVectors(size, dim, 20, 0.01) {
					require.NoError(t, h.Insert(ctx, near.ID(i), v, nil))
				}
				assert.Equal(t, size, h.Len())
				assertNavigable(t, h)
			})
		}
	}
}

func TestRebuildDeterministic(t *testing.T) {
	ctx := context.Background()
	const dim = 12
	space := near.MustSpace(dim, near.MetricEuclidean)
	rng := neartest.NewRNG(11)
	vectors := rng.UniformVectors(400, dim)
	queries := rng.UniformVectors(20, dim)

	build := func(order []int) *Index {
		h, err := New(ctx, space, memory.New(), WithSeed(99), WithEfSearch(10))
		require.NoError(t, err)
		for _, i := range order {
			require.NoError(t, h.Insert(ctx, near.ID(i), vectors[i], nil))
		}
		require.NoError(t, h.Rebuild(ctx))
		return h
	}

	a := build(rng.Perm(len(vectors)))
	b := build(rng.Perm(len(vectors)))

	assert.Equal(t, a.Stats(), b.Stats())
	for _, q := range queries {
		ra, err := a.Search(ctx, q, 10)
		require.NoError(t, err)
		rb, err := b.Search(ctx, q, 10)
		require.NoError(t, err)
		assert.Equal(t, ra, rb)
	}
}

func TestDotProductOrdering(t *testing.T) {
	ctx := context.Background()
	h, err := New(ctx, near.MustSpace(3, near.MetricDot), memory.New(), WithM(8), WithEfSearch(50))
	require.NoError(t, err)

	require.NoError(t, h.Insert(ctx, 0, []float32{1, 0, 0}, nil))
	require.NoError(t, h.Insert(ctx, 1, []float32{2, 0, 0}, nil))
	require.NoError(t, h.Insert(ctx, 2, []float32{-1, 0, 0}, nil))

	res, err := h.Search(ctx, []float32{1, 0, 0}, 3)
	require.NoError(t, err)
	assert.Equal(t, []near.Result{{ID: 1, Distance: -2}, {ID: 0, Distance: -1}, {ID: 2, Distance: 1}}, res)
}

func TestAllDeleted(t *testing.T) {
	ctx := context.Background()
	h, err := New(ctx, near.MustSpace(2, near.MetricEuclidean), memory.New())
	require.NoError(t, err)

	require.NoError(t, h.Insert(ctx, 1, []float32{0, 0}, nil))
	require.NoError(t, h.Delete(ctx, 1))

	res, err := h.Search(ctx, []float32{0, 0}, 1)
	require.NoError(t, err)
	assert.Empty(t, res)

	// A node inserted behind a tombstoned entry point is still reachable.
	require.NoError(t, h.Insert(ctx, 2, []float32{1, 1}, nil))
	res, err = h.Search(ctx, []float32{0, 0}, 1)
	require.NoError(t, err)
	require.Len(t, res, 1)
	assert.Equal(t, near.ID(2), res[0].ID)
}

func TestStats(t *testing.T) {
	ctx := context.Background()
	h, err := New(ctx, near.MustSpace(4, near.MetricEuclidean), memory.New())
	require.NoError(t, err)

	for i, v := range neartest.NewRNG(1).UniformVectors(100, 4) {
		require.NoError(t, h.Insert(ctx, near.ID(i), v, nil))
	}
	require.NoError(t, h.Delete(ctx, 5))

	s := h.Stats()
	assert.Equal(t, 99, s.Live)
	assert.Equal(t, 1, s.Tombstones)
	assert.Len(t, s.NodesPerLevel, s.MaxLevel+1)

	total := 0
	for _, n := range s.NodesPerLevel {
		total += n
	}
	assert.Equal(t, 100, total)
	assert.Greater(t, s.AvgConnections[0], 0.0)
	assert.Contains(t, s.String(), "live=99")
}
