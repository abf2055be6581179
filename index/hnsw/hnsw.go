// Package hnsw implements an approximate near.Index backed by a Hierarchical
// Navigable Small World graph.
//
// The graph is stored arena-style: nodes live in a flat slice and link to
// each other by slot number. Deleted records are tombstoned in a roaring
// bitmap; their nodes keep routing traversals but are never returned, and
// Rebuild compacts them away.
package hnsw

import (
	"cmp"
	"context"
	"fmt"
	"log/slog"
	"slices"
	"sync"
	"sync/atomic"

	"github.com/hupe1980/near"
)

// Name is the registry name of the HNSW index.
const Name = "hnsw"

const (
	// mmax0Multiplier is the multiplier for calculating maximum connections at layer 0.
	mmax0Multiplier = 2

	// minimumM is the minimum valid value for M.
	minimumM = 2

	// DefaultM is the default number of bidirectional links per layer.
	DefaultM = 16

	// DefaultEfConstruction is the default beam width while inserting.
	DefaultEfConstruction = 200

	// DefaultEfSearch is the default beam width while searching.
	DefaultEfSearch = 128

	// DefaultRecallTarget is the documented recall@k under default tuning.
	DefaultRecallTarget = 0.9
)

// Compile-time checks
var _ near.Approximate = (*Index)(nil)

// Options represents the options for configuring HNSW.
type Options struct {
	M              int
	EfConstruction int
	EfSearch       int
	Seed           int64
	RecallTarget   float64
	Logger         *slog.Logger
}

// DefaultOptions are used by New unless overridden.
var DefaultOptions = Options{
	M:              DefaultM,
	EfConstruction: DefaultEfConstruction,
	EfSearch:       DefaultEfSearch,
	Seed:           42,
	RecallTarget:   DefaultRecallTarget,
}

// Option configures the HNSW index.
type Option func(o *Options)

// WithM sets the number of links per node and layer (2*M on layer 0).
func WithM(m int) Option { return func(o *Options) { o.M = m } }

// WithEfConstruction sets the beam width used while inserting.
func WithEfConstruction(ef int) Option { return func(o *Options) { o.EfConstruction = ef } }

// WithEfSearch sets the minimum beam width used while searching.
func WithEfSearch(ef int) Option { return func(o *Options) { o.EfSearch = ef } }

// WithSeed seeds layer assignment. Builds with the same seed and insertion
// order produce the same graph.
func WithSeed(seed int64) Option { return func(o *Options) { o.Seed = seed } }

// WithRecallTarget sets the recall bound published by RecallTarget.
func WithRecallTarget(r float64) Option { return func(o *Options) { o.RecallTarget = r } }

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option { return func(o *Options) { o.Logger = l } }

func (o Options) validate() error {
	if o.M < minimumM {
		return fmt.Errorf("hnsw: M must be at least %d, got %d", minimumM, o.M)
	}
	if o.EfConstruction < 1 {
		return fmt.Errorf("hnsw: efConstruction must be positive, got %d", o.EfConstruction)
	}
	if o.EfSearch < 1 {
		return fmt.Errorf("hnsw: efSearch must be positive, got %d", o.EfSearch)
	}
	if o.RecallTarget < 0 || o.RecallTarget > 1 {
		return fmt.Errorf("hnsw: recall target must be in [0, 1], got %v", o.RecallTarget)
	}
	return nil
}

// Index is an approximate nearest-neighbor index.
//
// Mutations are serialized by writeMu. Backend writes happen before mu is
// taken; the graph update is applied under the exclusive lock, which is the
// linearization point. Searches hold mu shared.
type Index struct {
	space   near.Space
	backend near.Backend
	opts    Options
	logger  *slog.Logger

	writeMu sync.Mutex
	mu      sync.RWMutex
	g       *graph
	closed  atomic.Bool

	visitedPool sync.Pool
}

// New creates an HNSW index bound to space and backend and builds the graph
// from the backend's current records.
func New(ctx context.Context, space near.Space, backend near.Backend, optFns ...Option) (*Index, error) {
	if backend == nil {
		return nil, fmt.Errorf("hnsw: backend is nil")
	}
	if space.Dimension() <= 0 {
		return nil, fmt.Errorf("hnsw: %w", near.ErrInvalidDimension)
	}

	opts := DefaultOptions
	for _, fn := range optFns {
		fn(&opts)
	}
	if err := opts.validate(); err != nil {
		return nil, err
	}
	if opts.Logger == nil {
		opts.Logger = slog.New(slog.DiscardHandler)
	}

	h := &Index{
		space:   space,
		backend: backend,
		opts:    opts,
		logger:  opts.Logger.With("index", Name),
	}
	h.visitedPool.New = func() any { return newVisitedSet(1024) }

	g, err := h.build(ctx)
	if err != nil {
		return nil, err
	}
	h.g = g

	h.logger.InfoContext(ctx, "index loaded", "live", g.live(), "max_level", g.maxLevel, "space", space.String())
	return h, nil
}

// Factory adapts New to near.Factory.
func Factory(optFns ...Option) near.Factory {
	return func(ctx context.Context, space near.Space, backend near.Backend) (near.Index, error) {
		idx, err := New(ctx, space, backend, optFns...)
		if err != nil {
			return nil, err
		}
		return idx, nil
	}
}

func (*Index) Name() string { return Name }

// Space returns the index's space.
func (h *Index) Space() near.Space { return h.space }

// RecallTarget returns the configured recall bound.
func (h *Index) RecallTarget() float64 { return h.opts.RecallTarget }

// build scans the backend and inserts the live set into a fresh graph in
// ascending id order, so the result depends only on the live set and the seed.
func (h *Index) build(ctx context.Context) (*graph, error) {
	records, err := near.Collect(ctx, h.backend)
	if err != nil {
		return nil, err
	}
	slices.SortFunc(records, func(a, b near.Record) int { return cmp.Compare(a.ID, b.ID) })

	g := newGraph(h.opts, h.space.Func(), len(records))
	for i, rec := range records {
		if err := h.space.Check(rec.Vector); err != nil {
			return nil, fmt.Errorf("hnsw: record %d: %w", rec.ID, err)
		}
		if i > 0 && records[i-1].ID == rec.ID {
			return nil, fmt.Errorf("hnsw: record %d: %w", rec.ID, near.ErrDuplicateID)
		}
		if i%1024 == 0 {
			if err := ctx.Err(); err != nil {
				return nil, err
			}
		}
		g.insert(rec.ID, rec.Vector)
	}
	return g, nil
}

func (h *Index) checkOpen() error {
	if h.closed.Load() {
		return near.ErrClosed
	}
	return nil
}

// Contains reports whether id is live.
func (h *Index) Contains(id near.ID) bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.g.contains(id)
}

// Insert writes the record to the backend and then links it into the graph.
func (h *Index) Insert(ctx context.Context, id near.ID, vector []float32, metadata []byte) error {
	if err := h.checkOpen(); err != nil {
		return err
	}
	if err := h.space.Check(vector); err != nil {
		return err
	}

	h.writeMu.Lock()
	defer h.writeMu.Unlock()

	// Close may have won the race for writeMu.
	if err := h.checkOpen(); err != nil {
		return err
	}

	if h.Contains(id) {
		return fmt.Errorf("hnsw: insert %d: %w", id, near.ErrDuplicateID)
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	rec := near.Record{ID: id, Vector: slices.Clone(vector), Metadata: slices.Clone(metadata)}
	if err := h.backend.Put(ctx, rec); err != nil {
		if cerr := ctx.Err(); cerr != nil {
			// The put may have landed before the caller gave up.
			_ = h.backend.Remove(context.WithoutCancel(ctx), id)
			return cerr
		}
		h.logger.ErrorContext(ctx, "backend put failed", "id", id, "error", err)
		return near.WrapStorage("put", id, err)
	}

	h.mu.Lock()
	h.g.insert(id, rec.Vector)
	h.mu.Unlock()

	return nil
}

// Delete removes the record from the backend and tombstones its node.
func (h *Index) Delete(ctx context.Context, id near.ID) error {
	if err := h.checkOpen(); err != nil {
		return err
	}

	h.writeMu.Lock()
	defer h.writeMu.Unlock()

	// Close may have won the race for writeMu.
	if err := h.checkOpen(); err != nil {
		return err
	}

	if !h.Contains(id) {
		return fmt.Errorf("hnsw: delete %d: %w", id, near.ErrNotFound)
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	if err := h.backend.Remove(ctx, id); err != nil {
		if cerr := ctx.Err(); cerr != nil {
			return cerr
		}
		h.logger.ErrorContext(ctx, "backend remove failed", "id", id, "error", err)
		return near.WrapStorage("remove", id, err)
	}

	h.mu.Lock()
	h.g.delete(id)
	h.mu.Unlock()

	return nil
}

// Search performs a greedy descent to layer 0 followed by a beam search of
// width max(efSearch, k).
func (h *Index) Search(ctx context.Context, query []float32, k int) ([]near.Result, error) {
	if err := h.checkOpen(); err != nil {
		return nil, err
	}
	if err := near.ValidateK(k); err != nil {
		return nil, err
	}
	if err := h.space.Check(query); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	h.mu.RLock()
	defer h.mu.RUnlock()

	g := h.g
	if len(g.nodes) == 0 || g.live() == 0 {
		return []near.Result{}, nil
	}

	visited := h.visitedPool.Get().(*visitedSet)
	defer h.visitedPool.Put(visited)

	cur := g.entry
	curDist := g.dist(query, g.nodes[cur].vector)
	for l := g.maxLevel; l > 0; l-- {
		cur, curDist = g.greedy(query, cur, curDist, l)
	}

	items := g.searchLayer(query, cur, curDist, 0, max(h.opts.EfSearch, k), false, visited)

	results := make([]near.Result, len(items))
	for i, item := range items {
		results[i] = near.Result{ID: g.nodes[item.Node].id, Distance: item.Distance}
	}
	near.SortResults(results)

	return results[:min(k, len(results))], nil
}

// Len returns the number of live records.
func (h *Index) Len() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.g.live()
}

// Rebuild builds a fresh graph from the backend's live records and swaps it
// in. Tombstoned nodes are dropped. Searches keep running on the old graph
// until the swap.
func (h *Index) Rebuild(ctx context.Context) error {
	if err := h.checkOpen(); err != nil {
		return err
	}

	h.writeMu.Lock()
	defer h.writeMu.Unlock()

	// Close may have won the race for writeMu.
	if err := h.checkOpen(); err != nil {
		return err
	}

	g, err := h.build(ctx)
	if err != nil {
		h.logger.ErrorContext(ctx, "rebuild failed", "error", err)
		return err
	}

	h.mu.Lock()
	dropped := h.g.tombstones.GetCardinality()
	h.g = g
	h.mu.Unlock()

	h.logger.InfoContext(ctx, "index rebuilt", "live", g.live(), "tombstones_dropped", dropped)
	return nil
}

// Close releases the graph. The backend stays open.
func (h *Index) Close() error {
	if h.closed.Swap(true) {
		return nil
	}
	h.writeMu.Lock()
	defer h.writeMu.Unlock()
	h.mu.Lock()
	h.g = newGraph(h.opts, h.space.Func(), 0)
	h.mu.Unlock()
	return nil
}
