// Package flat provides an exact brute-force implementation of near.Index.
//
// Flat is the correctness oracle for approximate variants: every search
// computes the distance to every live vector and keeps the k best in a
// bounded heap, so results carry no approximation error.
package flat

import (
	"context"
	"fmt"
	"log/slog"
	"slices"
	"sync"
	"sync/atomic"

	"github.com/hupe1980/near"
	"github.com/hupe1980/near/internal/queue"
)

// Name is the registry name of the flat index.
const Name = "flat"

// cancelCheckInterval is how many vectors a search scans between context checks.
const cancelCheckInterval = 4096

// Compile-time checks to ensure Index satisfies required interfaces.
var _ near.Index = (*Index)(nil)

// Options contains configuration options for the flat index.
type Options struct {
	// Logger receives load and rebuild summaries. Defaults to a discarding logger.
	Logger *slog.Logger
}

// Option configures the flat index.
type Option func(o *Options)

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(o *Options) {
		o.Logger = l
	}
}

// state is the mirror of live vectors. ids and vectors are parallel slices;
// pos maps an id to its position in both.
type state struct {
	ids     []near.ID
	vectors [][]float32
	pos     map[near.ID]int
}

func newState(capacity int) state {
	return state{
		ids:     make([]near.ID, 0, capacity),
		vectors: make([][]float32, 0, capacity),
		pos:     make(map[near.ID]int, capacity),
	}
}

func (s *state) add(id near.ID, v []float32) {
	s.pos[id] = len(s.ids)
	s.ids = append(s.ids, id)
	s.vectors = append(s.vectors, v)
}

// remove swap-deletes id. The caller must have checked presence.
func (s *state) remove(id near.ID) {
	i := s.pos[id]
	last := len(s.ids) - 1
	if i != last {
		s.ids[i] = s.ids[last]
		s.vectors[i] = s.vectors[last]
		s.pos[s.ids[i]] = i
	}
	s.vectors[last] = nil
	s.ids = s.ids[:last]
	s.vectors = s.vectors[:last]
	delete(s.pos, id)
}

// Index is an exact nearest-neighbor index.
//
// Mutations are serialized by writeMu and touch the backend before the
// in-memory state; the state itself is guarded by mu, which mutations hold
// exclusively only while publishing. Searches hold mu shared for their scan,
// so backend latency never blocks readers.
type Index struct {
	space   near.Space
	backend near.Backend
	logger  *slog.Logger

	writeMu sync.Mutex
	mu      sync.RWMutex
	st      state
	closed  atomic.Bool
}

// New creates a flat index bound to space and backend and loads the
// backend's current records.
func New(ctx context.Context, space near.Space, backend near.Backend, optFns ...Option) (*Index, error) {
	if backend == nil {
		return nil, fmt.Errorf("flat: backend is nil")
	}
	if space.Dimension() <= 0 {
		return nil, fmt.Errorf("flat: %w", near.ErrInvalidDimension)
	}

	opts := Options{}
	for _, fn := range optFns {
		fn(&opts)
	}
	if opts.Logger == nil {
		opts.Logger = slog.New(slog.DiscardHandler)
	}

	f := &Index{
		space:   space,
		backend: backend,
		logger:  opts.Logger.With("index", Name),
	}

	st, err := f.load(ctx)
	if err != nil {
		return nil, err
	}
	f.st = st

	f.logger.InfoContext(ctx, "index loaded", "live", len(st.ids), "space", space.String())
	return f, nil
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
func (f *Index) Space() near.Space { return f.space }

// load builds a fresh state from a full backend scan.
func (f *Index) load(ctx context.Context) (state, error) {
	st := newState(0)
	for rec, err := range f.backend.Scan(ctx) {
		if err != nil {
			if cerr := ctx.Err(); cerr != nil {
				return state{}, cerr
			}
			return state{}, near.WrapStorage("scan", rec.ID, err)
		}
		if err := f.space.Check(rec.Vector); err != nil {
			return state{}, fmt.Errorf("flat: record %d: %w", rec.ID, err)
		}
		if _, dup := st.pos[rec.ID]; dup {
			return state{}, fmt.Errorf("flat: record %d: %w", rec.ID, near.ErrDuplicateID)
		}
		st.add(rec.ID, rec.Vector)
	}
	return st, nil
}

func (f *Index) checkOpen() error {
	if f.closed.Load() {
		return near.ErrClosed
	}
	return nil
}

// Contains reports whether id is live.
func (f *Index) Contains(id near.ID) bool {
	f.mu.RLock()
	defer f.mu.RUnlock()
	_, ok := f.st.pos[id]
	return ok
}

// IDs returns the live ids in ascending order.
func (f *Index) IDs() []near.ID {
	f.mu.RLock()
	ids := slices.Clone(f.st.ids)
	f.mu.RUnlock()
	slices.Sort(ids)
	return ids
}

// Insert adds a record to the backend and then publishes its vector.
func (f *Index) Insert(ctx context.Context, id near.ID, vector []float32, metadata []byte) error {
	if err := f.checkOpen(); err != nil {
		return err
	}
	if err := f.space.Check(vector); err != nil {
		return err
	}

	f.writeMu.Lock()
	defer f.writeMu.Unlock()

	// Close may have won the race for writeMu.
	if err := f.checkOpen(); err != nil {
		return err
	}

	if f.Contains(id) {
		return fmt.Errorf("flat: insert %d: %w", id, near.ErrDuplicateID)
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	// Copy the vector so changes outside this function don't affect the index.
	rec := near.Record{ID: id, Vector: slices.Clone(vector), Metadata: slices.Clone(metadata)}
	if err := f.backend.Put(ctx, rec); err != nil {
		if cerr := ctx.Err(); cerr != nil {
			// The put may have landed before the caller gave up.
			_ = f.backend.Remove(context.WithoutCancel(ctx), id)
			return cerr
		}
		f.logger.ErrorContext(ctx, "backend put failed", "id", id, "error", err)
		return near.WrapStorage("put", id, err)
	}

	f.mu.Lock()
	f.st.add(id, rec.Vector)
	f.mu.Unlock()

	return nil
}

// Delete removes a record from the backend and then from the index.
func (f *Index) Delete(ctx context.Context, id near.ID) error {
	if err := f.checkOpen(); err != nil {
		return err
	}

	f.writeMu.Lock()
	defer f.writeMu.Unlock()

	// Close may have won the race for writeMu.
	if err := f.checkOpen(); err != nil {
		return err
	}

	if !f.Contains(id) {
		return fmt.Errorf("flat: delete %d: %w", id, near.ErrNotFound)
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	if err := f.backend.Remove(ctx, id); err != nil {
		if cerr := ctx.Err(); cerr != nil {
			return cerr
		}
		f.logger.ErrorContext(ctx, "backend remove failed", "id", id, "error", err)
		return near.WrapStorage("remove", id, err)
	}

	f.mu.Lock()
	f.st.remove(id)
	f.mu.Unlock()

	return nil
}

// Search performs an exact k-nearest-neighbor scan.
func (f *Index) Search(ctx context.Context, query []float32, k int) ([]near.Result, error) {
	if err := f.checkOpen(); err != nil {
		return nil, err
	}
	if err := near.ValidateK(k); err != nil {
		return nil, err
	}
	if err := f.space.Check(query); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	dist := f.space.Func()

	f.mu.RLock()
	defer f.mu.RUnlock()

	top := queue.NewTopK(min(k, len(f.st.ids)))
	for i, vec := range f.st.vectors {
		if i%cancelCheckInterval == cancelCheckInterval-1 {
			if err := ctx.Err(); err != nil {
				return nil, err
			}
		}
		top.Offer(queue.PriorityQueueItem{Node: uint64(f.st.ids[i]), Distance: dist(query, vec)})
	}

	items := top.Sorted()
	results := make([]near.Result, len(items))
	for i, item := range items {
		results[i] = near.Result{ID: near.ID(item.Node), Distance: item.Distance}
	}
	return results, nil
}

// Len returns the number of live records.
func (f *Index) Len() int {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return len(f.st.ids)
}

// Rebuild re-reads the live set from the backend. Flat keeps no derived
// structure, so this only refreshes the vector mirror.
func (f *Index) Rebuild(ctx context.Context) error {
	if err := f.checkOpen(); err != nil {
		return err
	}

	f.writeMu.Lock()
	defer f.writeMu.Unlock()

	// Close may have won the race for writeMu.
	if err := f.checkOpen(); err != nil {
		return err
	}

	st, err := f.load(ctx)
	if err != nil {
		return err
	}

	f.mu.Lock()
	f.st = st
	f.mu.Unlock()

	f.logger.InfoContext(ctx, "index rebuilt", "live", len(st.ids))
	return nil
}

// Close releases the vector mirror. The backend stays open.
func (f *Index) Close() error {
	if f.closed.Swap(true) {
		return nil
	}
	f.writeMu.Lock()
	defer f.writeMu.Unlock()
	f.mu.Lock()
	f.st = newState(0)
	f.mu.Unlock()
	return nil
}
