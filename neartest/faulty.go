package neartest

import (
	"context"
	"errors"
	"iter"
	"sync"
	"sync/atomic"

	"github.com/hupe1980/near"
)

// ErrInjected is the error returned by a FaultyBackend operation set to fail.
var ErrInjected = errors.New("neartest: injected storage failure")

var _ near.Backend = (*FaultyBackend)(nil)

// FaultyBackend wraps a backend and fails selected operations on demand.
type FaultyBackend struct {
	inner near.Backend

	failGet    atomic.Bool
	failPut    atomic.Bool
	failRemove atomic.Bool
	failScan   atomic.Bool

	puts atomic.Int64

	mu         sync.Mutex
	holdPut    chan struct{}
	holdRemove chan struct{}
	waiting    atomic.Int64
}

// NewFaultyBackend wraps inner. All operations succeed until told otherwise.
func NewFaultyBackend(inner near.Backend) *FaultyBackend {
	return &FaultyBackend{inner: inner}
}

// FailGet toggles failure of Get.
func (f *FaultyBackend) FailGet(fail bool) { f.failGet.Store(fail) }

// FailPut toggles failure of Put.
func (f *FaultyBackend) FailPut(fail bool) { f.failPut.Store(fail) }

// FailRemove toggles failure of Remove.
func (f *FaultyBackend) FailRemove(fail bool) { f.failRemove.Store(fail) }

// FailScan toggles failure of Scan.
func (f *FaultyBackend) FailScan(fail bool) { f.failScan.Store(fail) }

// HoldPuts makes Put block until release is called or its context ends, in
// which case it returns the context's error.
func (f *FaultyBackend) HoldPuts() (release func()) { return f.hold(&f.holdPut) }

// HoldRemoves is HoldPuts for Remove.
func (f *FaultyBackend) HoldRemoves() (release func()) { return f.hold(&f.holdRemove) }

// Waiting returns the number of calls currently blocked by a hold.
func (f *FaultyBackend) Waiting() int64 { return f.waiting.Load() }

func (f *FaultyBackend) hold(gate *chan struct{}) func() {
	f.mu.Lock()
	defer f.mu.Unlock()
	ch := make(chan struct{})
	*gate = ch

	var once sync.Once
	return func() {
		once.Do(func() {
			f.mu.Lock()
			if *gate == ch {
				*gate = nil
			}
			f.mu.Unlock()
			close(ch)
		})
	}
}

func (f *FaultyBackend) wait(ctx context.Context, gate *chan struct{}) error {
	f.mu.Lock()
	ch := *gate
	f.mu.Unlock()
	if ch == nil {
		return nil
	}

	f.waiting.Add(1)
	defer f.waiting.Add(-1)
	select {
	case <-ch:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Puts returns the number of successful Put calls.
func (f *FaultyBackend) Puts() int64 { return f.puts.Load() }

func (f *FaultyBackend) Get(ctx context.Context, id near.ID) (near.Record, bool, error) {
	if f.failGet.Load() {
		return near.Record{}, false, ErrInjected
	}
	return f.inner.Get(ctx, id)
}

func (f *FaultyBackend) Put(ctx context.Context, rec near.Record) error {
	if f.failPut.Load() {
		return ErrInjected
	}
	if err := f.wait(ctx, &f.holdPut); err != nil {
		return err
	}
	if err := f.inner.Put(ctx, rec); err != nil {
		return err
	}
	f.puts.Add(1)
	return nil
}

func (f *FaultyBackend) Remove(ctx context.Context, id near.ID) error {
	if f.failRemove.Load() {
		return ErrInjected
	}
	if err := f.wait(ctx, &f.holdRemove); err != nil {
		return err
	}
	return f.inner.Remove(ctx, id)
}

func (f *FaultyBackend) Scan(ctx context.Context) iter.Seq2[near.Record, error] {
	if f.failScan.Load() {
		return func(yield func(near.Record, error) bool) {
			yield(near.Record{}, ErrInjected)
		}
	}
	return f.inner.Scan(ctx)
}
