package resilience

import (
	"context"
	stderrors "errors"
	"sync/atomic"
	"time"

	"golang.org/x/sync/semaphore"
)

var (
	ErrBulkheadFull    = stderrors.New("bulkhead is full")
	ErrBulkheadTimeout = stderrors.New("bulkhead wait timeout")
)

type BulkheadConfig struct {
	Name          string
	MaxConcurrent int
	// MaxWait bounds how long Execute waits for a slot; zero fails at once.
	// Acquire ignores it and waits on its context.
	MaxWait time.Duration
	// OnReject runs when Execute gives up on a slot.
	OnReject func(name string)
}

// Bulkhead bounds concurrent work. The engine holds one per run so in-flight
// provider and processor calls stay bounded however wide the graph is; the
// run controller holds one for active runs.
type Bulkhead struct {
	config BulkheadConfig
	sem    *semaphore.Weighted
	held   atomic.Int64
}

// NewBulkhead creates a bulkhead. MaxConcurrent defaults to 10.
func NewBulkhead(config BulkheadConfig) *Bulkhead {
	if config.MaxConcurrent <= 0 {
		config.MaxConcurrent = 10
	}
	return &Bulkhead{config: config, sem: semaphore.NewWeighted(int64(config.MaxConcurrent))}
}

// Execute runs fn in a slot, waiting at most MaxWait for one.
func (b *Bulkhead) Execute(ctx context.Context, fn func() error) error {
	if err := b.acquireWithin(ctx); err != nil {
		if b.config.OnReject != nil {
			b.config.OnReject(b.config.Name)
		}
		return err
	}
	defer b.Release()
	return fn()
}

// Acquire blocks until a slot is free or ctx is done.
func (b *Bulkhead) Acquire(ctx context.Context) error {
	if err := b.sem.Acquire(ctx, 1); err != nil {
		return err
	}
	b.held.Add(1)
	return nil
}

// TryAcquire takes a free slot without waiting.
func (b *Bulkhead) TryAcquire() bool {
	if !b.sem.TryAcquire(1) {
		return false
	}
	b.held.Add(1)
	return true
}

// Release returns a slot taken by Acquire or TryAcquire.
func (b *Bulkhead) Release() {
	b.held.Add(-1)
	b.sem.Release(1)
}

func (b *Bulkhead) acquireWithin(ctx context.Context) error {
	if b.TryAcquire() {
		return nil
	}
	if b.config.MaxWait <= 0 {
		return ErrBulkheadFull
	}
	waitCtx, cancel := context.WithTimeout(ctx, b.config.MaxWait)
	defer cancel()
	if err := b.Acquire(waitCtx); err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return ErrBulkheadTimeout
	}
	return nil
}

// InUse returns the number of slots held.
func (b *Bulkhead) InUse() int { return int(b.held.Load()) }

// Available returns the number of free slots.
func (b *Bulkhead) Available() int { return b.config.MaxConcurrent - b.InUse() }

func (b *Bulkhead) MaxConcurrent() int { return b.config.MaxConcurrent }
