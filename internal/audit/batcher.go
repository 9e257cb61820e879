package audit

import (
	"sync"
	"time"
)

// Batcher queues items and emits them in batches, mirroring the buffer
// contract of the browser activity logger it receives from: a batch
// goes out when limit items have queued, or when linger has elapsed
// since the first queued item, so a quiet page still drains within one
// interval. Emit runs on its own goroutine because the sink is a
// database write that must not block Add.
type Batcher[T any] struct {
	limit  int
	linger time.Duration
	emit   func([]T)

	mu      sync.Mutex
	pending []T
	timer   *time.Timer
	closed  bool

	inflight sync.WaitGroup
}

// NewBatcher builds a batcher over emit. limit and linger follow the
// collector defaults when callers pass the configured values through.
func NewBatcher[T any](limit int, linger time.Duration, emit func([]T)) *Batcher[T] {
	return &Batcher[T]{
		limit:  limit,
		linger: linger,
		emit:   emit,
	}
}

// Add queues one item. Items arriving after Stop are dropped, matching
// the browser logger's unload behavior.
func (b *Batcher[T]) Add(item T) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return
	}

	b.pending = append(b.pending, item)
	if len(b.pending) >= b.limit {
		b.dispatchLocked()
		return
	}
	if b.timer == nil {
		b.timer = time.AfterFunc(b.linger, b.lingerExpired)
	}
}

// Flush emits whatever is pending without waiting for the linger.
func (b *Batcher[T]) Flush() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if len(b.pending) > 0 {
		b.dispatchLocked()
	}
}

// Stop emits the remaining items, refuses further adds, and waits for
// every in-flight emit to finish so the sink sees a complete drain.
func (b *Batcher[T]) Stop() {
	b.mu.Lock()
	b.closed = true
	if b.timer != nil {
		b.timer.Stop()
		b.timer = nil
	}
	if len(b.pending) > 0 {
		b.dispatchLocked()
	}
	b.mu.Unlock()

	b.inflight.Wait()
}

func (b *Batcher[T]) lingerExpired() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.timer = nil
	if !b.closed && len(b.pending) > 0 {
		b.dispatchLocked()
	}
}

// dispatchLocked steals the pending batch and emits it off the lock.
// Caller holds b.mu.
func (b *Batcher[T]) dispatchLocked() {
	if b.timer != nil {
		b.timer.Stop()
		b.timer = nil
	}
	batch := b.pending
	b.pending = nil

	b.inflight.Add(1)
	go func() {
		defer b.inflight.Done()
		b.emit(batch)
	}()
}
