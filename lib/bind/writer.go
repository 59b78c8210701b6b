package bind

import (
	"sync"
	"time"
)

// --------------------------------------------------------------------------
// Debounced Writer
// --------------------------------------------------------------------------

// writer coalesces rapid Set calls into a single flush of the latest value
// after a quiet period of delay. Flushes run on a timer goroutine; onError
// is invoked there when the flush function fails.
//
// Every Set stamps the pending value with a generation number and flushes
// are serialized on their own mutex, so a slow flush of an older value can
// never land after (or instead of) a newer one.
type writer[T any] struct {
	delay   time.Duration
	flushFn func(value T) error
	onError func(value T, err error)

	mu         sync.Mutex
	timer      *time.Timer
	pending    T
	pendingGen uint64
	hasPending bool
	closed     bool

	flushMu    sync.Mutex
	flushedGen uint64
}

func newWriter[T any](delay time.Duration, flushFn func(T) error, onError func(T, error)) *writer[T] {
	return &writer[T]{
		delay:   delay,
		flushFn: flushFn,
		onError: onError,
	}
}

// Set records value as the pending write and re-arms the debounce timer.
// Values set while the timer runs replace the pending one, so only the
// latest value is flushed.
func (w *writer[T]) Set(value T) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.closed {
		return
	}

	w.pending = value
	w.pendingGen++
	w.hasPending = true

	if w.timer != nil {
		w.timer.Stop()
	}
	w.timer = time.AfterFunc(w.delay, w.fire)
}

// take removes the pending value for flushing. The second return value
// reports whether there was one.
func (w *writer[T]) take() (T, uint64, bool) {
	value := w.pending
	gen := w.pendingGen
	ok := w.hasPending
	w.hasPending = false
	return value, gen, ok
}

// fire is the timer callback: it takes the pending value and flushes it.
func (w *writer[T]) fire() {
	w.mu.Lock()
	if w.closed {
		w.mu.Unlock()
		return
	}
	value, gen, ok := w.take()
	w.mu.Unlock()

	if ok {
		w.flush(value, gen)
	}
}

// Flush writes the pending value immediately, cancelling the timer. It is
// a no-op when nothing is pending.
func (w *writer[T]) Flush() {
	w.mu.Lock()
	if w.timer != nil {
		w.timer.Stop()
	}
	value, gen, ok := w.take()
	w.mu.Unlock()

	if ok {
		w.flush(value, gen)
	}
}

// Close flushes any pending value and stops the writer. Further Set calls
// are ignored.
func (w *writer[T]) Close() {
	w.mu.Lock()
	if w.closed {
		w.mu.Unlock()
		return
	}
	w.closed = true
	if w.timer != nil {
		w.timer.Stop()
	}
	value, gen, ok := w.take()
	w.mu.Unlock()

	if ok {
		w.flush(value, gen)
	}
}

// flush runs the flush function for one taken value. Flushes are serialized
// and stale generations are dropped, so when a flush of an older value is
// still in flight while a newer value fires, the newer value always wins.
func (w *writer[T]) flush(value T, gen uint64) {
	w.flushMu.Lock()
	defer w.flushMu.Unlock()
	if gen <= w.flushedGen {
		return
	}
	w.flushedGen = gen
	if err := w.flushFn(value); err != nil && w.onError != nil {
		w.onError(value, err)
	}
}
