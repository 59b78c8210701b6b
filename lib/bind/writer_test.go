package bind

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// flushRecorder collects flushed values for assertions.
type flushRecorder struct {
	mu     sync.Mutex
	values []int
}

func (r *flushRecorder) flush(v int) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.values = append(r.values, v)
	return nil
}

func (r *flushRecorder) flushed() []int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]int(nil), r.values...)
}

func TestWriterCoalescesRapidSets(t *testing.T) {
	rec := &flushRecorder{}
	w := newWriter[int](20*time.Millisecond, rec.flush, nil)
	defer w.Close()

	// three sets within the debounce window flush once, with the latest
	w.Set(1)
	w.Set(2)
	w.Set(3)

	time.Sleep(300 * time.Millisecond)

	require.Equal(t, []int{3}, rec.flushed())
}

func TestWriterFlushesOnClose(t *testing.T) {
	rec := &flushRecorder{}
	w := newWriter[int](time.Hour, rec.flush, nil)

	w.Set(42)
	w.Close()

	assert.Equal(t, []int{42}, rec.flushed())

	// sets after close are dropped
	w.Set(7)
	w.Close()
	assert.Equal(t, []int{42}, rec.flushed())
}

func TestWriterFlushWithoutPending(t *testing.T) {
	rec := &flushRecorder{}
	w := newWriter[int](time.Hour, rec.flush, nil)
	defer w.Close()

	w.Flush()
	assert.Empty(t, rec.flushed())
}

func TestWriterSlowFlushCannotOvertakeNewerValue(t *testing.T) {
	var (
		mu   sync.Mutex
		last int
	)
	w := newWriter[int](5*time.Millisecond, func(v int) error {
		// the first value is slow to persist, a newer one arrives meanwhile
		if v == 1 {
			time.Sleep(100 * time.Millisecond)
		}
		mu.Lock()
		defer mu.Unlock()
		last = v
		return nil
	}, nil)
	defer w.Close()

	w.Set(1)
	time.Sleep(30 * time.Millisecond) // flush of 1 is now in flight
	w.Set(2)
	time.Sleep(300 * time.Millisecond)

	mu.Lock()
	defer mu.Unlock()
	require.Equal(t, 2, last)
}

func TestWriterReportsFlushErrors(t *testing.T) {
	var (
		mu       sync.Mutex
		gotValue int
		gotErr   error
	)
	w := newWriter[int](time.Hour,
		func(int) error { return assert.AnError },
		func(v int, err error) {
			mu.Lock()
			defer mu.Unlock()
			gotValue = v
			gotErr = err
		})
	defer w.Close()

	w.Set(5)
	w.Flush()

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, 5, gotValue)
	assert.ErrorIs(t, gotErr, assert.AnError)
}
