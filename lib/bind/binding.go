package bind

import (
	"sync"
	"time"

	"github.com/mfellner/kvstash/lib/codec"
	"github.com/mfellner/kvstash/lib/logging"
	"github.com/mfellner/kvstash/lib/stash"
)

// DefaultDebounce is the quiet period after the last Set before the value
// is persisted.
const DefaultDebounce = 10 * time.Millisecond

// --------------------------------------------------------------------------
// Options
// --------------------------------------------------------------------------

// Options configures a binding.
type Options[T any] struct {
	// Stash configures the underlying storage (see stash.ResolveOptions).
	// May be nil to use environment and defaults.
	Stash *stash.Options

	// Collection is the collection the bound value lives in. Empty means
	// the stash's default collection.
	Collection string

	// Key is the key the bound value is stored under.
	Key string

	// Default is the value used when the key does not exist yet, and the
	// value Remove resets to.
	Default T

	// Codec encodes and decodes the bound value. Defaults to JSON.
	Codec codec.ICodec

	// Debounce is the quiet period before a changed value is persisted.
	// Defaults to DefaultDebounce.
	Debounce time.Duration

	// Logger overrides the binding logger.
	Logger logging.ILogger
}

// --------------------------------------------------------------------------
// Reactive Binding
// --------------------------------------------------------------------------

// Binding keeps one typed value synchronized with a stored entry. Reads
// are served from memory; writes update memory immediately and are
// persisted in the background after a debounce period, so bursts of
// updates result in a single write of the latest value.
//
// When the initial load fails the binding degrades to a read-only,
// in-memory value: Get and Set keep working, nothing is persisted, and
// Err reports the load failure.
//
// Thread-safety: All methods are thread-safe and can be called concurrently.
type Binding[T any] struct {
	opts   Options[T]
	stash  *stash.Stash
	coll   *stash.Collection
	codec  codec.ICodec
	writer *writer[T]
	logger logging.ILogger

	// resolved identifies the stored entry for Rebind comparisons
	resolved stash.Options

	mu          sync.RWMutex
	value       T
	persisted   T
	loaded      bool
	readOnly    bool
	err         error
	lastUpdated time.Time
	closed      bool
}

// New creates a binding and loads the stored value. A missing key yields
// the default value; a failed load yields a read-only in-memory binding
// (see Err).
func New[T any](opts Options[T]) *Binding[T] {
	b := &Binding[T]{opts: opts}
	b.init()
	return b
}

func (b *Binding[T]) init() {
	b.codec = b.opts.Codec
	if b.codec == nil {
		b.codec = codec.NewJSONCodec()
	}
	b.logger = b.opts.Logger
	if b.logger == nil {
		b.logger = logging.GetLogger("bind")
	}
	debounce := b.opts.Debounce
	if debounce <= 0 {
		debounce = DefaultDebounce
	}

	b.resolved = stash.ResolveOptions(b.opts.Stash)
	b.stash = stash.New(b.opts.Stash)
	if b.opts.Collection != "" {
		b.coll = b.stash.Collection(b.opts.Collection)
	} else {
		b.coll = b.stash.DefaultCollection()
	}
	b.writer = newWriter[T](debounce, b.persist, b.revert)

	b.value = b.opts.Default
	b.persisted = b.opts.Default
	b.load()
}

// load reads the stored value into memory. Load failures leave the binding
// read-only with the default value.
func (b *Binding[T]) load() {
	data, found, err := b.coll.Get(b.opts.Key)

	b.mu.Lock()
	defer b.mu.Unlock()
	b.lastUpdated = time.Now()

	if err != nil {
		b.readOnly = true
		b.err = err
		b.logger.Warningf("load of %q failed, binding is read-only: %v", b.opts.Key, err)
		return
	}
	if !found {
		b.loaded = true
		return
	}

	var value T
	if err := b.codec.Decode(data, &value); err != nil {
		// the stored bytes are unreadable; keep the default and let the
		// next Set overwrite them
		b.err = err
		b.loaded = true
		b.logger.Warningf("decode of %q failed, using default: %v", b.opts.Key, err)
		return
	}
	b.value = value
	b.persisted = value
	b.loaded = true
}

// persist is the writer's flush function. It runs on the debounce timer
// goroutine.
func (b *Binding[T]) persist(value T) error {
	data, err := b.codec.Encode(value)
	if err != nil {
		return err
	}
	if err := b.coll.Set(b.opts.Key, data); err != nil {
		return err
	}

	b.mu.Lock()
	b.persisted = value
	b.err = nil
	b.mu.Unlock()
	return nil
}

// revert is the writer's error handler: the in-memory value falls back to
// the last successfully persisted one.
func (b *Binding[T]) revert(value T, err error) {
	b.mu.Lock()
	b.value = b.persisted
	b.err = err
	b.mu.Unlock()
	b.logger.Errorf("persist of %q failed, reverting to last stored value: %v", b.opts.Key, err)
}

// Get returns the current in-memory value.
func (b *Binding[T]) Get() T {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.value
}

// Set updates the in-memory value immediately and schedules a debounced
// persist of it.
func (b *Binding[T]) Set(value T) {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return
	}
	b.value = value
	b.lastUpdated = time.Now()
	readOnly := b.readOnly
	b.mu.Unlock()

	if !readOnly {
		b.writer.Set(value)
	}
}

// Update applies fn to the current value and stores the result, like Set.
func (b *Binding[T]) Update(fn func(value T) T) {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return
	}
	b.value = fn(b.value)
	b.lastUpdated = time.Now()
	value := b.value
	readOnly := b.readOnly
	b.mu.Unlock()

	if !readOnly {
		b.writer.Set(value)
	}
}

// Remove resets the binding to its default value. The default is persisted
// through the regular debounced path, so the stored entry is overwritten,
// not deleted.
func (b *Binding[T]) Remove() {
	b.Set(b.opts.Default)
}

// Refresh re-reads the stored value, discarding the in-memory one. Pending
// writes are flushed first.
func (b *Binding[T]) Refresh() {
	b.mu.RLock()
	readOnly := b.readOnly
	closed := b.closed
	b.mu.RUnlock()
	if readOnly || closed {
		return
	}
	b.writer.Flush()
	b.load()
}

// Err returns the most recent load or persist error, nil when the last
// operation succeeded.
func (b *Binding[T]) Err() error {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.err
}

// Loaded reports whether the initial load completed successfully.
func (b *Binding[T]) Loaded() bool {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.loaded
}

// LastUpdated returns the time of the last load, Set or Update.
func (b *Binding[T]) LastUpdated() time.Time {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.lastUpdated
}

// Close flushes any pending write and releases the underlying stash.
// Closing an already closed binding is a no-op.
func (b *Binding[T]) Close() error {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return nil
	}
	b.closed = true
	b.mu.Unlock()

	b.writer.Close()
	return b.stash.Close()
}

// Rebind points the binding at a (possibly) different stored entry. When
// the new options identify the same database, collection and key, the
// binding is left untouched; otherwise it is closed and re-initialized
// from the new options.
func (b *Binding[T]) Rebind(opts Options[T]) {
	resolved := stash.ResolveOptions(opts.Stash)
	collection := opts.Collection
	if collection == "" {
		collection = resolved.DefaultCollection
	}
	current := b.opts.Collection
	if current == "" {
		current = b.resolved.DefaultCollection
	}

	sameIdentity := resolved.Dir == b.resolved.Dir &&
		resolved.Database == b.resolved.Database &&
		resolved.Version == b.resolved.Version &&
		collection == current &&
		opts.Key == b.opts.Key
	if sameIdentity {
		return
	}

	_ = b.Close()

	b.mu.Lock()
	b.opts = opts
	b.loaded = false
	b.readOnly = false
	b.closed = false
	b.err = nil
	b.mu.Unlock()
	b.init()
}
