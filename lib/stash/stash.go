package stash

import (
	"sync"

	"github.com/mfellner/kvstash/lib/engine"
	"github.com/mfellner/kvstash/lib/engine/bolt"
	"github.com/mfellner/kvstash/lib/logging"
	"github.com/puzpuzpuz/xsync/v3"
)

// --------------------------------------------------------------------------
// Default Engine Registry
// --------------------------------------------------------------------------

// defaultEngines holds one bolt engine per storage directory, so that every
// stash pointed at the same directory shares the same engine instance and
// therefore the same gateway and connection cache.
var defaultEngines = xsync.NewMapOf[string, engine.Engine]()

func defaultEngine(dir string) engine.Engine {
	eng, _ := defaultEngines.LoadOrCompute(dir, func() engine.Engine {
		opts := bolt.DefaultOptions()
		opts.Dir = dir
		return bolt.NewEngine(opts)
	})
	return eng
}

// --------------------------------------------------------------------------
// Storage Facade
// --------------------------------------------------------------------------

// Stash is the storage facade: a handle on one database through which
// collections are accessed. Connections are opened lazily per collection
// and shared through the process-wide gateway of the underlying engine.
//
// Thread-safety: All methods are thread-safe and can be called concurrently.
type Stash struct {
	opts    Options
	gateway *Gateway
	logger  logging.ILogger

	mu     sync.Mutex
	closed bool
}

// New creates a stash from the given overrides merged over the environment
// and the defaults (see ResolveOptions). Overrides may be nil.
func New(overrides *Options) *Stash {
	opts := ResolveOptions(overrides)

	eng := opts.Engine
	if eng == nil {
		eng = defaultEngine(opts.Dir)
	}

	logger := opts.Logger
	if logger == nil {
		logger = logging.GetLogger("stash")
	}

	return &Stash{
		opts:    opts,
		gateway: GatewayFor(eng),
		logger:  logger,
	}
}

// Collection returns an accessor for the named collection. The collection
// is created on first use via a version upgrade if it does not exist yet.
func (s *Stash) Collection(name string) *Collection {
	return &Collection{stash: s, name: name}
}

// DefaultCollection returns the accessor for the configured default
// collection.
func (s *Stash) DefaultCollection() *Collection {
	return s.Collection(s.opts.DefaultCollection)
}

// Database returns the name of the database this stash operates on.
func (s *Stash) Database() string {
	return s.opts.Database
}

// DropCollection removes all entries from the named collection. The
// collection itself stays registered in the database schema; removing the
// registration would need a version upgrade.
func (s *Stash) DropCollection(name string) error {
	return s.Collection(name).Clear()
}

// conn returns an open connection that contains the given collection.
func (s *Stash) conn(collection string) (engine.Connection, error) {
	s.mu.Lock()
	closed := s.closed
	s.mu.Unlock()
	if closed {
		return nil, NewError(RetCClosed, "stash is closed", nil)
	}
	return s.gateway.Open(s.opts.Database, collection, s.opts.Version, nil)
}

// Close marks the stash closed and closes all cached connections of its
// database. Closing an already closed stash is a no-op.
func (s *Stash) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	s.mu.Unlock()

	var firstErr error
	for _, conn := range s.gateway.Release(s.opts.Database) {
		if err := conn.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	if firstErr != nil {
		return NewError(RetCInternalError, "close cached connections", firstErr)
	}
	return nil
}
